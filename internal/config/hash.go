package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/zeebo/blake3"
	"gopkg.in/yaml.v3"
)

// ChecksumFile is the manifest name inside a config directory.
const ChecksumFile = ".checksums"

// ChecksumManifest pins the BLAKE3 hash of every config file in a directory.
type ChecksumManifest struct {
	Version     int               `yaml:"version"`
	GeneratedAt string            `yaml:"generated_at"`
	Hashes      map[string]string `yaml:"hashes"`
}

// LockReport lists what GenerateChecksums hashed.
type LockReport struct {
	ChecksumPath string
	Written      bool
	Files        map[string]string
}

// ComputeBlake3Hash computes the BLAKE3 hash of a file.
func ComputeBlake3Hash(filePath string) (string, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return "", fmt.Errorf("failed to read file: %w", err)
	}
	hash := blake3.Sum256(data)
	return hex.EncodeToString(hash[:]), nil
}

// VerifyFileHash verifies a file against an expected BLAKE3 hash.
func VerifyFileHash(filePath, expectedHash string) error {
	actualHash, err := ComputeBlake3Hash(filePath)
	if err != nil {
		return fmt.Errorf("failed to compute hash: %w", err)
	}
	if actualHash != expectedHash {
		return fmt.Errorf("hash mismatch for %s: expected %s, got %s",
			filepath.Base(filePath), expectedHash, actualHash)
	}
	return nil
}

// GenerateChecksums hashes the given config files (root and includes) and
// writes one manifest per directory. With dryRun nothing is written.
func GenerateChecksums(paths []string, dryRun bool) ([]LockReport, error) {
	byDir := make(map[string][]string)
	for _, p := range paths {
		byDir[filepath.Dir(p)] = append(byDir[filepath.Dir(p)], p)
	}
	dirs := make([]string, 0, len(byDir))
	for dir := range byDir {
		dirs = append(dirs, dir)
	}
	sort.Strings(dirs)

	reports := make([]LockReport, 0, len(dirs))
	for _, dir := range dirs {
		manifest := ChecksumManifest{
			Version:     1,
			GeneratedAt: time.Now().UTC().Format(time.RFC3339),
			Hashes:      make(map[string]string),
		}
		for _, p := range byDir[dir] {
			hash, err := ComputeBlake3Hash(p)
			if err != nil {
				return nil, fmt.Errorf("failed to hash %s: %w", p, err)
			}
			manifest.Hashes[filepath.Base(p)] = hash
		}

		report := LockReport{ChecksumPath: filepath.Join(dir, ChecksumFile), Files: manifest.Hashes}
		if !dryRun {
			data, err := yaml.Marshal(manifest)
			if err != nil {
				return nil, fmt.Errorf("failed to marshal checksums: %w", err)
			}
			if err := os.WriteFile(report.ChecksumPath, data, 0o600); err != nil {
				return nil, fmt.Errorf("failed to write checksums: %w", err)
			}
			report.Written = true
		}
		reports = append(reports, report)
	}
	return reports, nil
}

var errNoChecksums = errors.New("checksums file not found")

// LoadChecksums reads the manifest from a config directory.
func LoadChecksums(configDir string) (*ChecksumManifest, error) {
	data, err := os.ReadFile(filepath.Join(configDir, ChecksumFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w (run 'homectl config lock')", errNoChecksums)
		}
		return nil, fmt.Errorf("failed to read checksums: %w", err)
	}

	var manifest ChecksumManifest
	if err := yaml.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("failed to parse checksums: %w", err)
	}
	if manifest.Version != 1 {
		return nil, fmt.Errorf("unsupported checksums version: %d", manifest.Version)
	}
	return &manifest, nil
}

// verifyConfigHashes checks every file against the manifest of its
// directory. Directories without a manifest are not verified.
func verifyConfigHashes(paths []string) error {
	byDir := make(map[string][]string)
	for _, p := range paths {
		byDir[filepath.Dir(p)] = append(byDir[filepath.Dir(p)], p)
	}

	for dir, files := range byDir {
		manifest, err := LoadChecksums(dir)
		if errors.Is(err, errNoChecksums) {
			continue
		}
		if err != nil {
			return err
		}

		for _, path := range files {
			expected, ok := manifest.Hashes[filepath.Base(path)]
			if !ok {
				return fmt.Errorf("config file %s has no hash in %s\n"+
					"Run: homectl config lock", filepath.Base(path), filepath.Join(dir, ChecksumFile))
			}
			if err := VerifyFileHash(path, expected); err != nil {
				return fmt.Errorf("config verification failed for %s: %w\n"+
					"If you edited this file intentionally, run: homectl config lock", path, err)
			}
		}
	}
	return nil
}
