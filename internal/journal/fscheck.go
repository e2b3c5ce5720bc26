package journal

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// fsDetector names the filesystem holding an existing path.
type fsDetector func(path string) (string, error)

var errDetectUnsupported = errors.New("filesystem detection is unsupported on this platform")

// remoteFS lists filesystems SQLite cannot lock reliably.
var remoteFS = map[string]bool{
	"afpfs": true, "cifs": true, "nfs": true,
	"smbfs": true, "smb2": true, "webdav": true,
}

func isNetworkFilesystem(fsType string) bool {
	return remoteFS[strings.ToLower(strings.TrimSpace(fsType))]
}

// validateFilesystem refuses journal paths on network filesystems.
// Platforms without detection pass.
func validateFilesystem(path string) error {
	err := checkLocalFS(path, detectFilesystemType)
	if errors.Is(err, errDetectUnsupported) {
		return nil
	}
	return err
}

func checkLocalFS(path string, detect fsDetector) error {
	if path == "" {
		return fmt.Errorf("sqlite path is empty")
	}
	dir, err := existingAncestor(path)
	if err != nil {
		return fmt.Errorf("resolve journal path %q: %w", path, err)
	}
	fsType, err := detect(dir)
	if err != nil {
		return fmt.Errorf("detect filesystem for %q: %w", dir, err)
	}
	if isNetworkFilesystem(fsType) {
		return fmt.Errorf("journal path %q is on network filesystem %q; move journal.path to a local disk or disable the journal", path, fsType)
	}
	return nil
}

// existingAncestor walks up from path to the first entry that exists, since
// the database file and its directory may not be created yet.
func existingAncestor(path string) (string, error) {
	p, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	for {
		_, err := os.Stat(p)
		switch {
		case err == nil:
			return p, nil
		case !errors.Is(err, os.ErrNotExist):
			return "", err
		}
		parent := filepath.Dir(p)
		if parent == p {
			return "", fmt.Errorf("no existing parent for %q", path)
		}
		p = parent
	}
}
