package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// EnvConfigDir overrides config discovery.
const EnvConfigDir = "HOMECTL_CONFIG_DIR"

// Load reads a config file, or config.yaml inside a directory, follows its
// include list, verifies checksums where a manifest exists, applies
// defaults and validates the result.
func Load(configPath string) (*Config, error) {
	cfg, err := loadTree(configPath)
	if err != nil {
		return nil, err
	}

	if err := verifyConfigHashes(cfg.SourceFiles); err != nil {
		return nil, err
	}

	cfg = applyConfigDefaults(cfg)
	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Sources lists the files Load would read, root first, without verifying
// checksums. "homectl config lock" hashes exactly these.
func Sources(configPath string) ([]string, error) {
	cfg, err := loadTree(configPath)
	if err != nil {
		return nil, err
	}
	return cfg.SourceFiles, nil
}

func loadTree(configPath string) (*Config, error) {
	absPath, err := filepath.Abs(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve config path %q: %w", configPath, err)
	}

	info, err := os.Stat(absPath)
	if err != nil {
		return nil, fmt.Errorf("config file not found: %s\n"+
			"Hint: Check the path or run with --config flag", absPath)
	}
	if info.IsDir() {
		absPath = filepath.Join(absPath, "config.yaml")
		if _, err := os.Stat(absPath); err != nil {
			return nil, fmt.Errorf("directory provided but config.yaml not found: %s", absPath)
		}
	}

	cfg, err := loadConfigFile(absPath)
	if err != nil {
		return nil, err
	}
	visited := map[string]bool{absPath: true}
	cfg.SourceFiles = []string{absPath}
	if err := loadIncludes(cfg, cfg.Include, filepath.Dir(absPath), visited); err != nil {
		return nil, err
	}
	return cfg, nil
}

// DiscoverConfigDir finds the config location by checking, in order,
// $HOMECTL_CONFIG_DIR, ~/.config/homectl, /etc/homectl and ./config.yaml.
func DiscoverConfigDir() (string, error) {
	if dir := os.Getenv(EnvConfigDir); dir != "" {
		if _, err := os.Stat(dir); err == nil {
			return dir, nil
		}
	}

	if homeDir, err := os.UserHomeDir(); err == nil {
		userConfigDir := filepath.Join(homeDir, ".config", "homectl")
		if _, err := os.Stat(filepath.Join(userConfigDir, "config.yaml")); err == nil {
			return userConfigDir, nil
		}
	}

	if _, err := os.Stat("/etc/homectl/config.yaml"); err == nil {
		return "/etc/homectl", nil
	}

	if _, err := os.Stat("./config.yaml"); err == nil {
		return "./config.yaml", nil
	}

	return "", fmt.Errorf("no config found (checked: $%s, ~/.config/homectl, /etc/homectl, ./config.yaml)", EnvConfigDir)
}

func loadIncludes(cfg *Config, includes []string, baseDir string, visited map[string]bool) error {
	for i, includePath := range includes {
		includePath = interpolateEnv(includePath)
		resolved := includePath
		if !filepath.IsAbs(resolved) {
			resolved = filepath.Join(baseDir, includePath)
		}
		absPath, err := filepath.Abs(resolved)
		if err != nil {
			return fmt.Errorf("include[%d]: failed to resolve path %q: %w", i, includePath, err)
		}

		if visited[absPath] {
			return fmt.Errorf("include[%d]: circular dependency detected: %s", i, absPath)
		}
		if _, err := os.Stat(absPath); err != nil {
			if os.IsNotExist(err) {
				return fmt.Errorf("include[%d]: file not found: %s\n"+
					"Referenced from: %s", i, absPath, baseDir)
			}
			return fmt.Errorf("include[%d]: failed to access file %s: %w", i, absPath, err)
		}
		visited[absPath] = true

		included, err := loadConfigFile(absPath)
		if err != nil {
			return fmt.Errorf("include[%d] (%s): %w", i, includePath, err)
		}
		cfg.SourceFiles = append(cfg.SourceFiles, absPath)
		mergeConfig(cfg, included)

		if len(included.Include) > 0 {
			if err := loadIncludes(cfg, included.Include, filepath.Dir(absPath), visited); err != nil {
				return err
			}
		}
	}
	return nil
}

// loadConfigFile parses one file after environment interpolation.
func loadConfigFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal([]byte(interpolateEnv(string(data))), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	return &cfg, nil
}

// mergeConfig copies the non-zero values of src over dst.
func mergeConfig(dst, src *Config) {
	if src.Service.Name != "" {
		dst.Service.Name = src.Service.Name
	}
	if src.Service.LogLevel != "" {
		dst.Service.LogLevel = src.Service.LogLevel
	}
	if src.Server.BaseURL != "" {
		dst.Server.BaseURL = src.Server.BaseURL
	}
	if src.Server.RequestTimeout != 0 {
		dst.Server.RequestTimeout = src.Server.RequestTimeout
	}
	if src.Dispatch.DebounceWindow != 0 {
		dst.Dispatch.DebounceWindow = src.Dispatch.DebounceWindow
	}
	if src.Dispatch.FocusDelay != 0 {
		dst.Dispatch.FocusDelay = src.Dispatch.FocusDelay
	}
	if src.Journal.Enabled {
		dst.Journal.Enabled = true
	}
	if src.Journal.Path != "" {
		dst.Journal.Path = src.Journal.Path
	}
	if src.Journal.Retention != 0 {
		dst.Journal.Retention = src.Journal.Retention
	}
	if src.Metrics.Listen != "" {
		dst.Metrics.Listen = src.Metrics.Listen
	}
	if src.DevServer.Listen != "" {
		dst.DevServer.Listen = src.DevServer.Listen
	}
	if src.DevServer.Fixtures != "" {
		dst.DevServer.Fixtures = src.DevServer.Fixtures
	}
}

// applyConfigDefaults fills every unset field from Defaults.
func applyConfigDefaults(cfg *Config) *Config {
	files := cfg.SourceFiles
	include := cfg.Include
	merged := Defaults()
	mergeConfig(merged, cfg)
	merged.SourceFiles = files
	merged.Include = include
	return merged
}

// interpolateEnv replaces ${VAR} with environment variable values.
// Undefined variables are left as-is and rejected by validate.
func interpolateEnv(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		varName := envVarPattern.FindStringSubmatch(match)[1]
		if value, exists := os.LookupEnv(varName); exists {
			return value
		}
		return match
	})
}

// Validate checks a config built in code, such as Defaults.
func Validate(cfg *Config) error {
	return validate(cfg)
}

func validate(cfg *Config) error {
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[strings.ToLower(cfg.Service.LogLevel)] {
		return fmt.Errorf("service.log_level must be one of: debug, info, warn, error (got %q)", cfg.Service.LogLevel)
	}

	fields := map[string]string{
		"server.base_url":    cfg.Server.BaseURL,
		"journal.path":       cfg.Journal.Path,
		"metrics.listen":     cfg.Metrics.Listen,
		"devserver.listen":   cfg.DevServer.Listen,
		"devserver.fixtures": cfg.DevServer.Fixtures,
	}
	for name, value := range fields {
		if m := envVarPattern.FindStringSubmatch(value); len(m) > 1 {
			return fmt.Errorf("%s: environment variable ${%s} is not set", name, m[1])
		}
	}

	u, err := url.Parse(cfg.Server.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("server.base_url must be an absolute http(s) URL (got %q)", cfg.Server.BaseURL)
	}
	if cfg.Server.RequestTimeout <= 0 {
		return fmt.Errorf("server.request_timeout must be positive")
	}
	if cfg.Dispatch.DebounceWindow < 0 {
		return fmt.Errorf("dispatch.debounce_window must not be negative")
	}
	if cfg.Dispatch.FocusDelay < 0 {
		return fmt.Errorf("dispatch.focus_delay must not be negative")
	}
	if cfg.Journal.Enabled && cfg.Journal.Path == "" {
		return fmt.Errorf("journal.path is required when the journal is enabled")
	}
	if cfg.Journal.Retention < 0 {
		return fmt.Errorf("journal.retention must not be negative")
	}
	return nil
}
