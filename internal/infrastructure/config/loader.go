package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Environment variables that override file values.
const (
	EnvBackendURL  = "CROPCARE_BACKEND_URL"
	EnvAnonKey     = "CROPCARE_ANON_KEY"
	EnvAccessToken = "CROPCARE_ACCESS_TOKEN"
)

// Loader handles loading configuration from files.
type Loader struct {
	configDir string
	getenv    func(string) string
}

// NewLoader creates a new configuration loader.
// If configDir is empty, it defaults to ~/.cropcare.
func NewLoader(configDir string) (*Loader, error) {
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		configDir = filepath.Join(homeDir, ".cropcare")
	}

	return &Loader{configDir: configDir, getenv: os.Getenv}, nil
}

// Load loads configuration from the specified file or default location.
// A missing file yields the defaults. Environment overrides and path defaults
// are applied in both cases.
func (l *Loader) Load(configPath string) (*Config, error) {
	if configPath == "" {
		configPath = l.DefaultConfigPath()
	}

	cfg := NewDefaultConfig()
	data, err := os.ReadFile(configPath)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	l.applyEnv(cfg)
	l.resolvePaths(cfg)
	return cfg, nil
}

func (l *Loader) applyEnv(cfg *Config) {
	if v := l.getenv(EnvBackendURL); v != "" {
		cfg.Backend.URL = strings.TrimRight(v, "/")
	}
	if v := l.getenv(EnvAnonKey); v != "" {
		cfg.Backend.AnonKey = v
	}
	if v := l.getenv(EnvAccessToken); v != "" {
		cfg.Backend.AccessToken = v
	}
}

// resolvePaths fills unset local paths under the config directory and expands "~/".
func (l *Loader) resolvePaths(cfg *Config) {
	cfg.Cache.DBPath = l.resolve(cfg.Cache.DBPath, "cropcare.db")
	cfg.Capture.Directory = l.resolve(cfg.Capture.Directory, "capture")
	cfg.Capture.SpoolDir = l.resolve(cfg.Capture.SpoolDir, "spool")
}

func (l *Loader) resolve(path, fallback string) string {
	if path == "" {
		return filepath.Join(l.configDir, fallback)
	}
	if strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[2:])
		}
	}
	return path
}

// Save saves configuration to the specified file or default location.
func (l *Loader) Save(cfg *Config, configPath string) error {
	if configPath == "" {
		configPath = l.DefaultConfigPath()
	}

	if err := os.MkdirAll(filepath.Dir(configPath), 0o750); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	header := "# CropCare configuration\n# Values may be overridden with " +
		EnvBackendURL + ", " + EnvAnonKey + " and " + EnvAccessToken + ".\n#\n"

	// The file can hold an access token.
	if err := os.WriteFile(configPath, []byte(header+string(data)), 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// ConfigDir returns the configuration directory path.
func (l *Loader) ConfigDir() string {
	return l.configDir
}

// DefaultConfigPath returns the default configuration file path.
func (l *Loader) DefaultConfigPath() string {
	return filepath.Join(l.configDir, "config.yaml")
}
