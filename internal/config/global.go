package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"
)

// GlobalConfig represents configuration stored in ~/.config/bipcite/config.yml.
type GlobalConfig struct {
	// LibraryPath overrides the location of the personal library cache.
	LibraryPath         string `yaml:"library_path,omitempty"`
	LibraryURL          string `yaml:"library_url,omitempty"`
	LibraryUser         string `yaml:"library_user,omitempty"`
	LibraryAPIKey       string `yaml:"library_api_key,omitempty"`
	CrossrefMailto      string `yaml:"crossref_mailto,omitempty"`
	PubMedAPIKey        string `yaml:"pubmed_api_key,omitempty"`
	RedisAddr           string `yaml:"redis_addr,omitempty"`
	DefaultBibliography string `yaml:"default_bibliography,omitempty"`
	// LibraryDefault enables the personal library for documents that do
	// not say otherwise.
	LibraryDefault *bool  `yaml:"library_default,omitempty"`
	LogMode        string `yaml:"log_mode,omitempty"`
}

const (
	// GlobalConfigFile is the config file name.
	GlobalConfigFile = "config.yml"
)

var (
	globalConfigMu    sync.Mutex
	globalConfigCache *GlobalConfig
)

// GlobalConfigPath returns the path to the global config file.
// Respects XDG_CONFIG_HOME, defaults to ~/.config/bipcite/config.yml.
func GlobalConfigPath() string {
	configHome := os.Getenv("XDG_CONFIG_HOME")
	if configHome == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		configHome = filepath.Join(home, ".config")
	}
	return filepath.Join(configHome, AppDir, GlobalConfigFile)
}

// LoadGlobalConfig loads the global configuration file.
// Returns an empty config (not an error) if the file doesn't exist.
func LoadGlobalConfig() (*GlobalConfig, error) {
	globalConfigMu.Lock()
	defer globalConfigMu.Unlock()

	if globalConfigCache != nil {
		return globalConfigCache, nil
	}

	path := GlobalConfigPath()
	if path == "" {
		return &GlobalConfig{}, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &GlobalConfig{}, nil
		}
		return nil, fmt.Errorf("reading global config: %w", err)
	}

	var cfg GlobalConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing global config: %w", err)
	}

	if cfg.LibraryPath != "" {
		cfg.LibraryPath = ExpandPath(cfg.LibraryPath)
	}
	if cfg.DefaultBibliography != "" {
		cfg.DefaultBibliography = ExpandPath(cfg.DefaultBibliography)
	}

	globalConfigCache = &cfg
	return &cfg, nil
}

// ResetGlobalConfigCache clears the cached global config.
// Useful for testing.
func ResetGlobalConfigCache() {
	globalConfigMu.Lock()
	globalConfigCache = nil
	globalConfigMu.Unlock()
}

// LibraryEnabledByDefault reports the user-level default for the personal
// library. Unset means enabled.
func (c *GlobalConfig) LibraryEnabledByDefault() bool {
	if c == nil || c.LibraryDefault == nil {
		return true
	}
	return *c.LibraryDefault
}
