package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeGlobalConfig(t *testing.T, body string) string {
	t.Helper()
	tmpDir := t.TempDir()
	configDir := filepath.Join(tmpDir, AppDir)
	if err := os.MkdirAll(configDir, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(configDir, GlobalConfigFile), []byte(body), 0644); err != nil {
		t.Fatal(err)
	}
	return tmpDir
}

func TestGlobalConfigPath(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/custom/config")
	path := GlobalConfigPath()
	want := "/custom/config/bipcite/config.yml"
	if path != want {
		t.Errorf("GlobalConfigPath() = %q, want %q", path, want)
	}

	t.Setenv("XDG_CONFIG_HOME", "")
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("Cannot get home directory")
	}
	path = GlobalConfigPath()
	want = filepath.Join(home, ".config", "bipcite", "config.yml")
	if path != want {
		t.Errorf("GlobalConfigPath() = %q, want %q", path, want)
	}
}

func TestLoadGlobalConfig_NotFound(t *testing.T) {
	ResetGlobalConfigCache()
	defer ResetGlobalConfigCache()

	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	cfg, err := LoadGlobalConfig()
	if err != nil {
		t.Fatalf("LoadGlobalConfig() error = %v", err)
	}
	if cfg == nil {
		t.Fatal("LoadGlobalConfig() returned nil")
	}
	if cfg.LibraryURL != "" {
		t.Errorf("LibraryURL = %q, want empty", cfg.LibraryURL)
	}
	if !cfg.LibraryEnabledByDefault() {
		t.Error("library should be enabled by default")
	}
}

func TestLoadGlobalConfig_Valid(t *testing.T) {
	ResetGlobalConfigCache()
	defer ResetGlobalConfigCache()

	tmpDir := writeGlobalConfig(t, `
library_path: ~/cache/library.db
library_url: https://library.example.org
library_user: "12345"
crossref_mailto: me@example.org
library_default: false
log_mode: dev
`)
	t.Setenv("XDG_CONFIG_HOME", tmpDir)

	cfg, err := LoadGlobalConfig()
	if err != nil {
		t.Fatalf("LoadGlobalConfig() error = %v", err)
	}

	home, _ := os.UserHomeDir()
	wantPath := filepath.Join(home, "cache/library.db")
	if cfg.LibraryPath != wantPath {
		t.Errorf("LibraryPath = %q, want %q", cfg.LibraryPath, wantPath)
	}
	if cfg.LibraryUser != "12345" {
		t.Errorf("LibraryUser = %q, want 12345", cfg.LibraryUser)
	}
	if cfg.CrossrefMailto != "me@example.org" {
		t.Errorf("CrossrefMailto = %q", cfg.CrossrefMailto)
	}
	if cfg.LibraryEnabledByDefault() {
		t.Error("library_default: false should disable the library")
	}
	if got := LibraryCachePath(cfg); got != wantPath {
		t.Errorf("LibraryCachePath() = %q, want %q", got, wantPath)
	}
}

func TestLoadGlobalConfig_InvalidYAML(t *testing.T) {
	ResetGlobalConfigCache()
	defer ResetGlobalConfigCache()

	tmpDir := writeGlobalConfig(t, "library_url: [unterminated\n")
	t.Setenv("XDG_CONFIG_HOME", tmpDir)

	if _, err := LoadGlobalConfig(); err == nil {
		t.Error("LoadGlobalConfig() expected error for invalid YAML")
	}
}

func TestGlobalConfigCache(t *testing.T) {
	ResetGlobalConfigCache()
	defer ResetGlobalConfigCache()

	tmpDir := writeGlobalConfig(t, "library_user: cached\n")
	t.Setenv("XDG_CONFIG_HOME", tmpDir)

	cfg1, _ := LoadGlobalConfig()
	if cfg1.LibraryUser != "cached" {
		t.Errorf("First load: LibraryUser = %q, want cached", cfg1.LibraryUser)
	}

	configFile := filepath.Join(tmpDir, AppDir, GlobalConfigFile)
	os.WriteFile(configFile, []byte("library_user: modified\n"), 0644)

	cfg2, _ := LoadGlobalConfig()
	if cfg2.LibraryUser != "cached" {
		t.Errorf("Second load: LibraryUser = %q, want cached (cached)", cfg2.LibraryUser)
	}

	ResetGlobalConfigCache()

	cfg3, _ := LoadGlobalConfig()
	if cfg3.LibraryUser != "modified" {
		t.Errorf("Third load: LibraryUser = %q, want modified", cfg3.LibraryUser)
	}
}

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("Cannot get home directory")
	}
	if got := ExpandPath("~/refs.bib"); got != filepath.Join(home, "refs.bib") {
		t.Errorf("ExpandPath(~/refs.bib) = %q", got)
	}
	if got := ExpandPath("/abs/refs.bib"); got != "/abs/refs.bib" {
		t.Errorf("ExpandPath(/abs/refs.bib) = %q", got)
	}
	if got := ExpandPath(""); got != "" {
		t.Errorf("ExpandPath(\"\") = %q", got)
	}
}

func TestLoadEnv(t *testing.T) {
	t.Setenv("BIPCITE_CROSSREF_URL", "http://localhost:9999")
	t.Setenv("BIPCITE_HTTP_TIMEOUT", "3s")
	t.Setenv("BIPCITE_RATE_LIMIT", "2.5")

	env, err := LoadEnv()
	if err != nil {
		t.Fatalf("LoadEnv() error = %v", err)
	}
	if env.CrossrefURL != "http://localhost:9999" {
		t.Errorf("CrossrefURL = %q", env.CrossrefURL)
	}
	if env.DataCiteURL != "https://api.datacite.org" {
		t.Errorf("DataCiteURL default = %q", env.DataCiteURL)
	}
	if env.HTTPTimeout != 3*time.Second {
		t.Errorf("HTTPTimeout = %v", env.HTTPTimeout)
	}
	if env.RateLimit != 2.5 {
		t.Errorf("RateLimit = %v", env.RateLimit)
	}
}

func TestSettingsOverride(t *testing.T) {
	s := &Settings{
		Global: &GlobalConfig{LibraryURL: "https://file.example", RedisAddr: "file:6379"},
		Env:    &Env{LibraryURL: "https://env.example"},
	}
	if s.LibraryURL() != "https://env.example" {
		t.Errorf("LibraryURL() = %q, want env value", s.LibraryURL())
	}
	if s.RedisAddr() != "file:6379" {
		t.Errorf("RedisAddr() = %q, want file value", s.RedisAddr())
	}
	if s.LogMode() != "prod" {
		t.Errorf("LogMode() = %q, want prod", s.LogMode())
	}
}
