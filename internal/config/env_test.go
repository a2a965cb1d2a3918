package config

import (
	"testing"
	"time"
)

func TestLoadEnv_Defaults(t *testing.T) {
	env, err := LoadEnv()
	if err != nil {
		t.Fatalf("LoadEnv() error = %v", err)
	}
	if env.CrossrefURL != "https://api.crossref.org" {
		t.Errorf("CrossrefURL = %q", env.CrossrefURL)
	}
	if env.HTTPTimeout != 15*time.Second {
		t.Errorf("HTTPTimeout = %v, want 15s", env.HTTPTimeout)
	}
	if env.RateLimit != 5 {
		t.Errorf("RateLimit = %v, want 5", env.RateLimit)
	}
}

func TestLoadEnv_Overrides(t *testing.T) {
	t.Setenv("BIPCITE_CROSSREF_URL", "http://localhost:9000")
	t.Setenv("BIPCITE_HTTP_TIMEOUT", "2s")
	t.Setenv("BIPCITE_REDIS_ADDR", "localhost:6379")

	env, err := LoadEnv()
	if err != nil {
		t.Fatalf("LoadEnv() error = %v", err)
	}
	if env.CrossrefURL != "http://localhost:9000" {
		t.Errorf("CrossrefURL = %q", env.CrossrefURL)
	}
	if env.HTTPTimeout != 2*time.Second {
		t.Errorf("HTTPTimeout = %v, want 2s", env.HTTPTimeout)
	}
	if env.RedisAddr != "localhost:6379" {
		t.Errorf("RedisAddr = %q", env.RedisAddr)
	}
}

func TestLoadEnv_BadDuration(t *testing.T) {
	t.Setenv("BIPCITE_HTTP_TIMEOUT", "soon")
	if _, err := LoadEnv(); err == nil {
		t.Error("LoadEnv() should reject a malformed duration")
	}
}

func TestSettings_EnvOverridesFile(t *testing.T) {
	s := &Settings{
		Global: &GlobalConfig{LibraryUser: "file-user", LibraryAPIKey: "file-key", RedisAddr: "file:6379"},
		Env:    &Env{LibraryUser: "env-user"},
	}

	tests := []struct {
		name string
		got  string
		want string
	}{
		{"env wins", s.LibraryUser(), "env-user"},
		{"file fallback", s.LibraryAPIKey(), "file-key"},
		{"redis from file", s.RedisAddr(), "file:6379"},
		{"library url unset", s.LibraryURL(), ""},
		{"log mode default", s.LogMode(), "prod"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %q, want %q", tt.got, tt.want)
			}
		})
	}
}
