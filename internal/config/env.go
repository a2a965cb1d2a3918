package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Env holds BIPCITE_* environment overrides. Endpoints default to the
// public services.
type Env struct {
	CrossrefURL   string        `envconfig:"CROSSREF_URL" default:"https://api.crossref.org"`
	DataCiteURL   string        `envconfig:"DATACITE_URL" default:"https://api.datacite.org"`
	PubMedURL     string        `envconfig:"PUBMED_URL" default:"https://eutils.ncbi.nlm.nih.gov/entrez/eutils"`
	DOIURL        string        `envconfig:"DOI_URL" default:"https://doi.org"`
	LibraryURL    string        `envconfig:"LIBRARY_URL"`
	LibraryUser   string        `envconfig:"LIBRARY_USER"`
	LibraryAPIKey string        `envconfig:"LIBRARY_API_KEY"`
	RedisAddr     string        `envconfig:"REDIS_ADDR"`
	HTTPTimeout   time.Duration `envconfig:"HTTP_TIMEOUT" default:"15s"`
	// RateLimit is requests per second per remote service.
	RateLimit float64 `envconfig:"RATE_LIMIT" default:"5"`
	LogMode   string  `envconfig:"LOG_MODE"`
}

// EnvPrefix is the prefix of every environment override.
const EnvPrefix = "BIPCITE"

// LoadEnv loads a .env file if present, then reads BIPCITE_* variables.
func LoadEnv() (*Env, error) {
	_ = godotenv.Load()

	var env Env
	if err := envconfig.Process(EnvPrefix, &env); err != nil {
		return nil, fmt.Errorf("reading environment: %w", err)
	}
	return &env, nil
}

// Settings is the resolved configuration: global file values overridden by
// environment values where those are set.
type Settings struct {
	Global *GlobalConfig
	Env    *Env
}

// Load resolves global config and environment overrides.
func Load() (*Settings, error) {
	global, err := LoadGlobalConfig()
	if err != nil {
		return nil, err
	}
	env, err := LoadEnv()
	if err != nil {
		return nil, err
	}
	return &Settings{Global: global, Env: env}, nil
}

func pick(env, file string) string {
	if env != "" {
		return env
	}
	return file
}

// LibraryURL returns the personal library endpoint.
func (s *Settings) LibraryURL() string { return pick(s.Env.LibraryURL, s.Global.LibraryURL) }

// LibraryUser returns the personal library user id.
func (s *Settings) LibraryUser() string { return pick(s.Env.LibraryUser, s.Global.LibraryUser) }

// LibraryAPIKey returns the personal library API key.
func (s *Settings) LibraryAPIKey() string {
	return pick(s.Env.LibraryAPIKey, s.Global.LibraryAPIKey)
}

// RedisAddr returns the shared DOI cache address; empty means in-memory.
func (s *Settings) RedisAddr() string { return pick(s.Env.RedisAddr, s.Global.RedisAddr) }

// LogMode returns the logger mode, defaulting to "prod".
func (s *Settings) LogMode() string {
	if m := pick(s.Env.LogMode, s.Global.LogMode); m != "" {
		return m
	}
	return "prod"
}
