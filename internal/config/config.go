package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"

	"gatehouse/internal/auth"
)

// Config aggregates runtime configuration for the gatehouse API.
type Config struct {
	Environment    string
	HTTPPort       int
	DatabaseURL    string
	DataStore      string
	DBMaxOpenConns int
	DBMaxIdleConns int
	LogLevel       string
	AllowedOrigins []string
	FrontendURL    string

	SessionSecret string
	SessionTTL    time.Duration

	AttemptTTL    time.Duration
	HTTPTimeout   time.Duration
	SweepInterval time.Duration

	GoogleClientID       string
	GoogleClientSecret   string
	GoogleRedirectURI    string
	GoogleScopes         []string
	GoogleVerifyIDToken  bool
	FacebookClientID     string
	FacebookClientSecret string
	FacebookRedirectURI  string
	FacebookScopes       []string
}

// rawEnv holds values that come straight from the environment. Secrets are
// resolved separately so they can also be read from files.
type rawEnv struct {
	Environment    string        `env:"APP_ENV"              envDefault:"development"`
	Port           int           `env:"PORT"`
	HTTPPort       int           `env:"HTTP_PORT"            envDefault:"8080"`
	DataStore      string        `env:"DATA_STORE"           envDefault:"memory"`
	DBMaxOpenConns int           `env:"DB_MAX_OPEN_CONNS"    envDefault:"10"`
	DBMaxIdleConns int           `env:"DB_MAX_IDLE_CONNS"    envDefault:"5"`
	LogLevel       string        `env:"LOG_LEVEL"            envDefault:"info"`
	AllowedOrigins []string      `env:"ALLOWED_ORIGINS"      envDefault:"http://localhost:5173,http://localhost:8080" envSeparator:","`
	FrontendURL    string        `env:"FRONTEND_URL"         envDefault:"http://localhost:5173"`
	SessionTTL     time.Duration `env:"SESSION_TTL"          envDefault:"12h"`
	AttemptTTL     time.Duration `env:"OAUTH_ATTEMPT_TTL"    envDefault:"10m"`
	HTTPTimeout    time.Duration `env:"OAUTH_HTTP_TIMEOUT"   envDefault:"10s"`
	SweepInterval  time.Duration `env:"OAUTH_SWEEP_INTERVAL" envDefault:"1m"`

	GoogleClientID      string   `env:"GOOGLE_CLIENT_ID"`
	GoogleRedirectURI   string   `env:"GOOGLE_REDIRECT_URI"`
	GoogleScopes        []string `env:"GOOGLE_SCOPES"          envSeparator:","`
	GoogleVerifyIDToken bool     `env:"GOOGLE_VERIFY_ID_TOKEN"`
	FacebookClientID    string   `env:"FACEBOOK_CLIENT_ID"`
	FacebookRedirectURI string   `env:"FACEBOOK_REDIRECT_URI"`
	FacebookScopes      []string `env:"FACEBOOK_SCOPES"        envSeparator:","`
}

// Load reads configuration from environment variables with sensible defaults for local development.
func Load() (Config, error) {
	var raw rawEnv
	if err := env.Parse(&raw); err != nil {
		return Config{}, fmt.Errorf("config: parse env: %w", err)
	}

	databaseURL, err := getEnvOrFile("DATABASE_URL", "/run/secrets/gatehouse_database_url")
	if err != nil {
		return Config{}, err
	}
	sessionSecret, err := getEnvOrFile("SESSION_SECRET", "/run/secrets/gatehouse_session_secret")
	if err != nil {
		return Config{}, err
	}
	googleSecret, err := getEnvOrFile("GOOGLE_CLIENT_SECRET", "/run/secrets/gatehouse_google_client_secret")
	if err != nil {
		return Config{}, err
	}
	facebookSecret, err := getEnvOrFile("FACEBOOK_CLIENT_SECRET", "/run/secrets/gatehouse_facebook_client_secret")
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		Environment:          strings.ToLower(strings.TrimSpace(raw.Environment)),
		HTTPPort:             raw.HTTPPort,
		DatabaseURL:          strings.TrimSpace(databaseURL),
		DataStore:            strings.ToLower(strings.TrimSpace(raw.DataStore)),
		DBMaxOpenConns:       raw.DBMaxOpenConns,
		DBMaxIdleConns:       raw.DBMaxIdleConns,
		LogLevel:             strings.ToLower(strings.TrimSpace(raw.LogLevel)),
		AllowedOrigins:       trimCSV(raw.AllowedOrigins),
		FrontendURL:          strings.TrimRight(strings.TrimSpace(raw.FrontendURL), "/"),
		SessionSecret:        strings.TrimSpace(sessionSecret),
		SessionTTL:           raw.SessionTTL,
		AttemptTTL:           raw.AttemptTTL,
		HTTPTimeout:          raw.HTTPTimeout,
		SweepInterval:        raw.SweepInterval,
		GoogleClientID:       strings.TrimSpace(raw.GoogleClientID),
		GoogleClientSecret:   strings.TrimSpace(googleSecret),
		GoogleRedirectURI:    strings.TrimSpace(raw.GoogleRedirectURI),
		GoogleScopes:         trimCSV(raw.GoogleScopes),
		GoogleVerifyIDToken:  raw.GoogleVerifyIDToken,
		FacebookClientID:     strings.TrimSpace(raw.FacebookClientID),
		FacebookClientSecret: strings.TrimSpace(facebookSecret),
		FacebookRedirectURI:  strings.TrimSpace(raw.FacebookRedirectURI),
		FacebookScopes:       trimCSV(raw.FacebookScopes),
	}
	if raw.Port != 0 {
		cfg.HTTPPort = raw.Port
	}
	if cfg.Environment == "" {
		cfg.Environment = "development"
	}
	if cfg.IsDevelopment() {
		if cfg.GoogleRedirectURI == "" && cfg.GoogleClientID != "" {
			cfg.GoogleRedirectURI = cfg.localCallback("google")
		}
		if cfg.FacebookRedirectURI == "" && cfg.FacebookClientID != "" {
			cfg.FacebookRedirectURI = cfg.localCallback("facebook")
		}
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.HTTPPort <= 0 || c.HTTPPort > 65535 {
		return fmt.Errorf("config: invalid port %d", c.HTTPPort)
	}
	switch c.DataStore {
	case "memory":
	case "postgres":
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATA_STORE is postgres but DATABASE_URL is not set")
		}
	default:
		return fmt.Errorf("config: DATA_STORE must be memory or postgres, got %q", c.DataStore)
	}
	if c.DBMaxOpenConns <= 0 || c.DBMaxIdleConns < 0 || c.DBMaxIdleConns > c.DBMaxOpenConns {
		return fmt.Errorf("config: invalid database pool sizes open=%d idle=%d", c.DBMaxOpenConns, c.DBMaxIdleConns)
	}
	if parsed, err := url.Parse(c.FrontendURL); err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return fmt.Errorf("config: FRONTEND_URL must be an absolute URL, got %q", c.FrontendURL)
	}
	for _, d := range []struct {
		name  string
		value time.Duration
	}{
		{"SESSION_TTL", c.SessionTTL},
		{"OAUTH_ATTEMPT_TTL", c.AttemptTTL},
		{"OAUTH_HTTP_TIMEOUT", c.HTTPTimeout},
		{"OAUTH_SWEEP_INTERVAL", c.SweepInterval},
	} {
		if d.value <= 0 {
			return fmt.Errorf("config: %s must be positive", d.name)
		}
	}

	if c.IsDevelopment() {
		return nil
	}

	if err := requireComplete("GOOGLE", c.GoogleClientID, c.GoogleClientSecret, c.GoogleRedirectURI); err != nil {
		return err
	}
	if err := requireComplete("FACEBOOK", c.FacebookClientID, c.FacebookClientSecret, c.FacebookRedirectURI); err != nil {
		return err
	}
	if !c.Google().Enabled() && !c.Facebook().Enabled() {
		return errors.New("config: at least one of GOOGLE_CLIENT_ID or FACEBOOK_CLIENT_ID is required outside development")
	}
	if c.SessionSecret == "" {
		return errors.New("config: SESSION_SECRET is required outside development")
	}
	if len(c.AllowedOrigins) == 0 {
		return errors.New("config: ALLOWED_ORIGINS must define at least one origin outside development")
	}
	for _, origin := range c.AllowedOrigins {
		if origin == "*" {
			return errors.New("config: ALLOWED_ORIGINS cannot contain wildcard outside development")
		}
	}
	return nil
}

func requireComplete(prefix, clientID, clientSecret, redirectURI string) error {
	set := 0
	for _, v := range []string{clientID, clientSecret, redirectURI} {
		if v != "" {
			set++
		}
	}
	if set != 0 && set != 3 {
		return fmt.Errorf("config: %s_CLIENT_ID, %s_CLIENT_SECRET and %s_REDIRECT_URI must be set together", prefix, prefix, prefix)
	}
	return nil
}

// HTTPAddress returns the address the HTTP server should bind to.
func (c Config) HTTPAddress() string {
	return fmt.Sprintf(":%d", c.HTTPPort)
}

func (c Config) localCallback(provider string) string {
	return fmt.Sprintf("http://localhost:%d/api/auth/%s/callback", c.HTTPPort, provider)
}

// UseInMemoryStore returns true if the in-memory repository should be used.
func (c Config) UseInMemoryStore() bool {
	return c.DataStore == "memory"
}

// IsDevelopment reports whether relaxed defaults apply.
func (c Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// SecureCookies reports whether session cookies should carry the Secure flag.
func (c Config) SecureCookies() bool {
	return !c.IsDevelopment()
}

// Google returns the Google client registration.
func (c Config) Google() auth.ProviderConfig {
	return auth.ProviderConfig{
		ClientID:     c.GoogleClientID,
		ClientSecret: c.GoogleClientSecret,
		RedirectURI:  c.GoogleRedirectURI,
		Scopes:       c.GoogleScopes,
	}
}

// Facebook returns the Facebook client registration.
func (c Config) Facebook() auth.ProviderConfig {
	return auth.ProviderConfig{
		ClientID:     c.FacebookClientID,
		ClientSecret: c.FacebookClientSecret,
		RedirectURI:  c.FacebookRedirectURI,
		Scopes:       c.FacebookScopes,
	}
}

func trimCSV(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		trimmed := strings.TrimSpace(v)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func getEnvOrFile(key, defaultPath string) (string, error) {
	if value := os.Getenv(key); value != "" {
		return value, nil
	}

	fileKey := key + "_FILE"
	if path := os.Getenv(fileKey); path != "" {
		return readSecret(path, fileKey)
	}

	if defaultPath != "" {
		return readSecret(defaultPath, key)
	}

	return "", nil
}

func readSecret(path, name string) (string, error) {
	contents, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", nil
		}
		return "", fmt.Errorf("config: reading %s (%s): %w", name, path, err)
	}

	value := strings.TrimSpace(string(contents))
	if value == "" {
		return "", fmt.Errorf("config: %s (%s) is empty", name, path)
	}
	return value, nil
}
