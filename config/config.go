// Package config loads the gateway settings from the environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	"github.com/joho/godotenv"
)

const DefaultEnvFile = ".env"

const (
	StoreSQL       = "sql"
	StoreFirestore = "firestore"
)

type Config struct {
	Port     int    `env:"PORT" envDefault:"8080"`
	Host     string `env:"HOST" envDefault:"0.0.0.0"`
	AppEnv   string `env:"APP_ENV" envDefault:"local"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"debug"`

	Firebase Firebase
	Store    Store
	SMTP     SMTP
	Cookie   Cookie

	// EmailActionBaseURL prefixes verification and reset links.
	EmailActionBaseURL string        `env:"EMAIL_ACTION_BASE_URL"`
	UpstreamTimeout    time.Duration `env:"UPSTREAM_TIMEOUT" envDefault:"10s"`
}

type Firebase struct {
	ProjectID       string `env:"FIREBASE_PROJECT_ID"`
	WebAPIKey       string `env:"FIREBASE_WEB_API_KEY"`
	CredentialsFile string `env:"GOOGLE_APPLICATION_CREDENTIALS"`
}

type Store struct {
	Kind          string        `env:"ACTION_KEY_STORE" envDefault:"sql"`
	Driver        string        `env:"DATABASE_DRIVER" envDefault:"sqlite"`
	DSN           string        `env:"DATABASE_URL" envDefault:"file:auth-gateway.db?cache=shared"`
	SweepInterval time.Duration `env:"ACTION_KEY_SWEEP_INTERVAL" envDefault:"15m"`
	// KeyLength is the length of each per token signing key.
	KeyLength int `env:"ACTION_KEY_LENGTH" envDefault:"32"`
}

type SMTP struct {
	Host        string `env:"SMTP_HOST" envDefault:"smtp.gmail.com"`
	Port        int    `env:"SMTP_PORT" envDefault:"587"`
	Username    string `env:"SMTP_USERNAME"`
	Password    string `env:"SMTP_PASSWORD"`
	FromAddress string `env:"SMTP_FROM_ADDRESS"`
	FromName    string `env:"SMTP_FROM_NAME" envDefault:"From The Hart"`
}

type Cookie struct {
	Domain string `env:"COOKIE_DOMAIN"`
	Secure bool   `env:"COOKIE_SECURE" envDefault:"true"`
}

// Load reads DefaultEnvFile when present, then the process environment.
func Load() (*Config, error) {
	return LoadFiles(DefaultEnvFile)
}

// LoadFiles parses the environment on top of the given dotenv files, fills
// derived defaults and validates the result. Missing files are skipped and
// process variables win over file values.
func LoadFiles(files ...string) (*Config, error) {
	environ, err := mergeEnv(files...)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := env.ParseWithOptions(&cfg, env.Options{Environment: environ}); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	if cfg.EmailActionBaseURL == "" && cfg.Firebase.ProjectID != "" {
		cfg.EmailActionBaseURL = "https://" + cfg.Firebase.ProjectID + ".firebaseapp.com"
	}
	cfg.EmailActionBaseURL = strings.TrimSuffix(cfg.EmailActionBaseURL, "/")

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

func (c Config) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
		validation.Field(&c.LogLevel, validation.In("debug", "info", "warn", "error")),
		validation.Field(&c.EmailActionBaseURL, validation.Required, is.URL),
		validation.Field(&c.UpstreamTimeout, validation.Required, validation.Min(time.Millisecond)),
		validation.Field(&c.Firebase),
		validation.Field(&c.Store),
		validation.Field(&c.SMTP),
	)
}

func (f Firebase) Validate() error {
	return validation.ValidateStruct(&f,
		validation.Field(&f.ProjectID, validation.Required),
		validation.Field(&f.WebAPIKey, validation.Required),
	)
}

func (s Store) Validate() error {
	return validation.ValidateStruct(&s,
		validation.Field(&s.Kind, validation.Required, validation.In(StoreSQL, StoreFirestore)),
		validation.Field(&s.Driver, validation.When(s.Kind == StoreSQL,
			validation.Required, validation.In("sqlite", "postgres"))),
		validation.Field(&s.DSN, validation.When(s.Kind == StoreSQL, validation.Required)),
		validation.Field(&s.SweepInterval, validation.Min(time.Duration(0))),
		validation.Field(&s.KeyLength, validation.Min(16)),
	)
}

// Enabled reports whether mail goes out over SMTP. Without a from address
// links are only logged.
func (s SMTP) Enabled() bool {
	return s.FromAddress != ""
}

func (s SMTP) Validate() error {
	return validation.ValidateStruct(&s,
		validation.Field(&s.Host, validation.When(s.Enabled(), validation.Required)),
		validation.Field(&s.Port, validation.When(s.Enabled(), validation.Required, validation.Min(1), validation.Max(65535))),
		validation.Field(&s.FromAddress, is.EmailFormat),
	)
}

// Addr is the listen address.
func (c Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

func (c Config) IsProduction() bool {
	return c.AppEnv == "production"
}

func mergeEnv(files ...string) (map[string]string, error) {
	merged := map[string]string{}
	for _, file := range files {
		values, err := godotenv.Read(file)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", file, err)
		}
		for k, v := range values {
			merged[k] = v
		}
	}

	for k, v := range env.ToMap(os.Environ()) {
		merged[k] = v
	}
	return merged, nil
}
