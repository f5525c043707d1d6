// Package config loads daybook settings from DAYBOOK_* environment
// variables.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

const Prefix = "DAYBOOK_"

type Config struct {
	Port     string `env:"PORT" envDefault:"8080"`
	DBPath   string `env:"DB_PATH" envDefault:"daybook.db"`
	BaseURL  string `env:"BASE_URL"`
	Timezone string `env:"TIMEZONE" envDefault:"UTC"`

	Log struct {
		Level  string `env:"LEVEL" envDefault:"info"`
		Format string `env:"FORMAT" envDefault:"text"`
	} `envPrefix:"LOG_"`

	Auth struct {
		Secret   string        `env:"SECRET"`
		Admins   []string      `env:"ADMINS" envSeparator:","`
		TokenTTL time.Duration `env:"TOKEN_TTL" envDefault:"720h"`
	} `envPrefix:"AUTH_"`

	Redis struct {
		URL           string `env:"URL"`
		ChannelPrefix string `env:"CHANNEL_PREFIX" envDefault:"daybook:month:"`
	} `envPrefix:"REDIS_"`

	Postmark struct {
		Token      string `env:"TOKEN"`
		FromEmail  string `env:"FROM_EMAIL"`
		AdminEmail string `env:"ADMIN_EMAIL"`
	} `envPrefix:"POSTMARK_"`

	Push struct {
		VAPIDPublicKey  string `env:"VAPID_PUBLIC_KEY"`
		VAPIDPrivateKey string `env:"VAPID_PRIVATE_KEY"`
		Subscriber      string `env:"SUBSCRIBER"`
	} `envPrefix:"PUSH_"`

	Archive struct {
		Endpoint        string        `env:"S3_ENDPOINT"`
		Bucket          string        `env:"S3_BUCKET"`
		Region          string        `env:"S3_REGION" envDefault:"us-east-1"`
		AccessKey       string        `env:"S3_ACCESS_KEY"`
		SecretKey       string        `env:"S3_SECRET_KEY"`
		Passphrase      string        `env:"PASSPHRASE"`
		RetentionDays   int           `env:"RETENTION_DAYS" envDefault:"365"`
		CleanupInterval time.Duration `env:"CLEANUP_INTERVAL" envDefault:"24h"`
	} `envPrefix:"ARCHIVE_"`

	Booking struct {
		RateLimit  int           `env:"RATE_LIMIT" envDefault:"10"`
		RateWindow time.Duration `env:"RATE_WINDOW" envDefault:"1h"`
	} `envPrefix:"BOOKING_"`

	ICS struct {
		Name  string `env:"NAME" envDefault:"Daybook"`
		Place string `env:"PLACE"`
	} `envPrefix:"ICS_"`
}

// Load reads the process environment.
func Load() (*Config, error) {
	return parse(env.Options{Prefix: Prefix})
}

// LoadFrom reads the given variables instead of the process environment.
func LoadFrom(environ map[string]string) (*Config, error) {
	return parse(env.Options{Prefix: Prefix, Environment: environ})
}

func parse(opts env.Options) (*Config, error) {
	cfg := &Config{}
	if err := env.ParseWithOptions(cfg, opts); err != nil {
		var aggErr env.AggregateError
		if errors.As(err, &aggErr) && len(aggErr.Errors) > 0 {
			// The first error is the one worth logging.
			return nil, fmt.Errorf("load config: %w", aggErr.Errors[0])
		}
		return nil, fmt.Errorf("load config: %w", err)
	}
	if _, err := cfg.Location(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Location resolves Timezone.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// ValidateServer checks the settings the HTTP server cannot run without.
func (c *Config) ValidateServer() error {
	if len(c.Auth.Secret) < 32 {
		return fmt.Errorf("%sAUTH_SECRET must be at least 32 characters", Prefix)
	}
	if len(c.Auth.Admins) == 0 {
		return fmt.Errorf("%sAUTH_ADMINS must name at least one admin", Prefix)
	}
	if c.Booking.RateLimit < 1 {
		return fmt.Errorf("%sBOOKING_RATE_LIMIT must be positive", Prefix)
	}
	if c.Archive.CleanupInterval <= 0 {
		return fmt.Errorf("%sARCHIVE_CLEANUP_INTERVAL must be positive", Prefix)
	}
	return nil
}

// PublicURL is BaseURL, or the local address when unset.
func (c *Config) PublicURL() string {
	if c.BaseURL != "" {
		return c.BaseURL
	}
	return "http://localhost:" + c.Port
}
