package config

import (
	"errors"
	"strings"
	"time"

	cenv "github.com/caarlos0/env/v11"
)

type Config struct {
	ListenAddr      string
	SecretKey       string
	DefaultLanguage string
	RequestTimeout  time.Duration
	SelectTimeout   time.Duration
	MaxJSONBytes    int64
	AllowedOrigins  []string
	LogLevel        string
}

type envConfig struct {
	ListenAddr           string `env:"LISTEN_ADDR" envDefault:":8080"`
	SecretKey            string `env:"SECRET_KEY"`
	DefaultLanguage      string `env:"DEFAULT_LANGUAGE" envDefault:"en"`
	RequestTimeoutSecond int    `env:"REQUEST_TIMEOUT_SECONDS" envDefault:"20"`
	SelectTimeoutSeconds int    `env:"SELECT_TIMEOUT_SECONDS" envDefault:"60"`
	MaxJSONBytes         int64  `env:"MAX_JSON_BODY_BYTES" envDefault:"1048576"`
	AllowedOrigins       string `env:"ALLOWED_ORIGINS" envDefault:"*"`
	LogLevel             string `env:"LOG_LEVEL" envDefault:"info"`
}

func Load() (Config, error) {
	var raw envConfig
	if err := cenv.Parse(&raw); err != nil {
		return Config{}, err
	}

	cfg := Config{
		ListenAddr:      strings.TrimSpace(raw.ListenAddr),
		SecretKey:       strings.TrimSpace(raw.SecretKey),
		DefaultLanguage: strings.TrimSpace(raw.DefaultLanguage),
		RequestTimeout:  time.Duration(raw.RequestTimeoutSecond) * time.Second,
		SelectTimeout:   time.Duration(raw.SelectTimeoutSeconds) * time.Second,
		MaxJSONBytes:    raw.MaxJSONBytes,
		AllowedOrigins:  splitOrigins(raw.AllowedOrigins),
		LogLevel:        strings.ToLower(strings.TrimSpace(raw.LogLevel)),
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks everything except SecretKey: the service must start
// without one, and only proxy-carrying requests fail in that case.
func (c Config) Validate() error {
	if c.ListenAddr == "" {
		return errors.New("LISTEN_ADDR must not be empty")
	}
	if c.DefaultLanguage == "" {
		return errors.New("DEFAULT_LANGUAGE must not be empty")
	}
	if c.RequestTimeout <= 0 {
		return errors.New("REQUEST_TIMEOUT_SECONDS must be > 0")
	}
	if c.SelectTimeout <= 0 {
		return errors.New("SELECT_TIMEOUT_SECONDS must be > 0")
	}
	if c.MaxJSONBytes <= 0 {
		return errors.New("MAX_JSON_BODY_BYTES must be > 0")
	}
	if len(c.AllowedOrigins) == 0 {
		return errors.New("ALLOWED_ORIGINS must not be empty")
	}
	return nil
}

func splitOrigins(raw string) []string {
	parts := strings.Split(raw, ",")
	origins := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			origins = append(origins, p)
		}
	}
	return origins
}
