package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"
)

type Config struct {
	ListenAddr string `validate:"required"`
	StaticDir  string

	APIBaseURL string        `validate:"required,url"`
	APIToken   string
	APITimeout time.Duration `validate:"gt=0"`

	LogLevel      string `validate:"oneof=debug info warn error"`
	DefaultLocale string `validate:"required"`

	DefaultRoute  string `validate:"required,startswith=/"`
	NotFoundRoute string `validate:"required,startswith=/"`
}

type fileConfig struct {
	ListenAddr    string `toml:"listen_addr"`
	StaticDir     string `toml:"static_dir"`
	APIBaseURL    string `toml:"api_base_url"`
	APIToken      string `toml:"api_token"`
	APITimeout    string `toml:"api_timeout"`
	LogLevel      string `toml:"log_level"`
	DefaultLocale string `toml:"default_locale"`
	DefaultRoute  string `toml:"default_route"`
	NotFoundRoute string `toml:"not_found_route"`
}

func Load() (Config, error) {
	cfg := Config{
		ListenAddr:    getEnv("LEARN_LISTEN_ADDR", ":8080"),
		StaticDir:     getEnv("LEARN_STATIC_DIR", "internal/web/static"),
		APIBaseURL:    getEnv("LEARN_API_BASE_URL", "http://localhost:8000"),
		APIToken:      os.Getenv("LEARN_API_TOKEN"),
		APITimeout:    getEnvDuration("LEARN_API_TIMEOUT", 15*time.Second),
		LogLevel:      strings.ToLower(getEnv("LEARN_LOG_LEVEL", "info")),
		DefaultLocale: getEnv("LEARN_DEFAULT_LOCALE", "en"),
		DefaultRoute:  getEnv("LEARN_DEFAULT_ROUTE", "/"),
		NotFoundRoute: getEnv("LEARN_NOT_FOUND_ROUTE", "/404"),
	}

	if path := strings.TrimSpace(os.Getenv("LEARN_CONFIG_FILE")); path != "" {
		if err := applyFile(&cfg, path); err != nil {
			return Config{}, err
		}
	}

	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func Validate(cfg Config) error {
	if err := validator.New().Struct(cfg); err != nil {
		var invalid validator.ValidationErrors
		if errors.As(err, &invalid) && len(invalid) > 0 {
			return fmt.Errorf("invalid config field %s: failed %q", invalid[0].Field(), invalid[0].Tag())
		}
		return fmt.Errorf("validate config: %w", err)
	}
	return nil
}

// applyFile overlays the keys defined in a TOML file onto cfg.
func applyFile(cfg *Config, path string) error {
	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return fmt.Errorf("load config file: %w", err)
	}

	overlay := func(key string, value string, target *string) {
		if meta.IsDefined(key) {
			*target = strings.TrimSpace(value)
		}
	}
	overlay("listen_addr", raw.ListenAddr, &cfg.ListenAddr)
	overlay("static_dir", raw.StaticDir, &cfg.StaticDir)
	overlay("api_base_url", raw.APIBaseURL, &cfg.APIBaseURL)
	overlay("api_token", raw.APIToken, &cfg.APIToken)
	overlay("log_level", strings.ToLower(raw.LogLevel), &cfg.LogLevel)
	overlay("default_locale", raw.DefaultLocale, &cfg.DefaultLocale)
	overlay("default_route", raw.DefaultRoute, &cfg.DefaultRoute)
	overlay("not_found_route", raw.NotFoundRoute, &cfg.NotFoundRoute)

	if meta.IsDefined("api_timeout") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.APITimeout))
		if err != nil {
			return fmt.Errorf("parse api_timeout: %w", err)
		}
		cfg.APITimeout = d
	}
	return nil
}

func getEnv(key string, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}

	return value
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}

	parsed, err := time.ParseDuration(value)
	if err != nil || parsed <= 0 {
		return fallback
	}

	return parsed
}
