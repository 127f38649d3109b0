package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// Config holds all gateway settings. Credentials exist per environment so an
// operator can keep live and sandbox keys side by side and switch with
// UPSTOX_ENV alone.
type Config struct {
	Environment string `env:"UPSTOX_ENV" envDefault:"live"`

	APIKey      string `env:"UPSTOX_API_KEY"`
	APISecret   string `env:"UPSTOX_API_SECRET"`
	AccessToken string `env:"UPSTOX_ACCESS_TOKEN"`

	SandboxAPIKey      string `env:"UPSTOX_SANDBOX_API_KEY"`
	SandboxAPISecret   string `env:"UPSTOX_SANDBOX_API_SECRET"`
	SandboxAccessToken string `env:"UPSTOX_SANDBOX_ACCESS_TOKEN"`

	RedirectURI string `env:"UPSTOX_REDIRECT_URI" envDefault:"http://localhost:8080/callback"`

	HTTPAddr       string `env:"MCP_HTTP_ADDR" envDefault:":8080"`
	MetricsEnabled bool   `env:"METRICS_ENABLED" envDefault:"true"`
	MetricsAddr    string `env:"METRICS_ADDR" envDefault:":9090"`
	Debug          bool   `env:"DEBUG" envDefault:"false"`
}

// Load parses configuration from the process environment and validates it.
func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks that the configured environment is known and that at least
// one authentication method is available for it.
func (c *Config) Validate() error {
	switch c.Environment {
	case "live", "sandbox":
	default:
		return fmt.Errorf("unknown environment %q (want live or sandbox)", c.Environment)
	}

	key, _, token := c.ActiveCredentials()
	if key == "" && token == "" {
		return fmt.Errorf("no credentials for %s environment: set an API key/secret pair or an access token", c.Environment)
	}
	return nil
}

// ActiveCredentials returns the key/secret/token triple for the configured
// environment. Pure accessor; validation happens once in Load.
func (c *Config) ActiveCredentials() (key, secret, token string) {
	if c.Environment == "sandbox" {
		return c.SandboxAPIKey, c.SandboxAPISecret, c.SandboxAccessToken
	}
	return c.APIKey, c.APISecret, c.AccessToken
}
