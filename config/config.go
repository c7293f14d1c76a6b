// Package config holds the settings shared by the client and the launcher.
package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	Hostname string `env:"HOSTNAME" envDefault:"localhost"`
	Port     int    `env:"PORT" envDefault:"8081"`
	BasePath string `env:"BASE_PATH" envDefault:"api/v1"`
	Format   string `env:"FORMAT" envDefault:"json"`
	// Jar is the server executable started by the launcher when the server
	// cannot be reached.
	Jar          string        `env:"JAR"`
	Args         []string      `env:"ARGS" envSeparator:" "`
	StartTimeout time.Duration `env:"START_TIMEOUT" envDefault:"30s"`
}

// Load reads the configuration from MODELSERVER_* environment variables.
func Load() (Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: "MODELSERVER_"}); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if c.Hostname == "" {
		return fmt.Errorf("hostname must not be empty")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	return nil
}

// URL returns the base URL of the API, e.g. http://localhost:8081/api/v1.
func (c Config) URL() string {
	u := url.URL{
		Scheme: "http",
		Host:   fmt.Sprintf("%s:%d", c.Hostname, c.Port),
		Path:   "/" + strings.Trim(c.BasePath, "/"),
	}
	return u.String()
}
