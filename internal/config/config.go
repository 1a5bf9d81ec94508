// Package config loads server configuration from the environment.
package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// Config holds everything the server needs to start.
type Config struct {
	// Port the HTTP server listens on.
	Port int `env:"PORT" envDefault:"8080"`

	// DBPath is the SQLite database file. ":memory:" keeps everything
	// in RAM, which is only useful for local experiments.
	DBPath string `env:"DB_PATH" envDefault:"sms4.db"`

	// ResourcePath is the directory resource payloads are stored in.
	// Created on startup if missing.
	ResourcePath string `env:"RESOURCE_PATH" envDefault:"resources"`

	// TokenSecret signs session tokens. Required.
	TokenSecret string `env:"TOKEN_SECRET"`

	SMTP SMTP `envPrefix:"SMTP_"`
}

// SMTP is the mail transport used to deliver verification captchas.
type SMTP struct {
	Host     string `env:"HOST"`
	Port     int    `env:"PORT" envDefault:"587"`
	Username string `env:"USERNAME"`
	Password string `env:"PASSWORD"`
	From     string `env:"FROM"`
}

// Load parses the environment and validates required fields.
func Load() (*Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("config: parsing environment: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.TokenSecret == "" {
		return fmt.Errorf("config: missing TOKEN_SECRET environment variable")
	}
	if c.SMTP.Host == "" {
		return fmt.Errorf("config: missing SMTP_HOST environment variable")
	}
	if c.SMTP.From == "" {
		return fmt.Errorf("config: missing SMTP_FROM environment variable")
	}
	return nil
}
