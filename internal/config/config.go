// Package config loads settle's configuration from the environment.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds process-wide settings. Command-line flags override these.
type Config struct {
	PollInterval time.Duration `env:"SETTLE_POLL_INTERVAL"  envDefault:"250ms"`
	DB           string        `env:"SETTLE_DB"`
	LogFormat    string        `env:"SETTLE_LOG_FORMAT"     envDefault:"text"`
	MQTTBroker   string        `env:"SETTLE_MQTT_BROKER"`
	MQTTTopic    string        `env:"SETTLE_MQTT_TOPIC"     envDefault:"settle/events"`
	MQTTClientID string        `env:"SETTLE_MQTT_CLIENT_ID" envDefault:"settle"`
	MQTTQoS      uint8         `env:"SETTLE_MQTT_QOS"       envDefault:"1"`
	OTelEndpoint string        `env:"SETTLE_OTEL_ENDPOINT"`
}

// Load parses the environment and validates the result.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks value ranges env tags cannot express.
func (c Config) Validate() error {
	if c.PollInterval <= 0 {
		return fmt.Errorf("SETTLE_POLL_INTERVAL must be positive, got %s", c.PollInterval)
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		return fmt.Errorf("SETTLE_LOG_FORMAT must be text or json, got %q", c.LogFormat)
	}
	if c.MQTTQoS > 2 {
		return fmt.Errorf("SETTLE_MQTT_QOS must be 0, 1 or 2, got %d", c.MQTTQoS)
	}
	return nil
}
