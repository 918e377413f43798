package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func validConfig() *Config {
	return &Config{
		Env:                       "development",
		Port:                      "8080",
		JWTSecret:                 "secure-secret-at-least-32-chars-long",
		DBDriver:                  "postgres",
		DBPassword:                "secure-password",
		DBSSLMode:                 "require",
		PresenceHeartbeatSeconds:  30,
		PresenceStaleAfterSeconds: 90,
		EventBufferSize:           64,
	}
}

func TestConfig_ValidateSSLMode(t *testing.T) {
	tests := []struct {
		name        string
		env         string
		sslMode     string
		expectError bool
	}{
		{"Production with empty SSL mode", "production", "", true},
		{"Production with disable SSL mode", "production", "disable", true},
		{"Production with require SSL mode", "production", "require", false},
		{"Prod with verify-full SSL mode", "prod", "verify-full", false},
		{"Development with disable SSL mode", "development", "disable", false},
		{"Test with empty SSL mode", "test", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := validConfig()
			c.Env = tt.env
			c.DBSSLMode = tt.sslMode

			err := c.Validate()
			if tt.expectError {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestConfig_ValidateRejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"missing port", func(c *Config) { c.Port = "" }},
		{"missing secret", func(c *Config) { c.JWTSecret = "" }},
		{"unknown driver", func(c *Config) { c.DBDriver = "mysql" }},
		{"sqlite without path", func(c *Config) { c.DBDriver = "sqlite"; c.SQLitePath = "" }},
		{"zero heartbeat", func(c *Config) { c.PresenceHeartbeatSeconds = 0 }},
		{"stale window below heartbeat", func(c *Config) { c.PresenceStaleAfterSeconds = 30 }},
		{"zero event buffer", func(c *Config) { c.EventBufferSize = 0 }},
		{"default secret in production", func(c *Config) { c.Env = "production"; c.JWTSecret = defaultJWTSecret }},
		{"sqlite in production", func(c *Config) { c.Env = "production"; c.DBDriver = "sqlite"; c.SQLitePath = "x.db" }},
		{"weak db password in production", func(c *Config) { c.Env = "production"; c.DBPassword = "password" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := validConfig()
			tt.mutate(c)
			assert.Error(t, c.Validate())
		})
	}
}

func TestConfig_Durations(t *testing.T) {
	c := validConfig()
	c.PresenceReaperSeconds = 15
	assert.Equal(t, 30*time.Second, c.HeartbeatInterval())
	assert.Equal(t, 90*time.Second, c.StaleAfter())
	assert.Equal(t, 15*time.Second, c.ReaperInterval())
}

func TestLoadConfig_EnvOverridesAndNormalization(t *testing.T) {
	t.Setenv("APP_ENV", "development")
	t.Setenv("DB_SSLMODE", "  DISABLE  ")
	t.Setenv("DB_DRIVER", " SQLite ")
	t.Setenv("PRESENCE_HEARTBEAT_SECONDS", "10")

	c, err := LoadConfig()
	assert.NoError(t, err)
	assert.Equal(t, "disable", c.DBSSLMode)
	assert.Equal(t, "sqlite", c.DBDriver)
	assert.Equal(t, 10, c.PresenceHeartbeatSeconds)
	assert.Equal(t, 90, c.PresenceStaleAfterSeconds)
}
