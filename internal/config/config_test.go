package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func validConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:           "8080",
			HandlerTimeout: 30 * time.Second,
		},
		Database: DatabaseConfig{
			Host:   "localhost",
			User:   "test",
			DBName: "test",
		},
		Dispatch: DispatchConfig{
			MaxAttempts: 3,
		},
		Booking: BookingConfig{
			BaseURL: "https://calendar.example.com",
		},
		Reaper: ReaperConfig{
			Interval:   time.Minute,
			StaleAfter: 2 * time.Minute,
			Retention:  7 * 24 * time.Hour,
		},
	}
}

func TestConfigValidation(t *testing.T) {
	assert.NoError(t, validConfig().Validate())

	invalid := &Config{
		Server: ServerConfig{Port: ""},
	}
	assert.Error(t, invalid.Validate())
}

func TestConfigValidationRejectsShortStaleBound(t *testing.T) {
	// A stale bound at or below the handler timeout would let the reaper
	// fail a webhook that is still legitimately running.
	cfg := validConfig()
	cfg.Reaper.StaleAfter = cfg.Server.HandlerTimeout
	assert.Error(t, cfg.Validate())

	cfg.Reaper.StaleAfter = cfg.Server.HandlerTimeout + time.Second
	assert.NoError(t, cfg.Validate())
}

func TestConfigValidationRejectsZeroAttempts(t *testing.T) {
	cfg := validConfig()
	cfg.Dispatch.MaxAttempts = 0
	assert.Error(t, cfg.Validate())
}

func TestDatabaseDSN(t *testing.T) {
	cfg := DatabaseConfig{
		Host:     "localhost",
		Port:     3306,
		User:     "testuser",
		Password: "testpass",
		DBName:   "testdb",
	}

	dsn := cfg.DSN()
	expected := "testuser:testpass@tcp(localhost:3306)/testdb?charset=utf8mb4&parseTime=True&loc=Local"
	assert.Equal(t, expected, dsn)
}
