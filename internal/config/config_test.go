package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func validConfig() *Config {
	return &Config{
		Server: ServerConfig{Port: "8080"},
		Database: DatabaseConfig{
			Driver: "mysql",
			Host:   "localhost",
			User:   "test",
			DBName: "test",
		},
		Telegram: TelegramConfig{
			Driver:         "inproc",
			SessionsPath:   "sessions",
			ConnectTimeout: 30 * time.Second,
		},
		Pool: PoolConfig{
			DailyLimit:          45,
			ErrorThreshold:      5,
			ReconnectBaseDelay:  time.Second,
			ReconnectMaxDelay:   time.Minute,
			ReconnectMaxRetries: 10,
			CheckInterval:       5 * time.Minute,
		},
		Forwarding: ForwardingConfig{
			DestinationDelay: 1500 * time.Millisecond,
			MaxFloodWait:     300 * time.Second,
			ExcerptLength:    250,
		},
	}
}

func TestConfigValidation(t *testing.T) {
	cfg := validConfig()
	assert.NoError(t, cfg.Validate())

	missing := validConfig()
	missing.Server.Port = ""
	assert.Error(t, missing.Validate())

	badDriver := validConfig()
	badDriver.Database.Driver = "oracle"
	assert.Error(t, badDriver.Validate())

	sqlite := validConfig()
	sqlite.Database.Driver = "sqlite"
	sqlite.Database.Path = ""
	assert.Error(t, sqlite.Validate())
	sqlite.Database.Path = "data/test.db"
	assert.NoError(t, sqlite.Validate())

	badDelay := validConfig()
	badDelay.Pool.ReconnectMaxDelay = badDelay.Pool.ReconnectBaseDelay / 2
	assert.Error(t, badDelay.Validate())

	noLimit := validConfig()
	noLimit.Pool.DailyLimit = 0
	assert.Error(t, noLimit.Validate())
}

func TestDatabaseDSN(t *testing.T) {
	cfg := DatabaseConfig{
		Host:     "localhost",
		Port:     3306,
		User:     "testuser",
		Password: "testpass",
		DBName:   "testdb",
	}

	dsn := cfg.GetDSN()
	expected := "testuser:testpass@tcp(localhost:3306)/testdb?charset=utf8mb4&parseTime=True&loc=Local"
	assert.Equal(t, expected, dsn)
}
