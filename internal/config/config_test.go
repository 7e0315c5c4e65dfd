package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

const minimalYAML = `
server:
  host: 0.0.0.0
  port: 8080
database:
  host: localhost
  user: toolshare
  database: toolshare
jwt:
  secret: 0123456789abcdef0123456789abcdef
`

func TestParse_Defaults(t *testing.T) {
	cfg, err := Parse([]byte(minimalYAML))
	require.NoError(t, err)

	assert.Equal(t, StorageDriverPostgres, cfg.Storage.Driver)
	assert.Equal(t, 5432, cfg.Database.Port)
	assert.Equal(t, "disable", cfg.Database.SSLMode)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format)
	assert.Equal(t, 10*time.Minute, cfg.Handover.WarnAfter())
	assert.Equal(t, 15*time.Minute, cfg.Handover.ExpireAfter())
	assert.Equal(t, 5, cfg.Handover.MaxAttempts)
	assert.Equal(t, bcrypt.DefaultCost, cfg.Handover.HashCost)
	assert.Equal(t, 1, cfg.Lifecycle.ConflictRetries)
	assert.Equal(t, 720, cfg.Lifecycle.MaxDurationHours)
	assert.Equal(t, 3, cfg.Lifecycle.TxRetries)
	assert.Equal(t, time.Hour, cfg.JWT.AccessTTL())
	assert.Equal(t, "0 */30 * * * *", cfg.Scheduler.PurgeHandoverCodes)
	assert.Equal(t, "0.0.0.0:8080", cfg.GetServerAddress())
	assert.Empty(t, cfg.GetGRPCAddress())
	assert.Equal(t, "postgres://toolshare:@localhost:5432/toolshare?sslmode=disable", cfg.GetDatabaseConnectionString())
}

func TestParse_EnvOverrides(t *testing.T) {
	t.Setenv("DB_HOST", "db.internal")
	t.Setenv("DB_PORT", "6543")
	t.Setenv("STORAGE_DRIVER", "memory")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("SENDGRID_API_KEY", "SG.key")
	t.Setenv("HANDOVER_EXPIRE_MINUTES", "30")

	cfg, err := Parse([]byte(minimalYAML))
	require.NoError(t, err)

	assert.Equal(t, "db.internal", cfg.Database.Host)
	assert.Equal(t, 6543, cfg.Database.Port)
	assert.Equal(t, StorageDriverMemory, cfg.Storage.Driver)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "SG.key", cfg.Notifications.SendGrid.APIKey)
	assert.Equal(t, 30*time.Minute, cfg.Handover.ExpireAfter())
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		return Config{
			Server:   ServerConfig{Port: 8080},
			Database: DatabaseConfig{Host: "h", User: "u", Database: "d"},
			JWT:      JWTConfig{Secret: "0123456789abcdef0123456789abcdef"},
		}
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		errMsg string
	}{
		{"Bad port", func(c *Config) { c.Server.Port = 70000 }, "invalid server port"},
		{"Short secret", func(c *Config) { c.JWT.Secret = "short" }, "at least 32 characters"},
		{"Missing secret", func(c *Config) { c.JWT.Secret = "" }, "JWT secret is required"},
		{"Unknown driver", func(c *Config) { c.Storage.Driver = "mongo" }, "unknown storage driver"},
		{"Missing db host", func(c *Config) { c.Database.Host = "" }, "database host is required"},
		{"Expiry before warning", func(c *Config) {
			c.Handover.WarnAfterMinutes = 20
			c.Handover.ExpireAfterMinutes = 15
		}, "must exceed the warning threshold"},
		{"Hash cost", func(c *Config) { c.Handover.HashCost = 99 }, "invalid handover hash cost"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}

	t.Run("Memory driver needs no database", func(t *testing.T) {
		cfg := valid()
		cfg.Storage.Driver = StorageDriverMemory
		cfg.Database = DatabaseConfig{}
		assert.NoError(t, cfg.Validate())
	})
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(minimalYAML), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Server.Port)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "failed to read config file")

	require.NoError(t, os.WriteFile(path, []byte("server: ["), 0o600))
	_, err = Load(path)
	assert.ErrorContains(t, err, "failed to parse config file")
}
