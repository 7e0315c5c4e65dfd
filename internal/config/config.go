package config

import (
	"fmt"
	"os"
	"time"

	"golang.org/x/crypto/bcrypt"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Server        ServerConfig       `yaml:"server"`
	Database      DatabaseConfig     `yaml:"database"`
	Storage       StorageConfig      `yaml:"storage"`
	Log           LogConfig          `yaml:"log"`
	JWT           JWTConfig          `yaml:"jwt"`
	Handover      HandoverConfig     `yaml:"handover"`
	Lifecycle     LifecycleConfig    `yaml:"lifecycle"`
	Notifications NotificationConfig `yaml:"notifications"`
	Scheduler     SchedulerConfig    `yaml:"scheduler"`
}

// ServerConfig contains HTTP and gRPC listener settings
type ServerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	GRPCPort int    `yaml:"grpc_port"`
}

// DatabaseConfig contains PostgreSQL connection settings
type DatabaseConfig struct {
	Host         string `yaml:"host"`
	Port         int    `yaml:"port"`
	User         string `yaml:"user"`
	Password     string `yaml:"password"`
	Database     string `yaml:"database"`
	SSLMode      string `yaml:"ssl_mode"`
	MaxOpenConns int    `yaml:"max_open_conns"`
}

const (
	StorageDriverPostgres = "postgres"
	StorageDriverMemory   = "memory"
)

// StorageConfig selects the repository backend
type StorageConfig struct {
	Driver string `yaml:"driver"` // "postgres" or "memory"
}

// LogConfig contains logging settings
type LogConfig struct {
	Level  string `yaml:"level"`  // "debug", "info", "warn", "error"
	Format string `yaml:"format"` // "json" or "text"
}

// JWTConfig contains JWT token settings
type JWTConfig struct {
	Secret            string `yaml:"secret"`
	AccessTokenExpiry int    `yaml:"access_token_expiry_minutes"`
}

// HandoverConfig contains handover code settings
type HandoverConfig struct {
	WarnAfterMinutes   int `yaml:"warn_after_minutes"`
	ExpireAfterMinutes int `yaml:"expire_after_minutes"`
	MaxAttempts        int `yaml:"max_attempts"`
	HashCost           int `yaml:"hash_cost"`
}

// LifecycleConfig contains borrow lifecycle settings
type LifecycleConfig struct {
	ConflictRetries  int `yaml:"conflict_retries"`
	MaxDurationHours int `yaml:"max_duration_hours"`
	TxRetries        int `yaml:"tx_retries"`
}

// NotificationConfig contains event delivery settings
type NotificationConfig struct {
	InboxEnabled bool           `yaml:"inbox_enabled"`
	SendGrid     SendGridConfig `yaml:"sendgrid"`
	FCM          FCMConfig      `yaml:"fcm"`
}

// SendGridConfig enables the email sink when APIKey is set
type SendGridConfig struct {
	APIKey    string `yaml:"api_key"`
	FromEmail string `yaml:"from_email"`
	FromName  string `yaml:"from_name"`
}

// FCMConfig enables the push sink when CredentialsFile is set
type FCMConfig struct {
	CredentialsFile string `yaml:"credentials_file"`
	TopicPrefix     string `yaml:"topic_prefix"`
}

// SchedulerConfig contains cron schedule settings
type SchedulerConfig struct {
	PurgeHandoverCodes   string `yaml:"purge_handover_codes"`
	SendOverdueReminders string `yaml:"send_overdue_reminders"`
}

// Load reads configuration from a YAML file
func Load(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML, applies environment overrides and validates the result
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Override with environment variables if present
	cfg.overrideWithEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// overrideWithEnv overrides config values with environment variables
func (c *Config) overrideWithEnv() {
	// Database
	if val := os.Getenv("DB_HOST"); val != "" {
		c.Database.Host = val
	}
	if val := os.Getenv("DB_PORT"); val != "" {
		fmt.Sscanf(val, "%d", &c.Database.Port)
	}
	if val := os.Getenv("DB_USER"); val != "" {
		c.Database.User = val
	}
	if val := os.Getenv("DB_PASSWORD"); val != "" {
		c.Database.Password = val
	}
	if val := os.Getenv("DB_NAME"); val != "" {
		c.Database.Database = val
	}
	if val := os.Getenv("DB_SSL_MODE"); val != "" {
		c.Database.SSLMode = val
	}

	// JWT
	if val := os.Getenv("JWT_SECRET"); val != "" {
		c.JWT.Secret = val
	}

	// Server
	if val := os.Getenv("SERVER_HOST"); val != "" {
		c.Server.Host = val
	}
	if val := os.Getenv("SERVER_PORT"); val != "" {
		fmt.Sscanf(val, "%d", &c.Server.Port)
	}

	// Storage
	if val := os.Getenv("STORAGE_DRIVER"); val != "" {
		c.Storage.Driver = val
	}

	// Log
	if val := os.Getenv("LOG_LEVEL"); val != "" {
		c.Log.Level = val
	}
	if val := os.Getenv("LOG_FORMAT"); val != "" {
		c.Log.Format = val
	}

	// Notifications
	if val := os.Getenv("SENDGRID_API_KEY"); val != "" {
		c.Notifications.SendGrid.APIKey = val
	}
	if val := os.Getenv("FCM_CREDENTIALS_FILE"); val != "" {
		c.Notifications.FCM.CredentialsFile = val
	}

	// Handover
	if val := os.Getenv("HANDOVER_EXPIRE_MINUTES"); val != "" {
		fmt.Sscanf(val, "%d", &c.Handover.ExpireAfterMinutes)
	}

	// Set defaults for log if not configured
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
}

// Validate checks if the configuration is valid and fills in defaults
func (c *Config) Validate() error {
	// Server validation
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Server.GRPCPort < 0 || c.Server.GRPCPort > 65535 {
		return fmt.Errorf("invalid grpc port: %d", c.Server.GRPCPort)
	}

	// Storage validation
	switch c.Storage.Driver {
	case "":
		c.Storage.Driver = StorageDriverPostgres
	case StorageDriverPostgres, StorageDriverMemory:
	default:
		return fmt.Errorf("unknown storage driver: %q", c.Storage.Driver)
	}

	// Database validation
	if c.Storage.Driver == StorageDriverPostgres {
		if c.Database.Host == "" {
			return fmt.Errorf("database host is required")
		}
		if c.Database.User == "" {
			return fmt.Errorf("database user is required")
		}
		if c.Database.Database == "" {
			return fmt.Errorf("database name is required")
		}
		if c.Database.Port == 0 {
			c.Database.Port = 5432
		}
		if c.Database.SSLMode == "" {
			c.Database.SSLMode = "disable"
		}
	}

	// JWT validation
	if c.JWT.Secret == "" {
		return fmt.Errorf("JWT secret is required")
	}
	if len(c.JWT.Secret) < 32 {
		return fmt.Errorf("JWT secret must be at least 32 characters")
	}
	if c.JWT.AccessTokenExpiry == 0 {
		c.JWT.AccessTokenExpiry = 60
	}

	// Handover defaults
	if c.Handover.WarnAfterMinutes == 0 {
		c.Handover.WarnAfterMinutes = 10
	}
	if c.Handover.ExpireAfterMinutes == 0 {
		c.Handover.ExpireAfterMinutes = 15
	}
	if c.Handover.ExpireAfterMinutes <= c.Handover.WarnAfterMinutes {
		return fmt.Errorf("handover expiry (%d min) must exceed the warning threshold (%d min)",
			c.Handover.ExpireAfterMinutes, c.Handover.WarnAfterMinutes)
	}
	if c.Handover.MaxAttempts == 0 {
		c.Handover.MaxAttempts = 5
	}
	if c.Handover.HashCost == 0 {
		c.Handover.HashCost = bcrypt.DefaultCost
	}
	if c.Handover.HashCost < bcrypt.MinCost || c.Handover.HashCost > bcrypt.MaxCost {
		return fmt.Errorf("invalid handover hash cost: %d", c.Handover.HashCost)
	}

	// Lifecycle defaults
	if c.Lifecycle.ConflictRetries == 0 {
		c.Lifecycle.ConflictRetries = 1
	}
	if c.Lifecycle.MaxDurationHours == 0 {
		c.Lifecycle.MaxDurationHours = 720
	}
	if c.Lifecycle.TxRetries == 0 {
		c.Lifecycle.TxRetries = 3
	}

	// Scheduler defaults
	if c.Scheduler.PurgeHandoverCodes == "" {
		c.Scheduler.PurgeHandoverCodes = "0 */30 * * * *" // Every 30 minutes
	}
	if c.Scheduler.SendOverdueReminders == "" {
		c.Scheduler.SendOverdueReminders = "0 0 * * * *" // Hourly
	}

	return nil
}

// GetDatabaseConnectionString returns a PostgreSQL connection string
func (c *Config) GetDatabaseConnectionString() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.Database,
		c.Database.SSLMode,
	)
}

// GetServerAddress returns the HTTP server address
func (c *Config) GetServerAddress() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// GetGRPCAddress returns the gRPC server address, or "" when gRPC is disabled
func (c *Config) GetGRPCAddress() string {
	if c.Server.GRPCPort == 0 {
		return ""
	}
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.GRPCPort)
}

func (h HandoverConfig) WarnAfter() time.Duration {
	return time.Duration(h.WarnAfterMinutes) * time.Minute
}

func (h HandoverConfig) ExpireAfter() time.Duration {
	return time.Duration(h.ExpireAfterMinutes) * time.Minute
}

func (j JWTConfig) AccessTTL() time.Duration {
	return time.Duration(j.AccessTokenExpiry) * time.Minute
}
