package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Extractor ExtractorConfig `mapstructure:"extractor"`
	Notify    NotifyConfig    `mapstructure:"notify"`
	Dispatch  DispatchConfig  `mapstructure:"dispatch"`
	Booking   BookingConfig   `mapstructure:"booking"`
	Reaper    ReaperConfig    `mapstructure:"reaper"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port           string        `mapstructure:"port"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	HandlerTimeout time.Duration `mapstructure:"handler_timeout"`
}

// DatabaseConfig holds database connection configuration
type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
}

// ExtractorConfig holds the entity-detection provider chain configuration.
// A provider with an empty URL is treated as unconfigured and skipped.
type ExtractorConfig struct {
	PrimaryURL   string        `mapstructure:"primary_url"`
	PrimaryKey   string        `mapstructure:"primary_key"`
	SecondaryURL string        `mapstructure:"secondary_url"`
	SecondaryKey string        `mapstructure:"secondary_key"`
	Timeout      time.Duration `mapstructure:"timeout"`
}

// NotifyConfig holds outbound notification provider configuration
type NotifyConfig struct {
	SMSAccountSID   string        `mapstructure:"sms_account_sid"`
	SMSAuthToken    string        `mapstructure:"sms_auth_token"`
	SMSFromNumber   string        `mapstructure:"sms_from_number"`
	SMSBackupKey    string        `mapstructure:"sms_backup_key"`
	SMSBackupSecret string        `mapstructure:"sms_backup_secret"`
	SMSBackupFrom   string        `mapstructure:"sms_backup_from"`
	EmailAPIKey     string        `mapstructure:"email_api_key"`
	EmailFrom       string        `mapstructure:"email_from"`
	SMSInterval     time.Duration `mapstructure:"sms_interval"`
	EmailInterval   time.Duration `mapstructure:"email_interval"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout"`
}

// DispatchConfig holds retry policy for the notification dispatcher
type DispatchConfig struct {
	MaxAttempts int           `mapstructure:"max_attempts"`
	BaseBackoff time.Duration `mapstructure:"base_backoff"`
	MaxBackoff  time.Duration `mapstructure:"max_backoff"`
	QueueSize   int           `mapstructure:"queue_size"`
}

// BookingConfig holds the booking collaborator configuration
type BookingConfig struct {
	BaseURL      string        `mapstructure:"base_url"`
	ClientID     string        `mapstructure:"client_id"`
	ClientSecret string        `mapstructure:"client_secret"`
	TokenURL     string        `mapstructure:"token_url"`
	Timeout      time.Duration `mapstructure:"timeout"`
}

// ReaperConfig holds the stale-row sweep configuration.
// StaleAfter bounds how long an in-flight webhook may stay unclaimed before
// a redelivery can take over; it must exceed the slowest legitimate handler
// execution time.
type ReaperConfig struct {
	Interval   time.Duration `mapstructure:"interval"`
	StaleAfter time.Duration `mapstructure:"stale_after"`
	Retention  time.Duration `mapstructure:"retention"`
}

// Load loads configuration from environment variables and config file
func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	viper.AutomaticEnv()
	bindEnvVars()

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	return &config, nil
}

// setDefaults sets default configuration values
func setDefaults() {
	viper.SetDefault("server.port", "8080")
	viper.SetDefault("server.read_timeout", "30s")
	viper.SetDefault("server.write_timeout", "30s")
	viper.SetDefault("server.handler_timeout", "30s")

	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", 3306)

	viper.SetDefault("extractor.timeout", "5s")

	viper.SetDefault("notify.sms_interval", "1s")
	viper.SetDefault("notify.email_interval", "1s")
	viper.SetDefault("notify.request_timeout", "10s")

	viper.SetDefault("dispatch.max_attempts", 3)
	viper.SetDefault("dispatch.base_backoff", "1s")
	viper.SetDefault("dispatch.max_backoff", "60s")
	viper.SetDefault("dispatch.queue_size", 256)

	viper.SetDefault("booking.timeout", "10s")

	viper.SetDefault("reaper.interval", "1m")
	viper.SetDefault("reaper.stale_after", "2m")
	viper.SetDefault("reaper.retention", "168h")
}

// bindEnvVars binds environment variables to configuration keys
func bindEnvVars() {
	viper.BindEnv("server.port", "SERVER_PORT")
	viper.BindEnv("server.read_timeout", "SERVER_READ_TIMEOUT")
	viper.BindEnv("server.write_timeout", "SERVER_WRITE_TIMEOUT")
	viper.BindEnv("server.handler_timeout", "SERVER_HANDLER_TIMEOUT")

	viper.BindEnv("database.host", "DB_HOST")
	viper.BindEnv("database.port", "DB_PORT")
	viper.BindEnv("database.user", "DB_USER")
	viper.BindEnv("database.password", "DB_PASSWORD")
	viper.BindEnv("database.dbname", "DB_NAME")

	viper.BindEnv("extractor.primary_url", "EXTRACTOR_PRIMARY_URL")
	viper.BindEnv("extractor.primary_key", "EXTRACTOR_PRIMARY_KEY")
	viper.BindEnv("extractor.secondary_url", "EXTRACTOR_SECONDARY_URL")
	viper.BindEnv("extractor.secondary_key", "EXTRACTOR_SECONDARY_KEY")
	viper.BindEnv("extractor.timeout", "EXTRACTOR_TIMEOUT")

	viper.BindEnv("notify.sms_account_sid", "NOTIFY_SMS_ACCOUNT_SID")
	viper.BindEnv("notify.sms_auth_token", "NOTIFY_SMS_AUTH_TOKEN")
	viper.BindEnv("notify.sms_from_number", "NOTIFY_SMS_FROM_NUMBER")
	viper.BindEnv("notify.sms_backup_key", "NOTIFY_SMS_BACKUP_KEY")
	viper.BindEnv("notify.sms_backup_secret", "NOTIFY_SMS_BACKUP_SECRET")
	viper.BindEnv("notify.sms_backup_from", "NOTIFY_SMS_BACKUP_FROM")
	viper.BindEnv("notify.email_api_key", "NOTIFY_EMAIL_API_KEY")
	viper.BindEnv("notify.email_from", "NOTIFY_EMAIL_FROM")
	viper.BindEnv("notify.sms_interval", "NOTIFY_SMS_INTERVAL")
	viper.BindEnv("notify.email_interval", "NOTIFY_EMAIL_INTERVAL")
	viper.BindEnv("notify.request_timeout", "NOTIFY_REQUEST_TIMEOUT")

	viper.BindEnv("dispatch.max_attempts", "DISPATCH_MAX_ATTEMPTS")
	viper.BindEnv("dispatch.base_backoff", "DISPATCH_BASE_BACKOFF")
	viper.BindEnv("dispatch.max_backoff", "DISPATCH_MAX_BACKOFF")
	viper.BindEnv("dispatch.queue_size", "DISPATCH_QUEUE_SIZE")

	viper.BindEnv("booking.base_url", "BOOKING_BASE_URL")
	viper.BindEnv("booking.client_id", "BOOKING_CLIENT_ID")
	viper.BindEnv("booking.client_secret", "BOOKING_CLIENT_SECRET")
	viper.BindEnv("booking.token_url", "BOOKING_TOKEN_URL")
	viper.BindEnv("booking.timeout", "BOOKING_TIMEOUT")

	viper.BindEnv("reaper.interval", "REAPER_INTERVAL")
	viper.BindEnv("reaper.stale_after", "REAPER_STALE_AFTER")
	viper.BindEnv("reaper.retention", "REAPER_RETENTION")
}

// DSN returns the database connection string
func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		c.User, c.Password, c.Host, c.Port, c.DBName)
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}

	if c.Database.Host == "" || c.Database.User == "" || c.Database.DBName == "" {
		return fmt.Errorf("database host, user, and dbname are required")
	}

	if c.Dispatch.MaxAttempts < 1 {
		return fmt.Errorf("dispatch max attempts must be at least 1")
	}

	if c.Booking.BaseURL == "" {
		return fmt.Errorf("booking base URL is required")
	}

	if c.Reaper.StaleAfter <= c.Server.HandlerTimeout {
		return fmt.Errorf("reaper stale_after (%s) must exceed the handler timeout (%s)",
			c.Reaper.StaleAfter, c.Server.HandlerTimeout)
	}

	return nil
}
