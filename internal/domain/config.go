package domain

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Host    string `mapstructure:"host"`
	Port    int    `mapstructure:"port"`
	BaseURL string `mapstructure:"base_url"`
}

// PostgresConfig holds PostgreSQL-specific settings
type PostgresConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Database string `mapstructure:"database"`
	User     string `mapstructure:"username"`
	Pass     string `mapstructure:"password"`
	SslMode  string `mapstructure:"ssl_mode"`
}

// DatabaseConfig holds general database settings and nested specific configs
type DatabaseConfig struct {
	Type     string         `mapstructure:"type"`
	Postgres PostgresConfig `mapstructure:"postgres"`
}

// LoggingConfig holds logging settings
type LoggingConfig struct {
	Path           string `mapstructure:"path"`
	Level          string `mapstructure:"level"`
	MaxFileSize    int    `mapstructure:"max_file_size"`
	MaxBackupCount int    `mapstructure:"max_backup_count"`
}

// HQConfig holds headquarters transport settings
type HQConfig struct {
	// Endpoint is the base URL of the headquarters exchange API.
	Endpoint string `mapstructure:"endpoint"`
	// APIToken authenticates this store against HQ.
	APIToken string `mapstructure:"api_token"`
	// TimeoutSeconds bounds one network exchange.
	TimeoutSeconds int `mapstructure:"timeout_seconds"`
	// Serve enables the HQ-side exchange endpoint on this instance.
	Serve bool `mapstructure:"serve"`
}

// SyncConfig holds settings for the background sync driver
type SyncConfig struct {
	// AutoSyncSchedule is the cron spec evaluating NeedsSync across stores.
	AutoSyncSchedule string `mapstructure:"auto_sync_schedule"`
	// DequeueLimit caps queue items pulled per batch run.
	DequeueLimit int `mapstructure:"dequeue_limit"`
	// QueueRetentionDays keeps Completed queue items around before cleanup.
	QueueRetentionDays int `mapstructure:"queue_retention_days"`
	// LogRetentionDays keeps sync log rows before pruning.
	LogRetentionDays int `mapstructure:"log_retention_days"`
	// RetryBaseDelaySeconds seeds the exponential backoff.
	RetryBaseDelaySeconds int `mapstructure:"retry_base_delay_seconds"`
	// RetryMaxDelaySeconds clamps the exponential backoff.
	RetryMaxDelaySeconds int `mapstructure:"retry_max_delay_seconds"`
	// RetryMaxAttempts dead-letters an item after this many failures.
	RetryMaxAttempts int `mapstructure:"retry_max_attempts"`
}

// Config holds the application's configuration, mapped from config.toml
type Config struct {
	Version    string // not from config file
	ConfigPath string // internal use

	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	HQ       HQConfig       `mapstructure:"hq"`
	Sync     SyncConfig     `mapstructure:"sync"`
}
