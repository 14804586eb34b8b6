package config

import "time"

// Config holds all application configuration.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"    validate:"required"`
	Database  DatabaseConfig  `mapstructure:"database"  validate:"required"`
	Auth      AuthConfig      `mapstructure:"auth"      validate:"required"`
	Google    GoogleConfig    `mapstructure:"google"    validate:"required"`
	Worker    WorkerConfig    `mapstructure:"worker"    validate:"required"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

// ServerConfig contains all server-related configuration settings.
type ServerConfig struct {
	Port     int    `mapstructure:"port"      validate:"required,gt=0,lt=65536"`
	LogLevel string `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`
	// Mode selects which halves of the process run: the HTTP API, the
	// task worker, or both.
	Mode string `mapstructure:"mode" validate:"required,oneof=all api worker"`
}

// DatabaseConfig contains all database-related configuration settings.
type DatabaseConfig struct {
	URL             string        `mapstructure:"url"               validate:"required,url"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"    validate:"gte=1"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"    validate:"gte=0"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime" validate:"gte=0"`
}

// AuthConfig contains all authentication and authorization settings.
type AuthConfig struct {
	// JWTSecret signs and verifies the bearer tokens presented by producers.
	JWTSecret string `mapstructure:"jwt_secret" validate:"required,min=32"`
	// TokenEncryptionKey is a hex-encoded 32-byte key used to seal OAuth
	// tokens at rest.
	TokenEncryptionKey string `mapstructure:"token_encryption_key" validate:"required,hexadecimal,len=64"`
}

// GoogleConfig configures the OAuth client and the Forms API endpoint.
type GoogleConfig struct {
	ClientID     string `mapstructure:"client_id"`
	ClientSecret string `mapstructure:"client_secret"`
	TokenURL     string `mapstructure:"token_url"      validate:"required,url"`
	// FormsEndpoint overrides the Forms API base URL. Empty uses the default.
	FormsEndpoint     string  `mapstructure:"forms_endpoint"      validate:"omitempty,url"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second" validate:"gt=0"`
}

// WorkerConfig controls the task worker loop, retry policy and sweeper.
type WorkerConfig struct {
	TargetAgent        string        `mapstructure:"target_agent"         validate:"required"`
	PollInterval       time.Duration `mapstructure:"poll_interval"        validate:"gt=0"`
	BatchSize          int           `mapstructure:"batch_size"           validate:"gte=1,lte=1000"`
	MaxAttempts        int           `mapstructure:"max_attempts"         validate:"gte=1"`
	BaseBackoffDelay   time.Duration `mapstructure:"base_backoff_delay"   validate:"gt=0"`
	BackoffCap         time.Duration `mapstructure:"backoff_cap"          validate:"gtefield=BaseBackoffDelay"`
	StaleTaskThreshold time.Duration `mapstructure:"stale_task_threshold" validate:"gt=0"`
	SweepInterval      time.Duration `mapstructure:"sweep_interval"       validate:"gt=0"`
	LockWait           time.Duration `mapstructure:"lock_wait"            validate:"gt=0"`
	// LockTTL must exceed StaleTaskThreshold: a lease may not lapse while
	// the sweeper still counts its task as running.
	LockTTL time.Duration `mapstructure:"lock_ttl" validate:"gtfield=StaleTaskThreshold"`
	// ReplyToSource enqueues form_created / form_creation_failed tasks for
	// the agent that sent each finished execute_form task.
	ReplyToSource bool `mapstructure:"reply_to_source"`
}

// TelemetryConfig enables OpenTelemetry tracing to stdout.
type TelemetryConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	ServiceName string `mapstructure:"service_name" validate:"required_if=Enabled true"`
}
