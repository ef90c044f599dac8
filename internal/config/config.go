package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"github.com/wb-go/wbf/zlog"
)

// Queue drivers.
const (
	DriverKafka = "kafka"
	DriverRedis = "redis"
	DriverLocal = "local"
)

// Config holds the main configuration for the application.
type Config struct {
	Server    Server    `mapstructure:"server"`
	Database  Database  `mapstructure:"database"`
	Storage   Storage   `mapstructure:"storage"`
	Queue     Queue     `mapstructure:"queue"`
	Kafka     Kafka     `mapstructure:"kafka"`
	Redis     Redis     `mapstructure:"redis"`
	Retry     Retry     `mapstructure:"retry"`
	Processor Processor `mapstructure:"processor"`
	Notifier  Notifier  `mapstructure:"notifier"`
	RateLimit RateLimit `mapstructure:"rate_limit"`
}

// Server holds HTTP server-related configuration.
type Server struct {
	HTTPPort       string        `mapstructure:"http_port"`       // HTTP port to listen on
	MaxUploadSize  int64         `mapstructure:"max_upload_size"` // upload body limit in bytes
	AllowedOrigins []string      `mapstructure:"allowed_origins"` // CORS origins, empty allows any
	ShutdownWait   time.Duration `mapstructure:"shutdown_wait"`   // graceful shutdown budget
}

// Database holds database master and slave configuration.
type Database struct {
	Master DatabaseNode   `mapstructure:"master"`
	Slaves []DatabaseNode `mapstructure:"slaves"`

	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// DatabaseNode holds connection parameters for a single database node.
type DatabaseNode struct {
	Host    string `mapstructure:"host"`
	Port    string `mapstructure:"port"`
	User    string `mapstructure:"user"`
	Pass    string `mapstructure:"pass"`
	Name    string `mapstructure:"name"`
	SSLMode string `mapstructure:"ssl_mode"`
}

// Storage holds configuration for the object storage backend.
type Storage struct {
	Endpoint   string `mapstructure:"endpoint"`
	AccessKey  string `mapstructure:"access_key"`
	SecretKey  string `mapstructure:"secret_key"`
	BucketName string `mapstructure:"bucket_name"`
	UseSSL     bool   `mapstructure:"use_ssl"`
	PublicURL  string `mapstructure:"public_url"` // base of returned object URLs
}

// Queue selects the background hand-off driver.
type Queue struct {
	Driver         string        `mapstructure:"driver"`          // kafka, redis or local
	Workers        int           `mapstructure:"workers"`         // local driver workers
	Size           int           `mapstructure:"size"`            // local driver buffer
	ProcessTimeout time.Duration `mapstructure:"process_timeout"` // per-request budget
}

// Kafka holds configuration for the Kafka message queue.
type Kafka struct {
	GroupID string   `mapstructure:"group_id"` // Consumer group ID
	Topic   string   `mapstructure:"topic"`    // Kafka topic name
	Brokers []string `mapstructure:"brokers"`  // List of Kafka broker addresses
}

// Redis holds configuration for the Redis streams queue.
type Redis struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Stream   string `mapstructure:"stream"`
	Group    string `mapstructure:"group"`
	Consumer string `mapstructure:"consumer"`
}

// Retry defines retry policy configuration.
type Retry struct {
	Attempts int           `mapstructure:"attempts"` // Number of retry attempts
	Delay    time.Duration `mapstructure:"delay"`    // Initial delay between retries
	Backoff  float64       `mapstructure:"backoff"`  // Backoff multiplier for delays
}

// Processor holds image compression settings.
type Processor struct {
	Quality      int           `mapstructure:"quality"`       // JPEG quality, 1..100
	FetchTimeout time.Duration `mapstructure:"fetch_timeout"` // per-image download timeout
	FailureMode  string        `mapstructure:"failure_mode"`  // fail_fast or isolate
}

// Notifier holds the completion webhook settings.
type Notifier struct {
	WebhookURL string        `mapstructure:"webhook_url"` // empty disables notifications
	Timeout    time.Duration `mapstructure:"timeout"`
}

// RateLimit holds the per-client limit of the upload endpoint.
type RateLimit struct {
	RPS   float64 `mapstructure:"rps"`
	Burst int     `mapstructure:"burst"`
}

// DSN returns the PostgreSQL DSN string for connecting to this database node.
func (n DatabaseNode) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		n.User, n.Pass, n.Host, n.Port, n.Name, n.SSLMode,
	)
}

// mustBindEnv binds critical environment variables to Viper keys.
//
// It panics if any environment variable cannot be bound.
func mustBindEnv(v *viper.Viper) {
	bindings := map[string]string{
		"database.master.host": "DB_HOST",
		"database.master.port": "DB_PORT",
		"database.master.user": "DB_USER",
		"database.master.pass": "DB_PASSWORD",
		"database.master.name": "DB_NAME",
		"storage.endpoint":     "MINIO_ENDPOINT",
		"storage.access_key":   "MINIO_ACCESS_KEY",
		"storage.secret_key":   "MINIO_SECRET_KEY",
		"storage.bucket_name":  "MINIO_BUCKET",
		"redis.password":       "REDIS_PASSWORD",
		"notifier.webhook_url": "NOTIFY_WEBHOOK_URL",
	}

	for key, env := range bindings {
		if err := v.BindEnv(key, env); err != nil {
			zlog.Logger.Panic().Err(err).Msgf("failed to bind env %s", env)
		}
	}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.http_port", "8080")
	v.SetDefault("server.max_upload_size", 10<<20)
	v.SetDefault("server.shutdown_wait", 10*time.Second)
	v.SetDefault("queue.driver", DriverKafka)
	v.SetDefault("queue.workers", 4)
	v.SetDefault("queue.size", 64)
	v.SetDefault("queue.process_timeout", 10*time.Minute)
	v.SetDefault("redis.stream", "image_requests")
	v.SetDefault("redis.group", "image_compressors")
	v.SetDefault("redis.consumer", "compressor-1")
	v.SetDefault("retry.attempts", 3)
	v.SetDefault("retry.delay", time.Second)
	v.SetDefault("retry.backoff", 2.0)
	v.SetDefault("processor.quality", 50)
	v.SetDefault("processor.fetch_timeout", 30*time.Second)
	v.SetDefault("processor.failure_mode", "fail_fast")
	v.SetDefault("notifier.timeout", 10*time.Second)
	v.SetDefault("rate_limit.rps", 5)
	v.SetDefault("rate_limit.burst", 10)
}

// Load reads the configuration file at path, overlaying environment variables.
// A .env file in the working directory is loaded first when present.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil {
		zlog.Logger.Debug().Msg("no .env file found")
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	mustBindEnv(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	switch cfg.Queue.Driver {
	case DriverKafka, DriverRedis, DriverLocal:
	default:
		return nil, fmt.Errorf("unknown queue driver %q", cfg.Queue.Driver)
	}

	return &cfg, nil
}

// MustLoad loads the configuration from the specified file path.
// It panics if the configuration file cannot be loaded or unmarshaled.
func MustLoad(path string) *Config {
	cfg, err := Load(path)
	if err != nil {
		zlog.Logger.Panic().Err(err).Msg("failed to load config")
	}
	return cfg
}
