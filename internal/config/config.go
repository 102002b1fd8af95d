package config

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// MinPort is the minimum valid port number
	MinPort = 1
	// MaxPort is the maximum valid port number
	MaxPort = 65535
)

// Config represents the complete application configuration. Both services
// read the same shape; each validates only the sections it uses.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	RabbitMQ  RabbitMQConfig  `yaml:"rabbitmq"`
	Logging   LoggingConfig   `yaml:"logging"`
	App       AppConfig       `yaml:"app"`
	Worker    WorkerConfig    `yaml:"worker"`
	JobSource JobSourceConfig `yaml:"job_source"`
	Browser   BrowserConfig   `yaml:"browser"`
	State     StateConfig     `yaml:"state"`
	Jobs      JobsConfig      `yaml:"jobs"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// DatabaseConfig holds job server database configuration
type DatabaseConfig struct {
	Driver          string        `yaml:"driver"` // sqlite3 or postgres
	Path            string        `yaml:"path"`
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	Database        string        `yaml:"database"`
	SSLMode         string        `yaml:"sslmode"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time"`
}

// RabbitMQConfig holds the notification exchange configuration
type RabbitMQConfig struct {
	Enabled    bool             `yaml:"enabled"`
	Host       string           `yaml:"host"`
	Port       int              `yaml:"port"`
	User       string           `yaml:"user"`
	Password   string           `yaml:"password"`
	VHost      string           `yaml:"vhost"`
	Exchange   ExchangeConfig   `yaml:"exchange"`
	Connection ConnectionConfig `yaml:"connection"`
	Publish    PublishConfig    `yaml:"publish"`
}

// ExchangeConfig holds RabbitMQ exchange configuration
type ExchangeConfig struct {
	Name       string `yaml:"name"`
	Type       string `yaml:"type"`
	Durable    bool   `yaml:"durable"`
	AutoDelete bool   `yaml:"auto_delete"`
}

// ConnectionConfig holds RabbitMQ connection settings
type ConnectionConfig struct {
	RetryAttempts int           `yaml:"retry_attempts"`
	RetryInterval time.Duration `yaml:"retry_interval"`
	Heartbeat     time.Duration `yaml:"heartbeat"`
}

// PublishConfig holds RabbitMQ publish retry settings
type PublishConfig struct {
	RetryAttempts int           `yaml:"retry_attempts"`
	RetryInterval time.Duration `yaml:"retry_interval"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level        string `yaml:"level"`
	Format       string `yaml:"format"`
	Output       string `yaml:"output"`
	EnableCaller bool   `yaml:"enable_caller"`
}

// AppConfig holds application metadata
type AppConfig struct {
	Name        string `yaml:"name"`
	Version     string `yaml:"version"`
	Environment string `yaml:"environment"`
}

// WorkerConfig holds the polling worker settings
type WorkerConfig struct {
	PollInterval        time.Duration `yaml:"poll_interval"`
	VideoTimeoutSeconds int           `yaml:"video_timeout_seconds"`
	Chat                ChatConfig    `yaml:"chat"`
	StuckGrace          time.Duration `yaml:"stuck_grace"`
	RequirePanel        bool          `yaml:"require_panel"`
	ShutdownTimeout     time.Duration `yaml:"shutdown_timeout"`
}

// ChatConfig is forwarded to the page adapter with every chat job
type ChatConfig struct {
	TimeoutSeconds     int `yaml:"timeout_seconds"`
	ImageUploadDelayMs int `yaml:"image_upload_delay_ms"`
}

// JobSourceConfig points the worker at the job server
type JobSourceConfig struct {
	BaseURL        string        `yaml:"base_url"`
	PathPrefix     string        `yaml:"path_prefix"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	UploadTimeout  time.Duration `yaml:"upload_timeout"`
}

// BrowserConfig describes the Chrome instance the worker drives
type BrowserConfig struct {
	RemoteURL         string        `yaml:"remote_url"`
	TabPrefix         string        `yaml:"tab_prefix"`
	ChatURL           string        `yaml:"chat_url"`
	VideoURL          string        `yaml:"video_url"`
	TabLoadTimeout    time.Duration `yaml:"tab_load_timeout"`
	TabPollInterval   time.Duration `yaml:"tab_poll_interval"`
	AdapterScript     string        `yaml:"adapter_script"`
	ReadyAttempts     int           `yaml:"ready_attempts"`
	ReadyBackoff      time.Duration `yaml:"ready_backoff"`
	MaxImageDimension int           `yaml:"max_image_dimension"`
}

// StateConfig selects the persistent state backend
type StateConfig struct {
	Backend string      `yaml:"backend"` // file or redis
	Path    string      `yaml:"path"`
	Redis   RedisConfig `yaml:"redis"`
}

// RedisConfig holds redis connection settings for the state backend
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Key      string `yaml:"key"`
}

// JobsConfig holds job server queue and video settings
type JobsConfig struct {
	PublicURL          string           `yaml:"public_url"`
	VideoTimeout       time.Duration    `yaml:"video_timeout"`
	ChatTimeout        time.Duration    `yaml:"chat_timeout"`
	ChatCompletionWait time.Duration    `yaml:"chat_completion_wait"`
	MaxVideoAge        time.Duration    `yaml:"max_video_age"`
	CleanupInterval    time.Duration    `yaml:"cleanup_interval"`
	VideoStore         VideoStoreConfig `yaml:"video_store"`
}

// VideoStoreConfig selects where uploaded videos are kept
type VideoStoreConfig struct {
	Backend string   `yaml:"backend"` // local or s3
	Path    string   `yaml:"path"`
	S3      S3Config `yaml:"s3"`
}

// S3Config holds the bucket settings for the s3 video store
type S3Config struct {
	Bucket       string `yaml:"bucket"`
	Region       string `yaml:"region"`
	Prefix       string `yaml:"prefix"`
	Endpoint     string `yaml:"endpoint"`
	UsePathStyle bool   `yaml:"use_path_style"`
}

// Load reads and parses the configuration file
func Load(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return &config, nil
}

// LoadOrDefault behaves like Load but falls back to an empty configuration
// when the file is missing or unparseable. Callers apply defaults afterwards.
func LoadOrDefault(configPath string, logger *slog.Logger) *Config {
	cfg, err := Load(configPath)
	if err != nil {
		logger.Warn("Could not load config file, using defaults",
			slog.String("path", configPath),
			slog.Any("error", err),
		)
		return &Config{}
	}
	return cfg
}
