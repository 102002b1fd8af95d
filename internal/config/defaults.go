package config

import (
	"fmt"
	"net/url"
	"time"
)

// Worker defaults mirror the extension settings the page adapter was tuned with.
const (
	DefaultPollInterval        = 10 * time.Second
	DefaultVideoTimeoutSeconds = 300
	DefaultChatTimeoutSeconds  = 60
	DefaultImageUploadDelayMs  = 5000
	DefaultStuckGrace          = 60 * time.Second
)

func (c *Config) applyCommonDefaults(name string) {
	if c.App.Name == "" {
		c.App.Name = name
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "console"
	}
	if c.Server.Host == "" {
		c.Server.Host = "127.0.0.1"
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = 15 * time.Second
	}
	if c.Server.IdleTimeout == 0 {
		c.Server.IdleTimeout = 60 * time.Second
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = 10 * time.Second
	}
	if c.RabbitMQ.Exchange.Name == "" {
		c.RabbitMQ.Exchange.Name = "grok.events"
	}
	if c.RabbitMQ.Exchange.Type == "" {
		c.RabbitMQ.Exchange.Type = "topic"
	}
	if c.RabbitMQ.Connection.RetryAttempts == 0 {
		c.RabbitMQ.Connection.RetryAttempts = 5
	}
	if c.RabbitMQ.Connection.RetryInterval == 0 {
		c.RabbitMQ.Connection.RetryInterval = 2 * time.Second
	}
	if c.RabbitMQ.Connection.Heartbeat == 0 {
		c.RabbitMQ.Connection.Heartbeat = 10 * time.Second
	}
}

// ApplyWorkerDefaults fills every unset worker-service setting
func (c *Config) ApplyWorkerDefaults() {
	c.applyCommonDefaults("worker-service")

	if c.Server.Port == 0 {
		c.Server.Port = 8765
	}
	// WriteTimeout stays zero unless set: /control/events is a long-lived SSE stream

	w := &c.Worker
	if w.PollInterval == 0 {
		w.PollInterval = DefaultPollInterval
	}
	if w.VideoTimeoutSeconds == 0 {
		w.VideoTimeoutSeconds = DefaultVideoTimeoutSeconds
	}
	if w.Chat.TimeoutSeconds == 0 {
		w.Chat.TimeoutSeconds = DefaultChatTimeoutSeconds
	}
	if w.Chat.ImageUploadDelayMs == 0 {
		w.Chat.ImageUploadDelayMs = DefaultImageUploadDelayMs
	}
	if w.StuckGrace == 0 {
		w.StuckGrace = DefaultStuckGrace
	}
	if w.ShutdownTimeout == 0 {
		w.ShutdownTimeout = 30 * time.Second
	}

	s := &c.JobSource
	if s.BaseURL == "" {
		s.BaseURL = "http://localhost:8000"
	}
	if s.PathPrefix == "" {
		s.PathPrefix = "/extension"
	}
	if s.RequestTimeout == 0 {
		s.RequestTimeout = 30 * time.Second
	}
	if s.UploadTimeout == 0 {
		s.UploadTimeout = 2 * time.Minute
	}

	b := &c.Browser
	if b.RemoteURL == "" {
		b.RemoteURL = "http://127.0.0.1:9222"
	}
	if b.TabPrefix == "" {
		b.TabPrefix = "https://grok.com/"
	}
	if b.ChatURL == "" {
		b.ChatURL = "https://grok.com/"
	}
	if b.VideoURL == "" {
		b.VideoURL = "https://grok.com/imagine"
	}
	if b.AdapterScript == "" {
		b.AdapterScript = "adapter/content.js"
	}
	if b.TabLoadTimeout == 0 {
		b.TabLoadTimeout = 20 * time.Second
	}
	if b.TabPollInterval == 0 {
		b.TabPollInterval = 300 * time.Millisecond
	}
	if b.ReadyAttempts == 0 {
		b.ReadyAttempts = 5
	}
	if b.ReadyBackoff == 0 {
		b.ReadyBackoff = 500 * time.Millisecond
	}
	if b.MaxImageDimension == 0 {
		b.MaxImageDimension = 2048
	}

	if c.State.Backend == "" {
		c.State.Backend = "file"
	}
	if c.State.Path == "" {
		c.State.Path = "data/worker-state.json"
	}
	if c.State.Redis.Addr == "" {
		c.State.Redis.Addr = "localhost:6379"
	}
	if c.State.Redis.Key == "" {
		c.State.Redis.Key = "grok:worker:state"
	}
}

// ApplyAPIDefaults fills every unset api-service setting
func (c *Config) ApplyAPIDefaults() {
	c.applyCommonDefaults("api-service")

	if c.Server.Port == 0 {
		c.Server.Port = 8000
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = 2 * time.Minute
	}

	if c.Database.Driver == "" {
		c.Database.Driver = "sqlite3"
	}
	if c.Database.Path == "" {
		c.Database.Path = "data/jobs.db"
	}
	if c.Database.MaxOpenConns == 0 {
		c.Database.MaxOpenConns = 10
	}
	if c.Database.MaxIdleConns == 0 {
		c.Database.MaxIdleConns = 5
	}

	j := &c.Jobs
	if j.PublicURL == "" {
		j.PublicURL = fmt.Sprintf("http://localhost:%d", c.Server.Port)
	}
	if j.VideoTimeout == 0 {
		j.VideoTimeout = 300 * time.Second
	}
	if j.ChatTimeout == 0 {
		j.ChatTimeout = 60 * time.Second
	}
	if j.ChatCompletionWait == 0 {
		j.ChatCompletionWait = 60 * time.Second
	}
	if j.MaxVideoAge == 0 {
		j.MaxVideoAge = 7 * 24 * time.Hour
	}
	if j.CleanupInterval == 0 {
		j.CleanupInterval = time.Hour
	}
	if j.VideoStore.Backend == "" {
		j.VideoStore.Backend = "local"
	}
	if j.VideoStore.Path == "" {
		j.VideoStore.Path = "videos"
	}
}

// ValidateWorkerConfig checks the worker-service sections
func (c *Config) ValidateWorkerConfig() error {
	if c.Server.Port < MinPort || c.Server.Port > MaxPort {
		return fmt.Errorf("invalid server port: %d (must be between %d and %d)", c.Server.Port, MinPort, MaxPort)
	}

	if c.Worker.PollInterval <= 0 {
		return fmt.Errorf("worker poll_interval must be greater than 0")
	}

	if c.Worker.VideoTimeoutSeconds <= 0 {
		return fmt.Errorf("worker video_timeout_seconds must be greater than 0")
	}

	if c.Worker.Chat.TimeoutSeconds <= 0 {
		return fmt.Errorf("worker chat timeout_seconds must be greater than 0")
	}

	if c.Worker.Chat.ImageUploadDelayMs < 0 {
		return fmt.Errorf("worker chat image_upload_delay_ms must not be negative")
	}

	if c.Worker.StuckGrace < 0 {
		return fmt.Errorf("worker stuck_grace must not be negative")
	}

	if _, err := url.ParseRequestURI(c.JobSource.BaseURL); err != nil {
		return fmt.Errorf("invalid job_source base_url: %w", err)
	}

	if c.Browser.ReadyAttempts <= 0 {
		return fmt.Errorf("browser ready_attempts must be greater than 0")
	}

	switch c.State.Backend {
	case "file":
		if c.State.Path == "" {
			return fmt.Errorf("state path is required for the file backend")
		}
	case "redis":
		if c.State.Redis.Addr == "" {
			return fmt.Errorf("state redis addr is required for the redis backend")
		}
	default:
		return fmt.Errorf("unsupported state backend: %q", c.State.Backend)
	}

	return c.validateRabbitMQ()
}

// ValidateAPIConfig checks the api-service sections
func (c *Config) ValidateAPIConfig() error {
	if c.Server.Port < MinPort || c.Server.Port > MaxPort {
		return fmt.Errorf("invalid server port: %d (must be between %d and %d)", c.Server.Port, MinPort, MaxPort)
	}

	switch c.Database.Driver {
	case "sqlite3":
		if c.Database.Path == "" {
			return fmt.Errorf("database path is required for sqlite3")
		}
	case "postgres":
		if c.Database.Host == "" {
			return fmt.Errorf("database host is required")
		}
		if c.Database.Port < MinPort || c.Database.Port > MaxPort {
			return fmt.Errorf("invalid database port: %d (must be between %d and %d)", c.Database.Port, MinPort, MaxPort)
		}
		if c.Database.Database == "" {
			return fmt.Errorf("database name is required")
		}
	default:
		return fmt.Errorf("unsupported database driver: %q", c.Database.Driver)
	}

	if c.Jobs.ChatCompletionWait <= 0 {
		return fmt.Errorf("jobs chat_completion_wait must be greater than 0")
	}

	switch c.Jobs.VideoStore.Backend {
	case "local":
		if c.Jobs.VideoStore.Path == "" {
			return fmt.Errorf("video_store path is required for the local backend")
		}
	case "s3":
		if c.Jobs.VideoStore.S3.Bucket == "" {
			return fmt.Errorf("video_store s3 bucket is required")
		}
	default:
		return fmt.Errorf("unsupported video_store backend: %q", c.Jobs.VideoStore.Backend)
	}

	return c.validateRabbitMQ()
}

func (c *Config) validateRabbitMQ() error {
	if !c.RabbitMQ.Enabled {
		return nil
	}

	if c.RabbitMQ.Host == "" {
		return fmt.Errorf("rabbitmq host is required")
	}

	if c.RabbitMQ.Port < MinPort || c.RabbitMQ.Port > MaxPort {
		return fmt.Errorf("invalid rabbitmq port: %d (must be between %d and %d)", c.RabbitMQ.Port, MinPort, MaxPort)
	}

	if c.RabbitMQ.Exchange.Name == "" {
		return fmt.Errorf("rabbitmq exchange name is required")
	}

	return nil
}
