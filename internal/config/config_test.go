package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/licanhuadev/Grok-Imagine-Assistant/shared/logger"
)

func TestLoad(t *testing.T) {
	tests := []struct {
		name      string
		filePath  string
		wantErr   bool
		errString string
	}{
		{
			name:     "valid config file",
			filePath: "testdata/valid_config.yaml",
			wantErr:  false,
		},
		{
			name:      "non-existent file",
			filePath:  "testdata/nonexistent.yaml",
			wantErr:   true,
			errString: "failed to read config file",
		},
		{
			name:      "malformed yaml",
			filePath:  "testdata/malformed.yaml",
			wantErr:   true,
			errString: "failed to parse config file",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load(tt.filePath)

			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errString)
				assert.Nil(t, cfg)
				return
			}

			require.NoError(t, err)
			require.NotNil(t, cfg)

			assert.Equal(t, 8765, cfg.Server.Port)
			assert.Equal(t, 5*time.Second, cfg.Worker.PollInterval)
			assert.Equal(t, 240, cfg.Worker.VideoTimeoutSeconds)
			assert.Equal(t, 90, cfg.Worker.Chat.TimeoutSeconds)
			assert.Equal(t, 2500, cfg.Worker.Chat.ImageUploadDelayMs)
			assert.True(t, cfg.Worker.RequirePanel)
			assert.Equal(t, 500*time.Millisecond, cfg.Browser.ReadyBackoff)
			assert.Equal(t, "redis", cfg.State.Backend)
			assert.Equal(t, "grok:test:state", cfg.State.Redis.Key)
			assert.Equal(t, "grok-videos", cfg.Jobs.VideoStore.S3.Bucket)
		})
	}
}

func TestLoadOrDefault(t *testing.T) {
	t.Run("missing file falls back to defaults", func(t *testing.T) {
		cfg := LoadOrDefault("testdata/nonexistent.yaml", logger.Discard())
		cfg.ApplyWorkerDefaults()

		assert.Equal(t, DefaultPollInterval, cfg.Worker.PollInterval)
		assert.Equal(t, DefaultVideoTimeoutSeconds, cfg.Worker.VideoTimeoutSeconds)
		assert.Equal(t, DefaultChatTimeoutSeconds, cfg.Worker.Chat.TimeoutSeconds)
		assert.Equal(t, DefaultImageUploadDelayMs, cfg.Worker.Chat.ImageUploadDelayMs)
		assert.Equal(t, DefaultStuckGrace, cfg.Worker.StuckGrace)
		assert.NoError(t, cfg.ValidateWorkerConfig())
	})

	t.Run("unparseable file falls back to defaults", func(t *testing.T) {
		cfg := LoadOrDefault("testdata/malformed.yaml", logger.Discard())
		cfg.ApplyWorkerDefaults()

		assert.Equal(t, DefaultPollInterval, cfg.Worker.PollInterval)
		assert.Equal(t, "file", cfg.State.Backend)
	})

	t.Run("file values win over defaults", func(t *testing.T) {
		cfg := LoadOrDefault("testdata/valid_config.yaml", logger.Discard())
		cfg.ApplyWorkerDefaults()

		assert.Equal(t, 5*time.Second, cfg.Worker.PollInterval)
		assert.Equal(t, "https://grok.com/imagine", cfg.Browser.VideoURL)
	})
}

func TestApplyAPIDefaults(t *testing.T) {
	cfg := &Config{}
	cfg.ApplyAPIDefaults()

	assert.Equal(t, 8000, cfg.Server.Port)
	assert.Equal(t, "sqlite3", cfg.Database.Driver)
	assert.Equal(t, "http://localhost:8000", cfg.Jobs.PublicURL)
	assert.Equal(t, 7*24*time.Hour, cfg.Jobs.MaxVideoAge)
	assert.Equal(t, "local", cfg.Jobs.VideoStore.Backend)
	assert.NoError(t, cfg.ValidateAPIConfig())
}

func TestConfig_ValidateWorkerConfig(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(c *Config)
		errString string
	}{
		{
			name:   "defaults are valid",
			mutate: func(c *Config) {},
		},
		{
			name:      "invalid port",
			mutate:    func(c *Config) { c.Server.Port = 70000 },
			errString: "invalid server port",
		},
		{
			name:      "negative poll interval",
			mutate:    func(c *Config) { c.Worker.PollInterval = -time.Second },
			errString: "poll_interval",
		},
		{
			name:      "bad job source url",
			mutate:    func(c *Config) { c.JobSource.BaseURL = "not a url" },
			errString: "invalid job_source base_url",
		},
		{
			name:      "unknown state backend",
			mutate:    func(c *Config) { c.State.Backend = "etcd" },
			errString: "unsupported state backend",
		},
		{
			name: "rabbitmq enabled without host",
			mutate: func(c *Config) {
				c.RabbitMQ.Enabled = true
				c.RabbitMQ.Port = 5672
			},
			errString: "rabbitmq host is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{}
			cfg.ApplyWorkerDefaults()
			tt.mutate(cfg)

			err := cfg.ValidateWorkerConfig()
			if tt.errString == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errString)
		})
	}
}

func TestConfig_ValidateAPIConfig(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(c *Config)
		errString string
	}{
		{
			name:      "postgres without host",
			mutate:    func(c *Config) { c.Database.Driver = "postgres" },
			errString: "database host is required",
		},
		{
			name:      "unknown driver",
			mutate:    func(c *Config) { c.Database.Driver = "mysql" },
			errString: "unsupported database driver",
		},
		{
			name:      "s3 without bucket",
			mutate:    func(c *Config) { c.Jobs.VideoStore.Backend = "s3" },
			errString: "bucket is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{}
			cfg.ApplyAPIDefaults()
			tt.mutate(cfg)

			err := cfg.ValidateAPIConfig()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errString)
		})
	}
}
