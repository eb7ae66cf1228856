package app

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/user"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"

	"github.com/florianilch/claudine-auth/internal/coordinator"
	"github.com/florianilch/claudine-auth/internal/observability"
	"github.com/florianilch/claudine-auth/internal/tokenstore"
)

// LogFormat represents the logging output format.
type LogFormat string

const (
	LogFormatText LogFormat = "text"
	LogFormatJSON LogFormat = "json"
)

// CredentialStorageType represents the storage backends supported for session credentials.
type CredentialStorageType string

const (
	CredentialStorageTypeFile    CredentialStorageType = "file"
	CredentialStorageTypeKeyring CredentialStorageType = "keyring"
	CredentialStorageTypeRedis   CredentialStorageType = "redis"
	CredentialStorageTypeMemory  CredentialStorageType = "memory"
)

// Default configuration values
const (
	DefaultConfigLogFormat       = LogFormatText
	DefaultConfigServerHost      = "127.0.0.1"
	DefaultConfigServerPort      = 4100
	DefaultConfigShutdownTimeout = 5 * time.Second
	DefaultConfigUpstreamBaseURL = "http://127.0.0.1:4200/api"
	DefaultConfigUpstreamTimeout = 30 * time.Second
	DefaultConfigAuthStorage     = CredentialStorageTypeFile
	DefaultConfigAuthRedisKey    = "claudine-auth:credentials"
	DefaultConfigMockHost        = "127.0.0.1"
	DefaultConfigMockPort        = 4200
	DefaultConfigMockPassword    = "password"
	DefaultConfigTelemetryExport = observability.ExporterNone
)

// keyringService is the service name under which credentials are stored in the OS keyring.
const keyringService = "claudine-auth-credentials"

// ServerConfig holds proxy listener configuration.
type ServerConfig struct {
	Host string `json:"host" validate:"hostname_rfc1123|ip"`
	Port uint16 `json:"port"` // Port range 0-65535 handled by uint16 type
}

// ShutdownConfig holds shutdown behavior configuration.
type ShutdownConfig struct {
	// Timeout for graceful shutdown.
	Timeout time.Duration `json:"timeout"`
}

// UpstreamConfig holds admin API configuration.
type UpstreamConfig struct {
	BaseURL string        `json:"base_url" validate:"required,url"`
	Timeout time.Duration `json:"timeout" validate:"gte=0"`
}

// RedisConfig holds settings for the redis credential store.
type RedisConfig struct {
	Addr     string        `json:"addr"`
	Username string        `json:"username,omitempty"`
	Password string        `json:"password,omitempty"`
	DB       int           `json:"db" validate:"gte=0"`
	Key      string        `json:"key"`
	TTL      time.Duration `json:"ttl" validate:"gte=0"`
}

// AuthConfig describes where credentials are stored and where users log in.
type AuthConfig struct {
	Storage CredentialStorageType `json:"storage" validate:"required,oneof=file keyring redis memory"`

	// Storage-specific settings (mutually exclusive based on Storage type)
	File        string      `json:"file,omitempty"`         // For file storage: path to credentials file
	KeyringUser string      `json:"keyring_user,omitempty"` // For keyring storage: user identifier
	Redis       RedisConfig `json:"redis"`                  // For redis storage

	// LoginLocation is the login entry point users are sent to when the session ends.
	LoginLocation string `json:"login_location"`
	// HomeLocation is where users land after authenticating.
	HomeLocation string `json:"home_location"`
}

// RefreshConfig holds the refresh coordinator's policy.
type RefreshConfig struct {
	Cooldown     time.Duration `json:"cooldown" validate:"gte=0"`
	QueueTimeout time.Duration `json:"queue_timeout" validate:"gt=0"`
	MaxQueueSize int           `json:"max_queue_size" validate:"gt=0"`
	ExpiryBuffer time.Duration `json:"expiry_buffer" validate:"gte=0"`
	Timeout      time.Duration `json:"timeout" validate:"gt=0"`
}

// TelemetryConfig holds OpenTelemetry log export settings.
type TelemetryConfig struct {
	Exporter    observability.Exporter `json:"exporter" validate:"oneof=none stdout otlp-http otlp-grpc"`
	Endpoint    string                 `json:"endpoint,omitempty" validate:"omitempty,url"`
	ServiceName string                 `json:"service_name,omitempty"`
}

// MockConfig holds settings for the offline mock auth server.
type MockConfig struct {
	Host      string        `json:"host" validate:"hostname_rfc1123|ip"`
	Port      uint16        `json:"port"`
	Secret    string        `json:"secret,omitempty"`
	AccessTTL time.Duration `json:"access_ttl" validate:"gte=0"`
	// Password is shared by all seeded accounts.
	Password string `json:"password"`
}

// Config holds the application's configuration.
type Config struct {
	// LogLevel for logging output (defaults to Info if unset).
	LogLevel  slog.Level      `json:"log_level"`
	LogFormat LogFormat       `json:"log_format" validate:"oneof=text json"`
	Server    ServerConfig    `json:"server"`
	Shutdown  ShutdownConfig  `json:"shutdown"`
	Upstream  UpstreamConfig  `json:"upstream"`
	Auth      AuthConfig      `json:"auth"`
	Refresh   RefreshConfig   `json:"refresh"`
	Telemetry TelemetryConfig `json:"telemetry"`
	Mock      MockConfig      `json:"mock"`
}

// Default creates a new Config with default values applied.
func Default() (*Config, error) {
	cfg := &Config{}
	if err := cfg.ApplyDefaults(); err != nil {
		return nil, fmt.Errorf("failed to apply defaults: %w", err)
	}
	return cfg, nil
}

// ApplyDefaults fills unset config fields with sensible defaults.
func (c *Config) ApplyDefaults() error {
	if c.LogFormat == "" {
		c.LogFormat = DefaultConfigLogFormat
	}
	if c.Server.Host == "" {
		c.Server.Host = DefaultConfigServerHost
	}
	if c.Server.Port == 0 {
		c.Server.Port = DefaultConfigServerPort
	}
	if c.Shutdown.Timeout == 0 {
		c.Shutdown.Timeout = DefaultConfigShutdownTimeout
	}
	if c.Upstream.BaseURL == "" {
		c.Upstream.BaseURL = DefaultConfigUpstreamBaseURL
	}
	if c.Upstream.Timeout == 0 {
		c.Upstream.Timeout = DefaultConfigUpstreamTimeout
	}
	if c.Auth.Storage == "" {
		c.Auth.Storage = DefaultConfigAuthStorage
	}
	if c.Auth.LoginLocation == "" {
		c.Auth.LoginLocation = coordinator.DefaultLoginLocation
	}
	if c.Auth.HomeLocation == "" {
		c.Auth.HomeLocation = coordinator.DefaultHomeLocation
	}
	if c.Refresh.Cooldown == 0 {
		c.Refresh.Cooldown = coordinator.DefaultCooldown
	}
	if c.Refresh.QueueTimeout == 0 {
		c.Refresh.QueueTimeout = coordinator.DefaultQueueTimeout
	}
	if c.Refresh.MaxQueueSize == 0 {
		c.Refresh.MaxQueueSize = coordinator.DefaultMaxQueueSize
	}
	if c.Refresh.ExpiryBuffer == 0 {
		c.Refresh.ExpiryBuffer = coordinator.DefaultExpiryBuffer
	}
	if c.Refresh.Timeout == 0 {
		c.Refresh.Timeout = coordinator.DefaultRefreshTimeout
	}
	if c.Telemetry.Exporter == "" {
		c.Telemetry.Exporter = DefaultConfigTelemetryExport
	}
	if c.Mock.Host == "" {
		c.Mock.Host = DefaultConfigMockHost
	}
	if c.Mock.Port == 0 {
		c.Mock.Port = DefaultConfigMockPort
	}
	if c.Mock.Password == "" {
		c.Mock.Password = DefaultConfigMockPassword
	}

	// Dynamic defaults based on storage type
	switch c.Auth.Storage {
	case CredentialStorageTypeFile:
		if c.Auth.File == "" {
			configDir, err := os.UserConfigDir()
			if err != nil {
				return fmt.Errorf("auth.file required (auto-detect failed: %w)", err)
			}
			c.Auth.File = filepath.Join(configDir, "claudine-auth", "credentials.json")
		}
	case CredentialStorageTypeKeyring:
		if c.Auth.KeyringUser == "" {
			currentUser, err := user.Current()
			if err != nil {
				return fmt.Errorf("auth.keyring_user required (auto-detect failed: %w)", err)
			}
			c.Auth.KeyringUser = currentUser.Username
		}
	case CredentialStorageTypeRedis:
		if c.Auth.Redis.Key == "" {
			c.Auth.Redis.Key = DefaultConfigAuthRedisKey
		}
	case CredentialStorageTypeMemory:
		// nothing to configure
	}

	return nil
}

// Validate validates the configuration using struct tags and enum values.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return err
	}

	switch c.Auth.Storage {
	case CredentialStorageTypeFile:
		if c.Auth.File == "" {
			return errors.New("file path required for file storage")
		}
	case CredentialStorageTypeKeyring:
		if c.Auth.KeyringUser == "" {
			return errors.New("keyring_user required for keyring storage")
		}
	case CredentialStorageTypeRedis:
		if c.Auth.Redis.Addr == "" {
			return errors.New("auth.redis.addr required for redis storage")
		}
		if c.Auth.Redis.Key == "" {
			return errors.New("auth.redis.key required for redis storage")
		}
	}

	if c.Auth.LoginLocation == c.Auth.HomeLocation {
		return errors.New("auth.login_location and auth.home_location must differ")
	}

	return nil
}

// NewCredentialStore creates a CredentialStore from the authentication configuration.
func (a *AuthConfig) NewCredentialStore() (tokenstore.CredentialStore, error) {
	switch a.Storage {
	case CredentialStorageTypeFile:
		return tokenstore.NewFileStore(a.File)
	case CredentialStorageTypeKeyring:
		return tokenstore.NewKeyringStore(keyringService, a.KeyringUser)
	case CredentialStorageTypeRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     a.Redis.Addr,
			Username: a.Redis.Username,
			Password: a.Redis.Password,
			DB:       a.Redis.DB,
		})
		return tokenstore.NewRedisStore(client, a.Redis.Key, a.Redis.TTL)
	case CredentialStorageTypeMemory:
		return tokenstore.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", a.Storage)
	}
}

// CoordinatorOptions translates the refresh policy into coordinator options.
func (r *RefreshConfig) CoordinatorOptions() []coordinator.Option {
	return []coordinator.Option{
		coordinator.WithCooldown(r.Cooldown),
		coordinator.WithQueueTimeout(r.QueueTimeout),
		coordinator.WithMaxQueueSize(r.MaxQueueSize),
		coordinator.WithExpiryBuffer(r.ExpiryBuffer),
		coordinator.WithRefreshTimeout(r.Timeout),
	}
}
