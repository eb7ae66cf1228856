package app

import (
	"strings"
	"testing"
	"time"

	"github.com/florianilch/claudine-auth/internal/coordinator"
	"github.com/florianilch/claudine-auth/internal/tokenstore"
)

func TestDefault(t *testing.T) {
	cfg, err := Default()
	if err != nil {
		t.Fatalf("Default: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}

	if cfg.Refresh.Cooldown != coordinator.DefaultCooldown ||
		cfg.Refresh.QueueTimeout != coordinator.DefaultQueueTimeout ||
		cfg.Refresh.MaxQueueSize != coordinator.DefaultMaxQueueSize ||
		cfg.Refresh.ExpiryBuffer != 300*time.Second {
		t.Errorf("unexpected refresh defaults: %+v", cfg.Refresh)
	}
	if !strings.HasSuffix(cfg.Auth.File, "credentials.json") {
		t.Errorf("auth.file = %q", cfg.Auth.File)
	}
	if cfg.Auth.LoginLocation != "/login" {
		t.Errorf("auth.login_location = %q", cfg.Auth.LoginLocation)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{
			name:   "memory storage",
			mutate: func(c *Config) { c.Auth.Storage = CredentialStorageTypeMemory },
		},
		{
			name:    "unknown storage",
			mutate:  func(c *Config) { c.Auth.Storage = "s3" },
			wantErr: "Storage",
		},
		{
			name: "redis without addr",
			mutate: func(c *Config) {
				c.Auth.Storage = CredentialStorageTypeRedis
				c.Auth.Redis.Key = DefaultConfigAuthRedisKey
			},
			wantErr: "auth.redis.addr",
		},
		{
			name:    "bad upstream",
			mutate:  func(c *Config) { c.Upstream.BaseURL = "not a url" },
			wantErr: "BaseURL",
		},
		{
			name:    "zero queue size",
			mutate:  func(c *Config) { c.Refresh.MaxQueueSize = -1 },
			wantErr: "MaxQueueSize",
		},
		{
			name:    "unknown exporter",
			mutate:  func(c *Config) { c.Telemetry.Exporter = "zipkin" },
			wantErr: "Exporter",
		},
		{
			name:    "login equals home",
			mutate:  func(c *Config) { c.Auth.HomeLocation = c.Auth.LoginLocation },
			wantErr: "must differ",
		},
		{
			name:    "bad log format",
			mutate:  func(c *Config) { c.LogFormat = "xml" },
			wantErr: "LogFormat",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Default()
			if err != nil {
				t.Fatalf("Default: %v", err)
			}
			tt.mutate(cfg)
			err = cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("Validate: got %v, want error containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestNewCredentialStore(t *testing.T) {
	tests := []struct {
		name string
		cfg  AuthConfig
		want string
	}{
		{"file", AuthConfig{Storage: CredentialStorageTypeFile, File: t.TempDir() + "/creds"}, "*tokenstore.FileStore"},
		{"keyring", AuthConfig{Storage: CredentialStorageTypeKeyring, KeyringUser: "ops"}, "*tokenstore.KeyringStore"},
		{"redis", AuthConfig{Storage: CredentialStorageTypeRedis, Redis: RedisConfig{Addr: "127.0.0.1:6379", Key: "k"}}, "*tokenstore.RedisStore"},
		{"memory", AuthConfig{Storage: CredentialStorageTypeMemory}, "*tokenstore.MemoryStore"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, err := tt.cfg.NewCredentialStore()
			if err != nil {
				t.Fatalf("NewCredentialStore: %v", err)
			}
			if got := typeName(store); got != tt.want {
				t.Fatalf("store type = %s, want %s", got, tt.want)
			}
		})
	}

	if _, err := (&AuthConfig{Storage: "s3"}).NewCredentialStore(); err == nil {
		t.Fatal("expected error for unknown storage")
	}
}

func typeName(v any) string {
	switch v.(type) {
	case *tokenstore.FileStore:
		return "*tokenstore.FileStore"
	case *tokenstore.KeyringStore:
		return "*tokenstore.KeyringStore"
	case *tokenstore.RedisStore:
		return "*tokenstore.RedisStore"
	case *tokenstore.MemoryStore:
		return "*tokenstore.MemoryStore"
	default:
		return "unknown"
	}
}
