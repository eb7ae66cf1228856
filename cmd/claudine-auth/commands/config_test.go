package commands

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/florianilch/claudine-auth/internal/app"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func environ(vars ...string) func() []string {
	return func() []string { return vars }
}

const fileConfig = `
[auth]
storage = "memory"

[refresh]
cooldown = "2s"
max_queue_size = 4

[upstream]
base_url = "http://file.example/api"
`

func TestLoadConfigPrecedence(t *testing.T) {
	path := writeConfig(t, fileConfig)

	t.Run("file only", func(t *testing.T) {
		cfg, err := loadConfig(path, nil, environ())
		if err != nil {
			t.Fatalf("loadConfig: %v", err)
		}
		if cfg.Refresh.Cooldown != 2*time.Second || cfg.Refresh.MaxQueueSize != 4 {
			t.Errorf("refresh = %+v", cfg.Refresh)
		}
		if cfg.Auth.Storage != app.CredentialStorageTypeMemory {
			t.Errorf("auth.storage = %q", cfg.Auth.Storage)
		}
		if cfg.Refresh.QueueTimeout != 30*time.Second {
			t.Errorf("default queue timeout not applied: %v", cfg.Refresh.QueueTimeout)
		}
	})

	t.Run("env overrides file", func(t *testing.T) {
		cfg, err := loadConfig(path, nil, environ(
			"CLAUDINE_AUTH_REFRESH__COOLDOWN=7s",
			"CLAUDINE_AUTH_UPSTREAM__BASE_URL=http://env.example/api",
			"UNRELATED=1",
		))
		if err != nil {
			t.Fatalf("loadConfig: %v", err)
		}
		if cfg.Refresh.Cooldown != 7*time.Second {
			t.Errorf("refresh.cooldown = %v", cfg.Refresh.Cooldown)
		}
		if cfg.Upstream.BaseURL != "http://env.example/api" {
			t.Errorf("upstream.base_url = %q", cfg.Upstream.BaseURL)
		}
		if cfg.Refresh.MaxQueueSize != 4 {
			t.Errorf("file value lost: %d", cfg.Refresh.MaxQueueSize)
		}
	})

	t.Run("flags override env", func(t *testing.T) {
		var got *app.Config
		cmd := &cli.Command{
			Name: "test",
			Flags: append(sessionFlags(),
				&cli.StringFlag{Name: "config"},
				&cli.StringFlag{Name: "email"},
			),
			Action: func(ctx context.Context, cmd *cli.Command) error {
				cfg, err := loadConfig(cmd.String("config"), cmd, environ(
					"CLAUDINE_AUTH_UPSTREAM__BASE_URL=http://env.example/api",
				))
				got = cfg
				return err
			},
		}
		err := cmd.Run(context.Background(), []string{
			"test",
			"--config", path,
			"--email", "admin@example.com",
			"--upstream--base-url", "http://flag.example/api",
		})
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
		if got.Upstream.BaseURL != "http://flag.example/api" {
			t.Errorf("upstream.base_url = %q", got.Upstream.BaseURL)
		}
		// Unset flags keep the file's value rather than the flag default.
		if got.Auth.Storage != app.CredentialStorageTypeMemory {
			t.Errorf("auth.storage = %q", got.Auth.Storage)
		}
	})
}

func TestLoadConfigInvalid(t *testing.T) {
	path := writeConfig(t, "[refresh]\nmax_queue_size = -3\n")
	if _, err := loadConfig(path, nil, environ()); err == nil {
		t.Fatal("expected validation error")
	}

	if _, err := loadConfig(filepath.Join(t.TempDir(), "missing.toml"), nil, environ()); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestExtractAndTransformFlags(t *testing.T) {
	var got map[string]any
	cmd := &cli.Command{
		Name: "test",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "log-level", Value: "info"},
			&cli.StringFlag{Name: "auth--redis--addr"},
			&cli.StringFlag{Name: "password"},
			&cli.IntFlag{Name: "server--port", Value: 4100},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			got = extractAndTransformFlags(cmd)
			return nil
		},
	}
	err := cmd.Run(context.Background(), []string{
		"test", "--log-level", "debug", "--auth--redis--addr", "127.0.0.1:6379", "--password", "secret",
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if got["log_level"] != "debug" {
		t.Errorf("log_level = %v", got["log_level"])
	}
	if got["auth.redis.addr"] != "127.0.0.1:6379" {
		t.Errorf("auth.redis.addr = %v", got["auth.redis.addr"])
	}
	if _, ok := got["password"]; ok {
		t.Error("password flag leaked into config")
	}
	if _, ok := got["server.port"]; ok {
		t.Error("unset flag leaked into config")
	}
}

func TestLoadConfigPathFromEnv(t *testing.T) {
	path := writeConfig(t, fileConfig)

	cfg, err := loadConfig("", nil, environ(configPathEnv+"="+path))
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if cfg.Upstream.BaseURL != "http://file.example/api" {
		t.Errorf("upstream.base_url = %q, config file not loaded", cfg.Upstream.BaseURL)
	}
}
