package commands

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/urfave/cli/v3"
	"golang.org/x/term"

	"github.com/florianilch/claudine-auth/internal/app"
	"github.com/florianilch/claudine-auth/internal/coordinator"
	"github.com/florianilch/claudine-auth/internal/observability"
	"github.com/florianilch/claudine-auth/internal/tokenstore"
)

// Execute runs the root command with the given context and arguments.
func Execute(ctx context.Context, args []string) error {
	return rootCommand().Run(ctx, args)
}

func rootCommand() *cli.Command {
	return &cli.Command{
		Name:  "claudine-auth",
		Usage: "Admin API session ambassador with coordinated token refresh",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path to config file",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "log level (debug|info|warn|error)",
				Value: slog.LevelInfo.String(),
			},
			&cli.StringFlag{
				Name:  "log-format",
				Usage: "log format (text|json)",
				Value: string(app.DefaultConfigLogFormat),
			},
		},
		Commands: []*cli.Command{
			proxyStartCommand(),
			loginCommand(),
			logoutCommand(),
			statusCommand(),
			refreshCommand(),
			mockServerCommand(),
		},
	}
}

// sessionFlags are shared by every command that touches stored credentials.
func sessionFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:  "upstream--base-url",
			Usage: "admin API base URL",
			Value: app.DefaultConfigUpstreamBaseURL,
		},
		&cli.StringFlag{
			Name:  "auth--storage",
			Usage: "credential storage (file|keyring|redis|memory)",
			Value: string(app.DefaultConfigAuthStorage),
		},
		&cli.StringFlag{
			Name:  "auth--file",
			Usage: "credentials file for file storage",
		},
		&cli.StringFlag{
			Name:  "auth--redis--addr",
			Usage: "redis address for redis storage",
		},
	}
}

func proxyStartCommand() *cli.Command {
	return &cli.Command{
		Name:  "start",
		Usage: "serve the authenticating reverse proxy",
		Flags: append(sessionFlags(),
			&cli.StringFlag{
				Name:  "server--host",
				Usage: "server host",
				Value: app.DefaultConfigServerHost,
			},
			&cli.IntFlag{
				Name:  "server--port",
				Usage: "server port",
				Value: int(app.DefaultConfigServerPort),
			},
			&cli.DurationFlag{
				Name:  "refresh--cooldown",
				Usage: "minimum interval between two token refreshes",
				Value: coordinator.DefaultCooldown,
			},
		),
		Action: proxyStartAction,
	}
}

func proxyStartAction(ctx context.Context, cmd *cli.Command) error {
	cfg, shutdown, err := setup(ctx, cmd)
	if err != nil {
		return err
	}
	defer flush(shutdown)

	application, err := app.New(cfg)
	if err != nil {
		return fmt.Errorf("failed to create app: %w", err)
	}

	slog.InfoContext(ctx, "starting")

	if err := application.Start(ctx); err != nil {
		return fmt.Errorf("app failed to start: %w", err)
	}

	slog.InfoContext(ctx, "stopped gracefully")
	return nil
}

func loginCommand() *cli.Command {
	return &cli.Command{
		Name:  "login",
		Usage: "sign in and store the session credentials",
		Flags: append(sessionFlags(),
			&cli.StringFlag{
				Name:     "email",
				Usage:    "account email",
				Required: true,
			},
			&cli.StringFlag{
				Name:  "password",
				Usage: "account password (prompted when omitted)",
			},
		),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, shutdown, err := setup(ctx, cmd)
			if err != nil {
				return err
			}
			defer flush(shutdown)

			coord, err := app.NewCoordinator(cfg)
			if err != nil {
				return err
			}

			password := cmd.String("password")
			if password == "" {
				if password, err = readPassword(cmd.Root().Writer, os.Stdin); err != nil {
					return fmt.Errorf("reading password: %w", err)
				}
			}

			user, err := coord.Login(ctx, cmd.String("email"), password)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.Root().Writer, "Logged in as %s (%s)\n", user.Name, user.Role)
			return nil
		},
	}
}

func logoutCommand() *cli.Command {
	return &cli.Command{
		Name:  "logout",
		Usage: "remove the stored session credentials",
		Flags: sessionFlags(),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, shutdown, err := setup(ctx, cmd)
			if err != nil {
				return err
			}
			defer flush(shutdown)

			coord, err := app.NewCoordinator(cfg)
			if err != nil {
				return err
			}
			if err := coord.Logout(ctx); err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cmd.Root().Writer, "Logged out")
			return nil
		},
	}
}

func statusCommand() *cli.Command {
	return &cli.Command{
		Name:  "status",
		Usage: "check whether the stored session is still accepted",
		Flags: sessionFlags(),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, shutdown, err := setup(ctx, cmd)
			if err != nil {
				return err
			}
			defer flush(shutdown)

			coord, err := app.NewCoordinator(cfg)
			if err != nil {
				return err
			}

			w := cmd.Root().Writer
			if !coord.ValidateSession(ctx) {
				_, _ = fmt.Fprintln(w, "Not authenticated")
				return cli.Exit("", 1)
			}

			user, err := coord.CurrentUser(ctx)
			if errors.Is(err, tokenstore.ErrNotFound) {
				_, _ = fmt.Fprintln(w, "Authenticated")
				return nil
			}
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(w, "Authenticated as %s <%s> (%s)\n", user.Name, user.Email, user.Role)
			return nil
		},
	}
}

func refreshCommand() *cli.Command {
	return &cli.Command{
		Name:  "refresh",
		Usage: "refresh the stored access token now",
		Flags: sessionFlags(),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, shutdown, err := setup(ctx, cmd)
			if err != nil {
				return err
			}
			defer flush(shutdown)

			coord, err := app.NewCoordinator(cfg)
			if err != nil {
				return err
			}

			token, err := coord.RefreshToken(ctx)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.Root().Writer, "Access token refreshed, valid until %s\n", token.Expiry.Format(time.RFC3339))
			return nil
		},
	}
}

func mockServerCommand() *cli.Command {
	return &cli.Command{
		Name:  "mock-server",
		Usage: "serve an offline admin auth API with seeded accounts",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "mock--host",
				Usage: "mock server host",
				Value: app.DefaultConfigMockHost,
			},
			&cli.IntFlag{
				Name:  "mock--port",
				Usage: "mock server port",
				Value: int(app.DefaultConfigMockPort),
			},
			&cli.DurationFlag{
				Name:  "mock--access-ttl",
				Usage: "lifetime of issued access tokens",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, shutdown, err := setup(ctx, cmd)
			if err != nil {
				return err
			}
			defer flush(shutdown)

			application, err := app.NewMock(cfg)
			if err != nil {
				return fmt.Errorf("failed to create mock server: %w", err)
			}
			return application.Start(ctx)
		},
	}
}

// setup loads configuration and installs logging for a command.
func setup(ctx context.Context, cmd *cli.Command) (*app.Config, observability.ShutdownFunc, error) {
	cfg, err := loadConfig(cmd.String("config"), cmd, os.Environ)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	// Set up observability before creating app
	shutdown, err := observability.Instrument(ctx, observability.Options{
		Level:       cfg.LogLevel,
		Format:      string(cfg.LogFormat),
		Exporter:    cfg.Telemetry.Exporter,
		Endpoint:    cfg.Telemetry.Endpoint,
		ServiceName: cfg.Telemetry.ServiceName,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to set up observability layer: %w", err)
	}

	return cfg, shutdown, nil
}

func flush(shutdown observability.ShutdownFunc) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := shutdown(ctx); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "failed to flush telemetry: %v\n", err)
	}
}

// readPassword prompts on a terminal without echo, and reads one line otherwise.
func readPassword(prompt io.Writer, in *os.File) (string, error) {
	fd := int(in.Fd())
	if term.IsTerminal(fd) {
		_, _ = fmt.Fprint(prompt, "Password: ")
		b, err := term.ReadPassword(fd)
		_, _ = fmt.Fprintln(prompt)
		if err != nil {
			return "", err
		}
		return string(b), nil
	}

	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	password := strings.TrimRight(line, "\r\n")
	if password == "" {
		return "", errors.New("empty password")
	}
	return password, nil
}
