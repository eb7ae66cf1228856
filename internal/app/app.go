package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"

	"golang.org/x/sync/errgroup"

	"github.com/florianilch/claudine-auth/internal/authclient"
	"github.com/florianilch/claudine-auth/internal/coordinator"
	"github.com/florianilch/claudine-auth/internal/mockapi"
	"github.com/florianilch/claudine-auth/internal/proxy"
)

// service is a network server managed by App.
type service interface {
	Start(ctx context.Context, address string) (<-chan error, error)
	Shutdown(ctx context.Context) error
}

type namedService struct {
	name    string
	address string
	svc     service
}

// App orchestrates the lifecycle of the proxy server and related services.
type App struct {
	cfg      *Config
	services []namedService

	Coordinator *coordinator.Coordinator
}

// NewCoordinator builds the refresh coordinator and its collaborators from configuration.
// No I/O is performed.
func NewCoordinator(cfg *Config) (*coordinator.Coordinator, error) {
	store, err := cfg.Auth.NewCredentialStore()
	if err != nil {
		return nil, fmt.Errorf("failed to create credential store: %w", err)
	}

	client, err := authclient.New(cfg.Upstream.BaseURL, authclient.WithTimeout(cfg.Upstream.Timeout))
	if err != nil {
		return nil, fmt.Errorf("failed to create auth client: %w", err)
	}

	opts := append(cfg.Refresh.CoordinatorOptions(),
		coordinator.WithLoginLocation(cfg.Auth.LoginLocation),
		coordinator.WithHomeLocation(cfg.Auth.HomeLocation),
		coordinator.WithNotifier(logNotifier{}),
		coordinator.WithNavigator(newEntryPoint(cfg.Auth.HomeLocation)),
	)
	return coordinator.New(client, store, opts...)
}

// New creates an App serving the authenticating proxy.
func New(cfg *Config) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	coord, err := NewCoordinator(cfg)
	if err != nil {
		return nil, err
	}

	proxyServer, err := proxy.New(coord, cfg.Upstream.BaseURL, proxy.WithLoginLocation(cfg.Auth.LoginLocation))
	if err != nil {
		return nil, fmt.Errorf("failed to create proxy: %w", err)
	}

	return &App{
		cfg: cfg,
		services: []namedService{{
			name:    "proxy",
			address: hostPort(cfg.Server.Host, cfg.Server.Port),
			svc:     proxyServer,
		}},
		Coordinator: coord,
	}, nil
}

// NewMock creates an App serving the offline mock auth API.
func NewMock(cfg *Config) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	opts := []mockapi.Option{}
	if cfg.Mock.AccessTTL > 0 {
		opts = append(opts, mockapi.WithAccessTTL(cfg.Mock.AccessTTL))
	}
	secret := cfg.Mock.Secret
	if secret == "" {
		secret = "claudine-auth-mock-secret"
		slog.Warn("mock.secret not set, signing tokens with a built-in development key")
	}
	opts = append(opts, mockapi.WithSecret([]byte(secret)))

	mock, err := mockapi.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create mock server: %w", err)
	}
	if err := mock.SeedDefaults(cfg.Mock.Password); err != nil {
		return nil, fmt.Errorf("failed to seed mock accounts: %w", err)
	}

	return &App{
		cfg: cfg,
		services: []namedService{{
			name:    "mock",
			address: hostPort(cfg.Mock.Host, cfg.Mock.Port),
			svc:     mock,
		}},
	}, nil
}

// Start starts all services and blocks until shutdown is triggered.
// Uses errgroup for runtime error monitoring and shutdown function collection for coordinated cleanup.
func (a *App) Start(ctx context.Context) error {
	g, gCtx := errgroup.WithContext(ctx)

	var shutdownFuncs []func(context.Context) error
	var startErr error

	// Startup phase: Start services
	for _, s := range a.services {
		slog.InfoContext(gCtx, "starting service", "service", s.name, "address", s.address)
		errCh, err := s.svc.Start(gCtx, s.address)
		if err != nil {
			startErr = fmt.Errorf("%s startup failed: %w", s.name, err)
			break
		}
		shutdownFuncs = append(shutdownFuncs, s.svc.Shutdown)

		// Monitor runtime errors - errgroup cancels context on first error
		g.Go(func() error {
			select {
			case err := <-errCh:
				if err != nil {
					slog.ErrorContext(gCtx, "service runtime error", "service", s.name, "error", err)
					return fmt.Errorf("%s: %w", s.name, err)
				}
				return nil
			case <-gCtx.Done():
				return nil
			}
		})
	}

	var runtimeErr error
	if startErr == nil {
		slog.InfoContext(gCtx, "application ready")
		runtimeErr = g.Wait()
	}

	slog.InfoContext(gCtx, "shutting down services")

	// Shutdown phase: Stop all services
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.cfg.Shutdown.Timeout)
	defer cancel()

	var errs []error
	if startErr != nil {
		errs = append(errs, startErr)
	}
	if runtimeErr != nil {
		errs = append(errs, fmt.Errorf("runtime: %w", runtimeErr))
	}

	for i := len(shutdownFuncs) - 1; i >= 0; i-- {
		if err := shutdownFuncs[i](shutdownCtx); err != nil {
			slog.ErrorContext(shutdownCtx, "service shutdown failed", "error", err)
			errs = append(errs, err)
		}
	}

	if startErr != nil {
		// Unblock monitors of services that did start.
		_ = g.Wait()
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	slog.Info("application stopped")
	return nil
}

func hostPort(host string, port uint16) string {
	return net.JoinHostPort(host, strconv.FormatUint(uint64(port), 10))
}
