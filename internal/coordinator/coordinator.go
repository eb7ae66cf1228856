package coordinator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"

	"github.com/florianilch/claudine-auth/internal/session"
	"github.com/florianilch/claudine-auth/internal/tokenstore"
)

// Default refresh policy values.
const (
	DefaultCooldown       = 5 * time.Second
	DefaultQueueTimeout   = 30 * time.Second
	DefaultMaxQueueSize   = 10
	DefaultRefreshTimeout = 30 * time.Second
	DefaultLoginLocation  = "/login"
	DefaultHomeLocation   = "/"
)

const tracerName = "github.com/florianilch/claudine-auth/internal/coordinator"

// AuthAPI is the remote side of the session: the login, refresh and identity endpoints.
type AuthAPI interface {
	Login(ctx context.Context, email, password string) (*session.Grant, error)
	Refresh(ctx context.Context, refreshToken string) (*session.Grant, error)
	CurrentUser(ctx context.Context, accessToken string) (*session.User, error)
}

// Notifier shows a message to the user. Calls are not awaited.
type Notifier interface {
	Notify(ctx context.Context, message string)
}

// Navigator moves the user between entry points.
type Navigator interface {
	// Location returns the entry point the user is currently at.
	Location() string
	// Redirect sends the user to target.
	Redirect(ctx context.Context, target string)
}

// Option configures a Coordinator.
type Option func(*config)

type config struct {
	cooldown       time.Duration
	queueTimeout   time.Duration
	maxQueueSize   int
	expiryBuffer   time.Duration
	refreshTimeout time.Duration
	loginLocation  string
	homeLocation   string
	now            func() time.Time
	notifier       Notifier
	navigator      Navigator
	tracerProvider trace.TracerProvider
}

// WithCooldown sets the minimum interval between two refresh starts.
func WithCooldown(d time.Duration) Option {
	return func(c *config) { c.cooldown = d }
}

// WithQueueTimeout sets how long a waiter may stay queued.
func WithQueueTimeout(d time.Duration) Option {
	return func(c *config) { c.queueTimeout = d }
}

// WithMaxQueueSize sets the waiter queue capacity.
func WithMaxQueueSize(n int) Option {
	return func(c *config) { c.maxQueueSize = n }
}

// WithExpiryBuffer sets how early before exp a token counts as expired.
func WithExpiryBuffer(d time.Duration) Option {
	return func(c *config) { c.expiryBuffer = d }
}

// WithRefreshTimeout bounds the network refresh call.
func WithRefreshTimeout(d time.Duration) Option {
	return func(c *config) { c.refreshTimeout = d }
}

// WithLoginLocation sets the login entry point used by HandleAuthError.
func WithLoginLocation(location string) Option {
	return func(c *config) { c.loginLocation = location }
}

// WithHomeLocation sets where the user is sent after authenticating from the login entry point.
func WithHomeLocation(location string) Option {
	return func(c *config) { c.homeLocation = location }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *config) { c.now = now }
}

// WithNotifier sets the sink for user-visible messages.
func WithNotifier(n Notifier) Option {
	return func(c *config) { c.notifier = n }
}

// WithNavigator sets the navigator used to force re-authentication.
func WithNavigator(n Navigator) Option {
	return func(c *config) { c.navigator = n }
}

// WithTracerProvider sets the provider for refresh and validation spans.
// The global otel provider is used otherwise.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(c *config) { c.tracerProvider = tp }
}

// Stats is a snapshot of the refresh state.
type Stats struct {
	Refreshing    bool
	Pending       int
	LastRefreshAt time.Time
	// Refreshes counts network refresh calls started.
	Refreshes uint64
	// Joined counts RefreshToken calls that attached to an in-flight refresh.
	Joined uint64
}

// Coordinator owns a session's credentials and serializes their refresh.
type Coordinator struct {
	api    AuthAPI
	store  tokenstore.CredentialStore
	cfg    config
	now    func() time.Time
	tracer trace.Tracer

	identity singleflight.Group

	mu            sync.Mutex
	active        *call
	lastRefreshAt time.Time
	waiters       []*waiter
	refreshes     uint64
	joined        uint64
}

// Compile-time check to ensure Coordinator implements oauth2.TokenSource
var _ oauth2.TokenSource = (*Coordinator)(nil)

// New creates a Coordinator. No I/O is performed.
func New(api AuthAPI, store tokenstore.CredentialStore, opts ...Option) (*Coordinator, error) {
	if api == nil {
		return nil, errors.New("missing auth API")
	}
	if store == nil {
		return nil, errors.New("missing credential store")
	}

	cfg := config{
		cooldown:       DefaultCooldown,
		queueTimeout:   DefaultQueueTimeout,
		maxQueueSize:   DefaultMaxQueueSize,
		expiryBuffer:   DefaultExpiryBuffer,
		refreshTimeout: DefaultRefreshTimeout,
		loginLocation:  DefaultLoginLocation,
		homeLocation:   DefaultHomeLocation,
		now:            time.Now,
		tracerProvider: otel.GetTracerProvider(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	switch {
	case cfg.cooldown < 0:
		return nil, fmt.Errorf("invalid cooldown %v", cfg.cooldown)
	case cfg.queueTimeout <= 0:
		return nil, fmt.Errorf("invalid queue timeout %v", cfg.queueTimeout)
	case cfg.maxQueueSize <= 0:
		return nil, fmt.Errorf("invalid max queue size %d", cfg.maxQueueSize)
	case cfg.expiryBuffer < 0:
		return nil, fmt.Errorf("invalid expiry buffer %v", cfg.expiryBuffer)
	case cfg.refreshTimeout <= 0:
		return nil, fmt.Errorf("invalid refresh timeout %v", cfg.refreshTimeout)
	case cfg.now == nil:
		return nil, errors.New("missing clock")
	case cfg.tracerProvider == nil:
		return nil, errors.New("missing tracer provider")
	}

	return &Coordinator{
		api:    api,
		store:  store,
		cfg:    cfg,
		now:    cfg.now,
		tracer: cfg.tracerProvider.Tracer(tracerName),
	}, nil
}

// Stats returns a snapshot of the refresh state.
func (c *Coordinator) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{
		Refreshing:    c.active != nil,
		Pending:       len(c.waiters),
		LastRefreshAt: c.lastRefreshAt,
		Refreshes:     c.refreshes,
		Joined:        c.joined,
	}
}
