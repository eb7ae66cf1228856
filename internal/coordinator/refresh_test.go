package coordinator

import (
	"context"
	"errors"
	"path/filepath"
	"slices"
	"testing"
	"time"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/florianilch/claudine-auth/internal/tokenstore"
)

func TestRefreshTimeoutClearsFileCredentials(t *testing.T) {
	clock := newFakeClock()
	api := newFakeAPI(t, clock)
	api.release = make(chan struct{})
	defer close(api.release)

	store, err := tokenstore.NewFileStore(filepath.Join(t.TempDir(), "credentials.json"))
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	c, err := New(api, store, WithClock(clock.Now), WithRefreshTimeout(20*time.Millisecond))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx := context.Background()
	if _, err := c.Login(ctx, "ops@example.com", "secret"); err != nil {
		t.Fatalf("Login: %v", err)
	}

	_, err = c.RefreshToken(ctx)
	var refreshErr *RefreshError
	if !errors.As(err, &refreshErr) || !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("got %v, want *RefreshError wrapping context.DeadlineExceeded", err)
	}
	if _, err := store.Load(ctx); !errors.Is(err, tokenstore.ErrNotFound) {
		t.Fatalf("credentials survived a timed out refresh: %v", err)
	}
}

func TestRefreshCompletingPastDeadlineIsPersisted(t *testing.T) {
	h := newHarness(t, WithRefreshTimeout(20*time.Millisecond))
	h.login(t)
	// The API answers after the deadline without observing it.
	h.api.delay = 60 * time.Millisecond

	token, err := h.c.RefreshToken(context.Background())
	if err != nil {
		t.Fatalf("RefreshToken: %v", err)
	}

	creds, err := h.store.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if creds.AccessToken != token.AccessToken || creds.RefreshToken != "refresh-1" {
		t.Fatalf("rotated credentials not stored: refresh token %q", creds.RefreshToken)
	}
}

func TestValidateSessionOutlivesInitiatorCancel(t *testing.T) {
	h := newHarness(t)
	h.login(t)
	h.api.identityStarted = make(chan struct{}, 2)
	h.api.identityRelease = make(chan struct{})

	ctx, cancel := context.WithCancel(context.Background())
	first := make(chan bool, 1)
	go func() { first <- h.c.ValidateSession(ctx) }()
	<-h.api.identityStarted

	second := make(chan bool, 1)
	go func() { second <- h.c.ValidateSession(context.Background()) }()
	// Give the second caller time to attach to the round-trip in flight.
	time.Sleep(20 * time.Millisecond)

	cancel()
	close(h.api.identityRelease)

	if !<-second {
		t.Fatal("second caller lost the shared round-trip to the first caller's cancellation")
	}
	<-first
	if calls := h.api.identityCalls(); calls != 1 {
		t.Fatalf("identity calls = %d, want 1", calls)
	}
}

func TestRefreshTokenQueueFullWhileIdle(t *testing.T) {
	h := newHarness(t)
	h.login(t)

	now := h.clock.Now()
	h.c.mu.Lock()
	for range DefaultMaxQueueSize {
		h.c.waiters = append(h.c.waiters, &waiter{done: make(chan struct{}), enqueuedAt: now})
	}
	h.c.mu.Unlock()

	if _, err := h.c.RefreshToken(context.Background()); !errors.Is(err, ErrQueueFull) {
		t.Fatalf("got %v, want ErrQueueFull", err)
	}
	if calls := h.api.calls(); calls != 0 {
		t.Fatalf("refresh calls = %d, want 0", calls)
	}

	// Aged-out waiters are purged before the capacity check.
	h.clock.Advance(DefaultQueueTimeout)
	if _, err := h.c.RefreshToken(context.Background()); err != nil {
		t.Fatalf("RefreshToken after purge: %v", err)
	}
}

func TestSpans(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	h := newHarness(t, WithTracerProvider(tp))
	h.login(t)

	ctx := context.Background()
	if !h.c.ValidateSession(ctx) {
		t.Fatal("ValidateSession false after login")
	}
	if _, err := h.c.RefreshToken(ctx); err != nil {
		t.Fatalf("RefreshToken: %v", err)
	}

	names := func() []string {
		var out []string
		for _, s := range recorder.Ended() {
			out = append(out, s.Name())
		}
		return out
	}
	waitFor(t, "refresh span", func() bool { return slices.Contains(names(), "coordinator.refresh") })
	if !slices.Contains(names(), "coordinator.validate_session") {
		t.Fatalf("spans = %v, want coordinator.validate_session", names())
	}
}
