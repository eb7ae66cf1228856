package app

import (
	"context"
	"log/slog"
	"sync"

	"github.com/florianilch/claudine-auth/internal/coordinator"
)

// logNotifier surfaces user-visible messages as warning logs.
type logNotifier struct{}

var _ coordinator.Notifier = logNotifier{}

func (logNotifier) Notify(ctx context.Context, message string) {
	slog.WarnContext(ctx, message, "notification", true)
}

// entryPoint tracks which entry point the user was last sent to.
// A headless ambassador has no browser to navigate, so a redirect is recorded
// and logged once, and the proxy reports the login location to its clients.
type entryPoint struct {
	mu       sync.Mutex
	location string
}

var _ coordinator.Navigator = (*entryPoint)(nil)

func newEntryPoint(initial string) *entryPoint {
	return &entryPoint{location: initial}
}

func (e *entryPoint) Location() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.location
}

func (e *entryPoint) Redirect(ctx context.Context, target string) {
	e.mu.Lock()
	e.location = target
	e.mu.Unlock()
	slog.InfoContext(ctx, "redirecting", "location", target)
}
