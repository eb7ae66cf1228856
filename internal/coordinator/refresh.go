package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/oauth2"

	"github.com/florianilch/claudine-auth/internal/session"
	"github.com/florianilch/claudine-auth/internal/tokenstore"
)

// call is one network refresh. Its fields are written once before done is closed.
type call struct {
	id    string
	done  chan struct{}
	token *oauth2.Token
	err   error
}

func (cl *call) wait(ctx context.Context) (*oauth2.Token, error) {
	select {
	case <-cl.done:
		return cl.token, cl.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// waiter is a caller parked until the current refresh settles.
// Whoever removes a waiter from the queue resolves it, exactly once.
type waiter struct {
	done       chan struct{}
	enqueuedAt time.Time
	token      *oauth2.Token
	err        error
}

func (w *waiter) resolve(token *oauth2.Token, err error) {
	w.token, w.err = token, err
	close(w.done)
}

// RefreshToken refreshes the access token, or joins the refresh already in flight.
//
// A new refresh is refused with ErrCooldownActive within the cooldown of the
// previous start, and with ErrQueueFull while the waiter queue is at capacity.
// A failed refresh clears the stored credentials and returns a *RefreshError.
func (c *Coordinator) RefreshToken(ctx context.Context) (*oauth2.Token, error) {
	c.mu.Lock()
	cl, joined, err := c.beginLocked(true)
	c.mu.Unlock()
	if err != nil {
		return nil, err
	}
	if joined {
		slog.DebugContext(ctx, "joined in-flight token refresh", "refresh_id", cl.id)
	}
	return cl.wait(ctx)
}

// QueueTokenRefresh parks the caller until the next refresh settles, starting
// one if none is in flight. The caller receives the outcome of the refresh it
// waited on.
func (c *Coordinator) QueueTokenRefresh(ctx context.Context) (*oauth2.Token, error) {
	c.mu.Lock()
	now := c.now()
	c.purgeLocked(now)
	if len(c.waiters) >= c.cfg.maxQueueSize {
		c.mu.Unlock()
		return nil, ErrQueueFull
	}

	w := &waiter{done: make(chan struct{}), enqueuedAt: now}
	c.waiters = append(c.waiters, w)

	if c.active == nil {
		// The enqueue above already enforced the queue capacity.
		if _, _, err := c.beginLocked(false); err != nil {
			c.removeLocked(w)
			c.mu.Unlock()
			return nil, err
		}
	}
	c.mu.Unlock()

	return c.await(ctx, w)
}

func (c *Coordinator) await(ctx context.Context, w *waiter) (*oauth2.Token, error) {
	timer := time.NewTimer(c.cfg.queueTimeout)
	defer timer.Stop()

	var reason error
	select {
	case <-w.done:
		return w.token, w.err
	case <-ctx.Done():
		reason = ctx.Err()
	case <-timer.C:
		reason = ErrQueueTimeout
	}

	c.mu.Lock()
	removed := c.removeLocked(w)
	c.mu.Unlock()
	if removed {
		return nil, reason
	}

	// Already dequeued by a drain or purge that is resolving it.
	<-w.done
	return w.token, w.err
}

// beginLocked applies the refresh guards and starts a refresh if they pass.
// c.mu must be held.
func (c *Coordinator) beginLocked(checkQueue bool) (*call, bool, error) {
	if c.active != nil {
		c.joined++
		return c.active, true, nil
	}

	now := c.now()
	if !c.lastRefreshAt.IsZero() && now.Sub(c.lastRefreshAt) < c.cfg.cooldown {
		return nil, false, ErrCooldownActive
	}

	c.purgeLocked(now)
	// Waiters normally drain with the refresh they joined, so this only trips
	// if the queue is left populated while idle.
	if checkQueue && len(c.waiters) >= c.cfg.maxQueueSize {
		return nil, false, ErrQueueFull
	}

	cl := &call{
		id:   uuid.NewString(),
		done: make(chan struct{}),
	}
	c.active = cl
	c.lastRefreshAt = now
	c.refreshes++

	go c.run(cl)

	return cl, false, nil
}

// run performs the network refresh, then settles the call and drains the queue.
// The refresh is detached from any caller so that one caller giving up does not
// abort it for the others.
func (c *Coordinator) run(cl *call) {
	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.refreshTimeout)
	defer cancel()

	ctx, span := c.tracer.Start(ctx, "coordinator.refresh")
	span.SetAttributes(attribute.String("refresh.id", cl.id))
	defer span.End()

	token, err := c.refresh(ctx, cl.id)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "refresh failed")
	}

	c.mu.Lock()
	cl.token, cl.err = token, err
	c.active = nil
	c.purgeLocked(c.now())
	drained := c.waiters
	c.waiters = nil
	c.mu.Unlock()

	close(cl.done)

	// Waiters enqueued after the unlock belong to the next refresh cycle.
	for _, w := range drained {
		if err != nil {
			w.resolve(nil, errors.Join(ErrNoTokenAvailable, err))
			continue
		}
		w.resolve(token, nil)
	}

	if len(drained) > 0 {
		slog.DebugContext(ctx, "drained token refresh queue", "refresh_id", cl.id, "waiters", len(drained))
	}
}

// refresh issues the single network refresh call and applies its outcome to the store.
func (c *Coordinator) refresh(ctx context.Context, id string) (*oauth2.Token, error) {
	previous, err := c.store.Load(ctx)
	if err != nil && !errors.Is(err, tokenstore.ErrNotFound) {
		slog.ErrorContext(ctx, "failed to read stored credentials", "refresh_id", id, "error", err)
	}
	// Only the network call is bounded by the refresh deadline. Clearing or
	// storing credentials must still happen once it has passed.
	settle := context.WithoutCancel(ctx)

	if previous == nil || previous.RefreshToken == "" {
		err := &RefreshError{Err: ErrNoRefreshToken}
		c.HandleAuthError(settle, err)
		return nil, err
	}

	slog.DebugContext(ctx, "refreshing access token", "refresh_id", id)
	grant, err := c.api.Refresh(ctx, previous.RefreshToken)
	if err != nil {
		refreshErr := &RefreshError{Err: err}
		slog.WarnContext(settle, "token refresh failed", "refresh_id", id, "error", err)
		c.HandleAuthError(settle, refreshErr)
		return nil, refreshErr
	}

	creds := grant.Credentials(c.now(), previous)
	c.persist(settle, creds)

	slog.InfoContext(settle, "access token refreshed", "refresh_id", id, "expiry", creds.Expiry)
	return creds.Token(), nil
}

// persist stores freshly issued credentials. A write failure is logged rather
// than returned: the access token is still valid, only the next refresh is at risk.
func (c *Coordinator) persist(ctx context.Context, creds *session.Credentials) {
	if err := c.store.Save(ctx, creds); err != nil {
		slog.ErrorContext(ctx, "failed to persist credentials", "error", err)
	}
	c.leaveLogin(ctx)
}

// leaveLogin sends the user home if they are parked at the login entry point.
func (c *Coordinator) leaveLogin(ctx context.Context) {
	if c.cfg.navigator != nil && c.cfg.navigator.Location() == c.cfg.loginLocation {
		c.cfg.navigator.Redirect(ctx, c.cfg.homeLocation)
	}
}

// purgeLocked drops waiters aged out of the queue. c.mu must be held.
func (c *Coordinator) purgeLocked(now time.Time) {
	c.waiters = slices.DeleteFunc(c.waiters, func(w *waiter) bool {
		if now.Sub(w.enqueuedAt) < c.cfg.queueTimeout {
			return false
		}
		w.resolve(nil, ErrQueueTimeout)
		return true
	})
}

// removeLocked dequeues w and reports whether it was still queued. c.mu must be held.
func (c *Coordinator) removeLocked(w *waiter) bool {
	i := slices.Index(c.waiters, w)
	if i < 0 {
		return false
	}
	c.waiters = slices.Delete(c.waiters, i, i+1)
	return true
}

// describe returns a short form of a refresh failure for user-facing messages.
func describe(err error) string {
	var refreshErr *RefreshError
	if errors.As(err, &refreshErr) {
		return "Your session has expired. Please sign in again."
	}
	return fmt.Sprintf("Authentication error: %v", err)
}
