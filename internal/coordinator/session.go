package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/oauth2"

	"github.com/florianilch/claudine-auth/internal/session"
	"github.com/florianilch/claudine-auth/internal/tokenstore"
)

// Token returns the stored access token while it is outside the expiry buffer,
// and queues for a refresh otherwise.
//
// oauth2.TokenSource.Token() has no context parameter (legacy interface limitation),
// so the queue wait is bounded by the queue timeout only.
func (c *Coordinator) Token() (*oauth2.Token, error) {
	return c.TokenContext(context.Background())
}

// TokenContext is Token bounded by ctx.
func (c *Coordinator) TokenContext(ctx context.Context) (*oauth2.Token, error) {
	creds, err := c.store.Load(ctx)
	if errors.Is(err, tokenstore.ErrNotFound) {
		return nil, ErrNoTokenAvailable
	}
	if err != nil {
		return nil, fmt.Errorf("reading stored credentials: %w", err)
	}
	if !c.IsTokenExpired(creds.AccessToken) {
		return creds.Token(), nil
	}

	token, err := c.QueueTokenRefresh(ctx)
	if errors.Is(err, ErrCooldownActive) && !TokenExpiresBefore(creds.AccessToken, c.now()) {
		// Inside the buffer but not yet expired: keep serving it until the cooldown ends.
		return creds.Token(), nil
	}
	return token, err
}

// ValidateSession reports whether a stored, unexpired token is accepted by the
// identity endpoint. Concurrent calls share one identity round-trip per token.
func (c *Coordinator) ValidateSession(ctx context.Context) bool {
	creds, err := c.store.Load(ctx)
	if err != nil {
		if !errors.Is(err, tokenstore.ErrNotFound) {
			slog.WarnContext(ctx, "failed to read stored credentials", "error", err)
		}
		return false
	}
	if c.IsTokenExpired(creds.AccessToken) {
		return false
	}

	ctx, span := c.tracer.Start(ctx, "coordinator.validate_session")
	defer span.End()

	// The round-trip is shared, so it must outlive the caller that started it.
	shared := context.WithoutCancel(ctx)
	_, err, joined := c.identity.Do(creds.AccessToken, func() (any, error) {
		return c.api.CurrentUser(shared, creds.AccessToken)
	})
	if err != nil {
		slog.InfoContext(ctx, "session validation failed", "error", err, "shared", joined)
		span.RecordError(err)
		return false
	}
	return true
}

// HandleAuthError forces the logged-out state: it clears the stored
// credentials, notifies the user and redirects to the login entry point unless
// the user is already there.
func (c *Coordinator) HandleAuthError(ctx context.Context, err error) {
	if clearErr := c.store.Clear(ctx); clearErr != nil {
		slog.ErrorContext(ctx, "failed to clear credentials", "error", clearErr)
	}

	if c.cfg.notifier != nil {
		message := describe(err)
		go c.cfg.notifier.Notify(context.WithoutCancel(ctx), message)
	}

	if c.cfg.navigator != nil && c.cfg.navigator.Location() != c.cfg.loginLocation {
		c.cfg.navigator.Redirect(ctx, c.cfg.loginLocation)
	}
}

// Login exchanges user credentials for a token pair and stores it.
func (c *Coordinator) Login(ctx context.Context, email, password string) (*session.User, error) {
	grant, err := c.api.Login(ctx, email, password)
	if err != nil {
		return nil, fmt.Errorf("login: %w", err)
	}

	creds := grant.Credentials(c.now(), nil)
	if err := c.store.Save(ctx, creds); err != nil {
		return nil, fmt.Errorf("storing credentials: %w", err)
	}
	c.leaveLogin(ctx)

	slog.InfoContext(ctx, "logged in", "user_id", userID(creds.User))
	return creds.User, nil
}

// Logout drops the stored credentials.
func (c *Coordinator) Logout(ctx context.Context) error {
	if err := c.store.Clear(ctx); err != nil {
		return fmt.Errorf("clearing credentials: %w", err)
	}
	slog.InfoContext(ctx, "logged out")
	return nil
}

// CurrentUser returns the user cached with the stored credentials.
func (c *Coordinator) CurrentUser(ctx context.Context) (*session.User, error) {
	creds, err := c.store.Load(ctx)
	if err != nil {
		return nil, err
	}
	if creds.User == nil {
		return nil, tokenstore.ErrNotFound
	}
	return creds.User, nil
}

func userID(u *session.User) string {
	if u == nil {
		return ""
	}
	return u.ID
}
