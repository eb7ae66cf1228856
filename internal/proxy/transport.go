package proxy

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"golang.org/x/oauth2"
)

// AuthError reports that no usable access token could be obtained.
type AuthError struct {
	Err error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("no usable access token: %v", e.Err)
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

// authTransport attaches the session's access token to upstream requests and,
// when the upstream rejects it, queues for a refresh and retries once.
type authTransport struct {
	session Session
	base    http.RoundTripper
}

// Compile-time check that authTransport implements http.RoundTripper.
var _ http.RoundTripper = (*authTransport)(nil)

func (t *authTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	token, err := t.session.TokenContext(req.Context())
	if err != nil {
		closeBody(req)
		return nil, &AuthError{Err: err}
	}

	resp, err := t.send(req, token)
	if err != nil || resp.StatusCode != http.StatusUnauthorized {
		return resp, err
	}
	if req.Body != nil && req.Body != http.NoBody && req.GetBody == nil {
		// Body already consumed and cannot be replayed.
		return resp, nil
	}

	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()

	slog.DebugContext(req.Context(), "upstream rejected access token, refreshing", "path", req.URL.Path)
	token, err = t.session.QueueTokenRefresh(req.Context())
	if err != nil {
		return nil, &AuthError{Err: err}
	}

	retry := req.Clone(req.Context())
	if req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			return nil, fmt.Errorf("replaying request body: %w", err)
		}
		retry.Body = body
	}
	return t.send(retry, token)
}

func (t *authTransport) send(req *http.Request, token *oauth2.Token) (*http.Response, error) {
	transport := &oauth2.Transport{
		Source: oauth2.StaticTokenSource(token),
		Base:   t.base,
	}
	return transport.RoundTrip(req)
}

func closeBody(req *http.Request) {
	if req.Body != nil {
		_ = req.Body.Close()
	}
}
