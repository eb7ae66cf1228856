package proxy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/http/httputil"
	"net/url"
	"time"

	"golang.org/x/oauth2"

	"github.com/florianilch/claudine-auth/internal/observability/middleware"
	"github.com/florianilch/claudine-auth/internal/session"
)

// DefaultMaxReplayBody is the largest request body buffered for a retry after refresh.
const DefaultMaxReplayBody = 4 << 20

// Session supplies access tokens for upstream requests.
type Session interface {
	TokenContext(ctx context.Context) (*oauth2.Token, error)
	QueueTokenRefresh(ctx context.Context) (*oauth2.Token, error)
	ValidateSession(ctx context.Context) bool
	CurrentUser(ctx context.Context) (*session.User, error)
}

// Option configures a Proxy.
type Option func(*config)

type config struct {
	loginLocation string
	transport     http.RoundTripper
	maxReplayBody int64
}

// WithLoginLocation sets the Location reported to clients when they must log in.
func WithLoginLocation(location string) Option {
	return func(c *config) { c.loginLocation = location }
}

// WithTransport sets the base transport for upstream requests.
func WithTransport(transport http.RoundTripper) Option {
	return func(c *config) { c.transport = transport }
}

// WithMaxReplayBody sets the largest request body that is retried after a refresh.
func WithMaxReplayBody(limit int64) Option {
	return func(c *config) { c.maxReplayBody = limit }
}

// Proxy is a reverse proxy that authenticates requests to the admin API.
type Proxy struct {
	mux    *http.ServeMux
	server *http.Server
}

// Compile-time check that Proxy implements http.Handler
var _ http.Handler = (*Proxy)(nil)

// New creates a reverse proxy forwarding to the admin API at baseURL.
func New(sess Session, baseURL string, opts ...Option) (*Proxy, error) {
	if sess == nil {
		return nil, errors.New("missing session")
	}
	upstream, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid upstream URL: %w", err)
	}

	cfg := &config{
		loginLocation: "/login",
		transport:     http.DefaultTransport,
		maxReplayBody: DefaultMaxReplayBody,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	reverseProxyHandler := &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.SetURL(upstream)
			pr.Out.Host = upstream.Host
			// Client credentials are replaced by the session's bearer token.
			pr.Out.Header.Del("Authorization")
			pr.Out.Header.Del("Cookie")
		},
		// FlushInterval: -1 flushes only when the backend flushes, so streamed
		// responses (SSE, long polling) reach the client immediately.
		FlushInterval: -1,
		Transport:     &authTransport{session: sess, base: cfg.transport},
		ErrorHandler:  errorHandler(cfg.loginLocation),
	}

	logger := slog.Default()

	mux := http.NewServeMux()
	mux.Handle("GET /_session", applyMiddlewares(sessionHandler(sess),
		middleware.Logging(logger),
		Recovery,
	))
	mux.Handle("/", applyMiddlewares(reverseProxyHandler,
		middleware.Logging(logger),
		Recovery,
		ReplayableBody(cfg.maxReplayBody),
	))

	return &Proxy{mux: mux}, nil
}

// ServeHTTP implements http.Handler interface
func (p *Proxy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	p.mux.ServeHTTP(w, r)
}

// sessionResponse is the body of GET /_session.
type sessionResponse struct {
	Valid bool          `json:"valid"`
	User  *session.User `json:"user,omitempty"`
}

func sessionHandler(sess Session) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp := sessionResponse{Valid: sess.ValidateSession(r.Context())}
		if resp.Valid {
			if user, err := sess.CurrentUser(r.Context()); err == nil {
				resp.User = user
			}
		}
		writeJSON(r.Context(), w, resp, http.StatusOK)
	})
}

func errorHandler(loginLocation string) func(http.ResponseWriter, *http.Request, error) {
	return func(w http.ResponseWriter, r *http.Request, err error) {
		var authErr *AuthError
		if errors.As(err, &authErr) {
			slog.InfoContext(r.Context(), "request rejected, login required", "path", r.URL.Path, "error", err)
			writeLoginRequired(r.Context(), w, loginLocation)
			return
		}
		if errors.Is(err, context.Canceled) {
			return
		}
		slog.ErrorContext(r.Context(), "upstream request failed", "path", r.URL.Path, "error", err)
		writeJSONError(r.Context(), w, http.StatusText(http.StatusBadGateway), http.StatusBadGateway)
	}
}

// Start starts the HTTP server in the background and returns immediately.
// Returns a channel for runtime errors and a startup error if any.
//
// Startup errors (port in use, permission denied) are returned immediately.
// Runtime errors (network failures during operation) are sent to the error channel.
//
// The caller is responsible for calling Shutdown() to stop the server.
func (p *Proxy) Start(ctx context.Context, address string) (<-chan error, error) {
	// Startup phase: Create listener synchronously to catch port-in-use errors immediately
	listener, err := net.Listen("tcp", address)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", address, err)
	}

	p.server = &http.Server{
		Handler:      p,
		ReadTimeout:  30 * time.Second, // Inbound: Read entire client request (DoS protection against slow clients)
		WriteTimeout: 5 * time.Minute,  // Inbound: Write entire response to client (long exports, still bounded)
		IdleTimeout:  90 * time.Second, // Inbound: Keep-alive wait for next request from client
		BaseContext: func(net.Listener) context.Context {
			return ctx
		},
	}

	errCh := make(chan error, 1)

	go func() {
		err := p.server.Serve(listener)
		// Only report error if not from graceful shutdown
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	return errCh, nil
}

// Shutdown performs graceful shutdown of the HTTP server.
// Returns error if shutdown fails or times out.
func (p *Proxy) Shutdown(ctx context.Context) error {
	if p.server == nil {
		return nil
	}

	if err := p.server.Shutdown(ctx); err != nil {
		// Graceful shutdown failed - force close
		_ = p.server.Close()
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}

	return nil
}
