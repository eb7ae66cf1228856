package authclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/florianilch/claudine-auth/internal/session"
)

// ErrUnauthorized is returned by CurrentUser when the bearer token is rejected.
var ErrUnauthorized = errors.New("unauthorized")

// ServerError is an explicit rejection reported by the auth endpoints.
type ServerError struct {
	StatusCode int
	Message    string
}

func (e *ServerError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("auth server rejected request: %d %s", e.StatusCode, http.StatusText(e.StatusCode))
	}
	return fmt.Sprintf("auth server rejected request: %d %s", e.StatusCode, e.Message)
}

// Paths holds the endpoint paths relative to the base URL.
type Paths struct {
	Login    string
	Refresh  string
	Identity string
}

// DefaultPaths are the dashboard's standard auth routes.
var DefaultPaths = Paths{
	Login:    "/auth/login",
	Refresh:  "/auth/refresh",
	Identity: "/auth/me",
}

// Option configures a Client.
type Option func(*clientConfig)

type clientConfig struct {
	baseTransport http.RoundTripper
	timeout       time.Duration
	paths         Paths
}

// WithTransport sets a custom base transport.
// If not provided, http.DefaultTransport is used.
func WithTransport(transport http.RoundTripper) Option {
	return func(c *clientConfig) {
		c.baseTransport = transport
	}
}

// WithTimeout bounds every request issued by the client.
func WithTimeout(timeout time.Duration) Option {
	return func(c *clientConfig) {
		c.timeout = timeout
	}
}

// WithPaths overrides the endpoint paths. Empty fields keep their default.
func WithPaths(paths Paths) Option {
	return func(c *clientConfig) {
		if paths.Login != "" {
			c.paths.Login = paths.Login
		}
		if paths.Refresh != "" {
			c.paths.Refresh = paths.Refresh
		}
		if paths.Identity != "" {
			c.paths.Identity = paths.Identity
		}
	}
}

// Client is an HTTP client for the dashboard auth endpoints.
type Client struct {
	baseURL    *url.URL
	paths      Paths
	transport  http.RoundTripper
	timeout    time.Duration
	httpClient *http.Client
}

// New creates a Client for the API rooted at baseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid base URL %q: scheme must be http or https", baseURL)
	}

	cfg := &clientConfig{
		baseTransport: http.DefaultTransport,
		timeout:       30 * time.Second,
		paths:         DefaultPaths,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	return &Client{
		baseURL:   u,
		paths:     cfg.paths,
		transport: cfg.baseTransport,
		timeout:   cfg.timeout,
		httpClient: &http.Client{
			Timeout:   cfg.timeout,
			Transport: cfg.baseTransport,
		},
	}, nil
}

// tokenEnvelope is the response body of the login and refresh endpoints.
type tokenEnvelope struct {
	Success      bool          `json:"success"`
	Token        string        `json:"token"`
	RefreshToken string        `json:"refreshToken"`
	ExpiresIn    int64         `json:"expiresIn"` // seconds
	User         *session.User `json:"user"`
	Message      string        `json:"message"`
	Error        string        `json:"error"`
}

type identityEnvelope struct {
	Success bool          `json:"success"`
	User    *session.User `json:"user"`
	Message string        `json:"message"`
}

// Login exchanges user credentials for a token pair.
func (c *Client) Login(ctx context.Context, email, password string) (*session.Grant, error) {
	return c.grant(ctx, c.paths.Login, map[string]string{
		"email":    email,
		"password": password,
	})
}

// Refresh exchanges a refresh token for a new token pair.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (*session.Grant, error) {
	if refreshToken == "" {
		return nil, errors.New("refresh token cannot be empty")
	}
	return c.grant(ctx, c.paths.Refresh, map[string]string{
		"refreshToken": refreshToken,
	})
}

// CurrentUser returns the identity the access token belongs to.
func (c *Client) CurrentUser(ctx context.Context, accessToken string) (*session.User, error) {
	if accessToken == "" {
		return nil, ErrUnauthorized
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint(c.paths.Identity), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	client := &http.Client{
		Timeout: c.timeout,
		Transport: &oauth2.Transport{
			Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken, TokenType: "Bearer"}),
			Base:   c.transport,
		},
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("identity request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, ErrUnauthorized
	}

	var body identityEnvelope
	if err := decodeBody(resp, &body); err != nil {
		return nil, err
	}
	if resp.StatusCode/100 != 2 || !body.Success || body.User == nil {
		return nil, &ServerError{StatusCode: resp.StatusCode, Message: body.Message}
	}
	return body.User, nil
}

func (c *Client) grant(ctx context.Context, path string, payload map[string]string) (*session.Grant, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshaling JSON request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(path), bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s request: %w", path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	var body tokenEnvelope
	if err := decodeBody(resp, &body); err != nil {
		return nil, err
	}
	if resp.StatusCode/100 != 2 || !body.Success || body.Token == "" {
		msg := body.Message
		if msg == "" {
			msg = body.Error
		}
		return nil, &ServerError{StatusCode: resp.StatusCode, Message: msg}
	}

	return &session.Grant{
		AccessToken:  body.Token,
		RefreshToken: body.RefreshToken,
		ExpiresIn:    time.Duration(body.ExpiresIn) * time.Second,
		User:         body.User,
	}, nil
}

func (c *Client) endpoint(path string) string {
	u := *c.baseURL
	u.Path = strings.TrimSuffix(u.Path, "/") + "/" + strings.TrimPrefix(path, "/")
	return u.String()
}

// decodeBody decodes a JSON body. Non-JSON error pages become a ServerError.
func decodeBody(resp *http.Response, v any) error {
	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("reading response body: %w", err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		if resp.StatusCode/100 != 2 {
			return &ServerError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(data))}
		}
		return fmt.Errorf("decoding response body: %w", err)
	}
	return nil
}
