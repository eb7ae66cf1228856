// Package mockapi serves an offline stand-in for the dashboard's auth endpoints.
//
// Access tokens are HS256 JWTs, refresh tokens are opaque and rotate on every
// use. Knobs for failure injection make it usable as a test double.
package mockapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/florianilch/claudine-auth/internal/observability/middleware"
	"github.com/florianilch/claudine-auth/internal/session"
)

// Default mock server values.
const (
	DefaultAccessTTL  = 15 * time.Minute
	DefaultRefreshTTL = 7 * 24 * time.Hour
)

// Option configures a Server.
type Option func(*Server)

// WithSecret sets the HMAC key used to sign access tokens.
func WithSecret(secret []byte) Option {
	return func(s *Server) { s.secret = secret }
}

// WithAccessTTL sets the access token lifetime.
func WithAccessTTL(ttl time.Duration) Option {
	return func(s *Server) { s.accessTTL = ttl }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Server) { s.now = now }
}

// WithPasswordCost sets the bcrypt cost for seeded passwords.
func WithPasswordCost(cost int) Option {
	return func(s *Server) { s.cost = cost }
}

// WithLatency delays every refresh response.
func WithLatency(d time.Duration) Option {
	return func(s *Server) { s.latency = d }
}

type account struct {
	user         session.User
	passwordHash []byte
}

type refreshGrant struct {
	email     string
	expiresAt time.Time
}

// accessClaims are the claims carried by mock access tokens.
type accessClaims struct {
	Email string `json:"email"`
	Role  string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// Server is a mock dashboard auth API.
type Server struct {
	secret    []byte
	accessTTL time.Duration
	now       func() time.Time
	cost      int
	latency   time.Duration

	router chi.Router
	server *http.Server

	mu       sync.Mutex
	accounts map[string]*account
	grants   map[string]refreshGrant

	refreshCalls atomic.Int64
	failRefresh  atomic.Bool
}

// Compile-time check that Server implements http.Handler
var _ http.Handler = (*Server)(nil)

// New creates a mock server with no accounts.
func New(opts ...Option) (*Server, error) {
	s := &Server{
		accessTTL: DefaultAccessTTL,
		now:       time.Now,
		cost:      bcrypt.DefaultCost,
		accounts:  make(map[string]*account),
		grants:    make(map[string]refreshGrant),
	}
	for _, opt := range opts {
		opt(s)
	}
	if len(s.secret) == 0 {
		return nil, errors.New("missing signing secret")
	}
	if s.accessTTL <= 0 {
		return nil, fmt.Errorf("invalid access ttl %v", s.accessTTL)
	}

	r := chi.NewRouter()
	r.Use(middleware.Logging(slog.Default()), chimiddleware.Recoverer)
	r.Post("/auth/login", s.handleLogin)
	r.Post("/auth/refresh", s.handleRefresh)
	r.Post("/auth/logout", s.handleLogout)
	r.Get("/auth/me", s.handleMe)
	s.router = r

	return s, nil
}

// AddUser registers an account that can log in with password.
func (s *Server) AddUser(user session.User, password string) error {
	if user.Email == "" {
		return errors.New("email cannot be empty")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return fmt.Errorf("hashing password: %w", err)
	}
	if user.ID == "" {
		user.ID = uuid.NewString()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts[strings.ToLower(user.Email)] = &account{user: user, passwordHash: hash}
	return nil
}

// RefreshCalls returns the number of refresh requests served.
func (s *Server) RefreshCalls() int64 {
	return s.refreshCalls.Load()
}

// SetFailRefresh makes every refresh request fail with 500 while enabled.
func (s *Server) SetFailRefresh(fail bool) {
	s.failRefresh.Store(fail)
}

// IssueAccessToken signs an access token for email, bypassing the password check.
func (s *Server) IssueAccessToken(email string) (string, error) {
	s.mu.Lock()
	acc, ok := s.accounts[strings.ToLower(email)]
	s.mu.Unlock()
	if !ok {
		return "", fmt.Errorf("unknown account %s", email)
	}
	return s.sign(acc.user)
}

// ServeHTTP implements http.Handler interface
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Start starts the HTTP server in the background and returns immediately.
// Startup errors are returned, runtime errors are sent to the returned channel.
func (s *Server) Start(ctx context.Context, address string) (<-chan error, error) {
	listener, err := net.Listen("tcp", address)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", address, err)
	}

	s.server = &http.Server{
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext: func(net.Listener) context.Context {
			return ctx
		},
	}

	errCh := make(chan error, 1)
	go func() {
		err := s.server.Serve(listener)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	return errCh, nil
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	if err := s.server.Shutdown(ctx); err != nil {
		_ = s.server.Close()
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	return nil
}

func (s *Server) sign(user session.User) (string, error) {
	now := s.now()
	claims := accessClaims{
		Email: user.Email,
		Role:  user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.accessTTL)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

// verify parses an access token and returns the account it was issued to.
func (s *Server) verify(token string) (*account, error) {
	claims := &accessClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(s.now))
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	acc, ok := s.accounts[strings.ToLower(claims.Email)]
	if !ok || acc.user.ID != claims.Subject {
		return nil, errors.New("unknown subject")
	}
	return acc, nil
}

// issue creates a token envelope for acc and registers its refresh token.
func (s *Server) issue(acc *account) (tokenResponse, error) {
	access, err := s.sign(acc.user)
	if err != nil {
		return tokenResponse{}, err
	}
	refresh := uuid.NewString()

	s.mu.Lock()
	s.grants[refresh] = refreshGrant{email: strings.ToLower(acc.user.Email), expiresAt: s.now().Add(DefaultRefreshTTL)}
	s.mu.Unlock()

	user := acc.user
	return tokenResponse{
		Success:      true,
		Token:        access,
		RefreshToken: refresh,
		ExpiresIn:    int64(s.accessTTL / time.Second),
		User:         &user,
	}, nil
}

type tokenResponse struct {
	Success      bool          `json:"success"`
	Token        string        `json:"token,omitempty"`
	RefreshToken string        `json:"refreshToken,omitempty"`
	ExpiresIn    int64         `json:"expiresIn,omitempty"`
	User         *session.User `json:"user,omitempty"`
	Message      string        `json:"message,omitempty"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(r.Context(), w, tokenResponse{Message: "invalid request body"}, http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	acc, ok := s.accounts[strings.ToLower(req.Email)]
	s.mu.Unlock()
	if !ok || bcrypt.CompareHashAndPassword(acc.passwordHash, []byte(req.Password)) != nil {
		writeJSON(r.Context(), w, tokenResponse{Message: "invalid email or password"}, http.StatusUnauthorized)
		return
	}

	resp, err := s.issue(acc)
	if err != nil {
		slog.ErrorContext(r.Context(), "failed to issue tokens", "error", err)
		writeJSON(r.Context(), w, tokenResponse{Message: "internal error"}, http.StatusInternalServerError)
		return
	}
	writeJSON(r.Context(), w, resp, http.StatusOK)
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	s.refreshCalls.Add(1)

	if s.latency > 0 {
		select {
		case <-time.After(s.latency):
		case <-r.Context().Done():
			return
		}
	}
	if s.failRefresh.Load() {
		writeJSON(r.Context(), w, tokenResponse{Message: "refresh unavailable"}, http.StatusInternalServerError)
		return
	}

	var req struct {
		RefreshToken string `json:"refreshToken"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.RefreshToken == "" {
		writeJSON(r.Context(), w, tokenResponse{Message: "refresh token required"}, http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	grant, ok := s.grants[req.RefreshToken]
	// Rotation: a refresh token is valid exactly once.
	delete(s.grants, req.RefreshToken)
	var acc *account
	if ok {
		acc = s.accounts[grant.email]
	}
	s.mu.Unlock()

	if !ok || acc == nil || !s.now().Before(grant.expiresAt) {
		writeJSON(r.Context(), w, tokenResponse{Message: "invalid refresh token"}, http.StatusUnauthorized)
		return
	}

	resp, err := s.issue(acc)
	if err != nil {
		slog.ErrorContext(r.Context(), "failed to issue tokens", "error", err)
		writeJSON(r.Context(), w, tokenResponse{Message: "internal error"}, http.StatusInternalServerError)
		return
	}
	writeJSON(r.Context(), w, resp, http.StatusOK)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RefreshToken string `json:"refreshToken"`
	}
	_ = json.NewDecoder(r.Body).Decode(&req)

	s.mu.Lock()
	delete(s.grants, req.RefreshToken)
	s.mu.Unlock()

	writeJSON(r.Context(), w, tokenResponse{Success: true}, http.StatusOK)
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok || token == "" {
		writeJSON(r.Context(), w, identityResponse{Message: "missing bearer token"}, http.StatusUnauthorized)
		return
	}

	acc, err := s.verify(token)
	if err != nil {
		writeJSON(r.Context(), w, identityResponse{Message: "invalid token"}, http.StatusUnauthorized)
		return
	}

	user := acc.user
	writeJSON(r.Context(), w, identityResponse{Success: true, User: &user}, http.StatusOK)
}

type identityResponse struct {
	Success bool          `json:"success"`
	User    *session.User `json:"user,omitempty"`
	Message string        `json:"message,omitempty"`
}

func writeJSON(ctx context.Context, w http.ResponseWriter, data any, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.ErrorContext(ctx, "failed to encode JSON response", "error", err)
	}
}
