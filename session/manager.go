// Package session owns the authentication lifecycle: login, logout, token
// persistence, and session restore. The Manager is the sole writer of the
// token store and of the in-memory session, and it drives the cart engine's
// merge protocol as part of login.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/awnumar/memguard"

	"github.com/jmcleod/storefront/client"
	"github.com/jmcleod/storefront/internal/util"
	"github.com/jmcleod/storefront/tokenstore"
)

const logoutTimeout = 5 * time.Second

// State describes the authentication state visible to consumers.
type State int

const (
	// StateAnonymous means no session exists.
	StateAnonymous State = iota
	// StateRestoring means a stored token exists but could not yet be
	// validated (transient failure during restore). Consumers treat this as
	// not-yet-authenticated, not as logged out.
	StateRestoring
	// StateAuthenticated means the token was validated by at least one
	// successful authenticated request since being set.
	StateAuthenticated
)

func (s State) String() string {
	switch s {
	case StateRestoring:
		return "restoring"
	case StateAuthenticated:
		return "authenticated"
	default:
		return "anonymous"
	}
}

// CartSync is the slice of the cart engine the session manager drives. The
// engine is wired in by the storefront facade after construction.
type CartSync interface {
	// MergeAndFetch folds the pre-login in-memory cart into the server cart,
	// then replaces local state with the server's authoritative cart.
	// Returned errors are per-item merge failures, non-fatal to login.
	MergeAndFetch(ctx context.Context) []error
	// Clear empties the in-memory cart without touching the server.
	Clear()
}

// Session is a read-only snapshot of the current authentication state.
type Session struct {
	State State
	User  *client.UserProfile
}

// LoginReport is returned from a successful Login. MergeFailures carries
// per-item cart merge failures; they never fail the login itself.
type LoginReport struct {
	User          client.UserProfile
	MergeFailures []error
}

// Manager owns the current token and resolved user profile.
type Manager struct {
	api    *client.Client
	store  tokenstore.Store
	logger *slog.Logger

	mu    sync.RWMutex
	state State
	user  *client.UserProfile
	token *memguard.Enclave
	cart  CartSync
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the structured logger. If not set, a JSON logger writing
// to stderr is used.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// New creates a Manager bound to the given API client and token store. The
// manager registers itself as the client's token source and unauthorized
// hook, so any 401 on an authenticated request triggers a forced logout.
func New(api *client.Client, store tokenstore.Store, opts ...Option) *Manager {
	m := &Manager{
		api:   api,
		store: store,
		state: StateAnonymous,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.logger == nil {
		m.logger = slog.New(slog.NewJSONHandler(os.Stderr, nil))
	}
	api.SetTokenSource(m)
	api.SetOnUnauthorized(m.forceLogout)
	return m
}

// SetCartSync wires the cart engine. Called once by the storefront facade.
func (m *Manager) SetCartSync(cs CartSync) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cart = cs
}

// Token implements client.TokenSource. The token lives in a memguard
// enclave; it is opened only for the duration of attaching a header.
func (m *Manager) Token() (string, bool) {
	m.mu.RLock()
	enclave := m.token
	m.mu.RUnlock()
	if enclave == nil {
		return "", false
	}
	buf, err := enclave.Open()
	if err != nil {
		return "", false
	}
	defer buf.Destroy()
	return buf.String(), true
}

// Current returns a snapshot of the session.
func (m *Manager) Current() Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return Session{State: m.state, User: m.user}
}

// Authenticated reports whether a validated session exists.
func (m *Manager) Authenticated() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state == StateAuthenticated
}

// Restore loads the stored token, if any, and validates it against the
// server. A missing token is not an error. An unauthorized response clears
// the stored token; a transient failure keeps it and parks the session in
// StateRestoring so a valid session is not destroyed by an outage.
func (m *Manager) Restore(ctx context.Context) error {
	token, err := m.store.Load()
	if errors.Is(err, tokenstore.ErrNotFound) {
		m.setAnonymous()
		return nil
	}
	if err != nil {
		return fmt.Errorf("loading stored token: %w", err)
	}

	m.mu.Lock()
	m.token = memguard.NewEnclave([]byte(token))
	m.state = StateRestoring
	m.user = nil
	m.mu.Unlock()

	user, err := m.api.Me(ctx)
	if err != nil {
		if errors.Is(err, client.ErrUnauthorized) {
			// forceLogout already ran via the client hook; make sure the
			// stale token is gone even if the hook was not wired.
			m.forceLogout()
			return err
		}
		m.logger.Warn("session restore deferred", slog.Any("error", err))
		return err
	}

	m.mu.Lock()
	m.state = StateAuthenticated
	m.user = user
	cs := m.cart
	m.mu.Unlock()

	m.logger.Info("session restored", slog.Int64("user_id", user.ID))
	if cs != nil {
		for _, ferr := range cs.MergeAndFetch(ctx) {
			m.logger.Warn("cart fetch after restore", slog.Any("error", ferr))
		}
	}
	return nil
}

// Login exchanges credentials for a session. On success the token is
// persisted, the user resolved, and the cart merge protocol run before the
// call returns. Merge failures are reported in the LoginReport, never as a
// login error.
func (m *Manager) Login(ctx context.Context, email, password string) (*LoginReport, error) {
	email = util.NormalizeEmail(email)
	password = util.Normalize(password)

	resp, err := m.api.Login(ctx, email, password)
	if err != nil {
		var verr *client.ValidationError
		if errors.As(err, &verr) {
			return nil, fmt.Errorf("%w: %s", ErrLoginFailed, verr.Message)
		}
		if errors.Is(err, client.ErrUnauthorized) {
			return nil, fmt.Errorf("%w: invalid credentials", ErrLoginFailed)
		}
		return nil, err
	}

	m.mu.Lock()
	m.token = memguard.NewEnclave([]byte(resp.Token))
	m.mu.Unlock()

	if err := m.store.Save(resp.Token); err != nil {
		// The in-memory session is still usable; it just won't survive a
		// restart.
		m.logger.Warn("persisting token failed", slog.Any("error", err))
	}

	user := resp.User
	if user == nil {
		user, err = m.api.Me(ctx)
		if err != nil {
			if errors.Is(err, client.ErrUnauthorized) {
				// The server rejected its own freshly issued token; the
				// unauthorized hook has already torn the session down, so
				// stay anonymous rather than parking on a dead token.
				return nil, fmt.Errorf("%w: %v", ErrUserUnresolved, err)
			}
			m.mu.Lock()
			m.state = StateRestoring
			m.user = nil
			m.mu.Unlock()
			return nil, fmt.Errorf("%w: %v", ErrUserUnresolved, err)
		}
	}

	m.mu.Lock()
	m.state = StateAuthenticated
	m.user = user
	cs := m.cart
	m.mu.Unlock()

	report := &LoginReport{User: *user}
	if cs != nil {
		report.MergeFailures = cs.MergeAndFetch(ctx)
		for _, ferr := range report.MergeFailures {
			m.logger.Warn("cart merge item failed", slog.Any("error", ferr))
		}
	}

	m.logger.Info("login", slog.Int64("user_id", user.ID), slog.String("role", user.Role))
	return report, nil
}

// Logout ends the session. The server is notified best-effort in the
// background; local state is cleared unconditionally and immediately. The
// server-side cart is left intact for the next login.
func (m *Manager) Logout() {
	token, hadToken := m.Token()

	m.mu.Lock()
	m.token = nil
	m.user = nil
	m.state = StateAnonymous
	cs := m.cart
	m.mu.Unlock()

	if err := m.store.Clear(); err != nil {
		m.logger.Warn("clearing stored token failed", slog.Any("error", err))
	}
	if cs != nil {
		cs.Clear()
	}

	if hadToken {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), logoutTimeout)
			defer cancel()
			if err := m.api.Logout(ctx, token); err != nil {
				m.logger.Debug("logout notification failed", slog.Any("error", err))
			}
		}()
	}
	m.logger.Info("logout")
}

// forceLogout clears the session after the server rejected the token. It is
// registered as the client's unauthorized hook and must be idempotent: a
// burst of in-flight requests can each come back 401.
func (m *Manager) forceLogout() {
	m.mu.Lock()
	if m.state == StateAnonymous && m.token == nil {
		m.mu.Unlock()
		return
	}
	m.token = nil
	m.user = nil
	m.state = StateAnonymous
	cs := m.cart
	m.mu.Unlock()

	if err := m.store.Clear(); err != nil {
		m.logger.Warn("clearing stored token failed", slog.Any("error", err))
	}
	if cs != nil {
		cs.Clear()
	}
	m.logger.Info("session rejected by server, logged out")
}

func (m *Manager) setAnonymous() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = StateAnonymous
	m.user = nil
	m.token = nil
}
