// Package storefront wires the API client, session manager and cart engine
// into one consumer-facing object. UI code reads state and invokes
// operations through Auth() and Cart(); it never mutates either directly.
package storefront

import (
	"log/slog"
	"net/http"
	"os"

	"github.com/jmcleod/storefront/cart"
	"github.com/jmcleod/storefront/client"
	"github.com/jmcleod/storefront/session"
	"github.com/jmcleod/storefront/tokenstore"
)

// Storefront is the assembled client core.
type Storefront struct {
	api   *client.Client
	auth  *session.Manager
	lines *cart.Engine
}

// Option configures a Storefront.
type Option func(*config)

type config struct {
	logger *slog.Logger
	http   *http.Client
}

// WithLogger sets the structured logger shared by all components.
func WithLogger(logger *slog.Logger) Option {
	return func(c *config) {
		c.logger = logger
	}
}

// WithHTTPClient replaces the underlying *http.Client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *config) {
		c.http = h
	}
}

// New assembles a Storefront against the given API origin. The token store
// is the durable slot for the bearer token; pass tokenstore/bbolt for a
// persistent session or tokenstore/memory for an ephemeral one.
func New(baseURL string, store tokenstore.Store, opts ...Option) *Storefront {
	cfg := config{}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.logger == nil {
		cfg.logger = slog.New(slog.NewJSONHandler(os.Stderr, nil))
	}

	clientOpts := []client.Option{client.WithLogger(cfg.logger)}
	if cfg.http != nil {
		clientOpts = append(clientOpts, client.WithHTTPClient(cfg.http))
	}
	api := client.New(baseURL, clientOpts...)

	auth := session.New(api, store, session.WithLogger(cfg.logger))
	lines := cart.NewEngine(api, auth, cart.WithLogger(cfg.logger))
	auth.SetCartSync(lines)

	return &Storefront{api: api, auth: auth, lines: lines}
}

// Auth returns the session manager: current user, login, logout, restore.
func (s *Storefront) Auth() *session.Manager {
	return s.auth
}

// Cart returns the cart engine: items, add, update, remove.
func (s *Storefront) Cart() *cart.Engine {
	return s.lines
}

// API returns the underlying REST client, for read-only catalog calls.
func (s *Storefront) API() *client.Client {
	return s.api
}
