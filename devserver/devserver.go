// Package devserver is a self-contained reference implementation of the
// storefront API: login, session validation, logout, a seeded product
// catalog, and per-user durable carts with server-side quantity merging and
// stock clamping. It backs the CLI's server command and the integration
// tests; production deployments point the client at a real origin instead.
package devserver

import (
	_ "embed"
	"encoding/json"
	"log/slog"
	"net/http"
	"os"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-openapi/runtime/middleware"
	"golang.org/x/crypto/bcrypt"

	"github.com/jmcleod/storefront/client"
	"github.com/jmcleod/storefront/internal/util"
)

//go:embed openapi.yaml
var openapiSpec []byte

type account struct {
	user         client.UserProfile
	passwordHash []byte
}

// Server holds all in-process storefront state. Carts are keyed by user id
// and survive logout, which is what makes merge-on-login observable.
type Server struct {
	logger *slog.Logger
	tokens *tokenIssuer

	mu       sync.Mutex
	accounts map[string]*account // by normalized email
	products []client.ProductSnapshot
	carts    map[int64][]client.Line
	revoked  map[string]struct{} // jti values invalidated by logout
	nextUser int64
	nextLine int64
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the structured logger. If not set, a JSON logger writing
// to stderr is used.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithAccount seeds an account. Seller accounts get a store reference.
func WithAccount(name, email, password, role string, store *client.StoreRef) Option {
	return func(s *Server) {
		s.addAccount(name, email, password, role, store)
	}
}

// WithProduct seeds a catalog product. Products without an explicit ID get
// one assigned in seed order.
func WithProduct(p client.ProductSnapshot) Option {
	return func(s *Server) {
		s.products = append(s.products, p)
	}
}

// New creates a Server. Without seed options it ships a small demo catalog
// and one customer account (demo@example.com / storefront).
func New(opts ...Option) *Server {
	s := &Server{
		tokens:   newTokenIssuer(),
		accounts: make(map[string]*account),
		carts:    make(map[int64][]client.Line),
		revoked:  make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.New(slog.NewJSONHandler(os.Stderr, nil))
	}
	if len(s.accounts) == 0 {
		s.addAccount("Demo Customer", "demo@example.com", "storefront", "customer", nil)
	}
	if len(s.products) == 0 {
		s.products = []client.ProductSnapshot{
			{Name: "Canvas Tote", Price: 2400, DiscountPrice: 1900, Stock: 12, StoreID: 1},
			{Name: "Enamel Mug", Price: 1500, Stock: 30, StoreID: 1},
			{Name: "Wool Beanie", Price: 3200, Stock: 0, StoreID: 2},
		}
	}
	for i := range s.products {
		if s.products[i].ID == 0 {
			s.products[i].ID = int64(i + 1)
		}
	}
	return s
}

func (s *Server) addAccount(name, email, password, role string, store *client.StoreRef) {
	hash, err := bcrypt.GenerateFromPassword([]byte(util.Normalize(password)), bcrypt.DefaultCost)
	if err != nil {
		panic(err)
	}
	s.nextUser++
	key := util.NormalizeEmail(email)
	s.accounts[key] = &account{
		user: client.UserProfile{
			ID:    s.nextUser,
			Name:  name,
			Email: key,
			Role:  role,
			Store: store,
		},
		passwordHash: hash,
	}
}

// Router returns a chi.Router with all storefront routes mounted.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()

	r.Get("/openapi.yaml", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/yaml")
		w.Write(openapiSpec)
	})

	r.Handle("/docs*", middleware.SwaggerUI(middleware.SwaggerUIOpts{
		SpecURL: "/openapi.yaml",
		Path:    "docs",
	}, nil))

	r.Handle("/redoc*", middleware.Redoc(middleware.RedocOpts{
		SpecURL: "/openapi.yaml",
		Path:    "redoc",
	}, nil))

	r.Post("/login", s.handleLogin)
	r.Get("/products", s.handleListProducts)

	r.Group(func(r chi.Router) {
		r.Use(s.authMiddleware)
		r.Get("/me", s.handleMe)
		r.Post("/logout", s.handleLogout)
		r.Get("/cart", s.handleFetchCart)
		r.Post("/cart/items", s.handleAddItem)
		r.Patch("/cart/items/{lineID}", s.handleUpdateItem)
		r.Put("/cart/items/{lineID}", s.handleUpdateItem)
		r.Delete("/cart/items/{lineID}", s.handleRemoveItem)
	})

	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, client.ErrorResponse{Error: msg})
}

func decodeJSON[T any](w http.ResponseWriter, r *http.Request) (T, bool) {
	var v T
	if err := json.NewDecoder(r.Body).Decode(&v); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return v, false
	}
	return v, true
}

func (s *Server) handleListProducts(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	products := make([]client.ProductSnapshot, len(s.products))
	copy(products, s.products)
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string][]client.ProductSnapshot{"products": products})
}
