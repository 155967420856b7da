// Package client is a thin REST client for the storefront API. It attaches
// the bearer token supplied by a TokenSource, maps HTTP failures onto the
// error taxonomy in errors.go, and decodes the documented response shapes.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"
)

const defaultTimeout = 15 * time.Second

// TokenSource supplies the current bearer token, if any. The session manager
// implements this; the client never stores a token itself.
type TokenSource interface {
	Token() (string, bool)
}

// Client issues requests against a single storefront API origin.
type Client struct {
	baseURL        string
	http           *http.Client
	tokens         TokenSource
	logger         *slog.Logger
	onUnauthorized func()
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying *http.Client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		c.http = h
	}
}

// WithLogger sets the structured logger. If not set, a JSON logger writing
// to stderr is used.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// New creates a Client for the given base URL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = slog.New(slog.NewJSONHandler(os.Stderr, nil))
	}
	return c
}

// SetTokenSource wires the token provider. Called once by the storefront
// facade after the session manager exists; the two have a construction cycle
// that options cannot express.
func (c *Client) SetTokenSource(ts TokenSource) {
	c.tokens = ts
}

// SetOnUnauthorized registers a hook invoked whenever an authenticated
// request comes back 401/403. The session manager uses it to run the forced
// logout described in the session package.
func (c *Client) SetOnUnauthorized(fn func()) {
	c.onUnauthorized = fn
}

// do issues one request and decodes a 2xx body into T. A nil body sends no
// payload; authed attaches the bearer token and fails fast without one.
func do[T any](ctx context.Context, c *Client, method, path string, body any, authed bool) (*T, error) {
	op := method + " " + path

	var token string
	if authed {
		if c.tokens == nil {
			return nil, fmt.Errorf("%s: %w", op, ErrUnauthenticated)
		}
		var ok bool
		token, ok = c.tokens.Token()
		if !ok {
			return nil, fmt.Errorf("%s: %w", op, ErrUnauthenticated)
		}
	}

	var reqBody io.Reader
	if body != nil {
		var buf bytes.Buffer
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return nil, fmt.Errorf("%s: encoding request: %w", op, err)
		}
		reqBody = &buf
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Debug("request failed", slog.String("op", op), slog.Any("error", err))
		return nil, &NetworkError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		var out T
		if resp.StatusCode == http.StatusNoContent {
			return &out, nil
		}
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			return nil, fmt.Errorf("%s: decoding response: %w", op, err)
		}
		return &out, nil
	}

	msg := readErrorMessage(resp.Body)
	switch resp.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		if authed && c.onUnauthorized != nil {
			c.onUnauthorized()
		}
		return nil, fmt.Errorf("%s: %w", op, ErrUnauthorized)
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return nil, &ValidationError{Status: resp.StatusCode, Message: msg}
	default:
		return nil, &APIError{Status: resp.StatusCode, Message: msg}
	}
}

func readErrorMessage(r io.Reader) string {
	var er ErrorResponse
	if err := json.NewDecoder(r).Decode(&er); err != nil || er.Error == "" {
		return "unexpected error"
	}
	return er.Error
}

// Login exchanges credentials for a bearer token. Unauthenticated.
func (c *Client) Login(ctx context.Context, email, password string) (*LoginResponse, error) {
	return do[LoginResponse](ctx, c, http.MethodPost, "/login", LoginRequest{Email: email, Password: password}, false)
}

// Me validates the current token and returns the user profile.
func (c *Client) Me(ctx context.Context) (*UserProfile, error) {
	return do[UserProfile](ctx, c, http.MethodGet, "/me", nil, true)
}

// Logout notifies the server that the session is ending. The token is passed
// explicitly because the session manager clears its own token source before
// this call resolves. Callers treat the result as best-effort.
func (c *Client) Logout(ctx context.Context, token string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/logout", nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := c.http.Do(req)
	if err != nil {
		return &NetworkError{Op: "POST /logout", Err: err}
	}
	resp.Body.Close()
	return nil
}

// FetchCart returns the server's current cart for the authenticated user.
func (c *Client) FetchCart(ctx context.Context) ([]Line, error) {
	resp, err := do[CartResponse](ctx, c, http.MethodGet, "/cart", nil, true)
	if err != nil {
		return nil, err
	}
	return resp.Items, nil
}

// AddCartItem creates a cart line, or merges into an existing line for the
// same product. The returned line is authoritative either way.
func (c *Client) AddCartItem(ctx context.Context, productID int64, quantity int) (*Line, error) {
	return do[Line](ctx, c, http.MethodPost, "/cart/items", AddItemRequest{ProductID: productID, Quantity: quantity}, true)
}

// UpdateCartItem sets a line's quantity. The server may clamp the quantity
// to available stock; the returned line reflects what it actually holds.
func (c *Client) UpdateCartItem(ctx context.Context, lineID int64, quantity int) (*Line, error) {
	return do[Line](ctx, c, http.MethodPatch, fmt.Sprintf("/cart/items/%d", lineID), UpdateItemRequest{Quantity: quantity}, true)
}

// RemoveCartItem deletes a cart line.
func (c *Client) RemoveCartItem(ctx context.Context, lineID int64) error {
	_, err := do[struct{}](ctx, c, http.MethodDelete, fmt.Sprintf("/cart/items/%d", lineID), nil, true)
	return err
}

// ListProducts returns the catalog. Unauthenticated.
func (c *Client) ListProducts(ctx context.Context) ([]ProductSnapshot, error) {
	resp, err := do[struct {
		Products []ProductSnapshot `json:"products"`
	}](ctx, c, http.MethodGet, "/products", nil, false)
	if err != nil {
		return nil, err
	}
	return resp.Products, nil
}
