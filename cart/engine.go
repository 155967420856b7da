// Package cart holds the cart synchronization engine: the in-memory list of
// cart lines, optimistic mutation with rollback, and reconciliation against
// the server, which is the sole source of truth for priced, stocked cart
// contents.
//
// Concurrency discipline: the engine is the only writer of its line list.
// Every mutation captures a per-line sequence number when its request is
// issued; a response is applied only if no newer request for the same line
// has been issued since (last-issued-wins). A generation counter makes all
// in-flight responses inert after Clear or a wholesale Fetch replace, so a
// logout can never be undone by a slow response.
package cart

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"sync"

	"github.com/jmcleod/storefront/client"
)

// Status describes whether the engine has requests in flight.
type Status int

const (
	StatusIdle Status = iota
	StatusSyncing
)

// AuthGate reports whether an authenticated session exists. Cart mutations
// fail fast without one, before any network call. The session manager
// implements this.
type AuthGate interface {
	Authenticated() bool
}

// lineTrack is the per-line bookkeeping behind the staleness discipline.
type lineTrack struct {
	issued    uint64 // sequence number of the most recently issued request
	confirmed int    // last server-confirmed quantity, the rollback target
}

// Engine owns the in-memory cart.
type Engine struct {
	api    *client.Client
	auth   AuthGate
	logger *slog.Logger

	mu       sync.Mutex
	items    []client.Line
	tracks   map[int64]*lineTrack
	gen      uint64
	inflight int
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the structured logger. If not set, a JSON logger writing
// to stderr is used.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// NewEngine creates an Engine bound to the given API client and auth gate.
func NewEngine(api *client.Client, auth AuthGate, opts ...Option) *Engine {
	e := &Engine{
		api:    api,
		auth:   auth,
		tracks: make(map[int64]*lineTrack),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = slog.New(slog.NewJSONHandler(os.Stderr, nil))
	}
	return e
}

// Items returns a copy of the current cart lines, in order.
func (e *Engine) Items() []client.Line {
	e.mu.Lock()
	defer e.mu.Unlock()
	return slices.Clone(e.items)
}

// Status reports StatusSyncing while any request is in flight.
func (e *Engine) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.inflight > 0 {
		return StatusSyncing
	}
	return StatusIdle
}

// Clear empties the in-memory cart and invalidates every in-flight
// response. The server cart is not touched.
func (e *Engine) Clear() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.items = nil
	e.tracks = make(map[int64]*lineTrack)
	e.gen++
}

// Fetch replaces the cart wholesale with the server's authoritative state.
// On failure the last known lines are kept; stale-but-present beats an
// empty flash on a transient outage.
func (e *Engine) Fetch(ctx context.Context) error {
	if !e.auth.Authenticated() {
		return fmt.Errorf("fetch cart: %w", client.ErrUnauthenticated)
	}

	e.mu.Lock()
	gen := e.gen
	e.inflight++
	e.mu.Unlock()

	lines, err := e.api.FetchCart(ctx)

	e.mu.Lock()
	defer e.mu.Unlock()
	e.inflight--
	if err != nil {
		return err
	}
	if e.gen != gen {
		return nil
	}
	e.replaceLocked(lines)
	return nil
}

// replaceLocked installs lines as the new cart and resets all per-line
// bookkeeping, so responses to requests issued before the replace are
// discarded by the sequence check.
func (e *Engine) replaceLocked(lines []client.Line) {
	e.items = lines
	e.tracks = make(map[int64]*lineTrack, len(lines))
	for _, l := range lines {
		e.tracks[l.ID] = &lineTrack{confirmed: l.Quantity}
	}
	e.gen++
}

// Add creates a server cart line for the product, or merges into the
// existing line for it. There is no optimistic insert: price, discount and
// stock only exist server-side, so the line appears once the server
// confirms it. Fails fast with client.ErrUnauthenticated when anonymous.
func (e *Engine) Add(ctx context.Context, productID int64, quantity int) (*client.Line, error) {
	if quantity < 1 {
		return nil, fmt.Errorf("add to cart: %w", ErrInvalidQuantity)
	}
	if !e.auth.Authenticated() {
		return nil, fmt.Errorf("add to cart: %w", client.ErrUnauthenticated)
	}

	e.mu.Lock()
	gen := e.gen
	e.inflight++
	e.mu.Unlock()

	line, err := e.api.AddCartItem(ctx, productID, quantity)

	e.mu.Lock()
	defer e.mu.Unlock()
	e.inflight--
	if err != nil {
		return nil, err
	}
	if e.gen != gen {
		// Cart was cleared or replaced while the request was in flight. The
		// server holds the line; local state stays as the owner left it.
		return line, nil
	}

	// One local line per product: the server returns the merged line when
	// the product is already in the cart.
	idx := slices.IndexFunc(e.items, func(l client.Line) bool {
		return l.Product.ID == line.Product.ID
	})
	if idx >= 0 {
		prev := e.items[idx]
		if prev.ID != line.ID {
			delete(e.tracks, prev.ID)
		}
		e.items[idx] = *line
	} else {
		e.items = append(e.items, *line)
	}
	// Keep the existing track so its issue counter survives: an update for
	// this line may still be in flight, and resetting the counter would let
	// its superseded response pass the staleness check.
	tr := e.tracks[line.ID]
	if tr == nil {
		tr = &lineTrack{}
		e.tracks[line.ID] = tr
	}
	tr.confirmed = line.Quantity
	return line, nil
}

// UpdateQuantity optimistically sets the line's quantity, then reconciles
// with the server's response. Responses are applied last-issued-wins: a
// slow response to a superseded request is discarded instead of clobbering
// a newer optimistic value. On failure of the latest request the quantity
// rolls back to the last server-confirmed value.
func (e *Engine) UpdateQuantity(ctx context.Context, lineID int64, quantity int) error {
	if quantity < 1 {
		return fmt.Errorf("update quantity: %w", ErrInvalidQuantity)
	}
	if !e.auth.Authenticated() {
		return fmt.Errorf("update quantity: %w", client.ErrUnauthenticated)
	}

	e.mu.Lock()
	idx := e.indexOfLocked(lineID)
	if idx < 0 {
		e.mu.Unlock()
		return fmt.Errorf("line %d: %w", lineID, ErrLineNotFound)
	}
	tr := e.tracks[lineID]
	if tr == nil {
		tr = &lineTrack{confirmed: e.items[idx].Quantity}
		e.tracks[lineID] = tr
	}
	e.items[idx].Quantity = quantity
	tr.issued++
	seq := tr.issued
	gen := e.gen
	e.inflight++
	e.mu.Unlock()

	line, err := e.api.UpdateCartItem(ctx, lineID, quantity)

	e.mu.Lock()
	defer e.mu.Unlock()
	e.inflight--

	if e.gen != gen {
		return nil
	}
	tr, ok := e.tracks[lineID]
	if !ok || tr.issued != seq {
		// Superseded by a newer request for this line; this response is
		// inert whether it succeeded or failed.
		return nil
	}
	idx = e.indexOfLocked(lineID)
	if err != nil {
		if idx >= 0 {
			e.items[idx].Quantity = tr.confirmed
		}
		return err
	}
	if idx >= 0 {
		// The server may have clamped the quantity to stock; its line is
		// authoritative even when it differs from what was requested.
		e.items[idx] = *line
	}
	tr.confirmed = line.Quantity
	return nil
}

// Remove optimistically deletes the line, then confirms with the server. A
// failed delete reinserts the line at its original position with its
// original fields, so the failure is visibly undone.
func (e *Engine) Remove(ctx context.Context, lineID int64) error {
	if !e.auth.Authenticated() {
		return fmt.Errorf("remove item: %w", client.ErrUnauthenticated)
	}

	e.mu.Lock()
	idx := e.indexOfLocked(lineID)
	if idx < 0 {
		e.mu.Unlock()
		return fmt.Errorf("line %d: %w", lineID, ErrLineNotFound)
	}
	removed := e.items[idx]
	track := e.tracks[lineID]
	e.items = slices.Delete(e.items, idx, idx+1)
	delete(e.tracks, lineID)
	gen := e.gen
	e.inflight++
	e.mu.Unlock()

	err := e.api.RemoveCartItem(ctx, lineID)

	e.mu.Lock()
	defer e.mu.Unlock()
	e.inflight--
	if err == nil || e.gen != gen {
		return err
	}
	at := min(idx, len(e.items))
	e.items = slices.Insert(e.items, at, removed)
	// Restore the original track rather than a fresh one so its issue
	// counter is not reset while an older update is still in flight.
	if track == nil {
		track = &lineTrack{confirmed: removed.Quantity}
	}
	e.tracks[lineID] = track
	return err
}

// MergeAndFetch implements the login-time merge protocol. The pre-login
// lines are scratch input only: each is replayed as an add against the now
// authenticated cart, per-item failures are collected without aborting the
// rest, and the local cart is then replaced by the server's post-merge
// state regardless of how many items merged.
func (e *Engine) MergeAndFetch(ctx context.Context) []error {
	e.mu.Lock()
	pending := make([]client.Line, len(e.items))
	copy(pending, e.items)
	e.inflight++
	e.mu.Unlock()

	var failures []error
	for _, l := range pending {
		if _, err := e.api.AddCartItem(ctx, l.Product.ID, l.Quantity); err != nil {
			failures = append(failures, &MergeItemError{
				ProductID: l.Product.ID,
				Quantity:  l.Quantity,
				Err:       err,
			})
		}
	}
	e.mu.Lock()
	e.inflight--
	e.mu.Unlock()
	if err := e.Fetch(ctx); err != nil {
		failures = append(failures, fmt.Errorf("fetching merged cart: %w", err))
	}
	return failures
}

func (e *Engine) indexOfLocked(lineID int64) int {
	return slices.IndexFunc(e.items, func(l client.Line) bool {
		return l.ID == lineID
	})
}
