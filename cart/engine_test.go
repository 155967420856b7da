package cart

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmcleod/storefront/client"
)

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

type gate struct {
	authed bool
}

func (g *gate) Authenticated() bool {
	return g.authed
}

type fixedTokens struct{}

func (fixedTokens) Token() (string, bool) {
	return "test-token", true
}

func newEngine(t *testing.T, handler http.Handler, authed bool) (*Engine, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	api := client.New(srv.URL, client.WithLogger(testLogger()))
	api.SetTokenSource(fixedTokens{})
	return NewEngine(api, &gate{authed: authed}, WithLogger(testLogger())), srv
}

// seed installs lines as if a fetch had just completed.
func seed(e *Engine, lines ...client.Line) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.replaceLocked(lines)
}

func line(id, productID int64, qty int) client.Line {
	return client.Line{
		ID: id,
		Product: client.ProductSnapshot{
			ID:    productID,
			Name:  "Product",
			Price: 1000,
			Stock: 10,
		},
		Quantity: qty,
	}
}

func writeLine(w http.ResponseWriter, l client.Line) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(l)
}

func TestAddRequiresSession(t *testing.T) {
	var calls atomic.Int64
	e, _ := newEngine(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}), false)

	_, err := e.Add(t.Context(), 5, 1)
	require.ErrorIs(t, err, client.ErrUnauthenticated)
	assert.Equal(t, int64(0), calls.Load(), "fail-fast must not touch the network")
	assert.Empty(t, e.Items())
}

func TestAddRejectsInvalidQuantity(t *testing.T) {
	var calls atomic.Int64
	e, _ := newEngine(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}), true)

	_, err := e.Add(t.Context(), 5, 0)
	require.ErrorIs(t, err, ErrInvalidQuantity)
	assert.Equal(t, int64(0), calls.Load())
}

func TestAddAppendsServerLine(t *testing.T) {
	e, _ := newEngine(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeLine(w, line(11, 5, 2))
	}), true)

	added, err := e.Add(t.Context(), 5, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(11), added.ID)

	items := e.Items()
	require.Len(t, items, 1)
	assert.Equal(t, 2, items[0].Quantity)
}

func TestAddNeverDuplicatesProduct(t *testing.T) {
	// Server merges repeated adds of the same product into one line.
	qty := 0
	e, _ := newEngine(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req client.AddItemRequest
		json.NewDecoder(r.Body).Decode(&req)
		qty += req.Quantity
		writeLine(w, line(11, req.ProductID, qty))
	}), true)

	_, err := e.Add(t.Context(), 5, 1)
	require.NoError(t, err)
	_, err = e.Add(t.Context(), 5, 3)
	require.NoError(t, err)

	items := e.Items()
	require.Len(t, items, 1, "one line per product id")
	assert.Equal(t, 4, items[0].Quantity)
}

func TestUpdateQuantityOptimisticThenReconciled(t *testing.T) {
	e, _ := newEngine(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req client.UpdateItemRequest
		json.NewDecoder(r.Body).Decode(&req)
		// Clamp to stock of 10, as a real server would.
		writeLine(w, line(3, 7, min(req.Quantity, 10)))
	}), true)
	seed(e, line(3, 7, 2))

	require.NoError(t, e.UpdateQuantity(t.Context(), 3, 5))
	assert.Equal(t, 5, e.Items()[0].Quantity)

	// Requested 50, server clamps to 10. The clamp is authoritative.
	require.NoError(t, e.UpdateQuantity(t.Context(), 3, 50))
	assert.Equal(t, 10, e.Items()[0].Quantity)
}

func TestUpdateQuantityRejectsBelowOne(t *testing.T) {
	var calls atomic.Int64
	e, _ := newEngine(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}), true)
	seed(e, line(3, 7, 2))

	err := e.UpdateQuantity(t.Context(), 3, 0)
	require.ErrorIs(t, err, ErrInvalidQuantity)
	assert.Equal(t, int64(0), calls.Load())
	assert.Equal(t, 2, e.Items()[0].Quantity)
}

func TestUpdateQuantityRollsBackOnFailure(t *testing.T) {
	e, _ := newEngine(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		w.Write([]byte(`{"error":"no"}`))
	}), true)
	seed(e, line(3, 7, 2))

	err := e.UpdateQuantity(t.Context(), 3, 5)
	var verr *client.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, 2, e.Items()[0].Quantity, "rolled back to the server-confirmed value")
}

func TestUpdateQuantityLastIssuedWins(t *testing.T) {
	// The response for qty=2 is delayed until after the response for qty=5
	// has been applied. The late response must be discarded.
	firstArrived := make(chan struct{})
	releaseFirst := make(chan struct{})
	e, _ := newEngine(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req client.UpdateItemRequest
		json.NewDecoder(r.Body).Decode(&req)
		if req.Quantity == 2 {
			close(firstArrived)
			<-releaseFirst
		}
		writeLine(w, line(3, 7, req.Quantity))
	}), true)
	seed(e, line(3, 7, 1))

	errc := make(chan error, 1)
	go func() {
		errc <- e.UpdateQuantity(t.Context(), 3, 2)
	}()
	<-firstArrived

	require.NoError(t, e.UpdateQuantity(t.Context(), 3, 5))
	assert.Equal(t, 5, e.Items()[0].Quantity)

	close(releaseFirst)
	require.NoError(t, <-errc)
	assert.Equal(t, 5, e.Items()[0].Quantity, "stale response must not clobber the newer value")
}

func TestStaleFailureDoesNotRollBack(t *testing.T) {
	// A superseded request that fails must be as inert as one that
	// succeeds; only the latest request may roll the line back.
	firstArrived := make(chan struct{})
	releaseFirst := make(chan struct{})
	e, _ := newEngine(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req client.UpdateItemRequest
		json.NewDecoder(r.Body).Decode(&req)
		if req.Quantity == 2 {
			close(firstArrived)
			<-releaseFirst
			w.WriteHeader(http.StatusUnprocessableEntity)
			w.Write([]byte(`{"error":"no"}`))
			return
		}
		writeLine(w, line(3, 7, req.Quantity))
	}), true)
	seed(e, line(3, 7, 1))

	errc := make(chan error, 1)
	go func() {
		errc <- e.UpdateQuantity(t.Context(), 3, 2)
	}()
	<-firstArrived

	require.NoError(t, e.UpdateQuantity(t.Context(), 3, 5))
	close(releaseFirst)
	require.NoError(t, <-errc)
	assert.Equal(t, 5, e.Items()[0].Quantity)
}

func TestRemoveOptimisticThenConfirmed(t *testing.T) {
	e, _ := newEngine(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}), true)
	seed(e, line(1, 5, 1), line(2, 6, 1), line(3, 7, 1))

	require.NoError(t, e.Remove(t.Context(), 2))
	items := e.Items()
	require.Len(t, items, 2)
	assert.Equal(t, int64(1), items[0].ID)
	assert.Equal(t, int64(3), items[1].ID)
}

func TestRemoveReinsertsOnFailure(t *testing.T) {
	e, _ := newEngine(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error":"boom"}`))
	}), true)
	original := line(2, 6, 4)
	seed(e, line(1, 5, 1), original, line(3, 7, 1))

	err := e.Remove(t.Context(), 2)
	require.Error(t, err)

	items := e.Items()
	require.Len(t, items, 3)
	assert.Equal(t, original, items[1], "line restored at its original index with its original fields")
}

func TestFailedRemoveDoesNotReviveStaleUpdate(t *testing.T) {
	// With the qty=2 update still in flight, a failed remove reinserts the
	// line. A later qty=5 update then wins; when the qty=2 response finally
	// lands it must still register as superseded, even though the line went
	// out of and back into the cart in between.
	firstArrived := make(chan struct{})
	releaseFirst := make(chan struct{})
	e, _ := newEngine(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodDelete {
			w.WriteHeader(http.StatusInternalServerError)
			w.Write([]byte(`{"error":"boom"}`))
			return
		}
		var req client.UpdateItemRequest
		json.NewDecoder(r.Body).Decode(&req)
		if req.Quantity == 2 {
			close(firstArrived)
			<-releaseFirst
		}
		writeLine(w, line(3, 7, req.Quantity))
	}), true)
	seed(e, line(3, 7, 1))

	errc := make(chan error, 1)
	go func() {
		errc <- e.UpdateQuantity(t.Context(), 3, 2)
	}()
	<-firstArrived

	require.Error(t, e.Remove(t.Context(), 3))
	require.Len(t, e.Items(), 1, "failed remove reinserts the line")

	require.NoError(t, e.UpdateQuantity(t.Context(), 3, 5))
	close(releaseFirst)
	require.NoError(t, <-errc)
	assert.Equal(t, 5, e.Items()[0].Quantity, "superseded response must stay inert across the remove round-trip")
}

func TestAddMergeDoesNotReviveStaleUpdate(t *testing.T) {
	// An add that the server merges into an existing line lands between a
	// superseded update and its response. The merge must not make the old
	// response look current again.
	firstArrived := make(chan struct{})
	releaseFirst := make(chan struct{})
	e, _ := newEngine(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			writeLine(w, line(3, 7, 4))
			return
		}
		var req client.UpdateItemRequest
		json.NewDecoder(r.Body).Decode(&req)
		if req.Quantity == 2 {
			close(firstArrived)
			<-releaseFirst
		}
		writeLine(w, line(3, 7, req.Quantity))
	}), true)
	seed(e, line(3, 7, 1))

	errc := make(chan error, 1)
	go func() {
		errc <- e.UpdateQuantity(t.Context(), 3, 2)
	}()
	<-firstArrived

	_, err := e.Add(t.Context(), 7, 3)
	require.NoError(t, err)

	require.NoError(t, e.UpdateQuantity(t.Context(), 3, 6))
	close(releaseFirst)
	require.NoError(t, <-errc)
	assert.Equal(t, 6, e.Items()[0].Quantity)
}

func TestClearMakesInFlightResponsesInert(t *testing.T) {
	// Simulates logout while an update is in flight: the cart is cleared
	// and the late response must not resurrect anything.
	arrived := make(chan struct{})
	release := make(chan struct{})
	e, _ := newEngine(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		close(arrived)
		<-release
		writeLine(w, line(3, 7, 5))
	}), true)
	seed(e, line(3, 7, 1))

	errc := make(chan error, 1)
	go func() {
		errc <- e.UpdateQuantity(t.Context(), 3, 5)
	}()
	<-arrived

	e.Clear()
	close(release)
	require.NoError(t, <-errc)
	assert.Empty(t, e.Items())
}

func TestFetchKeepsStaleItemsOnFailure(t *testing.T) {
	fail := false
	e, _ := newEngine(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if fail {
			w.WriteHeader(http.StatusInternalServerError)
			w.Write([]byte(`{"error":"boom"}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(client.CartResponse{Items: []client.Line{line(1, 5, 2)}})
	}), true)

	require.NoError(t, e.Fetch(t.Context()))
	require.Len(t, e.Items(), 1)

	fail = true
	require.Error(t, e.Fetch(t.Context()))
	assert.Len(t, e.Items(), 1, "stale-but-present beats an empty flash")
}

func TestMergeAndFetchPartialFailure(t *testing.T) {
	// Product 7 is accepted, product 9 is out of stock. The merge must
	// carry on past the failure and finish with an authoritative fetch.
	e, _ := newEngine(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost:
			var req client.AddItemRequest
			json.NewDecoder(r.Body).Decode(&req)
			if req.ProductID == 9 {
				w.WriteHeader(http.StatusUnprocessableEntity)
				w.Write([]byte(`{"error":"out of stock"}`))
				return
			}
			writeLine(w, line(21, req.ProductID, req.Quantity))
		default:
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(client.CartResponse{Items: []client.Line{line(21, 7, 2)}})
		}
	}), true)
	seed(e, line(101, 7, 2), line(102, 9, 1))

	failures := e.MergeAndFetch(t.Context())
	require.Len(t, failures, 1)

	var merr *MergeItemError
	require.ErrorAs(t, failures[0], &merr)
	assert.Equal(t, int64(9), merr.ProductID)

	items := e.Items()
	require.Len(t, items, 1, "final cart reflects only what the server holds")
	assert.Equal(t, int64(7), items[0].Product.ID)
}

func TestMergeAndFetchEmptyCartSkipsToFetch(t *testing.T) {
	var adds, fetches atomic.Int64
	e, _ := newEngine(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			adds.Add(1)
			return
		}
		fetches.Add(1)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(client.CartResponse{Items: []client.Line{line(1, 5, 3)}})
	}), true)

	failures := e.MergeAndFetch(t.Context())
	require.Empty(t, failures)
	assert.Equal(t, int64(0), adds.Load(), "nothing to merge")
	assert.Equal(t, int64(1), fetches.Load())
	require.Len(t, e.Items(), 1)
}

func TestStatusSyncingDuringMerge(t *testing.T) {
	// Merge replays are network work like any other; Status() must report
	// syncing for the whole merge, not just the trailing fetch.
	arrived := make(chan struct{})
	release := make(chan struct{})
	e, _ := newEngine(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			close(arrived)
			<-release
			writeLine(w, line(21, 7, 2))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(client.CartResponse{Items: []client.Line{line(21, 7, 2)}})
	}), true)
	seed(e, line(101, 7, 2))

	done := make(chan []error, 1)
	go func() {
		done <- e.MergeAndFetch(t.Context())
	}()
	<-arrived
	assert.Equal(t, StatusSyncing, e.Status())

	close(release)
	require.Empty(t, <-done)
	assert.Equal(t, StatusIdle, e.Status())
}

func TestStatusSyncingWhileInFlight(t *testing.T) {
	arrived := make(chan struct{})
	release := make(chan struct{})
	e, _ := newEngine(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		close(arrived)
		<-release
		writeLine(w, line(3, 7, 5))
	}), true)
	seed(e, line(3, 7, 1))

	require.Equal(t, StatusIdle, e.Status())

	errc := make(chan error, 1)
	go func() {
		errc <- e.UpdateQuantity(t.Context(), 3, 5)
	}()
	<-arrived
	assert.Equal(t, StatusSyncing, e.Status())

	close(release)
	require.NoError(t, <-errc)
	assert.Equal(t, StatusIdle, e.Status())
}
