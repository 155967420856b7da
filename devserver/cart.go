package devserver

import (
	"net/http"
	"slices"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/jmcleod/storefront/client"
)

func (s *Server) handleFetchCart(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r)
	s.mu.Lock()
	items := slices.Clone(s.carts[claims.UserID])
	s.mu.Unlock()
	if items == nil {
		items = []client.Line{}
	}
	writeJSON(w, http.StatusOK, client.CartResponse{Items: items})
}

// handleAddItem creates a line, or merges the quantity into the existing
// line for the same product. Quantities are clamped to stock; a product
// with no stock at all is rejected.
func (s *Server) handleAddItem(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r)
	req, ok := decodeJSON[client.AddItemRequest](w, r)
	if !ok {
		return
	}
	if req.Quantity < 1 {
		writeError(w, http.StatusUnprocessableEntity, "quantity must be at least 1")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	product := s.productByID(req.ProductID)
	if product == nil {
		writeError(w, http.StatusUnprocessableEntity, "unknown product")
		return
	}
	if product.Stock < 1 {
		writeError(w, http.StatusUnprocessableEntity, product.Name+" is out of stock")
		return
	}

	cart := s.carts[claims.UserID]
	idx := slices.IndexFunc(cart, func(l client.Line) bool {
		return l.Product.ID == req.ProductID
	})
	if idx >= 0 {
		line := &cart[idx]
		line.Quantity = min(line.Quantity+req.Quantity, product.Stock)
		line.Product = *product
		writeJSON(w, http.StatusOK, *line)
		return
	}

	s.nextLine++
	line := client.Line{
		ID:       s.nextLine,
		Product:  *product,
		Quantity: min(req.Quantity, product.Stock),
	}
	s.carts[claims.UserID] = append(cart, line)
	writeJSON(w, http.StatusCreated, line)
}

// handleUpdateItem sets a line's quantity, clamped to current stock. The
// response line is authoritative, clamp included.
func (s *Server) handleUpdateItem(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r)
	lineID, err := strconv.ParseInt(chi.URLParam(r, "lineID"), 10, 64)
	if err != nil {
		writeError(w, http.StatusNotFound, "no such cart line")
		return
	}
	req, ok := decodeJSON[client.UpdateItemRequest](w, r)
	if !ok {
		return
	}
	if req.Quantity < 1 {
		writeError(w, http.StatusUnprocessableEntity, "quantity must be at least 1")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cart := s.carts[claims.UserID]
	idx := slices.IndexFunc(cart, func(l client.Line) bool { return l.ID == lineID })
	if idx < 0 {
		writeError(w, http.StatusNotFound, "no such cart line")
		return
	}
	line := &cart[idx]
	if product := s.productByID(line.Product.ID); product != nil {
		line.Product = *product
	}
	line.Quantity = req.Quantity
	if line.Product.Stock < line.Quantity {
		line.Quantity = line.Product.Stock
	}
	writeJSON(w, http.StatusOK, *line)
}

func (s *Server) handleRemoveItem(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r)
	lineID, err := strconv.ParseInt(chi.URLParam(r, "lineID"), 10, 64)
	if err != nil {
		writeError(w, http.StatusNotFound, "no such cart line")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cart := s.carts[claims.UserID]
	idx := slices.IndexFunc(cart, func(l client.Line) bool { return l.ID == lineID })
	if idx < 0 {
		writeError(w, http.StatusNotFound, "no such cart line")
		return
	}
	s.carts[claims.UserID] = slices.Delete(cart, idx, idx+1)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) productByID(id int64) *client.ProductSnapshot {
	for i := range s.products {
		if s.products[i].ID == id {
			return &s.products[i]
		}
	}
	return nil
}
