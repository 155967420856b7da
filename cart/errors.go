package cart

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidQuantity indicates a quantity below 1. Removal is a distinct
	// operation; the engine never shrinks a line to zero.
	ErrInvalidQuantity = errors.New("quantity must be at least 1")
	// ErrLineNotFound indicates the referenced cart line is not in the
	// engine's current state.
	ErrLineNotFound = errors.New("cart line not found")
)

// MergeItemError records one pre-login line that the server refused during
// the login-time merge. It is reported as a warning, never as a login
// failure.
type MergeItemError struct {
	ProductID int64
	Quantity  int
	Err       error
}

func (e *MergeItemError) Error() string {
	return fmt.Sprintf("merging product %d (qty %d): %v", e.ProductID, e.Quantity, e.Err)
}

func (e *MergeItemError) Unwrap() error {
	return e.Err
}
