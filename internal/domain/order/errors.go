package order

import (
	"fmt"

	"github.com/go-faster/errors"
)

var (
	// ErrEmptyOrder is returned when an order has no line items.
	ErrEmptyOrder = errors.New("order must contain at least one item")
	// ErrNotFound is returned when no order matches, including orders that
	// belong to another customer.
	ErrNotFound = errors.New("order not found")
	// ErrDuplicateNumber is returned by Repository.Create on an order number
	// collision. PlaceOrder retries it.
	ErrDuplicateNumber = errors.New("duplicate order number")
)

// InvalidQuantityError indicates a line item quantity below one.
type InvalidQuantityError struct {
	ProductID string
}

func (e *InvalidQuantityError) Error() string {
	return fmt.Sprintf("quantity must be at least 1 for product %s", e.ProductID)
}

// ProductUnavailableError indicates a product that is missing or cannot be
// purchased right now.
type ProductUnavailableError struct {
	Name string
}

func (e *ProductUnavailableError) Error() string {
	return fmt.Sprintf("%s is not available", e.Name)
}

// InsufficientStockError indicates a request for more units than are left.
type InsufficientStockError struct {
	Name      string
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for %s. Available: %d", e.Name, e.Available)
}

// InvalidTransitionError indicates a status change the state machine forbids.
type InvalidTransitionError struct {
	Current Status
	Target  Status
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("cannot change order from %s to %s", e.Current, e.Target)
}
