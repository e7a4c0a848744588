package payment

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/chils-store/internal/domain/order"
)

var (
	// ErrNotFound is returned when no payment matches, including payments
	// that belong to another customer.
	ErrNotFound = errors.New("payment not found")
	// ErrOrderNotFound is returned when initiating payment for a missing or
	// foreign order.
	ErrOrderNotFound = errors.New("order not found")
	// ErrAlreadyPaid is returned when the order is already paid.
	ErrAlreadyPaid = errors.New("order is already paid")
	// ErrAlreadyExists is returned when the order already has a payment.
	ErrAlreadyExists = errors.New("payment already exists for this order")
	// ErrDuplicateReference is returned by Repository.Create when the
	// generated reference is taken. Initiate retries it.
	ErrDuplicateReference = errors.New("duplicate payment reference")
	// ErrOrderCancelled is returned when paying for a cancelled order.
	ErrOrderCancelled = errors.New("order is cancelled")
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// InvalidTransitionError indicates a payment that can no longer change to
// the requested status.
type InvalidTransitionError struct {
	Current Status
	Target  Status
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("cannot change payment from %s to %s", e.Current, e.Target)
}

// Payment is a single payment attempt. An order has at most one.
type Payment struct {
	ID            string
	OrderID       string
	CustomerID    string
	Amount        decimal.Decimal
	Method        order.PaymentMethod
	Status        Status
	Reference     string
	QRCode        string
	TransactionID string
	FailureReason string
	PaymentDate   time.Time
	CompletedAt   *time.Time
}

// Repository defines persistence operations for payments.
type Repository interface {
	// Create inserts a payment. It returns ErrAlreadyExists when the order
	// already has one and ErrDuplicateReference on a reference collision.
	Create(ctx context.Context, p *Payment) error
	GetByID(ctx context.Context, id string) (*Payment, error)
	GetByReference(ctx context.Context, reference string) (*Payment, error)
	// GetForUpdate reads and locks a payment until the unit of work ends.
	// Callers lock the order first.
	GetForUpdate(ctx context.Context, id string) (*Payment, error)
	// Update persists status, completion and failure fields.
	Update(ctx context.Context, p *Payment) error
}

// OrderStore is the subset of order persistence payments depend on.
type OrderStore interface {
	GetForUpdate(ctx context.Context, id string) (*order.Order, error)
	Update(ctx context.Context, o *order.Order) error
}

// Store groups the repositories bound to one transaction.
type Store interface {
	Orders() OrderStore
	Payments() Repository
}

// UnitOfWork runs fn in a single transaction.
type UnitOfWork interface {
	Do(ctx context.Context, fn func(ctx context.Context, s Store) error) error
}
