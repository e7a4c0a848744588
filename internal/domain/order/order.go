package order

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xenking/chils-store/internal/domain/product"
	"github.com/xenking/chils-store/internal/domain/user"
)

// Status is the fulfilment state of an order.
type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusPreparing Status = "preparing"
	StatusReady     Status = "ready"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

var validNext = map[Status]map[Status]bool{
	StatusPending:   {StatusConfirmed: true, StatusCancelled: true},
	StatusConfirmed: {StatusPreparing: true, StatusCancelled: true},
	StatusPreparing: {StatusReady: true},
	StatusReady:     {StatusCompleted: true},
	StatusCompleted: {},
	StatusCancelled: {},
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	_, ok := validNext[s]
	return ok
}

// Terminal reports whether no transition leaves s.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// CanTransition reports whether an order may move from one status to another.
func CanTransition(from, to Status) bool {
	return validNext[from][to]
}

// PaymentStatus is the payment state as seen from the order.
type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "pending"
	PaymentPaid     PaymentStatus = "paid"
	PaymentFailed   PaymentStatus = "failed"
	PaymentRefunded PaymentStatus = "refunded"
)

// PaymentMethod is how the customer intends to pay.
type PaymentMethod string

const (
	MethodGCash PaymentMethod = "gcash"
	MethodCash  PaymentMethod = "cash"
)

// DeliveryWindow is added to the order date when no estimate is set.
const DeliveryWindow = 45 * time.Minute

// Order is a customer order. Line items are embedded and never shared.
type Order struct {
	ID                  string
	Number              string
	CustomerID          string
	Items               []LineItem
	Total               decimal.Decimal
	Status              Status
	PaymentStatus       PaymentStatus
	PaymentMethod       PaymentMethod
	DeliveryAddress     user.Address
	SpecialInstructions string
	OrderDate           time.Time
	EstimatedDelivery   time.Time
	CompletedAt         *time.Time
	UpdatedAt           time.Time

	// Filled on admin listings only.
	CustomerName  string
	CustomerEmail string
}

// LineItem is one product line. Name and Price are snapshots taken when the
// order was placed.
type LineItem struct {
	ProductID string          `json:"product_id"`
	Name      string          `json:"name"`
	Quantity  int             `json:"quantity"`
	Price     decimal.Decimal `json:"price"`

	// Product is the current catalog entry, joined on read. Nil when the
	// product has since been deleted.
	Product *product.Product `json:"-"`
}

// Subtotal returns Price × Quantity.
func (li LineItem) Subtotal() decimal.Decimal {
	return li.Price.Mul(decimal.NewFromInt(int64(li.Quantity)))
}

// ComputeTotal sums the line subtotals, rounded to cents.
func ComputeTotal(items []LineItem) decimal.Decimal {
	total := decimal.Zero
	for _, li := range items {
		total = total.Add(li.Subtotal())
	}
	return total.Round(2)
}

// setStatus moves the order to next and stamps CompletedAt the first time a
// terminal status is entered.
func (o *Order) setStatus(next Status, now time.Time) {
	o.Status = next
	if next.Terminal() && o.CompletedAt == nil {
		at := now
		o.CompletedAt = &at
	}
	o.UpdatedAt = now
}

// DailySales is one row of the sales report.
type DailySales struct {
	Day    time.Time
	Total  decimal.Decimal
	Orders int
}

// Repository defines persistence operations for orders. Inside a unit of
// work the same methods run on the transaction.
type Repository interface {
	// Create inserts a new order. It returns ErrDuplicateNumber when the order
	// number is already taken.
	Create(ctx context.Context, o *Order) error
	GetByID(ctx context.Context, id string) (*Order, error)
	// GetForUpdate reads an order and locks it until the unit of work ends.
	GetForUpdate(ctx context.Context, id string) (*Order, error)
	ListByCustomer(ctx context.Context, customerID string) ([]Order, error)
	// List returns orders newest first with customer details. limit <= 0
	// returns every order.
	List(ctx context.Context, limit int) ([]Order, error)
	// Update persists status, payment status and completion time.
	Update(ctx context.Context, o *Order) error
	Count(ctx context.Context) (int, error)
	SalesByDay(ctx context.Context, since time.Time) ([]DailySales, error)
}

// ProductStore is the catalog as seen from inside a unit of work.
type ProductStore interface {
	// GetForUpdate reads and locks the given products. Missing IDs are
	// skipped.
	GetForUpdate(ctx context.Context, ids []string) ([]product.Product, error)
	// DecrementStock subtracts qty only if the product is available and has
	// at least qty in stock, otherwise returns product.ErrInsufficientStock.
	DecrementStock(ctx context.Context, id string, qty int) error
	// RestoreStock adds qty back. It returns product.ErrNotFound when the
	// product no longer exists.
	RestoreStock(ctx context.Context, id string, qty int) error
}

// PaymentStore is the subset of payment persistence orders depend on.
type PaymentStore interface {
	// CancelPending cancels a still pending payment of the order, if any.
	CancelPending(ctx context.Context, orderID string) error
}

// Store groups the repositories bound to one transaction.
type Store interface {
	Products() ProductStore
	Orders() Repository
	Payments() PaymentStore
}

// UnitOfWork runs fn in a single transaction. The transaction commits when
// fn returns nil and rolls back otherwise.
type UnitOfWork interface {
	Do(ctx context.Context, fn func(ctx context.Context, s Store) error) error
}

// Catalog reads current product details for display.
type Catalog interface {
	GetByIDs(ctx context.Context, ids []string) ([]product.Product, error)
	Count(ctx context.Context) (int, error)
}

// Customers reads account data the order flow depends on.
type Customers interface {
	Get(ctx context.Context, id string) (*user.User, error)
	CountCustomers(ctx context.Context) (int, error)
}
