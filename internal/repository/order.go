package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"

	"github.com/xenking/chils-store/internal/domain/order"
	"github.com/xenking/chils-store/internal/domain/payment"
)

const (
	orderColumns = `o.id, o.order_number, o.customer_id, o.items, o.total, o.status, o.payment_status,
		o.payment_method, o.delivery_address, o.special_instructions, o.order_date,
		o.estimated_delivery, o.completed_at, o.updated_at`

	createOrderSQL = `INSERT INTO orders (id, order_number, customer_id, items, total, status,
		payment_status, payment_method, delivery_address, special_instructions, order_date,
		estimated_delivery, completed_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`

	getOrderByIDSQL = `SELECT ` + orderColumns + ` FROM orders o WHERE o.id = $1`

	lockOrderSQL = `SELECT ` + orderColumns + ` FROM orders o WHERE o.id = $1 FOR UPDATE`

	listOrdersByCustomerSQL = `SELECT ` + orderColumns + ` FROM orders o
		WHERE o.customer_id = $1 ORDER BY o.order_date DESC, o.id`

	listOrdersSQL = `SELECT ` + orderColumns + `, COALESCE(u.name, ''), COALESCE(u.email, '')
		FROM orders o LEFT JOIN users u ON u.id = o.customer_id
		ORDER BY o.order_date DESC, o.id
		LIMIT $1`

	updateOrderSQL = `UPDATE orders SET status = $2, payment_status = $3, completed_at = $4, updated_at = $5
		WHERE id = $1`

	countOrdersSQL = `SELECT COUNT(*) FROM orders`

	salesByDaySQL = `SELECT date_trunc('day', order_date) AS day, SUM(total), COUNT(*)
		FROM orders
		WHERE status = 'completed' AND order_date >= $1
		GROUP BY day
		ORDER BY day`
)

var (
	_ order.Repository   = (*OrderRepository)(nil)
	_ payment.OrderStore = (*OrderRepository)(nil)
)

// OrderRepository implements order.Repository backed by PostgreSQL.
type OrderRepository struct {
	db DB
}

// NewOrderRepository returns an OrderRepository that uses the given pool or
// transaction.
func NewOrderRepository(db DB) *OrderRepository {
	return &OrderRepository{db: db}
}

// Create persists a new order. Line items and the delivery address are
// serialized to JSON for storage in JSONB columns.
func (r *OrderRepository) Create(ctx context.Context, o *order.Order) error {
	itemsJSON, err := json.Marshal(o.Items)
	if err != nil {
		return fmt.Errorf("marshaling order items: %w", err)
	}
	addressJSON, err := json.Marshal(o.DeliveryAddress)
	if err != nil {
		return fmt.Errorf("marshaling delivery address: %w", err)
	}

	var estimated *time.Time
	if !o.EstimatedDelivery.IsZero() {
		estimated = &o.EstimatedDelivery
	}

	_, err = r.db.Exec(ctx, createOrderSQL,
		o.ID, o.Number, o.CustomerID, itemsJSON, o.Total, string(o.Status),
		string(o.PaymentStatus), string(o.PaymentMethod), addressJSON, o.SpecialInstructions,
		o.OrderDate, estimated, o.CompletedAt, o.UpdatedAt,
	)
	if err != nil {
		if uniqueViolation(err, "orders_order_number_key") {
			return order.ErrDuplicateNumber
		}
		return fmt.Errorf("creating order %q: %w", o.ID, err)
	}

	return nil
}

func (r *OrderRepository) GetByID(ctx context.Context, id string) (*order.Order, error) {
	return r.getOne(ctx, getOrderByIDSQL, id)
}

// GetForUpdate reads the order with a row lock held until the transaction
// ends.
func (r *OrderRepository) GetForUpdate(ctx context.Context, id string) (*order.Order, error) {
	return r.getOne(ctx, lockOrderSQL, id)
}

func (r *OrderRepository) getOne(ctx context.Context, query, id string) (*order.Order, error) {
	rows, err := r.db.Query(ctx, query, id)
	if err != nil {
		return nil, fmt.Errorf("getting order %q: %w", id, err)
	}

	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, fmt.Errorf("getting order %q: %w", id, err)
	}
	return &o, nil
}

func (r *OrderRepository) ListByCustomer(ctx context.Context, customerID string) ([]order.Order, error) {
	rows, err := r.db.Query(ctx, listOrdersByCustomerSQL, customerID)
	if err != nil {
		return nil, fmt.Errorf("listing orders of %q: %w", customerID, err)
	}
	return pgx.CollectRows(rows, scanOrder)
}

// List returns orders newest first with the customer's name and email.
func (r *OrderRepository) List(ctx context.Context, limit int) ([]order.Order, error) {
	var lim *int
	if limit > 0 {
		lim = &limit
	}
	rows, err := r.db.Query(ctx, listOrdersSQL, lim)
	if err != nil {
		return nil, fmt.Errorf("listing orders: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (order.Order, error) {
		var r orderRow
		err := row.Scan(append(r.dest(), &r.o.CustomerName, &r.o.CustomerEmail)...)
		return r.toOrder(), err
	})
}

func (r *OrderRepository) Update(ctx context.Context, o *order.Order) error {
	tag, err := r.db.Exec(ctx, updateOrderSQL,
		o.ID, string(o.Status), string(o.PaymentStatus), o.CompletedAt, o.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("updating order %q: %w", o.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return order.ErrNotFound
	}
	return nil
}

func (r *OrderRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRow(ctx, countOrdersSQL).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting orders: %w", err)
	}
	return n, nil
}

// SalesByDay aggregates completed orders per calendar day since the given
// time.
func (r *OrderRepository) SalesByDay(ctx context.Context, since time.Time) ([]order.DailySales, error) {
	rows, err := r.db.Query(ctx, salesByDaySQL, since)
	if err != nil {
		return nil, fmt.Errorf("aggregating sales: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (order.DailySales, error) {
		var d order.DailySales
		err := row.Scan(&d.Day, &d.Total, &d.Orders)
		return d, err
	})
}

// orderRow mirrors the selected columns before conversion to order.Order.
type orderRow struct {
	o             order.Order
	status        string
	paymentStatus string
	method        string
	estimated     *time.Time
}

func (r *orderRow) dest() []any {
	return []any{
		&r.o.ID, &r.o.Number, &r.o.CustomerID, &r.o.Items, &r.o.Total, &r.status, &r.paymentStatus,
		&r.method, &r.o.DeliveryAddress, &r.o.SpecialInstructions, &r.o.OrderDate,
		&r.estimated, &r.o.CompletedAt, &r.o.UpdatedAt,
	}
}

func (r *orderRow) toOrder() order.Order {
	o := r.o
	o.Status = order.Status(r.status)
	o.PaymentStatus = order.PaymentStatus(r.paymentStatus)
	o.PaymentMethod = order.PaymentMethod(r.method)
	if r.estimated != nil {
		o.EstimatedDelivery = *r.estimated
	}
	return o
}

func scanOrder(row pgx.CollectableRow) (order.Order, error) {
	var r orderRow
	err := row.Scan(r.dest()...)
	return r.toOrder(), err
}
