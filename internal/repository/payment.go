package repository

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"

	"github.com/xenking/chils-store/internal/domain/order"
	"github.com/xenking/chils-store/internal/domain/payment"
)

const (
	paymentColumns = `id, order_id, customer_id, amount, method, status, COALESCE(reference, ''),
		qr_code, transaction_id, failure_reason, payment_date, completed_at`

	createPaymentSQL = `INSERT INTO payments (id, order_id, customer_id, amount, method, status,
		reference, qr_code, transaction_id, failure_reason, payment_date, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''), $8, $9, $10, $11, $12)`

	getPaymentByIDSQL        = `SELECT ` + paymentColumns + ` FROM payments WHERE id = $1`
	getPaymentByReferenceSQL = `SELECT ` + paymentColumns + ` FROM payments WHERE reference = $1`
	lockPaymentSQL           = `SELECT ` + paymentColumns + ` FROM payments WHERE id = $1 FOR UPDATE`

	updatePaymentSQL = `UPDATE payments SET status = $2, transaction_id = $3, failure_reason = $4, completed_at = $5
		WHERE id = $1`

	cancelPendingPaymentSQL = `UPDATE payments SET status = 'cancelled'
		WHERE order_id = $1 AND status = 'pending'`
)

var (
	_ payment.Repository = (*PaymentRepository)(nil)
	_ order.PaymentStore = (*PaymentRepository)(nil)
)

// PaymentRepository implements payment.Repository backed by PostgreSQL.
type PaymentRepository struct {
	db DB
}

func NewPaymentRepository(db DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

// Create inserts a payment. The unique constraints on order_id and reference
// surface as payment.ErrAlreadyExists and payment.ErrDuplicateReference.
func (r *PaymentRepository) Create(ctx context.Context, p *payment.Payment) error {
	_, err := r.db.Exec(ctx, createPaymentSQL,
		p.ID, p.OrderID, p.CustomerID, p.Amount, string(p.Method), string(p.Status),
		p.Reference, p.QRCode, p.TransactionID, p.FailureReason, p.PaymentDate, p.CompletedAt,
	)
	switch {
	case err == nil:
		return nil
	case uniqueViolation(err, "payments_order_id_key"):
		return payment.ErrAlreadyExists
	case uniqueViolation(err, "payments_reference_key"):
		return payment.ErrDuplicateReference
	default:
		return fmt.Errorf("creating payment for order %q: %w", p.OrderID, err)
	}
}

func (r *PaymentRepository) GetByID(ctx context.Context, id string) (*payment.Payment, error) {
	return r.getOne(ctx, getPaymentByIDSQL, id)
}

func (r *PaymentRepository) GetByReference(ctx context.Context, reference string) (*payment.Payment, error) {
	return r.getOne(ctx, getPaymentByReferenceSQL, reference)
}

func (r *PaymentRepository) GetForUpdate(ctx context.Context, id string) (*payment.Payment, error) {
	return r.getOne(ctx, lockPaymentSQL, id)
}

func (r *PaymentRepository) getOne(ctx context.Context, query, arg string) (*payment.Payment, error) {
	rows, err := r.db.Query(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("getting payment %q: %w", arg, err)
	}

	p, err := pgx.CollectExactlyOneRow(rows, scanPayment)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, payment.ErrNotFound
		}
		return nil, fmt.Errorf("getting payment %q: %w", arg, err)
	}
	return &p, nil
}

func (r *PaymentRepository) Update(ctx context.Context, p *payment.Payment) error {
	tag, err := r.db.Exec(ctx, updatePaymentSQL,
		p.ID, string(p.Status), p.TransactionID, p.FailureReason, p.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("updating payment %q: %w", p.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return payment.ErrNotFound
	}
	return nil
}

// CancelPending marks the order's pending payment, if any, as cancelled.
func (r *PaymentRepository) CancelPending(ctx context.Context, orderID string) error {
	if _, err := r.db.Exec(ctx, cancelPendingPaymentSQL, orderID); err != nil {
		return fmt.Errorf("cancelling payment of order %q: %w", orderID, err)
	}
	return nil
}

func scanPayment(row pgx.CollectableRow) (payment.Payment, error) {
	var (
		p              payment.Payment
		method, status string
	)
	err := row.Scan(
		&p.ID, &p.OrderID, &p.CustomerID, &p.Amount, &method, &status, &p.Reference,
		&p.QRCode, &p.TransactionID, &p.FailureReason, &p.PaymentDate, &p.CompletedAt,
	)
	p.Method = order.PaymentMethod(method)
	p.Status = payment.Status(status)
	return p, err
}
