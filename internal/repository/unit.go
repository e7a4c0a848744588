package repository

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/xenking/chils-store/internal/domain/order"
	"github.com/xenking/chils-store/internal/domain/payment"
)

var (
	_ order.UnitOfWork   = orderUnit{}
	_ payment.UnitOfWork = paymentUnit{}
)

// OrderUnit returns the unit of work used by the order service.
func (s *Store) OrderUnit() order.UnitOfWork { return orderUnit{s: s} }

// PaymentUnit returns the unit of work used by the payment service.
func (s *Store) PaymentUnit() payment.UnitOfWork { return paymentUnit{s: s} }

type orderUnit struct{ s *Store }

func (u orderUnit) Do(ctx context.Context, fn func(context.Context, order.Store) error) error {
	return u.s.inTx(ctx, func(tx pgx.Tx) error {
		return fn(ctx, orderTx{tx: tx})
	})
}

type orderTx struct{ tx pgx.Tx }

func (t orderTx) Products() order.ProductStore { return NewProductRepository(t.tx) }
func (t orderTx) Orders() order.Repository     { return NewOrderRepository(t.tx) }
func (t orderTx) Payments() order.PaymentStore { return NewPaymentRepository(t.tx) }

type paymentUnit struct{ s *Store }

func (u paymentUnit) Do(ctx context.Context, fn func(context.Context, payment.Store) error) error {
	return u.s.inTx(ctx, func(tx pgx.Tx) error {
		return fn(ctx, paymentTx{tx: tx})
	})
}

type paymentTx struct{ tx pgx.Tx }

func (t paymentTx) Orders() payment.OrderStore { return NewOrderRepository(t.tx) }
func (t paymentTx) Payments() payment.Repository { return NewPaymentRepository(t.tx) }
