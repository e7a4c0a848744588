package payment

import (
	"context"
	"math/rand/v2"
	"strconv"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xenking/chils-store/internal/domain/order"
	"github.com/xenking/chils-store/internal/events"
)

const (
	maxInitiateAttempts = 3
	referenceTokenLen   = 6
	base36              = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"
)

// Initiation is the result of starting a payment.
type Initiation struct {
	Payment *Payment
	Order   *order.Order
}

// Confirmation is the result of settling a payment.
type Confirmation struct {
	Payment *Payment
	Order   *order.Order
}

// Outcome is a provider-reported payment result.
type Outcome string

const (
	OutcomeCompleted Outcome = "completed"
	OutcomeFailed    Outcome = "failed"
)

// ProviderEvent is a payment result reported by the wallet provider.
type ProviderEvent struct {
	Reference     string
	Outcome       Outcome
	TransactionID string
	Reason        string
}

// Option configures a Service.
type Option func(*Service)

func WithPublisher(p events.Publisher) Option {
	return func(s *Service) { s.events = p }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// Service implements the simulated wallet payment flow.
type Service struct {
	uow       UnitOfWork
	payments  Repository
	codes     CodeGenerator
	recipient string
	events    events.Publisher
	now       func() time.Time
}

// NewService creates a payment Service. recipient is the merchant name
// encoded into payment codes.
func NewService(uow UnitOfWork, payments Repository, codes CodeGenerator, recipient string, opts ...Option) *Service {
	s := &Service{
		uow:       uow,
		payments:  payments,
		codes:     codes,
		recipient: recipient,
		events:    events.Nop{},
		now:       time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Initiate creates the pending payment for an order owned by customerID and
// renders its payment code.
func (s *Service) Initiate(ctx context.Context, orderID, customerID string) (*Initiation, error) {
	var (
		res *Initiation
		err error
	)
	for attempt := 1; ; attempt++ {
		err = s.uow.Do(ctx, func(ctx context.Context, st Store) error {
			r, err := s.initiate(ctx, st, orderID, customerID)
			if err != nil {
				return err
			}
			res = r
			return nil
		})
		if errors.Is(err, ErrDuplicateReference) && attempt < maxInitiateAttempts {
			continue
		}
		break
	}
	if err != nil {
		return nil, err
	}

	p := res.Payment
	zctx.From(ctx).Info("Payment initiated",
		zap.String("payment_id", p.ID),
		zap.String("order_id", p.OrderID),
		zap.String("reference", p.Reference),
	)
	s.events.Publish(ctx, events.PaymentInitiated, p.OrderID, newPaymentEvent(p))
	return res, nil
}

func (s *Service) initiate(ctx context.Context, st Store, orderID, customerID string) (*Initiation, error) {
	o, err := st.Orders().GetForUpdate(ctx, orderID)
	if err != nil {
		if errors.Is(err, order.ErrNotFound) {
			return nil, ErrOrderNotFound
		}
		return nil, errors.Wrap(err, "get order")
	}
	if o.CustomerID != customerID {
		return nil, ErrOrderNotFound
	}
	if o.PaymentStatus == order.PaymentPaid {
		return nil, ErrAlreadyPaid
	}
	if o.Status == order.StatusCancelled {
		return nil, ErrOrderCancelled
	}

	now := s.now().UTC()
	ref := newReference(now)
	code, err := s.codes.Generate(PayURI(o.Total, s.recipient, ref))
	if err != nil {
		return nil, err
	}

	p := &Payment{
		ID:          uuid.New().String(),
		OrderID:     o.ID,
		CustomerID:  customerID,
		Amount:      o.Total,
		Method:      o.PaymentMethod,
		Status:      StatusPending,
		Reference:   ref,
		QRCode:      code,
		PaymentDate: now,
	}
	if err := st.Payments().Create(ctx, p); err != nil {
		if errors.Is(err, ErrAlreadyExists) || errors.Is(err, ErrDuplicateReference) {
			return nil, err
		}
		return nil, errors.Wrap(err, "create payment")
	}
	return &Initiation{Payment: p, Order: o}, nil
}

// Confirm settles a payment on behalf of its customer. Confirming an already
// completed payment succeeds without changes.
func (s *Service) Confirm(ctx context.Context, paymentID, customerID string) (*Confirmation, error) {
	var (
		res     *Confirmation
		changed bool
	)
	err := s.uow.Do(ctx, func(ctx context.Context, st Store) error {
		p, err := st.Payments().GetByID(ctx, paymentID)
		if err != nil {
			return err
		}
		if p.CustomerID != customerID {
			return ErrNotFound
		}
		p, o, err := lockPair(ctx, st, p)
		if err != nil {
			return err
		}
		res, changed, err = s.complete(ctx, st, p, o, "")
		return err
	})
	if err != nil {
		return nil, err
	}
	if changed {
		s.afterComplete(ctx, res.Payment)
	}
	return res, nil
}

// HandleProviderEvent applies a provider-reported outcome to the payment with
// the given reference. Repeated deliveries of the same outcome are no-ops.
func (s *Service) HandleProviderEvent(ctx context.Context, ev ProviderEvent) (*Confirmation, error) {
	var (
		res     *Confirmation
		changed bool
	)
	err := s.uow.Do(ctx, func(ctx context.Context, st Store) error {
		p, err := st.Payments().GetByReference(ctx, ev.Reference)
		if err != nil {
			return err
		}
		p, o, err := lockPair(ctx, st, p)
		if err != nil {
			return err
		}
		switch ev.Outcome {
		case OutcomeCompleted:
			res, changed, err = s.complete(ctx, st, p, o, ev.TransactionID)
		case OutcomeFailed:
			res, changed, err = s.fail(ctx, st, p, o, ev.Reason)
		default:
			return errors.Errorf("unknown outcome %q", ev.Outcome)
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	if !changed {
		return res, nil
	}
	switch ev.Outcome {
	case OutcomeCompleted:
		s.afterComplete(ctx, res.Payment)
	case OutcomeFailed:
		zctx.From(ctx).Warn("Payment failed",
			zap.String("payment_id", res.Payment.ID),
			zap.String("reason", res.Payment.FailureReason),
		)
		s.events.Publish(ctx, events.PaymentFailed, res.Payment.OrderID, newPaymentEvent(res.Payment))
	}
	return res, nil
}

// lockPair locks the order and then the payment, the same order the order
// service uses when cancelling, and returns fresh copies of both.
func lockPair(ctx context.Context, st Store, p *Payment) (*Payment, *order.Order, error) {
	o, err := st.Orders().GetForUpdate(ctx, p.OrderID)
	if err != nil {
		return nil, nil, errors.Wrap(err, "lock order")
	}
	locked, err := st.Payments().GetForUpdate(ctx, p.ID)
	if err != nil {
		return nil, nil, errors.Wrap(err, "lock payment")
	}
	return locked, o, nil
}

// complete marks p completed and the order paid. The order only advances
// from pending to confirmed; later statuses are left alone.
func (s *Service) complete(ctx context.Context, st Store, p *Payment, o *order.Order, txID string) (*Confirmation, bool, error) {
	switch p.Status {
	case StatusCompleted:
		return &Confirmation{Payment: p, Order: o}, false, nil
	case StatusPending:
	default:
		return nil, false, &InvalidTransitionError{Current: p.Status, Target: StatusCompleted}
	}

	now := s.now().UTC()
	p.Status = StatusCompleted
	p.CompletedAt = &now
	if txID == "" {
		txID = p.Reference
	}
	p.TransactionID = txID
	if err := st.Payments().Update(ctx, p); err != nil {
		return nil, false, errors.Wrap(err, "update payment")
	}

	o.PaymentStatus = order.PaymentPaid
	if o.Status == order.StatusPending {
		o.Status = order.StatusConfirmed
	}
	o.UpdatedAt = now
	if err := st.Orders().Update(ctx, o); err != nil {
		return nil, false, errors.Wrap(err, "update order")
	}
	return &Confirmation{Payment: p, Order: o}, true, nil
}

func (s *Service) fail(ctx context.Context, st Store, p *Payment, o *order.Order, reason string) (*Confirmation, bool, error) {
	switch p.Status {
	case StatusFailed:
		return &Confirmation{Payment: p, Order: o}, false, nil
	case StatusPending:
	default:
		return nil, false, &InvalidTransitionError{Current: p.Status, Target: StatusFailed}
	}

	if reason == "" {
		reason = "payment declined by provider"
	}
	p.Status = StatusFailed
	p.FailureReason = reason
	if err := st.Payments().Update(ctx, p); err != nil {
		return nil, false, errors.Wrap(err, "update payment")
	}

	o.PaymentStatus = order.PaymentFailed
	o.UpdatedAt = s.now().UTC()
	if err := st.Orders().Update(ctx, o); err != nil {
		return nil, false, errors.Wrap(err, "update order")
	}
	return &Confirmation{Payment: p, Order: o}, true, nil
}

func (s *Service) afterComplete(ctx context.Context, p *Payment) {
	zctx.From(ctx).Info("Payment completed",
		zap.String("payment_id", p.ID),
		zap.String("order_id", p.OrderID),
	)
	s.events.Publish(ctx, events.PaymentCompleted, p.OrderID, newPaymentEvent(p))
}

// Get returns a payment owned by customerID.
func (s *Service) Get(ctx context.Context, paymentID, customerID string) (*Payment, error) {
	p, err := s.payments.GetByID(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if p.CustomerID != customerID {
		return nil, ErrNotFound
	}
	return p, nil
}

// newReference returns GC + the last 8 digits of the unix millisecond clock
// + a random base36 suffix.
func newReference(now time.Time) string {
	ms := strconv.FormatInt(now.UnixMilli(), 10)
	if len(ms) > 8 {
		ms = ms[len(ms)-8:]
	}
	b := make([]byte, referenceTokenLen)
	for i := range b {
		b[i] = base36[rand.IntN(len(base36))]
	}
	return "GC" + ms + string(b)
}

type paymentEvent struct {
	PaymentID string          `json:"payment_id"`
	OrderID   string          `json:"order_id"`
	Reference string          `json:"reference"`
	Status    Status          `json:"status"`
	Amount    decimal.Decimal `json:"amount"`
	Reason    string          `json:"reason,omitempty"`
}

func newPaymentEvent(p *Payment) paymentEvent {
	return paymentEvent{
		PaymentID: p.ID,
		OrderID:   p.OrderID,
		Reference: p.Reference,
		Status:    p.Status,
		Amount:    p.Amount,
		Reason:    p.FailureReason,
	}
}
