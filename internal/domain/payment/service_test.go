package payment

import (
	"context"
	"maps"
	"net/url"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/chils-store/internal/domain/order"
)

// --- Mock implementations ---

type fakeDB struct {
	mu         sync.Mutex
	orders     map[string]order.Order
	payments   map[string]Payment
	createErrs []error
}

func newFakeDB(orders ...order.Order) *fakeDB {
	db := &fakeDB{
		orders:   make(map[string]order.Order),
		payments: make(map[string]Payment),
	}
	for _, o := range orders {
		db.orders[o.ID] = o
	}
	return db
}

func (db *fakeDB) Do(ctx context.Context, fn func(context.Context, Store) error) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	orders := maps.Clone(db.orders)
	payments := maps.Clone(db.payments)
	if err := fn(ctx, fakeTx{db: db}); err != nil {
		db.orders, db.payments = orders, payments
		return err
	}
	return nil
}

type fakeTx struct{ db *fakeDB }

func (t fakeTx) Orders() OrderStore   { return fakeOrders(t) }
func (t fakeTx) Payments() Repository { return fakePayments(t) }

type fakeOrders struct{ db *fakeDB }

func (f fakeOrders) GetForUpdate(_ context.Context, id string) (*order.Order, error) {
	o, ok := f.db.orders[id]
	if !ok {
		return nil, order.ErrNotFound
	}
	return &o, nil
}

func (f fakeOrders) Update(_ context.Context, o *order.Order) error {
	f.db.orders[o.ID] = *o
	return nil
}

type fakePayments struct{ db *fakeDB }

func (f fakePayments) Create(_ context.Context, p *Payment) error {
	if len(f.db.createErrs) > 0 {
		err := f.db.createErrs[0]
		f.db.createErrs = f.db.createErrs[1:]
		return err
	}
	for _, existing := range f.db.payments {
		if existing.OrderID == p.OrderID {
			return ErrAlreadyExists
		}
	}
	f.db.payments[p.ID] = *p
	return nil
}

func (f fakePayments) GetByID(_ context.Context, id string) (*Payment, error) {
	p, ok := f.db.payments[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &p, nil
}

func (f fakePayments) GetByReference(_ context.Context, ref string) (*Payment, error) {
	for _, p := range f.db.payments {
		if p.Reference == ref {
			return &p, nil
		}
	}
	return nil, ErrNotFound
}

func (f fakePayments) GetForUpdate(ctx context.Context, id string) (*Payment, error) {
	return f.GetByID(ctx, id)
}

func (f fakePayments) Update(_ context.Context, p *Payment) error {
	f.db.payments[p.ID] = *p
	return nil
}

type lockedPayments struct{ fakePayments }

func (l lockedPayments) GetByID(ctx context.Context, id string) (*Payment, error) {
	l.db.mu.Lock()
	defer l.db.mu.Unlock()
	return l.fakePayments.GetByID(ctx, id)
}

type recordingCodes struct {
	content []string
	err     error
}

func (r *recordingCodes) Generate(content string) (string, error) {
	r.content = append(r.content, content)
	return "data:image/png;base64,AAAA", r.err
}

// --- Helpers ---

var (
	testNow          = time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)
	referencePattern = regexp.MustCompile(`^GC\d{8}[0-9A-Z]{6}$`)
)

func pendingOrder(id, customerID, total string) order.Order {
	return order.Order{
		ID:            id,
		Number:        "ORD-1-ABCDEFGH",
		CustomerID:    customerID,
		Total:         decimal.RequireFromString(total),
		Status:        order.StatusPending,
		PaymentStatus: order.PaymentPending,
		PaymentMethod: order.MethodGCash,
	}
}

func newTestService(db *fakeDB, codes CodeGenerator) *Service {
	return NewService(db, lockedPayments{fakePayments{db: db}}, codes, "Chils Korean Store",
		WithClock(func() time.Time { return testNow }),
	)
}

// --- Tests ---

func TestPayURI(t *testing.T) {
	uri := PayURI(decimal.RequireFromString("14.97"), "Chils Korean Store", "GC12345678ABC123")
	assert.Equal(t, "gcash://pay?amount=14.97&name=Chils+Korean+Store&reference=GC12345678ABC123", uri)
}

func TestNewReference(t *testing.T) {
	ref := newReference(testNow)
	assert.Regexp(t, referencePattern, ref)
	assert.True(t, strings.HasPrefix(ref, "GC42400000"), ref)
}

func TestQRGenerator(t *testing.T) {
	code, err := NewQRGenerator().Generate("gcash://pay?amount=1.00")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(code, "data:image/png;base64,"))
	assert.Greater(t, len(code), len("data:image/png;base64,"))
}

func TestInitiate(t *testing.T) {
	db := newFakeDB(pendingOrder("o1", "cust-1", "14.97"))
	codes := &recordingCodes{}
	svc := newTestService(db, codes)

	res, err := svc.Initiate(context.Background(), "o1", "cust-1")
	require.NoError(t, err)

	p := res.Payment
	assert.Equal(t, StatusPending, p.Status)
	assert.Equal(t, "o1", p.OrderID)
	assert.True(t, decimal.RequireFromString("14.97").Equal(p.Amount))
	assert.Equal(t, order.MethodGCash, p.Method)
	assert.Regexp(t, referencePattern, p.Reference)
	assert.Equal(t, "data:image/png;base64,AAAA", p.QRCode)
	assert.Equal(t, testNow, p.PaymentDate)

	require.Len(t, codes.content, 1)
	u, err := url.Parse(codes.content[0])
	require.NoError(t, err)
	assert.Equal(t, "gcash", u.Scheme)
	assert.Equal(t, "14.97", u.Query().Get("amount"))
	assert.Equal(t, "Chils Korean Store", u.Query().Get("name"))
	assert.Equal(t, p.Reference, u.Query().Get("reference"))
}

func TestInitiate_Twice(t *testing.T) {
	db := newFakeDB(pendingOrder("o1", "cust-1", "14.97"))
	svc := newTestService(db, &recordingCodes{})

	_, err := svc.Initiate(context.Background(), "o1", "cust-1")
	require.NoError(t, err)

	_, err = svc.Initiate(context.Background(), "o1", "cust-1")
	require.ErrorIs(t, err, ErrAlreadyExists)
	assert.Len(t, db.payments, 1)
}

func TestInitiate_Failures(t *testing.T) {
	paid := pendingOrder("paid", "cust-1", "10.00")
	paid.PaymentStatus = order.PaymentPaid
	cancelled := pendingOrder("cancelled", "cust-1", "10.00")
	cancelled.Status = order.StatusCancelled

	db := newFakeDB(pendingOrder("o1", "cust-1", "10.00"), paid, cancelled)
	svc := newTestService(db, &recordingCodes{})

	_, err := svc.Initiate(context.Background(), "missing", "cust-1")
	require.ErrorIs(t, err, ErrOrderNotFound)

	_, err = svc.Initiate(context.Background(), "o1", "cust-2")
	require.ErrorIs(t, err, ErrOrderNotFound)

	_, err = svc.Initiate(context.Background(), "paid", "cust-1")
	require.ErrorIs(t, err, ErrAlreadyPaid)

	_, err = svc.Initiate(context.Background(), "cancelled", "cust-1")
	require.ErrorIs(t, err, ErrOrderCancelled)

	assert.Empty(t, db.payments)
}

func TestInitiate_CodeGenerationFails(t *testing.T) {
	db := newFakeDB(pendingOrder("o1", "cust-1", "10.00"))
	svc := newTestService(db, &recordingCodes{err: errors.New("boom")})

	_, err := svc.Initiate(context.Background(), "o1", "cust-1")
	require.Error(t, err)
	assert.Empty(t, db.payments)
}

func TestInitiate_RetriesDuplicateReference(t *testing.T) {
	db := newFakeDB(pendingOrder("o1", "cust-1", "10.00"))
	db.createErrs = []error{ErrDuplicateReference}
	codes := &recordingCodes{}
	svc := newTestService(db, codes)

	_, err := svc.Initiate(context.Background(), "o1", "cust-1")
	require.NoError(t, err)
	assert.Len(t, codes.content, 2)
	assert.Len(t, db.payments, 1)
}

func TestConfirm_Idempotent(t *testing.T) {
	db := newFakeDB(pendingOrder("o1", "cust-1", "14.97"))
	svc := newTestService(db, &recordingCodes{})

	started, err := svc.Initiate(context.Background(), "o1", "cust-1")
	require.NoError(t, err)

	first, err := svc.Confirm(context.Background(), started.Payment.ID, "cust-1")
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, first.Payment.Status)
	require.NotNil(t, first.Payment.CompletedAt)
	assert.Equal(t, order.PaymentPaid, first.Order.PaymentStatus)
	assert.Equal(t, order.StatusConfirmed, first.Order.Status)

	second, err := svc.Confirm(context.Background(), started.Payment.ID, "cust-1")
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, second.Payment.Status)
	assert.Equal(t, *first.Payment.CompletedAt, *second.Payment.CompletedAt)
	assert.Equal(t, order.StatusConfirmed, second.Order.Status)
}

func TestConfirm_DoesNotRegressOrder(t *testing.T) {
	db := newFakeDB(pendingOrder("o1", "cust-1", "14.97"))
	svc := newTestService(db, &recordingCodes{})

	started, err := svc.Initiate(context.Background(), "o1", "cust-1")
	require.NoError(t, err)

	advanced := db.orders["o1"]
	advanced.Status = order.StatusPreparing
	db.orders["o1"] = advanced

	res, err := svc.Confirm(context.Background(), started.Payment.ID, "cust-1")
	require.NoError(t, err)
	assert.Equal(t, order.StatusPreparing, res.Order.Status)
	assert.Equal(t, order.PaymentPaid, res.Order.PaymentStatus)
}

func TestConfirm_Failures(t *testing.T) {
	db := newFakeDB(pendingOrder("o1", "cust-1", "14.97"))
	svc := newTestService(db, &recordingCodes{})

	started, err := svc.Initiate(context.Background(), "o1", "cust-1")
	require.NoError(t, err)

	_, err = svc.Confirm(context.Background(), "missing", "cust-1")
	require.ErrorIs(t, err, ErrNotFound)

	_, err = svc.Confirm(context.Background(), started.Payment.ID, "cust-2")
	require.ErrorIs(t, err, ErrNotFound)

	cancelled := db.payments[started.Payment.ID]
	cancelled.Status = StatusCancelled
	db.payments[started.Payment.ID] = cancelled

	_, err = svc.Confirm(context.Background(), started.Payment.ID, "cust-1")
	var trErr *InvalidTransitionError
	require.ErrorAs(t, err, &trErr)
	assert.Equal(t, StatusCancelled, trErr.Current)
	assert.Equal(t, order.PaymentPending, db.orders["o1"].PaymentStatus)
}

func TestHandleProviderEvent_Completed(t *testing.T) {
	db := newFakeDB(pendingOrder("o1", "cust-1", "14.97"))
	svc := newTestService(db, &recordingCodes{})

	started, err := svc.Initiate(context.Background(), "o1", "cust-1")
	require.NoError(t, err)

	ev := ProviderEvent{
		Reference:     started.Payment.Reference,
		Outcome:       OutcomeCompleted,
		TransactionID: "TX-991",
	}
	res, err := svc.HandleProviderEvent(context.Background(), ev)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, res.Payment.Status)
	assert.Equal(t, "TX-991", res.Payment.TransactionID)
	assert.Equal(t, order.StatusConfirmed, res.Order.Status)

	// Redelivery is a no-op.
	_, err = svc.HandleProviderEvent(context.Background(), ev)
	require.NoError(t, err)

	// A late failure report cannot undo a completed payment.
	_, err = svc.HandleProviderEvent(context.Background(), ProviderEvent{
		Reference: started.Payment.Reference,
		Outcome:   OutcomeFailed,
	})
	var trErr *InvalidTransitionError
	require.ErrorAs(t, err, &trErr)
	assert.Equal(t, StatusCompleted, trErr.Current)
}

func TestHandleProviderEvent_Failed(t *testing.T) {
	db := newFakeDB(pendingOrder("o1", "cust-1", "14.97"))
	svc := newTestService(db, &recordingCodes{})

	started, err := svc.Initiate(context.Background(), "o1", "cust-1")
	require.NoError(t, err)

	res, err := svc.HandleProviderEvent(context.Background(), ProviderEvent{
		Reference: started.Payment.Reference,
		Outcome:   OutcomeFailed,
		Reason:    "insufficient balance",
	})
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, res.Payment.Status)
	assert.Equal(t, "insufficient balance", res.Payment.FailureReason)
	assert.Nil(t, res.Payment.CompletedAt)
	assert.Equal(t, order.PaymentFailed, res.Order.PaymentStatus)
	assert.Equal(t, order.StatusPending, res.Order.Status)

	_, err = svc.HandleProviderEvent(context.Background(), ProviderEvent{
		Reference: "GC00000000NOPE00",
		Outcome:   OutcomeCompleted,
	})
	require.ErrorIs(t, err, ErrNotFound)
}

func TestGet(t *testing.T) {
	db := newFakeDB(pendingOrder("o1", "cust-1", "14.97"))
	svc := newTestService(db, &recordingCodes{})

	started, err := svc.Initiate(context.Background(), "o1", "cust-1")
	require.NoError(t, err)

	p, err := svc.Get(context.Background(), started.Payment.ID, "cust-1")
	require.NoError(t, err)
	assert.Equal(t, started.Payment.Reference, p.Reference)

	_, err = svc.Get(context.Background(), started.Payment.ID, "cust-2")
	require.ErrorIs(t, err, ErrNotFound)
}
