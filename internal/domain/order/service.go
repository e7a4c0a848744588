package order

import (
	"context"
	"slices"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"

	"github.com/xenking/chils-store/internal/domain/product"
	"github.com/xenking/chils-store/internal/domain/user"
	"github.com/xenking/chils-store/internal/events"
	"github.com/xenking/chils-store/internal/validation"
)

const (
	maxPlaceAttempts        = 3
	maxInstructionsLength   = 500
	instrumentationName     = "github.com/xenking/chils-store/internal/domain/order"
	rejectReasonStock       = "insufficient_stock"
	rejectReasonUnavailable = "unavailable"
)

// ItemRequest is one requested line.
type ItemRequest struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

// PlaceOrderRequest holds the input for placing an order.
type PlaceOrderRequest struct {
	CustomerID string
	Items      []ItemRequest
	// DeliveryAddress defaults to the customer's address when nil.
	DeliveryAddress     *user.Address
	SpecialInstructions string
	PaymentMethod       PaymentMethod
}

// Option configures a Service.
type Option func(*Service)

// WithPublisher sets the domain event publisher.
func WithPublisher(p events.Publisher) Option {
	return func(s *Service) { s.events = p }
}

func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(s *Service) { s.meterProvider = mp }
}

func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(s *Service) { s.tracer = tp.Tracer(instrumentationName) }
}

func WithNumberGenerator(g *NumberGenerator) Option {
	return func(s *Service) { s.numbers = g }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

type metrics struct {
	placed    metric.Int64Counter
	rejected  metric.Int64Counter
	cancelled metric.Int64Counter
}

func newMetrics(mp metric.MeterProvider) metrics {
	meter := mp.Meter(instrumentationName)
	counter := func(name, desc string) metric.Int64Counter {
		c, err := meter.Int64Counter(name, metric.WithDescription(desc))
		if err != nil {
			return metricnoop.Int64Counter{}
		}
		return c
	}
	return metrics{
		placed:    counter("orders.placed", "Orders successfully placed"),
		rejected:  counter("orders.rejected", "Order placements rejected by stock checks"),
		cancelled: counter("orders.cancelled", "Orders cancelled by customers or staff"),
	}
}

// Service is the single implementation of the order lifecycle shared by the
// customer and admin surfaces.
type Service struct {
	uow       UnitOfWork
	orders    Repository
	catalog   Catalog
	customers Customers
	numbers   *NumberGenerator
	events    events.Publisher
	tracer    trace.Tracer
	now       func() time.Time

	meterProvider metric.MeterProvider
	metrics       metrics
}

// NewService creates an order Service. orders and catalog serve reads outside
// of a unit of work.
func NewService(
	uow UnitOfWork,
	orders Repository,
	catalog Catalog,
	customers Customers,
	opts ...Option,
) *Service {
	s := &Service{
		uow:           uow,
		orders:        orders,
		catalog:       catalog,
		customers:     customers,
		events:        events.Nop{},
		tracer:        tracenoop.NewTracerProvider().Tracer(instrumentationName),
		now:           time.Now,
		meterProvider: metricnoop.NewMeterProvider(),
	}
	for _, o := range opts {
		o(s)
	}
	if s.numbers == nil {
		s.numbers = NewNumberGenerator()
	}
	s.metrics = newMetrics(s.meterProvider)
	return s
}

// PlaceOrder validates the requested items against the catalog, snapshots
// prices, decrements stock and persists a pending order. Either every line is
// accepted and every stock decrement applied, or nothing changes.
func (s *Service) PlaceOrder(ctx context.Context, req PlaceOrderRequest) (_ *Order, rerr error) {
	ctx, span := s.tracer.Start(ctx, "order.PlaceOrder")
	defer func() {
		if rerr != nil {
			span.RecordError(rerr)
			span.SetStatus(codes.Error, rerr.Error())
		}
		span.End()
	}()

	if len(req.Items) == 0 {
		return nil, ErrEmptyOrder
	}
	for _, item := range req.Items {
		if item.Quantity < 1 {
			return nil, &InvalidQuantityError{ProductID: item.ProductID}
		}
	}
	req.SpecialInstructions = strings.TrimSpace(req.SpecialInstructions)
	if len(req.SpecialInstructions) > maxInstructionsLength {
		return nil, validation.Invalid("specialInstructions", "cannot exceed 500 characters")
	}
	switch req.PaymentMethod {
	case "":
		req.PaymentMethod = MethodGCash
	case MethodGCash, MethodCash:
	default:
		return nil, validation.Invalid("paymentMethod", "must be one of: gcash, cash")
	}

	addr, err := s.deliveryAddress(ctx, req)
	if err != nil {
		return nil, err
	}

	var o *Order
	for attempt := 1; ; attempt++ {
		err = s.uow.Do(ctx, func(ctx context.Context, st Store) error {
			placed, err := s.place(ctx, st, req, addr)
			if err != nil {
				return err
			}
			o = placed
			return nil
		})
		if errors.Is(err, ErrDuplicateNumber) && attempt < maxPlaceAttempts {
			zctx.From(ctx).Warn("Order number collision, retrying", zap.Int("attempt", attempt))
			continue
		}
		break
	}
	if err != nil {
		var stockErr *InsufficientStockError
		var unavailableErr *ProductUnavailableError
		switch {
		case errors.As(err, &stockErr):
			s.metrics.rejected.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", rejectReasonStock)))
		case errors.As(err, &unavailableErr):
			s.metrics.rejected.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", rejectReasonUnavailable)))
		}
		return nil, err
	}

	span.SetAttributes(
		attribute.String("order.id", o.ID),
		attribute.String("order.number", o.Number),
		attribute.Int("order.items", len(o.Items)),
	)
	s.metrics.placed.Add(ctx, 1)
	zctx.From(ctx).Info("Order placed",
		zap.String("order_id", o.ID),
		zap.String("order_number", o.Number),
		zap.String("customer_id", o.CustomerID),
		zap.Stringer("total", o.Total),
	)
	s.events.Publish(ctx, events.OrderPlaced, o.ID, newOrderEvent(o))
	return o, nil
}

func (s *Service) deliveryAddress(ctx context.Context, req PlaceOrderRequest) (user.Address, error) {
	if req.DeliveryAddress != nil && req.DeliveryAddress.Complete() {
		if err := validation.Struct(req.DeliveryAddress); err != nil {
			return user.Address{}, err
		}
		return *req.DeliveryAddress, nil
	}
	customer, err := s.customers.Get(ctx, req.CustomerID)
	if err != nil {
		return user.Address{}, errors.Wrap(err, "get customer")
	}
	if !customer.Address.Complete() {
		return user.Address{}, validation.Invalid("deliveryAddress", "street, city and zip code are required")
	}
	return customer.Address, nil
}

// place runs inside the unit of work. Products are locked before any check,
// so the checks and the decrements see the same stock.
func (s *Service) place(ctx context.Context, st Store, req PlaceOrderRequest, addr user.Address) (*Order, error) {
	ids := make([]string, 0, len(req.Items))
	for _, item := range req.Items {
		if !slices.Contains(ids, item.ProductID) {
			ids = append(ids, item.ProductID)
		}
	}

	locked, err := st.Products().GetForUpdate(ctx, ids)
	if err != nil {
		return nil, errors.Wrap(err, "lock products")
	}
	byID := make(map[string]product.Product, len(locked))
	for _, p := range locked {
		byID[p.ID] = p
	}

	// Check every line in request order before mutating anything.
	remaining := make(map[string]int, len(byID))
	for id, p := range byID {
		remaining[id] = p.Stock
	}
	items := make([]LineItem, 0, len(req.Items))
	for _, item := range req.Items {
		p, ok := byID[item.ProductID]
		if !ok {
			return nil, &ProductUnavailableError{Name: item.ProductID}
		}
		if !p.Purchasable() {
			return nil, &ProductUnavailableError{Name: p.Name}
		}
		if remaining[p.ID] < item.Quantity {
			return nil, &InsufficientStockError{Name: p.Name, Available: remaining[p.ID]}
		}
		remaining[p.ID] -= item.Quantity
		items = append(items, LineItem{
			ProductID: p.ID,
			Name:      p.Name,
			Quantity:  item.Quantity,
			Price:     p.Price,
		})
	}

	for _, id := range ids {
		p := byID[id]
		qty := p.Stock - remaining[id]
		if err := st.Products().DecrementStock(ctx, id, qty); err != nil {
			if errors.Is(err, product.ErrInsufficientStock) {
				return nil, &InsufficientStockError{Name: p.Name, Available: p.Stock}
			}
			return nil, errors.Wrapf(err, "decrement stock %s", id)
		}
	}

	now := s.now().UTC()
	o := &Order{
		ID:                  uuid.New().String(),
		Number:              s.numbers.Next(),
		CustomerID:          req.CustomerID,
		Items:               items,
		Total:               ComputeTotal(items),
		Status:              StatusPending,
		PaymentStatus:       PaymentPending,
		PaymentMethod:       req.PaymentMethod,
		DeliveryAddress:     addr,
		SpecialInstructions: req.SpecialInstructions,
		OrderDate:           now,
		EstimatedDelivery:   now.Add(DeliveryWindow),
		UpdatedAt:           now,
	}
	if err := st.Orders().Create(ctx, o); err != nil {
		if errors.Is(err, ErrDuplicateNumber) {
			return nil, err
		}
		return nil, errors.Wrap(err, "create order")
	}

	for i := range o.Items {
		p := byID[o.Items[i].ProductID]
		p.Stock = remaining[p.ID]
		o.Items[i].Product = &p
	}
	return o, nil
}

// Cancel cancels an order owned by customerID and puts its stock back.
func (s *Service) Cancel(ctx context.Context, orderID, customerID string) (*Order, error) {
	var o *Order
	err := s.uow.Do(ctx, func(ctx context.Context, st Store) error {
		locked, err := st.Orders().GetForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if locked.CustomerID != customerID {
			return ErrNotFound
		}
		if err := s.cancelLocked(ctx, st, locked); err != nil {
			return err
		}
		o = locked
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.afterCancel(ctx, o)
	return o, nil
}

// cancelLocked restores stock for every line, cancels a pending payment and
// marks the order cancelled. The order must be locked by the caller.
func (s *Service) cancelLocked(ctx context.Context, st Store, o *Order) error {
	if !CanTransition(o.Status, StatusCancelled) {
		return &InvalidTransitionError{Current: o.Status, Target: StatusCancelled}
	}
	for _, item := range o.Items {
		if err := st.Products().RestoreStock(ctx, item.ProductID, item.Quantity); err != nil {
			if errors.Is(err, product.ErrNotFound) {
				zctx.From(ctx).Warn("Skipping stock restore for deleted product",
					zap.String("order_id", o.ID),
					zap.String("product_id", item.ProductID),
				)
				continue
			}
			return errors.Wrapf(err, "restore stock %s", item.ProductID)
		}
	}
	if err := st.Payments().CancelPending(ctx, o.ID); err != nil {
		return errors.Wrap(err, "cancel pending payment")
	}
	if o.PaymentStatus == PaymentPaid {
		o.PaymentStatus = PaymentRefunded
	}
	o.setStatus(StatusCancelled, s.now().UTC())
	if err := st.Orders().Update(ctx, o); err != nil {
		return errors.Wrap(err, "update order")
	}
	return nil
}

func (s *Service) afterCancel(ctx context.Context, o *Order) {
	s.metrics.cancelled.Add(ctx, 1)
	zctx.From(ctx).Info("Order cancelled",
		zap.String("order_id", o.ID),
		zap.String("order_number", o.Number),
	)
	s.events.Publish(ctx, events.OrderCancelled, o.ID, newOrderEvent(o))
}

// UpdateStatus moves an order along the state machine on behalf of staff.
// Cancelling through this path restores stock exactly like Cancel.
func (s *Service) UpdateStatus(ctx context.Context, orderID string, next Status) (*Order, error) {
	if !next.Valid() {
		return nil, validation.Invalid("status", "must be one of: pending, confirmed, preparing, ready, completed, cancelled")
	}

	var (
		o    *Order
		prev Status
	)
	err := s.uow.Do(ctx, func(ctx context.Context, st Store) error {
		locked, err := st.Orders().GetForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		prev = locked.Status
		if next == StatusCancelled {
			if err := s.cancelLocked(ctx, st, locked); err != nil {
				return err
			}
			o = locked
			return nil
		}
		if !CanTransition(locked.Status, next) {
			return &InvalidTransitionError{Current: locked.Status, Target: next}
		}
		locked.setStatus(next, s.now().UTC())
		if err := st.Orders().Update(ctx, locked); err != nil {
			return errors.Wrap(err, "update order")
		}
		o = locked
		return nil
	})
	if err != nil {
		return nil, err
	}

	if next == StatusCancelled {
		s.afterCancel(ctx, o)
		return o, nil
	}
	zctx.From(ctx).Info("Order status updated",
		zap.String("order_id", o.ID),
		zap.String("from", string(prev)),
		zap.String("to", string(next)),
	)
	s.events.Publish(ctx, events.OrderStatusChanged, o.ID, statusChangedEvent{
		OrderID:     o.ID,
		OrderNumber: o.Number,
		From:        prev,
		To:          next,
	})
	return o, nil
}

// Get returns an order owned by customerID with product details joined.
func (s *Service) Get(ctx context.Context, orderID, customerID string) (*Order, error) {
	o, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.CustomerID != customerID {
		return nil, ErrNotFound
	}
	if err := s.joinProducts(ctx, []*Order{o}); err != nil {
		return nil, err
	}
	return o, nil
}

// List returns the customer's orders, newest first.
func (s *Service) List(ctx context.Context, customerID string) ([]Order, error) {
	list, err := s.orders.ListByCustomer(ctx, customerID)
	if err != nil {
		return nil, errors.Wrap(err, "list orders")
	}
	ptrs := make([]*Order, len(list))
	for i := range list {
		ptrs[i] = &list[i]
	}
	if err := s.joinProducts(ctx, ptrs); err != nil {
		return nil, err
	}
	return list, nil
}

// ListAll returns every order with customer details, newest first.
func (s *Service) ListAll(ctx context.Context) ([]Order, error) {
	list, err := s.orders.List(ctx, 0)
	if err != nil {
		return nil, errors.Wrap(err, "list orders")
	}
	return list, nil
}

func (s *Service) joinProducts(ctx context.Context, orders []*Order) error {
	var ids []string
	for _, o := range orders {
		for _, item := range o.Items {
			if !slices.Contains(ids, item.ProductID) {
				ids = append(ids, item.ProductID)
			}
		}
	}
	if len(ids) == 0 {
		return nil
	}
	found, err := s.catalog.GetByIDs(ctx, ids)
	if err != nil {
		return errors.Wrap(err, "join products")
	}
	byID := make(map[string]product.Product, len(found))
	for _, p := range found {
		byID[p.ID] = p
	}
	for _, o := range orders {
		for i := range o.Items {
			if p, ok := byID[o.Items[i].ProductID]; ok {
				o.Items[i].Product = &p
			}
		}
	}
	return nil
}

type orderEvent struct {
	OrderID       string          `json:"order_id"`
	OrderNumber   string          `json:"order_number"`
	CustomerID    string          `json:"customer_id"`
	Status        Status          `json:"status"`
	PaymentStatus PaymentStatus   `json:"payment_status"`
	Total         decimal.Decimal `json:"total"`
	Items         []LineItem      `json:"items"`
}

func newOrderEvent(o *Order) orderEvent {
	return orderEvent{
		OrderID:       o.ID,
		OrderNumber:   o.Number,
		CustomerID:    o.CustomerID,
		Status:        o.Status,
		PaymentStatus: o.PaymentStatus,
		Total:         o.Total,
		Items:         o.Items,
	}
}

type statusChangedEvent struct {
	OrderID     string `json:"order_id"`
	OrderNumber string `json:"order_number"`
	From        Status `json:"from"`
	To          Status `json:"to"`
}
