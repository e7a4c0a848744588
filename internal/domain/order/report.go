package order

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/chils-store/internal/validation"
)

var statusMessages = map[Status]string{
	StatusPending:   "Order received, waiting for confirmation",
	StatusConfirmed: "Order confirmed, preparing your food",
	StatusPreparing: "Chef is cooking your delicious meal",
	StatusReady:     "Your order is ready for pickup/delivery",
	StatusCompleted: "Order completed! Enjoy your meal!",
	StatusCancelled: "Order has been cancelled",
}

// StatusMessage returns the customer-facing description of s.
func StatusMessage(s Status) string {
	if m, ok := statusMessages[s]; ok {
		return m
	}
	return "Status unknown"
}

// Tracking is the customer view of an order's progress.
type Tracking struct {
	Order             *Order
	Message           string
	EstimatedDelivery time.Time
}

// Track returns progress information for an order owned by customerID.
func (s *Service) Track(ctx context.Context, orderID, customerID string) (*Tracking, error) {
	o, err := s.Get(ctx, orderID, customerID)
	if err != nil {
		return nil, err
	}
	eta := o.EstimatedDelivery
	if eta.IsZero() {
		eta = o.OrderDate.Add(DeliveryWindow)
	}
	return &Tracking{
		Order:             o,
		Message:           StatusMessage(o.Status),
		EstimatedDelivery: eta,
	}, nil
}

// Dashboard summarises the store for staff.
type Dashboard struct {
	TotalProducts  int
	TotalOrders    int
	TotalCustomers int
	RecentOrders   []Order
}

const recentOrdersLimit = 5

// Dashboard gathers store totals and the most recent orders.
func (s *Service) Dashboard(ctx context.Context) (*Dashboard, error) {
	var d Dashboard
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		d.TotalProducts, err = s.catalog.Count(ctx)
		return errors.Wrap(err, "count products")
	})
	g.Go(func() (err error) {
		d.TotalOrders, err = s.orders.Count(ctx)
		return errors.Wrap(err, "count orders")
	})
	g.Go(func() (err error) {
		d.TotalCustomers, err = s.customers.CountCustomers(ctx)
		return errors.Wrap(err, "count customers")
	})
	g.Go(func() (err error) {
		d.RecentOrders, err = s.orders.List(ctx, recentOrdersLimit)
		return errors.Wrap(err, "recent orders")
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return &d, nil
}

var salesPeriods = map[string]int{
	"7d":  7,
	"30d": 30,
	"90d": 90,
}

// SalesReport aggregates completed orders per day.
type SalesReport struct {
	Period string
	Since  time.Time
	Days   []DailySales
	Total  decimal.Decimal
	Orders int
}

// Sales reports completed order revenue for period, one of 7d, 30d or 90d.
// An empty period means 7d.
func (s *Service) Sales(ctx context.Context, period string) (*SalesReport, error) {
	if period == "" {
		period = "7d"
	}
	days, ok := salesPeriods[period]
	if !ok {
		return nil, validation.Invalid("period", "must be one of: 7d, 30d, 90d")
	}
	since := s.now().UTC().AddDate(0, 0, -days)

	rows, err := s.orders.SalesByDay(ctx, since)
	if err != nil {
		return nil, errors.Wrap(err, "sales by day")
	}
	r := &SalesReport{
		Period: period,
		Since:  since,
		Days:   rows,
		Total:  decimal.Zero,
	}
	for _, row := range rows {
		r.Total = r.Total.Add(row.Total)
		r.Orders += row.Orders
	}
	return r, nil
}
