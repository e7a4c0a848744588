// Package handler exposes the store's HTTP API on a chi router.
package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/xenking/chils-store/internal/domain/order"
	"github.com/xenking/chils-store/internal/domain/payment"
	"github.com/xenking/chils-store/internal/domain/product"
	"github.com/xenking/chils-store/internal/domain/user"
	"github.com/xenking/chils-store/internal/session"
	"github.com/xenking/chils-store/pkg/httpmiddleware"
)

// Users is the account service.
type Users interface {
	Register(ctx context.Context, req user.RegisterRequest) (*user.User, error)
	Login(ctx context.Context, email, password string) (*user.User, error)
	Get(ctx context.Context, id string) (*user.User, error)
	UpdateProfile(ctx context.Context, id string, upd user.ProfileUpdate) (*user.User, error)
}

// Products is the catalog service.
type Products interface {
	Menu(ctx context.Context, category string) ([]product.Product, error)
	MenuItem(ctx context.Context, id string) (*product.Product, error)
	List(ctx context.Context) ([]product.Product, error)
	Get(ctx context.Context, id string) (*product.Product, error)
	Create(ctx context.Context, in product.Input) (*product.Product, error)
	Update(ctx context.Context, id string, in product.Input) (*product.Product, error)
	Delete(ctx context.Context, id string) error
}

// Orders is the order service.
type Orders interface {
	PlaceOrder(ctx context.Context, req order.PlaceOrderRequest) (*order.Order, error)
	Cancel(ctx context.Context, orderID, customerID string) (*order.Order, error)
	UpdateStatus(ctx context.Context, orderID string, next order.Status) (*order.Order, error)
	Get(ctx context.Context, orderID, customerID string) (*order.Order, error)
	List(ctx context.Context, customerID string) ([]order.Order, error)
	ListAll(ctx context.Context) ([]order.Order, error)
	Track(ctx context.Context, orderID, customerID string) (*order.Tracking, error)
	Dashboard(ctx context.Context) (*order.Dashboard, error)
	Sales(ctx context.Context, period string) (*order.SalesReport, error)
}

// Payments is the payment service.
type Payments interface {
	Initiate(ctx context.Context, orderID, customerID string) (*payment.Initiation, error)
	Confirm(ctx context.Context, paymentID, customerID string) (*payment.Confirmation, error)
	HandleProviderEvent(ctx context.Context, ev payment.ProviderEvent) (*payment.Confirmation, error)
}

// Sessions issues and resolves cookie sessions.
type Sessions interface {
	Start(ctx context.Context, w http.ResponseWriter, u *user.User) (*session.Session, error)
	Load(r *http.Request) (*session.Session, error)
	End(w http.ResponseWriter, r *http.Request) error
}

// Config holds non-dependency settings.
type Config struct {
	// Production hides internal error details from responses.
	Production bool
	// WebhookSecret is the HMAC key of the payment provider callback.
	WebhookSecret string
	// CustomerConfirm enables the simulated customer-side payment
	// confirmation endpoint.
	CustomerConfirm bool
	// AuthRateLimit applies to login and registration.
	AuthRateLimit httpmiddleware.RateLimitConfig
	// Ready gates every API route. Nil means always ready.
	Ready func() error
}

// Handler serves the HTTP API.
type Handler struct {
	cfg      Config
	users    Users
	products Products
	orders   Orders
	payments Payments
	sessions Sessions
}

func New(cfg Config, users Users, products Products, orders Orders, payments Payments, sessions Sessions) *Handler {
	if cfg.Ready == nil {
		cfg.Ready = func() error { return nil }
	}
	return &Handler{
		cfg:      cfg,
		users:    users,
		products: products,
		orders:   orders,
		payments: payments,
		sessions: sessions,
	}
}

// Routes mounts the API under /api. ctx bounds the eviction loop of the
// authentication rate limiter.
func (h *Handler) Routes(ctx context.Context) http.Handler {
	r := chi.NewRouter()
	r.Use(httpmiddleware.RequireReady(h.cfg.Ready))
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeMessage(w, http.StatusNotFound, "Route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeMessage(w, http.StatusMethodNotAllowed, "Method not allowed")
	})

	authLimit := h.cfg.AuthRateLimit
	if authLimit.Max <= 0 {
		authLimit = httpmiddleware.RateLimitConfig{Max: 5, Window: 15 * time.Minute}
	}
	if authLimit.Message == "" {
		authLimit.Message = "Too many authentication attempts, please try again later."
	}
	limitAuth := httpmiddleware.RateLimitWithCleanup(ctx, authLimit)

	r.Route("/api", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.With(limitAuth).Post("/register", h.register)
			r.With(limitAuth).Post("/login", h.login)
			r.With(h.authenticate).Post("/logout", h.logout)
			r.With(h.authenticate).Get("/me", h.me)
		})

		r.Route("/customer", func(r chi.Router) {
			r.Use(h.authenticate, requireRole(user.RoleCustomer))

			r.Get("/menu", h.listMenu)
			r.Get("/menu/{id}", h.getMenuItem)
			r.Get("/profile", h.getProfile)
			r.Put("/profile", h.updateProfile)

			r.Post("/orders", h.placeOrder)
			r.Get("/orders", h.listOrders)
			r.Get("/orders/{id}", h.getOrder)
			r.Get("/orders/{id}/tracking", h.trackOrder)
			r.Put("/orders/{id}/cancel", h.cancelOrder)
			r.Post("/orders/{id}/pay", h.initiatePayment)
			if h.cfg.CustomerConfirm {
				r.Post("/payments/{id}/confirm", h.confirmPayment)
			}
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(h.authenticate, requireRole(user.RoleAdmin))

			r.Get("/dashboard", h.dashboard)
			r.Get("/products", h.listProducts)
			r.Post("/products", h.createProduct)
			r.Get("/products/{id}", h.getProduct)
			r.Put("/products/{id}", h.updateProduct)
			r.Delete("/products/{id}", h.deleteProduct)
			r.Get("/orders", h.listAllOrders)
			r.Put("/orders/{id}/status", h.updateOrderStatus)
			r.Get("/analytics/sales", h.salesAnalytics)
		})

		r.Post("/webhooks/gcash", h.gcashWebhook)
	})

	return r
}
