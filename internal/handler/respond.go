package handler

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/chils-store/internal/domain/order"
	"github.com/xenking/chils-store/internal/domain/payment"
	"github.com/xenking/chils-store/internal/domain/product"
	"github.com/xenking/chils-store/internal/domain/user"
	"github.com/xenking/chils-store/internal/repository"
	"github.com/xenking/chils-store/internal/validation"
)

const maxBodyBytes = 1 << 20

var (
	errUnauthenticated = errors.New("authentication required")
	errForbidden       = errors.New("access denied")
	errBadJSON         = errors.New("invalid JSON body")
)

type envelope struct {
	Success bool                    `json:"success"`
	Data    any                     `json:"data,omitempty"`
	Message string                  `json:"message,omitempty"`
	Errors  []validation.FieldError `json:"errors,omitempty"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeData(w http.ResponseWriter, code int, data any) {
	writeJSON(w, code, envelope{Success: true, Data: data})
}

func writeDataMessage(w http.ResponseWriter, data any, message string) {
	writeJSON(w, http.StatusOK, envelope{Success: true, Data: data, Message: message})
}

func writeMessage(w http.ResponseWriter, code int, message string) {
	writeJSON(w, code, envelope{Success: code < http.StatusBadRequest, Message: message})
}

func decodeJSON(r *http.Request, v any) error {
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(v); err != nil {
		return errBadJSON
	}
	return nil
}

// fail maps err to a status and writes the error envelope. Unexpected errors
// are logged and their text is only exposed outside production.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	var (
		validationErr *validation.Error
		notReady      *repository.NotReadyError
	)
	switch {
	case errors.As(err, &validationErr):
		writeJSON(w, http.StatusBadRequest, envelope{
			Message: "Validation failed: " + validationErr.Error(),
			Errors:  validationErr.Fields,
		})
		return
	case errors.As(err, &notReady):
		zctx.From(r.Context()).Warn("Store not ready", zap.Error(err))
		writeMessage(w, http.StatusServiceUnavailable, "Service temporarily unavailable")
		return
	}

	code, ok := statusOf(err)
	if ok {
		writeMessage(w, code, userMessage(err))
		return
	}

	zctx.From(r.Context()).Error("Request failed",
		zap.String("method", r.Method),
		zap.String("path", r.URL.Path),
		zap.Error(err),
	)
	msg := "Internal server error"
	if !h.cfg.Production {
		msg = err.Error()
	}
	writeMessage(w, http.StatusInternalServerError, msg)
}

// statusOf classifies errors that are the client's to fix.
func statusOf(err error) (int, bool) {
	var (
		quantityErr    *order.InvalidQuantityError
		unavailableErr *order.ProductUnavailableError
		stockErr       *order.InsufficientStockError
		transitionErr  *order.InvalidTransitionError
		paymentTxErr   *payment.InvalidTransitionError
	)
	switch {
	case errors.Is(err, errUnauthenticated),
		errors.Is(err, user.ErrInvalidCredentials),
		errors.Is(err, user.ErrInactive):
		return http.StatusUnauthorized, true
	case errors.Is(err, errForbidden):
		return http.StatusForbidden, true
	case errors.Is(err, order.ErrNotFound),
		errors.Is(err, product.ErrNotFound),
		errors.Is(err, payment.ErrNotFound),
		errors.Is(err, payment.ErrOrderNotFound),
		errors.Is(err, user.ErrNotFound):
		return http.StatusNotFound, true
	case errors.Is(err, payment.ErrAlreadyExists),
		errors.Is(err, user.ErrEmailTaken):
		return http.StatusConflict, true
	case errors.Is(err, errBadJSON),
		errors.Is(err, order.ErrEmptyOrder),
		errors.Is(err, payment.ErrAlreadyPaid),
		errors.Is(err, payment.ErrOrderCancelled),
		errors.As(err, &quantityErr),
		errors.As(err, &unavailableErr),
		errors.As(err, &stockErr),
		errors.As(err, &transitionErr),
		errors.As(err, &paymentTxErr):
		return http.StatusBadRequest, true
	}
	return 0, false
}

var messages = map[error]string{
	errUnauthenticated:         "Authentication required",
	errForbidden:               "Access denied",
	errBadJSON:                 "Invalid JSON body",
	user.ErrInvalidCredentials: "Invalid email or password",
	user.ErrInactive:           "Account is deactivated",
	user.ErrEmailTaken:         "Email is already registered",
	user.ErrNotFound:           "User not found",
	order.ErrNotFound:          "Order not found",
	order.ErrEmptyOrder:        "Order must contain at least one item",
	product.ErrNotFound:        "Product not found",
	payment.ErrNotFound:        "Payment not found",
	payment.ErrOrderNotFound:   "Order not found",
	payment.ErrAlreadyPaid:     "Order already paid",
	payment.ErrAlreadyExists:   "Payment already exists for this order",
	payment.ErrOrderCancelled:  "Order is cancelled",
}

func userMessage(err error) string {
	for target, msg := range messages {
		if errors.Is(err, target) {
			return msg
		}
	}
	return err.Error()
}
