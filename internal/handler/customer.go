package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/chils-store/internal/domain/order"
	"github.com/xenking/chils-store/internal/domain/user"
)

type placeOrderRequest struct {
	Items               []order.ItemRequest `json:"items"`
	DeliveryAddress     *user.Address       `json:"deliveryAddress"`
	SpecialInstructions string              `json:"specialInstructions"`
	PaymentMethod       order.PaymentMethod `json:"paymentMethod"`
}

func (h *Handler) listMenu(w http.ResponseWriter, r *http.Request) {
	items, err := h.products.Menu(r.Context(), r.URL.Query().Get("category"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeData(w, http.StatusOK, newProductList(items))
}

func (h *Handler) getMenuItem(w http.ResponseWriter, r *http.Request) {
	p, err := h.products.MenuItem(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeData(w, http.StatusOK, newProductResponse(p))
}

func (h *Handler) getProfile(w http.ResponseWriter, r *http.Request) {
	u, err := h.users.Get(r.Context(), caller(r).UserID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeData(w, http.StatusOK, newUserResponse(u))
}

func (h *Handler) updateProfile(w http.ResponseWriter, r *http.Request) {
	var upd user.ProfileUpdate
	if err := decodeJSON(r, &upd); err != nil {
		h.fail(w, r, err)
		return
	}
	u, err := h.users.UpdateProfile(r.Context(), caller(r).UserID, upd)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeDataMessage(w, newUserResponse(u), "Profile updated successfully")
}

func (h *Handler) placeOrder(w http.ResponseWriter, r *http.Request) {
	var req placeOrderRequest
	if err := decodeJSON(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}

	o, err := h.orders.PlaceOrder(r.Context(), order.PlaceOrderRequest{
		CustomerID:          caller(r).UserID,
		Items:               req.Items,
		DeliveryAddress:     req.DeliveryAddress,
		SpecialInstructions: req.SpecialInstructions,
		PaymentMethod:       req.PaymentMethod,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, envelope{
		Success: true,
		Data:    newOrderResponse(o),
		Message: "Order placed successfully",
	})
}

func (h *Handler) listOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.orders.List(r.Context(), caller(r).UserID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeData(w, http.StatusOK, newOrderList(orders))
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.orders.Get(r.Context(), chi.URLParam(r, "id"), caller(r).UserID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeData(w, http.StatusOK, newOrderResponse(o))
}

func (h *Handler) trackOrder(w http.ResponseWriter, r *http.Request) {
	t, err := h.orders.Track(r.Context(), chi.URLParam(r, "id"), caller(r).UserID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeData(w, http.StatusOK, newTrackingResponse(t))
}

func (h *Handler) cancelOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.orders.Cancel(r.Context(), chi.URLParam(r, "id"), caller(r).UserID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeDataMessage(w, newOrderResponse(o), "Order cancelled successfully")
}

func (h *Handler) initiatePayment(w http.ResponseWriter, r *http.Request) {
	res, err := h.payments.Initiate(r.Context(), chi.URLParam(r, "id"), caller(r).UserID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeData(w, http.StatusOK, initiationResponse{
		Payment:        newPaymentResponse(res.Payment),
		QRCode:         res.Payment.QRCode,
		GCashReference: res.Payment.Reference,
	})
}

// confirmPayment simulates the wallet callback for demo deployments.
func (h *Handler) confirmPayment(w http.ResponseWriter, r *http.Request) {
	res, err := h.payments.Confirm(r.Context(), chi.URLParam(r, "id"), caller(r).UserID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	zctx.From(r.Context()).Info("Payment confirmed by customer", zap.String("payment_id", res.Payment.ID))
	writeDataMessage(w, newConfirmationResponse(res), "Payment confirmed successfully")
}
