package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/xenking/chils-store/internal/domain/order"
	"github.com/xenking/chils-store/internal/domain/product"
)

type statusRequest struct {
	Status order.Status `json:"status"`
}

func (h *Handler) dashboard(w http.ResponseWriter, r *http.Request) {
	d, err := h.orders.Dashboard(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeData(w, http.StatusOK, dashboardResponse{
		TotalProducts:  d.TotalProducts,
		TotalOrders:    d.TotalOrders,
		TotalCustomers: d.TotalCustomers,
		RecentOrders:   newOrderList(d.RecentOrders),
	})
}

func (h *Handler) listProducts(w http.ResponseWriter, r *http.Request) {
	items, err := h.products.List(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeData(w, http.StatusOK, newProductList(items))
}

func (h *Handler) getProduct(w http.ResponseWriter, r *http.Request) {
	p, err := h.products.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeData(w, http.StatusOK, newProductResponse(p))
}

func (h *Handler) createProduct(w http.ResponseWriter, r *http.Request) {
	var in product.Input
	if err := decodeJSON(r, &in); err != nil {
		h.fail(w, r, err)
		return
	}
	p, err := h.products.Create(r.Context(), in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, envelope{
		Success: true,
		Data:    newProductResponse(p),
		Message: "Product created successfully",
	})
}

func (h *Handler) updateProduct(w http.ResponseWriter, r *http.Request) {
	var in product.Input
	if err := decodeJSON(r, &in); err != nil {
		h.fail(w, r, err)
		return
	}
	p, err := h.products.Update(r.Context(), chi.URLParam(r, "id"), in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeDataMessage(w, newProductResponse(p), "Product updated successfully")
}

func (h *Handler) deleteProduct(w http.ResponseWriter, r *http.Request) {
	if err := h.products.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.fail(w, r, err)
		return
	}
	writeMessage(w, http.StatusOK, "Product deleted successfully")
}

func (h *Handler) listAllOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.orders.ListAll(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeData(w, http.StatusOK, newOrderList(orders))
}

func (h *Handler) updateOrderStatus(w http.ResponseWriter, r *http.Request) {
	var req statusRequest
	if err := decodeJSON(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	o, err := h.orders.UpdateStatus(r.Context(), chi.URLParam(r, "id"), req.Status)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeDataMessage(w, newOrderResponse(o), "Order status updated successfully")
}

func (h *Handler) salesAnalytics(w http.ResponseWriter, r *http.Request) {
	report, err := h.orders.Sales(r.Context(), r.URL.Query().Get("period"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeData(w, http.StatusOK, newSalesResponse(report))
}
