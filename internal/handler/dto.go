package handler

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xenking/chils-store/internal/domain/order"
	"github.com/xenking/chils-store/internal/domain/payment"
	"github.com/xenking/chils-store/internal/domain/product"
	"github.com/xenking/chils-store/internal/domain/user"
	"github.com/xenking/chils-store/internal/session"
)

// money renders an amount as a JSON number with two decimals.
func money(d decimal.Decimal) json.Number {
	return json.Number(d.StringFixed(2))
}

type identity struct {
	ID    string    `json:"id"`
	Name  string    `json:"name"`
	Email string    `json:"email"`
	Role  user.Role `json:"role"`
}

func identityFromSession(s *session.Session) identity {
	return identity{ID: s.UserID, Name: s.Name, Email: s.Email, Role: s.Role}
}

type userResponse struct {
	ID          string           `json:"id"`
	Name        string           `json:"name"`
	Email       string           `json:"email"`
	Role        user.Role        `json:"role"`
	Phone       string           `json:"phone"`
	Address     user.Address     `json:"address"`
	Avatar      string           `json:"avatar"`
	IsActive    bool             `json:"isActive"`
	Preferences user.Preferences `json:"preferences"`
	LastLogin   *time.Time       `json:"lastLogin,omitempty"`
	CreatedAt   time.Time        `json:"createdAt"`
}

func newUserResponse(u *user.User) userResponse {
	return userResponse{
		ID:          u.ID,
		Name:        u.Name,
		Email:       u.Email,
		Role:        u.Role,
		Phone:       u.Phone,
		Address:     u.Address,
		Avatar:      u.Avatar,
		IsActive:    u.IsActive,
		Preferences: u.Preferences,
		LastLogin:   u.LastLogin,
		CreatedAt:   u.CreatedAt,
	}
}

type productResponse struct {
	ID              string             `json:"id"`
	Name            string             `json:"name"`
	Description     string             `json:"description"`
	Price           json.Number        `json:"price"`
	Category        product.Category   `json:"category"`
	Image           string             `json:"image"`
	Stock           int                `json:"stock"`
	IsAvailable     bool               `json:"isAvailable"`
	Ingredients     []string           `json:"ingredients"`
	SpiceLevel      product.SpiceLevel `json:"spiceLevel"`
	PreparationTime int                `json:"preparationTime"`
	IsFeatured      bool               `json:"isFeatured"`
	CreatedAt       time.Time          `json:"createdAt"`
	UpdatedAt       time.Time          `json:"updatedAt"`
}

func newProductResponse(p *product.Product) productResponse {
	ingredients := p.Ingredients
	if ingredients == nil {
		ingredients = []string{}
	}
	return productResponse{
		ID:              p.ID,
		Name:            p.Name,
		Description:     p.Description,
		Price:           money(p.Price),
		Category:        p.Category,
		Image:           p.Image,
		Stock:           p.Stock,
		IsAvailable:     p.IsAvailable,
		Ingredients:     ingredients,
		SpiceLevel:      p.SpiceLevel,
		PreparationTime: p.PreparationTime,
		IsFeatured:      p.IsFeatured,
		CreatedAt:       p.CreatedAt,
		UpdatedAt:       p.UpdatedAt,
	}
}

func newProductList(items []product.Product) []productResponse {
	out := make([]productResponse, len(items))
	for i := range items {
		out[i] = newProductResponse(&items[i])
	}
	return out
}

type productSummary struct {
	ID    string      `json:"id"`
	Name  string      `json:"name"`
	Price json.Number `json:"price"`
	Image string      `json:"image"`
}

type lineItemResponse struct {
	ProductID string          `json:"productId"`
	Name      string          `json:"name"`
	Quantity  int             `json:"quantity"`
	Price     json.Number     `json:"price"`
	Subtotal  json.Number     `json:"subtotal"`
	Product   *productSummary `json:"product"`
}

type customerSummary struct {
	ID    string `json:"id"`
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
}

type orderResponse struct {
	ID                  string              `json:"id"`
	OrderNumber         string              `json:"orderNumber"`
	Customer            customerSummary     `json:"customer"`
	Items               []lineItemResponse  `json:"items"`
	TotalAmount         json.Number         `json:"totalAmount"`
	Status              order.Status        `json:"status"`
	PaymentStatus       order.PaymentStatus `json:"paymentStatus"`
	PaymentMethod       order.PaymentMethod `json:"paymentMethod"`
	DeliveryAddress     user.Address        `json:"deliveryAddress"`
	SpecialInstructions string              `json:"specialInstructions"`
	OrderDate           time.Time           `json:"orderDate"`
	EstimatedDelivery   *time.Time          `json:"estimatedDelivery,omitempty"`
	CompletedAt         *time.Time          `json:"completedAt,omitempty"`
	UpdatedAt           time.Time           `json:"updatedAt"`
}

func newLineItems(items []order.LineItem) []lineItemResponse {
	out := make([]lineItemResponse, len(items))
	for i, li := range items {
		out[i] = lineItemResponse{
			ProductID: li.ProductID,
			Name:      li.Name,
			Quantity:  li.Quantity,
			Price:     money(li.Price),
			Subtotal:  money(li.Subtotal()),
		}
		if li.Product != nil {
			out[i].Product = &productSummary{
				ID:    li.Product.ID,
				Name:  li.Product.Name,
				Price: money(li.Product.Price),
				Image: li.Product.Image,
			}
		}
	}
	return out
}

func newOrderResponse(o *order.Order) orderResponse {
	resp := orderResponse{
		ID:          o.ID,
		OrderNumber: o.Number,
		Customer: customerSummary{
			ID:    o.CustomerID,
			Name:  o.CustomerName,
			Email: o.CustomerEmail,
		},
		Items:               newLineItems(o.Items),
		TotalAmount:         money(o.Total),
		Status:              o.Status,
		PaymentStatus:       o.PaymentStatus,
		PaymentMethod:       o.PaymentMethod,
		DeliveryAddress:     o.DeliveryAddress,
		SpecialInstructions: o.SpecialInstructions,
		OrderDate:           o.OrderDate,
		CompletedAt:         o.CompletedAt,
		UpdatedAt:           o.UpdatedAt,
	}
	if !o.EstimatedDelivery.IsZero() {
		eta := o.EstimatedDelivery
		resp.EstimatedDelivery = &eta
	}
	return resp
}

func newOrderList(items []order.Order) []orderResponse {
	out := make([]orderResponse, len(items))
	for i := range items {
		out[i] = newOrderResponse(&items[i])
	}
	return out
}

type trackingResponse struct {
	OrderNumber         string              `json:"orderNumber"`
	Status              order.Status        `json:"status"`
	StatusMessage       string              `json:"statusMessage"`
	PaymentStatus       order.PaymentStatus `json:"paymentStatus"`
	OrderDate           time.Time           `json:"orderDate"`
	EstimatedDelivery   time.Time           `json:"estimatedDelivery"`
	Items               []lineItemResponse  `json:"items"`
	TotalAmount         json.Number         `json:"totalAmount"`
	DeliveryAddress     user.Address        `json:"deliveryAddress"`
	SpecialInstructions string              `json:"specialInstructions"`
}

func newTrackingResponse(t *order.Tracking) trackingResponse {
	return trackingResponse{
		OrderNumber:         t.Order.Number,
		Status:              t.Order.Status,
		StatusMessage:       t.Message,
		PaymentStatus:       t.Order.PaymentStatus,
		OrderDate:           t.Order.OrderDate,
		EstimatedDelivery:   t.EstimatedDelivery,
		Items:               newLineItems(t.Order.Items),
		TotalAmount:         money(t.Order.Total),
		DeliveryAddress:     t.Order.DeliveryAddress,
		SpecialInstructions: t.Order.SpecialInstructions,
	}
}

type paymentResponse struct {
	ID             string              `json:"id"`
	OrderID        string              `json:"orderId"`
	Amount         json.Number         `json:"amount"`
	Method         order.PaymentMethod `json:"method"`
	Status         payment.Status      `json:"status"`
	GCashReference string              `json:"gcashReference"`
	TransactionID  string              `json:"transactionId,omitempty"`
	FailureReason  string              `json:"failureReason,omitempty"`
	PaymentDate    time.Time           `json:"paymentDate"`
	CompletedAt    *time.Time          `json:"completedAt,omitempty"`
}

func newPaymentResponse(p *payment.Payment) paymentResponse {
	return paymentResponse{
		ID:             p.ID,
		OrderID:        p.OrderID,
		Amount:         money(p.Amount),
		Method:         p.Method,
		Status:         p.Status,
		GCashReference: p.Reference,
		TransactionID:  p.TransactionID,
		FailureReason:  p.FailureReason,
		PaymentDate:    p.PaymentDate,
		CompletedAt:    p.CompletedAt,
	}
}

type initiationResponse struct {
	Payment        paymentResponse `json:"payment"`
	QRCode         string          `json:"qrCode"`
	GCashReference string          `json:"gcashReference"`
}

type confirmationResponse struct {
	Payment paymentResponse `json:"payment"`
	Order   orderResponse   `json:"order"`
}

func newConfirmationResponse(c *payment.Confirmation) confirmationResponse {
	return confirmationResponse{
		Payment: newPaymentResponse(c.Payment),
		Order:   newOrderResponse(c.Order),
	}
}

type dashboardResponse struct {
	TotalProducts  int             `json:"totalProducts"`
	TotalOrders    int             `json:"totalOrders"`
	TotalCustomers int             `json:"totalCustomers"`
	RecentOrders   []orderResponse `json:"recentOrders"`
}

type dailySalesResponse struct {
	Date    string      `json:"date"`
	Revenue json.Number `json:"revenue"`
	Orders  int         `json:"orders"`
}

type salesResponse struct {
	Period       string               `json:"period"`
	Since        time.Time            `json:"since"`
	TotalRevenue json.Number          `json:"totalRevenue"`
	TotalOrders  int                  `json:"totalOrders"`
	Daily        []dailySalesResponse `json:"daily"`
}

func newSalesResponse(r *order.SalesReport) salesResponse {
	daily := make([]dailySalesResponse, len(r.Days))
	for i, d := range r.Days {
		daily[i] = dailySalesResponse{
			Date:    d.Day.UTC().Format(time.DateOnly),
			Revenue: money(d.Total),
			Orders:  d.Orders,
		}
	}
	return salesResponse{
		Period:       r.Period,
		Since:        r.Since,
		TotalRevenue: money(r.Total),
		TotalOrders:  r.Orders,
		Daily:        daily,
	}
}
