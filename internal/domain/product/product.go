package product

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

var (
	// ErrNotFound is returned when a requested product does not exist.
	ErrNotFound = errors.New("product not found")
	// ErrInsufficientStock is returned by a conditional stock decrement that
	// would drive stock below zero or hit an unavailable product.
	ErrInsufficientStock = errors.New("insufficient stock")
)

// DefaultImage is used when a product is created without an image URL.
const DefaultImage = "/images/default-food.jpg"

// Category groups menu items.
type Category string

const (
	CategoryMainCourse Category = "main-course"
	CategorySideDish   Category = "side-dish"
	CategoryBeverage   Category = "beverage"
	CategoryDessert    Category = "dessert"
)

// Categories lists every valid category in menu display order.
var Categories = []Category{CategoryMainCourse, CategorySideDish, CategoryBeverage, CategoryDessert}

// Valid reports whether c is a known category.
func (c Category) Valid() bool {
	switch c {
	case CategoryMainCourse, CategorySideDish, CategoryBeverage, CategoryDessert:
		return true
	}
	return false
}

type SpiceLevel string

const (
	SpiceMild      SpiceLevel = "mild"
	SpiceMedium    SpiceLevel = "medium"
	SpiceSpicy     SpiceLevel = "spicy"
	SpiceVerySpicy SpiceLevel = "very-spicy"
)

// Product represents a menu item.
type Product struct {
	ID              string
	Name            string
	Description     string
	Price           decimal.Decimal
	Category        Category
	Image           string
	Stock           int
	IsAvailable     bool
	Ingredients     []string
	SpiceLevel      SpiceLevel
	PreparationTime int
	IsFeatured      bool
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Purchasable reports whether the product can be ordered at all.
func (p Product) Purchasable() bool {
	return p.IsAvailable && p.Stock > 0
}

// HasStock reports whether qty units can be ordered.
func (p Product) HasStock(qty int) bool {
	return p.IsAvailable && p.Stock >= qty
}

// Repository defines persistence operations for the catalog.
type Repository interface {
	// ListAvailable returns purchasable products sorted by category and name.
	// An empty category matches every category.
	ListAvailable(ctx context.Context, category Category) ([]Product, error)
	// List returns every product, newest first.
	List(ctx context.Context) ([]Product, error)
	GetByID(ctx context.Context, id string) (*Product, error)
	GetByIDs(ctx context.Context, ids []string) ([]Product, error)
	Create(ctx context.Context, p *Product) error
	Update(ctx context.Context, p *Product) error
	Delete(ctx context.Context, id string) error
	Count(ctx context.Context) (int, error)
}
