package product

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/xenking/chils-store/internal/validation"
)

// Input holds the editable fields of a product.
type Input struct {
	Name            string          `json:"name" validate:"required,max=100"`
	Description     string          `json:"description" validate:"required,max=500"`
	Price           decimal.Decimal `json:"price"`
	Category        Category        `json:"category" validate:"required,oneof=main-course side-dish beverage dessert"`
	Image           string          `json:"image" validate:"max=500"`
	Stock           int             `json:"stock" validate:"gte=0"`
	IsAvailable     *bool           `json:"isAvailable"`
	Ingredients     []string        `json:"ingredients" validate:"dive,required,max=100"`
	SpiceLevel      SpiceLevel      `json:"spiceLevel" validate:"omitempty,oneof=mild medium spicy very-spicy"`
	PreparationTime int             `json:"preparationTime" validate:"gte=0,lte=240"`
	IsFeatured      bool            `json:"isFeatured"`
}

func (in Input) validate() error {
	if err := validation.Struct(in); err != nil {
		return err
	}
	if in.Price.IsNegative() {
		return validation.Invalid("price", "cannot be negative")
	}
	return nil
}

func (in Input) apply(p *Product) {
	p.Name = in.Name
	p.Description = in.Description
	p.Price = in.Price.Round(2)
	p.Category = in.Category
	p.Image = in.Image
	if p.Image == "" {
		p.Image = DefaultImage
	}
	p.Stock = in.Stock
	if in.IsAvailable != nil {
		p.IsAvailable = *in.IsAvailable
	}
	p.Ingredients = in.Ingredients
	if p.Ingredients == nil {
		p.Ingredients = []string{}
	}
	p.SpiceLevel = in.SpiceLevel
	if p.SpiceLevel == "" {
		p.SpiceLevel = SpiceMedium
	}
	p.PreparationTime = in.PreparationTime
	if p.PreparationTime == 0 {
		p.PreparationTime = 15
	}
	p.IsFeatured = in.IsFeatured
}

// Service implements menu browsing and catalog administration.
type Service struct {
	products Repository
	now      func() time.Time
}

func NewService(products Repository) *Service {
	return &Service{products: products, now: time.Now}
}

// Menu returns purchasable products. category may be empty or "all" to list
// every category.
func (s *Service) Menu(ctx context.Context, category string) ([]Product, error) {
	c := Category(category)
	if category == "all" {
		c = ""
	}
	if c != "" && !c.Valid() {
		return nil, validation.Invalid("category", "must be one of: main-course, side-dish, beverage, dessert")
	}
	items, err := s.products.ListAvailable(ctx, c)
	if err != nil {
		return nil, errors.Wrap(err, "list menu")
	}
	return items, nil
}

// MenuItem returns a single product if it can currently be ordered.
func (s *Service) MenuItem(ctx context.Context, id string) (*Product, error) {
	p, err := s.products.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !p.Purchasable() {
		return nil, ErrNotFound
	}
	return p, nil
}

func (s *Service) List(ctx context.Context) ([]Product, error) {
	items, err := s.products.List(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "list products")
	}
	return items, nil
}

func (s *Service) Get(ctx context.Context, id string) (*Product, error) {
	return s.products.GetByID(ctx, id)
}

// Create validates in and stores a new product. Products are available by
// default.
func (s *Service) Create(ctx context.Context, in Input) (*Product, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	now := s.now().UTC()
	p := &Product{
		ID:          uuid.New().String(),
		IsAvailable: true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	in.apply(p)
	if err := s.products.Create(ctx, p); err != nil {
		return nil, errors.Wrap(err, "create product")
	}
	return p, nil
}

// Update replaces the editable fields of an existing product.
func (s *Service) Update(ctx context.Context, id string, in Input) (*Product, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	p, err := s.products.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	in.apply(p)
	p.UpdatedAt = s.now().UTC()
	if err := s.products.Update(ctx, p); err != nil {
		return nil, errors.Wrapf(err, "update product %s", id)
	}
	return p, nil
}

// Delete removes a product. Existing orders keep their line item snapshots.
func (s *Service) Delete(ctx context.Context, id string) error {
	return s.products.Delete(ctx, id)
}
