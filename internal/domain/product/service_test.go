package product

import (
	"context"
	"sort"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/chils-store/internal/validation"
)

// --- Mock implementations ---

type mockRepo struct {
	byID map[string]*Product
}

func newMockRepo(products ...Product) *mockRepo {
	m := &mockRepo{byID: make(map[string]*Product)}
	for i := range products {
		m.byID[products[i].ID] = &products[i]
	}
	return m
}

func (m *mockRepo) ListAvailable(_ context.Context, c Category) ([]Product, error) {
	var out []Product
	for _, p := range m.byID {
		if p.Purchasable() && (c == "" || p.Category == c) {
			out = append(out, *p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *mockRepo) List(_ context.Context) ([]Product, error) {
	out := make([]Product, 0, len(m.byID))
	for _, p := range m.byID {
		out = append(out, *p)
	}
	return out, nil
}

func (m *mockRepo) GetByID(_ context.Context, id string) (*Product, error) {
	p, ok := m.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *mockRepo) GetByIDs(ctx context.Context, ids []string) ([]Product, error) {
	var out []Product
	for _, id := range ids {
		if p, ok := m.byID[id]; ok {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (m *mockRepo) Create(_ context.Context, p *Product) error {
	cp := *p
	m.byID[p.ID] = &cp
	return nil
}

func (m *mockRepo) Update(_ context.Context, p *Product) error {
	if _, ok := m.byID[p.ID]; !ok {
		return ErrNotFound
	}
	cp := *p
	m.byID[p.ID] = &cp
	return nil
}

func (m *mockRepo) Delete(_ context.Context, id string) error {
	if _, ok := m.byID[id]; !ok {
		return ErrNotFound
	}
	delete(m.byID, id)
	return nil
}

func (m *mockRepo) Count(_ context.Context) (int, error) {
	return len(m.byID), nil
}

// --- Helpers ---

func newTestProduct(id, name string, c Category, stock int) Product {
	return Product{
		ID:          id,
		Name:        name,
		Price:       decimal.RequireFromString("4.99"),
		Category:    c,
		Stock:       stock,
		IsAvailable: true,
	}
}

func validInput() Input {
	return Input{
		Name:        "Bibimbap",
		Description: "Mixed rice with vegetables",
		Price:       decimal.RequireFromString("8.50"),
		Category:    CategoryMainCourse,
		Stock:       10,
	}
}

// --- Tests ---

func TestPurchasable(t *testing.T) {
	p := newTestProduct("p1", "Kimchi", CategorySideDish, 1)
	assert.True(t, p.Purchasable())
	assert.True(t, p.HasStock(1))
	assert.False(t, p.HasStock(2))

	p.Stock = 0
	assert.False(t, p.Purchasable())

	p.Stock = 5
	p.IsAvailable = false
	assert.False(t, p.Purchasable())
	assert.False(t, p.HasStock(1))
}

func TestMenu_FiltersByCategory(t *testing.T) {
	svc := NewService(newMockRepo(
		newTestProduct("p1", "Kimchi", CategorySideDish, 5),
		newTestProduct("p2", "Soju", CategoryBeverage, 5),
		newTestProduct("p3", "Bingsu", CategoryDessert, 0),
	))

	all, err := svc.Menu(context.Background(), "all")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	sides, err := svc.Menu(context.Background(), "side-dish")
	require.NoError(t, err)
	require.Len(t, sides, 1)
	assert.Equal(t, "Kimchi", sides[0].Name)
}

func TestMenu_InvalidCategory(t *testing.T) {
	svc := NewService(newMockRepo())

	_, err := svc.Menu(context.Background(), "appetizer")

	var vErr *validation.Error
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "category", vErr.Fields[0].Field)
}

func TestMenuItem_NotPurchasable(t *testing.T) {
	svc := NewService(newMockRepo(newTestProduct("p1", "Kimchi", CategorySideDish, 0)))

	_, err := svc.MenuItem(context.Background(), "p1")
	require.ErrorIs(t, err, ErrNotFound)

	_, err = svc.MenuItem(context.Background(), "missing")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestCreate_Defaults(t *testing.T) {
	repo := newMockRepo()
	svc := NewService(repo)

	p, err := svc.Create(context.Background(), validInput())
	require.NoError(t, err)

	assert.NotEmpty(t, p.ID)
	assert.True(t, p.IsAvailable)
	assert.Equal(t, DefaultImage, p.Image)
	assert.Equal(t, SpiceMedium, p.SpiceLevel)
	assert.Equal(t, 15, p.PreparationTime)
	assert.NotNil(t, p.Ingredients)
	assert.Contains(t, repo.byID, p.ID)
}

func TestCreate_Validation(t *testing.T) {
	svc := NewService(newMockRepo())

	tests := []struct {
		name  string
		field string
		edit  func(*Input)
	}{
		{"missing name", "name", func(in *Input) { in.Name = "" }},
		{"negative price", "price", func(in *Input) { in.Price = decimal.NewFromInt(-1) }},
		{"unknown category", "category", func(in *Input) { in.Category = "snack" }},
		{"negative stock", "stock", func(in *Input) { in.Stock = -1 }},
		{"unknown spice level", "spiceLevel", func(in *Input) { in.SpiceLevel = "nuclear" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := validInput()
			tt.edit(&in)

			_, err := svc.Create(context.Background(), in)

			var vErr *validation.Error
			require.ErrorAs(t, err, &vErr)
			assert.Equal(t, tt.field, vErr.Fields[0].Field)
		})
	}
}

func TestUpdate(t *testing.T) {
	repo := newMockRepo(newTestProduct("p1", "Kimchi", CategorySideDish, 5))
	svc := NewService(repo)

	in := validInput()
	unavailable := false
	in.IsAvailable = &unavailable

	p, err := svc.Update(context.Background(), "p1", in)
	require.NoError(t, err)
	assert.Equal(t, "Bibimbap", p.Name)
	assert.False(t, repo.byID["p1"].IsAvailable)

	_, err = svc.Update(context.Background(), "missing", in)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestDelete(t *testing.T) {
	repo := newMockRepo(newTestProduct("p1", "Kimchi", CategorySideDish, 5))
	svc := NewService(repo)

	require.NoError(t, svc.Delete(context.Background(), "p1"))
	require.ErrorIs(t, svc.Delete(context.Background(), "p1"), ErrNotFound)
}
