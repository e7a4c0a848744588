package main

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/klauspost/pgzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xenking/chils-store/internal/domain/product"
	"github.com/xenking/chils-store/internal/domain/user"
)

const menuJSON = `[
  {"name":"Hotteok","description":"Sweet filled pancake","price":3.5,"category":"dessert","stock":20,"ingredients":["flour","brown sugar"]},
  {"name":"Sikhye","description":"Sweet rice drink","price":"2.75","category":"beverage","stock":40}
]`

func TestLoadMenu(t *testing.T) {
	dir := t.TempDir()

	plain := filepath.Join(dir, "menu.json")
	require.NoError(t, os.WriteFile(plain, []byte(menuJSON), 0o600))

	gz := filepath.Join(dir, "menu.json.gz")
	f, err := os.Create(gz)
	require.NoError(t, err)
	zw := pgzip.NewWriter(f)
	_, err = zw.Write([]byte(menuJSON))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())

	for _, path := range []string{plain, gz} {
		t.Run(filepath.Base(path), func(t *testing.T) {
			menu, err := loadMenu(path)
			require.NoError(t, err)
			require.Len(t, menu, 2)
			assert.Equal(t, "Hotteok", menu[0].Name)
			assert.Equal(t, product.CategoryDessert, menu[0].Category)
			assert.Equal(t, "3.5", menu[0].Price.String())
			assert.Equal(t, "2.75", menu[1].Price.String())
			assert.Equal(t, 40, menu[1].Stock)
		})
	}
}

func TestDecodeMenu_Invalid(t *testing.T) {
	_, err := decodeMenu(strings.NewReader(`[]`))
	require.Error(t, err)

	_, err = decodeMenu(strings.NewReader(`{"name":"x"}`))
	require.Error(t, err)

	_, err = loadMenu(filepath.Join(t.TempDir(), "missing.json"))
	require.Error(t, err)
}

func TestDefaultMenu_Valid(t *testing.T) {
	names := make(map[string]bool)
	for _, in := range defaultMenu {
		assert.True(t, in.Category.Valid(), in.Name)
		assert.True(t, in.Price.IsPositive(), in.Name)
		assert.False(t, names[in.Name], "duplicate %s", in.Name)
		names[in.Name] = true
	}
}

type fakeCatalog struct {
	items   []product.Product
	created []string
}

func (c *fakeCatalog) List(context.Context) ([]product.Product, error) { return c.items, nil }

func (c *fakeCatalog) Create(_ context.Context, in product.Input) (*product.Product, error) {
	c.created = append(c.created, in.Name)
	return &product.Product{ID: "id-" + in.Name, Name: in.Name}, nil
}

func TestSeedProducts_SkipsExisting(t *testing.T) {
	c := &fakeCatalog{items: []product.Product{{Name: "Kimchi"}, {Name: "Bulgogi"}}}

	require.NoError(t, seedProducts(t.Context(), zaptest.NewLogger(t), c, defaultMenu))
	assert.Len(t, c.created, len(defaultMenu)-2)
	assert.NotContains(t, c.created, "Kimchi")
	assert.Contains(t, c.created, "Bibimbap")

	// Second run over the same catalog is a no-op.
	for _, name := range c.created {
		c.items = append(c.items, product.Product{Name: name})
	}
	c.created = nil
	require.NoError(t, seedProducts(t.Context(), zaptest.NewLogger(t), c, defaultMenu))
	assert.Empty(t, c.created)
}

type fakeUsers struct {
	taken map[string]bool
}

func (f *fakeUsers) Create(_ context.Context, req user.RegisterRequest, role user.Role) (*user.User, error) {
	if f.taken[req.Email] {
		return nil, user.ErrEmailTaken
	}
	f.taken[req.Email] = true
	return &user.User{Email: req.Email, Role: role}, nil
}

func TestSeedUser_Idempotent(t *testing.T) {
	users := &fakeUsers{taken: map[string]bool{}}
	lg := zaptest.NewLogger(t)

	require.NoError(t, seedUser(t.Context(), lg, users, "Admin User", "admin@chils.com", "secret123", user.RoleAdmin))
	require.NoError(t, seedUser(t.Context(), lg, users, "Admin User", "admin@chils.com", "secret123", user.RoleAdmin))
	assert.True(t, users.taken["admin@chils.com"])
}
