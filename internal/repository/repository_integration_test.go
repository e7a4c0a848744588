//go:build integration

package repository_test

import (
	"context"
	"fmt"
	"log"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"golang.org/x/crypto/bcrypt"

	"github.com/xenking/chils-store/internal/domain/order"
	"github.com/xenking/chils-store/internal/domain/payment"
	"github.com/xenking/chils-store/internal/domain/product"
	"github.com/xenking/chils-store/internal/domain/user"
	"github.com/xenking/chils-store/internal/repository"
)

var pool *pgxpool.Pool

func TestMain(m *testing.M) {
	os.Exit(testMain(m))
}

func testMain(m *testing.M) int {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:17-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "chils",
				"POSTGRES_PASSWORD": "chils",
				"POSTGRES_DB":       "chils",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(time.Minute),
		},
		Started: true,
	})
	if err != nil {
		log.Fatalf("start postgres: %v", err)
	}
	defer func() {
		if err := testcontainers.TerminateContainer(container); err != nil {
			log.Printf("terminate postgres: %v", err)
		}
	}()

	host, err := container.Host(ctx)
	if err != nil {
		log.Printf("host: %v", err)
		return 1
	}
	port, err := container.MappedPort(ctx, "5432/tcp")
	if err != nil {
		log.Printf("mapped port: %v", err)
		return 1
	}

	dsn := fmt.Sprintf("postgres://chils:chils@%s:%s/chils?sslmode=disable", host, port.Port())
	pool, err = repository.NewPool(ctx, dsn)
	if err != nil {
		log.Printf("pool: %v", err)
		return 1
	}
	defer pool.Close()

	if err := repository.RunMigrations(ctx, pool); err != nil {
		log.Printf("migrations: %v", err)
		return 1
	}

	return m.Run()
}

type fixture struct {
	store    *repository.Store
	users    *user.Service
	products *product.Service
	orders   *order.Service
	payments *payment.Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	store := repository.NewStore(pool)
	require.NoError(t, store.Ping(context.Background()))

	users := user.NewService(store.Users(), user.NewBcryptHasher(bcrypt.MinCost))
	return &fixture{
		store:    store,
		users:    users,
		products: product.NewService(store.Products()),
		orders:   order.NewService(store.OrderUnit(), store.Orders(), store.Products(), users),
		payments: payment.NewService(store.PaymentUnit(), store.Payments(), payment.NewQRGenerator(), "Chils Korean Store"),
	}
}

func (f *fixture) customer(t *testing.T) *user.User {
	t.Helper()

	u, err := f.users.Register(context.Background(), user.RegisterRequest{
		Name:     "Jisoo Kim",
		Email:    fmt.Sprintf("jisoo-%d@example.com", time.Now().UnixNano()),
		Password: "password123",
		Address:  user.Address{Street: "12 Seoul St", City: "Manila", ZipCode: "1000"},
	})
	require.NoError(t, err)
	return u
}

func (f *fixture) product(t *testing.T, name, price string, stock int) *product.Product {
	t.Helper()

	p, err := f.products.Create(context.Background(), product.Input{
		Name:        name,
		Description: name + " served hot",
		Price:       decimal.RequireFromString(price),
		Category:    product.CategoryMainCourse,
		Stock:       stock,
		Ingredients: []string{"rice"},
	})
	require.NoError(t, err)
	return p
}

func TestStoreReady(t *testing.T) {
	store := repository.NewStore(pool)

	var notReady *repository.NotReadyError
	require.ErrorAs(t, store.Ready(), &notReady)

	require.NoError(t, store.Ping(context.Background()))
	assert.NoError(t, store.Ready())
}

func TestUsers_EmailUnique(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := f.customer(t)

	_, err := f.users.Register(ctx, user.RegisterRequest{
		Name:     "Someone Else",
		Email:    u.Email,
		Password: "password123",
	})
	assert.ErrorIs(t, err, user.ErrEmailTaken)

	got, err := f.store.Users().GetByEmail(ctx, u.Email)
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)
	assert.Equal(t, "Manila", got.Address.City)
	assert.True(t, got.Preferences.Notifications.OrderUpdates)

	_, err = f.users.Login(ctx, u.Email, "password123")
	require.NoError(t, err)
	got, err = f.store.Users().GetByID(ctx, u.ID)
	require.NoError(t, err)
	assert.NotNil(t, got.LastLogin)
}

func TestProducts_CRUD(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.product(t, "Japchae", "8.50", 4)

	got, err := f.products.Get(ctx, p.ID)
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("8.50").Equal(got.Price))
	assert.Equal(t, []string{"rice"}, got.Ingredients)
	assert.Equal(t, product.SpiceMedium, got.SpiceLevel)

	out := false
	_, err = f.products.Update(ctx, p.ID, product.Input{
		Name:        "Japchae",
		Description: "Glass noodles",
		Price:       decimal.RequireFromString("9.00"),
		Category:    product.CategorySideDish,
		Stock:       4,
		IsAvailable: &out,
	})
	require.NoError(t, err)

	_, err = f.products.MenuItem(ctx, p.ID)
	assert.ErrorIs(t, err, product.ErrNotFound)

	require.NoError(t, f.products.Delete(ctx, p.ID))
	assert.ErrorIs(t, f.products.Delete(ctx, p.ID), product.ErrNotFound)
}

func TestPlaceOrder_ConcurrentStock(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	kimchi := f.product(t, "Kimchi Fried Rice", "4.99", 5)

	const buyers = 2
	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		placed int
		errs   []error
	)
	for range buyers {
		c := f.customer(t)
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.orders.PlaceOrder(ctx, order.PlaceOrderRequest{
				CustomerID: c.ID,
				Items:      []order.ItemRequest{{ProductID: kimchi.ID, Quantity: 3}},
			})
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, err)
				return
			}
			placed++
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, placed)
	require.Len(t, errs, 1)
	var stockErr *order.InsufficientStockError
	assert.ErrorAs(t, errs[0], &stockErr)

	got, err := f.products.Get(ctx, kimchi.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.Stock)
}

func TestOrderLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.customer(t)
	bibimbap := f.product(t, "Bibimbap", "12.99", 10)

	o, err := f.orders.PlaceOrder(ctx, order.PlaceOrderRequest{
		CustomerID: c.ID,
		Items:      []order.ItemRequest{{ProductID: bibimbap.ID, Quantity: 2}},
	})
	require.NoError(t, err)
	assert.Equal(t, "25.98", o.Total.StringFixed(2))
	assert.Equal(t, "Manila", o.DeliveryAddress.City)

	_, err = f.store.Orders().Create(ctx, o)
	assert.ErrorIs(t, err, order.ErrDuplicateNumber)

	started, err := f.payments.Initiate(ctx, o.ID, c.ID)
	require.NoError(t, err)
	assert.Regexp(t, `^GC\d{8}[0-9A-Z]{6}$`, started.Payment.Reference)

	_, err = f.payments.Initiate(ctx, o.ID, c.ID)
	assert.ErrorIs(t, err, payment.ErrAlreadyExists)

	byRef, err := f.store.Payments().GetByReference(ctx, started.Payment.Reference)
	require.NoError(t, err)
	assert.Equal(t, started.Payment.ID, byRef.ID)

	confirmed, err := f.payments.Confirm(ctx, started.Payment.ID, c.ID)
	require.NoError(t, err)
	assert.Equal(t, payment.StatusCompleted, confirmed.Payment.Status)
	assert.Equal(t, order.StatusConfirmed, confirmed.Order.Status)
	assert.Equal(t, order.PaymentPaid, confirmed.Order.PaymentStatus)

	for _, next := range []order.Status{order.StatusPreparing, order.StatusReady, order.StatusCompleted} {
		_, err = f.orders.UpdateStatus(ctx, o.ID, next)
		require.NoError(t, err)
	}

	got, err := f.orders.Get(ctx, o.ID, c.ID)
	require.NoError(t, err)
	assert.Equal(t, order.StatusCompleted, got.Status)
	require.NotNil(t, got.CompletedAt)
	require.Len(t, got.Items, 1)
	require.NotNil(t, got.Items[0].Product)
	assert.Equal(t, "Bibimbap", got.Items[0].Product.Name)

	report, err := f.orders.Sales(ctx, "7d")
	require.NoError(t, err)
	assert.True(t, report.Total.GreaterThanOrEqual(decimal.RequireFromString("25.98")))

	all, err := f.orders.ListAll(ctx)
	require.NoError(t, err)
	var found bool
	for _, a := range all {
		if a.ID == o.ID {
			found = true
			assert.Equal(t, c.Email, a.CustomerEmail)
		}
	}
	assert.True(t, found)
}

func TestCancelOrder_RestoresStock(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.customer(t)
	tteok := f.product(t, "Tteokbokki", "6.50", 3)

	o, err := f.orders.PlaceOrder(ctx, order.PlaceOrderRequest{
		CustomerID: c.ID,
		Items:      []order.ItemRequest{{ProductID: tteok.ID, Quantity: 3}},
	})
	require.NoError(t, err)

	started, err := f.payments.Initiate(ctx, o.ID, c.ID)
	require.NoError(t, err)

	cancelled, err := f.orders.Cancel(ctx, o.ID, c.ID)
	require.NoError(t, err)
	assert.Equal(t, order.StatusCancelled, cancelled.Status)

	got, err := f.products.Get(ctx, tteok.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, got.Stock)

	p, err := f.store.Payments().GetByID(ctx, started.Payment.ID)
	require.NoError(t, err)
	assert.Equal(t, payment.StatusCancelled, p.Status)
}
