package repository

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/xenking/chils-store/internal/domain/order"
	"github.com/xenking/chils-store/internal/domain/product"
)

const (
	productColumns = `id, name, description, price, category, image, stock, is_available,
		ingredients, spice_level, preparation_time, is_featured, created_at, updated_at`

	listAvailableProductsSQL = `SELECT ` + productColumns + `
		FROM products
		WHERE is_available AND stock > 0 AND ($1 = '' OR category = $1)
		ORDER BY array_position(ARRAY['main-course', 'side-dish', 'beverage', 'dessert'], category), name`

	listProductsSQL = `SELECT ` + productColumns + ` FROM products ORDER BY created_at DESC, id`

	getProductByIDSQL = `SELECT ` + productColumns + ` FROM products WHERE id = $1`

	getProductsByIDsSQL = `SELECT ` + productColumns + ` FROM products WHERE id = ANY($1)`

	lockProductsSQL = `SELECT ` + productColumns + ` FROM products WHERE id = ANY($1) ORDER BY id FOR UPDATE`

	createProductSQL = `INSERT INTO products (` + productColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`

	updateProductSQL = `UPDATE products SET name = $2, description = $3, price = $4, category = $5,
		image = $6, stock = $7, is_available = $8, ingredients = $9, spice_level = $10,
		preparation_time = $11, is_featured = $12, updated_at = $13
		WHERE id = $1`

	deleteProductSQL = `DELETE FROM products WHERE id = $1`

	countProductsSQL = `SELECT COUNT(*) FROM products`

	decrementStockSQL = `UPDATE products SET stock = stock - $2, updated_at = NOW()
		WHERE id = $1 AND is_available AND stock >= $2`

	restoreStockSQL = `UPDATE products SET stock = stock + $2, updated_at = NOW() WHERE id = $1`
)

var (
	_ product.Repository = (*ProductRepository)(nil)
	_ order.ProductStore = (*ProductRepository)(nil)
)

// ProductRepository implements product.Repository backed by PostgreSQL.
type ProductRepository struct {
	db DB
}

// NewProductRepository returns a ProductRepository that uses the given pool
// or transaction.
func NewProductRepository(db DB) *ProductRepository {
	return &ProductRepository{db: db}
}

// ListAvailable returns purchasable products grouped by category and sorted
// by name. An empty category matches every category.
func (r *ProductRepository) ListAvailable(ctx context.Context, category product.Category) ([]product.Product, error) {
	rows, err := r.db.Query(ctx, listAvailableProductsSQL, string(category))
	if err != nil {
		return nil, fmt.Errorf("listing menu: %w", err)
	}
	return pgx.CollectRows(rows, scanProduct)
}

// List returns the whole catalog, newest first.
func (r *ProductRepository) List(ctx context.Context) ([]product.Product, error) {
	rows, err := r.db.Query(ctx, listProductsSQL)
	if err != nil {
		return nil, fmt.Errorf("listing products: %w", err)
	}
	return pgx.CollectRows(rows, scanProduct)
}

// GetByID returns a single product by its identifier.
func (r *ProductRepository) GetByID(ctx context.Context, id string) (*product.Product, error) {
	rows, err := r.db.Query(ctx, getProductByIDSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting product %q: %w", id, err)
	}

	p, err := pgx.CollectExactlyOneRow(rows, scanProduct)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, product.ErrNotFound
		}
		return nil, fmt.Errorf("getting product %q: %w", id, err)
	}
	return &p, nil
}

// GetByIDs returns products matching any of the given IDs.
func (r *ProductRepository) GetByIDs(ctx context.Context, ids []string) ([]product.Product, error) {
	rows, err := r.db.Query(ctx, getProductsByIDsSQL, ids)
	if err != nil {
		return nil, fmt.Errorf("getting products by ids: %w", err)
	}
	return pgx.CollectRows(rows, scanProduct)
}

// GetForUpdate locks the rows in id order so that concurrent orders touching
// the same products always acquire locks in the same sequence.
func (r *ProductRepository) GetForUpdate(ctx context.Context, ids []string) ([]product.Product, error) {
	rows, err := r.db.Query(ctx, lockProductsSQL, ids)
	if err != nil {
		return nil, fmt.Errorf("locking products: %w", err)
	}
	return pgx.CollectRows(rows, scanProduct)
}

func (r *ProductRepository) Create(ctx context.Context, p *product.Product) error {
	_, err := r.db.Exec(ctx, createProductSQL,
		p.ID, p.Name, p.Description, p.Price, string(p.Category), p.Image, p.Stock, p.IsAvailable,
		ingredients(p.Ingredients), string(p.SpiceLevel), p.PreparationTime, p.IsFeatured,
		p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("creating product %q: %w", p.Name, err)
	}
	return nil
}

func (r *ProductRepository) Update(ctx context.Context, p *product.Product) error {
	tag, err := r.db.Exec(ctx, updateProductSQL,
		p.ID, p.Name, p.Description, p.Price, string(p.Category), p.Image, p.Stock, p.IsAvailable,
		ingredients(p.Ingredients), string(p.SpiceLevel), p.PreparationTime, p.IsFeatured,
		p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("updating product %q: %w", p.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return product.ErrNotFound
	}
	return nil
}

func (r *ProductRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, deleteProductSQL, id)
	if err != nil {
		return fmt.Errorf("deleting product %q: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return product.ErrNotFound
	}
	return nil
}

func (r *ProductRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRow(ctx, countProductsSQL).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting products: %w", err)
	}
	return n, nil
}

// DecrementStock is a conditional update: it affects no row when the product
// is unavailable or short, which callers see as product.ErrInsufficientStock.
func (r *ProductRepository) DecrementStock(ctx context.Context, id string, qty int) error {
	tag, err := r.db.Exec(ctx, decrementStockSQL, id, qty)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.ConstraintName == "products_stock_check" {
			return product.ErrInsufficientStock
		}
		return fmt.Errorf("decrementing stock of %q: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return product.ErrInsufficientStock
	}
	return nil
}

func (r *ProductRepository) RestoreStock(ctx context.Context, id string, qty int) error {
	tag, err := r.db.Exec(ctx, restoreStockSQL, id, qty)
	if err != nil {
		return fmt.Errorf("restoring stock of %q: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return product.ErrNotFound
	}
	return nil
}

// ingredients keeps the JSONB column an array even for products without any.
func ingredients(v []string) []string {
	if v == nil {
		return []string{}
	}
	return v
}

func scanProduct(row pgx.CollectableRow) (product.Product, error) {
	var (
		p               product.Product
		category, spice string
	)
	err := row.Scan(
		&p.ID, &p.Name, &p.Description, &p.Price, &category, &p.Image, &p.Stock, &p.IsAvailable,
		&p.Ingredients, &spice, &p.PreparationTime, &p.IsFeatured, &p.CreatedAt, &p.UpdatedAt,
	)
	p.Category = product.Category(category)
	p.SpiceLevel = product.SpiceLevel(spice)
	return p, err
}
