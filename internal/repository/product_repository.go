package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"mactabak/internal/domain"
)

type ProductRepository struct {
	db *sql.DB
}

func NewProductRepository(db *sql.DB) *ProductRepository {
	return &ProductRepository{db: db}
}

const productColumns = `id, name, category, price, unit, weight, description, image, is_available, stock, sold, created_at, updated_at`

func scanProduct(row interface{ Scan(...any) error }) (domain.Product, error) {
	var (
		p         domain.Product
		unit      string
		weight    sql.NullInt64
		available int64
	)
	err := row.Scan(&p.ID, &p.Name, &p.Category, &p.Price, &unit, &weight, &p.Description,
		&p.Image, &available, &p.Stock, &p.Sold, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return p, err
	}
	p.Unit = domain.Unit(unit)
	if weight.Valid {
		w := weight.Int64
		p.Weight = &w
	}
	p.IsAvailable = available == 1
	return p, nil
}

// List returns products matching the filter. Text search runs in Go because
// SQLite LOWER() only folds ASCII.
func (r *ProductRepository) List(ctx context.Context, f domain.ProductFilter) ([]domain.Product, error) {
	var (
		where []string
		args  []any
	)
	if f.Category != "" && f.Category != "all" {
		where = append(where, "category = ?")
		args = append(args, f.Category)
	}
	if f.AvailableOnly {
		where = append(where, "is_available = 1")
	}

	query := "SELECT " + productColumns + " FROM products"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY " + orderBy(f.Sort)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select products: %w", err)
	}
	defer rows.Close()

	search := strings.ToLower(strings.TrimSpace(f.Search))
	out := make([]domain.Product, 0)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		if search != "" &&
			!strings.Contains(strings.ToLower(p.Name), search) &&
			!strings.Contains(strings.ToLower(p.Description), search) {
			continue
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func orderBy(s domain.ProductSort) string {
	switch s {
	case domain.SortPriceAsc:
		return "price ASC, created_at ASC"
	case domain.SortPriceDesc:
		return "price DESC, created_at ASC"
	case domain.SortNew:
		return "created_at DESC, rowid DESC"
	default:
		return "created_at ASC, rowid ASC"
	}
}

func (r *ProductRepository) Get(ctx context.Context, id string) (domain.Product, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+productColumns+" FROM products WHERE id = ?", id)
	p, err := scanProduct(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return p, fmt.Errorf("product %s: %w", id, domain.ErrNotFound)
		}
		return p, fmt.Errorf("select product: %w", err)
	}
	return p, nil
}

func (r *ProductRepository) Create(ctx context.Context, p domain.Product) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO products (`+productColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, p.ID, p.Name, p.Category, p.Price, string(p.Unit), nullableWeight(p.Weight), p.Description,
		p.Image, boolToInt(p.IsAvailable), p.Stock, p.Sold, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert product: %w", err)
	}
	return nil
}

func (r *ProductRepository) Update(ctx context.Context, p domain.Product) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE products SET
		  name = ?, category = ?, price = ?, unit = ?, weight = ?, description = ?,
		  image = ?, is_available = ?, stock = ?, sold = ?, updated_at = ?
		WHERE id = ?`,
		p.Name, p.Category, p.Price, string(p.Unit), nullableWeight(p.Weight), p.Description,
		p.Image, boolToInt(p.IsAvailable), p.Stock, p.Sold, p.UpdatedAt, p.ID,
	)
	if err != nil {
		return fmt.Errorf("update product: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("product %s: %w", p.ID, domain.ErrNotFound)
	}
	return nil
}

// Delete removes the product and returns the deleted row.
func (r *ProductRepository) Delete(ctx context.Context, id string) (domain.Product, error) {
	p, err := r.Get(ctx, id)
	if err != nil {
		return p, err
	}
	if _, err := r.db.ExecContext(ctx, `DELETE FROM products WHERE id = ?`, id); err != nil {
		return p, fmt.Errorf("delete product: %w", err)
	}
	return p, nil
}

func (r *ProductRepository) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM products`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count products: %w", err)
	}
	return n, nil
}

// AddSold moves sold units from stock to the sold counter.
func (r *ProductRepository) AddSold(ctx context.Context, id string, qty int64) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE products SET sold = sold + ?, stock = MAX(stock - ?, 0)
		WHERE id = ?`, qty, qty, id)
	if err != nil {
		return fmt.Errorf("update sold: %w", err)
	}
	return nil
}

func nullableWeight(w *int64) any {
	if w == nil {
		return nil
	}
	return *w
}

func boolToInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}
