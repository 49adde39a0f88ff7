package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/vbonduro/mealverify/internal/domain"
)

// ProductFilter narrows a product listing. SKU matches exactly, Name as a
// case-insensitive substring. Page is 1-based.
type ProductFilter struct {
	SKU   string
	Name  string
	Page  int
	Limit int
}

type ProductStore struct {
	db *sql.DB
}

func NewProductStore(db *sql.DB) *ProductStore {
	return &ProductStore{db: db}
}

func (s *ProductStore) Create(ctx context.Context, sku, name string) (*domain.Product, error) {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO products (sku, name) VALUES (?, ?)
	`, sku, name)
	if err != nil {
		return nil, fmt.Errorf("failed to create product: %w", constraintError(err))
	}

	return s.GetBySKU(ctx, sku)
}

func (s *ProductStore) GetBySKU(ctx context.Context, sku string) (*domain.Product, error) {
	product := &domain.Product{}
	err := s.db.QueryRowContext(ctx, `
		SELECT sku, name, created_at FROM products WHERE sku = ?
	`, sku).Scan(&product.SKU, &product.Name, &product.CreatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get product: %w", err)
	}

	return product, nil
}

func (s *ProductStore) List(ctx context.Context, f ProductFilter) (*domain.Page[*domain.Product], error) {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.Limit < 1 {
		f.Limit = 10
	}

	var (
		conds []string
		args  []any
	)
	if f.SKU != "" {
		conds = append(conds, "sku = ?")
		args = append(args, f.SKU)
	}
	if f.Name != "" {
		conds = append(conds, "LOWER(name) LIKE ?")
		args = append(args, "%"+strings.ToLower(f.Name)+"%")
	}
	where := ""
	if len(conds) > 0 {
		where = "WHERE " + strings.Join(conds, " AND ")
	}

	var total int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM products "+where, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("failed to count products: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT sku, name, created_at FROM products "+where+" ORDER BY sku ASC LIMIT ? OFFSET ?",
		append(args, f.Limit, (f.Page-1)*f.Limit)...,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list products: %w", err)
	}
	defer closeRows(rows)

	products := []*domain.Product{}
	for rows.Next() {
		product := &domain.Product{}
		if err := rows.Scan(&product.SKU, &product.Name, &product.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan product: %w", err)
		}
		products = append(products, product)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating products: %w", err)
	}

	return &domain.Page[*domain.Product]{
		Items:      products,
		Page:       f.Page,
		PerPage:    f.Limit,
		TotalPages: (total + f.Limit - 1) / f.Limit,
		Total:      total,
	}, nil
}

// FindWithPictures loads the products named by skus together with their
// reference pictures and plate geometry, keyed by SKU. Unknown SKUs are
// absent from the map.
func (s *ProductStore) FindWithPictures(ctx context.Context, skus []string) (map[string]*domain.ProductWithPictures, error) {
	found := make(map[string]*domain.ProductWithPictures, len(skus))
	if len(skus) == 0 {
		return found, nil
	}

	args := make([]any, len(skus))
	for i, sku := range skus {
		args[i] = sku
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT sku, name, created_at FROM products WHERE sku IN ("+placeholders(len(skus))+")", args...)
	if err != nil {
		return nil, fmt.Errorf("failed to find products: %w", err)
	}
	for rows.Next() {
		p := &domain.ProductWithPictures{Pictures: []*domain.ProductPicture{}}
		if err := rows.Scan(&p.SKU, &p.Name, &p.CreatedAt); err != nil {
			closeRows(rows)
			return nil, fmt.Errorf("failed to scan product: %w", err)
		}
		found[p.SKU] = p
	}
	err = rows.Err()
	closeRows(rows)
	if err != nil {
		return nil, fmt.Errorf("error iterating products: %w", err)
	}

	pictures, err := queryPictures(ctx, s.db,
		"WHERE pp.sku IN ("+placeholders(len(skus))+")", args...)
	if err != nil {
		return nil, err
	}
	for _, pic := range pictures {
		if p, ok := found[pic.SKU]; ok {
			p.Pictures = append(p.Pictures, pic)
		}
	}

	return found, nil
}

func (s *ProductStore) UpdateName(ctx context.Context, sku, name string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE products SET name = ? WHERE sku = ?
	`, name, sku)
	if err != nil {
		return fmt.Errorf("failed to update product: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return fmt.Errorf("product %s: %w", sku, ErrNotFound)
	}

	return nil
}

// Delete removes the product; its pictures and meal lines cascade.
func (s *ProductStore) Delete(ctx context.Context, sku string) error {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM products WHERE sku = ?
	`, sku)
	if err != nil {
		return fmt.Errorf("failed to delete product: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return fmt.Errorf("product %s: %w", sku, ErrNotFound)
	}

	return nil
}
