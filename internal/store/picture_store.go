package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/vbonduro/mealverify/internal/domain"
)

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

const pictureColumns = `
	pp.id, pp.sku, pp.image_key, pp.mime_type, pp.weight, pp.plate_id, pp.created_at,
	pl.upper_diameter, pl.lower_diameter, pl.depth`

type PictureStore struct {
	db *sql.DB
}

func NewPictureStore(db *sql.DB) *PictureStore {
	return &PictureStore{db: db}
}

func (s *PictureStore) Create(ctx context.Context, sku, storageKey, mimeType string, weight float64, plateID string) (*domain.ProductPicture, error) {
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO product_pictures (sku, image_key, mime_type, weight, plate_id) VALUES (?, ?, ?, ?, ?)
	`, sku, storageKey, mimeType, weight, plateID)
	if err != nil {
		return nil, fmt.Errorf("failed to create product picture: %w", constraintError(err))
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to get last insert id: %w", err)
	}

	return s.GetByID(ctx, id)
}

func (s *PictureStore) GetByID(ctx context.Context, id int64) (*domain.ProductPicture, error) {
	pictures, err := queryPictures(ctx, s.db, "WHERE pp.id = ?", id)
	if err != nil {
		return nil, err
	}
	if len(pictures) == 0 {
		return nil, nil
	}
	return pictures[0], nil
}

func (s *PictureStore) List(ctx context.Context) ([]*domain.ProductPicture, error) {
	return queryPictures(ctx, s.db, "")
}

func (s *PictureStore) ListBySKU(ctx context.Context, sku string) ([]*domain.ProductPicture, error) {
	return queryPictures(ctx, s.db, "WHERE pp.sku = ?", sku)
}

// Delete removes one picture and returns it so the caller can remove the
// stored image. It returns nil, nil when no such picture exists.
func (s *PictureStore) Delete(ctx context.Context, id int64) (*domain.ProductPicture, error) {
	picture, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get product picture: %w", err)
	}
	if picture == nil {
		return nil, nil
	}

	if _, err := s.db.ExecContext(ctx, `DELETE FROM product_pictures WHERE id = ?`, id); err != nil {
		return nil, fmt.Errorf("failed to delete product picture: %w", err)
	}

	return picture, nil
}

// DeleteBySKU removes every picture of a product and returns the removed
// rows for file cleanup.
func (s *PictureStore) DeleteBySKU(ctx context.Context, sku string) ([]*domain.ProductPicture, error) {
	pictures, err := s.ListBySKU(ctx, sku)
	if err != nil {
		return nil, err
	}
	if len(pictures) == 0 {
		return pictures, nil
	}

	if _, err := s.db.ExecContext(ctx, `DELETE FROM product_pictures WHERE sku = ?`, sku); err != nil {
		return nil, fmt.Errorf("failed to delete product pictures: %w", err)
	}

	return pictures, nil
}

func queryPictures(ctx context.Context, q querier, where string, args ...any) ([]*domain.ProductPicture, error) {
	rows, err := q.QueryContext(ctx,
		"SELECT "+pictureColumns+" FROM product_pictures pp JOIN plates pl ON pl.plate_id = pp.plate_id "+
			where+" ORDER BY pp.sku ASC, pp.id ASC", args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list product pictures: %w", err)
	}
	defer closeRows(rows)

	pictures := []*domain.ProductPicture{}
	for rows.Next() {
		pic := &domain.ProductPicture{Plate: &domain.Plate{}}
		if err := rows.Scan(
			&pic.ID, &pic.SKU, &pic.StorageKey, &pic.MimeType, &pic.Weight, &pic.PlateID, &pic.CreatedAt,
			&pic.Plate.UpperDiameter, &pic.Plate.LowerDiameter, &pic.Plate.Depth,
		); err != nil {
			return nil, fmt.Errorf("failed to scan product picture: %w", err)
		}
		pic.Plate.PlateID = pic.PlateID
		pictures = append(pictures, pic)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating product pictures: %w", err)
	}

	return pictures, nil
}
