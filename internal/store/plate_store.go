package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/vbonduro/mealverify/internal/domain"
)

type PlateStore struct {
	db *sql.DB
}

func NewPlateStore(db *sql.DB) *PlateStore {
	return &PlateStore{db: db}
}

func (s *PlateStore) Create(ctx context.Context, p *domain.Plate) (*domain.Plate, error) {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO plates (plate_id, upper_diameter, lower_diameter, depth) VALUES (?, ?, ?, ?)
	`, p.PlateID, p.UpperDiameter, p.LowerDiameter, p.Depth)
	if err != nil {
		return nil, fmt.Errorf("failed to create plate: %w", constraintError(err))
	}

	return s.GetByID(ctx, p.PlateID)
}

func (s *PlateStore) GetByID(ctx context.Context, plateID string) (*domain.Plate, error) {
	plate := &domain.Plate{}
	err := s.db.QueryRowContext(ctx, `
		SELECT plate_id, upper_diameter, lower_diameter, depth FROM plates WHERE plate_id = ?
	`, plateID).Scan(&plate.PlateID, &plate.UpperDiameter, &plate.LowerDiameter, &plate.Depth)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get plate: %w", err)
	}

	return plate, nil
}

func (s *PlateStore) List(ctx context.Context) ([]*domain.Plate, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT plate_id, upper_diameter, lower_diameter, depth FROM plates ORDER BY plate_id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list plates: %w", err)
	}
	defer closeRows(rows)

	var plates []*domain.Plate
	for rows.Next() {
		plate := &domain.Plate{}
		if err := rows.Scan(&plate.PlateID, &plate.UpperDiameter, &plate.LowerDiameter, &plate.Depth); err != nil {
			return nil, fmt.Errorf("failed to scan plate: %w", err)
		}
		plates = append(plates, plate)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating plates: %w", err)
	}

	return plates, nil
}
