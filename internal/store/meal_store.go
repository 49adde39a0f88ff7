package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/vbonduro/mealverify/internal/domain"
)

const mealColumns = `
	id, person_id, description, weight_before, weight_after, picture_before, picture_after,
	status, accurate, report_json, prediction_json, raw_response, error, created_at, completed_at`

type MealRequestStore struct {
	db *sql.DB
}

func NewMealRequestStore(db *sql.DB) *MealRequestStore {
	return &MealRequestStore{db: db}
}

// Create saves a pending request and its product lines in one transaction
// and returns the new request id. A failed rollback is joined onto the
// returned error.
func (s *MealRequestStore) Create(ctx context.Context, req *domain.MealRequest) (id int64, err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			err = errors.Join(err, fmt.Errorf("failed to roll back meal request: %w", rbErr))
		}
	}()

	result, err := tx.ExecContext(ctx, `
		INSERT INTO meal_analysis_requests
			(person_id, description, weight_before, weight_after, picture_before, picture_after, status)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, req.PersonID, req.Description, req.WeightBefore, req.WeightAfter,
		req.PictureBefore, req.PictureAfter, domain.MealStatusPending)
	if err != nil {
		return 0, fmt.Errorf("failed to create meal request: %w", err)
	}

	id, err = result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert id: %w", err)
	}

	for _, line := range req.Products {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO meal_analysis_products (request_id, product_sku, product_name, weight_in_req)
			VALUES (?, ?, ?, ?)
		`, id, line.SKU, line.Name, line.WeightInReq); err != nil {
			return 0, fmt.Errorf("failed to create meal product line: %w", constraintError(err))
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit meal request: %w", err)
	}

	return id, nil
}

// Complete records a successful verification.
func (s *MealRequestStore) Complete(ctx context.Context, id int64, accurate bool, reportJSON, predictionJSON, rawResponse string) error {
	return s.finish(ctx, `
		UPDATE meal_analysis_requests
		SET status = ?, accurate = ?, report_json = ?, prediction_json = ?, raw_response = ?,
			error = NULL, completed_at = datetime('now')
		WHERE id = ?
	`, domain.MealStatusCompleted, accurate, reportJSON, predictionJSON, rawResponse, id)
}

// Fail records why a request could not be verified. rawResponse may be
// empty when the model never answered.
func (s *MealRequestStore) Fail(ctx context.Context, id int64, reason, rawResponse string) error {
	return s.finish(ctx, `
		UPDATE meal_analysis_requests
		SET status = ?, error = ?, raw_response = NULLIF(?, ''), completed_at = datetime('now')
		WHERE id = ?
	`, domain.MealStatusFailed, reason, rawResponse, id)
}

func (s *MealRequestStore) finish(ctx context.Context, query string, args ...any) error {
	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update meal request: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return fmt.Errorf("meal request: %w", ErrNotFound)
	}

	return nil
}

func (s *MealRequestStore) GetByID(ctx context.Context, id int64) (*domain.MealRequest, error) {
	reqs, err := s.query(ctx, "WHERE r.id = ?", id)
	if err != nil {
		return nil, err
	}
	if len(reqs) == 0 {
		return nil, nil
	}
	return reqs[0], nil
}

// List returns requests newest first. An empty personID lists everyone's.
func (s *MealRequestStore) List(ctx context.Context, personID string) ([]*domain.MealRequest, error) {
	if personID == "" {
		return s.query(ctx, "")
	}
	return s.query(ctx, "WHERE r.person_id = ?", personID)
}

func (s *MealRequestStore) query(ctx context.Context, where string, args ...any) ([]*domain.MealRequest, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+mealColumns+" FROM meal_analysis_requests r "+where+" ORDER BY r.id DESC", args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list meal requests: %w", err)
	}

	reqs := []*domain.MealRequest{}
	byID := map[int64]*domain.MealRequest{}
	for rows.Next() {
		req, err := scanMealRequest(rows)
		if err != nil {
			closeRows(rows)
			return nil, err
		}
		reqs = append(reqs, req)
		byID[req.ID] = req
	}
	err = rows.Err()
	closeRows(rows)
	if err != nil {
		return nil, fmt.Errorf("error iterating meal requests: %w", err)
	}

	if len(reqs) == 0 {
		return reqs, nil
	}
	if err := s.attachProducts(ctx, byID, where, args...); err != nil {
		return nil, err
	}
	return reqs, nil
}

// attachProducts loads the product lines of every request matched by where,
// which filters on the request table aliased as r.
func (s *MealRequestStore) attachProducts(ctx context.Context, byID map[int64]*domain.MealRequest, where string, args ...any) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT p.request_id, p.product_sku, p.product_name, p.weight_in_req
		FROM meal_analysis_products p
		JOIN meal_analysis_requests r ON r.id = p.request_id
		`+where+` ORDER BY p.id ASC`, args...)
	if err != nil {
		return fmt.Errorf("failed to list meal product lines: %w", err)
	}
	defer closeRows(rows)

	for rows.Next() {
		var requestID int64
		line := &domain.MealProductLine{}
		if err := rows.Scan(&requestID, &line.SKU, &line.Name, &line.WeightInReq); err != nil {
			return fmt.Errorf("failed to scan meal product line: %w", err)
		}
		if req, ok := byID[requestID]; ok {
			req.Products = append(req.Products, line)
		}
	}

	if err := rows.Err(); err != nil {
		return fmt.Errorf("error iterating meal product lines: %w", err)
	}
	return nil
}

func scanMealRequest(rows *sql.Rows) (*domain.MealRequest, error) {
	var (
		req            = &domain.MealRequest{Products: []*domain.MealProductLine{}}
		description    sql.NullString
		accurate       sql.NullBool
		reportJSON     sql.NullString
		predictionJSON sql.NullString
		rawResponse    sql.NullString
		errText        sql.NullString
		completedAt    sql.NullTime
		status         string
	)
	if err := rows.Scan(
		&req.ID, &req.PersonID, &description, &req.WeightBefore, &req.WeightAfter,
		&req.PictureBefore, &req.PictureAfter, &status, &accurate, &reportJSON,
		&predictionJSON, &rawResponse, &errText, &req.CreatedAt, &completedAt,
	); err != nil {
		return nil, fmt.Errorf("failed to scan meal request: %w", err)
	}

	req.Status = domain.MealStatus(status)
	req.Description = description.String
	req.ReportJSON = reportJSON.String
	req.PredictionJSON = predictionJSON.String
	req.RawResponse = rawResponse.String
	req.Error = errText.String
	if accurate.Valid {
		v := accurate.Bool
		req.Accurate = &v
	}
	if completedAt.Valid {
		t := completedAt.Time
		req.CompletedAt = &t
	}
	return req, nil
}
