package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/xid"

	"github.com/icar/swc-backend/internal/apperror"
	"github.com/icar/swc-backend/internal/model"
	"github.com/icar/swc-backend/internal/repository"
)

// compile-time check that *DB implements repository.FieldInputRepository
var _ repository.FieldInputRepository = (*DB)(nil)

// CreateWithResult persists a field input and its decision result
// atomically. If the result insert fails, the input insert rolls back —
// we never record an input that claims to have a decision but doesn't.
func (db *DB) CreateWithResult(ctx context.Context, input *model.FieldInput, result *model.DecisionResult) error {
	now := time.Now().UTC()
	input.ID = xid.New().String()
	input.CreatedAt = now

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: beginning transaction: %w", err)
	}
	// Rollback is a no-op after a successful Commit.
	defer tx.Rollback()

	// user_id is nullable: anonymous prediction calls record no owner.
	var userID sql.NullString
	if input.UserID != "" {
		userID = sql.NullString{String: input.UserID, Valid: true}
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO field_inputs (id, user_id, lat, lon, land_slope, soil_depth, rainfall, land_use, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		input.ID,
		userID,
		input.Lat,
		input.Lon,
		input.LandSlope,
		input.SoilDepth,
		input.Rainfall,
		input.LandUse,
		input.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: inserting field input: %w", err)
	}

	if result != nil {
		result.ID = xid.New().String()
		result.FieldInputID = input.ID
		result.CreatedAt = now

		_, err = tx.ExecContext(ctx,
			`INSERT INTO decision_results (id, field_input_id, recommended_measures, confidence, explanation, source, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			result.ID,
			result.FieldInputID,
			result.RecommendedMeasures,
			result.Confidence,
			result.Explanation,
			result.Source,
			result.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("sqlite: inserting decision result: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: committing prediction record: %w", err)
	}

	return nil
}

// GetPredictionByID returns one field input joined with its decision result.
func (db *DB) GetPredictionByID(ctx context.Context, id string) (*model.Prediction, error) {
	row := db.conn.QueryRowContext(ctx, predictionSelect+` WHERE fi.id = ?`, id)

	p, err := scanPrediction(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("field input", id)
		}
		return nil, fmt.Errorf("sqlite: getting field input %s: %w", id, err)
	}

	return p, nil
}

// ListByUser returns the user's recorded predictions, newest first.
func (db *DB) ListByUser(ctx context.Context, userID string, opts repository.ListOptions) ([]model.Prediction, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 50
	}

	rows, err := db.conn.QueryContext(ctx,
		predictionSelect+` WHERE fi.user_id = ? ORDER BY fi.created_at DESC LIMIT ? OFFSET ?`,
		userID, limit, opts.Offset,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing field inputs for user %s: %w", userID, err)
	}
	defer rows.Close()

	// Return an empty slice, not nil — JSON-encodes as [] instead of null.
	predictions := []model.Prediction{}
	for rows.Next() {
		p, err := scanPrediction(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scanning field input row: %w", err)
		}
		predictions = append(predictions, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating field input rows: %w", err)
	}

	return predictions, nil
}

// predictionSelect joins inputs with their (optional) results. LEFT JOIN:
// an input recorded without a decision still lists.
const predictionSelect = `
	SELECT fi.id, fi.user_id, fi.lat, fi.lon, fi.land_slope, fi.soil_depth,
	       fi.rainfall, fi.land_use, fi.created_at,
	       dr.id, dr.recommended_measures, dr.confidence, dr.explanation,
	       dr.source, dr.created_at
	FROM field_inputs fi
	LEFT JOIN decision_results dr ON dr.field_input_id = fi.id`

// scanner covers both sql.Row and sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanPrediction(s scanner) (*model.Prediction, error) {
	var (
		p          model.Prediction
		userID     sql.NullString
		resultID   sql.NullString
		measures   sql.NullString
		confidence sql.NullFloat64
		explain    sql.NullString
		source     sql.NullString
		resultAt   sql.NullTime
	)

	err := s.Scan(
		&p.Input.ID,
		&userID,
		&p.Input.Lat,
		&p.Input.Lon,
		&p.Input.LandSlope,
		&p.Input.SoilDepth,
		&p.Input.Rainfall,
		&p.Input.LandUse,
		&p.Input.CreatedAt,
		&resultID,
		&measures,
		&confidence,
		&explain,
		&source,
		&resultAt,
	)
	if err != nil {
		return nil, err
	}

	p.Input.UserID = userID.String

	if resultID.Valid {
		p.Result = &model.DecisionResult{
			ID:                  resultID.String,
			FieldInputID:        p.Input.ID,
			RecommendedMeasures: measures.String,
			Confidence:          confidence.Float64,
			Explanation:         explain.String,
			Source:              source.String,
			CreatedAt:           resultAt.Time,
		}
	}

	return &p, nil
}
