package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/icar/swc-backend/internal/apperror"
	"github.com/icar/swc-backend/internal/engine"
	"github.com/icar/swc-backend/internal/metrics"
	"github.com/icar/swc-backend/internal/model"
	"github.com/icar/swc-backend/internal/repository"
)

// Analyzer is the slice of the engine client this service needs.
// Declared here (consumer side) so tests can swap in a fake without an
// HTTP server.
type Analyzer interface {
	Analyze(ctx context.Context, req engine.AnalyzeRequest) (*engine.Result, error)
}

// PredictionService forwards field observations to the AI engine and
// records what came back.
type PredictionService struct {
	analyzer Analyzer
	fields   repository.FieldInputRepository
	recorder metrics.Recorder
	logger   *slog.Logger
}

// NewPredictionService creates a PredictionService.
func NewPredictionService(
	analyzer Analyzer,
	fields repository.FieldInputRepository,
	recorder metrics.Recorder,
	logger *slog.Logger,
) *PredictionService {
	return &PredictionService{
		analyzer: analyzer,
		fields:   fields,
		recorder: recorder,
		logger:   logger,
	}
}

// Predict validates the input, calls the engine once (no retry), records
// the input + decision, and returns the engine's raw JSON body for the
// HTTP layer to pass through verbatim.
//
// userID may be empty: /api/predict works for anonymous callers, the
// recorded input just has no owner.
//
// RECORDING IS BEST-EFFORT:
// The caller asked for a prediction, and by the time recording runs we
// have one. A failed audit insert is logged and the prediction still
// returned — losing a history row is better than throwing away an
// answer the engine already produced.
func (s *PredictionService) Predict(ctx context.Context, userID string, req engine.AnalyzeRequest) (json.RawMessage, error) {
	if err := validateAnalyzeRequest(req); err != nil {
		return nil, err
	}

	start := time.Now()
	result, err := s.analyzer.Analyze(ctx, req)
	elapsed := time.Since(start)

	if err != nil {
		outcome := metrics.OutcomeFailure
		if errors.Is(err, apperror.ErrUnavailable) {
			outcome = metrics.OutcomeUnavailable
		}
		s.recorder.RecordEngineCall(outcome, elapsed)
		return nil, fmt.Errorf("service/prediction: analyzing field: %w", err)
	}
	s.recorder.RecordEngineCall(metrics.OutcomeSuccess, elapsed)

	input := &model.FieldInput{
		UserID:    userID,
		Lat:       req.Lat,
		Lon:       req.Lon,
		LandUse:   req.LandUse,
		LandSlope: result.LandSlope,
		SoilDepth: result.SoilDepth,
		Rainfall:  result.Rainfall,
	}
	decision := &model.DecisionResult{
		RecommendedMeasures: strings.Join(result.RecommendedMeasures, "; "),
		Confidence:          result.Confidence,
		Explanation:         result.Explanation,
		Source:              result.Source,
	}

	if err := s.fields.CreateWithResult(ctx, input, decision); err != nil {
		s.logger.Error("failed to record prediction",
			slog.Float64("lat", req.Lat),
			slog.Float64("lon", req.Lon),
			slog.String("error", err.Error()),
		)
	}

	return result.Raw, nil
}

// Get returns one of the caller's recorded predictions by ID.
//
// Ownership is enforced here, not in the store: a prediction belonging
// to another user (or to nobody — anonymous records have no owner)
// comes back as not-found, the same answer as a missing ID, so the
// endpoint doesn't confirm foreign IDs exist.
func (s *PredictionService) Get(ctx context.Context, userID, id string) (*model.Prediction, error) {
	if userID == "" {
		return nil, fmt.Errorf("service/prediction: user ID must not be empty")
	}

	p, err := s.fields.GetPredictionByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("service/prediction: getting prediction %s: %w", id, err)
	}
	if p.Input.UserID != userID {
		return nil, apperror.NotFound("prediction", id)
	}

	return p, nil
}

// History returns the caller's recorded predictions, newest first.
func (s *PredictionService) History(ctx context.Context, userID string, opts repository.ListOptions) ([]model.Prediction, error) {
	if userID == "" {
		return nil, fmt.Errorf("service/prediction: user ID must not be empty")
	}

	predictions, err := s.fields.ListByUser(ctx, userID, opts)
	if err != nil {
		return nil, fmt.Errorf("service/prediction: listing predictions for %s: %w", userID, err)
	}

	return predictions, nil
}

func validateAnalyzeRequest(req engine.AnalyzeRequest) error {
	if req.Lat < -90 || req.Lat > 90 {
		return apperror.ValidationFailed("lat", "lat must be between -90 and 90")
	}
	if req.Lon < -180 || req.Lon > 180 {
		return apperror.ValidationFailed("lon", "lon must be between -180 and 180")
	}
	if req.LandUse == "" {
		return apperror.ValidationFailed("land_use", "land_use is required")
	}
	return nil
}
