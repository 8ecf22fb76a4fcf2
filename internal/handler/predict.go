package handler

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/icar/swc-backend/internal/auth"
	"github.com/icar/swc-backend/internal/engine"
	"github.com/icar/swc-backend/internal/repository"
	"github.com/icar/swc-backend/internal/service"
)

// PredictHandler exposes the prediction endpoints.
//
// ROUTES:
//   - POST /api/predict           → forward lat/lon/land_use to the AI engine
//   - GET  /api/predictions       → the caller's recorded prediction history
//   - GET  /api/predictions/{id}  → one recorded prediction
type PredictHandler struct {
	predictions *service.PredictionService
	authService *service.AuthService // resolves token subjects to user IDs
	logger      *slog.Logger
}

// NewPredictHandler creates a PredictHandler.
func NewPredictHandler(predictions *service.PredictionService, authService *service.AuthService, logger *slog.Logger) *PredictHandler {
	return &PredictHandler{predictions: predictions, authService: authService, logger: logger}
}

// predictRequest mirrors the engine's wire format: land_use stays
// snake_case end to end, the engine rejects anything else.
type predictRequest struct {
	Lat     float64 `json:"lat"`
	Lon     float64 `json:"lon"`
	LandUse string  `json:"land_use"`
}

// HandlePredict forwards a field observation to the AI engine and
// returns the engine's JSON response body as-is.
//
// HTTP: POST /api/predict
// Auth: optional — an authenticated caller gets the prediction recorded
// under their account; anonymous callers still get an answer.
//
// 502 when the engine is unreachable or failing, 400 when the input is
// out of range. One attempt per request — a failed call is the caller's
// signal to try again, not ours.
func (h *PredictHandler) HandlePredict(w http.ResponseWriter, r *http.Request) {
	var req predictRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	// Anonymous is fine here; OptionalAuth tagged the context if a valid
	// token came along.
	var userID string
	if username, ok := auth.UsernameFromContext(r.Context()); ok {
		owner, err := h.predictionsOwner(r, username)
		if err != nil {
			// A valid token whose user row can't be loaded still gets an
			// answer, recorded without an owner. Log it: silently dropped
			// attribution is the kind of thing nobody notices for months.
			h.logger.Warn("could not resolve prediction owner, recording as anonymous",
				slog.String("username", username),
				slog.String("error", err.Error()),
			)
		} else {
			userID = owner
		}
	}

	raw, err := h.predictions.Predict(r.Context(), userID, engine.AnalyzeRequest{
		Lat:     req.Lat,
		Lon:     req.Lon,
		LandUse: req.LandUse,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	// The engine already produced a JSON document; hand it through
	// without re-encoding.
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(raw); err != nil {
		h.logger.Error("failed to write prediction response", slog.String("error", err.Error()))
	}
}

// HandleHistory returns the caller's recorded predictions, newest first.
//
// HTTP: GET /api/predictions?limit=N&offset=M
// Auth: required.
func (h *PredictHandler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	username, ok := auth.UsernameFromContext(r.Context())
	if !ok {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}

	userID, err := h.predictionsOwner(r, username)
	if err != nil {
		writeError(w, err)
		return
	}

	opts := repository.ListOptions{}
	if v := r.URL.Query().Get("limit"); v != "" {
		opts.Limit, _ = strconv.Atoi(v)
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		opts.Offset, _ = strconv.Atoi(v)
	}

	predictions, err := h.predictions.History(r.Context(), userID, opts)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, predictions)
}

// HandleGetPrediction returns one recorded prediction by ID. IDs the
// caller doesn't own come back 404, indistinguishable from missing ones.
//
// HTTP: GET /api/predictions/{id}
// Auth: required.
func (h *PredictHandler) HandleGetPrediction(w http.ResponseWriter, r *http.Request) {
	username, ok := auth.UsernameFromContext(r.Context())
	if !ok {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}

	userID, err := h.predictionsOwner(r, username)
	if err != nil {
		writeError(w, err)
		return
	}

	prediction, err := h.predictions.Get(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, prediction)
}

// predictionsOwner resolves the token subject (a username) to the
// internal user ID that field inputs are keyed by.
func (h *PredictHandler) predictionsOwner(r *http.Request, username string) (string, error) {
	user, err := h.authService.GetUserByUsername(r.Context(), username)
	if err != nil {
		return "", err
	}
	return user.ID, nil
}
