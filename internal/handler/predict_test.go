package handler

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/icar/swc-backend/internal/apperror"
	"github.com/icar/swc-backend/internal/auth"
	"github.com/icar/swc-backend/internal/model"
)

func predictBody(lat, lon float64, landUse string) map[string]any {
	return map[string]any{"lat": lat, "lon": lon, "land_use": landUse}
}

// loginAs registers the user if needed and returns a valid token.
func loginAs(t *testing.T, env *testEnv, username, password string) string {
	t.Helper()
	env.doJSON(t, http.MethodPost, "/auth/register", "", creds(username, password))
	rec := env.doJSON(t, http.MethodPost, "/auth/login", "", creds(username, password))
	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body["token"]
}

// =========================================================================
// POST /api/predict
// =========================================================================

func TestPredictEndpoint_PassesEngineBodyThrough(t *testing.T) {
	env := newTestEnv(t)

	rec := env.doJSON(t, http.MethodPost, "/api/predict", "", predictBody(21.1, 79.0, "agriculture"))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	// The engine's response body reaches the caller byte-for-byte
	assert.JSONEq(t, string(env.analyzer.result.Raw), rec.Body.String())
	assert.Equal(t, 1, env.analyzer.calls)
}

func TestPredictEndpoint_AnonymousAllowed(t *testing.T) {
	env := newTestEnv(t)

	// No Authorization header, a garbage one — both still get an answer
	rec := env.doJSON(t, http.MethodPost, "/api/predict", "", predictBody(10, 20, "forest"))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = env.doJSON(t, http.MethodPost, "/api/predict", "garbage-token", predictBody(10, 20, "forest"))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestPredictEndpoint_ValidationBeforeEngine(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name string
		body map[string]any
	}{
		{"lat out of range", predictBody(91, 0, "agriculture")},
		{"lon out of range", predictBody(0, 181, "agriculture")},
		{"missing land_use", predictBody(10, 20, "")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.doJSON(t, http.MethodPost, "/api/predict", "", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
	assert.Equal(t, 0, env.analyzer.calls, "engine must not be called for invalid input")
}

func TestPredictEndpoint_EngineDownIs502(t *testing.T) {
	env := newTestEnv(t)
	env.analyzer.err = apperror.Unavailable("ai engine", "connection refused")

	rec := env.doJSON(t, http.MethodPost, "/api/predict", "", predictBody(10, 20, "agriculture"))

	require.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, 1, env.analyzer.calls, "exactly one attempt, no retry")
}

func TestPredictEndpoint_UnresolvableOwnerIsLogged(t *testing.T) {
	env := newTestEnv(t)

	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, nil))
	h := NewPredictHandler(env.predictions, env.authService, logger)

	// A syntactically valid token whose subject has no user row
	token, err := env.tokens.Generate("ghost")
	require.NoError(t, err)

	body, err := json.Marshal(predictBody(10, 20, "forest"))
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/api/predict", bytes.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	auth.OptionalAuth(env.tokens)(http.HandlerFunc(h.HandlePredict)).ServeHTTP(rec, req)

	// The caller still gets an answer, recorded without an owner —
	// and the dropped attribution shows up in the log
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, logs.String(), "could not resolve prediction owner")
	assert.Contains(t, logs.String(), "ghost")
}

// =========================================================================
// GET /api/predictions
// =========================================================================

func TestHistoryEndpoint(t *testing.T) {
	env := newTestEnv(t)
	token := loginAs(t, env, "alice", "secret")

	rec := env.doJSON(t, http.MethodPost, "/api/predict", token, predictBody(21.1, 79.0, "agriculture"))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.doJSON(t, http.MethodGet, "/api/predictions", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var history []model.Prediction
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &history))
	require.Len(t, history, 1)
	assert.Equal(t, 21.1, history[0].Input.Lat)
	assert.Equal(t, "agriculture", history[0].Input.LandUse)
	require.NotNil(t, history[0].Result)
	assert.Equal(t, "contour bunding", history[0].Result.RecommendedMeasures)
	assert.Equal(t, "RULE_ENGINE", history[0].Result.Source)
}

func TestHistoryEndpoint_ScopedToCaller(t *testing.T) {
	env := newTestEnv(t)
	aliceToken := loginAs(t, env, "alice", "secret")
	bobToken := loginAs(t, env, "bob", "hunter2")

	env.doJSON(t, http.MethodPost, "/api/predict", aliceToken, predictBody(10, 20, "forest"))

	rec := env.doJSON(t, http.MethodGet, "/api/predictions", bobToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var history []model.Prediction
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &history))
	assert.Empty(t, history)
}

func TestGetPredictionEndpoint(t *testing.T) {
	env := newTestEnv(t)
	token := loginAs(t, env, "alice", "secret")

	rec := env.doJSON(t, http.MethodPost, "/api/predict", token, predictBody(21.1, 79.0, "agriculture"))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.doJSON(t, http.MethodGet, "/api/predictions", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var history []model.Prediction
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &history))
	require.Len(t, history, 1)

	rec = env.doJSON(t, http.MethodGet, "/api/predictions/"+history[0].Input.ID, token, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var got model.Prediction
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, 21.1, got.Input.Lat)
	require.NotNil(t, got.Result)
	assert.Equal(t, "contour bunding", got.Result.RecommendedMeasures)
}

func TestGetPredictionEndpoint_ForeignIDIs404(t *testing.T) {
	env := newTestEnv(t)
	aliceToken := loginAs(t, env, "alice", "secret")
	bobToken := loginAs(t, env, "bob", "hunter2")

	env.doJSON(t, http.MethodPost, "/api/predict", aliceToken, predictBody(10, 20, "forest"))

	rec := env.doJSON(t, http.MethodGet, "/api/predictions", aliceToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var history []model.Prediction
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &history))
	require.Len(t, history, 1)

	// Bob asking for Alice's ID gets the same 404 as a made-up ID
	rec = env.doJSON(t, http.MethodGet, "/api/predictions/"+history[0].Input.ID, bobToken, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = env.doJSON(t, http.MethodGet, "/api/predictions/no-such-id", bobToken, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHistoryEndpoint_RequiresAuth(t *testing.T) {
	env := newTestEnv(t)

	rec := env.doJSON(t, http.MethodGet, "/api/predictions", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHistoryEndpoint_AnonymousPredictionsInvisible(t *testing.T) {
	env := newTestEnv(t)

	// An anonymous prediction has no owner
	env.doJSON(t, http.MethodPost, "/api/predict", "", predictBody(10, 20, "forest"))

	token := loginAs(t, env, "alice", "secret")
	rec := env.doJSON(t, http.MethodGet, "/api/predictions", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var history []model.Prediction
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &history))
	assert.Empty(t, history)
}
