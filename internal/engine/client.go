// Package engine is the HTTP client for the external AI prediction
// engine.
//
// The engine owns ALL of the prediction logic — terrain factors, erosion
// risk scoring, conservation measure selection. This backend treats it as
// an opaque collaborator: one synchronous JSON POST per prediction, no
// retries, no circuit breaking. If the engine is down, the request fails
// once and the caller gets a distinguishable upstream error.
package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/icar/swc-backend/internal/apperror"
)

// AnalyzeRequest is the payload the engine expects. Field names are
// snake_case on the wire — land_use in particular, the engine rejects
// landUse.
type AnalyzeRequest struct {
	Lat     float64 `json:"lat"`
	Lon     float64 `json:"lon"`
	LandUse string  `json:"land_use"`
}

// Result is the engine's response. Known fields are decoded so the
// service layer can record them; Raw preserves the complete body, which
// is what API callers receive — the engine is free to add fields without
// this backend caring.
type Result struct {
	RecommendedMeasures []string `json:"recommended_measures"`
	Confidence          float64  `json:"confidence"`
	Explanation         string   `json:"explanation"`
	Source              string   `json:"source"`
	LandSlope           float64  `json:"land_slope"`
	SoilDepth           string   `json:"soil_depth"`
	Rainfall            float64  `json:"rainfall"`

	Raw json.RawMessage `json:"-"`
}

// Client calls the prediction engine over HTTP.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New creates a Client for the engine at baseURL (the full analyze
// endpoint, e.g. "http://localhost:5000/analyze"). timeout bounds the
// whole call — the only timeout this subsystem imposes beyond the
// transport's own.
func New(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Analyze forwards the field's coordinates and land use to the engine and
// returns its decision.
//
// FAILURE MAPPING:
// Connection failures, timeouts, and non-2xx statuses all come back as
// apperror.ErrUnavailable so the HTTP layer can answer 502 instead of a
// generic 500 — the caller should know the problem is the engine, not
// this server. Engine 4xx bodies usually mean the input was rejected;
// those map to a validation error instead.
func (c *Client) Analyze(ctx context.Context, req AnalyzeRequest) (*Result, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("engine: encoding analyze request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("engine: building analyze request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, apperror.Unavailable("ai engine", err.Error())
	}
	defer resp.Body.Close()

	// Bound the body read — the engine responses are small; anything
	// enormous is a misbehaving upstream, not data we want in memory.
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, apperror.Unavailable("ai engine", fmt.Sprintf("reading response: %v", err))
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		// fall through to decode
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return nil, apperror.ValidationFailed("", fmt.Sprintf("ai engine rejected the input (status %d)", resp.StatusCode))
	default:
		return nil, apperror.Unavailable("ai engine", fmt.Sprintf("status %d", resp.StatusCode))
	}

	var result Result
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, apperror.Unavailable("ai engine", fmt.Sprintf("decoding response: %v", err))
	}
	result.Raw = json.RawMessage(body)

	return &result, nil
}
