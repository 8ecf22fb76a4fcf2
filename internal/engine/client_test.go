package engine

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/icar/swc-backend/internal/apperror"
)

func TestAnalyze_Success(t *testing.T) {
	var gotBody map[string]any

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("Content-Type = %q, want application/json", ct)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Fatalf("decoding request body: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"recommended_measures": ["contour bunding"],
			"confidence": 0.82,
			"explanation": "moderate slope, erosive rainfall",
			"source": "RULE_ENGINE",
			"land_slope": 8.5,
			"soil_depth": "MODERATE",
			"rainfall": 820,
			"extra_field": "passed through"
		}`))
	}))
	defer srv.Close()

	c := New(srv.URL, 5*time.Second)

	result, err := c.Analyze(context.Background(), AnalyzeRequest{
		Lat: 11.0168, Lon: 76.9558, LandUse: "agriculture",
	})
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}

	// Wire format is snake_case — the engine requires land_use
	if _, ok := gotBody["land_use"]; !ok {
		t.Errorf("request body %v missing land_use key", gotBody)
	}
	if gotBody["lat"] != 11.0168 {
		t.Errorf("request lat = %v, want 11.0168", gotBody["lat"])
	}

	if result.Confidence != 0.82 {
		t.Errorf("Confidence = %v, want 0.82", result.Confidence)
	}
	if result.Source != "RULE_ENGINE" {
		t.Errorf("Source = %q, want RULE_ENGINE", result.Source)
	}
	if len(result.RecommendedMeasures) != 1 {
		t.Errorf("RecommendedMeasures = %v, want one entry", result.RecommendedMeasures)
	}

	// Raw preserves everything, including fields we don't model
	var raw map[string]any
	if err := json.Unmarshal(result.Raw, &raw); err != nil {
		t.Fatalf("Raw is not valid JSON: %v", err)
	}
	if raw["extra_field"] != "passed through" {
		t.Error("Raw dropped a field we don't model")
	}
}

func TestAnalyze_EngineDown(t *testing.T) {
	// Point at a server that is already closed — connection refused.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	c := New(url, time.Second)

	_, err := c.Analyze(context.Background(), AnalyzeRequest{Lat: 1, Lon: 2, LandUse: "x"})
	if !errors.Is(err, apperror.ErrUnavailable) {
		t.Errorf("Analyze() error = %v, want ErrUnavailable", err)
	}
}

func TestAnalyze_EngineServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := New(srv.URL, time.Second)

	_, err := c.Analyze(context.Background(), AnalyzeRequest{Lat: 1, Lon: 2, LandUse: "x"})
	if !errors.Is(err, apperror.ErrUnavailable) {
		t.Errorf("Analyze() error = %v, want ErrUnavailable", err)
	}
}

func TestAnalyze_EngineRejectsInput(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"lat out of range"}`, http.StatusBadRequest)
	}))
	defer srv.Close()

	c := New(srv.URL, time.Second)

	_, err := c.Analyze(context.Background(), AnalyzeRequest{Lat: 999, Lon: 2, LandUse: "x"})
	if !errors.Is(err, apperror.ErrValidation) {
		t.Errorf("Analyze() error = %v, want ErrValidation", err)
	}
}

func TestAnalyze_MalformedResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not json at all"))
	}))
	defer srv.Close()

	c := New(srv.URL, time.Second)

	_, err := c.Analyze(context.Background(), AnalyzeRequest{Lat: 1, Lon: 2, LandUse: "x"})
	if !errors.Is(err, apperror.ErrUnavailable) {
		t.Errorf("Analyze() error = %v, want ErrUnavailable", err)
	}
}
