package model

import "time"

// DecisionResult.Source values — which subsystem of the engine produced
// the recommendation.
const (
	SourceRuleEngine = "RULE_ENGINE"
	SourceAgentAI    = "AGENT_AI"
)

// FieldInput is one submitted field observation: the coordinates and land
// use the caller sent to /api/predict, plus the physical factors the
// engine resolved for that location (slope, soil depth, rainfall). The
// resolved factors come back in the engine's response — we record them so
// a prediction can be audited later without re-calling the engine.
type FieldInput struct {
	ID        string    `json:"id"        db:"id"`
	UserID    string    `json:"userId"    db:"user_id"` // empty for anonymous calls
	Lat       float64   `json:"lat"       db:"lat"`
	Lon       float64   `json:"lon"       db:"lon"`
	LandSlope float64   `json:"landSlope" db:"land_slope"`
	SoilDepth string    `json:"soilDepth" db:"soil_depth"`
	Rainfall  float64   `json:"rainfall"  db:"rainfall"`
	LandUse   string    `json:"landUse"   db:"land_use"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
}

// DecisionResult is the engine's recommendation for one FieldInput.
// One-to-one: field_input_id is UNIQUE in the store.
type DecisionResult struct {
	ID                  string    `json:"id"                  db:"id"`
	FieldInputID        string    `json:"fieldInputId"        db:"field_input_id"`
	RecommendedMeasures string    `json:"recommendedMeasures" db:"recommended_measures"`
	Confidence          float64   `json:"confidence"          db:"confidence"`
	Explanation         string    `json:"explanation"         db:"explanation"`
	Source              string    `json:"source"              db:"source"` // RULE_ENGINE / AGENT_AI
	CreatedAt           time.Time `json:"createdAt"           db:"created_at"`
}

// Prediction pairs a recorded input with its result for list responses.
type Prediction struct {
	Input  FieldInput      `json:"input"`
	Result *DecisionResult `json:"result,omitempty"`
}
