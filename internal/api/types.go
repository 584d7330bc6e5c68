package api

import (
	"github.com/obsidianstack/partyield/internal/alerts"
	"github.com/obsidianstack/partyield/internal/history"
	"github.com/obsidianstack/partyield/pkg/types"
)

// HealthResponse is the payload for GET /api/v1/health.
type HealthResponse struct {
	// State is derived from MeanSuitablePct over scenarios with valid
	// parameters; "unknown" when there are none.
	State           string  `json:"state"`
	MeanSuitablePct float64 `json:"mean_suitable_pct"`
	ScenarioCount   int     `json:"scenario_count"`
	CapableCount    int     `json:"capable_count"`
	MarginalCount   int     `json:"marginal_count"`
	IncapableCount  int     `json:"incapable_count"`
	UnknownCount    int     `json:"unknown_count"`
	AlertCount      int     `json:"alert_count"`
}

// CalculateRequest is the body of POST /api/v1/calculate. Omitted fields
// fall back to the configured defaults.
type CalculateRequest struct {
	EI         *float64 `json:"ei"`
	ES         *float64 `json:"es"`
	NX         *float64 `json:"nx"`
	O          *float64 `json:"o"`
	Resolution *int     `json:"resolution"`
	Decimals   *int     `json:"decimals"`
}

// CalculateResponse is the payload for POST /api/v1/calculate.
type CalculateResponse struct {
	Params      types.Params     `json:"params"`
	Resolution  int              `json:"resolution"`
	Yield       types.Yield      `json:"yield"`
	Rounded     types.Yield      `json:"rounded"`
	Decimals    int              `json:"decimals"`
	State       string           `json:"state"`
	EnvelopeLo  float64          `json:"envelope_lo"`
	EnvelopeHi  float64          `json:"envelope_hi"`
	Diagnostics []DiagnosticHint `json:"diagnostics"`
}

// DensityResponse is the payload for GET /api/v1/density.
type DensityResponse struct {
	X       float64 `json:"x"`
	Mean    float64 `json:"mean"`
	Std     float64 `json:"std"`
	Density float64 `json:"density"`
}

// CurveResponse is the payload for GET /api/v1/curve.
type CurveResponse struct {
	NX     float64            `json:"nx"`
	O      float64            `json:"o"`
	Width  float64            `json:"width"`
	Points []types.CurvePoint `json:"points"`
}

// RegionsResponse is the payload for GET /api/v1/regions.
type RegionsResponse struct {
	Params  types.Params   `json:"params"`
	Regions []types.Region `json:"regions"`
}

// ScenarioResponse is one scenario entry in GET /api/v1/scenarios or
// GET /api/v1/scenarios/{id}.
type ScenarioResponse struct {
	ScenarioID      string           `json:"scenario_id"`
	Name            string           `json:"name,omitempty"`
	State           string           `json:"state"`
	Params          types.Params     `json:"params"`
	Resolution      int              `json:"resolution"`
	Yield           types.Yield      `json:"yield"`
	Rounded         types.Yield      `json:"rounded"`
	SuitableDelta   float64          `json:"suitable_delta"`
	Evaluations     int              `json:"evaluations"`
	AvailabilityPct float64          `json:"availability_pct"`
	EnvelopeLo      float64          `json:"envelope_lo"`
	EnvelopeHi      float64          `json:"envelope_hi"`
	ErrorMessage    string           `json:"error_message,omitempty"`
	Diagnostics     []DiagnosticHint `json:"diagnostics"`
	LastSeen        string           `json:"last_seen"` // RFC3339
}

// HistoryResponse is the payload for GET /api/v1/scenarios/{id}/history.
type HistoryResponse struct {
	ScenarioID string        `json:"scenario_id"`
	Runs       []history.Run `json:"runs"`
}

// SnapshotResponse is the payload for GET /api/v1/snapshot and the data of
// every WebSocket broadcast.
type SnapshotResponse struct {
	Scenarios   []ScenarioResponse `json:"scenarios"`
	Alerts      []*alerts.Alert    `json:"alerts"`
	GeneratedAt string             `json:"generated_at"` // RFC3339
}

// errorResponse is a generic JSON error body.
type errorResponse struct {
	Error string `json:"error"`
}
