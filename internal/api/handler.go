package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/obsidianstack/partyield/internal/alerts"
	"github.com/obsidianstack/partyield/internal/compute"
	"github.com/obsidianstack/partyield/internal/config"
	"github.com/obsidianstack/partyield/internal/history"
	"github.com/obsidianstack/partyield/internal/metrics"
	"github.com/obsidianstack/partyield/internal/store"
	"github.com/obsidianstack/partyield/pkg/types"
)

const (
	maxCurvePoints  = 100000
	maxDecimals     = 10
	maxRequestBytes = 1 << 16
)

// HistoryReader is the read side of the run history.
type HistoryReader interface {
	List(ctx context.Context, scenario string, limit int) ([]history.Run, error)
}

// Options wires a Handler to its collaborators. Alerts and History may be
// nil; the corresponding endpoints then return empty lists or 503.
type Options struct {
	Store   *store.Store
	Alerts  *alerts.Engine
	History HistoryReader
	Config  config.Config
}

// Handler is the HTTP handler for all /api/v1/* endpoints and /metrics.
type Handler struct {
	store   *store.Store
	alerts  *alerts.Engine
	history HistoryReader
	mux     *http.ServeMux
	now     func() time.Time

	mu      sync.RWMutex
	cfg     config.Config
	limiter *rate.Limiter
}

// New creates a Handler and registers all routes.
func New(opts Options) *Handler {
	h := &Handler{
		store:   opts.Store,
		alerts:  opts.Alerts,
		history: opts.History,
		mux:     http.NewServeMux(),
		now:     time.Now,
	}
	h.SetConfig(opts.Config)

	h.mux.HandleFunc("/api/v1/health", h.health)
	h.mux.HandleFunc("/api/v1/calculate", h.calculate)
	h.mux.HandleFunc("/api/v1/density", h.density)
	h.mux.HandleFunc("/api/v1/curve", h.curve)
	h.mux.HandleFunc("/api/v1/regions", h.regions)
	h.mux.HandleFunc("/api/v1/scenarios", h.listScenarios)
	h.mux.HandleFunc("/api/v1/scenarios/", h.scenarioSubtree) // {id} and {id}/history
	h.mux.HandleFunc("/api/v1/alerts", h.listAlerts)
	h.mux.HandleFunc("/api/v1/snapshot", h.snapshot)
	h.mux.HandleFunc("/metrics", h.metrics)

	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

// SetConfig swaps the defaults and limits used by the calculation
// endpoints, e.g. after a config reload. The rate limiter is rebuilt with a
// full bucket.
func (h *Handler) SetConfig(cfg config.Config) {
	lim := newLimiter(cfg.Limits)
	h.mu.Lock()
	h.cfg = cfg
	h.limiter = lim
	h.mu.Unlock()
}

func newLimiter(l config.LimitsConfig) *rate.Limiter {
	if l.RateLimitRPS <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	return rate.NewLimiter(rate.Limit(l.RateLimitRPS), max(l.RateLimitBurst, 1))
}

func (h *Handler) allow() bool {
	h.mu.RLock()
	lim := h.limiter
	h.mu.RUnlock()
	return lim.Allow()
}

func (h *Handler) config() config.Config {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.cfg
}

// --- route handlers ---------------------------------------------------------

// health returns GET /api/v1/health: overall state and per-state counts.
func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	entries := h.store.List()
	resp := HealthResponse{ScenarioCount: len(entries), AlertCount: h.firingCount()}

	var total float64
	var valid int
	for _, e := range entries {
		switch e.Result.State() {
		case compute.StateCapable:
			resp.CapableCount++
		case compute.StateMarginal:
			resp.MarginalCount++
		case compute.StateIncapable:
			resp.IncapableCount++
		default:
			resp.UnknownCount++
			continue
		}
		total += e.Result.Analysis.Yield.Suitable
		valid++
	}

	if valid == 0 {
		resp.State = compute.StateUnknown
		jsonResp(w, http.StatusOK, resp)
		return
	}
	resp.MeanSuitablePct = total / float64(valid)
	resp.State = compute.StateFromSuitable(resp.MeanSuitablePct)
	jsonResp(w, http.StatusOK, resp)
}

// calculate returns POST /api/v1/calculate: yield for request parameters.
func (h *Handler) calculate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if !h.allow() {
		jsonErr(w, http.StatusTooManyRequests, "rate limit exceeded")
		return
	}

	var req CalculateRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		jsonErr(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}

	cfg := h.config()
	p := cfg.Defaults.Params()
	setIf(&p.EI, req.EI)
	setIf(&p.ES, req.ES)
	setIf(&p.NX, req.NX)
	setIf(&p.O, req.O)

	n := cfg.Defaults.Resolution
	if req.Resolution != nil {
		n = *req.Resolution
	}
	decimals := cfg.Display.Decimals
	if req.Decimals != nil {
		decimals = *req.Decimals
	}

	if err := p.Validate(); err != nil {
		jsonErr(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := checkResolution(n, cfg.Limits.MaxResolution); err != nil {
		jsonErr(w, http.StatusBadRequest, err.Error())
		return
	}
	if decimals < 0 || decimals > maxDecimals {
		jsonErr(w, http.StatusBadRequest, fmt.Sprintf("decimals must be between 0 and %d", maxDecimals))
		return
	}

	a := compute.Analyze(p, n)
	if a.Err != nil {
		jsonErr(w, http.StatusBadRequest, a.Err.Error())
		return
	}
	jsonResp(w, http.StatusOK, CalculateResponse{
		Params:      a.Params,
		Resolution:  a.Resolution,
		Yield:       a.Yield,
		Rounded:     a.Yield.Round(decimals),
		Decimals:    decimals,
		State:       a.State,
		EnvelopeLo:  a.EnvelopeLo,
		EnvelopeHi:  a.EnvelopeHi,
		Diagnostics: computeDiagnostics(a, ""),
	})
}

// density returns GET /api/v1/density?x=&mean=&std=: one density value.
// mean and std default to 0 and 1; with use_config=true they default to the
// configured nx and o instead.
func (h *Handler) density(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	q := r.URL.Query()
	if q.Get("x") == "" {
		jsonErr(w, http.StatusBadRequest, "x is required")
		return
	}

	defMean, defStd := 0.0, 1.0
	useConfig, err0 := boolParam(q, "use_config")
	if useConfig {
		d := h.config().Defaults
		defMean, defStd = d.NX, d.O
	}
	x, err1 := floatParam(q, "x", 0)
	mean, err2 := floatParam(q, "mean", defMean)
	std, err3 := floatParam(q, "std", defStd)
	if err := errors.Join(err0, err1, err2, err3); err != nil {
		jsonErr(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := (types.Params{NX: mean, O: std}).Validate(); err != nil {
		jsonErr(w, http.StatusBadRequest, err.Error())
		return
	}

	jsonResp(w, http.StatusOK, DensityResponse{X: x, Mean: mean, Std: std, Density: compute.Density(x, mean, std)})
}

// curve returns GET /api/v1/curve?nx=&o=&points=&width=: sampled density.
func (h *Handler) curve(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	cfg := h.config()
	q := r.URL.Query()
	nx, err1 := floatParam(q, "nx", cfg.Defaults.NX)
	o, err2 := floatParam(q, "o", cfg.Defaults.O)
	width, err3 := floatParam(q, "width", cfg.Curve.Width)
	points, err4 := intParam(q, "points", cfg.Curve.Points)
	if err := errors.Join(err1, err2, err3, err4); err != nil {
		jsonErr(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := (types.Params{NX: nx, O: o}).Validate(); err != nil {
		jsonErr(w, http.StatusBadRequest, err.Error())
		return
	}
	if points < 1 || points > maxCurvePoints {
		jsonErr(w, http.StatusBadRequest, fmt.Sprintf("points must be between 1 and %d", maxCurvePoints))
		return
	}
	if !(width > 0) || math.IsInf(width, 0) {
		jsonErr(w, http.StatusBadRequest, "width must be a positive number")
		return
	}
	if !finiteSpan(nx-width*o, nx+width*o) {
		jsonErr(w, http.StatusBadRequest, "sampled range overflows")
		return
	}

	jsonResp(w, http.StatusOK, CurveResponse{
		NX:     nx,
		O:      o,
		Width:  width,
		Points: compute.SampleCurve(nx, o, width, points),
	})
}

// regions returns GET /api/v1/regions?ei=&es=&nx=&o=&points=: shaded intervals.
func (h *Handler) regions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	d := h.config().Defaults
	q := r.URL.Query()
	var p types.Params
	var errs [5]error
	p.EI, errs[0] = floatParam(q, "ei", d.EI)
	p.ES, errs[1] = floatParam(q, "es", d.ES)
	p.NX, errs[2] = floatParam(q, "nx", d.NX)
	p.O, errs[3] = floatParam(q, "o", d.O)
	points, pointsErr := intParam(q, "points", compute.DefaultRegionPoints)
	errs[4] = pointsErr
	if err := errors.Join(errs[:]...); err != nil {
		jsonErr(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := p.Validate(); err != nil {
		jsonErr(w, http.StatusBadRequest, err.Error())
		return
	}
	if points < 1 || points > maxCurvePoints {
		jsonErr(w, http.StatusBadRequest, fmt.Sprintf("points must be between 1 and %d", maxCurvePoints))
		return
	}
	if !finiteSpan(p.EI, p.ES, p.NX-4*p.O, p.NX+4*p.O) {
		jsonErr(w, http.StatusBadRequest, "shaded range overflows")
		return
	}

	jsonResp(w, http.StatusOK, RegionsResponse{Params: p, Regions: compute.Regions(p, points)})
}

// listScenarios returns GET /api/v1/scenarios: all live scenarios.
func (h *Handler) listScenarios(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	jsonResp(w, http.StatusOK, h.scenarioResponses())
}

// scenarioSubtree serves GET /api/v1/scenarios/{id} and
// GET /api/v1/scenarios/{id}/history.
func (h *Handler) scenarioSubtree(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	rest := strings.TrimPrefix(r.URL.Path, "/api/v1/scenarios/")
	if rest == "" {
		h.listScenarios(w, r)
		return
	}
	if id, ok := strings.CutSuffix(rest, "/history"); ok {
		h.scenarioHistory(w, r, id)
		return
	}
	if strings.Contains(rest, "/") {
		jsonErr(w, http.StatusNotFound, "not found")
		return
	}

	e, ok := h.store.Get(rest)
	if !ok {
		jsonErr(w, http.StatusNotFound, "scenario not found")
		return
	}
	jsonResp(w, http.StatusOK, toScenarioResponse(e, h.config().Display.Decimals))
}

func (h *Handler) scenarioHistory(w http.ResponseWriter, r *http.Request, id string) {
	if h.history == nil {
		jsonErr(w, http.StatusServiceUnavailable, "history storage is disabled")
		return
	}
	if id == "" || strings.Contains(id, "/") {
		jsonErr(w, http.StatusNotFound, "not found")
		return
	}
	limit, err := intParam(r.URL.Query(), "limit", history.DefaultListLimit)
	if err != nil {
		jsonErr(w, http.StatusBadRequest, err.Error())
		return
	}
	if limit < 1 {
		jsonErr(w, http.StatusBadRequest, "limit must be positive")
		return
	}

	runs, err := h.history.List(r.Context(), id, limit)
	if err != nil {
		jsonErr(w, http.StatusInternalServerError, "history unavailable")
		return
	}
	if runs == nil {
		runs = []history.Run{}
	}
	jsonResp(w, http.StatusOK, HistoryResponse{ScenarioID: id, Runs: runs})
}

// listAlerts returns GET /api/v1/alerts: firing and recently resolved alerts.
func (h *Handler) listAlerts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	jsonResp(w, http.StatusOK, h.activeAlerts())
}

// snapshot returns GET /api/v1/snapshot: every live scenario plus alerts.
func (h *Handler) snapshot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	jsonResp(w, http.StatusOK, h.BuildSnapshot())
}

// metrics returns GET /metrics in the Prometheus text exposition format.
func (h *Handler) metrics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
	if err := metrics.Write(w, h.store.List(), h.firingCount()); err != nil {
		slog.Warn("api: write metrics", "err", err)
	}
}

// BuildSnapshot assembles the current state of every live scenario.
func (h *Handler) BuildSnapshot() SnapshotResponse {
	return SnapshotResponse{
		Scenarios:   h.scenarioResponses(),
		Alerts:      h.activeAlerts(),
		GeneratedAt: h.now().UTC().Format(time.RFC3339),
	}
}

// --- helpers ----------------------------------------------------------------

// jsonResp encodes v before writing the status so an unencodable value
// becomes a 500 instead of a 200 with an empty body.
func jsonResp(w http.ResponseWriter, code int, v interface{}) {
	body, err := json.Marshal(v)
	if err != nil {
		slog.Error("api: encode response", "err", err)
		code = http.StatusInternalServerError
		body, _ = json.Marshal(errorResponse{Error: "response could not be encoded"})
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write(append(body, '\n'))
}

func jsonErr(w http.ResponseWriter, code int, msg string) {
	jsonResp(w, code, errorResponse{Error: msg})
}

func (h *Handler) scenarioResponses() []ScenarioResponse {
	decimals := h.config().Display.Decimals
	entries := h.store.List()
	out := make([]ScenarioResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, toScenarioResponse(e, decimals))
	}
	return out
}

func (h *Handler) activeAlerts() []*alerts.Alert {
	if h.alerts == nil {
		return []*alerts.Alert{}
	}
	return h.alerts.Active()
}

func (h *Handler) firingCount() int {
	var n int
	for _, a := range h.activeAlerts() {
		if a.State == alerts.StateFiring {
			n++
		}
	}
	return n
}

// toScenarioResponse maps a store.Entry to its JSON representation.
func toScenarioResponse(e *store.Entry, decimals int) ScenarioResponse {
	r := e.Result
	a := r.Analysis
	return ScenarioResponse{
		ScenarioID:      r.ScenarioID,
		Name:            r.Name,
		State:           r.State(),
		Params:          a.Params,
		Resolution:      a.Resolution,
		Yield:           a.Yield,
		Rounded:         a.Yield.Round(decimals),
		SuitableDelta:   r.SuitableDelta,
		Evaluations:     r.Evaluations,
		AvailabilityPct: r.AvailabilityPct,
		EnvelopeLo:      a.EnvelopeLo,
		EnvelopeHi:      a.EnvelopeHi,
		ErrorMessage:    r.ErrorMessage,
		Diagnostics:     computeDiagnostics(a, r.ErrorMessage),
		LastSeen:        e.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

// checkResolution validates n and applies the configured cap.
func checkResolution(n, limit int) error {
	if err := compute.ValidateResolution(n); err != nil {
		return err
	}
	if limit > 0 && n > limit {
		return fmt.Errorf("resolution %d exceeds the maximum of %d", n, limit)
	}
	return nil
}

func setIf(dst *float64, v *float64) {
	if v != nil {
		*dst = *v
	}
}

func floatParam(q url.Values, name string, def float64) (float64, error) {
	s := q.Get(name)
	if s == "" {
		return def, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: not a number: %q", name, s)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("%s: %w", name, types.ErrNotFinite)
	}
	return v, nil
}

func boolParam(q url.Values, name string) (bool, error) {
	s := q.Get(name)
	if s == "" {
		return false, nil
	}
	v, err := strconv.ParseBool(s)
	if err != nil {
		return false, fmt.Errorf("%s: not a boolean: %q", name, s)
	}
	return v, nil
}

// finiteSpan reports whether the distance between the smallest and largest
// of vs is a finite number.
func finiteSpan(vs ...float64) bool {
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, v := range vs {
		lo, hi = math.Min(lo, v), math.Max(hi, v)
	}
	d := hi - lo
	return !math.IsNaN(d) && !math.IsInf(d, 0)
}

func intParam(q url.Values, name string, def int) (int, error) {
	s := q.Get(name)
	if s == "" {
		return def, nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%s: not an integer: %q", name, s)
	}
	return v, nil
}
