package compute

import (
	"log/slog"
	"sync"
	"time"

	"github.com/obsidianstack/partyield/pkg/types"
)

// availabilityWindow is the number of recent evaluation outcomes tracked for
// the availability percentage.
const availabilityWindow = 20

// Evaluation is one request to classify a scenario, as produced by the
// evaluator after resolving the scenario's parameters.
type Evaluation struct {
	ScenarioID string
	Name       string
	Params     types.Params
	Resolution int

	// Err is non-nil if the parameters could not be resolved (e.g. the
	// scenario's source was unreachable). The engine reports State "unknown".
	Err error
}

// Result is the derived snapshot for one scenario.
type Result struct {
	ScenarioID string    `json:"scenario_id"`
	Name       string    `json:"name,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
	Analysis   Analysis  `json:"analysis"`

	// SuitableDelta is the change in suitable % since the previous successful
	// evaluation of the same scenario. Zero on the first one.
	SuitableDelta float64 `json:"suitable_delta"`

	// Evaluations counts successful evaluations of this scenario.
	Evaluations int `json:"evaluations"`

	// AvailabilityPct is the share of recent evaluations that resolved valid
	// parameters. 100 = always resolved, 0 = never.
	AvailabilityPct float64 `json:"availability_pct"`

	ErrorMessage string `json:"error_message,omitempty"`
}

// State is a shortcut for r.Analysis.State.
func (r *Result) State() string { return r.Analysis.State }

// Engine maintains per-scenario state across evaluation cycles.
//
// All exported methods are safe for concurrent use.
type Engine struct {
	mu     sync.Mutex
	states map[string]*scenarioState
}

// NewEngine returns a ready-to-use Engine.
func NewEngine() *Engine {
	return &Engine{states: make(map[string]*scenarioState)}
}

// Process classifies ev and returns the derived Result.
//
// now is passed explicitly so callers (and tests) control the clock.
func (e *Engine) Process(ev Evaluation, now time.Time) *Result {
	// The integrals run outside the lock so concurrent scenarios do not queue.
	var a Analysis
	if ev.Err == nil {
		a = Analyze(ev.Params, ev.Resolution)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	st := e.stateFor(ev.ScenarioID)

	out := &Result{
		ScenarioID: ev.ScenarioID,
		Name:       ev.Name,
		Timestamp:  now,
	}

	if ev.Err != nil {
		st.record(false)
		slog.Warn("compute: parameters unavailable, marking unknown",
			"scenario", ev.ScenarioID, "err", ev.Err)
		out.Analysis = Analysis{Params: ev.Params, Resolution: ev.Resolution, State: StateUnknown, Err: ev.Err}
		out.ErrorMessage = ev.Err.Error()
		out.Evaluations = st.evaluations
		out.AvailabilityPct = st.availabilityPct()
		return out
	}

	st.record(a.Err == nil)
	out.Analysis = a
	out.AvailabilityPct = st.availabilityPct()

	if a.Err != nil {
		slog.Warn("compute: invalid parameters, marking unknown",
			"scenario", ev.ScenarioID, "err", a.Err)
		out.ErrorMessage = a.Err.Error()
		out.Evaluations = st.evaluations
		return out
	}

	if st.hasPrev {
		out.SuitableDelta = a.Yield.Suitable - st.prevSuitable
	}
	st.prevSuitable = a.Yield.Suitable
	st.hasPrev = true
	st.evaluations++
	out.Evaluations = st.evaluations
	return out
}

// Forget drops the state kept for a scenario, e.g. after it was removed from
// the configuration.
func (e *Engine) Forget(id string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.states, id)
}

// scenarioState holds per-scenario history.
type scenarioState struct {
	prevSuitable float64
	hasPrev      bool
	evaluations  int
	history      []bool // outcomes, newest last
}

func (e *Engine) stateFor(id string) *scenarioState {
	if st, ok := e.states[id]; ok {
		return st
	}
	st := &scenarioState{}
	e.states[id] = st
	return st
}

func (st *scenarioState) record(success bool) {
	if len(st.history) >= availabilityWindow {
		st.history = st.history[1:]
	}
	st.history = append(st.history, success)
}

func (st *scenarioState) availabilityPct() float64 {
	if len(st.history) == 0 {
		return 100
	}
	var ok int
	for _, s := range st.history {
		if s {
			ok++
		}
	}
	return float64(ok) / float64(len(st.history)) * 100
}
