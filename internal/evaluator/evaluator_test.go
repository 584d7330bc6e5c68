package evaluator

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/obsidianstack/partyield/internal/compute"
	"github.com/obsidianstack/partyield/internal/config"
	"github.com/obsidianstack/partyield/internal/history"
	"github.com/obsidianstack/partyield/internal/store"
	"github.com/obsidianstack/partyield/pkg/types"
)

var baseTime = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

type fakeSinks struct {
	mu        sync.Mutex
	recorded  []string
	evaluated []string
	health    map[string]string
	removed   []string
	recordErr error
}

func newSinks() *fakeSinks { return &fakeSinks{health: map[string]string{}} }

func (f *fakeSinks) Record(_ context.Context, res *compute.Result) (history.Run, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.recorded = append(f.recorded, res.ScenarioID)
	return history.Run{}, f.recordErr
}

func (f *fakeSinks) Evaluate(res *compute.Result) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.evaluated = append(f.evaluated, res.ScenarioID)
}

func (f *fakeSinks) Update(res *compute.Result) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.health[res.ScenarioID] = res.State()
}

func (f *fakeSinks) Remove(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removed = append(f.removed, id)
	delete(f.health, id)
}

func static(id string, p types.Params) config.Scenario {
	return config.Scenario{ID: id, Name: "Line " + id, Params: &p, Resolution: 1000}
}

var (
	knownParams = types.Params{EI: 0.006, ES: 0.055, NX: 0.026, O: 0.012}
	wideParams  = types.Params{EI: -4, ES: 4, NX: 0, O: 1}
)

func newTestEvaluator(sinks *fakeSinks) (*Evaluator, *store.Store) {
	st := store.New(5 * time.Minute)
	e := New(Options{Store: st, History: sinks, Alerts: sinks, Health: sinks, Interval: time.Hour})
	e.now = func() time.Time { return baseTime }
	return e, st
}

func TestRunOnce_StaticScenarios(t *testing.T) {
	sinks := newSinks()
	e, st := newTestEvaluator(sinks)
	if err := e.SetScenarios([]config.Scenario{static("a", knownParams), static("b", wideParams)}); err != nil {
		t.Fatalf("SetScenarios: %v", err)
	}

	results := e.RunOnce(context.Background())
	if len(results) != 2 {
		t.Fatalf("results: got %d, want 2", len(results))
	}
	if results[0].ScenarioID != "a" || results[0].State() != compute.StateIncapable {
		t.Errorf("a: %s %s", results[0].ScenarioID, results[0].State())
	}
	if results[1].State() != compute.StateCapable {
		t.Errorf("b: state %s, want capable", results[1].State())
	}
	if !results[0].Timestamp.Equal(baseTime) || results[0].Name != "Line a" {
		t.Errorf("a: timestamp %v name %q", results[0].Timestamp, results[0].Name)
	}

	if st.Count() != 2 {
		t.Errorf("store count: got %d, want 2", st.Count())
	}
	if len(sinks.recorded) != 2 || len(sinks.evaluated) != 2 || len(sinks.health) != 2 {
		t.Errorf("sinks: recorded=%v evaluated=%v health=%v", sinks.recorded, sinks.evaluated, sinks.health)
	}

	// A second cycle advances the per-scenario evaluation count.
	results = e.RunOnce(context.Background())
	if results[0].Evaluations != 2 || results[0].SuitableDelta != 0 {
		t.Errorf("second cycle: evaluations=%d delta=%v", results[0].Evaluations, results[0].SuitableDelta)
	}
}

func TestRunOnce_InvalidParamsMarkedUnknown(t *testing.T) {
	sinks := newSinks()
	e, st := newTestEvaluator(sinks)
	if err := e.SetScenarios([]config.Scenario{static("bad", types.Params{O: 0})}); err != nil {
		t.Fatalf("SetScenarios: %v", err)
	}

	res := e.RunOnce(context.Background())[0]
	if res.State() != compute.StateUnknown || res.ErrorMessage == "" {
		t.Errorf("result: state=%s err=%q", res.State(), res.ErrorMessage)
	}
	if _, ok := st.Get("bad"); !ok {
		t.Error("unknown result must still be stored")
	}
}

func TestRunOnce_ScrapedSource(t *testing.T) {
	body := `partyield_target_dimension 0
partyield_std_deviation 1
partyield_tolerance_lower -4
partyield_tolerance_upper 4
`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(body))
	}))
	defer srv.Close()

	sinks := newSinks()
	e, _ := newTestEvaluator(sinks)
	sc := config.Scenario{ID: "live", Source: &config.Source{Endpoint: srv.URL}, Resolution: 1000}
	if err := e.SetScenarios([]config.Scenario{sc}); err != nil {
		t.Fatalf("SetScenarios: %v", err)
	}

	res := e.RunOnce(context.Background())[0]
	if res.Analysis.Params != wideParams {
		t.Errorf("params: got %+v, want %+v", res.Analysis.Params, wideParams)
	}
	if res.State() != compute.StateCapable {
		t.Errorf("state: got %s, want capable", res.State())
	}

	srv.Close()
	res = e.RunOnce(context.Background())[0]
	if res.State() != compute.StateUnknown || res.AvailabilityPct != 50 {
		t.Errorf("unreachable source: state=%s availability=%v", res.State(), res.AvailabilityPct)
	}
}

func TestRunOnce_HistoryErrorDoesNotStopCycle(t *testing.T) {
	sinks := newSinks()
	sinks.recordErr = errors.New("database is locked")
	e, _ := newTestEvaluator(sinks)
	if err := e.SetScenarios([]config.Scenario{static("a", knownParams)}); err != nil {
		t.Fatalf("SetScenarios: %v", err)
	}
	e.RunOnce(context.Background())
	if len(sinks.evaluated) != 1 || len(sinks.health) != 1 {
		t.Errorf("alerts/health must still run: %v %v", sinks.evaluated, sinks.health)
	}
}

func TestSetScenarios_RemovesDropped(t *testing.T) {
	sinks := newSinks()
	e, st := newTestEvaluator(sinks)
	if err := e.SetScenarios([]config.Scenario{static("a", knownParams), static("b", wideParams)}); err != nil {
		t.Fatalf("SetScenarios: %v", err)
	}
	e.RunOnce(context.Background())

	if err := e.SetScenarios([]config.Scenario{static("b", wideParams)}); err != nil {
		t.Fatalf("SetScenarios: %v", err)
	}
	if _, ok := st.Get("a"); ok {
		t.Error("dropped scenario still in store")
	}
	if len(sinks.removed) != 1 || sinks.removed[0] != "a" {
		t.Errorf("health removals: %v", sinks.removed)
	}

	// "b" keeps its engine state across the reload.
	res := e.RunOnce(context.Background())
	if len(res) != 1 || res[0].Evaluations != 2 {
		t.Errorf("after reload: %+v", res)
	}
}

func TestSetScenarios_InvalidKeepsPrevious(t *testing.T) {
	e, _ := newTestEvaluator(newSinks())
	if err := e.SetScenarios([]config.Scenario{static("a", knownParams)}); err != nil {
		t.Fatalf("SetScenarios: %v", err)
	}
	if err := e.SetScenarios([]config.Scenario{{ID: "empty"}}); err == nil {
		t.Fatal("scenario without params or source: expected error")
	}
	if res := e.RunOnce(context.Background()); len(res) != 1 || res[0].ScenarioID != "a" {
		t.Errorf("previous scenarios not kept: %+v", res)
	}
}

func TestRun_StopsOnCancel(t *testing.T) {
	sinks := newSinks()
	e, st := newTestEvaluator(sinks)
	if err := e.SetScenarios([]config.Scenario{static("a", knownParams)}); err != nil {
		t.Fatalf("SetScenarios: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		e.Run(ctx)
		close(done)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for st.Count() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("Run did not evaluate immediately")
		}
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestRunOnce_ScenarioRemovedMidCycleIsDropped(t *testing.T) {
	requested := make(chan struct{})
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		close(requested)
		<-release
		_, _ = w.Write([]byte("partyield_target_dimension 0\npartyield_std_deviation 1\n" +
			"partyield_tolerance_lower -4\npartyield_tolerance_upper 4\n"))
	}))
	defer srv.Close()

	sinks := newSinks()
	e, st := newTestEvaluator(sinks)
	sc := config.Scenario{ID: "slow", Source: &config.Source{Endpoint: srv.URL}, Resolution: 1000}
	if err := e.SetScenarios([]config.Scenario{sc}); err != nil {
		t.Fatalf("SetScenarios: %v", err)
	}

	done := make(chan struct{})
	go func() {
		e.RunOnce(context.Background())
		close(done)
	}()

	<-requested
	if err := e.SetScenarios(nil); err != nil {
		t.Fatalf("SetScenarios(nil): %v", err)
	}
	close(release)
	<-done

	if _, ok := st.Get("slow"); ok {
		t.Error("removed scenario was stored after its in-flight evaluation finished")
	}
	sinks.mu.Lock()
	defer sinks.mu.Unlock()
	if len(sinks.recorded) != 0 || len(sinks.evaluated) != 0 {
		t.Errorf("sinks saw removed scenario: recorded=%v evaluated=%v", sinks.recorded, sinks.evaluated)
	}
	if _, ok := sinks.health["slow"]; ok {
		t.Error("health updated for removed scenario")
	}
}
