// Package evaluator periodically resolves every configured scenario's
// parameters, classifies them and fans the result out to the store, run
// history, alert engine and gRPC health reporter.
package evaluator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/obsidianstack/partyield/internal/compute"
	"github.com/obsidianstack/partyield/internal/config"
	"github.com/obsidianstack/partyield/internal/history"
	"github.com/obsidianstack/partyield/internal/scraper"
	"github.com/obsidianstack/partyield/internal/store"
)

const (
	// maxParallel bounds concurrent scenario evaluations per cycle.
	maxParallel = 8

	// scrapeTimeout bounds one parameter fetch.
	scrapeTimeout = 10 * time.Second
)

// Recorder persists results. *history.Store satisfies it.
type Recorder interface {
	Record(ctx context.Context, res *compute.Result) (history.Run, error)
}

// AlertEvaluator receives every result. *alerts.Engine satisfies it.
type AlertEvaluator interface {
	Evaluate(res *compute.Result)
}

// HealthReporter mirrors scenario states. *grpchealth.Reporter satisfies it.
type HealthReporter interface {
	Update(res *compute.Result)
	Remove(id string)
}

// Options wires an Evaluator. Only Store is required.
type Options struct {
	Store    *store.Store
	History  Recorder
	Alerts   AlertEvaluator
	Health   HealthReporter
	Interval time.Duration
}

// target is one configured scenario and the scraper that resolves it.
type target struct {
	scenario config.Scenario
	scraper  scraper.Scraper
}

// Evaluator runs the evaluation cycle. SetScenarios may be called at any
// time, including while Run is active.
type Evaluator struct {
	engine   *compute.Engine
	store    *store.Store
	history  Recorder
	alerts   AlertEvaluator
	health   HealthReporter
	interval time.Duration
	now      func() time.Time // injectable for deterministic tests

	mu      sync.Mutex
	targets []target
}

// New creates an Evaluator with no scenarios.
func New(opts Options) *Evaluator {
	interval := opts.Interval
	if interval <= 0 {
		interval = config.DefaultEvaluateInterval
	}
	return &Evaluator{
		engine:   compute.NewEngine(),
		store:    opts.Store,
		history:  opts.History,
		alerts:   opts.Alerts,
		health:   opts.Health,
		interval: interval,
		now:      time.Now,
	}
}

// SetScenarios replaces the evaluated scenarios. Scenarios that disappear
// are removed from the store, the engine and the health reporter. On error
// the previous scenarios stay in effect.
func (e *Evaluator) SetScenarios(scenarios []config.Scenario) error {
	targets := make([]target, 0, len(scenarios))
	for _, sc := range scenarios {
		s, err := scraper.New(sc)
		if err != nil {
			return fmt.Errorf("evaluator: %w", err)
		}
		targets = append(targets, target{scenario: sc, scraper: s})
	}

	keep := make(map[string]bool, len(targets))
	for _, t := range targets {
		keep[t.scenario.ID] = true
	}

	e.mu.Lock()
	old := e.targets
	e.targets = targets
	e.mu.Unlock()

	for _, t := range old {
		id := t.scenario.ID
		if keep[id] {
			continue
		}
		e.engine.Forget(id)
		e.store.Delete(id)
		if e.health != nil {
			e.health.Remove(id)
		}
		slog.Info("evaluator: scenario removed", "scenario", id)
	}
	slog.Info("evaluator: scenarios loaded", "count", len(targets))
	return nil
}

// Run evaluates all scenarios immediately and then every interval until ctx
// is cancelled.
func (e *Evaluator) Run(ctx context.Context) {
	e.RunOnce(ctx)

	t := time.NewTicker(e.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			e.RunOnce(ctx)
		}
	}
}

// RunOnce evaluates every scenario once, concurrently, and returns the
// results in scenario order.
func (e *Evaluator) RunOnce(ctx context.Context) []*compute.Result {
	e.mu.Lock()
	targets := e.targets
	e.mu.Unlock()

	results := make([]*compute.Result, len(targets))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallel)
	for i, t := range targets {
		i, t := i, t
		g.Go(func() error {
			results[i] = e.evaluate(gctx, t)
			return nil
		})
	}
	_ = g.Wait() // evaluate never fails; errors are reported per scenario

	return results
}

func (e *Evaluator) evaluate(ctx context.Context, t target) *compute.Result {
	sc := t.scenario

	sctx, cancel := context.WithTimeout(ctx, scrapeTimeout)
	p, err := t.scraper.Scrape(sctx)
	cancel()

	res := e.engine.Process(compute.Evaluation{
		ScenarioID: sc.ID,
		Name:       sc.Name,
		Params:     p,
		Resolution: sc.Resolution,
		Err:        err,
	}, e.now())

	// SetScenarios may have removed the scenario while it was scraped.
	e.mu.Lock()
	live := e.hasTarget(sc.ID)
	if live {
		e.store.Put(res)
	}
	e.mu.Unlock()
	if !live {
		e.engine.Forget(sc.ID)
		slog.Debug("evaluator: dropping result of removed scenario", "scenario", sc.ID)
		return res
	}

	if e.history != nil {
		if _, err := e.history.Record(ctx, res); err != nil {
			slog.Warn("evaluator: record history", "scenario", sc.ID, "err", err)
		}
	}
	if e.alerts != nil {
		e.alerts.Evaluate(res)
	}
	if e.health != nil {
		e.health.Update(res)
	}

	slog.Debug("evaluator: scenario evaluated",
		"scenario", sc.ID,
		"state", res.State(),
		"suitable_pct", res.Analysis.Yield.Suitable,
	)
	return res
}

// hasTarget reports whether id is currently configured. e.mu must be held.
func (e *Evaluator) hasTarget(id string) bool {
	for _, t := range e.targets {
		if t.scenario.ID == id {
			return true
		}
	}
	return false
}
