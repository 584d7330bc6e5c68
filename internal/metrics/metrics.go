// Package metrics renders live scenario results in the Prometheus text
// exposition format for GET /metrics.
package metrics

import (
	"fmt"
	"io"
	"sort"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
	"google.golang.org/protobuf/proto"

	"github.com/obsidianstack/partyield/internal/compute"
	"github.com/obsidianstack/partyield/internal/store"
)

// Exposed metric names.
const (
	SuitablePct     = "partyield_suitable_pct"
	IncorrigiblePct = "partyield_incorrigible_pct"
	FixablePct      = "partyield_fixable_pct"
	AvailabilityPct = "partyield_availability_pct"
	Evaluations     = "partyield_evaluations_total"
	ScenarioState   = "partyield_scenario_state"
	Scenarios       = "partyield_scenarios"
	AlertsFiring    = "partyield_alerts_firing"
)

var states = []string{
	compute.StateCapable,
	compute.StateMarginal,
	compute.StateIncapable,
	compute.StateUnknown,
}

// Families builds the metric families for the given live entries.
// Yield gauges are omitted for scenarios whose last analysis was rejected.
func Families(entries []*store.Entry, alertsFiring int) []*dto.MetricFamily {
	suitable := gauge(SuitablePct, "Share of parts within tolerance, percent.")
	incorrigible := gauge(IncorrigiblePct, "Share of parts below the lower limit, percent.")
	fixable := gauge(FixablePct, "Share of parts above the upper limit, percent.")
	avail := gauge(AvailabilityPct, "Share of recent evaluations with valid parameters, percent.")
	evals := counter(Evaluations, "Successful evaluations per scenario.")
	state := gauge(ScenarioState, "Current quality state per scenario (1 = active).")

	for _, e := range entries {
		r := e.Result
		id := label("scenario", r.ScenarioID)
		if r.Analysis.Err == nil && r.ErrorMessage == "" {
			y := r.Analysis.Yield
			suitable.Metric = append(suitable.Metric, gaugeValue(y.Suitable, id))
			incorrigible.Metric = append(incorrigible.Metric, gaugeValue(y.Incorrigible, id))
			fixable.Metric = append(fixable.Metric, gaugeValue(y.Fixable, id))
		}
		avail.Metric = append(avail.Metric, gaugeValue(r.AvailabilityPct, id))
		evals.Metric = append(evals.Metric, &dto.Metric{
			Label:   []*dto.LabelPair{id},
			Counter: &dto.Counter{Value: proto.Float64(float64(r.Evaluations))},
		})
		for _, s := range states {
			v := 0.0
			if r.State() == s {
				v = 1
			}
			state.Metric = append(state.Metric, gaugeValue(v, id, label("state", s)))
		}
	}

	count := gauge(Scenarios, "Number of live scenarios.")
	count.Metric = []*dto.Metric{gaugeValue(float64(len(entries)))}
	firing := gauge(AlertsFiring, "Number of firing alerts.")
	firing.Metric = []*dto.Metric{gaugeValue(float64(alertsFiring))}

	out := []*dto.MetricFamily{suitable, incorrigible, fixable, avail, evals, state, count, firing}
	sort.Slice(out, func(i, j int) bool { return out[i].GetName() < out[j].GetName() })
	return out
}

// Write encodes Families as Prometheus text. Empty families are skipped.
func Write(w io.Writer, entries []*store.Entry, alertsFiring int) error {
	for _, mf := range Families(entries, alertsFiring) {
		if len(mf.Metric) == 0 {
			continue
		}
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return fmt.Errorf("metrics: encode %s: %w", mf.GetName(), err)
		}
	}
	return nil
}

func gauge(name, help string) *dto.MetricFamily {
	return &dto.MetricFamily{
		Name: proto.String(name),
		Help: proto.String(help),
		Type: dto.MetricType_GAUGE.Enum(),
	}
}

func counter(name, help string) *dto.MetricFamily {
	return &dto.MetricFamily{
		Name: proto.String(name),
		Help: proto.String(help),
		Type: dto.MetricType_COUNTER.Enum(),
	}
}

func label(name, value string) *dto.LabelPair {
	return &dto.LabelPair{Name: proto.String(name), Value: proto.String(value)}
}

func gaugeValue(v float64, labels ...*dto.LabelPair) *dto.Metric {
	return &dto.Metric{Label: labels, Gauge: &dto.Gauge{Value: proto.Float64(v)}}
}
