package alerts

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
)

// payloadFunc renders an alert as the JSON body a webhook type expects.
type payloadFunc func(a *Alert) any

var payloads = map[string]payloadFunc{
	"slack": slackPayload,
	"teams": teamsPayload,
	"http":  func(a *Alert) any { return map[string]*Alert{"alert": a} },
}

// deliver posts a to every webhook with a resolvable URL. Failures are only
// logged.
func (e *Engine) deliver(a *Alert) {
	e.mu.Lock()
	targets := e.webhooks
	e.mu.Unlock()

	for _, wh := range targets {
		url := wh.URL()
		if url == "" {
			continue
		}
		build, ok := payloads[wh.Type]
		if !ok {
			slog.Warn("alerts: unknown webhook type, skipping", "type", wh.Type)
			continue
		}
		body, err := json.Marshal(build(a))
		if err == nil {
			err = e.post(url, body)
		}
		if err != nil {
			slog.Error("alerts: webhook delivery failed", "type", wh.Type, "rule", a.RuleName, "scenario", a.ScenarioID, "err", err)
			continue
		}
		slog.Debug("alerts: webhook delivered", "type", wh.Type, "rule", a.RuleName, "state", a.State)
	}
}

// summary is the one-line description shared by the chat payloads.
func summary(a *Alert) string {
	if a.State == StateResolved {
		return fmt.Sprintf("%s cleared on scenario %s", a.RuleName, a.ScenarioID)
	}
	return fmt.Sprintf("%s on scenario %s (value %g): %s", a.RuleName, a.ScenarioID, a.Value, a.Message)
}

func slackPayload(a *Alert) any {
	tag := "[RESOLVED]"
	if a.State == StateFiring {
		tag = "[" + severityOf(a.Severity).label + "]"
	}
	return map[string]string{"text": "*" + tag + "* " + summary(a)}
}

func teamsPayload(a *Alert) any {
	type fact struct {
		Name  string `json:"name"`
		Value string `json:"value"`
	}
	return map[string]any{
		"@type":      "MessageCard",
		"@context":   "http://schema.org/extensions",
		"themeColor": severityOf(a.Severity).color,
		"summary":    a.RuleName,
		"title":      fmt.Sprintf("Yield alert %s: %s", a.State, a.RuleName),
		"text":       summary(a),
		"sections": []map[string]any{{
			"facts": []fact{
				{"Scenario", a.ScenarioID},
				{"Severity", a.Severity},
				{"Value", fmt.Sprintf("%g", a.Value)},
				{"Fired", a.FiredAt.UTC().Format("2006-01-02 15:04:05Z")},
			},
		}},
	}
}

func (e *Engine) post(url string, body []byte) error {
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("alerts: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return fmt.Errorf("alerts: post: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("alerts: webhook answered %s", resp.Status)
	}
	return nil
}

type severityStyle struct {
	label string
	color string
}

var severities = map[string]severityStyle{
	"critical": {"CRITICAL", "C0392B"},
	"warning":  {"WARNING", "E67E22"},
}

func severityOf(s string) severityStyle {
	if st, ok := severities[s]; ok {
		return st
	}
	return severityStyle{"INFO", "2E86C1"}
}
