package alerts

import (
	"encoding/json"
	"strings"
	"testing"
)

func firing(severity string) *Alert {
	return &Alert{
		RuleName:   "low-yield",
		ScenarioID: "line-1",
		Severity:   severity,
		Message:    "yield 87.5% below 95%",
		Value:      87.5,
		FiredAt:    baseTime,
		State:      StateFiring,
	}
}

func render(t *testing.T, typ string, a *Alert) string {
	t.Helper()
	b, err := json.Marshal(payloads[typ](a))
	if err != nil {
		t.Fatalf("marshal %s payload: %v", typ, err)
	}
	return string(b)
}

func TestSlackPayload(t *testing.T) {
	tests := []struct {
		name     string
		alert    *Alert
		want     []string
		unwanted string
	}{
		{"critical", firing("critical"), []string{"[CRITICAL]", "line-1", "87.5"}, "RESOLVED"},
		{"warning", firing("warning"), []string{"[WARNING]"}, "CRITICAL"},
		{"unknown severity", firing("page-me"), []string{"[INFO]"}, "CRITICAL"},
		{"resolved", func() *Alert { a := firing("critical"); a.State = StateResolved; return a }(),
			[]string{"[RESOLVED]", "cleared on scenario line-1"}, "CRITICAL"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			body := render(t, "slack", tc.alert)
			for _, w := range tc.want {
				if !strings.Contains(body, w) {
					t.Errorf("body %s: missing %q", body, w)
				}
			}
			if strings.Contains(body, tc.unwanted) {
				t.Errorf("body %s: unexpected %q", body, tc.unwanted)
			}
		})
	}
}

func TestTeamsPayload_Facts(t *testing.T) {
	var card struct {
		Type     string `json:"@type"`
		Color    string `json:"themeColor"`
		Sections []struct {
			Facts []struct {
				Name  string `json:"name"`
				Value string `json:"value"`
			} `json:"facts"`
		} `json:"sections"`
	}
	if err := json.Unmarshal([]byte(render(t, "teams", firing("warning"))), &card); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if card.Type != "MessageCard" || card.Color != "E67E22" {
		t.Errorf("card: type %q color %q", card.Type, card.Color)
	}
	if len(card.Sections) != 1 {
		t.Fatalf("sections: got %d, want 1", len(card.Sections))
	}
	facts := map[string]string{}
	for _, f := range card.Sections[0].Facts {
		facts[f.Name] = f.Value
	}
	if facts["Scenario"] != "line-1" || facts["Value"] != "87.5" || facts["Severity"] != "warning" {
		t.Errorf("facts: %v", facts)
	}
	if facts["Fired"] != "2026-01-01 12:00:00Z" {
		t.Errorf("fired: got %q", facts["Fired"])
	}
}

func TestHTTPPayload_WrapsAlert(t *testing.T) {
	var got struct {
		Alert Alert `json:"alert"`
	}
	if err := json.Unmarshal([]byte(render(t, "http", firing("critical"))), &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.Alert.ScenarioID != "line-1" || got.Alert.Value != 87.5 {
		t.Errorf("alert: %+v", got.Alert)
	}
}
