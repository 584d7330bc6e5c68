package api

import (
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestJSONResp_UnencodableValue(t *testing.T) {
	rr := httptest.NewRecorder()
	jsonResp(rr, http.StatusOK, map[string]float64{"v": math.NaN()})

	if rr.Code != http.StatusInternalServerError {
		t.Errorf("status: got %d, want 500", rr.Code)
	}
	var resp errorResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil || resp.Error == "" {
		t.Errorf("body %q: err=%v", rr.Body.String(), err)
	}
}

func TestFloatParam_RejectsNonFinite(t *testing.T) {
	for _, raw := range []string{"NaN", "nan", "Inf", "-Inf", "+inf", "1e400"} {
		q := map[string][]string{"x": {raw}}
		if _, err := floatParam(q, "x", 0); err == nil {
			t.Errorf("%q: expected error", raw)
		}
	}
	if v, err := floatParam(map[string][]string{"x": {"1e308"}}, "x", 0); err != nil || v != 1e308 {
		t.Errorf("1e308: got %v, %v", v, err)
	}
}

func TestFiniteSpan(t *testing.T) {
	tests := []struct {
		vs   []float64
		want bool
	}{
		{[]float64{-1, 1}, true},
		{[]float64{-1e308, 1e308}, false},
		{[]float64{math.Inf(1), 0}, false},
		{[]float64{math.NaN(), 0}, false},
	}
	for _, tc := range tests {
		if got := finiteSpan(tc.vs...); got != tc.want {
			t.Errorf("finiteSpan(%v) = %v, want %v", tc.vs, got, tc.want)
		}
	}
}
