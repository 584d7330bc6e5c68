package scraper

import (
	"context"
	"fmt"
	"io"
	"net/http"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"

	"github.com/obsidianstack/partyield/internal/config"
	"github.com/obsidianstack/partyield/pkg/types"
)

// Gauge names read from a source.
const (
	MetricTargetDimension = "partyield_target_dimension"
	MetricStdDeviation    = "partyield_std_deviation"
	MetricToleranceLower  = "partyield_tolerance_lower"
	MetricToleranceUpper  = "partyield_tolerance_upper"
)

// Scraper resolves the current process parameters of one scenario.
type Scraper interface {
	Scrape(ctx context.Context) (types.Params, error)
}

// Static is a Scraper for scenarios with fixed parameters.
type Static types.Params

// Scrape returns the fixed parameters.
func (s Static) Scrape(context.Context) (types.Params, error) {
	return types.Params(s), nil
}

// New returns the Scraper for a scenario: Static for inline params, an HTTP
// scraper for a source. The HTTP client is built once and reused.
func New(sc config.Scenario) (Scraper, error) {
	if sc.Params != nil {
		return Static(*sc.Params), nil
	}
	if sc.Source == nil {
		return nil, fmt.Errorf("scraper %q: no params or source", sc.ID)
	}
	client, err := buildHTTPClient(*sc.Source)
	if err != nil {
		return nil, fmt.Errorf("scraper %q: build http client: %w", sc.ID, err)
	}
	return &httpScraper{id: sc.ID, endpoint: sc.Source.Endpoint, client: client}, nil
}

type httpScraper struct {
	id       string
	endpoint string
	client   *http.Client
}

// Scrape fetches the source's exposition and extracts the four gauges.
func (s *httpScraper) Scrape(ctx context.Context) (types.Params, error) {
	mfs, err := fetchMetrics(ctx, s.client, s.endpoint)
	if err != nil {
		return types.Params{}, fmt.Errorf("scrape %q: %w", s.id, err)
	}
	p, err := paramsFrom(mfs)
	if err != nil {
		return types.Params{}, fmt.Errorf("scrape %q: %w", s.id, err)
	}
	return p, nil
}

// paramsFrom extracts process parameters from parsed metric families.
func paramsFrom(mfs map[string]*dto.MetricFamily) (types.Params, error) {
	var p types.Params
	for _, f := range []struct {
		name string
		dst  *float64
	}{
		{MetricTargetDimension, &p.NX},
		{MetricStdDeviation, &p.O},
		{MetricToleranceLower, &p.EI},
		{MetricToleranceUpper, &p.ES},
	} {
		v, err := singleValue(mfs[f.name])
		if err != nil {
			return types.Params{}, fmt.Errorf("%s: %w", f.name, err)
		}
		*f.dst = v
	}
	return p, nil
}

// fetchMetrics performs an HTTP GET to url and returns parsed metric families.
func fetchMetrics(ctx context.Context, client *http.Client, url string) (map[string]*dto.MetricFamily, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", string(expfmt.NewFormat(expfmt.TypeTextPlain)))

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http get: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return parseMetrics(resp.Body)
}

// parseMetrics decodes a Prometheus text exposition from r into metric families.
// A partial result with a non-fatal parse warning is still returned successfully.
func parseMetrics(r io.Reader) (map[string]*dto.MetricFamily, error) {
	var parser expfmt.TextParser
	mfs, err := parser.TextToMetricFamilies(r)
	if err != nil && len(mfs) == 0 {
		return nil, fmt.Errorf("parse prometheus text: %w", err)
	}
	return mfs, nil
}

// singleValue returns the value of the only series in mf. Parameters must be
// unambiguous, so a family with several series is rejected.
func singleValue(mf *dto.MetricFamily) (float64, error) {
	if mf == nil || len(mf.GetMetric()) == 0 {
		return 0, fmt.Errorf("metric not present")
	}
	if n := len(mf.GetMetric()); n > 1 {
		return 0, fmt.Errorf("expected one series, got %d", n)
	}
	m := mf.GetMetric()[0]
	switch {
	case m.Gauge != nil:
		return m.Gauge.GetValue(), nil
	case m.Untyped != nil:
		return m.Untyped.GetValue(), nil
	case m.Counter != nil:
		return m.Counter.GetValue(), nil
	default:
		return 0, fmt.Errorf("unsupported metric type %s", mf.GetType())
	}
}
