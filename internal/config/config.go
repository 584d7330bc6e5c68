package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/obsidianstack/partyield/pkg/types"
)

// EnvPrefix is prepended to every environment override, e.g.
// PARTYIELD_SERVER_HTTP_PORT or PARTYIELD_DEFAULTS_RESOLUTION.
const EnvPrefix = "PARTYIELD_"

// Default values applied when fields are absent from the config file.
const (
	DefaultEI         = 0.006
	DefaultES         = 0.055
	DefaultNX         = 0.026
	DefaultO          = 0.012
	DefaultResolution = 10000

	DefaultCurvePoints    = 1000
	DefaultCurveWidth     = 3.0
	DefaultDecimals       = 2
	DefaultMaxResolution  = 1000000
	DefaultRateLimitRPS   = 20.0
	DefaultRateLimitBurst = 40

	DefaultHTTPPort          = 8080
	DefaultGRPCPort          = 50051
	DefaultSnapshotTTL       = 5 * time.Minute
	DefaultEvaluateInterval  = 30 * time.Second
	DefaultBroadcastInterval = 5 * time.Second
	DefaultRetention         = 30 * 24 * time.Hour
)

// Config is the top-level configuration shared by every partyield command.
// Fields map 1:1 to config.example.yaml.
type Config struct {
	Defaults  Defaults      `yaml:"defaults"`
	Sliders   Sliders       `yaml:"sliders"`
	Curve     CurveConfig   `yaml:"curve"`
	Display   DisplayConfig `yaml:"display"`
	Limits    LimitsConfig  `yaml:"limits"`
	Scenarios []Scenario    `yaml:"scenarios"`
	Server    ServerConfig  `yaml:"server"`
	Alerts    AlertsConfig  `yaml:"alerts"`
	Storage   StorageConfig `yaml:"storage"`
}

// Defaults is the tolerance problem used when a caller supplies no values,
// and the state the interactive session resets to.
type Defaults struct {
	EI         float64 `yaml:"ei" env:"EI"`
	ES         float64 `yaml:"es" env:"ES"`
	NX         float64 `yaml:"nx" env:"NX"`
	O          float64 `yaml:"o" env:"O"`
	Resolution int     `yaml:"resolution" env:"RESOLUTION"`
}

// Params returns the default tolerance problem.
func (d Defaults) Params() types.Params {
	return types.Params{EI: d.EI, ES: d.ES, NX: d.NX, O: d.O}
}

// Range bounds one adjustable parameter.
type Range struct {
	Min float64 `yaml:"min"`
	Max float64 `yaml:"max"`
}

// Clamp restricts v to [r.Min, r.Max].
func (r Range) Clamp(v float64) float64 {
	if v < r.Min {
		return r.Min
	}
	if v > r.Max {
		return r.Max
	}
	return v
}

// Sliders holds the adjustable range of each parameter in interactive sessions.
type Sliders struct {
	EI Range `yaml:"ei"`
	ES Range `yaml:"es"`
	NX Range `yaml:"nx"`
	O  Range `yaml:"o"`
}

// Lookup returns the range for a parameter name (ei, es, nx, o).
func (s Sliders) Lookup(name string) (Range, bool) {
	switch name {
	case "ei":
		return s.EI, true
	case "es":
		return s.ES, true
	case "nx":
		return s.NX, true
	case "o":
		return s.O, true
	default:
		return Range{}, false
	}
}

// CurveConfig controls density sampling for plots.
type CurveConfig struct {
	// Points is the number of samples across the curve.
	Points int `yaml:"points" env:"POINTS"`
	// Width is the half-width of the sampled range in standard deviations.
	Width float64 `yaml:"width" env:"WIDTH"`
}

// DisplayConfig controls presentation-boundary formatting.
type DisplayConfig struct {
	// Decimals is the number of decimal places percentages are rounded to
	// before being shown to a person. Raw values are never rounded.
	Decimals int `yaml:"decimals" env:"DECIMALS"`
}

// LimitsConfig bounds the cost callers can impose on the service.
type LimitsConfig struct {
	// MaxResolution caps the integration step count accepted from clients.
	MaxResolution int `yaml:"max_resolution" env:"MAX_RESOLUTION"`
	// RateLimitRPS and RateLimitBurst throttle POST /api/v1/calculate.
	// RateLimitRPS <= 0 disables throttling.
	RateLimitRPS   float64 `yaml:"rate_limit_rps" env:"RATE_LIMIT_RPS"`
	RateLimitBurst int     `yaml:"rate_limit_burst" env:"RATE_LIMIT_BURST"`
}

// Scenario is one named tolerance problem evaluated periodically by the server.
// Exactly one of Params or Source must be set.
type Scenario struct {
	// ID is a unique, human-readable identifier.
	ID string `yaml:"id"`

	// Name is an optional display label.
	Name string `yaml:"name"`

	// Params holds static process parameters.
	Params *types.Params `yaml:"params"`

	// Source is an endpoint that exposes the parameters as Prometheus gauges.
	Source *Source `yaml:"source"`

	// Resolution overrides defaults.resolution for this scenario.
	Resolution int `yaml:"resolution"`
}

// Source describes an endpoint that publishes live process parameters.
type Source struct {
	// Endpoint is the full URL of the metrics endpoint.
	Endpoint string `yaml:"endpoint"`

	// Auth configures how to authenticate to this source.
	Auth AuthConfig `yaml:"auth"`

	// TLS holds optional TLS dial options.
	TLS TLSConfig `yaml:"tls"`
}

// AuthConfig specifies the authentication mode for a source.
type AuthConfig struct {
	// Mode is one of: mtls | apikey | bearer | basic | none.
	Mode string `yaml:"mode"`

	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
	CAFile   string `yaml:"ca_file"`

	// Header is the HTTP header the API key is sent in.
	Header string `yaml:"header"`
	// KeyEnv names the environment variable holding the API key.
	KeyEnv string `yaml:"key_env"`

	// TokenEnv names the environment variable holding the bearer token.
	TokenEnv string `yaml:"token_env"`

	Username    string `yaml:"username"`
	PasswordEnv string `yaml:"password_env"`
}

// Key returns the API key resolved from the environment.
func (a AuthConfig) Key() string { return lookupEnv(a.KeyEnv) }

// Token returns the bearer token resolved from the environment.
func (a AuthConfig) Token() string { return lookupEnv(a.TokenEnv) }

// Password returns the basic-auth password resolved from the environment.
func (a AuthConfig) Password() string { return lookupEnv(a.PasswordEnv) }

// TLSConfig holds per-source TLS dial options.
type TLSConfig struct {
	InsecureSkipVerify bool `yaml:"insecure_skip_verify"`
}

// ServerConfig holds the settings of `partyield serve`.
type ServerConfig struct {
	// HTTPPort serves the REST API, /metrics and the WebSocket stream.
	HTTPPort int `yaml:"http_port" env:"HTTP_PORT"`

	// GRPCPort serves the grpc.health.v1 service. 0 disables it.
	GRPCPort int `yaml:"grpc_port" env:"GRPC_PORT"`

	// Auth configures API key authentication for HTTP and gRPC clients.
	Auth ServerAuthConfig `yaml:"auth" envPrefix:"AUTH_"`

	// Snapshot controls in-memory result retention.
	Snapshot SnapshotConfig `yaml:"snapshot" envPrefix:"SNAPSHOT_"`

	// EvaluateInterval is how often configured scenarios are re-evaluated.
	EvaluateInterval time.Duration `yaml:"evaluate_interval" env:"EVALUATE_INTERVAL"`

	// BroadcastInterval is how often WebSocket clients receive results.
	BroadcastInterval time.Duration `yaml:"broadcast_interval" env:"BROADCAST_INTERVAL"`
}

// ServerAuthConfig controls client authentication on the server side.
type ServerAuthConfig struct {
	// Mode is one of: apikey | none.
	Mode string `yaml:"mode" env:"MODE"`

	// KeyEnv names the environment variable holding the expected API key.
	KeyEnv string `yaml:"key_env" env:"KEY_ENV"`

	// Header is the HTTP header / gRPC metadata key carrying the key.
	// Defaults to "x-api-key".
	Header string `yaml:"header" env:"HEADER"`
}

// Key returns the expected API key resolved from the environment.
func (a ServerAuthConfig) Key() string { return lookupEnv(a.KeyEnv) }

// EffectiveHeader returns the configured header name, or "x-api-key".
func (a ServerAuthConfig) EffectiveHeader() string {
	if a.Header != "" {
		return a.Header
	}
	return "x-api-key"
}

// SnapshotConfig controls in-memory result retention.
type SnapshotConfig struct {
	// TTL is how long a scenario's result stays listed after its last update.
	TTL time.Duration `yaml:"ttl" env:"TTL"`
}

// AlertsConfig holds alerting rules and webhook delivery targets.
type AlertsConfig struct {
	Rules    []AlertRule     `yaml:"rules"`
	Webhooks []WebhookConfig `yaml:"webhooks"`
}

// AlertRule defines one threshold-based alert condition.
type AlertRule struct {
	// Name is the alert identifier, used as the deduplication key.
	Name string `yaml:"name"`

	// Condition is an expression like "suitable_pct < 95",
	// "incorrigible_pct > 1" or "state == incapable".
	Condition string `yaml:"condition"`

	// Severity is one of: critical | warning | info.
	Severity string `yaml:"severity"`

	// Cooldown suppresses re-fires for this duration. Defaults to 15m.
	Cooldown time.Duration `yaml:"cooldown"`
}

// WebhookConfig defines one webhook delivery target.
type WebhookConfig struct {
	// Type is one of: teams | slack | http.
	Type string `yaml:"type"`

	// URLEnv names the environment variable holding the webhook URL.
	URLEnv string `yaml:"url_env"`
}

// URL returns the webhook URL resolved from the environment.
func (w WebhookConfig) URL() string { return lookupEnv(w.URLEnv) }

// StorageConfig configures run history persistence.
type StorageConfig struct {
	// Backend is one of: sqlite | none. Empty means none.
	Backend string `yaml:"backend" env:"BACKEND"`

	// Path is the SQLite database file.
	Path string `yaml:"path" env:"PATH"`

	// Retention is how long history rows are kept.
	Retention time.Duration `yaml:"retention" env:"RETENTION"`
}

// Load reads and parses the YAML config file at path, applies environment
// overrides and validates the result. Missing optional fields are filled
// with defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read file: %w", err)
	}
	return Parse(data)
}

// Parse is Load for an in-memory document.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse yaml: %w", err)
	}
	if err := applyEnv(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	normalize(cfg)
	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

// FromEnv returns the defaults with environment overrides applied. Commands
// use it when no config file is given.
func FromEnv() (*Config, error) {
	cfg := Default()
	if err := applyEnv(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	normalize(cfg)
	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

// Default returns a Config pre-populated with default values.
func Default() *Config {
	return &Config{
		Defaults: Defaults{
			EI:         DefaultEI,
			ES:         DefaultES,
			NX:         DefaultNX,
			O:          DefaultO,
			Resolution: DefaultResolution,
		},
		Sliders: Sliders{
			EI: Range{Min: 0.001, Max: 0.08},
			ES: Range{Min: 0.01, Max: 0.08},
			NX: Range{Min: 0.01, Max: 0.06},
			O:  Range{Min: 0.001, Max: 0.06},
		},
		Curve:   CurveConfig{Points: DefaultCurvePoints, Width: DefaultCurveWidth},
		Display: DisplayConfig{Decimals: DefaultDecimals},
		Limits: LimitsConfig{
			MaxResolution:  DefaultMaxResolution,
			RateLimitRPS:   DefaultRateLimitRPS,
			RateLimitBurst: DefaultRateLimitBurst,
		},
		Server: ServerConfig{
			HTTPPort:          DefaultHTTPPort,
			GRPCPort:          DefaultGRPCPort,
			Snapshot:          SnapshotConfig{TTL: DefaultSnapshotTTL},
			EvaluateInterval:  DefaultEvaluateInterval,
			BroadcastInterval: DefaultBroadcastInterval,
		},
		Storage: StorageConfig{Retention: DefaultRetention},
	}
}

// applyEnv overlays PARTYIELD_<SECTION>_<FIELD> environment variables onto
// the scalar sections of cfg. Variables that are not set leave the parsed
// values untouched. Scenarios, sliders and alerts are file-only.
func applyEnv(cfg *Config) error {
	sections := []struct {
		prefix string
		target any
	}{
		{"DEFAULTS_", &cfg.Defaults},
		{"CURVE_", &cfg.Curve},
		{"DISPLAY_", &cfg.Display},
		{"LIMITS_", &cfg.Limits},
		{"SERVER_", &cfg.Server},
		{"STORAGE_", &cfg.Storage},
	}
	for _, s := range sections {
		if err := env.ParseWithOptions(s.target, env.Options{Prefix: EnvPrefix + s.prefix}); err != nil {
			return fmt.Errorf("parse env %s*: %w", EnvPrefix+s.prefix, err)
		}
	}
	return nil
}

// normalize fills per-scenario fields that inherit from the defaults.
func normalize(cfg *Config) {
	for i := range cfg.Scenarios {
		if cfg.Scenarios[i].Resolution == 0 {
			cfg.Scenarios[i].Resolution = cfg.Defaults.Resolution
		}
		if cfg.Scenarios[i].Name == "" {
			cfg.Scenarios[i].Name = cfg.Scenarios[i].ID
		}
	}
}

// validate checks required fields and structural constraints.
func validate(cfg *Config) error {
	if err := cfg.Defaults.Params().Validate(); err != nil {
		return fmt.Errorf("defaults: %w", err)
	}
	if err := checkResolution("defaults.resolution", cfg.Defaults.Resolution, cfg.Limits.MaxResolution); err != nil {
		return err
	}
	for _, name := range []string{"ei", "es", "nx", "o"} {
		r, _ := cfg.Sliders.Lookup(name)
		if r.Min >= r.Max {
			return fmt.Errorf("sliders.%s: min %v must be below max %v", name, r.Min, r.Max)
		}
	}
	if cfg.Sliders.O.Min <= 0 {
		return fmt.Errorf("sliders.o.min must be positive")
	}
	if cfg.Curve.Points < 2 {
		return fmt.Errorf("curve.points must be at least 2")
	}
	if cfg.Curve.Width <= 0 {
		return fmt.Errorf("curve.width must be positive")
	}
	if cfg.Display.Decimals < 0 || cfg.Display.Decimals > 10 {
		return fmt.Errorf("display.decimals %d is out of range [0, 10]", cfg.Display.Decimals)
	}
	if cfg.Limits.MaxResolution <= 0 {
		return fmt.Errorf("limits.max_resolution must be positive")
	}

	seen := make(map[string]bool, len(cfg.Scenarios))
	for i, sc := range cfg.Scenarios {
		if err := validateScenario(sc, cfg.Limits.MaxResolution); err != nil {
			return fmt.Errorf("scenarios[%d]: %w", i, err)
		}
		if seen[sc.ID] {
			return fmt.Errorf("scenarios[%d]: duplicate id %q", i, sc.ID)
		}
		seen[sc.ID] = true
	}

	if cfg.Server.HTTPPort <= 0 || cfg.Server.HTTPPort > 65535 {
		return fmt.Errorf("server.http_port %d is out of range [1, 65535]", cfg.Server.HTTPPort)
	}
	if cfg.Server.GRPCPort < 0 || cfg.Server.GRPCPort > 65535 {
		return fmt.Errorf("server.grpc_port %d is out of range [0, 65535]", cfg.Server.GRPCPort)
	}
	switch cfg.Server.Auth.Mode {
	case "apikey", "none", "":
	default:
		return fmt.Errorf("server.auth.mode %q unknown: want apikey|none", cfg.Server.Auth.Mode)
	}
	if cfg.Server.Snapshot.TTL < 0 {
		return fmt.Errorf("server.snapshot.ttl must not be negative")
	}
	if cfg.Server.EvaluateInterval <= 0 {
		return fmt.Errorf("server.evaluate_interval must be positive")
	}
	if cfg.Server.BroadcastInterval <= 0 {
		return fmt.Errorf("server.broadcast_interval must be positive")
	}

	for i, r := range cfg.Alerts.Rules {
		if r.Name == "" {
			return fmt.Errorf("alerts.rules[%d]: name is required", i)
		}
		if r.Condition == "" {
			return fmt.Errorf("alerts.rules[%d] %q: condition is required", i, r.Name)
		}
	}

	switch cfg.Storage.Backend {
	case "sqlite":
		if cfg.Storage.Path == "" {
			return fmt.Errorf("storage.path is required for the sqlite backend")
		}
	case "none", "":
	default:
		return fmt.Errorf("storage.backend %q unknown: want sqlite|none", cfg.Storage.Backend)
	}
	return nil
}

func validateScenario(sc Scenario, maxRes int) error {
	if sc.ID == "" {
		return errors.New("id is required")
	}
	switch {
	case sc.Params == nil && sc.Source == nil:
		return fmt.Errorf("%q: one of params or source is required", sc.ID)
	case sc.Params != nil && sc.Source != nil:
		return fmt.Errorf("%q: params and source are mutually exclusive", sc.ID)
	case sc.Params != nil:
		if err := sc.Params.Validate(); err != nil {
			return fmt.Errorf("%q: %w", sc.ID, err)
		}
	default:
		if sc.Source.Endpoint == "" {
			return fmt.Errorf("%q: source.endpoint is required", sc.ID)
		}
		switch sc.Source.Auth.Mode {
		case "mtls", "apikey", "bearer", "basic", "none", "":
		default:
			return fmt.Errorf("%q: unknown auth mode %q", sc.ID, sc.Source.Auth.Mode)
		}
	}
	return checkResolution(fmt.Sprintf("%q resolution", sc.ID), sc.Resolution, maxRes)
}

func checkResolution(field string, n, maxRes int) error {
	if n <= 0 {
		return fmt.Errorf("%s must be positive", field)
	}
	if n > maxRes {
		return fmt.Errorf("%s %d exceeds limits.max_resolution %d", field, n, maxRes)
	}
	return nil
}

func lookupEnv(name string) string {
	if name == "" {
		return ""
	}
	return os.Getenv(name)
}
