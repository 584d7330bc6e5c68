// Package config loads and watches the partyield configuration file.
//
// Top-level sections:
//   - defaults: ei, es, nx, o, resolution used when a caller supplies none
//   - sliders: adjustable min/max per parameter for interactive sessions
//   - curve, display: density sampling and rounding at presentation boundaries
//   - limits: max_resolution and API rate limiting
//   - scenarios: named problems with static params or a live source
//   - server, alerts, storage: settings of `partyield serve`
//
// Load(path) reads the YAML file, applies defaults, overlays PARTYIELD_*
// environment variables (caarlos0/env) and validates. FromEnv does the same
// without a file.
//
// Watch(ctx, path, onChange) uses fsnotify on the parent directory so atomic
// saves (rename then create) are picked up.
package config
