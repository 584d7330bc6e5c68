// Package types defines shared Go types used by the numeric core, the service
// layer and every presentation variant. These are the canonical in-memory
// representations of a tolerance problem and its yield, separate from any
// JSON or YAML wire format that embeds them.
package types
