// Package agent wires a benchmark task to the step loop: it builds the structured
// provider client with its middleware chain and runs one task at a time.
//
// Provider implementations live under internal/llmimpl; the loop itself is
// agent/steploop.
package agent
