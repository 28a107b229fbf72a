// Package harness runs YAML conformance scenarios against the governance
// loop and compares their traces to golden files.
//
// A scenario drives one or more PACs through machine operations step by
// step, asserting per-step outcomes (resulting state or expected violation
// code) and final expectations (session states, record count, chain
// verification). Scenarios run on an in-memory store with a stepping clock
// and sequential dispatch tokens, so every run of a scenario produces the
// same trace.
//
// Golden traces deliberately exclude content and record hashes: the
// snapshot captures the observable shape of the run (steps, states, audit
// record kinds and details), not digest values.
package harness
