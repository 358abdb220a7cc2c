// Package trace records spans around layout, classification and dispatch
// table work so slow or runaway catalog runs can be diagnosed.
//
// # Usage
//
//	layoutc classify --trace=- --trace-level=item catalog.toml
//
// # Tracers
//
//   - Nop: disabled tracing, no allocation
//   - StreamTracer: writes each event as it happens
//   - RingTracer: keeps the last N events for post-mortem dumps
//   - MultiTracer: fans events out to several tracers
//
// # Scopes
//
// Events carry a scope; the tracer level decides which scopes are kept:
//
//   - ScopeCommand: one CLI command
//   - ScopePass: a batch step (catalog load, classify all, layout all)
//   - ScopeItem: one signature, one table, one type
//   - ScopeDetail: cache hits, individual slots and arguments
//
// Tracers travel through context:
//
//	ctx = trace.WithTracer(ctx, tracer)
//	span := trace.Begin(trace.FromContext(ctx), trace.ScopePass, "classify", 0)
//	defer span.End("")
package trace
