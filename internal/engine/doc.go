// Package engine implements continuous-batching generation with
// shared-prefix KV reuse over a single runtime context. It is structured
// into small files by concern:
//
//   - engine.go: Engine type, options, public entry points, sampling config.
//   - scheduler.go: per-call run state, slot filling, the generation loop.
//   - batch.go: the batch driver with adaptive chunk-size throttling.
//   - slot.go: per-sequence slot state and release.
//   - prefix.go: longest-common-prefix analysis across prompts.
//   - eog.go: multi-token control-sequence stop table and retraction.
//   - clean.go: final response cleanup.
//   - progress.go: diagnostic progress bar.
//   - metrics.go: Prometheus collectors.
//   - errors.go: error types and helpers (IsGenerationFailed, ...).
//
// One call multiplexes up to NSeqMax prompts over the context: the token
// prefix shared by all prompts is decoded once under seq id 0 and cloned
// into each slot, then every iteration submits a single batch carrying one
// token per active slot. The engine is single-threaded by design; the
// runtime parallelises each batch internally.
//
// Per-prompt failures (context overflow, sampler init, prompt decode) are
// materialised as "[ERROR] ..." strings at the prompt's result index and
// never abort the call. Top-level failures clear the KV memory before
// returning so the context stays usable.
package engine
