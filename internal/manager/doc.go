// Package manager provides lifecycle, admission, and generation coordination
// for model instances. It is structured into small files by concern:
//
//   - manager.go: core Manager type, constructor, simple getters.
//   - config.go: ManagerConfig and package defaults; NewWithConfig applies defaults.
//   - types.go: internal state types (State, ModelInfo, Instance, Snapshot).
//   - errors.go: error types and helpers (IsTooBusy, IsModelNotFound).
//   - helpers.go: small utilities (model lookup, memory estimation).
//   - admission.go: per-instance queueing and generation admission.
//   - ensure.go: EnsureInstance lifecycle and model loading.
//   - evict.go: eviction logic to fit within the memory budget.
//   - generate.go: the generation API entry point.
//   - status.go: Status/Snapshot reporting.
//   - events.go: lifecycle event publishing.
//   - sanity.go: runtime availability checks.
//   - lru_persist.go: last-used metadata persistence across restarts.
//
// An Instance owns one live runtime context plus the engine multiplexing
// generations over it. Admission serializes generations per instance: the
// engine is the sole mutator of a context's KV memory for the duration of a
// call, so at most one call is in flight per context at any time.
//
// The real llama.cpp runtime is only present when built with `-tags=llama`;
// without it, loading an instance fails fast with a runtime-unavailable
// error that the HTTP layer maps to 503.
package manager
