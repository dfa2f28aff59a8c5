package manager

import (
	"os"

	"inferd/internal/runtime"
)

// SanityReport describes runtime checks for external dependencies.
type SanityReport struct {
	RuntimeBuilt bool   `json:"runtime_built"`
	ModelsFound  int    `json:"models_found"`
	MissingPaths int    `json:"missing_paths"`
	Error        string `json:"error,omitempty"`
}

// SanityCheck validates that the runtime is compiled in and the registry's
// model files exist. It does not mutate state and is safe to call at any time.
func (m *Manager) SanityCheck() SanityReport {
	r := SanityReport{RuntimeBuilt: runtime.Built}
	if !runtime.Built {
		r.Error = "llama runtime not built (missing 'llama' build tag)"
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, mdl := range m.registry {
		if fi, err := os.Stat(mdl.Path); err == nil && !fi.IsDir() {
			r.ModelsFound++
		} else {
			r.MissingPaths++
		}
	}
	return r
}
