package manager

import (
	"inferd/internal/common/fsutil"
	"inferd/pkg/types"
)

// Helper: find model in registry by id.
func (m *Manager) getModelByID(id string) (types.Model, bool) {
	for _, mdl := range m.registry {
		if mdl.ID == id {
			return mdl, true
		}
	}
	return types.Model{}, false
}

// Helper: estimate resident memory based on file size (MB).
func (m *Manager) estimateMemMB(mdl types.Model) int {
	mb, err := fsutil.FileSizeMB(mdl.Path)
	if err != nil {
		// If we cannot stat the file, return a conservative minimum of 1MB
		// to avoid bypassing budget checks due to an unknown size.
		return 1
	}
	return mb
}
