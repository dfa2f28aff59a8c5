package registry

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"inferd/internal/common/fsutil"
	"inferd/pkg/types"
)

// LoadDir scans a directory for *.gguf files and builds a registry from filenames.
// ID is the full filename (including extension); Path is the absolute file path.
func LoadDir(dir string) ([]types.Model, error) {
	base, err := fsutil.ExpandHome(dir)
	if err != nil {
		return nil, err
	}
	abs, err := filepath.Abs(base)
	if err != nil {
		return nil, fmt.Errorf("abs path: %w", err)
	}
	entries, err := os.ReadDir(abs)
	if err != nil {
		return nil, fmt.Errorf("read dir: %w", err)
	}
	var models []types.Model
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.HasSuffix(strings.ToLower(name), ".gguf") {
			continue
		}
		models = append(models, types.Model{
			ID:    name,
			Name:  name,
			Path:  filepath.Join(abs, name),
			Quant: quantFromName(name),
		})
	}
	return models, nil
}

// quantFromName pulls a quantization tag like Q4_K_M out of common gguf
// filename conventions; empty when absent.
func quantFromName(name string) string {
	base := strings.TrimSuffix(name, filepath.Ext(name))
	parts := strings.FieldsFunc(base, func(r rune) bool { return r == '.' || r == '-' || r == '_' })
	for i, p := range parts {
		up := strings.ToUpper(p)
		if len(up) >= 2 && up[0] == 'Q' && up[1] >= '0' && up[1] <= '9' {
			// Re-join trailing qualifiers (K, M, S) split off above.
			quant := up
			for j := i + 1; j < len(parts) && len(parts[j]) == 1; j++ {
				quant += "_" + strings.ToUpper(parts[j])
			}
			return quant
		}
	}
	return ""
}
