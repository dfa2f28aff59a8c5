//go:build !llama

package runtime

// This stub is compiled when the 'llama' build tag is NOT set, keeping
// default builds and CI CGO-free. The real binding lives in llama.go.

// Built indicates whether this binary carries the real llama runtime.
const Built = false

// Open fails fast: the llama runtime is not available in this build.
func Open(path string, opts Options) (Context, error) {
	return nil, ErrUnavailable("llama runtime not built (missing 'llama' build tag)")
}
