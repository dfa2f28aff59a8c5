package engine

import "inferd/internal/runtime"

// sharedPrefixLen returns the length of the longest token prefix common to
// every prompt. With a single prompt the whole prompt is the prefix. Prompts
// that share a system preamble get it decoded once and cloned per slot, which
// amortises the most expensive part of inference.
func sharedPrefixLen(prompts [][]runtime.Token) int {
	if len(prompts) == 0 {
		return 0
	}
	n := len(prompts[0])
	for _, toks := range prompts[1:] {
		limit := n
		if len(toks) < limit {
			limit = len(toks)
		}
		common := 0
		for common < limit && toks[common] == prompts[0][common] {
			common++
		}
		n = common
		if n == 0 {
			break
		}
	}
	return n
}
