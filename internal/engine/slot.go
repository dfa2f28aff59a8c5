package engine

import "inferd/internal/runtime"

// slot is the per-sequence state of one concurrent generation stream. A
// fixed-size slot table keeps slot identity and seq-id assignment stable for
// the life of a call; seq id k+1 belongs to slot k, seq id 0 to the shared
// prefix.
type slot struct {
	active bool
	failed bool

	seqID       runtime.SeqID
	globalIndex int

	fullTokens   []runtime.Token
	prefixLen    int
	suffixTokens []runtime.Token

	nPrompt  int
	nPast    int
	nDecoded int

	// iBatch is the slot's row in the in-flight batch, -1 when none.
	iBatch int

	sampled  runtime.Token
	sampler  runtime.Sampler
	response []byte
	recent   []runtime.Token
	errMsg   string
}

// release frees the sampler and returns the slot to its empty state.
func (s *slot) release() {
	if s.sampler != nil {
		s.sampler.Close()
		s.sampler = nil
	}
	s.active = false
	s.failed = false
	s.seqID = 0
	s.globalIndex = -1
	s.fullTokens = nil
	s.suffixTokens = nil
	s.prefixLen = 0
	s.nPrompt = 0
	s.nPast = 0
	s.nDecoded = 0
	s.iBatch = -1
	s.sampled = 0
	s.response = nil
	s.recent = nil
	s.errMsg = ""
}
