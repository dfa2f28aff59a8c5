package engine

import (
	"fmt"
	"sync"

	"inferd/internal/runtime"
)

// The fake runtime below stands in for llama.cpp in engine tests. It
// tokenizes one byte per token (id 1000+byte), renders pieces the same way,
// and "models" text with a deterministic function of the previous token and
// the slot-local sample count, so outputs are reproducible regardless of
// cross-slot interleaving, the same contract a temperature-0 model gives.

const (
	fakeBOS  = runtime.Token(1)
	fakeEOS  = runtime.Token(2)
	fakeEOT  = runtime.Token(3)
	fakeByte = runtime.Token(1000)
)

// fakePieces covers tokens below the byte range that tests need rendered,
// e.g. the control-sequence ids.
var fakePieces = map[runtime.Token]string{
	27: "<", 91: "|", 68: "e", 354: "ot", 851: "_id", 29: ">",
}

type fakeVocab struct{ addBOS bool }

func (v *fakeVocab) BOS() runtime.Token    { return fakeBOS }
func (v *fakeVocab) EOS() runtime.Token    { return fakeEOS }
func (v *fakeVocab) EOT() runtime.Token    { return fakeEOT }
func (v *fakeVocab) NL() runtime.Token     { return fakeByte + '\n' }
func (v *fakeVocab) Pad() runtime.Token    { return -1 }
func (v *fakeVocab) Sep() runtime.Token    { return -1 }
func (v *fakeVocab) FIMPre() runtime.Token { return -1 }
func (v *fakeVocab) FIMMid() runtime.Token { return -1 }
func (v *fakeVocab) FIMSuf() runtime.Token { return -1 }

func (v *fakeVocab) IsEOG(t runtime.Token) bool     { return t == fakeEOS || t == fakeEOT }
func (v *fakeVocab) IsControl(t runtime.Token) bool { return t == fakeBOS || t == fakeEOS || t == fakeEOT }
func (v *fakeVocab) AddBOS() bool                   { return v.addBOS }
func (v *fakeVocab) AddEOS() bool                   { return false }

func (v *fakeVocab) Piece(t runtime.Token) string {
	if t >= fakeByte && t < fakeByte+256 {
		return string([]byte{byte(t - fakeByte)})
	}
	return fakePieces[t]
}

func (v *fakeVocab) Text(t runtime.Token) string     { return v.Piece(t) }
func (v *fakeVocab) Score(t runtime.Token) float32   { return 0 }
func (v *fakeVocab) Attr(t runtime.Token) int32      { return 0 }

// fakeMemory tracks (seq, pos) rows and validates the density invariant:
// a decode must append at the sequence's current tail.
type fakeMemory struct {
	mu       sync.Mutex
	rows     map[runtime.SeqID][]runtime.Token
	copies   int
	violated string
}

func newFakeMemory() *fakeMemory {
	return &fakeMemory{rows: make(map[runtime.SeqID][]runtime.Token)}
}

func (m *fakeMemory) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows = make(map[runtime.SeqID][]runtime.Token)
}

func (m *fakeMemory) SeqCopy(src, dst runtime.SeqID, p0, p1 runtime.Pos) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.copies++
	if p0 != runtime.All || p1 != runtime.All {
		m.violated = fmt.Sprintf("partial seq copy [%d,%d)", p0, p1)
		return
	}
	m.rows[dst] = append([]runtime.Token(nil), m.rows[src]...)
}

func (m *fakeMemory) SeqRemove(seq runtime.SeqID, p0, p1 runtime.Pos) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p0 == 0 && p1 == runtime.All {
		delete(m.rows, seq)
		return
	}
	if int(p0) <= len(m.rows[seq]) {
		m.rows[seq] = m.rows[seq][:p0]
	}
}

func (m *fakeMemory) append(seq runtime.SeqID, pos runtime.Pos, tok runtime.Token) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if int(pos) != len(m.rows[seq]) {
		m.violated = fmt.Sprintf("non-dense write: seq %d pos %d with %d rows", seq, pos, len(m.rows[seq]))
	}
	m.rows[seq] = append(m.rows[seq], tok)
}

func (m *fakeMemory) empty() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.rows {
		if len(r) > 0 {
			return false
		}
	}
	return true
}

// fakeContext implements runtime.Context.
type fakeContext struct {
	vocab fakeVocab
	mem   *fakeMemory

	nCtx   int
	nBatch int
	nSeq   int

	// gen produces the "model's" next token from the logits row token and
	// the sampler's own sample count.
	gen func(prev runtime.Token, nth int) runtime.Token
	// decodeHook, when set, can veto a window before it is recorded.
	decodeHook func(rows []runtime.BatchRow) int
	samplerErr error

	lastRows []runtime.BatchRow
	decodes  int
}

func newFakeContext() *fakeContext {
	return &fakeContext{
		mem:    newFakeMemory(),
		nCtx:   4096,
		nBatch: 256,
		nSeq:   4,
		gen: func(prev runtime.Token, nth int) runtime.Token {
			return fakeByte + runtime.Token('a'+nth%26)
		},
	}
}

func (c *fakeContext) Vocab() runtime.Vocab   { return &c.vocab }
func (c *fakeContext) Memory() runtime.Memory { return c.mem }
func (c *fakeContext) NCtx() int              { return c.nCtx }
func (c *fakeContext) NBatch() int            { return c.nBatch }
func (c *fakeContext) NSeqMax() int           { return c.nSeq }
func (c *fakeContext) Close() error           { return nil }

func (c *fakeContext) Tokenize(text string, addSpecial bool) ([]runtime.Token, error) {
	var out []runtime.Token
	if addSpecial && c.vocab.addBOS {
		out = append(out, fakeBOS)
	}
	for _, b := range []byte(text) {
		out = append(out, fakeByte+runtime.Token(b))
	}
	return out, nil
}

func (c *fakeContext) Detokenize(tokens []runtime.Token) (string, error) {
	var out []byte
	for _, t := range tokens {
		out = append(out, c.vocab.Piece(t)...)
	}
	return string(out), nil
}

func (c *fakeContext) ApplyChatTemplate(tmpl string, msgs []runtime.ChatMessage, addAssistant bool) (string, error) {
	var out string
	for _, m := range msgs {
		out += m.Role + ": " + m.Content + "\n"
	}
	return out, nil
}

func (c *fakeContext) Decode(rows []runtime.BatchRow) int {
	c.decodes++
	if c.decodeHook != nil {
		if ret := c.decodeHook(rows); ret != 0 {
			return ret
		}
	}
	for _, r := range rows {
		for _, seq := range r.Seqs {
			c.mem.append(seq, r.Pos, r.Token)
		}
	}
	c.lastRows = rows
	return 0
}

func (c *fakeContext) NewSampler(cfg runtime.SamplingConfig) (runtime.Sampler, error) {
	if c.samplerErr != nil {
		return nil, c.samplerErr
	}
	return &fakeSampler{ctx: c}, nil
}

// fakeSampler derives tokens from the last decoded window; one per slot, so
// nth advances independently per stream.
type fakeSampler struct {
	ctx *fakeContext
	nth int
}

func (s *fakeSampler) Sample(row int) (runtime.Token, error) {
	if row < 0 || row >= len(s.ctx.lastRows) {
		return 0, fmt.Errorf("sample row %d out of window", row)
	}
	t := s.ctx.gen(s.ctx.lastRows[row].Token, s.nth)
	s.nth++
	return t, nil
}

func (s *fakeSampler) Accept(t runtime.Token) {}
func (s *fakeSampler) Close()                 {}

// scripted builds a gen func that replays the given tokens in order and then
// repeats the last one.
func scripted(tokens ...runtime.Token) func(runtime.Token, int) runtime.Token {
	return func(prev runtime.Token, nth int) runtime.Token {
		if nth < len(tokens) {
			return tokens[nth]
		}
		return tokens[len(tokens)-1]
	}
}
