// Package runtime is the boundary to the tensor runtime (llama.cpp). The
// generation engine drives these interfaces only; the real binding lives
// behind the 'llama' build tag so default builds and CI stay CGO-free.
package runtime

// Token is a vocabulary token id.
type Token int32

// SeqID names a logical stream inside the KV memory. Seq id 0 is reserved
// for the shared prompt prefix; 1..NSeqMax map one-to-one onto slots.
type SeqID int32

// Pos is a token position within one sequence, dense from 0.
type Pos int32

// All indicates a whole-range seq copy/remove.
const All Pos = -1

// BatchRow is one token submitted to the runtime: where it sits, which
// sequences it belongs to, and whether its output logits are needed.
type BatchRow struct {
	Token  Token
	Pos    Pos
	Seqs   []SeqID
	Logits bool
}

// SamplingConfig configures a per-slot sampler chain. Seed < 0 means
// "derive from the wall clock"; callers resolve that before construction.
type SamplingConfig struct {
	TopK          int
	TopP          float32
	Temperature   float32
	PenaltyLastN  int
	PenaltyRepeat float32
	Seed          int64
	MinKeep       int
}

// ChatMessage is one turn handed to the model's chat template.
type ChatMessage struct {
	Role    string
	Content string
}

// Vocab exposes the model vocabulary.
type Vocab interface {
	BOS() Token
	EOS() Token
	EOT() Token
	NL() Token
	Pad() Token
	Sep() Token
	FIMPre() Token
	FIMMid() Token
	FIMSuf() Token
	IsEOG(Token) bool
	IsControl(Token) bool
	// Piece renders the token the way it appears in generated text.
	Piece(Token) string
	Text(Token) string
	Score(Token) float32
	Attr(Token) int32
	AddBOS() bool
	AddEOS() bool
}

// Memory is the context's KV store, indexed by (seq id, position). All three
// operations are idempotent on an already-empty region.
type Memory interface {
	Clear()
	// SeqCopy makes dst's entries in [p0, p1) alias or duplicate src's.
	// p0 = All, p1 = All copies the whole range.
	SeqCopy(src, dst SeqID, p0, p1 Pos)
	// SeqRemove drops seq's entries in [p0, p1). p1 = All removes to the tail.
	SeqRemove(seq SeqID, p0, p1 Pos)
}

// Sampler is a seeded sampler chain. One sampler per slot: repetition
// penalties are stateful over the slot's own history.
type Sampler interface {
	// Sample draws a token from the logits of the given row in the most
	// recently decoded batch window.
	Sample(row int) (Token, error)
	// Accept feeds the token back so penalties stay coherent.
	Accept(Token)
	Close()
}

// Context owns a loaded model, its KV memory, and at most NSeqMax
// concurrent sequences. A context must not be shared by concurrent
// generation calls; the manager serializes access.
type Context interface {
	Vocab() Vocab
	Memory() Memory
	Tokenize(text string, addSpecial bool) ([]Token, error)
	Detokenize(tokens []Token) (string, error)
	ApplyChatTemplate(tmpl string, msgs []ChatMessage, addAssistant bool) (string, error)
	// NCtx is the maximum KV position count across all sequences combined.
	NCtx() int
	// NBatch is the runtime's maximum tokens per decode call.
	NBatch() int
	// NSeqMax is the number of concurrent sequence slots.
	NSeqMax() int
	// Decode submits rows to the runtime. Returns 0 on success, a positive
	// code when the window did not fit (retry smaller), a negative code on
	// unrecoverable failure.
	Decode(rows []BatchRow) int
	NewSampler(cfg SamplingConfig) (Sampler, error)
	Close() error
}

// Options configures Open.
type Options struct {
	CtxSize   int
	SeqSlots  int
	Threads   int
	BatchSize int
	GPULayers int
	UseMMap   bool
	UseMLock  bool
}
