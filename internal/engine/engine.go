package engine

import (
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"

	"inferd/internal/runtime"
)

// Params are the generation inputs of one top-level call.
type Params struct {
	MaxTokens     int
	TopK          int
	TopP          float32
	Temperature   float32
	RepeatLastN   int
	PenaltyRepeat float32
	// Seed for the per-slot samplers; negative derives one from the clock.
	Seed         int64
	ShowProgress bool
}

// Stats summarizes one top-level call.
type Stats struct {
	PromptTokens    int
	GeneratedTokens int
	CacheMisses     int
	Duration        time.Duration
}

// Engine multiplexes prompt generations over one runtime context. It is the
// sole mutator of the context's KV memory for the duration of a call and is
// not safe for concurrent use; callers serialize access per context.
type Engine struct {
	rc       runtime.Context
	log      zerolog.Logger
	progress *os.File
	stops    []StopSequence
}

// Option customises Engine construction.
type Option func(*Engine)

// WithLogger installs a structured logger.
func WithLogger(l zerolog.Logger) Option {
	return func(e *Engine) { e.log = l }
}

// WithProgressFile redirects the progress bar away from stderr. A nil file
// disables the bar regardless of per-call settings.
func WithProgressFile(f *os.File) Option {
	return func(e *Engine) { e.progress = f }
}

// WithStopSequences replaces the control-sequence stop table. New chat
// templates need new entries; the table is data, not control flow.
func WithStopSequences(seqs []StopSequence) Option {
	return func(e *Engine) { e.stops = seqs }
}

// New creates an Engine over the given runtime context.
func New(rc runtime.Context, opts ...Option) *Engine {
	e := &Engine{
		rc:       rc,
		log:      zerolog.Nop(),
		progress: os.Stderr,
		stops:    defaultStopSequences,
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// GenerateParallel answers every prompt in one continuous batch. On success
// the result vector has exactly one entry per prompt, in prompt order;
// entries for prompts that failed individually are "[ERROR] ..." sentinels.
// On a top-level failure no results are returned and the KV memory has been
// cleared, so the context remains usable.
func (e *Engine) GenerateParallel(prompts []string, p Params) ([]string, Stats, error) {
	if e.rc == nil {
		return nil, Stats{}, ErrInvalidArguments("nil runtime context")
	}
	if len(prompts) == 0 {
		return nil, Stats{}, ErrInvalidArguments("no prompts")
	}

	promptTokens := make([][]runtime.Token, len(prompts))
	for i, prompt := range prompts {
		toks, err := e.rc.Tokenize(prompt, true)
		if err != nil {
			return nil, Stats{}, fmt.Errorf("tokenize prompt %d: %w", i, err)
		}
		promptTokens[i] = toks
	}
	return e.generate(promptTokens, p)
}

// Generate is the single-prompt case of the same engine.
func (e *Engine) Generate(prompt string, p Params) (string, Stats, error) {
	results, stats, err := e.GenerateParallel([]string{prompt}, p)
	if err != nil {
		return "", stats, err
	}
	return results[0], stats, nil
}

// GenerateTokens runs the engine over an already-tokenised prompt, skipping
// the tokeniser bridge.
func (e *Engine) GenerateTokens(tokens []runtime.Token, p Params) (string, Stats, error) {
	if e.rc == nil {
		return "", Stats{}, ErrInvalidArguments("nil runtime context")
	}
	results, stats, err := e.generate([][]runtime.Token{tokens}, p)
	if err != nil {
		return "", stats, err
	}
	return results[0], stats, nil
}

// samplingConfig maps Params onto a sampler configuration. The seed is
// resolved here, once per call: every slot gets its own sampler constructed
// from the same config so slot-local sampling is independent of cross-slot
// interleaving.
func samplingConfig(p Params) runtime.SamplingConfig {
	seed := p.Seed
	if seed < 0 {
		seed = time.Now().Unix()
	}
	return runtime.SamplingConfig{
		TopK:          p.TopK,
		TopP:          p.TopP,
		Temperature:   p.Temperature,
		PenaltyLastN:  p.RepeatLastN,
		PenaltyRepeat: p.PenaltyRepeat,
		Seed:          seed,
		MinKeep:       1,
	}
}
