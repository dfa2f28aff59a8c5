//go:build llama

package runtime

/*
#include <stdlib.h>
#include "llama.h"
*/
import "C"

import (
	"fmt"
	"sync"
	"unsafe"
)

// Built indicates whether this binary carries the real llama runtime.
const Built = true

// backendOnce guards process-wide runtime initialization. Init-once,
// teardown never: the backend outlives every context in the process.
var backendOnce sync.Once

func backendInit() {
	backendOnce.Do(func() {
		C.ggml_backend_load_all()
		C.llama_backend_init()
	})
}

// llamaContext implements Context over a loaded model and llama context.
type llamaContext struct {
	model *C.struct_llama_model
	ctx   *C.struct_llama_context
	vocab llamaVocab
	mem   llamaMemory
	nSeq  int
}

// Open loads a model file and creates a context with opts applied.
func Open(path string, opts Options) (Context, error) {
	backendInit()

	mp := C.llama_model_default_params()
	if opts.GPULayers != 0 {
		mp.n_gpu_layers = C.int32_t(opts.GPULayers)
	}
	mp.use_mmap = C.bool(opts.UseMMap)
	mp.use_mlock = C.bool(opts.UseMLock)

	cpath := C.CString(path)
	defer C.free(unsafe.Pointer(cpath))
	model := C.llama_model_load_from_file(cpath, mp)
	if model == nil {
		return nil, fmt.Errorf("load model %s", path)
	}

	cp := C.llama_context_default_params()
	if opts.CtxSize > 0 {
		cp.n_ctx = C.uint32_t(opts.CtxSize)
	}
	if opts.BatchSize > 0 {
		cp.n_batch = C.uint32_t(opts.BatchSize)
	}
	if opts.Threads > 0 {
		cp.n_threads = C.int32_t(opts.Threads)
		cp.n_threads_batch = C.int32_t(opts.Threads)
	}
	nSeq := opts.SeqSlots
	if nSeq < 1 {
		nSeq = 1
	}
	// One extra stream for the shared prefix under seq id 0.
	cp.n_seq_max = C.uint32_t(nSeq + 1)

	ctx := C.llama_init_from_model(model, cp)
	if ctx == nil {
		C.llama_model_free(model)
		return nil, fmt.Errorf("create context for %s", path)
	}

	lc := &llamaContext{model: model, ctx: ctx, nSeq: nSeq}
	lc.vocab = llamaVocab{v: C.llama_model_get_vocab(model)}
	lc.mem = llamaMemory{mem: C.llama_get_memory(ctx)}
	return lc, nil
}

func (lc *llamaContext) Vocab() Vocab   { return &lc.vocab }
func (lc *llamaContext) Memory() Memory { return &lc.mem }
func (lc *llamaContext) NCtx() int      { return int(C.llama_n_ctx(lc.ctx)) }
func (lc *llamaContext) NBatch() int    { return int(C.llama_n_batch(lc.ctx)) }
func (lc *llamaContext) NSeqMax() int   { return lc.nSeq }

func (lc *llamaContext) Close() error {
	if lc.ctx != nil {
		C.llama_free(lc.ctx)
		lc.ctx = nil
	}
	if lc.model != nil {
		C.llama_model_free(lc.model)
		lc.model = nil
	}
	return nil
}

func (lc *llamaContext) Tokenize(text string, addSpecial bool) ([]Token, error) {
	ctext := C.CString(text)
	defer C.free(unsafe.Pointer(ctext))

	maxTokens := len(text) + 2
	buf := make([]C.llama_token, maxTokens)
	n := C.llama_tokenize(lc.vocab.v, ctext, C.int32_t(len(text)),
		&buf[0], C.int32_t(maxTokens), C.bool(addSpecial), false)
	if n < 0 {
		return nil, ErrTokenize(fmt.Sprintf("tokenize failed (code %d)", int(n)))
	}
	out := make([]Token, int(n))
	for i := range out {
		out[i] = Token(buf[i])
	}
	return out, nil
}

func (lc *llamaContext) Detokenize(tokens []Token) (string, error) {
	if len(tokens) == 0 {
		return "", nil
	}
	ctoks := make([]C.llama_token, len(tokens))
	for i, t := range tokens {
		ctoks[i] = C.llama_token(t)
	}
	buf := make([]C.char, len(tokens)*8+1)
	n := C.llama_detokenize(lc.vocab.v, &ctoks[0], C.int32_t(len(tokens)),
		&buf[0], C.int32_t(len(buf)), false, false)
	if n < 0 {
		return "", ErrTokenize(fmt.Sprintf("detokenize failed (code %d)", int(n)))
	}
	return C.GoStringN(&buf[0], n), nil
}

func (lc *llamaContext) ApplyChatTemplate(tmpl string, msgs []ChatMessage, addAssistant bool) (string, error) {
	cmsgs := make([]C.struct_llama_chat_message, len(msgs))
	total := 0
	for i, m := range msgs {
		cmsgs[i].role = C.CString(m.Role)
		cmsgs[i].content = C.CString(m.Content)
		total += len(m.Content)
	}
	defer func() {
		for i := range cmsgs {
			C.free(unsafe.Pointer(cmsgs[i].role))
			C.free(unsafe.Pointer(cmsgs[i].content))
		}
	}()

	var ctmpl *C.char
	if tmpl != "" {
		ctmpl = C.CString(tmpl)
		defer C.free(unsafe.Pointer(ctmpl))
	} else {
		// Fall back to the model's built-in template.
		ctmpl = C.llama_model_chat_template(lc.model, nil)
	}

	buf := make([]C.char, total*2+2048)
	var msgp *C.struct_llama_chat_message
	if len(cmsgs) > 0 {
		msgp = &cmsgs[0]
	}
	n := C.llama_chat_apply_template(ctmpl, msgp, C.size_t(len(cmsgs)),
		C.bool(addAssistant), &buf[0], C.int32_t(len(buf)))
	if n < 0 {
		return "", fmt.Errorf("apply chat template (code %d)", int(n))
	}
	return C.GoStringN(&buf[0], n), nil
}

// Decode marshals rows into a llama_batch and submits it. The raw return
// code is passed through so the engine's batch driver owns retry policy.
func (lc *llamaContext) Decode(rows []BatchRow) int {
	if len(rows) == 0 {
		return 0
	}
	maxSeqs := 1
	for _, r := range rows {
		if len(r.Seqs) > maxSeqs {
			maxSeqs = len(r.Seqs)
		}
	}
	batch := C.llama_batch_init(C.int32_t(len(rows)), 0, C.int32_t(maxSeqs))
	defer C.llama_batch_free(batch)

	tokens := unsafe.Slice(batch.token, len(rows))
	pos := unsafe.Slice(batch.pos, len(rows))
	nSeqID := unsafe.Slice(batch.n_seq_id, len(rows))
	seqID := unsafe.Slice(batch.seq_id, len(rows))
	logits := unsafe.Slice(batch.logits, len(rows))
	for i, r := range rows {
		tokens[i] = C.llama_token(r.Token)
		pos[i] = C.llama_pos(r.Pos)
		nSeqID[i] = C.int32_t(len(r.Seqs))
		seqs := unsafe.Slice(seqID[i], len(r.Seqs))
		for j, s := range r.Seqs {
			seqs[j] = C.llama_seq_id(s)
		}
		if r.Logits {
			logits[i] = 1
		} else {
			logits[i] = 0
		}
	}
	batch.n_tokens = C.int32_t(len(rows))

	return int(C.llama_decode(lc.ctx, batch))
}

// llamaVocab implements Vocab.
type llamaVocab struct {
	v *C.struct_llama_vocab
}

func (v *llamaVocab) BOS() Token    { return Token(C.llama_vocab_bos(v.v)) }
func (v *llamaVocab) EOS() Token    { return Token(C.llama_vocab_eos(v.v)) }
func (v *llamaVocab) EOT() Token    { return Token(C.llama_vocab_eot(v.v)) }
func (v *llamaVocab) NL() Token     { return Token(C.llama_vocab_nl(v.v)) }
func (v *llamaVocab) Pad() Token    { return Token(C.llama_vocab_pad(v.v)) }
func (v *llamaVocab) Sep() Token    { return Token(C.llama_vocab_sep(v.v)) }
func (v *llamaVocab) FIMPre() Token { return Token(C.llama_vocab_fim_pre(v.v)) }
func (v *llamaVocab) FIMMid() Token { return Token(C.llama_vocab_fim_mid(v.v)) }
func (v *llamaVocab) FIMSuf() Token { return Token(C.llama_vocab_fim_suf(v.v)) }

func (v *llamaVocab) IsEOG(t Token) bool     { return bool(C.llama_vocab_is_eog(v.v, C.llama_token(t))) }
func (v *llamaVocab) IsControl(t Token) bool { return bool(C.llama_vocab_is_control(v.v, C.llama_token(t))) }
func (v *llamaVocab) AddBOS() bool           { return bool(C.llama_vocab_get_add_bos(v.v)) }
func (v *llamaVocab) AddEOS() bool           { return bool(C.llama_vocab_get_add_eos(v.v)) }

func (v *llamaVocab) Piece(t Token) string {
	var buf [256]C.char
	n := C.llama_token_to_piece(v.v, C.llama_token(t), &buf[0], C.int32_t(len(buf)), 0, false)
	if n < 0 {
		return ""
	}
	return C.GoStringN(&buf[0], n)
}

func (v *llamaVocab) Text(t Token) string {
	p := C.llama_vocab_get_text(v.v, C.llama_token(t))
	if p == nil {
		return ""
	}
	return C.GoString(p)
}

func (v *llamaVocab) Score(t Token) float32 {
	return float32(C.llama_vocab_get_score(v.v, C.llama_token(t)))
}

func (v *llamaVocab) Attr(t Token) int32 {
	return int32(C.llama_vocab_get_attr(v.v, C.llama_token(t)))
}

// llamaMemory implements Memory over the context's KV store.
type llamaMemory struct {
	mem C.llama_memory_t
}

func (m *llamaMemory) Clear() {
	C.llama_memory_clear(m.mem, true)
}

func (m *llamaMemory) SeqCopy(src, dst SeqID, p0, p1 Pos) {
	C.llama_memory_seq_cp(m.mem, C.llama_seq_id(src), C.llama_seq_id(dst),
		C.llama_pos(p0), C.llama_pos(p1))
}

func (m *llamaMemory) SeqRemove(seq SeqID, p0, p1 Pos) {
	C.llama_memory_seq_rm(m.mem, C.llama_seq_id(seq),
		C.llama_pos(p0), C.llama_pos(p1))
}

// llamaSampler implements Sampler as a llama sampler chain: penalties,
// top-k, top-p, temperature, then seeded distribution sampling.
type llamaSampler struct {
	chain *C.struct_llama_sampler
	ctx   *C.struct_llama_context
}

func (lc *llamaContext) NewSampler(cfg SamplingConfig) (Sampler, error) {
	sp := C.llama_sampler_chain_default_params()
	chain := C.llama_sampler_chain_init(sp)
	if chain == nil {
		return nil, fmt.Errorf("init sampler chain")
	}
	C.llama_sampler_chain_add(chain,
		C.llama_sampler_init_penalties(C.int32_t(cfg.PenaltyLastN), C.float(cfg.PenaltyRepeat), 0, 0))
	C.llama_sampler_chain_add(chain, C.llama_sampler_init_top_k(C.int32_t(cfg.TopK)))
	minKeep := cfg.MinKeep
	if minKeep < 1 {
		minKeep = 1
	}
	C.llama_sampler_chain_add(chain,
		C.llama_sampler_init_top_p(C.float(cfg.TopP), C.size_t(minKeep)))
	C.llama_sampler_chain_add(chain, C.llama_sampler_init_temp(C.float(cfg.Temperature)))
	C.llama_sampler_chain_add(chain, C.llama_sampler_init_dist(C.uint32_t(cfg.Seed)))
	return &llamaSampler{chain: chain, ctx: lc.ctx}, nil
}

func (s *llamaSampler) Sample(row int) (Token, error) {
	t := C.llama_sampler_sample(s.chain, s.ctx, C.int32_t(row))
	return Token(t), nil
}

func (s *llamaSampler) Accept(t Token) {
	C.llama_sampler_accept(s.chain, C.llama_token(t))
}

func (s *llamaSampler) Close() {
	if s.chain != nil {
		C.llama_sampler_free(s.chain)
		s.chain = nil
	}
}
