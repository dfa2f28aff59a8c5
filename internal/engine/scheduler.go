package engine

import (
	"bytes"
	"fmt"
	"time"

	"inferd/internal/runtime"
)

// ctxHeadroom keeps a margin between a prompt and the context size so
// sampling has room to grow.
const ctxHeadroom = 64

// run is the per-call state of one top-level generation.
type run struct {
	e        *Engine
	params   Params
	sampling runtime.SamplingConfig

	prompts [][]runtime.Token
	results []string

	// sharedLen is the longest token prefix common to all prompts;
	// prefixReady is true once it has been decoded under seq id 0.
	sharedLen   int
	prefixReady bool

	slots           []slot
	nextPrompt      int
	active          int
	pendingReassign []int

	capInit int
	stats   Stats
	bar     *progressBar
}

// generate is the engine core: warm the shared prefix, fill slots, then
// interleave one-token-per-slot batches until every prompt has finalised.
func (e *Engine) generate(promptTokens [][]runtime.Token, p Params) ([]string, Stats, error) {
	started := time.Now()
	mem := e.rc.Memory()

	r := &run{
		e:        e,
		params:   p,
		sampling: samplingConfig(p),
		prompts:  promptTokens,
		results:  make([]string, len(promptTokens)),
		capInit:  initialChunk(e.rc.NBatch()),
	}
	r.sharedLen = sharedPrefixLen(promptTokens)
	if p.ShowProgress {
		r.bar = newProgressBar(e.progress, len(promptTokens))
	}

	// Clearing at entry keeps runs reproducible regardless of prior calls.
	mem.Clear()

	if r.sharedLen > 0 {
		rows := make([]runtime.BatchRow, r.sharedLen)
		for j := range rows {
			rows[j] = runtime.BatchRow{
				Token:  promptTokens[0][j],
				Pos:    runtime.Pos(j),
				Seqs:   []runtime.SeqID{0},
				Logits: j == r.sharedLen-1,
			}
		}
		outcome, _, err := r.submit(rows, nil)
		switch outcome {
		case submitOK:
			r.prefixReady = true
		case submitSoft:
			// Even chunk size 1 could not proceed; fall back to decoding
			// every prompt in full under its own slot.
			mem.Clear()
		case submitFatal:
			return r.fail(err)
		}
	}

	nSlots := e.rc.NSeqMax()
	if nSlots < 1 {
		nSlots = 1
	}
	r.slots = make([]slot, nSlots)
	for i := range r.slots {
		r.slots[i].iBatch = -1
		r.slots[i].globalIndex = -1
	}

	r.fillSlots()

	for r.active > 0 {
		r.fillSlots()

		var rows []runtime.BatchRow
		for i := range r.slots {
			s := &r.slots[i]
			if !s.active || s.failed {
				continue
			}
			if s.nDecoded >= r.params.MaxTokens {
				// Token budget reached; with a zero budget no sampling
				// happens at all.
				r.finalizeSlot(i, true)
				continue
			}
			s.iBatch = len(rows)
			rows = append(rows, runtime.BatchRow{
				Token:  s.sampled,
				Pos:    runtime.Pos(s.nPast + s.nDecoded),
				Seqs:   []runtime.SeqID{s.seqID},
				Logits: true,
			})
		}
		if len(rows) == 0 {
			r.reassignPending()
			continue
		}

		outcome, undecoded, err := r.submit(rows, r.sampleWindow)
		r.reassignPending()
		if outcome == submitFatal {
			return r.fail(err)
		}
		if outcome == submitSoft {
			// Rows past the refusal point never produced logits; only their
			// slots fail, the rest continue.
			for i := range r.slots {
				s := &r.slots[i]
				if s.active && !s.failed && s.iBatch >= undecoded {
					s.failed = true
					s.errMsg = "decode rejected at minimum batch size"
					s.iBatch = -1
					r.finalizeSlot(i, false)
				}
			}
			r.reassignPending()
		}
	}

	r.bar.finish()

	for i := range r.slots {
		r.slots[i].release()
	}
	if r.prefixReady {
		mem.SeqRemove(0, 0, runtime.All)
	}

	r.stats.Duration = time.Since(started)
	promptTokensTotal.Add(float64(r.stats.PromptTokens))
	generatedTokensTotal.Add(float64(r.stats.GeneratedTokens))
	generationDuration.Observe(r.stats.Duration.Seconds())
	generationsTotal.WithLabelValues("ok").Inc()
	e.log.Debug().
		Int("prompts", len(promptTokens)).
		Int("prompt_tokens", r.stats.PromptTokens).
		Int("generated_tokens", r.stats.GeneratedTokens).
		Int("cache_misses", r.stats.CacheMisses).
		Dur("dur", r.stats.Duration).
		Msg("parallel generation done")

	return r.results, r.stats, nil
}

// fillSlots opens empty slots from the pending queue, in slot order.
func (r *run) fillSlots() {
	for i := range r.slots {
		if r.nextPrompt >= len(r.prompts) {
			return
		}
		if !r.slots[i].active {
			r.assignNext(i)
		}
	}
}

// reassignPending refills slots that finalised mid-iteration.
func (r *run) reassignPending() {
	if len(r.pendingReassign) == 0 {
		return
	}
	pending := r.pendingReassign
	r.pendingReassign = nil
	for _, idx := range pending {
		r.assignNext(idx)
	}
}

// assignNext pops prompts off the queue until one admits into slot idx.
// Prompts rejected at admission (sampler init failure, context overflow,
// zero tokens, suffix decode failure) have their error sentinel written
// immediately and the next prompt is tried.
func (r *run) assignNext(idx int) bool {
	s := &r.slots[idx]
	s.release()

	for r.nextPrompt < len(r.prompts) {
		gi := r.nextPrompt
		r.nextPrompt++

		s.seqID = runtime.SeqID(idx + 1)
		s.globalIndex = gi
		s.fullTokens = r.prompts[gi]
		s.nPrompt = len(s.fullTokens)
		s.prefixLen = 0
		if r.prefixReady {
			s.prefixLen = r.sharedLen
			if s.prefixLen > s.nPrompt {
				s.prefixLen = s.nPrompt
			}
		}
		s.suffixTokens = nil
		if s.nPrompt > s.prefixLen {
			s.suffixTokens = s.fullTokens[s.prefixLen:]
		}
		s.nPast = s.prefixLen
		s.nDecoded = 0
		s.iBatch = -1
		s.failed = false

		smpl, err := r.e.rc.NewSampler(r.sampling)
		if err != nil {
			r.results[gi] = "[ERROR] failed to initialize sampler: " + err.Error()
			s.release()
			continue
		}
		s.sampler = smpl

		if s.nPrompt > r.e.rc.NCtx()-ctxHeadroom {
			r.results[gi] = fmt.Sprintf("[ERROR] prompt of %d tokens exceeds context size %d",
				s.nPrompt, r.e.rc.NCtx())
			s.release()
			continue
		}
		if s.nPrompt == 0 {
			r.results[gi] = "[ERROR] prompt resulted in zero tokens"
			s.release()
			continue
		}

		r.stats.PromptTokens += s.nPrompt

		if r.prefixReady && s.prefixLen > 0 {
			// The whole seq-0 range: the slot's prefix always spans it.
			r.e.rc.Memory().SeqCopy(0, s.seqID, runtime.All, runtime.All)
		}

		if !r.decodePrompt(s) {
			if s.seqID > 0 {
				r.e.rc.Memory().SeqRemove(s.seqID, 0, runtime.All)
			}
			r.results[gi] = "[ERROR] " + s.errMsg
			s.release()
			continue
		}

		s.sampled = s.fullTokens[s.nPrompt-1]
		s.active = true
		r.active++
		return true
	}

	s.release()
	return false
}

// decodePrompt feeds the slot's unique suffix, positions continuing from the
// shared prefix, marking only the last token's logits.
func (r *run) decodePrompt(s *slot) bool {
	if s.nPrompt <= 0 {
		s.failed = true
		s.errMsg = "prompt resulted in zero tokens"
		return false
	}
	if len(s.suffixTokens) == 0 {
		s.nPast = s.nPrompt
		return true
	}

	rows := make([]runtime.BatchRow, len(s.suffixTokens))
	for j, t := range s.suffixTokens {
		rows[j] = runtime.BatchRow{
			Token:  t,
			Pos:    runtime.Pos(s.prefixLen + j),
			Seqs:   []runtime.SeqID{s.seqID},
			Logits: j == len(s.suffixTokens)-1,
		}
	}
	outcome, _, _ := r.submit(rows, nil)
	if outcome != submitOK {
		s.failed = true
		s.errMsg = "failed to decode prompt tokens"
		return false
	}
	s.nPast = s.nPrompt
	return true
}

// sampleWindow runs after each successfully decoded window of the generation
// batch: every slot whose row falls inside the window samples, accepts, and
// applies the stop checks. Slots are visited in slot-index order so a fixed
// input is reproducible run to run.
func (r *run) sampleWindow(start, n int) {
	vocab := r.e.rc.Vocab()
	for i := range r.slots {
		s := &r.slots[i]
		if !s.active || s.failed {
			continue
		}
		if s.iBatch < start || s.iBatch >= start+n {
			continue
		}

		tok, err := s.sampler.Sample(s.iBatch - start)
		if err != nil {
			s.failed = true
			s.errMsg = "sampling failed: " + err.Error()
			s.iBatch = -1
			r.finalizeSlot(i, false)
			continue
		}
		s.sampler.Accept(tok)

		stop := false
		if tok == vocab.EOS() || vocab.IsEOG(tok) {
			stop = true
		} else {
			s.recent = append(s.recent, tok)
			if len(s.recent) > stopWindow {
				s.recent = s.recent[1:]
			}
			if matchStopSequence(r.e.stops, s.recent) {
				s.response = retractStopSequence(vocab, s.recent, s.response)
				stop = true
			} else {
				s.response = append(s.response, vocab.Piece(tok)...)
				if s.nDecoded > 5 && hasTurnMarker(s.response) {
					stop = true
				}
			}
		}

		s.sampled = tok
		s.nDecoded++
		s.iBatch = -1
		if stop {
			r.finalizeSlot(i, true)
		}
	}
}

// hasTurnMarker reports whether the response drifted into fabricating the
// next conversation turn. The marker itself is left in place; the output
// cleaner truncates it.
func hasTurnMarker(response []byte) bool {
	return bytes.Contains(response, []byte("\n\nUser:")) ||
		bytes.Contains(response, []byte("\n\nHuman:"))
}

// finalizeSlot retires a slot: drops its KV rows, writes its result at the
// prompt's position, and releases the slot for reassignment.
func (r *run) finalizeSlot(idx int, success bool) {
	s := &r.slots[idx]
	if !s.active {
		s.release()
		return
	}

	if s.seqID > 0 {
		r.e.rc.Memory().SeqRemove(s.seqID, 0, runtime.All)
	}

	if success {
		r.results[s.globalIndex] = cleanResponse(string(s.response))
		r.stats.GeneratedTokens += s.nDecoded
	} else {
		msg := s.errMsg
		if msg == "" {
			msg = "unknown error"
		}
		r.results[s.globalIndex] = "[ERROR] " + msg
	}

	s.active = false
	r.active--
	needsReassign := r.nextPrompt < len(r.prompts)
	s.release()
	r.bar.tick()
	if needsReassign {
		r.pendingReassign = append(r.pendingReassign, idx)
	}
}

// fail aborts the call: the progress bar is closed, every slot released, and
// the KV memory cleared so the context remains usable afterwards.
func (r *run) fail(err error) ([]string, Stats, error) {
	r.bar.finish()
	for i := range r.slots {
		r.slots[i].release()
	}
	r.e.rc.Memory().Clear()
	generationsTotal.WithLabelValues("error").Inc()
	r.e.log.Error().Err(err).Msg("parallel generation failed")
	return nil, r.stats, errGeneration("%v", err)
}
