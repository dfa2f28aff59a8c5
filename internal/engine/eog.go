package engine

import (
	"bytes"

	"inferd/internal/runtime"
)

// stopWindow is the number of trailing tokens kept per slot for control
// sequence matching. Chat-tuned models sometimes emit their end-of-turn
// marker as a tokenised sub-word sequence instead of a dedicated control
// token, so single-token EOG checks alone are not enough.
const stopWindow = 7

// StopSequence is a token-id sequence that terminates a slot when it appears
// verbatim at the tail of the slot's output.
type StopSequence [stopWindow]runtime.Token

// defaultStopSequences were measured against the Llama 3 vocabulary, where
// the end-of-turn markers tokenize into short sub-word pieces.
var defaultStopSequences = []StopSequence{
	{27, 91, 68, 354, 851, 91, 29},    // <|eot_id|>
	{27, 91, 408, 8932, 851, 91, 29},  // <|end_header_id|>
}

// matchStopSequence reports whether recent (newest last) equals one of the
// tracked control sequences. Only a full window can match.
func matchStopSequence(table []StopSequence, recent []runtime.Token) bool {
	if len(recent) != stopWindow {
		return false
	}
	for _, seq := range table {
		match := true
		for i, t := range seq {
			if recent[i] != t {
				match = false
				break
			}
		}
		if match {
			return true
		}
	}
	return false
}

// retractStopSequence strips the rendering of the first six window tokens
// from the tail of response. Those six were appended before the final token
// completed the match; the final token itself was never appended. The
// retraction only ever crosses text this call produced, never earlier
// content, because the window cannot outrun the response.
func retractStopSequence(vocab runtime.Vocab, recent []runtime.Token, response []byte) []byte {
	var tail []byte
	for _, t := range recent[:stopWindow-1] {
		tail = append(tail, vocab.Piece(t)...)
	}
	if len(tail) > 0 && bytes.HasSuffix(response, tail) {
		response = response[:len(response)-len(tail)]
	}
	return response
}
