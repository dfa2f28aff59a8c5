package engine

import "strings"

// stopMarkers are chat-template control tokens that occasionally leak into
// generated text. The cleaner strips them model-independently.
var stopMarkers = []string{
	"<|im_end|>", "<|im_start|>", "<end_of_turn>", "<start_of_turn>",
	"</s>", "<s>", "<|endoftext|>", "<|end|>", "<|start|>",
	"<eos>", "<bos>", "\n<|im_end|>", "\n<end_of_turn>", "\n</s>",
}

// cleanCap bounds marker removal passes; nested markers can re-expose a
// marker once its neighbour is removed.
const cleanCap = 5

// cleanResponse strips residual chat-template markers, trims non-printable
// lead bytes and surrounding whitespace, and truncates at the first
// conversation-turn marker. Deterministic and independent of the model.
func cleanResponse(text string) string {
	found := true
	for rounds := 0; found && rounds < cleanCap; rounds++ {
		found = false
		for _, marker := range stopMarkers {
			if strings.Contains(text, marker) {
				text = strings.ReplaceAll(text, marker, "")
				found = true
			}
		}
	}

	for len(text) > 0 && (text[0] == '?' || text[0] < 32 || text[0] > 126) {
		text = text[1:]
	}
	text = strings.TrimSpace(text)

	for _, turn := range []string{"\n\nUser:", "\n\nHuman:"} {
		if idx := strings.Index(text, turn); idx >= 0 {
			text = text[:idx]
		}
	}
	return text
}
