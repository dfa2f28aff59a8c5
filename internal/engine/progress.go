package engine

import (
	"fmt"
	"io"
	"os"
	"strings"
)

const progressBarWidth = 30

var spinnerChars = [...]byte{'|', '/', '-', '\\'}

// progressBar draws a spinner and a fixed-width completion bar on the
// diagnostic stream after each slot finalisation. Purely observational; it
// never affects control flow, and a nil bar is a no-op.
type progressBar struct {
	w       io.Writer
	total   int
	done    int
	spinner int
}

func newProgressBar(w *os.File, total int) *progressBar {
	if w == nil {
		return nil
	}
	if total < 1 {
		total = 1
	}
	return &progressBar{w: w, total: total}
}

func (p *progressBar) tick() {
	if p == nil {
		return
	}
	p.done++
	percent := float64(p.done) / float64(p.total)
	if percent > 1 {
		percent = 1
	}
	filled := int(percent * progressBarWidth)
	if filled > progressBarWidth {
		filled = progressBarWidth
	}
	bar := strings.Repeat("=", filled) + strings.Repeat(" ", progressBarWidth-filled)
	spinner := spinnerChars[p.spinner]
	p.spinner = (p.spinner + 1) % len(spinnerChars)
	fmt.Fprintf(p.w, "\r %c [%s] %d/%d (%3.0f%%)", spinner, bar, p.done, p.total, percent*100)
}

func (p *progressBar) finish() {
	if p == nil {
		return
	}
	fmt.Fprintf(p.w, "\r [%s] %d/%d (100%%)\n", strings.Repeat("=", progressBarWidth), p.total, p.total)
}
