package engine

import (
	"testing"

	"inferd/internal/runtime"
)

func TestInitialChunk(t *testing.T) {
	cases := []struct{ nBatch, want int }{
		{2048, 512},
		{512, 512},
		{256, 256},
		{1, 1},
		{0, 1},
	}
	for _, tc := range cases {
		if got := initialChunk(tc.nBatch); got != tc.want {
			t.Fatalf("initialChunk(%d): expected %d got %d", tc.nBatch, tc.want, got)
		}
	}
}

func TestSubmitHalvesAndStaysHalved(t *testing.T) {
	c := newFakeContext()
	c.nBatch = 8
	var windows []int
	rejections := 1
	c.decodeHook = func(rows []runtime.BatchRow) int {
		if rejections > 0 && len(rows) > 4 {
			rejections--
			return 1
		}
		windows = append(windows, len(rows))
		return 0
	}
	r := &run{e: testEngine(c), capInit: initialChunk(c.NBatch())}

	rows := make([]runtime.BatchRow, 16)
	for i := range rows {
		rows[i] = runtime.BatchRow{Token: fakeByte, Pos: runtime.Pos(i), Seqs: []runtime.SeqID{1}}
	}
	outcome, undecoded, err := r.submit(rows, nil)
	if err != nil || outcome != submitOK {
		t.Fatalf("submit: outcome=%v err=%v", outcome, err)
	}
	if undecoded != len(rows) {
		t.Fatalf("expected all rows decoded, got %d", undecoded)
	}
	if r.stats.CacheMisses != 1 {
		t.Fatalf("expected one cache miss, got %d", r.stats.CacheMisses)
	}
	// After the first 8-row window is refused, the halved size holds for the
	// remainder of the submission: 4+4+4+4, never 8 again.
	for i, w := range windows {
		if w > 4 {
			t.Fatalf("window %d used size %d after halving", i, w)
		}
	}
}

func TestSubmitSoftAtChunkOne(t *testing.T) {
	c := newFakeContext()
	c.decodeHook = func(rows []runtime.BatchRow) int { return 1 }
	r := &run{e: testEngine(c), capInit: 4}
	rows := make([]runtime.BatchRow, 4)
	for i := range rows {
		rows[i] = runtime.BatchRow{Token: fakeByte, Pos: runtime.Pos(i), Seqs: []runtime.SeqID{1}}
	}
	outcome, undecoded, err := r.submit(rows, nil)
	if outcome != submitSoft || err != nil {
		t.Fatalf("expected soft outcome, got %v err=%v", outcome, err)
	}
	if undecoded != 0 {
		t.Fatalf("expected no rows decoded, got %d", undecoded)
	}
}

func TestSubmitFatal(t *testing.T) {
	c := newFakeContext()
	c.decodeHook = func(rows []runtime.BatchRow) int { return -3 }
	r := &run{e: testEngine(c), capInit: 4}
	rows := []runtime.BatchRow{{Token: fakeByte, Pos: 0, Seqs: []runtime.SeqID{1}}}
	outcome, _, err := r.submit(rows, nil)
	if outcome != submitFatal {
		t.Fatalf("expected fatal outcome, got %v", outcome)
	}
	if !IsDecodeFatal(err) {
		t.Fatalf("expected decode fatal error, got %v", err)
	}
}
