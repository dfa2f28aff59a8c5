package manager

import (
	"os"
	"path/filepath"
	"testing"

	"inferd/internal/runtime"
	"inferd/pkg/types"
)

// helper: create a model file of approximately sizeMB megabytes
func createModelFile(t *testing.T, dir, name string, sizeMB int) string {
	t.Helper()
	if sizeMB <= 0 {
		sizeMB = 1
	}
	p := filepath.Join(dir, name)
	f, err := os.Create(p)
	if err != nil {
		t.Fatalf("create file: %v", err)
	}
	defer f.Close()
	block := make([]byte, 1024*1024)
	for i := 0; i < sizeMB; i++ {
		if _, err := f.Write(block); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	if err := f.Sync(); err != nil {
		t.Fatalf("sync: %v", err)
	}
	return p
}

// stubContext is a minimal runtime.Context for manager tests: it echoes a
// fixed continuation so Generate has something deterministic to return.
type stubContext struct {
	vocab  stubVocab
	mem    stubMemory
	closed bool
}

type stubVocab struct{}

func (stubVocab) BOS() runtime.Token                   { return 1 }
func (stubVocab) EOS() runtime.Token                   { return 2 }
func (stubVocab) EOT() runtime.Token                   { return 3 }
func (stubVocab) NL() runtime.Token                    { return 10 }
func (stubVocab) Pad() runtime.Token                   { return -1 }
func (stubVocab) Sep() runtime.Token                   { return -1 }
func (stubVocab) FIMPre() runtime.Token                { return -1 }
func (stubVocab) FIMMid() runtime.Token                { return -1 }
func (stubVocab) FIMSuf() runtime.Token                { return -1 }
func (stubVocab) IsEOG(t runtime.Token) bool           { return t == 2 || t == 3 }
func (stubVocab) IsControl(t runtime.Token) bool       { return t < 4 }
func (stubVocab) AddBOS() bool                         { return false }
func (stubVocab) AddEOS() bool                         { return false }
func (stubVocab) Text(t runtime.Token) string          { return "" }
func (stubVocab) Score(t runtime.Token) float32        { return 0 }
func (stubVocab) Attr(t runtime.Token) int32           { return 0 }

func (stubVocab) Piece(t runtime.Token) string {
	if t >= 1000 && t < 1256 {
		return string([]byte{byte(t - 1000)})
	}
	return ""
}

type stubMemory struct{}

func (stubMemory) Clear()                                            {}
func (stubMemory) SeqCopy(src, dst runtime.SeqID, p0, p1 runtime.Pos) {}
func (stubMemory) SeqRemove(seq runtime.SeqID, p0, p1 runtime.Pos)    {}

func (c *stubContext) Vocab() runtime.Vocab   { return c.vocab }
func (c *stubContext) Memory() runtime.Memory { return c.mem }
func (c *stubContext) NCtx() int              { return 2048 }
func (c *stubContext) NBatch() int            { return 256 }
func (c *stubContext) NSeqMax() int           { return 4 }
func (c *stubContext) Close() error           { c.closed = true; return nil }

func (c *stubContext) Tokenize(text string, addSpecial bool) ([]runtime.Token, error) {
	out := make([]runtime.Token, 0, len(text))
	for _, b := range []byte(text) {
		out = append(out, 1000+runtime.Token(b))
	}
	return out, nil
}

func (c *stubContext) Detokenize(tokens []runtime.Token) (string, error) {
	var s string
	for _, t := range tokens {
		s += c.vocab.Piece(t)
	}
	return s, nil
}

func (c *stubContext) ApplyChatTemplate(tmpl string, msgs []runtime.ChatMessage, addAssistant bool) (string, error) {
	var s string
	for _, m := range msgs {
		s += m.Role + ": " + m.Content + "\n"
	}
	return s, nil
}

func (c *stubContext) Decode(rows []runtime.BatchRow) int { return 0 }

func (c *stubContext) NewSampler(cfg runtime.SamplingConfig) (runtime.Sampler, error) {
	return &stubSampler{}, nil
}

type stubSampler struct{ nth int }

func (s *stubSampler) Sample(row int) (runtime.Token, error) {
	t := runtime.Token(1000 + 'a' + s.nth%26)
	s.nth++
	return t, nil
}

func (s *stubSampler) Accept(t runtime.Token) {}
func (s *stubSampler) Close()                 {}

// stubOpener records opens and hands out stub contexts.
func stubOpener(opened *[]*stubContext) func(string, runtime.Options) (runtime.Context, error) {
	return func(path string, opts runtime.Options) (runtime.Context, error) {
		c := &stubContext{}
		*opened = append(*opened, c)
		return c, nil
	}
}

func testManager(t *testing.T, reg []types.Model, defaultModel string, opened *[]*stubContext) *Manager {
	t.Helper()
	return NewWithConfig(ManagerConfig{
		Registry:     reg,
		DefaultModel: defaultModel,
		OpenRuntime:  stubOpener(opened),
	})
}
