package manager

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"inferd/internal/engine"
	"inferd/internal/runtime"
	"inferd/pkg/types"
)

// Generation parameter defaults applied when the request leaves them unset.
const (
	defaultMaxTokens     = 128
	defaultTopK          = 40
	defaultTopP          = 0.95
	defaultTemperature   = 0.8
	defaultRepeatLastN   = 64
	defaultRepeatPenalty = 1.1
)

// Generate answers every prompt of the request in one continuous batch over
// the model's context. It ensures the instance exists, waits for the
// per-instance admission queue (single generation in flight), then runs the
// engine. Results come back in prompt order; per-prompt failures are
// "[ERROR] ..." sentinels inside the result vector.
func (m *Manager) Generate(ctx context.Context, req types.GenerateRequest) (types.GenerateResponse, error) {
	modelID := req.Model
	if modelID == "" {
		modelID = m.defaultModel
		if modelID == "" {
			return types.GenerateResponse{}, modelNotFoundError{id: "(unspecified)"}
		}
	}
	if err := m.EnsureInstance(ctx, modelID); err != nil {
		return types.GenerateResponse{}, err
	}
	// Admission: per-instance FIFO queue, single in-flight
	release, err := m.beginGeneration(ctx, modelID)
	if err != nil {
		return types.GenerateResponse{}, err
	}
	defer release()

	m.mu.RLock()
	inst := m.instances[modelID]
	m.mu.RUnlock()
	if inst == nil || inst.eng == nil {
		return types.GenerateResponse{}, modelNotFoundError{id: modelID}
	}

	prompts := req.Prompts
	if len(prompts) == 0 && len(req.Messages) > 0 {
		rendered, err := renderMessages(inst.rc, req.Messages)
		if err != nil {
			return types.GenerateResponse{}, err
		}
		prompts = []string{rendered}
	}

	opID := uuid.NewString()
	m.publisher.Publish(Event{Name: "generate_start", ModelID: modelID, Fields: map[string]any{"op": opID, "prompts": len(prompts)}})

	results, stats, err := inst.eng.GenerateParallel(prompts, generateParams(req))
	if err != nil {
		m.publisher.Publish(Event{Name: "generate_error", ModelID: modelID, Fields: map[string]any{"op": opID, "error": err.Error()}})
		return types.GenerateResponse{}, err
	}

	m.publisher.Publish(Event{Name: "generate_done", ModelID: modelID, Fields: map[string]any{
		"op":        opID,
		"generated": stats.GeneratedTokens,
		"dur_ms":    stats.Duration.Milliseconds(),
	}})

	return types.GenerateResponse{
		Results: results,
		Stats: types.GenerateStats{
			PromptTokens:    stats.PromptTokens,
			GeneratedTokens: stats.GeneratedTokens,
			CacheMisses:     stats.CacheMisses,
			DurationMS:      stats.Duration.Milliseconds(),
		},
	}, nil
}

// renderMessages turns chat messages into a single prompt through the
// model's built-in chat template.
func renderMessages(rc runtime.Context, msgs []types.ChatMessage) (string, error) {
	rmsgs := make([]runtime.ChatMessage, len(msgs))
	for i, msg := range msgs {
		rmsgs[i] = runtime.ChatMessage{Role: strings.TrimSpace(msg.Role), Content: msg.Content}
	}
	return rc.ApplyChatTemplate("", rmsgs, true)
}

// generateParams maps the wire request onto engine parameters, filling
// server-side defaults for unset fields. A zero or negative seed lets the
// server choose one from the clock; any positive seed is reproducible.
func generateParams(req types.GenerateRequest) engine.Params {
	p := engine.Params{
		MaxTokens:     req.MaxTokens,
		TopK:          req.TopK,
		TopP:          float32(req.TopP),
		Temperature:   float32(req.Temperature),
		RepeatLastN:   req.RepeatLastN,
		PenaltyRepeat: float32(req.RepeatPenalty),
		Seed:          req.Seed,
		ShowProgress:  req.ShowProgress,
	}
	if p.MaxTokens == 0 {
		p.MaxTokens = defaultMaxTokens
	}
	if p.TopK == 0 {
		p.TopK = defaultTopK
	}
	if p.TopP == 0 {
		p.TopP = defaultTopP
	}
	if p.Temperature == 0 {
		p.Temperature = defaultTemperature
	}
	if p.RepeatLastN == 0 {
		p.RepeatLastN = defaultRepeatLastN
	}
	if p.PenaltyRepeat == 0 {
		p.PenaltyRepeat = defaultRepeatPenalty
	}
	if p.Seed == 0 {
		p.Seed = -1
	}
	return p
}
