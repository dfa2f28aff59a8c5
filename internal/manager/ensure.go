package manager

import (
	"context"
	"time"

	"inferd/internal/engine"
)

// EnsureInstance ensures a model instance is loaded and marked ready
// according to current resource budgeting and readiness state.
func (m *Manager) EnsureInstance(ctx context.Context, modelID string) error {
	startTs := time.Now()
	if modelID == "" {
		modelID = m.defaultModel
		if modelID == "" {
			return modelNotFoundError{id: "(unspecified)"}
		}
	}
	m.publisher.Publish(Event{Name: "ensure_start", ModelID: modelID, Fields: map[string]any{}})

	m.mu.RLock()
	inst, ok := m.instances[modelID]
	ready := ok && inst != nil && inst.State == StateReady
	m.mu.RUnlock()
	if ready {
		// Upgrade to write lock to safely mutate LastUsed and re-check state
		m.mu.Lock()
		if inst2, ok2 := m.instances[modelID]; ok2 && inst2 != nil && inst2.State == StateReady {
			inst2.LastUsed = time.Now()
			m.mu.Unlock()
			return nil
		}
		m.mu.Unlock()
		// If state changed in between, continue with ensure path
	}

	// Resolve model from registry
	mdl, ok := m.getModelByID(modelID)
	if !ok {
		m.publisher.Publish(Event{Name: "ensure_model_not_found", ModelID: modelID, Fields: map[string]any{}})
		return ErrModelNotFound(modelID)
	}
	reqMB := m.estimateMemMB(mdl)

	// Evict until it fits budget + margin, if budget configured
	if m.budgetMB > 0 {
		if err := m.evictUntilFits(reqMB); err != nil {
			m.publisher.Publish(Event{Name: "ensure_budget_fail", ModelID: modelID, Fields: map[string]any{"error": err.Error()}})
			return err
		}
	}

	// Register a loading instance before the (slow) model load.
	m.mu.Lock()
	m.state = StateLoading
	m.err = ""
	inst, existed := m.instances[modelID]
	addedNow := false
	if !existed || inst == nil {
		inst = &Instance{
			ID:       modelID,
			State:    StateLoading,
			LastUsed: time.Now(),
			EstMemMB: reqMB,
			genCh:    make(chan struct{}, 1),
			queueCh:  make(chan struct{}, m.maxQueueDepth),
		}
		if rec, ok := m.lruMeta[modelID]; ok {
			inst.LastUsed = time.Unix(rec.LastUsedUnix, 0)
		}
		m.instances[modelID] = inst
		addedNow = true
	} else {
		inst.State = StateLoading
		inst.EstMemMB = reqMB
		inst.LastUsed = time.Now()
	}
	m.mu.Unlock()

	rc, err := m.openRuntime(mdl.Path, m.runtimeOpts)
	if err != nil {
		m.mu.Lock()
		m.state = StateError
		m.err = err.Error()
		if addedNow {
			delete(m.instances, modelID)
		}
		m.mu.Unlock()
		m.publisher.Publish(Event{Name: "ensure_load_error", ModelID: modelID, Fields: map[string]any{"error": err.Error()}})
		m.log.Error().Err(err).Str("model", modelID).Msg("load model")
		return err
	}

	if err := ctx.Err(); err != nil {
		_ = rc.Close()
		m.mu.Lock()
		m.state = StateError
		m.err = err.Error()
		if addedNow {
			delete(m.instances, modelID)
		}
		m.mu.Unlock()
		return err
	}

	// Commit instance as ready
	m.mu.Lock()
	if addedNow {
		// Only add to used estimate when we actually added a new instance
		m.usedEstMB += reqMB
	}
	inst.rc = rc
	inst.eng = engine.New(rc, engine.WithLogger(m.log))
	inst.State = StateReady
	inst.LastUsed = time.Now()
	m.cur = &ModelInfo{ID: mdl.ID, Name: mdl.Name, Path: mdl.Path, Quant: mdl.Quant, Family: mdl.Family}
	m.state = StateReady
	m.err = ""
	m.loadsTotal++
	m.mu.Unlock()

	m.saveLRUMetadata()
	m.publisher.Publish(Event{Name: "ensure_ready", ModelID: modelID, Fields: map[string]any{"dur_ms": int(time.Since(startTs) / time.Millisecond)}})
	m.log.Info().Str("model", modelID).Dur("dur", time.Since(startTs)).Msg("instance ready")
	return nil
}
