package manager

import (
	"context"

	"github.com/google/uuid"
)

// Switch kicks off an async model switch/ensure and returns an operation ID.
// The operation runs in the background; callers can poll Status() to observe
// state transitions.
func (m *Manager) Switch(ctx context.Context, modelID string) (string, error) {
	op := uuid.NewString()
	go func(opID string) {
		// Use a detached context so background work isn't canceled when the
		// caller context is canceled.
		if err := m.EnsureInstance(context.Background(), modelID); err != nil {
			m.publisher.Publish(Event{Name: "switch_error", ModelID: modelID, Fields: map[string]any{"op": opID, "error": err.Error()}})
			return
		}
		m.publisher.Publish(Event{Name: "switch_done", ModelID: modelID, Fields: map[string]any{"op": opID}})
	}(op)
	return op, nil
}
