package memory

import (
	"context"
	"sync"

	"sagaflow/internal/domain/deadletter"
)

type DeadLetterRepository struct {
	mu      sync.RWMutex
	entries []*deadletter.DeadLetter
}

func NewDeadLetterRepository() *DeadLetterRepository {
	return &DeadLetterRepository{}
}

func (r *DeadLetterRepository) Insert(_ context.Context, dl *deadletter.DeadLetter) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, dl)
	return nil
}

func (r *DeadLetterRepository) List(_ context.Context) ([]*deadletter.DeadLetter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*deadletter.DeadLetter, len(r.entries))
	copy(out, r.entries)
	return out, nil
}
