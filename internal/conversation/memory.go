package conversation

import (
	"context"
	"sync"

	"github.com/cloudwego/eino/schema"
)

// MemoryRepository keeps history in process. Used when Redis is not configured.
type MemoryRepository struct {
	mu       sync.RWMutex
	sessions map[string][]*schema.Message
}

var _ Repository = (*MemoryRepository)(nil)

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{sessions: map[string][]*schema.Message{}}
}

func (r *MemoryRepository) AddMessage(_ context.Context, sessionID string, messages ...*schema.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[sessionID] = append(r.sessions[sessionID], messages...)
	return nil
}

func (r *MemoryRepository) LoadHistory(_ context.Context, sessionID string) (*History, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	msgs := make([]*schema.Message, len(r.sessions[sessionID]))
	copy(msgs, r.sessions[sessionID])
	return &History{SessionID: sessionID, Messages: msgs}, nil
}

func (r *MemoryRepository) ClearHistory(_ context.Context, sessionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, sessionID)
	return nil
}

func (r *MemoryRepository) GetMessageCount(_ context.Context, sessionID string) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions[sessionID]), nil
}
