package store

import (
	"fmt"
	"sync"

	"github.com/kadirpekel/loom/message"
)

// MemoryThreadStore is the default ThreadStore: an in-memory map guarded by
// a RWMutex, grounded on pkg/ratelimit/store_memory.go's mutex convention.
// Save stores a deep-enough copy (a fresh Thread rebuilt by replaying
// Messages()) so a caller mutating its own Thread afterward can't corrupt
// what was saved.
type MemoryThreadStore struct {
	mu      sync.RWMutex
	threads map[string]*message.Thread
}

// NewMemoryThreadStore returns an empty MemoryThreadStore.
func NewMemoryThreadStore() *MemoryThreadStore {
	return &MemoryThreadStore{threads: make(map[string]*message.Thread)}
}

func (s *MemoryThreadStore) Save(thread *message.Thread) error {
	snapshot := message.NewThreadWithID(thread.ID)
	snapshot.Platform = clonePlatform(thread.Platform)
	for _, m := range thread.Messages() {
		if err := snapshot.Add(m); err != nil {
			return fmt.Errorf("store: replay message into snapshot: %w", err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.threads[thread.ID] = snapshot
	return nil
}

func (s *MemoryThreadStore) Get(id string) (*message.Thread, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.threads[id]
	if !ok {
		return nil, ErrNotFound
	}
	return t, nil
}

func (s *MemoryThreadStore) FindByPlatform(key, value string) ([]*message.Thread, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*message.Thread
	for _, t := range s.threads {
		if t.Platform[key] == value {
			out = append(out, t)
		}
	}
	return out, nil
}

func (s *MemoryThreadStore) GetByMessageID(messageID string) (*message.Thread, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, t := range s.threads {
		for _, m := range t.Messages() {
			if m.ID == messageID {
				return t, nil
			}
		}
	}
	return nil, ErrNotFound
}

func clonePlatform(p map[string]string) map[string]string {
	if p == nil {
		return nil
	}
	out := make(map[string]string, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}
