package store

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// MemoryFileStore is the default FileStore: attachment bytes kept in a map
// keyed by a generated locator. Exists purely to give the Attachment →
// tool-result pipeline (the read_document tool's counterpart) somewhere to
// write without requiring an external object store.
type MemoryFileStore struct {
	mu    sync.RWMutex
	files map[string][]byte
}

// NewMemoryFileStore returns an empty MemoryFileStore.
func NewMemoryFileStore() *MemoryFileStore {
	return &MemoryFileStore{files: make(map[string][]byte)}
}

func (s *MemoryFileStore) Save(name string, data []byte) (string, error) {
	locator := uuid.NewString() + "-" + name
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make([]byte, len(data))
	copy(cp, data)
	s.files[locator] = cp
	return locator, nil
}

func (s *MemoryFileStore) Get(locator string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.files[locator]
	if !ok {
		return nil, fmt.Errorf("store: no file under locator %q", locator)
	}
	return data, nil
}

func (s *MemoryFileStore) Delete(locator string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.files, locator)
	return nil
}
