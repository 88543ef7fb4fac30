// Package store is the Storage interface (spec.md §6) and a set of
// reference implementations: thread persistence is explicitly an external
// collaborator ("any implementation suffices") the Agent Loop consumes
// through a narrow interface, never a product feature of the core.
//
// Grounded on the teacher's pkg/memory/session_service_sql.go for the
// SQL-backed implementation's schema/dialect/connection-pool shape, and on
// pkg/ratelimit/store_memory.go for the in-memory reference's mutex
// convention.
package store

import (
	"fmt"

	"github.com/kadirpekel/loom/message"
)

// ThreadStore is the thread half of spec.md §6's storage interface:
// save(thread), get(id) → thread, find_by_platform, get_by_message_id.
type ThreadStore interface {
	Save(thread *message.Thread) error
	Get(id string) (*message.Thread, error)
	FindByPlatform(key, value string) ([]*message.Thread, error)
	GetByMessageID(messageID string) (*message.Thread, error)
}

// FileStore is the attachment half of spec.md §6's storage interface:
// save(name, bytes) → locator, get(locator), delete(locator).
type FileStore interface {
	Save(name string, data []byte) (locator string, err error)
	Get(locator string) ([]byte, error)
	Delete(locator string) error
}

// ErrNotFound is returned by Get/GetByMessageID when no matching thread
// exists.
var ErrNotFound = fmt.Errorf("store: thread not found")
