package store

import (
	"encoding/json"
	"fmt"

	"github.com/go-zookeeper/zk"

	"github.com/kadirpekel/loom/message"
)

// ZKThreadStore is a reference ThreadStore backed by ZooKeeper, the same
// whole-thread-JSON-blob approach as the etcd/Consul reference adapters.
// Can share its zk.Conn with tool/zkput.go's zk_put tool, so one connection
// serves both the storage interface and a tool implementation.
type ZKThreadStore struct {
	conn   *zk.Conn
	prefix string
}

// NewZKThreadStore wraps an already-connected ZooKeeper session.
func NewZKThreadStore(conn *zk.Conn, prefix string) *ZKThreadStore {
	if prefix == "" {
		prefix = "/loom/threads"
	}
	return &ZKThreadStore{conn: conn, prefix: prefix}
}

func (s *ZKThreadStore) path(id string) string { return s.prefix + "/" + id }

func (s *ZKThreadStore) ensurePrefix() error {
	exists, _, err := s.conn.Exists(s.prefix)
	if err != nil {
		return fmt.Errorf("store: zk exists: %w", err)
	}
	if exists {
		return nil
	}
	_, err = s.conn.Create(s.prefix, []byte{}, 0, zk.WorldACL(zk.PermAll))
	if err != nil && err != zk.ErrNodeExists {
		return fmt.Errorf("store: zk create prefix: %w", err)
	}
	return nil
}

func (s *ZKThreadStore) Save(thread *message.Thread) error {
	if err := s.ensurePrefix(); err != nil {
		return err
	}
	rec := etcdThreadRecord{Platform: thread.Platform, Messages: thread.Messages()}
	b, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("store: marshal thread: %w", err)
	}

	path := s.path(thread.ID)
	exists, stat, err := s.conn.Exists(path)
	if err != nil {
		return fmt.Errorf("store: zk exists: %w", err)
	}
	if !exists {
		_, err = s.conn.Create(path, b, 0, zk.WorldACL(zk.PermAll))
		if err != nil {
			return fmt.Errorf("store: zk create: %w", err)
		}
		return nil
	}
	_, err = s.conn.Set(path, b, stat.Version)
	if err != nil {
		return fmt.Errorf("store: zk set: %w", err)
	}
	return nil
}

func (s *ZKThreadStore) Get(id string) (*message.Thread, error) {
	data, _, err := s.conn.Get(s.path(id))
	if err != nil {
		if err == zk.ErrNoNode {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("store: zk get: %w", err)
	}
	return decodeEtcdRecord(id, data)
}

func (s *ZKThreadStore) FindByPlatform(key, value string) ([]*message.Thread, error) {
	children, _, err := s.conn.Children(s.prefix)
	if err != nil {
		if err == zk.ErrNoNode {
			return nil, nil
		}
		return nil, fmt.Errorf("store: zk children: %w", err)
	}
	var out []*message.Thread
	for _, id := range children {
		t, err := s.Get(id)
		if err != nil {
			continue
		}
		if t.Platform[key] == value {
			out = append(out, t)
		}
	}
	return out, nil
}

func (s *ZKThreadStore) GetByMessageID(messageID string) (*message.Thread, error) {
	children, _, err := s.conn.Children(s.prefix)
	if err != nil {
		if err == zk.ErrNoNode {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("store: zk children: %w", err)
	}
	for _, id := range children {
		t, err := s.Get(id)
		if err != nil {
			continue
		}
		for _, m := range t.Messages() {
			if m.ID == messageID {
				return t, nil
			}
		}
	}
	return nil, ErrNotFound
}
