package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"

	"github.com/kadirpekel/loom/message"
)

// EtcdThreadStore is a reference ThreadStore backed by etcd, for
// deployments that already run etcd as their coordination service
// (SPEC_FULL.md's domain stack wiring). Threads are stored whole as a JSON
// blob under a fixed key prefix; this trades write amplification (the
// whole thread is rewritten on every Save) for a trivially simple
// implementation, acceptable for a reference adapter.
type EtcdThreadStore struct {
	client *clientv3.Client
	prefix string
}

// NewEtcdThreadStore wraps an already-connected etcd client.
func NewEtcdThreadStore(client *clientv3.Client, prefix string) *EtcdThreadStore {
	if prefix == "" {
		prefix = "/loom/threads/"
	}
	return &EtcdThreadStore{client: client, prefix: prefix}
}

type etcdThreadRecord struct {
	Platform map[string]string `json:"platform"`
	Messages []message.Message `json:"messages"`
}

func (s *EtcdThreadStore) key(id string) string { return s.prefix + id }

func (s *EtcdThreadStore) Save(thread *message.Thread) error {
	rec := etcdThreadRecord{Platform: thread.Platform, Messages: thread.Messages()}
	b, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("store: marshal thread: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err = s.client.Put(ctx, s.key(thread.ID), string(b))
	if err != nil {
		return fmt.Errorf("store: etcd put: %w", err)
	}
	return nil
}

func (s *EtcdThreadStore) Get(id string) (*message.Thread, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	resp, err := s.client.Get(ctx, s.key(id))
	if err != nil {
		return nil, fmt.Errorf("store: etcd get: %w", err)
	}
	if len(resp.Kvs) == 0 {
		return nil, ErrNotFound
	}
	return decodeEtcdRecord(id, resp.Kvs[0].Value)
}

func (s *EtcdThreadStore) FindByPlatform(key, value string) ([]*message.Thread, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	resp, err := s.client.Get(ctx, s.prefix, clientv3.WithPrefix())
	if err != nil {
		return nil, fmt.Errorf("store: etcd range get: %w", err)
	}
	var out []*message.Thread
	for _, kv := range resp.Kvs {
		id := string(kv.Key)[len(s.prefix):]
		t, err := decodeEtcdRecord(id, kv.Value)
		if err != nil {
			continue
		}
		if t.Platform[key] == value {
			out = append(out, t)
		}
	}
	return out, nil
}

func (s *EtcdThreadStore) GetByMessageID(messageID string) (*message.Thread, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	resp, err := s.client.Get(ctx, s.prefix, clientv3.WithPrefix())
	if err != nil {
		return nil, fmt.Errorf("store: etcd range get: %w", err)
	}
	for _, kv := range resp.Kvs {
		id := string(kv.Key)[len(s.prefix):]
		t, err := decodeEtcdRecord(id, kv.Value)
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

func decodeEtcdRecord(id string, raw []byte) (*message.Thread, error) {
	var rec etcdThreadRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("store: decode thread record: %w", err)
	}
	t := message.NewThreadWithID(id)
	t.Platform = rec.Platform
	for _, m := range rec.Messages {
		if err := t.Add(m); err != nil {
			return nil, fmt.Errorf("store: replay message %s: %w", m.ID, err)
		}
	}
	return t, nil
}
