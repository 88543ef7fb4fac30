package store

import (
	"encoding/json"
	"fmt"
	"strings"

	consulapi "github.com/hashicorp/consul/api"

	"github.com/kadirpekel/loom/message"
)

// ConsulThreadStore is a reference ThreadStore backed by Consul's KV store,
// the same whole-thread-JSON-blob approach as EtcdThreadStore, for
// deployments already running Consul as their coordination service.
type ConsulThreadStore struct {
	kv     *consulapi.KV
	prefix string
}

// NewConsulThreadStore wraps an already-connected Consul client.
func NewConsulThreadStore(client *consulapi.Client, prefix string) *ConsulThreadStore {
	if prefix == "" {
		prefix = "loom/threads/"
	}
	return &ConsulThreadStore{kv: client.KV(), prefix: prefix}
}

func (s *ConsulThreadStore) key(id string) string { return s.prefix + id }

func (s *ConsulThreadStore) Save(thread *message.Thread) error {
	rec := etcdThreadRecord{Platform: thread.Platform, Messages: thread.Messages()}
	b, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("store: marshal thread: %w", err)
	}
	_, err = s.kv.Put(&consulapi.KVPair{Key: s.key(thread.ID), Value: b}, nil)
	if err != nil {
		return fmt.Errorf("store: consul put: %w", err)
	}
	return nil
}

func (s *ConsulThreadStore) Get(id string) (*message.Thread, error) {
	pair, _, err := s.kv.Get(s.key(id), nil)
	if err != nil {
		return nil, fmt.Errorf("store: consul get: %w", err)
	}
	if pair == nil {
		return nil, ErrNotFound
	}
	return decodeEtcdRecord(id, pair.Value)
}

func (s *ConsulThreadStore) FindByPlatform(key, value string) ([]*message.Thread, error) {
	pairs, _, err := s.kv.List(s.prefix, nil)
	if err != nil {
		return nil, fmt.Errorf("store: consul list: %w", err)
	}
	var out []*message.Thread
	for _, pair := range pairs {
		id := strings.TrimPrefix(pair.Key, s.prefix)
		t, err := decodeEtcdRecord(id, pair.Value)
		if err != nil {
			continue
		}
		if t.Platform[key] == value {
			out = append(out, t)
		}
	}
	return out, nil
}

func (s *ConsulThreadStore) GetByMessageID(messageID string) (*message.Thread, error) {
	pairs, _, err := s.kv.List(s.prefix, nil)
	if err != nil {
		return nil, fmt.Errorf("store: consul list: %w", err)
	}
	for _, pair := range pairs {
		id := strings.TrimPrefix(pair.Key, s.prefix)
		t, err := decodeEtcdRecord(id, pair.Value)
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
