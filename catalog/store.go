package catalog

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/com-junkawasaki/kotoba-sub011/errors"
)

// Bucket names used by the catalog. A Store implementation maps them onto
// whatever namespacing it has, for example JetStream KV buckets.
const (
	BucketRules      = "kotoba-rules"
	BucketStrategies = "kotoba-strategies"
)

// Store is the persistence port of the catalog: a byte-valued key-value
// store partitioned into buckets. Get returns an error wrapping
// errors.ErrKeyNotFound for missing keys.
type Store interface {
	Put(ctx context.Context, bucket, key string, value []byte) error
	Get(ctx context.Context, bucket, key string) ([]byte, error)
	Keys(ctx context.Context, bucket string) ([]string, error)
}

// MemStore is an in-process Store for embedded use and tests.
type MemStore struct {
	mu      sync.RWMutex
	buckets map[string]map[string][]byte
}

var _ Store = (*MemStore)(nil)

// NewMemStore returns an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{buckets: make(map[string]map[string][]byte)}
}

// Put stores a value, creating the bucket on first use.
func (m *MemStore) Put(_ context.Context, bucket, key string, value []byte) error {
	if bucket == "" || key == "" {
		return errors.WrapInvalid(errors.ErrInvalidData, "MemStore", "Put",
			"put with empty bucket or key")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.buckets[bucket]
	if !ok {
		b = make(map[string][]byte)
		m.buckets[bucket] = b
	}
	b[key] = append([]byte(nil), value...)
	return nil
}

// Get loads a value.
func (m *MemStore) Get(_ context.Context, bucket, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.buckets[bucket]
	if !ok {
		return nil, errors.Wrap(errors.ErrKeyNotFound, "MemStore", "Get",
			fmt.Sprintf("load %s/%s", bucket, key))
	}
	value, ok := b[key]
	if !ok {
		return nil, errors.Wrap(errors.ErrKeyNotFound, "MemStore", "Get",
			fmt.Sprintf("load %s/%s", bucket, key))
	}
	return append([]byte(nil), value...), nil
}

// Keys lists the keys of a bucket in sorted order.
func (m *MemStore) Keys(_ context.Context, bucket string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b := m.buckets[bucket]
	keys := make([]string, 0, len(b))
	for k := range b {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}
