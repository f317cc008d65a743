package natsbus

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/com-junkawasaki/kotoba-sub011/catalog"
	"github.com/com-junkawasaki/kotoba-sub011/errors"
)

// defaultKVTimeout bounds each KV operation when the caller's context has
// no deadline of its own.
const defaultKVTimeout = 5 * time.Second

// KVCatalogStore implements catalog.Store over JetStream key-value
// buckets. Catalog buckets map onto KV buckets of the same name, created
// on first use; keys are escaped so refs like "sha256:..." survive the KV
// key character set.
type KVCatalogStore struct {
	client  *Client
	logger  *slog.Logger
	timeout time.Duration

	mu      sync.RWMutex
	buckets map[string]jetstream.KeyValue
}

var _ catalog.Store = (*KVCatalogStore)(nil)

// KVStoreOption is a functional option for configuring the KVCatalogStore.
type KVStoreOption func(*KVCatalogStore)

// WithKVTimeout sets the per-operation timeout. Zero disables the bound.
func WithKVTimeout(d time.Duration) KVStoreOption {
	return func(s *KVCatalogStore) {
		s.timeout = d
	}
}

// NewKVCatalogStore builds a store over a client. A nil logger falls back
// to slog.Default().
func NewKVCatalogStore(client *Client, logger *slog.Logger, opts ...KVStoreOption) (*KVCatalogStore, error) {
	if client == nil {
		return nil, errors.WrapInvalid(errors.ErrInvalidData, "KVCatalogStore", "NewKVCatalogStore",
			"build store without client")
	}
	if logger == nil {
		logger = slog.Default()
	}

	s := &KVCatalogStore{
		client:  client,
		logger:  logger,
		timeout: defaultKVTimeout,
		buckets: make(map[string]jetstream.KeyValue),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *KVCatalogStore) applyTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout > 0 {
		return context.WithTimeout(ctx, s.timeout)
	}
	return ctx, func() {}
}

// bucket returns the KV bucket handle for a catalog bucket, creating the
// bucket on first use.
func (s *KVCatalogStore) bucket(ctx context.Context, name string) (jetstream.KeyValue, error) {
	s.mu.RLock()
	b, ok := s.buckets[name]
	s.mu.RUnlock()
	if ok {
		return b, nil
	}

	b, err := s.client.CreateKeyValueBucket(ctx, jetstream.KeyValueConfig{
		Bucket:      name,
		Description: "kotoba catalog bucket",
	})
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.buckets[name] = b
	s.mu.Unlock()
	return b, nil
}

// Put stores a value. Catalog payloads are content-addressed, so last
// writer wins is safe for them; name index keys rebind under the catalog's
// own duplicate check.
func (s *KVCatalogStore) Put(ctx context.Context, bucket, key string, value []byte) error {
	if bucket == "" || key == "" {
		return errors.WrapInvalid(errors.ErrInvalidData, "KVCatalogStore", "Put",
			"put with empty bucket or key")
	}
	ctx, cancel := s.applyTimeout(ctx)
	defer cancel()

	b, err := s.bucket(ctx, bucket)
	if err != nil {
		return errors.WrapTransient(err, "KVCatalogStore", "Put",
			fmt.Sprintf("open bucket %s", bucket))
	}

	if _, err := b.Put(ctx, encodeKVKey(key), value); err != nil {
		s.client.metrics.recordError("kv_put")
		return errors.WrapTransient(err, "KVCatalogStore", "Put",
			fmt.Sprintf("store %s/%s", bucket, key))
	}

	s.logger.Debug("stored catalog entry", "bucket", bucket, "key", key, "bytes", len(value))
	return nil
}

// Get loads a value. Missing keys wrap errors.ErrKeyNotFound.
func (s *KVCatalogStore) Get(ctx context.Context, bucket, key string) ([]byte, error) {
	ctx, cancel := s.applyTimeout(ctx)
	defer cancel()

	b, err := s.bucket(ctx, bucket)
	if err != nil {
		return nil, errors.WrapTransient(err, "KVCatalogStore", "Get",
			fmt.Sprintf("open bucket %s", bucket))
	}

	entry, err := b.Get(ctx, encodeKVKey(key))
	if err != nil {
		if stderrors.Is(err, jetstream.ErrKeyNotFound) {
			return nil, errors.Wrap(errors.ErrKeyNotFound, "KVCatalogStore", "Get",
				fmt.Sprintf("load %s/%s", bucket, key))
		}
		s.client.metrics.recordError("kv_get")
		return nil, errors.WrapTransient(err, "KVCatalogStore", "Get",
			fmt.Sprintf("load %s/%s", bucket, key))
	}
	return entry.Value(), nil
}

// Keys lists the keys of a bucket in sorted order. Keys another writer put
// outside the escape scheme are skipped with a warning.
func (s *KVCatalogStore) Keys(ctx context.Context, bucket string) ([]string, error) {
	ctx, cancel := s.applyTimeout(ctx)
	defer cancel()

	b, err := s.bucket(ctx, bucket)
	if err != nil {
		return nil, errors.WrapTransient(err, "KVCatalogStore", "Keys",
			fmt.Sprintf("open bucket %s", bucket))
	}

	lister, err := b.ListKeys(ctx)
	if err != nil {
		if stderrors.Is(err, jetstream.ErrNoKeysFound) {
			return []string{}, nil
		}
		s.client.metrics.recordError("kv_keys")
		return nil, errors.WrapTransient(err, "KVCatalogStore", "Keys",
			fmt.Sprintf("list %s", bucket))
	}

	keys := make([]string, 0)
	for k := range lister.Keys() {
		decoded, err := decodeKVKey(k)
		if err != nil {
			s.logger.Warn("skip foreign key in catalog bucket",
				"bucket", bucket, "key", k, "error", err)
			continue
		}
		keys = append(keys, decoded)
	}
	sort.Strings(keys)
	return keys, nil
}

// kvKeyEscape introduces a two-digit hex escape in an encoded key. It is a
// legal KV key character that never appears unescaped in encoded output,
// which keeps the mapping reversible.
const kvKeyEscape = '='

// encodeKVKey maps an arbitrary catalog key onto the JetStream KV key
// alphabet. Bytes outside [-/_.a-zA-Z0-9] become "=XX" hex escapes, as do
// leading and trailing dots, which KV keys cannot carry.
func encodeKVKey(key string) string {
	var b strings.Builder
	b.Grow(len(key))
	for i := 0; i < len(key); i++ {
		c := key[i]
		edgeDot := c == '.' && (i == 0 || i == len(key)-1)
		if c == kvKeyEscape || edgeDot || !isKVKeyChar(c) {
			fmt.Fprintf(&b, "%c%02X", kvKeyEscape, c)
			continue
		}
		b.WriteByte(c)
	}
	return b.String()
}

// decodeKVKey reverses encodeKVKey.
func decodeKVKey(key string) (string, error) {
	if !strings.ContainsRune(key, kvKeyEscape) {
		return key, nil
	}
	var b strings.Builder
	b.Grow(len(key))
	for i := 0; i < len(key); i++ {
		c := key[i]
		if c != kvKeyEscape {
			b.WriteByte(c)
			continue
		}
		if i+2 >= len(key) {
			return "", errors.WrapInvalid(errors.ErrInvalidData, "KVCatalogStore", "decodeKVKey",
				fmt.Sprintf("truncated escape in %q", key))
		}
		v, err := strconv.ParseUint(key[i+1:i+3], 16, 8)
		if err != nil {
			return "", errors.WrapInvalid(errors.ErrInvalidData, "KVCatalogStore", "decodeKVKey",
				fmt.Sprintf("bad escape in %q", key))
		}
		b.WriteByte(byte(v))
		i += 2
	}
	return b.String(), nil
}

func isKVKeyChar(c byte) bool {
	switch {
	case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		return true
	case c == '-' || c == '/' || c == '_' || c == '.' || c == '=':
		return true
	}
	return false
}
