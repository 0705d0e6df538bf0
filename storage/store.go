package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/c360studio/shopfloor/events"
)

// Store provides shop-floor entity storage operations backed by NATS KV.
// It is the sole writer of job, cutlist, and material state; every mutation
// goes through it and ends with a notification to connected terminals.
type Store struct {
	jobs       jetstream.KeyValue
	cutlists   jetstream.KeyValue
	materials  jetstream.KeyValue
	stock      jetstream.KeyValue
	hardware   jetstream.KeyValue
	rods       jetstream.KeyValue
	checklists jetstream.KeyValue

	notifier events.Publisher
	logger   *slog.Logger
}

// NewStore creates a new Store with the given JetStream context.
// It creates the necessary KV buckets if they don't exist.
func NewStore(ctx context.Context, js jetstream.JetStream, notifier events.Publisher, logger *slog.Logger) (*Store, error) {
	if notifier == nil {
		notifier = events.NopPublisher{}
	}
	if logger == nil {
		logger = slog.Default()
	}

	s := &Store{notifier: notifier, logger: logger}

	buckets := []struct {
		name string
		kv   *jetstream.KeyValue
	}{
		{BucketJobs, &s.jobs},
		{BucketCutlists, &s.cutlists},
		{BucketMaterials, &s.materials},
		{BucketStock, &s.stock},
		{BucketHardware, &s.hardware},
		{BucketRods, &s.rods},
		{BucketChecklists, &s.checklists},
	}
	for _, b := range buckets {
		kv, err := getOrCreateBucket(ctx, js, b.name)
		if err != nil {
			return nil, fmt.Errorf("create %s bucket: %w", strings.ToLower(b.name), err)
		}
		*b.kv = kv
	}

	return s, nil
}

func getOrCreateBucket(ctx context.Context, js jetstream.JetStream, name string) (jetstream.KeyValue, error) {
	kv, err := js.KeyValue(ctx, name)
	if err == nil {
		return kv, nil
	}
	// Bucket doesn't exist, create it
	return js.CreateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:      name,
		Description: fmt.Sprintf("Shopfloor %s storage", strings.ToLower(name)),
		History:     5, // Keep last 5 revisions
	})
}

// isNotFound checks if an error indicates a key was not found.
func isNotFound(err error) bool {
	return errors.Is(err, jetstream.ErrKeyNotFound)
}

// getEntity loads and unmarshals one entity from a bucket.
func getEntity[T any](ctx context.Context, kv jetstream.KeyValue, key string) (*T, error) {
	entry, err := kv.Get(ctx, key)
	if err != nil {
		if isNotFound(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get %s: %w", key, err)
	}

	var v T
	if err := json.Unmarshal(entry.Value(), &v); err != nil {
		return nil, fmt.Errorf("unmarshal %s: %w", key, err)
	}
	return &v, nil
}

// putEntity marshals and writes one entity into a bucket.
func putEntity[T any](ctx context.Context, kv jetstream.KeyValue, key string, v *T) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", key, err)
	}
	if _, err := kv.Put(ctx, key, data); err != nil {
		return fmt.Errorf("store %s: %w", key, err)
	}
	return nil
}

// listEntities loads every entity in a bucket. Entries that fail to load or
// decode are skipped.
func listEntities[T any](ctx context.Context, kv jetstream.KeyValue) ([]*T, error) {
	keys, err := kv.Keys(ctx)
	if err != nil {
		if errors.Is(err, jetstream.ErrNoKeysFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("list keys: %w", err)
	}

	out := make([]*T, 0, len(keys))
	for _, key := range keys {
		entry, err := kv.Get(ctx, key)
		if err != nil {
			continue
		}
		var v T
		if err := json.Unmarshal(entry.Value(), &v); err != nil {
			continue
		}
		out = append(out, &v)
	}
	return out, nil
}
