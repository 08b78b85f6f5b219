// Package storage provides pluggable backend interfaces for storage operations.
package storage

import "context"

// Store is the pluggable backend interface for storage operations.
//
// The comment store keeps one document per recording under a key derived from
// the recording name. Backends only move bytes; encoding stays with the caller.
//
// The Store interface uses a simple key-value pattern where:
//   - Keys are strings (hierarchical paths supported via "/" separators)
//   - Values are binary data ([]byte)
//   - Operations are context-aware for cancellation and timeouts
//
// Implementations:
//   - filestore.Store: one file per key below a directory
//   - kvstore.Store: NATS JetStream KeyValue bucket
//
// Thread Safety:
// All Store implementations must be safe for concurrent use from multiple goroutines.
//
// Example Usage:
//
//	store, err := filestore.New("./annotations")
//
//	err = store.Put(ctx, "rec-0412_comments.json", data)
//	data, err := store.Get(ctx, "rec-0412_comments.json")
//	keys, err := store.List(ctx, "rec-")
type Store interface {
	// Put stores data at the key, replacing any previous value.
	Put(ctx context.Context, key string, data []byte) error

	// Get retrieves the data stored at the key.
	// Returns an error wrapping errors.ErrKeyNotFound if the key does not exist.
	Get(ctx context.Context, key string) ([]byte, error)

	// List returns all keys starting with prefix, in lexicographic order.
	// Returns an empty slice if no keys match the prefix.
	List(ctx context.Context, prefix string) ([]string, error)

	// Delete removes the data at the specified key.
	// Returns nil if the key doesn't exist (idempotent operation).
	Delete(ctx context.Context, key string) error
}
