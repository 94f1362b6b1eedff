package storage

import "context"

// Backend is durable key-value storage for persisted session records and
// store snapshots. Persisted data is shared with other processes and must
// be revalidated by the caller on restore.
type Backend interface {
	Save(ctx context.Context, key string, data []byte) error
	Load(ctx context.Context, key string) ([]byte, bool, error)
	Delete(ctx context.Context, key string) error
}
