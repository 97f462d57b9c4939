package storage

import "context"

// ObjectStorage persists raw artifact bytes outside the primary datastore and
// returns a location the byte stream can later be retrieved from.
type ObjectStorage interface {
	Put(ctx context.Context, key string, data []byte, contentType string) (string, error)
}
