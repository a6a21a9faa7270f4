// Package metadata is the key-value table of the client database. It holds
// the sync checkpoint, the session, the device id and the key ciphers.
package metadata

import (
	"context"
)

type Repository interface {
	Get(ctx context.Context, key string) ([]byte, error)
	GetMulti(ctx context.Context, keys []string) (map[string][]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	DeleteMulti(ctx context.Context, keys []string) error
	Keys(ctx context.Context) ([]string, error)
	Clear(ctx context.Context) error
}
