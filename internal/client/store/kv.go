package store

import (
	"context"
	"encoding/json"
)

// KV is the plaintext key-value surface over the metadata table. Values are
// JSON. Secrets must be stored as cryptox envelopes, never raw.
type KV struct {
	s *Store
}

func (s *Store) KV() *KV { return &KV{s: s} }

func (kv *KV) Read(ctx context.Context, key string, v any) (found bool, err error) {
	err = kv.s.View(ctx, func(ctx context.Context, tx *Tx) error {
		found, err = tx.ReadValue(ctx, key, v)
		return err
	})
	return found, err
}

func (kv *KV) Write(ctx context.Context, key string, v any) error {
	return kv.s.Write(ctx, func(ctx context.Context, tx *Tx) error {
		return tx.WriteValue(ctx, key, v)
	})
}

// ReadMulti returns the raw JSON of the keys that exist.
func (kv *KV) ReadMulti(ctx context.Context, keys []string) (map[string]json.RawMessage, error) {
	out := make(map[string]json.RawMessage, len(keys))
	err := kv.s.View(ctx, func(ctx context.Context, tx *Tx) error {
		m, err := tx.meta.GetMulti(ctx, keys)
		if err != nil {
			return storageErr(err)
		}
		for k, v := range m {
			out[k] = json.RawMessage(v)
		}
		return nil
	})
	return out, err
}

// WriteMulti stores all pairs atomically.
func (kv *KV) WriteMulti(ctx context.Context, values map[string]any) error {
	return kv.s.Write(ctx, func(ctx context.Context, tx *Tx) error {
		for k, v := range values {
			if err := tx.WriteValue(ctx, k, v); err != nil {
				return err
			}
		}
		return nil
	})
}

func (kv *KV) Remove(ctx context.Context, key string) error {
	return kv.s.Write(ctx, func(ctx context.Context, tx *Tx) error {
		return tx.RemoveValue(ctx, key)
	})
}

func (kv *KV) RemoveMulti(ctx context.Context, keys []string) error {
	return kv.s.Write(ctx, func(ctx context.Context, tx *Tx) error {
		return storageErr(tx.meta.DeleteMulti(ctx, keys))
	})
}

func (kv *KV) Clear(ctx context.Context) error {
	return kv.s.Write(ctx, func(ctx context.Context, tx *Tx) error {
		return storageErr(tx.meta.Clear(ctx))
	})
}

func (kv *KV) GetAllKeys(ctx context.Context) (keys []string, err error) {
	err = kv.s.View(ctx, func(ctx context.Context, tx *Tx) error {
		keys, err = tx.meta.Keys(ctx)
		return storageErr(err)
	})
	return keys, err
}
