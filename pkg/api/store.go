package api

import (
	"context"
	"encoding/json"
	"fmt"
)

// Store is the shared key-value context every node of a run reads from and
// writes to. Values should be JSON-serialisable; persistent backends return
// them in their decoded JSON form (numbers as float64, objects as
// map[string]any).
//
// Store errors are backend specific. The engine wraps them into its own
// error taxonomy.
type Store interface {
	Set(ctx context.Context, key string, value any) error
	Get(ctx context.Context, key string) (any, bool, error)
	Remove(ctx context.Context, key string) (any, bool, error)
	ContainsKey(ctx context.Context, key string) (bool, error)
	Keys(ctx context.Context) ([]string, error)
	Clear(ctx context.Context) error
	Len(ctx context.Context) (int, error)
}

// GetAs reads key and decodes the stored value into T through JSON.
func GetAs[T any](ctx context.Context, s Store, key string) (T, bool, error) {
	var out T
	v, ok, err := s.Get(ctx, key)
	if err != nil || !ok {
		return out, ok, err
	}
	if typed, isT := v.(T); isT {
		return typed, true, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return out, true, fmt.Errorf("encode value for %q: %w", key, err)
	}
	if err := json.Unmarshal(b, &out); err != nil {
		return out, true, fmt.Errorf("decode value for %q: %w", key, err)
	}
	return out, true, nil
}

// Snapshot copies every entry of s into a plain map.
func Snapshot(ctx context.Context, s Store) (map[string]any, error) {
	keys, err := s.Keys(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[string]any, len(keys))
	for _, k := range keys {
		v, ok, err := s.Get(ctx, k)
		if err != nil {
			return nil, err
		}
		if ok {
			out[k] = v
		}
	}
	return out, nil
}

// normalizeJSON returns v in the shape it would have after a JSON round
// trip, so values from different backends compare equal.
func normalizeJSON(v any) (any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, err
	}
	return out, nil
}
