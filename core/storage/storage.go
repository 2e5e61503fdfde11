// Package storage defines the key-value persistence contract used by the
// engine and typed helpers around it.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
)

// Keys of the persisted collections.
const (
	KeyReservations  = "smartshift_reservations"
	KeyActiveSession = "smartshift_active_session"
	KeyHistory       = "smartshift_charging_history"
)

// ErrNotFound is returned by Get when the key holds no value.
var ErrNotFound = errors.New("storage: key not found")

// Store is a durable string-keyed store of JSON documents.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}

// Op is one write of a batch. A nil Value deletes the key.
type Op struct {
	Key   string
	Value []byte
}

// SetOp returns an Op storing v as JSON under key.
func SetOp[T any](key string, v T) (Op, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return Op{}, fmt.Errorf("encode %s: %w", key, err)
	}
	return Op{Key: key, Value: raw}, nil
}

// DeleteOp returns an Op removing key.
func DeleteOp(key string) Op { return Op{Key: key} }

// Batcher is implemented by stores that apply several writes atomically.
type Batcher interface {
	Apply(ctx context.Context, ops []Op) error
}

// Apply writes ops through s. Stores implementing Batcher apply them all or
// none. Other stores get the sets first, in order, then the deletes, and the
// first failure stops the batch so a record is never removed before its
// successor is stored.
func Apply(ctx context.Context, s Store, ops []Op) error {
	if b, ok := s.(Batcher); ok {
		return b.Apply(ctx, ops)
	}
	for _, op := range ordered(ops) {
		var err error
		if op.Value == nil {
			err = s.Delete(ctx, op.Key)
		} else {
			err = s.Set(ctx, op.Key, op.Value)
		}
		if err != nil {
			return fmt.Errorf("write %s: %w", op.Key, err)
		}
	}
	return nil
}

func ordered(ops []Op) []Op {
	out := make([]Op, 0, len(ops))
	for _, op := range ops {
		if op.Value != nil {
			out = append(out, op)
		}
	}
	for _, op := range ops {
		if op.Value == nil {
			out = append(out, op)
		}
	}
	return out
}

// Load decodes the value stored under key into a T. A missing or undecodable
// value yields def; only backend failures are returned as errors.
func Load[T any](ctx context.Context, s Store, key string, def T) (T, bool, error) {
	raw, err := s.Get(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return def, false, nil
	}
	if err != nil {
		return def, false, fmt.Errorf("load %s: %w", key, err)
	}
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return def, false, nil
	}
	return v, true, nil
}

// Save encodes v as JSON and stores it under key.
func Save[T any](ctx context.Context, s Store, key string, v T) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	if err := s.Set(ctx, key, raw); err != nil {
		return fmt.Errorf("save %s: %w", key, err)
	}
	return nil
}

// MemoryStore keeps values in process memory. It is the default backend and
// the one used by tests.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: map[string][]byte{}}
}

func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.data[key]
	if !ok {
		return nil, ErrNotFound
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, nil
}

func (s *MemoryStore) Set(_ context.Context, key string, value []byte) error {
	cp := make([]byte, len(value))
	copy(cp, value)
	s.mu.Lock()
	s.data[key] = cp
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	delete(s.data, key)
	s.mu.Unlock()
	return nil
}

// Apply writes all ops under one lock.
func (s *MemoryStore) Apply(_ context.Context, ops []Op) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, op := range ops {
		if op.Value == nil {
			delete(s.data, op.Key)
			continue
		}
		cp := make([]byte, len(op.Value))
		copy(cp, op.Value)
		s.data[op.Key] = cp
	}
	return nil
}

// Keys lists the stored keys in no particular order.
func (s *MemoryStore) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.data))
	for k := range s.data {
		out = append(out, k)
	}
	return out
}
