// Package medium defines the string key-value storage the boundary cache
// persists its container into.
package medium

import (
	"context"
	"errors"
	"sync"
)

var ErrNotFound = errors.New("medium: key not found")

// UpdateFunc receives the current value (found=false when absent) and
// returns the value to store.
type UpdateFunc func(cur string, found bool) (string, error)

type Medium interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, val string) error
	Del(ctx context.Context, key string) error
	// Update is an atomic read-modify-write of one key.
	Update(ctx context.Context, key string, fn UpdateFunc) error
	Ping(ctx context.Context) error
	Close() error
}

// Memory is an in-process Medium. It is the default driver and the test double.
type Memory struct {
	mu   sync.Mutex
	data map[string]string
	// SetErr, when non-nil, is returned by Set and Update to simulate quota errors.
	SetErr error
}

func NewMemory() *Memory {
	return &Memory{data: map[string]string{}}
}

func (m *Memory) Get(ctx context.Context, key string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	if !ok {
		return "", ErrNotFound
	}
	return v, nil
}

func (m *Memory) Set(ctx context.Context, key, val string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SetErr != nil {
		return m.SetErr
	}
	m.data[key] = val
	return nil
}

func (m *Memory) Del(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

func (m *Memory) Update(ctx context.Context, key string, fn UpdateFunc) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.data[key]
	next, err := fn(cur, ok)
	if err != nil {
		return err
	}
	if m.SetErr != nil {
		return m.SetErr
	}
	m.data[key] = next
	return nil
}

func (m *Memory) Ping(ctx context.Context) error { return ctx.Err() }

func (m *Memory) Close() error { return nil }
