// Package store is the page-local key-value store used by page mounts. Values
// are partitioned per browser client and never pass through the router.
package store

import (
	"context"
	"sync"
)

const TopicKey = "la_topic"

type Store interface {
	Get(key string) (string, bool)
	Set(key string, value string)
	Delete(key string)
}

type Memory struct {
	mu      sync.RWMutex
	clients map[string]map[string]string
}

func NewMemory() *Memory {
	return &Memory{clients: make(map[string]map[string]string)}
}

// Client returns the store for one browser client.
func (m *Memory) Client(clientID string) Store {
	return &bucket{memory: m, clientID: clientID}
}

type bucket struct {
	memory   *Memory
	clientID string
}

func (b *bucket) Get(key string) (string, bool) {
	b.memory.mu.RLock()
	defer b.memory.mu.RUnlock()

	value, ok := b.memory.clients[b.clientID][key]
	return value, ok
}

func (b *bucket) Set(key string, value string) {
	b.memory.mu.Lock()
	defer b.memory.mu.Unlock()

	values, ok := b.memory.clients[b.clientID]
	if !ok {
		values = make(map[string]string)
		b.memory.clients[b.clientID] = values
	}
	values[key] = value
}

func (b *bucket) Delete(key string) {
	b.memory.mu.Lock()
	defer b.memory.mu.Unlock()

	delete(b.memory.clients[b.clientID], key)
}

type contextKey struct{}

func WithStore(ctx context.Context, s Store) context.Context {
	return context.WithValue(ctx, contextKey{}, s)
}

// FromContext returns the store bound to ctx, or a throwaway store when none is.
func FromContext(ctx context.Context) Store {
	if s, ok := ctx.Value(contextKey{}).(Store); ok && s != nil {
		return s
	}
	return NewMemory().Client("")
}

// GetOr returns the stored value for key, or fallback when it is missing or blank.
func GetOr(s Store, key string, fallback string) string {
	value, ok := s.Get(key)
	if !ok || value == "" {
		return fallback
	}
	return value
}
