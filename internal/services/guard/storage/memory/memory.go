// Package memory provides an in-process Store for tests and ephemeral runs.
package memory

import (
	"context"
	"sync"

	"github.com/omnisign/sessionguard/internal/services/guard/storage"
)

// Store keeps namespaced entries in a map.
type Store struct {
	namespace string

	mu      sync.RWMutex
	entries map[string]string
}

// New returns an empty store for namespace.
func New(namespace string) *Store {
	return &Store{
		namespace: namespace,
		entries:   make(map[string]string),
	}
}

// Get returns the value stored under key.
func (s *Store) Get(ctx context.Context, key storage.Key) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	value, ok := s.entries[storage.QualifiedName(s.namespace, key)]
	return value, ok, nil
}

// Set writes value under key.
func (s *Store) Set(ctx context.Context, key storage.Key, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[storage.QualifiedName(s.namespace, key)] = value
	return nil
}

// Remove deletes key. Missing keys are not an error.
func (s *Store) Remove(ctx context.Context, key storage.Key) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, storage.QualifiedName(s.namespace, key))
	return nil
}

// ResetAll deletes every guard key in this namespace.
func (s *Store) ResetAll(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, key := range storage.Keys() {
		delete(s.entries, storage.QualifiedName(s.namespace, key))
	}
	return nil
}

// Snapshot copies every stored entry, including keys the guard does not own.
func (s *Store) Snapshot() map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]string, len(s.entries))
	for k, v := range s.entries {
		out[k] = v
	}
	return out
}

// Put writes a raw qualified entry. Tests use it to plant foreign or corrupt data.
func (s *Store) Put(name, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[name] = value
}
