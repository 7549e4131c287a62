// Package storage defines the guard's persisted key space.
//
// Store is the raw namespaced key-value contract; Keyspace layers typed
// accessors on top and reports undecodable values as ErrCorrupt instead of
// guessing. Implementations live in storage/sqlite and storage/memory.
package storage
