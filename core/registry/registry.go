// Package registry maps opaque string identifiers to live platform handles.
//
// Each facade owns one registry per handle kind. Identifiers are handed out
// to the remote scripting client and are only valid while the backing handle
// is registered: lookups after removal report not-found and never touch a
// dead handle.
package registry

import (
	"hash/fnv"
	"strconv"
	"sync"

	"github.com/google/uuid"

	"github.com/khadas/scriptbridge/core/withlock"
)

type Registry[T any] struct {
	prefix  string
	mu      sync.Mutex
	entries map[string]T
}

// New returns an empty registry whose identifiers carry the given prefix,
// e.g. New[Transform]("TRANSFORM") hands out "TRANSFORM:<digits>".
func New[T any](prefix string) *Registry[T] {
	return &Registry[T]{
		prefix:  prefix,
		entries: make(map[string]T),
	}
}

func (r *Registry[T]) newIDLocked() string {
	for {
		h := fnv.New32a()
		u := uuid.New()
		h.Write(u[:])
		id := r.prefix + ":" + strconv.FormatUint(uint64(h.Sum32()), 10)
		if _, exists := r.entries[id]; !exists {
			return id
		}
	}
}

// Add registers a handle and returns its fresh identifier.
func (r *Registry[T]) Add(handle T) string {
	var id string
	withlock.Do(&r.mu, func() {
		id = r.newIDLocked()
		r.entries[id] = handle
	})
	return id
}

// Get looks up a live handle by identifier.
func (r *Registry[T]) Get(id string) (T, bool) {
	var handle T
	var ok bool
	withlock.Do(&r.mu, func() {
		handle, ok = r.entries[id]
	})
	return handle, ok
}

// Remove unregisters an identifier, returning the handle it referenced.
// Removing an unknown identifier is a no-op reported as not-found.
func (r *Registry[T]) Remove(id string) (T, bool) {
	var handle T
	var ok bool
	withlock.Do(&r.mu, func() {
		handle, ok = r.entries[id]
		if ok {
			delete(r.entries, id)
		}
	})
	return handle, ok
}

// Drain removes every entry and returns the handles, for facade shutdown.
func (r *Registry[T]) Drain() []T {
	var handles []T
	withlock.Do(&r.mu, func() {
		handles = make([]T, 0, len(r.entries))
		for id, h := range r.entries {
			handles = append(handles, h)
			delete(r.entries, id)
		}
	})
	return handles
}

// Len reports the number of live entries.
func (r *Registry[T]) Len() int {
	var n int
	withlock.Do(&r.mu, func() {
		n = len(r.entries)
	})
	return n
}
