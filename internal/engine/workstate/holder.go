// Package workstate holds the process-wide key to state map that producers
// update and a single consumer observes.
package workstate

import (
	"context"
	"errors"
	"maps"
	"sync"
)

// ErrAlreadyObserved is returned when a second consumer subscribes while the
// first is still active
var ErrAlreadyObserved = errors.New("workstate: states are already observed")

// Snapshot is the full key to state map after one mutation
type Snapshot[T any] map[string]T

// Holder is a concurrent keyed state store with an observable change stream.
// Every mutation produces one snapshot; snapshots are delivered in mutation
// order and none are dropped while an observer is attached.
type Holder[T any] struct {
	mu       sync.Mutex
	states   map[string]T
	pending  []Snapshot[T]
	wake     chan struct{}
	observed bool
}

func New[T any]() *Holder[T] {
	return &Holder[T]{
		states: make(map[string]T),
	}
}

// UpdateState sets the entry for key, or removes it when state is nil
func (h *Holder[T]) UpdateState(key string, state *T) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if state == nil {
		if _, ok := h.states[key]; !ok {
			return
		}
		delete(h.states, key)
	} else {
		h.states[key] = *state
	}
	h.publishLocked()
}

// Set is UpdateState for a non-nil value
func (h *Holder[T]) Set(key string, state T) {
	h.UpdateState(key, &state)
}

// Clear removes the entry for key
func (h *Holder[T]) Clear(key string) {
	h.UpdateState(key, nil)
}

// ClearIf removes the entry for key only while match reports true for it, so
// a newer state set by a producer in the meantime survives
func (h *Holder[T]) ClearIf(key string, match func(T) bool) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	cur, ok := h.states[key]
	if !ok || !match(cur) {
		return false
	}
	delete(h.states, key)
	h.publishLocked()
	return true
}

func (h *Holder[T]) Get(key string) (T, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	s, ok := h.states[key]
	return s, ok
}

func (h *Holder[T]) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.states)
}

// Snapshot returns a copy of the current states
func (h *Holder[T]) Snapshot() Snapshot[T] {
	h.mu.Lock()
	defer h.mu.Unlock()
	return maps.Clone(h.states)
}

func (h *Holder[T]) publishLocked() {
	if !h.observed {
		return
	}
	h.pending = append(h.pending, maps.Clone(h.states))
	select {
	case h.wake <- struct{}{}:
	default:
	}
}

// Observe subscribes to state changes. The first snapshot is the current
// state. The channel is closed when ctx is done, after which Observe may be
// called again.
func (h *Holder[T]) Observe(ctx context.Context) (<-chan Snapshot[T], error) {
	h.mu.Lock()
	if h.observed {
		h.mu.Unlock()
		return nil, ErrAlreadyObserved
	}
	h.observed = true
	h.wake = make(chan struct{}, 1)
	h.pending = []Snapshot[T]{maps.Clone(h.states)}
	h.wake <- struct{}{}
	wake := h.wake
	h.mu.Unlock()

	out := make(chan Snapshot[T])
	go func() {
		defer func() {
			h.mu.Lock()
			h.observed = false
			h.pending = nil
			h.mu.Unlock()
			close(out)
		}()

		for {
			select {
			case <-ctx.Done():
				return
			case <-wake:
			}

			for {
				h.mu.Lock()
				if len(h.pending) == 0 {
					h.mu.Unlock()
					break
				}
				next := h.pending[0]
				h.pending = h.pending[1:]
				h.mu.Unlock()

				select {
				case out <- next:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}
