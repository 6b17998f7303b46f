// Package persist provides the durable single-slot storage behind the site
// store and the cross-context change signal that tells a store to reload.
//
// A slot is a named string value. Several processes (or several views of a
// Memory) may share one slot; each of them is a separate context. A write in
// one context is announced to subscribers in every other context, never to
// the writer itself.
package persist

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"sort"
	"sync"
)

// Errors
var (
	ErrInvalidKey    = errors.New("persist: invalid slot key")
	ErrQuotaExceeded = errors.New("persist: quota exceeded")
	ErrClosed        = errors.New("persist: storage closed")
)

// MaxKeyLength bounds slot key names.
const MaxKeyLength = 128

// File and directory permissions for on-disk backends.
const (
	FileMode = 0600
	DirMode  = 0700
)

// Storage reads and writes named slots.
type Storage interface {
	// Get returns the slot value and whether the slot exists.
	Get(key string) (string, bool, error)
	// Set replaces the slot value.
	Set(key, value string) error
}

// Notifier announces that the shared slot was changed by another context.
type Notifier interface {
	// Subscribe registers fn and returns a function that removes it.
	Subscribe(fn func()) (cancel func())
}

// ValidateKey checks that key is usable as a slot name on every backend.
// Keys are limited to ASCII letters, digits, '-', '_' and '.', and may not
// start with '.'.
func ValidateKey(key string) error {
	if key == "" {
		return fmt.Errorf("%w: empty", ErrInvalidKey)
	}
	if len(key) > MaxKeyLength {
		return fmt.Errorf("%w: %d characters exceeds maximum of %d", ErrInvalidKey, len(key), MaxKeyLength)
	}
	if key[0] == '.' {
		return fmt.Errorf("%w: cannot start with '.'", ErrInvalidKey)
	}
	for _, r := range key {
		if !isKeyChar(r) {
			return fmt.Errorf("%w: '%c' is not allowed", ErrInvalidKey, r)
		}
	}
	return nil
}

func isKeyChar(r rune) bool {
	return (r >= 'a' && r <= 'z') ||
		(r >= 'A' && r <= 'Z') ||
		(r >= '0' && r <= '9') ||
		r == '-' || r == '_' || r == '.'
}

// subscribers is a set of change callbacks.
type subscribers struct {
	mu   sync.Mutex
	next int
	fns  map[int]func()
}

func (s *subscribers) add(fn func()) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fns == nil {
		s.fns = make(map[int]func())
	}
	id := s.next
	s.next++
	s.fns[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.fns, id)
	}
}

// notify calls every subscriber outside the lock, in registration order.
func (s *subscribers) notify() {
	s.mu.Lock()
	ids := make([]int, 0, len(s.fns))
	for id := range s.fns {
		ids = append(ids, id)
	}
	s.mu.Unlock()

	sort.Ints(ids)
	for _, id := range ids {
		s.mu.Lock()
		fn, ok := s.fns[id]
		s.mu.Unlock()
		if ok {
			fn()
		}
	}
}

// digest identifies slot content without keeping a copy of it.
type digest [sha256.Size]byte

func digestOf(value string) digest {
	return sha256.Sum256([]byte(value))
}

// writeLog remembers the last value this context wrote or observed per
// slot, so watchers can tell external writes from echoes of their own.
type writeLog struct {
	mu   sync.Mutex
	seen map[string]digest
}

func (w *writeLog) recordWrite(key, value string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.seen == nil {
		w.seen = make(map[string]digest)
	}
	w.seen[key] = digestOf(value)
}

// external reports whether value is new to this context, and marks it seen.
func (w *writeLog) external(key, value string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.seen == nil {
		w.seen = make(map[string]digest)
	}
	d := digestOf(value)
	if prev, ok := w.seen[key]; ok && prev == d {
		return false
	}
	w.seen[key] = d
	return true
}
