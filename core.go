package main

import (
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
)

var ErrorNoSuchKey = errors.New("no such key")

// ErrPoisoned is handed to the fatal handler when a panic escaped a critical
// section. It is never returned to callers of the Store.
var ErrPoisoned = errors.New("store poisoned by panic in critical section")

// PutResult reports whether Put inserted a new key or replaced an existing one.
type PutResult int

const (
	Created PutResult = iota + 1
	Updated
)

func (r PutResult) String() string {
	switch r {
	case Created:
		return "created"
	case Updated:
		return "updated"
	}
	return "unknown"
}

// Store is a string map guarded by a single reader/writer lock. Every
// operation is exactly one critical section.
type Store struct {
	mu sync.RWMutex
	m  map[string]string

	poisoned atomic.Bool
	fatal    func(error)
}

type StoreOption func(*Store)

// WithFatalHandler replaces the handler run when the store is poisoned.
// The default logs and exits the process.
func WithFatalHandler(fn func(error)) StoreOption {
	return func(s *Store) {
		s.fatal = fn
	}
}

func NewStore(opts ...StoreOption) *Store {
	s := &Store{
		m: make(map[string]string),
		fatal: func(err error) {
			Errorf("%v", err)
			os.Exit(1)
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) List() map[string]string {
	s.rlock()
	defer s.runlock()

	out := make(map[string]string, len(s.m))
	for k, v := range s.m {
		out[k] = v
	}
	return out
}

func (s *Store) Get(key string) (string, error) {
	s.rlock()
	defer s.runlock()

	value, ok := s.m[key]
	if !ok {
		return "", ErrorNoSuchKey
	}

	return value, nil
}

func (s *Store) Put(key, value string) PutResult {
	s.lock()
	defer s.unlock()

	_, exists := s.m[key]
	s.m[key] = value

	if exists {
		return Updated
	}
	return Created
}

// Delete removes key and returns the value it held.
func (s *Store) Delete(key string) (string, error) {
	s.lock()
	defer s.unlock()

	value, ok := s.m[key]
	if !ok {
		return "", ErrorNoSuchKey
	}
	delete(s.m, key)

	return value, nil
}

func (s *Store) Len() int {
	s.rlock()
	defer s.runlock()
	return len(s.m)
}

func (s *Store) lock() {
	s.mu.Lock()
	if s.poisoned.Load() {
		s.mu.Unlock()
		s.die(ErrPoisoned)
	}
}

func (s *Store) rlock() {
	s.mu.RLock()
	if s.poisoned.Load() {
		s.mu.RUnlock()
		s.die(ErrPoisoned)
	}
}

// unlock and runlock must be deferred directly so recover sees a panic
// raised inside the critical section.
func (s *Store) unlock() {
	r := recover()
	if r != nil {
		s.poisoned.Store(true)
	}
	s.mu.Unlock()
	if r != nil {
		s.die(fmt.Errorf("%w: %v", ErrPoisoned, r))
	}
}

func (s *Store) runlock() {
	r := recover()
	if r != nil {
		s.poisoned.Store(true)
	}
	s.mu.RUnlock()
	if r != nil {
		s.die(fmt.Errorf("%w: %v", ErrPoisoned, r))
	}
}

// die runs the fatal handler. A handler that returns does not resume the
// operation.
func (s *Store) die(err error) {
	s.fatal(err)
	panic(err)
}
