package main

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetMissingKey(t *testing.T) {
	s := NewStore()

	_, err := s.Get("missing")
	assert.ErrorIs(t, err, ErrorNoSuchKey)
}

func TestPutThenGet(t *testing.T) {
	s := NewStore()

	assert.Equal(t, Created, s.Put("name", "Josh"))

	value, err := s.Get("name")
	require.NoError(t, err)
	assert.Equal(t, "Josh", value)
}

func TestPutOverwrite(t *testing.T) {
	s := NewStore()

	assert.Equal(t, Created, s.Put("foo", "bar"))
	assert.Equal(t, Updated, s.Put("foo", "baz"))

	value, err := s.Get("foo")
	require.NoError(t, err)
	assert.Equal(t, "baz", value)
}

func TestPutEmptyValue(t *testing.T) {
	s := NewStore()

	s.Put("k", "")
	value, err := s.Get("k")
	require.NoError(t, err)
	assert.Equal(t, "", value)
	assert.Equal(t, Updated, s.Put("k", "v"))
}

func TestDeleteReturnsRemovedValue(t *testing.T) {
	s := NewStore()
	s.Put("a", "1")

	value, err := s.Delete("a")
	require.NoError(t, err)
	assert.Equal(t, "1", value)

	_, err = s.Get("a")
	assert.ErrorIs(t, err, ErrorNoSuchKey)
	assert.Equal(t, 0, s.Len())
}

func TestDeleteMissingKey(t *testing.T) {
	s := NewStore()
	s.Put("b", "2")

	_, err := s.Delete("a")
	assert.ErrorIs(t, err, ErrorNoSuchKey)
	assert.Equal(t, map[string]string{"b": "2"}, s.List())
}

func TestList(t *testing.T) {
	s := NewStore()
	assert.Empty(t, s.List())

	s.Put("b", "2")
	s.Put("a", "1")
	assert.Equal(t, map[string]string{"a": "1", "b": "2"}, s.List())

	_, err := s.Delete("a")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"b": "2"}, s.List())
}

func TestListReturnsCopy(t *testing.T) {
	s := NewStore()
	s.Put("a", "1")

	snapshot := s.List()
	snapshot["a"] = "changed"
	snapshot["b"] = "new"

	s.Put("c", "3")

	assert.Equal(t, map[string]string{"a": "changed", "b": "new"}, snapshot)
	assert.Equal(t, map[string]string{"a": "1", "c": "3"}, s.List())
}

func TestStoresAreIndependent(t *testing.T) {
	s1, s2 := NewStore(), NewStore()
	s1.Put("a", "1")

	_, err := s2.Get("a")
	assert.ErrorIs(t, err, ErrorNoSuchKey)
}

func TestScenario(t *testing.T) {
	s := NewStore()

	assert.Equal(t, Created, s.Put("a", "1"))
	v, err := s.Get("a")
	require.NoError(t, err)
	assert.Equal(t, "1", v)

	assert.Equal(t, Updated, s.Put("a", "2"))
	v, err = s.Get("a")
	require.NoError(t, err)
	assert.Equal(t, "2", v)

	v, err = s.Delete("a")
	require.NoError(t, err)
	assert.Equal(t, "2", v)

	_, err = s.Get("a")
	assert.ErrorIs(t, err, ErrorNoSuchKey)
}

func TestConcurrentPutDistinctKeys(t *testing.T) {
	s := NewStore()

	const workers, perWorker = 16, 200
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				key := fmt.Sprintf("w%d-%d", w, i)
				assert.Equal(t, Created, s.Put(key, key))
			}
		}(w)
	}
	wg.Wait()

	entries := s.List()
	assert.Len(t, entries, workers*perWorker)
	for k, v := range entries {
		assert.Equal(t, k, v)
	}
}

func TestConcurrentPutSameKey(t *testing.T) {
	s := NewStore()

	const workers = 32
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		created int
	)
	written := make(map[string]bool, workers)
	for w := 0; w < workers; w++ {
		value := fmt.Sprintf("value-%d", w)
		written[value] = true

		wg.Add(1)
		go func() {
			defer wg.Done()
			if s.Put("shared", value) == Created {
				mu.Lock()
				created++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, created)
	v, err := s.Get("shared")
	require.NoError(t, err)
	assert.True(t, written[v], "unexpected value %q", v)
}

func TestConcurrentReadersAndWriters(t *testing.T) {
	s := NewStore()
	s.Put("k", "initial")

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				s.Put("k", fmt.Sprintf("%d-%d", i, j))
			}
		}(i)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_, err := s.Get("k")
				assert.NoError(t, err)
				assert.Contains(t, s.List(), "k")
			}
		}()
	}
	wg.Wait()
}

func TestConcurrentDeleteReportsOnce(t *testing.T) {
	s := NewStore()
	s.Put("k", "v")

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		deleted int
	)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.Delete("k"); err == nil {
				mu.Lock()
				deleted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, deleted)
}

func TestPanicInCriticalSectionIsFatal(t *testing.T) {
	var fatals []error
	s := NewStore(WithFatalHandler(func(err error) {
		fatals = append(fatals, err)
	}))
	s.Put("a", "1")

	assert.Panics(t, func() {
		s.lock()
		defer s.unlock()
		panic("boom")
	})
	require.Len(t, fatals, 1)
	assert.ErrorIs(t, fatals[0], ErrPoisoned)
	assert.Contains(t, fatals[0].Error(), "boom")

	// The lock was released, but every later acquisition is fatal.
	assert.Panics(t, func() { s.Get("a") })
	assert.Panics(t, func() { s.Put("a", "2") })
	require.Len(t, fatals, 3)
	assert.ErrorIs(t, fatals[2], ErrPoisoned)
}

func TestPanicUnderReadLockIsFatal(t *testing.T) {
	var fatal error
	s := NewStore(WithFatalHandler(func(err error) { fatal = err }))

	assert.Panics(t, func() {
		s.rlock()
		defer s.runlock()
		panic("read boom")
	})
	assert.ErrorIs(t, fatal, ErrPoisoned)
	assert.Panics(t, func() { s.List() })
}

func TestPutResultString(t *testing.T) {
	assert.Equal(t, "created", Created.String())
	assert.Equal(t, "updated", Updated.String())
	assert.Equal(t, "unknown", PutResult(0).String())
}
