package cache_test

import (
	"sync"
	"testing"
	"time"

	"heartsync/internal/cache"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyLockManager_LockUnlock(t *testing.T) {
	locker := cache.NewKeyLockManager()
	key := "matches:aaaa1111"

	require.NotPanics(t, func() {
		locker.Lock(key)
		locker.Unlock(key)
	})

	// Re-acquiring after unlock must not block.
	locked := make(chan bool)
	go func() {
		locker.Lock(key)
		locked <- true
		locker.Unlock(key)
	}()

	select {
	case <-locked:
	case <-time.After(100 * time.Millisecond):
		assert.Fail(t, "failed to re-acquire lock after unlock")
	}
}

func TestKeyLockManager_ConcurrentLocking(t *testing.T) {
	locker := cache.NewKeyLockManager()
	key := "matches:aaaa1111"
	numGoroutines := 10
	var counter int
	var wg sync.WaitGroup

	wg.Add(numGoroutines)
	for i := 0; i < numGoroutines; i++ {
		go func() {
			defer wg.Done()
			locker.Lock(key)
			current := counter
			time.Sleep(1 * time.Millisecond)
			counter = current + 1
			locker.Unlock(key)
		}()
	}
	wg.Wait()

	assert.Equal(t, numGoroutines, counter, "every increment must observe the previous one")
}

func TestKeyLockManager_IndependentKeys(t *testing.T) {
	locker := cache.NewKeyLockManager()
	locker.Lock("matches:aaaa1111")
	defer locker.Unlock("matches:aaaa1111")

	// A different key must not be blocked by the held lock.
	acquired := make(chan bool)
	go func() {
		locker.Lock("match-count:bbbb2222")
		acquired <- true
		locker.Unlock("match-count:bbbb2222")
	}()

	select {
	case <-acquired:
	case <-time.After(100 * time.Millisecond):
		assert.Fail(t, "independent key was blocked")
	}
}
