package heartsync

import (
	"log"
	"sync"
	"time"

	icache "heartsync/internal/cache"
)

// --- Cache Entry ---

// Status is the fetch state of a cache entry.
type Status int

const (
	StatusIdle Status = iota
	StatusLoading
	StatusSuccess
	StatusError
)

// Entry is the last known result for one cache key plus its staleness
// metadata. An entry past StaleAfter is still servable but triggers a
// background refetch when read; an entry past RetainUntil is evicted and
// must be refetched from the network on next access.
type Entry struct {
	Data        interface{}
	FetchedAt   time.Time
	StaleAfter  time.Time
	RetainUntil time.Time
	Status      Status
	Err         error
}

// Stale reports whether the entry should be revalidated in the background.
func (e Entry) Stale(now time.Time) bool {
	return !now.Before(e.StaleAfter)
}

// Expired reports whether the entry is past retention and must be evicted.
func (e Entry) Expired(now time.Time) bool {
	return !now.Before(e.RetainUntil)
}

// Freshness is the staleness/retention window pair for a resource class.
// Invariant: StaleAfter <= Retain.
type Freshness struct {
	StaleAfter time.Duration
	Retain     time.Duration
}

// CacheStats holds cache operation counters for monitoring.
type CacheStats struct {
	Counters map[string]int // Operation name to count
}

// --- Cache ---

// Cache is the process-wide keyed store mapping query identity to the last
// known result. It is the single source of truth for all query results; only
// query, mutation, and reconciliation code mutate it, always through Set and
// Invalidate. One instance is injected per Client (no ambient global state),
// so tests get a fresh cache each.
type Cache struct {
	mu       sync.RWMutex
	entries  map[string]Entry
	registry *icache.Registry
	locker   *icache.KeyLockManager

	watchMu   sync.Mutex
	watchers  map[string]map[int]func()
	nextWatch int

	flightMu sync.Mutex
	inflight map[string]*flight

	countersMu sync.Mutex
	counters   map[string]int
}

// flight tracks a single in-flight fetch for a key. All concurrent readers
// of a stale key wait on done and observe the same resolved entry.
type flight struct {
	done chan struct{}
}

// NewCache creates an empty cache.
func NewCache() *Cache {
	return &Cache{
		entries:  make(map[string]Entry),
		registry: icache.NewRegistry(),
		locker:   icache.NewKeyLockManager(),
		watchers: make(map[string]map[int]func()),
		inflight: make(map[string]*flight),
		counters: make(map[string]int),
	}
}

// Get returns the entry for a key, if any. Entries past retention are
// evicted and reported as a miss. No other side effects.
func (c *Cache) Get(key Key) (Entry, bool) {
	c.incrCounter("Get")
	ks := key.String()
	now := time.Now()

	c.mu.RLock()
	entry, ok := c.entries[ks]
	c.mu.RUnlock()
	if !ok {
		c.incrCounter("GetMiss")
		return Entry{}, false
	}
	if entry.Expired(now) {
		c.mu.Lock()
		// Re-check under the write lock; another goroutine may have
		// refreshed the entry meanwhile.
		if cur, still := c.entries[ks]; still && cur.Expired(now) {
			delete(c.entries, ks)
			c.registry.Unregister(ks)
		}
		c.mu.Unlock()
		c.incrCounter("GetExpired")
		return Entry{}, false
	}
	c.incrCounter("GetHit")
	return entry, true
}

// Set applies a pure updater function to the current cached value and stores
// the result with a fresh FetchedAt. The updater receives the value at
// apply-time (never one captured at mutation-initiation-time) and ok=false
// when no entry exists, in which case it is expected to construct the
// initial collection. Used for optimistic updates and realtime patches.
func (c *Cache) Set(key Key, fresh Freshness, updater func(old interface{}, ok bool) interface{}) {
	c.incrCounter("Set")
	ks := key.String()
	c.locker.Lock(ks)
	defer c.locker.Unlock(ks)

	c.mu.RLock()
	old, ok := c.entries[ks]
	c.mu.RUnlock()

	var prior interface{}
	if ok && !old.Expired(time.Now()) && old.Status == StatusSuccess {
		prior = old.Data
	} else {
		ok = false
	}

	c.storeEntry(key, successEntry(updater(prior, ok), fresh))
}

// Put stores a resolved fetch result for a key, replacing whatever is there.
func (c *Cache) Put(key Key, fresh Freshness, data interface{}) {
	c.incrCounter("Put")
	c.storeEntry(key, successEntry(data, fresh))
}

// PutError records a terminal fetch error for a key. The error entry is
// retained briefly so hammering a broken query does not re-fire the network
// on every read.
func (c *Cache) PutError(key Key, err error) {
	c.incrCounter("PutError")
	now := time.Now()
	c.storeEntry(key, Entry{
		FetchedAt:   now,
		StaleAfter:  now.Add(5 * time.Second),
		RetainUntil: now.Add(30 * time.Second),
		Status:      StatusError,
		Err:         err,
	})
}

func successEntry(data interface{}, fresh Freshness) Entry {
	now := time.Now()
	return Entry{
		Data:        data,
		FetchedAt:   now,
		StaleAfter:  now.Add(fresh.StaleAfter),
		RetainUntil: now.Add(fresh.Retain),
		Status:      StatusSuccess,
	}
}

func (c *Cache) storeEntry(key Key, entry Entry) {
	ks := key.String()
	c.mu.Lock()
	c.entries[ks] = entry
	c.mu.Unlock()
	c.registry.Register(key.Resource, ks)
}

// UpdateResource applies a pure updater to every live success entry under an
// exact resource name, regardless of parameters. Used for working-set trims
// that must hit every cached variant of a listing (e.g. every discovery
// filter slot).
func (c *Cache) UpdateResource(resource string, fresh Freshness, updater func(old interface{}) interface{}) {
	c.incrCounter("UpdateResource")
	now := time.Now()
	for _, ks := range c.registry.KeysForResource(resource) {
		c.locker.Lock(ks)
		c.mu.Lock()
		entry, ok := c.entries[ks]
		if ok && entry.Status == StatusSuccess && !entry.Expired(now) {
			c.entries[ks] = successEntry(updater(entry.Data), fresh)
		}
		c.mu.Unlock()
		c.locker.Unlock(ks)
	}
}

// Invalidate marks the entry for a key stale. Data is not deleted (avoids a
// UI flash); any live watcher on the key gets a background refetch.
func (c *Cache) Invalidate(key Key) {
	c.incrCounter("Invalidate")
	c.invalidateKeys([]string{key.String()})
}

// InvalidateResource marks every key under an exact resource name stale.
func (c *Cache) InvalidateResource(resource string) {
	c.incrCounter("InvalidateResource")
	c.invalidateKeys(c.registry.KeysForResource(resource))
}

// InvalidatePrefix marks every key whose resource name shares the prefix
// stale, regardless of parameters.
func (c *Cache) InvalidatePrefix(prefix string) {
	c.incrCounter("InvalidatePrefix")
	c.invalidateKeys(c.registry.KeysForPrefix(prefix))
}

func (c *Cache) invalidateKeys(keys []string) {
	if len(keys) == 0 {
		return
	}
	now := time.Now()

	c.mu.Lock()
	for _, ks := range keys {
		if entry, ok := c.entries[ks]; ok {
			entry.StaleAfter = now
			c.entries[ks] = entry
		}
	}
	c.mu.Unlock()

	// Kick watchers outside of any lock.
	c.watchMu.Lock()
	var refetchers []func()
	for _, ks := range keys {
		for _, fn := range c.watchers[ks] {
			refetchers = append(refetchers, fn)
		}
	}
	c.watchMu.Unlock()
	for _, fn := range refetchers {
		go fn()
	}
}

// Watch registers a background refetcher for a key, invoked whenever the key
// is invalidated while watched. The returned cancel func must be called when
// the watching view goes away.
func (c *Cache) Watch(key Key, refetch func()) (cancel func()) {
	ks := key.String()
	c.watchMu.Lock()
	id := c.nextWatch
	c.nextWatch++
	if c.watchers[ks] == nil {
		c.watchers[ks] = make(map[int]func())
	}
	c.watchers[ks][id] = refetch
	c.watchMu.Unlock()

	return func() {
		c.watchMu.Lock()
		if set, ok := c.watchers[ks]; ok {
			delete(set, id)
			if len(set) == 0 {
				delete(c.watchers, ks)
			}
		}
		c.watchMu.Unlock()
	}
}

// beginFlight claims the in-flight fetch slot for a key. When started is
// false another fetch is already running and the caller should wait on the
// returned flight instead of fetching again.
func (c *Cache) beginFlight(ks string) (f *flight, started bool) {
	c.flightMu.Lock()
	defer c.flightMu.Unlock()
	if f, ok := c.inflight[ks]; ok {
		return f, false
	}
	f = &flight{done: make(chan struct{})}
	c.inflight[ks] = f
	return f, true
}

// endFlight releases the in-flight slot and wakes all waiters.
func (c *Cache) endFlight(ks string, f *flight) {
	c.flightMu.Lock()
	delete(c.inflight, ks)
	c.flightMu.Unlock()
	close(f.done)
}

// Stats returns cache operation statistics for monitoring and hit/miss
// analysis.
func (c *Cache) Stats() CacheStats {
	c.countersMu.Lock()
	defer c.countersMu.Unlock()
	cloned := make(map[string]int, len(c.counters))
	for k, v := range c.counters {
		cloned[k] = v
	}
	return CacheStats{Counters: cloned}
}

func (c *Cache) incrCounter(name string) {
	c.countersMu.Lock()
	c.counters[name]++
	c.countersMu.Unlock()
}

// DumpKeys logs every live key. Debug helper.
func (c *Cache) DumpKeys() {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for ks, entry := range c.entries {
		log.Printf("CACHE KEY: %s status=%d fetchedAt=%s", ks, entry.Status, entry.FetchedAt.Format(time.RFC3339))
	}
}
