package heartsync

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/cenkalti/backoff/v4"
)

const fetchTimeout = 30 * time.Second

// queryDef declares one query: its cache slot, freshness class, and fetch
// function. The per-resource operations on Client build these.
type queryDef[T any] struct {
	key   Key
	fresh Freshness
	fetch func(ctx context.Context) (T, error)
}

// runQuery resolves a query through the cache:
//
//   - fresh entry: served directly, no network.
//   - stale entry: served directly while a background revalidation runs
//     (stale-while-revalidate).
//   - miss, expired, or stale error entry: fetched through the single-flight
//     slot; every concurrent caller of the same key observes the one
//     resolved value.
func runQuery[T any](ctx context.Context, c *Client, def queryDef[T]) (T, error) {
	var zero T
	if ctx == nil {
		return zero, ErrNilContext
	}

	ks := def.key.String()
	now := time.Now()
	if entry, ok := c.cache.Get(def.key); ok {
		switch entry.Status {
		case StatusSuccess:
			if data, cast := entry.Data.(T); cast {
				if !entry.Stale(now) {
					log.Printf("CACHE HIT: %s", ks)
					return data, nil
				}
				log.Printf("CACHE STALE: %s (serving stale, revalidating)", ks)
				go revalidate(c, def)
				return data, nil
			}
			log.Printf("WARN: cache entry for %s holds %T, refetching", ks, entry.Data)
		case StatusError:
			if !entry.Stale(now) {
				return zero, entry.Err
			}
		}
	}

	log.Printf("CACHE MISS: %s", ks)
	return awaitFetch(ctx, c, def)
}

// awaitFetch joins (or starts) the single in-flight fetch for a key and
// waits for it. The fetch itself runs detached from the caller's context: a
// caller whose view unmounts mid-fetch gets ctx.Err() and discards the
// result, but the resolved entry still lands in the cache for other
// subscribers.
func awaitFetch[T any](ctx context.Context, c *Client, def queryDef[T]) (T, error) {
	var zero T
	ks := def.key.String()

	f, started := c.cache.beginFlight(ks)
	if started {
		go func() {
			defer c.cache.endFlight(ks, f)
			fetchIntoCache(c, def)
		}()
	}

	select {
	case <-f.done:
	case <-ctx.Done():
		return zero, ctx.Err()
	}

	entry, ok := c.cache.Get(def.key)
	if !ok {
		return zero, ErrNotFound
	}
	if entry.Status == StatusError {
		return zero, entry.Err
	}
	data, cast := entry.Data.(T)
	if !cast {
		return zero, fmt.Errorf("heartsync: cache entry for %s holds %T", ks, entry.Data)
	}
	return data, nil
}

// revalidate refreshes a stale key in the background. A no-op when a fetch
// for the key is already in flight.
func revalidate[T any](c *Client, def queryDef[T]) {
	ks := def.key.String()
	f, started := c.cache.beginFlight(ks)
	if !started {
		return
	}
	defer c.cache.endFlight(ks, f)
	fetchIntoCache(c, def)
}

// fetchIntoCache performs the remote fetch with the transient-failure retry
// budget and writes the outcome (value or terminal error) into the cache.
func fetchIntoCache[T any](c *Client, def queryDef[T]) {
	ctx, cancel := context.WithTimeout(context.Background(), fetchTimeout)
	defer cancel()
	ks := def.key.String()

	result, err := fetchWithRetry(ctx, ks, def.fetch)
	if err != nil {
		log.Printf("ERROR: fetch failed for %s: %v", ks, err)
		c.cache.PutError(def.key, err)
		return
	}
	c.cache.Put(def.key, def.fresh, result)
}

// fetchWithRetry applies the transient-failure retry budget to a raw fetch.
// Validation-type failures (disabled query, canceled context) are never
// retried.
func fetchWithRetry[T any](ctx context.Context, label string, fetch func(context.Context) (T, error)) (T, error) {
	var result T
	attempt := 0
	op := func() error {
		attempt++
		var err error
		result, err = fetch(ctx)
		if err != nil {
			if errors.Is(err, ErrDisabled) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return backoff.Permanent(err)
			}
			log.Printf("WARN: fetch attempt %d failed for %s: %v", attempt, label, err)
			return err
		}
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 50 * time.Millisecond
	err := backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(bo, fetchRetryBudget), ctx))
	return result, err
}

// watchQuery keeps a key live: while watched, invalidating the key triggers
// a background refetch instead of waiting for the next read. Pagers and
// long-lived views register through this; the cancel func is their unmount.
func watchQuery[T any](c *Client, def queryDef[T]) (cancel func()) {
	return c.cache.Watch(def.key, func() { revalidate(c, def) })
}
