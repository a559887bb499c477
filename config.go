package heartsync

import "time"

// Default freshness windows per resource volatility class. Highly volatile
// data (open-conversation messages) revalidates quickly; rarely-changing
// data (own profile) is left alone for much longer. Bounds both network
// chatter and perceived staleness per data class.
var (
	FreshVolatile = Freshness{StaleAfter: 45 * time.Second, Retain: 5 * time.Minute}
	FreshModerate = Freshness{StaleAfter: 2 * time.Minute, Retain: 10 * time.Minute}
	FreshStable   = Freshness{StaleAfter: 10 * time.Minute, Retain: 30 * time.Minute}
)

const (
	defaultMessagePageSize  = 20
	defaultDiscoverPageSize = 10

	// Transient fetch failures are retried this many extra times before the
	// error becomes terminal. Mutations are never retried.
	fetchRetryBudget = 2
)

// Config holds construction parameters for a Client.
type Config struct {
	Store Store      // Required. Remote relational store.
	Feed  ChangeFeed // Optional. Realtime reconciliation is unavailable when nil.

	// Per-class freshness overrides. Zero values fall back to the package
	// defaults above. StaleAfter must not exceed Retain.
	Volatile Freshness
	Moderate Freshness
	Stable   Freshness

	MessagePageSize  int // newest-first page size for conversation history (default 20)
	DiscoverPageSize int // offset page size for discovery (default 10)
}

// withDefaults fills in zero-value fields.
func (cfg Config) withDefaults() Config {
	if cfg.Volatile == (Freshness{}) {
		cfg.Volatile = FreshVolatile
	}
	if cfg.Moderate == (Freshness{}) {
		cfg.Moderate = FreshModerate
	}
	if cfg.Stable == (Freshness{}) {
		cfg.Stable = FreshStable
	}
	if cfg.MessagePageSize == 0 {
		cfg.MessagePageSize = defaultMessagePageSize
	}
	if cfg.DiscoverPageSize == 0 {
		cfg.DiscoverPageSize = defaultDiscoverPageSize
	}
	return cfg
}

// validate checks per-class window invariants.
func (cfg Config) validate() error {
	if cfg.Store == nil {
		return ErrStoreNotSet
	}
	if cfg.MessagePageSize < 1 || cfg.DiscoverPageSize < 1 {
		return ErrInvalidPageSize
	}
	for _, f := range []Freshness{cfg.Volatile, cfg.Moderate, cfg.Stable} {
		if f.StaleAfter > f.Retain {
			return ErrFreshnessWindow
		}
	}
	return nil
}
