package heartsync

import (
	"log"
	"sync"
)

// Client is the synchronization layer's explicit context object: it owns the
// cache, the remote store handle, and the change-feed subscriptions, and is
// passed to everything that needs them. Lifecycle is tied to an application
// session; construct one per signed-in user session and Close it on logout.
type Client struct {
	store Store
	feed  ChangeFeed
	cache *Cache
	cfg   Config

	// Realtime scope state. At most one active subscription per logical
	// scope (consolidated per-user channel; per-open-conversation channel).
	subMu         sync.Mutex
	userSub       *Subscription
	convSub       *Subscription
	selectedMatch string
}

// New constructs a Client with its own fresh cache.
func New(cfg Config) (*Client, error) {
	cfg = cfg.withDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	log.Printf("heartsync client configured (message page size %d, discover page size %d)",
		cfg.MessagePageSize, cfg.DiscoverPageSize)
	return &Client{
		store: cfg.Store,
		feed:  cfg.Feed,
		cache: NewCache(),
		cfg:   cfg,
	}, nil
}

// Cache exposes the client's cache. Intended for composition and tests;
// presentation code reads through the query operations instead.
func (c *Client) Cache() *Cache {
	return c.cache
}

// Refetch marks a query's cache slot stale so the next read (or any live
// watcher on the key) re-resolves it from the network. This is the
// try-again affordance after a terminal query error: a cached error entry
// is normally served for a short window, and Refetch cuts that short.
func (c *Client) Refetch(key Key) {
	c.cache.Invalidate(key)
}

// SelectedConversation returns the matchId of the currently open
// conversation, or "" when none is selected.
func (c *Client) SelectedConversation() string {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	return c.selectedMatch
}

// Close tears down all active subscriptions. The cache is left intact; it is
// garbage collected with the Client.
func (c *Client) Close() error {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	var first error
	if c.convSub != nil {
		if err := c.convSub.Unsubscribe(); err != nil && first == nil {
			first = err
		}
		c.convSub = nil
		c.selectedMatch = ""
	}
	if c.userSub != nil {
		if err := c.userSub.Unsubscribe(); err != nil && first == nil {
			first = err
		}
		c.userSub = nil
	}
	return first
}
