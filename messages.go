package heartsync

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"
)

// messageWindow is the cached shape of a paginated conversation: the merged
// chronological message list plus pagination state. Pages are fetched newest
// first and reversed before merging, so infinite-scroll-upward keeps the
// rendered order chronological.
type messageWindow struct {
	Messages     []Message // ascending CreatedAt
	HasMore      bool
	TotalLoaded  int // cumulative requested volume, NOT deduplicated count (see below)
	OldestLoaded time.Time
	Loaded       bool
}

// TotalLoaded accumulates the raw size of every fetched page plus the
// running insert/delete total, independent of dedup. Display code depends on
// this exact number, so the dedup step deliberately does not correct it.

// --- Merge recipes ---
//
// Every recipe below is a pure function over the prior cached value and is
// idempotent and commutative under duplicate delivery: the optimistic write
// and the realtime echo of the same row may arrive in either order, and
// whichever lands second must be a no-op. Dedup is always by message ID,
// never by position.

func containsMessage(msgs []Message, id string) bool {
	for i := range msgs {
		if msgs[i].ID == id {
			return true
		}
	}
	return false
}

func sortChronological(msgs []Message) {
	sort.SliceStable(msgs, func(i, j int) bool {
		return msgs[i].CreatedAt.Before(msgs[j].CreatedAt)
	})
}

// insertMessage adds one message to the window, dedup-by-id. A genuinely new
// message bumps the running total; a duplicate leaves the window unchanged.
func insertMessage(w messageWindow, msg Message) messageWindow {
	if containsMessage(w.Messages, msg.ID) {
		return w
	}
	merged := make([]Message, 0, len(w.Messages)+1)
	merged = append(merged, w.Messages...)
	merged = append(merged, msg)
	sortChronological(merged)
	w.Messages = merged
	w.TotalLoaded++
	return w
}

// replaceMessage swaps the entry with a matching id in place. Unknown ids
// are ignored.
func replaceMessage(w messageWindow, msg Message) messageWindow {
	out := make([]Message, len(w.Messages))
	copy(out, w.Messages)
	for i := range out {
		if out[i].ID == msg.ID {
			out[i] = msg
			break
		}
	}
	w.Messages = out
	return w
}

// removeMessage deletes the entry with a matching id and decrements the
// running total. A second delivery of the same delete is a no-op.
func removeMessage(w messageWindow, id string) messageWindow {
	out := make([]Message, 0, len(w.Messages))
	removed := false
	for i := range w.Messages {
		if w.Messages[i].ID == id {
			removed = true
			continue
		}
		out = append(out, w.Messages[i])
	}
	if removed {
		w.Messages = out
		w.TotalLoaded--
	}
	return w
}

// mergeOlderPage folds one newest-first page into the window: the page is
// reversed to chronological order, deduped by id against what is already
// loaded, and the pagination cursor advances to the page's oldest row.
// HasMore is true iff the page came back full.
func mergeOlderPage(w messageWindow, page []Message, pageSize int) messageWindow {
	w.TotalLoaded += len(page)
	w.HasMore = len(page) == pageSize
	w.Loaded = true

	if len(page) > 0 {
		oldest := page[len(page)-1].CreatedAt
		if w.OldestLoaded.IsZero() || oldest.Before(w.OldestLoaded) {
			w.OldestLoaded = oldest
		}
	}

	merged := make([]Message, 0, len(w.Messages)+len(page))
	merged = append(merged, w.Messages...)
	// Reverse the newest-first page while appending; sort restores the
	// global chronological order across pages.
	for i := len(page) - 1; i >= 0; i-- {
		if containsMessage(merged, page[i].ID) {
			continue
		}
		merged = append(merged, page[i])
	}
	sortChronological(merged)
	w.Messages = merged
	return w
}

// stampRead sets ReadAt on every message not authored by readerID that lacks
// one. Applying it twice with the same timestamp converges.
func stampRead(msgs []Message, readerID string, at time.Time) []Message {
	out := make([]Message, len(msgs))
	copy(out, msgs)
	for i := range out {
		if out[i].SenderID != readerID && out[i].ReadAt == nil {
			t := at
			out[i].ReadAt = &t
		}
	}
	return out
}

// appendFlat is the flat-list counterpart of insertMessage.
func appendFlat(list []Message, msg Message) []Message {
	if containsMessage(list, msg.ID) {
		return list
	}
	out := make([]Message, 0, len(list)+1)
	out = append(out, list...)
	out = append(out, msg)
	sortChronological(out)
	return out
}

func replaceFlat(list []Message, msg Message) []Message {
	out := make([]Message, len(list))
	copy(out, list)
	for i := range out {
		if out[i].ID == msg.ID {
			out[i] = msg
			break
		}
	}
	return out
}

func removeFlat(list []Message, id string) []Message {
	out := make([]Message, 0, len(list))
	for i := range list {
		if list[i].ID == id {
			continue
		}
		out = append(out, list[i])
	}
	return out
}

// --- Flat query ---

// Messages returns the full (non-paginated) message list for a match,
// chronological. Disabled when matchID is empty.
func (c *Client) Messages(ctx context.Context, matchID string) ([]Message, error) {
	if matchID == "" {
		return nil, nil
	}
	return runQuery(ctx, c, queryDef[[]Message]{
		key:   K(ResMessages, matchID),
		fresh: c.cfg.Volatile,
		fetch: func(ctx context.Context) ([]Message, error) {
			msgs, err := c.store.MessagesForMatch(ctx, matchID)
			if err != nil {
				return nil, fmt.Errorf("fetch messages for match %s: %w", matchID, err)
			}
			sortChronological(msgs)
			return msgs, nil
		},
	})
}

// --- Paginated loader ---

// MessagePager loads a conversation newest-first in fixed-size pages for
// infinite scroll upward. The merged window lives in the cache under the
// match's paginated key, so realtime patches and optimistic sends land in
// the same collection the pager reads.
type MessagePager struct {
	c       *Client
	matchID string
	key     Key
	unwatch func()

	mu      sync.Mutex
	loading bool
}

// MessagePager creates a pager for one conversation. While the pager is
// open, invalidating the conversation's paginated key triggers a background
// refresh of the newest page. Call Close when the conversation view goes
// away. A pager with an empty matchID is disabled: every operation is a
// no-op.
func (c *Client) MessagePager(matchID string) *MessagePager {
	p := &MessagePager{c: c, matchID: matchID, key: K(ResMessagesPaginated, matchID)}
	if matchID != "" {
		p.unwatch = c.cache.Watch(p.key, p.refreshNewest)
	}
	return p
}

// window reads the current cached window (zero value when nothing loaded).
func (p *MessagePager) window() messageWindow {
	entry, ok := p.c.cache.Get(p.key)
	if !ok || entry.Status != StatusSuccess {
		return messageWindow{}
	}
	w, _ := entry.Data.(messageWindow)
	return w
}

// Messages returns the merged chronological window.
func (p *MessagePager) Messages() []Message {
	return p.window().Messages
}

// HasMore reports whether older pages may exist. True iff the last fetched
// page came back full.
func (p *MessagePager) HasMore() bool {
	w := p.window()
	return !w.Loaded || w.HasMore
}

// TotalLoaded returns the cumulative requested page volume (display-only;
// see messageWindow).
func (p *MessagePager) TotalLoaded() int {
	return p.window().TotalLoaded
}

// IsLoadingMore reports whether a page fetch is in flight.
func (p *MessagePager) IsLoadingMore() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.loading
}

// LoadMore fetches the next (older) page and merges it into the window. The
// first call loads the newest page. No-op while disabled, already loading,
// or exhausted.
func (p *MessagePager) LoadMore(ctx context.Context) error {
	if p.matchID == "" {
		return nil
	}
	if ctx == nil {
		return ErrNilContext
	}

	p.mu.Lock()
	if p.loading {
		p.mu.Unlock()
		return nil
	}
	p.loading = true
	p.mu.Unlock()
	defer func() {
		p.mu.Lock()
		p.loading = false
		p.mu.Unlock()
	}()

	w := p.window()
	if w.Loaded && !w.HasMore {
		return nil
	}

	pageSize := p.c.cfg.MessagePageSize
	before := w.OldestLoaded // zero on first load: start from the latest
	page, err := fetchWithRetry(ctx, p.key.String(), func(ctx context.Context) ([]Message, error) {
		return p.c.store.MessagesBefore(ctx, p.matchID, before, pageSize)
	})
	if err != nil {
		return fmt.Errorf("load message page for match %s: %w", p.matchID, err)
	}

	// Recompute from the latest cached value: realtime patches may have
	// landed while the fetch was in flight.
	p.c.cache.Set(p.key, p.c.cfg.Volatile, func(old interface{}, ok bool) interface{} {
		cur, _ := old.(messageWindow)
		return mergeOlderPage(cur, page, pageSize)
	})
	return nil
}

// refreshNewest re-reads the newest page after an invalidation and folds any
// rows the window is missing through the insert/replace recipes. Dedup makes
// overlap with already-loaded messages harmless.
func (p *MessagePager) refreshNewest() {
	ctx, cancel := context.WithTimeout(context.Background(), fetchTimeout)
	defer cancel()

	page, err := fetchWithRetry(ctx, p.key.String(), func(ctx context.Context) ([]Message, error) {
		return p.c.store.MessagesBefore(ctx, p.matchID, time.Time{}, p.c.cfg.MessagePageSize)
	})
	if err != nil {
		log.Printf("WARN: failed to refresh newest page for match %s: %v", p.matchID, err)
		return
	}
	p.c.cache.Set(p.key, p.c.cfg.Volatile, func(old interface{}, ok bool) interface{} {
		cur, _ := old.(messageWindow)
		for i := len(page) - 1; i >= 0; i-- {
			if containsMessage(cur.Messages, page[i].ID) {
				cur = replaceMessage(cur, page[i])
			} else {
				cur = insertMessage(cur, page[i])
			}
		}
		return cur
	})
}

// Close unregisters the pager's cache watcher.
func (p *MessagePager) Close() {
	if p.unwatch != nil {
		p.unwatch()
		p.unwatch = nil
	}
}

// --- Mutations ---

// SendMessage writes a new message row and applies the optimistic append to
// both message caches, then invalidates the matches list so last-message
// previews refresh. A rejected remote insert is surfaced immediately and
// nothing local changes, so the caller can restore the input for retry.
//
// The realtime echo of the same row may arrive before or after this returns;
// the dedup-by-id recipe makes whichever lands second a no-op.
func (c *Client) SendMessage(ctx context.Context, matchID, senderID, content string) (Message, error) {
	if matchID == "" || senderID == "" {
		return Message{}, ErrDisabled
	}
	msg, err := c.store.InsertMessage(ctx, matchID, senderID, content)
	if err != nil {
		return Message{}, fmt.Errorf("send message in match %s: %w", matchID, err)
	}

	c.applyMessageInsert(msg)
	c.cache.InvalidateResource(ResMatches)
	return msg, nil
}

// applyMessageInsert is the shared insert recipe for the optimistic path and
// the realtime echo path.
func (c *Client) applyMessageInsert(msg Message) {
	c.cache.Set(K(ResMessagesPaginated, msg.MatchID), c.cfg.Volatile, func(old interface{}, ok bool) interface{} {
		cur, _ := old.(messageWindow) // zero value = fresh single-page collection
		return insertMessage(cur, msg)
	})
	c.cache.Set(K(ResMessages, msg.MatchID), c.cfg.Volatile, func(old interface{}, ok bool) interface{} {
		cur, _ := old.([]Message)
		return appendFlat(cur, msg)
	})
}

// MarkMessagesRead stamps a read timestamp on every message in the match
// authored by the other party and not yet read, patches the local message
// caches the same way, and invalidates the unread-count keys.
func (c *Client) MarkMessagesRead(ctx context.Context, matchID, userID string) error {
	if matchID == "" || userID == "" {
		return ErrDisabled
	}
	at := time.Now()
	n, err := c.store.MarkMessagesRead(ctx, matchID, userID, at)
	if err != nil {
		return fmt.Errorf("mark messages read in match %s: %w", matchID, err)
	}
	log.Printf("Marked %d messages read in match %s for reader %s", n, matchID, userID)

	c.cache.Set(K(ResMessages, matchID), c.cfg.Volatile, func(old interface{}, ok bool) interface{} {
		cur, _ := old.([]Message)
		return stampRead(cur, userID, at)
	})
	c.cache.Set(K(ResMessagesPaginated, matchID), c.cfg.Volatile, func(old interface{}, ok bool) interface{} {
		cur, _ := old.(messageWindow)
		cur.Messages = stampRead(cur.Messages, userID, at)
		return cur
	})
	c.cache.InvalidateResource(ResUnreadCount)
	return nil
}
