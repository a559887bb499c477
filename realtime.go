package heartsync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
)

// ChannelState is the lifecycle state of one realtime channel.
type ChannelState int

const (
	StateUnsubscribed ChannelState = iota
	StateSubscribing
	StateSubscribed
	StateError
	StateClosed
	StateTimedOut
)

func (s ChannelState) String() string {
	switch s {
	case StateUnsubscribed:
		return "UNSUBSCRIBED"
	case StateSubscribing:
		return "SUBSCRIBING"
	case StateSubscribed:
		return "SUBSCRIBED"
	case StateError:
		return "ERROR"
	case StateClosed:
		return "CLOSED"
	case StateTimedOut:
		return "TIMED_OUT"
	default:
		return "UNKNOWN"
	}
}

// Subscription is one live reconciliation channel. On StateError or
// StateTimedOut the channel is degraded: reconciliation stops but cached
// data remains servable (stale) until a re-subscribe. No automatic reconnect
// happens at this layer; transport-level reconnection belongs to the feed
// driver.
type Subscription struct {
	scope  string
	handle FeedHandle

	mu      sync.Mutex
	state   ChannelState
	lastErr error
	done    bool
}

// State returns the channel's current lifecycle state.
func (s *Subscription) State() ChannelState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Err returns the error that degraded the channel, if any.
func (s *Subscription) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// Unsubscribe tears the channel down. Idempotent: the second call reports
// ErrUnsubscribed.
func (s *Subscription) Unsubscribe() error {
	s.mu.Lock()
	if s.done {
		s.mu.Unlock()
		return ErrUnsubscribed
	}
	s.done = true
	s.state = StateClosed
	s.mu.Unlock()
	return s.handle.Unsubscribe()
}

func (s *Subscription) setState(state ChannelState, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done {
		return
	}
	s.state = state
	s.lastErr = err
	if err != nil {
		log.Printf("WARN: realtime channel %s degraded: state=%s err=%v", s.scope, state, err)
	}
}

// SubscribeUser opens the per-user consolidated channel: one subscription
// multiplexing match, notification, and like row events for the user into
// cache invalidations. Any previous per-user subscription is torn down
// first — at most one active subscription per scope at any time.
func (c *Client) SubscribeUser(ctx context.Context, userID string) (*Subscription, error) {
	if c.feed == nil {
		return nil, ErrFeedNotSet
	}
	if userID == "" {
		return nil, ErrDisabled
	}

	c.subMu.Lock()
	defer c.subMu.Unlock()
	if c.userSub != nil {
		if err := c.userSub.Unsubscribe(); err != nil && !errors.Is(err, ErrUnsubscribed) {
			log.Printf("WARN: tearing down previous user channel failed: %v", err)
		}
		c.userSub = nil
	}

	sub := &Subscription{scope: "user:" + userID, state: StateSubscribing}
	bindings := []Binding{
		{Table: "matches", Op: OpAny, Filter: "user1_id=eq." + userID},
		{Table: "matches", Op: OpAny, Filter: "user2_id=eq." + userID},
		{Table: "notifications", Op: OpAny, Filter: "user_id=eq." + userID},
		{Table: "likes", Op: OpAny, Filter: "liker_id=eq." + userID},
		{Table: "likes", Op: OpAny, Filter: "liked_id=eq." + userID},
	}
	handle, err := c.feed.Subscribe(ctx, sub.scope, bindings,
		func(ev Event) { c.handleUserEvent(userID, ev) },
		sub.setState,
	)
	if err != nil {
		return nil, fmt.Errorf("subscribe user channel %s: %w", userID, err)
	}
	sub.handle = handle
	c.userSub = sub
	return sub, nil
}

// handleUserEvent maps one consolidated-channel event to the invalidation of
// its semantically related keys. Every operation type invalidates the
// aggregates; inserts that can change who is discoverable additionally
// invalidate the discovery listings.
func (c *Client) handleUserEvent(userID string, ev Event) {
	switch ev.Table {
	case "matches":
		c.invalidateMatchAggregates(userID)
		if ev.Op == OpInsert {
			c.cache.InvalidatePrefix(ResDiscover)
		}
	case "likes":
		c.cache.Invalidate(K(ResLikedProfiles, userID))
		c.invalidateMatchAggregates(userID)
		if ev.Op == OpInsert {
			c.cache.InvalidatePrefix(ResDiscover)
		}
	case "notifications":
		c.cache.Invalidate(K(ResUnreadCount, userID))
	default:
		log.Printf("WARN: unexpected table %q on user channel", ev.Table)
	}
}

// OpenConversation opens the per-conversation channel for a match and marks
// it as the selected conversation. Message events patch the caches directly
// instead of invalidating them. Any previously open conversation is torn
// down first.
func (c *Client) OpenConversation(ctx context.Context, matchID string) (*Subscription, error) {
	if c.feed == nil {
		return nil, ErrFeedNotSet
	}
	if matchID == "" {
		return nil, ErrDisabled
	}

	c.subMu.Lock()
	defer c.subMu.Unlock()
	if c.convSub != nil {
		if err := c.convSub.Unsubscribe(); err != nil && !errors.Is(err, ErrUnsubscribed) {
			log.Printf("WARN: tearing down previous conversation channel failed: %v", err)
		}
		c.convSub = nil
		c.selectedMatch = ""
	}

	sub := &Subscription{scope: "conversation:" + matchID, state: StateSubscribing}
	bindings := []Binding{
		{Table: "messages", Op: OpAny, Filter: "match_id=eq." + matchID},
	}
	handle, err := c.feed.Subscribe(ctx, sub.scope, bindings,
		func(ev Event) { c.handleConversationEvent(ev) },
		sub.setState,
	)
	if err != nil {
		return nil, fmt.Errorf("subscribe conversation channel %s: %w", matchID, err)
	}
	sub.handle = handle
	c.convSub = sub
	c.selectedMatch = matchID
	return sub, nil
}

// CloseConversation tears down the per-conversation channel and clears the
// selection. Safe to call with nothing open.
func (c *Client) CloseConversation() {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	if c.convSub != nil {
		if err := c.convSub.Unsubscribe(); err != nil && !errors.Is(err, ErrUnsubscribed) {
			log.Printf("WARN: closing conversation channel failed: %v", err)
		}
		c.convSub = nil
	}
	c.selectedMatch = ""
}

// handleConversationEvent applies one message event to both message caches.
// Inserts go through the same dedup-by-id recipe as SendMessage's optimistic
// path: whichever of the local write and the realtime echo arrives first
// wins, and the second is a no-op.
func (c *Client) handleConversationEvent(ev Event) {
	if ev.Table != "messages" {
		log.Printf("WARN: unexpected table %q on conversation channel", ev.Table)
		return
	}
	var msg Message
	if err := json.Unmarshal(ev.Payload, &msg); err != nil {
		log.Printf("ERROR: failed to decode message event payload: %v", err)
		return
	}

	switch ev.Op {
	case OpInsert:
		c.applyMessageInsert(msg)
	case OpUpdate:
		c.cache.Set(K(ResMessagesPaginated, msg.MatchID), c.cfg.Volatile, func(old interface{}, ok bool) interface{} {
			cur, _ := old.(messageWindow)
			return replaceMessage(cur, msg)
		})
		c.cache.Set(K(ResMessages, msg.MatchID), c.cfg.Volatile, func(old interface{}, ok bool) interface{} {
			cur, _ := old.([]Message)
			return replaceFlat(cur, msg)
		})
	case OpDelete:
		c.cache.Set(K(ResMessagesPaginated, msg.MatchID), c.cfg.Volatile, func(old interface{}, ok bool) interface{} {
			cur, _ := old.(messageWindow)
			return removeMessage(cur, msg.ID)
		})
		c.cache.Set(K(ResMessages, msg.MatchID), c.cfg.Volatile, func(old interface{}, ok bool) interface{} {
			cur, _ := old.([]Message)
			return removeFlat(cur, msg.ID)
		})
	default:
		log.Printf("WARN: unexpected op %q on conversation channel", ev.Op)
	}
}
