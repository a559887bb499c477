// Package memory provides an in-process ChangeFeed. Publish delivers events
// synchronously to every live subscription whose bindings match, which makes
// reconciliation tests deterministic.
package memory

import (
	"context"
	"sync"

	"heartsync"
)

// Feed is an in-memory change-feed broker.
type Feed struct {
	mu   sync.Mutex
	subs map[int]*subscription
	next int
}

type subscription struct {
	feed     *Feed
	id       int
	channel  string
	bindings []heartsync.Binding
	onEvent  heartsync.EventHandler
	onStatus heartsync.StatusHandler
	closed   bool
}

// NewFeed returns an empty broker with no subscriptions.
func NewFeed() *Feed {
	return &Feed{subs: make(map[int]*subscription)}
}

// Subscribe registers the handlers and reports SUBSCRIBING then SUBSCRIBED
// synchronously before returning.
func (f *Feed) Subscribe(ctx context.Context, channel string, bindings []heartsync.Binding, onEvent heartsync.EventHandler, onStatus heartsync.StatusHandler) (heartsync.FeedHandle, error) {
	if ctx == nil {
		return nil, heartsync.ErrNilContext
	}
	f.mu.Lock()
	sub := &subscription{
		feed:     f,
		id:       f.next,
		channel:  channel,
		bindings: bindings,
		onEvent:  onEvent,
		onStatus: onStatus,
	}
	f.next++
	f.subs[sub.id] = sub
	f.mu.Unlock()

	if onStatus != nil {
		onStatus(heartsync.StateSubscribing, nil)
		onStatus(heartsync.StateSubscribed, nil)
	}
	return sub, nil
}

// Publish routes ev to every live subscription on the event's channel with a
// matching binding. An empty ev.Channel broadcasts to all channels.
func (f *Feed) Publish(ev heartsync.Event) {
	f.mu.Lock()
	targets := make([]*subscription, 0, len(f.subs))
	for _, sub := range f.subs {
		if sub.closed {
			continue
		}
		if ev.Channel != "" && ev.Channel != sub.channel {
			continue
		}
		for _, b := range sub.bindings {
			if b.Matches(ev) {
				targets = append(targets, sub)
				break
			}
		}
	}
	f.mu.Unlock()

	for _, sub := range targets {
		sub.onEvent(ev)
	}
}

// Degrade pushes a status transition to every subscription on the channel.
// Tests use this to simulate transport errors and timeouts.
func (f *Feed) Degrade(channel string, state heartsync.ChannelState, err error) {
	f.mu.Lock()
	targets := make([]*subscription, 0, len(f.subs))
	for _, sub := range f.subs {
		if !sub.closed && sub.channel == channel {
			targets = append(targets, sub)
		}
	}
	f.mu.Unlock()

	for _, sub := range targets {
		if sub.onStatus != nil {
			sub.onStatus(state, err)
		}
	}
}

// SubscriberCount reports how many live subscriptions exist on the channel.
func (f *Feed) SubscriberCount(channel string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, sub := range f.subs {
		if !sub.closed && sub.channel == channel {
			n++
		}
	}
	return n
}

// Unsubscribe removes the subscription from the broker. No events are
// delivered after it returns. Idempotent.
func (s *subscription) Unsubscribe() error {
	s.feed.mu.Lock()
	defer s.feed.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	delete(s.feed.subs, s.id)
	return nil
}
