// interfaces.go
// Consumed interfaces for heartsync: Store (remote relational store) and
// ChangeFeed (row-level push subscriptions). These are public and intended
// for use by driver developers; see drivers/ for implementations.

package heartsync

import (
	"context"
	"encoding/json"
	"strings"
	"time"
)

// Store defines the remote relational store the synchronization layer reads
// from and writes to. It is treated as a black box: implementations live in
// drivers/store.
type Store interface {
	// Profiles
	Profile(ctx context.Context, userID string) (Profile, error)
	Profiles(ctx context.Context) ([]Profile, error)
	// DiscoverProfiles serves the privacy-filtered discovery view: candidates
	// excluding the viewer and excludeIDs, with filter applied remotely.
	// Rows are ordered stably so offset pagination yields no gaps or
	// duplicates; a page shorter than limit means no further pages.
	DiscoverProfiles(ctx context.Context, viewerID string, filter DiscoveryFilter, excludeIDs []string, offset, limit int) ([]Profile, error)

	// Matches
	MatchesForUser(ctx context.Context, userID string) ([]Match, error)
	// MatchBetween checks both directional orderings of user1/user2.
	// Returns common.ErrNotFound when the two users are not matched.
	MatchBetween(ctx context.Context, userA, userB string) (Match, error)
	// DeleteMatchCascade removes a match and all of its messages in one
	// remote procedure call.
	DeleteMatchCascade(ctx context.Context, matchID string) error
	MatchCount(ctx context.Context, userID string) (int64, error)

	// Messages
	MessagesForMatch(ctx context.Context, matchID string) ([]Message, error)
	// MessagesBefore returns up to limit messages created strictly before
	// the given instant, newest first. A zero before means "from the latest".
	MessagesBefore(ctx context.Context, matchID string, before time.Time, limit int) ([]Message, error)
	InsertMessage(ctx context.Context, matchID, senderID, content string) (Message, error)
	// MarkMessagesRead stamps readAt on every unread message in the match
	// that was NOT sent by readerID. Returns the number of rows updated.
	MarkMessagesRead(ctx context.Context, matchID, readerID string, at time.Time) (int64, error)
	UnreadCount(ctx context.Context, userID string) (int64, error)

	// Likes
	LikeExists(ctx context.Context, likerID, likedID string) (bool, error)
	InsertLike(ctx context.Context, likerID, likedID string) (Like, error)
	DeleteLike(ctx context.Context, likerID, likedID string) error
	LikedProfiles(ctx context.Context, likerID string) ([]Profile, error)
	LikedIDs(ctx context.Context, likerID string) ([]string, error)
}

// Op is a change-feed operation type.
type Op string

const (
	OpAny    Op = "*"
	OpInsert Op = "INSERT"
	OpUpdate Op = "UPDATE"
	OpDelete Op = "DELETE"
)

// Event is a single row-level change pushed by the remote store. Payload is
// the JSON encoding of the affected row.
type Event struct {
	Channel string          `json:"channel"`
	Table   string          `json:"table"`
	Op      Op              `json:"op"`
	Payload json.RawMessage `json:"payload"`
}

// Binding registers interest in one table's events on a channel. Filter uses
// the "column=eq.value" form; empty means all rows.
type Binding struct {
	Table  string
	Op     Op
	Filter string
}

// Matches reports whether an event satisfies the binding. Filter evaluation
// decodes the payload and compares the referenced column as a string.
// Drivers use this for client-side event routing.
func (b Binding) Matches(ev Event) bool {
	if b.Table != ev.Table {
		return false
	}
	if b.Op != "" && b.Op != OpAny && b.Op != ev.Op {
		return false
	}
	if b.Filter == "" {
		return true
	}
	col, want, ok := parseFilter(b.Filter)
	if !ok {
		return false
	}
	var row map[string]any
	if err := json.Unmarshal(ev.Payload, &row); err != nil {
		return false
	}
	got, ok := row[col]
	if !ok {
		return false
	}
	s, ok := got.(string)
	return ok && s == want
}

// parseFilter splits "column=eq.value" into its parts.
func parseFilter(filter string) (col, value string, ok bool) {
	eq := strings.Index(filter, "=eq.")
	if eq <= 0 {
		return "", "", false
	}
	return filter[:eq], filter[eq+len("=eq."):], true
}

// EventHandler receives events routed to a subscription.
type EventHandler func(Event)

// StatusHandler receives channel lifecycle transitions. err is non-nil for
// StateError and StateTimedOut.
type StatusHandler func(state ChannelState, err error)

// FeedHandle is a live change-feed subscription.
type FeedHandle interface {
	// Unsubscribe tears the subscription down. Events are never delivered
	// after Unsubscribe returns; teardown is guaranteed by the transport,
	// not by application-level filtering.
	Unsubscribe() error
}

// ChangeFeed is the push-based change-feed subscription API. One channel may
// multiplex several table bindings over a single connection.
type ChangeFeed interface {
	Subscribe(ctx context.Context, channel string, bindings []Binding, onEvent EventHandler, onStatus StatusHandler) (FeedHandle, error)
}
