package heartsync

import (
	"context"
	"fmt"
	"log"
)

// Matches returns the viewer's matches, enriched with the other party's id
// and (redacted) profile. Disabled when userID is empty: no fetch, empty
// result, no error.
func (c *Client) Matches(ctx context.Context, userID string) ([]Match, error) {
	if userID == "" {
		return nil, nil
	}
	return runQuery(ctx, c, c.matchesQuery(userID))
}

func (c *Client) matchesQuery(userID string) queryDef[[]Match] {
	return queryDef[[]Match]{
		key:   K(ResMatches, userID),
		fresh: c.cfg.Moderate,
		fetch: func(ctx context.Context) ([]Match, error) {
			matches, err := c.store.MatchesForUser(ctx, userID)
			if err != nil {
				return nil, fmt.Errorf("fetch matches for %s: %w", userID, err)
			}
			for i := range matches {
				matches[i].OtherUserID = matches[i].OtherSide(userID)
				p, perr := c.store.Profile(ctx, matches[i].OtherUserID)
				if perr != nil {
					// A match without its profile is still renderable;
					// leave the enrichment empty.
					log.Printf("WARN: failed to load profile %s for match %s: %v",
						matches[i].OtherUserID, matches[i].ID, perr)
					continue
				}
				rp := p.Redacted()
				matches[i].OtherProfile = &rp
			}
			return matches, nil
		},
	}
}

// WatchMatches keeps the viewer's matches list live: while watched, any
// invalidation of the key triggers a background refetch instead of waiting
// for the next read. The returned cancel func unregisters the watcher.
// Disabled when userID is empty.
func (c *Client) WatchMatches(userID string) (cancel func()) {
	if userID == "" {
		return func() {}
	}
	return watchQuery(c, c.matchesQuery(userID))
}

// MatchCount returns the viewer's total match count. Disabled when userID is
// empty.
func (c *Client) MatchCount(ctx context.Context, userID string) (int64, error) {
	if userID == "" {
		return 0, nil
	}
	return runQuery(ctx, c, queryDef[int64]{
		key:   K(ResMatchCount, userID),
		fresh: c.cfg.Moderate,
		fetch: func(ctx context.Context) (int64, error) {
			return c.store.MatchCount(ctx, userID)
		},
	})
}

// invalidateMatchAggregates marks every match-derived key for a user stale:
// the matches list, the match count, and the unread-message count. Cross-key
// agreement is achieved by invalidating all of them on every relevant event,
// never by multi-key transactions.
func (c *Client) invalidateMatchAggregates(userID string) {
	c.cache.Invalidate(K(ResMatches, userID))
	c.cache.Invalidate(K(ResMatchCount, userID))
	c.cache.Invalidate(K(ResUnreadCount, userID))
}
