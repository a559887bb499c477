package heartsync

import (
	"context"
	"errors"
	"fmt"
	"log"
)

// LikedProfiles returns the profiles the user has liked. Disabled when
// userID is empty.
func (c *Client) LikedProfiles(ctx context.Context, userID string) ([]Profile, error) {
	if userID == "" {
		return nil, nil
	}
	return runQuery(ctx, c, queryDef[[]Profile]{
		key:   K(ResLikedProfiles, userID),
		fresh: c.cfg.Moderate,
		fetch: func(ctx context.Context) ([]Profile, error) {
			return c.store.LikedProfiles(ctx, userID)
		},
	})
}

// LikeProfile records a like edge. Idempotent: re-liking an already-liked
// profile is a no-op success, not an error. On success the liked profile is
// trimmed from every cached discovery working set and the discovery,
// matches, and liked-profiles keys are invalidated — a new mutual like may
// have just created a Match, which those invalidations will surface.
func (c *Client) LikeProfile(ctx context.Context, userID, profileID string) error {
	if userID == "" || profileID == "" {
		return ErrDisabled
	}

	exists, err := c.store.LikeExists(ctx, userID, profileID)
	if err != nil {
		return fmt.Errorf("check like %s -> %s: %w", userID, profileID, err)
	}
	if exists {
		log.Printf("Like %s -> %s already exists, skipping insert", userID, profileID)
	} else {
		if _, err := c.store.InsertLike(ctx, userID, profileID); err != nil {
			return fmt.Errorf("insert like %s -> %s: %w", userID, profileID, err)
		}
	}

	c.trimDiscovery(profileID)
	c.cache.InvalidatePrefix(ResDiscover)
	c.cache.InvalidateResource(ResMatches)
	c.cache.Invalidate(K(ResLikedProfiles, userID))
	return nil
}

// UnlikeProfile removes a like edge. If a match exists between the two users
// (either ordering), its cascading delete runs first; a failure there is
// logged but does NOT abort the unlike — the like-edge deletion proceeds
// regardless, prioritizing the unlike intent over perfect cleanup.
func (c *Client) UnlikeProfile(ctx context.Context, userID, profileID string) error {
	if userID == "" || profileID == "" {
		return ErrDisabled
	}

	match, err := c.store.MatchBetween(ctx, userID, profileID)
	switch {
	case err == nil:
		if derr := c.store.DeleteMatchCascade(ctx, match.ID); derr != nil {
			log.Printf("ERROR: cascading delete of match %s failed: %v (continuing with unlike)", match.ID, derr)
		}
		// The match is now gone or in an unknown state; either way a
		// conversation pointing at it must not stay selected.
		if c.SelectedConversation() == match.ID {
			c.CloseConversation()
		}
	case errors.Is(err, ErrNotFound):
		// Not matched; nothing to cascade.
	default:
		log.Printf("WARN: match lookup between %s and %s failed: %v (continuing with unlike)", userID, profileID, err)
	}

	if err := c.store.DeleteLike(ctx, userID, profileID); err != nil {
		return fmt.Errorf("delete like %s -> %s: %w", userID, profileID, err)
	}

	c.cache.Invalidate(K(ResLikedProfiles, userID))
	c.cache.InvalidateResource(ResMatches)
	c.cache.Invalidate(K(ResMatchCount, userID))
	c.cache.InvalidatePrefix(ResDiscover)
	return nil
}
