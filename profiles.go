package heartsync

import (
	"context"
	"fmt"
)

// OwnProfile returns the viewer's own profile, unredacted. Rarely-changing
// data, so it uses the long freshness windows. Disabled when userID is
// empty.
func (c *Client) OwnProfile(ctx context.Context, userID string) (Profile, error) {
	if userID == "" {
		return Profile{}, nil
	}
	return runQuery(ctx, c, queryDef[Profile]{
		key:   K(ResOwnProfile, userID),
		fresh: c.cfg.Stable,
		fetch: func(ctx context.Context) (Profile, error) {
			p, err := c.store.Profile(ctx, userID)
			if err != nil {
				return Profile{}, fmt.Errorf("fetch own profile %s: %w", userID, err)
			}
			return p, nil
		},
	})
}
