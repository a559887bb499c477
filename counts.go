package heartsync

import "context"

// UnreadCount returns the number of unread messages addressed to the user
// across all matches. Disabled when userID is empty.
func (c *Client) UnreadCount(ctx context.Context, userID string) (int64, error) {
	if userID == "" {
		return 0, nil
	}
	return runQuery(ctx, c, queryDef[int64]{
		key:   K(ResUnreadCount, userID),
		fresh: c.cfg.Moderate,
		fetch: func(ctx context.Context) (int64, error) {
			return c.store.UnreadCount(ctx, userID)
		},
	})
}
