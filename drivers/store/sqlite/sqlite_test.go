package sqlite_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"heartsync"
	"heartsync/drivers/store/sqlite"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *sqlite.Store {
	t.Helper()
	store, err := sqlite.NewStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func saveProfile(t *testing.T, store *sqlite.Store, p heartsync.Profile) {
	t.Helper()
	require.NoError(t, store.SaveProfile(context.Background(), p))
}

func TestStore_ProfileRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	in := heartsync.Profile{
		ID: "alice", Name: "Alice", Gender: "female", Age: 31,
		State: "CA", City: "San Francisco",
		Interests: []string{"climbing", "jazz"},
		PhotoURL:  "https://cdn.example/alice.jpg",
		Online:    true, ShowAge: true, ShowLocation: true, ShowOnline: true,
		CreatedAt: time.Now().UTC().Truncate(time.Second),
	}
	saveProfile(t, store, in)

	out, err := store.Profile(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, in.Name, out.Name)
	assert.Equal(t, in.Interests, out.Interests)
	assert.Equal(t, in.Age, out.Age)
	assert.True(t, out.Online)

	_, err = store.Profile(ctx, "nobody")
	assert.ErrorIs(t, err, heartsync.ErrNotFound)
}

func TestStore_DiscoverFiltersAndPaginates(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	base := time.Now().UTC().Add(-time.Hour)

	saveProfile(t, store, heartsync.Profile{ID: "viewer", Name: "Viewer", CreatedAt: base})
	for i := 0; i < 6; i++ {
		saveProfile(t, store, heartsync.Profile{
			ID: fmt.Sprintf("cand-%d", i), Name: fmt.Sprintf("Candidate %d", i),
			Gender: "female", Age: 25 + i, ShowAge: true, ShowLocation: true,
			Interests: []string{"hiking"},
			CreatedAt: base.Add(time.Duration(i+1) * time.Minute),
		})
	}
	saveProfile(t, store, heartsync.Profile{
		ID: "other", Name: "Other", Gender: "male", Age: 40, ShowAge: true,
		CreatedAt: base.Add(time.Hour),
	})

	filter := heartsync.DiscoveryFilter{Gender: "female", AgeMin: 26, Interests: []string{"hiking"}}
	first, err := store.DiscoverProfiles(ctx, "viewer", filter, []string{"cand-2"}, 0, 2)
	require.NoError(t, err)
	require.Len(t, first, 2)
	assert.Equal(t, "cand-1", first[0].ID, "cand-0 fails AgeMin, ordering is by created_at")
	assert.Equal(t, "cand-3", first[1].ID, "cand-2 is excluded")

	second, err := store.DiscoverProfiles(ctx, "viewer", filter, []string{"cand-2"}, 2, 2)
	require.NoError(t, err)
	require.Len(t, second, 2)
	assert.Equal(t, "cand-4", second[0].ID)
	assert.Equal(t, "cand-5", second[1].ID)
}

func TestStore_LikesAndMatchPromotion(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	saveProfile(t, store, heartsync.Profile{ID: "alice", Name: "Alice"})
	saveProfile(t, store, heartsync.Profile{ID: "bob", Name: "Bob"})

	_, err := store.InsertLike(ctx, "alice", "bob")
	require.NoError(t, err)
	exists, err := store.LikeExists(ctx, "alice", "bob")
	require.NoError(t, err)
	assert.True(t, exists)
	_, err = store.MatchBetween(ctx, "alice", "bob")
	assert.ErrorIs(t, err, heartsync.ErrNotFound)

	_, err = store.InsertLike(ctx, "bob", "alice")
	require.NoError(t, err)
	match, err := store.MatchBetween(ctx, "bob", "alice")
	require.NoError(t, err)

	// The promotion is idempotent under duplicate likes.
	_, err = store.InsertLike(ctx, "alice", "bob")
	require.NoError(t, err)
	count, err := store.MatchCount(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	// Cascade delete removes the match and its conversation.
	_, err = store.InsertMessage(ctx, match.ID, "alice", "hi")
	require.NoError(t, err)
	require.NoError(t, store.DeleteMatchCascade(ctx, match.ID))
	_, err = store.MatchBetween(ctx, "alice", "bob")
	assert.ErrorIs(t, err, heartsync.ErrNotFound)
	msgs, err := store.MessagesForMatch(ctx, match.ID)
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestStore_MessageReadFlow(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	saveProfile(t, store, heartsync.Profile{ID: "alice", Name: "Alice"})
	saveProfile(t, store, heartsync.Profile{ID: "bob", Name: "Bob"})
	_, err := store.InsertLike(ctx, "alice", "bob")
	require.NoError(t, err)
	_, err = store.InsertLike(ctx, "bob", "alice")
	require.NoError(t, err)
	match, err := store.MatchBetween(ctx, "alice", "bob")
	require.NoError(t, err)

	_, err = store.InsertMessage(ctx, match.ID, "bob", "hello")
	require.NoError(t, err)
	_, err = store.InsertMessage(ctx, match.ID, "alice", "hey")
	require.NoError(t, err)

	unread, err := store.UnreadCount(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(1), unread)

	n, err := store.MarkMessagesRead(ctx, match.ID, "alice", time.Now().UTC())
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	unread, err = store.UnreadCount(ctx, "alice")
	require.NoError(t, err)
	assert.Zero(t, unread)

	msgs, err := store.MessagesForMatch(ctx, match.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.NotNil(t, msgs[0].ReadAt, "bob's message is stamped")
	assert.Nil(t, msgs[1].ReadAt, "alice's own message is not")
}
