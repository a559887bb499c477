package heartsync_test

import (
	"testing"
	"time"

	"heartsync"
	feedmem "heartsync/drivers/feed/memory"
	storemem "heartsync/drivers/store/memory"

	"github.com/stretchr/testify/require"
)

// newTestClient builds a client over fresh in-memory drivers.
func newTestClient(t *testing.T) (*heartsync.Client, *storemem.Store, *feedmem.Feed) {
	t.Helper()
	store := storemem.NewStore()
	feed := feedmem.NewFeed()
	client, err := heartsync.New(heartsync.Config{Store: store, Feed: feed})
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	return client, store, feed
}

func seedProfile(store *storemem.Store, id string) heartsync.Profile {
	p := heartsync.Profile{
		ID:           id,
		Name:         "User " + id,
		Gender:       "female",
		Age:          30,
		State:        "CA",
		City:         "San Francisco",
		ShowAge:      true,
		ShowLocation: true,
		ShowOnline:   true,
		CreatedAt:    time.Now(),
	}
	store.AddProfile(p)
	return p
}
