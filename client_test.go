package heartsync_test

import (
	"context"
	"testing"
	"time"

	"heartsync"
	storemem "heartsync/drivers/store/memory"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_RequiresStore(t *testing.T) {
	_, err := heartsync.New(heartsync.Config{})
	assert.ErrorIs(t, err, heartsync.ErrStoreNotSet)
}

func TestNew_FeedIsOptional(t *testing.T) {
	client, err := heartsync.New(heartsync.Config{Store: storemem.NewStore()})
	require.NoError(t, err)
	defer client.Close()
}

func TestNew_RejectsInvertedFreshnessWindow(t *testing.T) {
	_, err := heartsync.New(heartsync.Config{
		Store:    storemem.NewStore(),
		Volatile: heartsync.Freshness{StaleAfter: time.Hour, Retain: time.Minute},
	})
	assert.ErrorIs(t, err, heartsync.ErrFreshnessWindow)
}

func TestNew_RejectsNegativePageSize(t *testing.T) {
	_, err := heartsync.New(heartsync.Config{
		Store:           storemem.NewStore(),
		MessagePageSize: -5,
	})
	assert.ErrorIs(t, err, heartsync.ErrInvalidPageSize)
}

func TestClient_CloseTearsDownSubscriptions(t *testing.T) {
	client, store, feed := newTestClient(t)
	match := seedConversation(store, 0)

	ctx := context.Background()
	_, err := client.SubscribeUser(ctx, "alice")
	require.NoError(t, err)
	_, err = client.OpenConversation(ctx, match.ID)
	require.NoError(t, err)

	require.NoError(t, client.Close())
	assert.Zero(t, feed.SubscriberCount("user:alice"))
	assert.Zero(t, feed.SubscriberCount("conversation:"+match.ID))
	assert.Empty(t, client.SelectedConversation())
}
