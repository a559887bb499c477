package heartsync_test

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"heartsync"
	storemem "heartsync/drivers/store/memory"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// seedConversation creates a match between alice and bob with n messages,
// one per minute, oldest first, alternating senders.
func seedConversation(store *storemem.Store, n int) heartsync.Match {
	base := time.Now().Add(-time.Duration(n) * time.Minute)
	match := store.AddMatch(heartsync.Match{User1ID: "alice", User2ID: "bob"})
	for i := 0; i < n; i++ {
		sender := "alice"
		if i%2 == 1 {
			sender = "bob"
		}
		store.AddMessage(heartsync.Message{
			ID:        fmt.Sprintf("msg-%02d", i),
			MatchID:   match.ID,
			SenderID:  sender,
			Content:   fmt.Sprintf("message %d", i),
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		})
	}
	return match
}

func TestMessagePager_PagesNewestFirstRendersChronological(t *testing.T) {
	store := storemem.NewStore()
	match := seedConversation(store, 45)
	client, err := heartsync.New(heartsync.Config{Store: store, MessagePageSize: 20})
	require.NoError(t, err)
	defer client.Close()

	pager := client.MessagePager(match.ID)
	defer pager.Close()
	ctx := context.Background()

	assert.True(t, pager.HasMore(), "unloaded pager must report more")

	// First page: the newest 20 messages.
	require.NoError(t, pager.LoadMore(ctx))
	msgs := pager.Messages()
	require.Len(t, msgs, 20)
	assert.Equal(t, "msg-25", msgs[0].ID)
	assert.Equal(t, "msg-44", msgs[19].ID)
	assert.True(t, pager.HasMore())

	require.NoError(t, pager.LoadMore(ctx))
	require.Len(t, pager.Messages(), 40)
	assert.True(t, pager.HasMore())

	// Last page is short: 5 rows, pagination ends.
	require.NoError(t, pager.LoadMore(ctx))
	msgs = pager.Messages()
	require.Len(t, msgs, 45)
	assert.False(t, pager.HasMore())
	assert.Equal(t, 45, pager.TotalLoaded())

	for i, m := range msgs {
		assert.Equal(t, fmt.Sprintf("msg-%02d", i), m.ID, "window must stay chronological across pages")
	}

	// Exhausted pager: LoadMore is a no-op.
	calls := store.Calls("MessagesBefore")
	require.NoError(t, pager.LoadMore(ctx))
	assert.Equal(t, calls, store.Calls("MessagesBefore"))
}

func TestMessagePager_DisabledWithoutMatch(t *testing.T) {
	client, store, _ := newTestClient(t)
	pager := client.MessagePager("")
	defer pager.Close()

	require.NoError(t, pager.LoadMore(context.Background()))
	assert.Empty(t, pager.Messages())
	assert.Zero(t, store.Calls("MessagesBefore"))
}

func TestSendMessage_OptimisticThenEchoIsSingleEntry(t *testing.T) {
	client, store, feed := newTestClient(t)
	match := seedConversation(store, 0)

	pager := client.MessagePager(match.ID)
	defer pager.Close()
	ctx := context.Background()
	require.NoError(t, pager.LoadMore(ctx))

	sent, err := client.SendMessage(ctx, match.ID, "alice", "hello")
	require.NoError(t, err)

	// The optimistic append is visible before any realtime delivery.
	require.Len(t, pager.Messages(), 1)
	assert.Equal(t, sent.ID, pager.Messages()[0].ID)

	// The realtime echo of the same row must be a no-op.
	_, err = client.OpenConversation(ctx, match.ID)
	require.NoError(t, err)
	payload, _ := json.Marshal(sent)
	feed.Publish(heartsync.Event{
		Channel: "conversation:" + match.ID,
		Table:   "messages",
		Op:      heartsync.OpInsert,
		Payload: payload,
	})

	assert.Len(t, pager.Messages(), 1, "echo after optimistic write must deduplicate")
}

func TestSendMessage_RejectedWriteChangesNothing(t *testing.T) {
	client, store, _ := newTestClient(t)
	match := seedConversation(store, 1)

	ctx := context.Background()
	msgs, err := client.Messages(ctx, match.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 1)

	store.FailWith("InsertMessage", assert.AnError)
	_, err = client.SendMessage(ctx, match.ID, "alice", "hello")
	require.Error(t, err)

	msgs, err = client.Messages(ctx, match.ID)
	require.NoError(t, err)
	assert.Len(t, msgs, 1, "a rejected insert must not leave an optimistic row behind")
}

func TestSendMessage_Disabled(t *testing.T) {
	client, _, _ := newTestClient(t)
	_, err := client.SendMessage(context.Background(), "", "alice", "hello")
	assert.ErrorIs(t, err, heartsync.ErrDisabled)
}

func TestMarkMessagesRead_StampsOtherPartyAndPatchesCache(t *testing.T) {
	client, store, _ := newTestClient(t)
	match := seedConversation(store, 4) // alice, bob, alice, bob

	ctx := context.Background()
	msgs, err := client.Messages(ctx, match.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 4)

	require.NoError(t, client.MarkMessagesRead(ctx, match.ID, "alice"))

	// The cached list is patched in place, without a refetch.
	calls := store.Calls("MessagesForMatch")
	msgs, err = client.Messages(ctx, match.ID)
	require.NoError(t, err)
	assert.Equal(t, calls, store.Calls("MessagesForMatch"))
	for _, m := range msgs {
		if m.SenderID == "bob" {
			assert.NotNil(t, m.ReadAt, "message %s from bob should be stamped", m.ID)
		} else {
			assert.Nil(t, m.ReadAt, "alice's own message %s must stay unstamped", m.ID)
		}
	}

	// The remote rows carry the stamp too.
	n, err := store.UnreadCount(ctx, "alice")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestMessages_FlatListChronological(t *testing.T) {
	client, store, _ := newTestClient(t)
	match := seedConversation(store, 5)

	msgs, err := client.Messages(context.Background(), match.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 5)
	for i := 1; i < len(msgs); i++ {
		assert.False(t, msgs[i].CreatedAt.Before(msgs[i-1].CreatedAt))
	}
}
