package heartsync

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func msgAt(id string, at time.Time) Message {
	return Message{ID: id, MatchID: "m1", SenderID: "alice", Content: "hi " + id, CreatedAt: at}
}

func TestInsertMessage_DedupByID(t *testing.T) {
	base := time.Now()
	w := messageWindow{}
	w = insertMessage(w, msgAt("a", base))
	w = insertMessage(w, msgAt("b", base.Add(time.Second)))
	require.Len(t, w.Messages, 2)
	require.Equal(t, 2, w.TotalLoaded)

	// Duplicate delivery (optimistic write then realtime echo) is a no-op.
	echoed := insertMessage(w, msgAt("a", base))
	assert.Equal(t, w, echoed)
}

func TestInsertMessage_KeepsChronologicalOrder(t *testing.T) {
	base := time.Now()
	w := messageWindow{}
	w = insertMessage(w, msgAt("late", base.Add(time.Minute)))
	w = insertMessage(w, msgAt("early", base))

	require.Len(t, w.Messages, 2)
	assert.Equal(t, "early", w.Messages[0].ID)
	assert.Equal(t, "late", w.Messages[1].ID)
}

func TestRemoveMessage_SecondDeliveryNoOp(t *testing.T) {
	base := time.Now()
	w := messageWindow{}
	w = insertMessage(w, msgAt("a", base))
	w = insertMessage(w, msgAt("b", base.Add(time.Second)))

	w = removeMessage(w, "a")
	require.Len(t, w.Messages, 1)
	require.Equal(t, 1, w.TotalLoaded)

	again := removeMessage(w, "a")
	assert.Equal(t, w, again, "re-delivered delete must not decrement again")
}

func TestReplaceMessage_UnknownIDIgnored(t *testing.T) {
	base := time.Now()
	w := insertMessage(messageWindow{}, msgAt("a", base))

	edited := msgAt("a", base)
	edited.Content = "edited"
	w = replaceMessage(w, edited)
	assert.Equal(t, "edited", w.Messages[0].Content)

	before := w
	w = replaceMessage(w, msgAt("ghost", base))
	assert.Equal(t, before, w)
}

func TestMergeOlderPage_ReconstructsChronologyFromNewestFirstPages(t *testing.T) {
	base := time.Now()
	// Ten messages, m0 oldest .. m9 newest.
	all := make([]Message, 10)
	for i := range all {
		all[i] = msgAt(fmt.Sprintf("m%d", i), base.Add(time.Duration(i)*time.Minute))
	}

	// Pages arrive newest first: [m9..m5], then [m4..m0].
	newest := []Message{all[9], all[8], all[7], all[6], all[5]}
	older := []Message{all[4], all[3], all[2], all[1], all[0]}

	w := mergeOlderPage(messageWindow{}, newest, 5)
	require.True(t, w.HasMore, "full page means more may exist")
	require.Equal(t, all[5].CreatedAt, w.OldestLoaded)

	w = mergeOlderPage(w, older, 5)
	require.Len(t, w.Messages, 10)
	for i, m := range w.Messages {
		assert.Equal(t, fmt.Sprintf("m%d", i), m.ID, "window must be globally chronological")
	}
	assert.Equal(t, all[0].CreatedAt, w.OldestLoaded)
}

func TestMergeOlderPage_ShortPageEndsPagination(t *testing.T) {
	base := time.Now()
	page := []Message{msgAt("a", base)}
	w := mergeOlderPage(messageWindow{}, page, 5)
	assert.True(t, w.Loaded)
	assert.False(t, w.HasMore)
}

func TestMergeOlderPage_TotalLoadedCountsRawPageVolume(t *testing.T) {
	base := time.Now()
	w := insertMessage(messageWindow{}, msgAt("a", base))
	require.Equal(t, 1, w.TotalLoaded)

	// The page overlaps the already-inserted message; the duplicate is
	// dropped from the window but still counted, so the running total
	// tracks requested volume, not the deduplicated length.
	page := []Message{msgAt("b", base.Add(time.Second)), msgAt("a", base)}
	w = mergeOlderPage(w, page, 5)
	assert.Len(t, w.Messages, 2)
	assert.Equal(t, 3, w.TotalLoaded)
}

func TestStampRead_OnlyOtherPartyUnread(t *testing.T) {
	base := time.Now()
	already := base.Add(-time.Hour)
	msgs := []Message{
		{ID: "mine", SenderID: "alice", CreatedAt: base},
		{ID: "theirs", SenderID: "bob", CreatedAt: base},
		{ID: "seen", SenderID: "bob", CreatedAt: base, ReadAt: &already},
	}

	at := base.Add(time.Minute)
	out := stampRead(msgs, "alice", at)

	assert.Nil(t, out[0].ReadAt, "own messages are never stamped")
	require.NotNil(t, out[1].ReadAt)
	assert.Equal(t, at, *out[1].ReadAt)
	assert.Equal(t, already, *out[2].ReadAt, "existing stamps are preserved")

	// Idempotent under duplicate delivery.
	twice := stampRead(out, "alice", at.Add(time.Hour))
	assert.Equal(t, out, twice)
}

func TestAppendCandidates_DedupAndCursor(t *testing.T) {
	p := func(id string) Profile { return Profile{ID: id} }

	w := appendCandidates(discoverWindow{}, []Profile{p("a"), p("b")}, 2)
	assert.True(t, w.HasMore)
	assert.Equal(t, 1, w.NextPage)

	w = appendCandidates(w, []Profile{p("b"), p("c")}, 2)
	require.Len(t, w.Profiles, 3)
	assert.Equal(t, 2, w.NextPage)

	w = appendCandidates(w, []Profile{p("d")}, 2)
	assert.False(t, w.HasMore, "short page terminates pagination")
}

func TestRemoveCandidate_Idempotent(t *testing.T) {
	w := appendCandidates(discoverWindow{}, []Profile{{ID: "a"}, {ID: "b"}}, 5)
	w = removeCandidate(w, "a")
	require.Len(t, w.Profiles, 1)
	again := removeCandidate(w, "a")
	assert.Equal(t, w, again)
}

func TestReduceStrategy_LatchesFallback(t *testing.T) {
	cur := StrategyPrimary
	cur = reduceStrategy(cur, nil)
	assert.Equal(t, StrategyPrimary, cur)

	cur = reduceStrategy(cur, assert.AnError)
	assert.Equal(t, StrategyFallback, cur)

	// A later primary success must not flip back.
	cur = reduceStrategy(cur, nil)
	assert.Equal(t, StrategyFallback, cur)
}
