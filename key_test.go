package heartsync_test

import (
	"testing"

	"heartsync"

	"github.com/stretchr/testify/assert"
)

func TestKey_StructuralEquality(t *testing.T) {
	filterA := heartsync.DiscoveryFilter{Gender: "female", AgeMin: 25, AgeMax: 35}
	filterB := heartsync.DiscoveryFilter{Gender: "female", AgeMin: 25, AgeMax: 35}

	keyA := heartsync.K(heartsync.ResDiscover, "user-1", filterA)
	keyB := heartsync.K(heartsync.ResDiscover, "user-1", filterB)

	// Structurally equal params resolve to the same cache slot even though
	// the Key values were built independently.
	assert.Equal(t, keyA.String(), keyB.String())
}

func TestKey_DistinctParamsDistinctSlots(t *testing.T) {
	base := heartsync.K(heartsync.ResDiscover, "user-1", heartsync.DiscoveryFilter{Gender: "female"})
	otherFilter := heartsync.K(heartsync.ResDiscover, "user-1", heartsync.DiscoveryFilter{Gender: "male"})
	otherUser := heartsync.K(heartsync.ResDiscover, "user-2", heartsync.DiscoveryFilter{Gender: "female"})
	otherResource := heartsync.K(heartsync.ResDiscoverFallback, "user-1", heartsync.DiscoveryFilter{Gender: "female"})

	assert.NotEqual(t, base.String(), otherFilter.String())
	assert.NotEqual(t, base.String(), otherUser.String())
	assert.NotEqual(t, base.String(), otherResource.String())
}

func TestKey_ResourcePrefix(t *testing.T) {
	key := heartsync.K(heartsync.ResMatches, "user-1")
	assert.Contains(t, key.String(), heartsync.ResMatches+":")
}
