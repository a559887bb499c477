package heartsync

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"heartsync/internal/utils"
)

// Resource names. Prefix-matching on these allows bulk invalidation of every
// key sharing a prefix (e.g. invalidating "discover-profiles" covers both
// discovery variants).
const (
	ResMatches           = "matches"
	ResMatchCount        = "match-count"
	ResMessages          = "match-messages"
	ResMessagesPaginated = "match-messages-paginated"
	ResDiscover          = "discover-profiles"
	ResDiscoverFallback  = "discover-profiles-fallback"
	ResLikedProfiles     = "liked-profiles"
	ResOwnProfile        = "own-profile"
	ResUnreadCount       = "unread-message-count"
)

// Key identifies one cache slot: a logical resource name plus its parameters.
// Two keys built from structurally equal parameters resolve to the same slot.
type Key struct {
	Resource string
	Params   []interface{}
}

// K builds a Key.
func K(resource string, params ...interface{}) Key {
	return Key{Resource: resource, Params: params}
}

// String renders the key as "{resource}:{hash}" with normalized parameters,
// so parameter construction order never changes the slot.
func (k Key) String() string {
	normalized := make([]interface{}, len(k.Params))
	for i, p := range k.Params {
		normalized[i] = utils.NormalizeValue(jsonRoundTrip(p))
	}
	return fmt.Sprintf("%s:%s", k.Resource, generateParamsHash(normalized))
}

// jsonRoundTrip reduces structured params (e.g. DiscoveryFilter) to plain
// maps/slices so normalization sees a canonical shape.
func jsonRoundTrip(v interface{}) interface{} {
	switch v.(type) {
	case nil, string, bool, int, int32, int64, float32, float64, time.Time:
		return v
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return v
	}
	var out interface{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return v
	}
	return out
}

// generateParamsHash generates a short unique hash for key parameters.
func generateParamsHash(params []interface{}) string {
	paramsJson, err := json.Marshal(params)
	if err != nil {
		log.Printf("ERROR: Failed to marshal key params for hash: %v", err)
		return fmt.Sprintf("error_hash_%d", time.Now().UnixNano())
	}
	hasher := sha256.New()
	hasher.Write(paramsJson)
	fullHash := hex.EncodeToString(hasher.Sum(nil))
	// Return only first 8 characters for shorter cache keys (32-bit hex = 8 chars)
	if len(fullHash) >= 8 {
		return fullHash[:8]
	}
	return fullHash
}
