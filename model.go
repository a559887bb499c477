package heartsync

import (
	"time"
)

// --- Domain Models ---

// Profile is a user profile as seen by the client. Which optional fields are
// populated depends on the owner's sharing preferences; store drivers apply
// Redacted before returning somebody else's profile.
type Profile struct {
	ID        string    `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	Gender    string    `json:"gender" db:"gender"`
	Age       int       `json:"age" db:"age"`
	State     string    `json:"state" db:"state"`
	City      string    `json:"city" db:"city"`
	Interests []string  `json:"interests" db:"-"`
	PhotoURL  string    `json:"photo_url" db:"photo_url"` // opaque object-storage URL
	Online    bool      `json:"online" db:"online"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`

	// Per-profile sharing preferences. Enforced remotely; carried here so
	// drivers and display code agree on what is visible.
	ShowAge      bool `json:"show_age" db:"show_age"`
	ShowLocation bool `json:"show_location" db:"show_location"`
	ShowOnline   bool `json:"show_online" db:"show_online"`
}

// Redacted returns a copy with the fields the owner chose not to share
// zeroed out. Drivers call this for every profile served to another viewer.
func (p Profile) Redacted() Profile {
	if !p.ShowAge {
		p.Age = 0
	}
	if !p.ShowLocation {
		p.State = ""
		p.City = ""
	}
	if !p.ShowOnline {
		p.Online = false
	}
	return p
}

// Match is a mutual-like pairing between two users. The client only observes
// matches; creation and deletion happen remotely.
type Match struct {
	ID        string    `json:"id" db:"id"`
	User1ID   string    `json:"user1_id" db:"user1_id"`
	User2ID   string    `json:"user2_id" db:"user2_id"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`

	// Viewer-side enrichment, computed when the matches query resolves.
	// Never persisted.
	OtherUserID  string   `json:"other_user_id,omitempty" db:"-"`
	OtherProfile *Profile `json:"other_profile,omitempty" db:"-"`
}

// OtherSide returns the match participant that is not the viewer.
func (m Match) OtherSide(viewerID string) string {
	if m.User1ID == viewerID {
		return m.User2ID
	}
	return m.User1ID
}

// Involves reports whether the given user is one of the two participants.
func (m Match) Involves(userID string) bool {
	return m.User1ID == userID || m.User2ID == userID
}

// Message is a single chat message within a match. ID is the dedup key for
// every cache-merge operation: a merge must never produce two entries with
// the same ID.
type Message struct {
	ID        string     `json:"id" db:"id"`
	MatchID   string     `json:"match_id" db:"match_id"`
	SenderID  string     `json:"sender_id" db:"sender_id"`
	Content   string     `json:"content" db:"content"`
	CreatedAt time.Time  `json:"created_at" db:"created_at"`
	ReadAt    *time.Time `json:"read_at,omitempty" db:"read_at"`
}

// Like is a directed edge. A mutual pair of edges is promoted into a Match
// by the remote store's matching logic.
type Like struct {
	LikerID   string    `json:"liker_id" db:"liker_id"`
	LikedID   string    `json:"liked_id" db:"liked_id"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// DiscoveryFilter narrows discovery candidates. Pure value object; it is
// part of the discovery cache key, so distinct filters occupy distinct
// cache slots. Zero values mean "no constraint".
type DiscoveryFilter struct {
	Gender    string   `json:"gender,omitempty"`
	AgeMin    int      `json:"age_min,omitempty"`
	AgeMax    int      `json:"age_max,omitempty"` // inclusive
	State     string   `json:"state,omitempty"`
	City      string   `json:"city,omitempty"`
	Interests []string `json:"interests,omitempty"`
}

// Allows reports whether a candidate profile passes the filter. Age bounds
// are inclusive. Used by the fallback discovery path; the optimized path
// pushes the same predicate to the remote store.
func (f DiscoveryFilter) Allows(p Profile) bool {
	if f.Gender != "" && p.Gender != f.Gender {
		return false
	}
	if f.AgeMin > 0 && p.Age < f.AgeMin {
		return false
	}
	if f.AgeMax > 0 && p.Age > f.AgeMax {
		return false
	}
	if f.State != "" && p.State != f.State {
		return false
	}
	if f.City != "" && p.City != f.City {
		return false
	}
	if len(f.Interests) > 0 {
		have := make(map[string]struct{}, len(p.Interests))
		for _, it := range p.Interests {
			have[it] = struct{}{}
		}
		any := false
		for _, it := range f.Interests {
			if _, ok := have[it]; ok {
				any = true
				break
			}
		}
		if !any {
			return false
		}
	}
	return true
}
