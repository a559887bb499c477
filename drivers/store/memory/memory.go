// Package memory provides an in-process Store implementation. It is the
// reference backend for tests and demos: deterministic ordering, seed
// helpers, per-operation call counters and error injection.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"heartsync"

	"github.com/google/uuid"
)

// Store keeps all rows in maps guarded by a single RWMutex. Reads return
// copies so callers can never mutate the backing data.
type Store struct {
	mu       sync.RWMutex
	profiles map[string]heartsync.Profile
	matches  map[string]heartsync.Match
	messages map[string][]heartsync.Message // matchID -> chronological
	likes    map[string]map[string]heartsync.Like

	calls    map[string]int
	failures map[string]error

	now func() time.Time
}

// NewStore returns an empty Store.
func NewStore() *Store {
	return &Store{
		profiles: make(map[string]heartsync.Profile),
		matches:  make(map[string]heartsync.Match),
		messages: make(map[string][]heartsync.Message),
		likes:    make(map[string]map[string]heartsync.Like),
		calls:    make(map[string]int),
		failures: make(map[string]error),
		now:      time.Now,
	}
}

// SetClock overrides the time source. Tests use this to control
// created_at / read_at stamps.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// FailWith makes every subsequent call to the named operation (e.g.
// "DiscoverProfiles") return err. Pass nil to clear.
func (s *Store) FailWith(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.failures, op)
		return
	}
	s.failures[op] = err
}

// Calls reports how many times the named operation has been invoked.
func (s *Store) Calls(op string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.calls[op]
}

func (s *Store) enter(op string) error {
	s.calls[op]++
	return s.failures[op]
}

// --- seed helpers ---

// AddProfile inserts or replaces a profile row.
func (s *Store) AddProfile(p heartsync.Profile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = s.now()
	}
	s.profiles[p.ID] = p
}

// AddMatch inserts a match row, assigning an ID when empty, and returns it.
func (s *Store) AddMatch(m heartsync.Match) heartsync.Match {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = s.now()
	}
	s.matches[m.ID] = m
	return m
}

// AddMessage appends a message row, assigning an ID when empty, and returns it.
func (s *Store) AddMessage(m heartsync.Message) heartsync.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = s.now()
	}
	s.messages[m.MatchID] = append(s.messages[m.MatchID], m)
	return m
}

// AddLike seeds a like edge without the mutual-match promotion.
func (s *Store) AddLike(likerID, likedID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.likes[likerID] == nil {
		s.likes[likerID] = make(map[string]heartsync.Like)
	}
	s.likes[likerID][likedID] = heartsync.Like{LikerID: likerID, LikedID: likedID, CreatedAt: s.now()}
}

// --- Store interface ---

func (s *Store) Profile(ctx context.Context, id string) (heartsync.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("Profile"); err != nil {
		return heartsync.Profile{}, err
	}
	p, ok := s.profiles[id]
	if !ok {
		return heartsync.Profile{}, heartsync.ErrNotFound
	}
	return p, nil
}

func (s *Store) Profiles(ctx context.Context) ([]heartsync.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("Profiles"); err != nil {
		return nil, err
	}
	out := make([]heartsync.Profile, 0, len(s.profiles))
	for _, p := range s.profiles {
		out = append(out, p)
	}
	sortProfiles(out)
	return out, nil
}

func (s *Store) DiscoverProfiles(ctx context.Context, viewerID string, filter heartsync.DiscoveryFilter, excludeIDs []string, offset, limit int) ([]heartsync.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("DiscoverProfiles"); err != nil {
		return nil, err
	}
	excluded := make(map[string]struct{}, len(excludeIDs)+1)
	excluded[viewerID] = struct{}{}
	for _, id := range excludeIDs {
		excluded[id] = struct{}{}
	}
	var pool []heartsync.Profile
	for _, p := range s.profiles {
		if _, skip := excluded[p.ID]; skip {
			continue
		}
		if !filter.Allows(p) {
			continue
		}
		pool = append(pool, p.Redacted())
	}
	sortProfiles(pool)
	return page(pool, offset, limit), nil
}

func (s *Store) MatchesForUser(ctx context.Context, userID string) ([]heartsync.Match, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("MatchesForUser"); err != nil {
		return nil, err
	}
	var out []heartsync.Match
	for _, m := range s.matches {
		if m.Involves(userID) {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *Store) MatchBetween(ctx context.Context, userA, userB string) (heartsync.Match, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("MatchBetween"); err != nil {
		return heartsync.Match{}, err
	}
	for _, m := range s.matches {
		if (m.User1ID == userA && m.User2ID == userB) || (m.User1ID == userB && m.User2ID == userA) {
			return m, nil
		}
	}
	return heartsync.Match{}, heartsync.ErrNotFound
}

func (s *Store) DeleteMatchCascade(ctx context.Context, matchID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("DeleteMatchCascade"); err != nil {
		return err
	}
	delete(s.matches, matchID)
	delete(s.messages, matchID)
	return nil
}

func (s *Store) MatchCount(ctx context.Context, userID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("MatchCount"); err != nil {
		return 0, err
	}
	var n int64
	for _, m := range s.matches {
		if m.Involves(userID) {
			n++
		}
	}
	return n, nil
}

func (s *Store) MessagesForMatch(ctx context.Context, matchID string) ([]heartsync.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("MessagesForMatch"); err != nil {
		return nil, err
	}
	out := append([]heartsync.Message(nil), s.messages[matchID]...)
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *Store) MessagesBefore(ctx context.Context, matchID string, before time.Time, limit int) ([]heartsync.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("MessagesBefore"); err != nil {
		return nil, err
	}
	var pool []heartsync.Message
	for _, m := range s.messages[matchID] {
		if before.IsZero() || m.CreatedAt.Before(before) {
			pool = append(pool, m)
		}
	}
	// Newest first.
	sort.Slice(pool, func(i, j int) bool {
		if !pool[i].CreatedAt.Equal(pool[j].CreatedAt) {
			return pool[i].CreatedAt.After(pool[j].CreatedAt)
		}
		return pool[i].ID > pool[j].ID
	})
	if limit > 0 && len(pool) > limit {
		pool = pool[:limit]
	}
	return pool, nil
}

func (s *Store) InsertMessage(ctx context.Context, matchID, senderID, content string) (heartsync.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("InsertMessage"); err != nil {
		return heartsync.Message{}, err
	}
	msg := heartsync.Message{
		ID:        uuid.NewString(),
		MatchID:   matchID,
		SenderID:  senderID,
		Content:   content,
		CreatedAt: s.now().UTC(),
	}
	s.messages[matchID] = append(s.messages[matchID], msg)
	return msg, nil
}

func (s *Store) MarkMessagesRead(ctx context.Context, matchID, readerID string, at time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("MarkMessagesRead"); err != nil {
		return 0, err
	}
	var stamped int64
	msgs := s.messages[matchID]
	for i := range msgs {
		if msgs[i].SenderID != readerID && msgs[i].ReadAt == nil {
			t := at
			msgs[i].ReadAt = &t
			stamped++
		}
	}
	return stamped, nil
}

func (s *Store) UnreadCount(ctx context.Context, userID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("UnreadCount"); err != nil {
		return 0, err
	}
	var n int64
	for matchID, msgs := range s.messages {
		m, ok := s.matches[matchID]
		if !ok || !m.Involves(userID) {
			continue
		}
		for _, msg := range msgs {
			if msg.SenderID != userID && msg.ReadAt == nil {
				n++
			}
		}
	}
	return n, nil
}

func (s *Store) LikeExists(ctx context.Context, likerID, likedID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("LikeExists"); err != nil {
		return false, err
	}
	_, ok := s.likes[likerID][likedID]
	return ok, nil
}

// InsertLike records the like edge. A mutual like promotes the pair to a
// match immediately, mirroring what the backend does on a reciprocal swipe.
func (s *Store) InsertLike(ctx context.Context, likerID, likedID string) (heartsync.Like, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("InsertLike"); err != nil {
		return heartsync.Like{}, err
	}
	like := heartsync.Like{LikerID: likerID, LikedID: likedID, CreatedAt: s.now().UTC()}
	if s.likes[likerID] == nil {
		s.likes[likerID] = make(map[string]heartsync.Like)
	}
	s.likes[likerID][likedID] = like
	if _, mutual := s.likes[likedID][likerID]; mutual && !s.matchExistsLocked(likerID, likedID) {
		id := uuid.NewString()
		s.matches[id] = heartsync.Match{
			ID:        id,
			User1ID:   likerID,
			User2ID:   likedID,
			CreatedAt: like.CreatedAt,
		}
	}
	return like, nil
}

func (s *Store) DeleteLike(ctx context.Context, likerID, likedID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("DeleteLike"); err != nil {
		return err
	}
	delete(s.likes[likerID], likedID)
	return nil
}

func (s *Store) LikedProfiles(ctx context.Context, likerID string) ([]heartsync.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("LikedProfiles"); err != nil {
		return nil, err
	}
	edges := make([]heartsync.Like, 0, len(s.likes[likerID]))
	for _, l := range s.likes[likerID] {
		edges = append(edges, l)
	}
	sort.Slice(edges, func(i, j int) bool {
		if !edges[i].CreatedAt.Equal(edges[j].CreatedAt) {
			return edges[i].CreatedAt.After(edges[j].CreatedAt)
		}
		return edges[i].LikedID < edges[j].LikedID
	})
	var out []heartsync.Profile
	for _, l := range edges {
		if p, ok := s.profiles[l.LikedID]; ok {
			out = append(out, p.Redacted())
		}
	}
	return out, nil
}

func (s *Store) LikedIDs(ctx context.Context, likerID string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("LikedIDs"); err != nil {
		return nil, err
	}
	out := make([]string, 0, len(s.likes[likerID]))
	for id := range s.likes[likerID] {
		out = append(out, id)
	}
	sort.Strings(out)
	return out, nil
}

func (s *Store) matchExistsLocked(userA, userB string) bool {
	for _, m := range s.matches {
		if (m.User1ID == userA && m.User2ID == userB) || (m.User1ID == userB && m.User2ID == userA) {
			return true
		}
	}
	return false
}

func sortProfiles(ps []heartsync.Profile) {
	sort.Slice(ps, func(i, j int) bool {
		if !ps[i].CreatedAt.Equal(ps[j].CreatedAt) {
			return ps[i].CreatedAt.Before(ps[j].CreatedAt)
		}
		return ps[i].ID < ps[j].ID
	})
}

func page(ps []heartsync.Profile, offset, limit int) []heartsync.Profile {
	if offset >= len(ps) {
		return nil
	}
	end := len(ps)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return append([]heartsync.Profile(nil), ps[offset:end]...)
}
