// Package sqlite implements the Store interface on SQLite via sqlx. It is a
// full relational backend: schema bootstrap, stable pagination ordering,
// transactional cascade deletes and mutual-like match promotion.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"heartsync"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
)

const schema = `
CREATE TABLE IF NOT EXISTS profiles (
	id            TEXT PRIMARY KEY,
	name          TEXT NOT NULL,
	gender        TEXT NOT NULL DEFAULT '',
	age           INTEGER NOT NULL DEFAULT 0,
	state         TEXT NOT NULL DEFAULT '',
	city          TEXT NOT NULL DEFAULT '',
	interests     TEXT NOT NULL DEFAULT '',
	photo_url     TEXT NOT NULL DEFAULT '',
	online        INTEGER NOT NULL DEFAULT 0,
	show_age      INTEGER NOT NULL DEFAULT 1,
	show_location INTEGER NOT NULL DEFAULT 1,
	show_online   INTEGER NOT NULL DEFAULT 1,
	created_at    TIMESTAMP NOT NULL
);
CREATE TABLE IF NOT EXISTS matches (
	id         TEXT PRIMARY KEY,
	user1_id   TEXT NOT NULL REFERENCES profiles(id),
	user2_id   TEXT NOT NULL REFERENCES profiles(id),
	created_at TIMESTAMP NOT NULL,
	UNIQUE (user1_id, user2_id)
);
CREATE TABLE IF NOT EXISTS messages (
	id         TEXT PRIMARY KEY,
	match_id   TEXT NOT NULL REFERENCES matches(id),
	sender_id  TEXT NOT NULL REFERENCES profiles(id),
	content    TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL,
	read_at    TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_messages_match_created ON messages (match_id, created_at);
CREATE TABLE IF NOT EXISTS likes (
	liker_id   TEXT NOT NULL REFERENCES profiles(id),
	liked_id   TEXT NOT NULL REFERENCES profiles(id),
	created_at TIMESTAMP NOT NULL,
	PRIMARY KEY (liker_id, liked_id)
);
`

// Store is a SQLite-backed Store implementation.
type Store struct {
	db *sqlx.DB
}

// NewStore opens (or creates) the database at path and bootstraps the schema.
// Use ":memory:" for an ephemeral database.
func NewStore(path string) (*Store, error) {
	db, err := sqlx.Open("sqlite3", path+"?_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("heartsync sqlite: open %s: %w", path, err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("heartsync sqlite: bootstrap schema: %w", err)
	}
	return &Store{db: db}, nil
}

// DB exposes the underlying handle for seeding and migrations.
func (s *Store) DB() *sqlx.DB { return s.db }

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

// --- row types ---

type profileRow struct {
	ID           string    `db:"id"`
	Name         string    `db:"name"`
	Gender       string    `db:"gender"`
	Age          int       `db:"age"`
	State        string    `db:"state"`
	City         string    `db:"city"`
	Interests    string    `db:"interests"`
	PhotoURL     string    `db:"photo_url"`
	Online       bool      `db:"online"`
	ShowAge      bool      `db:"show_age"`
	ShowLocation bool      `db:"show_location"`
	ShowOnline   bool      `db:"show_online"`
	CreatedAt    time.Time `db:"created_at"`
}

func (r profileRow) model() heartsync.Profile {
	var interests []string
	if r.Interests != "" {
		interests = strings.Split(r.Interests, ",")
	}
	return heartsync.Profile{
		ID:           r.ID,
		Name:         r.Name,
		Gender:       r.Gender,
		Age:          r.Age,
		State:        r.State,
		City:         r.City,
		Interests:    interests,
		PhotoURL:     r.PhotoURL,
		Online:       r.Online,
		ShowAge:      r.ShowAge,
		ShowLocation: r.ShowLocation,
		ShowOnline:   r.ShowOnline,
		CreatedAt:    r.CreatedAt,
	}
}

type matchRow struct {
	ID        string    `db:"id"`
	User1ID   string    `db:"user1_id"`
	User2ID   string    `db:"user2_id"`
	CreatedAt time.Time `db:"created_at"`
}

func (r matchRow) model() heartsync.Match {
	return heartsync.Match{ID: r.ID, User1ID: r.User1ID, User2ID: r.User2ID, CreatedAt: r.CreatedAt}
}

type messageRow struct {
	ID        string       `db:"id"`
	MatchID   string       `db:"match_id"`
	SenderID  string       `db:"sender_id"`
	Content   string       `db:"content"`
	CreatedAt time.Time    `db:"created_at"`
	ReadAt    sql.NullTime `db:"read_at"`
}

func (r messageRow) model() heartsync.Message {
	m := heartsync.Message{ID: r.ID, MatchID: r.MatchID, SenderID: r.SenderID, Content: r.Content, CreatedAt: r.CreatedAt}
	if r.ReadAt.Valid {
		t := r.ReadAt.Time
		m.ReadAt = &t
	}
	return m
}

// SaveProfile inserts or replaces a profile row. Seed helper.
func (s *Store) SaveProfile(ctx context.Context, p heartsync.Profile) error {
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO profiles
			(id, name, gender, age, state, city, interests, photo_url, online, show_age, show_location, show_online, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.Name, p.Gender, p.Age, p.State, p.City, strings.Join(p.Interests, ","),
		p.PhotoURL, p.Online, p.ShowAge, p.ShowLocation, p.ShowOnline, p.CreatedAt)
	if err != nil {
		return fmt.Errorf("heartsync sqlite: save profile %s: %w", p.ID, err)
	}
	return nil
}

func (s *Store) Profile(ctx context.Context, userID string) (heartsync.Profile, error) {
	var row profileRow
	err := s.db.GetContext(ctx, &row, `SELECT * FROM profiles WHERE id = ?`, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return heartsync.Profile{}, heartsync.ErrNotFound
	}
	if err != nil {
		return heartsync.Profile{}, fmt.Errorf("heartsync sqlite: profile %s: %w", userID, err)
	}
	return row.model(), nil
}

func (s *Store) Profiles(ctx context.Context) ([]heartsync.Profile, error) {
	var rows []profileRow
	err := s.db.SelectContext(ctx, &rows, `SELECT * FROM profiles ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("heartsync sqlite: profiles: %w", err)
	}
	return profileModels(rows, false), nil
}

func (s *Store) DiscoverProfiles(ctx context.Context, viewerID string, filter heartsync.DiscoveryFilter, excludeIDs []string, offset, limit int) ([]heartsync.Profile, error) {
	conds := []string{"id != ?"}
	args := []interface{}{viewerID}
	if len(excludeIDs) > 0 {
		placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(excludeIDs)), ", ")
		conds = append(conds, "id NOT IN ("+placeholders+")")
		for _, id := range excludeIDs {
			args = append(args, id)
		}
	}
	if filter.Gender != "" {
		conds = append(conds, "gender = ?")
		args = append(args, filter.Gender)
	}
	if filter.AgeMin > 0 {
		conds = append(conds, "age >= ?")
		args = append(args, filter.AgeMin)
	}
	if filter.AgeMax > 0 {
		conds = append(conds, "age <= ?")
		args = append(args, filter.AgeMax)
	}
	if filter.State != "" {
		conds = append(conds, "state = ?")
		args = append(args, filter.State)
	}
	if filter.City != "" {
		conds = append(conds, "city = ?")
		args = append(args, filter.City)
	}
	if len(filter.Interests) > 0 {
		// Interests are stored comma-joined; match any overlap.
		ors := make([]string, 0, len(filter.Interests))
		for _, in := range filter.Interests {
			ors = append(ors, "(',' || interests || ',') LIKE ?")
			args = append(args, "%,"+in+",%")
		}
		conds = append(conds, "("+strings.Join(ors, " OR ")+")")
	}
	args = append(args, limit, offset)

	query := `SELECT * FROM profiles WHERE ` + strings.Join(conds, " AND ") +
		` ORDER BY created_at, id LIMIT ? OFFSET ?`
	var rows []profileRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("heartsync sqlite: discover for %s: %w", viewerID, err)
	}
	return profileModels(rows, true), nil
}

func (s *Store) MatchesForUser(ctx context.Context, userID string) ([]heartsync.Match, error) {
	var rows []matchRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT * FROM matches WHERE user1_id = ? OR user2_id = ?
		ORDER BY created_at DESC, id`, userID, userID)
	if err != nil {
		return nil, fmt.Errorf("heartsync sqlite: matches for %s: %w", userID, err)
	}
	out := make([]heartsync.Match, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.model())
	}
	return out, nil
}

func (s *Store) MatchBetween(ctx context.Context, userA, userB string) (heartsync.Match, error) {
	var row matchRow
	err := s.db.GetContext(ctx, &row, `
		SELECT * FROM matches
		WHERE (user1_id = ? AND user2_id = ?) OR (user1_id = ? AND user2_id = ?)`,
		userA, userB, userB, userA)
	if errors.Is(err, sql.ErrNoRows) {
		return heartsync.Match{}, heartsync.ErrNotFound
	}
	if err != nil {
		return heartsync.Match{}, fmt.Errorf("heartsync sqlite: match between %s and %s: %w", userA, userB, err)
	}
	return row.model(), nil
}

func (s *Store) DeleteMatchCascade(ctx context.Context, matchID string) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("heartsync sqlite: begin cascade delete: %w", err)
	}
	defer tx.Rollback()
	if _, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE match_id = ?`, matchID); err != nil {
		return fmt.Errorf("heartsync sqlite: delete messages of match %s: %w", matchID, err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM matches WHERE id = ?`, matchID); err != nil {
		return fmt.Errorf("heartsync sqlite: delete match %s: %w", matchID, err)
	}
	return tx.Commit()
}

func (s *Store) MatchCount(ctx context.Context, userID string) (int64, error) {
	var n int64
	err := s.db.GetContext(ctx, &n, `
		SELECT COUNT(*) FROM matches WHERE user1_id = ? OR user2_id = ?`, userID, userID)
	if err != nil {
		return 0, fmt.Errorf("heartsync sqlite: match count for %s: %w", userID, err)
	}
	return n, nil
}

func (s *Store) MessagesForMatch(ctx context.Context, matchID string) ([]heartsync.Message, error) {
	var rows []messageRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT * FROM messages WHERE match_id = ? ORDER BY created_at, id`, matchID)
	if err != nil {
		return nil, fmt.Errorf("heartsync sqlite: messages for match %s: %w", matchID, err)
	}
	return messageModels(rows), nil
}

func (s *Store) MessagesBefore(ctx context.Context, matchID string, before time.Time, limit int) ([]heartsync.Message, error) {
	query := `SELECT * FROM messages WHERE match_id = ?`
	args := []interface{}{matchID}
	if !before.IsZero() {
		query += ` AND created_at < ?`
		args = append(args, before)
	}
	query += ` ORDER BY created_at DESC, id DESC LIMIT ?`
	args = append(args, limit)

	var rows []messageRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("heartsync sqlite: messages before for match %s: %w", matchID, err)
	}
	return messageModels(rows), nil
}

func (s *Store) InsertMessage(ctx context.Context, matchID, senderID, content string) (heartsync.Message, error) {
	msg := heartsync.Message{
		ID:        uuid.NewString(),
		MatchID:   matchID,
		SenderID:  senderID,
		Content:   content,
		CreatedAt: time.Now().UTC(),
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO messages (id, match_id, sender_id, content, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		msg.ID, msg.MatchID, msg.SenderID, msg.Content, msg.CreatedAt)
	if err != nil {
		return heartsync.Message{}, fmt.Errorf("heartsync sqlite: insert message in match %s: %w", matchID, err)
	}
	return msg, nil
}

func (s *Store) MarkMessagesRead(ctx context.Context, matchID, readerID string, at time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE messages SET read_at = ?
		WHERE match_id = ? AND sender_id != ? AND read_at IS NULL`,
		at, matchID, readerID)
	if err != nil {
		return 0, fmt.Errorf("heartsync sqlite: mark read in match %s: %w", matchID, err)
	}
	return res.RowsAffected()
}

func (s *Store) UnreadCount(ctx context.Context, userID string) (int64, error) {
	var n int64
	err := s.db.GetContext(ctx, &n, `
		SELECT COUNT(*) FROM messages m
		JOIN matches t ON m.match_id = t.id
		WHERE (t.user1_id = ? OR t.user2_id = ?)
		  AND m.sender_id != ? AND m.read_at IS NULL`,
		userID, userID, userID)
	if err != nil {
		return 0, fmt.Errorf("heartsync sqlite: unread count for %s: %w", userID, err)
	}
	return n, nil
}

func (s *Store) LikeExists(ctx context.Context, likerID, likedID string) (bool, error) {
	var n int
	err := s.db.GetContext(ctx, &n, `
		SELECT COUNT(*) FROM likes WHERE liker_id = ? AND liked_id = ?`, likerID, likedID)
	if err != nil {
		return false, fmt.Errorf("heartsync sqlite: like exists: %w", err)
	}
	return n > 0, nil
}

// InsertLike records the like edge; a reciprocal like promotes the pair to a
// match in the same transaction.
func (s *Store) InsertLike(ctx context.Context, likerID, likedID string) (heartsync.Like, error) {
	now := time.Now().UTC()
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return heartsync.Like{}, fmt.Errorf("heartsync sqlite: begin insert like: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT OR IGNORE INTO likes (liker_id, liked_id, created_at) VALUES (?, ?, ?)`,
		likerID, likedID, now); err != nil {
		return heartsync.Like{}, fmt.Errorf("heartsync sqlite: insert like: %w", err)
	}

	var mutual int
	if err := tx.GetContext(ctx, &mutual, `
		SELECT COUNT(*) FROM likes WHERE liker_id = ? AND liked_id = ?`, likedID, likerID); err != nil {
		return heartsync.Like{}, fmt.Errorf("heartsync sqlite: mutual like check: %w", err)
	}
	if mutual > 0 {
		var matched int
		if err := tx.GetContext(ctx, &matched, `
			SELECT COUNT(*) FROM matches
			WHERE (user1_id = ? AND user2_id = ?) OR (user1_id = ? AND user2_id = ?)`,
			likerID, likedID, likedID, likerID); err != nil {
			return heartsync.Like{}, fmt.Errorf("heartsync sqlite: existing match check: %w", err)
		}
		if matched == 0 {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO matches (id, user1_id, user2_id, created_at) VALUES (?, ?, ?, ?)`,
				uuid.NewString(), likerID, likedID, now); err != nil {
				return heartsync.Like{}, fmt.Errorf("heartsync sqlite: promote mutual like: %w", err)
			}
		}
	}
	if err := tx.Commit(); err != nil {
		return heartsync.Like{}, fmt.Errorf("heartsync sqlite: commit like: %w", err)
	}
	return heartsync.Like{LikerID: likerID, LikedID: likedID, CreatedAt: now}, nil
}

func (s *Store) DeleteLike(ctx context.Context, likerID, likedID string) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM likes WHERE liker_id = ? AND liked_id = ?`, likerID, likedID)
	if err != nil {
		return fmt.Errorf("heartsync sqlite: delete like: %w", err)
	}
	return nil
}

func (s *Store) LikedProfiles(ctx context.Context, likerID string) ([]heartsync.Profile, error) {
	var rows []profileRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT p.* FROM profiles p
		JOIN likes l ON p.id = l.liked_id
		WHERE l.liker_id = ?
		ORDER BY l.created_at DESC, p.id`, likerID)
	if err != nil {
		return nil, fmt.Errorf("heartsync sqlite: liked profiles for %s: %w", likerID, err)
	}
	return profileModels(rows, true), nil
}

func (s *Store) LikedIDs(ctx context.Context, likerID string) ([]string, error) {
	var ids []string
	err := s.db.SelectContext(ctx, &ids, `
		SELECT liked_id FROM likes WHERE liker_id = ? ORDER BY liked_id`, likerID)
	if err != nil {
		return nil, fmt.Errorf("heartsync sqlite: liked ids for %s: %w", likerID, err)
	}
	return ids, nil
}

func profileModels(rows []profileRow, redact bool) []heartsync.Profile {
	out := make([]heartsync.Profile, 0, len(rows))
	for _, r := range rows {
		p := r.model()
		if redact {
			p = p.Redacted()
		}
		out = append(out, p)
	}
	return out
}

func messageModels(rows []messageRow) []heartsync.Message {
	out := make([]heartsync.Message, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.model())
	}
	return out
}
