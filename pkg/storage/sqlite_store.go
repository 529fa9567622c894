package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// Store wraps an embedded SQLite database holding member join records,
// suggestion review history and small runtime markers (heartbeat, last
// reload). It uses modernc.org/sqlite for CGO-less builds.
type Store struct {
	dbPath string
	db     *sql.DB
}

var errNotInitialized = errors.New("store not initialized")

// NewStore creates a new Store pointing to dbPath. Call Init() before using it.
func NewStore(dbPath string) *Store {
	return &Store{dbPath: dbPath}
}

// Init opens the SQLite database, configures pragmas, and ensures the schema exists.
func (s *Store) Init() error {
	if s.db != nil {
		return nil
	}
	if s.dbPath == "" {
		return fmt.Errorf("db path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(s.dbPath), 0o755); err != nil {
		return fmt.Errorf("failed to create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", s.dbPath)
	if err != nil {
		return fmt.Errorf("open sqlite: %w", err)
	}

	pragmas := []struct{ stmt, what string }{
		{`PRAGMA journal_mode=WAL;`, "set WAL"},
		{`PRAGMA foreign_keys=ON;`, "enable FKs"},
		{`PRAGMA busy_timeout=5000;`, "set busy_timeout"},
		{`PRAGMA synchronous=NORMAL;`, "set synchronous"},
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p.stmt); err != nil {
			_ = db.Close()
			return fmt.Errorf("%s: %w", p.what, err)
		}
	}

	if err := ensureSchema(db); err != nil {
		_ = db.Close()
		return err
	}

	s.db = db
	return nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

// Path returns the database file location.
func (s *Store) Path() string { return s.dbPath }

func ensureSchema(db *sql.DB) error {
	const createMemberJoins = `
CREATE TABLE IF NOT EXISTS member_joins (
  guild_id   TEXT NOT NULL,
  user_id    TEXT NOT NULL,
  joined_at  INTEGER NOT NULL,
  PRIMARY KEY (guild_id, user_id)
);
CREATE INDEX IF NOT EXISTS idx_member_joins_joined ON member_joins(joined_at);`

	const createSuggestions = `
CREATE TABLE IF NOT EXISTS suggestions (
  message_id         TEXT PRIMARY KEY,
  channel_id         TEXT NOT NULL,
  content            TEXT NOT NULL,
  submitter_id       TEXT NOT NULL,
  submitter_name     TEXT,
  original_author_id TEXT,
  source_url         TEXT,
  status             TEXT NOT NULL DEFAULT 'pending',
  reviewer_id        TEXT,
  created_at         INTEGER NOT NULL,
  resolved_at        INTEGER
);
CREATE INDEX IF NOT EXISTS idx_suggestions_status ON suggestions(status);`

	const createRuntimeMeta = `
CREATE TABLE IF NOT EXISTS runtime_meta (
  key TEXT PRIMARY KEY,
  ts  INTEGER NOT NULL
);`

	for _, sqlText := range []string{createMemberJoins, createSuggestions, createRuntimeMeta} {
		if _, err := db.Exec(sqlText); err != nil {
			return fmt.Errorf("create schema: %w", err)
		}
	}
	return nil
}

func toMillis(t time.Time) int64 { return t.UTC().UnixMilli() }

func fromMillis(ms int64) time.Time { return time.UnixMilli(ms).UTC() }

// --- Member joins ---

// MemberJoin is one recorded join awaiting a leave or expiry.
type MemberJoin struct {
	GuildID  string
	UserID   string
	JoinedAt time.Time
}

// UpsertMemberJoin records the most recent join time for a member in a guild.
// A rejoin replaces the previous timestamp.
func (s *Store) UpsertMemberJoin(guildID, userID string, joinedAt time.Time) error {
	if s.db == nil {
		return errNotInitialized
	}
	if guildID == "" || userID == "" || joinedAt.IsZero() {
		return nil
	}
	_, err := s.db.Exec(
		`INSERT INTO member_joins (guild_id, user_id, joined_at)
         VALUES (?, ?, ?)
         ON CONFLICT(guild_id, user_id) DO UPDATE SET joined_at = excluded.joined_at`,
		guildID, userID, toMillis(joinedAt),
	)
	return err
}

// GetMemberJoin returns the stored join time for a member, if any.
func (s *Store) GetMemberJoin(guildID, userID string) (time.Time, bool, error) {
	if s.db == nil {
		return time.Time{}, false, errNotInitialized
	}
	row := s.db.QueryRow(`SELECT joined_at FROM member_joins WHERE guild_id=? AND user_id=?`, guildID, userID)
	var ms int64
	if err := row.Scan(&ms); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return time.Time{}, false, nil
		}
		return time.Time{}, false, err
	}
	return fromMillis(ms), true, nil
}

// DeleteMemberJoin removes a member's join record (no error if absent).
func (s *Store) DeleteMemberJoin(guildID, userID string) error {
	if s.db == nil {
		return errNotInitialized
	}
	_, err := s.db.Exec(`DELETE FROM member_joins WHERE guild_id=? AND user_id=?`, guildID, userID)
	return err
}

// DeleteMemberJoinsBefore removes records whose join time is older than
// cutoff and returns how many were removed.
func (s *Store) DeleteMemberJoinsBefore(cutoff time.Time) (int64, error) {
	if s.db == nil {
		return 0, errNotInitialized
	}
	res, err := s.db.Exec(`DELETE FROM member_joins WHERE joined_at < ?`, toMillis(cutoff))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ListMemberJoins returns every stored join record.
func (s *Store) ListMemberJoins() ([]MemberJoin, error) {
	if s.db == nil {
		return nil, errNotInitialized
	}
	rows, err := s.db.Query(`SELECT guild_id, user_id, joined_at FROM member_joins ORDER BY joined_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []MemberJoin
	for rows.Next() {
		var mj MemberJoin
		var ms int64
		if err := rows.Scan(&mj.GuildID, &mj.UserID, &ms); err != nil {
			return nil, err
		}
		mj.JoinedAt = fromMillis(ms)
		out = append(out, mj)
	}
	return out, rows.Err()
}

// --- Suggestions ---

// SuggestionStatus is the persisted review state of a suggestion.
type SuggestionStatus string

const StatusPending SuggestionStatus = "pending"

// SuggestionRecord is the durable copy of a rendered suggestion.
type SuggestionRecord struct {
	MessageID        string
	ChannelID        string
	Content          string
	SubmitterID      string
	SubmitterName    string
	OriginalAuthorID string
	SourceURL        string
	Status           SuggestionStatus
	ReviewerID       string
	CreatedAt        time.Time
	ResolvedAt       time.Time
}

// SaveSuggestion inserts a pending suggestion keyed by its review message.
func (s *Store) SaveSuggestion(rec SuggestionRecord) error {
	if s.db == nil {
		return errNotInitialized
	}
	if rec.MessageID == "" {
		return fmt.Errorf("suggestion message id is empty")
	}
	if rec.Status == "" {
		rec.Status = StatusPending
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	_, err := s.db.Exec(
		`INSERT INTO suggestions (message_id, channel_id, content, submitter_id, submitter_name, original_author_id, source_url, status, created_at)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.MessageID, rec.ChannelID, rec.Content, rec.SubmitterID, rec.SubmitterName,
		rec.OriginalAuthorID, rec.SourceURL, string(rec.Status), toMillis(rec.CreatedAt),
	)
	return err
}

// GetSuggestion returns the record for a review message, or nil if unknown.
func (s *Store) GetSuggestion(messageID string) (*SuggestionRecord, error) {
	if s.db == nil {
		return nil, errNotInitialized
	}
	row := s.db.QueryRow(
		`SELECT message_id, channel_id, content, submitter_id, submitter_name, original_author_id, source_url,
                status, reviewer_id, created_at, resolved_at
         FROM suggestions WHERE message_id=?`, messageID)

	var rec SuggestionRecord
	var name, author, url, reviewer sql.NullString
	var status string
	var created int64
	var resolved sql.NullInt64
	if err := row.Scan(&rec.MessageID, &rec.ChannelID, &rec.Content, &rec.SubmitterID, &name, &author, &url,
		&status, &reviewer, &created, &resolved); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	rec.SubmitterName = name.String
	rec.OriginalAuthorID = author.String
	rec.SourceURL = url.String
	rec.Status = SuggestionStatus(status)
	rec.ReviewerID = reviewer.String
	rec.CreatedAt = fromMillis(created)
	if resolved.Valid {
		rec.ResolvedAt = fromMillis(resolved.Int64)
	}
	return &rec, nil
}

// ResolveSuggestion moves a pending suggestion to status. It returns false
// when the record is missing or was already resolved, so only the first
// decision wins.
func (s *Store) ResolveSuggestion(messageID string, status SuggestionStatus, reviewerID string, at time.Time) (bool, error) {
	if s.db == nil {
		return false, errNotInitialized
	}
	res, err := s.db.Exec(
		`UPDATE suggestions SET status=?, reviewer_id=?, resolved_at=?
         WHERE message_id=? AND status=?`,
		string(status), reviewerID, toMillis(at), messageID, string(StatusPending),
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// ReopenSuggestion puts a resolved suggestion back to pending. It is used
// when applying a decision failed after the record was claimed.
func (s *Store) ReopenSuggestion(messageID string) error {
	if s.db == nil {
		return errNotInitialized
	}
	_, err := s.db.Exec(
		`UPDATE suggestions SET status=?, reviewer_id='', resolved_at=NULL WHERE message_id=?`,
		string(StatusPending), messageID,
	)
	return err
}

// CountSuggestions returns the number of suggestions per status.
func (s *Store) CountSuggestions() (map[SuggestionStatus]int, error) {
	if s.db == nil {
		return nil, errNotInitialized
	}
	rows, err := s.db.Query(`SELECT status, COUNT(*) FROM suggestions GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[SuggestionStatus]int)
	for rows.Next() {
		var st string
		var n int
		if err := rows.Scan(&st, &n); err != nil {
			return nil, err
		}
		out[SuggestionStatus(st)] = n
	}
	return out, rows.Err()
}

// --- Runtime metadata ---

// SetMeta records a timestamp under key.
func (s *Store) SetMeta(key string, t time.Time) error {
	if s.db == nil {
		return errNotInitialized
	}
	if t.IsZero() {
		t = time.Now()
	}
	_, err := s.db.Exec(
		`INSERT INTO runtime_meta (key, ts) VALUES (?, ?)
         ON CONFLICT(key) DO UPDATE SET ts=excluded.ts`,
		key, toMillis(t),
	)
	return err
}

// GetMeta returns the timestamp stored under key, if any.
func (s *Store) GetMeta(key string) (time.Time, bool, error) {
	if s.db == nil {
		return time.Time{}, false, errNotInitialized
	}
	var ms int64
	if err := s.db.QueryRow(`SELECT ts FROM runtime_meta WHERE key=?`, key).Scan(&ms); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return time.Time{}, false, nil
		}
		return time.Time{}, false, err
	}
	return fromMillis(ms), true, nil
}

// SetHeartbeat records the last-known "bot is running" timestamp.
func (s *Store) SetHeartbeat(t time.Time) error { return s.SetMeta("heartbeat", t) }

// GetHeartbeat returns the last recorded heartbeat timestamp, if any.
func (s *Store) GetHeartbeat() (time.Time, bool, error) { return s.GetMeta("heartbeat") }
