// Package keyword persists the keyword-reply records: one record per
// keyword-set per guild, holding the keyword strings and the hosted image
// responses. Every mutation is a single SQL statement on one row, which is
// the store's atomicity unit; concurrent editors of the same record are
// last-write-wins by design.
package keyword

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	_ "modernc.org/sqlite"
)

var (
	ErrNotFound = errors.New("keyword record not found")
	ErrExists   = errors.New("keyword already exists")
)

// Response is one hosted image reply. The delete hash is the opaque
// credential the image host returned on upload.
type Response struct {
	URL        string `json:"url"`
	DeleteHash string `json:"delete_hash"`
}

// Record is one keyword-reply document.
type Record struct {
	ID        int64
	GuildID   string
	Keywords  []string
	Responses []Response
	CreatedBy string
	Count     int64
}

type Store struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS keyword_records (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    guild_id TEXT NOT NULL,
    keywords TEXT NOT NULL,
    responses TEXT NOT NULL,
    created_by TEXT NOT NULL,
    count INTEGER NOT NULL DEFAULT 0,
    created_at DATETIME DEFAULT (datetime('now')),
    updated_at DATETIME DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_keyword_records_guild ON keyword_records(guild_id);
`

// Open opens (creating if needed) the store at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open keyword db: %w", err)
	}
	db.SetMaxOpenConns(1)

	return NewStore(db)
}

// NewStore wraps an existing connection and applies the schema.
func NewStore(db *sql.DB) (*Store, error) {
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("migrate keyword db: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// matchClause selects the record whose keyword list contains the target.
const matchClause = `guild_id = ? AND EXISTS (
    SELECT 1 FROM json_each(keywords) WHERE json_each.value = ?
)`

// Find returns the record containing the given keyword.
func (s *Store) Find(ctx context.Context, guildID, kw string) (*Record, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, guild_id, keywords, responses, created_by, count
		FROM keyword_records
		WHERE `+matchClause,
		guildID, kw)

	return scanRecord(row)
}

// Exists reports whether any record in the guild contains the keyword.
func (s *Store) Exists(ctx context.Context, guildID, kw string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM keyword_records WHERE `+matchClause,
		guildID, kw).Scan(&n)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Create inserts a new record. The caller must have checked for keyword
// conflicts; Create itself rejects a record whose first keyword already
// exists to keep the duplicate-keyword invariant under races.
func (s *Store) Create(ctx context.Context, rec *Record) error {
	if len(rec.Keywords) == 0 || len(rec.Responses) == 0 {
		return errors.New("record needs at least one keyword and one response")
	}

	exists, err := s.Exists(ctx, rec.GuildID, rec.Keywords[0])
	if err != nil {
		return err
	}
	if exists {
		return ErrExists
	}

	keywords, err := json.Marshal(rec.Keywords)
	if err != nil {
		return err
	}
	responses, err := json.Marshal(rec.Responses)
	if err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO keyword_records (guild_id, keywords, responses, created_by, count)
		VALUES (?, ?, ?, ?, ?)`,
		rec.GuildID, string(keywords), string(responses), rec.CreatedBy, rec.Count)
	if err != nil {
		return fmt.Errorf("create keyword record: %w", err)
	}

	rec.ID, _ = res.LastInsertId()
	return nil
}

// PushKeyword appends a keyword to the record containing target.
func (s *Store) PushKeyword(ctx context.Context, guildID, target, kw string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE keyword_records
		SET keywords = json_insert(keywords, '$[#]', ?),
		    updated_at = datetime('now')
		WHERE `+matchClause,
		kw, guildID, target)

	return checkUpdated(res, err)
}

// PushResponse appends a hosted image to the record containing target.
func (s *Store) PushResponse(ctx context.Context, guildID, target string, resp Response) error {
	raw, err := json.Marshal(resp)
	if err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE keyword_records
		SET responses = json_insert(responses, '$[#]', json(?)),
		    updated_at = datetime('now')
		WHERE `+matchClause,
		string(raw), guildID, target)

	return checkUpdated(res, err)
}

// PullKeyword removes one keyword string from the record containing target.
func (s *Store) PullKeyword(ctx context.Context, guildID, target, kw string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE keyword_records
		SET keywords = (
		        SELECT json_group_array(value)
		        FROM json_each(keywords)
		        WHERE value <> ?
		    ),
		    updated_at = datetime('now')
		WHERE `+matchClause,
		kw, guildID, target)

	return checkUpdated(res, err)
}

// PullResponse removes the response with the given URL from the record
// containing target.
func (s *Store) PullResponse(ctx context.Context, guildID, target, url string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE keyword_records
		SET responses = (
		        SELECT json_group_array(json(value))
		        FROM json_each(responses)
		        WHERE json_extract(value, '$.url') <> ?
		    ),
		    updated_at = datetime('now')
		WHERE `+matchClause,
		url, guildID, target)

	return checkUpdated(res, err)
}

// Delete removes the whole record containing target.
func (s *Store) Delete(ctx context.Context, guildID, target string) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM keyword_records WHERE `+matchClause,
		guildID, target)

	return checkUpdated(res, err)
}

// Match looks up an exact keyword match for an inbound message and bumps the
// record's hit counter. Returns ErrNotFound when nothing matches.
func (s *Store) Match(ctx context.Context, guildID, content string) (*Record, error) {
	rec, err := s.Find(ctx, guildID, content)
	if err != nil {
		return nil, err
	}

	_, err = s.db.ExecContext(ctx,
		`UPDATE keyword_records SET count = count + 1 WHERE id = ?`, rec.ID)
	if err != nil {
		return nil, err
	}

	rec.Count++
	return rec, nil
}

// SearchPrefix returns up to limit keyword strings starting with prefix,
// for slash-command autocompletion.
func (s *Store) SearchPrefix(ctx context.Context, guildID, prefix string, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 8
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT json_each.value
		FROM keyword_records, json_each(keywords)
		WHERE guild_id = ? AND json_each.value LIKE ? || '%'
		ORDER BY json_each.value
		LIMIT ?`,
		guildID, prefix, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var kw string
		if err := rows.Scan(&kw); err != nil {
			return nil, err
		}
		out = append(out, kw)
	}
	return out, rows.Err()
}

func scanRecord(row *sql.Row) (*Record, error) {
	var rec Record
	var keywords, responses string

	err := row.Scan(&rec.ID, &rec.GuildID, &keywords, &responses, &rec.CreatedBy, &rec.Count)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(keywords), &rec.Keywords); err != nil {
		return nil, fmt.Errorf("corrupt keyword list: %w", err)
	}
	if err := json.Unmarshal([]byte(responses), &rec.Responses); err != nil {
		return nil, fmt.Errorf("corrupt response list: %w", err)
	}
	return &rec, nil
}

func checkUpdated(res sql.Result, err error) error {
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
