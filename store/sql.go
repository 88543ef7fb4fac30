package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"github.com/kadirpekel/loom/message"
)

// SQLThreadStore is a ThreadStore backed by database/sql, supporting
// sqlite/mysql/postgres via dialect-specific schema, grounded on the
// teacher's SQLSessionService (pkg/memory/session_service_sql.go):
// a threads table plus a thread_messages table keyed by thread id and
// sequence number, with the message body kept as a JSON blob.
type SQLThreadStore struct {
	db      *sql.DB
	dialect string
}

const createThreadsTableSQL = `
CREATE TABLE IF NOT EXISTS threads (
    id VARCHAR(255) PRIMARY KEY,
    platform_json TEXT,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL
);
`

func createMessagesTableSQL(dialect string) string {
	autoincrement := "INTEGER PRIMARY KEY AUTOINCREMENT"
	switch dialect {
	case "postgres":
		autoincrement = "SERIAL PRIMARY KEY"
	case "mysql":
		autoincrement = "BIGINT PRIMARY KEY AUTO_INCREMENT"
	}
	return fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS thread_messages (
    id %s,
    thread_id VARCHAR(255) NOT NULL,
    message_id VARCHAR(255) NOT NULL,
    sequence_num BIGINT NOT NULL,
    message_json TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL,
    FOREIGN KEY (thread_id) REFERENCES threads(id) ON DELETE CASCADE
);
CREATE INDEX IF NOT EXISTS idx_thread_messages_thread_id ON thread_messages(thread_id);
CREATE INDEX IF NOT EXISTS idx_thread_messages_message_id ON thread_messages(message_id);
`, autoincrement)
}

// NewSQLThreadStore opens (or reuses) db under the given dialect
// ("sqlite", "mysql", or "postgres") and ensures the schema exists.
func NewSQLThreadStore(db *sql.DB, dialect string) (*SQLThreadStore, error) {
	if db == nil {
		return nil, fmt.Errorf("store: database connection is required")
	}
	switch dialect {
	case "sqlite", "mysql", "postgres":
	default:
		return nil, fmt.Errorf("store: unsupported dialect %q (supported: sqlite, mysql, postgres)", dialect)
	}

	s := &SQLThreadStore{db: db, dialect: dialect}
	if err := s.initSchema(); err != nil {
		return nil, err
	}
	return s, nil
}

// OpenSQLThreadStore opens a fresh *sql.DB via database/sql for the given
// dialect and DSN, the convenience path analogous to the teacher's
// NewSQLSessionServiceFromConfig.
func OpenSQLThreadStore(dialect, dsn string) (*SQLThreadStore, error) {
	driverName := dialect
	if driverName == "sqlite" {
		driverName = "sqlite3"
	}
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open database: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: ping database: %w", err)
	}
	return NewSQLThreadStore(db, dialect)
}

func (s *SQLThreadStore) initSchema() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if _, err := s.db.ExecContext(ctx, createThreadsTableSQL); err != nil {
		return fmt.Errorf("store: create threads table: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, createMessagesTableSQL(s.dialect)); err != nil {
		return fmt.Errorf("store: create thread_messages table: %w", err)
	}
	return nil
}

// Save upserts the thread row and appends any messages not already present
// by message id, matching the "last save wins, no transactional guarantee
// beyond that" contract spec.md §6 states for the storage interface.
func (s *SQLThreadStore) Save(thread *message.Thread) error {
	ctx := context.Background()
	platformJSON, err := json.Marshal(thread.Platform)
	if err != nil {
		return fmt.Errorf("store: marshal platform: %w", err)
	}

	now := time.Now().UTC()
	upsert := s.upsertThreadSQL()
	if _, err := s.db.ExecContext(ctx, upsert, thread.ID, string(platformJSON), now, now); err != nil {
		return fmt.Errorf("store: upsert thread: %w", err)
	}

	for i, m := range thread.Messages() {
		var exists int
		row := s.db.QueryRowContext(ctx, s.rebind("SELECT COUNT(*) FROM thread_messages WHERE message_id = ?"), m.ID)
		if err := row.Scan(&exists); err != nil {
			return fmt.Errorf("store: check existing message: %w", err)
		}
		if exists > 0 {
			continue
		}
		msgJSON, err := json.Marshal(m)
		if err != nil {
			return fmt.Errorf("store: marshal message: %w", err)
		}
		insert := s.rebind(`INSERT INTO thread_messages (thread_id, message_id, sequence_num, message_json, created_at)
			VALUES (?, ?, ?, ?, ?)`)
		if _, err := s.db.ExecContext(ctx, insert, thread.ID, m.ID, i, string(msgJSON), now); err != nil {
			return fmt.Errorf("store: insert message: %w", err)
		}
	}
	return nil
}

func (s *SQLThreadStore) Get(id string) (*message.Thread, error) {
	ctx := context.Background()
	var platformJSON string
	row := s.db.QueryRowContext(ctx, s.rebind("SELECT platform_json FROM threads WHERE id = ?"), id)
	if err := row.Scan(&platformJSON); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("store: query thread: %w", err)
	}

	thread := message.NewThreadWithID(id)
	_ = json.Unmarshal([]byte(platformJSON), &thread.Platform)

	rows, err := s.db.QueryContext(ctx, s.rebind(
		"SELECT message_json FROM thread_messages WHERE thread_id = ? ORDER BY sequence_num ASC"), id)
	if err != nil {
		return nil, fmt.Errorf("store: query messages: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("store: scan message: %w", err)
		}
		var m message.Message
		if err := json.Unmarshal([]byte(raw), &m); err != nil {
			return nil, fmt.Errorf("store: decode message: %w", err)
		}
		if err := thread.Add(m); err != nil {
			return nil, fmt.Errorf("store: replay message %s: %w", m.ID, err)
		}
	}
	return thread, rows.Err()
}

func (s *SQLThreadStore) FindByPlatform(key, value string) ([]*message.Thread, error) {
	ctx := context.Background()
	rows, err := s.db.QueryContext(ctx, s.rebind("SELECT id, platform_json FROM threads"))
	if err != nil {
		return nil, fmt.Errorf("store: query threads: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id, platformJSON string
		if err := rows.Scan(&id, &platformJSON); err != nil {
			return nil, fmt.Errorf("store: scan thread: %w", err)
		}
		var platform map[string]string
		_ = json.Unmarshal([]byte(platformJSON), &platform)
		if platform[key] == value {
			ids = append(ids, id)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]*message.Thread, 0, len(ids))
	for _, id := range ids {
		t, err := s.Get(id)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

func (s *SQLThreadStore) GetByMessageID(messageID string) (*message.Thread, error) {
	ctx := context.Background()
	var threadID string
	row := s.db.QueryRowContext(ctx, s.rebind("SELECT thread_id FROM thread_messages WHERE message_id = ?"), messageID)
	if err := row.Scan(&threadID); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("store: query message: %w", err)
	}
	return s.Get(threadID)
}

func (s *SQLThreadStore) upsertThreadSQL() string {
	switch s.dialect {
	case "postgres":
		return `INSERT INTO threads (id, platform_json, created_at, updated_at) VALUES ($1, $2, $3, $4)
			ON CONFLICT (id) DO UPDATE SET platform_json = $2, updated_at = $4`
	case "mysql":
		return `INSERT INTO threads (id, platform_json, created_at, updated_at) VALUES (?, ?, ?, ?)
			ON DUPLICATE KEY UPDATE platform_json = VALUES(platform_json), updated_at = VALUES(updated_at)`
	default: // sqlite
		return `INSERT INTO threads (id, platform_json, created_at, updated_at) VALUES (?, ?, ?, ?)
			ON CONFLICT (id) DO UPDATE SET platform_json = excluded.platform_json, updated_at = excluded.updated_at`
	}
}

// rebind rewrites ?-style placeholders to $1, $2... for postgres; sqlite
// and mysql both accept ? natively.
func (s *SQLThreadStore) rebind(query string) string {
	if s.dialect != "postgres" {
		return query
	}
	out := make([]byte, 0, len(query)+8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			out = append(out, '$')
			out = append(out, []byte(fmt.Sprintf("%d", n))...)
			continue
		}
		out = append(out, query[i])
	}
	return string(out)
}
