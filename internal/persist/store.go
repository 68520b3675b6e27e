package persist

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/kayz/stageprompt/internal/promptbuild"
)

// timeLayout is fixed-width so that stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Store keeps an audit trail of assembled prompts in SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// NewStore creates a new SQLite-backed audit store at the given path
func NewStore(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set WAL mode: %w", err)
	}

	s := &Store{db: db}

	if err := s.init(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	return s, nil
}

// init creates the necessary tables if they don't exist
func (s *Store) init() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS prompt_builds (
			id              TEXT PRIMARY KEY,
			created_at      TEXT NOT NULL,
			stage           TEXT,
			compact         INTEGER NOT NULL DEFAULT 0,
			request_digest  TEXT NOT NULL,
			sections        TEXT,
			final_prompt    TEXT
		);

		CREATE INDEX IF NOT EXISTS idx_prompt_builds_created ON prompt_builds(created_at);
		CREATE INDEX IF NOT EXISTS idx_prompt_builds_stage ON prompt_builds(stage);
	`)
	return err
}

// Record stores one assembled prompt.
func (s *Store) Record(rec promptbuild.AuditRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sections, err := json.Marshal(rec.Sections)
	if err != nil {
		return fmt.Errorf("marshal sections: %w", err)
	}

	_, err = s.db.Exec(`
		INSERT INTO prompt_builds (id, created_at, stage, compact, request_digest, sections, final_prompt)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, rec.ID, rec.Timestamp.UTC().Format(timeLayout), rec.Stage, boolToInt(rec.Compact), rec.RequestDigest, string(sections), rec.FinalPrompt)
	return err
}

// Recent returns up to limit records, newest first. An empty stage matches all.
func (s *Store) Recent(stage string, limit int) ([]promptbuild.AuditRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT id, created_at, stage, compact, request_digest, sections, final_prompt
		FROM prompt_builds`
	args := []any{}
	if stage != "" {
		query += ` WHERE stage = ?`
		args = append(args, stage)
	}
	query += ` ORDER BY created_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []promptbuild.AuditRecord
	for rows.Next() {
		var (
			rec                promptbuild.AuditRecord
			createdAt          string
			stageCol, sections sql.NullString
			finalPrompt        sql.NullString
			compact            int
		)
		if err := rows.Scan(&rec.ID, &createdAt, &stageCol, &compact, &rec.RequestDigest, &sections, &finalPrompt); err != nil {
			return nil, err
		}
		rec.Timestamp, _ = time.Parse(timeLayout, createdAt)
		rec.Stage = stageCol.String
		rec.Compact = compact != 0
		rec.FinalPrompt = finalPrompt.String
		if sections.Valid && sections.String != "" {
			if err := json.Unmarshal([]byte(sections.String), &rec.Sections); err != nil {
				return nil, fmt.Errorf("decode sections for %s: %w", rec.ID, err)
			}
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// Cleanup deletes records older than retentionDays. It returns the number removed.
func (s *Store) Cleanup(retentionDays int) (int64, error) {
	if retentionDays <= 0 {
		return 0, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := time.Now().UTC().AddDate(0, 0, -retentionDays).Format(timeLayout)
	result, err := s.db.Exec(`DELETE FROM prompt_builds WHERE created_at < ?`, cutoff)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
