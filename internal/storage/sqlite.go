package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/mattn/go-sqlite3"

	"github.com/cratedig/liner/internal/models"
)

// SQLiteStore implements Store on a local SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (creating if needed) the database at path and
// initializes the schema.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	s := &SQLiteStore{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS chunks (
		id TEXT PRIMARY KEY,
		content TEXT NOT NULL,
		source_name TEXT NOT NULL DEFAULT '',
		title TEXT NOT NULL DEFAULT '',
		url TEXT NOT NULL DEFAULT '',
		author TEXT NOT NULL DEFAULT '',
		paragraph_number INTEGER NOT NULL DEFAULT 0,
		content_type TEXT NOT NULL DEFAULT '',
		entities TEXT NOT NULL DEFAULT '[]',
		temporal_context TEXT NOT NULL DEFAULT '',
		chunk_type TEXT NOT NULL DEFAULT '',
		extra TEXT NOT NULL DEFAULT '{}'
	);
	CREATE INDEX IF NOT EXISTS idx_chunks_source ON chunks(source_name);

	CREATE TABLE IF NOT EXISTS sources (
		name TEXT PRIMARY KEY,
		trust REAL NOT NULL DEFAULT 1.0,
		canonical_url TEXT NOT NULL DEFAULT ''
	);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("initializing schema: %w", err)
	}
	return nil
}

// AddChunks inserts chunks in a single transaction. Re-adding an id replaces
// the stored row but keeps its position in insertion order.
func (s *SQLiteStore) AddChunks(ctx context.Context, chunks []models.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO chunks (id, content, source_name, title, url, author,
			paragraph_number, content_type, entities, temporal_context, chunk_type, extra)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			content = excluded.content,
			source_name = excluded.source_name,
			title = excluded.title,
			url = excluded.url,
			author = excluded.author,
			paragraph_number = excluded.paragraph_number,
			content_type = excluded.content_type,
			entities = excluded.entities,
			temporal_context = excluded.temporal_context,
			chunk_type = excluded.chunk_type,
			extra = excluded.extra`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, c := range chunks {
		entities, err := json.Marshal(c.Entities)
		if err != nil {
			return fmt.Errorf("encoding entities for chunk %s: %w", c.ID, err)
		}
		extra, err := json.Marshal(c.Extra)
		if err != nil {
			return fmt.Errorf("encoding metadata for chunk %s: %w", c.ID, err)
		}
		if _, err := stmt.ExecContext(ctx, c.ID, c.Content,
			c.Source.Source, c.Source.Title, c.Source.URL, c.Source.Author,
			c.Source.ParagraphNumber, c.Source.ContentType,
			string(entities), c.TemporalContext, c.ChunkType, string(extra)); err != nil {
			return fmt.Errorf("inserting chunk %s: %w", c.ID, err)
		}
	}
	return tx.Commit()
}

// ListChunks returns all chunks ordered by insertion, which fixes the
// sequence numbers an index rebuild assigns.
func (s *SQLiteStore) ListChunks(ctx context.Context) ([]models.Chunk, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, content, source_name, title, url, author,
			paragraph_number, content_type, entities, temporal_context, chunk_type, extra
		FROM chunks ORDER BY rowid`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var chunks []models.Chunk
	for rows.Next() {
		var c models.Chunk
		var entities, extra string
		if err := rows.Scan(&c.ID, &c.Content,
			&c.Source.Source, &c.Source.Title, &c.Source.URL, &c.Source.Author,
			&c.Source.ParagraphNumber, &c.Source.ContentType,
			&entities, &c.TemporalContext, &c.ChunkType, &extra); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(entities), &c.Entities); err != nil {
			return nil, fmt.Errorf("decoding entities for chunk %s: %w", c.ID, err)
		}
		if err := json.Unmarshal([]byte(extra), &c.Extra); err != nil {
			return nil, fmt.Errorf("decoding metadata for chunk %s: %w", c.ID, err)
		}
		chunks = append(chunks, c)
	}
	return chunks, rows.Err()
}

// CountChunks returns the number of stored chunks.
func (s *SQLiteStore) CountChunks(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chunks`).Scan(&n)
	return n, err
}

// UpsertSource registers or updates a source. Names are stored lowercased so
// trust lookups are case-insensitive.
func (s *SQLiteStore) UpsertSource(ctx context.Context, rec SourceRecord) error {
	name := strings.ToLower(strings.TrimSpace(rec.Name))
	if name == "" {
		return fmt.Errorf("%w: source name is empty", models.ErrInvalidInput)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sources (name, trust, canonical_url) VALUES (?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET trust = excluded.trust, canonical_url = excluded.canonical_url`,
		name, rec.Trust, rec.CanonicalURL)
	return err
}

// ListSources returns all registered sources keyed by lowercased name.
func (s *SQLiteStore) ListSources(ctx context.Context) (map[string]SourceRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name, trust, canonical_url FROM sources`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]SourceRecord)
	for rows.Next() {
		var rec SourceRecord
		if err := rows.Scan(&rec.Name, &rec.Trust, &rec.CanonicalURL); err != nil {
			return nil, err
		}
		out[rec.Name] = rec
	}
	return out, rows.Err()
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
