package docstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog/log"

	"newsbrief/internal/docstore/migrations"
)

const (
	defaultMaxIdleConns    = 4
	defaultMaxOpenConns    = 4
	defaultConnMaxLifetime = time.Hour
)

// SQLiteConfig holds settings for the SQLite-backed store.
type SQLiteConfig struct {
	// Required settings
	DBPath string

	// Optional settings (will use defaults if not set)
	MaxIdleConns    int
	MaxOpenConns    int
	ConnMaxLifetime time.Duration
	CacheSizeKB     int
	BusyTimeoutMS   int
}

// NewSQLiteConfig creates a store configuration with default values
func NewSQLiteConfig(dbPath string) *SQLiteConfig {
	return &SQLiteConfig{
		DBPath:          dbPath,
		ConnMaxLifetime: defaultConnMaxLifetime,
		CacheSizeKB:     -64000, // 64MB
		BusyTimeoutMS:   5000,
	}
}

// SQLiteStore keeps documents as JSON blobs in a local SQLite
// database, one row per document with a version counter that backs
// conditional writes.
type SQLiteStore struct {
	db *sqlx.DB
}

// OpenSQLite opens (creating if needed) the backing database and
// brings the schema up to date.
func OpenSQLite(cfg *SQLiteConfig) (*SQLiteStore, error) {
	dir := filepath.Dir(cfg.DBPath)
	if dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory for database: %w", err)
		}
	}

	if cfg.MaxIdleConns <= 0 {
		cfg.MaxIdleConns = defaultMaxIdleConns
	}
	if cfg.MaxOpenConns <= 0 {
		cfg.MaxOpenConns = defaultMaxOpenConns
	}

	// WAL mode allows concurrent reads while writing
	dsn := fmt.Sprintf("%s?_journal=WAL&_synchronous=NORMAL&_busy_timeout=%d",
		cfg.DBPath, cfg.BusyTimeoutMS)

	db, err := sqlx.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	pragmas := []string{
		fmt.Sprintf("PRAGMA cache_size = %d;", cfg.CacheSizeKB),
		"PRAGMA temp_store = MEMORY;",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			log.Warn().Err(err).Str("pragma", pragma).Msg("Failed to set PRAGMA")
		}
	}

	log.Info().Str("path", cfg.DBPath).Msg("Running document store migrations...")
	migrationFiles, err := migrations.LoadMigrations()
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to load migrations: %w", err)
	}
	if err := migrations.RunMigrations(db.DB, migrationFiles); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping db: %w", err)
	}

	log.Info().Str("path", cfg.DBPath).Msg("Document store ready")
	return &SQLiteStore{db: db}, nil
}

// Load unmarshals the named document into out.
func (s *SQLiteStore) Load(ctx context.Context, name string, out any) (Revision, error) {
	var row struct {
		Content []byte `db:"content"`
		Version int64  `db:"version"`
	}
	err := s.db.GetContext(ctx, &row,
		"SELECT content, version FROM documents WHERE name = ?", name)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to load document %s: %w", name, err)
	}

	if err := json.Unmarshal(row.Content, out); err != nil {
		return "", fmt.Errorf("failed to decode document %s: %w", name, err)
	}
	return Revision(strconv.FormatInt(row.Version, 10)), nil
}

// Save writes the named document, bumping its version. An empty rev
// writes unconditionally; otherwise the write only lands while the
// stored version still matches rev.
func (s *SQLiteStore) Save(ctx context.Context, name string, doc any, rev Revision, note string) (Revision, error) {
	content, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("failed to encode document %s: %w", name, err)
	}

	if rev == "" {
		var version int64
		err := s.db.QueryRowxContext(ctx, `
			INSERT INTO documents (name, content, version, note, updated_at)
			VALUES (?, ?, 1, ?, CURRENT_TIMESTAMP)
			ON CONFLICT(name) DO UPDATE SET
				content = excluded.content,
				version = documents.version + 1,
				note = excluded.note,
				updated_at = CURRENT_TIMESTAMP
			RETURNING version
		`, name, content, note).Scan(&version)
		if err != nil {
			return "", fmt.Errorf("failed to save document %s: %w", name, err)
		}
		return Revision(strconv.FormatInt(version, 10)), nil
	}

	expected, err := strconv.ParseInt(string(rev), 10, 64)
	if err != nil {
		return "", fmt.Errorf("malformed revision %q for document %s: %w", rev, name, err)
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE documents
		SET content = ?, version = version + 1, note = ?, updated_at = CURRENT_TIMESTAMP
		WHERE name = ? AND version = ?
	`, content, note, name, expected)
	if err != nil {
		return "", fmt.Errorf("failed to save document %s: %w", name, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return "", fmt.Errorf("failed to check save of document %s: %w", name, err)
	}
	if affected == 0 {
		return "", ErrConflict
	}
	return Revision(strconv.FormatInt(expected+1, 10)), nil
}

// Ping verifies the backing database is reachable.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
