package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/custodia-labs/safety-consultant/internal/adapters/driven/storage/sqlite/migrations"
	"github.com/custodia-labs/safety-consultant/internal/core/domain"
	"github.com/custodia-labs/safety-consultant/internal/core/ports/driven"
)

// FileName is the manifest database file inside the index directory.
const FileName = "manifest.db"

var _ driven.ManifestStore = (*Store)(nil)

// Store is the SQLite implementation of driven.ManifestStore.
type Store struct {
	db   *sql.DB
	path string
}

// NewStore opens (creating if needed) the manifest in indexDir.
func NewStore(indexDir string) (*Store, error) {
	if err := os.MkdirAll(indexDir, 0o700); err != nil {
		return nil, fmt.Errorf("creating index directory: %w", err)
	}

	dbPath := filepath.Join(indexDir, FileName)

	// Open database with WAL mode for better concurrency
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Store{
		db:   db,
		path: dbPath,
	}

	if err := s.migrate(migrations.FS); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// migrate applies every NNN_name.up.sql newer than the recorded version.
func (s *Store) migrate(fsys embed.FS) error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("creating schema_migrations table: %w", err)
	}

	var currentVersion int
	row := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations")
	if err := row.Scan(&currentVersion); err != nil {
		return fmt.Errorf("getting current version: %w", err)
	}

	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}

	var upFiles []string
	for _, entry := range entries {
		if name := entry.Name(); strings.HasSuffix(name, ".up.sql") {
			upFiles = append(upFiles, name)
		}
	}
	sort.Strings(upFiles)

	for _, name := range upFiles {
		// "001_manifest.up.sql" -> 1
		var version int
		if _, err := fmt.Sscanf(name, "%d_", &version); err != nil {
			continue
		}
		if version <= currentVersion {
			continue
		}

		content, err := fs.ReadFile(fsys, name)
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", name, err)
		}
		if _, err := s.db.Exec(string(content)); err != nil {
			return fmt.Errorf("executing migration %s: %w", name, err)
		}
		if _, err := s.db.Exec("INSERT INTO schema_migrations (version) VALUES (?)", version); err != nil {
			return fmt.Errorf("recording migration %s: %w", name, err)
		}
	}

	return nil
}

// List returns every manifest entry ordered by source name.
func (s *Store) List(ctx context.Context) ([]domain.ManifestEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT name, content_hash, format, indexed_at
		FROM sources
		ORDER BY name
	`)
	if err != nil {
		return nil, fmt.Errorf("querying sources: %w", err)
	}
	defer rows.Close()

	var entries []domain.ManifestEntry
	index := make(map[string]int)
	for rows.Next() {
		var (
			e         domain.ManifestEntry
			format    int
			indexedAt string
		)
		if err := rows.Scan(&e.SourceName, &e.ContentHash, &format, &indexedAt); err != nil {
			return nil, fmt.Errorf("scanning source: %w", err)
		}
		e.Format = domain.Format(format)
		if e.IndexedAt, err = time.Parse(time.RFC3339Nano, indexedAt); err != nil {
			return nil, fmt.Errorf("parsing indexed_at for %s: %w", e.SourceName, err)
		}
		index[e.SourceName] = len(entries)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating sources: %w", err)
	}

	chunkRows, err := s.db.QueryContext(ctx, `
		SELECT source_name, id
		FROM chunks
		ORDER BY source_name, position
	`)
	if err != nil {
		return nil, fmt.Errorf("querying chunks: %w", err)
	}
	defer chunkRows.Close()

	for chunkRows.Next() {
		var name, id string
		if err := chunkRows.Scan(&name, &id); err != nil {
			return nil, fmt.Errorf("scanning chunk: %w", err)
		}
		if i, ok := index[name]; ok {
			entries[i].ChunkIDs = append(entries[i].ChunkIDs, id)
		}
	}
	if err := chunkRows.Err(); err != nil {
		return nil, fmt.Errorf("iterating chunks: %w", err)
	}

	return entries, nil
}

// Replace swaps the whole manifest for entries in one transaction.
func (s *Store) Replace(ctx context.Context, entries []domain.ManifestEntry) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	if _, err := tx.ExecContext(ctx, "DELETE FROM chunks"); err != nil {
		return fmt.Errorf("clearing chunks: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM sources"); err != nil {
		return fmt.Errorf("clearing sources: %w", err)
	}

	sourceStmt, err := tx.PrepareContext(ctx,
		"INSERT INTO sources (name, content_hash, format, indexed_at) VALUES (?, ?, ?, ?)")
	if err != nil {
		return fmt.Errorf("preparing source insert: %w", err)
	}
	defer sourceStmt.Close()

	chunkStmt, err := tx.PrepareContext(ctx,
		"INSERT INTO chunks (id, source_name, position) VALUES (?, ?, ?)")
	if err != nil {
		return fmt.Errorf("preparing chunk insert: %w", err)
	}
	defer chunkStmt.Close()

	for _, e := range entries {
		indexedAt := e.IndexedAt
		if indexedAt.IsZero() {
			indexedAt = time.Now()
		}
		if _, err := sourceStmt.ExecContext(ctx,
			e.SourceName, e.ContentHash, int(e.Format), indexedAt.UTC().Format(time.RFC3339Nano)); err != nil {
			return fmt.Errorf("inserting source %s: %w", e.SourceName, err)
		}
		for pos, id := range e.ChunkIDs {
			if _, err := chunkStmt.ExecContext(ctx, id, e.SourceName, pos); err != nil {
				return fmt.Errorf("inserting chunk %s: %w", id, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing manifest: %w", err)
	}
	return nil
}
