// Package notedb provides read-only access to the external notes
// database. notedex never writes through this handle; the database is
// owned by the note-taking application.
package notedb

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	nderr "github.com/notedex/notedex/internal/errors"
)

// Note is one row of the external notes table. Notes are transient:
// fetched per synchronization pass, routed through the index, dropped.
type Note struct {
	ID         string
	Title      string
	Content    string
	ModifiedAt int64 // milliseconds since epoch, as stored by the note app
}

// DB wraps a read-only connection to the notes database.
type DB struct {
	db   *sql.DB
	path string

	mu     sync.Mutex
	closed bool
}

// Open opens the notes database read-only. Failure here is fatal to
// startup: there is nothing to synchronize without a source.
func Open(ctx context.Context, path string) (*DB, error) {
	db, err := sql.Open("sqlite", "file:"+path+"?mode=ro")
	if err != nil {
		return nil, nderr.New(nderr.ErrCodeDatabaseOpen,
			fmt.Sprintf("open notes database %s: %v", path, err), err)
	}

	// The version counter is per-connection: PRAGMA data_version only
	// moves when a different connection commits. A pool that rotates
	// connections would make the counter jump around, so pin to one.
	db.SetMaxOpenConns(1)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, nderr.New(nderr.ErrCodeDatabaseOpen,
			fmt.Sprintf("notes database unreachable at %s: %v", path, err), err).
			WithSuggestion("check that the path points at the note app's SQLite file")
	}

	return &DB{db: db, path: path}, nil
}

// Path returns the database file path, for the file watcher.
func (d *DB) Path() string {
	return d.path
}

// Version returns the database's monotonic change counter. SQLite bumps
// data_version whenever any other connection commits a write, which
// makes it a cheap "did anything change" signal regardless of which
// application wrote.
func (d *DB) Version(ctx context.Context) (int64, error) {
	var v int64
	if err := d.db.QueryRowContext(ctx, "PRAGMA data_version").Scan(&v); err != nil {
		return 0, fmt.Errorf("read data_version: %w", err)
	}
	return v, nil
}

// NotesModifiedSince returns all notes with a modification time strictly
// greater than watermark, ordered by modification time ascending.
func (d *DB) NotesModifiedSince(ctx context.Context, watermark int64) ([]Note, error) {
	rows, err := d.db.QueryContext(ctx,
		`SELECT id, title, content, updated_at
		 FROM notes
		 WHERE updated_at > ?
		 ORDER BY updated_at ASC`, watermark)
	if err != nil {
		return nil, fmt.Errorf("query modified notes: %w", err)
	}
	defer rows.Close()

	var notes []Note
	for rows.Next() {
		var n Note
		if err := rows.Scan(&n.ID, &n.Title, &n.Content, &n.ModifiedAt); err != nil {
			return nil, fmt.Errorf("scan note row: %w", err)
		}
		notes = append(notes, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate note rows: %w", err)
	}
	return notes, nil
}

// Close closes the database handle. Safe to call multiple times.
func (d *DB) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return nil
	}
	d.closed = true
	return d.db.Close()
}
