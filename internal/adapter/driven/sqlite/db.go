package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// filePragmas apply to on-disk databases. WAL does not apply to memory mode.
var filePragmas = []string{
	"journal_mode(WAL)",
	"busy_timeout(5000)",
	"synchronous(NORMAL)",
	"foreign_keys(ON)",
}

// DB holds separate reader and writer pools over one SQLite database.
// The writer is limited to a single connection so credential mutations are
// serialized and never hit "database is locked".
type DB struct {
	Writer *sql.DB
	Reader *sql.DB
}

// NewDB opens the credential database at dbPath, creating its directory when
// missing. The file holds refresh tokens and client secrets, so it is
// restricted to the owner.
func NewDB(ctx context.Context, dbPath string) (*DB, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("create database directory %q: %w", dir, err)
		}
	}

	db, err := open(ctx, buildDSN(dbPath, nil, filePragmas))
	if err != nil {
		return nil, err
	}

	if err := os.Chmod(dbPath, 0o600); err != nil && !errors.Is(err, fs.ErrNotExist) {
		_ = db.Close()
		return nil, fmt.Errorf("restrict database file %q: %w", dbPath, err)
	}
	return db, nil
}

// buildDSN renders a modernc.org/sqlite URI with one _pragma per entry.
func buildDSN(target string, params url.Values, pragmas []string) string {
	q := url.Values{}
	for k, vs := range params {
		q[k] = append(q[k], vs...)
	}
	for _, p := range pragmas {
		q.Add("_pragma", p)
	}
	return "file:" + target + "?" + q.Encode()
}

func open(ctx context.Context, dsn string) (*DB, error) {
	writer, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open writer: %w", err)
	}
	writer.SetMaxOpenConns(1)

	if err := writer.PingContext(ctx); err != nil {
		_ = writer.Close()
		return nil, fmt.Errorf("ping writer: %w", err)
	}

	reader, err := sql.Open("sqlite", dsn)
	if err != nil {
		_ = writer.Close()
		return nil, fmt.Errorf("open reader: %w", err)
	}
	reader.SetMaxOpenConns(2)

	if err := reader.PingContext(ctx); err != nil {
		_ = reader.Close()
		_ = writer.Close()
		return nil, fmt.Errorf("ping reader: %w", err)
	}

	return &DB{Writer: writer, Reader: reader}, nil
}

// Close closes both pools and returns the first error.
func (db *DB) Close() error {
	var firstErr error

	if err := db.Reader.Close(); err != nil {
		firstErr = fmt.Errorf("close reader: %w", err)
	}

	if err := db.Writer.Close(); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("close writer: %w", err)
	}

	return firstErr
}
