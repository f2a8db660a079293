package artifact

import (
	"context"
	"database/sql"
	"time"

	"github.com/pkg/errors"
	_ "modernc.org/sqlite"
)

const sqliteSchema = `
	CREATE TABLE IF NOT EXISTS artifacts(
		name TEXT PRIMARY KEY,
		data_type TEXT NOT NULL,
		entries INTEGER NOT NULL,
		payload BLOB NOT NULL,
		created_at TEXT NOT NULL
	)`

// SQLiteStore keeps encoded artifacts in a single SQLite table
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLiteStore opens or creates the database at path
func OpenSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open %s", path)
	}
	// one writer at a time; also keeps ":memory:" on a single connection
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to enable WAL")
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to create schema")
	}
	return &SQLiteStore{db: db}, nil
}

// Close releases the database handle
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Put inserts the artifact in one transaction. An existing row is never replaced.
func (s *SQLiteStore) Put(ctx context.Context, a *Artifact) error {
	if err := ValidateName(a.Name); err != nil {
		return err
	}
	data, err := Marshal(a)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed to begin transaction")
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`INSERT INTO artifacts(name, data_type, entries, payload, created_at) VALUES(?,?,?,?,?)
		 ON CONFLICT(name) DO NOTHING`,
		a.Name, a.DataType.String(), a.Len(), data, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return errors.Wrapf(err, "failed to insert %s", a.Name)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to read affected rows")
	}
	if n == 0 {
		return errors.Wrapf(ErrExists, "%s", a.Name)
	}
	return errors.Wrapf(tx.Commit(), "failed to commit %s", a.Name)
}

// Get decodes the artifact stored under name
func (s *SQLiteStore) Get(ctx context.Context, name string) (*Artifact, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx, "SELECT payload FROM artifacts WHERE name = ?", name).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, errors.Wrapf(ErrNotFound, "%s", name)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read %s", name)
	}
	return Unmarshal(data)
}

// List returns the stored names in sorted order
func (s *SQLiteStore) List(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT name FROM artifacts ORDER BY name")
	if err != nil {
		return nil, errors.Wrap(err, "failed to list artifacts")
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, errors.Wrap(err, "failed to scan artifact name")
		}
		names = append(names, name)
	}
	return names, errors.Wrap(rows.Err(), "failed to iterate artifacts")
}
