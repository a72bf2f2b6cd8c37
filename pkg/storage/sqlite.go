package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/levenlabs/go-lflag"
	_ "modernc.org/sqlite"

	"github.com/raterudder/zappihistory/pkg/types"
)

const sqliteSchema = `CREATE TABLE IF NOT EXISTS samples (
	serial      TEXT NOT NULL,
	granularity TEXT NOT NULL,
	day         TEXT NOT NULL,
	json        TEXT NOT NULL,
	fetched_at  INTEGER NOT NULL,
	PRIMARY KEY (serial, granularity, day)
)`

// SQLiteProvider implements the Database interface with a local SQLite file.
type SQLiteProvider struct {
	path string
	db   *sql.DB
}

func configuredSQLite() *SQLiteProvider {
	path := lflag.String("sqlite-path", "", "Path of the SQLite cache file (defaults to the user cache directory)")

	s := &SQLiteProvider{}
	lflag.Do(func() {
		s.path = *path
	})
	return s
}

// Init opens the database file, creating it and the schema if needed.
func (s *SQLiteProvider) Init(ctx context.Context) error {
	if s.path == "" {
		dir, err := os.UserCacheDir()
		if err != nil {
			return fmt.Errorf("failed to find cache directory: %w", err)
		}
		s.path = filepath.Join(dir, "zappi-history", "samples.db")
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", filepath.Dir(s.path), err)
	}

	db, err := sql.Open("sqlite", s.path)
	if err != nil {
		return fmt.Errorf("failed to open sqlite (%s): %w", s.path, err)
	}
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close()
		return fmt.Errorf("failed to create sqlite schema: %w", err)
	}
	s.db = db
	return nil
}

// Close closes the database.
func (s *SQLiteProvider) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// GetSamples implements Database.
func (s *SQLiteProvider) GetSamples(ctx context.Context, serial string, g types.Granularity, day types.Date) (CachedDay, bool, error) {
	var (
		blob      string
		fetchedAt int64
	)
	err := s.db.QueryRowContext(
		ctx,
		"SELECT json, fetched_at FROM samples WHERE serial = ? AND granularity = ? AND day = ?",
		serial, g.String(), day.String(),
	).Scan(&blob, &fetchedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return CachedDay{}, false, nil
	}
	if err != nil {
		return CachedDay{}, false, fmt.Errorf("failed to query samples: %w", err)
	}

	cd := CachedDay{FetchedAt: time.Unix(fetchedAt, 0)}
	if err := json.Unmarshal([]byte(blob), &cd.Records); err != nil {
		return CachedDay{}, false, fmt.Errorf("failed to unmarshal samples json: %w", err)
	}
	return cd, true, nil
}

// PutSamples implements Database.
func (s *SQLiteProvider) PutSamples(ctx context.Context, serial string, g types.Granularity, day types.Date, recs []types.RawRecord) error {
	if serial == "" {
		return fmt.Errorf("serial cannot be empty")
	}
	blob, err := json.Marshal(recs)
	if err != nil {
		return fmt.Errorf("failed to marshal samples: %w", err)
	}
	_, err = s.db.ExecContext(
		ctx,
		`INSERT INTO samples (serial, granularity, day, json, fetched_at) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (serial, granularity, day) DO UPDATE SET json = excluded.json, fetched_at = excluded.fetched_at`,
		serial, g.String(), day.String(), string(blob), time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to save samples: %w", err)
	}
	return nil
}
