// Package storage persists the resumable subset of the listening session.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"cloudamp/internal/core"
)

const schema = `
CREATE TABLE IF NOT EXISTS session (
	id          INTEGER PRIMARY KEY CHECK (id = 1),
	volume      REAL    NOT NULL,
	play_mode   TEXT    NOT NULL,
	playlist_id INTEGER NOT NULL,
	song_id     INTEGER NOT NULL,
	updated_at  INTEGER NOT NULL DEFAULT (strftime('%s','now'))
);`

// SQLiteStore keeps a single session row. It implements core.SnapshotStore.
type SQLiteStore struct {
	db     *sql.DB
	logger *zap.Logger
}

func NewSQLiteStore(path string, logger *zap.Logger) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("opening session store: %w", err)
	}
	// A single writer owns the row; extra connections only contend.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating session schema: %w", err)
	}

	return &SQLiteStore{db: db, logger: logger}, nil
}

// Load returns the persisted snapshot. The second return is false when no
// session has ever been saved.
func (s *SQLiteStore) Load(ctx context.Context) (*core.Snapshot, bool, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT volume, play_mode, playlist_id, song_id FROM session WHERE id = 1`)

	var snap core.Snapshot
	var mode string
	err := row.Scan(&snap.Volume, &mode, &snap.PlaylistID, &snap.SongID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("loading session snapshot: %w", err)
	}
	snap.PlayMode = core.ParsePlayMode(mode)
	return &snap, true, nil
}

// Save upserts the single session row.
func (s *SQLiteStore) Save(ctx context.Context, snap *core.Snapshot) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO session (id, volume, play_mode, playlist_id, song_id, updated_at)
		VALUES (1, ?, ?, ?, ?, strftime('%s','now'))
		ON CONFLICT (id) DO UPDATE SET
			volume = excluded.volume,
			play_mode = excluded.play_mode,
			playlist_id = excluded.playlist_id,
			song_id = excluded.song_id,
			updated_at = excluded.updated_at`,
		snap.Volume, snap.PlayMode.String(), snap.PlaylistID, snap.SongID)
	if err != nil {
		return fmt.Errorf("saving session snapshot: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
