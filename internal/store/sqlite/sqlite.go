// Package sqlite persists session snapshots in a local SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log/slog"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	_ "modernc.org/sqlite"

	"github.com/critforge/sessiond/internal/store"
)

//go:embed migrations/*.sql
var migrations embed.FS

type Store struct {
	conn *sql.DB
}

var _ store.SnapshotStore = (*Store)(nil)

// NewMemory opens an in-memory database, used by tests.
func NewMemory() (*Store, error) {
	slog.Debug("Connecting to in-memory SQLite database")

	conn, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return nil, err
	}

	// Single connection prevents concurrent writes on the shared handle.
	conn.SetMaxOpenConns(1)

	if err := conn.Ping(); err != nil {
		return nil, err
	}
	if err := Migrate(conn); err != nil {
		return nil, err
	}
	return &Store{conn: conn}, nil
}

// NewLocal opens (and migrates) the database file at the given path.
func NewLocal(pathToDatabase string) (*Store, error) {
	pragmas := "_pragma=busy_timeout(10000)&" +
		"_pragma=journal_mode(WAL)&" +
		"_pragma=synchronous(NORMAL)&" +
		"_pragma=foreign_keys(ON)"
	uri := fmt.Sprintf("%s?%s", pathToDatabase, pragmas)
	slog.Debug("Connecting to local SQLite database", "uri", uri)

	conn, err := sql.Open("sqlite", uri)
	if err != nil {
		return nil, err
	}
	conn.SetMaxOpenConns(1)

	if err := conn.Ping(); err != nil {
		return nil, err
	}
	if err := Migrate(conn); err != nil {
		return nil, err
	}
	return &Store{conn: conn}, nil
}

func Migrate(conn *sql.DB) error {
	migrationSource, err := iofs.New(migrations, "migrations")
	if err != nil {
		return err
	}
	driver, err := migratesqlite.WithInstance(conn, &migratesqlite.Config{})
	if err != nil {
		return err
	}
	m, err := migrate.NewWithInstance("iofs", migrationSource, "sqlite", driver)
	if err != nil {
		return err
	}
	if err := m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			return nil
		}
		return fmt.Errorf("migration: %w", err)
	}
	return nil
}

func (s *Store) Save(ctx context.Context, snap store.Snapshot) error {
	_, err := s.conn.ExecContext(ctx, `
		INSERT INTO session_snapshots
			(session_id, name, code, host_user_id, campaign_id, status, round, player_count, state, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(session_id) DO UPDATE SET
			name = excluded.name,
			code = excluded.code,
			status = excluded.status,
			round = excluded.round,
			player_count = excluded.player_count,
			state = excluded.state,
			updated_at = excluded.updated_at`,
		snap.SessionID, snap.Name, snap.Code, snap.HostUserID, snap.CampaignID,
		snap.Status, snap.Round, snap.PlayerCount, snap.State,
		snap.CreatedAt.UTC(), snap.UpdatedAt.UTC(),
	)
	return err
}

func (s *Store) Get(ctx context.Context, sessionID string) (store.Snapshot, error) {
	row := s.conn.QueryRowContext(ctx, `
		SELECT session_id, name, code, host_user_id, campaign_id, status, round, player_count, state, created_at, updated_at
		FROM session_snapshots WHERE session_id = ?`, sessionID)
	return scanSnapshot(row)
}

func (s *Store) List(ctx context.Context) ([]store.Snapshot, error) {
	rows, err := s.conn.QueryContext(ctx, `
		SELECT session_id, name, code, host_user_id, campaign_id, status, round, player_count, state, created_at, updated_at
		FROM session_snapshots ORDER BY updated_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var snaps []store.Snapshot
	for rows.Next() {
		snap, err := scanSnapshot(rows)
		if err != nil {
			return nil, err
		}
		snaps = append(snaps, snap)
	}
	return snaps, rows.Err()
}

func (s *Store) Delete(ctx context.Context, sessionID string) error {
	_, err := s.conn.ExecContext(ctx, `DELETE FROM session_snapshots WHERE session_id = ?`, sessionID)
	return err
}

func (s *Store) Ping() error { return s.conn.Ping() }

func (s *Store) Close() error { return s.conn.Close() }

type scanner interface {
	Scan(dest ...any) error
}

func scanSnapshot(row scanner) (store.Snapshot, error) {
	var snap store.Snapshot
	err := row.Scan(
		&snap.SessionID, &snap.Name, &snap.Code, &snap.HostUserID, &snap.CampaignID,
		&snap.Status, &snap.Round, &snap.PlayerCount, &snap.State,
		&snap.CreatedAt, &snap.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return store.Snapshot{}, store.ErrNotFound
	}
	return snap, err
}
