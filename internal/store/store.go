// Package store persists session snapshots so that a restarted gateway can
// report on past tables. The snapshot is a best-effort sink, not the source
// of truth; live state lives in the registries.
package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when no snapshot exists for the session id.
var ErrNotFound = errors.New("store: snapshot not found")

// Snapshot is one persisted view of a session.
type Snapshot struct {
	SessionID   string
	Name        string
	Code        string
	HostUserID  string
	CampaignID  string
	Status      string
	Round       int
	PlayerCount int
	State       []byte
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// SnapshotStore saves and loads session snapshots.
type SnapshotStore interface {
	Save(ctx context.Context, snap Snapshot) error
	Get(ctx context.Context, sessionID string) (Snapshot, error)
	List(ctx context.Context) ([]Snapshot, error)
	Delete(ctx context.Context, sessionID string) error
	Ping() error
	Close() error
}
