package gateway

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/cenkalti/backoff/v4"
	"github.com/kelindar/event"

	"github.com/critforge/sessiond/internal/app/logger/logging"
	"github.com/critforge/sessiond/internal/metrics"
	"github.com/critforge/sessiond/internal/store"
)

const eventSessionChanged = 0x01

// SessionChanged is published whenever a session mutates; the snapshot
// writer picks it up off the bus.
type SessionChanged struct {
	SessionID string
}

func (SessionChanged) Type() uint32 { return eventSessionChanged }

// SnapshotWriter drains session-changed events and persists snapshots.
// Persistence is best effort: a failed write is retried with backoff and
// eventually given up on with a log line, never surfaced to players.
type SnapshotWriter struct {
	registry *SessionRegistry
	sink     store.SnapshotStore

	pending chan string
	unsub   func()
}

func NewSnapshotWriter(registry *SessionRegistry, sink store.SnapshotStore) *SnapshotWriter {
	return &SnapshotWriter{
		registry: registry,
		sink:     sink,
		pending:  make(chan string, 256),
	}
}

// Start subscribes to the bus and runs the write loop until the context is
// cancelled. The final drain happens in Flush.
func (w *SnapshotWriter) Start(ctx context.Context, bus *event.Dispatcher) {
	w.unsub = event.SubscribeTo(bus, eventSessionChanged, func(e SessionChanged) {
		select {
		case w.pending <- e.SessionID:
		default:
			// The writer is behind; the next change republishes the id.
			slog.Debug("Snapshot queue full, dropping change", logging.SessionID(e.SessionID))
		}
	})

	for {
		select {
		case <-ctx.Done():
			return
		case sessionID := <-w.pending:
			w.save(ctx, sessionID)
		}
	}
}

// Flush persists whatever is still queued. Called during shutdown.
func (w *SnapshotWriter) Flush(ctx context.Context) {
	if w.unsub != nil {
		w.unsub()
	}
	for {
		select {
		case sessionID := <-w.pending:
			w.save(ctx, sessionID)
		default:
			return
		}
	}
}

func (w *SnapshotWriter) save(ctx context.Context, sessionID string) {
	snap, ok := w.buildSnapshot(sessionID)
	if !ok {
		return
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 4), ctx)
	err := backoff.Retry(func() error {
		return w.sink.Save(ctx, snap)
	}, policy)
	if err != nil {
		slog.Error("Giving up on session snapshot", logging.SessionID(sessionID), logging.Error(err))
		metrics.SnapshotFailures.Inc()
		return
	}
	metrics.SnapshotWrites.Inc()
}

func (w *SnapshotWriter) buildSnapshot(sessionID string) (store.Snapshot, bool) {
	s, ok := w.registry.Get(sessionID)
	if !ok {
		return store.Snapshot{}, false
	}

	s.mu.Lock()
	info := s.toInfo()
	createdAt, updatedAt := s.CreatedAt, s.UpdatedAt
	s.mu.Unlock()

	state, err := json.Marshal(info)
	if err != nil {
		slog.Error("Could not marshal session state", logging.SessionID(sessionID), logging.Error(err))
		return store.Snapshot{}, false
	}

	return store.Snapshot{
		SessionID:   info.ID,
		Name:        info.Name,
		Code:        info.Code,
		HostUserID:  info.HostUserID,
		CampaignID:  info.CampaignID,
		Status:      info.Status,
		Round:       info.Round,
		PlayerCount: len(info.Players),
		State:       state,
		CreatedAt:   createdAt,
		UpdatedAt:   updatedAt,
	}, true
}
