// Package memory holds snapshots in a map. Used by tests and by
// deployments that do not care about snapshot history.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/critforge/sessiond/internal/store"
)

type Store struct {
	mu    sync.RWMutex
	snaps map[string]store.Snapshot
}

var _ store.SnapshotStore = (*Store)(nil)

func NewStore() *Store {
	return &Store{snaps: make(map[string]store.Snapshot)}
}

func (s *Store) Save(_ context.Context, snap store.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snaps[snap.SessionID] = snap
	return nil
}

func (s *Store) Get(_ context.Context, sessionID string) (store.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap, ok := s.snaps[sessionID]
	if !ok {
		return store.Snapshot{}, store.ErrNotFound
	}
	return snap, nil
}

func (s *Store) List(_ context.Context) ([]store.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]store.Snapshot, 0, len(s.snaps))
	for _, snap := range s.snaps {
		out = append(out, snap)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SessionID < out[j].SessionID })
	return out, nil
}

func (s *Store) Delete(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.snaps, sessionID)
	return nil
}

func (s *Store) Ping() error { return nil }

func (s *Store) Close() error { return nil }
