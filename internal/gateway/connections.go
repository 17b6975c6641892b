package gateway

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/critforge/sessiond/internal/app/logger/logging"
	"github.com/critforge/sessiond/internal/metrics"
	"github.com/critforge/sessiond/internal/wire"
)

const sendTimeout = 5 * time.Second

var _ ConnSocket = (*websocket.Conn)(nil)

// ConnSocket is the slice of a websocket connection the registry needs.
type ConnSocket interface {
	Read(ctx context.Context) (websocket.MessageType, []byte, error)
	Write(ctx context.Context, typ websocket.MessageType, p []byte) error
	Close(code websocket.StatusCode, reason string) error
	CloseNow() error
}

// Connection is the gateway-side state of one live socket. It is owned by
// the ConnRegistry; every other component refers to it by id only.
type Connection struct {
	ID string

	sock    ConnSocket
	writeMu sync.Mutex // serializes frames onto the socket

	mu            sync.RWMutex
	authenticated bool
	identity      wire.Identity
	sessionID     string
	lastHeartbeat time.Time
}

func (c *Connection) Authenticated() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.authenticated
}

func (c *Connection) Identity() wire.Identity {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.identity
}

func (c *Connection) SessionID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sessionID
}

func (c *Connection) LastHeartbeat() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastHeartbeat
}

// send writes one frame to the socket. A failed write is logged and
// counted, never fatal; the read loop notices the broken socket and tears
// the connection down.
func (c *Connection) send(ctx context.Context, payload []byte) {
	ctx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := c.sock.Write(ctx, websocket.MessageText, payload); err != nil {
		slog.Warn("Could not send a frame", "connId", c.ID, logging.Error(err))
		metrics.FailedSends.WithLabelValues("write_error").Inc()
	}
}

// DisconnectFunc is called when a connection with an identity and a session
// tag is removed, so the session roster can mark the player disconnected.
type DisconnectFunc func(sessionID, userID string)

// ConnRegistry owns every live connection and its authentication and
// heartbeat state.
type ConnRegistry struct {
	mu    sync.RWMutex
	conns map[string]*Connection

	maxPerUser   int
	onDisconnect DisconnectFunc
}

func NewConnRegistry(maxPerUser int) *ConnRegistry {
	return &ConnRegistry{
		conns:      make(map[string]*Connection),
		maxPerUser: maxPerUser,
	}
}

// SetDisconnectFunc wires the session-side disconnect notification. Must be
// called before the registry starts accepting connections.
func (cr *ConnRegistry) SetDisconnectFunc(fn DisconnectFunc) { cr.onDisconnect = fn }

// Register stores a new unauthenticated connection and returns its id.
func (cr *ConnRegistry) Register(sock ConnSocket) string {
	conn := &Connection{
		ID:            uuid.NewString(),
		sock:          sock,
		lastHeartbeat: time.Now().In(time.UTC),
	}

	cr.mu.Lock()
	cr.conns[conn.ID] = conn
	cr.mu.Unlock()

	metrics.ConnectionsTotal.Inc()
	metrics.ConnectionsOpen.Inc()
	return conn.ID
}

// Get returns a connection by id.
func (cr *ConnRegistry) Get(id string) (*Connection, bool) {
	cr.mu.RLock()
	conn, ok := cr.conns[id]
	cr.mu.RUnlock()
	return conn, ok
}

// Authenticate attaches the resolved identity to the connection. It fails
// when the identity already holds the configured maximum number of
// concurrent connections, which bounds per-user fan-out abuse. The count
// and the mark happen under the same write lock so concurrent attempts for
// one user cannot both slip under the cap.
func (cr *ConnRegistry) Authenticate(id string, identity wire.Identity) bool {
	cr.mu.Lock()
	defer cr.mu.Unlock()

	conn, ok := cr.conns[id]
	if !ok {
		return false
	}

	owned := 0
	for _, other := range cr.conns {
		if other.ID != id && other.Authenticated() && other.Identity().UserID == identity.UserID {
			owned++
		}
	}

	if cr.maxPerUser > 0 && owned >= cr.maxPerUser {
		slog.Warn("Too many connections for user", logging.UserID(identity.UserID), "open", owned)
		return false
	}

	conn.mu.Lock()
	conn.authenticated = true
	conn.identity = identity
	conn.mu.Unlock()

	metrics.ConnectionsAuthenticated.Inc()
	return true
}

// Send writes one frame to exactly one connection. A missing target is a
// logged no-op.
func (cr *ConnRegistry) Send(ctx context.Context, id string, payload []byte) {
	conn, ok := cr.Get(id)
	if !ok {
		slog.Debug("Send to unknown connection", "connId", id)
		metrics.FailedSends.WithLabelValues("not_connected").Inc()
		return
	}
	conn.send(ctx, payload)
}

// Heartbeat records the time of the most recent inbound frame.
func (cr *ConnRegistry) Heartbeat(id string) {
	conn, ok := cr.Get(id)
	if !ok {
		return
	}
	conn.mu.Lock()
	conn.lastHeartbeat = time.Now().In(time.UTC)
	conn.mu.Unlock()
}

// JoinSessionLocally tags the connection with the session it broadcasts
// under. The authoritative roster lives in the SessionRegistry.
func (cr *ConnRegistry) JoinSessionLocally(id, sessionID string) {
	conn, ok := cr.Get(id)
	if !ok {
		return
	}
	conn.mu.Lock()
	conn.sessionID = sessionID
	conn.mu.Unlock()
}

// LeaveSessionLocally clears the broadcast tag.
func (cr *ConnRegistry) LeaveSessionLocally(id string) {
	conn, ok := cr.Get(id)
	if !ok {
		return
	}
	conn.mu.Lock()
	conn.sessionID = ""
	conn.mu.Unlock()
}

// Remove deletes the bookkeeping for a connection and, when it carried an
// identity and a session tag, notifies the session side that the player is
// disconnected (not removed).
func (cr *ConnRegistry) Remove(id string) {
	cr.mu.Lock()
	conn, ok := cr.conns[id]
	if ok {
		delete(cr.conns, id)
	}
	cr.mu.Unlock()

	if !ok {
		return
	}

	metrics.ConnectionsOpen.Dec()
	if conn.Authenticated() {
		metrics.ConnectionsAuthenticated.Dec()
	}

	sessionID, userID := conn.SessionID(), conn.Identity().UserID
	if cr.onDisconnect != nil && sessionID != "" && userID != "" {
		cr.onDisconnect(sessionID, userID)
	}
}

// SessionConnections resolves every connection currently tagged with the
// session id. This is the back-reference broadcasts run on.
func (cr *ConnRegistry) SessionConnections(sessionID string) []*Connection {
	cr.mu.RLock()
	defer cr.mu.RUnlock()

	var out []*Connection
	for _, conn := range cr.conns {
		if conn.SessionID() == sessionID {
			out = append(out, conn)
		}
	}
	return out
}

// UserConnections resolves the connections of one user within a session. A
// user may hold more than one connection.
func (cr *ConnRegistry) UserConnections(sessionID, userID string) []*Connection {
	cr.mu.RLock()
	defer cr.mu.RUnlock()

	var out []*Connection
	for _, conn := range cr.conns {
		if conn.SessionID() == sessionID && conn.Identity().UserID == userID {
			out = append(out, conn)
		}
	}
	return out
}

// Stale returns the ids of connections whose last heartbeat is older than
// the staleness window.
func (cr *ConnRegistry) Stale(window time.Duration) []string {
	deadline := time.Now().Add(-window)

	cr.mu.RLock()
	defer cr.mu.RUnlock()

	var out []string
	for id, conn := range cr.conns {
		if conn.LastHeartbeat().Before(deadline) {
			out = append(out, id)
		}
	}
	return out
}

// Stats reports the connection counters used for admission control and
// health reporting.
func (cr *ConnRegistry) Stats() (total, authenticated int) {
	cr.mu.RLock()
	defer cr.mu.RUnlock()

	for _, conn := range cr.conns {
		total++
		if conn.Authenticated() {
			authenticated++
		}
	}
	return total, authenticated
}

// CloseWith closes one socket with the given status code. The read loop
// unwinds and removes the connection.
func (cr *ConnRegistry) CloseWith(id string, code websocket.StatusCode, reason string) {
	conn, ok := cr.Get(id)
	if !ok {
		return
	}
	if err := conn.sock.Close(code, reason); err != nil {
		slog.Debug("Could not close the connection", "connId", id, logging.Error(err))
	}
}

// ShutdownAll closes every socket with a going-away code during process
// termination.
func (cr *ConnRegistry) ShutdownAll() {
	cr.mu.Lock()
	conns := make([]*Connection, 0, len(cr.conns))
	for _, conn := range cr.conns {
		conns = append(conns, conn)
	}
	clear(cr.conns)
	cr.mu.Unlock()

	for _, conn := range conns {
		if err := conn.sock.Close(websocket.StatusGoingAway, "server shutting down"); err != nil {
			_ = conn.sock.CloseNow()
		}
	}
}
