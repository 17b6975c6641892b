package gateway

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/require"

	"github.com/critforge/sessiond/internal/dice"
	"github.com/critforge/sessiond/internal/rules"
	"github.com/critforge/sessiond/internal/wire"
)

// fakeSocket records every frame the gateway writes to it.
type fakeSocket struct {
	mu     sync.Mutex
	frames [][]byte
	closed bool
	status websocket.StatusCode
}

func (f *fakeSocket) Read(ctx context.Context) (websocket.MessageType, []byte, error) {
	<-ctx.Done()
	return 0, nil, ctx.Err()
}

func (f *fakeSocket) Write(_ context.Context, _ websocket.MessageType, p []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	frame := make([]byte, len(p))
	copy(frame, p)
	f.frames = append(f.frames, frame)
	return nil
}

func (f *fakeSocket) Close(code websocket.StatusCode, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	f.status = code
	return nil
}

func (f *fakeSocket) CloseNow() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeSocket) envelopes(t *testing.T) []wire.Envelope {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]wire.Envelope, len(f.frames))
	for i, frame := range f.frames {
		env, err := wire.Decode(frame)
		require.NoError(t, err)
		out[i] = env
	}
	return out
}

// lastOfType returns the most recent frame of the given type, failing the
// test when none arrived.
func (f *fakeSocket) lastOfType(t *testing.T, msgType wire.MessageType) wire.Envelope {
	t.Helper()
	envs := f.envelopes(t)
	for i := len(envs) - 1; i >= 0; i-- {
		if envs[i].Type == msgType {
			return envs[i]
		}
	}
	require.Failf(t, "missing frame", "no %s frame among %d received", msgType, len(envs))
	return wire.Envelope{}
}

func (f *fakeSocket) countOfType(t *testing.T, msgType wire.MessageType) int {
	t.Helper()
	n := 0
	for _, env := range f.envelopes(t) {
		if env.Type == msgType {
			n++
		}
	}
	return n
}

func (f *fakeSocket) reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.frames = nil
}

// stubValidator accepts tokens of the form "userID:username".
type stubValidator struct{}

func (stubValidator) Validate(token string) (wire.Identity, error) {
	userID, username, ok := strings.Cut(token, ":")
	if !ok || userID == "" {
		return wire.Identity{}, errors.New("bad token")
	}
	return wire.Identity{UserID: userID, Username: username}, nil
}

type testGateway struct {
	conns    *ConnRegistry
	sessions *SessionRegistry
	router   *Router
}

func newTestGateway(maxPerUser int, turnTimeout time.Duration) *testGateway {
	conns := NewConnRegistry(maxPerUser)
	sessions := NewSessionRegistry(conns, nil, turnTimeout)
	conns.SetDisconnectFunc(sessions.handleDisconnect)
	return &testGateway{
		conns:    conns,
		sessions: sessions,
		router:   NewRouter(conns, sessions, stubValidator{}, rules.Passthrough{}, dice.NewLocalRoller(1)),
	}
}

// connect registers a socket and, when a token is given, authenticates it.
// Frames produced by the handshake are dropped so tests start clean.
func (tg *testGateway) connect(t *testing.T, token string) (string, *fakeSocket) {
	t.Helper()

	sock := &fakeSocket{}
	connID := tg.conns.Register(sock)

	if token != "" {
		tg.router.HandleFrame(context.Background(), connID,
			wire.Compose(wire.Authenticate, "", wire.AuthenticatePayload{Token: token}))
		require.Equal(t, wire.Authenticated, sock.lastOfType(t, wire.Authenticated).Type)
		sock.reset()
	}
	return connID, sock
}

// createSession drives the full create flow over the router and returns the
// resulting session info.
func (tg *testGateway) createSession(t *testing.T, connID string, sock *fakeSocket, opts wire.CreateSessionPayload) wire.SessionInfo {
	t.Helper()

	tg.router.HandleFrame(context.Background(), connID, wire.Compose(wire.CreateSession, "", opts))
	env := sock.lastOfType(t, wire.SessionCreated)
	info, err := wire.DecodePayload[wire.SessionInfo](env)
	require.NoError(t, err)
	sock.reset()
	return info
}

// joinSession drives the join flow and returns the session info reply.
func (tg *testGateway) joinSession(t *testing.T, connID string, sock *fakeSocket, identifier string) wire.SessionInfo {
	t.Helper()

	tg.router.HandleFrame(context.Background(), connID,
		wire.Compose(wire.JoinSession, "", wire.JoinSessionPayload{Session: identifier}))
	env := sock.lastOfType(t, wire.SessionJoined)
	info, err := wire.DecodePayload[wire.SessionInfo](env)
	require.NoError(t, err)
	sock.reset()
	return info
}

func decodeError(t *testing.T, env wire.Envelope) wire.ErrorPayload {
	t.Helper()
	payload, err := wire.DecodePayload[wire.ErrorPayload](env)
	require.NoError(t, err)
	return payload
}
