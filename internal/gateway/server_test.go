package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/critforge/sessiond/internal/store/memory"
	"github.com/critforge/sessiond/internal/wire"
)

func newTestServer(t *testing.T, opts ...Option) (*Server, *httptest.Server) {
	t.Helper()
	server := NewServer(stubValidator{}, memory.NewStore(), opts...)
	ts := httptest.NewServer(server.HttpRouter())
	t.Cleanup(ts.Close)
	return server, ts
}

func wsURL(ts *httptest.Server) string {
	return "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
}

// readUntil reads frames off the socket until one of the wanted type shows
// up, failing on timeout or close.
func readUntil(t *testing.T, ws *websocket.Conn, msgType wire.MessageType) wire.Envelope {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	for {
		_, frame, err := ws.Read(ctx)
		require.NoError(t, err, "waiting for %s", msgType)

		env, err := wire.Decode(frame)
		require.NoError(t, err)
		if env.Type == msgType {
			return env
		}
	}
}

func TestHealthEndpoint(t *testing.T) {
	_, ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/_health")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "OK", body["status"])
	assert.EqualValues(t, 0, body["connections"])
	assert.EqualValues(t, 0, body["activeSessions"])
}

func TestMetricsEndpoint(t *testing.T) {
	_, ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/_metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestNonWebSocketRoutesAnswer426(t *testing.T) {
	_, ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/something-else")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUpgradeRequired, resp.StatusCode)
}

func TestServerRejectsWhenFull(t *testing.T) {
	_, ts := newTestServer(t, WithCapacity(1, 4))

	ctx := context.Background()
	ws, _, err := wire.Connect(ctx, wsURL(ts), "u-1:alice")
	require.NoError(t, err)
	defer ws.CloseNow()

	resp, err := http.Get(ts.URL + "/ws")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestEndToEndSession(t *testing.T) {
	server, ts := newTestServer(t, WithCapacity(16, 4))
	ctx := context.Background()

	// Alice hosts a table.
	alice, aliceIdentity, err := wire.Connect(ctx, wsURL(ts), "u-alice:alice")
	require.NoError(t, err)
	defer alice.CloseNow()
	require.Equal(t, "u-alice", aliceIdentity.UserID)

	require.NoError(t, wire.Write(ctx, alice, wire.Compose(wire.CreateSession, "c-1",
		wire.CreateSessionPayload{Name: "Dragon Hunt", MaxPlayers: 4})))

	created := readUntil(t, alice, wire.SessionCreated)
	require.Equal(t, "c-1", created.CorrelationID)
	info, err := wire.DecodePayload[wire.SessionInfo](created)
	require.NoError(t, err)
	require.Len(t, info.Code, inviteLength)

	// Bob joins with the invite code.
	bob, _, err := wire.Connect(ctx, wsURL(ts), "u-bob:bob")
	require.NoError(t, err)
	defer bob.CloseNow()

	require.NoError(t, wire.Write(ctx, bob, wire.Compose(wire.JoinSession, "j-1",
		wire.JoinSessionPayload{Session: info.Code})))
	joined := readUntil(t, bob, wire.SessionJoined)
	joinedInfo, err := wire.DecodePayload[wire.SessionInfo](joined)
	require.NoError(t, err)
	assert.Len(t, joinedInfo.Players, 2)

	// Alice sees the refreshed roster.
	roster := readUntil(t, alice, wire.PlayerList)
	rosterPayload, err := wire.DecodePayload[wire.PlayerListPayload](roster)
	require.NoError(t, err)
	assert.Len(t, rosterPayload.Players, 2)

	// Alice locks the table for Bob only; Carol bounces off.
	require.NoError(t, wire.Write(ctx, alice, wire.Compose(wire.SessionLock, "",
		wire.SessionLockPayload{AllowedUserIDs: []string{"u-bob"}})))
	readUntil(t, alice, wire.SessionLocked)

	carol, _, err := wire.Connect(ctx, wsURL(ts), "u-carol:carol")
	require.NoError(t, err)
	defer carol.CloseNow()

	require.NoError(t, wire.Write(ctx, carol, wire.Compose(wire.JoinSession, "j-2",
		wire.JoinSessionPayload{Session: info.Code})))
	rejected := readUntil(t, carol, wire.SessionError)
	rejectedPayload, err := wire.DecodePayload[wire.ErrorPayload](rejected)
	require.NoError(t, err)
	assert.Equal(t, wire.CodeSessionLocked, rejectedPayload.Code)

	// The game starts; both players hear it.
	require.NoError(t, wire.Write(ctx, alice, wire.Compose(wire.GameStart, "", nil)))

	for _, ws := range []*websocket.Conn{alice, bob} {
		start := readUntil(t, ws, wire.GameStart)
		startPayload, err := wire.DecodePayload[wire.GameStartPayload](start)
		require.NoError(t, err)
		assert.Equal(t, 1, startPayload.Round)
		assert.Equal(t, []string{"u-bob", "u-alice"}, startPayload.Initiative)
	}

	// Chat flows across the table.
	require.NoError(t, wire.Write(ctx, bob, wire.Compose(wire.ChatMessage, "",
		wire.ChatPayload{Text: "I check the door for traps"})))
	chat := readUntil(t, alice, wire.ChatBroadcast)
	chatPayload, err := wire.DecodePayload[wire.ChatBroadcastPayload](chat)
	require.NoError(t, err)
	assert.Equal(t, "I check the door for traps", chatPayload.Text)

	total, authenticated := server.Conns.Stats()
	assert.Equal(t, 3, total)
	assert.Equal(t, 3, authenticated)
	assert.Equal(t, 1, server.Sessions.ActiveCount())
}

func TestDisconnectMarksPlayerAway(t *testing.T) {
	server, ts := newTestServer(t)
	ctx := context.Background()

	alice, _, err := wire.Connect(ctx, wsURL(ts), "u-alice:alice")
	require.NoError(t, err)
	defer alice.CloseNow()

	require.NoError(t, wire.Write(ctx, alice, wire.Compose(wire.CreateSession, "",
		wire.CreateSessionPayload{Name: "table"})))
	created := readUntil(t, alice, wire.SessionCreated)
	info, err := wire.DecodePayload[wire.SessionInfo](created)
	require.NoError(t, err)

	bob, _, err := wire.Connect(ctx, wsURL(ts), "u-bob:bob")
	require.NoError(t, err)
	require.NoError(t, wire.Write(ctx, bob, wire.Compose(wire.JoinSession, "",
		wire.JoinSessionPayload{Session: info.Code})))
	readUntil(t, bob, wire.SessionJoined)

	// Bob's socket drops without a LEAVE_SESSION.
	require.NoError(t, bob.Close(websocket.StatusNormalClosure, "going for snacks"))

	require.Eventually(t, func() bool {
		s, ok := server.Sessions.Get(info.ID)
		if !ok {
			return false
		}
		s.mu.Lock()
		defer s.mu.Unlock()
		p := s.findPlayer("u-bob")
		return p != nil && !p.Connected
	}, 3*time.Second, 10*time.Millisecond)

	// The seat survives for a later reconnect.
	s, _ := server.Sessions.Get(info.ID)
	s.mu.Lock()
	defer s.mu.Unlock()
	assert.Len(t, s.Players, 2)
}

func TestOversizedFrameClosesConnection(t *testing.T) {
	_, ts := newTestServer(t, WithFrameLimit(256))
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	ws, _, err := wire.Connect(ctx, wsURL(ts), "u-a:a")
	require.NoError(t, err)
	defer ws.CloseNow()

	require.NoError(t, wire.Write(ctx, ws, wire.Compose(wire.ChatMessage, "",
		wire.ChatPayload{Text: strings.Repeat("x", 4096)})))

	_, _, err = ws.Read(ctx)
	require.Error(t, err)
	assert.Equal(t, websocket.StatusMessageTooBig, websocket.CloseStatus(err))
}

func TestAuthHandshakeRejectsBadToken(t *testing.T) {
	_, ts := newTestServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	ws, _, err := websocket.Dial(ctx, wsURL(ts), &websocket.DialOptions{
		Subprotocols: []string{wire.Subprotocol},
	})
	require.NoError(t, err)
	defer ws.CloseNow()

	require.NoError(t, wire.Write(ctx, ws, wire.Compose(wire.Authenticate, "",
		wire.AuthenticatePayload{Token: "garbage"})))

	env := readUntil(t, ws, wire.AuthError)
	payload, err := wire.DecodePayload[wire.ErrorPayload](env)
	require.NoError(t, err)
	assert.Equal(t, wire.CodeAuthFailed, payload.Code)
}
