package wire

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"
)

const Subprotocol = "critforge.v1"

var ProtoVersion = "dev"

// Connect dials the gateway, performs the authentication handshake and
// returns the open connection. It is used by test harnesses and tooling;
// the browser client implements the same sequence.
func Connect(ctx context.Context, wsURL, token string) (*websocket.Conn, Identity, error) {
	var identity Identity

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	headers := http.Header{}
	headers.Set("X-Version", ProtoVersion)

	ws, _, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{
		Subprotocols: []string{Subprotocol},
		HTTPHeader:   headers,
	})
	if err != nil {
		return nil, identity, err
	}

	if err := Write(ctx, ws, Compose(Authenticate, "", AuthenticatePayload{Token: token})); err != nil {
		_ = ws.CloseNow()
		return nil, identity, err
	}

	_, frame, err := ws.Read(ctx)
	if err != nil {
		_ = ws.CloseNow()
		return nil, identity, err
	}
	env, err := Decode(frame)
	if err != nil {
		_ = ws.CloseNow()
		return nil, identity, err
	}
	if env.Type != Authenticated {
		_ = ws.CloseNow()
		return nil, identity, fmt.Errorf("expected %s, got %s", Authenticated, env.Type)
	}

	authed, err := DecodePayload[AuthenticatedPayload](env)
	if err != nil {
		_ = ws.CloseNow()
		return nil, identity, err
	}
	identity = Identity{UserID: authed.UserID, Username: authed.Username}

	slog.Debug("Connected to the gateway", "userId", identity.UserID, "url", wsURL)
	return ws, identity, nil
}

var _ WebSocketWriter = (*websocket.Conn)(nil)

type WebSocketWriter interface {
	Write(ctx context.Context, messageType websocket.MessageType, payload []byte) error
}

func Write(ctx context.Context, wsConn WebSocketWriter, payload []byte) error {
	return wsConn.Write(ctx, websocket.MessageText, payload)
}
