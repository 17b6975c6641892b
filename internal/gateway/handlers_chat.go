package gateway

import (
	"context"

	"github.com/critforge/sessiond/internal/wire"
)

func (rt *Router) handleChatMessage(ctx context.Context, conn *Connection, env wire.Envelope) error {
	payload, err := wire.DecodePayload[wire.ChatPayload](env)
	if err != nil {
		return newError(wire.CodeMalformed, "could not parse the chat message")
	}

	sessionID := conn.SessionID()
	if sessionID == "" {
		return ErrNotInSession
	}

	identity := conn.Identity()
	rt.sessions.Broadcast(ctx, sessionID, wire.Compose(wire.ChatBroadcast, "", wire.ChatBroadcastPayload{
		SessionID: sessionID,
		UserID:    identity.UserID,
		Username:  identity.Username,
		Text:      payload.Text,
	}))
	return nil
}

// handleWhisper delivers only to the target user's connections within the
// same session. A user may hold more than one connection; all of them get
// the whisper, nobody else does.
func (rt *Router) handleWhisper(ctx context.Context, conn *Connection, env wire.Envelope) error {
	payload, err := wire.DecodePayload[wire.WhisperPayload](env)
	if err != nil {
		return newError(wire.CodeMalformed, "could not parse the whisper")
	}

	sessionID := conn.SessionID()
	if sessionID == "" {
		return ErrNotInSession
	}

	targets := rt.conns.UserConnections(sessionID, payload.TargetUserID)
	if len(targets) == 0 {
		return newError(wire.CodeNotFound, "target user is not connected to this session")
	}

	identity := conn.Identity()
	frame := wire.Compose(wire.Whisper, "", wire.ChatBroadcastPayload{
		SessionID: sessionID,
		UserID:    identity.UserID,
		Username:  identity.Username,
		Text:      payload.Text,
		Whisper:   true,
	})
	for _, target := range targets {
		target.send(ctx, frame)
	}
	return nil
}
