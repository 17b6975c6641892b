package gateway

import (
	"context"
	"log/slog"

	"github.com/critforge/sessiond/internal/app/logger/logging"
	"github.com/critforge/sessiond/internal/dice"
	"github.com/critforge/sessiond/internal/metrics"
	"github.com/critforge/sessiond/internal/rules"
	"github.com/critforge/sessiond/internal/wire"
)

// TokenValidator resolves a bearer credential to a stable identity.
type TokenValidator interface {
	Validate(token string) (wire.Identity, error)
}

// Router parses inbound frames, enforces authentication before action, and
// dispatches to the domain handlers.
type Router struct {
	conns    *ConnRegistry
	sessions *SessionRegistry

	validator   TokenValidator
	adjudicator rules.Adjudicator
	roller      dice.Roller
}

func NewRouter(conns *ConnRegistry, sessions *SessionRegistry, validator TokenValidator, adjudicator rules.Adjudicator, roller dice.Roller) *Router {
	return &Router{
		conns:       conns,
		sessions:    sessions,
		validator:   validator,
		adjudicator: adjudicator,
		roller:      roller,
	}
}

// HandleFrame processes one inbound frame. Every failure is reported to the
// originating connection only; a panic in a handler is recovered here so
// one bad message never takes down the process or another session.
func (rt *Router) HandleFrame(ctx context.Context, connID string, frame []byte) {
	conn, ok := rt.conns.Get(connID)
	if !ok {
		return
	}

	rt.conns.Heartbeat(connID)

	env, err := wire.Decode(frame)
	if err != nil {
		rt.replyError(ctx, conn, wire.Error, "", wire.ErrorPayload{
			Code:    wire.CodeMalformed,
			Message: "could not parse the message envelope",
		})
		return
	}

	defer func() {
		if r := recover(); r != nil {
			slog.Error("Handler panicked", "type", env.Type, "connId", connID, "panic", r)
			metrics.HandlerErrors.WithLabelValues(string(wire.CodeHandler)).Inc()
			rt.replyError(ctx, conn, wire.Error, env.CorrelationID, wire.ErrorPayload{
				Code:    wire.CodeHandler,
				Message: "internal error while handling the message",
			})
		}
	}()

	metrics.MessagesReceived.WithLabelValues(string(env.Type)).Inc()

	// PING and AUTHENTICATE are the only types an unauthenticated
	// connection may send.
	switch env.Type {
	case wire.Ping:
		rt.reply(ctx, conn, wire.Pong, env.CorrelationID, nil)
		return
	case wire.Authenticate:
		rt.handleAuthenticate(ctx, conn, env)
		return
	}

	if !conn.Authenticated() {
		rt.replyError(ctx, conn, wire.Error, env.CorrelationID, wire.ErrorPayload{
			Code:    wire.CodeNotAuthenticated,
			Message: "authenticate before sending this message",
		})
		return
	}

	if err := rt.dispatch(ctx, conn, env); err != nil {
		payload := errorPayload(err)
		metrics.HandlerErrors.WithLabelValues(string(payload.Code)).Inc()

		replyType := wire.Error
		if isSessionCommand(env.Type) {
			replyType = wire.SessionError
		}
		rt.replyError(ctx, conn, replyType, env.CorrelationID, payload)
	}
}

// dispatch is the total function from client message type to handler. The
// default arm answers anything outside the closed set with a typed error;
// server-emitted types fall through to it as well.
func (rt *Router) dispatch(ctx context.Context, conn *Connection, env wire.Envelope) error {
	switch env.Type {
	case wire.CreateSession:
		return rt.handleCreateSession(ctx, conn, env)
	case wire.JoinSession:
		return rt.handleJoinSession(ctx, conn, env)
	case wire.LeaveSession:
		return rt.handleLeaveSession(ctx, conn, env)
	case wire.PlayerReady:
		return rt.handlePlayerReady(ctx, conn, env)
	case wire.SessionLock:
		return rt.handleSessionLock(ctx, conn, env, true)
	case wire.SessionUnlock:
		return rt.handleSessionLock(ctx, conn, env, false)
	case wire.GameStart:
		return rt.handleGameStart(ctx, conn, env)
	case wire.GamePause:
		return rt.handleGamePause(ctx, conn, env)
	case wire.GameResume:
		return rt.handleGameResume(ctx, conn, env)
	case wire.GameEnd:
		return rt.handleGameEnd(ctx, conn, env)
	case wire.TurnEnd:
		return rt.handleTurnEnd(ctx, conn, env)
	case wire.ActionRequest:
		return rt.handleActionRequest(ctx, conn, env)
	case wire.MoveToken:
		return rt.handleMoveToken(ctx, conn, env)
	case wire.DiceRoll:
		return rt.handleDiceRoll(ctx, conn, env)
	case wire.ChatMessage:
		return rt.handleChatMessage(ctx, conn, env)
	case wire.Whisper:
		return rt.handleWhisper(ctx, conn, env)
	default:
		return newError(wire.CodeUnknownType, "unknown message type %q", env.Type)
	}
}

// isSessionCommand reports whether failures of this type are answered with
// SESSION_ERROR rather than the generic ERROR frame.
func isSessionCommand(t wire.MessageType) bool {
	switch t {
	case wire.CreateSession, wire.JoinSession, wire.LeaveSession,
		wire.SessionLock, wire.SessionUnlock,
		wire.GameStart, wire.GamePause, wire.GameResume, wire.GameEnd:
		return true
	}
	return false
}

func (rt *Router) handleAuthenticate(ctx context.Context, conn *Connection, env wire.Envelope) {
	payload, err := wire.DecodePayload[wire.AuthenticatePayload](env)
	if err != nil {
		rt.replyError(ctx, conn, wire.AuthError, env.CorrelationID, wire.ErrorPayload{
			Code:    wire.CodeMalformed,
			Message: "could not parse the credentials",
		})
		return
	}

	identity, err := rt.validator.Validate(payload.Token)
	if err != nil {
		slog.Debug("Authentication failed", "connId", conn.ID, logging.Error(err))
		// Lenient: the socket stays open so the client may retry with a
		// fresh token.
		rt.replyError(ctx, conn, wire.AuthError, env.CorrelationID, wire.ErrorPayload{
			Code:    wire.CodeAuthFailed,
			Message: "invalid credentials",
		})
		return
	}

	if !rt.conns.Authenticate(conn.ID, identity) {
		rt.replyError(ctx, conn, wire.AuthError, env.CorrelationID, wire.ErrorPayload{
			Code:    wire.CodeTooManyConnections,
			Message: "too many concurrent connections for this user",
		})
		return
	}

	rt.reply(ctx, conn, wire.Authenticated, env.CorrelationID, wire.AuthenticatedPayload{
		UserID:   identity.UserID,
		Username: identity.Username,
	})
}

func (rt *Router) reply(ctx context.Context, conn *Connection, msgType wire.MessageType, correlationID string, payload any) {
	conn.send(ctx, wire.Compose(msgType, correlationID, payload))
}

func (rt *Router) replyError(ctx context.Context, conn *Connection, msgType wire.MessageType, correlationID string, payload wire.ErrorPayload) {
	conn.send(ctx, wire.Compose(msgType, correlationID, payload))
}
