package gateway

import (
	"context"

	"github.com/critforge/sessiond/internal/wire"
)

func (rt *Router) handleCreateSession(ctx context.Context, conn *Connection, env wire.Envelope) error {
	payload, err := wire.DecodePayload[wire.CreateSessionPayload](env)
	if err != nil {
		return newError(wire.CodeMalformed, "could not parse the session options")
	}

	identity := conn.Identity()
	s := rt.sessions.Create(identity.UserID, identity.Username, CreateOptions{
		Name:        payload.Name,
		CampaignID:  payload.CampaignID,
		MaxPlayers:  payload.MaxPlayers,
		Private:     payload.Private,
		CharacterID: payload.CharacterID,
	})

	rt.conns.JoinSessionLocally(conn.ID, s.ID)

	s.mu.Lock()
	info := s.toInfo()
	s.mu.Unlock()

	rt.reply(ctx, conn, wire.SessionCreated, env.CorrelationID, info)
	return nil
}

func (rt *Router) handleJoinSession(ctx context.Context, conn *Connection, env wire.Envelope) error {
	payload, err := wire.DecodePayload[wire.JoinSessionPayload](env)
	if err != nil {
		return newError(wire.CodeMalformed, "could not parse the join request")
	}

	identity := conn.Identity()

	// Tag the connection before the roster mutation: the join broadcast
	// must reach the joiner too. A rejected join restores the previous
	// tag so a seated player keeps receiving their session's traffic.
	prior := conn.SessionID()
	if s, ok := rt.sessions.resolve(payload.Session); ok {
		rt.conns.JoinSessionLocally(conn.ID, s.ID)
	}

	info, err := rt.sessions.Join(ctx, payload.Session, identity.UserID, identity.Username, payload.CharacterID)
	if err != nil {
		rt.conns.JoinSessionLocally(conn.ID, prior)
		return err
	}

	rt.reply(ctx, conn, wire.SessionJoined, env.CorrelationID, info)
	return nil
}

func (rt *Router) handleLeaveSession(ctx context.Context, conn *Connection, env wire.Envelope) error {
	sessionID := conn.SessionID()
	if sessionID == "" {
		return ErrNotInSession
	}

	identity := conn.Identity()

	// Untag first so the departure broadcast goes to the others only;
	// the leaver gets the direct reply below.
	rt.conns.LeaveSessionLocally(conn.ID)
	if !rt.sessions.Leave(ctx, sessionID, identity.UserID) {
		return ErrNotAMember
	}

	rt.reply(ctx, conn, wire.SessionLeft, env.CorrelationID, wire.SessionLeftPayload{
		SessionID: sessionID,
		UserID:    identity.UserID,
	})
	return nil
}

func (rt *Router) handlePlayerReady(ctx context.Context, conn *Connection, env wire.Envelope) error {
	payload, err := wire.DecodePayload[wire.PlayerReadyPayload](env)
	if err != nil {
		return newError(wire.CodeMalformed, "could not parse the ready flag")
	}

	sessionID := conn.SessionID()
	if sessionID == "" {
		return ErrNotInSession
	}

	return rt.sessions.SetReady(ctx, sessionID, conn.Identity().UserID, payload.Ready, payload.CharacterID)
}

func (rt *Router) handleSessionLock(ctx context.Context, conn *Connection, env wire.Envelope, locked bool) error {
	payload, err := wire.DecodePayload[wire.SessionLockPayload](env)
	if err != nil {
		return newError(wire.CodeMalformed, "could not parse the lock request")
	}

	sessionID := conn.SessionID()
	if sessionID == "" {
		return ErrNotInSession
	}

	return rt.sessions.SetLock(ctx, sessionID, conn.Identity().UserID, locked, payload.AllowedUserIDs)
}

func (rt *Router) handleGameStart(ctx context.Context, conn *Connection, env wire.Envelope) error {
	sessionID := conn.SessionID()
	if sessionID == "" {
		return ErrNotInSession
	}
	return rt.sessions.Start(ctx, sessionID, conn.Identity().UserID)
}

func (rt *Router) handleGamePause(ctx context.Context, conn *Connection, env wire.Envelope) error {
	sessionID := conn.SessionID()
	if sessionID == "" {
		return ErrNotInSession
	}
	return rt.sessions.Pause(ctx, sessionID, conn.Identity().UserID)
}

func (rt *Router) handleGameResume(ctx context.Context, conn *Connection, env wire.Envelope) error {
	sessionID := conn.SessionID()
	if sessionID == "" {
		return ErrNotInSession
	}
	return rt.sessions.Resume(ctx, sessionID, conn.Identity().UserID)
}

func (rt *Router) handleGameEnd(ctx context.Context, conn *Connection, env wire.Envelope) error {
	sessionID := conn.SessionID()
	if sessionID == "" {
		return ErrNotInSession
	}
	return rt.sessions.End(ctx, sessionID, conn.Identity().UserID)
}
