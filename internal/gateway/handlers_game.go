package gateway

import (
	"context"

	"github.com/critforge/sessiond/internal/dice"
	"github.com/critforge/sessiond/internal/rules"
	"github.com/critforge/sessiond/internal/wire"
)

func (rt *Router) handleTurnEnd(ctx context.Context, conn *Connection, env wire.Envelope) error {
	sessionID := conn.SessionID()
	if sessionID == "" {
		return ErrNotInSession
	}
	return rt.sessions.EndTurn(ctx, sessionID, conn.Identity().UserID)
}

// handleActionRequest relays the action to the rules engine and broadcasts
// whatever it decided. This core performs no adjudication of its own.
func (rt *Router) handleActionRequest(ctx context.Context, conn *Connection, env wire.Envelope) error {
	payload, err := wire.DecodePayload[wire.ActionRequestPayload](env)
	if err != nil {
		return newError(wire.CodeMalformed, "could not parse the action request")
	}

	sessionID := conn.SessionID()
	if sessionID == "" {
		return ErrNotInSession
	}

	s, ok := rt.sessions.Get(sessionID)
	if !ok {
		return ErrSessionNotFound
	}

	s.mu.Lock()
	sc := rules.SessionContext{
		SessionID:  s.ID,
		CampaignID: s.CampaignID,
		Round:      s.Round,
		TurnIndex:  s.Turn.Index,
		Initiative: s.Initiative,
	}
	s.mu.Unlock()

	outcome, err := rt.adjudicator.Evaluate(ctx, sc, rules.Action{
		ActionType: payload.ActionType,
		ActorID:    payload.ActorID,
		TargetID:   payload.TargetID,
		Params:     payload.Params,
	})
	if err != nil {
		return newError(wire.CodeHandler, "rules engine unavailable")
	}

	rt.sessions.Broadcast(ctx, sessionID, wire.Compose(wire.ActionResult, env.CorrelationID, wire.ActionResultPayload{
		SessionID:  sessionID,
		UserID:     conn.Identity().UserID,
		ActionType: payload.ActionType,
		Legal:      outcome.Legal,
		Reason:     outcome.Reason,
		Effects:    outcome.Effects,
	}))
	return nil
}

// handleMoveToken relays a token's path as an already-decided fact.
// Collision and occupancy checks belong to the rules engine, not here.
func (rt *Router) handleMoveToken(ctx context.Context, conn *Connection, env wire.Envelope) error {
	payload, err := wire.DecodePayload[wire.MoveTokenPayload](env)
	if err != nil {
		return newError(wire.CodeMalformed, "could not parse the token move")
	}

	sessionID := conn.SessionID()
	if sessionID == "" {
		return ErrNotInSession
	}

	rt.sessions.Broadcast(ctx, sessionID, wire.Compose(wire.TokenMoved, "", wire.TokenMovedPayload{
		SessionID: sessionID,
		UserID:    conn.Identity().UserID,
		TokenID:   payload.TokenID,
		Path:      payload.Path,
	}))
	return nil
}

// handleDiceRoll rolls and relays the result with the sender's identity. A
// private roll goes back to the sender only.
func (rt *Router) handleDiceRoll(ctx context.Context, conn *Connection, env wire.Envelope) error {
	payload, err := wire.DecodePayload[wire.DiceRollPayload](env)
	if err != nil {
		return newError(wire.CodeMalformed, "could not parse the dice roll")
	}

	sessionID := conn.SessionID()
	if sessionID == "" {
		return ErrNotInSession
	}

	specs, err := dice.ParseNotation(payload.Notation)
	if err != nil {
		return newError(wire.CodeMalformed, "bad dice notation %q", payload.Notation)
	}

	result, err := rt.roller.Roll(specs)
	if err != nil {
		return newError(wire.CodeMalformed, "bad dice request: %v", err)
	}

	rolls := make([]wire.DiceRollResult, len(result.Rolls))
	for i, roll := range result.Rolls {
		rolls[i] = wire.DiceRollResult{Sides: roll.Sides, Results: roll.Results, Total: roll.Total}
	}

	identity := conn.Identity()
	frame := wire.Compose(wire.DiceResult, env.CorrelationID, wire.DiceResultPayload{
		SessionID: sessionID,
		UserID:    identity.UserID,
		Username:  identity.Username,
		Notation:  payload.Notation,
		Reason:    payload.Reason,
		Private:   payload.Private,
		Rolls:     rolls,
		Total:     result.Total,
	})

	if payload.Private {
		conn.send(ctx, frame)
		return nil
	}
	rt.sessions.Broadcast(ctx, sessionID, frame)
	return nil
}
