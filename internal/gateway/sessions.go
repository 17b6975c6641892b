package gateway

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kelindar/event"

	"github.com/critforge/sessiond/internal/app/logger/logging"
	"github.com/critforge/sessiond/internal/metrics"
	"github.com/critforge/sessiond/internal/wire"
)

// SessionRegistry owns every session and serializes all mutation per
// session id.
type SessionRegistry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	byCode   map[string]string

	conns       *ConnRegistry
	bus         *event.Dispatcher
	turnTimeout time.Duration
}

func NewSessionRegistry(conns *ConnRegistry, bus *event.Dispatcher, turnTimeout time.Duration) *SessionRegistry {
	return &SessionRegistry{
		sessions:    make(map[string]*Session),
		byCode:      make(map[string]string),
		conns:       conns,
		bus:         bus,
		turnTimeout: turnTimeout,
	}
}

// CreateOptions carries the host's table settings.
type CreateOptions struct {
	Name        string
	CampaignID  string
	MaxPlayers  int
	Private     bool
	CharacterID string
}

// Create allocates a session in the lobby state with the host as its first
// roster entry (DM flag set) and a collision-checked invite code.
func (sr *SessionRegistry) Create(hostUserID, hostUsername string, opts CreateOptions) *Session {
	now := time.Now().In(time.UTC)

	maxPlayers := opts.MaxPlayers
	if maxPlayers <= 0 {
		maxPlayers = defaultMaxPlayers
	}

	s := &Session{
		ID:          uuid.NewString(),
		Name:        opts.Name,
		HostUserID:  hostUserID,
		CampaignID:  opts.CampaignID,
		Status:      StatusLobby,
		MaxPlayers:  maxPlayers,
		Private:     opts.Private,
		Allowed:     make(map[string]struct{}),
		TurnTimeout: sr.turnTimeout,
		CreatedAt:   now,
		UpdatedAt:   now,
		Players: []*Player{{
			UserID:      hostUserID,
			Username:    hostUsername,
			CharacterID: opts.CharacterID,
			DM:          true,
			Connected:   true,
			JoinedAt:    now,
		}},
	}

	sr.mu.Lock()
	for {
		code := newInviteCode()
		if _, taken := sr.byCode[code]; !taken {
			s.Code = code
			break
		}
	}
	sr.sessions[s.ID] = s
	sr.byCode[s.Code] = s.ID
	sr.mu.Unlock()

	metrics.SessionsCreated.Inc()
	metrics.ActiveSessions.Inc()
	sr.publishChanged(s.ID)

	slog.Info("Session created", logging.SessionID(s.ID), "code", s.Code, logging.UserID(hostUserID))
	return s
}

// resolve finds a session by id or by invite code.
func (sr *SessionRegistry) resolve(identifier string) (*Session, bool) {
	sr.mu.RLock()
	defer sr.mu.RUnlock()

	if s, ok := sr.sessions[identifier]; ok {
		return s, true
	}
	if id, ok := sr.byCode[identifier]; ok {
		s, ok := sr.sessions[id]
		return s, ok
	}
	return nil, false
}

// Get returns a session by id.
func (sr *SessionRegistry) Get(sessionID string) (*Session, bool) {
	sr.mu.RLock()
	s, ok := sr.sessions[sessionID]
	sr.mu.RUnlock()
	return s, ok
}

// ActiveCount reports the number of sessions not yet ended.
func (sr *SessionRegistry) ActiveCount() int {
	// Session locks are never taken while holding the registry lock, so
	// endLocked may safely touch the registry under a session lock.
	sr.mu.RLock()
	sessions := make([]*Session, 0, len(sr.sessions))
	for _, s := range sr.sessions {
		sessions = append(sessions, s)
	}
	sr.mu.RUnlock()

	count := 0
	for _, s := range sessions {
		s.mu.Lock()
		if s.Status != StatusEnded {
			count++
		}
		s.mu.Unlock()
	}
	return count
}

// Join adds the user to the roster (or restores their seat) and broadcasts
// the refreshed player list. The identifier may be a session id or an
// invite code.
func (sr *SessionRegistry) Join(ctx context.Context, identifier, userID, username, characterID string) (wire.SessionInfo, error) {
	s, ok := sr.resolve(identifier)
	if !ok {
		return wire.SessionInfo{}, ErrSessionNotFound
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.canJoin(userID); err != nil {
		return wire.SessionInfo{}, err
	}

	if p := s.findPlayer(userID); p != nil {
		p.Connected = true
		if characterID != "" {
			p.CharacterID = characterID
		}
	} else {
		s.Players = append(s.Players, &Player{
			UserID:      userID,
			Username:    username,
			CharacterID: characterID,
			Connected:   true,
			JoinedAt:    time.Now().In(time.UTC),
		})
	}
	s.UpdatedAt = time.Now().In(time.UTC)

	info := s.toInfo()
	sr.broadcastLocked(ctx, s, wire.Compose(wire.PlayerList, "", wire.PlayerListPayload{
		SessionID: s.ID,
		Players:   s.playerInfos(),
	}))
	sr.publishChanged(s.ID)
	return info, nil
}

// Leave removes the roster entry and broadcasts the updated list. When the
// departing player hosted the session, the DM role migrates to the
// earliest-joined connected player; an emptied session ends.
func (sr *SessionRegistry) Leave(ctx context.Context, sessionID, userID string) bool {
	s, ok := sr.Get(sessionID)
	if !ok {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	idx := -1
	for i, p := range s.Players {
		if p.UserID == userID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return false
	}
	s.Players = append(s.Players[:idx], s.Players[idx+1:]...)
	s.UpdatedAt = time.Now().In(time.UTC)

	if len(s.Players) == 0 {
		sr.endLocked(s)
		sr.publishChanged(s.ID)
		return true
	}

	if s.HostUserID == userID {
		sr.migrateHostLocked(ctx, s)
	}

	sr.broadcastLocked(ctx, s, wire.Compose(wire.SessionLeft, "", wire.SessionLeftPayload{
		SessionID: s.ID,
		UserID:    userID,
	}))
	sr.broadcastLocked(ctx, s, wire.Compose(wire.PlayerList, "", wire.PlayerListPayload{
		SessionID: s.ID,
		Players:   s.playerInfos(),
	}))
	sr.publishChanged(s.ID)
	return true
}

// migrateHostLocked hands the DM role to the earliest-joined connected
// player. Callers hold s.mu.
func (sr *SessionRegistry) migrateHostLocked(ctx context.Context, s *Session) {
	var next *Player
	for _, p := range s.Players {
		if !p.Connected {
			continue
		}
		if next == nil || p.JoinedAt.Before(next.JoinedAt) {
			next = p
		}
	}
	if next == nil {
		// Nobody is connected; keep the seatless host until someone returns.
		return
	}

	for _, p := range s.Players {
		p.DM = p.UserID == next.UserID
	}
	s.HostUserID = next.UserID
	slog.Info("Host migrated", logging.SessionID(s.ID), logging.UserID(next.UserID))
}

// SetReady mutates the roster entry's ready flag and optional character
// assignment, then broadcasts the player list.
func (sr *SessionRegistry) SetReady(ctx context.Context, sessionID, userID string, ready bool, characterID string) error {
	s, ok := sr.Get(sessionID)
	if !ok {
		return ErrSessionNotFound
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	p := s.findPlayer(userID)
	if p == nil {
		return ErrNotAMember
	}
	p.Ready = ready
	if characterID != "" {
		p.CharacterID = characterID
	}
	s.UpdatedAt = time.Now().In(time.UTC)

	sr.broadcastLocked(ctx, s, wire.Compose(wire.PlayerList, "", wire.PlayerListPayload{
		SessionID: s.ID,
		Players:   s.playerInfos(),
	}))
	sr.publishChanged(s.ID)
	return nil
}

// Start transitions lobby → active. Host only; any other current state is a
// state error. Initiative seeds from roster order (host last) until the
// rules engine supplies a real order.
func (sr *SessionRegistry) Start(ctx context.Context, sessionID, requesterID string) error {
	s, ok := sr.Get(sessionID)
	if !ok {
		return ErrSessionNotFound
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.HostUserID != requesterID {
		return ErrNotHost
	}
	if s.Status != StatusLobby {
		return newError(wire.CodeInvalidState, "cannot start a session in state %q", s.Status)
	}

	s.Status = StatusActive
	s.Round = 1
	s.Initiative = s.initiativeOrder()
	if len(s.Initiative) > 0 {
		s.Turn = wire.TurnPointer{CreatureID: s.Initiative[0], Index: 0}
	}
	s.UpdatedAt = time.Now().In(time.UTC)
	sr.armTurnTimerLocked(s)

	sr.broadcastLocked(ctx, s, wire.Compose(wire.GameStart, "", wire.GameStartPayload{
		SessionID:  s.ID,
		Round:      s.Round,
		Initiative: s.Initiative,
		Turn:       s.Turn,
		Players:    s.playerInfos(),
	}))
	sr.publishChanged(s.ID)
	return nil
}

// initiativeOrder lists roster user ids by join order with the DM last.
// Callers hold mu.
func (s *Session) initiativeOrder() []string {
	players := make([]*Player, len(s.Players))
	copy(players, s.Players)
	sort.SliceStable(players, func(i, j int) bool {
		if players[i].DM != players[j].DM {
			return !players[i].DM
		}
		return players[i].JoinedAt.Before(players[j].JoinedAt)
	})

	order := make([]string, len(players))
	for i, p := range players {
		order[i] = p.UserID
	}
	return order
}

// Pause transitions active → paused. Host only.
func (sr *SessionRegistry) Pause(ctx context.Context, sessionID, requesterID string) error {
	return sr.setStatus(ctx, sessionID, requesterID, StatusActive, StatusPaused, wire.GamePause)
}

// Resume transitions paused → active. Host only.
func (sr *SessionRegistry) Resume(ctx context.Context, sessionID, requesterID string) error {
	return sr.setStatus(ctx, sessionID, requesterID, StatusPaused, StatusActive, wire.GameResume)
}

func (sr *SessionRegistry) setStatus(ctx context.Context, sessionID, requesterID string, from, to Status, msgType wire.MessageType) error {
	s, ok := sr.Get(sessionID)
	if !ok {
		return ErrSessionNotFound
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.HostUserID != requesterID {
		return ErrNotHost
	}
	if s.Status != from {
		return newError(wire.CodeInvalidState, "cannot move from %q to %q", s.Status, to)
	}

	s.Status = to
	s.UpdatedAt = time.Now().In(time.UTC)
	if to == StatusActive {
		sr.armTurnTimerLocked(s)
	} else {
		s.stopTurnTimerLocked()
	}

	sr.broadcastLocked(ctx, s, wire.Compose(msgType, "", wire.GameStatusPayload{
		SessionID: s.ID,
		Status:    string(s.Status),
	}))
	sr.publishChanged(s.ID)
	return nil
}

// End transitions any non-terminal state to ended. Host only. Ended is
// terminal; the invite code is released for reuse.
func (sr *SessionRegistry) End(ctx context.Context, sessionID, requesterID string) error {
	s, ok := sr.Get(sessionID)
	if !ok {
		return ErrSessionNotFound
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.HostUserID != requesterID {
		return ErrNotHost
	}
	if s.Status == StatusEnded {
		return newError(wire.CodeInvalidState, "session already ended")
	}

	sr.broadcastLocked(ctx, s, wire.Compose(wire.GameEnd, "", wire.GameStatusPayload{
		SessionID: s.ID,
		Status:    string(StatusEnded),
	}))
	sr.endLocked(s)
	sr.publishChanged(s.ID)
	return nil
}

// endLocked marks the session terminal and frees its invite code. Callers
// hold s.mu.
func (sr *SessionRegistry) endLocked(s *Session) {
	if s.Status == StatusEnded {
		return
	}
	s.Status = StatusEnded
	s.UpdatedAt = time.Now().In(time.UTC)
	s.stopTurnTimerLocked()

	sr.mu.Lock()
	delete(sr.byCode, s.Code)
	sr.mu.Unlock()

	metrics.ActiveSessions.Dec()
	slog.Info("Session ended", logging.SessionID(s.ID))
}

// SetLock toggles the lock flag and the allowed set, then broadcasts the
// new lock status so clients can reflect it.
func (sr *SessionRegistry) SetLock(ctx context.Context, sessionID, requesterID string, locked bool, allowedUsers []string) error {
	s, ok := sr.Get(sessionID)
	if !ok {
		return ErrSessionNotFound
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.HostUserID != requesterID {
		return ErrNotHost
	}

	s.Locked = locked
	s.Allowed = make(map[string]struct{}, len(allowedUsers))
	for _, userID := range allowedUsers {
		s.Allowed[userID] = struct{}{}
	}
	s.UpdatedAt = time.Now().In(time.UTC)

	sr.broadcastLocked(ctx, s, wire.Compose(wire.SessionLocked, "", wire.SessionLockedPayload{
		SessionID:      s.ID,
		Locked:         s.Locked,
		AllowedUserIDs: s.allowedList(),
	}))
	sr.publishChanged(s.ID)
	return nil
}

// SetConnected flips the roster entry's connected flag without touching
// membership. This is what makes reconnection lossless.
func (sr *SessionRegistry) SetConnected(ctx context.Context, sessionID, userID string, connected bool) {
	s, ok := sr.Get(sessionID)
	if !ok {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	p := s.findPlayer(userID)
	if p == nil || p.Connected == connected {
		return
	}
	p.Connected = connected
	s.UpdatedAt = time.Now().In(time.UTC)

	sr.broadcastLocked(ctx, s, wire.Compose(wire.PlayerList, "", wire.PlayerListPayload{
		SessionID: s.ID,
		Players:   s.playerInfos(),
	}))
	sr.publishChanged(s.ID)
}

// EndTurn advances the turn pointer through the initiative order and
// broadcasts the new pointer. Whether the preceding action was legal is the
// rules engine's business, not ours.
func (sr *SessionRegistry) EndTurn(ctx context.Context, sessionID, requesterID string) error {
	s, ok := sr.Get(sessionID)
	if !ok {
		return ErrSessionNotFound
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.Status != StatusActive {
		return newError(wire.CodeInvalidState, "session is not active")
	}
	if s.findPlayer(requesterID) == nil {
		return ErrNotAMember
	}

	s.advanceTurn()
	s.UpdatedAt = time.Now().In(time.UTC)
	sr.armTurnTimerLocked(s)

	sr.broadcastLocked(ctx, s, wire.Compose(wire.TurnChanged, "", wire.TurnChangedPayload{
		SessionID: s.ID,
		Round:     s.Round,
		Turn:      s.Turn,
	}))
	sr.publishChanged(s.ID)
	return nil
}

// armTurnTimerLocked (re)starts the per-turn deadline. A zero timeout
// disables the timer. Each arm bumps the generation so a timer that already
// fired and is waiting on the lock sees itself superseded. Callers hold s.mu.
func (sr *SessionRegistry) armTurnTimerLocked(s *Session) {
	s.stopTurnTimerLocked()
	if s.TurnTimeout <= 0 || s.Status != StatusActive || len(s.Initiative) == 0 {
		return
	}
	sessionID := s.ID
	gen := s.turnTimerGen
	s.turnTimer = time.AfterFunc(s.TurnTimeout, func() {
		sr.turnTimedOut(sessionID, gen)
	})
}

func (s *Session) stopTurnTimerLocked() {
	s.turnTimerGen++
	if s.turnTimer != nil {
		s.turnTimer.Stop()
		s.turnTimer = nil
	}
}

// turnTimedOut forcibly advances the turn when its deadline elapses. A
// stale generation means the turn already advanced by other means while
// this firing waited on the lock.
func (sr *SessionRegistry) turnTimedOut(sessionID string, gen uint64) {
	s, ok := sr.Get(sessionID)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
	defer cancel()

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.Status != StatusActive || gen != s.turnTimerGen {
		return
	}

	s.advanceTurn()
	s.UpdatedAt = time.Now().In(time.UTC)
	sr.armTurnTimerLocked(s)

	metrics.TurnTimeouts.Inc()
	sr.broadcastLocked(ctx, s, wire.Compose(wire.TurnTimeout, "", wire.TurnChangedPayload{
		SessionID: s.ID,
		Round:     s.Round,
		Turn:      s.Turn,
		TimedOut:  true,
	}))
	sr.publishChanged(s.ID)
}

// Broadcast fans one frame out to every connection currently tagged with
// the session id. Delivery is best effort, at most once.
func (sr *SessionRegistry) Broadcast(ctx context.Context, sessionID string, payload []byte) {
	s, ok := sr.Get(sessionID)
	if !ok {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	sr.broadcastLocked(ctx, s, payload)
}

// broadcastLocked performs the fan-out while the session lock is held,
// which pins outbound order to handler order. Callers hold s.mu.
func (sr *SessionRegistry) broadcastLocked(ctx context.Context, s *Session, payload []byte) {
	for _, conn := range sr.conns.SessionConnections(s.ID) {
		conn.send(ctx, payload)
	}
	metrics.MessagesBroadcast.Inc()
}

// publishChanged hands the session id to the snapshot writer.
func (sr *SessionRegistry) publishChanged(sessionID string) {
	if sr.bus == nil {
		return
	}
	event.Publish(sr.bus, SessionChanged{SessionID: sessionID})
}

// handleDisconnect is wired as the ConnRegistry's disconnect callback: the
// player keeps their seat and is only flagged as away.
func (sr *SessionRegistry) handleDisconnect(sessionID, userID string) {
	ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
	defer cancel()
	sr.SetConnected(ctx, sessionID, userID, false)
}

// Shutdown publishes a final change for every live session so the snapshot
// writer can flush it.
func (sr *SessionRegistry) Shutdown() {
	sr.mu.RLock()
	ids := make([]string, 0, len(sr.sessions))
	for id := range sr.sessions {
		ids = append(ids, id)
	}
	sr.mu.RUnlock()

	for _, id := range ids {
		sr.publishChanged(id)
	}
}
