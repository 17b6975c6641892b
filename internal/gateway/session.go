package gateway

import (
	"crypto/rand"
	"math/big"
	"sync"
	"time"

	"github.com/critforge/sessiond/internal/wire"
)

// Status is the lifecycle state of a session.
type Status string

const (
	StatusLobby  Status = "lobby"
	StatusActive Status = "active"
	StatusPaused Status = "paused"
	StatusEnded  Status = "ended"
)

// inviteAlphabet excludes visually ambiguous characters (0/O, 1/I/L) so the
// code survives being read aloud at the table.
const (
	inviteAlphabet = "23456789ABCDEFGHJKMNPQRSTUVWXYZ"
	inviteLength   = 6
)

func newInviteCode() string {
	code := make([]byte, inviteLength)
	max := big.NewInt(int64(len(inviteAlphabet)))
	for i := range code {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			panic("gateway: crypto/rand failed: " + err.Error())
		}
		code[i] = inviteAlphabet[n.Int64()]
	}
	return string(code)
}

// Player is one roster entry. Disconnecting flips Connected; only an
// explicit leave removes the entry, so a rejoining user gets the same seat
// and character back.
type Player struct {
	UserID      string    `json:"userId"`
	Username    string    `json:"username"`
	CharacterID string    `json:"characterId,omitempty"`
	Ready       bool      `json:"ready"`
	DM          bool      `json:"dm"`
	Connected   bool      `json:"connected"`
	JoinedAt    time.Time `json:"joinedAt"`
}

func (p *Player) toInfo() wire.PlayerInfo {
	return wire.PlayerInfo{
		UserID:      p.UserID,
		Username:    p.Username,
		CharacterID: p.CharacterID,
		Ready:       p.Ready,
		DM:          p.DM,
		Connected:   p.Connected,
	}
}

// Session is one game table's live coordination state. It is owned by the
// SessionRegistry and never holds socket handles; broadcasts resolve
// connections through the ConnRegistry by session id.
//
// All mutation happens under mu, held for the whole read-modify-write
// including the resulting fan-out, which serializes handlers per session
// and keeps outbound frames in handler order.
type Session struct {
	mu sync.Mutex

	ID         string
	Name       string
	Code       string
	HostUserID string
	CampaignID string

	Status     Status
	MaxPlayers int
	Private    bool
	Locked     bool
	Allowed    map[string]struct{}

	Round      int
	Turn       wire.TurnPointer
	Initiative []string
	Players    []*Player

	TurnTimeout  time.Duration
	turnTimer    *time.Timer
	turnTimerGen uint64

	CreatedAt time.Time
	UpdatedAt time.Time
}

// findPlayer returns the roster entry for the user id. Callers hold mu.
func (s *Session) findPlayer(userID string) *Player {
	for _, p := range s.Players {
		if p.UserID == userID {
			return p
		}
	}
	return nil
}

// canJoin checks the admission rules. Callers hold mu.
func (s *Session) canJoin(userID string) error {
	if s.Status == StatusEnded {
		return ErrSessionEnded
	}
	if p := s.findPlayer(userID); p != nil {
		// Rejoining an existing seat is allowed in any live state.
		return nil
	}
	if s.Status == StatusPaused {
		return newError(wire.CodeInvalidState, "session is paused")
	}
	if len(s.Players) >= s.MaxPlayers {
		return ErrSessionFull
	}
	if s.Locked {
		if _, ok := s.Allowed[userID]; !ok {
			return ErrSessionLocked
		}
	}
	return nil
}

// advanceTurn moves the turn pointer to the next initiative entry, wrapping
// into a new round. Callers hold mu.
func (s *Session) advanceTurn() {
	if len(s.Initiative) == 0 {
		return
	}
	next := s.Turn.Index + 1
	if next >= len(s.Initiative) {
		next = 0
		s.Round++
	}
	s.Turn = wire.TurnPointer{CreatureID: s.Initiative[next], Index: next}
}

// playerInfos snapshots the roster for a PLAYER_LIST frame. Callers hold mu.
func (s *Session) playerInfos() []wire.PlayerInfo {
	infos := make([]wire.PlayerInfo, len(s.Players))
	for i, p := range s.Players {
		infos[i] = p.toInfo()
	}
	return infos
}

// toInfo snapshots the session for the wire. Callers hold mu.
func (s *Session) toInfo() wire.SessionInfo {
	return wire.SessionInfo{
		ID:         s.ID,
		Name:       s.Name,
		Code:       s.Code,
		HostUserID: s.HostUserID,
		CampaignID: s.CampaignID,
		Status:     string(s.Status),
		MaxPlayers: s.MaxPlayers,
		Private:    s.Private,
		Locked:     s.Locked,
		Round:      s.Round,
		Players:    s.playerInfos(),
	}
}

// allowedList flattens the allowed set for the wire. Callers hold mu.
func (s *Session) allowedList() []string {
	if len(s.Allowed) == 0 {
		return nil
	}
	out := make([]string, 0, len(s.Allowed))
	for userID := range s.Allowed {
		out = append(out, userID)
	}
	return out
}
