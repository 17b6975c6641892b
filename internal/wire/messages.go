package wire

// Identity is the resolved user behind an authenticated connection.
type Identity struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
}

type AuthenticatePayload struct {
	Token string `json:"token"`
}

type AuthenticatedPayload struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
}

type CreateSessionPayload struct {
	Name        string `json:"name"`
	CampaignID  string `json:"campaignId,omitempty"`
	MaxPlayers  int    `json:"maxPlayers"`
	Private     bool   `json:"private"`
	CharacterID string `json:"characterId,omitempty"`
}

// JoinSessionPayload addresses a session either by its id or by the
// six-character invite code.
type JoinSessionPayload struct {
	Session     string `json:"session"`
	CharacterID string `json:"characterId,omitempty"`
}

type SessionInfo struct {
	ID         string       `json:"id"`
	Name       string       `json:"name"`
	Code       string       `json:"code"`
	HostUserID string       `json:"hostUserId"`
	CampaignID string       `json:"campaignId,omitempty"`
	Status     string       `json:"status"`
	MaxPlayers int          `json:"maxPlayers"`
	Private    bool         `json:"private"`
	Locked     bool         `json:"locked"`
	Round      int          `json:"round"`
	Players    []PlayerInfo `json:"players"`
}

type PlayerInfo struct {
	UserID      string `json:"userId"`
	Username    string `json:"username"`
	CharacterID string `json:"characterId,omitempty"`
	Ready       bool   `json:"ready"`
	DM          bool   `json:"dm"`
	Connected   bool   `json:"connected"`
}

type PlayerListPayload struct {
	SessionID string       `json:"sessionId"`
	Players   []PlayerInfo `json:"players"`
}

type PlayerReadyPayload struct {
	Ready       bool   `json:"ready"`
	CharacterID string `json:"characterId,omitempty"`
}

type SessionLockPayload struct {
	AllowedUserIDs []string `json:"allowedUserIds,omitempty"`
}

type SessionLockedPayload struct {
	SessionID      string   `json:"sessionId"`
	Locked         bool     `json:"locked"`
	AllowedUserIDs []string `json:"allowedUserIds,omitempty"`
}

type SessionLeftPayload struct {
	SessionID string `json:"sessionId"`
	UserID    string `json:"userId"`
}

type GameStartPayload struct {
	SessionID  string       `json:"sessionId"`
	Round      int          `json:"round"`
	Initiative []string     `json:"initiative,omitempty"`
	Turn       TurnPointer  `json:"turn"`
	Players    []PlayerInfo `json:"players"`
}

type GameStatusPayload struct {
	SessionID string `json:"sessionId"`
	Status    string `json:"status"`
}

type TurnPointer struct {
	CreatureID string `json:"creatureId"`
	Index      int    `json:"index"`
}

type TurnChangedPayload struct {
	SessionID string      `json:"sessionId"`
	Round     int         `json:"round"`
	Turn      TurnPointer `json:"turn"`
	TimedOut  bool        `json:"timedOut,omitempty"`
}

type ChatPayload struct {
	Text string `json:"text"`
}

type ChatBroadcastPayload struct {
	SessionID string `json:"sessionId"`
	UserID    string `json:"userId"`
	Username  string `json:"username"`
	Text      string `json:"text"`
	Whisper   bool   `json:"whisper,omitempty"`
}

type WhisperPayload struct {
	TargetUserID string `json:"targetUserId"`
	Text         string `json:"text"`
}

// GridPosition is a square on the battle map.
type GridPosition struct {
	X int `json:"x"`
	Y int `json:"y"`
}

type MoveTokenPayload struct {
	TokenID string         `json:"tokenId"`
	Path    []GridPosition `json:"path"`
}

type TokenMovedPayload struct {
	SessionID string         `json:"sessionId"`
	UserID    string         `json:"userId"`
	TokenID   string         `json:"tokenId"`
	Path      []GridPosition `json:"path"`
}

type DiceRollPayload struct {
	Notation string `json:"notation"`
	Reason   string `json:"reason,omitempty"`
	Private  bool   `json:"private,omitempty"`
}

type DiceRollResult struct {
	Sides   int   `json:"sides"`
	Results []int `json:"results"`
	Total   int   `json:"total"`
}

type DiceResultPayload struct {
	SessionID string           `json:"sessionId"`
	UserID    string           `json:"userId"`
	Username  string           `json:"username"`
	Notation  string           `json:"notation"`
	Reason    string           `json:"reason,omitempty"`
	Private   bool             `json:"private,omitempty"`
	Rolls     []DiceRollResult `json:"rolls"`
	Total     int              `json:"total"`
}

type ActionRequestPayload struct {
	ActionType string         `json:"actionType"`
	ActorID    string         `json:"actorId"`
	TargetID   string         `json:"targetId,omitempty"`
	Position   *GridPosition  `json:"position,omitempty"`
	Params     map[string]any `json:"params,omitempty"`
}

type ActionResultPayload struct {
	SessionID  string         `json:"sessionId"`
	UserID     string         `json:"userId"`
	ActionType string         `json:"actionType"`
	Legal      bool           `json:"legal"`
	Reason     string         `json:"reason,omitempty"`
	Effects    map[string]any `json:"effects,omitempty"`
}

type ErrorPayload struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Details any       `json:"details,omitempty"`
}
