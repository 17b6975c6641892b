package wire

// MessageType enumerates every frame type the gateway speaks. The set is
// closed: the router dispatches over all of them and answers anything else
// with an UNKNOWN_TYPE error.
type MessageType string

const (
	// Connection liveness and authentication.
	Ping          MessageType = "PING"
	Pong          MessageType = "PONG"
	Authenticate  MessageType = "AUTHENTICATE"
	Authenticated MessageType = "AUTHENTICATED"
	AuthError     MessageType = "AUTH_ERROR"

	// Session lifecycle.
	CreateSession  MessageType = "CREATE_SESSION"
	SessionCreated MessageType = "SESSION_CREATED"
	JoinSession    MessageType = "JOIN_SESSION"
	SessionJoined  MessageType = "SESSION_JOINED"
	SessionError   MessageType = "SESSION_ERROR"
	LeaveSession   MessageType = "LEAVE_SESSION"
	SessionLeft    MessageType = "SESSION_LEFT"
	SessionLock    MessageType = "SESSION_LOCK"
	SessionUnlock  MessageType = "SESSION_UNLOCK"
	SessionLocked  MessageType = "SESSION_LOCKED"

	// Roster.
	PlayerReady MessageType = "PLAYER_READY"
	PlayerList  MessageType = "PLAYER_LIST"

	// Game flow.
	GameStart   MessageType = "GAME_START"
	GamePause   MessageType = "GAME_PAUSE"
	GameResume  MessageType = "GAME_RESUME"
	GameEnd     MessageType = "GAME_END"
	TurnEnd     MessageType = "TURN_END"
	TurnChanged MessageType = "TURN_CHANGED"
	TurnTimeout MessageType = "TURN_TIMEOUT"

	// Actions.
	ActionRequest MessageType = "ACTION_REQUEST"
	ActionResult  MessageType = "ACTION_RESULT"
	MoveToken     MessageType = "MOVE_TOKEN"
	TokenMoved    MessageType = "TOKEN_MOVED"
	DiceRoll      MessageType = "DICE_ROLL"
	DiceResult    MessageType = "DICE_RESULT"

	// Communication.
	ChatMessage   MessageType = "CHAT_MESSAGE"
	ChatBroadcast MessageType = "CHAT_BROADCAST"
	Whisper       MessageType = "WHISPER"

	// Generic error frame.
	Error MessageType = "ERROR"
)

func (t MessageType) String() string { return string(t) }

// ErrorCode identifies the failure class carried by an ERROR frame.
type ErrorCode string

const (
	CodeMalformed          ErrorCode = "MALFORMED"
	CodeUnknownType        ErrorCode = "UNKNOWN_TYPE"
	CodeNotAuthenticated   ErrorCode = "NOT_AUTHENTICATED"
	CodeAuthFailed         ErrorCode = "AUTH_FAILED"
	CodeForbidden          ErrorCode = "FORBIDDEN"
	CodeNotFound           ErrorCode = "NOT_FOUND"
	CodeSessionEnded       ErrorCode = "SESSION_ENDED"
	CodeSessionFull        ErrorCode = "SESSION_FULL"
	CodeSessionLocked      ErrorCode = "SESSION_LOCKED"
	CodeTooManyConnections ErrorCode = "TOO_MANY_CONNECTIONS"
	CodeInvalidState       ErrorCode = "INVALID_STATE"
	CodeHandler            ErrorCode = "HANDLER"
)
