package gateway

import (
	"errors"
	"fmt"

	"github.com/critforge/sessiond/internal/wire"
)

// Error is a failure the gateway reports back to the originating connection
// as a typed wire error. It never crashes the process or leaks to other
// connections.
type Error struct {
	Code    wire.ErrorCode
	Message string
}

func (e *Error) Error() string { return fmt.Sprintf("%s: %s", e.Code, e.Message) }

func newError(code wire.ErrorCode, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

var (
	ErrSessionNotFound = &Error{Code: wire.CodeNotFound, Message: "session not found"}
	ErrSessionEnded    = &Error{Code: wire.CodeSessionEnded, Message: "session has ended"}
	ErrSessionFull     = &Error{Code: wire.CodeSessionFull, Message: "session is full"}
	ErrSessionLocked   = &Error{Code: wire.CodeSessionLocked, Message: "session is locked"}
	ErrNotHost         = &Error{Code: wire.CodeForbidden, Message: "only the host can do that"}
	ErrNotInSession    = &Error{Code: wire.CodeForbidden, Message: "not joined to a session"}
	ErrNotAMember      = &Error{Code: wire.CodeNotFound, Message: "player is not in the session"}
)

// errorPayload maps any handler error onto the wire taxonomy. Unclassified
// errors become HANDLER errors so their details stay out of the protocol.
func errorPayload(err error) wire.ErrorPayload {
	var gwErr *Error
	if errors.As(err, &gwErr) {
		return wire.ErrorPayload{Code: gwErr.Code, Message: gwErr.Message}
	}
	return wire.ErrorPayload{Code: wire.CodeHandler, Message: "internal error while handling the message"}
}
