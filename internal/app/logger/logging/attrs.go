package logging

import (
	"log/slog"
)

func Error(err error) slog.Attr {
	if err == nil {
		slog.Error("Going to log nil error")
		return slog.String("error", "<nil>")
	}
	return slog.String("error", err.Error())
}

func SessionID(sessionID string) slog.Attr {
	return slog.String("sessionId", sessionID)
}

func UserID(userID string) slog.Attr {
	return slog.String("userId", userID)
}
