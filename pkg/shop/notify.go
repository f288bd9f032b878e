package shop

import "log/slog"

// Level classifies a user-facing notification.
type Level string

const (
	LevelInfo    Level = "info"
	LevelSuccess Level = "success"
	LevelError   Level = "error"
)

// Notifier shows a short message to the user. Implementations must not block.
type Notifier interface {
	Notify(level Level, message string)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(level Level, message string)

func (f NotifierFunc) Notify(level Level, message string) {
	f(level, message)
}

// LogNotifier writes notifications to a logger.
type LogNotifier struct {
	Log *slog.Logger
}

func (n LogNotifier) Notify(level Level, message string) {
	log := n.Log
	if log == nil {
		log = slog.Default()
	}

	switch level {
	case LevelError:
		log.Warn(message, "notification", level)
	default:
		log.Info(message, "notification", level)
	}
}
