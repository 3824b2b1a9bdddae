package engine

import (
	"github.com/rs/zerolog"
)

// LogLevel is the engine's own severity scale.
type LogLevel int

const (
	LogDebug   LogLevel = 1 << 0
	LogVerbose LogLevel = 1 << 1
	LogInfo    LogLevel = 1 << 2
	LogWarning LogLevel = 1 << 3
	LogError   LogLevel = 1 << 4
)

// ZerologLevel maps an engine level onto zerolog.
func (l LogLevel) ZerologLevel() zerolog.Level {
	switch {
	case l&LogError != 0:
		return zerolog.ErrorLevel
	case l&LogWarning != 0:
		return zerolog.WarnLevel
	case l&LogInfo != 0:
		return zerolog.InfoLevel
	case l&LogVerbose != 0:
		return zerolog.DebugLevel
	default:
		return zerolog.TraceLevel
	}
}

// EventType identifies a session event.
type EventType int

const (
	EventConnected       EventType = 0
	EventLoginPINRequest EventType = 1
	EventQuit            EventType = 9
)

func (t EventType) String() string {
	switch t {
	case EventConnected:
		return "connected"
	case EventLoginPINRequest:
		return "login_pin_request"
	case EventQuit:
		return "quit"
	default:
		return "unknown"
	}
}

// Event is delivered through Callbacks.OnEvent.
type Event struct {
	Type EventType
	// Reason describes why the session quit.
	Reason string
}

// Callbacks receive engine output. Both fields are optional and may be
// invoked from engine-owned goroutines.
type Callbacks struct {
	OnLog   func(level LogLevel, msg string)
	OnEvent func(Event)
}

// Log forwards a message to OnLog when set.
func (c Callbacks) Log(level LogLevel, msg string) {
	if c.OnLog != nil {
		c.OnLog(level, msg)
	}
}

// Emit forwards an event to OnEvent when set.
func (c Callbacks) Emit(ev Event) {
	if c.OnEvent != nil {
		c.OnEvent(ev)
	}
}
