package types

// SessionState tracks the lifecycle of the main detection loop.
//
// Transitions:
//
//	Initializing -> Running      open and detector init succeeded
//	Initializing -> Stopped      open failed, loop never starts
//	Running      -> Reconnecting a frame read failed
//	Reconnecting -> Running      reconnect succeeded
//	Reconnecting -> Stopped      reconnect policy exhausted
//	Running      -> Stopped      quit command or unrecoverable error
//
// Stopped is terminal.
type SessionState int

const (
	SessionInitializing SessionState = iota
	SessionRunning
	SessionReconnecting
	SessionStopped
)

var sessionStateNames = map[SessionState]string{
	SessionInitializing: "initializing",
	SessionRunning:      "running",
	SessionReconnecting: "reconnecting",
	SessionStopped:      "stopped",
}

func (s SessionState) String() string {
	if name, ok := sessionStateNames[s]; ok {
		return name
	}
	return "unknown"
}

// RecordingState is Idle or Active. It changes only through an explicit
// toggle command; recording never auto-starts.
type RecordingState int

const (
	RecordingIdle RecordingState = iota
	RecordingActive
)

func (s RecordingState) String() string {
	if s == RecordingActive {
		return "active"
	}
	return "idle"
}
