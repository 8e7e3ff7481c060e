package service

// Broadcaster sends real-time events to connected clients.
// Implemented by the WebSocket hub.
type Broadcaster interface {
	BroadcastSessionEvent(sessionID string, eventType string, data any)
}

// NoopBroadcaster is a no-op implementation for testing or when WS is disabled.
type NoopBroadcaster struct{}

func (NoopBroadcaster) BroadcastSessionEvent(string, string, any) {}

// Event types pushed to session subscribers.
const (
	EventSnapshot       = "snapshot"
	EventPhaseChanged   = "phase_changed"
	EventSessionStarted = "session_started"
	EventGameOver       = "game_over"
	EventPlayerJoined   = "player_joined"
)
