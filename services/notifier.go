package services

// Notifier delivers match-lifecycle events to connected clients. The socket
// package implements it over Socket.IO rooms; tests use NoopNotifier.
// Emission is fire-and-forget: a lost notification never blocks or rolls
// back a state transition.
type Notifier interface {
	Emit(room string, event string, payload interface{})
}

// PlayerRoom is the Socket.IO room a client joins for its own events.
func PlayerRoom(telegramID string) string {
	return "user:" + telegramID
}

// NoopNotifier discards all events.
type NoopNotifier struct{}

func (NoopNotifier) Emit(string, string, interface{}) {}
