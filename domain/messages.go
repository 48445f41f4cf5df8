package domain

import "time"

// EventType names an event pushed to the rendering surface
type EventType string

const (
	EventState    EventType = "state"
	EventNotice   EventType = "notice"
	EventPlayback EventType = "playback"
	EventAuth     EventType = "auth"
	EventError    EventType = "error"
	EventPong     EventType = "pong"
)

// Event is the envelope sent to every connected surface
type Event struct {
	Type      EventType   `json:"type"`
	Timestamp string      `json:"timestamp"`
	Payload   interface{} `json:"payload,omitempty"`
}

// NewEvent stamps an event with the current time
func NewEvent(eventType EventType, payload interface{}) Event {
	return Event{
		Type:      eventType,
		Timestamp: time.Now().Format(time.RFC3339),
		Payload:   payload,
	}
}

// NoticeKind classifies a visible notice
type NoticeKind string

const (
	NoticeOffline    NoticeKind = "offline"
	NoticeError      NoticeKind = "error"
	NoticePermission NoticeKind = "permission"
	NoticeValidation NoticeKind = "validation"
	NoticeAuth       NoticeKind = "auth"
)

// Notice is the single dismissible message shown above the conversation.
// A new notice replaces the previous one.
type Notice struct {
	Kind NoticeKind `json:"kind"`
	Text string     `json:"text"`
	At   time.Time  `json:"at"`
}

// NoticeFor converts an error into a notice
func NoticeFor(err error) *Notice {
	kind := NoticeError
	switch Kind(err) {
	case "permission":
		kind = NoticePermission
	case "validation":
		kind = NoticeValidation
	case "auth":
		kind = NoticeAuth
	}
	return &Notice{Kind: kind, Text: UserMessage(err), At: time.Now()}
}

// AuthState is pushed whenever the credential changes
type AuthState struct {
	Authenticated bool        `json:"authenticated"`
	Identity      interface{} `json:"identity,omitempty"`
}
