package websocket

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/satriahrh/casava/domain"
)

// MessageType defines the type of a control message sent by a surface
type MessageType string

// Supported control message types
const (
	MessageTypePing           MessageType = "ping"
	MessageTypeRecordingStart MessageType = "recording_start"
	MessageTypeRecordingStop  MessageType = "recording_stop"
	MessageTypeSendText       MessageType = "send_text"
	MessageTypeSpeak          MessageType = "speak"
	MessageTypePlay           MessageType = "play"
	MessageTypePause          MessageType = "pause"
	MessageTypeStop           MessageType = "stop"
	MessageTypePlaybackEnded  MessageType = "playback_ended"
)

// ControlMessage is one JSON text frame from a surface
type ControlMessage struct {
	Type      MessageType `json:"type"`
	Timestamp string      `json:"timestamp"`
	// RequestID is echoed back on error events
	RequestID string `json:"request_id,omitempty"`
	Text      string `json:"text,omitempty"`
	MessageID string `json:"message_id,omitempty"`
	// MimeType optionally names the format of the binary frames that follow recording_start
	MimeType string `json:"mime_type,omitempty"`
	// Granted is the browser's microphone permission answer sent with recording_start.
	// Absent means the surface did not ask.
	Granted *bool  `json:"granted,omitempty"`
	Data    string `json:"data,omitempty"`
}

// ErrorPayload is the body of an error event
type ErrorPayload struct {
	Code      string `json:"error_code"`
	Message   string `json:"message"`
	Details   string `json:"details,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

// PongPayload is the body of a pong event
type PongPayload struct {
	Data string `json:"data,omitempty"`
}

// PlaybackAction tells a surface to start or halt audio
type PlaybackAction string

const (
	PlaybackStart PlaybackAction = "start"
	PlaybackHalt  PlaybackAction = "halt"
)

// PlaybackPayload is the body of a playback event
type PlaybackPayload struct {
	Action    PlaybackAction `json:"action"`
	MessageID string         `json:"message_id"`
	Handle    string         `json:"handle,omitempty"`
	URL       string         `json:"url,omitempty"`
}

// MessageValidator provides validation for control messages
type MessageValidator struct{}

// NewMessageValidator creates a new message validator
func NewMessageValidator() *MessageValidator {
	return &MessageValidator{}
}

// ValidateMessage parses and checks an incoming control message
func (v *MessageValidator) ValidateMessage(messageBytes []byte) (*ControlMessage, error) {
	var msg ControlMessage
	if err := json.Unmarshal(messageBytes, &msg); err != nil {
		return nil, fmt.Errorf("invalid JSON format: %w", err)
	}

	// Add timestamp if missing
	if msg.Timestamp == "" {
		msg.Timestamp = time.Now().Format(time.RFC3339)
	}

	switch msg.Type {
	case MessageTypePing, MessageTypeRecordingStart, MessageTypeRecordingStop:
		return &msg, nil

	case MessageTypeSendText:
		if strings.TrimSpace(msg.Text) == "" {
			return nil, fmt.Errorf("text is required")
		}
		return &msg, nil

	case MessageTypeSpeak, MessageTypePlay, MessageTypePause, MessageTypeStop, MessageTypePlaybackEnded:
		if msg.MessageID == "" {
			return nil, fmt.Errorf("message_id is required for %s", msg.Type)
		}
		return &msg, nil

	case "":
		return nil, fmt.Errorf("type is required")

	default:
		return nil, fmt.Errorf("unsupported message type: %s", msg.Type)
	}
}

// CreateErrorMessage creates a standardized error event
func CreateErrorMessage(code, message, details, requestID string) domain.Event {
	return domain.NewEvent(domain.EventError, ErrorPayload{
		Code:      code,
		Message:   message,
		Details:   details,
		RequestID: requestID,
	})
}

// CreateErrorFromErr converts an operation failure to an error event
func CreateErrorFromErr(err error, requestID string) domain.Event {
	return CreateErrorMessage(domain.Kind(err), domain.UserMessage(err), err.Error(), requestID)
}

// CreatePongMessage creates a pong event
func CreatePongMessage(data string) domain.Event {
	return domain.NewEvent(domain.EventPong, PongPayload{Data: data})
}

// CreatePlaybackMessage creates a playback command event
func CreatePlaybackMessage(action PlaybackAction, messageID, handle string) domain.Event {
	payload := PlaybackPayload{Action: action, MessageID: messageID, Handle: handle}
	if handle != "" {
		payload.URL = "/media/" + handle
	}
	return domain.NewEvent(domain.EventPlayback, payload)
}
