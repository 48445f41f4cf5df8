package entities

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Author identifies who wrote a message
type Author string

const (
	AuthorUser      Author = "user"
	AuthorAssistant Author = "assistant"
)

// Message represents a single turn in a conversation.
// Text is fixed at creation; a failed request appends a new message instead of editing one.
type Message struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	Author    Author    `json:"author"`
	CreatedAt time.Time `json:"created_at"`
	// AudioRef is a playback handle owned by this message, empty when none
	AudioRef string `json:"audio_ref,omitempty"`
}

// NewMessage creates a message with a time-ordered id
func NewMessage(author Author, text string, audioRef string) Message {
	now := time.Now()
	return Message{
		ID:        newMessageID(now),
		Text:      text,
		Author:    author,
		CreatedAt: now,
		AudioRef:  audioRef,
	}
}

// newMessageID derives the id from the creation time (UUIDv7) so ids sort in creation order
func newMessageID(now time.Time) string {
	id, err := uuid.NewV7()
	if err != nil {
		return now.Format("20060102150405.000000000") + "-" + uuid.NewString()
	}
	return id.String()
}

// HasAudio reports whether a playback handle is attached
func (m Message) HasAudio() bool {
	return m.AudioRef != ""
}

// Before orders messages by creation time, falling back to id when timestamps collide
func (m Message) Before(other Message) bool {
	if m.CreatedAt.Equal(other.CreatedAt) {
		return m.ID < other.ID
	}
	return m.CreatedAt.Before(other.CreatedAt)
}

// Validate validates the message data
func (m Message) Validate() error {
	if m.ID == "" {
		return errors.New("id is required")
	}
	if m.Author != AuthorUser && m.Author != AuthorAssistant {
		return errors.New("invalid author")
	}
	if m.Author == AuthorUser && strings.TrimSpace(m.Text) == "" {
		return errors.New("user message text cannot be empty")
	}
	return nil
}
