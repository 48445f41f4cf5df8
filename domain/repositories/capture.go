package repositories

import "context"

// Microphone is the audio capture capability of the rendering surface
type Microphone interface {
	// Acquire asks for the device; it fails with domain.ErrPermissionDenied when refused
	Acquire(ctx context.Context) (AudioSource, error)
}

// AudioSource is an acquired microphone stream
type AudioSource interface {
	// Chunks delivers recorded data until the source is closed
	Chunks() <-chan []byte
	MimeType() string
	// Close releases the device and closes Chunks
	Close() error
}

// PlaybackSurface renders audio for a message
type PlaybackSurface interface {
	Start(messageID, handle string)
	Halt(messageID string)
}
