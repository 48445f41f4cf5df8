package media

import (
	"context"
	"errors"
	"sync"

	"github.com/satriahrh/casava/domain"
	"github.com/satriahrh/casava/domain/repositories"
)

// ErrBufferFull is returned when the surface sends faster than we can buffer
var ErrBufferFull = errors.New("audio buffer full")

const pushBufferSize = 256

// PushMicrophone is a microphone fed by the rendering surface: the surface asks the
// browser for the device, reports the answer, then pushes recorded frames.
type PushMicrophone struct {
	mu       sync.Mutex
	granted  bool
	mimeType string
	current  *pushSource
}

// Ensure PushMicrophone implements the Microphone interface
var _ repositories.Microphone = (*PushMicrophone)(nil)

// NewPushMicrophone creates a microphone whose frames are of the given type
func NewPushMicrophone(mimeType string) *PushMicrophone {
	return &PushMicrophone{granted: true, mimeType: mimeType}
}

// SetPermission records the surface's permission answer
func (m *PushMicrophone) SetPermission(granted bool) {
	m.mu.Lock()
	m.granted = granted
	m.mu.Unlock()
}

// SetMimeType changes the format of subsequent recordings
func (m *PushMicrophone) SetMimeType(mimeType string) {
	if mimeType == "" {
		return
	}
	m.mu.Lock()
	m.mimeType = mimeType
	m.mu.Unlock()
}

// Acquire implements repositories.Microphone
func (m *PushMicrophone) Acquire(ctx context.Context) (repositories.AudioSource, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.granted {
		return nil, domain.ErrPermissionDenied
	}
	if m.current != nil {
		return nil, domain.ErrRecordingActive
	}

	m.current = &pushSource{
		mic:      m,
		chunks:   make(chan []byte, pushBufferSize),
		mimeType: m.mimeType,
	}
	return m.current, nil
}

// Push delivers one recorded frame to the open source
func (m *PushMicrophone) Push(chunk []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current == nil {
		return domain.ErrNoRecording
	}

	data := make([]byte, len(chunk))
	copy(data, chunk)

	select {
	case m.current.chunks <- data:
		return nil
	default:
		return ErrBufferFull
	}
}

// Active reports whether a source is open
func (m *PushMicrophone) Active() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current != nil
}

type pushSource struct {
	mic      *PushMicrophone
	chunks   chan []byte
	mimeType string
	closed   bool
}

func (s *pushSource) Chunks() <-chan []byte { return s.chunks }

func (s *pushSource) MimeType() string { return s.mimeType }

func (s *pushSource) Close() error {
	s.mic.mu.Lock()
	defer s.mic.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	close(s.chunks)
	if s.mic.current == s {
		s.mic.current = nil
	}
	return nil
}
