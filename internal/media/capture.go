package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/satriahrh/casava/domain"
	"github.com/satriahrh/casava/domain/entities"
	"github.com/satriahrh/casava/domain/repositories"
)

// RecordingState is the state of the single microphone slot
type RecordingState string

const (
	StateIdle      RecordingState = "idle"
	StateAcquiring RecordingState = "acquiring"
	StateRecording RecordingState = "recording"
	StateStopping  RecordingState = "stopping"
)

// recordingSession accumulates chunks for one capture
type recordingSession struct {
	id        string
	source    repositories.AudioSource
	buf       bytes.Buffer
	done      chan struct{}
	startedAt time.Time
	chunks    int
}

func (s *recordingSession) collect() {
	defer close(s.done)
	for chunk := range s.source.Chunks() {
		if len(chunk) == 0 {
			continue
		}
		s.buf.Write(chunk)
		s.chunks++
	}
}

// Capture normalizes microphone recordings and dropped files into MediaBlobs.
// Only one recording may hold the microphone at a time.
type Capture struct {
	mic         repositories.Microphone
	imagePolicy Policy
	audioPolicy Policy
	logger      *zap.Logger

	mu      sync.Mutex
	state   RecordingState
	session *recordingSession
}

// NewCapture creates a capture component
func NewCapture(mic repositories.Microphone, imagePolicy, audioPolicy Policy, logger *zap.Logger) *Capture {
	return &Capture{
		mic:         mic,
		imagePolicy: imagePolicy,
		audioPolicy: audioPolicy,
		logger:      logger,
		state:       StateIdle,
	}
}

// State returns the current recording state
func (c *Capture) State() RecordingState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Start acquires the microphone and begins buffering.
// A second Start while one is active is rejected with domain.ErrRecordingActive.
func (c *Capture) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.state != StateIdle {
		c.mu.Unlock()
		return domain.ErrRecordingActive
	}
	c.state = StateAcquiring
	c.mu.Unlock()

	source, err := c.mic.Acquire(ctx)
	if err != nil {
		c.mu.Lock()
		c.state = StateIdle
		c.mu.Unlock()

		var permissionErr *domain.PermissionError
		if errors.As(err, &permissionErr) {
			c.logger.Warn("Microphone permission denied", zap.Error(err))
			return err
		}
		c.logger.Error("Failed to acquire microphone", zap.Error(err))
		return &domain.PermissionError{Resource: "microphone", Reason: fmt.Sprintf("Unable to access microphone: %v", err)}
	}

	session := &recordingSession{
		id:        uuid.NewString(),
		source:    source,
		done:      make(chan struct{}),
		startedAt: time.Now(),
	}
	go session.collect()

	c.mu.Lock()
	c.session = session
	c.state = StateRecording
	c.mu.Unlock()

	c.logger.Info("Recording started", zap.String("recordingID", session.id))
	return nil
}

// Stop finalizes the buffer into one blob and releases the device
func (c *Capture) Stop(ctx context.Context) (*entities.MediaBlob, error) {
	session, err := c.beginStop()
	if err != nil {
		return nil, err
	}
	defer c.finishStop()

	if err := session.source.Close(); err != nil {
		c.logger.Warn("Failed to release microphone", zap.String("recordingID", session.id), zap.Error(err))
	}

	select {
	case <-session.done:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	c.logger.Info("Recording stopped",
		zap.String("recordingID", session.id),
		zap.Int("chunks", session.chunks),
		zap.Int("bytes", session.buf.Len()),
		zap.Duration("duration", time.Since(session.startedAt)))

	if session.buf.Len() == 0 {
		return nil, &domain.ValidationError{Field: "recording", Reason: "No audio was recorded. Please try again."}
	}

	return entities.NewMediaBlob(session.buf.Bytes(), session.source.MimeType(), "", entities.OriginRecorded), nil
}

// Cancel discards the active recording, if any
func (c *Capture) Cancel() {
	session, err := c.beginStop()
	if err != nil {
		return
	}
	defer c.finishStop()

	_ = session.source.Close()
	<-session.done
	c.logger.Info("Recording discarded", zap.String("recordingID", session.id))
}

func (c *Capture) beginStop() (*recordingSession, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateRecording || c.session == nil {
		return nil, domain.ErrNoRecording
	}
	c.state = StateStopping
	return c.session, nil
}

func (c *Capture) finishStop() {
	c.mu.Lock()
	c.session = nil
	c.state = StateIdle
	c.mu.Unlock()
}

// AcceptFile validates a dropped or selected file. Rejected files produce no blob.
func (c *Capture) AcceptFile(file entities.FileInput, kind Kind) (*entities.MediaBlob, error) {
	policy := c.audioPolicy
	if kind == KindImage {
		policy = c.imagePolicy
	}

	if err := policy.Validate(file); err != nil {
		c.logger.Info("File rejected",
			zap.String("name", file.Name),
			zap.String("mimeType", file.MimeType),
			zap.Int("size", len(file.Data)),
			zap.Error(err))
		return nil, err
	}

	return entities.NewMediaBlob(file.Data, file.MimeType, file.Name, entities.OriginUploaded), nil
}
