// Package playback keeps at most one message's audio playing at a time.
package playback

import (
	"sync"

	"go.uber.org/zap"

	"github.com/satriahrh/casava/domain"
	"github.com/satriahrh/casava/domain/repositories"
)

// State of one audio-bearing message
type State string

const (
	Idle    State = "idle"
	Playing State = "playing"
)

// Event drives the per-message state machine
type Event string

const (
	EventPlay  Event = "play"
	EventPause Event = "pause"
	EventStop  Event = "stop"
	EventEnded Event = "ended"
)

// Effect is the side effect a transition asks the surface to perform
type Effect int

const (
	EffectNone Effect = iota
	EffectStart
	EffectHalt
)

// Transition is the whole state table. Pause and stop both return to idle.
func Transition(current State, event Event) (State, Effect) {
	switch current {
	case Playing:
		switch event {
		case EventPause, EventStop:
			return Idle, EffectHalt
		case EventEnded:
			return Idle, EffectNone
		}
		return Playing, EffectNone
	default:
		if event == EventPlay {
			return Playing, EffectStart
		}
		return Idle, EffectNone
	}
}

// Status is the observable playback state
type Status struct {
	Active string           `json:"active,omitempty"`
	States map[string]State `json:"states"`
}

// Controller applies transitions and enforces system-wide mutual exclusion
type Controller struct {
	surface repositories.PlaybackSurface
	logger  *zap.Logger

	mu     sync.Mutex
	states map[string]State
	// handles holds the handle each playing message was started with
	handles map[string]string
	active  string
}

// NewController creates a playback controller rendering on surface
func NewController(surface repositories.PlaybackSurface, logger *zap.Logger) *Controller {
	return &Controller{
		surface: surface,
		logger:  logger,
		states:  make(map[string]State),
		handles: make(map[string]string),
	}
}

// Play starts messageID, pausing whichever message was playing first.
// Playing a message again with a different handle restarts it on the new one.
func (c *Controller) Play(messageID, handle string) error {
	if messageID == "" || handle == "" {
		return domain.ErrNoAudio
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.active != "" && c.active != messageID {
		c.applyLocked(c.active, EventPause, "")
	}
	if c.states[messageID] == Playing && c.handles[messageID] != handle {
		c.applyLocked(messageID, EventStop, "")
	}
	c.applyLocked(messageID, EventPlay, handle)
	return nil
}

// Pause returns messageID to idle
func (c *Controller) Pause(messageID string) {
	c.apply(messageID, EventPause)
}

// Stop returns messageID to idle
func (c *Controller) Stop(messageID string) {
	c.apply(messageID, EventStop)
}

// Ended records that the surface finished playing messageID
func (c *Controller) Ended(messageID string) {
	c.apply(messageID, EventEnded)
}

// StopAll halts the active message, if any
func (c *Controller) StopAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active != "" {
		c.applyLocked(c.active, EventStop, "")
	}
}

// Forget drops all tracked messages, halting the active one
func (c *Controller) Forget() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active != "" {
		c.applyLocked(c.active, EventStop, "")
	}
	c.states = make(map[string]State)
	c.handles = make(map[string]string)
}

// StateOf returns the state of one message
func (c *Controller) StateOf(messageID string) State {
	c.mu.Lock()
	defer c.mu.Unlock()
	if s, ok := c.states[messageID]; ok {
		return s
	}
	return Idle
}

// Status returns a snapshot of every tracked message
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()

	states := make(map[string]State, len(c.states))
	for id, s := range c.states {
		states[id] = s
	}
	return Status{Active: c.active, States: states}
}

func (c *Controller) apply(messageID string, event Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.applyLocked(messageID, event, "")
}

func (c *Controller) applyLocked(messageID string, event Event, handle string) {
	current := c.states[messageID]
	if current == "" {
		current = Idle
	}

	next, effect := Transition(current, event)
	c.states[messageID] = next

	switch {
	case next == Playing:
		c.active = messageID
		if effect == EffectStart {
			c.handles[messageID] = handle
		}
	case c.active == messageID:
		c.active = ""
	}
	if next == Idle {
		delete(c.handles, messageID)
	}

	switch effect {
	case EffectStart:
		c.surface.Start(messageID, handle)
	case EffectHalt:
		c.surface.Halt(messageID)
	}

	if current != next {
		c.logger.Debug("Playback transition",
			zap.String("messageID", messageID),
			zap.String("event", string(event)),
			zap.String("from", string(current)),
			zap.String("to", string(next)))
	}
}
