package audio

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/satriahrh/casava/domain/entities"
)

// Handle is a transient, revocable reference to a playable blob
type Handle struct {
	ID        string     `json:"id"`
	MimeType  string     `json:"mime_type"`
	Size      int64      `json:"size"`
	CreatedAt time.Time  `json:"created_at"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

type handleEntry struct {
	handle Handle
	blob   *entities.MediaBlob
}

// Registry owns every materialized blob. The creator owns revocation.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*handleEntry
	logger  *zap.Logger
}

// NewRegistry creates an empty handle registry
func NewRegistry(logger *zap.Logger) *Registry {
	return &Registry{
		entries: make(map[string]*handleEntry),
		logger:  logger,
	}
}

// ToPlaybackHandle registers a blob. A zero ttl keeps it until Revoke.
func (r *Registry) ToPlaybackHandle(blob *entities.MediaBlob, ttl time.Duration) Handle {
	now := time.Now()
	h := Handle{
		ID:        uuid.NewString(),
		MimeType:  blob.MimeType(),
		Size:      blob.Size(),
		CreatedAt: now,
	}
	if ttl > 0 {
		expires := now.Add(ttl)
		h.ExpiresAt = &expires
	}

	r.mu.Lock()
	r.entries[h.ID] = &handleEntry{handle: h, blob: blob}
	r.mu.Unlock()

	r.logger.Debug("Playback handle created",
		zap.String("handle", h.ID),
		zap.String("mimeType", h.MimeType),
		zap.Int64("size", h.Size),
		zap.String("origin", string(blob.Origin())))

	return h
}

// Open resolves a handle to its blob
func (r *Registry) Open(id string) (*entities.MediaBlob, Handle, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entries[id]
	if !ok {
		return nil, Handle{}, false
	}
	return e.blob, e.handle, true
}

// Revoke releases a handle; revoking twice is harmless
func (r *Registry) Revoke(id string) bool {
	if id == "" {
		return false
	}

	r.mu.Lock()
	_, ok := r.entries[id]
	delete(r.entries, id)
	r.mu.Unlock()

	if ok {
		r.logger.Debug("Playback handle revoked", zap.String("handle", id))
	}
	return ok
}

// RevokeExpired releases every handle whose ttl has passed
func (r *Registry) RevokeExpired(now time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	count := 0
	for id, e := range r.entries {
		if e.handle.ExpiresAt != nil && now.After(*e.handle.ExpiresAt) {
			delete(r.entries, id)
			count++
		}
	}
	return count
}

// Len returns the number of live handles
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}
