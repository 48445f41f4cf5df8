package entities

import (
	"strings"
	"time"
)

// MediaOrigin records where a blob came from. Diagnostics only.
type MediaOrigin string

const (
	OriginRecorded    MediaOrigin = "recorded"
	OriginUploaded    MediaOrigin = "uploaded"
	OriginSynthesized MediaOrigin = "synthesized"
)

// MediaBlob is an immutable byte buffer plus its MIME type
type MediaBlob struct {
	data      []byte
	mimeType  string
	name      string
	origin    MediaOrigin
	createdAt time.Time
}

// NewMediaBlob copies data so later writes by the caller cannot change the blob
func NewMediaBlob(data []byte, mimeType, name string, origin MediaOrigin) *MediaBlob {
	buf := make([]byte, len(data))
	copy(buf, data)
	return &MediaBlob{
		data:      buf,
		mimeType:  strings.ToLower(strings.TrimSpace(mimeType)),
		name:      name,
		origin:    origin,
		createdAt: time.Now(),
	}
}

// Bytes returns a copy of the payload
func (b *MediaBlob) Bytes() []byte {
	out := make([]byte, len(b.data))
	copy(out, b.data)
	return out
}

func (b *MediaBlob) Size() int64 { return int64(len(b.data)) }
func (b *MediaBlob) MimeType() string { return b.mimeType }
func (b *MediaBlob) Name() string { return b.name }
func (b *MediaBlob) Origin() MediaOrigin { return b.origin }
func (b *MediaBlob) CreatedAt() time.Time { return b.createdAt }
func (b *MediaBlob) IsAudio() bool { return strings.HasPrefix(b.mimeType, "audio/") }
func (b *MediaBlob) IsImage() bool { return strings.HasPrefix(b.mimeType, "image/") }
func (b *MediaBlob) Equal(o *MediaBlob) bool { return o != nil && b.mimeType == o.mimeType && string(b.data) == string(o.data) }

// FileInput is a dropped or selected file before validation
type FileInput struct {
	Name     string
	MimeType string
	Data     []byte
}
