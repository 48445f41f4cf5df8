// Package media captures microphone audio and validates dropped files.
package media

import (
	"fmt"
	"strings"

	"github.com/satriahrh/casava/domain"
	"github.com/satriahrh/casava/domain/entities"
)

// Kind selects the validation policy for a file
type Kind string

const (
	KindImage Kind = "image"
	KindAudio Kind = "audio"
)

// Policy is the accepted type set and size ceiling for one kind of file
type Policy struct {
	Kind         Kind
	AllowedTypes []string
	MaxBytes     int64
	// Label lists the formats in user-facing text, e.g. "JPG, PNG, GIF"
	Label string
}

// Validate checks type then size. A file exactly at MaxBytes is accepted.
func (p Policy) Validate(file entities.FileInput) error {
	mimeType := strings.ToLower(strings.TrimSpace(file.MimeType))
	if !p.allows(mimeType) {
		return &domain.ValidationError{
			Field:  "file",
			Reason: fmt.Sprintf("Please upload a supported %s file (%s)", p.Kind, p.Label),
		}
	}

	if int64(len(file.Data)) > p.MaxBytes {
		return &domain.ValidationError{
			Field:  "file",
			Reason: fmt.Sprintf("File size too large. Please upload an %s file smaller than %s", p.Kind, humanSize(p.MaxBytes)),
		}
	}

	if len(file.Data) == 0 {
		return &domain.ValidationError{Field: "file", Reason: "File is empty"}
	}

	return nil
}

func (p Policy) allows(mimeType string) bool {
	for _, t := range p.AllowedTypes {
		if strings.EqualFold(t, mimeType) {
			return true
		}
	}
	return false
}

func humanSize(n int64) string {
	const mib = 1024 * 1024
	if n%mib == 0 {
		return fmt.Sprintf("%dMB", n/mib)
	}
	return fmt.Sprintf("%d bytes", n)
}

// DefaultImagePolicy mirrors the accepted image formats
func DefaultImagePolicy(maxBytes int64, types []string) Policy {
	return Policy{Kind: KindImage, AllowedTypes: types, MaxBytes: maxBytes, Label: "JPG, PNG, GIF"}
}

// DefaultAudioPolicy mirrors the accepted audio formats
func DefaultAudioPolicy(maxBytes int64, types []string) Policy {
	return Policy{Kind: KindAudio, AllowedTypes: types, MaxBytes: maxBytes, Label: "WAV, MP3, OGG"}
}
