// Package audio converts between wire audio (base64) and blobs, and hands out playback handles.
package audio

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"io"
	"mime"
	"strings"

	"github.com/satriahrh/casava/domain/entities"
)

const (
	// DefaultSpeechMimeType is the format the backend synthesizes
	DefaultSpeechMimeType = "audio/wav"
)

// Decode turns backend base64 audio into a blob.
// Empty or whitespace payloads mean "no audio" and return nil, nil.
func Decode(payload string, mimeType string) (*entities.MediaBlob, error) {
	payload = strings.TrimSpace(payload)
	if payload == "" {
		return nil, nil
	}

	// Some providers send a data URL
	if strings.HasPrefix(payload, "data:") {
		if i := strings.Index(payload, ","); i >= 0 {
			if mt := dataURLMimeType(payload[:i]); mt != "" {
				mimeType = mt
			}
			payload = payload[i+1:]
		}
	}

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		// Tolerate unpadded payloads
		data, err = base64.RawStdEncoding.DecodeString(strings.TrimRight(payload, "="))
		if err != nil {
			return nil, fmt.Errorf("failed to decode audio data: %w", err)
		}
	}
	if len(data) == 0 {
		return nil, nil
	}

	if mimeType == "" {
		mimeType = DefaultSpeechMimeType
	}
	return entities.NewMediaBlob(data, mimeType, "", entities.OriginSynthesized), nil
}

// EncodeBase64 is the inverse of Decode
func EncodeBase64(blob *entities.MediaBlob) string {
	if blob == nil {
		return ""
	}
	return base64.StdEncoding.EncodeToString(blob.Bytes())
}

func dataURLMimeType(header string) string {
	header = strings.TrimPrefix(header, "data:")
	header = strings.TrimSuffix(header, ";base64")
	if mt, _, err := mime.ParseMediaType(header); err == nil {
		return mt
	}
	return ""
}

// Part is one multipart file field. The payload is sent as raw binary, not base64.
type Part struct {
	FieldName   string
	FileName    string
	ContentType string
	Body        io.Reader
}

// EncodeForUpload tags a blob for a multipart form field
func EncodeForUpload(field string, blob *entities.MediaBlob) Part {
	return Part{
		FieldName:   field,
		FileName:    FileNameFor(blob),
		ContentType: blob.MimeType(),
		Body:        bytes.NewReader(blob.Bytes()),
	}
}

var extensions = map[string]string{
	"audio/wav":   "wav",
	"audio/x-wav": "wav",
	"audio/wave":  "wav",
	"audio/mp3":   "mp3",
	"audio/mpeg":  "mp3",
	"audio/ogg":   "ogg",
	"audio/webm":  "webm",
	"image/jpeg":  "jpg",
	"image/jpg":   "jpg",
	"image/png":   "png",
	"image/gif":   "gif",
}

// FileNameFor keeps the original name when there is one
func FileNameFor(blob *entities.MediaBlob) string {
	if blob.Name() != "" {
		return blob.Name()
	}
	ext, ok := extensions[blob.MimeType()]
	if !ok {
		ext = "bin"
	}
	if blob.Origin() == entities.OriginRecorded {
		return "recording." + ext
	}
	return "upload." + ext
}
