package media

import (
	"mime"
	"slices"
	"strings"
)

// LegacyMaxUploadBytes is the ceiling applied on the pass-through upload path.
const LegacyMaxUploadBytes int64 = 20 << 20

var PipelineContentTypes = []string{"image/jpeg", "image/png", "image/webp"}

// Gate is the pre-decode check on declared content type and length. It never reads the payload.
type Gate struct {
	MaxBytes int64
	// Allowed is matched case-insensitively after parameters are stripped; empty means any type.
	Allowed []string
}

func NewPipelineGate(maxBytes int64) Gate {
	return Gate{MaxBytes: maxBytes, Allowed: PipelineContentTypes}
}

func NewLegacyGate() Gate {
	return Gate{MaxBytes: LegacyMaxUploadBytes}
}

// Check validates one upload. Size is tested before type, so an oversized file is always reported as such.
func (g Gate) Check(fileName, contentType string, length int64) error {
	if length > g.MaxBytes {
		return &ImageTooLargeError{FileName: fileName, Length: length, MaxBytes: g.MaxBytes}
	}

	if len(g.Allowed) == 0 {
		return nil
	}

	if !slices.Contains(g.Allowed, NormalizeContentType(contentType)) {
		return &UnsupportedContentTypeError{FileName: fileName, ContentType: contentType}
	}
	return nil
}

// NormalizeContentType lowercases a MIME type and drops parameters such as charset.
func NormalizeContentType(contentType string) string {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(contentType))
	}
	return mediaType
}
