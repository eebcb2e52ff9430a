package media

import (
	"fmt"
	"strings"
)

// Suffix names a variant inside a storage key.
type Suffix string

const (
	SuffixMax      Suffix = "max"
	SuffixPreview  Suffix = "preview"
	SuffixThumb    Suffix = "thumb"
	SuffixOriginal Suffix = "original"
)

// ImageVariant is one encoded rendition. Treat it as read-only once built.
type ImageVariant struct {
	Content     []byte
	ContentType string
	Extension   string // without the leading dot
	Width       int
	Height      int
}

func NewVariant(content []byte, contentType, extension string, width, height int) (ImageVariant, error) {
	if len(content) == 0 {
		return ImageVariant{}, fmt.Errorf("%w: content cannot be empty", ErrInvalidVariant)
	}
	if strings.TrimSpace(contentType) == "" {
		return ImageVariant{}, fmt.Errorf("%w: content type is required", ErrInvalidVariant)
	}
	extension = strings.TrimPrefix(strings.TrimSpace(extension), ".")
	if extension == "" {
		return ImageVariant{}, fmt.Errorf("%w: extension is required", ErrInvalidVariant)
	}

	return ImageVariant{
		Content:     content,
		ContentType: contentType,
		Extension:   extension,
		Width:       width,
		Height:      height,
	}, nil
}

// Variants groups the renditions produced for one upload.
type Variants struct {
	Max      ImageVariant
	Preview  ImageVariant
	Thumb    ImageVariant
	Original *ImageVariant
}

type NamedVariant struct {
	Suffix  Suffix
	Variant ImageVariant
}

// All lists the variants in write order; the original comes last and only when present.
func (v *Variants) All() []NamedVariant {
	all := []NamedVariant{
		{SuffixMax, v.Max},
		{SuffixPreview, v.Preview},
		{SuffixThumb, v.Thumb},
	}
	if v.Original != nil {
		all = append(all, NamedVariant{SuffixOriginal, *v.Original})
	}
	return all
}
