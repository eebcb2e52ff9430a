package media

import (
	"errors"
	"fmt"
)

var (
	ErrPayloadTooLarge        = errors.New("image payload too large")
	ErrUnsupportedContentType = errors.New("unsupported image content type")
	ErrDecodeFailure          = errors.New("image decode failed")
	ErrUnknownImageFormat     = errors.New("unknown image format")
	ErrInvalidVariant         = errors.New("invalid image variant")
)

// ImageTooLargeError reports an upload over the byte ceiling.
type ImageTooLargeError struct {
	FileName string
	Length   int64
	MaxBytes int64
}

func (e *ImageTooLargeError) Error() string {
	return fmt.Sprintf("%s: %q is %d bytes, limit %d", ErrPayloadTooLarge, e.FileName, e.Length, e.MaxBytes)
}

func (e *ImageTooLargeError) Unwrap() error { return ErrPayloadTooLarge }

func (e *ImageTooLargeError) PublicMessage() string {
	return fmt.Sprintf("Image '%s' exceeds the %d MB limit.", e.FileName, e.MaxBytes/(1024*1024))
}

// ImageDimensionsError reports a bitstream whose header announces more pixels than we are willing to decode.
type ImageDimensionsError struct {
	FileName  string
	Width     int
	Height    int
	MaxPixels int
}

func (e *ImageDimensionsError) Error() string {
	return fmt.Sprintf("%s: %q is %dx%d, limit %d pixels", ErrPayloadTooLarge, e.FileName, e.Width, e.Height, e.MaxPixels)
}

func (e *ImageDimensionsError) Unwrap() error { return ErrPayloadTooLarge }

func (e *ImageDimensionsError) PublicMessage() string {
	return fmt.Sprintf("Image '%s' is %dx%d pixels, which exceeds the %d pixel limit.", e.FileName, e.Width, e.Height, e.MaxPixels)
}

type UnsupportedContentTypeError struct {
	FileName    string
	ContentType string
}

func (e *UnsupportedContentTypeError) Error() string {
	return fmt.Sprintf("%s: %q declared %q", ErrUnsupportedContentType, e.FileName, e.ContentType)
}

func (e *UnsupportedContentTypeError) Unwrap() error { return ErrUnsupportedContentType }

func (e *UnsupportedContentTypeError) PublicMessage() string {
	return fmt.Sprintf("Images must be JPEG, PNG, or WebP. '%s' was %s.", e.FileName, e.ContentType)
}

// DecodeError wraps a corrupt or unrecognised bitstream. It matches both ErrDecodeFailure and the cause.
type DecodeError struct {
	FileName string
	Err      error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("%s: %q: %v", ErrDecodeFailure, e.FileName, e.Err)
}

func (e *DecodeError) Unwrap() []error { return []error{ErrDecodeFailure, e.Err} }

func (e *DecodeError) PublicMessage() string {
	return fmt.Sprintf("Image '%s' could not be read as JPEG, PNG, or WebP.", e.FileName)
}
