package media

import (
	"bytes"
	"context"
	"errors"
	"image"
	"slices"

	"github.com/disintegration/imaging"

	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/webp"
)

var decodableFormats = []string{"jpeg", "png", "webp"}

// Normalized is a decoded upload with orientation applied and no metadata left.
// It is shared read-only by every variant derived from it.
type Normalized struct {
	Image  *image.NRGBA
	Format string // name reported by the registered decoder
}

func (n *Normalized) Width() int  { return n.Image.Bounds().Dx() }
func (n *Normalized) Height() int { return n.Image.Bounds().Dy() }

// Decode turns raw bytes into a normalized buffer.
// The header is read first so an oversized canvas is refused before any pixel allocation.
func Decode(ctx context.Context, data []byte, fileName string, maxPixels int) (*Normalized, error) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		if errors.Is(err, image.ErrFormat) {
			return nil, &DecodeError{FileName: fileName, Err: ErrUnknownImageFormat}
		}
		return nil, &DecodeError{FileName: fileName, Err: err}
	}
	if !slices.Contains(decodableFormats, format) {
		return nil, &DecodeError{FileName: fileName, Err: ErrUnknownImageFormat}
	}

	if int64(cfg.Width)*int64(cfg.Height) > int64(maxPixels) {
		return nil, &ImageDimensionsError{FileName: fileName, Width: cfg.Width, Height: cfg.Height, MaxPixels: maxPixels}
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// only pixels survive decoding; EXIF, IPTC, XMP and ICC are never carried into the buffer
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, &DecodeError{FileName: fileName, Err: err}
	}

	// imaging only honors orientation stored in JPEG streams
	if o := orientationTag(containerEXIF(data, format)); o != 1 {
		img = orient(img, o)
	}

	return &Normalized{
		Image:  imaging.Clone(img),
		Format: format,
	}, nil
}

// HasTransparency reports whether any pixel is less than fully opaque. It stops at the first hit.
func HasTransparency(img *image.NRGBA) bool {
	b := img.Bounds()
	rowLen := b.Dx() * 4

	for y := b.Min.Y; y < b.Max.Y; y++ {
		start := img.PixOffset(b.Min.X, y)
		row := img.Pix[start : start+rowLen]
		for i := 3; i < len(row); i += 4 {
			if row[i] < 0xff {
				return true
			}
		}
	}
	return false
}
