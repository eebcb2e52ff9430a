package media

import (
	"fmt"
	"image"
	"image/png"
	"io"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/kolesa-team/go-webp/encoder"
	"github.com/kolesa-team/go-webp/webp"
	"golang.org/x/image/draw"
)

type Codec int

const (
	CodecJPEG Codec = iota + 1
	CodecPNG
	CodecWebP
)

func (c Codec) String() string {
	switch c {
	case CodecJPEG:
		return "jpeg"
	case CodecPNG:
		return "png"
	case CodecWebP:
		return "webp"
	default:
		return fmt.Sprintf("codec(%d)", int(c))
	}
}

// Encoder is a closed choice of output codec. Quality only applies to lossy codecs.
type Encoder struct {
	Codec    Codec
	Quality  int
	Lossless bool
}

func JPEG(quality int) Encoder { return Encoder{Codec: CodecJPEG, Quality: quality} }
func PNG() Encoder             { return Encoder{Codec: CodecPNG} }
func WebP(quality int) Encoder { return Encoder{Codec: CodecWebP, Quality: quality} }

func (e Encoder) Extension() string {
	switch e.Codec {
	case CodecPNG:
		return "png"
	case CodecWebP:
		return "webp"
	default:
		return "jpg"
	}
}

func (e Encoder) ContentType() string {
	switch e.Codec {
	case CodecPNG:
		return "image/png"
	case CodecWebP:
		return "image/webp"
	default:
		return "image/jpeg"
	}
}

func (e Encoder) Encode(w io.Writer, img image.Image) error {
	switch e.Codec {
	case CodecJPEG:
		return imaging.Encode(w, flatten(img), imaging.JPEG, imaging.JPEGQuality(e.Quality))
	case CodecPNG:
		return imaging.Encode(w, img, imaging.PNG, imaging.PNGCompressionLevel(png.DefaultCompression))
	case CodecWebP:
		options, err := e.webpOptions()
		if err != nil {
			return fmt.Errorf("encoding options: %w", err)
		}
		return webp.Encode(w, img, options)
	default:
		return fmt.Errorf("no encoder for %s", e.Codec)
	}
}

func (e Encoder) webpOptions() (*encoder.Options, error) {
	if e.Lossless {
		return encoder.NewLosslessEncoderOptions(encoder.PresetDefault, 6)
	}
	return encoder.NewLossyEncoderOptions(encoder.PresetPhoto, float32(e.Quality))
}

// SelectEncoder picks the output codec for every variant of one upload.
//
// A png preference without any transparent pixel is downgraded to JPEG: a
// lossless RGB PNG costs several times the bytes for no visible gain.
func SelectEncoder(preferredFormat string, hasTransparency bool, quality int) Encoder {
	switch strings.ToLower(strings.TrimSpace(preferredFormat)) {
	case "webp":
		return WebP(quality)
	case "png":
		if hasTransparency {
			return PNG()
		}
		return JPEG(quality)
	case "jpeg", "jpg":
		return JPEG(quality)
	}

	if hasTransparency {
		return PNG()
	}
	return JPEG(quality)
}

// EncoderForFormat re-targets the decoder's own format, used for the kept original.
func EncoderForFormat(format string, quality int) (Encoder, error) {
	switch format {
	case "jpeg":
		return JPEG(quality), nil
	case "png":
		return PNG(), nil
	case "webp":
		return Encoder{Codec: CodecWebP, Lossless: true}, nil
	default:
		return Encoder{}, fmt.Errorf("%w: %q", ErrUnknownImageFormat, format)
	}
}

// flatten composites non-opaque pixels over white since JPEG has no alpha channel.
func flatten(img image.Image) image.Image {
	if o, ok := img.(interface{ Opaque() bool }); ok && o.Opaque() {
		return img
	}

	b := img.Bounds()
	dst := image.NewRGBA(b)
	draw.Draw(dst, b, image.White, image.Point{}, draw.Src)
	draw.Draw(dst, b, img, b.Min, draw.Over)
	return dst
}
