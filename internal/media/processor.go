package media

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"io"
	"log/slog"
	"time"

	"postmedia/internal/config"

	"github.com/disintegration/imaging"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Processor turns one raw upload into its max, preview and thumb renditions.
// It is safe for concurrent use; all state is read-only after construction.
type Processor struct {
	opts   config.ImagesOptions
	logger *slog.Logger
	tracer trace.Tracer
}

func NewProcessor(opts config.ImagesOptions, logger *slog.Logger) *Processor {
	return &Processor{
		opts:   opts,
		logger: logger,
		tracer: otel.Tracer("postmedia/media/processor"),
	}
}

// Process reads at most MaxUploadBytes from r, normalizes the image once and
// derives every variant from that shared buffer.
func (p *Processor) Process(ctx context.Context, r io.Reader, fileName, contentType string) (*Variants, error) {
	ctx, span := p.tracer.Start(ctx, "media.Process",
		trace.WithAttributes(
			attribute.String("image.file_name", fileName),
			attribute.String("image.content_type", contentType),
		),
	)
	defer span.End()

	start := time.Now()

	data, err := io.ReadAll(io.LimitReader(r, p.opts.MaxUploadBytes+1))
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("reading %q: %w", fileName, err)
	}
	if int64(len(data)) > p.opts.MaxUploadBytes {
		err := &ImageTooLargeError{FileName: fileName, Length: int64(len(data)), MaxBytes: p.opts.MaxUploadBytes}
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	src, err := Decode(ctx, data, fileName, p.opts.MaxPixels)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "decode failed")
		return nil, err
	}

	transparent := HasTransparency(src.Image)
	enc := SelectEncoder(p.opts.PreferredFormat, transparent, p.opts.Quality)

	span.SetAttributes(
		attribute.String("image.source_format", src.Format),
		attribute.String("image.output_format", enc.Codec.String()),
		attribute.Int("image.width", src.Width()),
		attribute.Int("image.height", src.Height()),
	)

	variants := &Variants{}
	targets := []struct {
		dst  *ImageVariant
		size config.ImageSize
	}{
		{&variants.Max, p.opts.Max},
		{&variants.Preview, p.opts.Preview},
		{&variants.Thumb, p.opts.Thumb},
	}

	for _, t := range targets {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		v, err := p.render(src.Image, t.size, enc)
		if err != nil {
			span.RecordError(err)
			return nil, fmt.Errorf("rendering %dx%d of %q: %w", t.size.Width, t.size.Height, fileName, err)
		}
		*t.dst = v
	}

	if p.opts.KeepOriginal {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		origEnc, err := EncoderForFormat(src.Format, p.opts.Quality)
		if err != nil {
			return nil, &DecodeError{FileName: fileName, Err: err}
		}
		v, err := p.encode(src.Image, origEnc)
		if err != nil {
			span.RecordError(err)
			return nil, fmt.Errorf("re-encoding original of %q: %w", fileName, err)
		}
		variants.Original = &v
	}

	p.logger.Debug("image processed",
		"file", fileName,
		"format", src.Format,
		"output", enc.Codec.String(),
		"width", src.Width(),
		"height", src.Height(),
		"transparent", transparent,
		"elapsed", time.Since(start),
	)

	return variants, nil
}

// render scales src to fit inside size, preserving aspect ratio. Images that already fit are never enlarged.
func (p *Processor) render(src *image.NRGBA, size config.ImageSize, enc Encoder) (ImageVariant, error) {
	return p.encode(imaging.Fit(src, size.Width, size.Height, imaging.Lanczos), enc)
}

func (p *Processor) encode(img *image.NRGBA, enc Encoder) (ImageVariant, error) {
	var buf bytes.Buffer
	if err := enc.Encode(&buf, img); err != nil {
		return ImageVariant{}, fmt.Errorf("encode error: %w", err)
	}

	b := img.Bounds()
	return NewVariant(buf.Bytes(), enc.ContentType(), enc.Extension(), b.Dx(), b.Dy())
}
