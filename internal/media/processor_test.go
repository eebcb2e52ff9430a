package media

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"io"
	"log/slog"
	"testing"

	"postmedia/internal/config"

	_ "golang.org/x/image/webp"
)

func newTestProcessor(mutate func(o *config.ImagesOptions)) *Processor {
	opts := testOptions()
	if mutate != nil {
		mutate(&opts)
	}
	return NewProcessor(opts, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func decodedSize(t *testing.T, v ImageVariant) (int, int, string) {
	t.Helper()
	cfg, format, err := image.DecodeConfig(bytes.NewReader(v.Content))
	if err != nil {
		t.Fatalf("variant does not decode: %v", err)
	}
	return cfg.Width, cfg.Height, format
}

func TestProcessPreservesAspectRatio(t *testing.T) {
	t.Parallel()
	p := newTestProcessor(nil)

	src := encodeJPEG(t, solidImage(800, 400, color.NRGBA{40, 90, 160, 255}))
	v, err := p.Process(context.Background(), bytes.NewReader(src), "wide.jpg", "image/jpeg")
	if err != nil {
		t.Fatalf("process: %v", err)
	}

	tests := []struct {
		name    string
		variant ImageVariant
		w, h    int
	}{
		{"max", v.Max, 400, 200},
		{"preview", v.Preview, 200, 100},
		{"thumb", v.Thumb, 50, 25},
	}
	for _, tt := range tests {
		w, h, format := decodedSize(t, tt.variant)
		if w != tt.w || h != tt.h {
			t.Errorf("%s: got %dx%d, want %dx%d", tt.name, w, h, tt.w, tt.h)
		}
		if tt.variant.Width != w || tt.variant.Height != h {
			t.Errorf("%s: recorded %dx%d, encoded %dx%d", tt.name, tt.variant.Width, tt.variant.Height, w, h)
		}
		if format != "webp" || tt.variant.ContentType != "image/webp" || tt.variant.Extension != "webp" {
			t.Errorf("%s: expected webp output, got %s %s .%s", tt.name, format, tt.variant.ContentType, tt.variant.Extension)
		}
	}
	if v.Original != nil {
		t.Error("original produced with KeepOriginal off")
	}
}

func TestProcessNeverUpscales(t *testing.T) {
	t.Parallel()
	p := newTestProcessor(nil)

	src := encodePNG(t, solidImage(30, 20, color.NRGBA{1, 1, 1, 255}))
	v, err := p.Process(context.Background(), bytes.NewReader(src), "tiny.png", "image/png")
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	for _, nv := range v.All() {
		w, h, _ := decodedSize(t, nv.Variant)
		if w > 30 || h > 20 {
			t.Errorf("%s upscaled to %dx%d", nv.Suffix, w, h)
		}
	}
	if w, h, _ := decodedSize(t, v.Max); w != 30 || h != 20 {
		t.Errorf("max should keep source size, got %dx%d", w, h)
	}
}

func TestProcessRespectsOrientation(t *testing.T) {
	t.Parallel()
	p := newTestProcessor(nil)

	src := withOrientation(t, encodeJPEG(t, solidImage(800, 400, color.NRGBA{90, 90, 90, 255})), 6)
	v, err := p.Process(context.Background(), bytes.NewReader(src), "phone.jpg", "image/jpeg")
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	w, h, _ := decodedSize(t, v.Max)
	if h <= w {
		t.Errorf("expected portrait max variant, got %dx%d", w, h)
	}
}

func TestProcessPNGPreference(t *testing.T) {
	t.Parallel()
	p := newTestProcessor(func(o *config.ImagesOptions) { o.PreferredFormat = "png" })

	alpha := encodePNG(t, solidImage(64, 64, color.NRGBA{255, 0, 0, 128}))
	v, err := p.Process(context.Background(), bytes.NewReader(alpha), "alpha.png", "image/png")
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if v.Max.ContentType != "image/png" || v.Thumb.Extension != "png" {
		t.Errorf("transparent source should stay png, got %s .%s", v.Max.ContentType, v.Thumb.Extension)
	}

	opaque := encodePNG(t, solidImage(64, 64, color.NRGBA{255, 0, 0, 255}))
	v, err = p.Process(context.Background(), bytes.NewReader(opaque), "opaque.png", "image/png")
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if v.Max.ContentType != "image/jpeg" || v.Preview.Extension != "jpg" {
		t.Errorf("opaque png should become jpeg, got %s .%s", v.Max.ContentType, v.Preview.Extension)
	}
}

func TestProcessKeepOriginal(t *testing.T) {
	t.Parallel()
	p := newTestProcessor(func(o *config.ImagesOptions) { o.KeepOriginal = true })

	src := encodePNG(t, solidImage(900, 300, color.NRGBA{0, 128, 0, 255}))
	v, err := p.Process(context.Background(), bytes.NewReader(src), "orig.png", "image/png")
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if v.Original == nil {
		t.Fatal("expected original variant")
	}
	w, h, format := decodedSize(t, *v.Original)
	if w != 900 || h != 300 || format != "png" {
		t.Errorf("original should be full-size png, got %dx%d %s", w, h, format)
	}
	if got := len(v.All()); got != 4 {
		t.Errorf("All() = %d variants, want 4", got)
	}
}

func TestProcessRejects(t *testing.T) {
	t.Parallel()

	t.Run("corrupt", func(t *testing.T) {
		t.Parallel()
		_, err := newTestProcessor(nil).Process(context.Background(), bytes.NewReader([]byte("nope")), "bad.jpg", "image/jpeg")
		if !errors.Is(err, ErrDecodeFailure) {
			t.Fatalf("expected ErrDecodeFailure, got %v", err)
		}
	})

	t.Run("stream longer than limit", func(t *testing.T) {
		t.Parallel()
		p := newTestProcessor(func(o *config.ImagesOptions) { o.MaxUploadBytes = 16 })
		_, err := p.Process(context.Background(), bytes.NewReader(make([]byte, 17)), "big.jpg", "image/jpeg")
		var tl *ImageTooLargeError
		if !errors.As(err, &tl) {
			t.Fatalf("expected ImageTooLargeError, got %v", err)
		}
	})

	t.Run("cancelled", func(t *testing.T) {
		t.Parallel()
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		src := encodeJPEG(t, solidImage(20, 20, color.NRGBA{0, 0, 0, 255}))
		_, err := newTestProcessor(nil).Process(ctx, bytes.NewReader(src), "c.jpg", "image/jpeg")
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	})
}
