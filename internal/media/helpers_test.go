package media

import (
	"bytes"
	"encoding/binary"
	"hash/crc32"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"

	"postmedia/internal/config"
)

func solidImage(w, h int, c color.NRGBA) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := range h {
		for x := range w {
			img.SetNRGBA(x, y, c)
		}
	}
	return img
}

func encodeJPEG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90}); err != nil {
		t.Fatalf("jpeg encode: %v", err)
	}
	return buf.Bytes()
}

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("png encode: %v", err)
	}
	return buf.Bytes()
}

// exifBlock is a minimal big-endian EXIF block carrying only the orientation tag.
func exifBlock(orientation uint16) []byte {
	var payload bytes.Buffer
	payload.WriteString("Exif\x00\x00")
	payload.WriteString("MM")
	_ = binary.Write(&payload, binary.BigEndian, uint16(0x002A))
	_ = binary.Write(&payload, binary.BigEndian, uint32(8))
	_ = binary.Write(&payload, binary.BigEndian, uint16(1))
	_ = binary.Write(&payload, binary.BigEndian, uint16(0x0112))
	_ = binary.Write(&payload, binary.BigEndian, uint16(3))
	_ = binary.Write(&payload, binary.BigEndian, uint32(1))
	_ = binary.Write(&payload, binary.BigEndian, orientation)
	_ = binary.Write(&payload, binary.BigEndian, uint16(0))
	_ = binary.Write(&payload, binary.BigEndian, uint32(0))
	return payload.Bytes()
}

// withOrientation splices an EXIF APP1 segment right after the JPEG SOI marker.
func withOrientation(t *testing.T, jpg []byte, orientation uint16) []byte {
	t.Helper()
	if len(jpg) < 2 || jpg[0] != 0xFF || jpg[1] != 0xD8 {
		t.Fatal("not a jpeg")
	}
	payload := exifBlock(orientation)

	var out bytes.Buffer
	out.Write(jpg[:2])
	out.Write([]byte{0xFF, 0xE1})
	_ = binary.Write(&out, binary.BigEndian, uint16(len(payload)+2))
	out.Write(payload)
	out.Write(jpg[2:])
	return out.Bytes()
}

// pngWithOrientation inserts an eXIf chunk right after IHDR.
func pngWithOrientation(t *testing.T, pngData []byte, orientation uint16) []byte {
	t.Helper()
	const ihdrEnd = 8 + 4 + 4 + 13 + 4
	if len(pngData) < ihdrEnd || string(pngData[12:16]) != "IHDR" {
		t.Fatal("not a png")
	}
	// PNG stores the TIFF structure without the Exif prefix
	body := bytes.TrimPrefix(exifBlock(orientation), []byte("Exif\x00\x00"))

	var chunk bytes.Buffer
	_ = binary.Write(&chunk, binary.BigEndian, uint32(len(body)))
	chunk.WriteString("eXIf")
	chunk.Write(body)
	_ = binary.Write(&chunk, binary.BigEndian, crc32.ChecksumIEEE(chunk.Bytes()[4:]))

	var out bytes.Buffer
	out.Write(pngData[:ihdrEnd])
	out.Write(chunk.Bytes())
	out.Write(pngData[ihdrEnd:])
	return out.Bytes()
}

// webpContainer wraps the given chunks in a RIFF/WEBP header. Payloads are not real bitstreams.
func webpContainer(chunks ...[2]string) []byte {
	var body bytes.Buffer
	body.WriteString("WEBP")
	for _, c := range chunks {
		body.WriteString(c[0])
		_ = binary.Write(&body, binary.LittleEndian, uint32(len(c[1])))
		body.WriteString(c[1])
		if len(c[1])%2 == 1 {
			body.WriteByte(0)
		}
	}

	var out bytes.Buffer
	out.WriteString("RIFF")
	_ = binary.Write(&out, binary.LittleEndian, uint32(body.Len()))
	out.Write(body.Bytes())
	return out.Bytes()
}

func testOptions() config.ImagesOptions {
	return config.ImagesOptions{
		Enabled:         true,
		Quality:         80,
		PreferredFormat: "webp",
		Max:             config.ImageSize{Width: 400, Height: 300},
		Preview:         config.ImageSize{Width: 200, Height: 200},
		Thumb:           config.ImageSize{Width: 50, Height: 50},
		MaxUploadBytes:  5 << 20,
		MaxPixels:       10_000_000,
		Workers:         2,
	}
}
