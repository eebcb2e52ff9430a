package media

import (
	"bytes"
	"encoding/binary"
	"image"

	"github.com/disintegration/imaging"
	"github.com/rwcarlsen/goexif/exif"
)

var (
	pngSignature = []byte("\x89PNG\r\n\x1a\n")
	exifPrefix   = []byte("Exif\x00\x00")
)

// containerEXIF returns the raw EXIF block of a PNG (eXIf chunk) or WebP (EXIF chunk).
// JPEG orientation is handled by imaging while decoding, so it returns nil for every other format.
func containerEXIF(data []byte, format string) []byte {
	var raw []byte
	switch format {
	case "png":
		raw = pngChunk(data, "eXIf")
	case "webp":
		raw = riffChunk(data, "EXIF")
	}
	return bytes.TrimPrefix(raw, exifPrefix)
}

func pngChunk(data []byte, chunkType string) []byte {
	if !bytes.HasPrefix(data, pngSignature) {
		return nil
	}
	rest := data[len(pngSignature):]

	// length(4) type(4) data crc(4)
	for len(rest) >= 12 {
		n := int(binary.BigEndian.Uint32(rest[:4]))
		typ := string(rest[4:8])
		if n < 0 || n > len(rest)-12 {
			return nil
		}
		if typ == chunkType {
			return rest[8 : 8+n]
		}
		if typ == "IDAT" || typ == "IEND" {
			// eXIf must precede the image data
			return nil
		}
		rest = rest[12+n:]
	}
	return nil
}

func riffChunk(data []byte, fourCC string) []byte {
	if len(data) < 12 || string(data[:4]) != "RIFF" || string(data[8:12]) != "WEBP" {
		return nil
	}
	rest := data[12:]

	// fourcc(4) size(4, little endian) payload, padded to an even length
	for len(rest) >= 8 {
		n := int(binary.LittleEndian.Uint32(rest[4:8]))
		if n < 0 || n > len(rest)-8 {
			return nil
		}
		if string(rest[:4]) == fourCC {
			return rest[8 : 8+n]
		}
		next := 8 + n + n%2
		if next > len(rest) {
			return nil
		}
		rest = rest[next:]
	}
	return nil
}

// orientationTag reads the EXIF orientation (1..8). Missing or unreadable metadata counts as 1.
func orientationTag(raw []byte) int {
	if len(raw) == 0 {
		return 1
	}
	x, err := exif.Decode(bytes.NewReader(raw))
	if err != nil {
		return 1
	}
	tag, err := x.Get(exif.Orientation)
	if err != nil {
		return 1
	}
	o, err := tag.Int(0)
	if err != nil || o < 1 || o > 8 {
		return 1
	}
	return o
}

// orient applies the transform that makes an image with the given orientation display upright.
func orient(img image.Image, orientation int) image.Image {
	switch orientation {
	case 2:
		return imaging.FlipH(img)
	case 3:
		return imaging.Rotate180(img)
	case 4:
		return imaging.FlipV(img)
	case 5:
		return imaging.Transpose(img)
	case 6:
		return imaging.Rotate270(img)
	case 7:
		return imaging.Transverse(img)
	case 8:
		return imaging.Rotate90(img)
	default:
		return img
	}
}
