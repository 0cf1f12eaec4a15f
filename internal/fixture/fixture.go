// Package fixture synthesizes small media files carrying metadata, for tests.
package fixture

import (
	"bytes"
	"encoding/binary"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
)

// tagMake is the TIFF tag ID of the camera manufacturer field.
const tagMake = 0x010F

// EXIFSegment returns the payload of a JPEG APP1 segment holding a little-endian
// TIFF structure with a single Make entry.
func EXIFSegment(cameraMake string) []byte {
	value := append([]byte(cameraMake), 0)
	for len(value) < 5 {
		// Values of 4 bytes or fewer would be stored inline; keep it out-of-line.
		value = append(value, 0)
	}

	var b bytes.Buffer
	b.WriteString("Exif\x00\x00")

	le := binary.LittleEndian
	b.WriteString("II")
	_ = binary.Write(&b, le, uint16(42))
	_ = binary.Write(&b, le, uint32(8)) // IFD0 offset

	_ = binary.Write(&b, le, uint16(1)) // entry count
	_ = binary.Write(&b, le, uint16(tagMake))
	_ = binary.Write(&b, le, uint16(2)) // ASCII
	_ = binary.Write(&b, le, uint32(len(value)))
	_ = binary.Write(&b, le, uint32(8+2+12+4)) // value follows the IFD
	_ = binary.Write(&b, le, uint32(0))        // no next IFD

	b.Write(value)
	return b.Bytes()
}

// JPEG returns an encoded w×h JPEG without metadata.
func JPEG(w, h int) []byte {
	var buf bytes.Buffer
	_ = jpeg.Encode(&buf, gradient(w, h), &jpeg.Options{Quality: 90})
	return buf.Bytes()
}

// JPEGWithEXIF returns a JPEG whose first segment after SOI is an EXIF APP1.
func JPEGWithEXIF(cameraMake string) []byte {
	plain := JPEG(16, 16)
	payload := EXIFSegment(cameraMake)

	var out bytes.Buffer
	out.Write(plain[:2]) // SOI
	out.Write([]byte{0xFF, 0xE1})
	_ = binary.Write(&out, binary.BigEndian, uint16(len(payload)+2))
	out.Write(payload)
	out.Write(plain[2:])
	return out.Bytes()
}

// WriteJPEGWithEXIF writes JPEGWithEXIF(cameraMake) to path.
func WriteJPEGWithEXIF(path, cameraMake string) error {
	return os.WriteFile(path, JPEGWithEXIF(cameraMake), 0644)
}

// WritePNG writes a small PNG to path.
func WritePNG(path string) error {
	var buf bytes.Buffer
	if err := png.Encode(&buf, gradient(8, 8)); err != nil {
		return err
	}
	return os.WriteFile(path, buf.Bytes(), 0644)
}

func gradient(w, h int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 16), G: uint8(y * 16), B: 128, A: 255})
		}
	}
	return img
}
