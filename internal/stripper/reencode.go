package stripper

import (
	"fmt"
	"image/gif"
	"os"

	"github.com/disintegration/imaging"
)

// DefaultJPEGQuality is used when a non-positive quality is configured.
const DefaultJPEGQuality = 95

// ReencodeBackend decodes the image and encodes only its pixels, so nothing but
// image data reaches the output. It works without external tools but only for
// formats imaging can both read and write.
type ReencodeBackend struct {
	quality int
}

// NewReencodeBackend returns a ReencodeBackend writing JPEGs at the given quality.
func NewReencodeBackend(jpegQuality int) *ReencodeBackend {
	if jpegQuality <= 0 || jpegQuality > 100 {
		jpegQuality = DefaultJPEGQuality
	}
	return &ReencodeBackend{quality: jpegQuality}
}

// Name implements Backend.
func (b *ReencodeBackend) Name() string {
	return BackendReencode
}

// StripInPlace implements Backend. The image is fully decoded before the original is replaced.
func (b *ReencodeBackend) StripInPlace(path string) error {
	return b.StripTo(path, path)
}

// StripTo implements Backend.
func (b *ReencodeBackend) StripTo(src, dst string) error {
	format, err := imaging.FormatFromFilename(dst)
	if err != nil {
		return fmt.Errorf("unsupported format %q: %w", dst, err)
	}
	if format == imaging.GIF {
		if err := requireSingleFrame(src); err != nil {
			return err
		}
	}

	// Apply the EXIF orientation to the pixels, since the tag itself is about to go.
	img, err := imaging.Open(src, imaging.AutoOrientation(true))
	if err != nil {
		return fmt.Errorf("decode: %w", err)
	}

	return commitViaTemp(dst, fileMode(src), func(tmpPath string) error {
		if err := imaging.Save(img, tmpPath, imaging.JPEGQuality(b.quality)); err != nil {
			return fmt.Errorf("encode: %w", err)
		}
		return nil
	})
}

// requireSingleFrame rejects animated GIFs: imaging decodes and writes only the first frame.
func requireSingleFrame(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("decode: %w", err)
	}
	defer f.Close()

	g, err := gif.DecodeAll(f)
	if err != nil {
		return fmt.Errorf("decode: %w", err)
	}
	if n := len(g.Image); n > 1 {
		return fmt.Errorf("unsupported format: animated GIF with %d frames cannot be re-encoded without losing frames", n)
	}
	return nil
}

// Close implements Backend.
func (b *ReencodeBackend) Close() error {
	return nil
}
