package stripper

import (
	"errors"
	"fmt"
	"strings"

	"github.com/barasher/go-exiftool"
)

// ExiftoolBackend strips metadata with a single long-running exiftool process.
// Writes clear every tag group exiftool knows ("-All=") before saving.
type ExiftoolBackend struct {
	et *exiftool.Exiftool
}

// NewExiftoolBackend starts exiftool. An empty binaryPath uses the exiftool found on PATH.
func NewExiftoolBackend(binaryPath string) (*ExiftoolBackend, error) {
	opts := []func(*exiftool.Exiftool) error{
		exiftool.ClearFieldsBeforeWriting(),
	}
	if binaryPath != "" {
		opts = append(opts, exiftool.SetExiftoolBinaryPath(binaryPath))
	}

	et, err := exiftool.NewExiftool(opts...)
	if err != nil {
		return nil, fmt.Errorf("start exiftool: %w", err)
	}
	return &ExiftoolBackend{et: et}, nil
}

// Name implements Backend.
func (b *ExiftoolBackend) Name() string {
	return BackendExiftool
}

// StripInPlace implements Backend. The original is overwritten without a backup copy.
func (b *ExiftoolBackend) StripInPlace(path string) error {
	md := []exiftool.FileMetadata{{File: path, Fields: map[string]interface{}{}}}
	b.et.WriteMetadata(md)
	if err := md[0].Err; err != nil && !alreadyClean(err) {
		return fmt.Errorf("exiftool: %w", err)
	}
	return nil
}

// alreadyClean reports whether a write error is exiftool saying the file had
// nothing left to remove. go-exiftool only accepts "image files updated" as success.
func alreadyClean(err error) bool {
	reply := err.Error()
	if inner := errors.Unwrap(err); inner != nil {
		reply = inner.Error()
	}
	return strings.Contains(reply, "image files unchanged") &&
		!strings.Contains(reply, "Error") &&
		!strings.Contains(reply, "Warning") &&
		!strings.Contains(reply, "weren't updated")
}

// StripTo implements Backend. The source is copied into a hidden temporary beside
// dst, stripped there, and only then renamed onto dst.
func (b *ExiftoolBackend) StripTo(src, dst string) error {
	return commitViaTemp(dst, fileMode(src), func(tmpPath string) error {
		if err := copyInto(src, tmpPath); err != nil {
			return fmt.Errorf("stage copy: %w", err)
		}
		return b.StripInPlace(tmpPath)
	})
}

// Close stops the exiftool process.
func (b *ExiftoolBackend) Close() error {
	return b.et.Close()
}
