// Package stripper removes embedded metadata from files, either into a new file
// or in place followed by a rename.
package stripper

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"metadata-cleaner/internal/logger"

	"github.com/sirupsen/logrus"
)

// Backend names accepted by NewBackend.
const (
	BackendExiftool = "exiftool"
	BackendReencode = "reencode"
)

// renameFunc is swapped in tests to simulate a failing rename.
var renameFunc = os.Rename

// Backend performs the actual "strip all metadata" operation.
// Implementations must fail rather than emit a file that still carries metadata.
type Backend interface {
	Name() string
	// StripInPlace replaces the content of path with a metadata-free version.
	StripInPlace(path string) error
	// StripTo writes a metadata-free version of src to dst, leaving src untouched.
	// dst must not exist afterwards if an error is returned.
	StripTo(src, dst string) error
	Close() error
}

// NewBackend builds the backend selected by name.
func NewBackend(name, exiftoolPath string, jpegQuality int) (Backend, error) {
	switch name {
	case "", BackendExiftool:
		return NewExiftoolBackend(exiftoolPath)
	case BackendReencode:
		return NewReencodeBackend(jpegQuality), nil
	default:
		return nil, fmt.Errorf("unknown stripper backend: %s", name)
	}
}

// StripError reports that metadata could not be removed from a file.
type StripError struct {
	Path      string
	Overwrite bool
	Err       error
}

func (e *StripError) Error() string {
	mode := "copy"
	if e.Overwrite {
		mode = "in-place"
	}
	return fmt.Sprintf("strip metadata (%s) from %q: %v", mode, e.Path, e.Err)
}

func (e *StripError) Unwrap() error { return e.Err }

// IsStripError reports whether err is, or wraps, a StripError.
func IsStripError(err error) bool {
	var e *StripError
	return errors.As(err, &e)
}

// RenameError reports that an in-place strip succeeded but the stripped file
// could not be moved to its new name. The file at StrippedPath no longer carries metadata.
type RenameError struct {
	StrippedPath string
	Target       string
	Err          error
}

func (e *RenameError) Error() string {
	return fmt.Sprintf("metadata stripped in place but %q could not be renamed to %q (file is cleaned under its original name): %v",
		e.StrippedPath, e.Target, e.Err)
}

func (e *RenameError) Unwrap() error { return e.Err }

// IsRenameError reports whether err is, or wraps, a RenameError.
func IsRenameError(err error) bool {
	var e *RenameError
	return errors.As(err, &e)
}

// Result describes a successfully stripped file.
type Result struct {
	FinalPath   string
	Overwritten bool
	Size        int64
}

// MetadataStripper applies a Backend in copy or overwrite mode.
type MetadataStripper struct {
	backend Backend
	logger  *logrus.Logger
}

// NewMetadataStripper returns a MetadataStripper using backend.
func NewMetadataStripper(backend Backend, log *logrus.Logger) *MetadataStripper {
	return &MetadataStripper{backend: backend, logger: log}
}

// Strip removes metadata from src.
//
// In copy mode the result is written to dest and src is not modified.
// In overwrite mode src is stripped in place and then renamed to the base name of dest
// inside src's own directory; a failed rename yields a *RenameError.
func (s *MetadataStripper) Strip(src, dest string, overwrite bool) (Result, error) {
	info, err := os.Stat(src)
	if err != nil {
		return Result{}, &StripError{Path: src, Overwrite: overwrite, Err: err}
	}
	if !info.Mode().IsRegular() {
		return Result{}, &StripError{Path: src, Overwrite: overwrite, Err: fmt.Errorf("not a regular file")}
	}

	if overwrite {
		return s.stripInPlace(src, filepath.Join(filepath.Dir(src), filepath.Base(dest)))
	}
	return s.stripToCopy(src, dest)
}

func (s *MetadataStripper) stripToCopy(src, dest string) (Result, error) {
	log := logger.WithFileOperation(s.logger, src, "strip_copy")

	if err := s.backend.StripTo(src, dest); err != nil {
		// A backend must not leave dest behind; make sure nothing half-written survives.
		if _, statErr := os.Lstat(dest); statErr == nil {
			_ = os.Remove(dest)
		}
		return Result{}, &StripError{Path: src, Err: err}
	}

	res := Result{FinalPath: dest}
	if info, err := os.Stat(dest); err == nil {
		res.Size = info.Size()
	}
	log.WithField("backend", s.backend.Name()).Debugf("Wrote cleaned copy to %s", dest)
	return res, nil
}

func (s *MetadataStripper) stripInPlace(src, renamed string) (Result, error) {
	log := logger.WithFileOperation(s.logger, src, "strip_overwrite")

	if err := s.backend.StripInPlace(src); err != nil {
		return Result{}, &StripError{Path: src, Overwrite: true, Err: err}
	}
	log.WithField("backend", s.backend.Name()).Debug("Stripped metadata in place")

	if err := renameFunc(src, renamed); err != nil {
		return Result{}, &RenameError{StrippedPath: src, Target: renamed, Err: err}
	}

	res := Result{FinalPath: renamed, Overwritten: true}
	if info, err := os.Stat(renamed); err == nil {
		res.Size = info.Size()
	}
	log.Debugf("Renamed stripped file to %s", renamed)
	return res, nil
}
