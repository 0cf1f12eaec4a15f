package batch

import (
	"context"
	"errors"

	"metadata-cleaner/internal/naming"
	"metadata-cleaner/internal/stripper"
)

// ErrNoFiles rejects a batch before any file is touched.
var ErrNoFiles = errors.New("no files received")

// Error kinds recorded on failed jobs.
const (
	KindDirectory = "directory_resolution"
	KindStrip     = "strip"
	KindRename    = "post_strip_rename"
	KindCancelled = "cancelled"
	KindUnknown   = "unknown"
)

// Kind classifies a per-file error.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case stripper.IsRenameError(err):
		return KindRename
	case stripper.IsStripError(err):
		return KindStrip
	case naming.IsDirectoryError(err):
		return KindDirectory
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return KindCancelled
	default:
		return KindUnknown
	}
}
