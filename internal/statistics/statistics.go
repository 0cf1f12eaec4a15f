package statistics

import (
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Statistics collects counters for one cleaning batch.
type Statistics struct {
	TotalFiles         int64
	FilesProcessed     int64
	FilesSucceeded     int64
	FilesFailed        int64
	FilesOverwritten   int64
	FilesCopied        int64
	DirectoriesCreated int64
	BytesWritten       int64

	StartTime      time.Time
	EndTime        time.Time
	Duration       time.Duration
	FilesPerSecond float64

	Errors       []StatError
	ErrorsByKind map[string]int64

	mutex sync.RWMutex
}

// StatError represents an error that occurred while processing one file.
type StatError struct {
	FilePath  string
	Kind      string
	Error     string
	Timestamp time.Time
}

// NewStatistics returns a new Statistics instance.
func NewStatistics() *Statistics {
	return &Statistics{
		StartTime:    time.Now(),
		Errors:       make([]StatError, 0),
		ErrorsByKind: make(map[string]int64),
	}
}

// SetTotal records how many files the batch was asked to process.
func (s *Statistics) SetTotal(n int) {
	atomic.StoreInt64(&s.TotalFiles, int64(n))
}

// IncrementFilesProcessed increases the count of attempted files by 1.
func (s *Statistics) IncrementFilesProcessed() {
	atomic.AddInt64(&s.FilesProcessed, 1)
}

// RecordSuccess counts a cleaned file.
func (s *Statistics) RecordSuccess(overwritten bool, bytes int64) {
	atomic.AddInt64(&s.FilesSucceeded, 1)
	if overwritten {
		atomic.AddInt64(&s.FilesOverwritten, 1)
	} else {
		atomic.AddInt64(&s.FilesCopied, 1)
	}
	atomic.AddInt64(&s.BytesWritten, bytes)
}

// IncrementDirectoriesCreated increases the count of created output directories by 1.
func (s *Statistics) IncrementDirectoriesCreated() {
	atomic.AddInt64(&s.DirectoriesCreated, 1)
}

// AddError records a failed file.
func (s *Statistics) AddError(filePath, kind, errorMsg string) {
	atomic.AddInt64(&s.FilesFailed, 1)

	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.ErrorsByKind[kind]++
	s.Errors = append(s.Errors, StatError{
		FilePath:  filePath,
		Kind:      kind,
		Error:     errorMsg,
		Timestamp: time.Now(),
	})
}

// Finalize calculates duration and throughput.
func (s *Statistics) Finalize() {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.EndTime = time.Now()
	s.Duration = s.EndTime.Sub(s.StartTime)

	if s.Duration.Seconds() > 0 {
		s.FilesPerSecond = float64(atomic.LoadInt64(&s.FilesProcessed)) / s.Duration.Seconds()
	}
}

// Snapshot is a copy of the counters that is safe to serialize.
type Snapshot struct {
	Total              int64            `json:"total"`
	Processed          int64            `json:"processed"`
	Succeeded          int64            `json:"succeeded"`
	Failed             int64            `json:"failed"`
	Overwritten        int64            `json:"overwritten"`
	Copied             int64            `json:"copied"`
	DirectoriesCreated int64            `json:"directories_created"`
	BytesWritten       int64            `json:"bytes_written"`
	DurationMillis     int64            `json:"duration_ms"`
	ErrorsByKind       map[string]int64 `json:"errors_by_kind,omitempty"`
}

// Snapshot returns the current counters.
func (s *Statistics) Snapshot() Snapshot {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	kinds := make(map[string]int64, len(s.ErrorsByKind))
	for k, v := range s.ErrorsByKind {
		kinds[k] = v
	}

	return Snapshot{
		Total:              atomic.LoadInt64(&s.TotalFiles),
		Processed:          atomic.LoadInt64(&s.FilesProcessed),
		Succeeded:          atomic.LoadInt64(&s.FilesSucceeded),
		Failed:             atomic.LoadInt64(&s.FilesFailed),
		Overwritten:        atomic.LoadInt64(&s.FilesOverwritten),
		Copied:             atomic.LoadInt64(&s.FilesCopied),
		DirectoriesCreated: atomic.LoadInt64(&s.DirectoriesCreated),
		BytesWritten:       atomic.LoadInt64(&s.BytesWritten),
		DurationMillis:     s.Duration.Milliseconds(),
		ErrorsByKind:       kinds,
	}
}

// GetSummary returns a formatted summary of all statistics.
func (s *Statistics) GetSummary() string {
	snap := s.Snapshot()

	s.mutex.RLock()
	fps := s.FilesPerSecond
	duration := s.Duration
	s.mutex.RUnlock()

	return fmt.Sprintf(`Metadata Cleaner Summary:

Files:
		Total: %d
		Processed: %d
		Cleaned: %d
		Copied: %d
		Overwritten: %d
		Failed: %d

Output:
		Directories Created: %d
		Bytes Written: %s

Performance:
		Duration: %v
		Files/Second: %.2f`,
		snap.Total,
		snap.Processed,
		snap.Succeeded,
		snap.Copied,
		snap.Overwritten,
		snap.Failed,
		snap.DirectoriesCreated,
		formatBytes(snap.BytesWritten),
		duration,
		fps)
}

// GetErrorSummary returns a summary of errors that occurred during processing.
func (s *Statistics) GetErrorSummary() string {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	if len(s.Errors) == 0 {
		return "No errors occurred during processing"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Errors (%d total):\n", len(s.Errors))
	for i, err := range s.Errors {
		if i >= 10 {
			fmt.Fprintf(&b, "  ... and %d more errors\n", len(s.Errors)-10)
			break
		}
		fmt.Fprintf(&b, "  [%s] %s: %s - %s\n",
			err.Timestamp.Format("15:04:05"),
			err.Kind,
			err.FilePath,
			err.Error)
	}
	return b.String()
}

// formatBytes returns a human-readable string for a byte count.
func formatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
