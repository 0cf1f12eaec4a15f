package batch

import (
	"encoding/json"

	"metadata-cleaner/internal/statistics"
)

// Status is the lifecycle state of a FileJob.
type Status string

const (
	StatusPending Status = "pending"
	StatusSuccess Status = "ok"
	StatusFailed  Status = "error"
)

// Options are fixed for the duration of one batch run.
type Options struct {
	// OutputDir overrides the per-source "cleaned" folder when non-empty.
	OutputDir string
	// Overwrite strips originals in place and renames them instead of writing copies.
	Overwrite bool
}

// FileJob tracks a single source file through one batch run.
type FileJob struct {
	SourcePath string
	// DestPath is where the cleaned file is meant to end up, set once before any
	// strip attempt. In overwrite mode it sits next to the source.
	DestPath    string
	FinalPath   string
	Status      Status
	Err         error
	ErrorKind   string
	Overwritten bool
}

func newJob(src string) FileJob {
	return FileJob{SourcePath: src, Status: StatusPending}
}

func (j *FileJob) setDestination(path string) {
	if j.DestPath == "" {
		j.DestPath = path
	}
}

func (j *FileJob) succeed(finalPath string, overwritten bool) {
	if j.Status != StatusPending {
		return
	}
	j.Status = StatusSuccess
	j.FinalPath = finalPath
	j.Overwritten = overwritten
}

func (j *FileJob) fail(err error) {
	if j.Status != StatusPending {
		return
	}
	j.Status = StatusFailed
	j.Err = err
	j.ErrorKind = Kind(err)
}

// Message returns the human-readable error, or "" for successful jobs.
func (j FileJob) Message() string {
	if j.Err == nil {
		return ""
	}
	return j.Err.Error()
}

// Outcome is the serialized form of a finished FileJob.
type Outcome struct {
	Source      string `json:"src"`
	Dest        string `json:"dest,omitempty"`
	Status      Status `json:"status"`
	Error       string `json:"error,omitempty"`
	ErrorKind   string `json:"error_kind,omitempty"`
	Overwritten *bool  `json:"overwritten,omitempty"`
}

// Outcome converts the job to its wire form. Successful jobs report where the
// file ended up; failed ones report the resolved destination when there was one.
func (j FileJob) Outcome() Outcome {
	o := Outcome{
		Source: j.SourcePath,
		Dest:   j.DestPath,
		Status: j.Status,
	}
	switch j.Status {
	case StatusSuccess:
		o.Dest = j.FinalPath
		overwritten := j.Overwritten
		o.Overwritten = &overwritten
	case StatusFailed:
		o.Error = j.Message()
		o.ErrorKind = j.ErrorKind
	}
	return o
}

// MarshalJSON implements json.Marshaler.
func (j FileJob) MarshalJSON() ([]byte, error) {
	return json.Marshal(j.Outcome())
}

// Progress is emitted once per attempted file.
type Progress struct {
	Index int    `json:"index"`
	Total int    `json:"total"`
	File  string `json:"file"`
}

// ProgressFunc receives progress events in order. It must not block for long.
type ProgressFunc func(Progress)

// Result is the ordered outcome of one batch run.
type Result struct {
	Jobs  []FileJob
	Stats *statistics.Statistics
}

// Outcomes returns the serialized form of every job, in input order.
func (r *Result) Outcomes() []Outcome {
	out := make([]Outcome, len(r.Jobs))
	for i, j := range r.Jobs {
		out[i] = j.Outcome()
	}
	return out
}

// Failed returns how many jobs failed.
func (r *Result) Failed() int {
	n := 0
	for _, j := range r.Jobs {
		if j.Status == StatusFailed {
			n++
		}
	}
	return n
}
