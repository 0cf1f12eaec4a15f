package statistics

import (
	"strings"
	"sync"
	"testing"
)

func TestStatistics_ConcurrentCounters(t *testing.T) {
	s := NewStatistics()
	s.SetTotal(100)

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s.IncrementFilesProcessed()
			switch {
			case i%10 == 0:
				s.AddError("/x.jpg", "strip", "boom")
			case i%2 == 0:
				s.RecordSuccess(true, 10)
			default:
				s.RecordSuccess(false, 10)
			}
		}(i)
	}
	wg.Wait()
	s.Finalize()

	snap := s.Snapshot()
	if snap.Total != 100 || snap.Processed != 100 {
		t.Errorf("total/processed = %d/%d", snap.Total, snap.Processed)
	}
	if snap.Failed != 10 || snap.Succeeded != 90 {
		t.Errorf("failed/succeeded = %d/%d", snap.Failed, snap.Succeeded)
	}
	if snap.Overwritten != 40 || snap.Copied != 50 {
		t.Errorf("overwritten/copied = %d/%d", snap.Overwritten, snap.Copied)
	}
	if snap.BytesWritten != 900 {
		t.Errorf("bytes = %d", snap.BytesWritten)
	}
	if snap.ErrorsByKind["strip"] != 10 {
		t.Errorf("errors by kind = %v", snap.ErrorsByKind)
	}
}

func TestStatistics_Summaries(t *testing.T) {
	s := NewStatistics()
	if got := s.GetErrorSummary(); got != "No errors occurred during processing" {
		t.Errorf("empty error summary = %q", got)
	}

	for i := 0; i < 12; i++ {
		s.AddError("/a.jpg", "directory_resolution", "denied")
	}
	s.Finalize()

	errs := s.GetErrorSummary()
	if !strings.Contains(errs, "12 total") || !strings.Contains(errs, "and 2 more") {
		t.Errorf("error summary = %s", errs)
	}
	if !strings.Contains(s.GetSummary(), "Failed: 12") {
		t.Errorf("summary = %s", s.GetSummary())
	}
}

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		in   int64
		want string
	}{
		{0, "0 B"},
		{1023, "1023 B"},
		{1024, "1.0 KB"},
		{1536, "1.5 KB"},
		{5 * 1024 * 1024, "5.0 MB"},
	}
	for _, tt := range tests {
		if got := formatBytes(tt.in); got != tt.want {
			t.Errorf("formatBytes(%d) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
