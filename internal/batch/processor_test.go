package batch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"metadata-cleaner/internal/fixture"
	"metadata-cleaner/internal/logger"
	"metadata-cleaner/internal/naming"
	"metadata-cleaner/internal/stripper"

	"github.com/rwcarlsen/goexif/exif"
)

// selectiveBackend delegates to a real backend but fails for one source path.
type selectiveBackend struct {
	stripper.Backend
	failOn string
}

func (b selectiveBackend) StripTo(src, dst string) error {
	if src == b.failOn {
		return errors.New("unsupported file format")
	}
	return b.Backend.StripTo(src, dst)
}

func (b selectiveBackend) StripInPlace(path string) error {
	if path == b.failOn {
		return errors.New("unsupported file format")
	}
	return b.Backend.StripInPlace(path)
}

func newProcessor(backend stripper.Backend, workers int) *Processor {
	log := logger.Discard()
	return NewProcessor(naming.NewNamer(""), stripper.NewMetadataStripper(backend, log), log, workers)
}

func writeSources(t *testing.T, dir string, n int) []string {
	t.Helper()
	paths := make([]string, n)
	for i := range paths {
		paths[i] = filepath.Join(dir, fmt.Sprintf("img_%02d.jpg", i))
		if err := fixture.WriteJPEGWithEXIF(paths[i], "Nikon"); err != nil {
			t.Fatalf("fixture: %v", err)
		}
	}
	return paths
}

func hasEXIF(t *testing.T, path string) bool {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open %s: %v", path, err)
	}
	defer f.Close()
	_, err = exif.Decode(f)
	return err == nil
}

type progressRecorder struct {
	mu     sync.Mutex
	events []Progress
}

func (r *progressRecorder) record(p Progress) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, p)
}

func (r *progressRecorder) assertSequence(t *testing.T, total int) {
	t.Helper()
	if len(r.events) != total {
		t.Fatalf("got %d progress events, want %d", len(r.events), total)
	}
	for i, ev := range r.events {
		if ev.Index != i+1 || ev.Total != total {
			t.Errorf("event %d = %+v, want index %d of %d", i, ev, i+1, total)
		}
	}
}

func TestRun_EmptyInputIsRejected(t *testing.T) {
	dir := t.TempDir()
	rec := &progressRecorder{}
	p := newProcessor(stripper.NewReencodeBackend(0), 1)

	for _, paths := range [][]string{nil, {}} {
		res, err := p.Run(context.Background(), paths, Options{OutputDir: filepath.Join(dir, "out")}, rec.record)
		if !errors.Is(err, ErrNoFiles) {
			t.Fatalf("expected ErrNoFiles, got %v", err)
		}
		if res != nil {
			t.Errorf("expected no result on rejected batch")
		}
	}
	if len(rec.events) != 0 {
		t.Errorf("rejected batch emitted %d progress events", len(rec.events))
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Errorf("rejected batch wrote to disk: %v", entries)
	}
}

func TestRun_CopyModePreservesOrderAndSources(t *testing.T) {
	for _, workers := range []int{1, 4} {
		t.Run(fmt.Sprintf("workers=%d", workers), func(t *testing.T) {
			dir := t.TempDir()
			paths := writeSources(t, dir, 6)
			originals := make([][]byte, len(paths))
			for i, p := range paths {
				originals[i], _ = os.ReadFile(p)
			}

			rec := &progressRecorder{}
			res, err := newProcessor(stripper.NewReencodeBackend(90), workers).
				Run(context.Background(), paths, Options{}, rec.record)
			if err != nil {
				t.Fatalf("Run: %v", err)
			}

			if len(res.Jobs) != len(paths) {
				t.Fatalf("got %d jobs, want %d", len(res.Jobs), len(paths))
			}
			seen := map[string]bool{}
			for i, job := range res.Jobs {
				if job.SourcePath != paths[i] {
					t.Errorf("job %d source = %q, want %q", i, job.SourcePath, paths[i])
				}
				if job.Status != StatusSuccess {
					t.Fatalf("job %d failed: %v", i, job.Err)
				}
				if job.Overwritten {
					t.Errorf("job %d reported overwritten in copy mode", i)
				}
				if filepath.Dir(job.FinalPath) != filepath.Join(dir, "cleaned") {
					t.Errorf("job %d landed in %q", i, job.FinalPath)
				}
				if seen[job.FinalPath] {
					t.Errorf("duplicate destination %q", job.FinalPath)
				}
				seen[job.FinalPath] = true
				if hasEXIF(t, job.FinalPath) {
					t.Errorf("job %d output still has EXIF", i)
				}
				after, _ := os.ReadFile(paths[i])
				if !bytes.Equal(after, originals[i]) {
					t.Errorf("source %d modified in copy mode", i)
				}
			}
			rec.assertSequence(t, len(paths))

			snap := res.Stats.Snapshot()
			if snap.Succeeded != int64(len(paths)) || snap.Copied != int64(len(paths)) {
				t.Errorf("unexpected stats: %+v", snap)
			}
			if snap.DirectoriesCreated != 1 {
				t.Errorf("DirectoriesCreated = %d, want 1", snap.DirectoriesCreated)
			}
		})
	}
}

func TestRun_FailureIsolation(t *testing.T) {
	dir := t.TempDir()
	paths := writeSources(t, dir, 3)
	backend := selectiveBackend{Backend: stripper.NewReencodeBackend(90), failOn: paths[1]}

	rec := &progressRecorder{}
	res, err := newProcessor(backend, 1).Run(context.Background(), paths, Options{}, rec.record)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	want := []Status{StatusSuccess, StatusFailed, StatusSuccess}
	for i, job := range res.Jobs {
		if job.Status != want[i] {
			t.Fatalf("job %d status = %s, want %s (err %v)", i, job.Status, want[i], job.Err)
		}
	}
	for _, i := range []int{0, 2} {
		if _, err := os.Stat(res.Jobs[i].FinalPath); err != nil {
			t.Errorf("output of job %d missing: %v", i, err)
		}
	}

	failed := res.Jobs[1]
	if failed.ErrorKind != KindStrip {
		t.Errorf("ErrorKind = %q, want %q", failed.ErrorKind, KindStrip)
	}
	if failed.DestPath == "" {
		t.Errorf("failed strip should keep its resolved destination")
	}
	if _, err := os.Stat(failed.DestPath); !os.IsNotExist(err) {
		t.Errorf("failed strip left a file at %s", failed.DestPath)
	}
	rec.assertSequence(t, 3)

	if res.Failed() != 1 {
		t.Errorf("Failed() = %d, want 1", res.Failed())
	}
	if res.Stats.Snapshot().ErrorsByKind[KindStrip] != 1 {
		t.Errorf("stats did not record the strip error")
	}
}

func TestRun_OverwriteMode(t *testing.T) {
	dir := t.TempDir()
	paths := writeSources(t, dir, 3)

	res, err := newProcessor(stripper.NewReencodeBackend(90), 1).
		Run(context.Background(), paths, Options{Overwrite: true}, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	for i, job := range res.Jobs {
		if job.Status != StatusSuccess || !job.Overwritten {
			t.Fatalf("job %d = %+v", i, job)
		}
		if _, err := os.Stat(paths[i]); !os.IsNotExist(err) {
			t.Errorf("original %s still exists", paths[i])
		}
		if filepath.Dir(job.FinalPath) != dir {
			t.Errorf("renamed file %q not in source directory", job.FinalPath)
		}
		if job.FinalPath != job.DestPath {
			t.Errorf("renamed file %q, want resolved destination %q", job.FinalPath, job.DestPath)
		}
		if hasEXIF(t, job.FinalPath) {
			t.Errorf("renamed file %s still has EXIF", job.FinalPath)
		}
	}
	if res.Stats.Snapshot().Overwritten != 3 {
		t.Errorf("expected 3 overwritten in stats")
	}
}

func TestRun_PostStripRenameFailure(t *testing.T) {
	dir := t.TempDir()
	src := writeSources(t, dir, 1)[0]

	// A non-empty directory squatting on the target name makes the rename fail.
	blocker := filepath.Join(dir, "fixed.jpg")
	if err := os.MkdirAll(filepath.Join(blocker, "keep"), 0755); err != nil {
		t.Fatal(err)
	}

	log := logger.Discard()
	namer := naming.NewNamer("").WithIdentifierSource(func() string { return "fixed" })
	p := NewProcessor(namer, stripper.NewMetadataStripper(stripper.NewReencodeBackend(90), log), log, 1)

	res, err := p.Run(context.Background(), []string{src}, Options{Overwrite: true}, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	job := res.Jobs[0]
	if job.Status != StatusFailed || job.ErrorKind != KindRename {
		t.Fatalf("expected post-strip rename failure, got %s/%s: %v", job.Status, job.ErrorKind, job.Err)
	}
	if !strings.Contains(job.Message(), "stripped") {
		t.Errorf("message should explain the stripped state: %q", job.Message())
	}

	var re *stripper.RenameError
	if !errors.As(job.Err, &re) {
		t.Fatalf("expected RenameError, got %T", job.Err)
	}
	if got := job.Outcome().Dest; got != re.Target || got != blocker {
		t.Errorf("outcome dest = %q, want rename target %q", got, re.Target)
	}
	if hasEXIF(t, src) {
		t.Errorf("file at original path should already be stripped")
	}
}

func TestRun_DirectoryResolutionFailure(t *testing.T) {
	dir := t.TempDir()
	paths := writeSources(t, dir, 2)
	blocker := filepath.Join(dir, "not-a-dir")
	if err := os.WriteFile(blocker, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	rec := &progressRecorder{}
	res, err := newProcessor(stripper.NewReencodeBackend(90), 1).
		Run(context.Background(), paths, Options{OutputDir: filepath.Join(blocker, "out")}, rec.record)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	for i, job := range res.Jobs {
		if job.Status != StatusFailed || job.ErrorKind != KindDirectory {
			t.Errorf("job %d = %s/%s", i, job.Status, job.ErrorKind)
		}
		if job.DestPath != "" {
			t.Errorf("job %d should have no destination after resolution failure", i)
		}
	}
	rec.assertSequence(t, 2)
}

func TestRun_CancelledBeforeStart(t *testing.T) {
	dir := t.TempDir()
	paths := writeSources(t, dir, 3)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rec := &progressRecorder{}
	res, err := newProcessor(stripper.NewReencodeBackend(90), 2).Run(ctx, paths, Options{}, rec.record)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	for i, job := range res.Jobs {
		if job.ErrorKind != KindCancelled {
			t.Errorf("job %d kind = %q, want cancelled", i, job.ErrorKind)
		}
	}
	rec.assertSequence(t, 3)
	if _, err := os.Stat(filepath.Join(dir, "cleaned")); !os.IsNotExist(err) {
		t.Errorf("cancelled batch created output directory")
	}
}

func TestRun_ProgressReportsBaseNames(t *testing.T) {
	dir := t.TempDir()
	paths := writeSources(t, dir, 2)

	rec := &progressRecorder{}
	if _, err := newProcessor(stripper.NewReencodeBackend(90), 1).
		Run(context.Background(), paths, Options{}, rec.record); err != nil {
		t.Fatalf("Run: %v", err)
	}
	for i, ev := range rec.events {
		if ev.File != filepath.Base(paths[i]) {
			t.Errorf("event %d file = %q, want %q", i, ev.File, filepath.Base(paths[i]))
		}
	}
}

func TestOutcome_JSON(t *testing.T) {
	ok := FileJob{SourcePath: "/a/x.jpg", DestPath: "/a/cleaned/id.jpg", FinalPath: "/a/cleaned/id.jpg", Status: StatusSuccess}
	bad := FileJob{SourcePath: "/a/y.jpg", Status: StatusPending}
	bad.fail(&naming.DirectoryError{Dir: "/a/cleaned", Err: os.ErrPermission})

	data, err := json.Marshal([]FileJob{ok, bad})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var got []map[string]interface{}
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}

	if got[0]["status"] != "ok" || got[0]["dest"] != "/a/cleaned/id.jpg" || got[0]["overwritten"] != false {
		t.Errorf("unexpected success outcome: %v", got[0])
	}
	if _, has := got[0]["error"]; has {
		t.Errorf("success outcome must not carry error")
	}

	if got[1]["status"] != "error" || got[1]["error_kind"] != KindDirectory {
		t.Errorf("unexpected failure outcome: %v", got[1])
	}
	for _, key := range []string{"dest", "overwritten"} {
		if _, has := got[1][key]; has {
			t.Errorf("failure outcome must not carry %q", key)
		}
	}
}

func TestFileJob_StatusIsFinal(t *testing.T) {
	j := newJob("/a.jpg")
	j.succeed("/b.jpg", false)
	j.fail(errors.New("late"))
	if j.Status != StatusSuccess || j.Err != nil {
		t.Errorf("status changed after success: %+v", j)
	}

	j.setDestination("/first.jpg")
	j.setDestination("/second.jpg")
	if j.DestPath != "/first.jpg" {
		t.Errorf("destination mutated: %q", j.DestPath)
	}
}
