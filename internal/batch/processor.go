// Package batch drives a list of files through naming and metadata stripping,
// isolating per-file failures and reporting progress in input order.
package batch

import (
	"context"
	"path/filepath"
	"sync"

	"metadata-cleaner/internal/logger"
	"metadata-cleaner/internal/naming"
	"metadata-cleaner/internal/statistics"
	"metadata-cleaner/internal/stripper"

	"github.com/sirupsen/logrus"
)

// Processor runs cleaning batches.
type Processor struct {
	namer    *naming.Namer
	stripper *stripper.MetadataStripper
	logger   *logrus.Logger
	workers  int
}

// NewProcessor returns a Processor. workers <= 1 processes files strictly one after another.
func NewProcessor(namer *naming.Namer, s *stripper.MetadataStripper, log *logrus.Logger, workers int) *Processor {
	if workers < 1 {
		workers = 1
	}
	return &Processor{
		namer:    namer,
		stripper: s,
		logger:   log,
		workers:  workers,
	}
}

// Run cleans every path and returns one FileJob per path, in input order.
//
// Only an empty path list fails the whole batch (ErrNoFiles). Per-file failures are
// recorded on the job and never stop the remaining files. onProgress, if set, is
// called exactly once per path with completed counts 1..N. Cancelling ctx marks
// files that have not started yet as failed without touching them.
func (p *Processor) Run(ctx context.Context, paths []string, opts Options, onProgress ProgressFunc) (*Result, error) {
	if len(paths) == 0 {
		return nil, ErrNoFiles
	}

	stats := statistics.NewStatistics()
	stats.SetTotal(len(paths))

	jobs := make([]FileJob, len(paths))
	for i, path := range paths {
		jobs[i] = newJob(path)
	}

	p.logger.WithFields(logrus.Fields{
		"files":     len(paths),
		"overwrite": opts.Overwrite,
		"output":    opts.OutputDir,
		"workers":   p.workers,
	}).Info("Starting metadata cleaning batch")

	tracker := &progressTracker{total: len(paths), emit: onProgress}

	if p.workers == 1 || len(jobs) == 1 {
		for i := range jobs {
			p.processJob(ctx, &jobs[i], opts, stats)
			tracker.done(jobs[i].SourcePath)
		}
	} else {
		p.runParallel(ctx, jobs, opts, stats, tracker)
	}

	stats.Finalize()
	snap := stats.Snapshot()
	p.logger.WithFields(logrus.Fields{
		"succeeded":   snap.Succeeded,
		"failed":      snap.Failed,
		"duration_ms": snap.DurationMillis,
	}).Info("Metadata cleaning batch completed")

	return &Result{Jobs: jobs, Stats: stats}, nil
}

// runParallel fans jobs out to a bounded pool. Each worker writes only its own
// slot in jobs, so the slice stays in input order without a reorder step.
func (p *Processor) runParallel(ctx context.Context, jobs []FileJob, opts Options, stats *statistics.Statistics, tracker *progressTracker) {
	workers := min(p.workers, len(jobs))
	indexes := make(chan int, len(jobs))

	var wg sync.WaitGroup
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func() {
			defer wg.Done()
			for i := range indexes {
				p.processJob(ctx, &jobs[i], opts, stats)
				tracker.done(jobs[i].SourcePath)
			}
		}()
	}

	for i := range jobs {
		indexes <- i
	}
	close(indexes)

	wg.Wait()
}

// processJob resolves, strips and records the outcome of a single file.
func (p *Processor) processJob(ctx context.Context, job *FileJob, opts Options, stats *statistics.Statistics) {
	stats.IncrementFilesProcessed()
	log := logger.WithFile(p.logger, job.SourcePath)

	if err := ctx.Err(); err != nil {
		p.recordFailure(job, err, stats, log)
		return
	}

	res, err := p.namer.Resolve(job.SourcePath, opts.OutputDir)
	if err != nil {
		p.recordFailure(job, err, stats, log)
		return
	}
	if res.DirCreated {
		stats.IncrementDirectoriesCreated()
		log.Debugf("Created output directory %s", res.OutputDir)
	}
	// In overwrite mode the identifier names the stripped original in its own directory.
	dest := res.DestPath
	if opts.Overwrite {
		dest = filepath.Join(filepath.Dir(job.SourcePath), filepath.Base(res.DestPath))
	}
	job.setDestination(dest)

	out, err := p.stripper.Strip(job.SourcePath, job.DestPath, opts.Overwrite)
	if err != nil {
		p.recordFailure(job, err, stats, log)
		return
	}

	job.succeed(out.FinalPath, out.Overwritten)
	stats.RecordSuccess(out.Overwritten, out.Size)
	log.WithFields(logrus.Fields{
		"dest":        out.FinalPath,
		"overwritten": out.Overwritten,
	}).Info("Cleaned file")
}

func (p *Processor) recordFailure(job *FileJob, err error, stats *statistics.Statistics, log *logrus.Entry) {
	job.fail(err)
	stats.AddError(job.SourcePath, job.ErrorKind, err.Error())
	log.WithField("kind", job.ErrorKind).Errorf("Could not clean file: %v", err)
}

// progressTracker numbers completions globally. The lock is held while emitting
// so that events leave in the same order their counts were assigned.
type progressTracker struct {
	mu        sync.Mutex
	completed int
	total     int
	emit      ProgressFunc
}

func (t *progressTracker) done(src string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.completed++
	if t.emit != nil {
		t.emit(Progress{Index: t.completed, Total: t.total, File: filepath.Base(src)})
	}
}
