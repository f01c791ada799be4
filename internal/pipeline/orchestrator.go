package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/ligustah/milvue/internal/http"
	"github.com/ligustah/milvue/internal/inventory"
	"github.com/ligustah/milvue/internal/params"
	"github.com/ligustah/milvue/internal/poller"
	"github.com/ligustah/milvue/internal/progress"
	"github.com/ligustah/milvue/internal/results"
	"github.com/ligustah/milvue/pkg/bundle"
)

var (
	// ErrNoStudies is returned when the inventory holds no study.
	ErrNoStudies = errors.New("pipeline: no studies to process")

	// ErrStudiesFailed is returned when FailOnStudyError is set and at
	// least one study did not complete cleanly.
	ErrStudiesFailed = errors.New("pipeline: studies failed")
)

// API is the subset of the service client the pipeline drives.
type API interface {
	UploadStudy(ctx context.Context, studyKey string, sources []bundle.Source) error
	Status(ctx context.Context, studyKey string) (*http.StatusResponse, error)
	Download(ctx context.Context, studyKey string, query url.Values) (*http.Result, error)
}

// Options configures the Orchestrator.
type Options struct {
	// ParameterSets are requested for every study. At least one is required.
	ParameterSets []params.Set

	// PollInterval between status requests.
	// Default: 3s
	PollInterval time.Duration

	// MaxPollAttempts caps status requests per study. 0 means no cap.
	MaxPollAttempts int

	// StudyTimeout bounds the active work of one study, excluding time
	// spent waiting for other studies' uploads. 0 means no bound.
	StudyTimeout time.Duration

	// MaxConcurrentStudies is the number of study workers.
	// Default: 8
	MaxConcurrentStudies int

	// MaxConcurrentUploads bounds uploads in flight. 0 means no bound
	// beyond MaxConcurrentStudies.
	MaxConcurrentUploads int

	// MaxConcurrentDownloads bounds downloads in flight across all
	// studies. 0 means no bound.
	MaxConcurrentDownloads int

	// UploadBarrier makes every study finish its upload, successfully or
	// not, before any study starts polling.
	UploadBarrier bool

	// FailOnStudyError makes Run return ErrStudiesFailed when a study
	// fails.
	FailOnStudyError bool

	// EventBuffer is the capacity of the event channel.
	// Default: 1024
	EventBuffer int

	// Progress receives the progress bar. Nil disables it.
	Progress io.Writer

	Logger *zap.Logger
}

// Orchestrator drives every study of an inventory through upload, status
// polling and result download.
type Orchestrator struct {
	api    API
	parser results.PartParser
	sink   results.Writer
	opts   Options
}

// New creates an Orchestrator. parser reads the identifiers of downloaded
// files and sink stores them.
func New(api API, parser results.PartParser, sink results.Writer, opts Options) *Orchestrator {
	if opts.MaxConcurrentStudies <= 0 {
		opts.MaxConcurrentStudies = 8
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = poller.DefaultInterval
	}
	if opts.EventBuffer <= 0 {
		opts.EventBuffer = progress.DefaultBuffer
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Orchestrator{
		api:    api,
		parser: parser,
		sink:   sink,
		opts:   opts,
	}
}

// Run processes every study of inv and returns once all of them have
// finished. A failing study never stops the others; its error is recorded
// in the Summary. The returned error is non-nil only for run-level
// problems: no parameter sets, an empty inventory, a canceled context, or
// failed studies under FailOnStudyError.
func (o *Orchestrator) Run(ctx context.Context, inv *inventory.Inventory) (*Summary, error) {
	if len(o.opts.ParameterSets) == 0 {
		return nil, params.ErrNoInferenceCommand
	}
	if inv.Len() == 0 {
		return nil, ErrNoStudies
	}

	start := time.Now()
	runID := uuid.NewString()
	logger := o.opts.Logger.With(zap.String("run", runID))

	bus := progress.NewBus(progress.Options{
		Buffer: o.opts.EventBuffer,
		Total:  inv.Len(),
		Output: o.opts.Progress,
		Logger: logger,
	})
	bus.Start()

	w := o.newWorker(bus, logger)

	studies := inv.Studies()
	runs := make([]*studyRun, len(studies))
	for i, s := range studies {
		runs[i] = newStudyRun(s, logger)
	}

	logger.Info("starting run",
		zap.Int("studies", len(runs)),
		zap.Int("files", inv.Files()),
		zap.Int("parameter_sets", len(o.opts.ParameterSets)),
		zap.Bool("upload_barrier", o.opts.UploadBarrier),
	)

	if o.opts.UploadBarrier {
		o.runPool(ctx, runs, w.upload)

		var uploaded []*studyRun
		for _, r := range runs {
			if !r.result.Stage.Terminal() {
				uploaded = append(uploaded, r)
			}
		}
		logger.Info("upload phase complete",
			zap.Int("uploaded", len(uploaded)),
			zap.Int("failed", len(runs)-len(uploaded)),
		)
		o.runPool(ctx, uploaded, w.process)
	} else {
		o.runPool(ctx, runs, func(ctx context.Context, r *studyRun) {
			w.upload(ctx, r)
			if !r.result.Stage.Terminal() {
				w.process(ctx, r)
			}
		})
	}

	summary := &Summary{
		RunID:   runID,
		Studies: make([]StudyResult, len(runs)),
		Counts:  bus.Close(),
		Elapsed: time.Since(start),
	}
	for i, r := range runs {
		summary.Studies[i] = r.result
	}

	failed := len(summary.Failed())
	logger.Info("run finished",
		zap.Int("studies", len(runs)),
		zap.Int("failed", failed),
		zap.Int("outputs", summary.Outputs()),
		zap.Duration("elapsed", summary.Elapsed),
	)

	if err := ctx.Err(); err != nil {
		return summary, err
	}
	if o.opts.FailOnStudyError && failed > 0 {
		return summary, fmt.Errorf("%w: %d of %d", ErrStudiesFailed, failed, len(runs))
	}
	return summary, nil
}

func (o *Orchestrator) newWorker(bus *progress.Bus, logger *zap.Logger) *worker {
	var uploads, downloads *semaphore.Weighted
	if o.opts.MaxConcurrentUploads > 0 {
		uploads = semaphore.NewWeighted(int64(o.opts.MaxConcurrentUploads))
	}
	if o.opts.MaxConcurrentDownloads > 0 {
		downloads = semaphore.NewWeighted(int64(o.opts.MaxConcurrentDownloads))
	}

	return &worker{
		api:     o.api,
		sets:    o.opts.ParameterSets,
		timeout: o.opts.StudyTimeout,
		uploads: uploads,
		bus:     bus,
		barrier: o.opts.UploadBarrier,
		poller: poller.New(o.api, poller.Options{
			Interval:    o.opts.PollInterval,
			MaxAttempts: o.opts.MaxPollAttempts,
			Logger:      logger,
		}),
		fanout: results.New(o.api, o.parser, o.sink, results.Options{
			Limiter: downloads,
			Logger:  logger,
		}),
	}
}

// runPool feeds runs to MaxConcurrentStudies workers and waits for all of
// them. A panic in stage fails only the study being processed.
func (o *Orchestrator) runPool(ctx context.Context, runs []*studyRun, stage func(context.Context, *studyRun)) {
	workers := min(o.opts.MaxConcurrentStudies, len(runs))
	jobs := make(chan *studyRun, workers)
	var wg sync.WaitGroup

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for r := range jobs {
				runSafely(ctx, r, stage)
			}
		}()
	}

	for _, r := range runs {
		jobs <- r
	}
	close(jobs)

	wg.Wait()
}

func runSafely(ctx context.Context, r *studyRun, stage func(context.Context, *studyRun)) {
	defer func() {
		if p := recover(); p != nil {
			r.fail(fmt.Errorf("panic: %v", p))
		}
	}()
	stage(ctx, r)
}
