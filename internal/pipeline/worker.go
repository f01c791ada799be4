package pipeline

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/ligustah/milvue/internal/inventory"
	"github.com/ligustah/milvue/internal/params"
	"github.com/ligustah/milvue/internal/poller"
	"github.com/ligustah/milvue/internal/progress"
	"github.com/ligustah/milvue/internal/results"
)

// studyRun is the mutable state of one study. Only the worker currently
// holding it touches it.
type studyRun struct {
	study  *inventory.Study
	logger *zap.Logger
	result StudyResult
	// spent is the active time consumed so far, charged against the
	// study timeout.
	spent time.Duration
}

func newStudyRun(s *inventory.Study, logger *zap.Logger) *studyRun {
	return &studyRun{
		study:  s,
		logger: logger.With(zap.String("study", s.Key)),
		result: StudyResult{
			StudyKey: s.Key,
			Stage:    StageReady,
			Files:    len(s.Entries),
		},
	}
}

func (r *studyRun) enter(stage Stage) {
	r.result.Stage = stage
	r.logger.Debug("stage", zap.Stringer("stage", stage))
}

func (r *studyRun) fail(err error) {
	if r.result.Stage.Terminal() {
		return
	}
	r.result.FailedAt = r.result.Stage
	r.result.Stage = StageFailed
	r.result.Err = err
	r.logger.Error("study failed", zap.Stringer("stage", r.result.FailedAt), zap.Error(err))
}

// budget derives a context bounded by what is left of the study timeout.
// The returned func must be called when the active step ends.
func (r *studyRun) budget(ctx context.Context, timeout time.Duration) (context.Context, func()) {
	start := time.Now()
	if timeout <= 0 {
		return ctx, func() { r.account(start) }
	}
	ctx, cancel := context.WithTimeout(ctx, timeout-r.spent)
	return ctx, func() {
		cancel()
		r.account(start)
	}
}

func (r *studyRun) account(start time.Time) {
	d := time.Since(start)
	r.spent += d
	r.result.Elapsed += d
}

// worker holds what every study shares.
type worker struct {
	api     API
	sets    []params.Set
	timeout time.Duration
	uploads *semaphore.Weighted
	bus     *progress.Bus
	barrier bool
	poller  *poller.Poller
	fanout  *results.Fanout
}

// upload sends the study. On success the study is left in StageUploaded,
// or StageWaitingToPoll when polling waits for the whole upload phase.
func (w *worker) upload(ctx context.Context, r *studyRun) {
	if err := r.study.Validate(); err != nil {
		r.fail(err)
		return
	}

	sctx, done := r.budget(ctx, w.timeout)
	defer done()

	if w.uploads != nil {
		if err := w.uploads.Acquire(sctx, 1); err != nil {
			r.fail(err)
			return
		}
		defer w.uploads.Release(1)
	}

	r.enter(StageUploading)
	r.logger.Info("uploading study", zap.Int("files", len(r.study.Entries)))
	if err := w.api.UploadStudy(sctx, r.study.Key, r.study.Sources()); err != nil {
		r.fail(err)
		return
	}

	r.enter(StageUploaded)
	w.publish(ctx, r, progress.Uploaded, len(r.study.Entries))
	if w.barrier {
		r.enter(StageWaitingToPoll)
	}
}

// process polls an uploaded study and downloads its results.
func (w *worker) process(ctx context.Context, r *studyRun) {
	sctx, done := r.budget(ctx, w.timeout)
	defer done()

	r.enter(StagePolling)
	status, err := w.poller.Wait(sctx, r.study.Key)
	if err != nil {
		r.fail(err)
		return
	}
	r.enter(StagePredicted)
	r.logger.Info("study predicted", zap.String("version", status.Version))
	w.publish(ctx, r, progress.Predicted, 0)

	r.enter(StageDownloading)
	for _, o := range w.fanout.Run(sctx, r.study.Key, w.sets) {
		r.result.Outputs = append(r.result.Outputs, o.Files...)
		switch {
		case o.Err != nil:
			r.result.SetErrors = append(r.result.SetErrors, o.Err)
		case o.Empty():
			r.result.EmptySets++
		}
	}

	r.enter(StageDone)
	r.logger.Info("study done",
		zap.Int("outputs", len(r.result.Outputs)),
		zap.Int("empty_sets", r.result.EmptySets),
		zap.Int("failed_sets", len(r.result.SetErrors)),
	)
	w.publish(ctx, r, progress.Downloaded, len(r.result.Outputs))
}

func (w *worker) publish(ctx context.Context, r *studyRun, kind progress.Kind, files int) {
	err := w.bus.Publish(ctx, progress.Event{Kind: kind, StudyKey: r.study.Key, Files: files})
	if err != nil {
		r.logger.Debug("event dropped", zap.Stringer("kind", kind), zap.Error(err))
	}
}
