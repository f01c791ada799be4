package pipeline

import (
	"errors"
	"fmt"
	"time"

	"github.com/ligustah/milvue/internal/progress"
)

// StudyResult is the outcome of one study.
type StudyResult struct {
	StudyKey string
	// Stage is StageDone or StageFailed once the run is over.
	Stage Stage
	// FailedAt is the stage that failed, when Stage is StageFailed.
	FailedAt Stage
	// Files is the number of instances in the study.
	Files int
	// Outputs are the keys of the written result files.
	Outputs []string
	// EmptySets counts parameter sets that produced no output.
	EmptySets int
	// Err is the error that stopped the study.
	Err error
	// SetErrors holds the failures of individual parameter sets of a study
	// that otherwise completed.
	SetErrors []error
	Elapsed   time.Duration
}

// OK reports whether the study completed with every parameter set
// answered.
func (r StudyResult) OK() bool {
	return r.Stage == StageDone && r.Err == nil && len(r.SetErrors) == 0
}

// Failure returns every error of the study joined, or nil.
func (r StudyResult) Failure() error {
	errs := append([]error{r.Err}, r.SetErrors...)
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("study %s: %w", r.StudyKey, err)
	}
	return nil
}

// Summary describes a whole run.
type Summary struct {
	RunID   string
	Studies []StudyResult
	Counts  progress.Counts
	Elapsed time.Duration
}

// Failed returns the studies that did not complete cleanly.
func (s *Summary) Failed() []StudyResult {
	var out []StudyResult
	for _, r := range s.Studies {
		if !r.OK() {
			out = append(out, r)
		}
	}
	return out
}

// Outputs returns the number of result files written.
func (s *Summary) Outputs() int {
	n := 0
	for _, r := range s.Studies {
		n += len(r.Outputs)
	}
	return n
}

// Err joins the errors of every failed study.
func (s *Summary) Err() error {
	var errs []error
	for _, r := range s.Studies {
		errs = append(errs, r.Failure())
	}
	return errors.Join(errs...)
}
