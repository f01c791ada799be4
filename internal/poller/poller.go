package poller

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ligustah/milvue/internal/http"
)

// StatusDone is the terminal status reported once results are available.
const StatusDone = "done"

// DefaultInterval is the pause between two status requests.
const DefaultInterval = 3 * time.Second

// ErrMaxAttempts is returned when a study is still pending after the
// configured number of status requests.
var ErrMaxAttempts = errors.New("poller: maximum poll attempts reached")

// StatusFetcher issues a single status request.
type StatusFetcher interface {
	Status(ctx context.Context, studyKey string) (*http.StatusResponse, error)
}

// Options configures a Poller.
type Options struct {
	// Interval between consecutive requests.
	// Default: 3s
	Interval time.Duration

	// MaxAttempts caps the number of status requests. Zero means no cap;
	// the context deadline is then the only bound.
	MaxAttempts int

	Logger *zap.Logger
}

// Poller waits for studies to reach the terminal status.
type Poller struct {
	fetcher StatusFetcher
	opts    Options
	sleep   func(ctx context.Context, d time.Duration) error
}

// New creates a Poller.
func New(fetcher StatusFetcher, opts Options) *Poller {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Poller{
		fetcher: fetcher,
		opts:    opts,
		sleep:   sleep,
	}
}

// Wait polls until the study reports StatusDone and returns that final
// response. Any request error ends the wait immediately.
func (p *Poller) Wait(ctx context.Context, studyKey string) (*http.StatusResponse, error) {
	for attempt := 1; ; attempt++ {
		status, err := p.fetcher.Status(ctx, studyKey)
		if err != nil {
			return nil, fmt.Errorf("poll %s (attempt %d): %w", studyKey, attempt, err)
		}

		p.opts.Logger.Debug("polled status",
			zap.String("study", studyKey),
			zap.Int("attempt", attempt),
			zap.String("status", status.Status),
			zap.String("message", status.Message),
		)

		if status.Status == StatusDone {
			return status, nil
		}
		if p.opts.MaxAttempts > 0 && attempt >= p.opts.MaxAttempts {
			return nil, fmt.Errorf("%w: %s still %q after %d attempts", ErrMaxAttempts, studyKey, status.Status, attempt)
		}

		if err := p.sleep(ctx, p.opts.Interval); err != nil {
			return nil, fmt.Errorf("poll %s: %w", studyKey, err)
		}
	}
}

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
