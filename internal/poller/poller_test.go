package poller

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ligustah/milvue/internal/http"
)

type scriptedFetcher struct {
	mu       sync.Mutex
	statuses []string
	err      error
	calls    int
}

func (f *scriptedFetcher) Status(ctx context.Context, studyKey string) (*http.StatusResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	i := f.calls - 1
	if i >= len(f.statuses) {
		i = len(f.statuses) - 1
	}
	return &http.StatusResponse{StudyInstanceUID: studyKey, Status: f.statuses[i]}, nil
}

func newTestPoller(f StatusFetcher, opts Options) (*Poller, *[]time.Duration) {
	p := New(f, opts)
	var sleeps []time.Duration
	p.sleep = func(ctx context.Context, d time.Duration) error {
		sleeps = append(sleeps, d)
		return ctx.Err()
	}
	return p, &sleeps
}

func TestWaitUntilDone(t *testing.T) {
	f := &scriptedFetcher{statuses: []string{"queued", "processing", "done"}}
	p, sleeps := newTestPoller(f, Options{})

	status, err := p.Wait(context.Background(), "1.2.3")
	require.NoError(t, err)

	assert.Equal(t, StatusDone, status.Status)
	assert.Equal(t, 3, f.calls)
	assert.Equal(t, []time.Duration{DefaultInterval, DefaultInterval}, *sleeps)
}

func TestWaitDoneImmediately(t *testing.T) {
	f := &scriptedFetcher{statuses: []string{"done"}}
	p, sleeps := newTestPoller(f, Options{})

	_, err := p.Wait(context.Background(), "1.2.3")
	require.NoError(t, err)
	assert.Equal(t, 1, f.calls)
	assert.Empty(t, *sleeps)
}

func TestWaitStatusIsExactMatch(t *testing.T) {
	f := &scriptedFetcher{statuses: []string{"Done", "done "}}
	p, _ := newTestPoller(f, Options{MaxAttempts: 5})

	_, err := p.Wait(context.Background(), "1.2.3")
	assert.True(t, errors.Is(err, ErrMaxAttempts))
	assert.Equal(t, 5, f.calls)
}

func TestWaitRequestError(t *testing.T) {
	f := &scriptedFetcher{err: http.ErrServerError}
	p, sleeps := newTestPoller(f, Options{})

	_, err := p.Wait(context.Background(), "1.2.3")
	assert.True(t, errors.Is(err, http.ErrServerError))
	assert.Equal(t, 1, f.calls)
	assert.Empty(t, *sleeps)
}

func TestWaitCanceled(t *testing.T) {
	f := &scriptedFetcher{statuses: []string{"processing"}}
	p := New(f, Options{Interval: time.Hour})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := p.Wait(ctx, "1.2.3")
	assert.True(t, errors.Is(err, context.DeadlineExceeded), "got %v", err)
	assert.Equal(t, 1, f.calls)
}

func TestSleep(t *testing.T) {
	start := time.Now()
	require.NoError(t, sleep(context.Background(), 10*time.Millisecond))
	assert.GreaterOrEqual(t, time.Since(start), 10*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, sleep(ctx, time.Hour), context.Canceled)
}
