package progress

import (
	"context"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/schollz/progressbar/v3"
	"go.uber.org/zap"
)

// DefaultBuffer is the capacity of the event channel.
const DefaultBuffer = 1024

// Kind identifies a study lifecycle event.
type Kind int

const (
	Uploaded Kind = iota + 1
	Predicted
	Downloaded
)

func (k Kind) String() string {
	switch k {
	case Uploaded:
		return "uploaded"
	case Predicted:
		return "predicted"
	case Downloaded:
		return "downloaded"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Event is emitted once per lifecycle step of a study.
type Event struct {
	Kind     Kind
	StudyKey string
	// Files is the number of files uploaded or written.
	Files int
	At    time.Time
}

// Counts aggregates the events seen so far.
type Counts struct {
	Uploaded      int
	Predicted     int
	Downloaded    int
	FilesUploaded int
	FilesWritten  int
}

// Options configures a Bus.
type Options struct {
	// Buffer is the event channel capacity.
	// Default: 1024
	Buffer int

	// Total is the number of studies in the run, used to size the bar.
	Total int

	// Output receives the progress bar and final status line. Nil disables
	// both.
	Output io.Writer

	Logger *zap.Logger
}

// Bus is a multi-producer, single-consumer event channel. It only
// observes: nothing it does feeds back into the workers.
type Bus struct {
	opts Options
	ch   chan Event
	done chan struct{}
	bar  *progressbar.ProgressBar

	uploaded      atomic.Int32
	predicted     atomic.Int32
	downloaded    atomic.Int32
	filesUploaded atomic.Int32
	filesWritten  atomic.Int32

	startTime time.Time
	startOnce sync.Once
	closeOnce sync.Once
}

// NewBus creates a Bus. Call Start before publishing.
func NewBus(opts Options) *Bus {
	if opts.Buffer <= 0 {
		opts.Buffer = DefaultBuffer
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	b := &Bus{
		opts: opts,
		ch:   make(chan Event, opts.Buffer),
		done: make(chan struct{}),
	}
	if opts.Output != nil && opts.Total > 0 {
		b.bar = progressbar.NewOptions(opts.Total,
			progressbar.OptionSetWriter(opts.Output),
			progressbar.OptionSetDescription("[milvue] processing"),
			progressbar.OptionSetWidth(30),
			progressbar.OptionShowCount(),
			progressbar.OptionClearOnFinish(),
		)
	}
	return b
}

// Start launches the consumer.
func (b *Bus) Start() {
	b.startOnce.Do(func() {
		b.startTime = time.Now()
		go b.consume()
	})
}

// Publish queues an event, blocking while the buffer is full.
// Publishing after Close panics.
func (b *Bus) Publish(ctx context.Context, ev Event) error {
	if ev.At.IsZero() {
		ev.At = time.Now()
	}
	select {
	case b.ch <- ev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting events, waits for the consumer to drain the
// channel and returns the final counts.
func (b *Bus) Close() Counts {
	b.closeOnce.Do(func() {
		b.Start()
		close(b.ch)
		<-b.done
		b.printFinalStatus()
	})
	return b.Counts()
}

// Counts returns a snapshot of the aggregated events.
func (b *Bus) Counts() Counts {
	return Counts{
		Uploaded:      int(b.uploaded.Load()),
		Predicted:     int(b.predicted.Load()),
		Downloaded:    int(b.downloaded.Load()),
		FilesUploaded: int(b.filesUploaded.Load()),
		FilesWritten:  int(b.filesWritten.Load()),
	}
}

func (b *Bus) consume() {
	defer close(b.done)

	for ev := range b.ch {
		switch ev.Kind {
		case Uploaded:
			b.uploaded.Add(1)
			b.filesUploaded.Add(int32(ev.Files))
		case Predicted:
			b.predicted.Add(1)
		case Downloaded:
			b.downloaded.Add(1)
			b.filesWritten.Add(int32(ev.Files))
			if b.bar != nil {
				_ = b.bar.Add(1)
			}
		}

		b.opts.Logger.Debug("event",
			zap.Stringer("kind", ev.Kind),
			zap.String("study", ev.StudyKey),
			zap.Int("files", ev.Files),
		)
		if b.bar != nil {
			b.bar.Describe(fmt.Sprintf("[milvue] %d uploaded | %d predicted",
				b.uploaded.Load(), b.predicted.Load()))
		}
	}
}

// printFinalStatus outputs the final status line.
func (b *Bus) printFinalStatus() {
	if b.opts.Output == nil {
		return
	}
	if b.bar != nil {
		_ = b.bar.Finish()
	}

	c := b.Counts()
	fmt.Fprintf(b.opts.Output, "[milvue] Studies: %d uploaded | %d predicted | %d downloaded | Files written: %d | Total time: %s\n",
		c.Uploaded,
		c.Predicted,
		c.Downloaded,
		c.FilesWritten,
		formatDuration(time.Since(b.startTime)),
	)
}

// formatDuration formats a duration as a human-readable string.
func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%.0fs", d.Seconds())
	}
	if d < time.Hour {
		m := int(d.Minutes())
		s := int(d.Seconds()) % 60
		return fmt.Sprintf("%dm %ds", m, s)
	}
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	return fmt.Sprintf("%dh %dm %ds", h, m, s)
}
