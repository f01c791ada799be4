package results

import (
	"context"
	"fmt"
	"net/url"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/ligustah/milvue/internal/dicomfile"
	"github.com/ligustah/milvue/internal/http"
	"github.com/ligustah/milvue/internal/params"
	"github.com/ligustah/milvue/pkg/bundle"
)

// Downloader issues one results request.
type Downloader interface {
	Download(ctx context.Context, studyKey string, query url.Values) (*http.Result, error)
}

// PartParser reads the identifiers of a downloaded result file.
type PartParser interface {
	ReadBytes(data []byte) (dicomfile.Attributes, error)
}

// Writer persists one result file and returns where it went.
type Writer interface {
	Write(ctx context.Context, studyKey, name string, data []byte) (string, error)
}

// Options configures a Fanout.
type Options struct {
	// Limiter bounds in-flight downloads across every study sharing it.
	// Nil means no global bound.
	Limiter *semaphore.Weighted

	// MaxParallel bounds concurrent downloads for one study.
	// Default: 0 (one task per parameter set)
	MaxParallel int

	Logger *zap.Logger
}

// Outcome is the result of one parameter set.
type Outcome struct {
	Params params.Set
	Files  []string
	Err    error
}

// Empty reports whether the service had nothing to return.
func (o Outcome) Empty() bool {
	return o.Err == nil && len(o.Files) == 0
}

// Fanout downloads every requested parameter set of a study concurrently.
type Fanout struct {
	client Downloader
	parser PartParser
	writer Writer
	opts   Options
}

// New creates a Fanout.
func New(client Downloader, parser PartParser, writer Writer, opts Options) *Fanout {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Fanout{
		client: client,
		parser: parser,
		writer: writer,
		opts:   opts,
	}
}

// Run downloads every set and returns one Outcome per set, in the order
// given. It returns only once every task has finished. A failing set never
// cancels the others.
func (f *Fanout) Run(ctx context.Context, studyKey string, sets []params.Set) []Outcome {
	outcomes := make([]Outcome, len(sets))

	var g errgroup.Group
	if f.opts.MaxParallel > 0 {
		g.SetLimit(f.opts.MaxParallel)
	}
	for i, set := range sets {
		g.Go(func() error {
			files, err := f.fetch(ctx, studyKey, set)
			outcomes[i] = Outcome{Params: set, Files: files, Err: err}
			return nil
		})
	}
	g.Wait()

	return outcomes
}

func (f *Fanout) fetch(ctx context.Context, studyKey string, set params.Set) ([]string, error) {
	logger := f.opts.Logger.With(
		zap.String("study", studyKey),
		zap.String("inference_command", string(set.InferenceCommand)),
	)

	if f.opts.Limiter != nil {
		if err := f.opts.Limiter.Acquire(ctx, 1); err != nil {
			return nil, err
		}
		defer f.opts.Limiter.Release(1)
	}

	res, err := f.client.Download(ctx, studyKey, set.Query())
	if err != nil {
		logger.Error("download failed", zap.Error(err))
		return nil, err
	}
	defer res.Body.Close()

	parts, err := bundle.Decode(res.ContentType, res.Body)
	if err != nil {
		logger.Error("decode failed", zap.Error(err))
		return nil, fmt.Errorf("decode %s for %s: %w", studyKey, set, err)
	}
	if len(parts) == 0 {
		logger.Info("no output for parameter set")
		return nil, nil
	}

	// A part that fails to parse invalidates the whole response, so every
	// part is checked before anything is written.
	names := make([]string, len(parts))
	for i, p := range parts {
		attrs, err := f.parser.ReadBytes(p.Data)
		if err != nil {
			logger.Error("unreadable result part", zap.String("part", p.Name), zap.Error(err))
			return nil, fmt.Errorf("result part %s of %s: %w", p.Name, studyKey, err)
		}
		names[i] = bundle.PartName(attrs.SOPInstanceUID)
	}

	files := make([]string, 0, len(parts))
	for i, p := range parts {
		key, err := f.writer.Write(ctx, studyKey, names[i], p.Data)
		if err != nil {
			logger.Error("write failed", zap.String("file", names[i]), zap.Error(err))
			return files, err
		}
		files = append(files, key)
	}

	logger.Info("saved results", zap.Int("files", len(files)))
	return files, nil
}
