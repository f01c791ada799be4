package main

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ligustah/milvue/internal/config"
	"github.com/ligustah/milvue/internal/dicomfile"
	"github.com/ligustah/milvue/internal/inventory"
	"github.com/ligustah/milvue/internal/output"
	"github.com/ligustah/milvue/internal/pipeline"
)

type runFlags struct {
	params           paramFlags
	outputDir        string
	recursive        bool
	pollInterval     time.Duration
	maxPollAttempts  int
	studyTimeout     time.Duration
	maxStudies       int
	maxUploads       int
	maxDownloads     int
	uploadBarrier    bool
	eventBuffer      int
	failOnStudyError bool
	noProgress       bool
}

func newRunCmd(g *globalFlags, stdout, stderr io.Writer) *cobra.Command {
	f := &runFlags{}

	cmd := &cobra.Command{
		Use:   "run [paths...]",
		Short: "Upload studies, wait for predictions and download the results",
		Long: `Run reads every DICOM file under the given paths, groups the files by
study and sends each study to the service. Once a study is predicted,
one result request is made per selected inference command and the
returned files are written to <output-dir>/<study>/<sop>.dcm.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.loadConfig(cmd)
			if err != nil {
				return err
			}
			f.apply(cmd, &cfg)
			if err := cfg.Validate(); err != nil {
				return withExit(ExitInvalidArgs, err)
			}

			a, err := g.setup(cfg, stdout, stderr)
			if err != nil {
				return err
			}
			defer a.close()
			return a.run(cmd, args)
		},
	}

	fs := cmd.Flags()
	f.params.bind(fs)
	fs.StringVarP(&f.outputDir, "output-dir", "o", "", "Directory results are written to (default \".\")")
	fs.BoolVarP(&f.recursive, "recursive", "r", false, "Descend into subdirectories")
	fs.DurationVar(&f.pollInterval, "poll-interval", 0, "Delay between status requests (default 3s)")
	fs.IntVar(&f.maxPollAttempts, "max-poll-attempts", 0, "Give up on a study after this many status requests (0 = never)")
	fs.DurationVar(&f.studyTimeout, "study-timeout", 0, "Maximum active time per study (0 = none)")
	fs.IntVar(&f.maxStudies, "max-studies", 0, "Studies processed concurrently (default 8)")
	fs.IntVar(&f.maxUploads, "max-uploads", 0, "Uploads in flight (default 4)")
	fs.IntVar(&f.maxDownloads, "max-downloads", 0, "Downloads in flight (default 8)")
	fs.BoolVar(&f.uploadBarrier, "upload-barrier", false, "Upload every study before polling any")
	fs.IntVar(&f.eventBuffer, "event-buffer", 0, "Capacity of the progress event queue (default 1024)")
	fs.BoolVar(&f.failOnStudyError, "fail-on-study-error", false, "Exit with a non-zero code when a study fails")
	fs.BoolVar(&f.noProgress, "no-progress", false, "Disable the progress bar")
	return cmd
}

func (f *runFlags) apply(cmd *cobra.Command, cfg *config.Config) {
	f.params.apply(cmd, cfg)

	if changed(cmd, "output-dir") {
		cfg.OutputDir = f.outputDir
	}
	if changed(cmd, "recursive") {
		cfg.Recursive = f.recursive
	}
	if changed(cmd, "poll-interval") {
		cfg.Poll.Interval = f.pollInterval
	}
	if changed(cmd, "max-poll-attempts") {
		cfg.Poll.MaxAttempts = f.maxPollAttempts
	}
	if changed(cmd, "study-timeout") {
		cfg.StudyTimeout = f.studyTimeout
	}
	if changed(cmd, "max-studies") {
		cfg.Concurrency.Studies = f.maxStudies
	}
	if changed(cmd, "max-uploads") {
		cfg.Concurrency.Uploads = f.maxUploads
	}
	if changed(cmd, "max-downloads") {
		cfg.Concurrency.Downloads = f.maxDownloads
	}
	if changed(cmd, "upload-barrier") {
		cfg.UploadBarrier = f.uploadBarrier
	}
	if changed(cmd, "event-buffer") {
		cfg.EventBuffer = f.eventBuffer
	}
	if changed(cmd, "fail-on-study-error") {
		cfg.FailOnStudyError = f.failOnStudyError
	}
	if changed(cmd, "no-progress") {
		cfg.Progress = !f.noProgress
	}
}

func (a *app) run(cmd *cobra.Command, args []string) error {
	if len(args) == 0 {
		return withExit(ExitNoInput, errors.New("no input paths given"))
	}

	paths, err := inventory.Discover(args, a.cfg.Recursive)
	if err != nil {
		return withExit(ExitNoInput, err)
	}

	reader := dicomfile.NewReader()
	inv := inventory.NewBuilder(reader, a.logger).Build(paths)
	if inv == nil {
		a.logger.Warn("no DICOM files found, nothing to do", zap.Strings("inputs", args))
		return nil
	}

	sink, err := output.OpenDir(a.cfg.OutputDir)
	if err != nil {
		return err
	}
	defer sink.Close()

	sets, err := a.cfg.ParameterSets()
	if err != nil {
		return withExit(ExitInvalidArgs, err)
	}

	var progressOut io.Writer
	if a.cfg.Progress && isTerminal(a.stderr) {
		progressOut = a.stderr
	}

	orch := pipeline.New(a.client, reader, sink, pipeline.Options{
		ParameterSets:          sets,
		PollInterval:           a.cfg.Poll.Interval,
		MaxPollAttempts:        a.cfg.Poll.MaxAttempts,
		StudyTimeout:           a.cfg.StudyTimeout,
		MaxConcurrentStudies:   a.cfg.Concurrency.Studies,
		MaxConcurrentUploads:   a.cfg.Concurrency.Uploads,
		MaxConcurrentDownloads: a.cfg.Concurrency.Downloads,
		UploadBarrier:          a.cfg.UploadBarrier,
		FailOnStudyError:       a.cfg.FailOnStudyError,
		EventBuffer:            a.cfg.EventBuffer,
		Progress:               progressOut,
		Logger:                 a.logger,
	})

	summary, err := orch.Run(cmd.Context(), inv)
	if summary != nil {
		fmt.Fprintln(a.stdout, renderSummary(summary))
	}
	switch {
	case err == nil:
		return nil
	case errors.Is(err, pipeline.ErrStudiesFailed):
		return withExit(ExitStudyFailed, err)
	default:
		return err
	}
}
