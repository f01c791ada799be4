package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/ligustah/milvue/internal/config"
	milvuehttp "github.com/ligustah/milvue/internal/http"
	"github.com/ligustah/milvue/internal/logging"
	"github.com/ligustah/milvue/internal/params"
)

// globalFlags are shared by every subcommand.
type globalFlags struct {
	configFile     string
	envFile        string
	apiKey         string
	apiURL         string
	env            string
	requestTimeout time.Duration
	logLevel       string
	logFormat      string
	timestamps     bool
}

// paramFlags select the parameter sets requested for each study.
type paramFlags struct {
	smartUrgences    bool
	smartXpert       bool
	language         string
	format           string
	outputSelection  string
	recapTheme       string
	staticReport     string
	structuredReport string
	timezone         string
	signedURL        bool
}

func (p *paramFlags) bind(fs *pflag.FlagSet) {
	fs.BoolVarP(&p.smartUrgences, "smarturgences", "u", false, "Request pathology detection")
	fs.BoolVarP(&p.smartXpert, "smartxpert", "x", false, "Request anatomical measurements")
	fs.StringVarP(&p.language, "language", "l", "", "Annotation language (fr, en, es, de, it, pt)")
	fs.StringVarP(&p.format, "format", "f", "", "Output format (overlay, highbit, gsps, secondary_capture)")
	fs.StringVarP(&p.outputSelection, "output-selection", "O", "", "Outputs to produce (all, no_recap, no_negatives, none)")
	fs.StringVarP(&p.recapTheme, "recap-theme", "t", "", "Recap theme (dark, light)")
	fs.StringVarP(&p.staticReport, "static-report", "s", "", "Static report format (rgb, pdf, none)")
	fs.StringVarP(&p.structuredReport, "structured-report", "S", "", "Structured report format (lite, normal, full, none)")
	fs.StringVar(&p.timezone, "timezone", "", "Timezone offset used in reports, e.g. +2")
	fs.BoolVar(&p.signedURL, "signed-url", false, "Ask the service for signed URLs")
}

func (p *paramFlags) apply(cmd *cobra.Command, cfg *config.Config) {
	var cmds []params.InferenceCommand
	if p.smartUrgences {
		cmds = append(cmds, params.SmartUrgences)
	}
	if p.smartXpert {
		cmds = append(cmds, params.SmartXpert)
	}
	if len(cmds) > 0 {
		cfg.Inference = cmds
	}

	if changed(cmd, "language") {
		cfg.Params.Language = params.Language(p.language)
	}
	if changed(cmd, "format") {
		cfg.Params.OutputFormat = params.OutputFormat(p.format)
	}
	if changed(cmd, "output-selection") {
		cfg.Params.OutputSelection = params.OutputSelection(p.outputSelection)
	}
	if changed(cmd, "recap-theme") {
		cfg.Params.RecapTheme = params.RecapTheme(p.recapTheme)
	}
	if changed(cmd, "static-report") {
		cfg.Params.StaticReportFormat = params.StaticReportFormat(p.staticReport)
	}
	if changed(cmd, "structured-report") {
		cfg.Params.StructuredReportFormat = params.StructuredReportFormat(p.structuredReport)
	}
	if changed(cmd, "timezone") {
		cfg.Params.Timezone = p.timezone
	}
	if changed(cmd, "signed-url") {
		signed := p.signedURL
		cfg.Params.SignedURL = &signed
	}
}

// app is the state a subcommand runs with once configuration is loaded.
type app struct {
	cfg    config.Config
	logger *zap.Logger
	client *milvuehttp.Client
	stdout io.Writer
	stderr io.Writer

	restoreLog func()
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	g := &globalFlags{}

	root := &cobra.Command{
		Use:   "milvue",
		Short: "Send DICOM studies to the Milvue inference service and collect the results",
		Long: `milvue uploads DICOM studies to the Milvue inference service, waits for
the predictions and writes the returned files under the output directory.

Configuration is read from defaults, then the YAML file given with
--config, then MILVUE_* environment variables (a .env file is loaded
first), then command line flags.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return withExit(ExitInvalidArgs, fmt.Errorf("%w\nRun '%s --help' for usage", err, cmd.CommandPath()))
	})

	pf := root.PersistentFlags()
	pf.StringVarP(&g.configFile, "config", "c", "", "YAML configuration file")
	pf.StringVar(&g.envFile, "env-file", ".env", "Environment file loaded before reading MILVUE_* variables")
	pf.StringVarP(&g.apiKey, "api-key", "k", "", "Service API key (MILVUE_API_KEY)")
	pf.StringVarP(&g.apiURL, "api-url", "a", "", "Service URL, overrides --env (MILVUE_API_URL)")
	pf.StringVarP(&g.env, "env", "e", "", "Service environment (default, dev, staging, prod)")
	pf.DurationVar(&g.requestTimeout, "request-timeout", 0, "Timeout of a single HTTP request (0 = none)")
	pf.StringVarP(&g.logLevel, "log-level", "L", "", "Log level (debug, info, warn, error, quiet)")
	pf.StringVar(&g.logFormat, "log-format", "", "Log format (console, json)")
	pf.BoolVarP(&g.timestamps, "timestamp", "T", false, "Add timestamps to log lines")

	root.AddCommand(
		newRunCmd(g, stdout, stderr),
		newStatusCmd(g, stdout, stderr),
		newFetchCmd(g, stdout, stderr),
		newVersionCmd(stdout),
	)
	return root
}

// loadConfig applies defaults, the config file, the environment and the
// flags set on cmd, in that order.
func (g *globalFlags) loadConfig(cmd *cobra.Command) (config.Config, error) {
	if err := config.LoadDotEnv(g.envFile); err != nil {
		return config.Config{}, withExit(ExitInvalidArgs, err)
	}

	cfg := config.Default()
	if g.configFile != "" {
		fileCfg, err := config.LoadFromFile(g.configFile)
		if err != nil {
			return config.Config{}, withExit(ExitInvalidArgs, err)
		}
		cfg = fileCfg
	}
	if err := cfg.LoadFromEnv(); err != nil {
		return config.Config{}, withExit(ExitInvalidArgs, err)
	}

	if changed(cmd, "api-key") {
		cfg.APIKey = g.apiKey
	}
	if changed(cmd, "api-url") {
		cfg.BaseURL = g.apiURL
	}
	if changed(cmd, "env") {
		environment, err := config.ParseEnvironment(g.env)
		if err != nil {
			return config.Config{}, withExit(ExitInvalidArgs, err)
		}
		cfg.Environment = environment
	}
	if changed(cmd, "request-timeout") {
		cfg.RequestTimeout = g.requestTimeout
	}
	if changed(cmd, "log-level") {
		cfg.Log.Level = g.logLevel
	}
	if changed(cmd, "log-format") {
		cfg.Log.Format = g.logFormat
	}
	if changed(cmd, "timestamp") {
		cfg.Log.Timestamps = g.timestamps
	}
	return cfg, nil
}

// setup checks the connection settings of cfg and builds the logger and
// the service client. Commands validate their own remaining settings.
func (g *globalFlags) setup(cfg config.Config, stdout, stderr io.Writer) (*app, error) {
	if err := cfg.ValidateConnection(); err != nil {
		return nil, withExit(ExitInvalidArgs, err)
	}

	logger, err := logging.New(logging.Options{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Timestamps: cfg.Log.Timestamps,
		Writer:     stderr,
	})
	if err != nil {
		return nil, withExit(ExitInvalidArgs, err)
	}

	restoreLog, err := logging.CaptureStdLog(logger)
	if err != nil {
		return nil, err
	}

	opts := milvuehttp.DefaultOptions()
	opts.BaseURL = cfg.URL()
	opts.APIKey = cfg.APIKey
	opts.Timeout = cfg.RequestTimeout
	opts.Logger = logger

	logger.Debug("configuration loaded",
		zap.String("url", opts.BaseURL),
		zap.String("environment", string(cfg.Environment)),
		zap.Any("inference", cfg.Inference),
	)

	return &app{
		cfg:        cfg,
		logger:     logger,
		client:     milvuehttp.NewClient(opts),
		stdout:     stdout,
		stderr:     stderr,
		restoreLog: restoreLog,
	}, nil
}

func (a *app) close() {
	a.restoreLog()
	a.logger.Sync() //nolint:errcheck
}

func changed(cmd *cobra.Command, name string) bool {
	f := cmd.Flag(name)
	return f != nil && f.Changed
}

// isTerminal reports whether w is an interactive terminal.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
