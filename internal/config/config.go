package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/ligustah/milvue/internal/params"
)

// Validation errors.
var (
	ErrMissingAPIKey      = errors.New("config: API key is required")
	ErrMissingURL         = errors.New("config: API URL is required")
	ErrNoInferenceCommand = params.ErrNoInferenceCommand
)

// EnvPrefix prefixes every environment variable read by LoadFromEnv.
const EnvPrefix = "MILVUE_"

// Environment selects which deployment of the service to talk to.
type Environment string

const (
	EnvDefault Environment = "default"
	EnvDev     Environment = "dev"
	EnvStaging Environment = "staging"
	EnvProd    Environment = "prod"
)

// ParseEnvironment parses an environment name. The empty string is the
// default environment.
func ParseEnvironment(s string) (Environment, error) {
	switch e := Environment(strings.ToLower(strings.TrimSpace(s))); e {
	case "", EnvDefault:
		return EnvDefault, nil
	case EnvDev, EnvStaging, EnvProd:
		return e, nil
	default:
		return "", fmt.Errorf("config: unknown environment %q", s)
	}
}

// URLVariable returns the environment variable holding this
// environment's base URL.
func (e Environment) URLVariable() string {
	switch e {
	case EnvDev:
		return EnvPrefix + "API_URL_DEV"
	case EnvStaging:
		return EnvPrefix + "API_URL_STAGING"
	case EnvProd:
		return EnvPrefix + "API_URL_PROD"
	default:
		return EnvPrefix + "API_URL"
	}
}

// Config defines configuration for a pipeline run.
type Config struct {
	APIKey string
	// BaseURL is an explicit service URL. When empty, the URL registered
	// for Environment is used.
	BaseURL     string
	Environment Environment
	// EnvURLs holds the per-environment URLs read from the environment.
	EnvURLs map[Environment]string

	OutputDir string
	Recursive bool

	Inference []params.InferenceCommand
	// Params is the template every parameter set is built from. Its
	// InferenceCommand is ignored.
	Params params.Set

	Poll           PollConfig
	StudyTimeout   time.Duration
	RequestTimeout time.Duration
	Concurrency    ConcurrencyConfig

	UploadBarrier    bool
	EventBuffer      int
	FailOnStudyError bool
	Progress         bool

	Log LogConfig
}

// PollConfig defines status polling behavior.
type PollConfig struct {
	Interval    time.Duration
	MaxAttempts int
}

// ConcurrencyConfig bounds the work in flight.
type ConcurrencyConfig struct {
	Studies   int
	Uploads   int
	Downloads int
}

// LogConfig defines logger construction.
type LogConfig struct {
	Level      string
	Format     string
	Timestamps bool
}

// Default returns a Config with sensible defaults.
func Default() Config {
	return Config{
		Environment: EnvDefault,
		EnvURLs:     map[Environment]string{},
		OutputDir:   ".",
		Params: params.Set{
			OutputFormat:           params.Overlay,
			Language:               params.English,
			OutputSelection:        params.SelectAll,
			RecapTheme:             params.ThemeDark,
			StaticReportFormat:     params.StaticRGB,
			StructuredReportFormat: params.StructuredNone,
		},
		Poll: PollConfig{
			Interval: 3 * time.Second,
		},
		Concurrency: ConcurrencyConfig{
			Studies:   8,
			Uploads:   4,
			Downloads: 8,
		},
		EventBuffer: 1024,
		Progress:    true,
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// yamlConfig is used for YAML unmarshaling with string durations.
type yamlConfig struct {
	APIKey           string                `yaml:"api_key"`
	APIURL           string                `yaml:"api_url"`
	Environment      string                `yaml:"environment"`
	OutputDir        string                `yaml:"output_dir"`
	Recursive        bool                  `yaml:"recursive"`
	Inference        []string              `yaml:"inference"`
	Params           yamlParams            `yaml:"params"`
	Poll             yamlPollConfig        `yaml:"poll"`
	StudyTimeout     string                `yaml:"study_timeout"`
	RequestTimeout   string                `yaml:"request_timeout"`
	Concurrency      yamlConcurrencyConfig `yaml:"concurrency"`
	UploadBarrier    bool                  `yaml:"upload_barrier"`
	EventBuffer      int                   `yaml:"event_buffer"`
	FailOnStudyError bool                  `yaml:"fail_on_study_error"`
	Progress         *bool                 `yaml:"progress"`
	Log              yamlLogConfig         `yaml:"log"`
}

type yamlParams struct {
	SignedURL              *bool  `yaml:"signed_url"`
	OutputFormat           string `yaml:"output_format"`
	Language               string `yaml:"language"`
	Timezone               string `yaml:"timezone"`
	OutputSelection        string `yaml:"output_selection"`
	RecapTheme             string `yaml:"recap_theme"`
	StructuredReportFormat string `yaml:"structured_report_format"`
	StaticReportFormat     string `yaml:"static_report_format"`
}

type yamlPollConfig struct {
	Interval    string `yaml:"interval"`
	MaxAttempts int    `yaml:"max_attempts"`
}

type yamlConcurrencyConfig struct {
	Studies   int `yaml:"studies"`
	Uploads   int `yaml:"uploads"`
	Downloads int `yaml:"downloads"`
}

type yamlLogConfig struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"`
	Timestamps bool   `yaml:"timestamps"`
}

// LoadFromFile loads configuration from a YAML file on top of Default.
func LoadFromFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}

	var yc yamlConfig
	if err := yaml.Unmarshal(data, &yc); err != nil {
		return Config{}, fmt.Errorf("parse config file: %w", err)
	}

	cfg := Default()
	override := Config{
		APIKey:           yc.APIKey,
		BaseURL:          yc.APIURL,
		OutputDir:        yc.OutputDir,
		Recursive:        yc.Recursive,
		Inference:        commands(yc.Inference),
		Params:           yc.Params.set(),
		Poll:             PollConfig{MaxAttempts: yc.Poll.MaxAttempts},
		Concurrency:      ConcurrencyConfig(yc.Concurrency),
		UploadBarrier:    yc.UploadBarrier,
		EventBuffer:      yc.EventBuffer,
		FailOnStudyError: yc.FailOnStudyError,
		Log:              LogConfig(yc.Log),
	}

	if yc.Environment != "" {
		e, err := ParseEnvironment(yc.Environment)
		if err != nil {
			return Config{}, err
		}
		override.Environment = e
	}
	if override.Poll.Interval, err = parseDuration("poll.interval", yc.Poll.Interval); err != nil {
		return Config{}, err
	}
	if override.StudyTimeout, err = parseDuration("study_timeout", yc.StudyTimeout); err != nil {
		return Config{}, err
	}
	if override.RequestTimeout, err = parseDuration("request_timeout", yc.RequestTimeout); err != nil {
		return Config{}, err
	}

	cfg = cfg.Merge(override)
	if yc.Progress != nil {
		cfg.Progress = *yc.Progress
	}
	return cfg, nil
}

func (p yamlParams) set() params.Set {
	return params.Set{
		SignedURL:              p.SignedURL,
		OutputFormat:           params.OutputFormat(p.OutputFormat),
		Language:               params.Language(p.Language),
		Timezone:               p.Timezone,
		OutputSelection:        params.OutputSelection(p.OutputSelection),
		RecapTheme:             params.RecapTheme(p.RecapTheme),
		StructuredReportFormat: params.StructuredReportFormat(p.StructuredReportFormat),
		StaticReportFormat:     params.StaticReportFormat(p.StaticReportFormat),
	}
}

func parseDuration(name, v string) (time.Duration, error) {
	if v == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", name, err)
	}
	return d, nil
}

func commands(names []string) []params.InferenceCommand {
	var out []params.InferenceCommand
	for _, n := range names {
		if n = strings.TrimSpace(n); n != "" {
			out = append(out, params.InferenceCommand(strings.ToLower(n)))
		}
	}
	return out
}

// envConfig mirrors the MILVUE_* variables.
type envConfig struct {
	APIKey     string `env:"API_KEY"`
	URL        string `env:"API_URL"`
	URLDev     string `env:"API_URL_DEV"`
	URLStaging string `env:"API_URL_STAGING"`
	URLProd    string `env:"API_URL_PROD"`
	Env        string `env:"ENV"`

	OutputDir string   `env:"OUTPUT_DIR"`
	Recursive bool     `env:"RECURSIVE"`
	Inference []string `env:"INFERENCE" envSeparator:","`

	SignedURL        string `env:"SIGNED_URL"`
	Format           string `env:"FORMAT"`
	Language         string `env:"LANGUAGE"`
	Timezone         string `env:"TIMEZONE"`
	OutputSelection  string `env:"OUTPUT_SELECTION"`
	RecapTheme       string `env:"RECAP_THEME"`
	StructuredReport string `env:"STRUCTURED_REPORT"`
	StaticReport     string `env:"STATIC_REPORT"`

	PollInterval     time.Duration `env:"POLL_INTERVAL"`
	MaxPollAttempts  int           `env:"MAX_POLL_ATTEMPTS"`
	StudyTimeout     time.Duration `env:"STUDY_TIMEOUT"`
	RequestTimeout   time.Duration `env:"REQUEST_TIMEOUT"`
	MaxStudies       int           `env:"MAX_STUDIES"`
	MaxUploads       int           `env:"MAX_UPLOADS"`
	MaxDownloads     int           `env:"MAX_DOWNLOADS"`
	UploadBarrier    bool          `env:"UPLOAD_BARRIER"`
	EventBuffer      int           `env:"EVENT_BUFFER"`
	FailOnStudyError bool          `env:"FAIL_ON_STUDY_ERROR"`

	LogLevel      string `env:"LOG_LEVEL"`
	LogFormat     string `env:"LOG_FORMAT"`
	LogTimestamps bool   `env:"LOG_TIMESTAMPS"`
}

// LoadDotEnv loads variables from a .env file into the process
// environment without overriding variables already set. A missing file is
// not an error.
func LoadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// LoadFromEnv loads configuration from environment variables.
// Environment variables use the MILVUE_ prefix.
func (c *Config) LoadFromEnv() error {
	var e envConfig
	if err := env.ParseWithOptions(&e, env.Options{Prefix: EnvPrefix}); err != nil {
		return fmt.Errorf("parse environment: %w", err)
	}

	if c.EnvURLs == nil {
		c.EnvURLs = map[Environment]string{}
	}
	for k, v := range map[Environment]string{
		EnvDefault: e.URL,
		EnvDev:     e.URLDev,
		EnvStaging: e.URLStaging,
		EnvProd:    e.URLProd,
	} {
		if v != "" {
			c.EnvURLs[k] = v
		}
	}

	override := Config{
		APIKey:    e.APIKey,
		OutputDir: e.OutputDir,
		Recursive: e.Recursive,
		Inference: commands(e.Inference),
		Params: params.Set{
			OutputFormat:           params.OutputFormat(e.Format),
			Language:               params.Language(e.Language),
			Timezone:               e.Timezone,
			OutputSelection:        params.OutputSelection(e.OutputSelection),
			RecapTheme:             params.RecapTheme(e.RecapTheme),
			StructuredReportFormat: params.StructuredReportFormat(e.StructuredReport),
			StaticReportFormat:     params.StaticReportFormat(e.StaticReport),
		},
		Poll:           PollConfig{Interval: e.PollInterval, MaxAttempts: e.MaxPollAttempts},
		StudyTimeout:   e.StudyTimeout,
		RequestTimeout: e.RequestTimeout,
		Concurrency: ConcurrencyConfig{
			Studies:   e.MaxStudies,
			Uploads:   e.MaxUploads,
			Downloads: e.MaxDownloads,
		},
		UploadBarrier:    e.UploadBarrier,
		EventBuffer:      e.EventBuffer,
		FailOnStudyError: e.FailOnStudyError,
		Log: LogConfig{
			Level:      e.LogLevel,
			Format:     e.LogFormat,
			Timestamps: e.LogTimestamps,
		},
	}
	if e.Env != "" {
		environment, err := ParseEnvironment(e.Env)
		if err != nil {
			return err
		}
		override.Environment = environment
	}
	if e.SignedURL != "" {
		b, err := strconv.ParseBool(e.SignedURL)
		if err != nil {
			return fmt.Errorf("parse %sSIGNED_URL: %w", EnvPrefix, err)
		}
		override.Params.SignedURL = &b
	}

	*c = c.Merge(override)
	return nil
}

// URL returns the service URL: BaseURL when set, otherwise the URL
// registered for the selected environment.
func (c *Config) URL() string {
	if c.BaseURL != "" {
		return c.BaseURL
	}
	return c.EnvURLs[c.Environment]
}

// ParameterSets expands Params into one set per inference command.
func (c *Config) ParameterSets() ([]params.Set, error) {
	return params.Build(c.Params, c.Inference...)
}

// ValidateConnection checks what is needed to talk to the service at all:
// the API key, the URL and the request timeout.
func (c *Config) ValidateConnection() error {
	if c.APIKey == "" {
		return ErrMissingAPIKey
	}
	if _, err := ParseEnvironment(string(c.Environment)); err != nil {
		return err
	}
	if c.URL() == "" {
		return fmt.Errorf("%w (set --api-url or %s)", ErrMissingURL, c.Environment.URLVariable())
	}
	if c.RequestTimeout < 0 {
		return errors.New("config: request_timeout must not be negative")
	}
	return nil
}

// Validate validates the configuration of a run: the connection plus
// inference, output, polling and concurrency settings.
func (c *Config) Validate() error {
	if err := c.ValidateConnection(); err != nil {
		return err
	}
	if c.OutputDir == "" {
		return errors.New("config: output_dir is required")
	}
	if _, err := c.ParameterSets(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if c.Poll.Interval <= 0 {
		return errors.New("config: poll.interval must be positive")
	}
	if c.Poll.MaxAttempts < 0 {
		return errors.New("config: poll.max_attempts must not be negative")
	}
	if c.StudyTimeout < 0 {
		return errors.New("config: study_timeout must not be negative")
	}
	if c.Concurrency.Studies <= 0 || c.Concurrency.Uploads <= 0 || c.Concurrency.Downloads <= 0 {
		return errors.New("config: concurrency limits must be positive")
	}
	if c.EventBuffer <= 0 {
		return errors.New("config: event_buffer must be positive")
	}
	return nil
}

// Merge merges override values into c, returning a new Config.
// Zero values in override are ignored.
func (c Config) Merge(override Config) Config {
	if override.APIKey != "" {
		c.APIKey = override.APIKey
	}
	if override.BaseURL != "" {
		c.BaseURL = override.BaseURL
	}
	if override.Environment != "" {
		c.Environment = override.Environment
	}
	if len(override.EnvURLs) > 0 {
		urls := make(map[Environment]string, len(c.EnvURLs)+len(override.EnvURLs))
		for k, v := range c.EnvURLs {
			urls[k] = v
		}
		for k, v := range override.EnvURLs {
			urls[k] = v
		}
		c.EnvURLs = urls
	}
	if override.OutputDir != "" {
		c.OutputDir = override.OutputDir
	}
	if override.Recursive {
		c.Recursive = override.Recursive
	}
	if len(override.Inference) > 0 {
		c.Inference = override.Inference
	}
	c.Params = mergeParams(c.Params, override.Params)
	if override.Poll.Interval != 0 {
		c.Poll.Interval = override.Poll.Interval
	}
	if override.Poll.MaxAttempts != 0 {
		c.Poll.MaxAttempts = override.Poll.MaxAttempts
	}
	if override.StudyTimeout != 0 {
		c.StudyTimeout = override.StudyTimeout
	}
	if override.RequestTimeout != 0 {
		c.RequestTimeout = override.RequestTimeout
	}
	if override.Concurrency.Studies != 0 {
		c.Concurrency.Studies = override.Concurrency.Studies
	}
	if override.Concurrency.Uploads != 0 {
		c.Concurrency.Uploads = override.Concurrency.Uploads
	}
	if override.Concurrency.Downloads != 0 {
		c.Concurrency.Downloads = override.Concurrency.Downloads
	}
	if override.UploadBarrier {
		c.UploadBarrier = override.UploadBarrier
	}
	if override.EventBuffer != 0 {
		c.EventBuffer = override.EventBuffer
	}
	if override.FailOnStudyError {
		c.FailOnStudyError = override.FailOnStudyError
	}
	if override.Progress {
		c.Progress = override.Progress
	}
	if override.Log.Level != "" {
		c.Log.Level = override.Log.Level
	}
	if override.Log.Format != "" {
		c.Log.Format = override.Log.Format
	}
	if override.Log.Timestamps {
		c.Log.Timestamps = override.Log.Timestamps
	}
	return c
}

func mergeParams(base, override params.Set) params.Set {
	if override.SignedURL != nil {
		base.SignedURL = override.SignedURL
	}
	if override.OutputFormat != "" {
		base.OutputFormat = override.OutputFormat
	}
	if override.Language != "" {
		base.Language = override.Language
	}
	if override.Timezone != "" {
		base.Timezone = override.Timezone
	}
	if override.OutputSelection != "" {
		base.OutputSelection = override.OutputSelection
	}
	if override.RecapTheme != "" {
		base.RecapTheme = override.RecapTheme
	}
	if override.StructuredReportFormat != "" {
		base.StructuredReportFormat = override.StructuredReportFormat
	}
	if override.StaticReportFormat != "" {
		base.StaticReportFormat = override.StaticReportFormat
	}
	return base
}
