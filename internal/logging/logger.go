package logging

import (
	"fmt"
	"io"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LevelQuiet disables logging entirely.
const LevelQuiet = "quiet"

// Options describes logger construction parameters.
type Options struct {
	// Level is one of debug, info, warn, error or quiet.
	// Default: info
	Level string

	// Format is console or json.
	// Default: console
	Format string

	// Timestamps adds an ISO8601 time to every entry.
	Timestamps bool

	// Writer receives log output.
	// Default: os.Stderr
	Writer io.Writer
}

// New constructs a zap logger using the provided options.
func New(opts Options) (*zap.Logger, error) {
	levelName := strings.ToLower(strings.TrimSpace(opts.Level))
	if levelName == LevelQuiet {
		return zap.NewNop(), nil
	}
	if levelName == "" {
		levelName = "info"
	}
	level, err := zapcore.ParseLevel(levelName)
	if err != nil {
		return nil, fmt.Errorf("log level: unsupported value %q", opts.Level)
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encCfg.EncodeDuration = zapcore.StringDurationEncoder
	if !opts.Timestamps {
		encCfg.TimeKey = ""
	}

	var encoder zapcore.Encoder
	switch strings.ToLower(strings.TrimSpace(opts.Format)) {
	case "", "console":
		encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
		encoder = zapcore.NewConsoleEncoder(encCfg)
	case "json":
		encoder = zapcore.NewJSONEncoder(encCfg)
	default:
		return nil, fmt.Errorf("log format: unsupported value %q", opts.Format)
	}

	w := opts.Writer
	if w == nil {
		w = os.Stderr
	}

	core := zapcore.NewCore(encoder, zapcore.AddSync(w), level)
	var zopts []zap.Option
	if level <= zapcore.DebugLevel {
		zopts = append(zopts, zap.AddCaller())
	}
	return zap.New(core, zopts...), nil
}

// CaptureStdLog sends output of the standard library logger, which some
// dependencies write to directly, to logger at debug level. The returned
// func restores the previous destination.
func CaptureStdLog(logger *zap.Logger) (func(), error) {
	return zap.RedirectStdLogAt(logger.Named("stdlog"), zapcore.DebugLevel)
}
