package logging_test

import (
	"bytes"
	"encoding/json"
	"log"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/ligustah/milvue/internal/logging"
)

func TestConsoleWithoutTimestamps(t *testing.T) {
	var buf bytes.Buffer
	logger, err := logging.New(logging.Options{Level: "info", Writer: &buf})
	require.NoError(t, err)

	logger.Debug("hidden")
	logger.Info("visible")
	logger.Sync() //nolint:errcheck

	out := buf.String()
	assert.NotContains(t, out, "hidden", "debug entries are filtered at info level")
	assert.Regexp(t, `^INFO\tvisible`, out)
}

func TestJSONWithTimestamps(t *testing.T) {
	var buf bytes.Buffer
	logger, err := logging.New(logging.Options{Level: "debug", Format: "json", Timestamps: true, Writer: &buf})
	require.NoError(t, err)

	logger.Debug("with caller")
	logger.Sync() //nolint:errcheck

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry), buf.String())
	assert.Contains(t, entry, "ts")
	assert.Contains(t, entry, "caller", "caller is added at debug level")
	assert.Equal(t, "with caller", entry["msg"])
}

func TestQuiet(t *testing.T) {
	var buf bytes.Buffer
	logger, err := logging.New(logging.Options{Level: "quiet", Writer: &buf})
	require.NoError(t, err)

	logger.Error("nothing")
	assert.Zero(t, buf.Len(), buf.String())
}

func TestInvalidOptions(t *testing.T) {
	_, err := logging.New(logging.Options{Level: "loud"})
	assert.Error(t, err)

	_, err = logging.New(logging.Options{Format: "xml"})
	assert.Error(t, err)
}

func TestCaptureStdLog(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)

	restore, err := logging.CaptureStdLog(zap.New(core))
	require.NoError(t, err)
	log.Println("error reading value")
	restore()

	entries := logs.All()
	require.Len(t, entries, 1)
	assert.Equal(t, zapcore.DebugLevel, entries[0].Level)
	assert.Equal(t, "stdlog", entries[0].LoggerName)
	assert.Equal(t, "error reading value", entries[0].Message)
}

func TestCaptureStdLogQuiet(t *testing.T) {
	var buf bytes.Buffer
	logger, err := logging.New(logging.Options{Level: "info", Writer: &buf})
	require.NoError(t, err)

	restore, err := logging.CaptureStdLog(logger)
	require.NoError(t, err)
	defer restore()

	log.Println("library noise")
	logger.Sync() //nolint:errcheck
	assert.Empty(t, buf.String(), "captured lines stay below info")
}
