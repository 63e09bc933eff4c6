package logger_test

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldscan/fieldscan/internal/logger"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var records []map[string]any
	scanner := bufio.NewScanner(buf)
	for scanner.Scan() {
		var rec map[string]any
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &rec))
		records = append(records, rec)
	}
	return records
}

func TestSlogLoggerLevels(t *testing.T) {
	t.Parallel()

	buf := &bytes.Buffer{}
	log := logger.NewSlogLogger(buf, logger.LogLevelInfo, time.UTC)

	log.Trace("hidden trace")
	log.Debug("hidden debug")
	log.Info("visible info")
	log.Warn("visible warn")
	log.Error("visible error")
	log.Log(logger.LogLevelDebug, "hidden explicit")

	records := decodeLines(t, buf)
	require.Len(t, records, 3)
	assert.Equal(t, "visible info", records[0]["msg"])
	assert.Equal(t, "WARN", records[1]["level"])
	assert.Equal(t, "ERROR", records[2]["level"])
}

func TestSlogLoggerTraceLevel(t *testing.T) {
	t.Parallel()

	buf := &bytes.Buffer{}
	log := logger.NewSlogLogger(buf, logger.LogLevelTrace, time.UTC)
	log.Trace("sql query")

	records := decodeLines(t, buf)
	require.Len(t, records, 1)
	assert.Equal(t, "TRACE", records[0]["level"])
}

func TestFieldsAndModules(t *testing.T) {
	t.Parallel()

	buf := &bytes.Buffer{}
	log := logger.NewSlogLogger(buf, logger.LogLevelDebug, time.UTC).
		Module("pipeline").
		Module("run").
		With(logger.String("run_id", "r-1"))

	log.Info("photo analyzed",
		logger.Uint("photo_id", 42),
		logger.Float64("plant_height", 1.98765),
		logger.Duration("elapsed", 1500*time.Millisecond),
		logger.Bool("transactional", true),
		logger.Error(assert.AnError))

	records := decodeLines(t, buf)
	require.Len(t, records, 1)
	rec := records[0]
	assert.Equal(t, "pipeline.run", rec["module"])
	assert.Equal(t, "r-1", rec["run_id"])
	assert.InDelta(t, 42, rec["photo_id"], 0)
	assert.InDelta(t, 1.988, rec["plant_height"], 1e-9)
	assert.Equal(t, "1.5s", rec["elapsed"])
	assert.Equal(t, true, rec["transactional"])
	assert.Equal(t, assert.AnError.Error(), rec["error"])
}

func TestWithDoesNotLeakIntoParent(t *testing.T) {
	t.Parallel()

	buf := &bytes.Buffer{}
	parent := logger.NewSlogLogger(buf, logger.LogLevelInfo, time.UTC)
	child := parent.With(logger.String("photo_id", "7"))

	child.Info("child")
	parent.Info("parent")

	records := decodeLines(t, buf)
	require.Len(t, records, 2)
	assert.Equal(t, "7", records[0]["photo_id"])
	assert.NotContains(t, records[1], "photo_id")
}

func TestWithContextTraceID(t *testing.T) {
	t.Parallel()

	buf := &bytes.Buffer{}
	log := logger.NewSlogLogger(buf, logger.LogLevelInfo, time.UTC)

	log.WithContext(logger.WithTraceID(context.Background(), "abc-123")).Info("traced")
	log.WithContext(context.Background()).Info("untraced")

	records := decodeLines(t, buf)
	require.Len(t, records, 2)
	assert.Equal(t, "abc-123", records[0]["trace_id"])
	assert.NotContains(t, records[1], "trace_id")
}

func TestCentralLoggerFileOutput(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	mainPath := filepath.Join(dir, "logs", "fieldscan.log")
	apiPath := filepath.Join(dir, "logs", "access.log")

	cl, err := logger.NewCentralLogger(&logger.LoggingConfig{
		DefaultLevel: "info",
		Timezone:     "UTC",
		Console:      &logger.ConsoleOutput{Enabled: false},
		FileOutput:   &logger.FileOutput{Enabled: true, Path: mainPath, Level: "debug"},
		ModuleLevels: map[string]string{"datastore": "debug"},
		ModuleOutputs: map[string]logger.ModuleOutput{
			"api": {Enabled: true, FilePath: apiPath, Level: "info"},
		},
	})
	require.NoError(t, err)

	cl.Module("datastore").Debug("datastore debug")
	cl.Module("pipeline").Debug("pipeline debug suppressed")
	cl.Module("api").Info("request served")

	require.NoError(t, cl.Close())

	mainLog, err := os.ReadFile(mainPath)
	require.NoError(t, err)
	assert.Contains(t, string(mainLog), "datastore debug")
	assert.NotContains(t, string(mainLog), "pipeline debug suppressed")
	assert.NotContains(t, string(mainLog), "request served")

	apiLog, err := os.ReadFile(apiPath)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(apiLog), `"module":"api"`))
}

func TestCentralLoggerRejectsBadTimezone(t *testing.T) {
	t.Parallel()

	_, err := logger.NewCentralLogger(&logger.LoggingConfig{Timezone: "Mars/Olympus"})
	require.Error(t, err)

	_, err = logger.NewCentralLogger(nil)
	require.Error(t, err)
}

func TestBufferedFileWriterCloseIsIdempotent(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "out.log")
	w, err := logger.NewBufferedFileWriter(path, logger.WithFlushInterval(0))
	require.NoError(t, err)

	_, err = w.Write([]byte("line\n"))
	require.NoError(t, err)
	require.NoError(t, w.Close())
	require.NoError(t, w.Close())

	_, err = w.Write([]byte("late\n"))
	require.Error(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "line\n", string(data))
}
