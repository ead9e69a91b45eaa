package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func resetState(t *testing.T) {
	t.Helper()
	CloseAll()
	logsDir = ""
	settings = Settings{}
	t.Cleanup(func() {
		CloseAll()
		logsDir = ""
		settings = Settings{}
	})
}

func readCategoryLog(t *testing.T, dir string, cat Category) string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join(dir, ".reviewer", "logs", "*_"+string(cat)+".log"))
	require.NoError(t, err)
	require.Len(t, matches, 1, "expected one log file for %s", cat)
	data, err := os.ReadFile(matches[0])
	require.NoError(t, err)
	return string(data)
}

func TestDisabledModeWritesNothing(t *testing.T) {
	resetState(t)
	dir := t.TempDir()

	require.NoError(t, Initialize(dir, Settings{DebugMode: false}))
	Tools("should not appear")

	_, err := os.Stat(filepath.Join(dir, ".reviewer", "logs"))
	assert.True(t, os.IsNotExist(err))
	assert.False(t, IsDebugMode())
}

func TestCategoriesWriteSeparateFiles(t *testing.T) {
	resetState(t)
	dir := t.TempDir()

	require.NoError(t, Initialize(dir, Settings{DebugMode: true, Level: "debug"}))
	Tools("bridge started")
	Retrieval("search for %q", "graphs")
	StoreDebug("opened %s", "index.db")
	CloseAll()

	assert.Contains(t, readCategoryLog(t, dir, CategoryTools), "[INFO] bridge started")
	assert.Contains(t, readCategoryLog(t, dir, CategoryRetrieval), `search for "graphs"`)
	assert.Contains(t, readCategoryLog(t, dir, CategoryStore), "[DEBUG] opened index.db")
}

func TestCategoryFilterAndLevel(t *testing.T) {
	resetState(t)
	dir := t.TempDir()

	require.NoError(t, Initialize(dir, Settings{
		DebugMode:  true,
		Level:      "warn",
		Categories: map[string]bool{"ingest": false},
	}))

	assert.False(t, IsCategoryEnabled(CategoryIngest))
	assert.True(t, IsCategoryEnabled(CategoryPipeline))

	Pipeline("info is below threshold")
	PipelineWarn("warn passes")
	CloseAll()

	content := readCategoryLog(t, dir, CategoryPipeline)
	assert.NotContains(t, content, "below threshold")
	assert.Contains(t, content, "[WARN] warn passes")
}

func TestRequestLoggerJSON(t *testing.T) {
	resetState(t)
	dir := t.TempDir()

	require.NoError(t, Initialize(dir, Settings{DebugMode: true, Level: "info", JSONFormat: true}))
	WithRequestID(CategoryPipeline, "run-42").WithField("stage", "classify").Info("done")
	CloseAll()

	content := readCategoryLog(t, dir, CategoryPipeline)
	assert.Contains(t, content, `"req":"run-42"`)
	assert.Contains(t, content, `"stage":"classify"`)
}

func TestTimerThreshold(t *testing.T) {
	resetState(t)
	dir := t.TempDir()

	require.NoError(t, Initialize(dir, Settings{DebugMode: true, Level: "debug"}))
	timer := StartTimer(CategoryAPI, "complete")
	time.Sleep(2 * time.Millisecond)
	elapsed := timer.StopWithThreshold(time.Nanosecond)
	CloseAll()

	assert.Greater(t, elapsed, time.Duration(0))
	assert.True(t, strings.Contains(readCategoryLog(t, dir, CategoryAPI), "complete took"))
}
