package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/attendbot/attend/internal/eventlog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeRunLog(t *testing.T, dir string, at time.Time, runID string) string {
	t.Helper()
	l, err := eventlog.Open(eventlog.RunLogPath(dir, at))
	require.NoError(t, err)
	require.NoError(t, l.Log(eventlog.NewEvent(eventlog.EventRunStart, eventlog.RunStartData(runID, 1))))
	require.NoError(t, l.Log(eventlog.NewEvent(eventlog.EventRunComplete, eventlog.RunCompleteData(1, 1, 900))))
	require.NoError(t, l.Close())
	require.NoError(t, os.Chtimes(l.Path(), at, at))
	return l.Path()
}

func TestLogsCommand(t *testing.T) {
	cfgPath := writeConfig(t, "")
	logs := filepath.Join(filepath.Dir(cfgPath), "logs")
	older := writeRunLog(t, logs, time.Date(2025, 3, 10, 1, 0, 0, 0, time.UTC), "run-old")
	writeRunLog(t, logs, time.Date(2025, 3, 10, 1, 30, 0, 0, time.UTC), "run-new")

	out, err := runCLI(t, "logs", "--config", cfgPath)
	require.NoError(t, err)
	assert.Contains(t, out, "20250310T013000Z-run.jsonl")
	assert.Contains(t, out, "2 events")
	assert.Less(t, strings.Index(out, "013000Z"), strings.Index(out, "010000Z"), "newest first")

	out, err = runCLI(t, "logs", "--config", cfgPath, "latest")
	require.NoError(t, err)
	assert.Contains(t, out, "RUN TIMELINE")
	assert.Contains(t, out, "run-new")

	out, err = runCLI(t, "logs", "--config", cfgPath, filepath.Base(older[:len(older)-len(".jsonl")]))
	require.NoError(t, err)
	assert.Contains(t, out, "run-old")

	_, err = runCLI(t, "logs", "--config", cfgPath, "nope")
	assert.ErrorContains(t, err, `run log "nope" not found`)
}

func TestLogsCommand_None(t *testing.T) {
	out, err := runCLI(t, "logs", "--config", writeConfig(t, ""))
	require.NoError(t, err)
	assert.Contains(t, out, "No run logs yet.")

	_, err = runCLI(t, "logs", "--config", writeConfig(t, ""), "latest")
	assert.ErrorContains(t, err, "no run logs found")
}
