package main

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/attendbot/attend/internal/ledger"
	"github.com/attendbot/attend/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func record(class, meeting string, num int, at time.Time) models.AttendanceRecord {
	return models.AttendanceRecord{
		Timestamp:     at.Format(time.RFC3339),
		TimestampISO:  at.UTC().Format("2006-01-02T15:04:05.000Z07:00"),
		Class:         class,
		Day:           "Senin",
		Time:          "08:00-09:40",
		Meeting:       meeting,
		MeetingNumber: num,
		Status:        models.AttendanceSuccess,
	}
}

func TestFilterHistory(t *testing.T) {
	at := time.Date(2025, 3, 10, 8, 5, 0, 0, time.UTC)
	records := []models.AttendanceRecord{
		record("Algoritma", "Meeting 9", 9, at),
		record("Basis Data", "Meeting 5", 5, at),
		record("Algoritma", "Meeting 10", 10, at.Add(7*24*time.Hour)),
	}

	assert.Len(t, filterHistory(records, "", 0), 3)
	assert.Len(t, filterHistory(records, "ALGO", 0), 2)

	last := filterHistory(records, "algo", 1)
	require.Len(t, last, 1)
	assert.Equal(t, 10, last[0].MeetingNumber)
	assert.Len(t, records, 3, "input is not modified")
}

func TestHistoryCommand(t *testing.T) {
	cfgPath := writeConfig(t, "")
	l := ledger.New(filepath.Join(filepath.Dir(cfgPath), "attendance_log.json"))
	wib := time.FixedZone("WIB", 7*60*60)
	require.NoError(t, l.Append(record("Algoritma", "Meeting 10", 10, time.Date(2025, 3, 10, 8, 5, 0, 0, wib))))
	require.NoError(t, l.Append(record("Basis Data", "Meeting 5", 5, time.Date(2025, 3, 10, 9, 5, 0, 0, wib))))

	out, err := runCLI(t, "history", "--config", cfgPath)
	require.NoError(t, err)
	assert.Contains(t, out, "Date")
	assert.Contains(t, out, "2025-03-10 08:05")
	assert.Contains(t, out, "Meeting 10")
	assert.Contains(t, out, "2 attendance(s)")

	out, err = runCLI(t, "history", "--config", cfgPath, "--class", "basis")
	require.NoError(t, err)
	assert.NotContains(t, out, "Algoritma")
	assert.Contains(t, out, "1 attendance(s)")
}

func TestHistoryCommand_Empty(t *testing.T) {
	out, err := runCLI(t, "history", "--config", writeConfig(t, ""))
	require.NoError(t, err)
	assert.Contains(t, out, "No attendance recorded yet.")
}
