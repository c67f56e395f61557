package main

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/attendbot/attend/internal/models"
	"github.com/attendbot/attend/internal/orchestration"
	"github.com/stretchr/testify/assert"
)

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "250ms", formatDuration(250*time.Millisecond))
	assert.Equal(t, "1.5s", formatDuration(1520*time.Millisecond))
	assert.Equal(t, "2m3s", formatDuration(123*time.Second))
}

func TestProgressPrinter(t *testing.T) {
	var buf bytes.Buffer
	p := progressPrinter(&buf)

	p(orchestration.ProgressEvent{EventType: orchestration.EventRunStart, TotalClasses: 2})
	p(orchestration.ProgressEvent{EventType: orchestration.EventClassStart, Class: "Algoritma", ClassNum: 1, TotalClasses: 2})
	p(orchestration.ProgressEvent{
		EventType: orchestration.EventClassComplete, Class: "Algoritma", ClassNum: 1, TotalClasses: 2,
		Meeting: "Meeting 10", Status: "SUCCESS", DurationMs: 1200, Details: map[string]any{"items": 3},
	})
	p(orchestration.ProgressEvent{
		EventType: orchestration.EventClassComplete, Class: "Basis Data", ClassNum: 2, TotalClasses: 2,
		Meeting: "Meeting 5", Status: "FAILED", Err: errors.New("download timed out"), Details: map[string]any{"items": 0},
	})

	out := buf.String()
	assert.Contains(t, out, "Classes in session: 2")
	assert.Contains(t, out, "[1/2] Algoritma")
	assert.Contains(t, out, "✓ [1/2] Algoritma: Meeting 10 [SUCCESS] 3 items (1.2s)")
	assert.Contains(t, out, "✗ [2/2] Basis Data: Meeting 5 [FAILED]")
	assert.Contains(t, out, "download timed out")
}

func TestPrintReport(t *testing.T) {
	alg := models.ScheduleEntry{WeekdayLocalLabel: "Senin", StartTime: "08:00", EndTime: "09:40", Subject: "Algoritma"}
	bd := models.ScheduleEntry{WeekdayLocalLabel: "Senin", StartTime: "09:00", EndTime: "10:40", Subject: "Basis Data"}
	report := &orchestration.Report{
		RunID:    "run-1",
		Strategy: "bypass",
		Duration: 4 * time.Second,
		Active:   []models.ScheduleEntry{alg, bd},
		Results: []orchestration.ClassResult{
			{
				Entry:    alg,
				Meeting:  &models.ResolvedMeeting{Link: models.MeetingLink{DisplayName: "Meeting 10"}},
				Download: models.DownloadResult{ItemCount: 2, Folder: "downloads/Algoritma"},
			},
			{Entry: bd, Err: errors.New("no meeting links on the dashboard")},
		},
		Succeeded: 1,
	}

	var buf bytes.Buffer
	printReport(&buf, report)
	out := buf.String()

	assert.Contains(t, out, "Run ID:     run-1")
	assert.Contains(t, out, "Login:      bypass")
	assert.Contains(t, out, "Attended:   1")
	assert.Contains(t, out, "✓ Algoritma   08:00-09:40  Meeting 10 (2 items -> downloads/Algoritma)")
	assert.Contains(t, out, "✗ Basis Data  09:00-10:40  no meeting links on the dashboard")
}

func TestPadRight_WideRunes(t *testing.T) {
	assert.Equal(t, "日本  ", padRight("日本", 6))
	assert.Equal(t, "abc", padRight("abc", 2))
}

func TestTruncateName(t *testing.T) {
	assert.Equal(t, "short", truncateName("short", 10))
	assert.Equal(t, "Pemrogram…", truncateName("Pemrograman Berorientasi Objek", 10))
}
