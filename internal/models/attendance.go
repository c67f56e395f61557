package models

import (
	"fmt"
	"strconv"
	"strings"
)

// Credentials identify the portal account. They are loaded once at start.
type Credentials struct {
	Username string
	Password string
}

// Cookie is one persisted session artifact.
type Cookie struct {
	Name     string  `json:"name"`
	Value    string  `json:"value"`
	Domain   string  `json:"domain"`
	Path     string  `json:"path,omitempty"`
	Expires  float64 `json:"expires,omitempty"`
	HTTPOnly bool    `json:"httpOnly,omitempty"`
	Secure   bool    `json:"secure,omitempty"`
	SameSite string  `json:"sameSite,omitempty"`
}

// ScheduleEntry is one weekly timetable slot parsed from the dashboard.
type ScheduleEntry struct {
	// Weekday is the canonical English weekday name ("Monday"). Labels missing
	// from the weekday table are carried through unchanged.
	Weekday           string `json:"day"`
	WeekdayLocalLabel string `json:"dayLocal"`
	StartTime         string `json:"startTime"`
	EndTime           string `json:"endTime"`
	Subject           string `json:"subject"`
}

// TimeWindow renders the slot as "HH:MM-HH:MM".
func (e ScheduleEntry) TimeWindow() string {
	return e.StartTime + "-" + e.EndTime
}

func (e ScheduleEntry) String() string {
	return fmt.Sprintf("%s %s %s", e.WeekdayLocalLabel, e.TimeWindow(), e.Subject)
}

// ClockMinutes converts "HH:MM" to minutes after midnight.
func ClockMinutes(s string) (int, error) {
	hh, mm, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return 0, fmt.Errorf("invalid clock time %q", s)
	}
	h, err := strconv.Atoi(hh)
	if err != nil || h < 0 || h > 23 {
		return 0, fmt.Errorf("invalid hour in %q", s)
	}
	m, err := strconv.Atoi(mm)
	if err != nil || m < 0 || m > 59 {
		return 0, fmt.Errorf("invalid minute in %q", s)
	}
	return h*60 + m, nil
}

// MeetingLink is one course meeting listed on the dashboard.
type MeetingLink struct {
	URL            string `json:"url"`
	DisplayName    string `json:"name"`
	SequenceNumber int    `json:"meetingNumber"`
	SubjectHint    string `json:"subject"`
}

// ResolutionStrategy records how a meeting was chosen for a class.
type ResolutionStrategy string

const (
	ResolutionSubjectMatch   ResolutionStrategy = "subject-match"
	ResolutionLatestFallback ResolutionStrategy = "latest-fallback"
)

// ResolvedMeeting is the meeting picked for a schedule entry.
type ResolvedMeeting struct {
	Link     MeetingLink
	Strategy ResolutionStrategy
	Score    int
}

// DownloadStatus is the outcome of a material fetch.
type DownloadStatus string

const (
	DownloadSuccess DownloadStatus = "SUCCESS"
	DownloadNoFiles DownloadStatus = "NO_FILES"
)

// DownloadResult summarizes one DownloadOrchestrator invocation.
type DownloadResult struct {
	ItemCount     int            `json:"downloadCount"`
	StrategyUsed  []string       `json:"strategies"`
	ArtifactPaths []string       `json:"artifacts"`
	Folder        string         `json:"folder"`
	Status        DownloadStatus `json:"status"`
}

// AttendanceStatus is stored on ledger records.
type AttendanceStatus string

const AttendanceSuccess AttendanceStatus = "SUCCESS"

// AttendanceRecord is one ledger entry. Records are never mutated once written.
type AttendanceRecord struct {
	Timestamp     string           `json:"timestamp"`
	TimestampISO  string           `json:"timestampISO"`
	Class         string           `json:"class"`
	Day           string           `json:"day"`
	Time          string           `json:"time"`
	Meeting       string           `json:"meeting"`
	MeetingNumber int              `json:"meetingNumber"`
	Status        AttendanceStatus `json:"status"`
	RunID         string           `json:"runId,omitempty"`
}
