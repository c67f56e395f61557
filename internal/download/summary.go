package download

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/attendbot/attend/internal/models"
)

const (
	SummaryFile = "download_summary.json"
	ItemLogFile = "download_log.jsonl"

	readableLayout = "02 January 2006 15:04:05"
	isoLayout      = "2006-01-02T15:04:05.000Z"
)

// Summary is written next to the materials of every fetched meeting.
type Summary struct {
	ClassName            string                `json:"className"`
	MeetingName          string                `json:"meetingName"`
	DownloadDate         string                `json:"downloadDate"`
	DownloadDateISO      string                `json:"downloadDateISO"`
	DownloadDateReadable string                `json:"downloadDateReadable"`
	Timezone             string                `json:"timezone"`
	DownloadCount        int                   `json:"downloadCount"`
	Folder               string                `json:"folder"`
	Status               models.DownloadStatus `json:"status"`
	Strategies           []string              `json:"strategies"`
	Artifacts            []string              `json:"artifacts"`
}

func newSummary(class, meeting string, at time.Time, res models.DownloadResult) Summary {
	strategies := res.StrategyUsed
	if strategies == nil {
		strategies = []string{}
	}
	artifacts := res.ArtifactPaths
	if artifacts == nil {
		artifacts = []string{}
	}
	return Summary{
		ClassName:            class,
		MeetingName:          meeting,
		DownloadDate:         at.Format(time.RFC3339),
		DownloadDateISO:      at.UTC().Format(isoLayout),
		DownloadDateReadable: at.Format(readableLayout),
		Timezone:             at.Location().String(),
		DownloadCount:        res.ItemCount,
		Folder:               res.Folder,
		Status:               res.Status,
		Strategies:           strategies,
		Artifacts:            artifacts,
	}
}

func writeSummary(folder string, s Summary) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling download summary: %w", err)
	}
	if err := os.WriteFile(filepath.Join(folder, SummaryFile), data, 0o644); err != nil {
		return fmt.Errorf("writing download summary: %w", err)
	}
	return nil
}

// ReadSummary loads the summary stored in a meeting folder.
func ReadSummary(folder string) (*Summary, error) {
	data, err := os.ReadFile(filepath.Join(folder, SummaryFile))
	if err != nil {
		return nil, fmt.Errorf("reading download summary: %w", err)
	}
	var s Summary
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parsing download summary: %w", err)
	}
	return &s, nil
}
