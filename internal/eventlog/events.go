// Package eventlog records attendance runs and material downloads as
// newline-delimited JSON.
package eventlog

import "time"

// EventType identifies the kind of logged event.
type EventType string

const (
	EventRunStart      EventType = "run_start"
	EventRunComplete   EventType = "run_complete"
	EventLogin         EventType = "login"
	EventClassStart    EventType = "class_start"
	EventClassComplete EventType = "class_complete"
	EventDownloadItem  EventType = "download_item"
	EventError         EventType = "error"
)

// Event is a single timestamped log entry.
type Event struct {
	Timestamp time.Time      `json:"timestamp"`
	Type      EventType      `json:"type"`
	Data      map[string]any `json:"data,omitempty"`
}

// NewEvent creates an event stamped with the current UTC time.
func NewEvent(t EventType, data map[string]any) Event {
	return Event{
		Timestamp: time.Now().UTC(),
		Type:      t,
		Data:      data,
	}
}

func RunStartData(runID string, active int) map[string]any {
	return map[string]any{
		"run_id": runID,
		"active": active,
	}
}

func LoginData(strategy string) map[string]any {
	return map[string]any{"strategy": strategy}
}

func ClassStartData(class, window string, num, total int) map[string]any {
	return map[string]any{
		"class":       class,
		"window":      window,
		"class_num":   num,
		"total_class": total,
	}
}

func ClassCompleteData(class, meeting, status string, items int, durationMs int64) map[string]any {
	return map[string]any{
		"class":       class,
		"meeting":     meeting,
		"status":      status,
		"items":       items,
		"duration_ms": durationMs,
	}
}

func RunCompleteData(active, succeeded int, durationMs int64) map[string]any {
	return map[string]any{
		"active":      active,
		"succeeded":   succeeded,
		"duration_ms": durationMs,
	}
}

// DownloadItemData describes one artifact captured (or missed) by a
// discovery strategy.
func DownloadItemData(strategy, label, file, status string) map[string]any {
	d := map[string]any{
		"strategy": strategy,
		"label":    label,
		"status":   status,
	}
	if file != "" {
		d["file"] = file
	}
	return d
}

// ErrorData returns event data for an error, merged with details.
func ErrorData(message string, details map[string]any) map[string]any {
	d := map[string]any{
		"message": message,
	}
	for k, v := range details {
		d[k] = v
	}
	return d
}
