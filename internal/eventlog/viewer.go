package eventlog

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// RunFile is a run log on disk.
type RunFile struct {
	Path      string
	Name      string
	Size      int64
	ModTime   time.Time
	NumEvents int
}

// ListRuns finds run logs in dir, newest first. A missing dir yields none.
func ListRuns(dir string) ([]RunFile, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading run log directory: %w", err)
	}

	var files []RunFile
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), runLogSuffix) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}

		path := filepath.Join(dir, e.Name())
		n, _ := countLines(path) //nolint:errcheck
		files = append(files, RunFile{
			Path:      path,
			Name:      e.Name(),
			Size:      info.Size(),
			ModTime:   info.ModTime(),
			NumEvents: n,
		})
	}

	sort.Slice(files, func(i, j int) bool {
		return files[i].ModTime.After(files[j].ModTime)
	})
	return files, nil
}

func countLines(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close() //nolint:errcheck
	n := 0
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		n++
	}
	return n, scanner.Err()
}

// ReadEvents parses every well-formed line of an event log.
func ReadEvents(path string) ([]Event, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening event log: %w", err)
	}
	defer f.Close() //nolint:errcheck

	var events []Event
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		var ev Event
		if err := json.Unmarshal(scanner.Bytes(), &ev); err != nil {
			continue // malformed
		}
		events = append(events, ev)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading event log: %w", err)
	}
	return events, nil
}

// RenderTimeline writes a human-readable run timeline to w.
//
//nolint:errcheck // display-only writes
func RenderTimeline(w io.Writer, events []Event) {
	if len(events) == 0 {
		fmt.Fprintln(w, "No events found.")
		return
	}

	fmt.Fprintln(w, "═══════════════════════════════════════════════════════")
	fmt.Fprintln(w, " RUN TIMELINE")
	fmt.Fprintln(w, "═══════════════════════════════════════════════════════")
	fmt.Fprintln(w)

	start := events[0].Timestamp
	for _, ev := range events {
		ts := formatDuration(ev.Timestamp.Sub(start))

		switch ev.Type {
		case EventRunStart:
			id, _ := ev.Data["run_id"].(string) //nolint:errcheck
			fmt.Fprintf(w, "[%s] 🚀 Run %s started  active=%d\n", ts, id, jsonNumber(ev.Data["active"]))

		case EventLogin:
			strategy, _ := ev.Data["strategy"].(string) //nolint:errcheck
			fmt.Fprintf(w, "[%s] 🔑 Logged in via %s\n", ts, strategy)

		case EventClassStart:
			class, _ := ev.Data["class"].(string)   //nolint:errcheck
			window, _ := ev.Data["window"].(string) //nolint:errcheck
			fmt.Fprintf(w, "[%s] ▶  Class %d/%d: %s (%s)\n", ts,
				jsonNumber(ev.Data["class_num"]), jsonNumber(ev.Data["total_class"]), class, window)

		case EventClassComplete:
			class, _ := ev.Data["class"].(string)     //nolint:errcheck
			meeting, _ := ev.Data["meeting"].(string) //nolint:errcheck
			status, _ := ev.Data["status"].(string)   //nolint:errcheck
			icon := "✓"
			if status != "SUCCESS" {
				icon = "✗"
			}
			fmt.Fprintf(w, "[%s] %s  %s: %s [%s] items=%d (%dms)\n", ts, icon, class, meeting, status,
				jsonNumber(ev.Data["items"]), jsonNumber(ev.Data["duration_ms"]))

		case EventDownloadItem:
			label, _ := ev.Data["label"].(string)       //nolint:errcheck
			strategy, _ := ev.Data["strategy"].(string) //nolint:errcheck
			status, _ := ev.Data["status"].(string)     //nolint:errcheck
			fmt.Fprintf(w, "[%s]    %s %s [%s]\n", ts, strategy, label, status)

		case EventError:
			msg, _ := ev.Data["message"].(string) //nolint:errcheck
			fmt.Fprintf(w, "[%s] ❌ Error: %s\n", ts, msg)

		case EventRunComplete:
			fmt.Fprintf(w, "[%s] 🏁 Run complete  %d/%d attended  (%dms)\n", ts,
				jsonNumber(ev.Data["succeeded"]), jsonNumber(ev.Data["active"]), jsonNumber(ev.Data["duration_ms"]))

		default:
			fmt.Fprintf(w, "[%s] %s %v\n", ts, ev.Type, ev.Data)
		}
	}
	fmt.Fprintln(w)
}

func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%6dms", d.Milliseconds())
	}
	return fmt.Sprintf("%6.1fs", d.Seconds())
}

func jsonNumber(v any) int {
	switch n := v.(type) {
	case float64:
		return int(n)
	case int:
		return n
	case int64:
		return int(n)
	case json.Number:
		i, _ := n.Int64() //nolint:errcheck
		return int(i)
	}
	return 0
}
