// Package schedule extracts the weekly timetable from the dashboard and
// answers which classes are active at a given instant.
package schedule

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/attendbot/attend/internal/extract"
	"github.com/attendbot/attend/internal/models"
	"github.com/go-viper/mapstructure/v2"
	"golang.org/x/text/cases"
)

// RuleKind selects an extraction rule implementation.
type RuleKind string

const (
	// RuleSpanText matches the leading text of <span> elements against a
	// pattern with four groups: day, start, end, subject.
	RuleSpanText RuleKind = "span_text"
)

// DefaultPattern matches "Senin 08:00-09:40 ALG101 Algoritma".
const DefaultPattern = `^\s*(.+?)\s+(\d{2}:\d{2})-(\d{2}:\d{2})\s+(.+?)\s*$`

// weekdays is keyed by case-folded local label.
var weekdays = map[string]string{
	"senin":  "Monday",
	"selasa": "Tuesday",
	"rabu":   "Wednesday",
	"kamis":  "Thursday",
	"jum'at": "Friday",
	"jumat":  "Friday",
	"sabtu":  "Saturday",
	"minggu": "Sunday",
}

// CanonicalWeekday maps a local day label, or an English day name in any
// case, to its English weekday name.
func CanonicalWeekday(label string) (string, bool) {
	folded := cases.Fold().String(strings.TrimSpace(label))
	if day, ok := weekdays[folded]; ok {
		return day, true
	}
	for d := time.Sunday; d <= time.Saturday; d++ {
		if cases.Fold().String(d.String()) == folded {
			return d.String(), true
		}
	}
	return "", false
}

// IsWeekday reports whether name is an English weekday name as produced by
// time.Weekday.String.
func IsWeekday(name string) bool {
	for d := time.Sunday; d <= time.Saturday; d++ {
		if d.String() == name {
			return true
		}
	}
	return false
}

// NewRule builds the rule named by kind from config params.
func NewRule(kind RuleKind, params map[string]any) (extract.Rule[models.ScheduleEntry], error) {
	switch kind {
	case RuleSpanText, "":
		var v struct {
			Pattern string `mapstructure:"pattern"`
			Class   string `mapstructure:"class"`
		}
		if err := mapstructure.Decode(params, &v); err != nil {
			return nil, fmt.Errorf("decoding %s params: %w", RuleSpanText, err)
		}
		return NewSpanTextRule(v.Pattern, v.Class)
	default:
		return nil, fmt.Errorf("'%s' is not a valid schedule rule", kind)
	}
}

// SpanTextRule finds timetable slots in span text.
type SpanTextRule struct {
	pattern *regexp.Regexp
	class   string
}

// NewSpanTextRule compiles pattern (DefaultPattern when empty). When class
// is set only spans carrying that class are considered.
func NewSpanTextRule(pattern, class string) (*SpanTextRule, error) {
	if pattern == "" {
		pattern = DefaultPattern
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("compiling schedule pattern: %w", err)
	}
	if re.NumSubexp() != 4 {
		return nil, fmt.Errorf("schedule pattern must have 4 groups (day, start, end, subject), has %d", re.NumSubexp())
	}
	return &SpanTextRule{pattern: re, class: class}, nil
}

func (r *SpanTextRule) Extract(doc *extract.Document) []models.ScheduleEntry {
	var out []models.ScheduleEntry
	for _, s := range doc.Spans {
		if r.class != "" && !strings.Contains(" "+s.Class+" ", " "+r.class+" ") {
			continue
		}
		m := r.pattern.FindStringSubmatch(s.Text)
		if m == nil {
			continue
		}
		label := strings.TrimSpace(m[1])
		day, ok := CanonicalWeekday(label)
		if !ok {
			day = label
		}
		out = append(out, models.ScheduleEntry{
			Weekday:           day,
			WeekdayLocalLabel: label,
			StartTime:         m[2],
			EndTime:           m[3],
			Subject:           strings.TrimSpace(m[4]),
		})
	}
	return out
}
