// Package meetings indexes the course meeting links on the dashboard and
// picks the meeting to attend for a timetable slot.
package meetings

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/attendbot/attend/internal/extract"
	"github.com/attendbot/attend/internal/models"
	"github.com/go-viper/mapstructure/v2"
)

// RuleKind selects a meeting extraction rule.
type RuleKind string

const (
	// RuleIconAnchor picks anchors whose href contains a path marker and which
	// carry a given icon and a <span> label.
	RuleIconAnchor RuleKind = "icon_anchor"
)

const (
	DefaultHrefContains = "/pertemuan/pke/"
	DefaultIconClass    = "fa fa-circle-o"
)

var (
	sequencePattern = regexp.MustCompile(`(?i)(?:pertemuan|meeting)\s*(\d+)`)
	markerPrefix    = regexp.MustCompile(`(?i)(?:pertemuan|meeting)\s*\d+\s*[-–]?\s*`)
	hintPatterns    = []*regexp.Regexp{
		regexp.MustCompile(`([A-Z]{2,4}\s*\d*)\s*[-–]`),
		regexp.MustCompile(`[-–]\s*([A-Z]{2,4}\s*\d*)`),
		regexp.MustCompile(`^([A-Z]{2,4}\s*\d*)`),
	}
	codeWord = regexp.MustCompile(`^[A-Z]{2,4}\d*$`)
)

// SequenceNumber returns the first integer after a meeting marker, or 0.
func SequenceNumber(label string) int {
	m := sequencePattern.FindStringSubmatch(label)
	if m == nil {
		return 0
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0
	}
	return n
}

// SubjectHint guesses the subject code a meeting label refers to. Without a
// recognizable code it returns the whole trimmed label.
func SubjectHint(label string) string {
	trimmed := strings.TrimSpace(label)
	rest := trimmed
	if loc := markerPrefix.FindStringIndex(trimmed); loc != nil {
		rest = strings.TrimSpace(trimmed[:loc[0]] + trimmed[loc[1]:])
	}

	for _, re := range hintPatterns {
		if m := re.FindStringSubmatch(rest); m != nil {
			if hint := strings.TrimSpace(m[1]); hint != "" {
				return hint
			}
		}
	}
	for _, w := range strings.Fields(rest) {
		if codeWord.MatchString(w) {
			return w
		}
	}
	return trimmed
}

// NewRule builds the rule named by kind from config params.
func NewRule(kind RuleKind, params map[string]any) (extract.Rule[models.MeetingLink], error) {
	switch kind {
	case RuleIconAnchor, "":
		var v struct {
			HrefContains string `mapstructure:"href_contains"`
			IconClass    string `mapstructure:"icon_class"`
			BaseURL      string `mapstructure:"base_url"`
		}
		if err := mapstructure.Decode(params, &v); err != nil {
			return nil, fmt.Errorf("decoding %s params: %w", RuleIconAnchor, err)
		}
		return NewIconAnchorRule(v.HrefContains, v.IconClass, v.BaseURL), nil
	default:
		return nil, fmt.Errorf("'%s' is not a valid meeting rule", kind)
	}
}

// IconAnchorRule finds meeting links in the dashboard sidebar.
type IconAnchorRule struct {
	hrefContains string
	iconClass    string
	baseURL      string
}

// NewIconAnchorRule returns a rule using the defaults for empty arguments.
// Relative hrefs are joined onto baseURL when it is set.
func NewIconAnchorRule(hrefContains, iconClass, baseURL string) *IconAnchorRule {
	if hrefContains == "" {
		hrefContains = DefaultHrefContains
	}
	if iconClass == "" {
		iconClass = DefaultIconClass
	}
	return &IconAnchorRule{hrefContains: hrefContains, iconClass: iconClass, baseURL: baseURL}
}

func (r *IconAnchorRule) Extract(doc *extract.Document) []models.MeetingLink {
	var out []models.MeetingLink
	for _, a := range doc.Anchors {
		if !strings.Contains(a.Href, r.hrefContains) || !a.HasIcon(r.iconClass) || a.SpanText == "" {
			continue
		}
		out = append(out, models.MeetingLink{
			URL:            r.absolute(a.Href),
			DisplayName:    a.SpanText,
			SequenceNumber: SequenceNumber(a.SpanText),
			SubjectHint:    SubjectHint(a.SpanText),
		})
	}
	return out
}

func (r *IconAnchorRule) absolute(href string) string {
	if r.baseURL == "" || strings.HasPrefix(href, "http://") || strings.HasPrefix(href, "https://") {
		return href
	}
	return strings.TrimRight(r.baseURL, "/") + "/" + strings.TrimLeft(href, "/")
}
