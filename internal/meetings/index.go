package meetings

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"github.com/attendbot/attend/internal/extract"
	"github.com/attendbot/attend/internal/models"
	"golang.org/x/text/cases"
)

// Match scores, higher is better.
const (
	ScoreFirstWord = 1
	ScoreSubstring = 2
	ScoreExact     = 3
)

// ErrNoMeetings is wrapped by ResolutionMiss.
var ErrNoMeetings = errors.New("no meeting links available")

// ResolutionMiss means no meeting could be chosen for a class.
type ResolutionMiss struct {
	Subject string
}

func (e *ResolutionMiss) Error() string {
	return fmt.Sprintf("no meeting for %q: %v", e.Subject, ErrNoMeetings)
}

func (e *ResolutionMiss) Unwrap() error { return ErrNoMeetings }

// Index holds the meeting links from the latest Refresh, highest sequence
// number first.
type Index struct {
	rule extract.Rule[models.MeetingLink]

	mu    sync.RWMutex
	links []models.MeetingLink
}

// NewIndex returns an empty index. A nil rule uses the default anchor rule.
func NewIndex(rule extract.Rule[models.MeetingLink]) *Index {
	if rule == nil {
		rule = NewIconAnchorRule("", "", "")
	}
	return &Index{rule: rule}
}

// Refresh replaces the index with the links found in doc.
func (x *Index) Refresh(doc *extract.Document) []models.MeetingLink {
	links := x.rule.Extract(doc)
	slices.SortStableFunc(links, func(a, b models.MeetingLink) int {
		return b.SequenceNumber - a.SequenceNumber
	})
	if len(links) > 0 {
		slog.Debug("Indexed meetings", "count", len(links), "latest", links[0].DisplayName)
	}

	x.mu.Lock()
	x.links = links
	x.mu.Unlock()
	return slices.Clone(links)
}

// Links returns the indexed links.
func (x *Index) Links() []models.MeetingLink {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return slices.Clone(x.links)
}

// Resolve picks the meeting for a class. The best scoring link wins, ties
// going to the higher sequence number. Without any match, or for an empty
// subject, the latest meeting overall is used.
func (x *Index) Resolve(class models.ScheduleEntry) (models.ResolvedMeeting, error) {
	x.mu.RLock()
	defer x.mu.RUnlock()

	fold := cases.Fold()
	subject := fold.String(strings.TrimSpace(class.Subject))

	var (
		best      models.MeetingLink
		bestScore int
		latest    *models.MeetingLink
	)
	for i := range x.links {
		l := x.links[i]
		if l.URL == "" {
			continue
		}
		if latest == nil {
			latest = &x.links[i]
		}
		if subject == "" {
			continue
		}
		s := score(fold, l, subject)
		if s > bestScore || (s == bestScore && s > 0 && l.SequenceNumber > best.SequenceNumber) {
			best, bestScore = l, s
		}
	}

	switch {
	case bestScore > 0:
		slog.Debug("Meeting matched", "subject", class.Subject, "meeting", best.DisplayName, "score", bestScore)
		return models.ResolvedMeeting{Link: best, Strategy: models.ResolutionSubjectMatch, Score: bestScore}, nil
	case latest != nil:
		slog.Info("No meeting matches subject, using latest meeting", "subject", class.Subject, "meeting", latest.DisplayName)
		return models.ResolvedMeeting{Link: *latest, Strategy: models.ResolutionLatestFallback}, nil
	default:
		return models.ResolvedMeeting{}, &ResolutionMiss{Subject: class.Subject}
	}
}

func score(fold cases.Caser, l models.MeetingLink, subject string) int {
	hint := fold.String(strings.TrimSpace(l.SubjectHint))
	name := fold.String(strings.TrimSpace(l.DisplayName))

	switch {
	case hint == subject || name == subject:
		return ScoreExact
	case hint != "" && (strings.Contains(subject, hint) || strings.Contains(hint, subject)),
		strings.Contains(name, subject):
		return ScoreSubstring
	}
	if words := strings.Fields(name); len(words) > 0 && strings.Contains(subject, words[0]) {
		return ScoreFirstWord
	}
	return 0
}
