package schedule

import (
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/attendbot/attend/internal/extract"
	"github.com/attendbot/attend/internal/models"
)

// Tolerance widens every slot on both sides.
const Tolerance = 15 * time.Minute

// Catalog holds the timetable from the latest Refresh.
type Catalog struct {
	rule extract.Rule[models.ScheduleEntry]

	mu      sync.RWMutex
	entries []models.ScheduleEntry
}

// NewCatalog returns an empty catalog. A nil rule uses the default span rule.
func NewCatalog(rule extract.Rule[models.ScheduleEntry]) *Catalog {
	if rule == nil {
		r, err := NewSpanTextRule("", "")
		if err != nil {
			panic(err)
		}
		rule = r
	}
	return &Catalog{rule: rule}
}

// Refresh replaces the timetable with the slots found in doc. Slots whose
// times do not parse are dropped and slots with unknown day labels are kept
// but logged, since they can never become active.
func (c *Catalog) Refresh(doc *extract.Document) []models.ScheduleEntry {
	var entries []models.ScheduleEntry
	for _, e := range c.rule.Extract(doc) {
		if _, _, err := window(e); err != nil {
			slog.Warn("Dropping timetable slot", "slot", e.String(), "error", err)
			continue
		}
		if !IsWeekday(weekdayOf(e)) {
			slog.Warn("Unknown day label, slot will never be active", "day", e.WeekdayLocalLabel, "subject", e.Subject)
		}
		entries = append(entries, e)
	}

	c.mu.Lock()
	c.entries = entries
	c.mu.Unlock()
	return slices.Clone(entries)
}

// Load replaces the timetable with entries seen earlier, such as a cached
// snapshot.
func (c *Catalog) Load(entries []models.ScheduleEntry) {
	c.mu.Lock()
	c.entries = slices.Clone(entries)
	c.mu.Unlock()
}

// Entries returns the current timetable.
func (c *Catalog) Entries() []models.ScheduleEntry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Clone(c.entries)
}

// ActiveAt returns every slot on t's weekday whose widened window contains
// t's time of day, at minute resolution. t is read in its own location.
func (c *Catalog) ActiveAt(t time.Time) []models.ScheduleEntry {
	c.mu.RLock()
	defer c.mu.RUnlock()

	now := t.Hour()*60 + t.Minute()
	tol := int(Tolerance / time.Minute)
	today := t.Weekday().String()

	var out []models.ScheduleEntry
	for _, e := range c.entries {
		if weekdayOf(e) != today {
			continue
		}
		start, end, err := window(e)
		if err != nil {
			continue
		}
		if now >= start-tol && now <= end+tol {
			out = append(out, e)
		}
	}
	return out
}

// weekdayOf returns the entry's canonical weekday, deriving it from the
// local label when only that is set.
func weekdayOf(e models.ScheduleEntry) string {
	if e.Weekday != "" {
		return e.Weekday
	}
	day, _ := CanonicalWeekday(e.WeekdayLocalLabel)
	return day
}

func window(e models.ScheduleEntry) (int, int, error) {
	start, err := models.ClockMinutes(e.StartTime)
	if err != nil {
		return 0, 0, err
	}
	end, err := models.ClockMinutes(e.EndTime)
	if err != nil {
		return 0, 0, err
	}
	return start, end, nil
}
