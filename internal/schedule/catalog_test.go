package schedule

import (
	"testing"
	"time"

	"github.com/attendbot/attend/internal/extract"
	"github.com/attendbot/attend/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var jakarta = time.FixedZone("WIB", 7*60*60)

func parse(t *testing.T, markup string) *extract.Document {
	t.Helper()
	doc, err := extract.ParseString(markup)
	require.NoError(t, err)
	return doc
}

const timetable = `<div>
<span>Senin 08:00-09:40 ALG101 Algoritma</span>
<span>Senin 09:00-10:40 BD201 Basis Data</span>
<span>Jum'at 13:00-14:40 PBO Pemrograman</span>
<span>Kamis 25:00-26:00 Broken</span>
<span>Funday 08:00-09:00 Mystery</span>
<span>Profil Mahasiswa</span>
</div>`

func TestRefresh(t *testing.T) {
	c := NewCatalog(nil)
	entries := c.Refresh(parse(t, timetable))

	require.Len(t, entries, 4, "broken times are dropped, unknown days kept")
	assert.Equal(t, models.ScheduleEntry{
		Weekday: "Monday", WeekdayLocalLabel: "Senin",
		StartTime: "08:00", EndTime: "09:40", Subject: "ALG101 Algoritma",
	}, entries[0])
	assert.Equal(t, "Friday", entries[2].Weekday)
	assert.Equal(t, "Funday", entries[3].Weekday, "unmapped labels pass through")
	assert.Equal(t, entries, c.Entries())

	// A later refresh replaces the timetable.
	c.Refresh(parse(t, `<span>Rabu 10:00-11:00 X</span>`))
	require.Len(t, c.Entries(), 1)
}

func TestActiveAt_ToleranceWindow(t *testing.T) {
	c := NewCatalog(nil)
	c.Refresh(parse(t, `<span>Senin 08:00-09:40 ALG101 Algoritma</span>`))

	monday := func(h, m int) time.Time { return time.Date(2025, 3, 10, h, m, 0, 0, jakarta) }

	tests := []struct {
		name   string
		at     time.Time
		active bool
	}{
		{"before tolerance", monday(7, 44), false},
		{"tolerance start inclusive", monday(7, 45), true},
		{"inside tolerance", monday(7, 46), true},
		{"in slot", monday(9, 0), true},
		{"tolerance end inclusive", monday(9, 55), true},
		{"after tolerance", monday(9, 56), false},
		{"seconds do not matter", monday(9, 55).Add(59 * time.Second), true},
		{"other weekday", monday(8, 30).AddDate(0, 0, 1), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := c.ActiveAt(tt.at)
			if tt.active {
				require.Len(t, got, 1)
				assert.Equal(t, "ALG101 Algoritma", got[0].Subject)
			} else {
				assert.Empty(t, got)
			}
		})
	}
}

func TestActiveAt_ReadsTimeInItsOwnLocation(t *testing.T) {
	c := NewCatalog(nil)
	c.Refresh(parse(t, `<span>Senin 08:00-09:40 ALG101</span>`))

	// 01:30 UTC on Monday is 08:30 in Jakarta.
	utc := time.Date(2025, 3, 10, 1, 30, 0, 0, time.UTC)
	assert.Empty(t, c.ActiveAt(utc))
	assert.Len(t, c.ActiveAt(utc.In(jakarta)), 1)
}

func TestActiveAt_OverlappingSlotsAllReturned(t *testing.T) {
	c := NewCatalog(nil)
	c.Refresh(parse(t, timetable))

	got := c.ActiveAt(time.Date(2025, 3, 10, 9, 20, 0, 0, jakarta))
	require.Len(t, got, 2)
	assert.Equal(t, "ALG101 Algoritma", got[0].Subject)
	assert.Equal(t, "BD201 Basis Data", got[1].Subject)
}

func TestLoad_FromSnapshot(t *testing.T) {
	c := NewCatalog(nil)
	entries := []models.ScheduleEntry{{
		Weekday: "Monday", WeekdayLocalLabel: "Senin",
		StartTime: "08:00", EndTime: "09:40", Subject: "ALG101",
	}}
	c.Load(entries)
	entries[0].Subject = "mutated"

	got := c.ActiveAt(time.Date(2025, 3, 10, 7, 46, 0, 0, jakarta))
	require.Len(t, got, 1)
	assert.Equal(t, "ALG101", got[0].Subject)
}

func TestCanonicalWeekday(t *testing.T) {
	tests := map[string]string{
		"Senin": "Monday", "selasa": "Tuesday", "RABU": "Wednesday", "Kamis": "Thursday",
		"Jum'at": "Friday", "Jumat": "Friday", "Sabtu": "Saturday", " Minggu ": "Sunday",
	}
	for label, want := range tests {
		got, ok := CanonicalWeekday(label)
		assert.True(t, ok, label)
		assert.Equal(t, want, got, label)
	}
	_, ok := CanonicalWeekday("Funday")
	assert.False(t, ok)
}

func TestNewRule(t *testing.T) {
	r, err := NewRule(RuleSpanText, map[string]any{"class": "jadwal"})
	require.NoError(t, err)
	doc := parse(t, `<span class="jadwal item">Senin 08:00-09:00 A</span><span>Selasa 08:00-09:00 B</span>`)
	got := r.Extract(doc)
	require.Len(t, got, 1)
	assert.Equal(t, "A", got[0].Subject)

	r, err = NewRule("", nil)
	require.NoError(t, err)
	assert.Len(t, r.Extract(doc), 2)

	_, err = NewRule(RuleSpanText, map[string]any{"pattern": `(\w+)`})
	assert.ErrorContains(t, err, "4 groups")

	_, err = NewRule(RuleSpanText, map[string]any{"pattern": `(`})
	assert.Error(t, err)

	_, err = NewRule("xpath", nil)
	assert.ErrorContains(t, err, "not a valid schedule rule")
}

func TestActiveAt_CanonicalWeekdayOnly(t *testing.T) {
	c := NewCatalog(nil)
	c.Load([]models.ScheduleEntry{{Weekday: "Monday", StartTime: "08:00", EndTime: "09:40", Subject: "Algorithms"}})

	active := c.ActiveAt(time.Date(2025, 3, 10, 7, 46, 0, 0, jakarta))
	require.Len(t, active, 1)
	assert.Equal(t, "Algorithms", active[0].Subject)
	assert.Empty(t, c.ActiveAt(time.Date(2025, 3, 10, 7, 44, 0, 0, jakarta)))
	assert.Empty(t, c.ActiveAt(time.Date(2025, 3, 11, 8, 30, 0, 0, jakarta)), "Tuesday")
}

func TestActiveAt_EnglishDayLabels(t *testing.T) {
	c := NewCatalog(nil)
	entries := c.Refresh(parse(t, `<span>Monday 08:00-09:40 Algorithms</span><span>friday 13:00-14:40 Ethics</span>`))
	require.Len(t, entries, 2)
	assert.Equal(t, "Monday", entries[0].Weekday)
	assert.Equal(t, "Friday", entries[1].Weekday)

	active := c.ActiveAt(time.Date(2025, 3, 10, 8, 30, 0, 0, jakarta))
	require.Len(t, active, 1)
	assert.Equal(t, "Algorithms", active[0].Subject)
}

func TestActiveAt_UnmappedDayNeverActive(t *testing.T) {
	c := NewCatalog(nil)
	c.Refresh(parse(t, `<span>Funday 08:00-09:40 Mystery</span>`))
	for d := 10; d <= 16; d++ {
		assert.Empty(t, c.ActiveAt(time.Date(2025, 3, d, 8, 30, 0, 0, jakarta)))
	}
}

func TestCanonicalWeekday_EnglishNames(t *testing.T) {
	tests := []struct {
		label string
		want  string
		ok    bool
	}{
		{"Monday", "Monday", true},
		{" sunday ", "Sunday", true},
		{"Funday", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.label, func(t *testing.T) {
			got, ok := CanonicalWeekday(tt.label)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}
