package meetings

import (
	"errors"
	"testing"

	"github.com/attendbot/attend/internal/extract"
	"github.com/attendbot/attend/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func anchor(href, label string) string {
	return `<li><a href="` + href + `"><i class="fa fa-circle-o"></i> <span>` + label + `</span></a></li>`
}

func index(t *testing.T, items ...string) *Index {
	t.Helper()
	markup := "<ul>"
	for _, it := range items {
		markup += it
	}
	markup += `<li><a href="/member/profil"><i class="fa fa-user"></i><span>Profil</span></a></li></ul>`

	doc, err := extract.ParseString(markup)
	require.NoError(t, err)
	x := NewIndex(nil)
	x.Refresh(doc)
	return x
}

func TestRefresh_SortsBySequenceDescending(t *testing.T) {
	x := index(t,
		anchor("/pertemuan/pke/3", "Meeting 3 - ALG101 Intro"),
		anchor("/pertemuan/pke/10", "Meeting 10 - ALG101 Advanced"),
		anchor("/pertemuan/pke/0", "Orientasi"),
		anchor("/pertemuan/pke/7", "Pertemuan 7 - BD201 Normalisasi"),
	)

	links := x.Links()
	require.Len(t, links, 4, "anchors without the meeting icon are ignored")
	assert.Equal(t, []int{10, 7, 3, 0}, []int{
		links[0].SequenceNumber, links[1].SequenceNumber, links[2].SequenceNumber, links[3].SequenceNumber,
	})
	assert.Equal(t, "Meeting 10 - ALG101 Advanced", links[0].DisplayName)
	assert.Equal(t, "/pertemuan/pke/10", links[0].URL)
	assert.Equal(t, "ALG101", links[0].SubjectHint)
}

func TestRefresh_StableForEqualSequence(t *testing.T) {
	x := index(t,
		anchor("/pertemuan/pke/a", "Intro A"),
		anchor("/pertemuan/pke/b", "Intro B"),
	)
	links := x.Links()
	require.Len(t, links, 2)
	assert.Equal(t, "Intro A", links[0].DisplayName)
}

func TestSequenceNumber(t *testing.T) {
	tests := map[string]int{
		"Meeting 3 - ALG101 Intro":   3,
		"PERTEMUAN 12":               12,
		"pertemuan12 - X":            12,
		"Kuis 2 pertemuan 5":         5,
		"Orientasi":                  0,
		"ALG101 Meeting":             0,
		"Meeting 4 lalu Meeting 9 x": 4,
	}
	for label, want := range tests {
		assert.Equal(t, want, SequenceNumber(label), label)
	}
}

func TestSubjectHint(t *testing.T) {
	tests := []struct {
		label string
		want  string
	}{
		{"Meeting 3 - ALG101 Intro", "ALG101"},
		{"Pertemuan 7 - BD201 - Normalisasi", "BD201"},
		{"Pertemuan 2 – Pengantar – PBO", "PBO"},
		{"Pertemuan 5 Struktur Data SD2", "SD2"},
		{"  Orientasi Kampus  ", "Orientasi Kampus"},
		{"KALKULUS Dasar", "KALK"},
	}
	for _, tt := range tests {
		t.Run(tt.label, func(t *testing.T) {
			assert.Equal(t, tt.want, SubjectHint(tt.label))
		})
	}
}

func TestResolve_PrefersHighestSequenceAmongMatches(t *testing.T) {
	x := index(t,
		anchor("/pertemuan/pke/3", "Meeting 3 - ALG101 Intro"),
		anchor("/pertemuan/pke/10", "Meeting 10 - ALG101 Advanced"),
		anchor("/pertemuan/pke/11", "Meeting 11 - BD201 Join"),
	)

	got, err := x.Resolve(models.ScheduleEntry{Subject: "ALG101 Algoritma"})
	require.NoError(t, err)
	assert.Equal(t, models.ResolutionSubjectMatch, got.Strategy)
	assert.Equal(t, 10, got.Link.SequenceNumber)
	assert.Equal(t, ScoreSubstring, got.Score)
}

func TestResolve_ExactBeatsNewerSubstring(t *testing.T) {
	x := index(t,
		anchor("/pertemuan/pke/2", "Pertemuan 2 - PBO - Kelas"),
		anchor("/pertemuan/pke/9", "Pertemuan 9 - PBO2 - Lanjut"),
	)

	got, err := x.Resolve(models.ScheduleEntry{Subject: "pbo"})
	require.NoError(t, err)
	assert.Equal(t, 2, got.Link.SequenceNumber)
	assert.Equal(t, ScoreExact, got.Score)
}

func TestResolve_FirstWordMatch(t *testing.T) {
	x := index(t, anchor("/pertemuan/pke/4", "Statistika pertemuan 4"))

	got, err := x.Resolve(models.ScheduleEntry{Subject: "Statistika Dasar"})
	require.NoError(t, err)
	assert.Equal(t, models.ResolutionSubjectMatch, got.Strategy)
	assert.Equal(t, ScoreFirstWord, got.Score)
}

func TestResolve_FallsBackToLatest(t *testing.T) {
	x := index(t,
		anchor("/pertemuan/pke/3", "Meeting 3 - ALG101 Intro"),
		anchor("/pertemuan/pke/8", "Meeting 8 - BD201 Join"),
	)

	for _, subject := range []string{"", "   ", "Kewarganegaraan"} {
		got, err := x.Resolve(models.ScheduleEntry{Subject: subject})
		require.NoError(t, err, subject)
		assert.Equal(t, models.ResolutionLatestFallback, got.Strategy, subject)
		assert.Equal(t, 8, got.Link.SequenceNumber, subject)
	}
}

func TestResolve_NoLinks(t *testing.T) {
	x := index(t)

	_, err := x.Resolve(models.ScheduleEntry{Subject: "ALG101"})
	var miss *ResolutionMiss
	require.True(t, errors.As(err, &miss))
	assert.Equal(t, "ALG101", miss.Subject)
	assert.True(t, errors.Is(err, ErrNoMeetings))
}

func TestNewRule(t *testing.T) {
	r, err := NewRule(RuleIconAnchor, map[string]any{
		"href_contains": "/sesi/",
		"icon_class":    "fa-book",
		"base_url":      "https://lms.example.ac.id/",
	})
	require.NoError(t, err)

	doc, err := extract.ParseString(`<a href="/sesi/1"><i class="fa fa-book"></i><span>Sesi 1</span></a>
<a href="https://cdn.example.ac.id/sesi/2"><i class="fa fa-book"></i><span>Sesi 2</span></a>
<a href="/pertemuan/pke/1"><i class="fa fa-circle-o"></i><span>Meeting 1</span></a>`)
	require.NoError(t, err)

	links := r.Extract(doc)
	require.Len(t, links, 2)
	assert.Equal(t, "https://lms.example.ac.id/sesi/1", links[0].URL)
	assert.Equal(t, "https://cdn.example.ac.id/sesi/2", links[1].URL)

	_, err = NewRule("css", nil)
	assert.ErrorContains(t, err, "not a valid meeting rule")
}
