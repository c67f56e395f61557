package download

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/attendbot/attend/internal/browser/browsertest"
	"github.com/attendbot/attend/internal/eventlog"
	"github.com/attendbot/attend/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	testPortal = models.Portal{
		BaseURL:           "https://lms.example.ac.id",
		ForceDownloadPath: "/media_public/force_download/",
	}
	wib       = time.FixedZone("Asia/Jakarta", 7*60*60)
	fetchedAt = time.Date(2025, 3, 10, 8, 5, 0, 0, wib)
	meeting   = models.MeetingLink{
		URL:            "https://lms.example.ac.id/member/pertemuan/pke/10",
		DisplayName:    "Meeting 10 - ALG101 Advanced",
		SequenceNumber: 10,
		SubjectHint:    "ALG101",
	}
)

type pauses struct{ calls []time.Duration }

func (p *pauses) sleep(ctx context.Context, d time.Duration) error {
	p.calls = append(p.calls, d)
	return ctx.Err()
}

func newFetcher(t *testing.T, p *pauses) (*Fetcher, string) {
	t.Helper()
	root := t.TempDir()
	return New(root, testPortal,
		WithLocation(wib),
		WithClock(func() time.Time { return fetchedAt }),
		WithSleep(p.sleep),
	), root
}

func link(href, text string, dl *browsertest.Download) *browsertest.Element {
	return &browsertest.Element{Attrs: map[string]string{"href": href}, TextValue: text, Download: dl}
}

func readItemLog(t *testing.T, folder string) []eventlog.Event {
	t.Helper()
	events, err := eventlog.ReadEvents(filepath.Join(folder, ItemLogFile))
	require.NoError(t, err)
	return events
}

func TestFetch_AllStrategiesAccumulate(t *testing.T) {
	forceURL := testPortal.ForceDownloadURL("modul.docx")
	embeddedURL := "https://lms.example.ac.id/member/pertemuan/media/handout.pdf"

	page := &browsertest.Page{
		Downloads: map[string]*browsertest.Download{
			forceURL:    {Name: "", Body: []byte("docx")},
			embeddedURL: {Name: "handout.pdf", Body: []byte("pdf2")},
		},
	}
	page.Add(directSelector,
		link("/files/slides.pdf", " Slides: Week 10 ", &browsertest.Download{Name: "week10.pdf", Body: []byte("pdf1")}),
		link("/download/broken", "Broken", nil),
	)
	page.Add(forceSelector, &browsertest.Element{
		Attrs:     map[string]string{"onclick": "force_download('modul.docx')"},
		TextValue: "Modul",
	})
	page.Add(embeddedSelector, &browsertest.Element{Attrs: map[string]string{"src": "../media/handout.pdf"}})
	page.Add(contentSelector,
		link("https://lms.example.ac.id/files/slides.pdf", "Slides again", &browsertest.Download{Name: "dup.pdf"}),
		link("javascript:download()", "Script", nil),
	)
	bctx := &browsertest.Context{Primary: page}

	p := &pauses{}
	f, root := newFetcher(t, p)

	res, err := f.Fetch(context.Background(), bctx, "ALG101 Algoritma", meeting)
	require.NoError(t, err)

	folder := filepath.Join(root, "ALG101 Algoritma", "Meeting 10 _ ALG101 Advanced")
	assert.Equal(t, folder, res.Folder)
	assert.Equal(t, 3, res.ItemCount)
	assert.Equal(t, models.DownloadSuccess, res.Status)
	assert.Equal(t, []string{StrategyDirect, StrategyForce, StrategyEmbedded}, res.StrategyUsed)
	assert.Equal(t, []string{
		filepath.Join(folder, "Slides_ Week 10_week10.pdf"),
		filepath.Join(folder, "Modul_modul.docx"),
		filepath.Join(folder, "handout.pdf"),
	}, res.ArtifactPaths)

	data, err := os.ReadFile(res.ArtifactPaths[0])
	require.NoError(t, err)
	assert.Equal(t, []byte("pdf1"), data)
	assert.NoFileExists(t, filepath.Join(folder, "Slides again_dup.pdf"), "hrefs already captured are not fetched twice")

	require.Len(t, bctx.Opened, 2)
	assert.Equal(t, []string{forceURL}, bctx.Opened[0].Visits)
	assert.Equal(t, []string{embeddedURL}, bctx.Opened[1].Visits)
	assert.True(t, bctx.Opened[0].Closed)

	assert.Equal(t, []time.Duration{SettleDelay, ItemPause, ItemPause, ItemPause, ItemPause}, p.calls)

	events := readItemLog(t, folder)
	require.Len(t, events, 5)
	statuses := make([]string, len(events))
	for i, ev := range events {
		statuses[i], _ = ev.Data["status"].(string)
	}
	assert.Equal(t, []string{"saved", "failed", "saved", "saved", "duplicate"}, statuses)

	s, err := ReadSummary(folder)
	require.NoError(t, err)
	assert.Equal(t, Summary{
		ClassName:            "ALG101 Algoritma",
		MeetingName:          "Meeting 10 - ALG101 Advanced",
		DownloadDate:         "2025-03-10T08:05:00+07:00",
		DownloadDateISO:      "2025-03-10T01:05:00.000Z",
		DownloadDateReadable: "10 March 2025 08:05:00",
		Timezone:             "Asia/Jakarta",
		DownloadCount:        3,
		Folder:               folder,
		Status:               models.DownloadSuccess,
		Strategies:           res.StrategyUsed,
		Artifacts:            res.ArtifactPaths,
	}, *s)
}

func TestFetch_FallbackCapturesPage(t *testing.T) {
	page := &browsertest.Page{HTML: "<html><body>Materi menyusul</body></html>"}
	bctx := &browsertest.Context{Primary: page}
	f, root := newFetcher(t, &pauses{})

	m := models.MeetingLink{URL: "https://lms.example.ac.id/member/pertemuan/pke/3", DisplayName: "Meeting 3 - ALG101 Intro"}
	res, err := f.Fetch(context.Background(), bctx, "ALG101", m)
	require.NoError(t, err)

	folder := filepath.Join(root, "ALG101", "Meeting 3 _ ALG101 Intro")
	assert.Equal(t, 2, res.ItemCount)
	assert.Equal(t, models.DownloadSuccess, res.Status)
	assert.Equal(t, []string{StrategyFallback}, res.StrategyUsed)

	shot := filepath.Join(folder, "Meeting 3 _ ALG101 Intro_screenshot.png")
	markup := filepath.Join(folder, "Meeting 3 _ ALG101 Intro_content.html")
	assert.Equal(t, []string{shot, markup}, res.ArtifactPaths)
	assert.FileExists(t, shot)
	data, err := os.ReadFile(markup)
	require.NoError(t, err)
	assert.Equal(t, page.HTML, string(data))

	s, err := ReadSummary(folder)
	require.NoError(t, err)
	assert.Equal(t, 2, s.DownloadCount)
	assert.Equal(t, models.DownloadSuccess, s.Status)
}

func TestFetch_FallbackFailure(t *testing.T) {
	page := &browsertest.Page{ScreenshotErr: errors.New("renderer gone")}
	f, root := newFetcher(t, &pauses{})

	res, err := f.Fetch(context.Background(), &browsertest.Context{Primary: page}, "ALG101", meeting)
	require.Error(t, err)
	assert.ErrorContains(t, err, "renderer gone")
	assert.Zero(t, res.ItemCount)

	s, err := ReadSummary(filepath.Join(root, "ALG101", "Meeting 10 _ ALG101 Advanced"))
	require.NoError(t, err, "summary is written even when nothing was saved")
	assert.Equal(t, models.DownloadNoFiles, s.Status)
	assert.Empty(t, s.Artifacts)
}

func TestFetch_NavigationFailure(t *testing.T) {
	page := &browsertest.Page{GotoErr: map[string]error{meeting.URL: errors.New("net::ERR_CONNECTION_RESET")}}
	f, root := newFetcher(t, &pauses{})

	_, err := f.Fetch(context.Background(), &browsertest.Context{Primary: page}, "ALG101", meeting)
	require.Error(t, err)
	assert.NoDirExists(t, filepath.Join(root, "ALG101"))
}

func TestFetch_SaveFailureIsItemError(t *testing.T) {
	page := &browsertest.Page{}
	page.Add(directSelector, link("/a.pdf", "A", &browsertest.Download{Name: "a.pdf", SaveErr: errors.New("disk full")}))
	page.Add(directSelector, link("/b.pdf", "B", &browsertest.Download{Name: "b.pdf", Body: []byte("b")}))
	f, _ := newFetcher(t, &pauses{})

	res, err := f.Fetch(context.Background(), &browsertest.Context{Primary: page}, "X", meeting)
	require.NoError(t, err)
	assert.Equal(t, 1, res.ItemCount)
	assert.Equal(t, []string{StrategyDirect}, res.StrategyUsed)
}

func TestFetch_SameFileNameGetsSuffix(t *testing.T) {
	page := &browsertest.Page{}
	page.Add(directSelector, link("/week1/notes.pdf", "Notes", &browsertest.Download{Name: "notes.pdf", Body: []byte("one")}))
	page.Add(directSelector, link("/week2/notes.pdf", "Notes", &browsertest.Download{Name: "notes.pdf", Body: []byte("two")}))
	page.Add(directSelector, link("/week3/notes.pdf", "Notes", &browsertest.Download{Name: "notes.pdf", Body: []byte("three")}))
	f, _ := newFetcher(t, &pauses{})

	res, err := f.Fetch(context.Background(), &browsertest.Context{Primary: page}, "X", meeting)
	require.NoError(t, err)
	require.Equal(t, 3, res.ItemCount)
	require.Len(t, res.ArtifactPaths, 3)

	var bodies []string
	names := map[string]bool{}
	for _, p := range res.ArtifactPaths {
		names[filepath.Base(p)] = true
		data, err := os.ReadFile(p)
		require.NoError(t, err)
		bodies = append(bodies, string(data))
	}
	assert.Len(t, names, 3, "every saved item has its own file")
	assert.Equal(t, []string{"one", "two", "three"}, bodies)
	assert.True(t, strings.HasSuffix(res.ArtifactPaths[1], "_2.pdf"), res.ArtifactPaths[1])
}

func TestFreeName(t *testing.T) {
	taken := map[string]bool{"a.pdf": true, "a_2.pdf": true, "README": true}
	assert.Equal(t, "b.pdf", freeName("b.pdf", taken))
	assert.Equal(t, "a_3.pdf", freeName("a.pdf", taken))
	assert.Equal(t, "README_2", freeName("README", taken))
}

func TestFetch_CanceledDuringItems(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	page := &browsertest.Page{}
	page.Add(directSelector, link("/a.pdf", "A", &browsertest.Download{Name: "a.pdf"}))

	f := New(t.TempDir(), testPortal, WithSleep(func(ctx context.Context, d time.Duration) error {
		if d == ItemPause {
			cancel()
		}
		return ctx.Err()
	}))

	_, err := f.Fetch(ctx, &browsertest.Context{Primary: page}, "X", meeting)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestItemError(t *testing.T) {
	err := &ItemError{Strategy: StrategyDirect, Label: "Slides", Err: context.DeadlineExceeded}
	assert.Equal(t, `direct item "Slides": context deadline exceeded`, err.Error())
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestSanitize(t *testing.T) {
	labels := map[string]string{
		"Slides: Week 10":     "Slides_ Week 10",
		"  report-v2.final  ": "report-v2.final",
		"a/b\\c":              "a_b_c",
		"Materi Pekan ke#3":   "Materi Pekan ke_3",
	}
	for in, want := range labels {
		assert.Equal(t, want, FileLabel(in), in)
	}
	long := bytes.Repeat([]byte("x"), 80)
	assert.Len(t, FileLabel(string(long)), 50)

	folders := map[string]string{
		"Matemátika Diskrit & Logika": "Matematika Diskrit _ Logika",
		"Meeting 3 - ALG101 Intro":    "Meeting 3 _ ALG101 Intro",
		"Jum'at":                      "Jum_at",
		"???":                         "___",
		"":                            "untitled",
	}
	for in, want := range folders {
		assert.Equal(t, want, FolderName(in), in)
	}

	assert.True(t, IsDownloadable("/files/Slides.PDF"))
	assert.True(t, IsDownloadable("/media/download?id=3"))
	assert.True(t, IsDownloadable("archive.7z"))
	assert.False(t, IsDownloadable("/member/pertemuan/pke/3"))
}
