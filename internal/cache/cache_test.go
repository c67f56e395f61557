package cache

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/attendbot/attend/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func snapshot(user string) *Snapshot {
	return &Snapshot{
		Username: user,
		TakenAt:  time.Date(2025, 3, 10, 1, 0, 0, 0, time.UTC),
		Entries: []models.ScheduleEntry{
			{Weekday: "Monday", WeekdayLocalLabel: "Senin", StartTime: "08:00", EndTime: "09:40", Subject: "ALG101"},
		},
		Meetings: []models.MeetingLink{
			{URL: "/pertemuan/pke/10", DisplayName: "Meeting 10 - ALG101", SequenceNumber: 10, SubjectHint: "ALG101"},
		},
	}
}

func TestKey(t *testing.T) {
	a := Key("https://lms.example.ac.id", "2021001")
	assert.Len(t, a, 16)
	assert.Equal(t, a, Key("https://lms.example.ac.id", "2021001"))
	assert.NotEqual(t, a, Key("https://lms.example.ac.id", "2021002"))
	// fields are delimited, so shifting characters between them changes the key
	assert.NotEqual(t, Key("ab", "c"), Key("a", "bc"))
}

func TestCache_GetPut(t *testing.T) {
	c := New(t.TempDir())
	key := Key("https://lms.example.ac.id", "2021001")

	got, found := c.Get(key)
	assert.False(t, found)
	assert.Nil(t, got)

	want := snapshot("2021001")
	require.NoError(t, c.Put(key, want))

	got, found = c.Get(key)
	require.True(t, found)
	assert.Equal(t, want.Username, got.Username)
	assert.True(t, want.TakenAt.Equal(got.TakenAt))
	assert.Equal(t, want.Entries, got.Entries)
	assert.Equal(t, want.Meetings, got.Meetings)
}

func TestCache_CorruptEntryIsMiss(t *testing.T) {
	dir := t.TempDir()
	c := New(dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "k.json"), []byte("{"), 0o644))

	_, found := c.Get("k")
	assert.False(t, found)
}

func TestCache_EmptyDir(t *testing.T) {
	c := New("")

	_, found := c.Get("any")
	assert.False(t, found)
	assert.NoError(t, c.Put("key", snapshot("u")))
	assert.NoError(t, c.Clear())
}

func TestCache_Clear(t *testing.T) {
	t.Run("removes snapshots", func(t *testing.T) {
		dir := t.TempDir()
		c := New(dir)
		require.NoError(t, c.Put("a", snapshot("a")))
		require.NoError(t, c.Put("b", snapshot("b")))

		require.NoError(t, c.Clear())
		_, err := os.Stat(dir)
		assert.True(t, os.IsNotExist(err))
	})

	t.Run("missing directory", func(t *testing.T) {
		assert.NoError(t, New(filepath.Join(t.TempDir(), "nope")).Clear())
	})

	t.Run("refuses subdirectories", func(t *testing.T) {
		dir := t.TempDir()
		c := New(dir)
		require.NoError(t, c.Put("a", snapshot("a")))
		require.NoError(t, os.Mkdir(filepath.Join(dir, "sub"), 0o755))

		err := c.Clear()
		assert.ErrorContains(t, err, "subdirectories")
		assert.DirExists(t, dir)
	})

	t.Run("refuses foreign files", func(t *testing.T) {
		dir := t.TempDir()
		c := New(dir)
		require.NoError(t, os.WriteFile(filepath.Join(dir, "attendance_log.txt"), []byte("x"), 0o644))

		err := c.Clear()
		assert.ErrorContains(t, err, "non-cache files")
		assert.FileExists(t, filepath.Join(dir, "attendance_log.txt"))
	})
}

func TestCache_ConcurrentPut(t *testing.T) {
	dir := t.TempDir()
	c := New(dir)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			assert.NoError(t, c.Put("shared", snapshot(fmt.Sprintf("user-%d", id))))
		}(i)
	}
	wg.Wait()

	got, found := c.Get("shared")
	require.True(t, found, "concurrent writes must leave a readable entry")
	assert.Contains(t, got.Username, "user-")
}
