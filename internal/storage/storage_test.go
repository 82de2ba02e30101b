package storage

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/blackwell-systems/feedbackwatch/internal/session"
)

func quietStore(dir string) *Store {
	return New(dir, WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
}

func sampleRecord(project string) session.Record {
	r := session.New("/work/"+project, project, "main", time.Date(2026, 3, 1, 9, 0, 0, 0, time.Local))
	r.UserMessagesCount = 2
	r.RiskIndicators = []string{"technical_completion_测试通过"}
	r.SessionCategories = []string{"bug"}
	return r.Clone()
}

func TestListProjects_MissingBaseDir(t *testing.T) {
	s := quietStore(filepath.Join(t.TempDir(), "nope"))
	names, err := s.ListProjects()
	require.NoError(t, err)
	assert.Empty(t, names)
}

func TestListProjects_SortedAndFiltered(t *testing.T) {
	dir := t.TempDir()
	for _, d := range []string{"project_zeta", "project_alpha", "other", "project_"} {
		require.NoError(t, os.MkdirAll(filepath.Join(dir, d), 0o755))
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "project_file"), nil, 0o644))

	names, err := quietStore(dir).ListProjects()
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha", "zeta"}, names)
}

func TestAppendSummary_LoadSummaries(t *testing.T) {
	s := quietStore(t.TempDir())
	r := sampleRecord("demo")
	r.Finish("auto_timeout", time.Minute)

	require.NoError(t, s.AppendSummary("demo", r.Summary()))
	require.NoError(t, s.AppendSummary("demo", r.Summary()))

	sums, stats, err := s.LoadSummaries("demo")
	require.NoError(t, err)
	assert.Equal(t, ReadStats{Read: 2}, stats)
	require.Len(t, sums, 2)
	assert.True(t, sums[0].AutoTerminated)
	assert.Equal(t, "auto_timeout", sums[0].EndReason)
	assert.Equal(t, []string{"bug"}, sums[0].Categories)
}

func TestLoadSummaries_MissingProject(t *testing.T) {
	s := quietStore(t.TempDir())
	_, _, err := s.LoadSummaries("ghost")
	assert.True(t, errors.Is(err, ErrProjectNotExist))
}

func TestLoadSummaries_NoFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "project_empty"), 0o755))
	sums, stats, err := quietStore(dir).LoadSummaries("empty")
	require.NoError(t, err)
	assert.Empty(t, sums)
	assert.Zero(t, stats.Read)
}

func TestLoadSummaries_SkipsMalformed(t *testing.T) {
	dir := t.TempDir()
	s := quietStore(dir)
	r := sampleRecord("demo")
	require.NoError(t, s.AppendSummary("demo", r.Summary()))

	f, err := os.OpenFile(s.SummaryPath("demo"), os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString("\nnot json\n{\"session_id\":\"trunc")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	sums, stats, err := s.LoadSummaries("demo")
	require.NoError(t, err)
	assert.Len(t, sums, 1)
	assert.Equal(t, ReadStats{Read: 1, Skipped: 2}, stats)
}

func TestLoadSummaries_SkipsOversizedLine(t *testing.T) {
	dir := t.TempDir()
	s := quietStore(dir)
	r := sampleRecord("demo")
	require.NoError(t, s.AppendSummary("demo", r.Summary()))

	f, err := os.OpenFile(s.SummaryPath("demo"), os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString(`{"session_id":"` + strings.Repeat("x", maxLineSize) + "\"}\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())
	require.NoError(t, s.AppendSummary("demo", r.Summary()))

	sums, stats, err := s.LoadSummaries("demo")
	require.NoError(t, err)
	assert.Len(t, sums, 2)
	assert.Equal(t, ReadStats{Read: 2, Skipped: 1}, stats)
	assert.Equal(t, r.SessionID, sums[1].SessionID)
}

func TestLoadSummaries_LineAtLimit(t *testing.T) {
	dir := t.TempDir()
	s := quietStore(dir)
	r := sampleRecord("demo")
	require.NoError(t, s.AppendSummary("demo", r.Summary()))

	// padding keeps the line exactly maxLineSize bytes long
	line := `{"session_id":"` + strings.Repeat("y", maxLineSize-17) + `"}`
	require.Len(t, line, maxLineSize)
	f, err := os.OpenFile(s.SummaryPath("demo"), os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString(line)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	sums, stats, err := s.LoadSummaries("demo")
	require.NoError(t, err)
	require.Len(t, sums, 2)
	assert.Equal(t, ReadStats{Read: 2, Skipped: 0}, stats)
	assert.Len(t, sums[1].SessionID, maxLineSize-17)
}

func TestAppendEvent_LoadEvents(t *testing.T) {
	s := quietStore(t.TempDir())
	r := sampleRecord("demo")

	require.NoError(t, s.AppendEvent("demo", session.NewEvent(&r, session.Now(), session.StartedPayload{SessionID: r.SessionID})))
	require.NoError(t, s.AppendEvent("demo", session.NewEvent(&r, session.Now(), session.FeedbackPayload{Category: "bug", Priority: 3, CallCount: 1})))

	events, _, err := s.LoadEvents("demo")
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, session.EventSessionStarted, events[0].Type)
	fb, ok := events[1].Data.(session.FeedbackPayload)
	require.True(t, ok)
	assert.Equal(t, "bug", fb.Category)
}

func TestWritesDoNotEscapeHTML(t *testing.T) {
	s := quietStore(t.TempDir())
	r := sampleRecord("demo")
	r.SessionCategories = []string{"<ui>&测试"}
	require.NoError(t, s.AppendSummary("demo", r.Summary()))

	data, err := os.ReadFile(s.SummaryPath("demo"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "<ui>&测试")
	assert.True(t, strings.HasSuffix(string(data), "}\n"))
}

func TestSaveSession_IndentedAndReplaced(t *testing.T) {
	s := quietStore(t.TempDir())
	r := sampleRecord("demo")
	require.NoError(t, s.SaveSession(r))

	r.UserMessagesCount = 9
	require.NoError(t, s.SaveSession(r))

	path := filepath.Join(s.ProjectDir("demo"), "session_"+r.SessionID+".json")
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "\n  \"session_id\"")

	got, err := s.LoadSession("demo", r.SessionID)
	require.NoError(t, err)
	assert.Equal(t, 9, got.UserMessagesCount)

	leftovers, _ := filepath.Glob(filepath.Join(s.ProjectDir("demo"), ".session-*"))
	assert.Empty(t, leftovers)
}

func TestInvalidProjectNames(t *testing.T) {
	s := quietStore(t.TempDir())
	for _, name := range []string{"", "..", "a/b", `a\b`} {
		err := s.AppendSummary(name, session.Summary{})
		assert.True(t, errors.Is(err, ErrInvalidProject), "name %q", name)
		assert.False(t, s.ProjectExists(name))
	}
}

func TestLoadSessions_SkipsMalformedAndSorts(t *testing.T) {
	s := quietStore(t.TempDir())
	late := session.New("/p", "demo", "main", time.Date(2026, 3, 2, 0, 0, 0, 0, time.Local)).Clone()
	early := session.New("/p", "demo", "main", time.Date(2026, 3, 1, 0, 0, 0, 0, time.Local)).Clone()
	require.NoError(t, s.SaveSession(late))
	require.NoError(t, s.SaveSession(early))
	require.NoError(t, os.WriteFile(filepath.Join(s.ProjectDir("demo"), "session_broken.json"), []byte("{"), 0o644))

	recs, stats, err := s.LoadSessions("demo")
	require.NoError(t, err)
	assert.Equal(t, ReadStats{Read: 2, Skipped: 1}, stats)
	require.Len(t, recs, 2)
	assert.Equal(t, early.SessionID, recs[0].SessionID)
}

func TestPrune_OnlyOldSnapshots(t *testing.T) {
	s := quietStore(t.TempDir())
	old := sampleRecord("demo")
	fresh := sampleRecord("demo")
	require.NoError(t, s.SaveSession(old))
	require.NoError(t, s.SaveSession(fresh))
	require.NoError(t, s.AppendSummary("demo", old.Summary()))

	oldPath := filepath.Join(s.ProjectDir("demo"), "session_"+old.SessionID+".json")
	past := time.Now().Add(-60 * 24 * time.Hour)
	require.NoError(t, os.Chtimes(oldPath, past, past))
	require.NoError(t, os.Chtimes(s.SummaryPath("demo"), past, past))

	n, err := s.Prune("demo", time.Now().Add(-30*24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = os.Stat(oldPath)
	assert.True(t, errors.Is(err, os.ErrNotExist))
	_, err = s.LoadSession("demo", fresh.SessionID)
	assert.NoError(t, err)
	_, err = os.Stat(s.SummaryPath("demo"))
	assert.NoError(t, err)
}

func TestConcurrentAppends(t *testing.T) {
	s := quietStore(t.TempDir())
	r := sampleRecord("demo")

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = s.AppendSummary("demo", r.Summary())
		}()
	}
	wg.Wait()

	sums, stats, err := s.LoadSummaries("demo")
	require.NoError(t, err)
	assert.Len(t, sums, 20)
	assert.Zero(t, stats.Skipped)
}

func TestSnapshotRoundTrip(t *testing.T) {
	dir := t.TempDir()
	s := quietStore(dir)
	rapid.Check(t, func(t *rapid.T) {
		start := time.Unix(rapid.Int64Range(1_600_000_000, 1_900_000_000).Draw(t, "start"), 0).
			Add(time.Duration(rapid.IntRange(0, 999_999).Draw(t, "micros")) * time.Microsecond)
		r := session.New("/p", "prop", rapid.StringMatching(`[a-z]{0,8}`).Draw(t, "branch"), start)
		r.UserMessagesCount = rapid.IntRange(0, 1000).Draw(t, "users")
		r.TotalUserChars = rapid.IntRange(0, 100000).Draw(t, "chars")
		r.RiskIndicators = rapid.SliceOfDistinct(rapid.StringMatching(`[a-z_]{1,12}`), rapid.ID[string]).Draw(t, "risks")
		r.SessionCategories = rapid.SliceOfDistinct(rapid.StringMatching(`[a-z<>&]{1,6}`), rapid.ID[string]).Draw(t, "cats")
		r.Finish(rapid.SampledFrom([]string{"user_ended", "auto_timeout"}).Draw(t, "reason"),
			time.Duration(rapid.IntRange(0, 3600).Draw(t, "secs"))*time.Second)

		want := r.Clone()
		if err := s.SaveSession(want); err != nil {
			t.Fatalf("save: %v", err)
		}
		got, err := s.LoadSession("prop", want.SessionID)
		if err != nil {
			t.Fatalf("load: %v", err)
		}
		a, _ := json.Marshal(want)
		b, _ := json.Marshal(got)
		if string(a) != string(b) {
			t.Fatalf("round trip mismatch:\n%s\n%s", a, b)
		}
	})
}

func TestProjectFromDir(t *testing.T) {
	name, ok := ProjectFromDir(filepath.Join("logs", "project_demo"))
	assert.True(t, ok)
	assert.Equal(t, "demo", name)

	_, ok = ProjectFromDir("logs/other")
	assert.False(t, ok)
	_, ok = ProjectFromDir("project_")
	assert.False(t, ok)
}
