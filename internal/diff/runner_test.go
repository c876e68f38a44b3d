package diff

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/bookwatch/crawler/internal/catalog"
	"github.com/bookwatch/crawler/internal/storage/memory"
)

type fakeSnapshotter struct {
	current map[string]catalog.Record
	err     error
}

func (f *fakeSnapshotter) Snapshot(context.Context) (map[string]catalog.Record, error) {
	return f.current, f.err
}

func TestRunnerPersistsDetectedEvents(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := memory.New()

	stored := record("https://s.test/a", "upc-a", "A")
	_, err := store.UpsertRecord(ctx, stored)
	require.NoError(t, err)

	updated := record("https://s.test/a", "upc-a", "A")
	updated.Rating = 5
	snap := &fakeSnapshotter{current: map[string]catalog.Record{
		"https://s.test/a": updated,
		"https://s.test/b": record("https://s.test/b", "upc-b", "B"),
	}}

	runner := NewRunner(testDetector(), snap, store, nil)
	summary, err := runner.Run(ctx)
	require.NoError(t, err)

	require.Equal(t, Summary{Current: 2, Stored: 1, New: 1, Updated: 1, Total: 2}, summary)

	day := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	events, err := store.ChangeEventsInRange(ctx, day, day.Add(24*time.Hour))
	require.NoError(t, err)
	require.Len(t, events, 2)
}

func TestRunnerNoChanges(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := memory.New()

	rec := record("https://s.test/a", "upc-a", "A")
	_, err := store.UpsertRecord(ctx, rec)
	require.NoError(t, err)

	runner := NewRunner(testDetector(),
		&fakeSnapshotter{current: map[string]catalog.Record{"https://s.test/a": rec}},
		store, nil)
	summary, err := runner.Run(ctx)
	require.NoError(t, err)
	require.Equal(t, Summary{Current: 1, Stored: 1}, summary)
}

func TestReporterDailyWindow(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := memory.New()

	day := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, store.StoreChangeEvent(ctx, catalog.ChangeEvent{
		ID: "in", UPC: "upc-a", Kind: catalog.ChangeNew, Timestamp: day.Add(time.Hour),
	}))
	require.NoError(t, store.StoreChangeEvent(ctx, catalog.ChangeEvent{
		ID: "out", UPC: "upc-b", Kind: catalog.ChangeNew, Timestamp: day.Add(25 * time.Hour),
	}))

	report, err := NewReporter(store, nil).Daily(ctx, day.Add(10*time.Hour))
	require.NoError(t, err)
	require.Equal(t, "2024-06-01", report.Date)
	require.Equal(t, 1, report.TotalChanges)
	require.Equal(t, []catalog.SubjectCount{{UPC: "upc-a", EventCount: 1}}, report.TopChangedSubjects)
}
