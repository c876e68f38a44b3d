package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/bookwatch/crawler/internal/catalog"
)

func rec(url, upc, category string, available int) catalog.Record {
	return catalog.Record{
		Title:          "Title " + upc,
		Category:       category,
		UPC:            upc,
		PriceInclTax:   1000,
		PriceExclTax:   1000,
		Availability:   "In stock",
		AvailableCount: available,
		URL:            url,
	}
}

func TestUpsertRecordTriState(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := New()

	r := rec("https://s.test/a", "upc-a", "Poetry", 5)

	outcome, err := s.UpsertRecord(ctx, r)
	require.NoError(t, err)
	require.Equal(t, catalog.OutcomeInserted, outcome)

	// Idempotent: same record again is unchanged.
	outcome, err = s.UpsertRecord(ctx, r)
	require.NoError(t, err)
	require.Equal(t, catalog.OutcomeUnchanged, outcome)

	r.PriceInclTax = 1100
	outcome, err = s.UpsertRecord(ctx, r)
	require.NoError(t, err)
	require.Equal(t, catalog.OutcomeUpdated, outcome)

	got, err := s.GetRecordByURL(ctx, r.URL)
	require.NoError(t, err)
	require.Equal(t, catalog.Money(1100), got.PriceInclTax)
}

func TestGetRecordMissing(t *testing.T) {
	t.Parallel()

	s := New()
	_, err := s.GetRecordByURL(context.Background(), "https://s.test/none")
	require.ErrorIs(t, err, catalog.ErrNotFound)

	_, err = s.GetRecordByUPC(context.Background(), "upc-none")
	require.ErrorIs(t, err, catalog.ErrNotFound)
}

func TestListRecordsHonorsLimit(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := New()
	for _, r := range []catalog.Record{
		rec("https://s.test/a", "upc-a", "Poetry", 1),
		rec("https://s.test/b", "upc-b", "Poetry", 1),
		rec("https://s.test/c", "upc-c", "Poetry", 1),
	} {
		_, err := s.UpsertRecord(ctx, r)
		require.NoError(t, err)
	}

	all, err := s.ListRecords(ctx, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)

	two, err := s.ListRecords(ctx, 2)
	require.NoError(t, err)
	require.Len(t, two, 2)
	require.Equal(t, "upc-a", two[0].UPC)
}

func TestQueryRecordsFiltersAndPaginates(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := New()
	for _, r := range []catalog.Record{
		rec("https://s.test/a", "upc-a", "Poetry", 3),
		rec("https://s.test/b", "upc-b", "Travel", 0),
		rec("https://s.test/c", "upc-c", "Poetry", 0),
		rec("https://s.test/d", "upc-d", "poetry", 7),
	} {
		_, err := s.UpsertRecord(ctx, r)
		require.NoError(t, err)
	}

	page, total, err := s.QueryRecords(ctx, catalog.RecordQuery{Category: "Poetry"})
	require.NoError(t, err)
	require.Equal(t, 3, total)
	require.Len(t, page, 3)

	inStock := true
	page, total, err = s.QueryRecords(ctx, catalog.RecordQuery{Category: "Poetry", InStock: &inStock})
	require.NoError(t, err)
	require.Equal(t, 2, total)
	require.Equal(t, "upc-a", page[0].UPC)
	require.Equal(t, "upc-d", page[1].UPC)

	page, total, err = s.QueryRecords(ctx, catalog.RecordQuery{Page: 2, PageSize: 3})
	require.NoError(t, err)
	require.Equal(t, 4, total)
	require.Len(t, page, 1)
	require.Equal(t, "upc-d", page[0].UPC)

	page, total, err = s.QueryRecords(ctx, catalog.RecordQuery{Page: 9, PageSize: 3})
	require.NoError(t, err)
	require.Equal(t, 4, total)
	require.Empty(t, page)
}

func TestSessionLifecycle(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := New()

	started := time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)
	require.NoError(t, s.StoreSession(ctx, catalog.Session{
		ID:        "sess-1",
		StartedAt: started,
		Status:    catalog.SessionRunning,
	}))

	succeeded := 12
	completed := started.Add(time.Minute)
	status := catalog.SessionCompleted
	require.NoError(t, s.UpdateSession(ctx, "sess-1", catalog.SessionPatch{
		Status:      &status,
		CompletedAt: &completed,
		Succeeded:   &succeeded,
	}))

	latest, err := s.LatestSession(ctx)
	require.NoError(t, err)
	require.Equal(t, "sess-1", latest.ID)
	require.Equal(t, catalog.SessionCompleted, latest.Status)
	require.Equal(t, 12, latest.Succeeded)
	require.NotNil(t, latest.CompletedAt)

	require.ErrorIs(t, s.UpdateSession(ctx, "sess-404", catalog.SessionPatch{}), catalog.ErrNotFound)
}

func TestLatestSessionEmpty(t *testing.T) {
	t.Parallel()

	_, err := New().LatestSession(context.Background())
	require.ErrorIs(t, err, catalog.ErrNotFound)
}

func TestChangeEventsInRange(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := New()

	day := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	window := []time.Time{
		day.Add(-time.Second),     // before window
		day,                       // inclusive start
		day.Add(12 * time.Hour),   // inside
		day.Add(24 * time.Hour),   // exclusive end
		day.Add(24*time.Hour + 1), // after
	}
	for i, ts := range window {
		require.NoError(t, s.StoreChangeEvent(ctx, catalog.ChangeEvent{
			ID:        string(rune('a' + i)),
			UPC:       "upc-a",
			Kind:      catalog.ChangeNew,
			Timestamp: ts,
		}))
	}

	events, err := s.ChangeEventsInRange(ctx, day, day.Add(24*time.Hour))
	require.NoError(t, err)
	require.Len(t, events, 2)
	require.Equal(t, "b", events[0].ID)
	require.Equal(t, "c", events[1].ID)
}
