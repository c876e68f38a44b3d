package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/bookwatch/crawler/internal/catalog"
	"github.com/bookwatch/crawler/internal/diff"
	"github.com/bookwatch/crawler/internal/storage/memory"
)

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

type fakeCrawlRunner struct {
	runs atomic.Int32
}

func (f *fakeCrawlRunner) Run(context.Context) (catalog.Session, error) {
	f.runs.Add(1)
	return catalog.Session{ID: "sess-1", Status: catalog.SessionCompleted}, nil
}

type fakeDetectRunner struct {
	runs atomic.Int32
}

func (f *fakeDetectRunner) Run(context.Context) (diff.Summary, error) {
	f.runs.Add(1)
	return diff.Summary{Total: 2, New: 2}, nil
}

func seedRecord(t *testing.T, store catalog.Store, url, upc, category string) {
	t.Helper()
	_, err := store.UpsertRecord(context.Background(), catalog.Record{
		Title:          "Title " + upc,
		Category:       category,
		UPC:            upc,
		PriceInclTax:   1000,
		PriceExclTax:   1000,
		AvailableCount: 3,
		URL:            url,
	})
	require.NoError(t, err)
}

func newTestServer(t *testing.T, store catalog.Store, cfg Config) (*Server, *fakeCrawlRunner, *fakeDetectRunner) {
	t.Helper()
	crawler := &fakeCrawlRunner{}
	detector := &fakeDetectRunner{}
	reporter := diff.NewReporter(store, nil)
	clock := fixedClock{t: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)}
	return NewServer(store, crawler, detector, reporter, clock, cfg, nil), crawler, detector
}

func doRequest(t *testing.T, s *Server, method, path string, header http.Header) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	for k, vals := range header {
		for _, v := range vals {
			req.Header.Add(k, v)
		}
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHealthz(t *testing.T) {
	t.Parallel()

	s, _, _ := newTestServer(t, memory.New(), Config{})
	rec := doRequest(t, s, http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestListRecordsFiltersByCategory(t *testing.T) {
	t.Parallel()

	store := memory.New()
	seedRecord(t, store, "https://s.test/a", "upc-a", "Poetry")
	seedRecord(t, store, "https://s.test/b", "upc-b", "Travel")

	s, _, _ := newTestServer(t, store, Config{})
	rec := doRequest(t, s, http.MethodGet, "/v1/records?category=Poetry", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Records []catalog.Record `json:"records"`
		Total   int              `json:"total"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, 1, body.Total)
	require.Equal(t, "upc-a", body.Records[0].UPC)
}

func TestListRecordsRejectsBadInStock(t *testing.T) {
	t.Parallel()

	s, _, _ := newTestServer(t, memory.New(), Config{})
	rec := doRequest(t, s, http.MethodGet, "/v1/records?in_stock=maybe", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetRecordByUPC(t *testing.T) {
	t.Parallel()

	store := memory.New()
	seedRecord(t, store, "https://s.test/a", "upc-a", "Poetry")

	s, _, _ := newTestServer(t, store, Config{})

	rec := doRequest(t, s, http.MethodGet, "/v1/records/upc-a", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(t, s, http.MethodGet, "/v1/records/upc-missing", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestLatestSession(t *testing.T) {
	t.Parallel()

	store := memory.New()
	s, _, _ := newTestServer(t, store, Config{})

	rec := doRequest(t, s, http.MethodGet, "/v1/sessions/latest", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)

	require.NoError(t, store.StoreSession(context.Background(), catalog.Session{
		ID:        "sess-1",
		StartedAt: time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC),
		Status:    catalog.SessionCompleted,
	}))

	rec = doRequest(t, s, http.MethodGet, "/v1/sessions/latest", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var sess catalog.Session
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sess))
	require.Equal(t, "sess-1", sess.ID)
}

func TestListChangesForDate(t *testing.T) {
	t.Parallel()

	store := memory.New()
	require.NoError(t, store.StoreChangeEvent(context.Background(), catalog.ChangeEvent{
		ID:        "ev-1",
		UPC:       "upc-a",
		Kind:      catalog.ChangeNew,
		Timestamp: time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC),
	}))

	s, _, _ := newTestServer(t, store, Config{})

	rec := doRequest(t, s, http.MethodGet, "/v1/changes?date=2024-06-01", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Date   string                `json:"date"`
		Total  int                   `json:"total"`
		Events []catalog.ChangeEvent `json:"events"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "2024-06-01", body.Date)
	require.Equal(t, 1, body.Total)

	rec = doRequest(t, s, http.MethodGet, "/v1/changes?date=2024-06-02", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, 0, body.Total)

	rec = doRequest(t, s, http.MethodGet, "/v1/changes?date=junk", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDailyReport(t *testing.T) {
	t.Parallel()

	store := memory.New()
	require.NoError(t, store.StoreChangeEvent(context.Background(), catalog.ChangeEvent{
		ID:        "ev-1",
		UPC:       "upc-a",
		Kind:      catalog.ChangeUpdated,
		FieldChanges: map[string]catalog.FieldChange{
			"price_incl_tax": {Old: "10.00", New: "12.00"},
		},
		Timestamp: time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC),
	}))

	s, _, _ := newTestServer(t, store, Config{})
	rec := doRequest(t, s, http.MethodGet, "/v1/reports/daily?date=2024-06-01", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var report catalog.Report
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	require.Equal(t, 1, report.TotalChanges)
	require.Equal(t, 1, report.PriceChanges)
}

func TestTriggerCrawlRunsAsync(t *testing.T) {
	t.Parallel()

	s, crawler, _ := newTestServer(t, memory.New(), Config{})

	rec := doRequest(t, s, http.MethodPost, "/v1/crawl", nil)
	require.Equal(t, http.StatusAccepted, rec.Code)

	require.Eventually(t, func() bool {
		return crawler.runs.Load() == 1
	}, time.Second, 10*time.Millisecond)
}

func TestTriggerDetectRunsAsync(t *testing.T) {
	t.Parallel()

	s, _, detector := newTestServer(t, memory.New(), Config{})

	rec := doRequest(t, s, http.MethodPost, "/v1/detect", nil)
	require.Equal(t, http.StatusAccepted, rec.Code)

	require.Eventually(t, func() bool {
		return detector.runs.Load() == 1
	}, time.Second, 10*time.Millisecond)
}

func TestAPIKeyMiddleware(t *testing.T) {
	t.Parallel()

	store := memory.New()
	s, _, _ := newTestServer(t, store, Config{AuthEnabled: true, APIKey: "sekret"})

	rec := doRequest(t, s, http.MethodGet, "/v1/records", nil)
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec = doRequest(t, s, http.MethodGet, "/v1/records",
		http.Header{"X-Api-Key": []string{"sekret"}})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(t, s, http.MethodGet, "/v1/records?api_key=sekret", nil)
	require.Equal(t, http.StatusOK, rec.Code)
}
