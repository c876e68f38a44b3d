package crawl

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/bookwatch/crawler/internal/catalog"
	"github.com/bookwatch/crawler/internal/discovery"
	"github.com/bookwatch/crawler/internal/extract"
	"github.com/bookwatch/crawler/internal/fetch"
	"github.com/bookwatch/crawler/internal/snapshot"
	"github.com/bookwatch/crawler/internal/storage/memory"
)

const baseURL = "https://books.example.test"

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

type seqIDs struct{ n int }

func (g *seqIDs) NewID() (string, error) {
	g.n++
	return fmt.Sprintf("sess-%04d", g.n), nil
}

// siteFetcher serves canned pages and 404s everything else.
type siteFetcher struct {
	pages map[string]string
	errs  map[string]error
}

func (f *siteFetcher) Fetch(_ context.Context, url string) (catalog.FetchResponse, error) {
	if err, ok := f.errs[url]; ok {
		return catalog.FetchResponse{}, err
	}
	body, ok := f.pages[url]
	if !ok {
		return catalog.FetchResponse{URL: url, StatusCode: 404},
			&fetch.NotFoundError{URL: url, StatusCode: 404}
	}
	return catalog.FetchResponse{URL: url, StatusCode: 200, Body: []byte(body)}, nil
}

func productPage(title, upc, price string) string {
	return fmt.Sprintf(`<html><body>
	  <ul class="breadcrumb"><li><a href="/">Home</a></li><li><a href="/poetry">Poetry</a></li></ul>
	  <h1>%s</h1>
	  <p class="price_color">%s</p>
	  <p class="availability">In stock (5 available)</p>
	  <p class="star-rating Four"></p>
	  <table class="table">
	    <tr><th>UPC</th><td>%s</td></tr>
	    <tr><th>Price (excl. tax)</th><td>%s</td></tr>
	    <tr><th>Number of reviews</th><td>2</td></tr>
	  </table>
	</body></html>`, title, price, upc, price)
}

func listingPage(hrefs ...string) string {
	page := "<html><body>"
	for _, href := range hrefs {
		page += fmt.Sprintf(`<h3><a href=%q>x</a></h3>`, href)
	}
	return page + "</body></html>"
}

func threeBookSite() *siteFetcher {
	return &siteFetcher{pages: map[string]string{
		baseURL + "/catalogue/page-1.html": listingPage(
			"book-a_1/index.html", "book-b_2/index.html", "book-c_3/index.html"),
		baseURL + "/catalogue/book-a_1/index.html": productPage("Book A", "upc-a", "£10.00"),
		baseURL + "/catalogue/book-b_2/index.html": productPage("Book B", "upc-b", "£20.00"),
		// book-c has no entry: its product fetch returns 404.
	}}
}

func newOrchestrator(f catalog.Fetcher, store catalog.Store, blobs catalog.BlobStore, cfg Config) *Orchestrator {
	disc := discovery.New(f, discovery.Config{BaseURL: baseURL, PageDelay: time.Millisecond}, nil)
	ex, err := extract.New(baseURL, nil)
	if err != nil {
		panic(err)
	}
	return New(disc, f, ex, store, blobs,
		fixedClock{t: time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)},
		&seqIDs{}, cfg, nil)
}

func TestRunThreeURLsTwoSucceedOneNotFound(t *testing.T) {
	t.Parallel()

	store := memory.New()
	o := newOrchestrator(threeBookSite(), store, nil, Config{})

	sess, err := o.Run(context.Background())
	require.NoError(t, err)

	require.Equal(t, catalog.SessionCompleted, sess.Status)
	require.Equal(t, 3, sess.TotalDiscovered)
	require.Equal(t, 2, sess.Succeeded)
	require.Equal(t, 1, sess.Failed)
	require.Equal(t, 2, sess.Inserted)
	require.NotNil(t, sess.CompletedAt)

	// Persisted session matches the returned one.
	latest, err := store.LatestSession(context.Background())
	require.NoError(t, err)
	require.Equal(t, sess.ID, latest.ID)
	require.Equal(t, catalog.SessionCompleted, latest.Status)
	require.Equal(t, 2, latest.Succeeded)
	require.Equal(t, 1, latest.Failed)

	records, err := store.ListRecords(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, records, 2)

	rec, err := store.GetRecordByUPC(context.Background(), "upc-a")
	require.NoError(t, err)
	require.Equal(t, "Book A", rec.Title)
	require.Equal(t, "Poetry", rec.Category)
	require.Equal(t, catalog.Money(1000), rec.PriceInclTax)
	require.Equal(t, 4, rec.Rating)
}

func TestRunSecondPassIsUnchanged(t *testing.T) {
	t.Parallel()

	store := memory.New()
	site := threeBookSite()

	first, err := newOrchestrator(site, store, nil, Config{}).Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, first.Inserted)

	second, err := newOrchestrator(site, store, nil, Config{}).Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, catalog.SessionCompleted, second.Status)
	require.Equal(t, 2, second.Succeeded)
	require.Equal(t, 0, second.Inserted)
	require.Equal(t, 0, second.Updated)
	require.Equal(t, 2, second.Unchanged)
}

func TestRunResumesRunningSession(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := memory.New()
	require.NoError(t, store.StoreSession(ctx, catalog.Session{
		ID:        "sess-resumed",
		StartedAt: time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC),
		Status:    catalog.SessionRunning,
	}))

	sess, err := newOrchestrator(threeBookSite(), store, nil, Config{Resume: true}).Run(ctx)
	require.NoError(t, err)
	require.Equal(t, "sess-resumed", sess.ID)
	require.Equal(t, catalog.SessionCompleted, sess.Status)
}

func TestRunStartsFreshWhenResumeDisabled(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := memory.New()
	require.NoError(t, store.StoreSession(ctx, catalog.Session{
		ID:        "sess-stale",
		StartedAt: time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC),
		Status:    catalog.SessionRunning,
	}))

	sess, err := newOrchestrator(threeBookSite(), store, nil, Config{}).Run(ctx)
	require.NoError(t, err)
	require.NotEqual(t, "sess-stale", sess.ID)
	require.Equal(t, catalog.SessionCompleted, sess.Status)
}

func TestRunFreshSessionWhenLatestIsTerminal(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := memory.New()
	done := time.Date(2024, 6, 1, 8, 30, 0, 0, time.UTC)
	require.NoError(t, store.StoreSession(ctx, catalog.Session{
		ID:          "sess-old",
		StartedAt:   done.Add(-time.Hour),
		CompletedAt: &done,
		Status:      catalog.SessionCompleted,
	}))

	sess, err := newOrchestrator(threeBookSite(), store, nil, Config{Resume: true}).Run(ctx)
	require.NoError(t, err)
	require.NotEqual(t, "sess-old", sess.ID)
}

func TestRunFailsWhenDiscoveryCollectsNothing(t *testing.T) {
	t.Parallel()

	site := &siteFetcher{errs: map[string]error{
		baseURL + "/catalogue/page-1.html": &fetch.TransientError{
			URL: baseURL + "/catalogue/page-1.html",
			Err: errors.New("connection refused"),
		},
	}}
	store := memory.New()

	sess, err := newOrchestrator(site, store, nil, Config{}).Run(context.Background())
	require.Error(t, err)
	require.Equal(t, catalog.SessionFailed, sess.Status)
	require.NotEmpty(t, sess.ErrorMessage)
	require.NotNil(t, sess.CompletedAt)

	latest, lerr := store.LatestSession(context.Background())
	require.NoError(t, lerr)
	require.Equal(t, catalog.SessionFailed, latest.Status)
}

func TestRunArchivesRawHTML(t *testing.T) {
	t.Parallel()

	blobs, err := snapshot.New(snapshot.Config{BaseDir: t.TempDir()})
	require.NoError(t, err)

	store := memory.New()
	sess, err := newOrchestrator(threeBookSite(), store, blobs, Config{KeepRawHTML: true}).Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, sess.Succeeded)

	rec, err := store.GetRecordByUPC(context.Background(), "upc-a")
	require.NoError(t, err)
	require.Contains(t, rec.SnapshotURI, "file://")
	require.Contains(t, rec.SnapshotURI, sess.ID)
}

func TestSnapshotDoesNotWriteRecords(t *testing.T) {
	t.Parallel()

	store := memory.New()
	o := newOrchestrator(threeBookSite(), store, nil, Config{})

	current, err := o.Snapshot(context.Background())
	require.NoError(t, err)
	require.Len(t, current, 2)
	require.Contains(t, current, baseURL+"/catalogue/book-a_1/index.html")
	require.Contains(t, current, baseURL+"/catalogue/book-b_2/index.html")

	records, err := store.ListRecords(context.Background(), 0)
	require.NoError(t, err)
	require.Empty(t, records)

	_, err = store.LatestSession(context.Background())
	require.ErrorIs(t, err, catalog.ErrNotFound)
}
