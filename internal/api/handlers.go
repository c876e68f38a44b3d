package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/bookwatch/crawler/internal/catalog"
)

// busyFlag serializes background triggers: only one crawl and one
// detection run at a time.
type busyFlag struct {
	v atomic.Bool
}

func (b *busyFlag) acquire() bool { return b.v.CompareAndSwap(false, true) }
func (b *busyFlag) release()      { b.v.Store(false) }

func (s *Server) listRecords(w http.ResponseWriter, r *http.Request) {
	q := catalog.RecordQuery{
		Page:     queryInt(r, "page", 1),
		PageSize: queryInt(r, "page_size", 20),
		Category: r.URL.Query().Get("category"),
	}
	if q.PageSize > 100 {
		q.PageSize = 100
	}
	if raw := r.URL.Query().Get("in_stock"); raw != "" {
		inStock, err := strconv.ParseBool(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "in_stock must be a boolean")
			return
		}
		q.InStock = &inStock
	}

	records, total, err := s.store.QueryRecords(r.Context(), q)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to query records")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"records":   records,
		"total":     total,
		"page":      q.Page,
		"page_size": q.PageSize,
	})
}

func (s *Server) getRecord(w http.ResponseWriter, r *http.Request) {
	upc := chi.URLParam(r, "upc")
	rec, err := s.store.GetRecordByUPC(r.Context(), upc)
	if errors.Is(err, catalog.ErrNotFound) {
		writeError(w, http.StatusNotFound, "record not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load record")
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) latestSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.store.LatestSession(r.Context())
	if errors.Is(err, catalog.ErrNotFound) {
		writeError(w, http.StatusNotFound, "no sessions yet")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load session")
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (s *Server) listChanges(w http.ResponseWriter, r *http.Request) {
	day, err := s.queryDate(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
		return
	}
	start := day.UTC().Truncate(24 * time.Hour)

	events, err := s.store.ChangeEventsInRange(r.Context(), start, start.Add(24*time.Hour))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load change events")
		return
	}
	if events == nil {
		events = []catalog.ChangeEvent{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"date":   start.Format("2006-01-02"),
		"total":  len(events),
		"events": events,
	})
}

func (s *Server) dailyReport(w http.ResponseWriter, r *http.Request) {
	day, err := s.queryDate(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
		return
	}

	report, err := s.reporter.Daily(r.Context(), day)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to build report")
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) triggerCrawl(w http.ResponseWriter, _ *http.Request) {
	if !s.crawlBusy.acquire() {
		writeError(w, http.StatusConflict, "a crawl is already running")
		return
	}
	go func() {
		defer s.crawlBusy.release()
		sess, err := s.crawler.Run(context.Background())
		if err != nil {
			s.logger.Error("triggered crawl failed", zap.Error(err))
			return
		}
		s.logger.Info("triggered crawl finished",
			zap.String("session_id", sess.ID),
			zap.String("status", string(sess.Status)),
		)
	}()
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "crawl started"})
}

func (s *Server) triggerDetect(w http.ResponseWriter, _ *http.Request) {
	if !s.detectBusy.acquire() {
		writeError(w, http.StatusConflict, "a detection run is already running")
		return
	}
	go func() {
		defer s.detectBusy.release()
		summary, err := s.detector.Run(context.Background())
		if err != nil {
			s.logger.Error("triggered detection failed", zap.Error(err))
			return
		}
		s.logger.Info("triggered detection finished", zap.Int("events", summary.Total))
	}()
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "detection started"})
}

// queryDate parses the optional date parameter, defaulting to today.
func (s *Server) queryDate(r *http.Request) (time.Time, error) {
	raw := r.URL.Query().Get("date")
	if raw == "" {
		return s.clock.Now(), nil
	}
	return time.Parse("2006-01-02", raw)
}

func queryInt(r *http.Request, key string, def int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return def
	}
	return n
}
