package diff

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/bookwatch/crawler/internal/catalog"
)

// BuildReport aggregates a day's change events. Subjects are ranked by
// event count descending; ties keep first-encountered order, so the
// ranking is stable across runs over the same event sequence.
func BuildReport(date string, events []catalog.ChangeEvent) catalog.Report {
	report := catalog.Report{
		Date:               date,
		TotalChanges:       len(events),
		ChangesByKind:      make(map[string]int),
		TopChangedSubjects: []catalog.SubjectCount{},
	}

	counts := make(map[string]int)
	var order []string

	for _, ev := range events {
		report.ChangesByKind[string(ev.Kind)]++

		switch ev.Kind {
		case catalog.ChangeNew:
			report.NewRecords++
		case catalog.ChangeRemoved:
			report.RemovedRecords++
		case catalog.ChangeUpdated:
			report.UpdatedRecords++
			for name := range ev.FieldChanges {
				if strings.Contains(name, "price") {
					report.PriceChanges++
				}
				if strings.Contains(name, "availability") {
					report.AvailabilityChanges++
				}
			}
		}

		if _, seen := counts[ev.UPC]; !seen {
			order = append(order, ev.UPC)
		}
		counts[ev.UPC]++
	}

	subjects := make([]catalog.SubjectCount, 0, len(order))
	for _, upc := range order {
		subjects = append(subjects, catalog.SubjectCount{UPC: upc, EventCount: counts[upc]})
	}
	sort.SliceStable(subjects, func(i, j int) bool {
		return subjects[i].EventCount > subjects[j].EventCount
	})
	if len(subjects) > 10 {
		subjects = subjects[:10]
	}
	report.TopChangedSubjects = subjects

	return report
}

// Reporter serves daily reports from persisted change events.
type Reporter struct {
	store  catalog.Store
	logger *zap.Logger
}

// NewReporter builds a Reporter.
func NewReporter(store catalog.Store, logger *zap.Logger) *Reporter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reporter{store: store, logger: logger}
}

// Daily computes the report for the UTC day containing the given time.
func (r *Reporter) Daily(ctx context.Context, day time.Time) (catalog.Report, error) {
	start := day.UTC().Truncate(24 * time.Hour)
	end := start.Add(24 * time.Hour)

	events, err := r.store.ChangeEventsInRange(ctx, start, end)
	if err != nil {
		return catalog.Report{}, fmt.Errorf("load change events: %w", err)
	}

	report := BuildReport(start.Format("2006-01-02"), events)
	r.logger.Info("daily report built",
		zap.String("date", report.Date),
		zap.Int("total_changes", report.TotalChanges),
	)
	return report, nil
}
