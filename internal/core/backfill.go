package core

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Backfill drives day-by-day ingestion over a date range. Each day is
// independent and re-runnable: a failed day produces a report carrying its
// error and the loop moves on, while context cancellation stops cleanly at
// the next day boundary.
type Backfill struct {
	Source OrderSource
	Ingest IngestService
	// Locker, when set, serializes runs per day so overlapping scheduled
	// executions cannot race on batch decrements.
	Locker DayLocker
}

// Run ingests every day from start to end inclusive and returns one report
// per day. The returned error is non-nil only for cancellation; per-day
// failures live inside the reports.
func (b *Backfill) Run(ctx context.Context, start, end time.Time, mode SyncMode) ([]*IngestReport, error) {
	var reports []*IngestReport
	day := start.Truncate(24 * time.Hour)
	end = end.Truncate(24 * time.Hour)
	for !day.After(end) {
		if err := ctx.Err(); err != nil {
			return reports, err
		}
		reports = append(reports, b.runDay(ctx, day, mode))
		day = day.AddDate(0, 0, 1)
	}
	return reports, nil
}

func (b *Backfill) runDay(ctx context.Context, day time.Time, mode SyncMode) *IngestReport {
	raws, err := b.Source.FetchOrders(ctx, day, mode)
	if err != nil {
		report := &IngestReport{RunID: uuid.NewString(), Day: day}
		report.addError("fetch orders: %v", err)
		return report
	}

	if b.Locker != nil {
		release, err := b.Locker.AcquireDayLock(ctx, day)
		if err != nil {
			report := &IngestReport{RunID: uuid.NewString(), Day: day}
			report.addError("acquire day lock: %v", err)
			return report
		}
		defer release()
	}

	return b.Ingest.IngestDay(ctx, day, raws)
}
