package core_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"cogs-sync/internal/core"
	"cogs-sync/internal/store/memstore"
)

type fakeSource struct {
	orders map[string][]core.RawOrder
	fail   map[string]error
	calls  []string
}

func (f *fakeSource) FetchOrders(_ context.Context, day time.Time, _ core.SyncMode) ([]core.RawOrder, error) {
	key := day.Format("2006-01-02")
	f.calls = append(f.calls, key)
	if err := f.fail[key]; err != nil {
		return nil, err
	}
	return f.orders[key], nil
}

type fakeLocker struct {
	acquired int
	released int
}

func (l *fakeLocker) AcquireDayLock(context.Context, time.Time) (func(), error) {
	l.acquired++
	return func() { l.released++ }, nil
}

func TestBackfill_RunCoversRangeInclusive(t *testing.T) {
	store := memstore.New()
	source := &fakeSource{
		orders: map[string][]core.RawOrder{
			"2026-08-29": {decodeRawOrder(t, `{"orderId":"A-1","orderStatus":"COMPLETE","orderType":"SALE","totalAmount":10}`)},
		},
	}
	locker := &fakeLocker{}
	backfill := &core.Backfill{Source: source, Ingest: newEngine(store), Locker: locker}

	start := time.Date(2026, 8, 28, 0, 0, 0, 0, time.UTC)
	end := time.Date(2026, 8, 30, 0, 0, 0, 0, time.UTC)
	reports, err := backfill.Run(context.Background(), start, end, core.SyncFull)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if len(reports) != 3 {
		t.Fatalf("expected 3 daily reports, got %d", len(reports))
	}
	if len(source.calls) != 3 || source.calls[0] != "2026-08-28" || source.calls[2] != "2026-08-30" {
		t.Errorf("unexpected fetch sequence: %v", source.calls)
	}
	if reports[1].Imported != 1 {
		t.Errorf("middle day should import 1 transaction, got %d", reports[1].Imported)
	}
	if locker.acquired != 3 || locker.released != 3 {
		t.Errorf("every day must be locked and released, got %d/%d", locker.acquired, locker.released)
	}
}

func TestBackfill_FetchFailureIsContained(t *testing.T) {
	store := memstore.New()
	source := &fakeSource{
		fail: map[string]error{"2026-08-28": errors.New("upstream 502")},
		orders: map[string][]core.RawOrder{
			"2026-08-29": {decodeRawOrder(t, `{"orderId":"A-2","orderStatus":"COMPLETE","orderType":"SALE","totalAmount":10}`)},
		},
	}
	backfill := &core.Backfill{Source: source, Ingest: newEngine(store)}

	start := time.Date(2026, 8, 28, 0, 0, 0, 0, time.UTC)
	end := time.Date(2026, 8, 29, 0, 0, 0, 0, time.UTC)
	reports, err := backfill.Run(context.Background(), start, end, core.SyncFull)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if len(reports) != 2 {
		t.Fatalf("expected 2 reports, got %d", len(reports))
	}
	if len(reports[0].Errors) != 1 {
		t.Errorf("failed day should carry its error, got %v", reports[0].Errors)
	}
	if reports[1].Imported != 1 {
		t.Errorf("next day should proceed normally, got %d imported", reports[1].Imported)
	}
}

func TestBackfill_Cancellation(t *testing.T) {
	store := memstore.New()
	source := &fakeSource{}
	backfill := &core.Backfill{Source: source, Ingest: newEngine(store)}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2026, 8, 31, 0, 0, 0, 0, time.UTC)
	reports, err := backfill.Run(ctx, start, end, core.SyncFull)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if len(reports) != 0 {
		t.Errorf("cancelled run should stop at the day boundary, got %d reports", len(reports))
	}
}
