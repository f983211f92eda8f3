package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"cogs-sync/internal/checkoutchamp"
	"cogs-sync/internal/core"
	"cogs-sync/internal/db"
	"cogs-sync/internal/store/pgstore"
)

func main() {
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	loginID := os.Getenv("CHECKOUT_CHAMP_ID")
	password := os.Getenv("CHECKOUT_CHAMP_PASS")
	if loginID == "" || password == "" {
		log.Fatal("CHECKOUT_CHAMP_ID and CHECKOUT_CHAMP_PASS must be set")
	}

	pool, err := db.NewPool(ctx)
	if err != nil {
		log.Fatalf("Unable to connect to database: %v", err)
	}
	defer pool.Close()

	start, end := dateRange()
	mode := syncMode()
	log.Printf("Backfilling %s to %s (%s)", start.Format("2006-01-02"), end.Format("2006-01-02"), mode)

	store := pgstore.New(pool)
	backfill := &core.Backfill{
		Source: checkoutchamp.New(loginID, password),
		Ingest: core.NewIngestService(store, core.NewCatalogService(store), core.NewBatchLedgerService(store)),
		Locker: store,
	}

	reports, runErr := backfill.Run(ctx, start, end, mode)

	var imported, discarded, items, unmapped, rejected, shortfall, failed int
	for _, r := range reports {
		log.Printf("[%s] run %s: imported=%d discarded=%d items=%d unmapped=%d rejected=%d shortfall=%d skipped=%d errors=%d",
			r.Day.Format("2006-01-02"), r.RunID, r.Imported, r.Discarded, r.ItemsProcessed,
			r.ItemsUnmapped, r.ItemsRejected, r.ShortfallUnits, r.AllocationsSkipped, len(r.Errors))
		for _, msg := range r.Errors {
			log.Printf("[%s]   %s", r.Day.Format("2006-01-02"), msg)
		}
		imported += r.Imported
		discarded += r.Discarded
		items += r.ItemsProcessed
		unmapped += r.ItemsUnmapped
		rejected += r.ItemsRejected
		shortfall += r.ShortfallUnits
		failed += len(r.Errors)
	}
	log.Printf("Done: %d days, %d transactions imported, %d discarded, %d items (%d unmapped, %d rejected), %d shortfall units, %d record errors",
		len(reports), imported, discarded, items, unmapped, rejected, shortfall, failed)

	if runErr != nil {
		log.Fatalf("Backfill interrupted: %v", runErr)
	}
}

// dateRange resolves the window to sync. SYNC_DAYS=N means the last N days;
// otherwise START_DATE/END_DATE (YYYY-MM-DD) bound an explicit window; the
// default is a three-day sweep, enough to catch late status changes.
func dateRange() (time.Time, time.Time) {
	today := time.Now().UTC().Truncate(24 * time.Hour)

	if v := os.Getenv("SYNC_DAYS"); v != "" {
		days, err := strconv.Atoi(v)
		if err != nil || days < 1 {
			log.Fatalf("Invalid SYNC_DAYS %q", v)
		}
		return today.AddDate(0, 0, -days), today
	}

	if s, e := os.Getenv("START_DATE"), os.Getenv("END_DATE"); s != "" && e != "" {
		start, err := time.Parse("2006-01-02", s)
		if err != nil {
			log.Fatalf("Invalid START_DATE %q", s)
		}
		end, err := time.Parse("2006-01-02", e)
		if err != nil {
			log.Fatalf("Invalid END_DATE %q", e)
		}
		if end.Before(start) {
			log.Fatalf("END_DATE %s precedes START_DATE %s", e, s)
		}
		return start, end
	}

	return today.AddDate(0, 0, -3), today
}

func syncMode() core.SyncMode {
	switch os.Getenv("SYNC_MODE") {
	case "REFUNDS", "REFUNDS_ONLY":
		return core.SyncRefundsOnly
	default:
		return core.SyncFull
	}
}
