package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// IngestReport aggregates what happened during one day's ingestion. It is
// always produced, even when individual records fail: per-record failures
// are collected in Errors, never propagated up to abort the run.
type IngestReport struct {
	RunID              string
	Day                time.Time
	Imported           int
	Discarded          int
	ItemsProcessed     int
	ItemsUnmapped      int
	ItemsRejected      int
	ShortfallUnits     int
	AllocationsSkipped int
	Errors             []string
}

func (r *IngestReport) addError(format string, args ...any) {
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
}

// IngestService drives one day's orders through normalization, idempotent
// persistence, product resolution, and FIFO cost allocation.
type IngestService interface {
	// IngestDay applies raw orders to the store. Running it twice with
	// identical input leaves transactions and line items in the same state
	// and never duplicates cost ledger entries.
	IngestDay(ctx context.Context, day time.Time, raws []RawOrder) *IngestReport
}

type ingestService struct {
	store   Store
	catalog CatalogService
	ledger  BatchLedgerService
}

func NewIngestService(store Store, catalog CatalogService, ledger BatchLedgerService) IngestService {
	return &ingestService{store: store, catalog: catalog, ledger: ledger}
}

func (s *ingestService) IngestDay(ctx context.Context, day time.Time, raws []RawOrder) *IngestReport {
	report := &IngestReport{RunID: uuid.NewString(), Day: day}

	for _, raw := range raws {
		norm, err := NormalizeOrder(raw)
		if errors.Is(err, ErrOrderDiscarded) {
			report.Discarded++
			continue
		}
		if err != nil {
			report.addError("normalize: %v", err)
			continue
		}

		txn := norm.Transaction
		if err := s.store.UpsertTransaction(ctx, txn); err != nil {
			report.addError("transaction %s: upsert failed: %v", txn.TransactionID, err)
			continue
		}
		if err := s.store.ReplaceLineItems(ctx, txn.TransactionID, norm.Items); err != nil {
			report.addError("transaction %s: line item replace failed: %v", txn.TransactionID, err)
			continue
		}
		report.Imported++

		for _, ie := range norm.ItemErrors {
			report.ItemsRejected++
			report.addError("transaction %s: %v", txn.TransactionID, ie)
		}

		// Re-ingestion of a transaction keeps its original cost attribution:
		// the ledger is append-only and batch depletion is monotonic, so
		// allocation is skipped outright when entries already exist.
		skipAllocation, err := s.store.CostEntriesExist(ctx, txn.TransactionID)
		if err != nil {
			report.addError("transaction %s: ledger check failed: %v", txn.TransactionID, err)
			// Allocating blindly here could double-count cost; skip.
			skipAllocation = true
		}

		for _, item := range norm.Items {
			report.ItemsProcessed++

			// Resolution runs even when allocation is skipped so that new
			// product ids are still auto-discovered on re-ingestion.
			mapping, err := s.catalog.Resolve(ctx, item.ExternalProductID, item.ProductName)
			if errors.Is(err, ErrNotMapped) {
				report.ItemsUnmapped++
				continue
			}
			if err != nil {
				report.addError("transaction %s: resolve product %s: %v", txn.TransactionID, item.ExternalProductID, err)
				continue
			}
			if skipAllocation {
				report.AllocationsSkipped++
				continue
			}

			units := item.Qty * mapping.UnitsPerVariant
			result, err := s.ledger.Allocate(ctx, mapping.BaseProduct, units, txn.TransactionID, item.ProductName)
			if err != nil {
				report.addError("transaction %s: allocate %d × %s: %v", txn.TransactionID, units, mapping.BaseProduct, err)
				continue
			}
			report.ShortfallUnits += result.ShortfallUnits
		}
	}
	return report
}
