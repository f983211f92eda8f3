package core

import (
	"context"
	"fmt"
)

// AllocationResult reports how a requested deduction was met. A non-zero
// ShortfallUnits is an out-of-stock condition: reportable, not fatal — the
// sale stands and the deficit is left for reconciliation.
type AllocationResult struct {
	FulfilledUnits int
	ShortfallUnits int
	Entries        []CostLedgerEntry
}

// BatchLedgerService allocates sold units against inventory batches using
// strict chronological FIFO costing: active batches are consumed in ascending
// batch_id order, and each deduction snapshots the batch's unit cost into an
// append-only ledger entry.
type BatchLedgerService interface {
	Allocate(ctx context.Context, baseProduct string, unitsNeeded int, transactionID, productName string) (*AllocationResult, error)
}

type batchLedgerService struct {
	store Store
}

func NewBatchLedgerService(store Store) BatchLedgerService {
	return &batchLedgerService{store: store}
}

func (s *batchLedgerService) Allocate(ctx context.Context, baseProduct string, unitsNeeded int, transactionID, productName string) (*AllocationResult, error) {
	if unitsNeeded <= 0 {
		return nil, fmt.Errorf("units to allocate must be positive, got %d", unitsNeeded)
	}

	batches, err := s.store.ActiveBatches(ctx, baseProduct)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch active batches for %s: %w", baseProduct, err)
	}

	needed := unitsNeeded
	var deductions []BatchDeduction
	var entries []CostLedgerEntry

	// Oldest purchase first. Batches with equal unit cost are still consumed
	// in batch_id order: chronological FIFO, never cost-optimized.
	for _, batch := range batches {
		if needed == 0 {
			break
		}
		if batch.RemainingQty <= 0 {
			continue
		}
		take := batch.RemainingQty
		if needed < take {
			take = needed
		}
		deductions = append(deductions, BatchDeduction{
			BatchID: batch.BatchID,
			Take:    take,
			Deplete: take == batch.RemainingQty,
		})
		entries = append(entries, CostLedgerEntry{
			TransactionID:     transactionID,
			ProductName:       productName,
			BatchID:           batch.BatchID,
			QtyDeducted:       take,
			CostPerUnitAtTime: batch.UnitCost,
		})
		needed -= take
	}

	if len(deductions) > 0 {
		// One atomic step: decrements and their ledger entries land together
		// or not at all.
		if err := s.store.ApplyAllocation(ctx, deductions, entries); err != nil {
			return nil, fmt.Errorf("failed to apply allocation for transaction %s: %w", transactionID, err)
		}
	}

	return &AllocationResult{
		FulfilledUnits: unitsNeeded - needed,
		ShortfallUnits: needed,
		Entries:        entries,
	}, nil
}
