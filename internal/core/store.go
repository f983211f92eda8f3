package core

import (
	"context"
	"errors"
	"time"
)

// ErrNotMapped signals that an external product id has no curated base
// product yet. It is a soft, recoverable condition: the sale is still
// recorded, cost allocation is skipped, and the product sits in the map
// flagged needs_review until an operator assigns a base product.
var ErrNotMapped = errors.New("product not mapped to a base product")

// BatchDeduction is one planned decrement against an inventory batch,
// produced by the FIFO walk and applied by the store.
type BatchDeduction struct {
	BatchID int
	Take    int
	// Deplete is set when the decrement brings remaining_qty to zero and the
	// batch must flip to depleted.
	Deplete bool
}

// Store is the persistent-store collaborator backing the ingestion engine.
// It covers four tables: transactions, transaction_items, product_map, and
// inventory_batches/transaction_cost_ledger. Implementations must make
// ApplyAllocation atomic: a batch decrement and its ledger entries land
// together or not at all, so the ledger-sum invariant survives partial
// failure.
type Store interface {
	// UpsertTransaction writes a transaction with full-overwrite semantics
	// keyed on transaction_id. This is how a later status change (sale →
	// refunded) is reflected; rows are never partially patched.
	UpsertTransaction(ctx context.Context, t Transaction) error

	// ReplaceLineItems deletes all line items for the transaction and inserts
	// the given complete set, preventing stale leftovers from a previous
	// ingestion of the same order.
	ReplaceLineItems(ctx context.Context, transactionID string, items []LineItem) error

	// GetProductMap returns the mapping row for an external product id, or
	// nil when the id has never been seen.
	GetProductMap(ctx context.Context, productID string) (*ProductMap, error)

	// InsertProductMap inserts a mapping row if and only if the product id is
	// unseen. An existing row is never overwritten.
	InsertProductMap(ctx context.Context, pm ProductMap) error

	// ActiveBatches returns all active batches for a base product ordered by
	// ascending batch_id (oldest purchase first).
	ActiveBatches(ctx context.Context, baseProduct string) ([]InventoryBatch, error)

	// ApplyAllocation applies batch decrements and appends the matching cost
	// ledger entries as one atomic step.
	ApplyAllocation(ctx context.Context, deductions []BatchDeduction, entries []CostLedgerEntry) error

	// CostEntriesExist reports whether any cost ledger entries are already
	// attributed to the transaction.
	CostEntriesExist(ctx context.Context, transactionID string) (bool, error)
}

// DayLocker serializes ingestion runs that could otherwise race on batch
// read-modify-write cycles. The lock is keyed on the day being processed;
// release must always be called, even when ingestion fails.
type DayLocker interface {
	AcquireDayLock(ctx context.Context, day time.Time) (release func(), err error)
}

// SyncMode selects which upstream order filter a fetch requests. It affects
// only the source query, never normalization or allocation.
type SyncMode string

const (
	SyncFull        SyncMode = "FULL"
	SyncRefundsOnly SyncMode = "REFUNDS_ONLY"
)

// OrderSource produces the raw orders recorded upstream for one day.
type OrderSource interface {
	FetchOrders(ctx context.Context, day time.Time, mode SyncMode) ([]RawOrder, error)
}
