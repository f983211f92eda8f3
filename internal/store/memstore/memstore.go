// Package memstore provides an in-memory core.Store. It backs the engine's
// unit tests and local dry runs where no database is available, while
// enforcing the same invariants the SQL store does (insert-once product map,
// monotonic batch depletion, ledger-sum bound).
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"cogs-sync/internal/core"
)

type Store struct {
	mu sync.Mutex

	transactions map[string]core.Transaction
	items        map[string][]core.LineItem
	products     map[string]core.ProductMap
	batches      map[int]*core.InventoryBatch
	ledger       []core.CostLedgerEntry

	// UpsertFailures injects an error for a given transaction id, for tests
	// exercising the continue-on-failure policy.
	UpsertFailures map[string]error
}

func New() *Store {
	return &Store{
		transactions: make(map[string]core.Transaction),
		items:        make(map[string][]core.LineItem),
		products:     make(map[string]core.ProductMap),
		batches:      make(map[int]*core.InventoryBatch),
	}
}

// AddBatch seeds one inventory batch, standing in for the purchasing workflow.
func (s *Store) AddBatch(b core.InventoryBatch) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if b.Status == "" {
		b.Status = core.BatchActive
	}
	s.batches[b.BatchID] = &b
}

// SetProductMap seeds or overwrites a mapping row, standing in for the
// back-office curation action.
func (s *Store) SetProductMap(pm core.ProductMap) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.products[pm.ProductID] = pm
}

// ── core.Store ───────────────────────────────────────────────────────────────

func (s *Store) UpsertTransaction(_ context.Context, t core.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err, ok := s.UpsertFailures[t.TransactionID]; ok {
		return err
	}
	s.transactions[t.TransactionID] = t
	return nil
}

func (s *Store) ReplaceLineItems(_ context.Context, transactionID string, items []core.LineItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[transactionID] = append([]core.LineItem(nil), items...)
	return nil
}

func (s *Store) GetProductMap(_ context.Context, productID string) (*core.ProductMap, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	pm, ok := s.products[productID]
	if !ok {
		return nil, nil
	}
	out := pm
	return &out, nil
}

func (s *Store) InsertProductMap(_ context.Context, pm core.ProductMap) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.products[pm.ProductID]; ok {
		// Insert-once: an existing row is never overwritten.
		return nil
	}
	s.products[pm.ProductID] = pm
	return nil
}

func (s *Store) ActiveBatches(_ context.Context, baseProduct string) ([]core.InventoryBatch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.InventoryBatch
	for _, b := range s.batches {
		if b.BaseProduct == baseProduct && b.Status == core.BatchActive {
			out = append(out, *b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].BatchID < out[j].BatchID })
	return out, nil
}

func (s *Store) ApplyAllocation(_ context.Context, deductions []core.BatchDeduction, entries []core.CostLedgerEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	// Validate everything before mutating so the step stays atomic.
	for _, d := range deductions {
		b, ok := s.batches[d.BatchID]
		if !ok {
			return fmt.Errorf("batch %d not found", d.BatchID)
		}
		if b.Status != core.BatchActive {
			return fmt.Errorf("batch %d is not active", d.BatchID)
		}
		if d.Take <= 0 || d.Take > b.RemainingQty {
			return fmt.Errorf("batch %d: cannot take %d of %d remaining", d.BatchID, d.Take, b.RemainingQty)
		}
	}
	for _, d := range deductions {
		b := s.batches[d.BatchID]
		b.RemainingQty -= d.Take
		if b.RemainingQty == 0 {
			b.Status = core.BatchDepleted
		}
	}
	s.ledger = append(s.ledger, entries...)
	return nil
}

func (s *Store) CostEntriesExist(_ context.Context, transactionID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.ledger {
		if e.TransactionID == transactionID {
			return true, nil
		}
	}
	return false, nil
}

// ── Inspection helpers (tests) ───────────────────────────────────────────────

func (s *Store) Transaction(id string) (core.Transaction, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.transactions[id]
	return t, ok
}

func (s *Store) TransactionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.transactions)
}

func (s *Store) LineItems(transactionID string) []core.LineItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]core.LineItem(nil), s.items[transactionID]...)
}

func (s *Store) Product(id string) (core.ProductMap, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	pm, ok := s.products[id]
	return pm, ok
}

func (s *Store) ProductCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.products)
}

func (s *Store) Batch(id int) (core.InventoryBatch, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.batches[id]
	if !ok {
		return core.InventoryBatch{}, false
	}
	return *b, true
}

func (s *Store) LedgerEntries(transactionID string) []core.CostLedgerEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.CostLedgerEntry
	for _, e := range s.ledger {
		if e.TransactionID == transactionID {
			out = append(out, e)
		}
	}
	return out
}

// DeductedFromBatch sums qty_deducted across all ledger entries for a batch.
func (s *Store) DeductedFromBatch(batchID int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	total := 0
	for _, e := range s.ledger {
		if e.BatchID == batchID {
			total += e.QtyDeducted
		}
	}
	return total
}
