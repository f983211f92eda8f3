// Package pgstore implements core.Store on Postgres via pgx. Allocation
// writes (batch decrements plus their ledger entries) are applied inside a
// single transaction with conditional decrements, so the ledger-sum invariant
// holds even under concurrent runs or partial failure.
package pgstore

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"cogs-sync/internal/core"
)

type Store struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) UpsertTransaction(ctx context.Context, t core.Transaction) error {
	var date any
	if !t.Date.IsZero() {
		date = t.Date
	}
	var raw any
	if len(t.RawData) > 0 {
		raw = []byte(t.RawData)
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO transactions (
			transaction_id, date, total_amount, event_type, revenue_type,
			payment_status, campaign_id, campaign_name, traffic_source,
			affiliate_id, currency, customer_email, customer_state,
			customer_country, raw_data
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		ON CONFLICT (transaction_id) DO UPDATE SET
			date             = EXCLUDED.date,
			total_amount     = EXCLUDED.total_amount,
			event_type       = EXCLUDED.event_type,
			revenue_type     = EXCLUDED.revenue_type,
			payment_status   = EXCLUDED.payment_status,
			campaign_id      = EXCLUDED.campaign_id,
			campaign_name    = EXCLUDED.campaign_name,
			traffic_source   = EXCLUDED.traffic_source,
			affiliate_id     = EXCLUDED.affiliate_id,
			currency         = EXCLUDED.currency,
			customer_email   = EXCLUDED.customer_email,
			customer_state   = EXCLUDED.customer_state,
			customer_country = EXCLUDED.customer_country,
			raw_data         = EXCLUDED.raw_data
	`, t.TransactionID, date, t.TotalAmount, t.EventType, t.RevenueType,
		t.PaymentStatus, t.CampaignID, t.CampaignName, t.TrafficSource,
		t.AffiliateID, t.Currency, t.CustomerEmail, t.CustomerState,
		t.CustomerCountry, raw)
	if err != nil {
		return fmt.Errorf("failed to upsert transaction %s: %w", t.TransactionID, err)
	}
	return nil
}

func (s *Store) ReplaceLineItems(ctx context.Context, transactionID string, items []core.LineItem) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx,
		"DELETE FROM transaction_items WHERE transaction_id = $1", transactionID,
	); err != nil {
		return fmt.Errorf("failed to delete line items for %s: %w", transactionID, err)
	}

	for _, item := range items {
		_, err := tx.Exec(ctx, `
			INSERT INTO transaction_items (
				transaction_id, product_name, qty, external_product_id,
				campaign_product_id, sku, unit_price
			)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`, item.TransactionID, item.ProductName, item.Qty, item.ExternalProductID,
			item.CampaignProductID, item.SKU, item.UnitPrice)
		if err != nil {
			return fmt.Errorf("failed to insert line item %q for %s: %w", item.ProductName, transactionID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit line item replacement for %s: %w", transactionID, err)
	}
	return nil
}

func (s *Store) GetProductMap(ctx context.Context, productID string) (*core.ProductMap, error) {
	var pm core.ProductMap
	err := s.pool.QueryRow(ctx, `
		SELECT product_id, offer_name, base_product, units_per_variant, status
		FROM product_map
		WHERE product_id = $1
	`, productID).Scan(&pm.ProductID, &pm.OfferName, &pm.BaseProduct, &pm.UnitsPerVariant, &pm.Status)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query product map for %s: %w", productID, err)
	}
	return &pm, nil
}

func (s *Store) InsertProductMap(ctx context.Context, pm core.ProductMap) error {
	// Insert-once: concurrent discoverers of the same id are harmless.
	_, err := s.pool.Exec(ctx, `
		INSERT INTO product_map (product_id, offer_name, base_product, units_per_variant, status)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (product_id) DO NOTHING
	`, pm.ProductID, pm.OfferName, pm.BaseProduct, pm.UnitsPerVariant, pm.Status)
	if err != nil {
		return fmt.Errorf("failed to insert product map row for %s: %w", pm.ProductID, err)
	}
	return nil
}

func (s *Store) ActiveBatches(ctx context.Context, baseProduct string) ([]core.InventoryBatch, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT batch_id, base_product, remaining_qty, unit_cost, status
		FROM inventory_batches
		WHERE base_product = $1 AND status = 'active'
		ORDER BY batch_id
	`, baseProduct)
	if err != nil {
		return nil, fmt.Errorf("failed to query active batches for %s: %w", baseProduct, err)
	}
	defer rows.Close()

	var batches []core.InventoryBatch
	for rows.Next() {
		var b core.InventoryBatch
		if err := rows.Scan(&b.BatchID, &b.BaseProduct, &b.RemainingQty, &b.UnitCost, &b.Status); err != nil {
			return nil, fmt.Errorf("failed to scan batch: %w", err)
		}
		batches = append(batches, b)
	}
	return batches, rows.Err()
}

func (s *Store) ApplyAllocation(ctx context.Context, deductions []core.BatchDeduction, entries []core.CostLedgerEntry) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin allocation transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, d := range deductions {
		// The remaining_qty guard rejects the decrement if another run got
		// there first; the whole allocation rolls back and the caller
		// re-reads batch state.
		tag, err := tx.Exec(ctx, `
			UPDATE inventory_batches
			SET remaining_qty = remaining_qty - $1,
			    status = CASE WHEN remaining_qty - $1 <= 0 THEN 'depleted' ELSE status END
			WHERE batch_id = $2 AND status = 'active' AND remaining_qty >= $1
		`, d.Take, d.BatchID)
		if err != nil {
			return fmt.Errorf("failed to deduct %d from batch %d: %w", d.Take, d.BatchID, err)
		}
		if tag.RowsAffected() != 1 {
			return fmt.Errorf("batch %d changed concurrently, allocation aborted", d.BatchID)
		}
	}

	for _, e := range entries {
		_, err := tx.Exec(ctx, `
			INSERT INTO transaction_cost_ledger (
				transaction_id, product_name, batch_id, qty_deducted, cost_per_unit_at_time
			)
			VALUES ($1, $2, $3, $4, $5)
		`, e.TransactionID, e.ProductName, e.BatchID, e.QtyDeducted, e.CostPerUnitAtTime)
		if err != nil {
			return fmt.Errorf("failed to insert cost ledger entry for %s: %w", e.TransactionID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit allocation: %w", err)
	}
	return nil
}

func (s *Store) CostEntriesExist(ctx context.Context, transactionID string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		"SELECT EXISTS (SELECT 1 FROM transaction_cost_ledger WHERE transaction_id = $1)",
		transactionID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check cost ledger for %s: %w", transactionID, err)
	}
	return exists, nil
}

// AcquireDayLock takes a session-level advisory lock keyed on the day, so
// overlapping scheduled runs for the same day serialize instead of racing on
// batch read-modify-write cycles.
func (s *Store) AcquireDayLock(ctx context.Context, day time.Time) (func(), error) {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire connection for day lock: %w", err)
	}

	key := dayLockKey(day)
	if _, err := conn.Exec(ctx, "SELECT pg_advisory_lock($1)", key); err != nil {
		conn.Release()
		return nil, fmt.Errorf("failed to acquire day lock: %w", err)
	}

	release := func() {
		// Unlock on a fresh context: release must work even after the run's
		// context is cancelled.
		_, _ = conn.Exec(context.Background(), "SELECT pg_advisory_unlock($1)", key)
		conn.Release()
	}
	return release, nil
}

func dayLockKey(day time.Time) int64 {
	h := fnv.New64a()
	h.Write([]byte("ingest:" + day.Format("2006-01-02")))
	return int64(h.Sum64())
}
