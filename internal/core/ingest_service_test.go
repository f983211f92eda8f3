package core_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"cogs-sync/internal/core"
	"cogs-sync/internal/store/memstore"
)

func newEngine(store *memstore.Store) core.IngestService {
	return core.NewIngestService(store, core.NewCatalogService(store), core.NewBatchLedgerService(store))
}

// seedWidgetInventory curates product 3011 → WidgetX ×2 and stocks two
// batches (5 @ 1.00, 10 @ 1.50), oldest first.
func seedWidgetInventory(store *memstore.Store) {
	store.SetProductMap(core.ProductMap{
		ProductID: "3011", OfferName: "WidgetX Twin Pack",
		BaseProduct: strPtr("WidgetX"), UnitsPerVariant: 2, Status: core.ProductMapped,
	})
	store.AddBatch(core.InventoryBatch{
		BatchID: 1, BaseProduct: "WidgetX", RemainingQty: 5,
		UnitCost: decimal.RequireFromString("1.00"), Status: core.BatchActive,
	})
	store.AddBatch(core.InventoryBatch{
		BatchID: 2, BaseProduct: "WidgetX", RemainingQty: 10,
		UnitCost: decimal.RequireFromString("1.50"), Status: core.BatchActive,
	})
}

const twoItemOrder = `{
	"orderId": "ORD-500", "orderStatus": "COMPLETE", "orderType": "NEW_SALE",
	"totalAmount": 149.90, "dateCreated": "2026-08-30 10:15:00",
	"items": [
		{"name": "WidgetX Twin Pack", "qty": 3, "productId": 3011, "price": 39.95},
		{"name": "Summer Mega Bundle (6x)", "qty": 1, "productId": 9999, "price": 29.95}
	]
}`

func ingestDay(t *testing.T, svc core.IngestService, payloads ...string) *core.IngestReport {
	t.Helper()
	raws := make([]core.RawOrder, 0, len(payloads))
	for _, p := range payloads {
		raws = append(raws, decodeRawOrder(t, p))
	}
	day := time.Date(2026, 8, 30, 0, 0, 0, 0, time.UTC)
	return svc.IngestDay(context.Background(), day, raws)
}

func TestIngestDay_EndToEnd(t *testing.T) {
	store := memstore.New()
	seedWidgetInventory(store)
	svc := newEngine(store)

	report := ingestDay(t, svc, twoItemOrder)
	if len(report.Errors) != 0 {
		t.Fatalf("unexpected errors: %v", report.Errors)
	}
	if report.Imported != 1 || report.ItemsProcessed != 2 {
		t.Errorf("expected 1 transaction / 2 items, got %d/%d", report.Imported, report.ItemsProcessed)
	}
	if report.ItemsUnmapped != 1 {
		t.Errorf("expected 1 unmapped item, got %d", report.ItemsUnmapped)
	}
	if report.ShortfallUnits != 0 {
		t.Errorf("expected no shortfall, got %d", report.ShortfallUnits)
	}

	txn, ok := store.Transaction("ORD-500")
	if !ok {
		t.Fatal("transaction not persisted")
	}
	if txn.EventType != core.EventSaleNew || txn.RevenueType != "Cold Traffic Revenue" {
		t.Errorf("unexpected classification: %s / %s", txn.EventType, txn.RevenueType)
	}
	if items := store.LineItems("ORD-500"); len(items) != 2 {
		t.Errorf("expected 2 line items, got %d", len(items))
	}

	// qty 3 × 2 units per variant = 6 base units, oldest batch first.
	entries := store.LedgerEntries("ORD-500")
	if len(entries) != 2 {
		t.Fatalf("expected 2 ledger entries, got %d", len(entries))
	}
	if entries[0].BatchID != 1 || entries[0].QtyDeducted != 5 {
		t.Errorf("first entry should drain batch 1, got %+v", entries[0])
	}
	if entries[1].BatchID != 2 || entries[1].QtyDeducted != 1 {
		t.Errorf("second entry should take 1 from batch 2, got %+v", entries[1])
	}

	// The unmapped item was quarantined, not allocated.
	pm, ok := store.Product("9999")
	if !ok || pm.Status != core.ProductNeedsReview {
		t.Errorf("expected product 9999 quarantined, got %+v", pm)
	}
}

func TestIngestDay_Idempotent(t *testing.T) {
	store := memstore.New()
	seedWidgetInventory(store)
	svc := newEngine(store)

	first := ingestDay(t, svc, twoItemOrder)
	second := ingestDay(t, svc, twoItemOrder)

	if len(first.Errors) != 0 || len(second.Errors) != 0 {
		t.Fatalf("unexpected errors: %v / %v", first.Errors, second.Errors)
	}
	if store.TransactionCount() != 1 {
		t.Errorf("expected 1 transaction after double ingest, got %d", store.TransactionCount())
	}
	if items := store.LineItems("ORD-500"); len(items) != 2 {
		t.Errorf("expected 2 line items after double ingest, got %d", len(items))
	}

	// Cost attribution stands: no duplicate entries, no extra depletion.
	entries := store.LedgerEntries("ORD-500")
	total := 0
	for _, e := range entries {
		total += e.QtyDeducted
	}
	if total != 6 {
		t.Errorf("ledger total changed on re-ingestion: %d units", total)
	}
	if second.AllocationsSkipped != 1 {
		t.Errorf("expected second run to skip allocation, got %d", second.AllocationsSkipped)
	}
	b2, _ := store.Batch(2)
	if b2.RemainingQty != 9 {
		t.Errorf("batch 2 should still have 9 remaining, got %d", b2.RemainingQty)
	}
}

func TestIngestDay_RefundReingestion(t *testing.T) {
	store := memstore.New()
	seedWidgetInventory(store)
	svc := newEngine(store)

	ingestDay(t, svc, twoItemOrder)

	refunded := `{
		"orderId": "ORD-500", "orderStatus": "REFUNDED", "orderType": "NEW_SALE",
		"totalAmount": 149.90, "dateCreated": "2026-08-31 09:00:00",
		"items": [
			{"name": "WidgetX Twin Pack", "qty": 3, "productId": 3011, "price": 39.95},
			{"name": "Summer Mega Bundle (6x)", "qty": 1, "productId": 9999, "price": 29.95}
		]
	}`
	report := ingestDay(t, svc, refunded)
	if len(report.Errors) != 0 {
		t.Fatalf("unexpected errors: %v", report.Errors)
	}

	txn, _ := store.Transaction("ORD-500")
	if txn.EventType != core.EventRefunded {
		t.Errorf("status change not reflected, got %s", txn.EventType)
	}
	if !txn.TotalAmount.Equal(decimal.RequireFromString("-149.9")) {
		t.Errorf("refund amount should be negative, got %s", txn.TotalAmount)
	}

	// The original sale's cost attribution is untouched.
	entries := store.LedgerEntries("ORD-500")
	total := 0
	for _, e := range entries {
		total += e.QtyDeducted
	}
	if total != 6 {
		t.Errorf("refund re-ingestion changed the ledger: %d units", total)
	}
}

func TestIngestDay_DiscardsProduceNothing(t *testing.T) {
	store := memstore.New()
	svc := newEngine(store)

	report := ingestDay(t, svc,
		`{"orderId":"D-1","orderStatus":"DECLINED","totalAmount":10,"items":[{"name":"X","qty":1,"productId":1}]}`,
		`{"orderId":"D-2","orderStatus":"PENDING","totalAmount":10}`,
		`{"orderId":"D-3","orderStatus":"COMPLETE","orderType":"SALE","test":"1","totalAmount":10}`,
	)

	if report.Discarded != 3 || report.Imported != 0 {
		t.Errorf("expected 3 discarded / 0 imported, got %d/%d", report.Discarded, report.Imported)
	}
	if store.TransactionCount() != 0 {
		t.Errorf("discarded orders must leave no transactions, got %d", store.TransactionCount())
	}
	if store.ProductCount() != 0 {
		t.Errorf("discarded orders must leave no product rows, got %d", store.ProductCount())
	}
}

func TestIngestDay_BadRecordDoesNotAbortDay(t *testing.T) {
	store := memstore.New()
	seedWidgetInventory(store)
	store.UpsertFailures = map[string]error{"ORD-BAD": errors.New("connection reset")}
	svc := newEngine(store)

	bad := `{"orderId":"ORD-BAD","orderStatus":"COMPLETE","orderType":"SALE","totalAmount":10}`
	report := ingestDay(t, svc, bad, twoItemOrder)

	if report.Imported != 1 {
		t.Errorf("good order should still import, got %d", report.Imported)
	}
	if len(report.Errors) != 1 {
		t.Errorf("expected 1 recorded error, got %v", report.Errors)
	}
	if _, ok := store.Transaction("ORD-500"); !ok {
		t.Error("good order was not persisted")
	}
}

func TestIngestDay_RejectedItemsReported(t *testing.T) {
	store := memstore.New()
	svc := newEngine(store)

	order := `{
		"orderId": "ORD-700", "orderStatus": "COMPLETE", "orderType": "SALE", "totalAmount": 20,
		"items": [{"name": "Broken Line", "qty": "two-ish", "productId": 55}]
	}`
	report := ingestDay(t, svc, order)

	if report.Imported != 1 {
		t.Errorf("order itself should import, got %d", report.Imported)
	}
	if report.ItemsRejected != 1 || len(report.Errors) != 1 {
		t.Errorf("expected the bad line reported loudly, got rejected=%d errors=%v",
			report.ItemsRejected, report.Errors)
	}
	if items := store.LineItems("ORD-700"); len(items) != 0 {
		t.Errorf("rejected line must not persist, got %d items", len(items))
	}
}
