package core_test

import (
	"context"
	"errors"
	"testing"

	"cogs-sync/internal/core"
	"cogs-sync/internal/store/memstore"
)

func strPtr(s string) *string { return &s }

func TestResolve_AutoDiscovery(t *testing.T) {
	store := memstore.New()
	catalog := core.NewCatalogService(store)
	ctx := context.Background()

	_, err := catalog.Resolve(ctx, "9999", "Summer Mega Bundle (6x)")
	if !errors.Is(err, core.ErrNotMapped) {
		t.Fatalf("expected ErrNotMapped for unseen product, got %v", err)
	}

	pm, ok := store.Product("9999")
	if !ok {
		t.Fatal("expected a quarantined product map row")
	}
	if pm.Status != core.ProductNeedsReview || pm.BaseProduct != nil {
		t.Errorf("expected needs_review with no base product, got %+v", pm)
	}
	if pm.OfferName != "Summer Mega Bundle (6x)" || pm.UnitsPerVariant != 1 {
		t.Errorf("unexpected defaults: %+v", pm)
	}

	// Resolving again must not create or overwrite anything.
	_, err = catalog.Resolve(ctx, "9999", "Renamed Offer")
	if !errors.Is(err, core.ErrNotMapped) {
		t.Fatalf("expected ErrNotMapped on second resolve, got %v", err)
	}
	if store.ProductCount() != 1 {
		t.Errorf("expected exactly one product map row, got %d", store.ProductCount())
	}
	pm, _ = store.Product("9999")
	if pm.OfferName != "Summer Mega Bundle (6x)" {
		t.Errorf("offer name must not be overwritten, got %q", pm.OfferName)
	}
}

func TestResolve_PendingCuration(t *testing.T) {
	store := memstore.New()
	store.SetProductMap(core.ProductMap{
		ProductID: "2489", OfferName: "Cooling Roller - 1x",
		UnitsPerVariant: 1, Status: core.ProductNeedsReview,
	})
	catalog := core.NewCatalogService(store)

	_, err := catalog.Resolve(context.Background(), "2489", "Cooling Roller - 1x")
	if !errors.Is(err, core.ErrNotMapped) {
		t.Errorf("expected ErrNotMapped while base product is unset, got %v", err)
	}
}

func TestResolve_Curated(t *testing.T) {
	store := memstore.New()
	store.SetProductMap(core.ProductMap{
		ProductID: "3011", OfferName: "Warming Oil - 2x Bottles",
		BaseProduct: strPtr("WarmingOil"), UnitsPerVariant: 2, Status: core.ProductMapped,
	})
	catalog := core.NewCatalogService(store)

	mapping, err := catalog.Resolve(context.Background(), "3011", "Warming Oil - 2x Bottles")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if mapping.BaseProduct != "WarmingOil" || mapping.UnitsPerVariant != 2 {
		t.Errorf("unexpected mapping: %+v", mapping)
	}
}

func TestResolve_EmptyID(t *testing.T) {
	store := memstore.New()
	catalog := core.NewCatalogService(store)

	_, err := catalog.Resolve(context.Background(), "  ", "Nameless")
	if !errors.Is(err, core.ErrNotMapped) {
		t.Errorf("expected ErrNotMapped for blank id, got %v", err)
	}
	if store.ProductCount() != 0 {
		t.Errorf("blank id must not create a quarantine row, got %d rows", store.ProductCount())
	}
}
