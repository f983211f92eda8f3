package core

import (
	"context"
	"fmt"
	"strings"
)

// Mapping is a fully curated product resolution.
type Mapping struct {
	BaseProduct     string
	UnitsPerVariant int
}

// CatalogService maps external product identifiers to base products.
// Resolution must never block or fail the surrounding sale recording:
// unknown ids are quarantined for operator review, not treated as errors.
type CatalogService interface {
	// Resolve returns the curated mapping for an external product id.
	// An unseen id is auto-registered with status needs_review and reported
	// as ErrNotMapped, as is a seen id still awaiting curation.
	Resolve(ctx context.Context, externalProductID, offerName string) (*Mapping, error)
}

type catalogService struct {
	store Store
}

func NewCatalogService(store Store) CatalogService {
	return &catalogService{store: store}
}

func (s *catalogService) Resolve(ctx context.Context, externalProductID, offerName string) (*Mapping, error) {
	id := strings.TrimSpace(externalProductID)
	if id == "" {
		// A line with no product id can never be mapped; quarantining it
		// would create a junk row, so just report it unmapped.
		return nil, ErrNotMapped
	}

	pm, err := s.store.GetProductMap(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to look up product map for %s: %w", id, err)
	}

	if pm == nil {
		row := ProductMap{
			ProductID:       id,
			OfferName:       offerName,
			UnitsPerVariant: 1,
			Status:          ProductNeedsReview,
		}
		if err := s.store.InsertProductMap(ctx, row); err != nil {
			return nil, fmt.Errorf("failed to register new product %s: %w", id, err)
		}
		return nil, ErrNotMapped
	}

	if pm.BaseProduct == nil || strings.TrimSpace(*pm.BaseProduct) == "" {
		// Seen before, still awaiting curation.
		return nil, ErrNotMapped
	}

	units := pm.UnitsPerVariant
	if units <= 0 {
		units = 1
	}
	return &Mapping{BaseProduct: *pm.BaseProduct, UnitsPerVariant: units}, nil
}
