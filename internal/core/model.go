package core

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// EventType classifies a canonical transaction in the revenue ledger.
type EventType string

const (
	EventSaleNew       EventType = "sale_new"
	EventSaleRecurring EventType = "sale_recurring"
	EventSaleUpsell    EventType = "sale_upsell"
	EventRefunded      EventType = "refunded"
	EventCancelled     EventType = "cancelled"
	EventChargeback    EventType = "chargeback"
	EventUnknown       EventType = "unknown"
)

// Negative reports whether amounts for this event type are booked negative
// (money flowing back out: refunds, cancellations, chargebacks).
func (e EventType) Negative() bool {
	switch e {
	case EventRefunded, EventCancelled, EventChargeback:
		return true
	}
	return false
}

// RevenueType returns the display category shown on dashboards for this event type.
func (e EventType) RevenueType() string {
	switch e {
	case EventSaleNew, EventSaleUpsell:
		return "Cold Traffic Revenue"
	case EventSaleRecurring:
		return "MRR Revenue"
	case EventRefunded:
		return "Refund"
	case EventCancelled:
		return "Cancelled"
	case EventChargeback:
		return "Chargeback"
	}
	return "Other"
}

// Transaction is one canonical sale/refund/cancellation/chargeback event.
// TransactionID is the upstream order id and the unique key: re-ingesting the
// same id overwrites the row in place, it never creates a duplicate.
type Transaction struct {
	TransactionID   string          `json:"transaction_id"`
	Date            time.Time       `json:"date"`
	TotalAmount     decimal.Decimal `json:"total_amount"`
	EventType       EventType       `json:"event_type"`
	RevenueType     string          `json:"revenue_type"`
	PaymentStatus   string          `json:"payment_status"`
	CampaignID      string          `json:"campaign_id,omitempty"`
	CampaignName    string          `json:"campaign_name,omitempty"`
	TrafficSource   string          `json:"traffic_source,omitempty"`
	AffiliateID     string          `json:"affiliate_id,omitempty"`
	Currency        string          `json:"currency"`
	CustomerEmail   string          `json:"customer_email,omitempty"`
	CustomerState   string          `json:"customer_state,omitempty"`
	CustomerCountry string          `json:"customer_country,omitempty"`
	// RawData retains the untouched source payload for audit and replay.
	RawData json.RawMessage `json:"raw_data,omitempty"`
}

// LineItem is one product line within a transaction. Items are always
// replaced as a complete set when their transaction is re-ingested.
type LineItem struct {
	TransactionID     string          `json:"transaction_id"`
	ProductName       string          `json:"product_name"`
	Qty               int             `json:"qty"`
	ExternalProductID string          `json:"external_product_id"`
	CampaignProductID string          `json:"campaign_product_id,omitempty"`
	SKU               string          `json:"sku,omitempty"`
	UnitPrice         decimal.Decimal `json:"unit_price"`
}

type ProductMapStatus string

const (
	ProductNeedsReview ProductMapStatus = "needs_review"
	ProductMapped      ProductMapStatus = "mapped"
)

// ProductMap resolves an external product identifier to a base product.
// Rows are auto-created with status needs_review the first time an unseen id
// is observed; only a back-office action sets BaseProduct and flips status.
type ProductMap struct {
	ProductID       string           `json:"product_id"`
	OfferName       string           `json:"offer_name"`
	BaseProduct     *string          `json:"base_product"` // nil until curated
	UnitsPerVariant int              `json:"units_per_variant"`
	Status          ProductMapStatus `json:"status"`
}

type BatchStatus string

const (
	BatchActive   BatchStatus = "active"
	BatchDepleted BatchStatus = "depleted"
)

// InventoryBatch is one purchased lot of a base product. BatchID is assigned
// monotonically by the purchasing workflow and defines FIFO consumption order.
// RemainingQty only ever decreases; UnitCost is immutable for the batch's lifetime.
type InventoryBatch struct {
	BatchID      int             `json:"batch_id"`
	BaseProduct  string          `json:"base_product"`
	RemainingQty int             `json:"remaining_qty"`
	UnitCost     decimal.Decimal `json:"unit_cost"`
	Status       BatchStatus     `json:"status"`
}

// CostLedgerEntry records "QtyDeducted units of a base product, from batch
// BatchID, at CostPerUnitAtTime, attributed to TransactionID". Append-only.
// The cost is a snapshot taken at allocation time, not a live reference.
type CostLedgerEntry struct {
	TransactionID     string          `json:"transaction_id"`
	ProductName       string          `json:"product_name"`
	BatchID           int             `json:"batch_id"`
	QtyDeducted       int             `json:"qty_deducted"`
	CostPerUnitAtTime decimal.Decimal `json:"cost_per_unit_at_time"`
}
