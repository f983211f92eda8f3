package core

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrOrderDiscarded marks an order that must not enter the ledger at all:
// unsettled money (declined/failed/error/pending) or a test transaction.
// Discards are expected, not errors; callers count them and move on.
var ErrOrderDiscarded = errors.New("order discarded")

// discardStatuses are upstream statuses representing unsettled money.
var discardStatuses = map[string]struct{}{
	"DECLINED": {},
	"FAILED":   {},
	"ERROR":    {},
	"PENDING":  {},
}

// ItemError describes one line item rejected during normalization. The rest
// of the order is unaffected.
type ItemError struct {
	ProductName string
	Reason      string
}

func (e ItemError) Error() string {
	return fmt.Sprintf("line item %q rejected: %s", e.ProductName, e.Reason)
}

// NormalizedOrder is the canonical output of normalization: one transaction
// and the complete set of its billable line items. ItemErrors carries lines
// that were rejected loudly (bad quantity) rather than silently coerced.
type NormalizedOrder struct {
	Transaction Transaction
	Items       []LineItem
	ItemErrors  []ItemError
}

// ClassifyEvent maps upstream status and order type onto the event taxonomy.
// Ordered, first match wins: terminal statuses (refund/cancel/chargeback)
// override the order type, then the order type decides among sale kinds.
func ClassifyEvent(orderStatus, orderType string) EventType {
	switch strings.ToUpper(strings.TrimSpace(orderStatus)) {
	case "REFUNDED":
		return EventRefunded
	case "CANCELLED":
		return EventCancelled
	case "CHARGEBACK":
		return EventChargeback
	}
	switch strings.ToUpper(strings.TrimSpace(orderType)) {
	case "NEW_SALE", "SALE":
		return EventSaleNew
	case "RECURRING":
		return EventSaleRecurring
	case "UPSELL":
		return EventSaleUpsell
	}
	return EventUnknown
}

// orderDateLayouts are the timestamp shapes the order source has been seen
// emitting, tried in order.
var orderDateLayouts = []string{
	"2006-01-02 15:04:05",
	time.RFC3339,
	"2006-01-02",
	"01/02/2006 15:04",
	"01/02/2006",
}

func parseOrderDate(s string) time.Time {
	s = strings.TrimSpace(s)
	for _, layout := range orderDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

// firstNonEmpty resolves a documented field-precedence chain.
func firstNonEmpty(vals ...FlexString) string {
	for _, v := range vals {
		if s := strings.TrimSpace(string(v)); s != "" {
			return s
		}
	}
	return ""
}

// NormalizeOrder turns one raw order into a canonical transaction plus its
// line items, or signals a discard via ErrOrderDiscarded. Any other error
// means the order is malformed beyond use (missing id, unparsable total).
func NormalizeOrder(raw RawOrder) (*NormalizedOrder, error) {
	status := strings.ToUpper(strings.TrimSpace(string(raw.OrderStatus)))
	if _, ok := discardStatuses[status]; ok {
		return nil, fmt.Errorf("%w: status %s", ErrOrderDiscarded, status)
	}
	if raw.Test {
		return nil, fmt.Errorf("%w: test transaction", ErrOrderDiscarded)
	}

	id := strings.TrimSpace(string(raw.OrderID))
	if id == "" {
		return nil, errors.New("order is missing orderId")
	}
	if raw.TotalAmount.Present && !raw.TotalAmount.Valid {
		return nil, fmt.Errorf("order %s: unparsable totalAmount %q", id, raw.TotalAmount.Raw)
	}

	event := ClassifyEvent(string(raw.OrderStatus), string(raw.OrderType))
	amount := raw.TotalAmount.Value
	if event.Negative() {
		// Forced negative via absolute value: a feed that already reports
		// refunds negative is not double-negated.
		amount = amount.Abs().Neg()
	}

	currency := firstNonEmpty(raw.CurrencyCode)
	if currency == "" {
		currency = "USD"
	}

	txn := Transaction{
		TransactionID:   id,
		Date:            parseOrderDate(string(raw.DateCreated)),
		TotalAmount:     amount,
		EventType:       event,
		RevenueType:     event.RevenueType(),
		PaymentStatus:   string(raw.OrderStatus),
		CampaignID:      string(raw.CampaignID),
		CampaignName:    string(raw.CampaignName),
		TrafficSource:   firstNonEmpty(raw.UTMSource, raw.SourceValue1),
		AffiliateID:     string(raw.AffiliateID),
		Currency:        currency,
		CustomerEmail:   string(raw.EmailAddress),
		CustomerState:   firstNonEmpty(raw.State, raw.ShipState),
		CustomerCountry: firstNonEmpty(raw.Country, raw.ShipCountry),
		RawData:         raw.Raw,
	}

	out := &NormalizedOrder{Transaction: txn}
	for _, item := range raw.Items {
		name := strings.TrimSpace(string(item.Name))
		if name == "" {
			// Malformed line, not billable.
			continue
		}

		qty := 1
		switch {
		case !item.Qty.Present:
			// Upstream omits qty for single-unit lines.
		case !item.Qty.Valid:
			out.ItemErrors = append(out.ItemErrors, ItemError{
				ProductName: name,
				Reason:      fmt.Sprintf("unparsable qty %q", item.Qty.Raw),
			})
			continue
		case item.Qty.Value <= 0:
			out.ItemErrors = append(out.ItemErrors, ItemError{
				ProductName: name,
				Reason:      fmt.Sprintf("non-positive qty %d", item.Qty.Value),
			})
			continue
		default:
			qty = item.Qty.Value
		}

		out.Items = append(out.Items, LineItem{
			TransactionID:     id,
			ProductName:       name,
			Qty:               qty,
			ExternalProductID: strings.TrimSpace(string(item.ProductID)),
			CampaignProductID: firstNonEmpty(item.CampaignProductID, item.VariantDetailID),
			SKU:               firstNonEmpty(item.SKU, item.ProductSKU),
			UnitPrice:         item.Price.Value,
		})
	}
	return out, nil
}
