package core

import (
	"bytes"
	"encoding/json"
	"sort"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// The upstream order API is loosely typed: numbers arrive as strings, ids as
// numbers, booleans as any of true/"true"/1/"1", and the items collection as
// either an object or an array. The Flex* types absorb that at decode time so
// that one malformed field never aborts the decode of a whole response; the
// normalizer decides per field whether a bad value is an error.

// FlexString decodes a JSON string, number, or bool into a string.
// null and absent both decode to "".
type FlexString string

func (f *FlexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*f = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = FlexString(s)
		return nil
	}
	// Number or bare token: keep the literal verbatim.
	*f = FlexString(b)
	return nil
}

func (f FlexString) String() string { return string(f) }

// FlexBool is true for JSON true, 1, "true", or "1" (case-insensitive).
// Everything else, including null and absence, is false.
type FlexBool bool

func (f *FlexBool) UnmarshalJSON(b []byte) error {
	s := strings.Trim(strings.TrimSpace(string(b)), `"`)
	switch strings.ToLower(s) {
	case "true", "1":
		*f = true
	default:
		*f = false
	}
	return nil
}

// FlexInt decodes a JSON integer or integer-valued string. Garbage input is
// retained rather than failing the decode: Present is set, Valid is not, and
// Raw holds the offending literal for the normalizer to report.
type FlexInt struct {
	Value   int
	Present bool
	Valid   bool
	Raw     string
}

func (f *FlexInt) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	s = strings.Trim(s, `"`)
	if s == "" || s == "null" {
		*f = FlexInt{}
		return nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		*f = FlexInt{Present: true, Raw: s}
		return nil
	}
	*f = FlexInt{Value: n, Present: true, Valid: true, Raw: s}
	return nil
}

// FlexDecimal decodes a JSON number or numeric string into a decimal.
// Absent, null, and "" decode to a present-false zero; garbage is retained
// with Valid unset, as with FlexInt.
type FlexDecimal struct {
	Value   decimal.Decimal
	Present bool
	Valid   bool
	Raw     string
}

func (f *FlexDecimal) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	s = strings.Trim(s, `"`)
	if s == "" || s == "null" {
		*f = FlexDecimal{Valid: true}
		return nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		*f = FlexDecimal{Present: true, Raw: s}
		return nil
	}
	*f = FlexDecimal{Value: d, Present: true, Valid: true, Raw: s}
	return nil
}

// RawItem is one product line as reported by the order source.
type RawItem struct {
	Name              FlexString  `json:"name"`
	Qty               FlexInt     `json:"qty"`
	ProductID         FlexString  `json:"productId"`
	CampaignProductID FlexString  `json:"campaignProductId"`
	VariantDetailID   FlexString  `json:"variantDetailId"`
	SKU               FlexString  `json:"sku"`
	ProductSKU        FlexString  `json:"productSku"`
	Price             FlexDecimal `json:"price"`
}

// RawItemList normalizes the upstream items collection, which is shaped as
// either an array or an object keyed by line id. Object entries are ordered
// by key so decoding is deterministic.
type RawItemList []RawItem

func (l *RawItemList) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*l = nil
		return nil
	}
	if b[0] == '[' {
		var items []RawItem
		if err := json.Unmarshal(b, &items); err != nil {
			return err
		}
		*l = items
		return nil
	}
	var m map[string]RawItem
	if err := json.Unmarshal(b, &m); err != nil {
		return err
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	items := make([]RawItem, 0, len(m))
	for _, k := range keys {
		items = append(items, m[k])
	}
	*l = items
	return nil
}

// RawOrder is one order record as reported by the order source. Field
// fallbacks (UTMSource → sourceValue1, sku → productSku, state → shipState,
// country → shipCountry, campaignProductId → variantDetailId) are resolved by
// the normalizer, first non-empty wins.
type RawOrder struct {
	OrderID      FlexString  `json:"orderId"`
	OrderType    FlexString  `json:"orderType"`
	OrderStatus  FlexString  `json:"orderStatus"`
	TotalAmount  FlexDecimal `json:"totalAmount"`
	DateCreated  FlexString  `json:"dateCreated"`
	CampaignID   FlexString  `json:"campaignId"`
	CampaignName FlexString  `json:"campaignName"`
	UTMSource    FlexString  `json:"UTMSource"`
	SourceValue1 FlexString  `json:"sourceValue1"`
	AffiliateID  FlexString  `json:"affId"`
	CurrencyCode FlexString  `json:"currencyCode"`
	EmailAddress FlexString  `json:"emailAddress"`
	State        FlexString  `json:"state"`
	ShipState    FlexString  `json:"shipState"`
	Country      FlexString  `json:"country"`
	ShipCountry  FlexString  `json:"shipCountry"`
	Test         FlexBool    `json:"test"`
	Items        RawItemList `json:"items"`

	// Raw is the verbatim source payload, captured by the fetch layer and
	// carried into Transaction.RawData for audit and replay.
	Raw json.RawMessage `json:"-"`
}
