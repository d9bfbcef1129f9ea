// Package pixel forwards marketing conversion events and drops the repeats.
//
// Conversions (page view, registration, checkout, purchase, PIX generated)
// are deduplicated against per-session key sets held by a Store. Funnel
// signals such as ViewContent or Lead are sent every time.
package pixel

import (
	"time"

	"github.com/shopspring/decimal"
)

// Standard event names understood by the pixel.
const (
	EventPageView             = "PageView"
	EventCompleteRegistration = "CompleteRegistration"
	EventInitiateCheckout     = "InitiateCheckout"
	EventPurchase             = "Purchase"
	EventViewContent          = "ViewContent"
	EventAddToCart            = "AddToCart"
	EventAddPaymentInfo       = "AddPaymentInfo"
	EventLead                 = "Lead"
	EventPixGenerated         = "PixGerado"
)

const defaultCurrency = "BRL"

// UserInfo identifies the visitor. Sinks hash these before they leave the process.
type UserInfo struct {
	ExternalID string
	Email      string
	Phone      string
}

// Event is one outbound pixel event.
type Event struct {
	Name      string
	ID        string
	Time      time.Time
	SourceURL string
	Custom    bool
	User      UserInfo
	Data      map[string]any
}

// Registration describes a freshly created account.
type Registration struct {
	UserID string
	Email  string
	Phone  string
}

// Checkout is a plan checkout the visitor started.
type Checkout struct {
	Plan     string
	Value    decimal.Decimal
	Currency string
}

// Purchase is a settled payment.
type Purchase struct {
	TransactionID string
	Plan          string
	Value         decimal.Decimal
	Currency      string
	Timestamp     time.Time
}

// PixCharge is a PIX code shown to the visitor.
type PixCharge struct {
	OrderID string
	Code    string
	Plan    string
	Value   decimal.Decimal
}

// Content is a catalog item the visitor interacted with.
type Content struct {
	ID       string
	Name     string
	Category string
	Value    decimal.Decimal
	Currency string
}

func currencyOr(c string) string {
	if c == "" {
		return defaultCurrency
	}
	return c
}

func valueData(value decimal.Decimal, currency string) map[string]any {
	return map[string]any{
		"value":    value.InexactFloat64(),
		"currency": currencyOr(currency),
	}
}

func (c Content) data() map[string]any {
	d := valueData(c.Value, c.Currency)
	if c.ID != "" {
		d["content_ids"] = []string{c.ID}
		d["content_type"] = "product"
	}
	if c.Name != "" {
		d["content_name"] = c.Name
	}
	if c.Category != "" {
		d["content_category"] = c.Category
	}
	return d
}
