// Package sales covers storefront orders and customer quotes.
package sales

import (
	"errors"
	"math"
	"time"
)

var (
	// ErrNotFound indicates the order or quote does not exist.
	ErrNotFound = errors.New("sales: not found")
	// ErrInvalidStatus indicates a status change the workflow does not allow.
	ErrInvalidStatus = errors.New("sales: invalid status transition")
	// ErrQuoteLocked indicates the quote is past draft and cannot be edited or deleted.
	ErrQuoteLocked = errors.New("sales: quote is no longer a draft")
)

// OrderStatus is the fulfilment state of a storefront order.
type OrderStatus string

const (
	OrderPending   OrderStatus = "pending"
	OrderPaid      OrderStatus = "paid"
	OrderShipped   OrderStatus = "shipped"
	OrderDelivered OrderStatus = "delivered"
	OrderCancelled OrderStatus = "cancelled"
	OrderRefunded  OrderStatus = "refunded"
)

var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderPending:   {OrderPaid, OrderCancelled},
	OrderPaid:      {OrderShipped, OrderCancelled, OrderRefunded},
	OrderShipped:   {OrderDelivered},
	OrderDelivered: {OrderRefunded},
}

// CanTransition reports whether an order may move from s to next.
func (s OrderStatus) CanTransition(next OrderStatus) bool {
	for _, allowed := range orderTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Order is a storefront order. Orders are placed by the storefront; the
// console only reads them and moves them through fulfilment.
type Order struct {
	ID            int64       `json:"id"`
	Number        string      `json:"number"`
	CustomerName  string      `json:"customer_name"`
	CustomerEmail string      `json:"customer_email"`
	Status        OrderStatus `json:"status"`
	TotalCents    int64       `json:"total_cents"`
	Currency      string      `json:"currency"`
	PlacedAt      time.Time   `json:"placed_at"`
	UpdatedAt     time.Time   `json:"updated_at"`
	Items         []OrderItem `json:"items,omitempty"`
}

// OrderItem is one line of an order.
type OrderItem struct {
	ProductID *int64 `json:"product_id,omitempty"`
	SKU       string `json:"sku"`
	Name      string `json:"name"`
	Quantity  int    `json:"quantity"`
	UnitCents int64  `json:"unit_cents"`
}

// OrderFilter narrows an order listing.
type OrderFilter struct {
	Search string
	Status OrderStatus
	Limit  int
	Offset int
}

// QuoteStatus is the lifecycle state of a quote.
type QuoteStatus string

const (
	QuoteDraft    QuoteStatus = "draft"
	QuoteSent     QuoteStatus = "sent"
	QuoteAccepted QuoteStatus = "accepted"
	QuoteRejected QuoteStatus = "rejected"
	QuoteExpired  QuoteStatus = "expired"
)

var quoteTransitions = map[QuoteStatus][]QuoteStatus{
	QuoteDraft: {QuoteSent},
	QuoteSent:  {QuoteAccepted, QuoteRejected, QuoteExpired},
}

// CanTransition reports whether a quote may move from s to next.
func (s QuoteStatus) CanTransition(next QuoteStatus) bool {
	for _, allowed := range quoteTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Quote is a price offer prepared for a prospective customer.
type Quote struct {
	ID            int64       `json:"id"`
	Number        string      `json:"number"`
	CustomerName  string      `json:"customer_name"`
	CustomerEmail string      `json:"customer_email"`
	Status        QuoteStatus `json:"status"`
	Currency      string      `json:"currency"`
	ValidUntil    time.Time   `json:"valid_until"`
	Notes         string      `json:"notes"`
	TotalCents    int64       `json:"total_cents"`
	CreatedBy     int64       `json:"created_by"`
	CreatedAt     time.Time   `json:"created_at"`
	UpdatedAt     time.Time   `json:"updated_at"`
	Lines         []QuoteLine `json:"lines"`
}

// QuoteLine is one priced line of a quote. The bounds keep a full quote total
// inside int64 cents.
type QuoteLine struct {
	Description     string  `json:"description" validate:"required,max=300"`
	Quantity        int     `json:"quantity" validate:"gte=1,lte=1000000"`
	UnitCents       int64   `json:"unit_cents" validate:"gte=0,lte=10000000000"`
	DiscountPercent float64 `json:"discount_percent" validate:"gte=0,lte=100"`
}

// DiscountBasisPoints returns the discount in hundredths of a percent, the
// precision the quote_lines column stores.
func (l QuoteLine) DiscountBasisPoints() int64 {
	bp := int64(math.Round(l.DiscountPercent * 100))
	switch {
	case bp < 0:
		return 0
	case bp > 10000:
		return 10000
	}
	return bp
}

// Total returns the line amount after discount in cents. The discount is
// rounded half up to the cent; everything stays in integer arithmetic.
func (l QuoteLine) Total() int64 {
	gross := l.UnitCents * int64(l.Quantity)
	bp := l.DiscountBasisPoints()
	// gross*bp/10000 split so the product cannot overflow.
	discount := gross/10000*bp + (gross%10000*bp+5000)/10000
	return gross - discount
}

// QuoteInput is the create/update payload.
type QuoteInput struct {
	CustomerName  string      `json:"customer_name" validate:"required,max=200"`
	CustomerEmail string      `json:"customer_email" validate:"required,email"`
	Currency      string      `json:"currency" validate:"required,iso4217"`
	ValidUntil    time.Time   `json:"valid_until" validate:"required"`
	Notes         string      `json:"notes" validate:"max=5000"`
	Lines         []QuoteLine `json:"lines" validate:"required,min=1,max=100,dive"`
}

// QuoteFilter narrows a quote listing.
type QuoteFilter struct {
	Search string
	Status QuoteStatus
	Limit  int
	Offset int
}
