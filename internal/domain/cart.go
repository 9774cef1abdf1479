package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

var (
	// TaxRate is applied to the cart subtotal
	TaxRate = decimal.RequireFromString("0.10")
	// FreeShippingThreshold must be strictly exceeded for free shipping
	FreeShippingThreshold = decimal.NewFromInt(50)
	// ShippingFee is charged when the subtotal does not exceed the threshold
	ShippingFee = decimal.RequireFromString("5.99")
)

// CartLine is one product in the cart. The product is a snapshot taken when the
// line was created; catalog changes do not reach it.
type CartLine struct {
	Product
	Quantity int       `json:"quantity"`
	AddedAt  time.Time `json:"addedAt"`
}

// LineTotal is the undiscounted price times quantity
func (l CartLine) LineTotal() decimal.Decimal {
	return l.Price.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// DiscountedLineTotal is the display total with the product discount applied
func (l CartLine) DiscountedLineTotal() decimal.Decimal {
	return l.DiscountedPrice().Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// CartSummary holds totals derived from the cart lines
type CartSummary struct {
	Items       []CartLine      `json:"items"`
	TotalItems  int             `json:"totalItems"`
	UniqueItems int             `json:"uniqueItems"`
	Subtotal    decimal.Decimal `json:"subtotal"`
	Tax         decimal.Decimal `json:"tax"`
	Shipping    decimal.Decimal `json:"shipping"`
	Total       decimal.Decimal `json:"total"`
	IsEmpty     bool            `json:"isEmpty"`
}

// TotalPrice is an alias of Subtotal kept for presentational callers
func (s CartSummary) TotalPrice() decimal.Decimal {
	return s.Subtotal
}

// Summarize computes the aggregate for lines. Per-line discounts are not
// applied to the subtotal.
func Summarize(lines []CartLine) CartSummary {
	subtotal := decimal.Zero
	items := 0
	for _, l := range lines {
		items += l.Quantity
		subtotal = subtotal.Add(l.LineTotal())
	}

	shipping := ShippingFee
	if subtotal.GreaterThan(FreeShippingThreshold) {
		shipping = decimal.Zero
	}
	tax := subtotal.Mul(TaxRate)

	return CartSummary{
		Items:       lines,
		TotalItems:  items,
		UniqueItems: len(lines),
		Subtotal:    subtotal,
		Tax:         tax,
		Shipping:    shipping,
		Total:       subtotal.Add(tax).Add(shipping),
		IsEmpty:     len(lines) == 0,
	}
}
