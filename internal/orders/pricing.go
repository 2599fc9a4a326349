package orders

import (
	"time"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// ActiveAt reports whether the offer applies at t. Nil bounds are open.
func (o Offer) ActiveAt(t time.Time) bool {
	if !o.Active {
		return false
	}
	if o.ValidFrom != nil && t.Before(*o.ValidFrom) {
		return false
	}
	if o.ValidTo != nil && t.After(*o.ValidTo) {
		return false
	}
	return true
}

// BestDiscount picks the largest active discount for productID. Global and
// user-scoped offers compete on equal terms.
func BestDiscount(offers []Offer, productID string, at time.Time) decimal.Decimal {
	best := decimal.Zero
	for _, o := range offers {
		if o.ProductID != productID || !o.ActiveAt(at) {
			continue
		}
		if o.DiscountPercent.GreaterThan(best) {
			best = o.DiscountPercent
		}
	}
	if best.GreaterThan(hundred) {
		return hundred
	}
	return best
}

// DiscountedPrice is round(price * (1 - pct/100), 2).
func DiscountedPrice(price, pct decimal.Decimal) decimal.Decimal {
	if pct.IsNegative() {
		pct = decimal.Zero
	}
	factor := decimal.NewFromInt(1).Sub(pct.Div(hundred))
	return price.Mul(factor).Round(2)
}

func LineTotal(qty int, unit decimal.Decimal) decimal.Decimal {
	return unit.Mul(decimal.NewFromInt(int64(qty)))
}

// Recompute derives item totals, subtotal and total from the line items.
func (o *Order) Recompute() {
	subtotal := decimal.Zero
	for i := range o.Items {
		o.Items[i].TotalPrice = LineTotal(o.Items[i].Quantity, o.Items[i].UnitPrice)
		subtotal = subtotal.Add(o.Items[i].TotalPrice)
	}
	o.Subtotal = subtotal
	o.TotalAmount = subtotal.Add(o.TaxAmount).Add(o.ShippingAmount)
}

// Quantities sums item quantities per product, preserving first-seen order.
func Quantities(items []OrderItem) ([]string, map[string]int) {
	ids := make([]string, 0, len(items))
	qty := make(map[string]int, len(items))
	for _, it := range items {
		if _, seen := qty[it.ProductID]; !seen {
			ids = append(ids, it.ProductID)
		}
		qty[it.ProductID] += it.Quantity
	}
	return ids, qty
}
