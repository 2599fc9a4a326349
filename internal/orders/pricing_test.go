package orders

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestDiscountedPrice(t *testing.T) {
	cases := []struct {
		price, pct, want string
	}{
		{"100", "0", "100"},
		{"100", "15", "85"},
		{"19.99", "10", "17.99"},
		{"33.33", "33.3", "22.23"},
		{"50", "100", "0"},
		{"50", "-5", "50"},
	}
	for _, c := range cases {
		got := DiscountedPrice(d(c.price), d(c.pct))
		assert.True(t, d(c.want).Equal(got), "%s at %s%%: got %s", c.price, c.pct, got)
	}
}

func TestBestDiscountHonoursWindows(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	offers := []Offer{
		{ProductID: "p1", DiscountPercent: d("10"), Active: true},
		{ProductID: "p1", UserID: "u1", DiscountPercent: d("25"), Active: true, ValidTo: &past},
		{ProductID: "p1", UserID: "u1", DiscountPercent: d("20"), Active: true, ValidFrom: &past, ValidTo: &future},
		{ProductID: "p1", DiscountPercent: d("50"), Active: false},
		{ProductID: "p2", DiscountPercent: d("90"), Active: true},
	}

	assert.True(t, d("20").Equal(BestDiscount(offers, "p1", now)))
	assert.True(t, d("90").Equal(BestDiscount(offers, "p2", now)))
	assert.True(t, decimal.Zero.Equal(BestDiscount(offers, "p3", now)))
}

func TestRecomputeTotals(t *testing.T) {
	o := Order{
		TaxAmount:      d("1.50"),
		ShippingAmount: d("4"),
		Items: []OrderItem{
			{ProductID: "a", Quantity: 2, UnitPrice: d("9.99")},
			{ProductID: "b", Quantity: 1, UnitPrice: d("0.02")},
		},
	}
	o.Recompute()

	assert.True(t, d("19.98").Equal(o.Items[0].TotalPrice))
	assert.True(t, d("20").Equal(o.Subtotal))
	assert.True(t, d("25.50").Equal(o.TotalAmount))
}

func TestQuantitiesAggregatesRepeatedProducts(t *testing.T) {
	ids, qty := Quantities([]OrderItem{
		{ProductID: "b", Quantity: 1},
		{ProductID: "a", Quantity: 2},
		{ProductID: "b", Quantity: 3},
	})
	assert.Equal(t, []string{"b", "a"}, ids)
	assert.Equal(t, map[string]int{"a": 2, "b": 4}, qty)
}
