// Package pricing computes authoritative order totals from ledger prices.
package pricing

import (
	"sort"

	"github.com/shopspring/decimal"
)

var (
	FreeShippingThreshold = decimal.NewFromInt(100)
	FlatShippingFee       = decimal.NewFromInt(10)
	TaxRate               = decimal.RequireFromString("0.15")
)

type Line struct {
	UnitPrice decimal.Decimal
	Quantity  int
}

type Prices struct {
	ItemsPrice    decimal.Decimal
	ShippingPrice decimal.Decimal
	TaxPrice      decimal.Decimal
	TotalPrice    decimal.Decimal
}

// Calculate rounds every component half-up to cents. Shipping is free only
// when the items price is strictly above the threshold.
func Calculate(lines []Line) Prices {
	items := decimal.Zero
	for _, l := range lines {
		items = items.Add(l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity))))
	}
	items = items.Round(2)

	shipping := FlatShippingFee
	if items.GreaterThan(FreeShippingThreshold) {
		shipping = decimal.Zero
	}

	tax := items.Mul(TaxRate).Round(2)
	total := items.Add(shipping).Add(tax).Round(2)

	return Prices{
		ItemsPrice:    items,
		ShippingPrice: shipping.Round(2),
		TaxPrice:      tax,
		TotalPrice:    total,
	}
}

// ToCents converts a price to the smallest currency unit for gateway line items.
func ToCents(price decimal.Decimal) int64 {
	return price.Mul(decimal.NewFromInt(100)).Round(0).IntPart()
}

// LineCents splits the items price into whole cents per line. The result
// always sums to ToCents(Calculate(lines).ItemsPrice); lines whose amount has
// a sub-cent remainder absorb the rounding, largest remainder first.
func LineCents(lines []Line) []int64 {
	hundred := decimal.NewFromInt(100)
	cents := make([]int64, len(lines))
	remainders := make([]decimal.Decimal, len(lines))

	var allocated int64
	for i, l := range lines {
		exact := l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity))).Mul(hundred)
		floor := exact.Floor()
		cents[i] = floor.IntPart()
		remainders[i] = exact.Sub(floor)
		allocated += cents[i]
	}

	left := ToCents(Calculate(lines).ItemsPrice) - allocated

	order := make([]int, len(lines))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return remainders[order[a]].GreaterThan(remainders[order[b]])
	})
	for _, i := range order {
		if left <= 0 {
			break
		}
		if remainders[i].IsZero() {
			break
		}
		cents[i]++
		left--
	}
	return cents
}

// Float is the persisted representation of a price.
func Float(d decimal.Decimal) float64 {
	return d.InexactFloat64()
}
