package domain

import "github.com/shopspring/decimal"

// OrderTotal is the single definition of an order's total:
// sum(unitPrice*quantity) plus the branch delivery fee when the chosen
// delivery type requires an address. Computed once at admission from the
// snapshotted line prices and immutable afterwards.
func OrderTotal(lines []OrderLine, deliveryFee decimal.Decimal, isDelivery bool) decimal.Decimal {
	total := decimal.Zero
	for _, l := range lines {
		total = total.Add(l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity))))
	}
	if isDelivery {
		total = total.Add(deliveryFee)
	}
	return total
}
