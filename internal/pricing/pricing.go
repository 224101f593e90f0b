// Package pricing computes the server-trusted order total. Client-submitted
// totals are never used anywhere in the order path.
package pricing

import "math"

// Item is the minimal view of an order line the calculator needs.
type Item struct {
	Price    float64
	Quantity int
}

// ComputeTotal sums price*quantity over items plus the delivery fee.
// Missing or non-numeric fields count as zero; the calculator never fails.
func ComputeTotal(items []Item, deliveryFee float64) float64 {
	total := sanitize(deliveryFee)
	for _, it := range items {
		price := sanitize(it.Price)
		qty := it.Quantity
		if qty < 0 {
			qty = 0
		}
		total += price * float64(qty)
	}
	return total
}

func sanitize(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return 0
	}
	return v
}
