package inward

import "fmt"

// reversalTarget keys cumulative reversal quantities. Exactly one of the two
// ids is set.
type reversalTarget struct {
	SKUID      int64
	MaterialID int64
}

// reversalPlan sums the quantity to reverse per stock target. Multiple bill
// lines can hit the same target, so validation must compare the cumulative
// total against current stock, not each line alone.
func reversalPlan(entries []Entry) map[reversalTarget]float64 {
	plan := make(map[reversalTarget]float64, len(entries))
	for _, e := range entries {
		target := reversalTarget{MaterialID: e.MaterialID}
		if e.SKUID != 0 {
			target = reversalTarget{SKUID: e.SKUID}
		}
		plan[target] += e.Qty
	}
	return plan
}

// weightReversal computes the weight to remove when reversing qty units of a
// SKU. Quantity-only movements let recorded weight drift below qty times
// capacity, so the reversal is capped at the weight actually on hand to keep
// it from going negative.
func weightReversal(qty, capacityKg, availableWeightKg float64) float64 {
	w := qty * capacityKg
	if w > availableWeightKg {
		w = availableWeightKg
	}
	if w < 0 {
		w = 0
	}
	return w
}

// reversalError builds the operator-facing failure for one target.
func reversalError(name string, required, available float64) error {
	return fmt.Errorf("%w: %s has %.2f in stock, reversal needs %.2f", ErrInsufficientStockToReverse, name, available, required)
}
