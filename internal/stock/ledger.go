// Package stock holds the pure ledger arithmetic over a variation's
// per-store stock counts. It never touches persistence; the repository
// layer applies the resulting values.
package stock

import "almofadaria/backend/internal/domain"

// DeductionOrder is the sequence in which stores are drained during
// fulfillment. The default is store A first, then store B; callers pass it
// explicitly so the policy is a parameter, not a baked-in literal.
type DeductionOrder []domain.StoreID

// Available returns the non-negative stock count of a variation at one
// store. Missing entries count as zero.
func Available(v domain.Variation, store domain.StoreID) int {
	qty := v.Stock[store]
	if qty < 0 {
		return 0
	}
	return qty
}

// TotalAvailable sums stock across all stores, clamped at zero per store.
func TotalAvailable(v domain.Variation) int {
	total := 0
	for store := range v.Stock {
		total += Available(v, store)
	}
	return total
}

// Adjust applies a delta to one store's count and returns the new value.
// A decrement that would go negative is clamped to zero rather than
// failing; this mirrors the documented ledger policy.
func Adjust(v *domain.Variation, store domain.StoreID, delta int) int {
	if v.Stock == nil {
		v.Stock = make(map[domain.StoreID]int, 2)
	}
	next := v.Stock[store] + delta
	if next < 0 {
		next = 0
	}
	v.Stock[store] = next
	return next
}

// Deduct removes qty units from the variation following the deduction
// order: each store is drained before the next is touched, and the final
// store is clamped at zero if stock is still insufficient. The returned
// map records how many units each store actually gave up.
func Deduct(v *domain.Variation, order DeductionOrder, qty int) map[domain.StoreID]int {
	taken := make(map[domain.StoreID]int, len(order))
	remaining := qty
	for i, store := range order {
		if remaining <= 0 {
			break
		}
		have := Available(*v, store)
		take := remaining
		if take > have && i < len(order)-1 {
			take = have
		}
		// Last store absorbs the remainder; Adjust clamps at zero.
		Adjust(v, store, -take)
		if take > have {
			take = have
		}
		if take > 0 {
			taken[store] = take
		}
		remaining -= take
	}
	return taken
}
