// Package cart splits a requested quantity into what can be satisfied from
// physical stock right now and what must be queued as a pre-order. It only
// reads stock; mutation is the fulfillment path's job.
package cart

import "almofadaria/backend/internal/domain"

// Split is the outcome of allocating a requested quantity.
// Immediate + Preorder always equals the requested quantity.
type Split struct {
	Immediate int
	Preorder  int
}

// Allocate computes the split for a request against the variation's total
// physical stock, after subtracting the quantity other open cart lines for
// the same variation have already claimed. All inputs below zero are
// treated as zero. Repeated calls with the same inputs return the same
// split; callers must recompute whenever stock or reservations change,
// never cache.
func Allocate(requestedQty int, physicalStock int, alreadyReservedQty int) Split {
	if requestedQty < 0 {
		requestedQty = 0
	}
	if physicalStock < 0 {
		physicalStock = 0
	}
	if alreadyReservedQty < 0 {
		alreadyReservedQty = 0
	}

	availableNow := physicalStock - alreadyReservedQty
	if availableNow < 0 {
		availableNow = 0
	}

	immediate := requestedQty
	if immediate > availableNow {
		immediate = availableNow
	}
	return Split{Immediate: immediate, Preorder: requestedQty - immediate}
}

// Reconcile turns a request into at most two cart lines: an in-stock line
// and, when stock cannot cover the whole request, a pre-order line. When
// nothing is available the entire request becomes a single pre-order line.
func Reconcile(productID string, size domain.Size, itemType domain.LineType, requestedQty int, physicalStock int, reservedQty int) []domain.CartLine {
	split := Allocate(requestedQty, physicalStock, reservedQty)

	lines := make([]domain.CartLine, 0, 2)
	if split.Immediate > 0 {
		lines = append(lines, domain.CartLine{
			ProductID: productID,
			Size:      size,
			ItemType:  itemType,
			Qty:       split.Immediate,
		})
	}
	if split.Preorder > 0 {
		lines = append(lines, domain.CartLine{
			ProductID:  productID,
			Size:       size,
			ItemType:   itemType,
			Qty:        split.Preorder,
			IsPreOrder: true,
		})
	}
	return lines
}
