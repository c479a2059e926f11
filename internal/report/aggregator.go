// Package report folds completed orders into windowed totals and product
// rankings. The folds are plain sums, commutative over their inputs, with
// no invariants of their own.
package report

import (
	"slices"
	"strings"
	"time"

	"almofadaria/backend/internal/domain"
)

type Window struct {
	From time.Time
	To   time.Time
}

func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.From) && t.Before(w.To)
}

// DayWindow is the 24h UTC window starting at the given date.
func DayWindow(day time.Time) Window {
	from := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	return Window{From: from, To: from.Add(24 * time.Hour)}
}

// Summarize folds completed orders inside the window into revenue and unit
// totals. Revenue uses the order's final price when staff adjusted one,
// the computed total otherwise. Pending orders never count.
func Summarize(orders []domain.Order, w Window) domain.SalesSummary {
	summary := domain.SalesSummary{Date: w.From.Format("2006-01-02")}
	for _, order := range orders {
		if order.Status != domain.OrderStatusCompleted || order.CompletedAt == nil {
			continue
		}
		if !w.Contains(*order.CompletedAt) {
			continue
		}
		summary.Orders++
		summary.RevenueCents += order.RevenueCents()
		for _, line := range order.Items {
			summary.UnitsSold += int64(line.Qty)
			if line.IsPreOrder {
				summary.PreorderUnits += int64(line.Qty)
			}
		}
	}
	return summary
}

// RankProducts orders the catalog by cumulative units sold, ties broken by
// name so the ranking is stable across runs.
func RankProducts(products []domain.Product) []domain.ProductRank {
	ranking := make([]domain.ProductRank, 0, len(products))
	for _, p := range products {
		if p.UnitsSold < 1 {
			continue
		}
		ranking = append(ranking, domain.ProductRank{
			ProductID: p.ID,
			Name:      p.Name,
			Brand:     p.Brand,
			Colors:    p.Colors,
			UnitsSold: p.UnitsSold,
		})
	}
	slices.SortFunc(ranking, func(a, b domain.ProductRank) int {
		if a.UnitsSold != b.UnitsSold {
			return b.UnitsSold - a.UnitsSold
		}
		return strings.Compare(a.Name, b.Name)
	})
	return ranking
}

// PreorderBacklog lists outstanding pre-order quantities per variation
// across pending orders, against the variation's current total stock.
func PreorderBacklog(orders []domain.Order, products map[string]domain.Product, stockOf func(domain.Variation) int) []domain.PreorderBacklogEntry {
	type key struct {
		productID string
		size      domain.Size
	}
	backlog := make(map[key]int)
	for _, order := range orders {
		if order.Status != domain.OrderStatusPending {
			continue
		}
		for _, line := range order.Items {
			if !line.IsPreOrder || line.Qty < 1 {
				continue
			}
			backlog[key{line.ProductID, line.Size}] += line.Qty
		}
	}

	entries := make([]domain.PreorderBacklogEntry, 0, len(backlog))
	for k, qty := range backlog {
		product, ok := products[k.productID]
		if !ok {
			continue
		}
		current := 0
		if variation, ok := product.VariationBySize(k.size); ok {
			current = stockOf(variation)
		}
		shortfall := qty - current
		if shortfall < 0 {
			shortfall = 0
		}
		entries = append(entries, domain.PreorderBacklogEntry{
			ProductID:    k.productID,
			Name:         product.Name,
			Size:         k.size,
			PreorderQty:  qty,
			CurrentStock: current,
			Shortfall:    shortfall,
		})
	}

	slices.SortFunc(entries, func(a, b domain.PreorderBacklogEntry) int {
		if a.Shortfall != b.Shortfall {
			return b.Shortfall - a.Shortfall
		}
		if a.ProductID != b.ProductID {
			return strings.Compare(a.ProductID, b.ProductID)
		}
		return strings.Compare(string(a.Size), string(b.Size))
	})
	return entries
}
