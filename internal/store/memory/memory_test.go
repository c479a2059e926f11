package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"almofadaria/backend/internal/domain"
	"almofadaria/backend/internal/store"
)

const (
	storeA = domain.StoreID("loja-centro")
	storeB = domain.StoreID("loja-shopping")
)

func TestAdjustStockClampsAndNotifies(t *testing.T) {
	s := NewSeeded(storeA, storeB)

	var changes []domain.StockChange
	s.SubscribeStockChanges(func(change domain.StockChange) {
		changes = append(changes, change)
	})

	// prod-lisa-azul seeds 3 units in store A.
	newQty, err := s.AdjustStock(context.Background(), "prod-lisa-azul", domain.Size45x45, storeA, -10)
	if err != nil {
		t.Fatalf("adjust: %v", err)
	}
	if newQty != 0 {
		t.Fatalf("expected clamp to 0, got %d", newQty)
	}
	if len(changes) != 1 || changes[0].NewQty != 0 || changes[0].Store != storeA {
		t.Fatalf("subscriber not notified correctly: %v", changes)
	}
}

func TestAdjustStockUnknownVariation(t *testing.T) {
	s := NewSeeded(storeA, storeB)

	if _, err := s.AdjustStock(context.Background(), "prod-lisa-azul", domain.Size60x60, storeA, 1); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for missing size, got %v", err)
	}
	if _, err := s.AdjustStock(context.Background(), "fantasma", domain.Size45x45, storeA, 1); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for missing product, got %v", err)
	}
}

func TestMarkOrderCompletedOnlyOnce(t *testing.T) {
	s := NewSeeded(storeA, storeB)

	created, err := s.CreateOrder(context.Background(), domain.Order{
		Items: []domain.CartLine{{ProductID: "prod-lisa-verde", Size: domain.Size45x45, ItemType: domain.LineTypeCover, Qty: 1}},
	})
	if err != nil {
		t.Fatalf("create order: %v", err)
	}

	completed, err := s.MarkOrderCompleted(context.Background(), created.ID, time.Now().UTC())
	if err != nil {
		t.Fatalf("first completion: %v", err)
	}
	if completed.Status != domain.OrderStatusCompleted || completed.CompletedAt == nil {
		t.Fatalf("order not completed: %+v", completed)
	}

	if _, err := s.MarkOrderCompleted(context.Background(), created.ID, time.Now().UTC()); !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("second completion should fail with ErrInvalidInput, got %v", err)
	}
}

func TestReservedQtyCountsOnlyStockBackedPendingLines(t *testing.T) {
	s := NewSeeded(storeA, storeB)
	ctx := context.Background()

	first, err := s.CreateOrder(ctx, domain.Order{
		Items: []domain.CartLine{
			{ProductID: "prod-lisa-verde", Size: domain.Size45x45, ItemType: domain.LineTypeCover, Qty: 2},
			{ProductID: "prod-lisa-verde", Size: domain.Size45x45, ItemType: domain.LineTypeCover, Qty: 3, IsPreOrder: true},
		},
	})
	if err != nil {
		t.Fatalf("create first: %v", err)
	}
	second, err := s.CreateOrder(ctx, domain.Order{
		Items: []domain.CartLine{{ProductID: "prod-lisa-verde", Size: domain.Size45x45, ItemType: domain.LineTypeCover, Qty: 4}},
	})
	if err != nil {
		t.Fatalf("create second: %v", err)
	}
	if _, err := s.MarkOrderCompleted(ctx, second.ID, time.Now().UTC()); err != nil {
		t.Fatalf("complete second: %v", err)
	}

	// Pre-order lines and completed orders never reserve stock.
	reserved, err := s.ReservedQty(ctx, "prod-lisa-verde", domain.Size45x45, "")
	if err != nil {
		t.Fatalf("reserved: %v", err)
	}
	if reserved != 2 {
		t.Fatalf("expected 2 reserved, got %d", reserved)
	}

	excluded, err := s.ReservedQty(ctx, "prod-lisa-verde", domain.Size45x45, first.ID)
	if err != nil {
		t.Fatalf("reserved with exclusion: %v", err)
	}
	if excluded != 0 {
		t.Fatalf("excluding the only pending order should give 0, got %d", excluded)
	}
}

func TestCreateProductRejectsDuplicateNameCaseInsensitive(t *testing.T) {
	s := NewSeeded(storeA, storeB)

	_, err := s.CreateProduct(context.Background(), domain.Product{
		ID: "prod-novo", Name: "ALMOFADA LISA VERDE", Brand: "X", Category: "lisa",
		Colors:     []domain.Color{{Name: "Verde"}},
		Variations: []domain.Variation{{Size: domain.Size45x45}},
	})
	if !errors.Is(err, store.ErrNameTaken) {
		t.Fatalf("expected ErrNameTaken, got %v", err)
	}
}

func TestClonesAreIsolated(t *testing.T) {
	s := NewSeeded(storeA, storeB)
	ctx := context.Background()

	product, err := s.GetProduct(ctx, "prod-lisa-verde")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	product.Variations[0].Stock[storeA] = 999

	fresh, err := s.GetProduct(ctx, "prod-lisa-verde")
	if err != nil {
		t.Fatalf("get again: %v", err)
	}
	if fresh.Variations[0].Stock[storeA] == 999 {
		t.Fatalf("mutating a returned clone leaked into the store")
	}
}
