package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"almofadaria/backend/internal/cache"
	"almofadaria/backend/internal/domain"
	"almofadaria/backend/internal/related"
	"almofadaria/backend/internal/stock"
	"almofadaria/backend/internal/store"
	"almofadaria/backend/internal/store/memory"
)

const (
	storeA = domain.StoreID("loja-centro")
	storeB = domain.StoreID("loja-shopping")
)

func newTestService(t *testing.T) (*Service, *memory.Store) {
	t.Helper()
	repo := memory.NewSeeded(storeA, storeB)
	engine := related.NewEngine(repo, cache.NoopSuggestionCache{}, time.Second)
	return New(repo, engine, stock.DeductionOrder{storeA, storeB}), repo
}

func adminCtx() context.Context {
	return WithActor(context.Background(), domain.Actor{Username: "admin", Role: "admin"})
}

func sellerCtx() context.Context {
	return WithActor(context.Background(), domain.Actor{Username: "vendedor", Role: "vendedor"})
}

func stockAt(t *testing.T, repo *memory.Store, productID string, size domain.Size) map[domain.StoreID]int {
	t.Helper()
	product, err := repo.GetProduct(context.Background(), productID)
	if err != nil {
		t.Fatalf("get product: %v", err)
	}
	variation, ok := product.VariationBySize(size)
	if !ok {
		t.Fatalf("product %s has no size %s", productID, size)
	}
	return variation.Stock
}

func TestReconcileCartSplitsAgainstStock(t *testing.T) {
	svc, _ := newTestService(t)

	// prod-lisa-azul seeds 3 units in store A, 0 in store B.
	resp, err := svc.ReconcileCart(sellerCtx(), domain.ReconcileRequest{
		ProductID: "prod-lisa-azul",
		Size:      domain.Size45x45,
		ItemType:  domain.LineTypeFull,
		Qty:       4,
	})
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if resp.ImmediateQty != 3 || resp.PreorderQty != 1 {
		t.Fatalf("expected 3/1 split, got %d/%d", resp.ImmediateQty, resp.PreorderQty)
	}
	if len(resp.Lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(resp.Lines))
	}

	// Reconciliation never mutates stock.
	again, err := svc.ReconcileCart(sellerCtx(), domain.ReconcileRequest{
		ProductID: "prod-lisa-azul",
		Size:      domain.Size45x45,
		ItemType:  domain.LineTypeFull,
		Qty:       4,
	})
	if err != nil {
		t.Fatalf("second reconcile: %v", err)
	}
	if again.ImmediateQty != resp.ImmediateQty || again.PreorderQty != resp.PreorderQty {
		t.Fatalf("reconcile should be repeatable: %+v vs %+v", resp, again)
	}
}

func TestReconcileCartCountsPendingReservations(t *testing.T) {
	svc, _ := newTestService(t)

	// prod-tricot-cru seeds 4+2 units. A pending order claims 2.
	if _, err := svc.CreateOrder(sellerCtx(), domain.OrderCreateRequest{
		Items: []domain.ReconcileRequest{{
			ProductID: "prod-tricot-cru",
			Size:      domain.Size45x45,
			ItemType:  domain.LineTypeCover,
			Qty:       2,
		}},
	}); err != nil {
		t.Fatalf("create order: %v", err)
	}

	resp, err := svc.ReconcileCart(sellerCtx(), domain.ReconcileRequest{
		ProductID: "prod-tricot-cru",
		Size:      domain.Size45x45,
		ItemType:  domain.LineTypeCover,
		Qty:       6,
	})
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if resp.ReservedQty != 2 {
		t.Fatalf("expected 2 reserved, got %d", resp.ReservedQty)
	}
	if resp.ImmediateQty != 4 || resp.PreorderQty != 2 {
		t.Fatalf("expected 4/2 split, got %d/%d", resp.ImmediateQty, resp.PreorderQty)
	}
}

func TestCreateOrderPricesLines(t *testing.T) {
	svc, _ := newTestService(t)

	resp, err := svc.CreateOrder(sellerCtx(), domain.OrderCreateRequest{
		Items: []domain.ReconcileRequest{{
			ProductID: "prod-lisa-azul",
			Size:      domain.Size45x45,
			ItemType:  domain.LineTypeFull,
			Qty:       4,
		}},
		PaymentMethod: "pix",
	})
	if err != nil {
		t.Fatalf("create order: %v", err)
	}

	order := resp.Order
	if order.Status != domain.OrderStatusPending {
		t.Fatalf("new orders are pending, got %s", order.Status)
	}
	if len(order.Items) != 2 {
		t.Fatalf("expected split into 2 lines, got %d", len(order.Items))
	}
	// 4 full cushions at 8900 each, pre-order priced the same as stock.
	if order.TotalCents != 4*8900 {
		t.Fatalf("expected total %d, got %d", 4*8900, order.TotalCents)
	}
}

func TestCompleteOrderDeductsOnce(t *testing.T) {
	svc, repo := newTestService(t)

	created, err := svc.CreateOrder(sellerCtx(), domain.OrderCreateRequest{
		Items: []domain.ReconcileRequest{{
			ProductID: "prod-lisa-azul",
			Size:      domain.Size45x45,
			ItemType:  domain.LineTypeFull,
			Qty:       4,
		}},
	})
	if err != nil {
		t.Fatalf("create order: %v", err)
	}

	first, err := svc.CompleteOrder(sellerCtx(), created.Order.ID)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if first.AlreadyCompleted {
		t.Fatalf("first completion should not be flagged as repeat")
	}
	if first.Order.CompletedAt == nil {
		t.Fatalf("completed order must carry a completion time")
	}

	after := stockAt(t, repo, "prod-lisa-azul", domain.Size45x45)
	if after[storeA] != 0 || after[storeB] != 0 {
		t.Fatalf("expected stock drained to zero, got %v", after)
	}

	second, err := svc.CompleteOrder(sellerCtx(), created.Order.ID)
	if err != nil {
		t.Fatalf("second complete: %v", err)
	}
	if !second.AlreadyCompleted {
		t.Fatalf("second completion must report AlreadyCompleted")
	}
	if len(second.Deductions) != 0 {
		t.Fatalf("second completion must not deduct: %v", second.Deductions)
	}

	unchanged := stockAt(t, repo, "prod-lisa-azul", domain.Size45x45)
	if unchanged[storeA] != 0 || unchanged[storeB] != 0 {
		t.Fatalf("stock moved on repeat completion: %v", unchanged)
	}

	logs, err := svc.ListAuditLogs(adminCtx(), time.Time{}, time.Time{}, 50)
	if err != nil {
		t.Fatalf("audit logs: %v", err)
	}
	completions := 0
	for _, entry := range logs {
		if entry.Action == "order_complete" {
			completions++
		}
	}
	if completions != 1 {
		t.Fatalf("repeat completion must not add audit entries, got %d", completions)
	}
}

func TestCompleteOrderDrainsStoreAFirst(t *testing.T) {
	svc, repo := newTestService(t)

	// prod-lisa-azul-marinho seeds 5 in store A, 4 in store B.
	created, err := svc.CreateOrder(sellerCtx(), domain.OrderCreateRequest{
		Items: []domain.ReconcileRequest{{
			ProductID: "prod-lisa-azul-marinho",
			Size:      domain.Size50x50,
			ItemType:  domain.LineTypeCover,
			Qty:       7,
		}},
	})
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	if _, err := svc.CompleteOrder(sellerCtx(), created.Order.ID); err != nil {
		t.Fatalf("complete: %v", err)
	}

	after := stockAt(t, repo, "prod-lisa-azul-marinho", domain.Size50x50)
	if after[storeA] != 0 {
		t.Fatalf("store A should be drained first, got %d", after[storeA])
	}
	if after[storeB] != 2 {
		t.Fatalf("store B should hold the remainder 2, got %d", after[storeB])
	}
}

func TestCompleteOrderBumpsUnitsSold(t *testing.T) {
	svc, repo := newTestService(t)

	created, err := svc.CreateOrder(sellerCtx(), domain.OrderCreateRequest{
		Items: []domain.ReconcileRequest{{
			ProductID: "prod-boho-mostarda",
			Size:      domain.Size45x45,
			ItemType:  domain.LineTypeCover,
			Qty:       3,
		}},
	})
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	if _, err := svc.CompleteOrder(sellerCtx(), created.Order.ID); err != nil {
		t.Fatalf("complete: %v", err)
	}

	product, err := repo.GetProduct(context.Background(), "prod-boho-mostarda")
	if err != nil {
		t.Fatalf("get product: %v", err)
	}
	if product.UnitsSold != 3 {
		t.Fatalf("expected 3 units sold, got %d", product.UnitsSold)
	}
}

func TestCreateProductRejectsDuplicateName(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.CreateProduct(adminCtx(), domain.ProductCreateRequest{
		Name:     "almofada lisa verde",
		Brand:    "Casa Conforto",
		Category: "lisa",
		Colors:   []domain.Color{{Name: "Verde", Hex: "#2e7d32"}},
		Variations: []domain.VariationInput{{
			Size: domain.Size45x45, PriceCoverCents: 4900, PriceFullCents: 8900,
		}},
	})
	if !errors.Is(err, store.ErrNameTaken) {
		t.Fatalf("expected ErrNameTaken, got %v", err)
	}
}

func TestCreateProductRequiresAdmin(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.CreateProduct(sellerCtx(), domain.ProductCreateRequest{
		Name:     "Almofada Nova",
		Brand:    "Casa Conforto",
		Category: "lisa",
		Colors:   []domain.Color{{Name: "Rosa"}},
		Variations: []domain.VariationInput{{
			Size: domain.Size45x45, PriceCoverCents: 4900, PriceFullCents: 8900,
		}},
	})
	if !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
}

func TestAdjustStockWritesAbsoluteQuantity(t *testing.T) {
	svc, repo := newTestService(t)

	resp, err := svc.AdjustStock(adminCtx(), domain.StockAdjustRequest{
		ProductID: "prod-tricot-terracota",
		Size:      domain.Size45x45,
		Store:     storeA,
		Qty:       12,
		Reason:    "chegada de remessa",
	})
	if err != nil {
		t.Fatalf("adjust: %v", err)
	}
	if resp.OldQty != 0 || resp.NewQty != 12 {
		t.Fatalf("expected 0 -> 12, got %d -> %d", resp.OldQty, resp.NewQty)
	}

	after := stockAt(t, repo, "prod-tricot-terracota", domain.Size45x45)
	if after[storeA] != 12 {
		t.Fatalf("stock not written: %v", after)
	}

	logs, err := svc.ListAuditLogs(adminCtx(), time.Time{}, time.Time{}, 10)
	if err != nil {
		t.Fatalf("audit logs: %v", err)
	}
	found := false
	for _, entry := range logs {
		if entry.Action == "stock_adjust" {
			found = true
			break
		}
	}
	if !found {
		t.Fatalf("manual adjustment must be audited")
	}
}

func TestAdjustStockRequiresReason(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.AdjustStock(adminCtx(), domain.StockAdjustRequest{
		ProductID: "prod-tricot-terracota",
		Size:      domain.Size45x45,
		Store:     storeA,
		Qty:       5,
	})
	if !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestPreorderBacklogListsShortfalls(t *testing.T) {
	svc, _ := newTestService(t)

	// prod-tricot-terracota has zero stock everywhere; the whole request
	// becomes a pre-order.
	if _, err := svc.CreateOrder(sellerCtx(), domain.OrderCreateRequest{
		Items: []domain.ReconcileRequest{{
			ProductID: "prod-tricot-terracota",
			Size:      domain.Size50x50,
			ItemType:  domain.LineTypeCover,
			Qty:       5,
		}},
	}); err != nil {
		t.Fatalf("create order: %v", err)
	}

	backlog, err := svc.PreorderBacklog(sellerCtx())
	if err != nil {
		t.Fatalf("backlog: %v", err)
	}
	if len(backlog.Entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(backlog.Entries))
	}
	entry := backlog.Entries[0]
	if entry.ProductID != "prod-tricot-terracota" || entry.PreorderQty != 5 || entry.Shortfall != 5 {
		t.Fatalf("unexpected entry: %+v", entry)
	}
}

func TestSalesReportFoldsCompletedOrders(t *testing.T) {
	svc, _ := newTestService(t)

	final := int64(9000)
	created, err := svc.CreateOrder(sellerCtx(), domain.OrderCreateRequest{
		Items: []domain.ReconcileRequest{{
			ProductID: "prod-lisa-verde",
			Size:      domain.Size45x45,
			ItemType:  domain.LineTypeCover,
			Qty:       2,
		}},
		FinalCents: &final,
	})
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	if _, err := svc.CompleteOrder(sellerCtx(), created.Order.ID); err != nil {
		t.Fatalf("complete: %v", err)
	}

	summary, err := svc.SalesReport(sellerCtx(), time.Now().UTC())
	if err != nil {
		t.Fatalf("report: %v", err)
	}
	if summary.Orders != 1 {
		t.Fatalf("expected 1 order, got %d", summary.Orders)
	}
	if summary.RevenueCents != 9000 {
		t.Fatalf("revenue should use the adjusted final price, got %d", summary.RevenueCents)
	}
	if summary.UnitsSold != 2 {
		t.Fatalf("expected 2 units, got %d", summary.UnitsSold)
	}
}

func TestBuildReceiptRendersOrder(t *testing.T) {
	svc, _ := newTestService(t)

	created, err := svc.CreateOrder(sellerCtx(), domain.OrderCreateRequest{
		Items: []domain.ReconcileRequest{{
			ProductID: "prod-lisa-verde",
			Size:      domain.Size45x45,
			ItemType:  domain.LineTypeFull,
			Qty:       1,
		}},
	})
	if err != nil {
		t.Fatalf("create order: %v", err)
	}

	receipt, err := svc.BuildReceipt(sellerCtx(), created.Order.ID)
	if err != nil {
		t.Fatalf("receipt: %v", err)
	}
	if receipt.OrderID != created.Order.ID || receipt.EscposBase64 == "" {
		t.Fatalf("unexpected receipt: %+v", receipt)
	}
	if receipt.PreviewText == "" {
		t.Fatalf("receipt preview should not be empty")
	}
}

func TestRelatedColorsFindsFamilySiblings(t *testing.T) {
	svc, _ := newTestService(t)

	resp, err := svc.RelatedColors(sellerCtx(), "prod-lisa-verde")
	if err != nil {
		t.Fatalf("related colors: %v", err)
	}

	ids := make(map[string]bool, len(resp.Products))
	for _, p := range resp.Products {
		ids[p.ID] = true
	}
	if !ids["prod-lisa-azul"] || !ids["prod-lisa-azul-marinho"] {
		t.Fatalf("expected both lisa siblings, got %v", ids)
	}
	if ids["prod-tricot-cru"] {
		t.Fatalf("tricot is a different family")
	}
}
