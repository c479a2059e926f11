// Package service implements the order-fulfillment core: catalog
// management, cart reconciliation, order lifecycle, stock adjustments and
// reporting. Stock is mutated here and nowhere else above the repository.
package service

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"almofadaria/backend/internal/cart"
	"almofadaria/backend/internal/domain"
	"almofadaria/backend/internal/related"
	"almofadaria/backend/internal/report"
	"almofadaria/backend/internal/stock"
	"almofadaria/backend/internal/store"
	"almofadaria/backend/internal/xid"
)

var ErrForbidden = errors.New("forbidden")

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

type Service struct {
	repo           store.Repository
	engine         *related.Engine
	deductionOrder stock.DeductionOrder
}

func New(repo store.Repository, engine *related.Engine, deductionOrder stock.DeductionOrder) *Service {
	return &Service{repo: repo, engine: engine, deductionOrder: deductionOrder}
}

func (s *Service) ListProducts(ctx context.Context) ([]domain.Product, error) {
	return s.repo.ListProducts(ctx)
}

func (s *Service) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	return s.repo.GetProduct(ctx, id)
}

func (s *Service) CreateProduct(ctx context.Context, req domain.ProductCreateRequest) (domain.Product, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != "admin" {
		return domain.Product{}, fmt.Errorf("admin role required: %w", ErrForbidden)
	}

	req.Name = strings.TrimSpace(req.Name)
	req.Brand = strings.TrimSpace(req.Brand)
	req.Category = strings.TrimSpace(req.Category)
	req.SubCategory = strings.TrimSpace(req.SubCategory)
	if req.Name == "" || req.Brand == "" || req.Category == "" {
		return domain.Product{}, fmt.Errorf("name, brand and category are required: %w", store.ErrInvalidInput)
	}
	if len(req.Colors) < 1 || len(req.Colors) > 3 {
		return domain.Product{}, fmt.Errorf("a product carries 1 to 3 colors: %w", store.ErrInvalidInput)
	}
	if len(req.Variations) == 0 {
		return domain.Product{}, fmt.Errorf("at least one variation is required: %w", store.ErrInvalidInput)
	}

	variations := make([]domain.Variation, 0, len(req.Variations))
	seenSizes := make(map[domain.Size]struct{}, len(req.Variations))
	for _, in := range req.Variations {
		if !domain.ValidSize(in.Size) {
			return domain.Product{}, fmt.Errorf("unknown size %q: %w", in.Size, store.ErrInvalidInput)
		}
		if _, dup := seenSizes[in.Size]; dup {
			return domain.Product{}, fmt.Errorf("duplicate size %q: %w", in.Size, store.ErrInvalidInput)
		}
		seenSizes[in.Size] = struct{}{}
		if in.PriceCoverCents < 0 || in.PriceFullCents < 0 {
			return domain.Product{}, fmt.Errorf("prices cannot be negative: %w", store.ErrInvalidInput)
		}
		stockA, stockB := in.InitialStockA, in.InitialStockB
		if stockA < 0 {
			stockA = 0
		}
		if stockB < 0 {
			stockB = 0
		}
		variations = append(variations, domain.Variation{
			Size:            in.Size,
			PriceCoverCents: in.PriceCoverCents,
			PriceFullCents:  in.PriceFullCents,
			Stock: map[domain.StoreID]int{
				s.deductionOrder[0]: stockA,
				s.deductionOrder[1]: stockB,
			},
		})
	}

	if _, err := s.repo.FindProductByName(ctx, req.Name); err == nil {
		return domain.Product{}, store.ErrNameTaken
	} else if !errors.Is(err, store.ErrNotFound) {
		return domain.Product{}, err
	}

	created, err := s.repo.CreateProduct(ctx, domain.Product{
		ID:          xid.New("prod"),
		Name:        req.Name,
		Brand:       req.Brand,
		Category:    strings.ToLower(req.Category),
		SubCategory: strings.ToLower(req.SubCategory),
		Colors:      req.Colors,
		Variations:  variations,
		Active:      true,
		CreatedAt:   time.Now().UTC(),
	})
	if err != nil {
		return domain.Product{}, err
	}

	s.logAudit(ctx, "product_create", "product", created.ID, fmt.Sprintf("name=%s,variations=%d", created.Name, len(created.Variations)))
	return *created, nil
}

func (s *Service) UpdateProduct(ctx context.Context, id string, req domain.ProductUpdateRequest) (domain.Product, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != "admin" {
		return domain.Product{}, fmt.Errorf("admin role required: %w", ErrForbidden)
	}

	existing, err := s.repo.GetProduct(ctx, id)
	if err != nil {
		return domain.Product{}, err
	}

	updated := *existing
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return domain.Product{}, fmt.Errorf("name cannot be empty: %w", store.ErrInvalidInput)
		}
		updated.Name = name
	}
	if req.Brand != nil {
		updated.Brand = strings.TrimSpace(*req.Brand)
	}
	if req.Category != nil {
		updated.Category = strings.ToLower(strings.TrimSpace(*req.Category))
	}
	if req.SubCategory != nil {
		updated.SubCategory = strings.ToLower(strings.TrimSpace(*req.SubCategory))
	}
	if req.Colors != nil {
		if len(req.Colors) < 1 || len(req.Colors) > 3 {
			return domain.Product{}, fmt.Errorf("a product carries 1 to 3 colors: %w", store.ErrInvalidInput)
		}
		updated.Colors = req.Colors
	}
	if req.Active != nil {
		updated.Active = *req.Active
	}

	saved, err := s.repo.UpdateProduct(ctx, updated)
	if err != nil {
		return domain.Product{}, err
	}

	s.logAudit(ctx, "product_update", "product", saved.ID, fmt.Sprintf("name=%s,active=%t", saved.Name, saved.Active))
	return *saved, nil
}

// RelatedColors lists the other colors of the same cushion family.
func (s *Service) RelatedColors(ctx context.Context, productID string) (*domain.RelatedColorsResponse, error) {
	return s.engine.RelatedColors(ctx, productID)
}

// Suggest proposes one in-stock family sibling for the current cart.
func (s *Service) Suggest(ctx context.Context, req domain.SuggestionRequest) (*domain.SuggestionResponse, error) {
	return s.engine.Suggest(ctx, req)
}

// ReconcileCart splits one requested line into an in-stock part and a
// pre-order part against current physical stock minus what other pending
// orders already claim. It never mutates stock.
func (s *Service) ReconcileCart(ctx context.Context, req domain.ReconcileRequest) (domain.ReconcileResponse, error) {
	if err := validateLineRequest(req); err != nil {
		return domain.ReconcileResponse{}, err
	}

	product, err := s.repo.GetProduct(ctx, req.ProductID)
	if err != nil {
		return domain.ReconcileResponse{}, err
	}
	variation, ok := product.VariationBySize(req.Size)
	if !ok {
		return domain.ReconcileResponse{}, fmt.Errorf("product %s has no size %s: %w", req.ProductID, req.Size, store.ErrNotFound)
	}

	reserved, err := s.repo.ReservedQty(ctx, req.ProductID, req.Size, "")
	if err != nil {
		return domain.ReconcileResponse{}, err
	}

	physical := stock.TotalAvailable(variation)
	lines := cart.Reconcile(req.ProductID, req.Size, req.ItemType, req.Qty, physical, reserved)
	split := cart.Allocate(req.Qty, physical, reserved)

	return domain.ReconcileResponse{
		ProductID:    req.ProductID,
		Size:         req.Size,
		ItemType:     req.ItemType,
		RequestedQty: req.Qty,
		ImmediateQty: split.Immediate,
		PreorderQty:  split.Preorder,
		ReservedQty:  reserved,
		Lines:        lines,
	}, nil
}

// CreateOrder reconciles every requested line at creation time and records
// a pending order. Stock is untouched until the order completes.
func (s *Service) CreateOrder(ctx context.Context, req domain.OrderCreateRequest) (domain.OrderResponse, error) {
	if len(req.Items) == 0 {
		return domain.OrderResponse{}, fmt.Errorf("order needs at least one item: %w", store.ErrInvalidInput)
	}
	if req.FinalCents != nil && *req.FinalCents < 0 {
		return domain.OrderResponse{}, fmt.Errorf("final price cannot be negative: %w", store.ErrInvalidInput)
	}

	var total int64
	lines := make([]domain.CartLine, 0, len(req.Items)*2)
	// Quantities already allocated to earlier lines of this same order, so
	// two lines for one variation do not both claim the same units.
	claimed := make(map[string]int, len(req.Items))

	for _, item := range req.Items {
		if err := validateLineRequest(item); err != nil {
			return domain.OrderResponse{}, err
		}
		product, err := s.repo.GetProduct(ctx, item.ProductID)
		if err != nil {
			return domain.OrderResponse{}, err
		}
		if !product.Active {
			return domain.OrderResponse{}, fmt.Errorf("product %s is inactive: %w", item.ProductID, store.ErrInvalidInput)
		}
		variation, ok := product.VariationBySize(item.Size)
		if !ok {
			return domain.OrderResponse{}, fmt.Errorf("product %s has no size %s: %w", item.ProductID, item.Size, store.ErrNotFound)
		}

		reserved, err := s.repo.ReservedQty(ctx, item.ProductID, item.Size, "")
		if err != nil {
			return domain.OrderResponse{}, err
		}
		claimKey := item.ProductID + "|" + string(item.Size)
		reserved += claimed[claimKey]

		split := cart.Allocate(item.Qty, stock.TotalAvailable(variation), reserved)
		claimed[claimKey] += split.Immediate

		for _, line := range cart.Reconcile(item.ProductID, item.Size, item.ItemType, item.Qty, stock.TotalAvailable(variation), reserved) {
			lines = append(lines, line)
			total += variation.PriceFor(line.ItemType) * int64(line.Qty)
		}
	}

	created, err := s.repo.CreateOrder(ctx, domain.Order{
		ID:            xid.New("ord"),
		Items:         lines,
		TotalCents:    total,
		FinalCents:    req.FinalCents,
		PaymentMethod: strings.TrimSpace(req.PaymentMethod),
		Status:        domain.OrderStatusPending,
		CreatedAt:     time.Now().UTC(),
	})
	if err != nil {
		return domain.OrderResponse{}, err
	}

	s.logAudit(ctx, "order_create", "order", created.ID, fmt.Sprintf("lines=%d,total=%d", len(created.Items), created.TotalCents))
	return domain.OrderResponse{Order: *created}, nil
}

func (s *Service) GetOrder(ctx context.Context, id string) (domain.OrderResponse, error) {
	order, err := s.repo.GetOrder(ctx, id)
	if err != nil {
		return domain.OrderResponse{}, err
	}
	return domain.OrderResponse{Order: *order}, nil
}

// CompleteOrder transitions a pending order to completed and deducts every
// line from stock, draining store A before store B. Completing an already
// completed order is a no-op reporting AlreadyCompleted; stock is never
// deducted twice. Pre-order lines are deducted too: by completion time the
// goods have arrived, and the zero clamp absorbs any shortfall.
func (s *Service) CompleteOrder(ctx context.Context, id string) (domain.CompleteOrderResponse, error) {
	order, err := s.repo.GetOrder(ctx, id)
	if err != nil {
		return domain.CompleteOrderResponse{}, err
	}
	if order.Status == domain.OrderStatusCompleted {
		return domain.CompleteOrderResponse{Order: *order, AlreadyCompleted: true}, nil
	}

	// The conditional transition is the idempotency barrier: if two
	// completions race, only one proceeds to deduct.
	completed, err := s.repo.MarkOrderCompleted(ctx, id, time.Now().UTC())
	if errors.Is(err, store.ErrInvalidInput) {
		refreshed, gerr := s.repo.GetOrder(ctx, id)
		if gerr != nil {
			return domain.CompleteOrderResponse{}, gerr
		}
		return domain.CompleteOrderResponse{Order: *refreshed, AlreadyCompleted: true}, nil
	}
	if err != nil {
		return domain.CompleteOrderResponse{}, err
	}

	deductions := make([]domain.StockChange, 0, len(completed.Items)*2)
	soldByProduct := make(map[string]int, len(completed.Items))
	for _, line := range completed.Items {
		product, err := s.repo.GetProduct(ctx, line.ProductID)
		if err != nil {
			log.Printf("[service] WARN: completing %s: product %s gone: %v", id, line.ProductID, err)
			continue
		}
		variation, ok := product.VariationBySize(line.Size)
		if !ok {
			log.Printf("[service] WARN: completing %s: product %s lost size %s", id, line.ProductID, line.Size)
			continue
		}

		snapshot := variation
		for storeID, take := range stock.Deduct(&snapshot, s.deductionOrder, line.Qty) {
			newQty, err := s.repo.AdjustStock(ctx, line.ProductID, line.Size, storeID, -take)
			if err != nil {
				return domain.CompleteOrderResponse{}, fmt.Errorf("deduct stock for %s/%s: %w", line.ProductID, line.Size, err)
			}
			deductions = append(deductions, domain.StockChange{
				ProductID: line.ProductID,
				Size:      line.Size,
				Store:     storeID,
				NewQty:    newQty,
			})
		}
		soldByProduct[line.ProductID] += line.Qty
	}

	for productID, qty := range soldByProduct {
		if err := s.repo.IncrementUnitsSold(ctx, productID, qty); err != nil {
			log.Printf("[service] WARN: failed to bump units sold product=%s: %v", productID, err)
		}
	}

	s.logAudit(ctx, "order_complete", "order", completed.ID, fmt.Sprintf("lines=%d,deductions=%d", len(completed.Items), len(deductions)))
	return domain.CompleteOrderResponse{Order: *completed, Deductions: deductions}, nil
}

// BuildReceipt renders a completed or pending order as printable text plus
// the raw ESC/POS byte stream, base64-encoded for the printer bridge.
func (s *Service) BuildReceipt(ctx context.Context, orderID string) (domain.ReceiptResponse, error) {
	order, err := s.repo.GetOrder(ctx, orderID)
	if err != nil {
		return domain.ReceiptResponse{}, err
	}

	ids := make([]string, 0, len(order.Items))
	for _, line := range order.Items {
		ids = append(ids, line.ProductID)
	}
	products, err := s.repo.GetProductsByIDs(ctx, ids)
	if err != nil {
		return domain.ReceiptResponse{}, err
	}

	lines := []string{
		"Almofadaria",
		"========================",
		"Pedido: " + order.ID,
		"Data: " + order.CreatedAt.Format("2006-01-02 15:04:05"),
		"------------------------",
	}
	for _, item := range order.Items {
		name := item.ProductID
		price := int64(0)
		if product, ok := products[item.ProductID]; ok {
			name = product.Name
			if variation, ok := product.VariationBySize(item.Size); ok {
				price = variation.PriceFor(item.ItemType)
			}
		}
		label := fmt.Sprintf("%s %s x%d", name, item.Size, item.Qty)
		if item.IsPreOrder {
			label += " (encomenda)"
		}
		lines = append(lines, label, fmt.Sprintf("  %d", price*int64(item.Qty)))
	}
	lines = append(lines,
		"------------------------",
		fmt.Sprintf("Total    : %d", order.TotalCents),
	)
	if order.FinalCents != nil {
		lines = append(lines, fmt.Sprintf("A pagar  : %d", *order.FinalCents))
	}
	lines = append(lines,
		"========================",
		"Obrigado!",
		"",
	)

	escpos := []byte{0x1b, 0x40}
	for _, line := range lines {
		escpos = append(escpos, []byte(line)...)
		escpos = append(escpos, '\n')
	}
	escpos = append(escpos, []byte{0x1d, 0x56, 0x41, 0x10}...)

	return domain.ReceiptResponse{
		OrderID:      order.ID,
		EscposBase64: base64.StdEncoding.EncodeToString(escpos),
		PreviewText:  strings.Join(lines, "\n"),
		FileName:     fmt.Sprintf("receipt-%s.bin", order.ID),
	}, nil
}

// SalesReport folds the day's completed orders into totals.
func (s *Service) SalesReport(ctx context.Context, day time.Time) (domain.SalesSummary, error) {
	window := report.DayWindow(day)
	orders, err := s.repo.ListOrders(ctx, domain.OrderStatusCompleted, window.From, window.To)
	if err != nil {
		return domain.SalesSummary{}, err
	}
	return report.Summarize(orders, window), nil
}

func (s *Service) Ranking(ctx context.Context) (domain.RankingResponse, error) {
	products, err := s.repo.ListProducts(ctx)
	if err != nil {
		return domain.RankingResponse{}, err
	}
	return domain.RankingResponse{
		GeneratedAt: time.Now().UTC().Format(time.RFC3339),
		Ranking:     report.RankProducts(products),
	}, nil
}

// PreorderBacklog reports outstanding pre-order quantities against current
// stock, largest shortfall first, for the restock run.
func (s *Service) PreorderBacklog(ctx context.Context) (domain.PreorderBacklogResponse, error) {
	pending, err := s.repo.ListOrders(ctx, domain.OrderStatusPending, time.Time{}, time.Time{})
	if err != nil {
		return domain.PreorderBacklogResponse{}, err
	}

	ids := make([]string, 0, len(pending))
	seen := make(map[string]struct{}, len(pending))
	for _, order := range pending {
		for _, line := range order.Items {
			if _, dup := seen[line.ProductID]; dup {
				continue
			}
			seen[line.ProductID] = struct{}{}
			ids = append(ids, line.ProductID)
		}
	}
	products, err := s.repo.GetProductsByIDs(ctx, ids)
	if err != nil {
		return domain.PreorderBacklogResponse{}, err
	}

	return domain.PreorderBacklogResponse{
		GeneratedAt: time.Now().UTC().Format(time.RFC3339),
		Entries:     report.PreorderBacklog(pending, products, stock.TotalAvailable),
	}, nil
}

// AdjustStock writes an absolute quantity for one variation at one store.
// The manager PIN is verified at the HTTP layer before this is reached;
// here the actor must still be an admin.
func (s *Service) AdjustStock(ctx context.Context, req domain.StockAdjustRequest) (domain.StockAdjustResponse, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != "admin" {
		return domain.StockAdjustResponse{}, fmt.Errorf("admin role required: %w", ErrForbidden)
	}
	if req.ProductID == "" || !domain.ValidSize(req.Size) {
		return domain.StockAdjustResponse{}, fmt.Errorf("product and valid size required: %w", store.ErrInvalidInput)
	}
	if req.Store != s.deductionOrder[0] && req.Store != s.deductionOrder[1] {
		return domain.StockAdjustResponse{}, fmt.Errorf("unknown store %q: %w", req.Store, store.ErrInvalidInput)
	}
	if req.Qty < 0 {
		return domain.StockAdjustResponse{}, fmt.Errorf("quantity cannot be negative: %w", store.ErrInvalidInput)
	}
	if strings.TrimSpace(req.Reason) == "" {
		return domain.StockAdjustResponse{}, fmt.Errorf("a reason is required for manual adjustments: %w", store.ErrInvalidInput)
	}

	product, err := s.repo.GetProduct(ctx, req.ProductID)
	if err != nil {
		return domain.StockAdjustResponse{}, err
	}
	variation, ok := product.VariationBySize(req.Size)
	if !ok {
		return domain.StockAdjustResponse{}, fmt.Errorf("product %s has no size %s: %w", req.ProductID, req.Size, store.ErrNotFound)
	}
	oldQty := stock.Available(variation, req.Store)

	newQty, err := s.repo.SetStock(ctx, req.ProductID, req.Size, req.Store, req.Qty)
	if err != nil {
		return domain.StockAdjustResponse{}, err
	}

	s.logAudit(ctx, "stock_adjust", "variation", fmt.Sprintf("%s/%s/%s", req.ProductID, req.Size, req.Store),
		fmt.Sprintf("old=%d,new=%d,reason=%s", oldQty, newQty, strings.TrimSpace(req.Reason)))
	return domain.StockAdjustResponse{
		ProductID: req.ProductID,
		Size:      req.Size,
		Store:     req.Store,
		OldQty:    oldQty,
		NewQty:    newQty,
	}, nil
}

func (s *Service) ListAuditLogs(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != "admin" {
		return nil, fmt.Errorf("admin role required: %w", ErrForbidden)
	}
	if to.IsZero() {
		to = time.Now().UTC().Add(time.Minute)
	}
	if from.IsZero() {
		from = to.Add(-30 * 24 * time.Hour)
	}
	return s.repo.ListAuditLogs(ctx, from, to, limit)
}

func validateLineRequest(req domain.ReconcileRequest) error {
	if strings.TrimSpace(req.ProductID) == "" {
		return fmt.Errorf("product id required: %w", store.ErrInvalidInput)
	}
	if !domain.ValidSize(req.Size) {
		return fmt.Errorf("unknown size %q: %w", req.Size, store.ErrInvalidInput)
	}
	if !domain.ValidLineType(req.ItemType) {
		return fmt.Errorf("unknown item type %q: %w", req.ItemType, store.ErrInvalidInput)
	}
	if req.Qty < 1 {
		return fmt.Errorf("quantity must be at least 1: %w", store.ErrInvalidInput)
	}
	return nil
}

func (s *Service) logAudit(ctx context.Context, action string, entityType string, entityID string, detail string) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		actor = domain.Actor{Username: "system", Role: "system"}
	}

	if err := s.repo.CreateAuditLog(ctx, domain.AuditLog{
		ID:            xid.New("audit"),
		ActorUsername: actor.Username,
		ActorRole:     actor.Role,
		Action:        action,
		EntityType:    entityType,
		EntityID:      entityID,
		Detail:        detail,
		CreatedAt:     time.Now().UTC(),
	}); err != nil {
		log.Printf("[audit] WARN: failed to write audit log action=%s entity=%s/%s: %v", action, entityType, entityID, err)
	}
}
