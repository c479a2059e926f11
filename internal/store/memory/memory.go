package memory

import (
	"context"
	"log"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"almofadaria/backend/internal/domain"
	"almofadaria/backend/internal/stock"
	"almofadaria/backend/internal/store"
	"almofadaria/backend/internal/xid"
)

// Store is the in-memory repository used for dev mode and tests. All state
// sits behind one RWMutex, so the read-modify-write stock updates that race
// across processes against a remote store cannot race here.
type Store struct {
	mu              sync.RWMutex
	products        map[string]domain.Product
	ordersByID      map[string]*domain.Order
	auditLogs       []domain.AuditLog
	usersByUsername map[string]domain.UserAccount

	subMu       sync.RWMutex
	subscribers []func(domain.StockChange)
}

// seedUsers builds the initial in-memory user accounts for dev/demo mode.
// Credentials come from SEED_ADMIN_PASSWORD and SEED_SELLER_PASSWORD; if
// unset, hardcoded dev defaults are used with a warning. These are never
// used in production (the backend uses PostgreSQL when DATABASE_URL is set).
func seedUsers() map[string]domain.UserAccount {
	adminPwd := envOr("SEED_ADMIN_PASSWORD", "admin123")
	sellerPwd := envOr("SEED_SELLER_PASSWORD", "vendedor123")
	if os.Getenv("SEED_ADMIN_PASSWORD") == "" || os.Getenv("SEED_SELLER_PASSWORD") == "" {
		log.Println("[memory-store] WARNING: using default dev credentials. Set SEED_ADMIN_PASSWORD and SEED_SELLER_PASSWORD to override.")
	}

	now := time.Now().UTC()
	users := map[string]domain.UserAccount{}
	for _, u := range []struct {
		username string
		password string
		role     string
	}{
		{"admin", adminPwd, "admin"},
		{"vendedor", sellerPwd, "vendedor"},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			log.Fatalf("[memory-store] failed to hash seed password for %s: %v", u.username, err)
		}
		users[u.username] = domain.UserAccount{
			Username:  u.username,
			Password:  string(hash),
			Role:      u.role,
			Active:    true,
			CreatedAt: now,
		}
	}
	return users
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// NewSeeded returns a store preloaded with a small cushion catalog spread
// across the two given shops.
func NewSeeded(storeA domain.StoreID, storeB domain.StoreID) *Store {
	variations := func(coverCents, fullCents int64, stockA, stockB int) []domain.Variation {
		sizes := []domain.Size{domain.Size45x45, domain.Size50x50}
		result := make([]domain.Variation, 0, len(sizes))
		for _, size := range sizes {
			result = append(result, domain.Variation{
				Size:            size,
				PriceCoverCents: coverCents,
				PriceFullCents:  fullCents,
				Stock:           map[domain.StoreID]int{storeA: stockA, storeB: stockB},
			})
		}
		return result
	}

	products := []domain.Product{
		{
			ID: "prod-lisa-verde", Name: "Almofada Lisa Verde", Brand: "Casa Conforto",
			Category: "lisa", Colors: []domain.Color{{Name: "Verde", Hex: "#2e7d32"}},
			Variations: variations(4900, 8900, 8, 6), Active: true,
		},
		{
			ID: "prod-lisa-azul-marinho", Name: "Almofada Lisa Azul Marinho", Brand: "Casa Conforto",
			Category: "lisa", Colors: []domain.Color{{Name: "Azul Marinho", Hex: "#1a237e"}},
			Variations: variations(4900, 8900, 5, 4), Active: true,
		},
		{
			ID: "prod-lisa-azul", Name: "Almofada Lisa Azul", Brand: "Casa Conforto",
			Category: "lisa", Colors: []domain.Color{{Name: "Azul", Hex: "#1565c0"}},
			Variations: variations(4900, 8900, 3, 0), Active: true,
		},
		{
			ID: "prod-tricot-cru", Name: "Capa Tricot Cru", Brand: "Fio & Ponto",
			Category: "tricot", Colors: []domain.Color{{Name: "Cru", Hex: "#f5f0e1"}},
			Variations: variations(7900, 12900, 4, 2), Active: true,
		},
		{
			ID: "prod-tricot-terracota", Name: "Capa Tricot Terracota", Brand: "Fio & Ponto",
			Category: "tricot", Colors: []domain.Color{{Name: "Terracota", Hex: "#bf5b3d"}},
			Variations: variations(7900, 12900, 0, 0), Active: true,
		},
		{
			ID: "prod-boho-mostarda", Name: "Almofada Boho Mostarda", Brand: "Ateliê Sul",
			Category: "estampada", SubCategory: "boho",
			Colors:     []domain.Color{{Name: "Mostarda", Hex: "#e0a106"}, {Name: "Cru", Hex: "#f5f0e1"}},
			Variations: variations(6500, 10900, 10, 10), Active: true,
		},
	}

	productMap := make(map[string]domain.Product, len(products))
	now := time.Now().UTC()
	for _, p := range products {
		p.CreatedAt = now
		productMap[p.ID] = p
	}

	return &Store{
		products:        productMap,
		ordersByID:      make(map[string]*domain.Order),
		auditLogs:       make([]domain.AuditLog, 0, 128),
		usersByUsername: seedUsers(),
	}
}

func (s *Store) ListProducts(_ context.Context) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	products := make([]domain.Product, 0, len(s.products))
	for _, p := range s.products {
		if !p.Active {
			continue
		}
		products = append(products, cloneProduct(p))
	}

	slices.SortFunc(products, func(a, b domain.Product) int {
		if a.Category == b.Category {
			return strings.Compare(a.Name, b.Name)
		}
		return strings.Compare(a.Category, b.Category)
	})

	return products, nil
}

func (s *Store) GetProduct(_ context.Context, id string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	product, exists := s.products[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	clone := cloneProduct(product)
	return &clone, nil
}

func (s *Store) GetProductsByIDs(_ context.Context, ids []string) (map[string]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make(map[string]domain.Product, len(ids))
	for _, id := range ids {
		if p, ok := s.products[id]; ok && p.Active {
			result[id] = cloneProduct(p)
		}
	}
	return result, nil
}

func (s *Store) CreateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	if product.ID == "" || product.Name == "" || product.Brand == "" || product.Category == "" {
		return nil, store.ErrInvalidInput
	}
	if len(product.Colors) < 1 || len(product.Colors) > 3 || len(product.Variations) == 0 {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.products[product.ID]; exists {
		return nil, store.ErrInvalidInput
	}
	for _, existing := range s.products {
		if strings.EqualFold(existing.Name, product.Name) {
			return nil, store.ErrNameTaken
		}
	}

	product.Active = true
	if product.CreatedAt.IsZero() {
		product.CreatedAt = time.Now().UTC()
	}
	s.products[product.ID] = cloneProduct(product)
	created := cloneProduct(product)
	return &created, nil
}

func (s *Store) UpdateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	if product.ID == "" || product.Name == "" || product.Brand == "" || product.Category == "" {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.products[product.ID]
	if !exists {
		return nil, store.ErrNotFound
	}
	for _, other := range s.products {
		if other.ID != product.ID && strings.EqualFold(other.Name, product.Name) {
			return nil, store.ErrNameTaken
		}
	}

	// Stock and the units-sold counter have dedicated mutation paths.
	product.Variations = existing.Variations
	product.UnitsSold = existing.UnitsSold
	product.CreatedAt = existing.CreatedAt
	s.products[product.ID] = cloneProduct(product)
	updated := cloneProduct(product)
	return &updated, nil
}

func (s *Store) FindProductByName(_ context.Context, name string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, p := range s.products {
		if strings.EqualFold(p.Name, name) {
			clone := cloneProduct(p)
			return &clone, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) AdjustStock(_ context.Context, productID string, size domain.Size, storeID domain.StoreID, delta int) (int, error) {
	s.mu.Lock()
	product, exists := s.products[productID]
	if !exists {
		s.mu.Unlock()
		return 0, store.ErrNotFound
	}
	idx := variationIndex(product, size)
	if idx < 0 {
		s.mu.Unlock()
		return 0, store.ErrNotFound
	}
	newQty := stock.Adjust(&product.Variations[idx], storeID, delta)
	s.products[productID] = product
	s.mu.Unlock()

	s.notify(domain.StockChange{ProductID: productID, Size: size, Store: storeID, NewQty: newQty})
	return newQty, nil
}

func (s *Store) SetStock(_ context.Context, productID string, size domain.Size, storeID domain.StoreID, qty int) (int, error) {
	if qty < 0 {
		return 0, store.ErrInvalidInput
	}

	s.mu.Lock()
	product, exists := s.products[productID]
	if !exists {
		s.mu.Unlock()
		return 0, store.ErrNotFound
	}
	idx := variationIndex(product, size)
	if idx < 0 {
		s.mu.Unlock()
		return 0, store.ErrNotFound
	}
	if product.Variations[idx].Stock == nil {
		product.Variations[idx].Stock = make(map[domain.StoreID]int, 2)
	}
	product.Variations[idx].Stock[storeID] = qty
	s.products[productID] = product
	s.mu.Unlock()

	s.notify(domain.StockChange{ProductID: productID, Size: size, Store: storeID, NewQty: qty})
	return qty, nil
}

func (s *Store) IncrementUnitsSold(_ context.Context, productID string, qty int) error {
	if qty < 0 {
		return store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	product, exists := s.products[productID]
	if !exists {
		return store.ErrNotFound
	}
	product.UnitsSold += qty
	s.products[productID] = product
	return nil
}

func (s *Store) SubscribeStockChanges(fn func(domain.StockChange)) {
	if fn == nil {
		return
	}
	s.subMu.Lock()
	s.subscribers = append(s.subscribers, fn)
	s.subMu.Unlock()
}

func (s *Store) notify(change domain.StockChange) {
	s.subMu.RLock()
	subscribers := s.subscribers
	s.subMu.RUnlock()
	for _, fn := range subscribers {
		fn(change)
	}
}

func (s *Store) CreateOrder(_ context.Context, order domain.Order) (*domain.Order, error) {
	if len(order.Items) == 0 {
		return nil, store.ErrInvalidInput
	}
	if order.ID == "" {
		order.ID = xid.New("ord")
	}
	if order.CreatedAt.IsZero() {
		order.CreatedAt = time.Now().UTC()
	}
	if order.Status == "" {
		order.Status = domain.OrderStatusPending
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.ordersByID[order.ID]; exists {
		return nil, store.ErrInvalidInput
	}
	for _, line := range order.Items {
		product, exists := s.products[line.ProductID]
		if !exists || !product.Active {
			return nil, store.ErrInvalidInput
		}
		if _, ok := product.VariationBySize(line.Size); !ok {
			return nil, store.ErrInvalidInput
		}
	}

	clone := cloneOrder(order)
	s.ordersByID[order.ID] = &clone
	created := cloneOrder(clone)
	return &created, nil
}

func (s *Store) GetOrder(_ context.Context, id string) (*domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	order, ok := s.ordersByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	clone := cloneOrder(*order)
	return &clone, nil
}

func (s *Store) ListOrders(_ context.Context, status string, from time.Time, to time.Time) ([]domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Order, 0, len(s.ordersByID))
	for _, order := range s.ordersByID {
		if status != "" && order.Status != status {
			continue
		}
		at := order.CreatedAt
		if order.Status == domain.OrderStatusCompleted && order.CompletedAt != nil {
			at = *order.CompletedAt
		}
		if !from.IsZero() && at.Before(from) {
			continue
		}
		if !to.IsZero() && !at.Before(to) {
			continue
		}
		result = append(result, cloneOrder(*order))
	}

	slices.SortFunc(result, func(a, b domain.Order) int {
		if a.CreatedAt.Equal(b.CreatedAt) {
			return strings.Compare(a.ID, b.ID)
		}
		if a.CreatedAt.Before(b.CreatedAt) {
			return -1
		}
		return 1
	})
	return result, nil
}

func (s *Store) MarkOrderCompleted(_ context.Context, id string, at time.Time) (*domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	order, ok := s.ordersByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	if order.Status != domain.OrderStatusPending {
		return nil, store.ErrInvalidInput
	}
	if at.IsZero() {
		at = time.Now().UTC()
	}
	order.Status = domain.OrderStatusCompleted
	order.CompletedAt = &at

	clone := cloneOrder(*order)
	return &clone, nil
}

func (s *Store) ReservedQty(_ context.Context, productID string, size domain.Size, excludeOrderID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	reserved := 0
	for _, order := range s.ordersByID {
		if order.Status != domain.OrderStatusPending || order.ID == excludeOrderID {
			continue
		}
		for _, line := range order.Items {
			// Pre-order lines never claim physical stock.
			if line.IsPreOrder || line.ProductID != productID || line.Size != size {
				continue
			}
			reserved += line.Qty
		}
	}
	return reserved, nil
}

func (s *Store) CreateAuditLog(_ context.Context, entry domain.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	s.auditLogs = append(s.auditLogs, entry)
	return nil
}

func (s *Store) ListAuditLogs(_ context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.AuditLog, 0, 64)
	for _, entry := range s.auditLogs {
		if entry.CreatedAt.Before(from) || !entry.CreatedAt.Before(to) {
			continue
		}
		result = append(result, entry)
	}

	slices.SortFunc(result, func(a, b domain.AuditLog) int {
		if a.CreatedAt.Equal(b.CreatedAt) {
			return strings.Compare(b.ID, a.ID)
		}
		if a.CreatedAt.After(b.CreatedAt) {
			return -1
		}
		return 1
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	username := strings.ToLower(strings.TrimSpace(user.Username))
	if username == "" || user.Password == "" {
		return store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.usersByUsername[username]; exists {
		return store.ErrInvalidInput
	}
	user.Username = username
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	s.usersByUsername[username] = user
	return nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.UserAccount, 0, len(s.usersByUsername))
	for _, user := range s.usersByUsername {
		result = append(result, user)
	}
	return result, nil
}

func (s *Store) UpdateUserPassword(_ context.Context, username string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, exists := s.usersByUsername[username]
	if !exists {
		return store.ErrNotFound
	}
	user.Password = password
	s.usersByUsername[username] = user
	return nil
}

func variationIndex(p domain.Product, size domain.Size) int {
	for i, v := range p.Variations {
		if v.Size == size {
			return i
		}
	}
	return -1
}

func cloneProduct(p domain.Product) domain.Product {
	clone := p
	clone.Colors = slices.Clone(p.Colors)
	clone.Variations = make([]domain.Variation, len(p.Variations))
	for i, v := range p.Variations {
		cv := v
		cv.Stock = make(map[domain.StoreID]int, len(v.Stock))
		for storeID, qty := range v.Stock {
			cv.Stock[storeID] = qty
		}
		clone.Variations[i] = cv
	}
	return clone
}

func cloneOrder(o domain.Order) domain.Order {
	clone := o
	clone.Items = slices.Clone(o.Items)
	if o.FinalCents != nil {
		final := *o.FinalCents
		clone.FinalCents = &final
	}
	if o.CompletedAt != nil {
		at := *o.CompletedAt
		clone.CompletedAt = &at
	}
	return clone
}
