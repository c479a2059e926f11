package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"almofadaria/backend/internal/domain"
	"almofadaria/backend/internal/store"
	"almofadaria/backend/internal/xid"
)

// Store is the PostgreSQL repository. Stock decrements are evaluated
// server-side with GREATEST(qty + delta, 0), so concurrent fulfillments
// cannot drive a count negative.
type Store struct {
	db *sql.DB

	subMu       sync.RWMutex
	subscribers []func(domain.StockChange)
}

func New(databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 6*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	s := &Store{db: db}
	if err := s.ensureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) ensureSchema(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS products (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			brand TEXT NOT NULL,
			category TEXT NOT NULL,
			sub_category TEXT NOT NULL DEFAULT '',
			colors JSONB NOT NULL DEFAULT '[]'::jsonb,
			units_sold INTEGER NOT NULL DEFAULT 0,
			active BOOLEAN NOT NULL DEFAULT TRUE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_products_name_lower ON products (LOWER(name))`,
		`CREATE TABLE IF NOT EXISTS variations (
			product_id TEXT NOT NULL REFERENCES products(id) ON DELETE CASCADE,
			size TEXT NOT NULL,
			price_cover_cents BIGINT NOT NULL,
			price_full_cents BIGINT NOT NULL,
			PRIMARY KEY (product_id, size)
		)`,
		`CREATE TABLE IF NOT EXISTS variation_stock (
			product_id TEXT NOT NULL,
			size TEXT NOT NULL,
			store_id TEXT NOT NULL,
			qty INTEGER NOT NULL DEFAULT 0 CHECK (qty >= 0),
			PRIMARY KEY (product_id, size, store_id),
			FOREIGN KEY (product_id, size) REFERENCES variations(product_id, size) ON DELETE CASCADE
		)`,
		`CREATE TABLE IF NOT EXISTS orders (
			id TEXT PRIMARY KEY,
			total_cents BIGINT NOT NULL,
			final_cents BIGINT,
			payment_method TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			completed_at TIMESTAMPTZ
		)`,
		`CREATE TABLE IF NOT EXISTS order_items (
			order_id TEXT NOT NULL REFERENCES orders(id) ON DELETE CASCADE,
			line_no INTEGER NOT NULL,
			product_id TEXT NOT NULL,
			size TEXT NOT NULL,
			item_type TEXT NOT NULL,
			qty INTEGER NOT NULL,
			is_pre_order BOOLEAN NOT NULL DEFAULT FALSE,
			PRIMARY KEY (order_id, line_no)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_orders_status_created ON orders (status, created_at)`,
		`CREATE TABLE IF NOT EXISTS audit_logs (
			id TEXT PRIMARY KEY,
			actor_username TEXT NOT NULL,
			actor_role TEXT NOT NULL,
			action TEXT NOT NULL,
			entity_type TEXT NOT NULL,
			entity_id TEXT NOT NULL,
			detail TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_audit_logs_created ON audit_logs (created_at DESC)`,
		`CREATE TABLE IF NOT EXISTS users (
			username TEXT PRIMARY KEY,
			password TEXT NOT NULL,
			role TEXT NOT NULL,
			active BOOLEAN NOT NULL DEFAULT TRUE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
	}
	for _, stmt := range statements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) ListProducts(ctx context.Context) ([]domain.Product, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, brand, category, sub_category, colors, units_sold, active, created_at
		FROM products
		WHERE active = TRUE
		ORDER BY category, name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make([]domain.Product, 0, 32)
	ids := make([]string, 0, 32)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, p)
		ids = append(ids, p.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if err := s.attachVariations(ctx, products, ids); err != nil {
		return nil, err
	}
	return products, nil
}

func (s *Store) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, brand, category, sub_category, colors, units_sold, active, created_at
		FROM products WHERE id = $1`, id)
	p, err := scanProduct(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	products := []domain.Product{p}
	if err := s.attachVariations(ctx, products, []string{id}); err != nil {
		return nil, err
	}
	return &products[0], nil
}

func (s *Store) GetProductsByIDs(ctx context.Context, ids []string) (map[string]domain.Product, error) {
	if len(ids) == 0 {
		return map[string]domain.Product{}, nil
	}
	placeholders := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = id
	}
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT id, name, brand, category, sub_category, colors, units_sold, active, created_at
		FROM products WHERE active = TRUE AND id IN (%s)`, strings.Join(placeholders, ",")), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make([]domain.Product, 0, len(ids))
	found := make([]string, 0, len(ids))
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, p)
		found = append(found, p.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if err := s.attachVariations(ctx, products, found); err != nil {
		return nil, err
	}

	result := make(map[string]domain.Product, len(products))
	for _, p := range products {
		result[p.ID] = p
	}
	return result, nil
}

func (s *Store) CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if product.ID == "" || product.Name == "" || product.Brand == "" || product.Category == "" {
		return nil, store.ErrInvalidInput
	}
	if len(product.Colors) < 1 || len(product.Colors) > 3 || len(product.Variations) == 0 {
		return nil, store.ErrInvalidInput
	}
	if product.CreatedAt.IsZero() {
		product.CreatedAt = time.Now().UTC()
	}
	colors, err := json.Marshal(product.Colors)
	if err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var taken bool
	if err := tx.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM products WHERE LOWER(name) = LOWER($1))`,
		product.Name).Scan(&taken); err != nil {
		return nil, err
	}
	if taken {
		return nil, store.ErrNameTaken
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO products (id, name, brand, category, sub_category, colors, units_sold, active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, 0, TRUE, $7)`,
		product.ID, product.Name, product.Brand, product.Category, product.SubCategory,
		colors, product.CreatedAt); err != nil {
		return nil, err
	}
	for _, v := range product.Variations {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO variations (product_id, size, price_cover_cents, price_full_cents)
			VALUES ($1, $2, $3, $4)`,
			product.ID, v.Size, v.PriceCoverCents, v.PriceFullCents); err != nil {
			return nil, err
		}
		for storeID, qty := range v.Stock {
			if qty < 0 {
				qty = 0
			}
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO variation_stock (product_id, size, store_id, qty)
				VALUES ($1, $2, $3, $4)`,
				product.ID, v.Size, storeID, qty); err != nil {
				return nil, err
			}
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}

	product.Active = true
	product.UnitsSold = 0
	return &product, nil
}

func (s *Store) UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if product.ID == "" || product.Name == "" || product.Brand == "" || product.Category == "" {
		return nil, store.ErrInvalidInput
	}
	colors, err := json.Marshal(product.Colors)
	if err != nil {
		return nil, err
	}

	var taken bool
	if err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM products WHERE LOWER(name) = LOWER($1) AND id <> $2)`,
		product.Name, product.ID).Scan(&taken); err != nil {
		return nil, err
	}
	if taken {
		return nil, store.ErrNameTaken
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE products
		SET name = $2, brand = $3, category = $4, sub_category = $5, colors = $6, active = $7
		WHERE id = $1`,
		product.ID, product.Name, product.Brand, product.Category, product.SubCategory,
		colors, product.Active)
	if err != nil {
		return nil, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, store.ErrNotFound
	}
	return s.GetProduct(ctx, product.ID)
}

func (s *Store) FindProductByName(ctx context.Context, name string) (*domain.Product, error) {
	var id string
	err := s.db.QueryRowContext(ctx,
		`SELECT id FROM products WHERE LOWER(name) = LOWER($1)`, name).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return s.GetProduct(ctx, id)
}

func (s *Store) AdjustStock(ctx context.Context, productID string, size domain.Size, storeID domain.StoreID, delta int) (int, error) {
	var exists bool
	if err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM variations WHERE product_id = $1 AND size = $2)`,
		productID, size).Scan(&exists); err != nil {
		return 0, err
	}
	if !exists {
		return 0, store.ErrNotFound
	}

	initial := delta
	if initial < 0 {
		initial = 0
	}
	var newQty int
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO variation_stock (product_id, size, store_id, qty)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (product_id, size, store_id)
		DO UPDATE SET qty = GREATEST(variation_stock.qty + $5, 0)
		RETURNING qty`,
		productID, size, storeID, initial, delta).Scan(&newQty)
	if err != nil {
		return 0, err
	}

	s.notify(domain.StockChange{ProductID: productID, Size: size, Store: storeID, NewQty: newQty})
	return newQty, nil
}

func (s *Store) SetStock(ctx context.Context, productID string, size domain.Size, storeID domain.StoreID, qty int) (int, error) {
	if qty < 0 {
		return 0, store.ErrInvalidInput
	}
	var exists bool
	if err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM variations WHERE product_id = $1 AND size = $2)`,
		productID, size).Scan(&exists); err != nil {
		return 0, err
	}
	if !exists {
		return 0, store.ErrNotFound
	}

	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO variation_stock (product_id, size, store_id, qty)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (product_id, size, store_id)
		DO UPDATE SET qty = EXCLUDED.qty`,
		productID, size, storeID, qty); err != nil {
		return 0, err
	}

	s.notify(domain.StockChange{ProductID: productID, Size: size, Store: storeID, NewQty: qty})
	return qty, nil
}

func (s *Store) IncrementUnitsSold(ctx context.Context, productID string, qty int) error {
	if qty < 0 {
		return store.ErrInvalidInput
	}
	result, err := s.db.ExecContext(ctx,
		`UPDATE products SET units_sold = units_sold + $2 WHERE id = $1`, productID, qty)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
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

func (s *Store) CreateOrder(ctx context.Context, order domain.Order) (*domain.Order, error) {
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

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var finalCents sql.NullInt64
	if order.FinalCents != nil {
		finalCents = sql.NullInt64{Int64: *order.FinalCents, Valid: true}
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO orders (id, total_cents, final_cents, payment_method, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		order.ID, order.TotalCents, finalCents, order.PaymentMethod, order.Status, order.CreatedAt); err != nil {
		return nil, err
	}
	for i, line := range order.Items {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO order_items (order_id, line_no, product_id, size, item_type, qty, is_pre_order)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			order.ID, i, line.ProductID, line.Size, line.ItemType, line.Qty, line.IsPreOrder); err != nil {
			return nil, err
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &order, nil
}

func (s *Store) GetOrder(ctx context.Context, id string) (*domain.Order, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, total_cents, final_cents, payment_method, status, created_at, completed_at
		FROM orders WHERE id = $1`, id)
	order, err := scanOrder(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	items, err := s.orderItems(ctx, []string{id})
	if err != nil {
		return nil, err
	}
	order.Items = items[id]
	return &order, nil
}

func (s *Store) ListOrders(ctx context.Context, status string, from time.Time, to time.Time) ([]domain.Order, error) {
	query := `
		SELECT id, total_cents, final_cents, payment_method, status, created_at, completed_at
		FROM orders WHERE 1=1`
	args := make([]any, 0, 3)
	if status != "" {
		args = append(args, status)
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}
	if !from.IsZero() {
		args = append(args, from)
		query += fmt.Sprintf(" AND COALESCE(completed_at, created_at) >= $%d", len(args))
	}
	if !to.IsZero() {
		args = append(args, to)
		query += fmt.Sprintf(" AND COALESCE(completed_at, created_at) < $%d", len(args))
	}
	query += " ORDER BY created_at, id"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	orders := make([]domain.Order, 0, 32)
	ids := make([]string, 0, 32)
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, order)
		ids = append(ids, order.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	items, err := s.orderItems(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range orders {
		orders[i].Items = items[orders[i].ID]
	}
	return orders, nil
}

func (s *Store) MarkOrderCompleted(ctx context.Context, id string, at time.Time) (*domain.Order, error) {
	if at.IsZero() {
		at = time.Now().UTC()
	}
	result, err := s.db.ExecContext(ctx, `
		UPDATE orders SET status = $2, completed_at = $3
		WHERE id = $1 AND status = $4`,
		id, domain.OrderStatusCompleted, at, domain.OrderStatusPending)
	if err != nil {
		return nil, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		// Either missing or not pending; disambiguate for the caller.
		if _, err := s.GetOrder(ctx, id); errors.Is(err, store.ErrNotFound) {
			return nil, store.ErrNotFound
		} else if err != nil {
			return nil, err
		}
		return nil, store.ErrInvalidInput
	}
	return s.GetOrder(ctx, id)
}

func (s *Store) ReservedQty(ctx context.Context, productID string, size domain.Size, excludeOrderID string) (int, error) {
	var reserved sql.NullInt64
	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(oi.qty), 0)
		FROM order_items oi
		JOIN orders o ON o.id = oi.order_id
		WHERE o.status = $1
		  AND oi.product_id = $2 AND oi.size = $3
		  AND oi.is_pre_order = FALSE
		  AND o.id <> $4`,
		domain.OrderStatusPending, productID, size, excludeOrderID).Scan(&reserved)
	if err != nil {
		return 0, err
	}
	return int(reserved.Int64), nil
}

func (s *Store) CreateAuditLog(ctx context.Context, entry domain.AuditLog) error {
	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_logs (id, actor_username, actor_role, action, entity_type, entity_id, detail, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		entry.ID, entry.ActorUsername, entry.ActorRole, entry.Action,
		entry.EntityType, entry.EntityID, entry.Detail, entry.CreatedAt)
	return err
}

func (s *Store) ListAuditLogs(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, actor_username, actor_role, action, entity_type, entity_id, detail, created_at
		FROM audit_logs
		WHERE created_at >= $1 AND created_at < $2
		ORDER BY created_at DESC, id DESC
		LIMIT $3`, from, to, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := make([]domain.AuditLog, 0, limit)
	for rows.Next() {
		var entry domain.AuditLog
		if err := rows.Scan(&entry.ID, &entry.ActorUsername, &entry.ActorRole, &entry.Action,
			&entry.EntityType, &entry.EntityID, &entry.Detail, &entry.CreatedAt); err != nil {
			return nil, err
		}
		logs = append(logs, entry)
	}
	return logs, rows.Err()
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
	username := strings.ToLower(strings.TrimSpace(user.Username))
	if username == "" || user.Password == "" {
		return store.ErrInvalidInput
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO users (username, password, role, active, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (username) DO NOTHING`,
		username, user.Password, user.Role, user.Active, user.CreatedAt)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrInvalidInput
	}
	return nil
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT username, password, role, active, created_at FROM users`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]domain.UserAccount, 0, 8)
	for rows.Next() {
		var u domain.UserAccount
		if err := rows.Scan(&u.Username, &u.Password, &u.Role, &u.Active, &u.CreatedAt); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func (s *Store) UpdateUserPassword(ctx context.Context, username string, password string) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE users SET password = $2 WHERE username = $1`, username, password)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProduct(row rowScanner) (domain.Product, error) {
	var p domain.Product
	var colors []byte
	if err := row.Scan(&p.ID, &p.Name, &p.Brand, &p.Category, &p.SubCategory,
		&colors, &p.UnitsSold, &p.Active, &p.CreatedAt); err != nil {
		return domain.Product{}, err
	}
	if len(colors) > 0 {
		if err := json.Unmarshal(colors, &p.Colors); err != nil {
			return domain.Product{}, err
		}
	}
	return p, nil
}

func scanOrder(row rowScanner) (domain.Order, error) {
	var o domain.Order
	var finalCents sql.NullInt64
	var completedAt sql.NullTime
	if err := row.Scan(&o.ID, &o.TotalCents, &finalCents, &o.PaymentMethod,
		&o.Status, &o.CreatedAt, &completedAt); err != nil {
		return domain.Order{}, err
	}
	if finalCents.Valid {
		o.FinalCents = &finalCents.Int64
	}
	if completedAt.Valid {
		at := completedAt.Time
		o.CompletedAt = &at
	}
	return o, nil
}

// attachVariations loads variation rows plus per-store stock for the given
// products in two queries and fills them in place.
func (s *Store) attachVariations(ctx context.Context, products []domain.Product, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	placeholders := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = id
	}
	in := strings.Join(placeholders, ",")

	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT product_id, size, price_cover_cents, price_full_cents
		FROM variations WHERE product_id IN (%s)
		ORDER BY product_id, size`, in), args...)
	if err != nil {
		return err
	}
	defer rows.Close()

	variations := make(map[string][]domain.Variation, len(ids))
	for rows.Next() {
		var productID string
		var v domain.Variation
		if err := rows.Scan(&productID, &v.Size, &v.PriceCoverCents, &v.PriceFullCents); err != nil {
			return err
		}
		v.Stock = make(map[domain.StoreID]int, 2)
		variations[productID] = append(variations[productID], v)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	stockRows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT product_id, size, store_id, qty
		FROM variation_stock WHERE product_id IN (%s)`, in), args...)
	if err != nil {
		return err
	}
	defer stockRows.Close()

	for stockRows.Next() {
		var productID, storeID string
		var size domain.Size
		var qty int
		if err := stockRows.Scan(&productID, &size, &storeID, &qty); err != nil {
			return err
		}
		for i := range variations[productID] {
			if variations[productID][i].Size == size {
				variations[productID][i].Stock[domain.StoreID(storeID)] = qty
			}
		}
	}
	if err := stockRows.Err(); err != nil {
		return err
	}

	for i := range products {
		products[i].Variations = variations[products[i].ID]
	}
	return nil
}

func (s *Store) orderItems(ctx context.Context, orderIDs []string) (map[string][]domain.CartLine, error) {
	result := make(map[string][]domain.CartLine, len(orderIDs))
	if len(orderIDs) == 0 {
		return result, nil
	}
	placeholders := make([]string, len(orderIDs))
	args := make([]any, len(orderIDs))
	for i, id := range orderIDs {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = id
	}
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT order_id, product_id, size, item_type, qty, is_pre_order
		FROM order_items WHERE order_id IN (%s)
		ORDER BY order_id, line_no`, strings.Join(placeholders, ",")), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var orderID string
		var line domain.CartLine
		if err := rows.Scan(&orderID, &line.ProductID, &line.Size, &line.ItemType,
			&line.Qty, &line.IsPreOrder); err != nil {
			return nil, err
		}
		result[orderID] = append(result[orderID], line)
	}
	return result, rows.Err()
}
