package store

import (
	"context"
	"errors"
	"time"

	"almofadaria/backend/internal/domain"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrInvalidInput = errors.New("invalid input")
	ErrNameTaken    = errors.New("product name already in use")
)

// Repository is the document-store boundary the core talks to: reads,
// writes and stock-change notifications, nothing else. Implementations
// must keep stock counts non-negative (clamp at zero on decrement).
type Repository interface {
	ListProducts(ctx context.Context) ([]domain.Product, error)
	GetProduct(ctx context.Context, id string) (*domain.Product, error)
	GetProductsByIDs(ctx context.Context, ids []string) (map[string]domain.Product, error)
	CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	FindProductByName(ctx context.Context, name string) (*domain.Product, error)

	// AdjustStock applies a delta to one store's count for a variation and
	// returns the new value, clamped at zero. SetStock writes an absolute
	// quantity (manual adjustment).
	AdjustStock(ctx context.Context, productID string, size domain.Size, store domain.StoreID, delta int) (int, error)
	SetStock(ctx context.Context, productID string, size domain.Size, store domain.StoreID, qty int) (int, error)
	IncrementUnitsSold(ctx context.Context, productID string, qty int) error
	SubscribeStockChanges(fn func(domain.StockChange))

	CreateOrder(ctx context.Context, order domain.Order) (*domain.Order, error)
	GetOrder(ctx context.Context, id string) (*domain.Order, error)
	ListOrders(ctx context.Context, status string, from time.Time, to time.Time) ([]domain.Order, error)
	// MarkOrderCompleted transitions pending -> completed; it fails with
	// ErrInvalidInput if the order is not pending.
	MarkOrderCompleted(ctx context.Context, id string, at time.Time) (*domain.Order, error)
	// ReservedQty sums stock-backed line quantities for the variation
	// across pending orders, excluding the given order id.
	ReservedQty(ctx context.Context, productID string, size domain.Size, excludeOrderID string) (int, error)

	CreateAuditLog(ctx context.Context, entry domain.AuditLog) error
	ListAuditLogs(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error)

	CreateUser(ctx context.Context, user domain.UserAccount) error
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error
}
