package store

import (
	"context"
	"errors"

	"chocolatier/backend/internal/domain"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrInvalidInput      = errors.New("invalid input")
	ErrInvalidTransition = errors.New("invalid transition")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrEmptyCart         = errors.New("cart is empty")
)

// Repository owns the authoritative collections. Every method returns copies;
// mutations are atomic with respect to each other.
type Repository interface {
	ListProducts(ctx context.Context) ([]domain.Product, error)
	GetProduct(ctx context.Context, id string) (*domain.Product, error)
	CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	// UpdateProduct and UpdateBatch run mutate on a copy of the current record
	// inside the same critical section as the write.
	UpdateProduct(ctx context.Context, id string, mutate func(*domain.Product) error) (*domain.Product, error)
	DeleteProduct(ctx context.Context, id string) error
	AdjustStock(ctx context.Context, productID string, delta int) (*domain.Product, error)

	ListBatches(ctx context.Context) ([]domain.ProductionBatch, error)
	GetBatch(ctx context.Context, id string) (*domain.ProductionBatch, error)
	CreateBatch(ctx context.Context, batch domain.ProductionBatch) (*domain.ProductionBatch, error)
	UpdateBatch(ctx context.Context, id string, mutate func(*domain.ProductionBatch) error) (*domain.ProductionBatch, error)
	CompleteBatch(ctx context.Context, id string) (*domain.ProductionBatch, error)

	GetCart(ctx context.Context) ([]domain.CartItem, error)
	AddToCart(ctx context.Context, productID string, qty int) ([]domain.CartItem, error)
	RemoveFromCart(ctx context.Context, productID string) ([]domain.CartItem, error)
	ClearCart(ctx context.Context) error
	CompleteSale(ctx context.Context, sale domain.Sale) (*domain.Sale, error)
	ListSales(ctx context.Context) ([]domain.Sale, error)

	ReplaceAlerts(ctx context.Context, alerts []domain.InventoryAlert) error
	ListAlerts(ctx context.Context) ([]domain.InventoryAlert, error)

	ListEmployees(ctx context.Context) ([]domain.Employee, error)

	// Revision increases on every successful mutation.
	Revision(ctx context.Context) (uint64, error)
}
