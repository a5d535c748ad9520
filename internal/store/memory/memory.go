package memory

import (
	"context"
	"fmt"
	"math"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"chocolatier/backend/internal/domain"
	"chocolatier/backend/internal/store"
	"chocolatier/backend/internal/xid"
)

type Store struct {
	mu        sync.RWMutex
	products  []domain.Product
	batches   []domain.ProductionBatch
	batchSeq  map[string]int
	sales     []domain.Sale
	cart      []domain.CartItem
	alerts    []domain.InventoryAlert
	employees []domain.Employee
	revision  uint64
}

var _ store.Repository = (*Store)(nil)

func New() *Store {
	return &Store{
		products:  make([]domain.Product, 0, 16),
		batches:   make([]domain.ProductionBatch, 0, 16),
		batchSeq:  make(map[string]int),
		sales:     make([]domain.Sale, 0, 64),
		cart:      make([]domain.CartItem, 0, 8),
		alerts:    []domain.InventoryAlert{},
		employees: []domain.Employee{},
	}
}

// NewSeeded returns a store preloaded with the demo catalog, one finished
// batch and the payroll roster.
func NewSeeded() *Store {
	s := New()
	seededAt := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	s.products = append(s.products,
		domain.Product{
			ID:          "prd-tableta-70",
			Name:        "Tableta 70% Cacao",
			Description: "Chocolate negro intenso con 70% de cacao ecuatoriano",
			Category:    domain.CategoryTabletas,
			Price:       decimal.RequireFromString("35.00"),
			Stock:       150,
			MinStock:    20,
			Image:       "https://images.pexels.com/photos/918327/pexels-photo-918327.jpeg",
			CreatedAt:   seededAt,
			UpdatedAt:   seededAt,
		},
		domain.Product{
			ID:          "prd-bombones-surtidos",
			Name:        "Bombones Surtidos",
			Description: "Caja de 12 bombones con rellenos variados",
			Category:    domain.CategoryBombones,
			Price:       decimal.RequireFromString("65.00"),
			Stock:       80,
			MinStock:    15,
			Image:       "https://images.pexels.com/photos/918328/pexels-photo-918328.jpeg",
			CreatedAt:   seededAt,
			UpdatedAt:   seededAt,
		},
		domain.Product{
			ID:          "prd-trufas-champagne",
			Name:        "Trufas de Champagne",
			Description: "Trufas artesanales con champagne",
			Category:    domain.CategoryTrufas,
			Price:       decimal.RequireFromString("120.00"),
			Stock:       5,
			MinStock:    10,
			Image:       "https://images.pexels.com/photos/918329/pexels-photo-918329.jpeg",
			CreatedAt:   seededAt,
			UpdatedAt:   seededAt,
		},
	)

	s.batches = append(s.batches, domain.ProductionBatch{
		ID:             "batch-seed-1",
		ProductID:      "prd-tableta-70",
		BatchNumber:    "TAB-001-2024",
		Quantity:       50,
		ProductionDate: time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC),
		ExpirationDate: time.Date(2024, 7, 15, 0, 0, 0, 0, time.UTC),
		Status:         domain.BatchCompleted,
		CreatedAt:      time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC),
	})
	s.batchSeq["prd-tableta-70"] = 1

	s.employees = append(s.employees,
		domain.Employee{ID: 1, Name: "Ana Sofia Rojas", Position: "Gerente de Proyectos", BaseSalary: decimal.NewFromInt(12000), Deductions: decimal.NewFromInt(1500), Bonuses: decimal.NewFromInt(2000)},
		domain.Employee{ID: 2, Name: "Luis Fernando Gutierrez", Position: "Desarrollador Senior", BaseSalary: decimal.NewFromInt(9500), Deductions: decimal.NewFromInt(1100), Bonuses: decimal.NewFromInt(1500)},
		domain.Employee{ID: 3, Name: "Maria Isabel Paredes", Position: "Diseñadora UX/UI", BaseSalary: decimal.NewFromInt(8000), Deductions: decimal.NewFromInt(900), Bonuses: decimal.NewFromInt(1200)},
	)
	return s
}

func (s *Store) ListProducts(_ context.Context) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return slices.Clone(s.products), nil
}

func (s *Store) GetProduct(_ context.Context, id string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	idx := s.productIndex(id)
	if idx < 0 {
		return nil, store.ErrNotFound
	}
	product := s.products[idx]
	return &product, nil
}

func (s *Store) CreateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	if err := validateProduct(product); err != nil {
		return nil, err
	}
	if product.ID == "" {
		product.ID = xid.New("prd")
	}
	if product.CreatedAt.IsZero() {
		product.CreatedAt = time.Now().UTC()
	}
	if product.UpdatedAt.IsZero() {
		product.UpdatedAt = product.CreatedAt
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.productIndex(product.ID) >= 0 {
		return nil, fmt.Errorf("product id %s already exists: %w", product.ID, store.ErrInvalidInput)
	}
	s.products = append(s.products, product)
	s.revision++
	created := product
	return &created, nil
}

// UpdateProduct applies mutate to a copy of the stored product while holding
// the write lock, so concurrent stock changes are never overwritten by a
// stale read. Identity and creation time cannot be changed.
func (s *Store) UpdateProduct(_ context.Context, id string, mutate func(*domain.Product) error) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.productIndex(id)
	if idx < 0 {
		return nil, store.ErrNotFound
	}
	existing := s.products[idx]
	product := existing
	if err := mutate(&product); err != nil {
		return nil, err
	}
	if err := validateProduct(product); err != nil {
		return nil, err
	}
	product.ID = existing.ID
	product.CreatedAt = existing.CreatedAt
	if product.UpdatedAt.Equal(existing.UpdatedAt) {
		product.UpdatedAt = time.Now().UTC()
	}
	s.products[idx] = product
	s.revision++
	updated := product
	return &updated, nil
}

func (s *Store) DeleteProduct(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.productIndex(id)
	if idx < 0 {
		return store.ErrNotFound
	}
	s.products = slices.Delete(s.products, idx, idx+1)
	s.revision++
	return nil
}

func (s *Store) AdjustStock(_ context.Context, productID string, delta int) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	product, err := s.adjustStockLocked(productID, delta)
	if err != nil {
		return nil, err
	}
	s.revision++
	return &product, nil
}

// adjustStockLocked is the single place stock changes. It refuses to leave a
// product with negative stock.
func (s *Store) adjustStockLocked(productID string, delta int) (domain.Product, error) {
	idx := s.productIndex(productID)
	if idx < 0 {
		return domain.Product{}, fmt.Errorf("product %s: %w", productID, store.ErrNotFound)
	}
	next := s.products[idx].Stock + delta
	if next < 0 {
		return domain.Product{}, fmt.Errorf("product %s has %d in stock, cannot apply %d: %w", productID, s.products[idx].Stock, delta, store.ErrInsufficientStock)
	}
	s.products[idx].Stock = next
	return s.products[idx], nil
}

func (s *Store) ListBatches(_ context.Context) ([]domain.ProductionBatch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return slices.Clone(s.batches), nil
}

func (s *Store) GetBatch(_ context.Context, id string) (*domain.ProductionBatch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	idx := s.batchIndex(id)
	if idx < 0 {
		return nil, store.ErrNotFound
	}
	batch := s.batches[idx]
	return &batch, nil
}

func (s *Store) CreateBatch(_ context.Context, batch domain.ProductionBatch) (*domain.ProductionBatch, error) {
	if err := validateBatch(batch); err != nil {
		return nil, err
	}
	if batch.ID == "" {
		batch.ID = xid.New("batch")
	}
	if batch.CreatedAt.IsZero() {
		batch.CreatedAt = time.Now().UTC()
	}
	batch.Status = domain.BatchPending

	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.productIndex(batch.ProductID)
	if idx < 0 {
		return nil, fmt.Errorf("product %s: %w", batch.ProductID, store.ErrNotFound)
	}
	if s.batchIndex(batch.ID) >= 0 {
		return nil, fmt.Errorf("batch id %s already exists: %w", batch.ID, store.ErrInvalidInput)
	}

	s.batchSeq[batch.ProductID]++
	batch.BatchNumber = domain.BatchNumber(s.products[idx].Name, batch.CreatedAt, s.batchSeq[batch.ProductID])
	s.batches = append(s.batches, batch)
	s.revision++
	created := batch
	return &created, nil
}

// UpdateBatch applies mutate under the write lock. Status may only move
// forward, never to completed, and a completed batch is frozen.
func (s *Store) UpdateBatch(_ context.Context, id string, mutate func(*domain.ProductionBatch) error) (*domain.ProductionBatch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.batchIndex(id)
	if idx < 0 {
		return nil, store.ErrNotFound
	}
	existing := s.batches[idx]
	if existing.Status == domain.BatchCompleted {
		return nil, fmt.Errorf("batch %s is completed: %w", existing.ID, store.ErrInvalidTransition)
	}
	batch := existing
	if err := mutate(&batch); err != nil {
		return nil, err
	}
	if err := validateBatch(batch); err != nil {
		return nil, err
	}
	if batch.Status == domain.BatchCompleted {
		return nil, fmt.Errorf("batch %s must be completed through CompleteBatch: %w", existing.ID, store.ErrInvalidTransition)
	}
	if !existing.Status.CanAdvanceTo(batch.Status) {
		return nil, fmt.Errorf("batch %s cannot move from %s to %s: %w", existing.ID, existing.Status, batch.Status, store.ErrInvalidTransition)
	}

	batch.ID = existing.ID
	batch.ProductID = existing.ProductID
	batch.BatchNumber = existing.BatchNumber
	batch.CreatedAt = existing.CreatedAt
	s.batches[idx] = batch
	s.revision++
	updated := batch
	return &updated, nil
}

func (s *Store) CompleteBatch(_ context.Context, id string) (*domain.ProductionBatch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.batchIndex(id)
	if idx < 0 {
		return nil, store.ErrNotFound
	}
	batch := s.batches[idx]
	if batch.Status != domain.BatchInProgress {
		return nil, fmt.Errorf("batch %s is %s, expected %s: %w", batch.ID, batch.Status, domain.BatchInProgress, store.ErrInvalidTransition)
	}
	if _, err := s.adjustStockLocked(batch.ProductID, batch.Quantity); err != nil {
		return nil, err
	}

	s.batches[idx].Status = domain.BatchCompleted
	s.revision++
	completed := s.batches[idx]
	return &completed, nil
}

func (s *Store) GetCart(_ context.Context) ([]domain.CartItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return slices.Clone(s.cart), nil
}

func (s *Store) AddToCart(_ context.Context, productID string, qty int) ([]domain.CartItem, error) {
	if strings.TrimSpace(productID) == "" || qty < 1 {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.productIndex(productID) < 0 {
		return nil, fmt.Errorf("product %s: %w", productID, store.ErrNotFound)
	}

	found := false
	for i := range s.cart {
		if s.cart[i].ProductID == productID {
			if qty > math.MaxInt-s.cart[i].Quantity {
				return nil, fmt.Errorf("cart quantity for %s overflows: %w", productID, store.ErrInvalidInput)
			}
			s.cart[i].Quantity += qty
			found = true
			break
		}
	}
	if !found {
		s.cart = append(s.cart, domain.CartItem{ProductID: productID, Quantity: qty})
	}
	s.revision++
	return slices.Clone(s.cart), nil
}

func (s *Store) RemoveFromCart(_ context.Context, productID string) ([]domain.CartItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := slices.IndexFunc(s.cart, func(item domain.CartItem) bool {
		return item.ProductID == productID
	})
	if idx < 0 {
		return nil, fmt.Errorf("cart entry %s: %w", productID, store.ErrNotFound)
	}
	s.cart = slices.Delete(s.cart, idx, idx+1)
	s.revision++
	return slices.Clone(s.cart), nil
}

func (s *Store) ClearCart(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cart = s.cart[:0]
	s.revision++
	return nil
}

// CompleteSale turns the current cart into a sale. Items, total and status
// are derived here; the caller supplies id, type, customer and timestamp.
// Nothing changes unless every line can be fulfilled.
func (s *Store) CompleteSale(_ context.Context, sale domain.Sale) (*domain.Sale, error) {
	if sale.SaleType != domain.SaleTypeOnline && sale.SaleType != domain.SaleTypePOS {
		return nil, fmt.Errorf("sale type %q: %w", sale.SaleType, store.ErrInvalidInput)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.cart) == 0 {
		return nil, store.ErrEmptyCart
	}

	items := make([]domain.SaleItem, 0, len(s.cart))
	total := decimal.Zero
	for _, entry := range s.cart {
		idx := s.productIndex(entry.ProductID)
		if idx < 0 {
			return nil, fmt.Errorf("product %s: %w", entry.ProductID, store.ErrNotFound)
		}
		product := s.products[idx]
		if entry.Quantity <= 0 {
			return nil, fmt.Errorf("cart quantity %d for %s: %w", entry.Quantity, product.ID, store.ErrInvalidInput)
		}
		if entry.Quantity > product.Stock {
			return nil, fmt.Errorf("product %s has %d in stock, requested %d: %w", product.ID, product.Stock, entry.Quantity, store.ErrInsufficientStock)
		}
		subtotal := product.Price.Mul(decimal.NewFromInt(int64(entry.Quantity)))
		items = append(items, domain.SaleItem{
			ProductID:   product.ID,
			ProductName: product.Name,
			Quantity:    entry.Quantity,
			Price:       product.Price,
			Subtotal:    subtotal,
		})
		total = total.Add(subtotal)
	}

	for _, item := range items {
		if _, err := s.adjustStockLocked(item.ProductID, -item.Quantity); err != nil {
			// unreachable: every line was checked above under the same lock
			return nil, err
		}
	}

	if sale.ID == "" {
		sale.ID = xid.New("sale")
	}
	if sale.CreatedAt.IsZero() {
		sale.CreatedAt = time.Now().UTC()
	}
	if sale.Status == "" {
		sale.Status = domain.SaleStatusCompleted
	}
	sale.Items = items
	sale.Total = total

	stored := cloneSale(sale)
	s.sales = append(s.sales, stored)
	s.cart = s.cart[:0]
	s.revision++
	created := cloneSale(stored)
	return &created, nil
}

func (s *Store) ListSales(_ context.Context) ([]domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sales := make([]domain.Sale, 0, len(s.sales))
	for _, sale := range s.sales {
		sales = append(sales, cloneSale(sale))
	}
	return sales, nil
}

func (s *Store) ReplaceAlerts(_ context.Context, alerts []domain.InventoryAlert) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.alerts = slices.Clone(alerts)
	if s.alerts == nil {
		s.alerts = []domain.InventoryAlert{}
	}
	s.revision++
	return nil
}

func (s *Store) ListAlerts(_ context.Context) ([]domain.InventoryAlert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return slices.Clone(s.alerts), nil
}

func (s *Store) ListEmployees(_ context.Context) ([]domain.Employee, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return slices.Clone(s.employees), nil
}

func (s *Store) Revision(_ context.Context) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.revision, nil
}

func (s *Store) productIndex(id string) int {
	return slices.IndexFunc(s.products, func(p domain.Product) bool { return p.ID == id })
}

func (s *Store) batchIndex(id string) int {
	return slices.IndexFunc(s.batches, func(b domain.ProductionBatch) bool { return b.ID == id })
}

func validateProduct(product domain.Product) error {
	if strings.TrimSpace(product.Name) == "" || !product.Category.Valid() {
		return store.ErrInvalidInput
	}
	if product.Price.IsNegative() || product.Stock < 0 || product.MinStock < 0 {
		return store.ErrInvalidInput
	}
	return nil
}

func validateBatch(batch domain.ProductionBatch) error {
	if strings.TrimSpace(batch.ProductID) == "" || batch.Quantity < 1 {
		return store.ErrInvalidInput
	}
	if batch.ProductionDate.IsZero() || batch.ExpirationDate.IsZero() || batch.ExpirationDate.Before(batch.ProductionDate) {
		return store.ErrInvalidInput
	}
	if batch.Status != "" && !batch.Status.Valid() {
		return store.ErrInvalidInput
	}
	return nil
}

func cloneSale(sale domain.Sale) domain.Sale {
	copySale := sale
	copySale.Items = slices.Clone(sale.Items)
	if sale.CustomerInfo != nil {
		customer := *sale.CustomerInfo
		copySale.CustomerInfo = &customer
	}
	return copySale
}
