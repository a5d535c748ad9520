package memory

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chocolatier/backend/internal/domain"
	"chocolatier/backend/internal/store"
)

func newProduct(name string, price string, stock int, minStock int) domain.Product {
	return domain.Product{
		Name:     name,
		Category: domain.CategoryTabletas,
		Price:    decimal.RequireFromString(price),
		Stock:    stock,
		MinStock: minStock,
	}
}

func mustCreateProduct(t *testing.T, s *Store, p domain.Product) domain.Product {
	t.Helper()
	created, err := s.CreateProduct(context.Background(), p)
	require.NoError(t, err)
	return *created
}

func inProgressBatch(t *testing.T, s *Store, productID string, qty int) domain.ProductionBatch {
	t.Helper()
	ctx := context.Background()
	prod := time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)
	batch, err := s.CreateBatch(ctx, domain.ProductionBatch{
		ProductID:      productID,
		Quantity:       qty,
		ProductionDate: prod,
		ExpirationDate: prod.AddDate(0, 6, 0),
	})
	require.NoError(t, err)
	updated, err := s.UpdateBatch(ctx, batch.ID, func(b *domain.ProductionBatch) error {
		b.Status = domain.BatchInProgress
		return nil
	})
	require.NoError(t, err)
	return *updated
}

func TestCreateProductsKeepsInsertionOrderWithUniqueIDs(t *testing.T) {
	s := New()
	names := []string{"Tableta Negra", "Bombones", "Trufas", "Grageas", "Tableta Leche"}
	for _, name := range names {
		mustCreateProduct(t, s, newProduct(name, "10.00", 5, 1))
	}

	products, err := s.ListProducts(context.Background())
	require.NoError(t, err)
	require.Len(t, products, len(names))

	ids := map[string]struct{}{}
	for i, p := range products {
		assert.Equal(t, names[i], p.Name)
		assert.NotEmpty(t, p.ID)
		assert.False(t, p.CreatedAt.IsZero())
		ids[p.ID] = struct{}{}
	}
	assert.Len(t, ids, len(names))
}

func TestCreateProductRejectsInvalidFields(t *testing.T) {
	s := New()
	ctx := context.Background()

	cases := map[string]domain.Product{
		"blank name":       newProduct("  ", "1", 0, 0),
		"negative price":   newProduct("X", "-0.01", 0, 0),
		"negative stock":   newProduct("X", "1", -1, 0),
		"negative minimum": newProduct("X", "1", 0, -1),
		"unknown category": {Name: "X", Category: "caramelos", Price: decimal.NewFromInt(1)},
	}
	for name, p := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := s.CreateProduct(ctx, p)
			require.ErrorIs(t, err, store.ErrInvalidInput)
		})
	}
}

func TestListProductsReturnsCopies(t *testing.T) {
	s := New()
	mustCreateProduct(t, s, newProduct("Tableta", "10", 5, 1))

	products, err := s.ListProducts(context.Background())
	require.NoError(t, err)
	products[0].Stock = 999

	again, err := s.ListProducts(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 5, again[0].Stock)
}

func TestUpdateAndDeleteMissingProduct(t *testing.T) {
	s := New()
	ctx := context.Background()

	_, err := s.UpdateProduct(ctx, "nope", func(p *domain.Product) error {
		p.Name = "X"
		return nil
	})
	require.ErrorIs(t, err, store.ErrNotFound)
	require.ErrorIs(t, s.DeleteProduct(ctx, "nope"), store.ErrNotFound)
}

func TestAdjustStockNetSum(t *testing.T) {
	s := New()
	ctx := context.Background()
	p := mustCreateProduct(t, s, newProduct("Tableta", "10", 10, 2))

	deltas := []int{5, -3, 12, -20, 1}
	sum := 0
	for _, d := range deltas {
		_, err := s.AdjustStock(ctx, p.ID, d)
		require.NoError(t, err)
		sum += d
	}

	got, err := s.GetProduct(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 10+sum, got.Stock)
}

func TestAdjustStockRefusesNegative(t *testing.T) {
	s := New()
	ctx := context.Background()
	p := mustCreateProduct(t, s, newProduct("Tableta", "10", 3, 2))

	_, err := s.AdjustStock(ctx, p.ID, -4)
	require.ErrorIs(t, err, store.ErrInsufficientStock)

	got, err := s.GetProduct(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, got.Stock)

	_, err = s.AdjustStock(ctx, "missing", 1)
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestCreateBatchNumbering(t *testing.T) {
	s := New()
	ctx := context.Background()
	p := mustCreateProduct(t, s, newProduct("Tableta 70% Cacao", "35", 0, 0))
	createdAt := time.Date(2024, 3, 5, 14, 0, 0, 0, time.Local)

	var numbers []string
	for i := 0; i < 2; i++ {
		batch, err := s.CreateBatch(ctx, domain.ProductionBatch{
			ProductID:      p.ID,
			Quantity:       10,
			ProductionDate: createdAt,
			ExpirationDate: createdAt.AddDate(0, 3, 0),
			CreatedAt:      createdAt,
		})
		require.NoError(t, err)
		assert.Equal(t, domain.BatchPending, batch.Status)
		numbers = append(numbers, batch.BatchNumber)
	}
	assert.Equal(t, []string{"TAB-240305-001", "TAB-240305-002"}, numbers)
}

func TestBatchSequenceIsMonotonicPerProduct(t *testing.T) {
	s := New()
	ctx := context.Background()
	a := mustCreateProduct(t, s, newProduct("Bombones", "10", 0, 0))
	b := mustCreateProduct(t, s, newProduct("Trufas", "10", 0, 0))
	at := time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)

	mk := func(productID string) string {
		batch, err := s.CreateBatch(ctx, domain.ProductionBatch{
			ProductID: productID, Quantity: 1, ProductionDate: at, ExpirationDate: at, CreatedAt: at,
		})
		require.NoError(t, err)
		return batch.BatchNumber
	}

	assert.Equal(t, "BOM-240305-001", mk(a.ID))
	assert.Equal(t, "TRU-240305-001", mk(b.ID))
	assert.Equal(t, "BOM-240305-002", mk(a.ID))
}

func TestCreateBatchValidation(t *testing.T) {
	s := New()
	ctx := context.Background()
	p := mustCreateProduct(t, s, newProduct("Tableta", "10", 0, 0))
	at := time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)

	_, err := s.CreateBatch(ctx, domain.ProductionBatch{ProductID: p.ID, Quantity: 0, ProductionDate: at, ExpirationDate: at})
	require.ErrorIs(t, err, store.ErrInvalidInput)

	_, err = s.CreateBatch(ctx, domain.ProductionBatch{ProductID: p.ID, Quantity: 1, ProductionDate: at, ExpirationDate: at.AddDate(0, 0, -1)})
	require.ErrorIs(t, err, store.ErrInvalidInput)

	_, err = s.CreateBatch(ctx, domain.ProductionBatch{ProductID: "ghost", Quantity: 1, ProductionDate: at, ExpirationDate: at})
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestCompleteBatchCreditsStockOnce(t *testing.T) {
	s := New()
	ctx := context.Background()
	p := mustCreateProduct(t, s, newProduct("Tableta", "10", 4, 0))
	batch := inProgressBatch(t, s, p.ID, 50)

	completed, err := s.CompleteBatch(ctx, batch.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.BatchCompleted, completed.Status)

	_, err = s.CompleteBatch(ctx, batch.ID)
	require.ErrorIs(t, err, store.ErrInvalidTransition)

	got, err := s.GetProduct(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 54, got.Stock)
}

func TestCompleteBatchRequiresInProgress(t *testing.T) {
	s := New()
	ctx := context.Background()
	p := mustCreateProduct(t, s, newProduct("Tableta", "10", 0, 0))
	at := time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)
	batch, err := s.CreateBatch(ctx, domain.ProductionBatch{ProductID: p.ID, Quantity: 5, ProductionDate: at, ExpirationDate: at})
	require.NoError(t, err)

	_, err = s.CompleteBatch(ctx, batch.ID)
	require.ErrorIs(t, err, store.ErrInvalidTransition)

	_, err = s.CompleteBatch(ctx, "missing")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestCompleteBatchWithDeletedProductLeavesBatchUntouched(t *testing.T) {
	s := New()
	ctx := context.Background()
	p := mustCreateProduct(t, s, newProduct("Tableta", "10", 0, 0))
	batch := inProgressBatch(t, s, p.ID, 5)
	require.NoError(t, s.DeleteProduct(ctx, p.ID))

	_, err := s.CompleteBatch(ctx, batch.ID)
	require.ErrorIs(t, err, store.ErrNotFound)

	got, err := s.GetBatch(ctx, batch.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.BatchInProgress, got.Status)
}

func TestUpdateBatchTransitions(t *testing.T) {
	s := New()
	ctx := context.Background()
	p := mustCreateProduct(t, s, newProduct("Tableta", "10", 0, 0))
	batch := inProgressBatch(t, s, p.ID, 5)

	setStatus := func(status domain.BatchStatus) func(*domain.ProductionBatch) error {
		return func(b *domain.ProductionBatch) error {
			b.Status = status
			return nil
		}
	}

	_, err := s.UpdateBatch(ctx, batch.ID, setStatus(domain.BatchPending))
	require.ErrorIs(t, err, store.ErrInvalidTransition)

	_, err = s.UpdateBatch(ctx, batch.ID, setStatus(domain.BatchCompleted))
	require.ErrorIs(t, err, store.ErrInvalidTransition)

	renamed, err := s.UpdateBatch(ctx, batch.ID, func(b *domain.ProductionBatch) error {
		b.BatchNumber = "XXX-000000-999"
		b.ProductID = "elsewhere"
		b.Notes = "turno noche"
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, batch.BatchNumber, renamed.BatchNumber)
	assert.Equal(t, batch.ProductID, renamed.ProductID)
	assert.Equal(t, "turno noche", renamed.Notes)

	_, err = s.CompleteBatch(ctx, batch.ID)
	require.NoError(t, err)

	_, err = s.UpdateBatch(ctx, batch.ID, func(b *domain.ProductionBatch) error {
		b.Quantity = 500
		return nil
	})
	require.ErrorIs(t, err, store.ErrInvalidTransition)

	_, err = s.UpdateBatch(ctx, "missing", setStatus(domain.BatchInProgress))
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestCartAddMergesAndRemoveDeletes(t *testing.T) {
	s := New()
	ctx := context.Background()
	a := mustCreateProduct(t, s, newProduct("A", "1", 10, 0))
	b := mustCreateProduct(t, s, newProduct("B", "1", 10, 0))

	_, err := s.AddToCart(ctx, a.ID, 2)
	require.NoError(t, err)
	_, err = s.AddToCart(ctx, b.ID, 1)
	require.NoError(t, err)
	cart, err := s.AddToCart(ctx, a.ID, 3)
	require.NoError(t, err)
	assert.Equal(t, []domain.CartItem{{ProductID: a.ID, Quantity: 5}, {ProductID: b.ID, Quantity: 1}}, cart)

	cart, err = s.RemoveFromCart(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, []domain.CartItem{{ProductID: b.ID, Quantity: 1}}, cart)

	_, err = s.RemoveFromCart(ctx, a.ID)
	require.ErrorIs(t, err, store.ErrNotFound)

	_, err = s.AddToCart(ctx, a.ID, 0)
	require.ErrorIs(t, err, store.ErrInvalidInput)
	_, err = s.AddToCart(ctx, "ghost", 1)
	require.ErrorIs(t, err, store.ErrNotFound)

	require.NoError(t, s.ClearCart(ctx))
	cart, err = s.GetCart(ctx)
	require.NoError(t, err)
	assert.Empty(t, cart)
}

func TestCompleteSaleSnapshotsAndDecrements(t *testing.T) {
	s := New()
	ctx := context.Background()
	a := mustCreateProduct(t, s, newProduct("Tableta", "35.00", 10, 0))
	b := mustCreateProduct(t, s, newProduct("Bombones", "65.00", 10, 0))

	_, err := s.AddToCart(ctx, a.ID, 2)
	require.NoError(t, err)
	_, err = s.AddToCart(ctx, b.ID, 1)
	require.NoError(t, err)

	sale, err := s.CompleteSale(ctx, domain.Sale{SaleType: domain.SaleTypePOS})
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("135.00").Equal(sale.Total))
	require.Len(t, sale.Items, 2)
	assert.True(t, decimal.RequireFromString("70").Equal(sale.Items[0].Subtotal))
	assert.Equal(t, domain.SaleStatusCompleted, sale.Status)

	gotA, _ := s.GetProduct(ctx, a.ID)
	gotB, _ := s.GetProduct(ctx, b.ID)
	assert.Equal(t, 8, gotA.Stock)
	assert.Equal(t, 9, gotB.Stock)

	cart, _ := s.GetCart(ctx)
	assert.Empty(t, cart)

	// later price edits do not touch history
	_, err = s.UpdateProduct(ctx, a.ID, func(p *domain.Product) error {
		p.Price = decimal.NewFromInt(99)
		return nil
	})
	require.NoError(t, err)
	sales, err := s.ListSales(ctx)
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("35").Equal(sales[0].Items[0].Price))
}

func TestCompleteSaleRejectsOversellWithoutSideEffects(t *testing.T) {
	s := New()
	ctx := context.Background()
	a := mustCreateProduct(t, s, newProduct("A", "1", 10, 0))
	b := mustCreateProduct(t, s, newProduct("B", "1", 1, 0))

	_, err := s.AddToCart(ctx, a.ID, 3)
	require.NoError(t, err)
	_, err = s.AddToCart(ctx, b.ID, 2)
	require.NoError(t, err)

	_, err = s.CompleteSale(ctx, domain.Sale{SaleType: domain.SaleTypePOS})
	require.ErrorIs(t, err, store.ErrInsufficientStock)

	gotA, _ := s.GetProduct(ctx, a.ID)
	assert.Equal(t, 10, gotA.Stock)
	cart, _ := s.GetCart(ctx)
	assert.Len(t, cart, 2)
	sales, _ := s.ListSales(ctx)
	assert.Empty(t, sales)
}

func TestCompleteSaleEmptyCartAndDanglingProduct(t *testing.T) {
	s := New()
	ctx := context.Background()

	_, err := s.CompleteSale(ctx, domain.Sale{SaleType: domain.SaleTypeOnline})
	require.ErrorIs(t, err, store.ErrEmptyCart)

	p := mustCreateProduct(t, s, newProduct("A", "1", 10, 0))
	_, err = s.AddToCart(ctx, p.ID, 1)
	require.NoError(t, err)
	require.NoError(t, s.DeleteProduct(ctx, p.ID))

	_, err = s.CompleteSale(ctx, domain.Sale{SaleType: domain.SaleTypeOnline})
	require.ErrorIs(t, err, store.ErrNotFound)

	_, err = s.CompleteSale(ctx, domain.Sale{SaleType: "wholesale"})
	require.ErrorIs(t, err, store.ErrInvalidInput)
}

func TestRevisionAdvancesOnMutation(t *testing.T) {
	s := New()
	ctx := context.Background()

	before, err := s.Revision(ctx)
	require.NoError(t, err)
	mustCreateProduct(t, s, newProduct("A", "1", 1, 0))
	after, err := s.Revision(ctx)
	require.NoError(t, err)
	assert.Greater(t, after, before)

	_, err = s.ListProducts(ctx)
	require.NoError(t, err)
	same, _ := s.Revision(ctx)
	assert.Equal(t, after, same)
}

func TestNewSeeded(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()

	products, err := s.ListProducts(ctx)
	require.NoError(t, err)
	require.Len(t, products, 3)
	assert.Equal(t, "Tableta 70% Cacao", products[0].Name)

	at := time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)
	batch, err := s.CreateBatch(ctx, domain.ProductionBatch{
		ProductID: "prd-tableta-70", Quantity: 10, ProductionDate: at, ExpirationDate: at, CreatedAt: at,
	})
	require.NoError(t, err)
	assert.Equal(t, "TAB-240305-002", batch.BatchNumber)

	employees, err := s.ListEmployees(ctx)
	require.NoError(t, err)
	assert.Len(t, employees, 3)
}

func TestConcurrentAdjustNeverGoesNegative(t *testing.T) {
	s := New()
	p := mustCreateProduct(t, s, newProduct("Trufas", "12.00", 20, 5))

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		applied int
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.AdjustStock(context.Background(), p.ID, -1)
			if err == nil {
				mu.Lock()
				applied++
				mu.Unlock()
				return
			}
			if !errors.Is(err, store.ErrInsufficientStock) {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	got, err := s.GetProduct(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, 20, applied)
	assert.Equal(t, 0, got.Stock)
}

func TestUpdateProductRejectsInvalidMergeWithoutWriting(t *testing.T) {
	s := New()
	ctx := context.Background()
	p := mustCreateProduct(t, s, newProduct("Tableta", "10", 7, 2))

	_, err := s.UpdateProduct(ctx, p.ID, func(p *domain.Product) error {
		p.Stock = -1
		return nil
	})
	require.ErrorIs(t, err, store.ErrInvalidInput)

	got, err := s.GetProduct(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 7, got.Stock)
}

func TestUpdateProductKeepsConcurrentStockChanges(t *testing.T) {
	s := New()
	p := mustCreateProduct(t, s, newProduct("Bombones", "65.00", 100, 5))

	var wg sync.WaitGroup
	for i := 0; i < 40; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, err := s.AdjustStock(context.Background(), p.ID, -1)
			assert.NoError(t, err)
		}()
		go func(i int) {
			defer wg.Done()
			_, err := s.UpdateProduct(context.Background(), p.ID, func(p *domain.Product) error {
				p.Description = fmt.Sprintf("edicion %d", i)
				return nil
			})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	got, err := s.GetProduct(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, 60, got.Stock)
}

func TestAddToCartRejectsQuantityOverflow(t *testing.T) {
	s := New()
	ctx := context.Background()
	p := mustCreateProduct(t, s, newProduct("Tableta", "35.00", 10, 0))

	_, err := s.AddToCart(ctx, p.ID, math.MaxInt)
	require.NoError(t, err)
	_, err = s.AddToCart(ctx, p.ID, math.MaxInt)
	require.ErrorIs(t, err, store.ErrInvalidInput)

	cart, err := s.GetCart(ctx)
	require.NoError(t, err)
	require.Len(t, cart, 1)
	assert.Equal(t, math.MaxInt, cart[0].Quantity)

	_, err = s.CompleteSale(ctx, domain.Sale{SaleType: domain.SaleTypePOS})
	require.ErrorIs(t, err, store.ErrInsufficientStock)

	got, err := s.GetProduct(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 10, got.Stock)
	sales, err := s.ListSales(ctx)
	require.NoError(t, err)
	assert.Empty(t, sales)
}

func TestCompleteSaleRejectsNonPositiveCartQuantity(t *testing.T) {
	s := New()
	ctx := context.Background()
	p := mustCreateProduct(t, s, newProduct("Tableta", "35.00", 10, 0))

	// only reachable by corrupting the cart from inside the package
	s.cart = append(s.cart, domain.CartItem{ProductID: p.ID, Quantity: -2})

	_, err := s.CompleteSale(ctx, domain.Sale{SaleType: domain.SaleTypePOS})
	require.ErrorIs(t, err, store.ErrInvalidInput)

	got, err := s.GetProduct(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 10, got.Stock)
}

func TestDefaultTimestampsAreUTC(t *testing.T) {
	s := New()
	ctx := context.Background()
	p := mustCreateProduct(t, s, newProduct("Tableta", "35.00", 10, 0))
	assert.Equal(t, time.UTC, p.CreatedAt.Location())

	batch := inProgressBatch(t, s, p.ID, 5)
	assert.Equal(t, time.UTC, batch.CreatedAt.Location())

	updated, err := s.UpdateProduct(ctx, p.ID, func(p *domain.Product) error {
		p.Description = "amargo"
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, time.UTC, updated.UpdatedAt.Location())

	_, err = s.AddToCart(ctx, p.ID, 1)
	require.NoError(t, err)
	sale, err := s.CompleteSale(ctx, domain.Sale{SaleType: domain.SaleTypePOS})
	require.NoError(t, err)
	assert.Equal(t, time.UTC, sale.CreatedAt.Location())

	// Caller-supplied timestamps are kept as given.
	local := time.Date(2024, 3, 5, 14, 0, 0, 0, time.Local)
	kept, err := s.CreateBatch(ctx, domain.ProductionBatch{
		ProductID:      p.ID,
		Quantity:       1,
		ProductionDate: local,
		ExpirationDate: local.AddDate(0, 1, 0),
		CreatedAt:      local,
	})
	require.NoError(t, err)
	assert.True(t, local.Equal(kept.CreatedAt))
}
