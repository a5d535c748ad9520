package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"chocolatier/backend/internal/domain"
	"chocolatier/backend/internal/insight"
	"chocolatier/backend/internal/store"
	"chocolatier/backend/internal/xid"
)

const (
	recentSalesLimit = 5
	topProductsLimit = 5
)

type Service struct {
	repo    store.Repository
	insight *insight.Engine
	now     func() time.Time
}

type Option func(*Service)

// WithClock replaces time.Now, which decides timestamps, batch dates and the
// daily-sales boundary.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

func New(repo store.Repository, engine *insight.Engine, opts ...Option) *Service {
	if engine == nil {
		engine = insight.NewEngine(nil, 0)
	}
	s := &Service{
		repo:    repo,
		insight: engine,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) ListProducts(ctx context.Context) ([]domain.Product, error) {
	return s.repo.ListProducts(ctx)
}

func (s *Service) SearchProducts(ctx context.Context, term string) ([]domain.Product, error) {
	products, err := s.repo.ListProducts(ctx)
	if err != nil {
		return nil, err
	}
	return insight.FilterProducts(products, term), nil
}

func (s *Service) GetProduct(ctx context.Context, id string) (domain.Product, error) {
	product, err := s.repo.GetProduct(ctx, strings.TrimSpace(id))
	if err != nil {
		return domain.Product{}, fmt.Errorf("product %s: %w", id, err)
	}
	return *product, nil
}

func (s *Service) CreateProduct(ctx context.Context, req domain.ProductCreateRequest) (domain.Product, error) {
	req.Name = strings.TrimSpace(req.Name)
	req.Description = strings.TrimSpace(req.Description)
	req.Image = strings.TrimSpace(req.Image)
	if err := validateStruct(req); err != nil {
		return domain.Product{}, err
	}

	now := s.now()
	created, err := s.repo.CreateProduct(ctx, domain.Product{
		ID:          xid.New("prd"),
		Name:        req.Name,
		Description: req.Description,
		Category:    req.Category,
		Price:       req.Price,
		Stock:       req.Stock,
		MinStock:    req.MinStock,
		Image:       req.Image,
		CreatedAt:   now,
		UpdatedAt:   now,
	})
	if err != nil {
		return domain.Product{}, err
	}

	log.Info().Str("product_id", created.ID).Str("name", created.Name).Int("stock", created.Stock).Msg("product created")
	return *created, nil
}

// UpdateProduct merges the non-nil fields of req into the stored product.
// Fields left nil, stock included, keep whatever value the store holds at
// write time.
func (s *Service) UpdateProduct(ctx context.Context, id string, req domain.ProductUpdateRequest) (domain.Product, error) {
	if err := validateProductUpdate(req); err != nil {
		return domain.Product{}, err
	}

	now := s.now()
	var oldPrice decimal.Decimal
	saved, err := s.repo.UpdateProduct(ctx, strings.TrimSpace(id), func(p *domain.Product) error {
		oldPrice = p.Price
		if req.Name != nil {
			p.Name = strings.TrimSpace(*req.Name)
		}
		if req.Description != nil {
			p.Description = strings.TrimSpace(*req.Description)
		}
		if req.Category != nil {
			p.Category = *req.Category
		}
		if req.Price != nil {
			p.Price = *req.Price
		}
		if req.Stock != nil {
			p.Stock = *req.Stock
		}
		if req.MinStock != nil {
			p.MinStock = *req.MinStock
		}
		if req.Image != nil {
			p.Image = strings.TrimSpace(*req.Image)
		}
		p.UpdatedAt = now
		return nil
	})
	if err != nil {
		return domain.Product{}, fmt.Errorf("product %s: %w", id, err)
	}

	if !oldPrice.Equal(saved.Price) {
		log.Info().Str("product_id", saved.ID).Str("old_price", oldPrice.StringFixed(2)).Str("new_price", saved.Price.StringFixed(2)).Msg("product price changed")
	}
	log.Info().Str("product_id", saved.ID).Msg("product updated")
	return *saved, nil
}

func validateProductUpdate(req domain.ProductUpdateRequest) error {
	if req.Name != nil && strings.TrimSpace(*req.Name) == "" {
		return invalidField("Name", "required")
	}
	if req.Category != nil && !req.Category.Valid() {
		return invalidField("Category", "oneof")
	}
	if req.Price != nil && req.Price.IsNegative() {
		return invalidField("Price", "gte")
	}
	if req.Stock != nil && *req.Stock < 0 {
		return invalidField("Stock", "gte")
	}
	if req.MinStock != nil && *req.MinStock < 0 {
		return invalidField("MinStock", "gte")
	}
	return nil
}

// DeleteProduct removes the product only. Batches, sales and cart entries
// that reference it are left as they are.
func (s *Service) DeleteProduct(ctx context.Context, id string) error {
	if err := s.repo.DeleteProduct(ctx, strings.TrimSpace(id)); err != nil {
		return fmt.Errorf("product %s: %w", id, err)
	}
	log.Info().Str("product_id", id).Msg("product deleted")
	return nil
}

func (s *Service) AdjustStock(ctx context.Context, id string, delta int) (domain.Product, error) {
	product, err := s.repo.AdjustStock(ctx, strings.TrimSpace(id), delta)
	if err != nil {
		return domain.Product{}, err
	}
	log.Info().Str("product_id", product.ID).Int("delta", delta).Int("stock", product.Stock).Msg("stock adjusted")
	return *product, nil
}

func (s *Service) ListBatches(ctx context.Context) ([]domain.ProductionBatch, error) {
	return s.repo.ListBatches(ctx)
}

func (s *Service) GetBatch(ctx context.Context, id string) (domain.ProductionBatch, error) {
	batch, err := s.repo.GetBatch(ctx, strings.TrimSpace(id))
	if err != nil {
		return domain.ProductionBatch{}, fmt.Errorf("batch %s: %w", id, err)
	}
	return *batch, nil
}

func (s *Service) CreateBatch(ctx context.Context, req domain.BatchCreateRequest) (domain.ProductionBatch, error) {
	req.ProductID = strings.TrimSpace(req.ProductID)
	req.Notes = strings.TrimSpace(req.Notes)
	if err := validateStruct(req); err != nil {
		return domain.ProductionBatch{}, err
	}
	if req.ExpirationDate.Before(req.ProductionDate) {
		return domain.ProductionBatch{}, invalidField("ExpirationDate", "gtefield")
	}

	created, err := s.repo.CreateBatch(ctx, domain.ProductionBatch{
		ID:             xid.New("batch"),
		ProductID:      req.ProductID,
		Quantity:       req.Quantity,
		ProductionDate: req.ProductionDate,
		ExpirationDate: req.ExpirationDate,
		Notes:          req.Notes,
		CreatedAt:      s.now(),
	})
	if err != nil {
		return domain.ProductionBatch{}, err
	}

	log.Info().Str("batch_id", created.ID).Str("batch_number", created.BatchNumber).Str("product_id", created.ProductID).Int("quantity", created.Quantity).Msg("batch created")
	return *created, nil
}

func (s *Service) UpdateBatch(ctx context.Context, id string, req domain.BatchUpdateRequest) (domain.ProductionBatch, error) {
	if req.Quantity != nil && *req.Quantity < 1 {
		return domain.ProductionBatch{}, invalidField("Quantity", "gt")
	}
	if req.Status != nil && !req.Status.Valid() {
		return domain.ProductionBatch{}, invalidField("Status", "oneof")
	}

	var from domain.BatchStatus
	saved, err := s.repo.UpdateBatch(ctx, strings.TrimSpace(id), func(b *domain.ProductionBatch) error {
		from = b.Status
		if req.Quantity != nil {
			b.Quantity = *req.Quantity
		}
		if req.ProductionDate != nil {
			b.ProductionDate = *req.ProductionDate
		}
		if req.ExpirationDate != nil {
			b.ExpirationDate = *req.ExpirationDate
		}
		if req.Notes != nil {
			b.Notes = strings.TrimSpace(*req.Notes)
		}
		if req.Status != nil {
			b.Status = *req.Status
		}
		if b.ExpirationDate.Before(b.ProductionDate) {
			return invalidField("ExpirationDate", "gtefield")
		}
		return nil
	})
	if err != nil {
		return domain.ProductionBatch{}, fmt.Errorf("batch %s: %w", id, err)
	}

	if from != saved.Status {
		log.Info().Str("batch_id", saved.ID).Str("from", string(from)).Str("to", string(saved.Status)).Msg("batch status changed")
	}
	return *saved, nil
}

// StartBatch moves a pending batch into production.
func (s *Service) StartBatch(ctx context.Context, id string) (domain.ProductionBatch, error) {
	started, err := s.repo.UpdateBatch(ctx, strings.TrimSpace(id), func(b *domain.ProductionBatch) error {
		if b.Status != domain.BatchPending {
			return fmt.Errorf("batch %s is %s: %w", b.ID, b.Status, store.ErrInvalidTransition)
		}
		b.Status = domain.BatchInProgress
		return nil
	})
	if err != nil {
		return domain.ProductionBatch{}, fmt.Errorf("batch %s: %w", id, err)
	}
	log.Info().Str("batch_id", started.ID).Str("from", string(domain.BatchPending)).Str("to", string(started.Status)).Msg("batch status changed")
	return *started, nil
}

func (s *Service) CompleteBatch(ctx context.Context, id string) (domain.ProductionBatch, error) {
	completed, err := s.repo.CompleteBatch(ctx, strings.TrimSpace(id))
	if err != nil {
		return domain.ProductionBatch{}, err
	}
	log.Info().Str("batch_id", completed.ID).Str("product_id", completed.ProductID).Int("quantity", completed.Quantity).Msg("batch completed")
	return *completed, nil
}

func (s *Service) BatchSummary(ctx context.Context) (domain.BatchSummary, error) {
	batches, err := s.repo.ListBatches(ctx)
	if err != nil {
		return domain.BatchSummary{}, err
	}
	return insight.SummarizeBatches(batches), nil
}

func (s *Service) ExpiringBatches(ctx context.Context, withinDays int) ([]domain.ExpiringBatch, error) {
	if withinDays < 0 {
		return nil, invalidField("days", "gte")
	}
	batches, err := s.repo.ListBatches(ctx)
	if err != nil {
		return nil, err
	}
	products, err := s.repo.ListProducts(ctx)
	if err != nil {
		return nil, err
	}
	return insight.ExpiringBatches(batches, products, s.now(), withinDays), nil
}

func (s *Service) Cart(ctx context.Context) ([]domain.CartItem, error) {
	return s.repo.GetCart(ctx)
}

// CartSummary prices the cart against the current catalog. Entries whose
// product has been deleted are kept and flagged as missing.
func (s *Service) CartSummary(ctx context.Context) (domain.CartSummary, error) {
	items, err := s.repo.GetCart(ctx)
	if err != nil {
		return domain.CartSummary{}, err
	}
	products, err := s.repo.ListProducts(ctx)
	if err != nil {
		return domain.CartSummary{}, err
	}
	byID := make(map[string]domain.Product, len(products))
	for _, p := range products {
		byID[p.ID] = p
	}

	summary := domain.CartSummary{Lines: make([]domain.CartLine, 0, len(items)), Total: decimal.Zero}
	for _, item := range items {
		line := domain.CartLine{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			Price:     decimal.Zero,
			Subtotal:  decimal.Zero,
		}
		if p, ok := byID[item.ProductID]; ok {
			line.ProductName = p.Name
			line.Price = p.Price
			line.Available = p.Stock
			line.Subtotal = p.Price.Mul(decimal.NewFromInt(int64(item.Quantity)))
		} else {
			line.Missing = true
		}
		summary.Items += item.Quantity
		summary.Total = summary.Total.Add(line.Subtotal)
		summary.Lines = append(summary.Lines, line)
	}
	return summary, nil
}

func (s *Service) AddToCart(ctx context.Context, req domain.CartAddRequest) ([]domain.CartItem, error) {
	req.ProductID = strings.TrimSpace(req.ProductID)
	if err := validateStruct(req); err != nil {
		return nil, err
	}
	return s.repo.AddToCart(ctx, req.ProductID, req.Quantity)
}

func (s *Service) RemoveFromCart(ctx context.Context, productID string) ([]domain.CartItem, error) {
	return s.repo.RemoveFromCart(ctx, strings.TrimSpace(productID))
}

func (s *Service) ClearCart(ctx context.Context) error {
	return s.repo.ClearCart(ctx)
}

// CompleteSale checks out the cart. Without an explicit sale type, a sale
// that carries customer info is online and one without is a counter sale.
func (s *Service) CompleteSale(ctx context.Context, req domain.CompleteSaleRequest) (domain.Sale, error) {
	if req.CustomerInfo != nil {
		customer := *req.CustomerInfo
		customer.Name = strings.TrimSpace(customer.Name)
		customer.Email = strings.TrimSpace(customer.Email)
		customer.Phone = strings.TrimSpace(customer.Phone)
		customer.Address = strings.TrimSpace(customer.Address)
		req.CustomerInfo = &customer
	}
	if err := validateStruct(req); err != nil {
		return domain.Sale{}, err
	}

	saleType := req.SaleType
	if saleType == "" {
		saleType = domain.SaleTypePOS
		if req.CustomerInfo != nil {
			saleType = domain.SaleTypeOnline
		}
	}

	sale, err := s.repo.CompleteSale(ctx, domain.Sale{
		ID:           xid.New("sale"),
		CustomerInfo: req.CustomerInfo,
		SaleType:     saleType,
		Status:       domain.SaleStatusCompleted,
		CreatedAt:    s.now(),
	})
	if err != nil {
		return domain.Sale{}, fmt.Errorf("complete sale: %w", err)
	}

	log.Info().Str("sale_id", sale.ID).Str("sale_type", string(sale.SaleType)).Int("items", len(sale.Items)).Str("total", sale.Total.StringFixed(2)).Msg("sale completed")
	return *sale, nil
}

func (s *Service) ListSales(ctx context.Context) ([]domain.Sale, error) {
	return s.repo.ListSales(ctx)
}

func (s *Service) RecentSales(ctx context.Context, limit int) ([]domain.Sale, error) {
	sales, err := s.repo.ListSales(ctx)
	if err != nil {
		return nil, err
	}
	return insight.RecentSales(sales, limit), nil
}

// GenerateAlerts recomputes the alert list from the catalog and replaces the
// stored one.
func (s *Service) GenerateAlerts(ctx context.Context) ([]domain.InventoryAlert, error) {
	products, err := s.repo.ListProducts(ctx)
	if err != nil {
		return nil, err
	}
	alerts := insight.BuildAlerts(products)
	if err := s.repo.ReplaceAlerts(ctx, alerts); err != nil {
		return nil, err
	}
	log.Debug().Int("alerts", len(alerts)).Msg("alerts regenerated")
	return alerts, nil
}

func (s *Service) ListAlerts(ctx context.Context) ([]domain.InventoryAlert, error) {
	return s.repo.ListAlerts(ctx)
}

func (s *Service) CriticalAlerts(ctx context.Context) ([]domain.InventoryAlert, error) {
	alerts, err := s.repo.ListAlerts(ctx)
	if err != nil {
		return nil, err
	}
	return insight.CriticalAlerts(alerts), nil
}

func (s *Service) DashboardStats(ctx context.Context) (domain.DashboardStats, error) {
	revision, err := s.repo.Revision(ctx)
	if err != nil {
		return domain.DashboardStats{}, err
	}
	return s.insight.Stats(ctx, revision, s.now(), s.snapshot)
}

func (s *Service) DashboardOverview(ctx context.Context) (domain.DashboardOverview, error) {
	stats, err := s.DashboardStats(ctx)
	if err != nil {
		return domain.DashboardOverview{}, err
	}
	snap, err := s.snapshot(ctx)
	if err != nil {
		return domain.DashboardOverview{}, err
	}
	critical, err := s.CriticalAlerts(ctx)
	if err != nil {
		return domain.DashboardOverview{}, err
	}

	return domain.DashboardOverview{
		Stats:          stats,
		RecentSales:    insight.RecentSales(snap.Sales, recentSalesLimit),
		TopProducts:    insight.TopProducts(snap.Products, snap.Sales, topProductsLimit),
		CriticalAlerts: critical,
	}, nil
}

func (s *Service) snapshot(ctx context.Context) (insight.Snapshot, error) {
	products, err := s.repo.ListProducts(ctx)
	if err != nil {
		return insight.Snapshot{}, err
	}
	batches, err := s.repo.ListBatches(ctx)
	if err != nil {
		return insight.Snapshot{}, err
	}
	sales, err := s.repo.ListSales(ctx)
	if err != nil {
		return insight.Snapshot{}, err
	}
	return insight.Snapshot{Products: products, Batches: batches, Sales: sales}, nil
}

func (s *Service) ListEmployees(ctx context.Context) ([]domain.Employee, error) {
	return s.repo.ListEmployees(ctx)
}

func (s *Service) Payslip(ctx context.Context, employeeID int) (domain.Payslip, error) {
	employees, err := s.repo.ListEmployees(ctx)
	if err != nil {
		return domain.Payslip{}, err
	}
	for _, e := range employees {
		if e.ID == employeeID {
			return domain.Payslip{Employee: e, NetSalary: e.NetSalary(), IssuedAt: s.now()}, nil
		}
	}
	return domain.Payslip{}, fmt.Errorf("employee %d: %w", employeeID, store.ErrNotFound)
}
