package insight

import (
	"context"
	"math"
	"slices"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"chocolatier/backend/internal/cache"
	"chocolatier/backend/internal/domain"
	"chocolatier/backend/internal/xid"
)

// Snapshot is the set of source collections the dashboard is derived from.
type Snapshot struct {
	Products []domain.Product
	Batches  []domain.ProductionBatch
	Sales    []domain.Sale
}

type Engine struct {
	cache    cache.DashboardCache
	cacheTTL time.Duration
	instance string
}

func NewEngine(cacheStore cache.DashboardCache, cacheTTL time.Duration) *Engine {
	if cacheStore == nil {
		cacheStore = cache.NoopDashboardCache{}
	}
	if cacheTTL <= 0 {
		cacheTTL = 30 * time.Second
	}

	return &Engine{
		cache:    cacheStore,
		cacheTTL: cacheTTL,
		instance: xid.New(""),
	}
}

// Stats returns the dashboard figures for the store state identified by
// revision. load is only called on a cache miss.
func (e *Engine) Stats(ctx context.Context, revision uint64, now time.Time, load func(ctx context.Context) (Snapshot, error)) (domain.DashboardStats, error) {
	key := e.cacheKey(revision, now)
	if cached, ok, err := e.cache.Get(ctx, key); err == nil && ok {
		return *cached, nil
	} else if err != nil {
		log.Warn().Err(err).Str("key", key).Msg("dashboard cache read failed")
	}

	snap, err := load(ctx)
	if err != nil {
		return domain.DashboardStats{}, err
	}

	stats := ComputeStats(snap, now)
	if err := e.cache.Set(ctx, key, &stats, e.cacheTTL); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("dashboard cache write failed")
	}
	return stats, nil
}

// cacheKey ties a snapshot to one engine instance, one store revision and one
// local day, so a cached value can never outlive the data it came from.
func (e *Engine) cacheKey(revision uint64, now time.Time) string {
	return cache.DashboardKey(e.instance, revision, StartOfDay(now))
}

func StartOfDay(now time.Time) time.Time {
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
}

func ComputeStats(snap Snapshot, now time.Time) domain.DashboardStats {
	midnight := StartOfDay(now)

	stats := domain.DashboardStats{
		TotalSales:    decimal.Zero,
		DailySales:    decimal.Zero,
		TotalProducts: len(snap.Products),
	}
	for _, sale := range snap.Sales {
		stats.TotalSales = stats.TotalSales.Add(sale.Total)
		if !sale.CreatedAt.Before(midnight) {
			stats.DailySales = stats.DailySales.Add(sale.Total)
		}
	}
	for _, p := range snap.Products {
		if p.Stock <= p.MinStock {
			stats.LowStockItems++
		}
	}
	for _, b := range snap.Batches {
		if b.Status != domain.BatchCompleted {
			stats.PendingProduction++
		}
	}
	return stats
}

// BuildAlerts derives stock alerts from the catalog, in catalog order.
func BuildAlerts(products []domain.Product) []domain.InventoryAlert {
	alerts := make([]domain.InventoryAlert, 0, len(products))
	for _, p := range products {
		alert := domain.InventoryAlert{
			ProductID:    p.ID,
			ProductName:  p.Name,
			CurrentStock: p.Stock,
			MinStock:     p.MinStock,
		}
		switch {
		case p.Stock == 0:
			alert.ID = p.ID + "-out"
			alert.Type = domain.AlertOutOfStock
			alert.Severity = domain.SeverityHigh
		case p.Stock <= p.MinStock:
			alert.ID = p.ID + "-low"
			alert.Type = domain.AlertLowStock
			alert.Severity = domain.SeverityMedium
			// stock < minStock*0.5, kept in integers
			if 2*p.Stock < p.MinStock {
				alert.Severity = domain.SeverityHigh
			}
		default:
			continue
		}
		alerts = append(alerts, alert)
	}
	return alerts
}

func CriticalAlerts(alerts []domain.InventoryAlert) []domain.InventoryAlert {
	critical := make([]domain.InventoryAlert, 0, len(alerts))
	for _, alert := range alerts {
		if alert.Severity == domain.SeverityHigh {
			critical = append(critical, alert)
		}
	}
	return critical
}

// TopProducts ranks catalog products by units sold. Ties keep catalog order.
func TopProducts(products []domain.Product, sales []domain.Sale, limit int) []domain.TopProduct {
	sold := make(map[string]int, len(products))
	revenue := make(map[string]decimal.Decimal, len(products))
	for _, sale := range sales {
		if sale.Status != domain.SaleStatusCompleted {
			continue
		}
		for _, item := range sale.Items {
			sold[item.ProductID] += item.Quantity
			revenue[item.ProductID] = revenue[item.ProductID].Add(item.Subtotal)
		}
	}

	ranked := make([]domain.TopProduct, 0, len(products))
	for _, p := range products {
		ranked = append(ranked, domain.TopProduct{
			ProductID:    p.ID,
			ProductName:  p.Name,
			Category:     p.Category,
			SoldQuantity: sold[p.ID],
			Revenue:      revenue[p.ID],
		})
	}
	slices.SortStableFunc(ranked, func(a, b domain.TopProduct) int {
		return b.SoldQuantity - a.SoldQuantity
	})
	if limit > 0 && len(ranked) > limit {
		ranked = ranked[:limit]
	}
	return ranked
}

// RecentSales returns up to limit sales, newest first.
func RecentSales(sales []domain.Sale, limit int) []domain.Sale {
	if limit < 1 || limit > len(sales) {
		limit = len(sales)
	}
	recent := make([]domain.Sale, 0, limit)
	for i := len(sales) - 1; i >= 0 && len(recent) < limit; i-- {
		recent = append(recent, sales[i])
	}
	return recent
}

func SummarizeBatches(batches []domain.ProductionBatch) domain.BatchSummary {
	var summary domain.BatchSummary
	for _, b := range batches {
		switch b.Status {
		case domain.BatchPending:
			summary.Pending++
		case domain.BatchInProgress:
			summary.InProgress++
		case domain.BatchCompleted:
			summary.Completed++
		}
	}
	return summary
}

// ExpiringBatches lists completed batches (finished goods on the shelf) that
// expire within the given number of days, oldest expiration first. Batches
// already past their date are included and flagged as expired.
func ExpiringBatches(batches []domain.ProductionBatch, products []domain.Product, now time.Time, withinDays int) []domain.ExpiringBatch {
	names := make(map[string]string, len(products))
	for _, p := range products {
		names[p.ID] = p.Name
	}

	expiring := make([]domain.ExpiringBatch, 0)
	for _, b := range batches {
		if b.Status != domain.BatchCompleted {
			continue
		}
		days := DaysUntil(now, b.ExpirationDate)
		if days > withinDays {
			continue
		}
		expiring = append(expiring, domain.ExpiringBatch{
			Batch:               b,
			ProductName:         names[b.ProductID],
			DaysUntilExpiration: days,
			Expired:             b.ExpirationDate.Before(now),
		})
	}
	slices.SortStableFunc(expiring, func(a, b domain.ExpiringBatch) int {
		return a.Batch.ExpirationDate.Compare(b.Batch.ExpirationDate)
	})
	return expiring
}

// DaysUntil rounds the remaining time up to whole days.
func DaysUntil(now time.Time, target time.Time) int {
	return int(math.Ceil(target.Sub(now).Hours() / 24))
}

// FilterProducts does a case-insensitive match on name, description and
// category. A blank term returns the catalog unchanged.
func FilterProducts(products []domain.Product, term string) []domain.Product {
	term = strings.ToLower(strings.TrimSpace(term))
	if term == "" {
		return products
	}
	matched := make([]domain.Product, 0, len(products))
	for _, p := range products {
		if strings.Contains(strings.ToLower(p.Name), term) ||
			strings.Contains(strings.ToLower(p.Description), term) ||
			strings.Contains(strings.ToLower(string(p.Category)), term) {
			matched = append(matched, p)
		}
	}
	return matched
}
