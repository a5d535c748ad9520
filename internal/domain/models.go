package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type Category string

const (
	CategoryTabletas Category = "tabletas"
	CategoryBombones Category = "bombones"
	CategoryTrufas   Category = "trufas"
	CategoryOtros    Category = "otros"
)

func (c Category) Valid() bool {
	switch c {
	case CategoryTabletas, CategoryBombones, CategoryTrufas, CategoryOtros:
		return true
	}
	return false
}

type Product struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Category    Category        `json:"category"`
	Price       decimal.Decimal `json:"price"`
	Stock       int             `json:"stock"`
	MinStock    int             `json:"min_stock"`
	Image       string          `json:"image,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

type ProductCreateRequest struct {
	Name        string          `json:"name" validate:"required"`
	Description string          `json:"description"`
	Category    Category        `json:"category" validate:"required,oneof=tabletas bombones trufas otros"`
	Price       decimal.Decimal `json:"price" validate:"gte=0"`
	Stock       int             `json:"stock" validate:"gte=0"`
	MinStock    int             `json:"min_stock" validate:"gte=0"`
	Image       string          `json:"image,omitempty" validate:"omitempty,url"`
}

type ProductUpdateRequest struct {
	Name        *string          `json:"name,omitempty"`
	Description *string          `json:"description,omitempty"`
	Category    *Category        `json:"category,omitempty"`
	Price       *decimal.Decimal `json:"price,omitempty"`
	Stock       *int             `json:"stock,omitempty"`
	MinStock    *int             `json:"min_stock,omitempty"`
	Image       *string          `json:"image,omitempty"`
}

type StockAdjustmentRequest struct {
	Delta int `json:"delta"`
}

type StockStatus string

const (
	StockStatusOut StockStatus = "out_of_stock"
	StockStatusLow StockStatus = "low_stock"
	StockStatusOK  StockStatus = "in_stock"
)

// StockStatusOf classifies a product the same way alert generation does,
// without the severity split.
func StockStatusOf(p Product) StockStatus {
	switch {
	case p.Stock == 0:
		return StockStatusOut
	case p.Stock <= p.MinStock:
		return StockStatusLow
	default:
		return StockStatusOK
	}
}

type CartItem struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

type CartAddRequest struct {
	ProductID string `json:"product_id" validate:"required"`
	Quantity  int    `json:"quantity" validate:"gt=0"`
}

type CartLine struct {
	ProductID   string          `json:"product_id"`
	ProductName string          `json:"product_name,omitempty"`
	Quantity    int             `json:"quantity"`
	Price       decimal.Decimal `json:"price"`
	Subtotal    decimal.Decimal `json:"subtotal"`
	Available   int             `json:"available"`
	Missing     bool            `json:"missing,omitempty"`
}

type CartSummary struct {
	Lines []CartLine      `json:"lines"`
	Items int             `json:"items"`
	Total decimal.Decimal `json:"total"`
}

type CustomerInfo struct {
	Name    string `json:"name" validate:"required"`
	Email   string `json:"email,omitempty" validate:"omitempty,email"`
	Phone   string `json:"phone,omitempty"`
	Address string `json:"address,omitempty"`
}

type SaleType string

const (
	SaleTypeOnline SaleType = "online"
	SaleTypePOS    SaleType = "pos"
)

type SaleStatus string

const (
	SaleStatusPending   SaleStatus = "pending"
	SaleStatusCompleted SaleStatus = "completed"
	SaleStatusCancelled SaleStatus = "cancelled"
)

type SaleItem struct {
	ProductID   string          `json:"product_id"`
	ProductName string          `json:"product_name"`
	Quantity    int             `json:"quantity"`
	Price       decimal.Decimal `json:"price"`
	Subtotal    decimal.Decimal `json:"subtotal"`
}

type Sale struct {
	ID           string          `json:"id"`
	Items        []SaleItem      `json:"items"`
	Total        decimal.Decimal `json:"total"`
	CustomerInfo *CustomerInfo   `json:"customer_info,omitempty"`
	SaleType     SaleType        `json:"sale_type"`
	Status       SaleStatus      `json:"status"`
	CreatedAt    time.Time       `json:"created_at"`
}

// CompleteSaleRequest carries the checkout choices. An empty SaleType is
// inferred from the presence of customer info.
type CompleteSaleRequest struct {
	SaleType     SaleType      `json:"sale_type,omitempty" validate:"omitempty,oneof=online pos"`
	CustomerInfo *CustomerInfo `json:"customer_info,omitempty"`
}

type AlertType string

const (
	AlertLowStock     AlertType = "low_stock"
	AlertOutOfStock   AlertType = "out_of_stock"
	AlertExpiringSoon AlertType = "expiring_soon"
)

type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

type InventoryAlert struct {
	ID           string    `json:"id"`
	ProductID    string    `json:"product_id"`
	ProductName  string    `json:"product_name"`
	CurrentStock int       `json:"current_stock"`
	MinStock     int       `json:"min_stock"`
	Type         AlertType `json:"type"`
	Severity     Severity  `json:"severity"`
}

type DashboardStats struct {
	TotalSales        decimal.Decimal `json:"total_sales"`
	DailySales        decimal.Decimal `json:"daily_sales"`
	TotalProducts     int             `json:"total_products"`
	LowStockItems     int             `json:"low_stock_items"`
	PendingProduction int             `json:"pending_production"`
}

type TopProduct struct {
	ProductID    string          `json:"product_id"`
	ProductName  string          `json:"product_name"`
	Category     Category        `json:"category"`
	SoldQuantity int             `json:"sold_quantity"`
	Revenue      decimal.Decimal `json:"revenue"`
}

type DashboardOverview struct {
	Stats          DashboardStats   `json:"stats"`
	RecentSales    []Sale           `json:"recent_sales"`
	TopProducts    []TopProduct     `json:"top_products"`
	CriticalAlerts []InventoryAlert `json:"critical_alerts"`
}

type Employee struct {
	ID         int             `json:"id"`
	Name       string          `json:"name"`
	Position   string          `json:"position"`
	BaseSalary decimal.Decimal `json:"base_salary"`
	Deductions decimal.Decimal `json:"deductions"`
	Bonuses    decimal.Decimal `json:"bonuses"`
}

type Payslip struct {
	Employee  Employee        `json:"employee"`
	NetSalary decimal.Decimal `json:"net_salary"`
	IssuedAt  time.Time       `json:"issued_at"`
}

// NetSalary is base salary minus deductions plus bonuses.
func (e Employee) NetSalary() decimal.Decimal {
	return e.BaseSalary.Sub(e.Deductions).Add(e.Bonuses)
}
