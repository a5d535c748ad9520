package domain

import (
	"fmt"
	"strings"
	"time"
	"unicode"
)

type BatchStatus string

const (
	BatchPending    BatchStatus = "pending"
	BatchInProgress BatchStatus = "in-progress"
	BatchCompleted  BatchStatus = "completed"
)

func (s BatchStatus) rank() int {
	switch s {
	case BatchPending:
		return 0
	case BatchInProgress:
		return 1
	case BatchCompleted:
		return 2
	}
	return -1
}

func (s BatchStatus) Valid() bool {
	return s.rank() >= 0
}

// CanAdvanceTo reports whether next is reachable from s without moving
// backwards. Staying in the same status counts as reachable.
func (s BatchStatus) CanAdvanceTo(next BatchStatus) bool {
	if !s.Valid() || !next.Valid() {
		return false
	}
	return next.rank() >= s.rank()
}

type ProductionBatch struct {
	ID             string      `json:"id"`
	ProductID      string      `json:"product_id"`
	BatchNumber    string      `json:"batch_number"`
	Quantity       int         `json:"quantity"`
	ProductionDate time.Time   `json:"production_date"`
	ExpirationDate time.Time   `json:"expiration_date"`
	Status         BatchStatus `json:"status"`
	Notes          string      `json:"notes,omitempty"`
	CreatedAt      time.Time   `json:"created_at"`
}

type BatchCreateRequest struct {
	ProductID      string    `json:"product_id" validate:"required"`
	Quantity       int       `json:"quantity" validate:"gt=0"`
	ProductionDate time.Time `json:"production_date" validate:"required"`
	ExpirationDate time.Time `json:"expiration_date" validate:"required"`
	Notes          string    `json:"notes,omitempty"`
}

type BatchUpdateRequest struct {
	Quantity       *int         `json:"quantity,omitempty"`
	ProductionDate *time.Time   `json:"production_date,omitempty"`
	ExpirationDate *time.Time   `json:"expiration_date,omitempty"`
	Status         *BatchStatus `json:"status,omitempty"`
	Notes          *string      `json:"notes,omitempty"`
}

type BatchSummary struct {
	Pending    int `json:"pending"`
	InProgress int `json:"in_progress"`
	Completed  int `json:"completed"`
}

type ExpiringBatch struct {
	Batch               ProductionBatch `json:"batch"`
	ProductName         string          `json:"product_name,omitempty"`
	DaysUntilExpiration int             `json:"days_until_expiration"`
	Expired             bool            `json:"expired"`
}

// BatchNumber renders PREFIX-YYMMDD-SEQ, e.g. TAB-240305-002.
func BatchNumber(productName string, createdAt time.Time, seq int) string {
	return fmt.Sprintf("%s-%s-%03d", batchPrefix(productName), createdAt.Format("060102"), seq)
}

func batchPrefix(name string) string {
	runes := make([]rune, 0, 3)
	for _, r := range strings.TrimSpace(name) {
		if len(runes) == 3 {
			break
		}
		runes = append(runes, unicode.ToUpper(r))
	}
	if len(runes) == 0 {
		return "PRD"
	}
	return string(runes)
}
