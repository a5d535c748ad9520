package cache

import (
	"context"
	"fmt"
	"time"

	"chocolatier/backend/internal/domain"
)

// DashboardKey identifies one dashboard snapshot: the engine instance that
// computed it, the store revision it read and the local day it covers.
func DashboardKey(instance string, revision uint64, day time.Time) string {
	return fmt.Sprintf("dashboard:%s:r%d:%s", instance, revision, day.Format("2006-01-02"))
}

type DashboardCache interface {
	Get(ctx context.Context, key string) (*domain.DashboardStats, bool, error)
	Set(ctx context.Context, key string, value *domain.DashboardStats, ttl time.Duration) error
}

type NoopDashboardCache struct{}

func (NoopDashboardCache) Get(_ context.Context, _ string) (*domain.DashboardStats, bool, error) {
	return nil, false, nil
}

func (NoopDashboardCache) Set(_ context.Context, _ string, _ *domain.DashboardStats, _ time.Duration) error {
	return nil
}
