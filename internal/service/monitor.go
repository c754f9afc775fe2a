package service

import (
	"context"

	"github.com/frankss230/AFE-PLUS.2-sub001/internal/evaluator"
	"github.com/frankss230/AFE-PLUS.2-sub001/internal/metrics"
	"github.com/frankss230/AFE-PLUS.2-sub001/internal/models"

	"go.uber.org/zap"
)

// LatestSource 最新读数来源（Redis 缓存 / 数据库）
type LatestSource interface {
	GetLatest(ctx context.Context, dependentID string) (map[models.ReadingKind]*models.Reading, error)
}

// LatestReadingStore 数据库中的最新读数
type LatestReadingStore interface {
	GetLatestReadings(ctx context.Context, dependentID string) (map[models.ReadingKind]*models.Reading, error)
}

// ActiveCaseFinder 当前未结案案例
type ActiveCaseFinder interface {
	ActiveForDependent(ctx context.Context, dependentID string) (*models.EmergencyCase, error)
}

// DependentStatus 监控视图：最新读数 + 未结案案例
type DependentStatus struct {
	DependentID string                                 `json:"dependent_id"`
	Name        string                                 `json:"name"`
	Readings    map[models.ReadingKind]*models.Reading `json:"readings"`
	ActiveCase  *models.EmergencyCase                  `json:"active_case,omitempty"`
	Source      string                                 `json:"source"` // cache | database | mixed
}

// MonitorService 监控查询
type MonitorService struct {
	dependents evaluator.DependentStore
	cache      LatestSource
	readings   LatestReadingStore
	cases      ActiveCaseFinder
	metrics    *metrics.Metrics
	logger     *zap.Logger
}

// NewMonitorService 创建监控查询服务；cache 可为 nil
func NewMonitorService(
	dependents evaluator.DependentStore,
	cache LatestSource,
	readings LatestReadingStore,
	cases ActiveCaseFinder,
	m *metrics.Metrics,
	logger *zap.Logger,
) *MonitorService {
	return &MonitorService{
		dependents: dependents,
		cache:      cache,
		readings:   readings,
		cases:      cases,
		metrics:    m,
		logger:     logger,
	}
}

// GetStatus 优先读缓存；缓存缺少的类型（过期、未写入或缓存不可用）回源数据库补齐
func (s *MonitorService) GetStatus(ctx context.Context, dependentID string) (*DependentStatus, error) {
	dependent, err := s.dependents.GetDependent(ctx, dependentID)
	if err != nil {
		return nil, err
	}

	status := &DependentStatus{DependentID: dependentID, Name: dependent.Name}

	cached := s.fromCache(ctx, dependentID)
	if hasAllKinds(cached) {
		status.Readings, status.Source = cached, "cache"
	} else {
		stored, err := s.readings.GetLatestReadings(ctx, dependentID)
		if err != nil {
			return nil, err
		}
		status.Readings, status.Source = mergeLatest(cached, stored)
	}

	status.ActiveCase, err = s.cases.ActiveForDependent(ctx, dependentID)
	if err != nil {
		return nil, err
	}
	return status, nil
}

func (s *MonitorService) fromCache(ctx context.Context, dependentID string) map[models.ReadingKind]*models.Reading {
	if s.cache == nil {
		return nil
	}
	latest, err := s.cache.GetLatest(ctx, dependentID)
	if err != nil {
		if s.metrics != nil {
			s.metrics.SoftFailures.WithLabelValues("latest_cache").Inc()
		}
		s.logger.Warn("Latest cache unavailable, falling back to database",
			zap.String("dependent_id", dependentID),
			zap.Error(err),
		)
		return nil
	}
	return latest
}

func hasAllKinds(latest map[models.ReadingKind]*models.Reading) bool {
	for _, kind := range models.StoredKinds {
		if latest[kind] == nil {
			return false
		}
	}
	return true
}

// mergeLatest 按类型合并缓存和数据库结果，同类型取较新的一条
func mergeLatest(cached, stored map[models.ReadingKind]*models.Reading) (map[models.ReadingKind]*models.Reading, string) {
	merged := make(map[models.ReadingKind]*models.Reading, len(models.StoredKinds))
	fromCache, fromDB := 0, 0
	for _, kind := range models.StoredKinds {
		c, d := cached[kind], stored[kind]
		switch {
		case c != nil && (d == nil || !d.RecordedAt.After(c.RecordedAt)):
			merged[kind] = c
			fromCache++
		case d != nil:
			merged[kind] = d
			fromDB++
		}
	}

	switch {
	case fromCache > 0 && fromDB > 0:
		return merged, "mixed"
	case fromCache > 0:
		return merged, "cache"
	default:
		return merged, "database"
	}
}
