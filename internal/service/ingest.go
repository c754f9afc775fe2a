package service

import (
	"context"
	"fmt"
	"time"

	"github.com/frankss230/AFE-PLUS.2-sub001/internal/evaluator"
	"github.com/frankss230/AFE-PLUS.2-sub001/internal/metrics"
	"github.com/frankss230/AFE-PLUS.2-sub001/internal/models"

	"go.uber.org/zap"
)

// ReadingEvaluator 读数评估
type ReadingEvaluator interface {
	Evaluate(ctx context.Context, dependentID string, kind models.ReadingKind, payload *models.DevicePayload) (*evaluator.Evaluation, error)
}

// AlertDispatcher 报警发送
type AlertDispatcher interface {
	Dispatch(ctx context.Context, alert models.Alert) models.DispatchOutcome
}

// CaseOpener 开启紧急案例
type CaseOpener interface {
	Open(ctx context.Context, dependentID string, kind models.CaseKind, loc *models.GeoPoint) (*models.EmergencyCase, bool, error)
}

// LatestWriter 最新读数缓存写入
type LatestWriter interface {
	Put(ctx context.Context, reading *models.Reading) error
}

// IngestResult 一次上报的处理结果
// HTTP / MQTT 只根据 error 判断是否接受，不向设备暴露发送结果
type IngestResult struct {
	Reading     *models.Reading          `json:"reading,omitempty"`
	Case        *models.EmergencyCase    `json:"case,omitempty"`
	CaseCreated bool                     `json:"case_created"`
	Abnormal    bool                     `json:"abnormal"`
	Outcomes    []models.DispatchOutcome `json:"-"`
}

// IngestService 设备上报处理：评估落库 -> 缓存 -> 开案 -> 发送通知
type IngestService struct {
	evaluator  ReadingEvaluator
	dependents evaluator.DependentStore
	cases      CaseOpener
	dispatcher AlertDispatcher
	latest     LatestWriter
	metrics    *metrics.Metrics
	logger     *zap.Logger
	now        func() time.Time
}

// NewIngestService 创建上报处理服务；latest 可为 nil
func NewIngestService(
	eval ReadingEvaluator,
	dependents evaluator.DependentStore,
	cases CaseOpener,
	dispatcher AlertDispatcher,
	latest LatestWriter,
	m *metrics.Metrics,
	logger *zap.Logger,
) *IngestService {
	return &IngestService{
		evaluator:  eval,
		dependents: dependents,
		cases:      cases,
		dispatcher: dispatcher,
		latest:     latest,
		metrics:    m,
		logger:     logger,
		now:        time.Now,
	}
}

// Ingest 处理一条设备上报
// 读数 / 案例写入失败返回 error；通知、缓存失败只记录
func (s *IngestService) Ingest(ctx context.Context, dependentID string, kind models.ReadingKind, payload *models.DevicePayload) (*IngestResult, error) {
	if kind == models.ReadingKindSOS {
		return s.ingestSOS(ctx, dependentID, payload)
	}

	eval, err := s.evaluator.Evaluate(ctx, dependentID, kind, payload)
	if err != nil {
		return nil, err
	}
	reading := eval.Reading
	if s.metrics != nil {
		s.metrics.ReadingsIngested.WithLabelValues(string(kind), string(reading.Status)).Inc()
	}
	s.cacheLatest(ctx, reading)

	result := &IngestResult{Reading: reading, Abnormal: eval.Abnormal}
	alerts := eval.Alerts

	if kind == models.ReadingKindFall {
		var loc *models.GeoPoint
		if reading.Latitude != nil && reading.Longitude != nil {
			loc = &models.GeoPoint{Lat: *reading.Latitude, Lng: *reading.Longitude}
		}
		ec, created, err := s.cases.Open(ctx, dependentID, models.CaseKindFall, loc)
		if err != nil {
			return nil, fmt.Errorf("failed to open fall case: %w", err)
		}
		result.Case, result.CaseCreated = ec, created
		alerts = append(alerts, evaluator.EmergencyAlert(eval.Dependent.Name, ec, reading.RecordedAt))
	}

	result.Outcomes = s.dispatchAll(ctx, alerts)
	return result, nil
}

// ingestSOS 求救按键不落读数表，直接开案并通知（每次按键都通知）
func (s *IngestService) ingestSOS(ctx context.Context, dependentID string, payload *models.DevicePayload) (*IngestResult, error) {
	if dependentID == "" {
		return nil, fmt.Errorf("%w: dependent_id is required", models.ErrInvalidPayload)
	}
	var loc *models.GeoPoint
	if payload != nil {
		if (payload.Latitude == nil) != (payload.Longitude == nil) {
			return nil, fmt.Errorf("%w: latitude and longitude are required together", models.ErrInvalidPayload)
		}
		loc = payload.Location()
		if loc != nil && !loc.Valid() {
			return nil, fmt.Errorf("%w: coordinates out of range", models.ErrInvalidPayload)
		}
	}

	dependent, err := s.dependents.GetDependent(ctx, dependentID)
	if err != nil {
		return nil, err
	}

	ec, created, err := s.cases.Open(ctx, dependentID, models.CaseKindSOS, loc)
	if err != nil {
		return nil, fmt.Errorf("failed to open sos case: %w", err)
	}
	if s.metrics != nil {
		s.metrics.ReadingsIngested.WithLabelValues(string(models.ReadingKindSOS), string(ec.Status)).Inc()
	}

	at := s.now().UTC()
	if payload != nil {
		at = payload.RecordedAt(at)
	}
	outcomes := s.dispatchAll(ctx, []models.Alert{evaluator.EmergencyAlert(dependent.Name, ec, at)})

	return &IngestResult{
		Case:        ec,
		CaseCreated: created,
		Abnormal:    true,
		Outcomes:    outcomes,
	}, nil
}

func (s *IngestService) dispatchAll(ctx context.Context, alerts []models.Alert) []models.DispatchOutcome {
	if len(alerts) == 0 {
		return nil
	}
	outcomes := make([]models.DispatchOutcome, 0, len(alerts))
	for _, alert := range alerts {
		outcomes = append(outcomes, s.dispatcher.Dispatch(ctx, alert))
	}
	return outcomes
}

// cacheLatest 缓存失败不影响上报（继续处理，不中断）
func (s *IngestService) cacheLatest(ctx context.Context, reading *models.Reading) {
	if s.latest == nil {
		return
	}
	if err := s.latest.Put(ctx, reading); err != nil {
		if s.metrics != nil {
			s.metrics.SoftFailures.WithLabelValues("latest_cache").Inc()
		}
		s.logger.Warn("Failed to cache latest reading",
			zap.String("dependent_id", reading.DependentID),
			zap.String("kind", string(reading.Kind)),
			zap.Error(err),
		)
	}
}
