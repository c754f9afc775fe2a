package evaluator

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/frankss230/AFE-PLUS.2-sub001/internal/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DependentStore 被监护人查询
type DependentStore interface {
	// GetDependent 不存在或已停用时返回 models.ErrDependentNotFound
	GetDependent(ctx context.Context, dependentID string) (*models.Dependent, error)
}

// ConfigStore 报警阈值查询
type ConfigStore interface {
	// GetAlertConfig 未配置时返回 (nil, nil)
	GetAlertConfig(ctx context.Context, dependentID string) (*models.AlertConfig, error)
}

// ReadingStore 读数写入（只追加）
type ReadingStore interface {
	CreateReading(ctx context.Context, reading *models.Reading) error
}

// Evaluation 单条读数的评估结果
type Evaluation struct {
	Dependent *models.Dependent
	Reading   *models.Reading
	Abnormal  bool
	Alerts    []models.Alert
}

// Evaluator 遥测评估器：分类、落库，不负责发送通知
type Evaluator struct {
	dependents DependentStore
	configs    ConfigStore
	readings   ReadingStore
	defaults   models.AlertDefaults
	logger     *zap.Logger
	now        func() time.Time
}

// NewEvaluator 创建评估器
func NewEvaluator(
	dependents DependentStore,
	configs ConfigStore,
	readings ReadingStore,
	defaults models.AlertDefaults,
	logger *zap.Logger,
) *Evaluator {
	return &Evaluator{
		dependents: dependents,
		configs:    configs,
		readings:   readings,
		defaults:   defaults,
		logger:     logger,
		now:        time.Now,
	}
}

// Evaluate 评估并持久化一条读数
func (e *Evaluator) Evaluate(ctx context.Context, dependentID string, kind models.ReadingKind, payload *models.DevicePayload) (*Evaluation, error) {
	if kind == models.ReadingKindSOS {
		return nil, fmt.Errorf("%w: sos is not a stored reading", models.ErrInvalidPayload)
	}

	// 先校验，避免无效数据触发数据库查询
	reading, err := buildReading(dependentID, kind, payload, e.now())
	if err != nil {
		return nil, err
	}

	dependent, err := e.dependents.GetDependent(ctx, dependentID)
	if err != nil {
		return nil, err
	}

	cfg, err := e.configs.GetAlertConfig(ctx, dependentID)
	if err != nil {
		return nil, fmt.Errorf("failed to load alert config: %w", err)
	}
	eff := e.defaults.Effective(cfg)

	var alerts []models.Alert
	switch kind {
	case models.ReadingKindHeartRate:
		reading.Status = ClassifyHeartRate(*reading.BPM, eff)
		if reading.Status != models.StatusNormal {
			alerts = append(alerts, heartRateAlert(dependent.Name, reading, eff))
		}
	case models.ReadingKindTemperature:
		reading.Status = ClassifyTemperature(*reading.Temperature, eff)
		if reading.Status != models.StatusNormal {
			alerts = append(alerts, temperatureAlert(dependent.Name, reading, eff))
		}
	case models.ReadingKindLocation:
		reading.Status, reading.DistanceM = classifyLocation(reading, eff)
		if reading.Status != models.StatusNormal {
			alerts = append(alerts, geofenceAlert(dependent.Name, reading, eff))
		}
		if reading.Battery != nil && *reading.Battery < eff.LowBatteryPercent {
			alerts = append(alerts, lowBatteryAlert(dependent.Name, reading))
		}
	case models.ReadingKindFall:
		// 跌倒只做候选判定，由照护人人工确认
		reading.Status = models.StatusUnconfirmed
	}

	if err := e.readings.CreateReading(ctx, reading); err != nil {
		return nil, err
	}

	abnormal := len(alerts) > 0 || kind == models.ReadingKindFall
	e.logger.Debug("Reading evaluated",
		zap.String("dependent_id", dependentID),
		zap.String("kind", string(kind)),
		zap.String("status", string(reading.Status)),
		zap.Bool("abnormal", abnormal),
	)

	return &Evaluation{
		Dependent: dependent,
		Reading:   reading,
		Abnormal:  abnormal,
		Alerts:    alerts,
	}, nil
}

// ClassifyHeartRate 心率分类：低于下限 / 高于上限为异常
func ClassifyHeartRate(bpm int, eff models.EffectiveConfig) models.ReadingStatus {
	switch {
	case bpm < eff.HeartRateMin:
		return models.StatusAbnormalLow
	case bpm > eff.HeartRateMax:
		return models.StatusAbnormalHigh
	default:
		return models.StatusNormal
	}
}

// ClassifyTemperature 体温只判断上限，低温不报警
func ClassifyTemperature(value float64, eff models.EffectiveConfig) models.ReadingStatus {
	if value > eff.MaxTemperature {
		return models.StatusAbnormalHigh
	}
	return models.StatusNormal
}

// classifyLocation 计算到安全区中心的距离（四舍五入到米）并分类
// 未设置安全区中心时视为正常，距离为空
func classifyLocation(r *models.Reading, eff models.EffectiveConfig) (models.ReadingStatus, *int) {
	if eff.Geofence == nil {
		return models.StatusNormal, nil
	}
	d := RoundMeters(Haversine(*eff.Geofence, models.GeoPoint{Lat: *r.Latitude, Lng: *r.Longitude}))
	return ClassifyDistance(d, eff.RadiusLv1, eff.RadiusLv2), &d
}

// buildReading 校验上报字段并构建读数
func buildReading(dependentID string, kind models.ReadingKind, p *models.DevicePayload, now time.Time) (*models.Reading, error) {
	if dependentID == "" {
		return nil, fmt.Errorf("%w: dependent_id is required", models.ErrInvalidPayload)
	}
	if p == nil {
		return nil, fmt.Errorf("%w: payload is required", models.ErrInvalidPayload)
	}

	r := &models.Reading{
		ReadingID:   uuid.New().String(),
		DependentID: dependentID,
		Kind:        kind,
		RecordedAt:  p.RecordedAt(now),
	}

	switch kind {
	case models.ReadingKindLocation:
		if err := validateCoordinates(p, true); err != nil {
			return nil, err
		}
		if p.Battery != nil && (*p.Battery < 0 || *p.Battery > 100) {
			return nil, fmt.Errorf("%w: battery out of range: %d", models.ErrInvalidPayload, *p.Battery)
		}
		r.Latitude, r.Longitude, r.Battery = p.Latitude, p.Longitude, p.Battery
	case models.ReadingKindHeartRate:
		if p.BPM == nil || *p.BPM <= 0 {
			return nil, fmt.Errorf("%w: bpm is required", models.ErrInvalidPayload)
		}
		r.BPM = p.BPM
	case models.ReadingKindTemperature:
		if p.Temperature == nil {
			return nil, fmt.Errorf("%w: temperature is required", models.ErrInvalidPayload)
		}
		r.Temperature = p.Temperature
	case models.ReadingKindFall:
		if p.X == nil || p.Y == nil || p.Z == nil {
			return nil, fmt.Errorf("%w: x, y, z are required", models.ErrInvalidPayload)
		}
		if err := validateCoordinates(p, false); err != nil {
			return nil, err
		}
		r.ImpactX, r.ImpactY, r.ImpactZ = p.X, p.Y, p.Z
		r.Latitude, r.Longitude = p.Latitude, p.Longitude
	default:
		return nil, fmt.Errorf("%w: unknown reading kind %q", models.ErrInvalidPayload, kind)
	}

	return r, nil
}

func validateCoordinates(p *models.DevicePayload, required bool) error {
	if p.Latitude == nil || p.Longitude == nil {
		if required || p.Latitude != nil || p.Longitude != nil {
			return fmt.Errorf("%w: latitude and longitude are required together", models.ErrInvalidPayload)
		}
		return nil
	}
	if !p.Location().Valid() {
		return fmt.Errorf("%w: coordinates out of range", models.ErrInvalidPayload)
	}
	return nil
}

// RoundMeters 四舍五入到整米
func RoundMeters(d float64) int {
	return int(math.Round(d))
}
