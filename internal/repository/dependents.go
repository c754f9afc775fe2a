package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/frankss230/AFE-PLUS.2-sub001/internal/models"

	"go.uber.org/zap"
)

// DependentsRepository 被监护人与报警阈值查询（只读）
type DependentsRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewDependentsRepository 创建被监护人仓库
func NewDependentsRepository(db *sql.DB, logger *zap.Logger) *DependentsRepository {
	return &DependentsRepository{
		db:     db,
		logger: logger,
	}
}

// GetDependent 获取启用中的被监护人；不存在或已停用返回 models.ErrDependentNotFound
func (r *DependentsRepository) GetDependent(ctx context.Context, dependentID string) (*models.Dependent, error) {
	query := `
		SELECT dependent_id, name, caregiver_id, is_active, created_at
		FROM dependents
		WHERE dependent_id = $1
		  AND is_active = TRUE
	`

	var d models.Dependent
	var caregiverID sql.NullString
	err := r.db.QueryRowContext(ctx, query, dependentID).Scan(
		&d.DependentID,
		&d.Name,
		&caregiverID,
		&d.IsActive,
		&d.CreatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("%w: dependent_id=%s", models.ErrDependentNotFound, dependentID)
		}
		return nil, fmt.Errorf("failed to get dependent: %w", err)
	}
	if caregiverID.Valid {
		d.CaregiverID = &caregiverID.String
	}
	return &d, nil
}

// GetAlertConfig 获取被监护人的报警阈值；没有配置行时返回 (nil, nil)
func (r *DependentsRepository) GetAlertConfig(ctx context.Context, dependentID string) (*models.AlertConfig, error) {
	query := `
		SELECT heart_rate_min, heart_rate_max, max_temperature,
		       geofence_lat, geofence_lng, radius_lv1, radius_lv2
		FROM alert_settings
		WHERE dependent_id = $1
	`

	var hrMin, hrMax, r1, r2 sql.NullInt64
	var maxTemp, lat, lng sql.NullFloat64
	err := r.db.QueryRowContext(ctx, query, dependentID).Scan(
		&hrMin, &hrMax, &maxTemp, &lat, &lng, &r1, &r2,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get alert settings: %w", err)
	}

	return &models.AlertConfig{
		DependentID:    dependentID,
		HeartRateMin:   nullInt(hrMin),
		HeartRateMax:   nullInt(hrMax),
		MaxTemperature: nullFloat(maxTemp),
		GeofenceLat:    nullFloat(lat),
		GeofenceLng:    nullFloat(lng),
		RadiusLv1:      nullInt(r1),
		RadiusLv2:      nullInt(r2),
	}, nil
}
