package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/frankss230/AFE-PLUS.2-sub001/internal/models"

	"go.uber.org/zap"
)

// ReadingsRepository 设备读数仓库（四张表，只追加）
type ReadingsRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewReadingsRepository 创建读数仓库
func NewReadingsRepository(db *sql.DB, logger *zap.Logger) *ReadingsRepository {
	return &ReadingsRepository{
		db:     db,
		logger: logger,
	}
}

// readingSelects 每种读数统一成相同的列，便于共用 scanReading
// 列顺序：reading_id, dependent_id, status, recorded_at, latitude, longitude, battery, distance_m, bpm, value, impact_x, impact_y, impact_z
var readingSelects = map[models.ReadingKind]string{
	models.ReadingKindLocation: `
		SELECT reading_id, dependent_id, status, recorded_at,
		       latitude, longitude, battery, distance_m,
		       NULL::int, NULL::float8, NULL::float8, NULL::float8, NULL::float8
		FROM location_readings`,
	models.ReadingKindHeartRate: `
		SELECT reading_id, dependent_id, status, recorded_at,
		       NULL::float8, NULL::float8, NULL::int, NULL::int,
		       bpm, NULL::float8, NULL::float8, NULL::float8, NULL::float8
		FROM heart_rate_readings`,
	models.ReadingKindTemperature: `
		SELECT reading_id, dependent_id, status, recorded_at,
		       NULL::float8, NULL::float8, NULL::int, NULL::int,
		       NULL::int, value, NULL::float8, NULL::float8, NULL::float8
		FROM temperature_readings`,
	models.ReadingKindFall: `
		SELECT reading_id, dependent_id, status, recorded_at,
		       latitude, longitude, NULL::int, NULL::int,
		       NULL::int, NULL::float8, impact_x, impact_y, impact_z
		FROM fall_readings`,
}

// CreateReading 按类型写入对应的读数表
func (r *ReadingsRepository) CreateReading(ctx context.Context, reading *models.Reading) error {
	var query string
	var args []interface{}

	switch reading.Kind {
	case models.ReadingKindLocation:
		query = `
			INSERT INTO location_readings (
				reading_id, dependent_id, latitude, longitude, battery, distance_m, status, recorded_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`
		args = []interface{}{
			reading.ReadingID, reading.DependentID, reading.Latitude, reading.Longitude,
			reading.Battery, reading.DistanceM, string(reading.Status), reading.RecordedAt,
		}
	case models.ReadingKindHeartRate:
		query = `
			INSERT INTO heart_rate_readings (
				reading_id, dependent_id, bpm, status, recorded_at
			) VALUES ($1, $2, $3, $4, $5)
		`
		args = []interface{}{
			reading.ReadingID, reading.DependentID, reading.BPM, string(reading.Status), reading.RecordedAt,
		}
	case models.ReadingKindTemperature:
		query = `
			INSERT INTO temperature_readings (
				reading_id, dependent_id, value, status, recorded_at
			) VALUES ($1, $2, $3, $4, $5)
		`
		args = []interface{}{
			reading.ReadingID, reading.DependentID, reading.Temperature, string(reading.Status), reading.RecordedAt,
		}
	case models.ReadingKindFall:
		query = `
			INSERT INTO fall_readings (
				reading_id, dependent_id, impact_x, impact_y, impact_z, latitude, longitude, status, recorded_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		`
		args = []interface{}{
			reading.ReadingID, reading.DependentID, reading.ImpactX, reading.ImpactY, reading.ImpactZ,
			reading.Latitude, reading.Longitude, string(reading.Status), reading.RecordedAt,
		}
	default:
		return fmt.Errorf("unsupported reading kind: %s", reading.Kind)
	}

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to insert %s reading: %w", reading.Kind, err)
	}
	return nil
}

// GetLatestReadings 每种类型最新的一条读数；没有数据的类型不出现在结果中
func (r *ReadingsRepository) GetLatestReadings(ctx context.Context, dependentID string) (map[models.ReadingKind]*models.Reading, error) {
	latest := make(map[models.ReadingKind]*models.Reading, len(models.StoredKinds))
	for _, kind := range models.StoredKinds {
		query := readingSelects[kind] + `
			WHERE dependent_id = $1
			ORDER BY recorded_at DESC
			LIMIT 1
		`
		reading, err := scanReading(kind, r.db.QueryRowContext(ctx, query, dependentID))
		if err != nil {
			if err == sql.ErrNoRows {
				continue
			}
			return nil, fmt.Errorf("failed to get latest %s reading: %w", kind, err)
		}
		latest[kind] = reading
	}
	return latest, nil
}

// ListReadings 时间段内某类读数，按时间升序（[from, to)）
func (r *ReadingsRepository) ListReadings(ctx context.Context, dependentID string, kind models.ReadingKind, from, to time.Time) ([]*models.Reading, error) {
	base, ok := readingSelects[kind]
	if !ok {
		return nil, fmt.Errorf("unsupported reading kind: %s", kind)
	}
	query := base + `
		WHERE dependent_id = $1
		  AND recorded_at >= $2
		  AND recorded_at < $3
		ORDER BY recorded_at ASC
	`

	rows, err := r.db.QueryContext(ctx, query, dependentID, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s readings: %w", kind, err)
	}
	defer rows.Close()

	var readings []*models.Reading
	for rows.Next() {
		reading, err := scanReading(kind, rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan %s reading: %w", kind, err)
		}
		readings = append(readings, reading)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate %s readings: %w", kind, err)
	}
	return readings, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanReading(kind models.ReadingKind, row rowScanner) (*models.Reading, error) {
	reading := &models.Reading{Kind: kind}
	var status string
	var lat, lng, value, x, y, z sql.NullFloat64
	var battery, distance, bpm sql.NullInt64

	if err := row.Scan(
		&reading.ReadingID,
		&reading.DependentID,
		&status,
		&reading.RecordedAt,
		&lat, &lng, &battery, &distance,
		&bpm, &value, &x, &y, &z,
	); err != nil {
		return nil, err
	}

	reading.Status = models.ReadingStatus(status)
	reading.Latitude, reading.Longitude = nullFloat(lat), nullFloat(lng)
	reading.Battery, reading.DistanceM = nullInt(battery), nullInt(distance)
	reading.BPM = nullInt(bpm)
	reading.Temperature = nullFloat(value)
	reading.ImpactX, reading.ImpactY, reading.ImpactZ = nullFloat(x), nullFloat(y), nullFloat(z)
	return reading, nil
}
