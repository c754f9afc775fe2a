package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/frankss230/AFE-PLUS.2-sub001/internal/models"

	"github.com/lib/pq"
	"go.uber.org/zap"
)

// EmergencyCasesRepository 紧急案例仓库
// 状态转换都是单条带条件的 UPDATE（compare-and-swap），条件不满足时返回 (nil, "", nil)，由调用方判定原因
type EmergencyCasesRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewEmergencyCasesRepository 创建紧急案例仓库
func NewEmergencyCasesRepository(db *sql.DB, logger *zap.Logger) *EmergencyCasesRepository {
	return &EmergencyCasesRepository{
		db:     db,
		logger: logger,
	}
}

const caseColumns = `
	c.case_id, c.dependent_id, c.kind, c.status,
	c.latitude, c.longitude,
	c.responder_id, c.responder_lat, c.responder_lng,
	c.created_at, c.updated_at, c.acknowledged_at, c.resolved_at`

// OpenCase 开启案例；该被监护人已有未结案的案例时只更新最后位置
// 依赖部分唯一索引 (dependent_id) WHERE status <> 'RESOLVED'
func (r *EmergencyCasesRepository) OpenCase(ctx context.Context, ec *models.EmergencyCase) (*models.EmergencyCase, bool, error) {
	query := `
		INSERT INTO emergency_cases AS c (
			case_id, dependent_id, kind, status, latitude, longitude, created_at, updated_at
		) VALUES ($1, $2, $3, 'DETECTED', $4, $5, $6, $6)
		ON CONFLICT (dependent_id) WHERE status <> 'RESOLVED'
		DO UPDATE SET
			latitude   = COALESCE(EXCLUDED.latitude, c.latitude),
			longitude  = COALESCE(EXCLUDED.longitude, c.longitude),
			updated_at = EXCLUDED.updated_at
		RETURNING ` + caseColumns + `, (c.xmax = 0) AS created
	`

	var created bool
	out, err := scanCase(r.db.QueryRowContext(ctx, query,
		ec.CaseID, ec.DependentID, string(ec.Kind), ec.Latitude, ec.Longitude, ec.CreatedAt,
	), &created)
	if err != nil {
		return nil, false, fmt.Errorf("failed to open emergency case: %w", err)
	}
	return out, created, nil
}

// AcceptCase 接单：仅当当前状态在 from 中时生效，清空救援人位置
func (r *EmergencyCasesRepository) AcceptCase(ctx context.Context, caseID, responderID string, from []models.CaseStatus, at time.Time) (*models.EmergencyCase, models.CaseStatus, error) {
	query := `
		UPDATE emergency_cases AS c
		SET status          = 'ACKNOWLEDGED',
		    responder_id    = $2,
		    responder_lat   = NULL,
		    responder_lng   = NULL,
		    acknowledged_at = $3,
		    updated_at      = $3
		FROM (
			SELECT case_id, status AS prev_status
			FROM emergency_cases
			WHERE case_id = $1
			FOR UPDATE
		) AS p
		WHERE c.case_id = p.case_id
		  AND c.status = ANY($4)
		RETURNING ` + caseColumns + `, p.prev_status
	`
	return r.transition(ctx, "accept", query, caseID, responderID, at, pq.Array(statusStrings(from)))
}

// UpdateResponderLocation 更新救援人实时位置，只对 ACKNOWLEDGED 生效
func (r *EmergencyCasesRepository) UpdateResponderLocation(ctx context.Context, caseID string, lat, lng float64, at time.Time) (*models.EmergencyCase, error) {
	query := `
		UPDATE emergency_cases AS c
		SET responder_lat = $2,
		    responder_lng = $3,
		    updated_at    = $4
		WHERE c.case_id = $1
		  AND c.status = 'ACKNOWLEDGED'
		RETURNING ` + caseColumns + `
	`

	out, err := scanCase(r.db.QueryRowContext(ctx, query, caseID, lat, lng, at))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to update responder location: %w", err)
	}
	return out, nil
}

// CloseCase 结案：DETECTED / ACKNOWLEDGED -> RESOLVED
func (r *EmergencyCasesRepository) CloseCase(ctx context.Context, caseID string, at time.Time) (*models.EmergencyCase, models.CaseStatus, error) {
	query := `
		UPDATE emergency_cases AS c
		SET status      = 'RESOLVED',
		    resolved_at = $2,
		    updated_at  = $2
		FROM (
			SELECT case_id, status AS prev_status
			FROM emergency_cases
			WHERE case_id = $1
			FOR UPDATE
		) AS p
		WHERE c.case_id = p.case_id
		  AND c.status IN ('DETECTED', 'ACKNOWLEDGED')
		RETURNING ` + caseColumns + `, p.prev_status
	`
	return r.transition(ctx, "close", query, caseID, at)
}

func (r *EmergencyCasesRepository) transition(ctx context.Context, op, query string, args ...interface{}) (*models.EmergencyCase, models.CaseStatus, error) {
	var prev string
	out, err := scanCase(r.db.QueryRowContext(ctx, query, args...), &prev)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, "", nil
		}
		return nil, "", fmt.Errorf("failed to %s emergency case: %w", op, err)
	}
	return out, models.CaseStatus(prev), nil
}

// GetCase 按 case_id 查询；不存在返回 models.ErrCaseNotFound
func (r *EmergencyCasesRepository) GetCase(ctx context.Context, caseID string) (*models.EmergencyCase, error) {
	query := `SELECT ` + caseColumns + ` FROM emergency_cases c WHERE c.case_id = $1`

	out, err := scanCase(r.db.QueryRowContext(ctx, query, caseID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("%w: case_id=%s", models.ErrCaseNotFound, caseID)
		}
		return nil, fmt.Errorf("failed to get emergency case: %w", err)
	}
	return out, nil
}

// GetActiveCaseForDependent 被监护人当前未结案的案例；没有返回 (nil, nil)
func (r *EmergencyCasesRepository) GetActiveCaseForDependent(ctx context.Context, dependentID string) (*models.EmergencyCase, error) {
	query := `
		SELECT ` + caseColumns + `
		FROM emergency_cases c
		WHERE c.dependent_id = $1
		  AND c.status <> 'RESOLVED'
	`

	out, err := scanCase(r.db.QueryRowContext(ctx, query, dependentID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get active emergency case: %w", err)
	}
	return out, nil
}

// ListActiveCases 所有未结案案例，最新的在前
func (r *EmergencyCasesRepository) ListActiveCases(ctx context.Context) ([]*models.EmergencyCase, error) {
	query := `
		SELECT ` + caseColumns + `
		FROM emergency_cases c
		WHERE c.status <> 'RESOLVED'
		ORDER BY c.created_at DESC
	`
	return r.list(ctx, query)
}

// ListCases 被监护人在时间段内开启的案例（[from, to)），用于导出
func (r *EmergencyCasesRepository) ListCases(ctx context.Context, dependentID string, from, to time.Time) ([]*models.EmergencyCase, error) {
	query := `
		SELECT ` + caseColumns + `
		FROM emergency_cases c
		WHERE c.dependent_id = $1
		  AND c.created_at >= $2
		  AND c.created_at < $3
		ORDER BY c.created_at ASC
	`
	return r.list(ctx, query, dependentID, from, to)
}

func (r *EmergencyCasesRepository) list(ctx context.Context, query string, args ...interface{}) ([]*models.EmergencyCase, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list emergency cases: %w", err)
	}
	defer rows.Close()

	var cases []*models.EmergencyCase
	for rows.Next() {
		ec, err := scanCase(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan emergency case: %w", err)
		}
		cases = append(cases, ec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate emergency cases: %w", err)
	}
	return cases, nil
}

// scanCase 扫描 caseColumns，extra 接收追加在末尾的列
func scanCase(row rowScanner, extra ...interface{}) (*models.EmergencyCase, error) {
	var ec models.EmergencyCase
	var kind, status string
	var lat, lng, rLat, rLng sql.NullFloat64
	var responderID sql.NullString
	var ackAt, resolvedAt sql.NullTime

	dest := []interface{}{
		&ec.CaseID, &ec.DependentID, &kind, &status,
		&lat, &lng,
		&responderID, &rLat, &rLng,
		&ec.CreatedAt, &ec.UpdatedAt, &ackAt, &resolvedAt,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}

	ec.Kind = models.CaseKind(kind)
	ec.Status = models.CaseStatus(status)
	ec.Latitude, ec.Longitude = nullFloat(lat), nullFloat(lng)
	ec.ResponderID = nullString(responderID)
	ec.ResponderLat, ec.ResponderLng = nullFloat(rLat), nullFloat(rLng)
	ec.AcknowledgedAt = nullTime(ackAt)
	ec.ResolvedAt = nullTime(resolvedAt)
	return &ec, nil
}

func statusStrings(statuses []models.CaseStatus) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}
