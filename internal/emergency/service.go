package emergency

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/frankss230/AFE-PLUS.2-sub001/internal/events"
	"github.com/frankss230/AFE-PLUS.2-sub001/internal/metrics"
	"github.com/frankss230/AFE-PLUS.2-sub001/internal/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// CaseStore 紧急案例持久化
// 状态转换方法在条件不满足（或案例不存在）时返回 nil 案例且不报错
type CaseStore interface {
	OpenCase(ctx context.Context, ec *models.EmergencyCase) (*models.EmergencyCase, bool, error)
	AcceptCase(ctx context.Context, caseID, responderID string, from []models.CaseStatus, at time.Time) (*models.EmergencyCase, models.CaseStatus, error)
	UpdateResponderLocation(ctx context.Context, caseID string, lat, lng float64, at time.Time) (*models.EmergencyCase, error)
	CloseCase(ctx context.Context, caseID string, at time.Time) (*models.EmergencyCase, models.CaseStatus, error)
	GetCase(ctx context.Context, caseID string) (*models.EmergencyCase, error)
	GetActiveCaseForDependent(ctx context.Context, dependentID string) (*models.EmergencyCase, error)
	ListActiveCases(ctx context.Context) ([]*models.EmergencyCase, error)
}

// Service 紧急案例状态机
// DETECTED -> ACKNOWLEDGED -> RESOLVED，DETECTED -> RESOLVED（管理员直接结案）
type Service struct {
	store   CaseStore
	policy  models.AcceptPolicy
	metrics *metrics.Metrics
	emitter *events.Emitter
	logger  *zap.Logger
	now     func() time.Time
}

// NewService 创建状态机
func NewService(store CaseStore, policy models.AcceptPolicy, m *metrics.Metrics, emitter *events.Emitter, logger *zap.Logger) *Service {
	if policy == "" {
		policy = models.AcceptFirstWins
	}
	return &Service{
		store:   store,
		policy:  policy,
		metrics: m,
		emitter: emitter,
		logger:  logger,
		now:     time.Now,
	}
}

// Open 开启案例；已有未结案的案例时只更新被监护人最后位置
// 返回的 bool 表示是否新建
func (s *Service) Open(ctx context.Context, dependentID string, kind models.CaseKind, loc *models.GeoPoint) (*models.EmergencyCase, bool, error) {
	ec := &models.EmergencyCase{
		CaseID:      uuid.New().String(),
		DependentID: dependentID,
		Kind:        kind,
		Status:      models.CaseDetected,
		CreatedAt:   s.now().UTC(),
	}
	if loc != nil {
		if !loc.Valid() {
			return nil, false, fmt.Errorf("%w: coordinates out of range", models.ErrInvalidPayload)
		}
		ec.Latitude, ec.Longitude = &loc.Lat, &loc.Lng
	}

	out, created, err := s.store.OpenCase(ctx, ec)
	if err != nil {
		return nil, false, err
	}

	if created {
		s.recordTransition("", models.CaseDetected)
		s.emitter.Emit(ctx, events.TypeCaseOpened, dependentID, out)
		s.logger.Info("Emergency case opened",
			zap.String("case_id", out.CaseID),
			zap.String("dependent_id", dependentID),
			zap.String("kind", string(kind)),
		)
	} else {
		s.emitter.Emit(ctx, events.TypeCaseUpdated, dependentID, out)
		s.logger.Info("Emergency case already active, location updated",
			zap.String("case_id", out.CaseID),
			zap.String("dependent_id", dependentID),
			zap.String("status", string(out.Status)),
		)
	}
	return out, created, nil
}

// Accept 救援人接单
// first_wins：只有 DETECTED 可接单；overwrite：ACKNOWLEDGED 也可被后来者覆盖
func (s *Service) Accept(ctx context.Context, caseID, responderID string) (*models.EmergencyCase, error) {
	if err := checkCaseID(caseID); err != nil {
		return nil, err
	}
	if responderID == "" {
		return nil, fmt.Errorf("%w: responder_id is required", models.ErrInvalidPayload)
	}

	from := []models.CaseStatus{models.CaseDetected}
	if s.policy == models.AcceptOverwrite {
		from = append(from, models.CaseAcknowledged)
	}

	out, prev, err := s.store.AcceptCase(ctx, caseID, responderID, from, s.now().UTC())
	if err != nil {
		return nil, err
	}
	if out == nil {
		return nil, s.rejected(ctx, caseID, "accept")
	}

	s.recordTransition(prev, models.CaseAcknowledged)
	s.emitter.Emit(ctx, events.TypeCaseAcknowledged, out.DependentID, out)
	s.logger.Info("Emergency case accepted",
		zap.String("case_id", caseID),
		zap.String("responder_id", responderID),
		zap.String("from", string(prev)),
	)
	return out, nil
}

// Track 更新救援人位置，不改变状态
func (s *Service) Track(ctx context.Context, caseID string, loc models.GeoPoint) (*models.EmergencyCase, error) {
	if err := checkCaseID(caseID); err != nil {
		return nil, err
	}
	if !loc.Valid() {
		return nil, fmt.Errorf("%w: coordinates out of range", models.ErrInvalidPayload)
	}

	out, err := s.store.UpdateResponderLocation(ctx, caseID, loc.Lat, loc.Lng, s.now().UTC())
	if err != nil {
		return nil, err
	}
	if out == nil {
		return nil, s.rejected(ctx, caseID, "track")
	}

	s.emitter.Emit(ctx, events.TypeCaseTracked, out.DependentID, out)
	return out, nil
}

// Close 结案；RESOLVED 后不可再变更
func (s *Service) Close(ctx context.Context, caseID string) (*models.EmergencyCase, error) {
	if err := checkCaseID(caseID); err != nil {
		return nil, err
	}
	out, prev, err := s.store.CloseCase(ctx, caseID, s.now().UTC())
	if err != nil {
		return nil, err
	}
	if out == nil {
		return nil, s.rejected(ctx, caseID, "close")
	}

	s.recordTransition(prev, models.CaseResolved)
	s.emitter.Emit(ctx, events.TypeCaseResolved, out.DependentID, out)
	s.logger.Info("Emergency case resolved",
		zap.String("case_id", caseID),
		zap.String("from", string(prev)),
	)
	return out, nil
}

// Get 查询案例
func (s *Service) Get(ctx context.Context, caseID string) (*models.EmergencyCase, error) {
	if err := checkCaseID(caseID); err != nil {
		return nil, err
	}
	return s.store.GetCase(ctx, caseID)
}

// ActiveForDependent 被监护人当前未结案的案例，没有时返回 nil
func (s *Service) ActiveForDependent(ctx context.Context, dependentID string) (*models.EmergencyCase, error) {
	return s.store.GetActiveCaseForDependent(ctx, dependentID)
}

// ListActive 所有未结案案例
func (s *Service) ListActive(ctx context.Context) ([]*models.EmergencyCase, error) {
	return s.store.ListActiveCases(ctx)
}

// checkCaseID case_id 是 UUID；格式不对的 id 不可能存在，不下发到数据库
func checkCaseID(caseID string) error {
	if _, err := uuid.Parse(caseID); err != nil {
		return fmt.Errorf("%w: case_id=%s", models.ErrCaseNotFound, caseID)
	}
	return nil
}

// rejected 条件更新没有命中时，重新读取状态判定原因
func (s *Service) rejected(ctx context.Context, caseID, op string) error {
	current, err := s.store.GetCase(ctx, caseID)
	if err != nil {
		if errors.Is(err, models.ErrCaseNotFound) {
			return err
		}
		return fmt.Errorf("failed to read case after rejected %s: %w", op, err)
	}

	s.logger.Info("Emergency case transition rejected",
		zap.String("case_id", caseID),
		zap.String("op", op),
		zap.String("status", string(current.Status)),
	)
	if current.Status.Terminal() {
		return fmt.Errorf("%w: case_id=%s", models.ErrCaseAlreadyClosed, caseID)
	}
	return fmt.Errorf("%w: cannot %s case in status %s", models.ErrInvalidTransition, op, current.Status)
}

func (s *Service) recordTransition(from, to models.CaseStatus) {
	if s.metrics == nil {
		return
	}
	label := string(from)
	if label == "" {
		label = "NONE"
	}
	s.metrics.CaseTransitions.WithLabelValues(label, string(to)).Inc()
}
