package events

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// 事件类型
const (
	TypeAlertDispatched  = "alert.dispatched"
	TypeCaseOpened       = "case.opened"
	TypeCaseUpdated      = "case.updated"
	TypeCaseAcknowledged = "case.acknowledged"
	TypeCaseTracked      = "case.tracked"
	TypeCaseResolved     = "case.resolved"
)

// Event 报警 / 案例事件
type Event struct {
	Type        string      `json:"type"`
	DependentID string      `json:"dependent_id"`
	Data        interface{} `json:"data"`
	At          time.Time   `json:"at"`
}

// Publisher 事件发布
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
	Close() error
}

// Multi 依次发布到所有下游，错误合并返回
type Multi []Publisher

func (m Multi) Publish(ctx context.Context, ev Event) error {
	var errs []error
	for _, p := range m {
		if err := p.Publish(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m Multi) Close() error {
	var errs []error
	for _, p := range m {
		if err := p.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Emitter 发布失败只记录日志和计数，不影响主流程
type Emitter struct {
	pub      Publisher
	timeout  time.Duration
	logger   *zap.Logger
	failures prometheus.Counter
	now      func() time.Time
}

// NewEmitter 创建事件发射器；failures 可为 nil
// 单次发布最多等待 timeout（<= 0 表示只受调用方 deadline 约束）
func NewEmitter(pub Publisher, timeout time.Duration, logger *zap.Logger, failures prometheus.Counter) *Emitter {
	return &Emitter{
		pub:      pub,
		timeout:  timeout,
		logger:   logger,
		failures: failures,
		now:      time.Now,
	}
}

// Emit 发布事件（nil Emitter 直接忽略）
func (e *Emitter) Emit(ctx context.Context, eventType, dependentID string, data interface{}) {
	if e == nil || e.pub == nil {
		return
	}
	ev := Event{
		Type:        eventType,
		DependentID: dependentID,
		Data:        data,
		At:          e.now().UTC(),
	}
	pubCtx, cancel := e.publishContext(ctx)
	defer cancel()
	if err := e.pub.Publish(pubCtx, ev); err != nil {
		if e.failures != nil {
			e.failures.Inc()
		}
		e.logger.Warn("Failed to publish event",
			zap.String("type", eventType),
			zap.String("dependent_id", dependentID),
			zap.Error(err),
		)
	}
}

// publishContext 调用方取消不影响事件发布，但 deadline 仍然生效，并且不超过 timeout
func (e *Emitter) publishContext(ctx context.Context) (context.Context, context.CancelFunc) {
	deadline, ok := ctx.Deadline()
	if e.timeout > 0 {
		if limit := time.Now().Add(e.timeout); !ok || limit.Before(deadline) {
			deadline, ok = limit, true
		}
	}
	base := context.WithoutCancel(ctx)
	if !ok {
		return base, func() {}
	}
	return context.WithDeadline(base, deadline)
}
