package notifier

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/frankss230/AFE-PLUS.2-sub001/internal/events"
	"github.com/frankss230/AFE-PLUS.2-sub001/internal/metrics"
	"github.com/frankss230/AFE-PLUS.2-sub001/internal/models"

	"go.uber.org/zap"
)

// RecipientResolver 收件人解析
type RecipientResolver interface {
	Resolve(ctx context.Context, dependentID string) (*models.Recipient, error)
}

// Dispatcher 报警发送：解析收件人，调用渠道一次，返回结果
// 所有失败都是软失败，不会返回 error
type Dispatcher struct {
	resolver RecipientResolver
	channel  Channel
	timeout  time.Duration
	metrics  *metrics.Metrics
	emitter  *events.Emitter
	logger   *zap.Logger
}

// NewDispatcher 创建发送器；timeout <= 0 表示只受调用方 context 约束
func NewDispatcher(
	resolver RecipientResolver,
	channel Channel,
	timeout time.Duration,
	m *metrics.Metrics,
	emitter *events.Emitter,
	logger *zap.Logger,
) *Dispatcher {
	return &Dispatcher{
		resolver: resolver,
		channel:  channel,
		timeout:  timeout,
		metrics:  m,
		emitter:  emitter,
		logger:   logger,
	}
}

// Dispatch 发送一条报警
func (d *Dispatcher) Dispatch(ctx context.Context, alert models.Alert) models.DispatchOutcome {
	start := time.Now()
	sendCtx := ctx
	if d.timeout > 0 {
		var cancel context.CancelFunc
		sendCtx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	outcome := d.dispatch(sendCtx, alert)

	if d.metrics != nil {
		d.metrics.Dispatches.WithLabelValues(string(alert.Kind), string(outcome.Status)).Inc()
		d.metrics.DispatchDuration.Observe(time.Since(start).Seconds())
	}
	// 发送超时不连带事件；发布时长由 Emitter 自己限制
	d.emitter.Emit(ctx, events.TypeAlertDispatched, alert.DependentID, dispatchRecord{
		Alert:  alert,
		Status: outcome.Status,
	})
	return outcome
}

type dispatchRecord struct {
	Alert  models.Alert          `json:"alert"`
	Status models.DispatchStatus `json:"status"`
}

func (d *Dispatcher) dispatch(ctx context.Context, alert models.Alert) models.DispatchOutcome {
	rcpt, err := d.resolver.Resolve(ctx, alert.DependentID)
	if err != nil {
		if errors.Is(err, models.ErrRecipientNotFound) {
			d.logger.Warn("No recipient for alert, skipped",
				zap.String("dependent_id", alert.DependentID),
				zap.String("kind", string(alert.Kind)),
			)
		} else {
			d.logger.Error("Failed to resolve recipient, skipped",
				zap.String("dependent_id", alert.DependentID),
				zap.String("kind", string(alert.Kind)),
				zap.Error(err),
			)
		}
		return models.DispatchOutcome{Status: models.DispatchSkippedNoRecipient, Err: err}
	}

	if err := d.channel.Send(ctx, rcpt.Address, alert); err != nil {
		d.logger.Error("Failed to send alert notification",
			zap.String("dependent_id", alert.DependentID),
			zap.String("kind", string(alert.Kind)),
			zap.String("recipient_source", string(rcpt.Source)),
			zap.Error(err),
		)
		return models.DispatchOutcome{
			Status:    models.DispatchChannelError,
			Recipient: rcpt,
			Err:       fmt.Errorf("%w: %v", models.ErrChannelUnavailable, err),
		}
	}

	d.logger.Info("Alert notification sent",
		zap.String("dependent_id", alert.DependentID),
		zap.String("kind", string(alert.Kind)),
		zap.String("recipient_source", string(rcpt.Source)),
	)
	return models.DispatchOutcome{Status: models.DispatchSent, Recipient: rcpt}
}
