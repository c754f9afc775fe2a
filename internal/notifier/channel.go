package notifier

import (
	"context"

	"github.com/frankss230/AFE-PLUS.2-sub001/internal/models"

	"go.uber.org/zap"
)

// Channel 通知渠道：把渲染好的报警发给一个地址
// 投递延迟与重试由渠道自己负责；本服务只做一次尝试
type Channel interface {
	Send(ctx context.Context, address string, alert models.Alert) error
}

// LogChannel 未配置推送凭证时使用，只写日志
type LogChannel struct {
	logger *zap.Logger
}

// NewLogChannel 创建日志渠道
func NewLogChannel(logger *zap.Logger) *LogChannel {
	return &LogChannel{logger: logger}
}

func (c *LogChannel) Send(_ context.Context, address string, alert models.Alert) error {
	c.logger.Info("Alert notification (log channel)",
		zap.String("to", address),
		zap.String("dependent_id", alert.DependentID),
		zap.String("kind", string(alert.Kind)),
		zap.String("message", alert.Message),
		zap.String("value", alert.Value),
	)
	return nil
}
