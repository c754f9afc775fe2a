package consumer

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	mqttcommon "github.com/frankss230/AFE-PLUS.2-sub001/common/mqtt"
	"github.com/frankss230/AFE-PLUS.2-sub001/internal/metrics"
	"github.com/frankss230/AFE-PLUS.2-sub001/internal/models"

	"go.uber.org/zap"
)

// Subscriber MQTT 订阅（common/mqtt.Client 实现）
type Subscriber interface {
	Subscribe(topic string, qos byte, handler mqttcommon.MessageHandler) error
	Unsubscribe(topics ...string) error
}

// IngestFunc 上报处理；返回 abnormal 仅用于日志
type IngestFunc func(ctx context.Context, dependentID string, kind models.ReadingKind, payload *models.DevicePayload) (bool, error)

// MQTTConsumer 设备上报 MQTT 消费者
// 主题格式: afe/device/{dependent_id}/{kind}，payload 与 HTTP body 相同
type MQTTConsumer struct {
	subscriber Subscriber
	ingest     IngestFunc
	topic      string
	qos        byte
	timeout    time.Duration
	metrics    *metrics.Metrics
	logger     *zap.Logger

	mu      sync.RWMutex
	baseCtx context.Context
}

// NewMQTTConsumer 创建 MQTT 消费者
func NewMQTTConsumer(
	subscriber Subscriber,
	ingest IngestFunc,
	topic string,
	qos byte,
	timeout time.Duration,
	m *metrics.Metrics,
	logger *zap.Logger,
) *MQTTConsumer {
	return &MQTTConsumer{
		subscriber: subscriber,
		ingest:     ingest,
		topic:      topic,
		qos:        qos,
		timeout:    timeout,
		metrics:    m,
		logger:     logger,
		baseCtx:    context.Background(),
	}
}

// Start 订阅设备主题并阻塞到 ctx 取消
func (c *MQTTConsumer) Start(ctx context.Context) error {
	c.mu.Lock()
	c.baseCtx = ctx
	c.mu.Unlock()

	if err := c.subscriber.Subscribe(c.topic, c.qos, c.handleMessage); err != nil {
		return fmt.Errorf("failed to subscribe to device topic: %w", err)
	}

	c.logger.Info("MQTT consumer started",
		zap.String("topic", c.topic),
	)

	<-ctx.Done()
	return nil
}

// Stop 取消订阅
func (c *MQTTConsumer) Stop() error {
	if err := c.subscriber.Unsubscribe(c.topic); err != nil {
		c.logger.Error("Failed to unsubscribe", zap.Error(err))
		return err
	}
	c.logger.Info("MQTT consumer stopped")
	return nil
}

// handleMessage 处理一条设备消息；返回的错误由 MQTT 客户端记录
func (c *MQTTConsumer) handleMessage(topic string, payload []byte) error {
	c.logger.Debug("Received MQTT message",
		zap.String("topic", topic),
		zap.Int("payload_size", len(payload)),
	)

	dependentID, kind, err := ParseDeviceTopic(topic)
	if err != nil {
		c.count("invalid_topic")
		return err
	}

	var p models.DevicePayload
	if err := json.Unmarshal(payload, &p); err != nil {
		c.count("invalid_payload")
		return fmt.Errorf("%w: %v", models.ErrInvalidPayload, err)
	}
	// 主题中的 dependent_id 为准
	p.DependentID = dependentID

	c.mu.RLock()
	ctx := c.baseCtx
	c.mu.RUnlock()
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	abnormal, err := c.ingest(ctx, dependentID, kind, &p)
	if err != nil {
		c.count("rejected")
		c.logger.Warn("Device reading rejected",
			zap.String("dependent_id", dependentID),
			zap.String("kind", string(kind)),
			zap.Error(err),
		)
		return fmt.Errorf("failed to ingest %s reading: %w", kind, err)
	}

	c.count("accepted")
	c.logger.Debug("Device reading accepted",
		zap.String("dependent_id", dependentID),
		zap.String("kind", string(kind)),
		zap.Bool("abnormal", abnormal),
	)
	return nil
}

func (c *MQTTConsumer) count(result string) {
	if c.metrics != nil {
		c.metrics.MQTTMessages.WithLabelValues(result).Inc()
	}
}

// ParseDeviceTopic 解析 afe/device/{dependent_id}/{kind}
func ParseDeviceTopic(topic string) (string, models.ReadingKind, error) {
	parts := strings.Split(topic, "/")
	if len(parts) != 4 || parts[0] != "afe" || parts[1] != "device" || parts[2] == "" {
		return "", "", fmt.Errorf("invalid topic format: %s", topic)
	}
	kind, ok := models.ParseReadingKind(parts[3])
	if !ok {
		return "", "", fmt.Errorf("unknown reading kind in topic: %s", topic)
	}
	return parts[2], kind, nil
}
