package service

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/frankss230/AFE-PLUS.2-sub001/common/database"
	mqttcommon "github.com/frankss230/AFE-PLUS.2-sub001/common/mqtt"
	rediscommon "github.com/frankss230/AFE-PLUS.2-sub001/common/redis"
	"github.com/frankss230/AFE-PLUS.2-sub001/internal/cache"
	"github.com/frankss230/AFE-PLUS.2-sub001/internal/config"
	"github.com/frankss230/AFE-PLUS.2-sub001/internal/consumer"
	"github.com/frankss230/AFE-PLUS.2-sub001/internal/emergency"
	"github.com/frankss230/AFE-PLUS.2-sub001/internal/evaluator"
	"github.com/frankss230/AFE-PLUS.2-sub001/internal/events"
	"github.com/frankss230/AFE-PLUS.2-sub001/internal/metrics"
	"github.com/frankss230/AFE-PLUS.2-sub001/internal/models"
	"github.com/frankss230/AFE-PLUS.2-sub001/internal/notifier"
	"github.com/frankss230/AFE-PLUS.2-sub001/internal/recipient"
	"github.com/frankss230/AFE-PLUS.2-sub001/internal/repository"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// GuardianService 报警服务（整合各层）
type GuardianService struct {
	config      *config.Config
	db          *sql.DB
	redisClient *redis.Client
	mqttClient  *mqttcommon.Client
	publisher   events.Publisher
	logger      *zap.Logger

	Metrics  *metrics.Metrics
	Ingest   *IngestService
	Cases    *emergency.Service
	Monitor  *MonitorService
	consumer *consumer.MQTTConsumer
}

// NewGuardianService 创建报警服务
func NewGuardianService(cfg *config.Config, logger *zap.Logger) (*GuardianService, error) {
	// 1. 连接数据库
	db, err := database.NewPostgresDB(&cfg.Database)
	if err != nil {
		return nil, err
	}

	// 2. 连接 Redis
	redisClient := rediscommon.NewRedisClient(&cfg.Redis)
	if err := rediscommon.Ping(context.Background(), redisClient); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	m := metrics.New(nil)

	// 3. 事件流：Redis Stream，配置了 Kafka 时同时写 Kafka
	publishers := events.Multi{
		events.NewRedisStreamPublisher(redisClient, cfg.Cache.AlertStream, cfg.Cache.AlertStreamLen),
	}
	if cfg.Kafka.Enabled() {
		publishers = append(publishers, events.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic))
		logger.Info("Kafka event sink enabled",
			zap.Strings("brokers", cfg.Kafka.Brokers),
			zap.String("topic", cfg.Kafka.Topic),
		)
	}
	emitter := events.NewEmitter(publishers, cfg.Alarm.DispatchTimeout, logger, m.SoftFailures.WithLabelValues("event_stream"))

	// 4. Repository 层
	dependentsRepo := repository.NewDependentsRepository(db, logger)
	readingsRepo := repository.NewReadingsRepository(db, logger)
	recipientRepo := repository.NewRecipientRepository(db, logger)
	casesRepo := repository.NewEmergencyCasesRepository(db, logger)

	// 5. 评估 / 通知 / 案例
	eval := evaluator.NewEvaluator(dependentsRepo, dependentsRepo, readingsRepo, cfg.Alarm.Defaults, logger)

	var channel notifier.Channel
	if cfg.Line.ChannelToken != "" {
		channel = notifier.NewLineChannel(cfg.Line.BaseURL, cfg.Line.ChannelToken, logger)
	} else {
		logger.Warn("LINE_CHANNEL_TOKEN not set, alerts will only be logged")
		channel = notifier.NewLogChannel(logger)
	}
	dispatcher := notifier.NewDispatcher(
		recipient.NewResolver(recipientRepo, logger),
		channel,
		cfg.Alarm.DispatchTimeout,
		m,
		emitter,
		logger,
	)

	cases := emergency.NewService(casesRepo, cfg.Alarm.AcceptPolicy, m, emitter, logger)
	latest := cache.NewLatestCache(redisClient, cfg.Cache.LatestKeyPrefix, cfg.Cache.LatestTTL, logger)

	ingest := NewIngestService(eval, dependentsRepo, cases, dispatcher, latest, m, logger)
	monitor := NewMonitorService(dependentsRepo, latest, readingsRepo, cases, m, logger)

	s := &GuardianService{
		config:      cfg,
		db:          db,
		redisClient: redisClient,
		publisher:   publishers,
		logger:      logger,
		Metrics:     m,
		Ingest:      ingest,
		Cases:       cases,
		Monitor:     monitor,
	}

	// 6. MQTT 设备上报（可选）
	if cfg.MQTT.Enabled {
		mqttClient, err := mqttcommon.NewClient(&cfg.MQTT, logger)
		if err != nil {
			s.Stop()
			return nil, err
		}
		s.mqttClient = mqttClient
		s.consumer = consumer.NewMQTTConsumer(
			mqttClient,
			s.IngestDevice,
			cfg.Alarm.DeviceTopic,
			cfg.MQTT.QoS,
			cfg.Alarm.DispatchTimeout*2,
			m,
			logger,
		)
	}

	return s, nil
}

// IngestDevice 适配 MQTT 消费者的上报入口
func (s *GuardianService) IngestDevice(ctx context.Context, dependentID string, kind models.ReadingKind, payload *models.DevicePayload) (bool, error) {
	result, err := s.Ingest.Ingest(ctx, dependentID, kind, payload)
	if err != nil {
		return false, err
	}
	return result.Abnormal, nil
}

// DB 数据库连接（导出工具使用）
func (s *GuardianService) DB() *sql.DB {
	return s.db
}

// Start 启动服务；未启用 MQTT 时阻塞到 ctx 取消
func (s *GuardianService) Start(ctx context.Context) error {
	s.logger.Info("Starting guardian alarm service",
		zap.Bool("mqtt_enabled", s.consumer != nil),
		zap.String("accept_policy", string(s.config.Alarm.AcceptPolicy)),
	)

	if s.consumer == nil {
		<-ctx.Done()
		return nil
	}
	if err := s.consumer.Start(ctx); err != nil {
		return fmt.Errorf("failed to start mqtt consumer: %w", err)
	}
	return nil
}

// Stop 停止服务
func (s *GuardianService) Stop() error {
	s.logger.Info("Stopping guardian alarm service")

	if s.consumer != nil {
		_ = s.consumer.Stop()
	}
	if s.mqttClient != nil {
		s.mqttClient.Disconnect()
	}

	if err := s.publisher.Close(); err != nil {
		s.logger.Error("Failed to close event publisher",
			zap.Error(err),
		)
	}

	// 关闭数据库连接
	if err := s.db.Close(); err != nil {
		s.logger.Error("Failed to close database",
			zap.Error(err),
		)
	}

	// 关闭 Redis 连接
	if err := s.redisClient.Close(); err != nil {
		s.logger.Error("Failed to close redis",
			zap.Error(err),
		)
	}

	return nil
}
