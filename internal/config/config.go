package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	commoncfg "github.com/frankss230/AFE-PLUS.2-sub001/common/config"
	"github.com/frankss230/AFE-PLUS.2-sub001/internal/models"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config 报警服务配置
type Config struct {
	HTTP struct {
		Addr string
	}
	Database commoncfg.DatabaseConfig
	Redis    commoncfg.RedisConfig
	MQTT     commoncfg.MQTTConfig
	Kafka    commoncfg.KafkaConfig

	// 报警服务特定配置
	Alarm struct {
		Defaults        models.AlertDefaults
		DispatchTimeout time.Duration       // 单次通知发送的超时时间
		AcceptPolicy    models.AcceptPolicy // 并发接单策略
		DeviceTopic     string              // MQTT 设备上报主题，如 "afe/device/+/+"
	}

	// Redis 缓存 / 事件流
	Cache struct {
		LatestKeyPrefix string // 最新读数缓存键前缀，如 "afe:dependent:"
		LatestTTL       time.Duration
		AlertStream     string // 报警事件流
		AlertStreamLen  int64  // 事件流近似最大长度
	}

	Line struct {
		BaseURL      string
		ChannelToken string // 为空时使用日志通道
	}

	Log struct {
		Level  string
		Format string
	}
}

// Load 加载配置（.env 可选，环境变量优先）
func Load() (*Config, error) {
	// .env 不存在时忽略
	_ = godotenv.Load()

	cfg := &Config{}
	cfg.HTTP.Addr = getEnv("HTTP_ADDR", ":8080")

	cfg.Database.Host = "localhost"
	cfg.Database.Port = 5432
	cfg.Database.User = "postgres"
	cfg.Database.Password = "postgres"
	cfg.Database.Database = "afe"
	cfg.Database.SSLMode = "disable"
	cfg.Database.MaxConns = 20
	cfg.Database.MaxIdle = 5
	cfg.Database.LoadFromEnv("DB")

	cfg.Redis.Addr = "localhost:6379"
	cfg.Redis.LoadFromEnv("REDIS")

	cfg.MQTT.Broker = "tcp://localhost:1883"
	cfg.MQTT.ClientID = "afe-alarm"
	cfg.MQTT.QoS = 1
	cfg.MQTT.LoadFromEnv("MQTT")

	cfg.Kafka.Topic = "afe-alerts"
	cfg.Kafka.LoadFromEnv("KAFKA")

	cfg.Alarm.Defaults = models.DefaultAlertDefaults()
	if path := os.Getenv("ALERT_DEFAULTS_FILE"); path != "" {
		if err := loadDefaultsFile(path, &cfg.Alarm.Defaults); err != nil {
			return nil, err
		}
	}
	cfg.Alarm.DispatchTimeout = time.Duration(getEnvInt("DISPATCH_TIMEOUT_MS", 5000)) * time.Millisecond
	cfg.Alarm.DeviceTopic = getEnv("MQTT_DEVICE_TOPIC", "afe/device/+/+")

	policy := models.AcceptPolicy(getEnv("CASE_ACCEPT_POLICY", string(models.AcceptFirstWins)))
	if policy != models.AcceptFirstWins && policy != models.AcceptOverwrite {
		return nil, fmt.Errorf("invalid CASE_ACCEPT_POLICY: %s", policy)
	}
	cfg.Alarm.AcceptPolicy = policy

	cfg.Cache.LatestKeyPrefix = getEnv("CACHE_LATEST_PREFIX", "afe:dependent:")
	cfg.Cache.LatestTTL = time.Duration(getEnvInt("LATEST_CACHE_TTL_SEC", 86400)) * time.Second
	cfg.Cache.AlertStream = getEnv("ALERT_STREAM", "afe:alert:stream")
	cfg.Cache.AlertStreamLen = int64(getEnvInt("ALERT_STREAM_MAXLEN", 10000))

	cfg.Line.BaseURL = getEnv("LINE_API_BASE_URL", "https://api.line.me")
	cfg.Line.ChannelToken = getEnv("LINE_CHANNEL_TOKEN", "")

	cfg.Log.Level = getEnv("LOG_LEVEL", "info")
	cfg.Log.Format = getEnv("LOG_FORMAT", "json")

	if err := validateDefaults(cfg.Alarm.Defaults); err != nil {
		return nil, err
	}

	return cfg, nil
}

// loadDefaultsFile 从 YAML 文件覆盖系统默认阈值（文件中未出现的字段保持原值）
func loadDefaultsFile(path string, defaults *models.AlertDefaults) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read alert defaults file: %w", err)
	}
	if err := yaml.Unmarshal(data, defaults); err != nil {
		return fmt.Errorf("failed to parse alert defaults file: %w", err)
	}
	return nil
}

func validateDefaults(d models.AlertDefaults) error {
	if d.HeartRateMin >= d.HeartRateMax {
		return fmt.Errorf("heart_rate_min (%d) must be below heart_rate_max (%d)", d.HeartRateMin, d.HeartRateMax)
	}
	if d.RadiusLv1 <= 0 || d.RadiusLv2 < d.RadiusLv1 {
		return fmt.Errorf("invalid geofence radii: lv1=%d lv2=%d", d.RadiusLv1, d.RadiusLv2)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	i, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return defaultValue
	}
	return i
}
