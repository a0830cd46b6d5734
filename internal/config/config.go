package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata" // 容器镜像可能没有 zoneinfo

	rediskey "pickup_reserve/pkg/redis"

	"github.com/joho/godotenv"
)

// 通知投递方式
const (
	NotifyLog    = "log"    // 仅打日志
	NotifyLine   = "line"   // 直接调用 LINE push
	NotifyKafka  = "kafka"  // 写 Kafka，由 worker 投递
	NotifyStream = "stream" // 写 Redis Stream，Relay 转 Kafka
)

// 存储后端
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// AppConfig 聚合运行时配置，尽量通过环境变量注入，避免硬编码。
type AppConfig struct {
	HTTPAddr string

	DBDriver string
	DBPath   string
	DBDSN    string

	// RedisAddr 为空时不连接 Redis：限流退化为进程内，stream 模式不可用。
	RedisAddr string
	RedisDB   int

	// Kafka 集群地址（逗号分隔）、Topic、消费者组
	KafkaBrokers []string
	KafkaTopic   string
	KafkaGroupID string

	// Redis Stream outbox（API 入流，Relay 异步转 Kafka）
	NotifyStream   string
	NotifyGroup    string
	NotifyConsumer string

	NotifyMode    string
	NotifyTimeout time.Duration

	LineChannelSecret string
	LineChannelToken  string

	// CancelBaseURL 用于拼接取消链接：{CancelBaseURL}/cancel/{id}?token=...
	CancelBaseURL string
	// ShopLocation 决定“今天”和取货日期按哪个时区的自然日比较。
	ShopLocation *time.Location

	// 预约接口限流
	ReserveRateLimit  int
	ReserveRateWindow time.Duration

	CORSAllowedOrigins []string

	EnableTracing bool
}

// Load 读取并校验配置，缺失时使用默认值。
// 工作目录存在 .env 时先加载，已设置的环境变量优先。
func Load() (AppConfig, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return AppConfig{}, fmt.Errorf("load .env: %w", err)
	}

	cfg := AppConfig{
		HTTPAddr:           getEnv("HTTP_ADDR", ":8080"),
		DBDriver:           strings.ToLower(getEnv("DB_DRIVER", DriverSQLite)),
		DBPath:             getEnv("DB_PATH", "pickup_reserve.db"),
		DBDSN:              getEnv("DB_DSN", "host=localhost port=5432 user=postgres password=postgres dbname=pickup_reserve sslmode=disable"),
		RedisAddr:          getEnv("REDIS_ADDR", ""),
		RedisDB:            0,
		KafkaBrokers:       splitCSV(getEnv("KAFKA_BROKERS", "localhost:9092")),
		KafkaTopic:         getEnv("KAFKA_TOPIC", "pickup-reserve-notifications"),
		KafkaGroupID:       getEnv("KAFKA_GROUP_ID", "pickup-reserve-notifier"),
		NotifyStream:       getEnv("NOTIFY_STREAM", rediskey.NotificationStreamKey("pickup_reserve")),
		NotifyGroup:        getEnv("NOTIFY_GROUP", "pickup-reserve-relay-group"),
		NotifyConsumer:     getEnv("NOTIFY_CONSUMER", "pickup-reserve-relay-1"),
		NotifyMode:         strings.ToLower(getEnv("NOTIFY_MODE", NotifyLog)),
		NotifyTimeout:      5 * time.Second,
		LineChannelSecret:  getEnv("LINE_CHANNEL_SECRET", ""),
		LineChannelToken:   getEnv("LINE_CHANNEL_TOKEN", ""),
		CancelBaseURL:      strings.TrimRight(getEnv("CANCEL_BASE_URL", "http://localhost:3000"), "/"),
		ReserveRateLimit:   20,
		ReserveRateWindow:  time.Minute,
		CORSAllowedOrigins: splitCSV(getEnv("CORS_ALLOWED_ORIGINS", "*")),
	}

	redisDB, err := getEnvInt("REDIS_DB", cfg.RedisDB)
	if err != nil {
		return AppConfig{}, fmt.Errorf("invalid REDIS_DB: %w", err)
	}
	cfg.RedisDB = redisDB

	timeoutSec, err := getEnvInt("NOTIFY_TIMEOUT_SEC", int(cfg.NotifyTimeout.Seconds()))
	if err != nil {
		return AppConfig{}, fmt.Errorf("invalid NOTIFY_TIMEOUT_SEC: %w", err)
	}
	if timeoutSec <= 0 {
		return AppConfig{}, fmt.Errorf("NOTIFY_TIMEOUT_SEC must be > 0")
	}
	cfg.NotifyTimeout = time.Duration(timeoutSec) * time.Second

	rateLimit, err := getEnvInt("RESERVE_RATE_LIMIT", cfg.ReserveRateLimit)
	if err != nil {
		return AppConfig{}, fmt.Errorf("invalid RESERVE_RATE_LIMIT: %w", err)
	}
	if rateLimit <= 0 {
		return AppConfig{}, fmt.Errorf("RESERVE_RATE_LIMIT must be > 0")
	}
	cfg.ReserveRateLimit = rateLimit

	rateWindowSec, err := getEnvInt("RESERVE_RATE_WINDOW_SEC", int(cfg.ReserveRateWindow.Seconds()))
	if err != nil {
		return AppConfig{}, fmt.Errorf("invalid RESERVE_RATE_WINDOW_SEC: %w", err)
	}
	if rateWindowSec <= 0 {
		return AppConfig{}, fmt.Errorf("RESERVE_RATE_WINDOW_SEC must be > 0")
	}
	cfg.ReserveRateWindow = time.Duration(rateWindowSec) * time.Second

	loc, err := time.LoadLocation(getEnv("SHOP_TIMEZONE", "Asia/Tokyo"))
	if err != nil {
		return AppConfig{}, fmt.Errorf("invalid SHOP_TIMEZONE: %w", err)
	}
	cfg.ShopLocation = loc

	tracing, err := getEnvBool("ENABLE_TRACING", false)
	if err != nil {
		return AppConfig{}, fmt.Errorf("invalid ENABLE_TRACING: %w", err)
	}
	// AWS_XRAY_SDK_DISABLED=true 时强制关闭
	if xrayOff, _ := getEnvBool("AWS_XRAY_SDK_DISABLED", false); xrayOff {
		tracing = false
	}
	cfg.EnableTracing = tracing

	switch cfg.DBDriver {
	case DriverSQLite:
		if cfg.DBPath == "" {
			return AppConfig{}, fmt.Errorf("DB_PATH must not be empty")
		}
	case DriverPostgres:
		if cfg.DBDSN == "" {
			return AppConfig{}, fmt.Errorf("DB_DSN must not be empty")
		}
	default:
		return AppConfig{}, fmt.Errorf("unsupported DB_DRIVER %q", cfg.DBDriver)
	}

	switch cfg.NotifyMode {
	case NotifyLog:
	case NotifyLine:
		if cfg.LineChannelSecret == "" || cfg.LineChannelToken == "" {
			return AppConfig{}, fmt.Errorf("LINE_CHANNEL_SECRET and LINE_CHANNEL_TOKEN are required for NOTIFY_MODE=line")
		}
	case NotifyKafka, NotifyStream:
		if len(cfg.KafkaBrokers) == 0 {
			return AppConfig{}, fmt.Errorf("KAFKA_BROKERS must not be empty")
		}
		if cfg.KafkaTopic == "" {
			return AppConfig{}, fmt.Errorf("KAFKA_TOPIC must not be empty")
		}
		if cfg.NotifyMode == NotifyStream {
			if cfg.RedisAddr == "" {
				return AppConfig{}, fmt.Errorf("REDIS_ADDR is required for NOTIFY_MODE=stream")
			}
			if cfg.NotifyStream == "" {
				return AppConfig{}, fmt.Errorf("NOTIFY_STREAM must not be empty")
			}
		}
	default:
		return AppConfig{}, fmt.Errorf("unsupported NOTIFY_MODE %q", cfg.NotifyMode)
	}

	return cfg, nil
}

// getEnv 读取字符串环境变量，若为空则返回默认值。
func getEnv(key, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	return v
}

// getEnvInt 读取整数环境变量，若为空则返回默认值。
func getEnvInt(key string, fallback int) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	return strconv.Atoi(v)
}

// getEnvBool 读取布尔环境变量（true/false/1/0），若为空则返回默认值。
func getEnvBool(key string, fallback bool) (bool, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	return strconv.ParseBool(v)
}

// splitCSV 将逗号分隔字符串解析为字符串切片。
func splitCSV(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		s := strings.TrimSpace(p)
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}
