package config

import (
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.HTTPAddr != ":8080" {
		t.Errorf("HTTPAddr = %q, want %q", cfg.HTTPAddr, ":8080")
	}
	if cfg.DBDriver != DriverSQLite {
		t.Errorf("DBDriver = %q, want %q", cfg.DBDriver, DriverSQLite)
	}
	if cfg.NotifyMode != NotifyLog {
		t.Errorf("NotifyMode = %q, want %q", cfg.NotifyMode, NotifyLog)
	}
	if cfg.NotifyTimeout != 5*time.Second {
		t.Errorf("NotifyTimeout = %v, want 5s", cfg.NotifyTimeout)
	}
	if cfg.ShopLocation == nil || cfg.ShopLocation.String() != "Asia/Tokyo" {
		t.Errorf("ShopLocation = %v, want Asia/Tokyo", cfg.ShopLocation)
	}
	if cfg.RedisAddr != "" {
		t.Errorf("RedisAddr = %q, want empty", cfg.RedisAddr)
	}
	if len(cfg.CORSAllowedOrigins) != 1 || cfg.CORSAllowedOrigins[0] != "*" {
		t.Errorf("CORSAllowedOrigins = %v, want [*]", cfg.CORSAllowedOrigins)
	}
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("CANCEL_BASE_URL", "https://shop.example.com/")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092 ,")
	t.Setenv("RESERVE_RATE_LIMIT", "5")
	t.Setenv("RESERVE_RATE_WINDOW_SEC", "10")
	t.Setenv("NOTIFY_MODE", "KAFKA")
	t.Setenv("ENABLE_TRACING", "true")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.CancelBaseURL != "https://shop.example.com" {
		t.Errorf("CancelBaseURL = %q", cfg.CancelBaseURL)
	}
	if len(cfg.KafkaBrokers) != 2 || cfg.KafkaBrokers[1] != "k2:9092" {
		t.Errorf("KafkaBrokers = %v", cfg.KafkaBrokers)
	}
	if cfg.ReserveRateLimit != 5 || cfg.ReserveRateWindow != 10*time.Second {
		t.Errorf("rate limit = %d/%v", cfg.ReserveRateLimit, cfg.ReserveRateWindow)
	}
	if cfg.NotifyMode != NotifyKafka {
		t.Errorf("NotifyMode = %q, want %q", cfg.NotifyMode, NotifyKafka)
	}
	if !cfg.EnableTracing {
		t.Error("EnableTracing = false, want true")
	}
}

func TestLoad_XRayDisabledWins(t *testing.T) {
	t.Setenv("ENABLE_TRACING", "1")
	t.Setenv("AWS_XRAY_SDK_DISABLED", "true")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.EnableTracing {
		t.Error("EnableTracing = true, want false when AWS_XRAY_SDK_DISABLED=true")
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{name: "非数字的 REDIS_DB", env: map[string]string{"REDIS_DB": "x"}},
		{name: "限流阈值为 0", env: map[string]string{"RESERVE_RATE_LIMIT": "0"}},
		{name: "限流窗口为负数", env: map[string]string{"RESERVE_RATE_WINDOW_SEC": "-1"}},
		{name: "通知超时为 0", env: map[string]string{"NOTIFY_TIMEOUT_SEC": "0"}},
		{name: "未知存储驱动", env: map[string]string{"DB_DRIVER": "mysql"}},
		{name: "未知通知方式", env: map[string]string{"NOTIFY_MODE": "email"}},
		{name: "line 模式缺少凭证", env: map[string]string{"NOTIFY_MODE": "line"}},
		{name: "stream 模式缺少 Redis", env: map[string]string{"NOTIFY_MODE": "stream"}},
		{name: "无效时区", env: map[string]string{"SHOP_TIMEZONE": "Mars/Olympus"}},
		{name: "无效 ENABLE_TRACING", env: map[string]string{"ENABLE_TRACING": "maybe"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			if _, err := Load(); err == nil {
				t.Errorf("Load() error = nil, want error for %v", tt.env)
			}
		})
	}
}
