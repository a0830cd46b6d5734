package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"pickup_reserve/internal/config"
	"pickup_reserve/internal/line"
	"pickup_reserve/internal/middleware"
	"pickup_reserve/internal/notify"
	"pickup_reserve/internal/queue"
	"pickup_reserve/internal/reservation"
	"pickup_reserve/internal/router"
	"pickup_reserve/internal/store"

	"github.com/aws/aws-xray-sdk-go/xray"
	"github.com/gin-gonic/gin"
	rd "github.com/redis/go-redis/v9"
)

const serviceName = "pickup-reserve"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	if cfg.EnableTracing {
		configureTracing()
	}

	// 1. 存储：SQLite（gorm，默认）或 PostgreSQL（sqlx）
	st, closeStore, err := store.Open(cfg)
	if err != nil {
		log.Fatalf("store: %v", err)
	}
	defer closeStore()

	// 2. Redis 可选：用于分布式限流与通知 outbox
	var rdb *rd.Client
	if cfg.RedisAddr != "" {
		rdb = rd.NewClient(&rd.Options{Addr: cfg.RedisAddr, DB: cfg.RedisDB})
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		err := rdb.Ping(ctx).Err()
		cancel()
		if err != nil {
			log.Fatalf("redis ping: %v", err)
		}
		defer rdb.Close()
	}

	// 3. 通知通道
	sender, closeSender, err := newSender(cfg, rdb)
	if err != nil {
		log.Fatalf("notify: %v", err)
	}
	defer closeSender()

	// 每次投递尝试写入 notification_logs
	dispatcher := notify.NewDispatcher(sender, cfg.NotifyTimeout, notify.WithRecorder(st, cfg.NotifyMode))
	svc := reservation.NewService(st, dispatcher,
		reservation.WithLocation(cfg.ShopLocation),
		reservation.WithCancelBaseURL(cfg.CancelBaseURL),
	)

	limit := middleware.LocalRateLimit(cfg.ReserveRateLimit, cfg.ReserveRateWindow)
	if rdb != nil {
		limit = middleware.RedisRateLimit(rdb, cfg.ReserveRateLimit, cfg.ReserveRateWindow)
	}

	r := gin.Default()
	r.Use(middleware.CORS(cfg.CORSAllowedOrigins))
	if err := router.Setup(r, router.Deps{Reservations: svc, RateLimit: limit}); err != nil {
		log.Fatalf("router: %v", err)
	}

	var handler http.Handler = r
	if cfg.EnableTracing {
		handler = xray.Handler(xray.NewFixedSegmentNamer(serviceName), r)
	}

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		// 需覆盖同步等待通知的时间
		WriteTimeout: cfg.NotifyTimeout + 15*time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Printf("server listening on %s (db=%s notify=%s)", cfg.HTTPAddr, cfg.DBDriver, cfg.NotifyMode)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	log.Println("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
	}
}

func configureTracing() {
	if err := xray.Configure(xray.Config{
		DaemonAddr:     "127.0.0.1:2000",
		ServiceVersion: "1.0.0",
	}); err != nil {
		log.Printf("configure x-ray: %v", err)
		if err := xray.Configure(xray.Config{}); err != nil {
			log.Fatalf("configure default x-ray: %v", err)
		}
	}
	os.Setenv("AWS_XRAY_CONTEXT_MISSING", "LOG_ERROR")
}

// newSender 按 NOTIFY_MODE 选择通知通道。
func newSender(cfg config.AppConfig, rdb *rd.Client) (notify.Sender, func(), error) {
	noop := func() {}
	switch cfg.NotifyMode {
	case config.NotifyLine:
		c, err := line.NewClient(cfg.LineChannelSecret, cfg.LineChannelToken)
		if err != nil {
			return nil, nil, err
		}
		return c, noop, nil
	case config.NotifyKafka:
		p := queue.NewProducer(cfg.KafkaBrokers, cfg.KafkaTopic)
		return p, func() {
			if err := p.Close(); err != nil {
				log.Printf("close producer: %v", err)
			}
		}, nil
	case config.NotifyStream:
		if rdb == nil {
			return nil, nil, fmt.Errorf("stream mode requires redis")
		}
		return queue.NewOutbox(rdb, cfg.NotifyStream), noop, nil
	default:
		return notify.LogSender{}, noop, nil
	}
}
