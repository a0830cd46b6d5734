// worker 消费通知事件并推送到 LINE：
// Redis Stream outbox → Relay → Kafka → Consumer → LINE push。
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"pickup_reserve/internal/config"
	"pickup_reserve/internal/line"
	"pickup_reserve/internal/notify"
	"pickup_reserve/internal/queue"
	"pickup_reserve/internal/store"

	rd "github.com/redis/go-redis/v9"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	st, closeStore, err := store.Open(cfg)
	if err != nil {
		log.Fatalf("store: %v", err)
	}
	defer closeStore()

	var sender notify.Sender = notify.LogSender{}
	channel := config.NotifyLog
	if cfg.LineChannelSecret != "" && cfg.LineChannelToken != "" {
		c, err := line.NewClient(cfg.LineChannelSecret, cfg.LineChannelToken)
		if err != nil {
			log.Fatalf("line client: %v", err)
		}
		sender, channel = c, config.NotifyLine
	} else {
		log.Println("LINE credentials not set, notifications will only be logged")
	}
	// 实际推送的结果写入 notification_logs
	sender = notify.RecordingSender{Sender: sender, Recorder: st, Channel: channel}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var wg sync.WaitGroup

	// Relay：仅在配置了 Redis 时运行
	if cfg.RedisAddr != "" {
		rdb := rd.NewClient(&rd.Options{Addr: cfg.RedisAddr, DB: cfg.RedisDB})
		defer rdb.Close()
		producer := queue.NewProducer(cfg.KafkaBrokers, cfg.KafkaTopic)
		defer producer.Close()

		relay := queue.NewRelay(rdb, producer, cfg.NotifyStream, cfg.NotifyGroup, cfg.NotifyConsumer)
		wg.Add(1)
		go func() {
			defer wg.Done()
			relay.Run(ctx)
		}()
		log.Printf("relay started stream=%s group=%s", cfg.NotifyStream, cfg.NotifyGroup)
	}

	consumer := queue.NewConsumer(cfg.KafkaBrokers, cfg.KafkaTopic, cfg.KafkaGroupID, sender)
	defer consumer.Close()
	wg.Add(1)
	go func() {
		defer wg.Done()
		consumer.Run(ctx)
	}()
	log.Printf("consumer started topic=%s group=%s", cfg.KafkaTopic, cfg.KafkaGroupID)

	<-ctx.Done()
	log.Println("shutting down")
	wg.Wait()
}
