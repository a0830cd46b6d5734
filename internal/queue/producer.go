package queue

import (
	"context"
	"encoding/json"
	"time"

	"pickup_reserve/internal/notify"

	"github.com/segmentio/kafka-go"
)

// Producer 封装 Kafka 写入器，实现 notify.Sender。
type Producer struct {
	w *kafka.Writer
}

// NewProducer 创建生产者并配置可靠性参数：
// - Hash + Key: 同一预约的事件落到同一分区。
// - RequireAll: 等待 ISR 副本确认，降低消息丢失风险。
// - MaxAttempts/Timeout: 控制重试与超时边界。
func NewProducer(brokers []string, topic string) *Producer {
	return &Producer{
		w: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
			MaxAttempts:  5,
			WriteTimeout: 5 * time.Second,
			ReadTimeout:  5 * time.Second,
			BatchTimeout: 50 * time.Millisecond,
		},
	}
}

// Close 释放 writer 资源。
func (p *Producer) Close() error { return p.w.Close() }

// Send 把确认通知写入 Kafka，由 worker 异步投递到 LINE。
func (p *Producer) Send(ctx context.Context, c notify.Confirmation) error {
	return p.Publish(ctx, NewNotificationMessage(c))
}

// Publish 同步写入一条通知消息。
func (p *Producer) Publish(ctx context.Context, msg NotificationMessage) error {
	if err := msg.Validate(); err != nil {
		return err
	}
	b, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return p.w.WriteMessages(ctx, kafka.Message{
		Key:   []byte(msg.Key()),
		Value: b,
	})
}
