package queue

import (
	"context"
	"encoding/json"
	"log"

	"pickup_reserve/internal/notify"

	"github.com/segmentio/kafka-go"
)

// Consumer 从 Kafka 读取通知事件并交给 Sender 投递。
type Consumer struct {
	r      *kafka.Reader
	sender notify.Sender
}

func NewConsumer(brokers []string, topic, groupID string, sender notify.Sender) *Consumer {
	return &Consumer{
		r: kafka.NewReader(kafka.ReaderConfig{
			Brokers:  brokers,
			Topic:    topic,
			GroupID:  groupID,
			MinBytes: 1e3,
			MaxBytes: 1e6,
		}),
		sender: sender,
	}
}

func (c *Consumer) Close() error { return c.r.Close() }

func (c *Consumer) Run(ctx context.Context) {
	for {
		m, err := c.r.ReadMessage(ctx)
		if err != nil {
			return // ctx cancel / 连接断开等
		}
		c.handle(ctx, m.Value)
	}
}

// handle 投递一条消息；通知是尽力而为，失败只记日志，不重试。
func (c *Consumer) handle(ctx context.Context, value []byte) bool {
	var msg NotificationMessage
	if err := json.Unmarshal(value, &msg); err != nil {
		log.Printf("consumer unmarshal: %v", err)
		return false
	}
	if err := msg.Validate(); err != nil {
		log.Printf("consumer invalid message: %v", err)
		return false
	}
	if err := c.sender.Send(ctx, msg.Confirmation); err != nil {
		log.Printf("consumer deliver reservation=%s: %v", msg.Confirmation.ReservationID, err)
		return false
	}
	return true
}
