package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"pickup_reserve/internal/notify"

	rd "github.com/redis/go-redis/v9"
)

// outboxMaxLen 限制 Stream 长度，Relay 长时间不可用时避免无限增长。
const outboxMaxLen = 100000

// Outbox 将通知写入 Redis Stream（本地、快速），由 Relay 异步转发到 Kafka。
type Outbox struct {
	rdb    *rd.Client
	stream string
}

func NewOutbox(rdb *rd.Client, stream string) *Outbox {
	return &Outbox{rdb: rdb, stream: stream}
}

// Send 实现 notify.Sender。
func (o *Outbox) Send(ctx context.Context, c notify.Confirmation) error {
	msg := NewNotificationMessage(c)
	if err := msg.Validate(); err != nil {
		return err
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	err = o.rdb.XAdd(ctx, &rd.XAddArgs{
		Stream: o.stream,
		MaxLen: outboxMaxLen,
		Approx: true,
		Values: map[string]any{
			"reservation_id": msg.Key(),
			"payload":        string(payload),
		},
	}).Err()
	if err != nil {
		return fmt.Errorf("outbox xadd: %w", err)
	}
	return nil
}
