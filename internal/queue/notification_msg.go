package queue

import (
	"fmt"
	"time"

	"pickup_reserve/internal/notify"
)

// NotificationMessage 是写入 Kafka / Redis Stream 的通知事件。
type NotificationMessage struct {
	Confirmation notify.Confirmation `json:"confirmation"`
	EnqueuedAt   time.Time           `json:"enqueued_at"`
}

// NewNotificationMessage 以当前时间封装一条确认通知。
func NewNotificationMessage(c notify.Confirmation) NotificationMessage {
	return NotificationMessage{Confirmation: c, EnqueuedAt: time.Now().UTC()}
}

// Key 作为 Kafka 分区 key，同一预约的事件落在同一分区。
func (m NotificationMessage) Key() string { return m.Confirmation.ReservationID }

// Validate 做最小字段校验，防止消费者处理脏消息。
func (m NotificationMessage) Validate() error {
	if m.Confirmation.ReservationID == "" {
		return fmt.Errorf("reservation_id is required")
	}
	if m.Confirmation.LineUserID == "" {
		return fmt.Errorf("line_user_id is required")
	}
	if m.Confirmation.ReservationNumber == "" {
		return fmt.Errorf("reservation_number is required")
	}
	return nil
}
