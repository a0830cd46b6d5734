package model

import (
	"time"
)

// NotificationLogType 通知记录的结果类型。
type NotificationLogType string

const (
	NotificationSent  NotificationLogType = "message_sent"
	NotificationError NotificationLogType = "error"
)

// NotificationLog 每次推送尝试一条，只追加不修改。
type NotificationLog struct {
	ID        uint      `gorm:"primarykey" json:"id" db:"id"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`

	ReservationID string              `gorm:"size:36;index" json:"reservation_id" db:"reservation_id"`
	LineUserID    string              `gorm:"size:64;not null;index" json:"line_user_id" db:"line_user_id"`
	Channel       string              `gorm:"size:16;not null" json:"channel" db:"channel"`
	Type          NotificationLogType `gorm:"size:16;not null" json:"type" db:"type"`

	// Message 为发送的正文；Error 只在失败时有值
	Message string `gorm:"type:text" json:"message" db:"message"`
	Error   string `gorm:"type:text" json:"error,omitempty" db:"error"`
}

func (NotificationLog) TableName() string { return "notification_logs" }
