package notify

import (
	"context"
	"fmt"
	"log"
	"time"
)

// Attempt 一次推送尝试及其结果。
type Attempt struct {
	ReservationID string
	LineUserID    string
	Channel       string
	Delivered     bool
	Message       string
	Error         string
	AttemptedAt   time.Time
}

// Recorder 持久化推送记录，store 包的实现写入 notification_logs。
type Recorder interface {
	RecordNotification(ctx context.Context, a Attempt) error
}

// recordTimeout 写记录的上限，避免拖慢受理响应。
const recordTimeout = 2 * time.Second

// RecordingSender 在 Sender 外层记录每次尝试；记录失败只打日志，不改变发送结果。
type RecordingSender struct {
	Sender   Sender
	Recorder Recorder
	Channel  string
}

func (s RecordingSender) Send(ctx context.Context, c Confirmation) error {
	err := callSend(ctx, s.Sender, c)

	a := Attempt{
		ReservationID: c.ReservationID,
		LineUserID:    c.LineUserID,
		Channel:       s.Channel,
		Delivered:     err == nil,
		Message:       Text(c),
		AttemptedAt:   time.Now().UTC(),
	}
	if err != nil {
		a.Error = err.Error()
	}
	if recErr := s.record(ctx, a); recErr != nil {
		log.Printf("notify record failed reservation=%s: %v", c.ReservationID, recErr)
	}
	return err
}

func (s RecordingSender) record(ctx context.Context, a Attempt) (err error) {
	if s.Recorder == nil {
		return nil
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("recorder panic: %v", r)
		}
	}()
	// 发送超时后也要能写入记录
	recCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), recordTimeout)
	defer cancel()
	return s.Recorder.RecordNotification(recCtx, a)
}

func callSend(ctx context.Context, sender Sender, c Confirmation) (err error) {
	if sender == nil {
		return fmt.Errorf("no sender configured")
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("sender panic: %v", r)
		}
	}()
	return sender.Send(ctx, c)
}
