// Package notify 负责预约确认通知的“尽力投递”：
// 调用方永远拿到 Result，投递失败只记录日志，不向上传播。
package notify

import (
	"context"
	"log"
	"time"
)

// Item 通知中的商品行摘要。
type Item struct {
	Name          string `json:"name"`
	VariationName string `json:"variation_name,omitempty"`
	Quantity      int    `json:"quantity"`
	Price         int64  `json:"price"`
}

// Confirmation 预约确认通知的内容。
type Confirmation struct {
	ReservationID     string `json:"reservation_id"`
	ReservationNumber string `json:"reservation_number"`
	LineUserID        string `json:"line_user_id"`
	UserName          string `json:"user_name"`
	PickupDate        string `json:"pickup_date"` // 2006-01-02
	TotalAmount       int64  `json:"total_amount"`
	Items             []Item `json:"items"`
	CancelURL         string `json:"cancel_url"`
}

// Sender 是外部消息通道：成功返回 nil。
type Sender interface {
	Send(ctx context.Context, c Confirmation) error
}

// Result 投递结果，只用于观测。
type Result struct {
	Delivered bool `json:"delivered"`
}

// Dispatcher 包装 Sender：不取消、带超时、吞掉错误与 panic。
type Dispatcher struct {
	sender  Sender
	timeout time.Duration
}

type DispatcherOption func(*Dispatcher)

// WithRecorder 把每次投递尝试写入 r，channel 标明投递通道（line/kafka/stream/log）。
func WithRecorder(r Recorder, channel string) DispatcherOption {
	return func(d *Dispatcher) {
		if r == nil || d.sender == nil {
			return
		}
		d.sender = RecordingSender{Sender: d.sender, Recorder: r, Channel: channel}
	}
}

func NewDispatcher(sender Sender, timeout time.Duration, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{sender: sender, timeout: timeout}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dispatch 同步等待投递结束，但从不返回错误。
// 请求方断开连接不会取消投递（context.WithoutCancel）。
func (d *Dispatcher) Dispatch(ctx context.Context, c Confirmation) Result {
	if d == nil || d.sender == nil {
		return Result{}
	}
	if c.LineUserID == "" {
		// 没有外部身份，无处可投
		return Result{}
	}

	sendCtx := context.WithoutCancel(ctx)
	if d.timeout > 0 {
		var cancel context.CancelFunc
		sendCtx, cancel = context.WithTimeout(sendCtx, d.timeout)
		defer cancel()
	}

	if err := d.safeSend(sendCtx, c); err != nil {
		log.Printf("notify failed reservation=%s: %v", c.ReservationID, err)
		return Result{}
	}
	return Result{Delivered: true}
}

func (d *Dispatcher) safeSend(ctx context.Context, c Confirmation) error {
	return callSend(ctx, d.sender, c)
}

// LogSender 只打印通知内容，用于本地开发（NOTIFY_MODE=log）。
type LogSender struct{}

func (LogSender) Send(_ context.Context, c Confirmation) error {
	log.Printf("notify reservation=%s to=%s\n%s", c.ReservationID, c.LineUserID, Text(c))
	return nil
}
