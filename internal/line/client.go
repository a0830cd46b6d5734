// Package line 通过 LINE Messaging API 推送预约通知。
package line

import (
	"context"
	"fmt"

	"pickup_reserve/internal/notify"

	"github.com/line/line-bot-sdk-go/v7/linebot"
)

// Client 实现 notify.Sender，将确认消息 push 给顾客的 LINE 账号。
type Client struct {
	bot *linebot.Client
}

// Option 可覆盖 SDK 的 endpoint 等设置（测试时指向 httptest）。
type Option = linebot.ClientOption

// WithEndpoint 覆盖 API 根地址。
func WithEndpoint(base string) Option {
	return linebot.WithEndpointBase(base)
}

func NewClient(channelSecret, channelToken string, opts ...Option) (*Client, error) {
	bot, err := linebot.New(channelSecret, channelToken, opts...)
	if err != nil {
		return nil, fmt.Errorf("line client: %w", err)
	}
	return &Client{bot: bot}, nil
}

// Send 推送文本消息。
func (c *Client) Send(ctx context.Context, conf notify.Confirmation) error {
	return c.Push(ctx, conf.LineUserID, notify.Text(conf))
}

// Push 向单个用户推送一条文本。
func (c *Client) Push(ctx context.Context, to, text string) error {
	if to == "" {
		return fmt.Errorf("line push: empty recipient")
	}
	if _, err := c.bot.PushMessage(to, linebot.NewTextMessage(text)).WithContext(ctx).Do(); err != nil {
		return fmt.Errorf("line push to %s: %w", to, err)
	}
	return nil
}
