package redis

import "fmt"

// 限流维度
const (
	SubjectLine  = "line"
	SubjectPhone = "phone"
	SubjectIP    = "ip"
)

// RateLimitKey 统一约定预约接口的限流键名，subject 取 SubjectLine/SubjectPhone/SubjectIP。
func RateLimitKey(subject, id string) string {
	return fmt.Sprintf("rate_limit:reserve:%s:%s", subject, id)
}

// NotificationStreamKey 为通知 outbox 的默认 Stream 名。
func NotificationStreamKey(namespace string) string {
	return fmt.Sprintf("%s:notifications", namespace)
}
