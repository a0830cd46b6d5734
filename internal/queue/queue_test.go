package queue

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"pickup_reserve/internal/notify"
)

func sampleMessage() NotificationMessage {
	return NewNotificationMessage(notify.Confirmation{
		ReservationID:     "0b5c7a52-3f1e-4c1a-9d7e-2f0a1b2c3d4e",
		ReservationNumber: "R20261224A1B2C3",
		LineUserID:        "U123",
		UserName:          "山田太郎",
		PickupDate:        "2026-12-24",
		TotalAmount:       6400,
	})
}

func TestNotificationMessage_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*NotificationMessage)
		wantErr string
	}{
		{name: "ok", mutate: func(*NotificationMessage) {}},
		{name: "缺少 reservation_id", mutate: func(m *NotificationMessage) { m.Confirmation.ReservationID = "" }, wantErr: "reservation_id"},
		{name: "缺少 line_user_id", mutate: func(m *NotificationMessage) { m.Confirmation.LineUserID = "" }, wantErr: "line_user_id"},
		{name: "缺少 reservation_number", mutate: func(m *NotificationMessage) { m.Confirmation.ReservationNumber = "" }, wantErr: "reservation_number"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := sampleMessage()
			tt.mutate(&m)
			err := m.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate() error = %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want mention of %q", err, tt.wantErr)
			}
		})
	}
}

func TestParseNotificationEvent(t *testing.T) {
	msg := sampleMessage()
	payload, err := json.Marshal(msg)
	if err != nil {
		t.Fatal(err)
	}

	got, err := parseNotificationEvent(map[string]interface{}{
		"reservation_id": msg.Key(),
		"payload":        string(payload),
	})
	if err != nil {
		t.Fatalf("parseNotificationEvent() error = %v", err)
	}
	if got.Confirmation.ReservationNumber != msg.Confirmation.ReservationNumber || got.Confirmation.TotalAmount != 6400 {
		t.Errorf("parsed = %+v", got)
	}

	// go-redis 可能返回 []byte
	if _, err := parseNotificationEvent(map[string]interface{}{
		"reservation_id": []byte(msg.Key()),
		"payload":        payload,
	}); err != nil {
		t.Errorf("[]byte values: error = %v", err)
	}
}

func TestParseNotificationEvent_Invalid(t *testing.T) {
	msg := sampleMessage()
	payload, _ := json.Marshal(msg)

	tests := map[string]map[string]interface{}{
		"缺少 payload":   {"reservation_id": msg.Key()},
		"缺少 id":        {"payload": string(payload)},
		"payload 非 JSON": {"reservation_id": msg.Key(), "payload": "{"},
		"id 不一致":        {"reservation_id": "other", "payload": string(payload)},
		"字段类型不支持":      {"reservation_id": msg.Key(), "payload": 1.5i},
	}
	for name, values := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := parseNotificationEvent(values); err == nil {
				t.Error("parseNotificationEvent() error = nil, want error")
			}
		})
	}
}

type recordingSender struct {
	got []notify.Confirmation
	err error
}

func (s *recordingSender) Send(_ context.Context, c notify.Confirmation) error {
	s.got = append(s.got, c)
	return s.err
}

func TestConsumer_Handle(t *testing.T) {
	payload, _ := json.Marshal(sampleMessage())

	t.Run("投递成功", func(t *testing.T) {
		s := &recordingSender{}
		c := &Consumer{sender: s}
		if !c.handle(context.Background(), payload) {
			t.Fatal("handle() = false, want true")
		}
		if len(s.got) != 1 || s.got[0].LineUserID != "U123" {
			t.Errorf("sent = %+v", s.got)
		}
	})

	t.Run("投递失败不重试", func(t *testing.T) {
		s := &recordingSender{err: errors.New("LINE API error")}
		c := &Consumer{sender: s}
		if c.handle(context.Background(), payload) {
			t.Error("handle() = true, want false")
		}
		if len(s.got) != 1 {
			t.Errorf("send attempts = %d, want 1", len(s.got))
		}
	})

	t.Run("脏消息跳过", func(t *testing.T) {
		s := &recordingSender{}
		c := &Consumer{sender: s}
		if c.handle(context.Background(), []byte("not json")) {
			t.Error("handle() = true, want false")
		}
		if len(s.got) != 0 {
			t.Errorf("sender called for invalid message")
		}
	})
}
