package router

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"pickup_reserve/internal/model"
	"pickup_reserve/internal/notify"
	"pickup_reserve/internal/reservation"
	"pickup_reserve/internal/store"

	"github.com/gin-gonic/gin"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type memStore struct {
	preset    *model.Preset
	saved     map[string]*model.Reservation
	createErr error
}

func (m *memStore) FindPresetByID(_ context.Context, id uint) (*model.Preset, error) {
	if m.preset == nil || m.preset.ID != id {
		return nil, store.ErrNotFound
	}
	return m.preset, nil
}

func (m *memStore) CreateReservation(_ context.Context, r *model.Reservation, items []model.ReservationItem) error {
	if m.createErr != nil {
		return m.createErr
	}
	r.Items = items
	m.saved[r.ID] = r
	return nil
}

func (m *memStore) GetReservation(_ context.Context, id string) (*model.Reservation, error) {
	r, ok := m.saved[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return r, nil
}

func (m *memStore) ListReservationsByLineUser(_ context.Context, lineUserID string) ([]model.Reservation, error) {
	var out []model.Reservation
	for _, r := range m.saved {
		if r.LineUserID == lineUserID {
			out = append(out, *r)
		}
	}
	return out, nil
}

type senderFunc func(context.Context, notify.Confirmation) error

func (f senderFunc) Send(ctx context.Context, c notify.Confirmation) error { return f(ctx, c) }

func ptr(t time.Time) *time.Time { return &t }

func newPreset() *model.Preset {
	d := func(m time.Month, day int) *time.Time { return ptr(time.Date(2026, m, day, 0, 0, 0, 0, time.UTC)) }
	return &model.Preset{
		ID:             1,
		PresetName:     "クリスマスケーキ予約",
		IsActive:       true,
		FormExpiryDate: d(12, 22),
		FormSettings:   []model.FormSettings{{PresetID: 1, IsEnabled: true}},
		PresetProducts: []model.PresetProduct{
			{ProductID: 100, IsActive: true, PickupStart: d(12, 23), PickupEnd: d(12, 25),
				Product: model.Product{ID: 100, Name: "いちごタルト", Price: 3200, Visible: true}},
			{ProductID: 200, IsActive: true, PickupStart: d(12, 23), PickupEnd: d(12, 25),
				Product: model.Product{ID: 200, Name: "モンブラン", Price: 500, Visible: false}},
		},
	}
}

type env struct {
	engine *gin.Engine
	store  *memStore
}

func newEnv(t *testing.T, preset *model.Preset, sender notify.Sender) *env {
	t.Helper()
	st := &memStore{preset: preset, saved: map[string]*model.Reservation{}}
	now := time.Date(2026, 12, 20, 12, 0, 0, 0, time.UTC)
	svc := reservation.NewService(st, notify.NewDispatcher(sender, time.Second),
		reservation.WithClock(func() time.Time { return now }),
		reservation.WithCancelBaseURL("http://localhost:3000"),
	)
	r := gin.New()
	if err := Setup(r, Deps{Reservations: svc}); err != nil {
		t.Fatalf("Setup() error = %v", err)
	}
	return &env{engine: r, store: st}
}

func validBody() map[string]any {
	return map[string]any{
		"preset_id":    1,
		"user_name":    "山田太郎",
		"phone_number": "090-1234-5678",
		"selected_products": []map[string]any{
			{"product_id": 100, "product_name": "いちごタルト", "quantity": 2, "price": 3200},
		},
		"total_amount": 6400,
		"pickup_date":  "2026-12-24",
		"line_user_id": "U123",
	}
}

func (e *env) do(t *testing.T, method, path string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	switch b := body.(type) {
	case nil:
	case string:
		buf.WriteString(b)
	default:
		if err := json.NewEncoder(&buf).Encode(b); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	e.engine.ServeHTTP(w, req)

	var out map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("response is not JSON: %q", w.Body.String())
	}
	return w, out
}

// assertError 检查错误响应的四个固定字段与可解析的时间戳。
func assertError(t *testing.T, w *httptest.ResponseRecorder, body map[string]any, status int, code string) {
	t.Helper()
	if w.Code != status {
		t.Errorf("status = %d, want %d (body %v)", w.Code, status, body)
	}
	if body["code"] != code {
		t.Errorf("code = %v, want %s", body["code"], code)
	}
	for _, k := range []string{"error", "message"} {
		if s, ok := body[k].(string); !ok || s == "" {
			t.Errorf("%s = %v, want non-empty string", k, body[k])
		}
	}
	assertTimestamp(t, body["timestamp"])
}

func assertTimestamp(t *testing.T, v any) {
	t.Helper()
	s, ok := v.(string)
	if !ok {
		t.Fatalf("timestamp = %v, want string", v)
	}
	if _, err := time.Parse(time.RFC3339Nano, s); err != nil {
		t.Errorf("timestamp %q is not ISO-8601: %v", s, err)
	}
}

func okSender(context.Context, notify.Confirmation) error { return nil }

func TestCreateReservation_Success(t *testing.T) {
	e := newEnv(t, newPreset(), senderFunc(okSender))

	w, body := e.do(t, http.MethodPost, "/api/reservations", validBody())
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201: %v", w.Code, body)
	}
	if body["success"] != true {
		t.Errorf("success = %v", body["success"])
	}
	data, _ := body["data"].(map[string]any)
	id, _ := data["reservation_id"].(string)
	if id == "" || data["cancel_url"] == nil {
		t.Fatalf("data = %v", data)
	}
	if !strings.HasPrefix(data["cancel_url"].(string), "http://localhost:3000/cancel/"+id+"?token=") {
		t.Errorf("cancel_url = %v", data["cancel_url"])
	}
	meta, _ := body["meta"].(map[string]any)
	assertTimestamp(t, meta["timestamp"])

	// 查询刚创建的预约，取消令牌不出现在响应里
	w, body = e.do(t, http.MethodGet, "/api/reservations/"+id, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("GET status = %d: %v", w.Code, body)
	}
	if strings.Contains(w.Body.String(), e.store.saved[id].CancelToken) {
		t.Error("cancel token leaked in GET response")
	}
}

func TestCreateReservation_MissingRequiredFields(t *testing.T) {
	for _, field := range []string{"preset_id", "user_name", "phone_number", "selected_products", "total_amount", "pickup_date"} {
		t.Run(field, func(t *testing.T) {
			e := newEnv(t, newPreset(), senderFunc(okSender))
			b := validBody()
			delete(b, field)

			w, body := e.do(t, http.MethodPost, "/api/reservations", b)
			assertError(t, w, body, http.StatusBadRequest, "VALIDATION_ERROR")
			if body["field"] != field {
				t.Errorf("field = %v, want %s", body["field"], field)
			}
		})
	}
}

func TestCreateReservation_SchemaErrors(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(map[string]any)
		raw       string
		wantField string
	}{
		{name: "电话格式", mutate: func(b map[string]any) { b["phone_number"] = "12345" }, wantField: "phone_number"},
		{name: "空商品列表", mutate: func(b map[string]any) { b["selected_products"] = []any{} }, wantField: "selected_products"},
		{name: "数量超限", mutate: func(b map[string]any) {
			b["selected_products"] = []map[string]any{{"product_id": 100, "product_name": "x", "quantity": 100, "price": 1}}
		}, wantField: "selected_products[0].quantity"},
		{name: "类型错误", mutate: func(b map[string]any) { b["preset_id"] = "one" }, wantField: "preset_id"},
		{name: "日期格式", mutate: func(b map[string]any) { b["pickup_date"] = "12/24" }, wantField: "pickup_date"},
		{name: "性别取值", mutate: func(b map[string]any) { b["gender"] = "unknown" }, wantField: "gender"},
		{name: "合计金额为负", mutate: func(b map[string]any) { b["total_amount"] = -1 }, wantField: "total_amount"},
		{name: "单价超出上限", mutate: func(b map[string]any) {
			b["selected_products"] = []map[string]any{{"product_id": 100, "product_name": "x", "quantity": 2, "price": int64(math.MaxInt64)}}
		}, wantField: "selected_products[0].price"},
		{name: "合计金额超出上限", mutate: func(b map[string]any) { b["total_amount"] = int64(math.MaxInt64) }, wantField: "total_amount"},
		{name: "合计金额与明细不符", mutate: func(b map[string]any) { b["total_amount"] = 1 }, wantField: "total_amount"},
		{name: "非法 JSON", raw: `{"preset_id":`},
		{name: "空 body", raw: ``},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEnv(t, newPreset(), senderFunc(okSender))
			var body any = tt.raw
			if tt.mutate != nil {
				b := validBody()
				tt.mutate(b)
				body = b
			}
			w, out := e.do(t, http.MethodPost, "/api/reservations", body)
			assertError(t, w, out, http.StatusBadRequest, "VALIDATION_ERROR")
			if tt.wantField != "" && out["field"] != tt.wantField {
				t.Errorf("field = %v, want %s", out["field"], tt.wantField)
			}
		})
	}
}

func TestCreateReservation_UnknownFieldsTolerated(t *testing.T) {
	e := newEnv(t, newPreset(), senderFunc(okSender))
	b := validBody()
	b["utm_source"] = "flyer"

	if w, body := e.do(t, http.MethodPost, "/api/reservations", b); w.Code != http.StatusCreated {
		t.Fatalf("status = %d: %v", w.Code, body)
	}
}

func TestCreateReservation_PipelineErrors(t *testing.T) {
	tests := []struct {
		name       string
		preset     func(*model.Preset)
		mutate     func(map[string]any)
		wantStatus int
		wantCode   string
		wantError  string
	}{
		{name: "预设不存在", mutate: func(b map[string]any) { b["preset_id"] = 999 },
			wantStatus: 404, wantCode: "RESOURCE_NOT_FOUND", wantError: "プリセットが見つかりません"},
		{name: "预设未启用", preset: func(p *model.Preset) { p.IsActive = false },
			wantStatus: 400, wantCode: "PRESET_ERROR", wantError: "無効なプリセット"},
		{name: "预设过期", preset: func(p *model.Preset) { p.FormExpiryDate = ptr(time.Date(2026, 12, 1, 0, 0, 0, 0, time.UTC)) },
			wantStatus: 400, wantCode: "PRESET_ERROR", wantError: "期限切れ"},
		{name: "需要生年月日", preset: func(p *model.Preset) { p.FormSettings[0].EnableBirthday = true },
			wantStatus: 400, wantCode: "VALIDATION_ERROR", wantError: "生年月日"},
		{name: "商品不可见", mutate: func(b map[string]any) {
			b["selected_products"] = []map[string]any{{"product_id": 200, "product_name": "モンブラン", "quantity": 1, "price": 500}}
		}, wantStatus: 400, wantCode: "PRODUCT_ERROR"},
		{name: "取货期间外", mutate: func(b map[string]any) { b["pickup_date"] = "2026-12-30" },
			wantStatus: 400, wantCode: "PRODUCT_ERROR", wantError: "引き取り期間外"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newPreset()
			if tt.preset != nil {
				tt.preset(p)
			}
			e := newEnv(t, p, senderFunc(okSender))
			b := validBody()
			if tt.mutate != nil {
				tt.mutate(b)
			}

			w, body := e.do(t, http.MethodPost, "/api/reservations", b)
			assertError(t, w, body, tt.wantStatus, tt.wantCode)
			if tt.wantError != "" && !strings.Contains(body["error"].(string), tt.wantError) {
				t.Errorf("error = %v, want containing %q", body["error"], tt.wantError)
			}
			if len(e.store.saved) != 0 {
				t.Error("rejected request was persisted")
			}
		})
	}
}

func TestCreateReservation_NotificationFailureStillCreated(t *testing.T) {
	senders := map[string]notify.Sender{
		"返回错误":  senderFunc(func(context.Context, notify.Confirmation) error { return errors.New("LINE down") }),
		"panic": senderFunc(func(context.Context, notify.Confirmation) error { panic("boom") }),
	}
	for name, s := range senders {
		t.Run(name, func(t *testing.T) {
			e := newEnv(t, newPreset(), s)
			w, body := e.do(t, http.MethodPost, "/api/reservations", validBody())
			if w.Code != http.StatusCreated {
				t.Fatalf("status = %d, want 201: %v", w.Code, body)
			}
			data, _ := body["data"].(map[string]any)
			if data["reservation_id"] == "" || data["reservation_id"] == nil {
				t.Errorf("reservation_id missing: %v", data)
			}
		})
	}
}

func TestCreateReservation_StoreFailure(t *testing.T) {
	e := newEnv(t, newPreset(), senderFunc(okSender))
	e.store.createErr = errors.New("insert reservation_items: connection reset")

	w, body := e.do(t, http.MethodPost, "/api/reservations", validBody())
	assertError(t, w, body, http.StatusInternalServerError, "DATABASE_ERROR")
	if strings.Contains(w.Body.String(), "connection reset") {
		t.Error("store error detail leaked to client")
	}
}

func TestCreateReservation_NotIdempotent(t *testing.T) {
	e := newEnv(t, newPreset(), senderFunc(okSender))

	ids := map[string]bool{}
	for i := 0; i < 2; i++ {
		w, body := e.do(t, http.MethodPost, "/api/reservations", validBody())
		if w.Code != http.StatusCreated {
			t.Fatalf("status = %d", w.Code)
		}
		ids[body["data"].(map[string]any)["reservation_id"].(string)] = true
	}
	if len(ids) != 2 || len(e.store.saved) != 2 {
		t.Errorf("distinct ids = %d, saved = %d, want 2/2", len(ids), len(e.store.saved))
	}
}

func TestGetReservation_NotFound(t *testing.T) {
	e := newEnv(t, newPreset(), senderFunc(okSender))
	w, body := e.do(t, http.MethodGet, "/api/reservations/unknown", nil)
	assertError(t, w, body, http.StatusNotFound, "RESOURCE_NOT_FOUND")
}

func TestGetFormConfig(t *testing.T) {
	e := newEnv(t, newPreset(), senderFunc(okSender))

	w, body := e.do(t, http.MethodGet, "/api/presets/1/config", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %v", w.Code, body)
	}
	data, _ := body["data"].(map[string]any)
	products, _ := data["products"].([]any)
	if len(products) != 1 {
		t.Errorf("products = %v, want only the visible one", products)
	}

	w, body = e.do(t, http.MethodGet, "/api/presets/abc/config", nil)
	assertError(t, w, body, http.StatusBadRequest, "VALIDATION_ERROR")
}

func TestRateLimitApplied(t *testing.T) {
	st := &memStore{preset: newPreset(), saved: map[string]*model.Reservation{}}
	svc := reservation.NewService(st, nil)
	r := gin.New()
	called := false
	err := Setup(r, Deps{Reservations: svc, RateLimit: func(c *gin.Context) {
		called = true
		c.AbortWithStatus(http.StatusTooManyRequests)
	}})
	if err != nil {
		t.Fatal(err)
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/reservations", strings.NewReader(`{}`)))
	if !called || w.Code != http.StatusTooManyRequests {
		t.Errorf("rate limiter called=%v status=%d", called, w.Code)
	}
}

func TestListReservations(t *testing.T) {
	e := newEnv(t, newPreset(), senderFunc(okSender))
	for i := 0; i < 2; i++ {
		if w, body := e.do(t, http.MethodPost, "/api/reservations", validBody()); w.Code != http.StatusCreated {
			t.Fatalf("status = %d: %v", w.Code, body)
		}
	}

	for _, path := range []string{"/api/reservations?line_user_id=U123", "/api/reservations?userId=U123"} {
		w, body := e.do(t, http.MethodGet, path, nil)
		if w.Code != http.StatusOK {
			t.Fatalf("GET %s status = %d: %v", path, w.Code, body)
		}
		data, _ := body["data"].(map[string]any)
		list, _ := data["reservations"].([]any)
		if len(list) != 2 || data["total"] != float64(2) {
			t.Errorf("GET %s data = %v", path, data)
		}
		if strings.Contains(w.Body.String(), "cancel_token") {
			t.Error("cancel token leaked in list response")
		}
	}

	// 没有预约时返回空数组
	w, body := e.do(t, http.MethodGet, "/api/reservations?line_user_id=U000", nil)
	data, _ := body["data"].(map[string]any)
	if list, ok := data["reservations"].([]any); w.Code != http.StatusOK || !ok || len(list) != 0 {
		t.Errorf("empty list response = %d %v", w.Code, body)
	}

	w, body = e.do(t, http.MethodGet, "/api/reservations", nil)
	assertError(t, w, body, http.StatusBadRequest, "VALIDATION_ERROR")
	if body["field"] != "line_user_id" {
		t.Errorf("field = %v, want line_user_id", body["field"])
	}
}
