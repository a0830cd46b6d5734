// Package reservation 实现预约受理流水线：
// 校验请求 → 解析预设 → 检查预设状态 → 条件必填 → 逐行商品校验 → 落库 → 通知。
// 任一阶段失败即返回，不进入后续阶段。
package reservation

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/url"
	"strings"
	"time"

	"pickup_reserve/internal/apperr"
	"pickup_reserve/internal/model"
	"pickup_reserve/internal/notify"
	"pickup_reserve/internal/store"

	"github.com/google/uuid"
)

// Store 预约受理依赖的数据访问接口。
type Store interface {
	// FindPresetByID 返回预设及其表单设置、预设商品（含商品）；不存在时返回 store.ErrNotFound。
	FindPresetByID(ctx context.Context, id uint) (*model.Preset, error)
	// CreateReservation 原子写入预约与明细：要么全部成功，要么全部不写。
	CreateReservation(ctx context.Context, r *model.Reservation, items []model.ReservationItem) error
	GetReservation(ctx context.Context, id string) (*model.Reservation, error)
	// ListReservationsByLineUser 按受理时间倒序返回该 LINE 用户的全部预约（含明细）。
	ListReservationsByLineUser(ctx context.Context, lineUserID string) ([]model.Reservation, error)
}

// Notifier 尽力投递确认通知，永不返回错误。
type Notifier interface {
	Dispatch(ctx context.Context, c notify.Confirmation) notify.Result
}

// Stage 单个请求在流水线中到达的阶段，只用于日志。
type Stage string

const (
	StageReceived              Stage = "Received"
	StageSchemaValid           Stage = "SchemaValid"
	StagePresetResolved        Stage = "PresetResolved"
	StagePresetValid           Stage = "PresetValid"
	StageFieldsValid           Stage = "FieldsValid"
	StageProductsValid         Stage = "ProductsValid"
	StagePersisted             Stage = "Persisted"
	StageNotificationAttempted Stage = "NotificationAttempted"
)

// Result 受理成功后的返回内容。
type Result struct {
	ReservationID         string                  `json:"reservation_id"`
	ReservationNumber     string                  `json:"reservation_number"`
	CancelURL             string                  `json:"cancel_url"`
	TotalAmount           int64                   `json:"total_amount"`
	PickupDate            string                  `json:"pickup_date"`
	Status                model.ReservationStatus `json:"status"`
	NotificationDelivered bool                    `json:"notification_delivered"`
}

type Service struct {
	store         Store
	notifier      Notifier
	now           func() time.Time
	loc           *time.Location
	cancelBaseURL string
}

type Option func(*Service)

// WithClock 替换当前时间来源（测试用）。
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithLocation 指定店铺所在时区，“今天”按该时区的自然日计算。
func WithLocation(loc *time.Location) Option {
	return func(s *Service) {
		if loc != nil {
			s.loc = loc
		}
	}
}

func WithCancelBaseURL(base string) Option {
	return func(s *Service) { s.cancelBaseURL = strings.TrimRight(base, "/") }
}

func NewService(st Store, n Notifier, opts ...Option) *Service {
	s := &Service{
		store:    st,
		notifier: n,
		now:      time.Now,
		loc:      time.UTC,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// parsed 是通过格式校验后的请求，日期已解析为自然日。
type parsed struct {
	req      Request
	pickup   time.Time
	birthday *time.Time
	lines    []parsedLine
	total    int64
}

type parsedLine struct {
	SelectedProduct
	pickup time.Time
	price  int64
}

// Submit 执行完整的受理流水线。返回的错误总是 *apperr.Error。
func (s *Service) Submit(ctx context.Context, req Request) (res *Result, err error) {
	stage := StageReceived
	defer func() {
		if err != nil {
			e := apperr.As(err)
			log.Printf("reservation rejected stage=%s code=%s preset=%d: %v", stage, e.Code, req.PresetID, e)
		}
	}()

	in, err := s.parse(req)
	if err != nil {
		return nil, err
	}
	stage = StageSchemaValid

	preset, err := s.store.FindPresetByID(ctx, req.PresetID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, apperr.NotFound("プリセットが見つかりません", "preset not found")
		}
		return nil, apperr.Database("find preset", err)
	}
	stage = StagePresetResolved

	if err := s.checkPreset(preset); err != nil {
		return nil, err
	}
	stage = StagePresetValid

	if err := checkFields(preset.Settings(), in); err != nil {
		return nil, err
	}
	stage = StageFieldsValid

	links := make([]model.PresetProduct, len(in.lines))
	for i, line := range in.lines {
		pp, err := matchProduct(preset.PresetProducts, line)
		if err != nil {
			return nil, err
		}
		links[i] = pp
	}
	stage = StageProductsValid

	r, items := s.build(preset, in, links)
	if err := s.store.CreateReservation(ctx, r, items); err != nil {
		return nil, apperr.Database("create reservation", err)
	}
	stage = StagePersisted

	res = &Result{
		ReservationID:     r.ID,
		ReservationNumber: r.ReservationNumber,
		CancelURL:         s.cancelURL(r),
		TotalAmount:       r.TotalAmount,
		PickupDate:        in.req.PickupDate,
		Status:            r.Status,
	}

	if s.notifier != nil {
		out := s.notifier.Dispatch(ctx, confirmation(r, items, res.CancelURL, in.req.PickupDate))
		res.NotificationDelivered = out.Delivered
	}
	stage = StageNotificationAttempted
	log.Printf("reservation accepted id=%s number=%s preset=%d notified=%t", r.ID, r.ReservationNumber, preset.ID, res.NotificationDelivered)
	return res, nil
}

// Get 按 ID 查询预约（含明细）。
func (s *Service) Get(ctx context.Context, id string) (*model.Reservation, error) {
	r, err := s.store.GetReservation(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, apperr.NotFound("予約が見つかりません", "reservation not found")
		}
		return nil, apperr.Database("get reservation", err)
	}
	return r, nil
}

// ListByLineUser 返回某个 LINE 用户的预约，最新的在前；没有预约时返回空切片。
func (s *Service) ListByLineUser(ctx context.Context, lineUserID string) ([]model.Reservation, error) {
	lineUserID = strings.TrimSpace(lineUserID)
	if lineUserID == "" {
		return nil, apperr.Validation("line_user_id", "LINEユーザーIDを指定してください", "line_user_id is required")
	}
	list, err := s.store.ListReservationsByLineUser(ctx, lineUserID)
	if err != nil {
		return nil, apperr.Database("list reservations", err)
	}
	if list == nil {
		list = []model.Reservation{}
	}
	return list, nil
}

// parse 重新检查 HTTP 层之外也必须成立的格式约束，并解析日期。
func (s *Service) parse(req Request) (*parsed, error) {
	if req.PresetID == 0 {
		return nil, apperr.Validation("preset_id", "プリセットIDを指定してください", "preset_id is required")
	}
	if strings.TrimSpace(req.UserName) == "" {
		return nil, apperr.Validation("user_name", "お名前を入力してください", "user_name is required")
	}
	if strings.TrimSpace(req.PhoneNumber) == "" {
		return nil, apperr.Validation("phone_number", "電話番号を入力してください", "phone_number is required")
	}
	if len(req.SelectedProducts) == 0 {
		return nil, apperr.Validation("selected_products", "商品を選択してください", "selected_products must not be empty")
	}
	if req.TotalAmount == nil || *req.TotalAmount < 0 {
		return nil, apperr.Validation("total_amount", "合計金額が不正です", "total_amount is required")
	}
	if *req.TotalAmount > MaxTotalAmount {
		return nil, apperr.Validation("total_amount", "合計金額が上限を超えています",
			fmt.Sprintf("total_amount must be at most %d", MaxTotalAmount))
	}

	pickup, err := parseDate(req.PickupDate)
	if err != nil {
		return nil, apperr.Validation("pickup_date", "受取日の形式が正しくありません", "pickup_date must be YYYY-MM-DD")
	}
	in := &parsed{req: req, pickup: pickup, total: *req.TotalAmount}

	if req.Birthday != "" {
		b, err := parseDate(req.Birthday)
		if err != nil {
			return nil, apperr.Validation("birthday", "生年月日の形式が正しくありません", "birthday must be YYYY-MM-DD")
		}
		in.birthday = &b
	}

	var sum int64
	for i, sp := range req.SelectedProducts {
		field := fmt.Sprintf("selected_products[%d]", i)
		if sp.ProductID == 0 {
			return nil, apperr.Validation(field+".product_id", "商品IDを指定してください", "product_id is required")
		}
		if sp.Quantity < 1 || sp.Quantity > MaxQuantity {
			return nil, apperr.Validation(field+".quantity", "数量は1〜99で指定してください",
				fmt.Sprintf("quantity must be between 1 and %d", MaxQuantity))
		}
		if sp.Price == nil || *sp.Price < 0 {
			return nil, apperr.Validation(field+".price", "価格が不正です", "price is required")
		}
		if *sp.Price > MaxPrice {
			return nil, apperr.Validation(field+".price", "価格が上限を超えています",
				fmt.Sprintf("price must be at most %d", MaxPrice))
		}
		line := parsedLine{SelectedProduct: sp, pickup: pickup, price: *sp.Price}
		if sp.PickupDate != "" {
			d, err := parseDate(sp.PickupDate)
			if err != nil {
				return nil, apperr.Validation(field+".pickup_date", "受取日の形式が正しくありません", "pickup_date must be YYYY-MM-DD")
			}
			line.pickup = d
		}
		in.lines = append(in.lines, line)
		sum += line.price * int64(sp.Quantity)
	}
	// 合计金额以明细为准，不一致即拒绝
	if sum != in.total {
		return nil, apperr.Validation("total_amount", "合計金額が商品の合計と一致しません",
			fmt.Sprintf("total_amount %d does not match the sum of line items %d", in.total, sum))
	}
	return in, nil
}

func (s *Service) checkPreset(p *model.Preset) error {
	if !p.IsActive {
		return apperr.Preset("無効なプリセットです", "invalid preset: preset is not active")
	}
	// 截止日当天仍可提交
	if p.FormExpiryDate != nil && civil(*p.FormExpiryDate).Before(s.today()) {
		return apperr.Preset("フォームの受付期限切れです", "preset expired: form expiry date has passed")
	}
	return nil
}

// checkFields 按表单设置检查条件必填字段。
func checkFields(fs model.FormSettings, in *parsed) error {
	req := in.req
	if fs.EnableBirthday && in.birthday == nil {
		return apperr.Validation("birthday", "生年月日を入力してください", "birthday is required")
	}
	if fs.EnableGender && req.Gender == "" {
		return apperr.Validation("gender", "性別を選択してください", "gender is required")
	}
	if fs.EnableFurigana && strings.TrimSpace(req.Furigana) == "" {
		return apperr.Validation("furigana", "ふりがなを入力してください", "furigana is required")
	}
	if fs.RequireAddress {
		if req.ZipCode == "" {
			return apperr.Validation("zip_code", "住所（郵便番号）を入力してください", "zip_code is required")
		}
		if strings.TrimSpace(req.Address1) == "" {
			return apperr.Validation("address1", "住所を入力してください", "address1 is required")
		}
	}
	return nil
}

// matchProduct 在预设商品中找到该行对应的关联，并检查启用、可见与取货期间。
// 同一商品有多条关联时优先选择启用且期间覆盖取货日的那条。
func matchProduct(links []model.PresetProduct, line parsedLine) (model.PresetProduct, error) {
	var (
		found  bool
		active []model.PresetProduct
	)
	for _, pp := range links {
		if pp.ProductID != line.ProductID {
			continue
		}
		found = true
		if pp.IsActive {
			active = append(active, pp)
		}
	}
	if !found {
		return model.PresetProduct{}, apperr.Product(line.ProductID,
			"選択された商品はこのプリセットでは予約できません",
			fmt.Sprintf("product %d is not part of the preset", line.ProductID))
	}
	if len(active) == 0 {
		return model.PresetProduct{}, apperr.Product(line.ProductID,
			"選択された商品は現在受付を停止しています",
			fmt.Sprintf("product %d is not active in the preset", line.ProductID))
	}

	pp := active[0]
	for _, cand := range active {
		if withinWindow(cand, line.pickup) {
			pp = cand
			break
		}
	}
	if !pp.Product.Visible {
		return model.PresetProduct{}, apperr.Product(line.ProductID,
			"選択された商品は現在販売されていません",
			fmt.Sprintf("product %d is not visible", line.ProductID))
	}
	if !withinWindow(pp, line.pickup) {
		return model.PresetProduct{}, apperr.Product(line.ProductID,
			"引き取り期間外の日付です",
			"pickup date is outside the pickup window")
	}
	return pp, nil
}

// withinWindow 判断取货日是否落在 [pickup_start, pickup_end]（含两端，nil 表示不限）。
func withinWindow(pp model.PresetProduct, day time.Time) bool {
	if pp.PickupStart != nil && day.Before(civil(*pp.PickupStart)) {
		return false
	}
	if pp.PickupEnd != nil && day.After(civil(*pp.PickupEnd)) {
		return false
	}
	return true
}

func (s *Service) build(p *model.Preset, in *parsed, links []model.PresetProduct) (*model.Reservation, []model.ReservationItem) {
	now := s.now().UTC()
	req := in.req
	r := &model.Reservation{
		ID:                uuid.NewString(),
		CreatedAt:         now,
		UpdatedAt:         now,
		ReservationNumber: s.reservationNumber(),
		PresetID:          p.ID,
		UserName:          strings.TrimSpace(req.UserName),
		Furigana:          strings.TrimSpace(req.Furigana),
		Gender:            req.Gender,
		Birthday:          in.birthday,
		PhoneNumber:       strings.TrimSpace(req.PhoneNumber),
		ZipCode:           req.ZipCode,
		Address1:          req.Address1,
		Address2:          req.Address2,
		Comment:           req.Comment,
		PickupDate:        in.pickup,
		TotalAmount:       in.total,
		Status:            model.ReservationConfirmed,
		LineUserID:        req.LineUserID,
		CancelToken:       uuid.NewString(),
	}

	items := make([]model.ReservationItem, len(in.lines))
	for i, line := range in.lines {
		tax := model.TaxType(line.TaxType)
		if tax == "" {
			tax = links[i].Product.TaxType
		}
		items[i] = model.ReservationItem{
			CreatedAt:     now,
			ReservationID: r.ID,
			ProductID:     line.ProductID,
			ProductName:   line.ProductName,
			VariationName: line.VariationName,
			Quantity:      line.Quantity,
			UnitPrice:     line.price,
			TotalPrice:    line.price * int64(line.Quantity),
			PickupDate:    line.pickup,
			TaxType:       tax,
		}
	}
	return r, items
}

// reservationNumber 生成面向顾客的预约号：R + 受理日 + 6 位十六进制。
func (s *Service) reservationNumber() string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:6])
	return "R" + s.today().Format("20060102") + suffix
}

func (s *Service) cancelURL(r *model.Reservation) string {
	return fmt.Sprintf("%s/cancel/%s?token=%s", s.cancelBaseURL, url.PathEscape(r.ID), url.QueryEscape(r.CancelToken))
}

// today 返回店铺时区的当前自然日。
func (s *Service) today() time.Time {
	return civil(s.now().In(s.loc))
}

func confirmation(r *model.Reservation, items []model.ReservationItem, cancelURL, pickup string) notify.Confirmation {
	c := notify.Confirmation{
		ReservationID:     r.ID,
		ReservationNumber: r.ReservationNumber,
		LineUserID:        r.LineUserID,
		UserName:          r.UserName,
		PickupDate:        pickup,
		TotalAmount:       r.TotalAmount,
		CancelURL:         cancelURL,
	}
	for _, it := range items {
		c.Items = append(c.Items, notify.Item{
			Name:          it.ProductName,
			VariationName: it.VariationName,
			Quantity:      it.Quantity,
			Price:         it.UnitPrice,
		})
	}
	return c
}

// civil 取时间值的年月日（忽略时区换算），日期列按自然日比较。
func civil(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func parseDate(s string) (time.Time, error) {
	return time.Parse(DateLayout, s)
}
