package reservation

import (
	"context"
	"errors"
	"time"

	"pickup_reserve/internal/apperr"
	"pickup_reserve/internal/model"
	"pickup_reserve/internal/store"
)

// FormConfig 预约表单初始化所需的数据：预设、表单设置和当前可选的商品。
type FormConfig struct {
	PresetID       uint               `json:"preset_id"`
	PresetName     string             `json:"preset_name"`
	Description    string             `json:"description,omitempty"`
	FormExpiryDate string             `json:"form_expiry_date,omitempty"`
	Settings       model.FormSettings `json:"form_settings"`
	Products       []FormProduct      `json:"products"`
}

type FormProduct struct {
	ProductID     uint          `json:"product_id"`
	Name          string        `json:"name"`
	VariationName string        `json:"variation_name,omitempty"`
	Price         int64         `json:"price"`
	TaxType       model.TaxType `json:"tax_type"`
	PickupStart   string        `json:"pickup_start,omitempty"`
	PickupEnd     string        `json:"pickup_end,omitempty"`
}

// FormConfig 返回可受理预设的表单配置；只列出启用且可见的商品，顺序同 display_order。
func (s *Service) FormConfig(ctx context.Context, presetID uint) (*FormConfig, error) {
	if presetID == 0 {
		return nil, apperr.Validation("preset_id", "プリセットIDが正しくありません", "invalid preset id")
	}
	p, err := s.store.FindPresetByID(ctx, presetID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, apperr.NotFound("プリセットが見つかりません", "preset not found")
		}
		return nil, apperr.Database("find preset", err)
	}
	if err := s.checkPreset(p); err != nil {
		return nil, err
	}

	out := &FormConfig{
		PresetID:       p.ID,
		PresetName:     p.PresetName,
		Description:    p.Description,
		FormExpiryDate: formatDate(p.FormExpiryDate),
		Settings:       p.Settings(),
		Products:       []FormProduct{},
	}
	for _, pp := range p.PresetProducts {
		if !pp.IsActive || !pp.Product.Visible {
			continue
		}
		out.Products = append(out.Products, FormProduct{
			ProductID:     pp.ProductID,
			Name:          pp.Product.Name,
			VariationName: pp.Product.VariationName,
			Price:         pp.Product.Price,
			TaxType:       pp.Product.TaxType,
			PickupStart:   formatDate(pp.PickupStart),
			PickupEnd:     formatDate(pp.PickupEnd),
		})
	}
	return out, nil
}

func formatDate(t *time.Time) string {
	if t == nil {
		return ""
	}
	return civil(*t).Format(DateLayout)
}
