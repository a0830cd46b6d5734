package model

import (
	"time"
)

// Preset 预约活动：绑定表单设置与可预约商品（含取货时间窗）。
type Preset struct {
	ID        uint      `gorm:"primarykey" json:"id" db:"id"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`

	PresetName  string `gorm:"size:128;not null" json:"preset_name" db:"preset_name"`
	Description string `gorm:"size:512" json:"description" db:"description"`
	IsActive    bool   `gorm:"not null;default:true" json:"is_active" db:"is_active"`
	// FormExpiryDate 为 nil 表示不过期；截止日当天仍可提交。
	FormExpiryDate *time.Time `json:"form_expiry_date" db:"form_expiry_date"`

	FormSettings   []FormSettings  `gorm:"foreignKey:PresetID" json:"form_settings" db:"-"`
	PresetProducts []PresetProduct `gorm:"foreignKey:PresetID" json:"preset_products" db:"-"`
}

func (Preset) TableName() string { return "product_presets" }

// Settings 返回第一条启用的表单设置；没有启用的设置时返回全部关闭的默认值。
func (p *Preset) Settings() FormSettings {
	for _, fs := range p.FormSettings {
		if fs.IsEnabled {
			return fs
		}
	}
	return FormSettings{PresetID: p.ID}
}

// FormSettings 预设的表单字段要求
type FormSettings struct {
	ID        uint      `gorm:"primarykey" json:"id" db:"id"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`

	PresetID       uint `gorm:"not null;index" json:"preset_id" db:"preset_id"`
	EnableBirthday bool `gorm:"not null;default:false" json:"enable_birthday" db:"enable_birthday"`
	EnableGender   bool `gorm:"not null;default:false" json:"enable_gender" db:"enable_gender"`
	EnableFurigana bool `gorm:"not null;default:false" json:"enable_furigana" db:"enable_furigana"`
	RequireAddress bool `gorm:"not null;default:false" json:"require_address" db:"require_address"`
	RequirePhone   bool `gorm:"not null;default:true" json:"require_phone" db:"require_phone"`
	AllowNote      bool `gorm:"not null;default:true" json:"allow_note" db:"allow_note"`
	IsEnabled      bool `gorm:"not null;default:true" json:"is_enabled" db:"is_enabled"`
}

func (FormSettings) TableName() string { return "form_settings" }

// PresetProduct 预设与商品的绑定，每个商品有自己的取货时间窗。
type PresetProduct struct {
	ID        uint      `gorm:"primarykey" json:"id" db:"id"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`

	PresetID  uint `gorm:"not null;index" json:"preset_id" db:"preset_id"`
	ProductID uint `gorm:"not null;index" json:"product_id" db:"product_id"`
	// nil 表示该侧不限
	PickupStart  *time.Time `json:"pickup_start" db:"pickup_start"`
	PickupEnd    *time.Time `json:"pickup_end" db:"pickup_end"`
	IsActive     bool       `gorm:"not null;default:true" json:"is_active" db:"is_active"`
	DisplayOrder int        `gorm:"not null;default:0" json:"display_order" db:"display_order"`

	Product Product `gorm:"foreignKey:ProductID" json:"product" db:"-"`
}

func (PresetProduct) TableName() string { return "preset_products" }
