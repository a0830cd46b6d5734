package model

import (
	"time"
)

// TaxType 商品税区分（内税/外税）
type TaxType string

const (
	TaxIncluded TaxType = "内税"
	TaxExcluded TaxType = "外税"
)

// Product 商品目录；预约受理流程只读。
type Product struct {
	ID        uint      `gorm:"primarykey" json:"id" db:"id"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`

	Name          string  `gorm:"size:128;not null" json:"name" db:"name"`
	VariationName string  `gorm:"size:128" json:"variation_name" db:"variation_name"`
	Price         int64   `gorm:"not null;default:0" json:"price" db:"price"` // 单位：日元
	TaxType       TaxType `gorm:"size:8;not null;default:'内税'" json:"tax_type" db:"tax_type"`
	// Visible=false 的商品在任何预设下都不可预约。
	Visible      bool `gorm:"not null;default:true" json:"visible" db:"visible"`
	DisplayOrder int  `gorm:"not null;default:0" json:"display_order" db:"display_order"`
}

func (Product) TableName() string { return "products" }
