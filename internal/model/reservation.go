package model

import (
	"time"
)

// ReservationStatus 预约状态；受理流程只会写入 confirmed。
type ReservationStatus string

const (
	ReservationPending   ReservationStatus = "pending"
	ReservationConfirmed ReservationStatus = "confirmed"
	ReservationCancelled ReservationStatus = "cancelled"
	ReservationCompleted ReservationStatus = "completed"
)

// Reservation 已受理的预约。受理流程只创建，不修改。
type Reservation struct {
	ID        string    `gorm:"primarykey;size:36" json:"id" db:"id"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`

	ReservationNumber string `gorm:"size:32;uniqueIndex;not null" json:"reservation_number" db:"reservation_number"`
	PresetID          uint   `gorm:"not null;index" json:"preset_id" db:"preset_id"`

	UserName    string     `gorm:"size:64;not null" json:"user_name" db:"user_name"`
	Furigana    string     `gorm:"size:64" json:"furigana,omitempty" db:"furigana"`
	Gender      string     `gorm:"size:8" json:"gender,omitempty" db:"gender"`
	Birthday    *time.Time `json:"birthday,omitempty" db:"birthday"`
	PhoneNumber string     `gorm:"size:20;not null" json:"phone_number" db:"phone_number"`
	ZipCode     string     `gorm:"size:8" json:"zip_code,omitempty" db:"zip_code"`
	Address1    string     `gorm:"size:255" json:"address1,omitempty" db:"address1"`
	Address2    string     `gorm:"size:255" json:"address2,omitempty" db:"address2"`
	Comment     string     `gorm:"size:500" json:"comment,omitempty" db:"comment"`

	PickupDate  time.Time         `gorm:"not null" json:"pickup_date" db:"pickup_date"`
	TotalAmount int64             `gorm:"not null" json:"total_amount" db:"total_amount"` // 单位：日元
	Status      ReservationStatus `gorm:"size:16;not null;default:'confirmed';index" json:"status" db:"status"`
	LineUserID  string            `gorm:"size:64;index" json:"line_user_id,omitempty" db:"line_user_id"`
	// CancelToken 只出现在取消链接里，不随接口返回。
	CancelToken string `gorm:"size:36;uniqueIndex;not null" json:"-" db:"cancel_token"`

	Items []ReservationItem `gorm:"foreignKey:ReservationID" json:"items" db:"-"`
}

func (Reservation) TableName() string { return "reservations" }

// ReservationItem 预约明细行
type ReservationItem struct {
	ID        uint      `gorm:"primarykey" json:"id" db:"id"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`

	ReservationID string    `gorm:"size:36;not null;index" json:"reservation_id" db:"reservation_id"`
	ProductID     uint      `gorm:"not null;index" json:"product_id" db:"product_id"`
	ProductName   string    `gorm:"size:128;not null" json:"product_name" db:"product_name"`
	VariationName string    `gorm:"size:128" json:"variation_name,omitempty" db:"variation_name"`
	Quantity      int       `gorm:"not null" json:"quantity" db:"quantity"`
	UnitPrice     int64     `gorm:"not null" json:"unit_price" db:"unit_price"`
	TotalPrice    int64     `gorm:"not null" json:"total_price" db:"total_price"`
	PickupDate    time.Time `gorm:"not null" json:"pickup_date" db:"pickup_date"`
	TaxType       TaxType   `gorm:"size:8" json:"tax_type,omitempty" db:"tax_type"`
}

func (ReservationItem) TableName() string { return "reservation_items" }

// All 返回需要 AutoMigrate 的全部模型。
func All() []any {
	return []any{
		&Product{},
		&Preset{},
		&FormSettings{},
		&PresetProduct{},
		&Reservation{},
		&ReservationItem{},
		&NotificationLog{},
	}
}
