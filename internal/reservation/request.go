package reservation

import (
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

// DateLayout 请求中日期字段的格式。
const DateLayout = "2006-01-02"

// 金额上限（日元）。MaxQuantity*MaxPrice*10 行仍在 int64 范围内。
const (
	MaxQuantity    = 99
	MaxPrice       = 10_000_000
	MaxTotalAmount = 1_000_000_000
)

// Request 预约提交请求，binding 标签由 gin 的 validator 校验。
type Request struct {
	PresetID         uint              `json:"preset_id" binding:"required,min=1"`
	UserName         string            `json:"user_name" binding:"required,max=50"`
	Furigana         string            `json:"furigana" binding:"omitempty,max=50"`
	Gender           string            `json:"gender" binding:"omitempty,oneof=男性 女性 その他"`
	Birthday         string            `json:"birthday" binding:"omitempty,datetime=2006-01-02"`
	PhoneNumber      string            `json:"phone_number" binding:"required,jpphone"`
	ZipCode          string            `json:"zip_code" binding:"omitempty,jpzip"`
	Address1         string            `json:"address1" binding:"omitempty,max=255"`
	Address2         string            `json:"address2" binding:"omitempty,max=255"`
	Comment          string            `json:"comment" binding:"omitempty,max=500"`
	SelectedProducts []SelectedProduct `json:"selected_products" binding:"required,min=1,max=10,dive"`
	// 指针用于区分 0 与缺失
	TotalAmount *int64 `json:"total_amount" binding:"required,min=0,max=1000000000"`
	PickupDate  string `json:"pickup_date" binding:"required,datetime=2006-01-02"`
	LineUserID  string `json:"line_user_id" binding:"omitempty,max=64"`
}

// SelectedProduct 请求中的一行商品。
type SelectedProduct struct {
	ProductID     uint   `json:"product_id" binding:"required,min=1"`
	ProductName   string `json:"product_name" binding:"required,max=128"`
	VariationName string `json:"variation_name" binding:"omitempty,max=128"`
	Quantity      int    `json:"quantity" binding:"required,min=1,max=99"`
	Price         *int64 `json:"price" binding:"required,min=0,max=10000000"`
	// 为空时沿用整单的 pickup_date
	PickupDate string `json:"pickup_date" binding:"omitempty,datetime=2006-01-02"`
	TaxType    string `json:"tax_type" binding:"omitempty,oneof=内税 外税"`
}

var (
	phonePattern = regexp.MustCompile(`^0\d{1,4}-\d{1,4}-\d{4}$|^0\d{9,10}$`)
	zipPattern   = regexp.MustCompile(`^\d{3}-\d{4}$`)
)

// RegisterValidators 注册自定义规则（jpphone / jpzip），并让错误里的字段名使用 json 名。
func RegisterValidators(v *validator.Validate) error {
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	if err := v.RegisterValidation("jpphone", func(fl validator.FieldLevel) bool {
		return phonePattern.MatchString(fl.Field().String())
	}); err != nil {
		return err
	}
	return v.RegisterValidation("jpzip", func(fl validator.FieldLevel) bool {
		return zipPattern.MatchString(fl.Field().String())
	})
}
