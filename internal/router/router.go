package router

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"pickup_reserve/internal/apperr"
	"pickup_reserve/internal/model"
	"pickup_reserve/internal/reservation"
	"pickup_reserve/pkg/resp"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

// Reservations 是 HTTP 层依赖的受理服务，*reservation.Service 即为实现。
type Reservations interface {
	Submit(ctx context.Context, req reservation.Request) (*reservation.Result, error)
	Get(ctx context.Context, id string) (*model.Reservation, error)
	ListByLineUser(ctx context.Context, lineUserID string) ([]model.Reservation, error)
	FormConfig(ctx context.Context, presetID uint) (*reservation.FormConfig, error)
}

type Deps struct {
	Reservations Reservations
	// RateLimit 只作用于提交接口；nil 表示不限流。
	RateLimit gin.HandlerFunc
}

// Setup 注册全部 HTTP 路由。
func Setup(r *gin.Engine, deps Deps) error {
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		if err := reservation.RegisterValidators(v); err != nil {
			return fmt.Errorf("register validators: %w", err)
		}
	}

	r.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"msg": "pong"})
	})

	submit := []gin.HandlerFunc{createReservation(deps.Reservations)}
	if deps.RateLimit != nil {
		submit = append([]gin.HandlerFunc{deps.RateLimit}, submit...)
	}
	api := r.Group("/api")
	api.POST("/reservations", submit...)
	api.GET("/reservations", listReservations(deps.Reservations))
	api.GET("/reservations/:reservation_id", getReservation(deps.Reservations))
	api.GET("/presets/:preset_id/config", getFormConfig(deps.Reservations))
	return nil
}

// createReservation 预约提交入口：绑定并校验请求后交给受理流水线。
func createReservation(svc Reservations) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req reservation.Request
		if err := c.ShouldBindJSON(&req); err != nil {
			resp.Fail(c, bindError(err))
			return
		}
		res, err := svc.Submit(c.Request.Context(), req)
		if err != nil {
			resp.Fail(c, apperr.As(err))
			return
		}
		resp.Created(c, res)
	}
}

// getReservation 按 ID 查询预约。
func getReservation(svc Reservations) gin.HandlerFunc {
	return func(c *gin.Context) {
		r, err := svc.Get(c.Request.Context(), c.Param("reservation_id"))
		if err != nil {
			resp.Fail(c, apperr.As(err))
			return
		}
		resp.OK(c, r)
	}
}

// listReservations 按 LINE 用户列出预约，最新的在前。userId 为旧客户端使用的参数名。
func listReservations(svc Reservations) gin.HandlerFunc {
	return func(c *gin.Context) {
		lineUserID := c.Query("line_user_id")
		if lineUserID == "" {
			lineUserID = c.Query("userId")
		}
		list, err := svc.ListByLineUser(c.Request.Context(), lineUserID)
		if err != nil {
			resp.Fail(c, apperr.As(err))
			return
		}
		resp.OK(c, gin.H{"reservations": list, "total": len(list)})
	}
}

// getFormConfig 返回预约表单的配置（设置 + 可选商品）。
func getFormConfig(svc Reservations) gin.HandlerFunc {
	return func(c *gin.Context) {
		// 32 bit 十进制
		id, err := strconv.ParseUint(c.Param("preset_id"), 10, 32)
		if err != nil || id == 0 {
			resp.Fail(c, apperr.Validation("preset_id", "プリセットIDが正しくありません", "invalid preset id"))
			return
		}
		cfg, err := svc.FormConfig(c.Request.Context(), uint(id))
		if err != nil {
			resp.Fail(c, apperr.As(err))
			return
		}
		resp.OK(c, cfg)
	}
}

// fieldLabels 校验失败时展示给用户的字段名。
var fieldLabels = map[string]string{
	"preset_id":         "プリセットID",
	"user_name":         "お名前",
	"furigana":          "ふりがな",
	"gender":            "性別",
	"birthday":          "生年月日",
	"phone_number":      "電話番号",
	"zip_code":          "郵便番号",
	"address1":          "住所",
	"address2":          "住所（建物名など）",
	"comment":           "備考",
	"selected_products": "商品",
	"total_amount":      "合計金額",
	"pickup_date":       "受取日",
	"line_user_id":      "LINEユーザーID",
	"product_id":        "商品ID",
	"product_name":      "商品名",
	"variation_name":    "バリエーション",
	"quantity":          "数量",
	"price":             "価格",
	"tax_type":          "税区分",
}

// bindError 把 JSON 解码错误与 validator 错误统一转为 VALIDATION_ERROR，并指出第一个出错字段。
func bindError(err error) *apperr.Error {
	var (
		verrs   validator.ValidationErrors
		typeErr *json.UnmarshalTypeError
		synErr  *json.SyntaxError
	)
	switch {
	case errors.As(err, &verrs) && len(verrs) > 0:
		fe := verrs[0]
		field := fieldPath(fe.Namespace())
		label, ok := fieldLabels[fe.Field()]
		if !ok {
			label = fe.Field()
		}
		detail := label + "の入力内容が正しくありません"
		if fe.Tag() == "required" {
			detail = label + "を入力してください"
		}
		return apperr.Validation(field, detail, fmt.Sprintf("validation failed on %s: %s", field, fe.Tag()))
	case errors.As(err, &typeErr):
		return apperr.Validation(typeErr.Field, "入力形式が正しくありません",
			fmt.Sprintf("invalid type for %s: expected %s", typeErr.Field, typeErr.Type))
	case errors.As(err, &synErr):
		return apperr.Validation("", "リクエストの形式が正しくありません", "malformed JSON body")
	default:
		return apperr.Validation("", "リクエストの形式が正しくありません", "invalid request body: "+err.Error())
	}
}

// fieldPath 去掉 validator 命名空间里的结构体名：Request.selected_products[0].quantity → selected_products[0].quantity
func fieldPath(ns string) string {
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return ns
}
