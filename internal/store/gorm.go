package store

import (
	"context"
	"errors"
	"fmt"

	"pickup_reserve/internal/model"
	"pickup_reserve/internal/notify"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormStore 基于 gorm 的存储实现。
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

// OpenSQLite 连接 SQLite 并自动建表。
func OpenSQLite(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("db open: %w", err)
	}
	// SQLite 写锁是库级别的，单连接避免 "database is locked"。
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("db handle: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(model.All()...); err != nil {
		return nil, fmt.Errorf("db migrate: %w", err)
	}
	return db, nil
}

// FindPresetByID 一次性加载预设聚合：表单设置、预设商品及商品。
func (s *GormStore) FindPresetByID(ctx context.Context, id uint) (*model.Preset, error) {
	var p model.Preset
	err := s.db.WithContext(ctx).
		Preload("FormSettings", func(db *gorm.DB) *gorm.DB {
			return db.Where("is_enabled = ?", true).Order("id ASC")
		}).
		Preload("PresetProducts", func(db *gorm.DB) *gorm.DB {
			return db.Order("display_order ASC, id ASC")
		}).
		Preload("PresetProducts.Product").
		First(&p, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find preset %d: %w", id, err)
	}
	return &p, nil
}

// CreateReservation 在同一事务内写入预约与明细，任一步失败整体回滚。
func (s *GormStore) CreateReservation(ctx context.Context, r *model.Reservation, items []model.ReservationItem) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit(clause.Associations).Create(r).Error; err != nil {
			return fmt.Errorf("insert reservation: %w", err)
		}
		if len(items) == 0 {
			return nil
		}
		for i := range items {
			items[i].ReservationID = r.ID
		}
		if err := tx.Create(&items).Error; err != nil {
			return fmt.Errorf("insert reservation items: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	r.Items = items
	return nil
}

// GetReservation 按 ID 查询预约（含明细）。
func (s *GormStore) GetReservation(ctx context.Context, id string) (*model.Reservation, error) {
	var r model.Reservation
	err := s.db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB {
			return db.Order("id ASC")
		}).
		Where("id = ?", id).
		First(&r).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get reservation %s: %w", id, err)
	}
	return &r, nil
}

// ListReservationsByLineUser 按 created_at 倒序列出某个 LINE 用户的预约。
func (s *GormStore) ListReservationsByLineUser(ctx context.Context, lineUserID string) ([]model.Reservation, error) {
	var list []model.Reservation
	err := s.db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB {
			return db.Order("id ASC")
		}).
		Where("line_user_id = ?", lineUserID).
		Order("created_at DESC, id ASC").
		Find(&list).Error
	if err != nil {
		return nil, fmt.Errorf("list reservations for %s: %w", lineUserID, err)
	}
	return list, nil
}

// RecordNotification 写入一条推送记录。
func (s *GormStore) RecordNotification(ctx context.Context, a notify.Attempt) error {
	entry := notificationLog(a)
	if err := s.db.WithContext(ctx).Create(&entry).Error; err != nil {
		return fmt.Errorf("insert notification log: %w", err)
	}
	return nil
}

func notificationLog(a notify.Attempt) model.NotificationLog {
	entry := model.NotificationLog{
		CreatedAt:     a.AttemptedAt,
		ReservationID: a.ReservationID,
		LineUserID:    a.LineUserID,
		Channel:       a.Channel,
		Type:          model.NotificationSent,
		Message:       a.Message,
		Error:         a.Error,
	}
	if !a.Delivered {
		entry.Type = model.NotificationError
	}
	return entry
}
