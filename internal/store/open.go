package store

import (
	"context"
	"time"

	"pickup_reserve/internal/config"
	"pickup_reserve/internal/model"
	"pickup_reserve/internal/notify"
)

// Backend 是 GormStore 与 PostgresStore 共同提供的读写能力。
type Backend interface {
	FindPresetByID(ctx context.Context, id uint) (*model.Preset, error)
	CreateReservation(ctx context.Context, r *model.Reservation, items []model.ReservationItem) error
	GetReservation(ctx context.Context, id string) (*model.Reservation, error)
	ListReservationsByLineUser(ctx context.Context, lineUserID string) ([]model.Reservation, error)
	notify.Recorder
}

// Open 按 DB_DRIVER 打开存储：SQLite（gorm，默认）或 PostgreSQL（sqlx）。返回的 close 负责释放连接。
func Open(cfg config.AppConfig) (Backend, func(), error) {
	switch cfg.DBDriver {
	case config.DriverPostgres:
		db, err := OpenPostgres(cfg.DBDSN, cfg.EnableTracing)
		if err != nil {
			return nil, nil, err
		}
		s := NewPostgresStore(db)
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.EnsureSchema(ctx); err != nil {
			db.Close()
			return nil, nil, err
		}
		return s, func() { db.Close() }, nil
	default:
		db, err := OpenSQLite(cfg.DBPath)
		if err != nil {
			return nil, nil, err
		}
		return NewGormStore(db), func() {
			if sqlDB, err := db.DB(); err == nil {
				sqlDB.Close()
			}
		}, nil
	}
}
