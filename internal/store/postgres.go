package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"time"

	"pickup_reserve/internal/model"
	"pickup_reserve/internal/notify"

	"github.com/aws/aws-xray-sdk-go/xray"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

// PostgresSchema 是 PostgresStore 依赖的最小表结构。
const PostgresSchema = `
CREATE TABLE IF NOT EXISTS products (
	id             BIGSERIAL PRIMARY KEY,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at     TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	name           VARCHAR(128) NOT NULL,
	variation_name VARCHAR(128) NOT NULL DEFAULT '',
	price          BIGINT NOT NULL DEFAULT 0,
	tax_type       VARCHAR(8) NOT NULL DEFAULT '内税',
	visible        BOOLEAN NOT NULL DEFAULT TRUE,
	display_order  INT NOT NULL DEFAULT 0
);
CREATE TABLE IF NOT EXISTS product_presets (
	id               BIGSERIAL PRIMARY KEY,
	created_at       TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at       TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	preset_name      VARCHAR(128) NOT NULL,
	description      VARCHAR(512) NOT NULL DEFAULT '',
	is_active        BOOLEAN NOT NULL DEFAULT TRUE,
	form_expiry_date DATE
);
CREATE TABLE IF NOT EXISTS form_settings (
	id              BIGSERIAL PRIMARY KEY,
	created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	preset_id       BIGINT NOT NULL REFERENCES product_presets(id),
	enable_birthday BOOLEAN NOT NULL DEFAULT FALSE,
	enable_gender   BOOLEAN NOT NULL DEFAULT FALSE,
	enable_furigana BOOLEAN NOT NULL DEFAULT FALSE,
	require_address BOOLEAN NOT NULL DEFAULT FALSE,
	require_phone   BOOLEAN NOT NULL DEFAULT TRUE,
	allow_note      BOOLEAN NOT NULL DEFAULT TRUE,
	is_enabled      BOOLEAN NOT NULL DEFAULT TRUE
);
CREATE TABLE IF NOT EXISTS preset_products (
	id            BIGSERIAL PRIMARY KEY,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	preset_id     BIGINT NOT NULL REFERENCES product_presets(id),
	product_id    BIGINT NOT NULL REFERENCES products(id),
	pickup_start  DATE,
	pickup_end    DATE,
	is_active     BOOLEAN NOT NULL DEFAULT TRUE,
	display_order INT NOT NULL DEFAULT 0
);
CREATE TABLE IF NOT EXISTS reservations (
	id                 VARCHAR(36) PRIMARY KEY,
	created_at         TIMESTAMPTZ NOT NULL,
	updated_at         TIMESTAMPTZ NOT NULL,
	reservation_number VARCHAR(32) NOT NULL UNIQUE,
	preset_id          BIGINT NOT NULL,
	user_name          VARCHAR(64) NOT NULL,
	furigana           VARCHAR(64) NOT NULL DEFAULT '',
	gender             VARCHAR(8) NOT NULL DEFAULT '',
	birthday           DATE,
	phone_number       VARCHAR(20) NOT NULL,
	zip_code           VARCHAR(8) NOT NULL DEFAULT '',
	address1           VARCHAR(255) NOT NULL DEFAULT '',
	address2           VARCHAR(255) NOT NULL DEFAULT '',
	comment            VARCHAR(500) NOT NULL DEFAULT '',
	pickup_date        DATE NOT NULL,
	total_amount       BIGINT NOT NULL,
	status             VARCHAR(16) NOT NULL DEFAULT 'confirmed',
	line_user_id       VARCHAR(64) NOT NULL DEFAULT '',
	cancel_token       VARCHAR(36) NOT NULL UNIQUE
);
CREATE TABLE IF NOT EXISTS reservation_items (
	id             BIGSERIAL PRIMARY KEY,
	created_at     TIMESTAMPTZ NOT NULL,
	reservation_id VARCHAR(36) NOT NULL REFERENCES reservations(id) ON DELETE CASCADE,
	product_id     BIGINT NOT NULL,
	product_name   VARCHAR(128) NOT NULL,
	variation_name VARCHAR(128) NOT NULL DEFAULT '',
	quantity       INT NOT NULL,
	unit_price     BIGINT NOT NULL,
	total_price    BIGINT NOT NULL,
	pickup_date    DATE NOT NULL,
	tax_type       VARCHAR(8) NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_reservations_line_user_id ON reservations (line_user_id, created_at DESC);
CREATE TABLE IF NOT EXISTS notification_logs (
	id             BIGSERIAL PRIMARY KEY,
	created_at     TIMESTAMPTZ NOT NULL,
	reservation_id VARCHAR(36) NOT NULL DEFAULT '',
	line_user_id   VARCHAR(64) NOT NULL,
	channel        VARCHAR(16) NOT NULL,
	type           VARCHAR(16) NOT NULL,
	message        TEXT NOT NULL DEFAULT '',
	error          TEXT NOT NULL DEFAULT ''
);
`

// PostgresStore 基于 sqlx 的存储实现。
type PostgresStore struct {
	db *sqlx.DB
}

func NewPostgresStore(db *sqlx.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// OpenPostgres 连接 PostgreSQL；tracing 为 true 时通过 X-Ray 包装驱动。
func OpenPostgres(dsn string, tracing bool) (*sqlx.DB, error) {
	var db *sqlx.DB
	if tracing {
		sqlDB, err := xray.SQLContext("postgres", dsn)
		if err != nil {
			return nil, fmt.Errorf("failed to open database with X-Ray: %w", err)
		}
		db = sqlx.NewDb(sqlDB, "postgres")
	} else {
		conn, err := sqlx.Open("postgres", dsn)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}
		db = conn
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return db, nil
}

// EnsureSchema 执行 PostgresSchema（幂等）。
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, PostgresSchema); err != nil {
		return fmt.Errorf("failed to ensure schema: %w", err)
	}
	return nil
}

// presetProductRow 是 preset_products JOIN products 的扁平行。
type presetProductRow struct {
	ID           uint       `db:"id"`
	CreatedAt    time.Time  `db:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at"`
	PresetID     uint       `db:"preset_id"`
	ProductID    uint       `db:"product_id"`
	PickupStart  *time.Time `db:"pickup_start"`
	PickupEnd    *time.Time `db:"pickup_end"`
	IsActive     bool       `db:"is_active"`
	DisplayOrder int        `db:"display_order"`

	ProductName          string        `db:"p_name"`
	ProductVariationName string        `db:"p_variation_name"`
	ProductPrice         int64         `db:"p_price"`
	ProductTaxType       model.TaxType `db:"p_tax_type"`
	ProductVisible       bool          `db:"p_visible"`
	ProductDisplayOrder  int           `db:"p_display_order"`
}

func (r presetProductRow) toModel() model.PresetProduct {
	return model.PresetProduct{
		ID:           r.ID,
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
		PresetID:     r.PresetID,
		ProductID:    r.ProductID,
		PickupStart:  r.PickupStart,
		PickupEnd:    r.PickupEnd,
		IsActive:     r.IsActive,
		DisplayOrder: r.DisplayOrder,
		Product: model.Product{
			ID:            r.ProductID,
			Name:          r.ProductName,
			VariationName: r.ProductVariationName,
			Price:         r.ProductPrice,
			TaxType:       r.ProductTaxType,
			Visible:       r.ProductVisible,
			DisplayOrder:  r.ProductDisplayOrder,
		},
	}
}

// FindPresetByID 加载预设聚合：预设、表单设置、预设商品（JOIN 商品）。
func (s *PostgresStore) FindPresetByID(ctx context.Context, id uint) (*model.Preset, error) {
	var p model.Preset
	err := s.db.GetContext(ctx, &p, `
		SELECT id, created_at, updated_at, preset_name, description, is_active, form_expiry_date
		FROM product_presets
		WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get preset %d: %w", id, err)
	}

	if err := s.db.SelectContext(ctx, &p.FormSettings, `
		SELECT id, created_at, updated_at, preset_id, enable_birthday, enable_gender,
			enable_furigana, require_address, require_phone, allow_note, is_enabled
		FROM form_settings
		WHERE preset_id = $1 AND is_enabled = TRUE
		ORDER BY id ASC`, id); err != nil {
		return nil, fmt.Errorf("failed to get form settings for preset %d: %w", id, err)
	}

	var rows []presetProductRow
	if err := s.db.SelectContext(ctx, &rows, `
		SELECT
			pp.id, pp.created_at, pp.updated_at, pp.preset_id, pp.product_id,
			pp.pickup_start, pp.pickup_end, pp.is_active, pp.display_order,
			p.name AS p_name,
			p.variation_name AS p_variation_name,
			p.price AS p_price,
			p.tax_type AS p_tax_type,
			p.visible AS p_visible,
			p.display_order AS p_display_order
		FROM preset_products pp
		JOIN products p ON p.id = pp.product_id
		WHERE pp.preset_id = $1
		ORDER BY pp.display_order ASC, pp.id ASC`, id); err != nil {
		return nil, fmt.Errorf("failed to get preset products for preset %d: %w", id, err)
	}
	p.PresetProducts = make([]model.PresetProduct, 0, len(rows))
	for _, r := range rows {
		p.PresetProducts = append(p.PresetProducts, r.toModel())
	}

	return &p, nil
}

// CreateReservation 在同一事务内写入预约与明细。
func (s *PostgresStore) CreateReservation(ctx context.Context, r *model.Reservation, items []model.ReservationItem) (err error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				log.Printf("rollback failed: %v, original error: %v", rbErr, err)
			}
		}
	}()

	_, err = tx.NamedExecContext(ctx, `
		INSERT INTO reservations (
			id, created_at, updated_at, reservation_number, preset_id,
			user_name, furigana, gender, birthday, phone_number,
			zip_code, address1, address2, comment,
			pickup_date, total_amount, status, line_user_id, cancel_token
		) VALUES (
			:id, :created_at, :updated_at, :reservation_number, :preset_id,
			:user_name, :furigana, :gender, :birthday, :phone_number,
			:zip_code, :address1, :address2, :comment,
			:pickup_date, :total_amount, :status, :line_user_id, :cancel_token
		)`, r)
	if err != nil {
		return fmt.Errorf("failed to insert reservation: %w", err)
	}

	for i := range items {
		items[i].ReservationID = r.ID
		err = tx.QueryRowxContext(ctx, `
			INSERT INTO reservation_items (
				created_at, reservation_id, product_id, product_name, variation_name,
				quantity, unit_price, total_price, pickup_date, tax_type
			) VALUES (
				$1, $2, $3, $4, $5, $6, $7, $8, $9, $10
			)
			RETURNING id`,
			items[i].CreatedAt,
			items[i].ReservationID,
			items[i].ProductID,
			items[i].ProductName,
			items[i].VariationName,
			items[i].Quantity,
			items[i].UnitPrice,
			items[i].TotalPrice,
			items[i].PickupDate,
			items[i].TaxType,
		).Scan(&items[i].ID)
		if err != nil {
			return fmt.Errorf("failed to insert reservation item: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	r.Items = items
	return nil
}

// GetReservation 按 ID 查询预约（含明细）。
func (s *PostgresStore) GetReservation(ctx context.Context, id string) (*model.Reservation, error) {
	var r model.Reservation
	err := s.db.GetContext(ctx, &r, `
		SELECT id, created_at, updated_at, reservation_number, preset_id,
			user_name, furigana, gender, birthday, phone_number,
			zip_code, address1, address2, comment,
			pickup_date, total_amount, status, line_user_id, cancel_token
		FROM reservations
		WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get reservation %s: %w", id, err)
	}

	if err := s.db.SelectContext(ctx, &r.Items, `
		SELECT id, created_at, reservation_id, product_id, product_name, variation_name,
			quantity, unit_price, total_price, pickup_date, tax_type
		FROM reservation_items
		WHERE reservation_id = $1
		ORDER BY id ASC`, id); err != nil {
		return nil, fmt.Errorf("failed to get reservation items for %s: %w", id, err)
	}
	return &r, nil
}

// ListReservationsByLineUser 按 created_at 倒序列出某个 LINE 用户的预约（含明细）。
func (s *PostgresStore) ListReservationsByLineUser(ctx context.Context, lineUserID string) ([]model.Reservation, error) {
	var list []model.Reservation
	if err := s.db.SelectContext(ctx, &list, `
		SELECT id, created_at, updated_at, reservation_number, preset_id,
			user_name, furigana, gender, birthday, phone_number,
			zip_code, address1, address2, comment,
			pickup_date, total_amount, status, line_user_id, cancel_token
		FROM reservations
		WHERE line_user_id = $1
		ORDER BY created_at DESC, id ASC`, lineUserID); err != nil {
		return nil, fmt.Errorf("failed to list reservations for %s: %w", lineUserID, err)
	}
	if len(list) == 0 {
		return list, nil
	}

	ids := make([]string, len(list))
	index := make(map[string]int, len(list))
	for i, r := range list {
		ids[i] = r.ID
		index[r.ID] = i
	}
	query, args, err := sqlx.In(`
		SELECT id, created_at, reservation_id, product_id, product_name, variation_name,
			quantity, unit_price, total_price, pickup_date, tax_type
		FROM reservation_items
		WHERE reservation_id IN (?)
		ORDER BY id ASC`, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to build items query: %w", err)
	}
	var items []model.ReservationItem
	if err := s.db.SelectContext(ctx, &items, s.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to list reservation items for %s: %w", lineUserID, err)
	}
	for _, it := range items {
		i := index[it.ReservationID]
		list[i].Items = append(list[i].Items, it)
	}
	return list, nil
}

// RecordNotification 写入一条推送记录。
func (s *PostgresStore) RecordNotification(ctx context.Context, a notify.Attempt) error {
	entry := notificationLog(a)
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO notification_logs (
			created_at, reservation_id, line_user_id, channel, type, message, error
		) VALUES (
			:created_at, :reservation_id, :line_user_id, :channel, :type, :message, :error
		)`, entry)
	if err != nil {
		return fmt.Errorf("failed to insert notification log: %w", err)
	}
	return nil
}
