package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"seckill-service/internal/models"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

type Store struct {
	db *sqlx.DB
}

// NewStore creates a new database store
func NewStore(databaseURL string) (*Store, error) {
	db, err := sqlx.Connect("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// GetDB returns the underlying database connection
func (s *Store) GetDB() *sqlx.DB {
	return s.db
}

// EnsureSchema creates the tables and the unique indexes the idempotency
// guards depend on.
func (s *Store) EnsureSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS activities (
		id BIGSERIAL PRIMARY KEY,
		sku_id TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL DEFAULT '',
		total_stock BIGINT NOT NULL,
		purchase_limit INT NOT NULL DEFAULT 1,
		starts_at TIMESTAMPTZ NOT NULL,
		ends_at TIMESTAMPTZ NOT NULL,
		status TEXT NOT NULL DEFAULT 'ACTIVE',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE TABLE IF NOT EXISTS orders (
		id BIGSERIAL PRIMARY KEY,
		order_id TEXT NOT NULL UNIQUE,
		user_id TEXT NOT NULL,
		sku_id TEXT NOT NULL,
		quantity INT NOT NULL,
		status TEXT NOT NULL,
		paid_at TIMESTAMPTZ,
		cancelled_at TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);
	CREATE INDEX IF NOT EXISTS idx_orders_sku ON orders (sku_id);
	CREATE INDEX IF NOT EXISTS idx_orders_status_created ON orders (status, created_at);

	CREATE TABLE IF NOT EXISTS stock_ledger (
		id BIGSERIAL PRIMARY KEY,
		sku_id TEXT NOT NULL,
		order_id TEXT NOT NULL,
		operation TEXT NOT NULL,
		quantity INT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		UNIQUE (order_id, operation)
	);
	CREATE INDEX IF NOT EXISTS idx_stock_ledger_sku ON stock_ledger (sku_id);`

	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// GetActivityBySKU retrieves the activity configured for a SKU; a miss
// returns (nil, nil)
func (s *Store) GetActivityBySKU(ctx context.Context, skuID string) (*models.Activity, error) {
	var activity models.Activity
	err := s.db.GetContext(ctx, &activity, "SELECT * FROM activities WHERE sku_id = $1", skuID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &activity, nil
}

// ListActiveActivities retrieves all activities currently marked ACTIVE
func (s *Store) ListActiveActivities(ctx context.Context) ([]models.Activity, error) {
	var activities []models.Activity
	err := s.db.SelectContext(ctx, &activities,
		"SELECT * FROM activities WHERE status = $1 ORDER BY sku_id", models.ActivityStatusActive)
	return activities, err
}

// PauseActivity marks a SKU's activity PAUSED
func (s *Store) PauseActivity(ctx context.Context, skuID string) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE activities SET status = $1, updated_at = NOW() WHERE sku_id = $2",
		models.ActivityStatusPaused, skuID)
	return err
}

// CreateActivity inserts an activity row
func (s *Store) CreateActivity(ctx context.Context, activity *models.Activity) error {
	query := `
		INSERT INTO activities (sku_id, name, total_stock, purchase_limit, starts_at, ends_at, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at, updated_at`

	return s.db.GetContext(ctx, activity, query,
		activity.SKUID, activity.Name, activity.TotalStock, activity.PurchaseLimit,
		activity.StartsAt, activity.EndsAt, activity.Status)
}
