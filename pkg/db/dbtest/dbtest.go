// Package dbtest opens throwaway SQLite databases carrying the lifecycle schema.
package dbtest

import (
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/angelmondragon/brindes-backend/pkg/db"
	"github.com/angelmondragon/brindes-backend/pkg/db/models"
)

var seq atomic.Int64

var schema = []string{
	`CREATE TABLE cost_centers (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL UNIQUE,
		budget_ceiling NUMERIC,
		utilized_amount NUMERIC NOT NULL DEFAULT 0,
		manager_ceiling NUMERIC,
		event_ceiling NUMERIC,
		sector_ceiling NUMERIC,
		active BOOLEAN NOT NULL DEFAULT 1,
		created_at DATETIME,
		updated_at DATETIME
	)`,
	`CREATE TABLE inventory_items (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL UNIQUE,
		code TEXT,
		quantity INTEGER NOT NULL DEFAULT 0 CHECK (quantity >= 0),
		unit_price NUMERIC,
		min_stock INTEGER,
		active BOOLEAN NOT NULL DEFAULT 1,
		created_at DATETIME,
		updated_at DATETIME
	)`,
	`CREATE TABLE requests (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		number TEXT NOT NULL UNIQUE,
		requester_id INTEGER NOT NULL,
		cost_center_id INTEGER NOT NULL REFERENCES cost_centers(id),
		justification TEXT NOT NULL,
		purpose TEXT NOT NULL,
		delivery_address TEXT NOT NULL,
		requested_by_date DATETIME,
		total_amount NUMERIC NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		delivery_date DATETIME,
		notes TEXT,
		created_at DATETIME,
		updated_at DATETIME
	)`,
	`CREATE TABLE request_lines (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		request_id INTEGER NOT NULL REFERENCES requests(id) ON DELETE CASCADE,
		item_id INTEGER NOT NULL REFERENCES inventory_items(id),
		quantity INTEGER NOT NULL CHECK (quantity > 0),
		unit_price NUMERIC,
		delivered_quantity INTEGER,
		note TEXT
	)`,
	`CREATE TABLE approvals (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		request_id INTEGER NOT NULL REFERENCES requests(id) ON DELETE CASCADE,
		approver_id INTEGER NOT NULL,
		decision TEXT NOT NULL,
		observation TEXT,
		tier INTEGER NOT NULL,
		created_at DATETIME
	)`,
	`CREATE TABLE stock_movements (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		item_id INTEGER NOT NULL REFERENCES inventory_items(id),
		type TEXT NOT NULL,
		quantity INTEGER NOT NULL CHECK (quantity > 0),
		reason TEXT NOT NULL,
		note TEXT,
		actor_id INTEGER NOT NULL,
		created_at DATETIME
	)`,
	`CREATE TABLE outbox_events (
		id TEXT PRIMARY KEY,
		event_type TEXT NOT NULL,
		aggregate_type TEXT NOT NULL,
		aggregate_id INTEGER NOT NULL,
		payload TEXT NOT NULL,
		created_at DATETIME,
		published_at DATETIME,
		attempt_count INTEGER NOT NULL DEFAULT 0,
		last_error TEXT
	)`,
}

// Open returns an isolated in-memory database with the schema applied. A
// single pooled connection keeps every statement on the same database.
func Open(t *testing.T) *gorm.DB {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s_%d?mode=memory&cache=shared&_foreign_keys=on", name, seq.Add(1))
	conn, err := gorm.Open(sqlite.Open(dsn), db.GormConfig())
	require.NoError(t, err)

	sqlDB, err := conn.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	for _, stmt := range schema {
		require.NoError(t, conn.Exec(stmt).Error)
	}
	return conn
}

// Client wraps Open in a db.Client with a short transaction timeout.
func Client(t *testing.T) (*db.Client, *gorm.DB) {
	t.Helper()
	conn := Open(t)
	return db.NewFromConn(conn, db.TxOptions{Timeout: 5 * time.Second}), conn
}

// CreateCostCenter inserts center, defaulting it to active.
func CreateCostCenter(t *testing.T, conn *gorm.DB, center models.CostCenter) models.CostCenter {
	t.Helper()
	if center.Name == "" {
		center.Name = fmt.Sprintf("center-%d", seq.Add(1))
	}
	center.Active = true
	require.NoError(t, conn.Create(&center).Error)
	return center
}

// CreateItem inserts item, defaulting it to active.
func CreateItem(t *testing.T, conn *gorm.DB, item models.InventoryItem) models.InventoryItem {
	t.Helper()
	if item.Name == "" {
		item.Name = fmt.Sprintf("item-%d", seq.Add(1))
	}
	item.Active = true
	require.NoError(t, conn.Create(&item).Error)
	return item
}
