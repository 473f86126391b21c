package database

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// InitDatabase opens the SQLite database and creates the schema.
func InitDatabase(dbPath string) (*sql.DB, error) {
	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=on", dbPath)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// all writes go through one connection, which serializes catalog updates
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := CreateTables(db); err != nil {
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return db, nil
}

// CreateTables creates all tables of the shop
func CreateTables(db *sql.DB) error {
	tables := []struct {
		name string
		fn   func(*sql.DB) error
	}{
		{"users", createUsersTable},
		{"products", createProductsTable},
		{"orders", createOrdersTable},
		{"order_items", createOrderItemsTable},
		{"counters", createCountersTable},
		{"carts", createCartsTable},
	}

	for _, t := range tables {
		if err := t.fn(db); err != nil {
			return fmt.Errorf("create %s table: %w", t.name, err)
		}
	}
	return nil
}

func createUsersTable(db *sql.DB) error {
	const stmt = `
	CREATE TABLE IF NOT EXISTS users (
		telegram_id        INTEGER PRIMARY KEY,
		username           TEXT NOT NULL DEFAULT '',
		first_name         TEXT NOT NULL DEFAULT '',
		last_name          TEXT NOT NULL DEFAULT '',
		saved_full_name    TEXT NOT NULL DEFAULT '',
		saved_phone        TEXT NOT NULL DEFAULT '',
		saved_email        TEXT NOT NULL DEFAULT '',
		saved_city         TEXT NOT NULL DEFAULT '',
		saved_region       TEXT NOT NULL DEFAULT '',
		saved_address      TEXT NOT NULL DEFAULT '',
		preferred_delivery TEXT NOT NULL DEFAULT '',
		last_activity      DATETIME,
		created_at         DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	`
	_, err := db.Exec(stmt)
	return err
}

func createProductsTable(db *sql.DB) error {
	const stmt = `
	CREATE TABLE IF NOT EXISTS products (
		id           TEXT PRIMARY KEY,
		name         TEXT NOT NULL,
		category     TEXT NOT NULL,
		price        INTEGER NOT NULL,
		unit         TEXT NOT NULL,       -- piece | weight
		weight       INTEGER,             -- grams, weight unit only
		description  TEXT NOT NULL DEFAULT '',
		image        TEXT NOT NULL DEFAULT '',
		is_available INTEGER NOT NULL DEFAULT 1,
		stock        INTEGER NOT NULL DEFAULT 100,
		sold         INTEGER NOT NULL DEFAULT 0,
		created_at   DATETIME NOT NULL,
		updated_at   DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_products_category ON products(category);
	CREATE INDEX IF NOT EXISTS idx_products_price ON products(price);
	`
	_, err := db.Exec(stmt)
	return err
}

func createOrdersTable(db *sql.DB) error {
	const stmt = `
	CREATE TABLE IF NOT EXISTS orders (
		id              TEXT PRIMARY KEY,
		order_number    TEXT NOT NULL UNIQUE,
		user_id         INTEGER NOT NULL,     -- Telegram ID
		status          TEXT NOT NULL DEFAULT 'pending',
		full_name       TEXT NOT NULL DEFAULT '',
		phone           TEXT NOT NULL DEFAULT '',
		email           TEXT NOT NULL DEFAULT '',
		city            TEXT NOT NULL DEFAULT '',
		region          TEXT NOT NULL DEFAULT '',
		address         TEXT NOT NULL DEFAULT '',
		delivery_method TEXT NOT NULL DEFAULT '',
		comment         TEXT NOT NULL DEFAULT '',
		subtotal        INTEGER NOT NULL DEFAULT 0,
		delivery_price  INTEGER NOT NULL DEFAULT 0,
		total           INTEGER NOT NULL DEFAULT 0,
		is_from_moscow  INTEGER NOT NULL DEFAULT 0,
		paid_at         DATETIME,
		shipped_at      DATETIME,
		delivered_at    DATETIME,
		created_at      DATETIME NOT NULL,
		updated_at      DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_orders_user ON orders(user_id, created_at);
	CREATE INDEX IF NOT EXISTS idx_orders_status ON orders(status);
	`
	_, err := db.Exec(stmt)
	return err
}

func createOrderItemsTable(db *sql.DB) error {
	const stmt = `
	CREATE TABLE IF NOT EXISTS order_items (
		id         INTEGER PRIMARY KEY AUTOINCREMENT,
		order_id   TEXT NOT NULL REFERENCES orders(id) ON DELETE CASCADE,
		position   INTEGER NOT NULL,
		product_id TEXT NOT NULL,
		name       TEXT NOT NULL,      -- snapshot at order time
		unit       TEXT NOT NULL,
		weight     INTEGER NOT NULL DEFAULT 0,
		quantity   INTEGER NOT NULL,
		price      INTEGER NOT NULL,
		total      INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_order_items_order ON order_items(order_id, position);
	`
	_, err := db.Exec(stmt)
	return err
}

func createCountersTable(db *sql.DB) error {
	const stmt = `
	CREATE TABLE IF NOT EXISTS counters (
		name TEXT PRIMARY KEY,
		seq  INTEGER NOT NULL DEFAULT 0
	);
	`
	_, err := db.Exec(stmt)
	return err
}

func createCartsTable(db *sql.DB) error {
	const stmt = `
	CREATE TABLE IF NOT EXISTS carts (
		user_id    INTEGER PRIMARY KEY,
		items      TEXT NOT NULL,        -- JSON array
		updated_at DATETIME NOT NULL
	);
	`
	_, err := db.Exec(stmt)
	return err
}
