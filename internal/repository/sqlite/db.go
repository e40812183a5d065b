// Package sqlite provides SQLite implementations of the repository interfaces.
// Money columns are stored as TEXT decimals and line items as JSON.
package sqlite

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"motoshop/internal/repository"

	_ "modernc.org/sqlite"
)

// DB wraps the sql.DB with SQLite-specific optimizations
type DB struct {
	*sql.DB
}

// New opens the shop database. A single connection serialises writers, which
// keeps read-modify-write updates such as balance adjustments consistent.
func New(dbPath string) (*DB, error) {
	cleanPath := filepath.Clean(dbPath)

	if !filepath.IsLocal(cleanPath) && !filepath.IsAbs(cleanPath) {
		return nil, fmt.Errorf("invalid database path: potential path traversal detected")
	}

	dir := filepath.Dir(cleanPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	dsn := fmt.Sprintf("%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)&_pragma=cache_size(2000)", cleanPath)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	return &DB{db}, nil
}

// Migrate runs database migrations
func (db *DB) Migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			email TEXT UNIQUE NOT NULL,
			password_hash TEXT NOT NULL,
			name TEXT NOT NULL,
			phone TEXT,
			role TEXT DEFAULT 'technician',
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`ALTER TABLE users ADD COLUMN branch_id TEXT NOT NULL DEFAULT ''`,

		`CREATE TABLE IF NOT EXISTS work_orders (
			id TEXT NOT NULL,
			branch_id TEXT NOT NULL,
			customer_name TEXT NOT NULL,
			customer_phone TEXT NOT NULL,
			vehicle_model TEXT NOT NULL DEFAULT '',
			license_plate TEXT NOT NULL DEFAULT '',
			vehicle_id TEXT NOT NULL DEFAULT '',
			mileage INTEGER NOT NULL DEFAULT 0,
			issue TEXT NOT NULL DEFAULT '',
			technician TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL DEFAULT 'received',
			labor_cost TEXT NOT NULL DEFAULT '0',
			discount TEXT NOT NULL DEFAULT '0',
			parts_json TEXT NOT NULL DEFAULT '[]',
			services_json TEXT NOT NULL DEFAULT '[]',
			total TEXT NOT NULL DEFAULT '0',
			payment_status TEXT NOT NULL DEFAULT 'unpaid',
			deposit_amount TEXT NOT NULL DEFAULT '0',
			additional_payment TEXT NOT NULL DEFAULT '0',
			total_paid TEXT NOT NULL DEFAULT '0',
			remaining_amount TEXT NOT NULL DEFAULT '0',
			payment_source_id TEXT NOT NULL DEFAULT '',
			refunded INTEGER NOT NULL DEFAULT 0,
			refund_reason TEXT NOT NULL DEFAULT '',
			refunded_at DATETIME,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME,
			PRIMARY KEY (branch_id, id)
		)`,

		`CREATE TABLE IF NOT EXISTS work_order_status_history (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			work_order_id TEXT NOT NULL,
			status TEXT NOT NULL,
			notes TEXT,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE TABLE IF NOT EXISTS payment_sources (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			kind TEXT NOT NULL DEFAULT 'cash',
			balance TEXT NOT NULL DEFAULT '0',
			branch_id TEXT NOT NULL,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE TABLE IF NOT EXISTS cash_transactions (
			id TEXT PRIMARY KEY,
			type TEXT NOT NULL,
			category TEXT NOT NULL,
			amount TEXT NOT NULL,
			date DATETIME NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			branch_id TEXT NOT NULL,
			payment_source_id TEXT NOT NULL DEFAULT '',
			reference_id TEXT NOT NULL DEFAULT ''
		)`,

		`CREATE TABLE IF NOT EXISTS part_stock (
			part_id TEXT NOT NULL,
			branch_id TEXT NOT NULL,
			quantity INTEGER NOT NULL DEFAULT 0 CHECK(quantity >= 0),
			updated_at DATETIME,
			PRIMARY KEY (part_id, branch_id)
		)`,

		`CREATE TABLE IF NOT EXISTS customer_debts (
			id TEXT PRIMARY KEY,
			customer_name TEXT NOT NULL,
			customer_phone TEXT NOT NULL,
			work_order_id TEXT NOT NULL,
			total_amount TEXT NOT NULL,
			paid_amount TEXT NOT NULL,
			remaining_amount TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			branch_id TEXT NOT NULL,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME,
			UNIQUE (branch_id, work_order_id)
		)`,

		`CREATE TABLE IF NOT EXISTS supplier_debts (
			id TEXT PRIMARY KEY,
			supplier_name TEXT NOT NULL,
			total_amount TEXT NOT NULL,
			paid_amount TEXT NOT NULL,
			remaining_amount TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			branch_id TEXT NOT NULL,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE TABLE IF NOT EXISTS inventory_receipts (
			id TEXT PRIMARY KEY,
			code TEXT NOT NULL,
			branch_id TEXT NOT NULL,
			supplier_name TEXT NOT NULL DEFAULT '',
			lines_json TEXT NOT NULL DEFAULT '[]',
			total_cost TEXT NOT NULL DEFAULT '0',
			paid_amount TEXT NOT NULL DEFAULT '0',
			payment_source_id TEXT NOT NULL DEFAULT '',
			stock_reverted INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE TABLE IF NOT EXISTS vehicles (
			id TEXT PRIMARY KEY,
			branch_id TEXT NOT NULL,
			customer_name TEXT NOT NULL DEFAULT '',
			customer_phone TEXT NOT NULL DEFAULT '',
			model TEXT NOT NULL DEFAULT '',
			license_plate TEXT NOT NULL DEFAULT '',
			current_km INTEGER NOT NULL DEFAULT 0,
			maintenances_json TEXT NOT NULL DEFAULT '{}',
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME
		)`,

		// Settings (Key-Value Store)
		`CREATE TABLE IF NOT EXISTS settings (
			key TEXT PRIMARY KEY,
			value TEXT,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,

		// Indexes for performance
		`CREATE INDEX IF NOT EXISTS idx_users_email ON users(email)`,
		`CREATE INDEX IF NOT EXISTS idx_work_orders_status ON work_orders(branch_id, status)`,
		`CREATE INDEX IF NOT EXISTS idx_work_orders_phone ON work_orders(customer_phone)`,
		`CREATE INDEX IF NOT EXISTS idx_wo_history_order ON work_order_status_history(work_order_id)`,
		`CREATE INDEX IF NOT EXISTS idx_cash_tx_reference ON cash_transactions(branch_id, reference_id)`,
		`CREATE INDEX IF NOT EXISTS idx_cash_tx_date ON cash_transactions(branch_id, date)`,
		`CREATE INDEX IF NOT EXISTS idx_receipts_branch ON inventory_receipts(branch_id, created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_vehicles_phone ON vehicles(branch_id, customer_phone)`,
	}

	for _, migration := range migrations {
		if _, err := db.Exec(migration); err != nil {
			// Ignore "duplicate column name" error for idempotent migrations
			if strings.Contains(err.Error(), "duplicate column name") {
				continue
			}
			return fmt.Errorf("migration failed: %w\nSQL: %s", err, migration)
		}
	}

	return nil
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.DB.Close()
}

// NewRepositories builds every SQLite-backed store over db
func NewRepositories(db *DB) *repository.Repositories {
	return &repository.Repositories{
		Users:          NewUserRepo(db),
		WorkOrders:     NewWorkOrderRepo(db),
		Ledger:         NewLedgerRepo(db),
		PaymentSources: NewPaymentSourceRepo(db),
		Stock:          NewStockRepo(db),
		Debts:          NewDebtRepo(db),
		Receipts:       NewReceiptRepo(db),
		Vehicles:       NewVehicleRepo(db),
		Settings:       NewSettingsRepo(db),
	}
}
