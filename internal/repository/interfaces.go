// Package repository defines interfaces for data persistence
package repository

import (
	"context"
	"time"

	"motoshop/internal/domain"

	"github.com/shopspring/decimal"
)

// UserRepository defines the interface for staff account operations
type UserRepository interface {
	Create(ctx context.Context, user *domain.User) error
	GetByID(ctx context.Context, id int64) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	Count(ctx context.Context) (int, error)
}

// WorkOrderFilter narrows a work order listing
type WorkOrderFilter struct {
	BranchID string
	Status   string
	Limit    int
	Offset   int
}

// WorkOrderRepository defines the interface for work order operations.
// Get returns nil, nil when the work order does not exist.
type WorkOrderRepository interface {
	Insert(ctx context.Context, order *domain.WorkOrder) error
	Get(ctx context.Context, branchID, id string) (*domain.WorkOrder, error)
	Update(ctx context.Context, order *domain.WorkOrder) error
	Delete(ctx context.Context, branchID, id string) error
	List(ctx context.Context, filter WorkOrderFilter) ([]domain.WorkOrder, error)
	CountByStatus(ctx context.Context, branchID string) (map[string]int, error)
	AddStatusHistory(ctx context.Context, history *domain.WorkOrderStatusHistory) error
	GetStatusHistory(ctx context.Context, workOrderID string) ([]domain.WorkOrderStatusHistory, error)
}

// LedgerRepository defines the interface for cash transaction operations.
// Entries are never updated.
type LedgerRepository interface {
	Append(ctx context.Context, entry *domain.CashTransaction) error
	// DeleteByReference removes the entries of referenceID and reverses their
	// payment source balances atomically
	DeleteByReference(ctx context.Context, branchID, referenceID string) ([]domain.CashTransaction, error)
	ListByReference(ctx context.Context, branchID, referenceID string) ([]domain.CashTransaction, error)
	List(ctx context.Context, branchID string, from, to time.Time) ([]domain.CashTransaction, error)
}

// PaymentSourceRepository defines the interface for payment source operations
type PaymentSourceRepository interface {
	Create(ctx context.Context, source *domain.PaymentSource) error
	Get(ctx context.Context, branchID, id string) (*domain.PaymentSource, error)
	List(ctx context.Context, branchID string) ([]domain.PaymentSource, error)
	AdjustBalance(ctx context.Context, branchID, id string, delta decimal.Decimal) error
}

// StockRepository defines the interface for per-branch part quantities.
// SetStock rejects negative quantities with *domain.StockUnderflowError.
type StockRepository interface {
	GetStock(ctx context.Context, partID, branchID string) (int, error)
	SetStock(ctx context.Context, partID, branchID string, quantity int) error
}

// DebtRepository defines the interface for customer and supplier debts
type DebtRepository interface {
	// UpsertCustomerDebt keeps one debt per work order
	UpsertCustomerDebt(ctx context.Context, debt *domain.CustomerDebt) error
	GetCustomerDebtByWorkOrder(ctx context.Context, branchID, workOrderID string) (*domain.CustomerDebt, error)
	GetCustomerDebtByID(ctx context.Context, branchID, id string) (*domain.CustomerDebt, error)
	ListCustomerDebts(ctx context.Context, branchID string, openOnly bool) ([]domain.CustomerDebt, error)
	CreateSupplierDebt(ctx context.Context, debt *domain.SupplierDebt) error
	ListSupplierDebts(ctx context.Context, branchID string) ([]domain.SupplierDebt, error)
	// DeleteSupplierDebtsMatching removes supplier debts whose description contains text
	DeleteSupplierDebtsMatching(ctx context.Context, branchID, text string) (int64, error)
}

// ReceiptRepository defines the interface for inventory receipt operations
type ReceiptRepository interface {
	Insert(ctx context.Context, receipt *domain.InventoryReceipt) error
	Get(ctx context.Context, branchID, id string) (*domain.InventoryReceipt, error)
	// RevertStock takes the receipt's lines off stock and flags it reverted
	// atomically, at most once per receipt. It returns the parts clamped at zero.
	RevertStock(ctx context.Context, branchID, id string) ([]string, error)
	Delete(ctx context.Context, branchID, id string) error
	List(ctx context.Context, branchID string, limit, offset int) ([]domain.InventoryReceipt, error)
}

// VehicleRepository defines the interface for vehicle operations
type VehicleRepository interface {
	Create(ctx context.Context, vehicle *domain.Vehicle) error
	Get(ctx context.Context, branchID, id string) (*domain.Vehicle, error)
	Update(ctx context.Context, vehicle *domain.Vehicle) error
	ListByCustomer(ctx context.Context, branchID, customerPhone string) ([]domain.Vehicle, error)
}

// SettingsRepository stores shop settings edited from the admin screens
type SettingsRepository interface {
	GetMany(ctx context.Context, keys ...string) (map[string]string, error)
	SetMany(ctx context.Context, values map[string]string) error
}

// Repositories bundles all repository interfaces
type Repositories struct {
	Users          UserRepository
	WorkOrders     WorkOrderRepository
	Ledger         LedgerRepository
	PaymentSources PaymentSourceRepository
	Stock          StockRepository
	Debts          DebtRepository
	Receipts       ReceiptRepository
	Vehicles       VehicleRepository
	Settings       SettingsRepository
}
