// Package domain defines core business entities
package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// User represents a staff account (admin, cashier, or technician)
type User struct {
	ID           int64     `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Name         string    `json:"name"`
	Phone        string    `json:"phone,omitempty"`
	Role         string    `json:"role"`
	BranchID     string    `json:"branchId"`
	CreatedAt    time.Time `json:"createdAt"`
}

// PartLine is a part consumed by a work order
type PartLine struct {
	PartID    string          `json:"partId"`
	Name      string          `json:"name"`
	SKU       string          `json:"sku,omitempty"`
	Quantity  int             `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
	CostPrice decimal.Decimal `json:"costPrice"`
}

// Subtotal returns quantity * unit sale price
func (p PartLine) Subtotal() decimal.Decimal {
	return p.Price.Mul(decimal.NewFromInt(int64(p.Quantity)))
}

// ServiceLine is an additional service billed on a work order.
// A non-zero CostPrice marks outsourced work paid to a third party.
type ServiceLine struct {
	Description string          `json:"description"`
	Quantity    int             `json:"quantity"`
	Price       decimal.Decimal `json:"price"`
	CostPrice   decimal.Decimal `json:"costPrice"`
}

// Subtotal returns quantity * unit sale price
func (s ServiceLine) Subtotal() decimal.Decimal {
	return s.Price.Mul(decimal.NewFromInt(int64(s.Quantity)))
}

// OutsourcingCost returns quantity * unit cost price
func (s ServiceLine) OutsourcingCost() decimal.Decimal {
	return s.CostPrice.Mul(decimal.NewFromInt(int64(s.Quantity)))
}

// WorkOrder represents a repair ticket
type WorkOrder struct {
	ID                string          `json:"id"`
	BranchID          string          `json:"branchId"`
	CustomerName      string          `json:"customerName"`
	CustomerPhone     string          `json:"customerPhone"`
	VehicleModel      string          `json:"vehicleModel,omitempty"`
	LicensePlate      string          `json:"licensePlate,omitempty"`
	VehicleID         string          `json:"vehicleId,omitempty"`
	Mileage           int             `json:"mileage,omitempty"`
	Issue             string          `json:"issue,omitempty"`
	Technician        string          `json:"technician,omitempty"`
	Status            string          `json:"status"`
	LaborCost         decimal.Decimal `json:"laborCost"`
	Discount          decimal.Decimal `json:"discount"`
	Parts             []PartLine      `json:"parts"`
	Services          []ServiceLine   `json:"services"`
	Total             decimal.Decimal `json:"total"`
	PaymentStatus     string          `json:"paymentStatus"`
	DepositAmount     decimal.Decimal `json:"depositAmount"`
	AdditionalPayment decimal.Decimal `json:"additionalPayment"`
	TotalPaid         decimal.Decimal `json:"totalPaid"`
	RemainingAmount   decimal.Decimal `json:"remainingAmount"`
	PaymentSourceID   string          `json:"paymentSourceId,omitempty"`
	Refunded          bool            `json:"refunded"`
	RefundReason      string          `json:"refundReason,omitempty"`
	RefundedAt        *time.Time      `json:"refundedAt,omitempty"`
	CreatedAt         time.Time       `json:"createdAt"`
	UpdatedAt         time.Time       `json:"updatedAt"`
}

// OutsourcingCost sums the cost of all outsourced service lines
func (w *WorkOrder) OutsourcingCost() decimal.Decimal {
	total := decimal.Zero
	for _, s := range w.Services {
		total = total.Add(s.OutsourcingCost())
	}
	return total
}

// PartQuantities returns the quantity used per part id
func (w *WorkOrder) PartQuantities() map[string]int {
	qty := make(map[string]int, len(w.Parts))
	for _, p := range w.Parts {
		qty[p.PartID] += p.Quantity
	}
	return qty
}

// WorkOrderStatusHistory represents a record of a work order status change
type WorkOrderStatusHistory struct {
	ID          int64     `json:"id"`
	WorkOrderID string    `json:"workOrderId"`
	Status      string    `json:"status"`
	Notes       string    `json:"notes,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

// CashTransaction is an immutable ledger entry. Amount is signed:
// positive for income, negative for expense.
type CashTransaction struct {
	ID              string          `json:"id"`
	Type            string          `json:"type"`
	Category        string          `json:"category"`
	Amount          decimal.Decimal `json:"amount"`
	Date            time.Time       `json:"date"`
	Description     string          `json:"description"`
	BranchID        string          `json:"branchId"`
	PaymentSourceID string          `json:"paymentSourceId"`
	ReferenceID     string          `json:"referenceId,omitempty"`
}

// PaymentSource is a place money is held: cash drawer, bank account, e-wallet
type PaymentSource struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Kind      string          `json:"kind"`
	Balance   decimal.Decimal `json:"balance"`
	BranchID  string          `json:"branchId"`
	CreatedAt time.Time       `json:"createdAt"`
}

// CustomerDebt is the outstanding balance a customer owes on one work order
type CustomerDebt struct {
	ID              string          `json:"id"`
	CustomerName    string          `json:"customerName"`
	CustomerPhone   string          `json:"customerPhone"`
	WorkOrderID     string          `json:"workOrderId"`
	TotalAmount     decimal.Decimal `json:"totalAmount"`
	PaidAmount      decimal.Decimal `json:"paidAmount"`
	RemainingAmount decimal.Decimal `json:"remainingAmount"`
	Description     string          `json:"description"`
	BranchID        string          `json:"branchId"`
	CreatedAt       time.Time       `json:"createdAt"`
	UpdatedAt       time.Time       `json:"updatedAt"`
}

// SupplierDebt is an unpaid balance owed to a parts supplier
type SupplierDebt struct {
	ID              string          `json:"id"`
	SupplierName    string          `json:"supplierName"`
	TotalAmount     decimal.Decimal `json:"totalAmount"`
	PaidAmount      decimal.Decimal `json:"paidAmount"`
	RemainingAmount decimal.Decimal `json:"remainingAmount"`
	Description     string          `json:"description"`
	BranchID        string          `json:"branchId"`
	CreatedAt       time.Time       `json:"createdAt"`
}

// ReceiptLine is one part delivered in an inventory receipt
type ReceiptLine struct {
	PartID   string          `json:"partId"`
	PartName string          `json:"partName"`
	Quantity int             `json:"quantity"`
	UnitCost decimal.Decimal `json:"unitCost"`
}

// InventoryReceipt groups the stock-in lines of one supplier delivery
type InventoryReceipt struct {
	ID              string          `json:"id"`
	Code            string          `json:"code"`
	BranchID        string          `json:"branchId"`
	SupplierName    string          `json:"supplierName"`
	Lines           []ReceiptLine   `json:"lines"`
	TotalCost       decimal.Decimal `json:"totalCost"`
	PaidAmount      decimal.Decimal `json:"paidAmount"`
	PaymentSourceID string          `json:"paymentSourceId,omitempty"`
	StockReverted   bool            `json:"stockReverted"`
	CreatedAt       time.Time       `json:"createdAt"`
}

// MaintenanceRecord marks when a maintenance type was last performed
type MaintenanceRecord struct {
	Km   int       `json:"km"`
	Date time.Time `json:"date"`
}

// Vehicle represents a customer's motorcycle
type Vehicle struct {
	ID               string                                `json:"id"`
	BranchID         string                                `json:"branchId"`
	CustomerName     string                                `json:"customerName"`
	CustomerPhone    string                                `json:"customerPhone"`
	Model            string                                `json:"model"`
	LicensePlate     string                                `json:"licensePlate"`
	CurrentKm        int                                   `json:"currentKm"`
	LastMaintenances map[MaintenanceType]MaintenanceRecord `json:"lastMaintenances"`
	CreatedAt        time.Time                             `json:"createdAt"`
	UpdatedAt        time.Time                             `json:"updatedAt"`
}

// MaintenanceType identifies a periodic maintenance class
type MaintenanceType string

// Status constants
const (
	// Work order statuses
	WorkOrderStatusReceived   = "received"
	WorkOrderStatusInProgress = "in_progress"
	WorkOrderStatusCompleted  = "completed"
	WorkOrderStatusDelivered  = "delivered"
	WorkOrderStatusCancelled  = "cancelled"

	// Payment statuses
	PaymentStatusUnpaid  = "unpaid"
	PaymentStatusPartial = "partial"
	PaymentStatusPaid    = "paid"

	// Cash transaction types
	TransactionIncome  = "income"
	TransactionExpense = "expense"

	// Cash transaction categories
	CategoryDeposit           = "deposit"
	CategoryServicePayment    = "service_payment"
	CategoryPaymentAdjustment = "payment_adjustment"
	CategoryOutsourcing       = "outsourcing"
	CategoryRefund            = "refund"
	CategoryInventoryReceipt  = "inventory_receipt"
	CategoryDebtCollection    = "debt_collection"

	// Maintenance types
	MaintenanceOilChange        MaintenanceType = "oil_change"
	MaintenanceGearboxOil       MaintenanceType = "gearbox_oil"
	MaintenanceThrottleCleaning MaintenanceType = "throttle_cleaning"

	// User roles
	RoleAdmin      = "admin"
	RoleCashier    = "cashier"
	RoleTechnician = "technician"
)

// WorkOrderStatusLabel returns a human-readable label for a work order status
func WorkOrderStatusLabel(status string) string {
	labels := map[string]string{
		WorkOrderStatusReceived:   "Tiếp nhận",
		WorkOrderStatusInProgress: "Đang sửa",
		WorkOrderStatusCompleted:  "Đã sửa xong",
		WorkOrderStatusDelivered:  "Đã giao xe",
		WorkOrderStatusCancelled:  "Đã hủy / hoàn tiền",
	}
	if label, ok := labels[status]; ok {
		return label
	}
	return status
}

// PaymentStatusLabel returns a human-readable label for a payment status
func PaymentStatusLabel(status string) string {
	labels := map[string]string{
		PaymentStatusUnpaid:  "Chưa thanh toán",
		PaymentStatusPartial: "Thanh toán một phần",
		PaymentStatusPaid:    "Đã thanh toán",
	}
	if label, ok := labels[status]; ok {
		return label
	}
	return status
}

// IsEditableStatus reports whether a work order may be saved with status.
// Cancelled is reachable only through a refund.
func IsEditableStatus(status string) bool {
	switch status {
	case WorkOrderStatusReceived, WorkOrderStatusInProgress,
		WorkOrderStatusCompleted, WorkOrderStatusDelivered:
		return true
	}
	return false
}

// IsRole reports whether role is a known staff role
func IsRole(role string) bool {
	switch role {
	case RoleAdmin, RoleCashier, RoleTechnician:
		return true
	}
	return false
}
