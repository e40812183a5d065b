// Package settlement records payments, deposits and refunds against work
// orders and propagates them to the ledger, payment source balances, part
// stock, customer debts and vehicle maintenance history.
//
// Each operation validates its input before the first write. After the
// primary record is written the secondary effects follow in a fixed order;
// the first one that fails stops the sequence and is returned as a
// *domain.RemoteWriteError. Writes already made are not rolled back.
package settlement

import (
	"context"
	"fmt"
	"strings"
	"time"

	"motoshop/internal/domain"
	"motoshop/internal/maintenance"
	"motoshop/internal/repository"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Service is the settlement orchestrator
type Service struct {
	orders   repository.WorkOrderRepository
	ledger   repository.LedgerRepository
	sources  repository.PaymentSourceRepository
	stock    repository.StockRepository
	debts    repository.DebtRepository
	receipts repository.ReceiptRepository
	vehicles repository.VehicleRepository
	engine   *maintenance.Engine
	log      logrus.FieldLogger

	now   func() time.Time
	newID func() string
}

// NewService creates a settlement service over the given stores
func NewService(repos *repository.Repositories, engine *maintenance.Engine, log logrus.FieldLogger) *Service {
	return &Service{
		orders:   repos.WorkOrders,
		ledger:   repos.Ledger,
		sources:  repos.PaymentSources,
		stock:    repos.Stock,
		debts:    repos.Debts,
		receipts: repos.Receipts,
		vehicles: repos.Vehicles,
		engine:   engine,
		log:      log,
		now:      time.Now,
		newID:    shortID,
	}
}

// shortID returns 8 upper-case hex characters, enough to tell apart the
// work orders or receipts of one branch on one day
func shortID() string {
	return strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
}

func (s *Service) workOrderCode() string {
	return fmt.Sprintf("SC%s-%s", s.now().Format("060102"), s.newID())
}

func (s *Service) receiptCode() string {
	return fmt.Sprintf("NK%s-%s", s.now().Format("060102"), s.newID())
}

func remoteErr(op string, err error) error {
	return &domain.RemoteWriteError{Op: op, Err: err}
}

// post appends entry to the ledger and moves its payment source balance by
// the same signed amount
func (s *Service) post(ctx context.Context, log logrus.FieldLogger, entry domain.CashTransaction) (domain.CashTransaction, error) {
	if entry.Amount.IsPositive() {
		entry.Type = domain.TransactionIncome
	} else {
		entry.Type = domain.TransactionExpense
	}
	if entry.Date.IsZero() {
		entry.Date = s.now()
	}
	if err := s.ledger.Append(ctx, &entry); err != nil {
		log.WithError(err).WithField("category", entry.Category).Error("cash transaction failed")
		return entry, remoteErr("cash transaction", err)
	}
	if entry.PaymentSourceID != "" {
		if err := s.sources.AdjustBalance(ctx, entry.BranchID, entry.PaymentSourceID, entry.Amount); err != nil {
			log.WithError(err).WithField("source", entry.PaymentSourceID).Error("balance update failed")
			return entry, remoteErr("payment source balance", err)
		}
	}
	log.WithFields(logrus.Fields{
		"category": entry.Category,
		"amount":   entry.Amount.String(),
		"source":   entry.PaymentSourceID,
	}).Info("cash transaction posted")
	return entry, nil
}

func (s *Service) requireSource(ctx context.Context, branchID, sourceID string) error {
	src, err := s.sources.Get(ctx, branchID, sourceID)
	if err != nil {
		return errors.Wrap(err, "load payment source")
	}
	if src == nil {
		return domain.NewValidationError(domain.CodePaymentSourceNotFound, "paymentSourceId")
	}
	return nil
}

// GetWorkOrder returns a work order or domain.ErrNotFound
func (s *Service) GetWorkOrder(ctx context.Context, branchID, id string) (*domain.WorkOrder, error) {
	order, err := s.orders.Get(ctx, branchID, id)
	if err != nil {
		return nil, errors.Wrapf(err, "load work order %s", id)
	}
	if order == nil {
		return nil, domain.ErrNotFound
	}
	return order, nil
}

// ListWorkOrders lists the work orders of a branch, newest first
func (s *Service) ListWorkOrders(ctx context.Context, filter repository.WorkOrderFilter) ([]domain.WorkOrder, error) {
	orders, err := s.orders.List(ctx, filter)
	return orders, errors.Wrap(err, "list work orders")
}

// StatusCounts counts the work orders of a branch per status
func (s *Service) StatusCounts(ctx context.Context, branchID string) (map[string]int, error) {
	counts, err := s.orders.CountByStatus(ctx, branchID)
	return counts, errors.Wrap(err, "count work orders")
}

// WorkOrderHistory returns the status changes of a work order, oldest first
func (s *Service) WorkOrderHistory(ctx context.Context, branchID, id string) ([]domain.WorkOrderStatusHistory, error) {
	if _, err := s.GetWorkOrder(ctx, branchID, id); err != nil {
		return nil, err
	}
	history, err := s.orders.GetStatusHistory(ctx, id)
	return history, errors.Wrap(err, "load status history")
}

// Ledger lists the cash transactions of a branch with from <= date < to
func (s *Service) Ledger(ctx context.Context, branchID string, from, to time.Time) ([]domain.CashTransaction, error) {
	entries, err := s.ledger.List(ctx, branchID, from, to)
	return entries, errors.Wrap(err, "list ledger")
}

// CustomerDebts lists customer debts of a branch
func (s *Service) CustomerDebts(ctx context.Context, branchID string, openOnly bool) ([]domain.CustomerDebt, error) {
	debts, err := s.debts.ListCustomerDebts(ctx, branchID, openOnly)
	return debts, errors.Wrap(err, "list customer debts")
}

// SupplierDebts lists supplier debts of a branch
func (s *Service) SupplierDebts(ctx context.Context, branchID string) ([]domain.SupplierDebt, error) {
	debts, err := s.debts.ListSupplierDebts(ctx, branchID)
	return debts, errors.Wrap(err, "list supplier debts")
}

// Stock returns the quantity of a part on hand at a branch
func (s *Service) Stock(ctx context.Context, partID, branchID string) (int, error) {
	qty, err := s.stock.GetStock(ctx, partID, branchID)
	return qty, errors.Wrapf(err, "load stock of %s", partID)
}

// PaymentSources lists the payment sources of a branch
func (s *Service) PaymentSources(ctx context.Context, branchID string) ([]domain.PaymentSource, error) {
	sources, err := s.sources.List(ctx, branchID)
	return sources, errors.Wrap(err, "list payment sources")
}

// CreatePaymentSource registers a cash drawer, bank account or e-wallet
func (s *Service) CreatePaymentSource(ctx context.Context, src *domain.PaymentSource) error {
	src.Name = strings.TrimSpace(src.Name)
	if src.Name == "" {
		return domain.NewValidationError(domain.CodePaymentMethodRequired, "name")
	}
	if strings.TrimSpace(src.BranchID) == "" {
		return domain.NewValidationError(domain.CodeBranchRequired, "branchId")
	}
	if src.Balance.IsNegative() {
		return domain.NewValidationError(domain.CodeInvalidAmount, "balance")
	}
	if src.Kind == "" {
		src.Kind = "cash"
	}
	if err := s.sources.Create(ctx, src); err != nil {
		return remoteErr("payment source", err)
	}
	return nil
}

// Receipts lists the inventory receipts of a branch, newest first
func (s *Service) Receipts(ctx context.Context, branchID string, limit, offset int) ([]domain.InventoryReceipt, error) {
	receipts, err := s.receipts.List(ctx, branchID, limit, offset)
	return receipts, errors.Wrap(err, "list receipts")
}

// VehicleMaintenance returns the vehicle and its due and overdue maintenance
func (s *Service) VehicleMaintenance(ctx context.Context, branchID, vehicleID string) (*domain.Vehicle, []maintenance.Warning, error) {
	v, err := s.vehicles.Get(ctx, branchID, vehicleID)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "load vehicle %s", vehicleID)
	}
	if v == nil {
		return nil, nil, domain.ErrNotFound
	}
	return v, s.engine.Check(v), nil
}

// RegisterVehicle stores a customer's motorcycle
func (s *Service) RegisterVehicle(ctx context.Context, v *domain.Vehicle) error {
	if strings.TrimSpace(v.BranchID) == "" {
		return domain.NewValidationError(domain.CodeBranchRequired, "branchId")
	}
	v.CustomerPhone = NormalizePhone(v.CustomerPhone)
	if v.CustomerPhone != "" && !phonePattern.MatchString(v.CustomerPhone) {
		return domain.NewValidationError(domain.CodeInvalidPhone, "customerPhone")
	}
	if v.CurrentKm < 0 {
		return domain.NewValidationError(domain.CodeInvalidAmount, "currentKm")
	}
	if err := s.vehicles.Create(ctx, v); err != nil {
		return remoteErr("vehicle", err)
	}
	return nil
}

// CustomerVehicles lists the vehicles registered to a phone number
func (s *Service) CustomerVehicles(ctx context.Context, branchID, phone string) ([]domain.Vehicle, error) {
	vehicles, err := s.vehicles.ListByCustomer(ctx, branchID, NormalizePhone(phone))
	return vehicles, errors.Wrap(err, "list vehicles")
}
