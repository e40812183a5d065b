package settlement

import (
	"context"
	"fmt"
	"strings"

	"motoshop/internal/domain"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// DebtPaymentInput is a customer paying off part of a debt
type DebtPaymentInput struct {
	BranchID        string          `json:"branchId"`
	DebtID          string          `json:"debtId"`
	Amount          decimal.Decimal `json:"amount"`
	PaymentSourceID string          `json:"paymentSourceId"`
}

// PayDebt records a payment against a customer debt. The payment is also
// added to the work order's additional payment so a later save of that order
// posts nothing twice and keeps the debt closed.
func (s *Service) PayDebt(ctx context.Context, in DebtPaymentInput) (*domain.CustomerDebt, error) {
	if strings.TrimSpace(in.BranchID) == "" {
		return nil, domain.NewValidationError(domain.CodeBranchRequired, "branchId")
	}
	if !in.Amount.IsPositive() {
		return nil, domain.NewValidationError(domain.CodeInvalidAmount, "amount")
	}
	if in.PaymentSourceID == "" {
		return nil, domain.NewValidationError(domain.CodePaymentMethodRequired, "paymentSourceId")
	}
	if err := s.requireSource(ctx, in.BranchID, in.PaymentSourceID); err != nil {
		return nil, err
	}

	debt, err := s.debts.GetCustomerDebtByID(ctx, in.BranchID, in.DebtID)
	if err != nil {
		return nil, errors.Wrapf(err, "load debt %s", in.DebtID)
	}
	if debt == nil {
		return nil, domain.ErrNotFound
	}
	if in.Amount.GreaterThan(debt.RemainingAmount) {
		return nil, domain.NewValidationError(domain.CodeInvalidAmount, "amount")
	}

	log := s.log.WithFields(logrus.Fields{"work_order": debt.WorkOrderID, "branch": debt.BranchID, "op": "pay_debt"})

	debt.PaidAmount = debt.PaidAmount.Add(in.Amount)
	debt.RemainingAmount = debt.RemainingAmount.Sub(in.Amount)
	if err := s.debts.UpsertCustomerDebt(ctx, debt); err != nil {
		log.WithError(err).Error("debt update failed")
		return nil, remoteErr("customer debt", err)
	}

	_, err = s.post(ctx, log, domain.CashTransaction{
		Category:        domain.CategoryDebtCollection,
		Amount:          in.Amount,
		Description:     fmt.Sprintf("Thu nợ phiếu %s - %s", debt.WorkOrderID, debt.CustomerName),
		BranchID:        debt.BranchID,
		PaymentSourceID: in.PaymentSourceID,
		ReferenceID:     debt.WorkOrderID,
	})
	if err != nil {
		return debt, err
	}

	order, err := s.orders.Get(ctx, debt.BranchID, debt.WorkOrderID)
	if err != nil {
		return debt, remoteErr("work order", err)
	}
	if order == nil {
		log.Warn("debt references a missing work order")
		return debt, nil
	}
	order.AdditionalPayment = order.AdditionalPayment.Add(in.Amount)
	applyTotals(order)
	if err := s.orders.Update(ctx, order); err != nil {
		log.WithError(err).Error("work order update failed")
		return debt, remoteErr("work order", err)
	}
	log.WithFields(logrus.Fields{"amount": in.Amount.String(), "remaining": debt.RemainingAmount.String()}).Info("debt payment recorded")
	return debt, nil
}
