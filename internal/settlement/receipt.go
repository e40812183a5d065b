package settlement

import (
	"context"
	"fmt"
	"strings"

	"motoshop/internal/domain"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// ReceiptInput is one supplier delivery. PaidAmount is paid now from the
// payment source; the rest becomes a supplier debt.
type ReceiptInput struct {
	BranchID        string               `json:"branchId"`
	SupplierName    string               `json:"supplierName"`
	Lines           []domain.ReceiptLine `json:"lines"`
	PaidAmount      decimal.Decimal      `json:"paidAmount"`
	PaymentSourceID string               `json:"paymentSourceId"`
}

// CreateReceipt stores a receipt, adds its lines to stock, posts the paid
// amount as an expense and records any unpaid remainder as supplier debt
func (s *Service) CreateReceipt(ctx context.Context, in ReceiptInput) (*domain.InventoryReceipt, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	total := decimal.Zero
	for _, l := range in.Lines {
		total = total.Add(l.UnitCost.Mul(decimal.NewFromInt(int64(l.Quantity))))
	}
	if in.PaidAmount.GreaterThan(total) {
		return nil, domain.NewValidationError(domain.CodeInvalidAmount, "paidAmount")
	}
	if in.PaymentSourceID != "" {
		if err := s.requireSource(ctx, in.BranchID, in.PaymentSourceID); err != nil {
			return nil, err
		}
	}

	receipt := &domain.InventoryReceipt{
		ID:              uuid.NewString(),
		Code:            s.receiptCode(),
		BranchID:        in.BranchID,
		SupplierName:    strings.TrimSpace(in.SupplierName),
		Lines:           in.Lines,
		TotalCost:       total,
		PaidAmount:      in.PaidAmount,
		PaymentSourceID: in.PaymentSourceID,
		CreatedAt:       s.now(),
	}
	log := s.log.WithFields(logrus.Fields{"receipt": receipt.Code, "branch": receipt.BranchID, "op": "receipt_create"})

	if err := s.receipts.Insert(ctx, receipt); err != nil {
		log.WithError(err).Error("receipt insert failed")
		return nil, remoteErr("inventory receipt", err)
	}

	for _, l := range receipt.Lines {
		current, err := s.stock.GetStock(ctx, l.PartID, receipt.BranchID)
		if err != nil {
			return receipt, remoteErr("stock", err)
		}
		if err := s.stock.SetStock(ctx, l.PartID, receipt.BranchID, current+l.Quantity); err != nil {
			log.WithError(err).WithField("part", l.PartID).Error("stock write failed")
			return receipt, remoteErr("stock", err)
		}
	}

	if receipt.PaidAmount.IsPositive() {
		_, err := s.post(ctx, log, domain.CashTransaction{
			Category:        domain.CategoryInventoryReceipt,
			Amount:          receipt.PaidAmount.Neg(),
			Description:     fmt.Sprintf("Nhập hàng phiếu %s - %s", receipt.Code, receipt.SupplierName),
			BranchID:        receipt.BranchID,
			PaymentSourceID: receipt.PaymentSourceID,
			ReferenceID:     receipt.ID,
		})
		if err != nil {
			return receipt, err
		}
	}

	if unpaid := total.Sub(receipt.PaidAmount); unpaid.IsPositive() {
		debt := &domain.SupplierDebt{
			SupplierName:    receipt.SupplierName,
			TotalAmount:     total,
			PaidAmount:      receipt.PaidAmount,
			RemainingAmount: unpaid,
			Description:     fmt.Sprintf("Công nợ phiếu nhập %s", receipt.Code),
			BranchID:        receipt.BranchID,
		}
		if err := s.debts.CreateSupplierDebt(ctx, debt); err != nil {
			log.WithError(err).Error("supplier debt failed")
			return receipt, remoteErr("supplier debt", err)
		}
	}

	log.WithFields(logrus.Fields{"lines": len(receipt.Lines), "total": total.String()}).Info("receipt created")
	return receipt, nil
}

// DeleteReceipt rolls a receipt back: its lines come off stock first, then
// its ledger entries are removed together with their effect on payment
// source balances, then its supplier debts and the receipt itself. Each of
// the first two steps is atomic in the store, so a retry after a failure
// neither takes stock off twice nor loses a balance correction.
func (s *Service) DeleteReceipt(ctx context.Context, branchID, id string) error {
	receipt, err := s.receipts.Get(ctx, branchID, id)
	if err != nil {
		return errors.Wrapf(err, "load receipt %s", id)
	}
	if receipt == nil {
		return domain.ErrNotFound
	}

	log := s.log.WithFields(logrus.Fields{"receipt": receipt.Code, "branch": receipt.BranchID, "op": "receipt_delete"})

	if !receipt.StockReverted {
		clamped, err := s.receipts.RevertStock(ctx, branchID, receipt.ID)
		if err != nil {
			log.WithError(err).Error("stock revert failed")
			return remoteErr("stock", err)
		}
		for _, part := range clamped {
			log.WithField("part", part).Warn("stock below receipt quantity, clamped to zero")
		}
	}

	removed, err := s.ledger.DeleteByReference(ctx, branchID, receipt.ID)
	if err != nil {
		log.WithError(err).Error("ledger delete failed")
		return remoteErr("cash transaction", err)
	}

	if _, err := s.debts.DeleteSupplierDebtsMatching(ctx, branchID, receipt.Code); err != nil {
		log.WithError(err).Error("supplier debt delete failed")
		return remoteErr("supplier debt", err)
	}

	if err := s.receipts.Delete(ctx, branchID, receipt.ID); err != nil {
		return remoteErr("inventory receipt", err)
	}
	log.WithField("entries", len(removed)).Info("receipt deleted")
	return nil
}
