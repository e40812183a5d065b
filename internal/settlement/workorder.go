package settlement

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"motoshop/internal/domain"
	"motoshop/internal/maintenance"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// WorkOrderInput is a create (empty ID) or full update of a work order.
// DepositAmount and AdditionalPayment are cumulative; only their change
// since the stored order is posted to the ledger.
type WorkOrderInput struct {
	ID                string               `json:"id"`
	BranchID          string               `json:"branchId"`
	CustomerName      string               `json:"customerName"`
	CustomerPhone     string               `json:"customerPhone"`
	VehicleModel      string               `json:"vehicleModel"`
	LicensePlate      string               `json:"licensePlate"`
	VehicleID         string               `json:"vehicleId"`
	Mileage           int                  `json:"mileage"`
	Issue             string               `json:"issue"`
	Technician        string               `json:"technician"`
	Status            string               `json:"status"`
	LaborCost         decimal.Decimal      `json:"laborCost"`
	Discount          decimal.Decimal      `json:"discount"`
	Parts             []domain.PartLine    `json:"parts"`
	Services          []domain.ServiceLine `json:"services"`
	DepositAmount     decimal.Decimal      `json:"depositAmount"`
	AdditionalPayment decimal.Decimal      `json:"additionalPayment"`
	PaymentSourceID   string               `json:"paymentSourceId"`
	Notes             string               `json:"notes"`
}

// SaveResult describes what a save wrote. It is returned alongside a
// *domain.RemoteWriteError when a secondary effect failed after the work
// order itself was stored.
type SaveResult struct {
	Order        *domain.WorkOrder        `json:"order"`
	Created      bool                     `json:"created"`
	Transactions []domain.CashTransaction `json:"transactions"`
	StockChanges map[string]int           `json:"stockChanges,omitempty"`
	Debt         *domain.CustomerDebt     `json:"debt,omitempty"`
	Vehicle      *domain.Vehicle          `json:"vehicle,omitempty"`
	Warnings     []maintenance.Warning    `json:"warnings,omitempty"`
}

// SaveWorkOrder creates or updates a work order and applies its effects in
// order: work order, ledger and balances, stock, customer debt, status
// history, vehicle maintenance.
func (s *Service) SaveWorkOrder(ctx context.Context, in WorkOrderInput) (*SaveResult, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	var prev *domain.WorkOrder
	if in.ID != "" {
		existing, err := s.orders.Get(ctx, in.BranchID, in.ID)
		if err != nil {
			return nil, errors.Wrapf(err, "load work order %s", in.ID)
		}
		if existing == nil {
			return nil, domain.ErrNotFound
		}
		if existing.Refunded {
			return nil, &domain.ConflictError{Code: domain.CodeOrderRefunded}
		}
		prev = existing
	}

	if in.PaymentSourceID != "" {
		if err := s.requireSource(ctx, in.BranchID, in.PaymentSourceID); err != nil {
			return nil, err
		}
	}

	order := s.buildOrder(in, prev)
	stockDeltas := partDeltas(prev, order)
	if err := s.checkStock(ctx, order.BranchID, stockDeltas); err != nil {
		return nil, err
	}

	var paid paidSources
	if prev != nil && (order.DepositAmount.LessThan(prev.DepositAmount) || order.AdditionalPayment.LessThan(prev.AdditionalPayment)) {
		var err error
		if paid, err = s.loadPaidSources(ctx, order.BranchID, order.ID); err != nil {
			return nil, err
		}
	}

	log := s.log.WithFields(logrus.Fields{"work_order": order.ID, "branch": order.BranchID, "op": "save"})
	res := &SaveResult{Order: order, Created: prev == nil}

	if prev == nil {
		if err := s.orders.Insert(ctx, order); err != nil {
			log.WithError(err).Error("work order insert failed")
			return nil, remoteErr("work order", err)
		}
	} else if err := s.orders.Update(ctx, order); err != nil {
		log.WithError(err).Error("work order update failed")
		return nil, remoteErr("work order", err)
	}
	log.WithFields(logrus.Fields{
		"status":     order.Status,
		"total":      order.Total.String(),
		"total_paid": order.TotalPaid.String(),
	}).Info("work order saved")

	for _, entry := range s.postings(prev, order, paid) {
		posted, err := s.post(ctx, log, entry)
		if err != nil {
			return res, err
		}
		res.Transactions = append(res.Transactions, posted)
	}

	if err := s.applyStock(ctx, log, order.BranchID, stockDeltas); err != nil {
		return res, err
	}
	if len(stockDeltas) > 0 {
		res.StockChanges = stockDeltas
	}

	debt, err := s.syncDebt(ctx, log, order)
	if err != nil {
		return res, err
	}
	res.Debt = debt

	if prev == nil || prev.Status != order.Status {
		h := &domain.WorkOrderStatusHistory{WorkOrderID: order.ID, Status: order.Status, Notes: in.Notes, CreatedAt: s.now()}
		if err := s.orders.AddStatusHistory(ctx, h); err != nil {
			log.WithError(err).Error("status history failed")
			return res, remoteErr("status history", err)
		}
	}

	if err := s.syncVehicle(ctx, log, prev, order, res); err != nil {
		return res, err
	}
	return res, nil
}

func (s *Service) buildOrder(in WorkOrderInput, prev *domain.WorkOrder) *domain.WorkOrder {
	order := &domain.WorkOrder{}
	if prev != nil {
		*order = *prev
	} else {
		order.ID = s.workOrderCode()
		order.BranchID = in.BranchID
		order.Status = domain.WorkOrderStatusReceived
		order.CreatedAt = s.now()
	}

	order.CustomerName = in.CustomerName
	order.CustomerPhone = in.CustomerPhone
	order.VehicleModel = strings.TrimSpace(in.VehicleModel)
	order.LicensePlate = strings.ToUpper(strings.TrimSpace(in.LicensePlate))
	order.VehicleID = in.VehicleID
	order.Mileage = in.Mileage
	order.Issue = in.Issue
	order.Technician = in.Technician
	if in.Status != "" {
		order.Status = in.Status
	}
	order.LaborCost = in.LaborCost
	order.Discount = in.Discount
	order.Parts = in.Parts
	order.Services = in.Services
	order.DepositAmount = in.DepositAmount
	order.AdditionalPayment = in.AdditionalPayment
	if in.PaymentSourceID != "" {
		order.PaymentSourceID = in.PaymentSourceID
	}
	applyTotals(order)
	return order
}

// postings returns the ledger entries that bring the ledger in line with
// order. Nothing is returned for an unchanged amount. A decreased payment is
// taken back from the sources in paid that received it.
func (s *Service) postings(prev, order *domain.WorkOrder, paid paidSources) []domain.CashTransaction {
	var prevDeposit, prevAdditional, prevOutsourcing decimal.Decimal
	if prev != nil {
		prevDeposit = prev.DepositAmount
		prevAdditional = prev.AdditionalPayment
		prevOutsourcing = prev.OutsourcingCost()
	}

	var entries []domain.CashTransaction
	add := func(category, sourceID string, amount decimal.Decimal, desc string) {
		if amount.IsZero() {
			return
		}
		entries = append(entries, domain.CashTransaction{
			Category:        category,
			Amount:          amount,
			Description:     desc,
			BranchID:        order.BranchID,
			PaymentSourceID: sourceID,
			ReferenceID:     order.ID,
		})
	}

	paymentEntry := func(category string, delta decimal.Decimal, label string) {
		if delta.IsNegative() {
			desc := fmt.Sprintf("Điều chỉnh giảm %s phiếu %s", strings.ToLower(label), order.ID)
			for _, share := range paid.takeBack(delta.Neg(), order.PaymentSourceID) {
				add(domain.CategoryPaymentAdjustment, share.sourceID, share.amount.Neg(), desc)
			}
			return
		}
		add(category, order.PaymentSourceID, delta, fmt.Sprintf("%s phiếu %s - %s", label, order.ID, order.CustomerName))
	}
	paymentEntry(domain.CategoryDeposit, order.DepositAmount.Sub(prevDeposit), "Đặt cọc")
	paymentEntry(domain.CategoryServicePayment, order.AdditionalPayment.Sub(prevAdditional), "Thanh toán")

	outsourcing := order.OutsourcingCost().Sub(prevOutsourcing)
	if outsourcing.IsPositive() {
		add(domain.CategoryOutsourcing, order.PaymentSourceID, outsourcing.Neg(), fmt.Sprintf("Chi phí gia công ngoài phiếu %s", order.ID))
	} else {
		add(domain.CategoryOutsourcing, order.PaymentSourceID, outsourcing.Neg(), fmt.Sprintf("Điều chỉnh giảm gia công ngoài phiếu %s", order.ID))
	}
	return entries
}

// sourceShare is an amount attributed to one payment source
type sourceShare struct {
	sourceID string
	amount   decimal.Decimal
}

// paidSources is what each payment source has received for one work order,
// in the order the sources were first used
type paidSources []sourceShare

func isCustomerPayment(category string) bool {
	switch category {
	case domain.CategoryDeposit, domain.CategoryServicePayment, domain.CategoryDebtCollection, domain.CategoryPaymentAdjustment:
		return true
	}
	return false
}

// loadPaidSources sums the customer payments posted for a work order per
// payment source
func (s *Service) loadPaidSources(ctx context.Context, branchID, orderID string) (paidSources, error) {
	entries, err := s.ledger.ListByReference(ctx, branchID, orderID)
	if err != nil {
		return nil, errors.Wrapf(err, "load ledger of %s", orderID)
	}
	index := map[string]int{}
	var paid paidSources
	for _, e := range entries {
		if !isCustomerPayment(e.Category) {
			continue
		}
		i, ok := index[e.PaymentSourceID]
		if !ok {
			i = len(paid)
			index[e.PaymentSourceID] = i
			paid = append(paid, sourceShare{sourceID: e.PaymentSourceID})
		}
		paid[i].amount = paid[i].amount.Add(e.Amount)
	}
	return paid, nil
}

// takeBack splits amount over the sources that received it, most recently
// used source first, and deducts it from them. Whatever the ledger does not
// account for is taken from fallback.
func (p paidSources) takeBack(amount decimal.Decimal, fallback string) []sourceShare {
	var out []sourceShare
	left := amount
	for i := len(p) - 1; i >= 0 && left.IsPositive(); i-- {
		take := decimal.Min(left, p[i].amount)
		if !take.IsPositive() {
			continue
		}
		p[i].amount = p[i].amount.Sub(take)
		out = append(out, sourceShare{sourceID: p[i].sourceID, amount: take})
		left = left.Sub(take)
	}
	if left.IsPositive() {
		out = append(out, sourceShare{sourceID: fallback, amount: left})
	}
	return out
}

// partDeltas returns the additional quantity each part consumes compared to
// the stored order. Returned parts have a negative delta.
func partDeltas(prev, order *domain.WorkOrder) map[string]int {
	before := map[string]int{}
	if prev != nil {
		before = prev.PartQuantities()
	}
	after := order.PartQuantities()

	deltas := make(map[string]int)
	for id, qty := range after {
		if d := qty - before[id]; d != 0 {
			deltas[id] = d
		}
	}
	for id, qty := range before {
		if _, ok := after[id]; !ok {
			deltas[id] = -qty
		}
	}
	delete(deltas, "")
	return deltas
}

func sortedParts(deltas map[string]int) []string {
	ids := make([]string, 0, len(deltas))
	for id := range deltas {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (s *Service) checkStock(ctx context.Context, branchID string, deltas map[string]int) error {
	for _, id := range sortedParts(deltas) {
		need := deltas[id]
		if need <= 0 {
			continue
		}
		current, err := s.stock.GetStock(ctx, id, branchID)
		if err != nil {
			return errors.Wrapf(err, "load stock of %s", id)
		}
		if current < need {
			return &domain.StockUnderflowError{PartID: id, BranchID: branchID, Current: current, Requested: need}
		}
	}
	return nil
}

func (s *Service) applyStock(ctx context.Context, log logrus.FieldLogger, branchID string, deltas map[string]int) error {
	for _, id := range sortedParts(deltas) {
		current, err := s.stock.GetStock(ctx, id, branchID)
		if err != nil {
			log.WithError(err).WithField("part", id).Error("stock read failed")
			return remoteErr("stock", err)
		}
		if err := s.stock.SetStock(ctx, id, branchID, current-deltas[id]); err != nil {
			log.WithError(err).WithField("part", id).Error("stock write failed")
			return remoteErr("stock", err)
		}
		log.WithFields(logrus.Fields{"part": id, "from": current, "to": current - deltas[id]}).Debug("stock updated")
	}
	return nil
}

// syncDebt keeps the customer debt of a delivered order in line with what is
// still owed. An existing debt is always updated so a later payment closes it
// and a corrected customer name or phone carries over to it.
func (s *Service) syncDebt(ctx context.Context, log logrus.FieldLogger, order *domain.WorkOrder) (*domain.CustomerDebt, error) {
	existing, err := s.debts.GetCustomerDebtByWorkOrder(ctx, order.BranchID, order.ID)
	if err != nil {
		log.WithError(err).Error("debt lookup failed")
		return nil, remoteErr("customer debt", err)
	}
	owes := order.Status == domain.WorkOrderStatusDelivered && order.RemainingAmount.IsPositive()
	if existing == nil && !owes {
		return nil, nil
	}

	debt := &domain.CustomerDebt{
		CustomerName:    order.CustomerName,
		CustomerPhone:   order.CustomerPhone,
		WorkOrderID:     order.ID,
		TotalAmount:     order.Total,
		PaidAmount:      order.TotalPaid,
		RemainingAmount: order.RemainingAmount,
		Description:     fmt.Sprintf("Công nợ phiếu sửa chữa %s", order.ID),
		BranchID:        order.BranchID,
	}
	if debt.PaidAmount.GreaterThan(debt.TotalAmount) {
		debt.PaidAmount = debt.TotalAmount
	}
	if existing != nil {
		debt.ID = existing.ID
		debt.CreatedAt = existing.CreatedAt
	}
	if err := s.debts.UpsertCustomerDebt(ctx, debt); err != nil {
		log.WithError(err).Error("debt upsert failed")
		return nil, remoteErr("customer debt", err)
	}
	log.WithField("remaining", debt.RemainingAmount.String()).Info("customer debt recorded")
	return debt, nil
}

func isFinished(status string) bool {
	return status == domain.WorkOrderStatusCompleted || status == domain.WorkOrderStatusDelivered
}

// syncVehicle records detected maintenance on the order's vehicle when the
// order first reaches a finished status or its odometer reading changes
func (s *Service) syncVehicle(ctx context.Context, log logrus.FieldLogger, prev, order *domain.WorkOrder, res *SaveResult) error {
	if order.VehicleID == "" || order.Mileage <= 0 || !isFinished(order.Status) {
		return nil
	}
	if prev != nil && isFinished(prev.Status) && prev.Mileage == order.Mileage && prev.VehicleID == order.VehicleID {
		return nil
	}

	v, err := s.vehicles.Get(ctx, order.BranchID, order.VehicleID)
	if err != nil {
		log.WithError(err).Error("vehicle lookup failed")
		return remoteErr("vehicle", err)
	}
	if v == nil {
		log.WithField("vehicle", order.VehicleID).Warn("work order references unknown vehicle")
		return nil
	}

	detected := s.engine.Detect(order.Parts, order.Services, order.Issue)
	updated := maintenance.Apply(*v, detected, order.Mileage, s.now())
	if err := s.vehicles.Update(ctx, &updated); err != nil {
		log.WithError(err).Error("vehicle update failed")
		return remoteErr("vehicle", err)
	}
	log.WithFields(logrus.Fields{"vehicle": updated.ID, "km": updated.CurrentKm, "detected": len(detected)}).Info("vehicle maintenance updated")
	res.Vehicle = &updated
	res.Warnings = s.engine.Check(&updated)
	return nil
}

// Refund cancels a work order and pays back everything received on it, each
// amount to the payment source it was received on. Parts are not returned to
// stock.
func (s *Service) Refund(ctx context.Context, branchID, id, reason string) (*domain.WorkOrder, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, domain.NewValidationError(domain.CodeReasonRequired, "reason")
	}

	order, err := s.orders.Get(ctx, branchID, id)
	if err != nil {
		return nil, errors.Wrapf(err, "load work order %s", id)
	}
	if order == nil {
		return nil, domain.ErrNotFound
	}
	if order.Refunded {
		return nil, &domain.ConflictError{Code: domain.CodeAlreadyRefunded}
	}
	paid, err := s.loadPaidSources(ctx, branchID, id)
	if err != nil {
		return nil, err
	}

	log := s.log.WithFields(logrus.Fields{"work_order": order.ID, "branch": order.BranchID, "op": "refund"})

	now := s.now()
	order.Refunded = true
	order.RefundReason = reason
	order.RefundedAt = &now
	order.Status = domain.WorkOrderStatusCancelled
	if err := s.orders.Update(ctx, order); err != nil {
		log.WithError(err).Error("work order update failed")
		return nil, remoteErr("work order", err)
	}
	log.WithField("total_paid", order.TotalPaid.String()).Info("work order refunded")

	if order.TotalPaid.IsPositive() {
		for _, share := range paid.takeBack(order.TotalPaid, order.PaymentSourceID) {
			_, err := s.post(ctx, log, domain.CashTransaction{
				Category:        domain.CategoryRefund,
				Amount:          share.amount.Neg(),
				Description:     fmt.Sprintf("Hoàn tiền phiếu %s: %s", order.ID, reason),
				BranchID:        order.BranchID,
				PaymentSourceID: share.sourceID,
				ReferenceID:     order.ID,
			})
			if err != nil {
				return order, err
			}
		}
	}

	h := &domain.WorkOrderStatusHistory{WorkOrderID: order.ID, Status: order.Status, Notes: reason, CreatedAt: now}
	if err := s.orders.AddStatusHistory(ctx, h); err != nil {
		log.WithError(err).Error("status history failed")
		return order, remoteErr("status history", err)
	}

	debt, err := s.debts.GetCustomerDebtByWorkOrder(ctx, order.BranchID, order.ID)
	if err != nil {
		return order, remoteErr("customer debt", err)
	}
	if debt != nil && debt.RemainingAmount.IsPositive() {
		debt.RemainingAmount = decimal.Zero
		debt.Description = fmt.Sprintf("Công nợ phiếu sửa chữa %s (đã hoàn tiền)", order.ID)
		if err := s.debts.UpsertCustomerDebt(ctx, debt); err != nil {
			log.WithError(err).Error("debt close failed")
			return order, remoteErr("customer debt", err)
		}
	}
	return order, nil
}

// DeleteWorkOrder removes a work order entered by mistake and puts its parts
// back on stock. Orders with ledger entries or a customer debt must be
// refunded instead.
func (s *Service) DeleteWorkOrder(ctx context.Context, branchID, id string) error {
	order, err := s.orders.Get(ctx, branchID, id)
	if err != nil {
		return errors.Wrapf(err, "load work order %s", id)
	}
	if order == nil {
		return domain.ErrNotFound
	}

	posted, err := s.ledger.ListByReference(ctx, branchID, id)
	if err != nil {
		return errors.Wrapf(err, "load ledger of %s", id)
	}
	debt, err := s.debts.GetCustomerDebtByWorkOrder(ctx, branchID, id)
	if err != nil {
		return errors.Wrapf(err, "load debt of %s", id)
	}
	if order.Refunded || len(posted) > 0 || debt != nil {
		return &domain.ConflictError{Code: domain.CodeOrderHasPayments}
	}

	log := s.log.WithFields(logrus.Fields{"work_order": order.ID, "branch": order.BranchID, "op": "delete"})

	if err := s.orders.Delete(ctx, branchID, id); err != nil {
		log.WithError(err).Error("work order delete failed")
		return remoteErr("work order", err)
	}

	returned := make(map[string]int)
	for part, qty := range order.PartQuantities() {
		if part != "" {
			returned[part] = -qty
		}
	}
	if err := s.applyStock(ctx, log, order.BranchID, returned); err != nil {
		return err
	}
	log.WithField("parts_returned", len(returned)).Info("work order deleted")
	return nil
}
