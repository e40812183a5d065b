package settlement

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"motoshop/internal/domain"
	"motoshop/internal/maintenance"
	"motoshop/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

var errStoreDown = errors.New("store unavailable")

// failures lets a test make one named store operation fail
type failures struct {
	mu  sync.Mutex
	ops map[string]bool
}

func (f *failures) set(op string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ops == nil {
		f.ops = map[string]bool{}
	}
	f.ops[op] = true
}

func (f *failures) clear(op string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.ops, op)
}

func (f *failures) check(op string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ops[op] {
		return fmt.Errorf("%s: %w", op, errStoreDown)
	}
	return nil
}

func key(parts ...string) string { return strings.Join(parts, "|") }

// --- work orders ---

type mockWorkOrderRepository struct {
	fail    *failures
	orders  map[string]domain.WorkOrder
	history []domain.WorkOrderStatusHistory
}

func (r *mockWorkOrderRepository) Insert(_ context.Context, o *domain.WorkOrder) error {
	if err := r.fail.check("orders.insert"); err != nil {
		return err
	}
	r.orders[key(o.BranchID, o.ID)] = cloneOrder(*o)
	return nil
}

func (r *mockWorkOrderRepository) Get(_ context.Context, branchID, id string) (*domain.WorkOrder, error) {
	o, ok := r.orders[key(branchID, id)]
	if !ok {
		return nil, nil
	}
	c := cloneOrder(o)
	return &c, nil
}

func (r *mockWorkOrderRepository) Update(_ context.Context, o *domain.WorkOrder) error {
	if err := r.fail.check("orders.update"); err != nil {
		return err
	}
	if _, ok := r.orders[key(o.BranchID, o.ID)]; !ok {
		return domain.ErrNotFound
	}
	r.orders[key(o.BranchID, o.ID)] = cloneOrder(*o)
	return nil
}

func (r *mockWorkOrderRepository) Delete(_ context.Context, branchID, id string) error {
	if err := r.fail.check("orders.delete"); err != nil {
		return err
	}
	delete(r.orders, key(branchID, id))
	return nil
}

func (r *mockWorkOrderRepository) List(_ context.Context, f repository.WorkOrderFilter) ([]domain.WorkOrder, error) {
	var out []domain.WorkOrder
	for _, o := range r.orders {
		if o.BranchID == f.BranchID && (f.Status == "" || o.Status == f.Status) {
			out = append(out, cloneOrder(o))
		}
	}
	return out, nil
}

func (r *mockWorkOrderRepository) CountByStatus(_ context.Context, branchID string) (map[string]int, error) {
	counts := map[string]int{}
	for _, o := range r.orders {
		if o.BranchID == branchID {
			counts[o.Status]++
		}
	}
	return counts, nil
}

func (r *mockWorkOrderRepository) AddStatusHistory(_ context.Context, h *domain.WorkOrderStatusHistory) error {
	if err := r.fail.check("orders.history"); err != nil {
		return err
	}
	h.ID = int64(len(r.history) + 1)
	r.history = append(r.history, *h)
	return nil
}

func (r *mockWorkOrderRepository) GetStatusHistory(_ context.Context, workOrderID string) ([]domain.WorkOrderStatusHistory, error) {
	var out []domain.WorkOrderStatusHistory
	for _, h := range r.history {
		if h.WorkOrderID == workOrderID {
			out = append(out, h)
		}
	}
	return out, nil
}

func cloneOrder(o domain.WorkOrder) domain.WorkOrder {
	o.Parts = append([]domain.PartLine(nil), o.Parts...)
	o.Services = append([]domain.ServiceLine(nil), o.Services...)
	return o
}

// --- ledger ---

type mockLedgerRepository struct {
	fail    *failures
	sources *mockPaymentSourceRepository
	entries []domain.CashTransaction
}

func (r *mockLedgerRepository) Append(_ context.Context, e *domain.CashTransaction) error {
	if err := r.fail.check("ledger.append"); err != nil {
		return err
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	r.entries = append(r.entries, *e)
	return nil
}

// DeleteByReference changes nothing unless every balance can be restored
func (r *mockLedgerRepository) DeleteByReference(_ context.Context, branchID, ref string) ([]domain.CashTransaction, error) {
	if err := r.fail.check("ledger.delete"); err != nil {
		return nil, err
	}
	var kept, removed []domain.CashTransaction
	for _, e := range r.entries {
		if e.BranchID == branchID && e.ReferenceID == ref {
			removed = append(removed, e)
		} else {
			kept = append(kept, e)
		}
	}
	balances := map[string]domain.PaymentSource{}
	for _, e := range removed {
		if e.PaymentSourceID == "" {
			continue
		}
		if err := r.fail.check("sources.adjust"); err != nil {
			return nil, err
		}
		k := key(branchID, e.PaymentSourceID)
		src, ok := balances[k]
		if !ok {
			if src, ok = r.sources.sources[k]; !ok {
				return nil, domain.ErrNotFound
			}
		}
		src.Balance = src.Balance.Sub(e.Amount)
		balances[k] = src
	}
	for k, src := range balances {
		r.sources.sources[k] = src
	}
	r.entries = kept
	return removed, nil
}

func (r *mockLedgerRepository) ListByReference(_ context.Context, branchID, ref string) ([]domain.CashTransaction, error) {
	var out []domain.CashTransaction
	for _, e := range r.entries {
		if e.BranchID == branchID && e.ReferenceID == ref {
			out = append(out, e)
		}
	}
	return out, nil
}

func (r *mockLedgerRepository) List(_ context.Context, branchID string, from, to time.Time) ([]domain.CashTransaction, error) {
	var out []domain.CashTransaction
	for _, e := range r.entries {
		if e.BranchID != branchID {
			continue
		}
		if (!from.IsZero() && e.Date.Before(from)) || (!to.IsZero() && !e.Date.Before(to)) {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

// --- payment sources ---

type mockPaymentSourceRepository struct {
	fail    *failures
	sources map[string]domain.PaymentSource
}

func (r *mockPaymentSourceRepository) Create(_ context.Context, s *domain.PaymentSource) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	r.sources[key(s.BranchID, s.ID)] = *s
	return nil
}

func (r *mockPaymentSourceRepository) Get(_ context.Context, branchID, id string) (*domain.PaymentSource, error) {
	s, ok := r.sources[key(branchID, id)]
	if !ok {
		return nil, nil
	}
	return &s, nil
}

func (r *mockPaymentSourceRepository) List(_ context.Context, branchID string) ([]domain.PaymentSource, error) {
	var out []domain.PaymentSource
	for _, s := range r.sources {
		if s.BranchID == branchID {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (r *mockPaymentSourceRepository) AdjustBalance(_ context.Context, branchID, id string, delta decimal.Decimal) error {
	if err := r.fail.check("sources.adjust"); err != nil {
		return err
	}
	s, ok := r.sources[key(branchID, id)]
	if !ok {
		return domain.ErrNotFound
	}
	s.Balance = s.Balance.Add(delta)
	r.sources[key(branchID, id)] = s
	return nil
}

// --- stock ---

type mockStockRepository struct {
	fail *failures
	qty  map[string]int
	// history records every quantity written, to check it never went negative
	history []int
}

func (r *mockStockRepository) GetStock(_ context.Context, partID, branchID string) (int, error) {
	return r.qty[key(partID, branchID)], nil
}

func (r *mockStockRepository) SetStock(_ context.Context, partID, branchID string, q int) error {
	if err := r.fail.check("stock.set"); err != nil {
		return err
	}
	if q < 0 {
		cur := r.qty[key(partID, branchID)]
		return &domain.StockUnderflowError{PartID: partID, BranchID: branchID, Current: cur, Requested: cur - q}
	}
	r.qty[key(partID, branchID)] = q
	r.history = append(r.history, q)
	return nil
}

// --- debts ---

type mockDebtRepository struct {
	fail      *failures
	customer  map[string]domain.CustomerDebt
	suppliers []domain.SupplierDebt
}

func (r *mockDebtRepository) UpsertCustomerDebt(_ context.Context, d *domain.CustomerDebt) error {
	if err := r.fail.check("debts.upsert"); err != nil {
		return err
	}
	k := key(d.BranchID, d.WorkOrderID)
	if existing, ok := r.customer[k]; ok {
		d.ID = existing.ID
		d.CreatedAt = existing.CreatedAt
	} else if d.ID == "" {
		d.ID = uuid.NewString()
	}
	r.customer[k] = *d
	return nil
}

func (r *mockDebtRepository) GetCustomerDebtByWorkOrder(_ context.Context, branchID, workOrderID string) (*domain.CustomerDebt, error) {
	d, ok := r.customer[key(branchID, workOrderID)]
	if !ok {
		return nil, nil
	}
	return &d, nil
}

func (r *mockDebtRepository) GetCustomerDebtByID(_ context.Context, branchID, id string) (*domain.CustomerDebt, error) {
	for _, d := range r.customer {
		if d.BranchID == branchID && d.ID == id {
			c := d
			return &c, nil
		}
	}
	return nil, nil
}

func (r *mockDebtRepository) ListCustomerDebts(_ context.Context, branchID string, openOnly bool) ([]domain.CustomerDebt, error) {
	var out []domain.CustomerDebt
	for _, d := range r.customer {
		if d.BranchID == branchID && (!openOnly || d.RemainingAmount.IsPositive()) {
			out = append(out, d)
		}
	}
	return out, nil
}

func (r *mockDebtRepository) CreateSupplierDebt(_ context.Context, d *domain.SupplierDebt) error {
	if err := r.fail.check("debts.supplier"); err != nil {
		return err
	}
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	r.suppliers = append(r.suppliers, *d)
	return nil
}

func (r *mockDebtRepository) ListSupplierDebts(_ context.Context, branchID string) ([]domain.SupplierDebt, error) {
	var out []domain.SupplierDebt
	for _, d := range r.suppliers {
		if d.BranchID == branchID {
			out = append(out, d)
		}
	}
	return out, nil
}

func (r *mockDebtRepository) DeleteSupplierDebtsMatching(_ context.Context, branchID, text string) (int64, error) {
	var kept []domain.SupplierDebt
	var n int64
	for _, d := range r.suppliers {
		if d.BranchID == branchID && strings.Contains(d.Description, text) {
			n++
			continue
		}
		kept = append(kept, d)
	}
	r.suppliers = kept
	return n, nil
}

// --- receipts ---

type mockReceiptRepository struct {
	fail     *failures
	stock    *mockStockRepository
	receipts map[string]domain.InventoryReceipt
}

func (r *mockReceiptRepository) Insert(_ context.Context, rc *domain.InventoryReceipt) error {
	if err := r.fail.check("receipts.insert"); err != nil {
		return err
	}
	r.receipts[key(rc.BranchID, rc.ID)] = *rc
	return nil
}

func (r *mockReceiptRepository) Get(_ context.Context, branchID, id string) (*domain.InventoryReceipt, error) {
	rc, ok := r.receipts[key(branchID, id)]
	if !ok {
		return nil, nil
	}
	return &rc, nil
}

// RevertStock fails before touching stock, like the store transaction
func (r *mockReceiptRepository) RevertStock(_ context.Context, branchID, id string) ([]string, error) {
	if err := r.fail.check("receipts.revert"); err != nil {
		return nil, err
	}
	rc, ok := r.receipts[key(branchID, id)]
	if !ok {
		return nil, domain.ErrNotFound
	}
	if rc.StockReverted {
		return nil, nil
	}
	var clamped []string
	for _, l := range rc.Lines {
		k := key(l.PartID, branchID)
		next := r.stock.qty[k] - l.Quantity
		if next < 0 {
			clamped = append(clamped, l.PartID)
			next = 0
		}
		r.stock.qty[k] = next
		r.stock.history = append(r.stock.history, next)
	}
	rc.StockReverted = true
	r.receipts[key(branchID, id)] = rc
	return clamped, nil
}

func (r *mockReceiptRepository) Delete(_ context.Context, branchID, id string) error {
	delete(r.receipts, key(branchID, id))
	return nil
}

func (r *mockReceiptRepository) List(_ context.Context, branchID string, _, _ int) ([]domain.InventoryReceipt, error) {
	var out []domain.InventoryReceipt
	for _, rc := range r.receipts {
		if rc.BranchID == branchID {
			out = append(out, rc)
		}
	}
	return out, nil
}

// --- vehicles ---

type mockVehicleRepository struct {
	fail     *failures
	vehicles map[string]domain.Vehicle
}

func (r *mockVehicleRepository) Create(_ context.Context, v *domain.Vehicle) error {
	if v.ID == "" {
		v.ID = uuid.NewString()
	}
	r.vehicles[key(v.BranchID, v.ID)] = *v
	return nil
}

func (r *mockVehicleRepository) Get(_ context.Context, branchID, id string) (*domain.Vehicle, error) {
	v, ok := r.vehicles[key(branchID, id)]
	if !ok {
		return nil, nil
	}
	return &v, nil
}

func (r *mockVehicleRepository) Update(_ context.Context, v *domain.Vehicle) error {
	if err := r.fail.check("vehicles.update"); err != nil {
		return err
	}
	r.vehicles[key(v.BranchID, v.ID)] = *v
	return nil
}

func (r *mockVehicleRepository) ListByCustomer(_ context.Context, branchID, phone string) ([]domain.Vehicle, error) {
	var out []domain.Vehicle
	for _, v := range r.vehicles {
		if v.BranchID == branchID && v.CustomerPhone == phone {
			out = append(out, v)
		}
	}
	return out, nil
}

// --- setup ---

type testStores struct {
	fail     *failures
	orders   *mockWorkOrderRepository
	ledger   *mockLedgerRepository
	sources  *mockPaymentSourceRepository
	stock    *mockStockRepository
	debts    *mockDebtRepository
	receipts *mockReceiptRepository
	vehicles *mockVehicleRepository
}

const (
	testBranch = "CN1"
	cashID     = "cash"
	bankID     = "bank"
)

var testNow = time.Date(2026, 5, 4, 10, 30, 0, 0, time.UTC)

func setupSettlementTest(t *testing.T) (*Service, *testStores) {
	t.Helper()
	f := &failures{}
	st := &testStores{
		fail:     f,
		orders:   &mockWorkOrderRepository{fail: f, orders: map[string]domain.WorkOrder{}},
		sources:  &mockPaymentSourceRepository{fail: f, sources: map[string]domain.PaymentSource{}},
		stock:    &mockStockRepository{fail: f, qty: map[string]int{}},
		debts:    &mockDebtRepository{fail: f, customer: map[string]domain.CustomerDebt{}},
		vehicles: &mockVehicleRepository{fail: f, vehicles: map[string]domain.Vehicle{}},
	}
	st.ledger = &mockLedgerRepository{fail: f, sources: st.sources}
	st.receipts = &mockReceiptRepository{fail: f, stock: st.stock, receipts: map[string]domain.InventoryReceipt{}}
	st.sources.sources[key(testBranch, cashID)] = domain.PaymentSource{ID: cashID, Name: "Tiền mặt", Kind: "cash", BranchID: testBranch}
	st.sources.sources[key(testBranch, bankID)] = domain.PaymentSource{ID: bankID, Name: "Vietcombank", Kind: "bank", BranchID: testBranch}

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	svc := NewService(&repository.Repositories{
		WorkOrders:     st.orders,
		Ledger:         st.ledger,
		PaymentSources: st.sources,
		Stock:          st.stock,
		Debts:          st.debts,
		Receipts:       st.receipts,
		Vehicles:       st.vehicles,
	}, maintenance.NewEngine(maintenance.DefaultRules()), logger)
	svc.now = func() time.Time { return testNow }

	seq := 0
	svc.newID = func() string {
		seq++
		return fmt.Sprintf("%04d", seq)
	}
	return svc, st
}

func (st *testStores) balance(id string) decimal.Decimal {
	return st.sources.sources[key(testBranch, id)].Balance
}

func (st *testStores) stockOf(partID string) int {
	return st.stock.qty[key(partID, testBranch)]
}

func vnd(v int64) decimal.Decimal { return decimal.NewFromInt(v) }
