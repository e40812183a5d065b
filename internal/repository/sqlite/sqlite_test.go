package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"motoshop/internal/domain"
	"motoshop/internal/repository"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func setupDBTest(t *testing.T) (*DB, context.Context) {
	t.Helper()
	db, err := New(filepath.Join(t.TempDir(), "shop.db"))
	require.NoError(t, err)
	require.NoError(t, db.Migrate())
	t.Cleanup(func() { db.Close() })
	return db, context.Background()
}

func TestMigrate_Idempotent(t *testing.T) {
	db, _ := setupDBTest(t)
	assert.NoError(t, db.Migrate())
}

func TestWorkOrderRepo_RoundTrip(t *testing.T) {
	db, ctx := setupDBTest(t)
	repo := NewWorkOrderRepo(db)

	order := &domain.WorkOrder{
		ID:            "WO-1",
		BranchID:      "CN1",
		CustomerName:  "Nguyễn Văn A",
		CustomerPhone: "0901234567",
		Status:        domain.WorkOrderStatusReceived,
		LaborCost:     decimal.NewFromInt(100000),
		Parts: []domain.PartLine{
			{PartID: "p1", Name: "Nhớt Motul", Quantity: 2, Price: decimal.NewFromInt(50000), CostPrice: decimal.NewFromInt(40000)},
		},
		Total:         decimal.NewFromInt(200000),
		PaymentStatus: domain.PaymentStatusPartial,
		DepositAmount: decimal.NewFromInt(50000),
		TotalPaid:     decimal.NewFromInt(50000),
	}
	require.NoError(t, repo.Insert(ctx, order))

	got, err := repo.Get(ctx, "CN1", "WO-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Nguyễn Văn A", got.CustomerName)
	assert.True(t, decimal.NewFromInt(200000).Equal(got.Total))
	require.Len(t, got.Parts, 1)
	assert.Equal(t, 2, got.Parts[0].Quantity)
	assert.True(t, decimal.NewFromInt(50000).Equal(got.Parts[0].Price))
	assert.Empty(t, got.Services)
	assert.Nil(t, got.RefundedAt)

	now := time.Now().UTC()
	got.Refunded = true
	got.RefundedAt = &now
	got.Status = domain.WorkOrderStatusCancelled
	require.NoError(t, repo.Update(ctx, got))

	again, err := repo.Get(ctx, "CN1", "WO-1")
	require.NoError(t, err)
	assert.True(t, again.Refunded)
	require.NotNil(t, again.RefundedAt)
	assert.Equal(t, domain.WorkOrderStatusCancelled, again.Status)

	missing, err := repo.Get(ctx, "CN2", "WO-1")
	require.NoError(t, err)
	assert.Nil(t, missing)

	err = repo.Update(ctx, &domain.WorkOrder{ID: "nope", BranchID: "CN1"})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestWorkOrderRepo_ListAndHistory(t *testing.T) {
	db, ctx := setupDBTest(t)
	repo := NewWorkOrderRepo(db)

	for i, status := range []string{domain.WorkOrderStatusReceived, domain.WorkOrderStatusDelivered, domain.WorkOrderStatusReceived} {
		require.NoError(t, repo.Insert(ctx, &domain.WorkOrder{
			ID:            string(rune('A' + i)),
			BranchID:      "CN1",
			CustomerName:  "Khách",
			CustomerPhone: "0901234567",
			Status:        status,
		}))
	}

	received, err := repo.List(ctx, repository.WorkOrderFilter{BranchID: "CN1", Status: domain.WorkOrderStatusReceived})
	require.NoError(t, err)
	assert.Len(t, received, 2)

	counts, err := repo.CountByStatus(ctx, "CN1")
	require.NoError(t, err)
	assert.Equal(t, 2, counts[domain.WorkOrderStatusReceived])
	assert.Equal(t, 1, counts[domain.WorkOrderStatusDelivered])

	require.NoError(t, repo.AddStatusHistory(ctx, &domain.WorkOrderStatusHistory{WorkOrderID: "A", Status: domain.WorkOrderStatusReceived}))
	require.NoError(t, repo.AddStatusHistory(ctx, &domain.WorkOrderStatusHistory{WorkOrderID: "A", Status: domain.WorkOrderStatusInProgress}))
	history, err := repo.GetStatusHistory(ctx, "A")
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, domain.WorkOrderStatusInProgress, history[1].Status)

	require.NoError(t, repo.Delete(ctx, "CN1", "A"))
	history, err = repo.GetStatusHistory(ctx, "A")
	require.NoError(t, err)
	assert.Empty(t, history)
	assert.ErrorIs(t, repo.Delete(ctx, "CN1", "A"), domain.ErrNotFound)
}

func TestLedgerRepo_DeleteByReference(t *testing.T) {
	db, ctx := setupDBTest(t)
	repo := NewLedgerRepo(db)
	sources := NewPaymentSourceRepo(db)

	cash := &domain.PaymentSource{Name: "Tiền mặt", Kind: "cash", BranchID: "CN1"}
	require.NoError(t, sources.Create(ctx, cash))
	for _, amount := range []int64{-300000, -50000} {
		require.NoError(t, repo.Append(ctx, &domain.CashTransaction{
			Type:            domain.TransactionExpense,
			Category:        domain.CategoryInventoryReceipt,
			Amount:          decimal.NewFromInt(amount),
			BranchID:        "CN1",
			PaymentSourceID: cash.ID,
			ReferenceID:     "R1",
		}))
		require.NoError(t, sources.AdjustBalance(ctx, "CN1", cash.ID, decimal.NewFromInt(amount)))
	}
	require.NoError(t, repo.Append(ctx, &domain.CashTransaction{
		Type: domain.TransactionIncome, Category: domain.CategoryDeposit,
		Amount: decimal.NewFromInt(10000), BranchID: "CN1", ReferenceID: "WO-1",
	}))

	removed, err := repo.DeleteByReference(ctx, "CN1", "R1")
	require.NoError(t, err)
	assert.Len(t, removed, 2)

	got, err := sources.Get(ctx, "CN1", cash.ID)
	require.NoError(t, err)
	assert.True(t, got.Balance.IsZero(), got.Balance.String())

	left, err := repo.List(ctx, "CN1", time.Time{}, time.Time{})
	require.NoError(t, err)
	require.Len(t, left, 1)
	assert.Equal(t, "WO-1", left[0].ReferenceID)

	removed, err = repo.DeleteByReference(ctx, "CN1", "R1")
	require.NoError(t, err)
	assert.Empty(t, removed)
}

func TestLedgerRepo_DeleteByReferenceUnknownSourceKeepsEntries(t *testing.T) {
	db, ctx := setupDBTest(t)
	repo := NewLedgerRepo(db)

	require.NoError(t, repo.Append(ctx, &domain.CashTransaction{
		Type: domain.TransactionExpense, Category: domain.CategoryInventoryReceipt,
		Amount: decimal.NewFromInt(-60000), BranchID: "CN1", PaymentSourceID: "gone", ReferenceID: "R1",
	}))

	_, err := repo.DeleteByReference(ctx, "CN1", "R1")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	left, err := repo.ListByReference(ctx, "CN1", "R1")
	require.NoError(t, err)
	assert.Len(t, left, 1)
}

func TestLedgerRepo_ListByPeriod(t *testing.T) {
	db, ctx := setupDBTest(t)
	repo := NewLedgerRepo(db)

	may := time.Date(2026, 5, 10, 8, 0, 0, 0, time.UTC)
	june := time.Date(2026, 6, 2, 8, 0, 0, 0, time.UTC)
	for _, d := range []time.Time{may, june} {
		require.NoError(t, repo.Append(ctx, &domain.CashTransaction{
			Type: domain.TransactionIncome, Category: domain.CategoryServicePayment,
			Amount: decimal.NewFromInt(1000), Date: d, BranchID: "CN1",
		}))
	}

	entries, err := repo.List(ctx, "CN1", time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC), time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.True(t, may.Equal(entries[0].Date))
}

func TestPaymentSourceRepo_AdjustBalance(t *testing.T) {
	db, ctx := setupDBTest(t)
	repo := NewPaymentSourceRepo(db)

	src := &domain.PaymentSource{Name: "Tiền mặt", Kind: "cash", BranchID: "CN1", Balance: decimal.NewFromInt(100000)}
	require.NoError(t, repo.Create(ctx, src))

	require.NoError(t, repo.AdjustBalance(ctx, "CN1", src.ID, decimal.NewFromInt(50000)))
	require.NoError(t, repo.AdjustBalance(ctx, "CN1", src.ID, decimal.NewFromInt(-20000)))

	got, err := repo.Get(ctx, "CN1", src.ID)
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(130000).Equal(got.Balance), got.Balance.String())

	err = repo.AdjustBalance(ctx, "CN2", src.ID, decimal.NewFromInt(1))
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestStockRepo_RejectsNegative(t *testing.T) {
	db, ctx := setupDBTest(t)
	repo := NewStockRepo(db)

	qty, err := repo.GetStock(ctx, "p1", "CN1")
	require.NoError(t, err)
	assert.Equal(t, 0, qty)

	require.NoError(t, repo.SetStock(ctx, "p1", "CN1", 10))
	require.NoError(t, repo.SetStock(ctx, "p1", "CN1", 6))

	err = repo.SetStock(ctx, "p1", "CN1", -1)
	var underflow *domain.StockUnderflowError
	require.ErrorAs(t, err, &underflow)
	assert.Equal(t, 6, underflow.Current)

	qty, err = repo.GetStock(ctx, "p1", "CN1")
	require.NoError(t, err)
	assert.Equal(t, 6, qty)
}

func TestDebtRepo_UpsertKeepsOneRow(t *testing.T) {
	db, ctx := setupDBTest(t)
	repo := NewDebtRepo(db)

	debt := &domain.CustomerDebt{
		CustomerName: "Trần B", CustomerPhone: "0912345678", WorkOrderID: "WO-1", BranchID: "CN1",
		TotalAmount: decimal.NewFromInt(200000), PaidAmount: decimal.NewFromInt(150000), RemainingAmount: decimal.NewFromInt(50000),
	}
	require.NoError(t, repo.UpsertCustomerDebt(ctx, debt))
	firstID := debt.ID

	again := &domain.CustomerDebt{
		CustomerName: "Trần B", CustomerPhone: "0912345678", WorkOrderID: "WO-1", BranchID: "CN1",
		TotalAmount: decimal.NewFromInt(200000), PaidAmount: decimal.NewFromInt(170000), RemainingAmount: decimal.NewFromInt(30000),
	}
	require.NoError(t, repo.UpsertCustomerDebt(ctx, again))
	assert.Equal(t, firstID, again.ID)

	debts, err := repo.ListCustomerDebts(ctx, "CN1", false)
	require.NoError(t, err)
	require.Len(t, debts, 1)
	assert.True(t, decimal.NewFromInt(30000).Equal(debts[0].RemainingAmount))

	got, err := repo.GetCustomerDebtByWorkOrder(ctx, "CN1", "WO-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, firstID, got.ID)

	corrected := &domain.CustomerDebt{
		CustomerName: "Trần Bình", CustomerPhone: "0987654321", WorkOrderID: "WO-1", BranchID: "CN1",
		TotalAmount: decimal.NewFromInt(200000), PaidAmount: decimal.NewFromInt(170000), RemainingAmount: decimal.NewFromInt(30000),
	}
	require.NoError(t, repo.UpsertCustomerDebt(ctx, corrected))
	assert.Equal(t, firstID, corrected.ID)

	debts, err = repo.ListCustomerDebts(ctx, "CN1", true)
	require.NoError(t, err)
	require.Len(t, debts, 1)
	assert.Equal(t, "0987654321", debts[0].CustomerPhone)
	assert.Equal(t, "Trần Bình", debts[0].CustomerName)
}

func TestDebtRepo_DeleteSupplierDebtsMatching(t *testing.T) {
	db, ctx := setupDBTest(t)
	repo := NewDebtRepo(db)

	require.NoError(t, repo.CreateSupplierDebt(ctx, &domain.SupplierDebt{
		SupplierName: "Phụ tùng Hòa", BranchID: "CN1", Description: "Công nợ phiếu nhập NK-0001",
		TotalAmount: decimal.NewFromInt(500000), RemainingAmount: decimal.NewFromInt(200000),
	}))
	require.NoError(t, repo.CreateSupplierDebt(ctx, &domain.SupplierDebt{
		SupplierName: "Phụ tùng Hòa", BranchID: "CN1", Description: "Công nợ phiếu nhập NK-0002",
	}))

	n, err := repo.DeleteSupplierDebtsMatching(ctx, "CN1", "NK-0001")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	left, err := repo.ListSupplierDebts(ctx, "CN1")
	require.NoError(t, err)
	require.Len(t, left, 1)
	assert.Contains(t, left[0].Description, "NK-0002")
}

func TestReceiptRepo_RevertStock(t *testing.T) {
	db, ctx := setupDBTest(t)
	repo := NewReceiptRepo(db)
	stock := NewStockRepo(db)

	rc := &domain.InventoryReceipt{
		Code: "NK-0001", BranchID: "CN1", SupplierName: "Phụ tùng Hòa",
		Lines: []domain.ReceiptLine{
			{PartID: "p1", PartName: "Bugi", Quantity: 4, UnitCost: decimal.NewFromInt(25000)},
			{PartID: "p2", PartName: "Lọc gió", Quantity: 3, UnitCost: decimal.NewFromInt(40000)},
		},
		TotalCost: decimal.NewFromInt(220000),
	}
	require.NoError(t, repo.Insert(ctx, rc))
	require.NoError(t, stock.SetStock(ctx, "p1", "CN1", 10))
	require.NoError(t, stock.SetStock(ctx, "p2", "CN1", 1))

	clamped, err := repo.RevertStock(ctx, "CN1", rc.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"p2"}, clamped)

	qty, err := stock.GetStock(ctx, "p1", "CN1")
	require.NoError(t, err)
	assert.Equal(t, 6, qty)
	qty, err = stock.GetStock(ctx, "p2", "CN1")
	require.NoError(t, err)
	assert.Equal(t, 0, qty)

	got, err := repo.Get(ctx, "CN1", rc.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, got.StockReverted)
	require.Len(t, got.Lines, 2)

	// a second revert is a no-op
	clamped, err = repo.RevertStock(ctx, "CN1", rc.ID)
	require.NoError(t, err)
	assert.Empty(t, clamped)
	qty, err = stock.GetStock(ctx, "p1", "CN1")
	require.NoError(t, err)
	assert.Equal(t, 6, qty)

	_, err = repo.RevertStock(ctx, "CN1", "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	require.NoError(t, repo.Delete(ctx, "CN1", rc.ID))
	got, err = repo.Get(ctx, "CN1", rc.ID)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestVehicleRepo_MaintenanceHistory(t *testing.T) {
	db, ctx := setupDBTest(t)
	repo := NewVehicleRepo(db)

	v := &domain.Vehicle{BranchID: "CN1", CustomerPhone: "0901234567", Model: "Honda Vision", CurrentKm: 8000}
	require.NoError(t, repo.Create(ctx, v))

	serviced := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	v.CurrentKm = 9500
	v.LastMaintenances = map[domain.MaintenanceType]domain.MaintenanceRecord{
		domain.MaintenanceOilChange: {Km: 9500, Date: serviced},
	}
	require.NoError(t, repo.Update(ctx, v))

	got, err := repo.Get(ctx, "CN1", v.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 9500, got.CurrentKm)
	assert.Equal(t, 9500, got.LastMaintenances[domain.MaintenanceOilChange].Km)
	assert.True(t, serviced.Equal(got.LastMaintenances[domain.MaintenanceOilChange].Date))

	list, err := repo.ListByCustomer(ctx, "CN1", "0901234567")
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestUserRepo_CreateAndLookup(t *testing.T) {
	db, ctx := setupDBTest(t)
	repo := NewUserRepo(db)

	hash, err := HashPassword("secret")
	require.NoError(t, err)
	u := &domain.User{Email: " Thu.Ngan@motoshop.vn", PasswordHash: hash, Name: "Thu ngân", Role: domain.RoleCashier, BranchID: "CN1"}
	require.NoError(t, repo.Create(ctx, u))

	got, err := repo.GetByEmail(ctx, "thu.ngan@motoshop.vn")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "CN1", got.BranchID)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(got.PasswordHash), []byte("secret")))
	assert.Error(t, bcrypt.CompareHashAndPassword([]byte(got.PasswordHash), []byte("wrong")))

	count, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestSettingsRepo_GetSet(t *testing.T) {
	db, ctx := setupDBTest(t)
	repo := NewSettingsRepo(db)

	values, err := repo.GetMany(ctx, "CN1.business_name")
	require.NoError(t, err)
	assert.Empty(t, values)

	require.NoError(t, repo.SetMany(ctx, map[string]string{"CN1.business_name": "Moto Shop", "CN1.business_phone": "0283"}))
	require.NoError(t, repo.SetMany(ctx, map[string]string{"CN1.business_name": "Moto Shop CN1"}))

	values, err = repo.GetMany(ctx, "CN1.business_name", "CN1.business_phone", "CN1.business_address")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"CN1.business_name": "Moto Shop CN1", "CN1.business_phone": "0283"}, values)

	empty, err := repo.GetMany(ctx)
	require.NoError(t, err)
	assert.Empty(t, empty)
}
