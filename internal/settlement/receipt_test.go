package settlement

import (
	"context"
	"testing"

	"motoshop/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newReceiptInput() ReceiptInput {
	return ReceiptInput{
		BranchID:     testBranch,
		SupplierName: "Phụ tùng Hòa Bình",
		Lines: []domain.ReceiptLine{
			{PartID: "p1", PartName: "Má phanh trước", Quantity: 4, UnitCost: vnd(25000)},
		},
		PaidAmount:      vnd(60000),
		PaymentSourceID: cashID,
	}
}

func TestCreateReceipt_StockLedgerAndSupplierDebt(t *testing.T) {
	svc, st := setupSettlementTest(t)
	st.stock.qty[key("p1", testBranch)] = 6
	ctx := context.Background()

	rc, err := svc.CreateReceipt(ctx, newReceiptInput())

	require.NoError(t, err)
	assert.Equal(t, "NK260504-0001", rc.Code)
	assert.True(t, vnd(100000).Equal(rc.TotalCost))
	assert.Equal(t, 10, st.stockOf("p1"))

	require.Len(t, st.ledger.entries, 1)
	entry := st.ledger.entries[0]
	assert.Equal(t, domain.CategoryInventoryReceipt, entry.Category)
	assert.Equal(t, domain.TransactionExpense, entry.Type)
	assert.True(t, vnd(-60000).Equal(entry.Amount))
	assert.Equal(t, rc.ID, entry.ReferenceID)
	assert.True(t, vnd(-60000).Equal(st.balance(cashID)))

	require.Len(t, st.debts.suppliers, 1)
	assert.True(t, vnd(40000).Equal(st.debts.suppliers[0].RemainingAmount))
	assert.Contains(t, st.debts.suppliers[0].Description, rc.Code)
}

func TestCreateReceipt_FullyPaidHasNoDebt(t *testing.T) {
	svc, st := setupSettlementTest(t)

	in := newReceiptInput()
	in.PaidAmount = vnd(100000)
	_, err := svc.CreateReceipt(context.Background(), in)

	require.NoError(t, err)
	assert.Empty(t, st.debts.suppliers)
	assert.Equal(t, 4, st.stockOf("p1"))
}

func TestCreateReceipt_Validation(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*ReceiptInput)
		code   string
	}{
		{"no lines", func(in *ReceiptInput) { in.Lines = nil }, domain.CodeReceiptLinesRequired},
		{"zero quantity", func(in *ReceiptInput) { in.Lines[0].Quantity = 0 }, domain.CodeInvalidQuantity},
		{"overpaid", func(in *ReceiptInput) { in.PaidAmount = vnd(100001) }, domain.CodeInvalidAmount},
		{"paid without source", func(in *ReceiptInput) { in.PaymentSourceID = "" }, domain.CodePaymentMethodRequired},
		{"missing branch", func(in *ReceiptInput) { in.BranchID = " " }, domain.CodeBranchRequired},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc, st := setupSettlementTest(t)
			in := newReceiptInput()
			tc.mutate(&in)

			_, err := svc.CreateReceipt(context.Background(), in)

			var verr *domain.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tc.code, verr.Code)
			assert.Empty(t, st.receipts.receipts)
			assert.Equal(t, 0, st.stockOf("p1"))
		})
	}
}

func TestDeleteReceipt_Scenario(t *testing.T) {
	svc, st := setupSettlementTest(t)
	st.stock.qty[key("p1", testBranch)] = 6
	ctx := context.Background()

	rc, err := svc.CreateReceipt(ctx, newReceiptInput())
	require.NoError(t, err)
	require.Equal(t, 10, st.stockOf("p1"))

	require.NoError(t, svc.DeleteReceipt(ctx, testBranch, rc.ID))

	assert.Equal(t, 6, st.stockOf("p1"))
	assert.Empty(t, st.ledger.entries)
	assert.Empty(t, st.debts.suppliers)
	assert.True(t, st.balance(cashID).IsZero())

	err = svc.DeleteReceipt(ctx, testBranch, rc.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.Equal(t, 6, st.stockOf("p1"))
}

func TestDeleteReceipt_ClampsWhenStockAlreadyUsed(t *testing.T) {
	svc, st := setupSettlementTest(t)
	ctx := context.Background()

	rc, err := svc.CreateReceipt(ctx, newReceiptInput())
	require.NoError(t, err)
	require.Equal(t, 4, st.stockOf("p1"))

	in := newOrderInput()
	in.Parts[0].Quantity = 3
	_, err = svc.SaveWorkOrder(ctx, in)
	require.NoError(t, err)
	require.Equal(t, 1, st.stockOf("p1"))

	require.NoError(t, svc.DeleteReceipt(ctx, testBranch, rc.ID))
	assert.Equal(t, 0, st.stockOf("p1"))

	for _, q := range st.stock.history {
		assert.GreaterOrEqual(t, q, 0)
	}
}

func TestDeleteReceipt_RetryDoesNotRevertStockTwice(t *testing.T) {
	svc, st := setupSettlementTest(t)
	st.stock.qty[key("p1", testBranch)] = 6
	ctx := context.Background()

	rc, err := svc.CreateReceipt(ctx, newReceiptInput())
	require.NoError(t, err)

	st.fail.set("ledger.delete")
	err = svc.DeleteReceipt(ctx, testBranch, rc.ID)
	var rerr *domain.RemoteWriteError
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, "cash transaction", rerr.Op)

	// stock came off before the ledger step; the ledger entry is still there
	assert.Equal(t, 6, st.stockOf("p1"))
	assert.Len(t, st.ledger.entries, 1)

	st.fail.clear("ledger.delete")
	require.NoError(t, svc.DeleteReceipt(ctx, testBranch, rc.ID))
	assert.Equal(t, 6, st.stockOf("p1"))
	assert.Empty(t, st.ledger.entries)
	assert.True(t, st.balance(cashID).IsZero())
}

func TestDeleteReceipt_FailedStockRevertChangesNothing(t *testing.T) {
	svc, st := setupSettlementTest(t)
	st.stock.qty[key("p1", testBranch)] = 6
	ctx := context.Background()

	rc, err := svc.CreateReceipt(ctx, newReceiptInput())
	require.NoError(t, err)
	require.Equal(t, 10, st.stockOf("p1"))

	st.fail.set("receipts.revert")
	err = svc.DeleteReceipt(ctx, testBranch, rc.ID)
	var rerr *domain.RemoteWriteError
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, "stock", rerr.Op)
	assert.Equal(t, 10, st.stockOf("p1"))
	assert.False(t, st.receipts.receipts[key(testBranch, rc.ID)].StockReverted)

	st.fail.clear("receipts.revert")
	require.NoError(t, svc.DeleteReceipt(ctx, testBranch, rc.ID))
	assert.Equal(t, 6, st.stockOf("p1"))
	assert.Empty(t, st.ledger.entries)
	assert.True(t, st.balance(cashID).IsZero())
}

func TestDeleteReceipt_FailedBalanceRestoreKeepsLedger(t *testing.T) {
	svc, st := setupSettlementTest(t)
	st.stock.qty[key("p1", testBranch)] = 6
	ctx := context.Background()

	rc, err := svc.CreateReceipt(ctx, newReceiptInput())
	require.NoError(t, err)
	require.True(t, vnd(-60000).Equal(st.balance(cashID)))

	st.fail.set("sources.adjust")
	err = svc.DeleteReceipt(ctx, testBranch, rc.ID)
	var rerr *domain.RemoteWriteError
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, "cash transaction", rerr.Op)
	assert.Len(t, st.ledger.entries, 1)
	assert.True(t, vnd(-60000).Equal(st.balance(cashID)))

	st.fail.clear("sources.adjust")
	require.NoError(t, svc.DeleteReceipt(ctx, testBranch, rc.ID))
	assert.Empty(t, st.ledger.entries)
	assert.True(t, st.balance(cashID).IsZero())
	assert.Equal(t, 6, st.stockOf("p1"))
}

func TestStockNeverNegativeAcrossOperations(t *testing.T) {
	svc, st := setupSettlementTest(t)
	ctx := context.Background()

	r1, err := svc.CreateReceipt(ctx, newReceiptInput())
	require.NoError(t, err)
	r2, err := svc.CreateReceipt(ctx, newReceiptInput())
	require.NoError(t, err)

	in := newOrderInput()
	in.Parts[0].Quantity = 7
	saved, err := svc.SaveWorkOrder(ctx, in)
	require.NoError(t, err)

	require.NoError(t, svc.DeleteReceipt(ctx, testBranch, r1.ID))

	in.ID = saved.Order.ID
	in.Parts[0].Quantity = 9
	_, err = svc.SaveWorkOrder(ctx, in)
	var underflow *domain.StockUnderflowError
	require.ErrorAs(t, err, &underflow)

	require.NoError(t, svc.DeleteReceipt(ctx, testBranch, r2.ID))

	in.Parts[0].Quantity = 2
	_, err = svc.SaveWorkOrder(ctx, in)
	require.NoError(t, err)

	for _, q := range st.stock.history {
		assert.GreaterOrEqual(t, q, 0)
	}
	assert.Equal(t, 5, st.stockOf("p1"))
}
