// Package report exports the cash book as an Excel workbook.
package report

import (
	"fmt"
	"io"
	"time"

	"motoshop/internal/domain"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

// LedgerSheet is the name of the worksheet holding the cash book
const LedgerSheet = "Sổ quỹ"

var ledgerHeaders = []string{"Ngày", "Loại", "Danh mục", "Số tiền", "Nguồn tiền", "Tham chiếu", "Diễn giải"}

var categoryLabels = map[string]string{
	domain.CategoryDeposit:           "Đặt cọc",
	domain.CategoryServicePayment:    "Thanh toán dịch vụ",
	domain.CategoryPaymentAdjustment: "Điều chỉnh thanh toán",
	domain.CategoryOutsourcing:       "Gia công ngoài",
	domain.CategoryRefund:            "Hoàn tiền",
	domain.CategoryInventoryReceipt:  "Nhập kho",
	domain.CategoryDebtCollection:    "Thu nợ",
}

// CategoryLabel returns the printable name of a ledger category
func CategoryLabel(category string) string {
	if label, ok := categoryLabels[category]; ok {
		return label
	}
	return category
}

// LedgerTotals sums a list of ledger entries
type LedgerTotals struct {
	Income  decimal.Decimal
	Expense decimal.Decimal
	Net     decimal.Decimal
}

// SumLedger adds up income and expense. Expense is returned as a negative amount.
func SumLedger(entries []domain.CashTransaction) LedgerTotals {
	var t LedgerTotals
	for _, e := range entries {
		if e.Amount.IsPositive() {
			t.Income = t.Income.Add(e.Amount)
		} else {
			t.Expense = t.Expense.Add(e.Amount)
		}
	}
	t.Net = t.Income.Add(t.Expense)
	return t
}

// LedgerWorkbook builds the cash book for entries. sourceNames maps payment
// source ids to display names; unknown ids are printed as-is.
func LedgerWorkbook(entries []domain.CashTransaction, sourceNames map[string]string, loc *time.Location) (*excelize.File, error) {
	if loc == nil {
		loc = time.UTC
	}

	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", LedgerSheet); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to name sheet: %w", err)
	}

	for i, h := range ledgerHeaders {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(LedgerSheet, cell, h); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to write header: %w", err)
		}
	}

	for idx, e := range entries {
		row := idx + 2

		typeText := "Chi"
		if e.Type == domain.TransactionIncome {
			typeText = "Thu"
		}
		source := e.PaymentSourceID
		if name, ok := sourceNames[source]; ok {
			source = name
		}

		values := []interface{}{
			e.Date.In(loc).Format("02/01/2006 15:04"),
			typeText,
			CategoryLabel(e.Category),
			e.Amount.InexactFloat64(),
			source,
			e.ReferenceID,
			e.Description,
		}
		if err := f.SetSheetRow(LedgerSheet, fmt.Sprintf("A%d", row), &values); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to write row %d: %w", row, err)
		}
	}

	totals := SumLedger(entries)
	row := len(entries) + 3
	summary := [][]interface{}{
		{"Tổng thu", totals.Income.InexactFloat64()},
		{"Tổng chi", totals.Expense.InexactFloat64()},
		{"Chênh lệch", totals.Net.InexactFloat64()},
	}
	for i, line := range summary {
		if err := f.SetCellValue(LedgerSheet, fmt.Sprintf("C%d", row+i), line[0]); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to write totals: %w", err)
		}
		if err := f.SetCellValue(LedgerSheet, fmt.Sprintf("D%d", row+i), line[1]); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to write totals: %w", err)
		}
	}

	style, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err == nil {
		f.SetCellStyle(LedgerSheet, "A1", "G1", style)
		f.SetCellStyle(LedgerSheet, fmt.Sprintf("C%d", row), fmt.Sprintf("D%d", row+2), style)
	}

	f.SetColWidth(LedgerSheet, "A", "A", 17)
	f.SetColWidth(LedgerSheet, "B", "B", 6)
	f.SetColWidth(LedgerSheet, "C", "C", 22)
	f.SetColWidth(LedgerSheet, "D", "D", 14)
	f.SetColWidth(LedgerSheet, "E", "F", 16)
	f.SetColWidth(LedgerSheet, "G", "G", 40)

	return f, nil
}

// WriteLedger streams the cash book workbook to w
func WriteLedger(w io.Writer, entries []domain.CashTransaction, sourceNames map[string]string, loc *time.Location) error {
	f, err := LedgerWorkbook(entries, sourceNames, loc)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := f.Write(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}
