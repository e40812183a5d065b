package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"motoshop/internal/domain"
	"motoshop/internal/repository"

	"github.com/google/uuid"
)

// ReceiptRepo implements repository.ReceiptRepository
type ReceiptRepo struct {
	db *DB
}

// NewReceiptRepo creates a new ReceiptRepo
func NewReceiptRepo(db *DB) repository.ReceiptRepository {
	return &ReceiptRepo{db: db}
}

const receiptColumns = `id, code, branch_id, supplier_name, lines_json, total_cost, paid_amount,
	payment_source_id, stock_reverted, created_at`

func (r *ReceiptRepo) Insert(ctx context.Context, receipt *domain.InventoryReceipt) error {
	if receipt.ID == "" {
		receipt.ID = uuid.NewString()
	}
	if receipt.CreatedAt.IsZero() {
		receipt.CreatedAt = time.Now().UTC()
	}
	lines, err := json.Marshal(receipt.Lines)
	if err != nil {
		return fmt.Errorf("failed to encode receipt lines: %w", err)
	}

	query := `INSERT INTO inventory_receipts (` + receiptColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err = r.db.ExecContext(ctx, query,
		receipt.ID, receipt.Code, receipt.BranchID, receipt.SupplierName, string(lines), receipt.TotalCost,
		receipt.PaidAmount, receipt.PaymentSourceID, receipt.StockReverted, receipt.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create inventory receipt: %w", err)
	}
	return nil
}

func (r *ReceiptRepo) Get(ctx context.Context, branchID, id string) (*domain.InventoryReceipt, error) {
	query := `SELECT ` + receiptColumns + ` FROM inventory_receipts WHERE branch_id = ? AND id = ?`
	receipt, err := scanReceipt(r.db.QueryRowContext(ctx, query, branchID, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get inventory receipt: %w", err)
	}
	return receipt, nil
}

// RevertStock takes the receipt's lines off stock and flags the receipt as
// reverted in one transaction. A receipt already reverted is left alone.
// Quantities that would go negative are set to zero and their part ids
// returned.
func (r *ReceiptRepo) RevertStock(ctx context.Context, branchID, id string) ([]string, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var (
		reverted bool
		raw      string
		lines    []domain.ReceiptLine
	)
	err = tx.QueryRowContext(ctx,
		`SELECT stock_reverted, lines_json FROM inventory_receipts WHERE branch_id = ? AND id = ?`,
		branchID, id).Scan(&reverted, &raw)
	if err == sql.ErrNoRows {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get inventory receipt: %w", err)
	}
	if reverted {
		return nil, nil
	}
	if err := json.Unmarshal([]byte(raw), &lines); err != nil {
		return nil, fmt.Errorf("failed to decode receipt lines: %w", err)
	}

	var clamped []string
	for _, l := range lines {
		current, err := readStock(ctx, tx, l.PartID, branchID)
		if err != nil {
			return nil, err
		}
		next := current - l.Quantity
		if next < 0 {
			clamped = append(clamped, l.PartID)
			next = 0
		}
		if err := writeStock(ctx, tx, l.PartID, branchID, next); err != nil {
			return nil, err
		}
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE inventory_receipts SET stock_reverted = 1 WHERE branch_id = ? AND id = ?`, branchID, id)
	if err != nil {
		return nil, fmt.Errorf("failed to mark receipt stock reverted: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit stock revert: %w", err)
	}
	return clamped, nil
}

func (r *ReceiptRepo) Delete(ctx context.Context, branchID, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM inventory_receipts WHERE branch_id = ? AND id = ?`, branchID, id)
	if err != nil {
		return fmt.Errorf("failed to delete inventory receipt: %w", err)
	}
	return nil
}

func (r *ReceiptRepo) List(ctx context.Context, branchID string, limit, offset int) ([]domain.InventoryReceipt, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT ` + receiptColumns + ` FROM inventory_receipts WHERE branch_id = ?
		ORDER BY created_at DESC LIMIT ? OFFSET ?`
	rows, err := r.db.QueryContext(ctx, query, branchID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list inventory receipts: %w", err)
	}
	defer rows.Close()

	var receipts []domain.InventoryReceipt
	for rows.Next() {
		receipt, err := scanReceipt(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan inventory receipt: %w", err)
		}
		receipts = append(receipts, *receipt)
	}
	return receipts, rows.Err()
}

func scanReceipt(row rowScanner) (*domain.InventoryReceipt, error) {
	var (
		rc    domain.InventoryReceipt
		lines string
	)
	err := row.Scan(&rc.ID, &rc.Code, &rc.BranchID, &rc.SupplierName, &lines, &rc.TotalCost,
		&rc.PaidAmount, &rc.PaymentSourceID, &rc.StockReverted, &rc.CreatedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(lines), &rc.Lines); err != nil {
		return nil, fmt.Errorf("failed to decode lines of receipt %s: %w", rc.Code, err)
	}
	return &rc, nil
}
