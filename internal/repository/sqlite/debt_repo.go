package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"motoshop/internal/domain"
	"motoshop/internal/repository"

	"github.com/google/uuid"
)

// DebtRepo implements repository.DebtRepository
type DebtRepo struct {
	db *DB
}

// NewDebtRepo creates a new DebtRepo
func NewDebtRepo(db *DB) repository.DebtRepository {
	return &DebtRepo{db: db}
}

const customerDebtColumns = `id, customer_name, customer_phone, work_order_id, total_amount, paid_amount,
	remaining_amount, description, branch_id, created_at, updated_at`

// UpsertCustomerDebt inserts the debt or, when the work order already has
// one, updates it in place, customer details included. debt.ID is set to
// the stored row's id.
func (r *DebtRepo) UpsertCustomerDebt(ctx context.Context, debt *domain.CustomerDebt) error {
	now := time.Now().UTC()
	if debt.ID == "" {
		debt.ID = uuid.NewString()
	}
	if debt.CreatedAt.IsZero() {
		debt.CreatedAt = now
	}
	debt.UpdatedAt = now

	query := `INSERT INTO customer_debts (` + customerDebtColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(branch_id, work_order_id) DO UPDATE SET
			customer_name = excluded.customer_name,
			customer_phone = excluded.customer_phone,
			total_amount = excluded.total_amount,
			paid_amount = excluded.paid_amount,
			remaining_amount = excluded.remaining_amount,
			description = excluded.description,
			updated_at = excluded.updated_at`
	_, err := r.db.ExecContext(ctx, query,
		debt.ID, debt.CustomerName, debt.CustomerPhone, debt.WorkOrderID, debt.TotalAmount, debt.PaidAmount,
		debt.RemainingAmount, debt.Description, debt.BranchID, debt.CreatedAt, debt.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert customer debt: %w", err)
	}

	err = r.db.QueryRowContext(ctx,
		`SELECT id, created_at FROM customer_debts WHERE branch_id = ? AND work_order_id = ?`,
		debt.BranchID, debt.WorkOrderID).Scan(&debt.ID, &debt.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to read back customer debt: %w", err)
	}
	return nil
}

func (r *DebtRepo) GetCustomerDebtByWorkOrder(ctx context.Context, branchID, workOrderID string) (*domain.CustomerDebt, error) {
	query := `SELECT ` + customerDebtColumns + ` FROM customer_debts WHERE branch_id = ? AND work_order_id = ?`
	debt, err := scanCustomerDebt(r.db.QueryRowContext(ctx, query, branchID, workOrderID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get customer debt: %w", err)
	}
	return debt, nil
}

func (r *DebtRepo) GetCustomerDebtByID(ctx context.Context, branchID, id string) (*domain.CustomerDebt, error) {
	query := `SELECT ` + customerDebtColumns + ` FROM customer_debts WHERE branch_id = ? AND id = ?`
	debt, err := scanCustomerDebt(r.db.QueryRowContext(ctx, query, branchID, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get customer debt: %w", err)
	}
	return debt, nil
}

func (r *DebtRepo) ListCustomerDebts(ctx context.Context, branchID string, openOnly bool) ([]domain.CustomerDebt, error) {
	query := `SELECT ` + customerDebtColumns + ` FROM customer_debts WHERE branch_id = ?`
	if openOnly {
		query += ` AND CAST(remaining_amount AS REAL) > 0`
	}
	query += ` ORDER BY created_at DESC`

	rows, err := r.db.QueryContext(ctx, query, branchID)
	if err != nil {
		return nil, fmt.Errorf("failed to list customer debts: %w", err)
	}
	defer rows.Close()

	var debts []domain.CustomerDebt
	for rows.Next() {
		debt, err := scanCustomerDebt(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan customer debt: %w", err)
		}
		debts = append(debts, *debt)
	}
	return debts, rows.Err()
}

func (r *DebtRepo) CreateSupplierDebt(ctx context.Context, debt *domain.SupplierDebt) error {
	if debt.ID == "" {
		debt.ID = uuid.NewString()
	}
	debt.CreatedAt = time.Now().UTC()

	query := `INSERT INTO supplier_debts (id, supplier_name, total_amount, paid_amount, remaining_amount, description, branch_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := r.db.ExecContext(ctx, query,
		debt.ID, debt.SupplierName, debt.TotalAmount, debt.PaidAmount, debt.RemainingAmount,
		debt.Description, debt.BranchID, debt.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create supplier debt: %w", err)
	}
	return nil
}

func (r *DebtRepo) ListSupplierDebts(ctx context.Context, branchID string) ([]domain.SupplierDebt, error) {
	query := `SELECT id, supplier_name, total_amount, paid_amount, remaining_amount, description, branch_id, created_at
		FROM supplier_debts WHERE branch_id = ? ORDER BY created_at DESC`
	rows, err := r.db.QueryContext(ctx, query, branchID)
	if err != nil {
		return nil, fmt.Errorf("failed to list supplier debts: %w", err)
	}
	defer rows.Close()

	var debts []domain.SupplierDebt
	for rows.Next() {
		var d domain.SupplierDebt
		if err := rows.Scan(&d.ID, &d.SupplierName, &d.TotalAmount, &d.PaidAmount, &d.RemainingAmount,
			&d.Description, &d.BranchID, &d.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan supplier debt: %w", err)
		}
		debts = append(debts, d)
	}
	return debts, rows.Err()
}

func (r *DebtRepo) DeleteSupplierDebtsMatching(ctx context.Context, branchID, text string) (int64, error) {
	if text == "" {
		return 0, nil
	}
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM supplier_debts WHERE branch_id = ? AND instr(description, ?) > 0`, branchID, text)
	if err != nil {
		return 0, fmt.Errorf("failed to delete supplier debts: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count deleted supplier debts: %w", err)
	}
	return n, nil
}

func scanCustomerDebt(row rowScanner) (*domain.CustomerDebt, error) {
	var (
		d         domain.CustomerDebt
		updatedAt sql.NullTime
	)
	err := row.Scan(&d.ID, &d.CustomerName, &d.CustomerPhone, &d.WorkOrderID, &d.TotalAmount, &d.PaidAmount,
		&d.RemainingAmount, &d.Description, &d.BranchID, &d.CreatedAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	if updatedAt.Valid {
		d.UpdatedAt = updatedAt.Time
	}
	return &d, nil
}
