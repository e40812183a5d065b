package sqlite

import (
	"context"
	"fmt"
	"time"

	"motoshop/internal/domain"
	"motoshop/internal/repository"

	"github.com/google/uuid"
)

// LedgerRepo implements repository.LedgerRepository
type LedgerRepo struct {
	db *DB
}

// NewLedgerRepo creates a new LedgerRepo
func NewLedgerRepo(db *DB) repository.LedgerRepository {
	return &LedgerRepo{db: db}
}

const ledgerColumns = `id, type, category, amount, date, description, branch_id, payment_source_id, reference_id`

func (r *LedgerRepo) Append(ctx context.Context, entry *domain.CashTransaction) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.Date.IsZero() {
		entry.Date = time.Now()
	}
	entry.Date = entry.Date.UTC()

	query := `INSERT INTO cash_transactions (` + ledgerColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := r.db.ExecContext(ctx, query,
		entry.ID, entry.Type, entry.Category, entry.Amount, entry.Date, entry.Description,
		entry.BranchID, entry.PaymentSourceID, entry.ReferenceID)
	if err != nil {
		return fmt.Errorf("failed to append cash transaction: %w", err)
	}
	return nil
}

// DeleteByReference removes every entry linked to referenceID and moves each
// entry's payment source balance back by its amount, in one transaction. It
// returns what was removed.
func (r *LedgerRepo) DeleteByReference(ctx context.Context, branchID, referenceID string) ([]domain.CashTransaction, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `SELECT ` + ledgerColumns + ` FROM cash_transactions WHERE branch_id = ? AND reference_id = ? ORDER BY date`
	rows, err := tx.QueryContext(ctx, query, branchID, referenceID)
	if err != nil {
		return nil, fmt.Errorf("failed to list cash transactions: %w", err)
	}
	entries, err := scanLedger(rows)
	if err != nil {
		return nil, err
	}

	for _, e := range entries {
		if e.PaymentSourceID == "" {
			continue
		}
		if err := adjustBalance(ctx, tx, branchID, e.PaymentSourceID, e.Amount.Neg()); err != nil {
			return nil, fmt.Errorf("failed to restore balance of %s: %w", e.PaymentSourceID, err)
		}
	}

	_, err = tx.ExecContext(ctx, `DELETE FROM cash_transactions WHERE branch_id = ? AND reference_id = ?`, branchID, referenceID)
	if err != nil {
		return nil, fmt.Errorf("failed to delete cash transactions: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit: %w", err)
	}
	return entries, nil
}

func (r *LedgerRepo) ListByReference(ctx context.Context, branchID, referenceID string) ([]domain.CashTransaction, error) {
	query := `SELECT ` + ledgerColumns + ` FROM cash_transactions WHERE branch_id = ? AND reference_id = ? ORDER BY date`
	rows, err := r.db.QueryContext(ctx, query, branchID, referenceID)
	if err != nil {
		return nil, fmt.Errorf("failed to list cash transactions: %w", err)
	}
	return scanLedger(rows)
}

// List returns entries with from <= date < to. A zero bound is open.
func (r *LedgerRepo) List(ctx context.Context, branchID string, from, to time.Time) ([]domain.CashTransaction, error) {
	query := `SELECT ` + ledgerColumns + ` FROM cash_transactions WHERE branch_id = ?`
	args := []interface{}{branchID}
	if !from.IsZero() {
		query += ` AND date >= ?`
		args = append(args, from.UTC())
	}
	if !to.IsZero() {
		query += ` AND date < ?`
		args = append(args, to.UTC())
	}
	query += ` ORDER BY date`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list cash transactions: %w", err)
	}
	return scanLedger(rows)
}

type rowsScanner interface {
	rowScanner
	Next() bool
	Close() error
	Err() error
}

func scanLedger(rows rowsScanner) ([]domain.CashTransaction, error) {
	defer rows.Close()

	var entries []domain.CashTransaction
	for rows.Next() {
		var e domain.CashTransaction
		if err := rows.Scan(&e.ID, &e.Type, &e.Category, &e.Amount, &e.Date, &e.Description,
			&e.BranchID, &e.PaymentSourceID, &e.ReferenceID); err != nil {
			return nil, fmt.Errorf("failed to scan cash transaction: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
