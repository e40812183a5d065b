package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"motoshop/internal/domain"
	"motoshop/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PaymentSourceRepo implements repository.PaymentSourceRepository
type PaymentSourceRepo struct {
	db *DB
}

// NewPaymentSourceRepo creates a new PaymentSourceRepo
func NewPaymentSourceRepo(db *DB) repository.PaymentSourceRepository {
	return &PaymentSourceRepo{db: db}
}

func (r *PaymentSourceRepo) Create(ctx context.Context, source *domain.PaymentSource) error {
	if source.ID == "" {
		source.ID = uuid.NewString()
	}
	source.CreatedAt = time.Now().UTC()

	query := `INSERT INTO payment_sources (id, name, kind, balance, branch_id, created_at) VALUES (?, ?, ?, ?, ?, ?)`
	_, err := r.db.ExecContext(ctx, query,
		source.ID, source.Name, source.Kind, source.Balance, source.BranchID, source.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create payment source: %w", err)
	}
	return nil
}

func (r *PaymentSourceRepo) Get(ctx context.Context, branchID, id string) (*domain.PaymentSource, error) {
	query := `SELECT id, name, kind, balance, branch_id, created_at FROM payment_sources WHERE branch_id = ? AND id = ?`
	s := &domain.PaymentSource{}
	err := r.db.QueryRowContext(ctx, query, branchID, id).Scan(
		&s.ID, &s.Name, &s.Kind, &s.Balance, &s.BranchID, &s.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get payment source: %w", err)
	}
	return s, nil
}

func (r *PaymentSourceRepo) List(ctx context.Context, branchID string) ([]domain.PaymentSource, error) {
	query := `SELECT id, name, kind, balance, branch_id, created_at FROM payment_sources WHERE branch_id = ? ORDER BY name`
	rows, err := r.db.QueryContext(ctx, query, branchID)
	if err != nil {
		return nil, fmt.Errorf("failed to list payment sources: %w", err)
	}
	defer rows.Close()

	var sources []domain.PaymentSource
	for rows.Next() {
		var s domain.PaymentSource
		if err := rows.Scan(&s.ID, &s.Name, &s.Kind, &s.Balance, &s.BranchID, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan payment source: %w", err)
		}
		sources = append(sources, s)
	}
	return sources, rows.Err()
}

// AdjustBalance adds delta to the running balance. The balance may go
// negative; an overdrawn drawer is reconciled by staff.
func (r *PaymentSourceRepo) AdjustBalance(ctx context.Context, branchID, id string, delta decimal.Decimal) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := adjustBalance(ctx, tx, branchID, id, delta); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit balance: %w", err)
	}
	return nil
}

func adjustBalance(ctx context.Context, q querier, branchID, id string, delta decimal.Decimal) error {
	var balance decimal.Decimal
	err := q.QueryRowContext(ctx, `SELECT balance FROM payment_sources WHERE branch_id = ? AND id = ?`, branchID, id).Scan(&balance)
	if err == sql.ErrNoRows {
		return domain.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to read balance: %w", err)
	}

	_, err = q.ExecContext(ctx, `UPDATE payment_sources SET balance = ? WHERE branch_id = ? AND id = ?`,
		balance.Add(delta), branchID, id)
	if err != nil {
		return fmt.Errorf("failed to update balance: %w", err)
	}
	return nil
}
