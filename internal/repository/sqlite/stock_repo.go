package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"motoshop/internal/domain"
	"motoshop/internal/repository"
)

// querier is satisfied by both *DB and *sql.Tx so helpers can run inside
// another repository's transaction
type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// StockRepo implements repository.StockRepository
type StockRepo struct {
	db *DB
}

// NewStockRepo creates a new StockRepo
func NewStockRepo(db *DB) repository.StockRepository {
	return &StockRepo{db: db}
}

// GetStock returns the quantity on hand. Parts never stocked at the branch
// have zero.
func (r *StockRepo) GetStock(ctx context.Context, partID, branchID string) (int, error) {
	return readStock(ctx, r.db, partID, branchID)
}

func (r *StockRepo) SetStock(ctx context.Context, partID, branchID string, quantity int) error {
	if quantity < 0 {
		current, err := r.GetStock(ctx, partID, branchID)
		if err != nil {
			return err
		}
		return &domain.StockUnderflowError{PartID: partID, BranchID: branchID, Current: current, Requested: current - quantity}
	}
	return writeStock(ctx, r.db, partID, branchID, quantity)
}

func readStock(ctx context.Context, q querier, partID, branchID string) (int, error) {
	var qty int
	err := q.QueryRowContext(ctx,
		`SELECT quantity FROM part_stock WHERE part_id = ? AND branch_id = ?`, partID, branchID).Scan(&qty)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get stock: %w", err)
	}
	return qty, nil
}

func writeStock(ctx context.Context, q querier, partID, branchID string, quantity int) error {
	query := `INSERT INTO part_stock (part_id, branch_id, quantity, updated_at) VALUES (?, ?, ?, ?)
			  ON CONFLICT(part_id, branch_id) DO UPDATE SET quantity = excluded.quantity, updated_at = excluded.updated_at`
	_, err := q.ExecContext(ctx, query, partID, branchID, quantity, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to set stock: %w", err)
	}
	return nil
}
