package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"motoshop/internal/domain"
	"motoshop/internal/repository"
)

// WorkOrderRepo implements repository.WorkOrderRepository
type WorkOrderRepo struct {
	db *DB
}

// NewWorkOrderRepo creates a new WorkOrderRepo
func NewWorkOrderRepo(db *DB) repository.WorkOrderRepository {
	return &WorkOrderRepo{db: db}
}

const workOrderColumns = `id, branch_id, customer_name, customer_phone, vehicle_model, license_plate,
	vehicle_id, mileage, issue, technician, status, labor_cost, discount, parts_json, services_json,
	total, payment_status, deposit_amount, additional_payment, total_paid, remaining_amount,
	payment_source_id, refunded, refund_reason, refunded_at, created_at, updated_at`

// rowScanner is satisfied by *sql.Row and *sql.Rows
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func (r *WorkOrderRepo) Insert(ctx context.Context, order *domain.WorkOrder) error {
	parts, services, err := encodeLines(order)
	if err != nil {
		return err
	}

	query := `INSERT INTO work_orders (` + workOrderColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	if order.CreatedAt.IsZero() {
		order.CreatedAt = time.Now().UTC()
	}
	order.UpdatedAt = order.CreatedAt
	_, err = r.db.ExecContext(ctx, query,
		order.ID, order.BranchID, order.CustomerName, order.CustomerPhone, order.VehicleModel, order.LicensePlate,
		order.VehicleID, order.Mileage, order.Issue, order.Technician, order.Status, order.LaborCost, order.Discount,
		parts, services, order.Total, order.PaymentStatus, order.DepositAmount, order.AdditionalPayment,
		order.TotalPaid, order.RemainingAmount, order.PaymentSourceID, order.Refunded, order.RefundReason,
		order.RefundedAt, order.CreatedAt, order.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create work order: %w", err)
	}
	return nil
}

func (r *WorkOrderRepo) Get(ctx context.Context, branchID, id string) (*domain.WorkOrder, error) {
	query := `SELECT ` + workOrderColumns + ` FROM work_orders WHERE branch_id = ? AND id = ?`
	order, err := scanWorkOrder(r.db.QueryRowContext(ctx, query, branchID, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get work order: %w", err)
	}
	return order, nil
}

func (r *WorkOrderRepo) Update(ctx context.Context, order *domain.WorkOrder) error {
	parts, services, err := encodeLines(order)
	if err != nil {
		return err
	}

	query := `
		UPDATE work_orders
		SET customer_name = ?, customer_phone = ?, vehicle_model = ?, license_plate = ?, vehicle_id = ?,
			mileage = ?, issue = ?, technician = ?, status = ?, labor_cost = ?, discount = ?,
			parts_json = ?, services_json = ?, total = ?, payment_status = ?, deposit_amount = ?,
			additional_payment = ?, total_paid = ?, remaining_amount = ?, payment_source_id = ?,
			refunded = ?, refund_reason = ?, refunded_at = ?, updated_at = ?
		WHERE branch_id = ? AND id = ?
	`
	order.UpdatedAt = time.Now().UTC()
	result, err := r.db.ExecContext(ctx, query,
		order.CustomerName, order.CustomerPhone, order.VehicleModel, order.LicensePlate, order.VehicleID,
		order.Mileage, order.Issue, order.Technician, order.Status, order.LaborCost, order.Discount,
		parts, services, order.Total, order.PaymentStatus, order.DepositAmount,
		order.AdditionalPayment, order.TotalPaid, order.RemainingAmount, order.PaymentSourceID,
		order.Refunded, order.RefundReason, order.RefundedAt, order.UpdatedAt,
		order.BranchID, order.ID)
	if err != nil {
		return fmt.Errorf("failed to update work order: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// Delete removes a work order together with its status history
func (r *WorkOrderRepo) Delete(ctx context.Context, branchID, id string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, `DELETE FROM work_orders WHERE branch_id = ? AND id = ?`, branchID, id)
	if err != nil {
		return fmt.Errorf("failed to delete work order: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return domain.ErrNotFound
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM work_order_status_history WHERE work_order_id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete work order history: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit work order delete: %w", err)
	}
	return nil
}

func (r *WorkOrderRepo) List(ctx context.Context, filter repository.WorkOrderFilter) ([]domain.WorkOrder, error) {
	query := `SELECT ` + workOrderColumns + ` FROM work_orders WHERE branch_id = ?`
	args := []interface{}{filter.BranchID}
	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, filter.Status)
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	query += ` ORDER BY created_at DESC LIMIT ? OFFSET ?`
	args = append(args, limit, filter.Offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list work orders: %w", err)
	}
	defer rows.Close()

	var orders []domain.WorkOrder
	for rows.Next() {
		order, err := scanWorkOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan work order: %w", err)
		}
		orders = append(orders, *order)
	}
	return orders, rows.Err()
}

func (r *WorkOrderRepo) CountByStatus(ctx context.Context, branchID string) (map[string]int, error) {
	query := `SELECT status, COUNT(*) FROM work_orders WHERE branch_id = ? GROUP BY status`
	rows, err := r.db.QueryContext(ctx, query, branchID)
	if err != nil {
		return nil, fmt.Errorf("failed to count work orders by status: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("failed to scan work order count: %w", err)
		}
		counts[status] = count
	}
	return counts, nil
}

func (r *WorkOrderRepo) AddStatusHistory(ctx context.Context, history *domain.WorkOrderStatusHistory) error {
	query := `INSERT INTO work_order_status_history (work_order_id, status, notes, created_at) VALUES (?, ?, ?, ?)`
	if history.CreatedAt.IsZero() {
		history.CreatedAt = time.Now().UTC()
	}
	result, err := r.db.ExecContext(ctx, query, history.WorkOrderID, history.Status, history.Notes, history.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create status history: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get status history ID: %w", err)
	}
	history.ID = id
	return nil
}

func (r *WorkOrderRepo) GetStatusHistory(ctx context.Context, workOrderID string) ([]domain.WorkOrderStatusHistory, error) {
	query := `
		SELECT id, work_order_id, status, COALESCE(notes, ''), created_at
		FROM work_order_status_history
		WHERE work_order_id = ?
		ORDER BY created_at ASC, id ASC
	`
	rows, err := r.db.QueryContext(ctx, query, workOrderID)
	if err != nil {
		return nil, fmt.Errorf("failed to get status history: %w", err)
	}
	defer rows.Close()

	var history []domain.WorkOrderStatusHistory
	for rows.Next() {
		var h domain.WorkOrderStatusHistory
		if err := rows.Scan(&h.ID, &h.WorkOrderID, &h.Status, &h.Notes, &h.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan status history: %w", err)
		}
		history = append(history, h)
	}
	return history, nil
}

func scanWorkOrder(row rowScanner) (*domain.WorkOrder, error) {
	var (
		o          domain.WorkOrder
		parts      string
		services   string
		refundedAt sql.NullTime
		updatedAt  sql.NullTime
	)
	err := row.Scan(
		&o.ID, &o.BranchID, &o.CustomerName, &o.CustomerPhone, &o.VehicleModel, &o.LicensePlate,
		&o.VehicleID, &o.Mileage, &o.Issue, &o.Technician, &o.Status, &o.LaborCost, &o.Discount,
		&parts, &services, &o.Total, &o.PaymentStatus, &o.DepositAmount, &o.AdditionalPayment,
		&o.TotalPaid, &o.RemainingAmount, &o.PaymentSourceID, &o.Refunded, &o.RefundReason,
		&refundedAt, &o.CreatedAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(parts), &o.Parts); err != nil {
		return nil, fmt.Errorf("failed to decode parts of %s: %w", o.ID, err)
	}
	if err := json.Unmarshal([]byte(services), &o.Services); err != nil {
		return nil, fmt.Errorf("failed to decode services of %s: %w", o.ID, err)
	}
	if refundedAt.Valid {
		t := refundedAt.Time
		o.RefundedAt = &t
	}
	if updatedAt.Valid {
		o.UpdatedAt = updatedAt.Time
	}
	return &o, nil
}

func encodeLines(order *domain.WorkOrder) (string, string, error) {
	parts := order.Parts
	if parts == nil {
		parts = []domain.PartLine{}
	}
	services := order.Services
	if services == nil {
		services = []domain.ServiceLine{}
	}
	p, err := json.Marshal(parts)
	if err != nil {
		return "", "", fmt.Errorf("failed to encode parts: %w", err)
	}
	s, err := json.Marshal(services)
	if err != nil {
		return "", "", fmt.Errorf("failed to encode services: %w", err)
	}
	return string(p), string(s), nil
}
