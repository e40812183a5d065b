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

// VehicleRepo implements repository.VehicleRepository
type VehicleRepo struct {
	db *DB
}

// NewVehicleRepo creates a new VehicleRepo
func NewVehicleRepo(db *DB) repository.VehicleRepository {
	return &VehicleRepo{db: db}
}

const vehicleColumns = `id, branch_id, customer_name, customer_phone, model, license_plate, current_km,
	maintenances_json, created_at, updated_at`

func (r *VehicleRepo) Create(ctx context.Context, v *domain.Vehicle) error {
	if v.ID == "" {
		v.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	v.CreatedAt = now
	v.UpdatedAt = now

	history, err := encodeMaintenances(v)
	if err != nil {
		return err
	}

	query := `INSERT INTO vehicles (` + vehicleColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err = r.db.ExecContext(ctx, query,
		v.ID, v.BranchID, v.CustomerName, v.CustomerPhone, v.Model, v.LicensePlate, v.CurrentKm,
		history, v.CreatedAt, v.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create vehicle: %w", err)
	}
	return nil
}

func (r *VehicleRepo) Get(ctx context.Context, branchID, id string) (*domain.Vehicle, error) {
	query := `SELECT ` + vehicleColumns + ` FROM vehicles WHERE branch_id = ? AND id = ?`
	v, err := scanVehicle(r.db.QueryRowContext(ctx, query, branchID, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get vehicle: %w", err)
	}
	return v, nil
}

func (r *VehicleRepo) Update(ctx context.Context, v *domain.Vehicle) error {
	history, err := encodeMaintenances(v)
	if err != nil {
		return err
	}
	if v.UpdatedAt.IsZero() {
		v.UpdatedAt = time.Now().UTC()
	}

	query := `
		UPDATE vehicles
		SET customer_name = ?, customer_phone = ?, model = ?, license_plate = ?, current_km = ?,
			maintenances_json = ?, updated_at = ?
		WHERE branch_id = ? AND id = ?
	`
	result, err := r.db.ExecContext(ctx, query,
		v.CustomerName, v.CustomerPhone, v.Model, v.LicensePlate, v.CurrentKm, history, v.UpdatedAt,
		v.BranchID, v.ID)
	if err != nil {
		return fmt.Errorf("failed to update vehicle: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *VehicleRepo) ListByCustomer(ctx context.Context, branchID, customerPhone string) ([]domain.Vehicle, error) {
	query := `SELECT ` + vehicleColumns + ` FROM vehicles WHERE branch_id = ? AND customer_phone = ? ORDER BY created_at`
	rows, err := r.db.QueryContext(ctx, query, branchID, customerPhone)
	if err != nil {
		return nil, fmt.Errorf("failed to list vehicles: %w", err)
	}
	defer rows.Close()

	var vehicles []domain.Vehicle
	for rows.Next() {
		v, err := scanVehicle(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan vehicle: %w", err)
		}
		vehicles = append(vehicles, *v)
	}
	return vehicles, rows.Err()
}

func scanVehicle(row rowScanner) (*domain.Vehicle, error) {
	var (
		v         domain.Vehicle
		history   string
		updatedAt sql.NullTime
	)
	err := row.Scan(&v.ID, &v.BranchID, &v.CustomerName, &v.CustomerPhone, &v.Model, &v.LicensePlate,
		&v.CurrentKm, &history, &v.CreatedAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	v.LastMaintenances = make(map[domain.MaintenanceType]domain.MaintenanceRecord)
	if err := json.Unmarshal([]byte(history), &v.LastMaintenances); err != nil {
		return nil, fmt.Errorf("failed to decode maintenances of vehicle %s: %w", v.ID, err)
	}
	if updatedAt.Valid {
		v.UpdatedAt = updatedAt.Time
	}
	return &v, nil
}

func encodeMaintenances(v *domain.Vehicle) (string, error) {
	history := v.LastMaintenances
	if history == nil {
		history = map[domain.MaintenanceType]domain.MaintenanceRecord{}
	}
	b, err := json.Marshal(history)
	if err != nil {
		return "", fmt.Errorf("failed to encode maintenances: %w", err)
	}
	return string(b), nil
}
