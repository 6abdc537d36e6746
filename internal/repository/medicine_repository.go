package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"medminder/internal/database"
	"medminder/internal/models"
)

type MedicineRepository struct {
	db *database.DB
}

func NewMedicineRepository(db *database.DB) *MedicineRepository {
	return &MedicineRepository{db: db}
}

const medicineColumns = `id, user_id, name, dosage, timing, use_for, description, schedule,
		       duration_days, quantity, photo_url, status, created_at, updated_at`

// Create creates a new medicine and assigns its ID
func (r *MedicineRepository) Create(ctx context.Context, m *models.Medicine) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.Status == "" {
		m.Status = models.MedicineStatusActive
	}
	now := time.Now().UTC()
	m.CreatedAt = now
	m.UpdatedAt = now

	schedule, err := json.Marshal(m.Schedule)
	if err != nil {
		return fmt.Errorf("failed to encode schedule: %w", err)
	}

	query := `
		INSERT INTO medicines (id, user_id, name, dosage, timing, use_for, description, schedule,
		                       duration_days, quantity, photo_url, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = r.db.ExecContext(ctx, query,
		m.ID,
		m.UserID,
		m.Name,
		m.Dosage,
		m.Timing,
		m.Use,
		m.Description,
		string(schedule),
		m.DurationDays,
		m.Quantity,
		m.PhotoURL,
		m.Status,
		m.CreatedAt,
		m.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create medicine: %w", err)
	}
	return nil
}

// GetByID retrieves a medicine owned by userID
func (r *MedicineRepository) GetByID(ctx context.Context, userID, id string) (*models.Medicine, error) {
	query := `SELECT ` + medicineColumns + ` FROM medicines WHERE id = ? AND user_id = ?`

	m, err := scanMedicine(r.db.QueryRowContext(ctx, query, id, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get medicine: %w", err)
	}
	return m, nil
}

// ListByUser retrieves a user's medicines in creation order
func (r *MedicineRepository) ListByUser(ctx context.Context, userID string, activeOnly bool) ([]*models.Medicine, error) {
	query := `SELECT ` + medicineColumns + ` FROM medicines WHERE user_id = ?`
	if activeOnly {
		query += ` AND status = 'active'`
	}
	query += ` ORDER BY created_at, rowid`

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list medicines: %w", err)
	}
	defer rows.Close()

	return scanMedicines(rows)
}

// ListActive retrieves every active medicine across users
func (r *MedicineRepository) ListActive(ctx context.Context) ([]*models.Medicine, error) {
	query := `SELECT ` + medicineColumns + ` FROM medicines WHERE status = 'active' ORDER BY user_id, created_at, rowid`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list active medicines: %w", err)
	}
	defer rows.Close()

	return scanMedicines(rows)
}

// Update updates a medicine's editable fields
func (r *MedicineRepository) Update(ctx context.Context, m *models.Medicine) error {
	schedule, err := json.Marshal(m.Schedule)
	if err != nil {
		return fmt.Errorf("failed to encode schedule: %w", err)
	}
	m.UpdatedAt = time.Now().UTC()

	query := `
		UPDATE medicines
		SET name = ?, dosage = ?, timing = ?, use_for = ?, description = ?, schedule = ?,
		    duration_days = ?, quantity = ?, photo_url = ?, status = ?, updated_at = ?
		WHERE id = ? AND user_id = ?
	`
	result, err := r.db.ExecContext(ctx, query,
		m.Name,
		m.Dosage,
		m.Timing,
		m.Use,
		m.Description,
		string(schedule),
		m.DurationDays,
		m.Quantity,
		m.PhotoURL,
		m.Status,
		m.UpdatedAt,
		m.ID,
		m.UserID,
	)
	if err != nil {
		return fmt.Errorf("failed to update medicine: %w", err)
	}
	return requireAffected(result)
}

// SetStatus marks a medicine active or completed
func (r *MedicineRepository) SetStatus(ctx context.Context, userID, id, status string) error {
	query := `UPDATE medicines SET status = ?, updated_at = ? WHERE id = ? AND user_id = ?`
	result, err := r.db.ExecContext(ctx, query, status, time.Now().UTC(), id, userID)
	if err != nil {
		return fmt.Errorf("failed to update medicine status: %w", err)
	}
	return requireAffected(result)
}

// Delete permanently deletes a medicine. Its intake history is kept.
func (r *MedicineRepository) Delete(ctx context.Context, userID, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM medicines WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return fmt.Errorf("failed to delete medicine: %w", err)
	}
	return requireAffected(result)
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanMedicine(row rowScanner) (*models.Medicine, error) {
	var m models.Medicine
	var schedule string
	err := row.Scan(
		&m.ID,
		&m.UserID,
		&m.Name,
		&m.Dosage,
		&m.Timing,
		&m.Use,
		&m.Description,
		&schedule,
		&m.DurationDays,
		&m.Quantity,
		&m.PhotoURL,
		&m.Status,
		&m.CreatedAt,
		&m.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(schedule), &m.Schedule); err != nil {
		return nil, fmt.Errorf("failed to decode schedule for medicine %s: %w", m.ID, err)
	}
	return &m, nil
}

// scanMedicines is a helper to scan multiple medicine rows
func scanMedicines(rows *sql.Rows) ([]*models.Medicine, error) {
	var medicines []*models.Medicine
	for rows.Next() {
		m, err := scanMedicine(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan medicine: %w", err)
		}
		medicines = append(medicines, m)
	}
	return medicines, rows.Err()
}

func requireAffected(result sql.Result) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
