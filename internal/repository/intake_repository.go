package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"medminder/internal/database"
	"medminder/internal/models"
)

const dateLayout = "2006-01-02"

// IntakeRepository stores dose history and the per-user reward counters.
type IntakeRepository struct {
	db *database.DB
}

func NewIntakeRepository(db *database.DB) *IntakeRepository {
	return &IntakeRepository{db: db}
}

// AppendIntake inserts a history entry. The calendar day is taken from
// TakenAt in its own location.
func (r *IntakeRepository) AppendIntake(ctx context.Context, in *models.Intake) error {
	query := `
		INSERT INTO intakes (id, user_id, medicine_id, medicine_name, scheduled_at, status, taken_at, taken_date, points)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.ExecContext(ctx, query,
		in.ID,
		in.UserID,
		in.MedicineID,
		in.MedicineName,
		in.ScheduledAt,
		in.Status,
		in.TakenAt.UTC(),
		in.DateStr(),
		in.Points,
	)
	if err != nil {
		return fmt.Errorf("failed to append intake: %w", err)
	}
	return nil
}

// IncrementPoints adds delta to the user's points in a single statement
func (r *IntakeRepository) IncrementPoints(ctx context.Context, userID string, delta int) error {
	query := `
		INSERT INTO user_stats (user_id, points) VALUES (?, ?)
		ON CONFLICT(user_id) DO UPDATE SET points = points + excluded.points
	`
	if _, err := r.db.ExecContext(ctx, query, userID, delta); err != nil {
		return fmt.Errorf("failed to increment points: %w", err)
	}
	return nil
}

// TouchStreak advances the streak for a dose taken on day
func (r *IntakeRepository) TouchStreak(ctx context.Context, userID string, day time.Time) error {
	today := day.Format(dateLayout)
	yesterday := day.AddDate(0, 0, -1).Format(dateLayout)

	query := `
		INSERT INTO user_stats (user_id, streak, last_taken_date) VALUES (?, 1, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			streak = CASE
				WHEN last_taken_date = excluded.last_taken_date THEN streak
				WHEN last_taken_date = ? THEN streak + 1
				ELSE 1
			END,
			last_taken_date = excluded.last_taken_date
	`
	if _, err := r.db.ExecContext(ctx, query, userID, today, yesterday); err != nil {
		return fmt.Errorf("failed to update streak: %w", err)
	}
	return nil
}

// ResetStreak sets the user's streak back to zero
func (r *IntakeRepository) ResetStreak(ctx context.Context, userID string) error {
	if _, err := r.db.ExecContext(ctx, `UPDATE user_stats SET streak = 0 WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("failed to reset streak: %w", err)
	}
	return nil
}

// GetStats returns the user's counters, or nil when none exist yet
func (r *IntakeRepository) GetStats(ctx context.Context, userID string) (*models.UserStats, error) {
	query := `SELECT user_id, points, streak, last_taken_date FROM user_stats WHERE user_id = ?`

	var s models.UserStats
	err := r.db.QueryRowContext(ctx, query, userID).Scan(&s.UserID, &s.Points, &s.Streak, &s.LastTakenDate)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get stats: %w", err)
	}
	return &s, nil
}

// ListHistory retrieves intake entries newest first
func (r *IntakeRepository) ListHistory(ctx context.Context, userID string, filter models.HistoryFilter) ([]*models.Intake, error) {
	query := `
		SELECT id, user_id, medicine_id, medicine_name, scheduled_at, status, taken_at, points
		FROM intakes
		WHERE user_id = ?
	`
	args := []interface{}{userID}

	if !filter.From.IsZero() {
		query += ` AND taken_at >= ?`
		args = append(args, filter.From.UTC())
	}
	if !filter.To.IsZero() {
		query += ` AND taken_at < ?`
		args = append(args, filter.To.UTC())
	}
	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, filter.Status)
	}
	query += ` ORDER BY taken_at DESC, rowid DESC`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list history: %w", err)
	}
	defer rows.Close()

	return scanIntakes(rows)
}

// ListByDate retrieves the entries recorded on a calendar day (YYYY-MM-DD)
func (r *IntakeRepository) ListByDate(ctx context.Context, userID, date string) ([]*models.Intake, error) {
	query := `
		SELECT id, user_id, medicine_id, medicine_name, scheduled_at, status, taken_at, points
		FROM intakes
		WHERE user_id = ? AND taken_date = ?
		ORDER BY taken_at, rowid
	`
	rows, err := r.db.QueryContext(ctx, query, userID, date)
	if err != nil {
		return nil, fmt.Errorf("failed to list intakes by date: %w", err)
	}
	defer rows.Close()

	return scanIntakes(rows)
}

func scanIntakes(rows *sql.Rows) ([]*models.Intake, error) {
	var intakes []*models.Intake
	for rows.Next() {
		var in models.Intake
		err := rows.Scan(
			&in.ID,
			&in.UserID,
			&in.MedicineID,
			&in.MedicineName,
			&in.ScheduledAt,
			&in.Status,
			&in.TakenAt,
			&in.Points,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan intake: %w", err)
		}
		in.TakenAt = in.TakenAt.Local()
		intakes = append(intakes, &in)
	}
	return intakes, rows.Err()
}
