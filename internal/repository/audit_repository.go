package repository

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"medminder/internal/database"
	"medminder/internal/models"
)

type AuditRepository struct {
	db *database.DB
}

func NewAuditRepository(db *database.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

// Log creates a new audit log entry
func (r *AuditRepository) Log(entry *models.AuditLog) error {
	query := `
		INSERT INTO audit_logs (user_id, action, entity_type, entity_id, details, ip_address, user_agent, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	result, err := r.db.Exec(
		query,
		entry.UserID,
		entry.Action,
		entry.EntityType,
		entry.EntityID,
		entry.Details,
		entry.IPAddress,
		entry.UserAgent,
		time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to create audit log: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	entry.ID = id
	return nil
}

// LogWithDetails logs an action with structured details. An empty userID or
// entityID is stored as NULL.
func (r *AuditRepository) LogWithDetails(userID, action, entityType, entityID string, details map[string]interface{}, ipAddress, userAgent string) error {
	var detailsJSON sql.NullString
	if details != nil {
		jsonBytes, err := json.Marshal(details)
		if err != nil {
			return fmt.Errorf("failed to marshal details: %w", err)
		}
		detailsJSON = sql.NullString{String: string(jsonBytes), Valid: true}
	}

	entry := &models.AuditLog{
		UserID:     sql.NullString{String: userID, Valid: userID != ""},
		Action:     action,
		EntityType: entityType,
		EntityID:   sql.NullString{String: entityID, Valid: entityID != ""},
		Details:    detailsJSON,
		IPAddress:  sql.NullString{String: ipAddress, Valid: ipAddress != ""},
		UserAgent:  sql.NullString{String: userAgent, Valid: userAgent != ""},
	}

	return r.Log(entry)
}

// GetByUser retrieves audit logs for a specific user, newest first
func (r *AuditRepository) GetByUser(userID string, limit, offset int) ([]*models.AuditLog, error) {
	query := `
		SELECT id, user_id, action, entity_type, entity_id, details, ip_address, user_agent, timestamp
		FROM audit_logs
		WHERE user_id = ?
		ORDER BY timestamp DESC, id DESC
		LIMIT ? OFFSET ?
	`
	rows, err := r.db.Query(query, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to get audit logs by user: %w", err)
	}
	defer rows.Close()

	var logs []*models.AuditLog
	for rows.Next() {
		var log models.AuditLog
		err := rows.Scan(
			&log.ID,
			&log.UserID,
			&log.Action,
			&log.EntityType,
			&log.EntityID,
			&log.Details,
			&log.IPAddress,
			&log.UserAgent,
			&log.Timestamp,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan audit log: %w", err)
		}
		logs = append(logs, &log)
	}

	return logs, rows.Err()
}

// CountFailedLoginsByIP counts failed login attempts by IP address within a time window
func (r *AuditRepository) CountFailedLoginsByIP(ipAddress string, window time.Duration) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM audit_logs
		WHERE action = 'login_failed'
		  AND ip_address = ?
		  AND timestamp >= ?
	`
	var count int
	err := r.db.QueryRow(query, ipAddress, time.Now().UTC().Add(-window)).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count failed logins by IP: %w", err)
	}
	return count, nil
}

// DeleteOlderThan deletes audit logs older than the cutoff (for maintenance)
func (r *AuditRepository) DeleteOlderThan(cutoff time.Time) (int64, error) {
	result, err := r.db.Exec(`DELETE FROM audit_logs WHERE timestamp < ?`, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to delete old audit logs: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rowsAffected, nil
}
