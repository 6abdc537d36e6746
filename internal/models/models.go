package models

import (
	"database/sql"
	"time"
)

// Timing categories for when a medicine is taken relative to food
const (
	TimingBeforeFood = "before-food"
	TimingAfterFood  = "after-food"
	TimingAny        = "any"
)

// Medicine statuses
const (
	MedicineStatusActive    = "active"
	MedicineStatusCompleted = "completed"
)

// Intake statuses
const (
	IntakeTaken  = "taken"
	IntakeMissed = "missed"
)

// User represents a registered user
type User struct {
	ID                  string
	Username            string
	PasswordHash        string
	Email               sql.NullString
	IsActive            bool
	FailedLoginAttempts int
	LockedUntil         sql.NullTime
	CreatedAt           time.Time
	LastLogin           sql.NullTime
}

// Medicine represents a medicine with its daily schedule
type Medicine struct {
	ID           string    `json:"id"`
	UserID       string    `json:"user_id"`
	Name         string    `json:"name"`
	Dosage       string    `json:"dosage"` // e.g. "1-0-1"
	Timing       string    `json:"timing"`
	Use          string    `json:"use"`
	Description  string    `json:"description,omitempty"`
	Schedule     []string  `json:"schedule"` // HH:MM, 24-hour
	DurationDays int       `json:"duration"`
	Quantity     int       `json:"quantity"`
	PhotoURL     string    `json:"photo_url,omitempty"`
	Status       string    `json:"status"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// IsActive reports whether alarms should be raised for the medicine
func (m *Medicine) IsActive() bool {
	return m.Status != MedicineStatusCompleted
}

// ValidTiming reports whether t is a known timing category
func ValidTiming(t string) bool {
	switch t {
	case TimingBeforeFood, TimingAfterFood, TimingAny:
		return true
	}
	return false
}

// Intake is a history record of a taken or missed dose
type Intake struct {
	ID           string    `json:"id"`
	UserID       string    `json:"user_id"`
	MedicineID   string    `json:"medicine_id"`
	MedicineName string    `json:"medicine_name"`
	ScheduledAt  string    `json:"scheduled_at"` // HH:MM
	Status       string    `json:"status"`
	TakenAt      time.Time `json:"taken_at"`
	Points       int       `json:"points"`
}

// DateStr returns the local calendar day the intake was recorded on
func (i *Intake) DateStr() string {
	return i.TakenAt.Format("2006-01-02")
}

// UserStats holds the reward counters for a user
type UserStats struct {
	UserID        string `json:"user_id"`
	Points        int    `json:"points"`
	Streak        int    `json:"streak"`
	LastTakenDate string `json:"last_taken_date,omitempty"` // YYYY-MM-DD
}

// HistoryFilter narrows a history listing
type HistoryFilter struct {
	From   time.Time
	To     time.Time
	Status string
	Limit  int
}

// AuditLog records a security-relevant action
type AuditLog struct {
	ID         int64
	UserID     sql.NullString
	Action     string
	EntityType string
	EntityID   sql.NullString
	Details    sql.NullString // JSON
	IPAddress  sql.NullString
	UserAgent  sql.NullString
	Timestamp  time.Time
}
