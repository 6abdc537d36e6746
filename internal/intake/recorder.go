// Package intake records durable dose events and the reward points they earn.
package intake

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"medminder/internal/clock"
	"medminder/internal/logger"
	"medminder/internal/models"
	"medminder/internal/schedule"
)

// RewardPoints is awarded for every dose taken.
const RewardPoints = 10

var ErrInvalidInput = errors.New("invalid intake")

// Store is the durable history and stats store.
type Store interface {
	AppendIntake(ctx context.Context, in *models.Intake) error
	// IncrementPoints adds delta to the user's points in one atomic step,
	// creating the stats row when missing.
	IncrementPoints(ctx context.Context, userID string, delta int) error
	// TouchStreak extends the streak when day follows the last taken date,
	// keeps it when day equals it, and restarts it at 1 otherwise.
	TouchStreak(ctx context.Context, userID string, day time.Time) error
	GetStats(ctx context.Context, userID string) (*models.UserStats, error)
	ListHistory(ctx context.Context, userID string, filter models.HistoryFilter) ([]*models.Intake, error)
}

// Request describes one intake event.
type Request struct {
	UserID       string `json:"userId"`
	MedicineID   string `json:"medicineId"`
	MedicineName string `json:"medicineName"`
	ScheduledAt  string `json:"scheduledAt"`
	Status       string `json:"status"`

	// RecordedAt backdates the entry; zero means now. Used when sweeping a
	// finished day for missed doses.
	RecordedAt time.Time `json:"-"`
}

func (r Request) Validate() error {
	if r.UserID == "" {
		return fmt.Errorf("%w: user id is required", ErrInvalidInput)
	}
	if r.MedicineID == "" {
		return fmt.Errorf("%w: medicine id is required", ErrInvalidInput)
	}
	if _, err := schedule.ParseClock(r.ScheduledAt); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	switch r.Status {
	case models.IntakeTaken, models.IntakeMissed:
	default:
		return fmt.Errorf("%w: status must be %q or %q", ErrInvalidInput, models.IntakeTaken, models.IntakeMissed)
	}
	return nil
}

type Recorder struct {
	store Store
	clock clock.Clock
	log   logger.Logger
}

func NewRecorder(store Store, c clock.Clock, log logger.Logger) *Recorder {
	if log == nil {
		log = logger.Nop()
	}
	return &Recorder{
		store: store,
		clock: c,
		log:   log.With(logger.Fields{"component": "intake"}),
	}
}

// Record appends the event to history. Taken doses also earn RewardPoints
// and extend the streak.
func (r *Recorder) Record(ctx context.Context, req Request) error {
	_, err := r.RecordIntake(ctx, req)
	return err
}

// RecordIntake is Record returning the stored history entry.
func (r *Recorder) RecordIntake(ctx context.Context, req Request) (*models.Intake, error) {
	if req.Status == "" {
		req.Status = models.IntakeTaken
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	now := r.clock.Now()
	if !req.RecordedAt.IsZero() {
		now = req.RecordedAt
	}
	in := &models.Intake{
		ID:           uuid.NewString(),
		UserID:       req.UserID,
		MedicineID:   req.MedicineID,
		MedicineName: req.MedicineName,
		ScheduledAt:  req.ScheduledAt,
		Status:       req.Status,
		TakenAt:      now,
	}
	if req.Status == models.IntakeTaken {
		in.Points = RewardPoints
	}

	if err := r.store.AppendIntake(ctx, in); err != nil {
		return nil, fmt.Errorf("failed to append intake: %w", err)
	}

	if req.Status == models.IntakeTaken {
		if err := r.store.IncrementPoints(ctx, req.UserID, RewardPoints); err != nil {
			return nil, fmt.Errorf("failed to award points: %w", err)
		}
		if err := r.store.TouchStreak(ctx, req.UserID, now); err != nil {
			return nil, fmt.Errorf("failed to update streak: %w", err)
		}
	}

	r.log.Debug("intake stored", logger.Fields{
		"user_id":     req.UserID,
		"medicine_id": req.MedicineID,
		"time":        req.ScheduledAt,
		"status":      req.Status,
	})
	return in, nil
}

// Stats returns the user's points and streak. Users with no history get
// zeroed stats.
func (r *Recorder) Stats(ctx context.Context, userID string) (*models.UserStats, error) {
	stats, err := r.store.GetStats(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get stats: %w", err)
	}
	if stats == nil {
		stats = &models.UserStats{UserID: userID}
	}
	return stats, nil
}

// History lists intake events newest first.
func (r *Recorder) History(ctx context.Context, userID string, filter models.HistoryFilter) ([]*models.Intake, error) {
	items, err := r.store.ListHistory(ctx, userID, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list history: %w", err)
	}
	return items, nil
}
