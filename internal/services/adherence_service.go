// Package services holds background jobs that run inside the API server.
package services

import (
	"context"
	"fmt"
	"time"

	"medminder/internal/clock"
	"medminder/internal/intake"
	"medminder/internal/logger"
	"medminder/internal/models"
	"medminder/internal/schedule"
)

const dateLayout = "2006-01-02"

// sweepDelay is how long after local midnight the daily run starts
const sweepDelay = 5 * time.Minute

// MedicineSource lists active medicines across users and ends finished courses
type MedicineSource interface {
	ListActive(ctx context.Context) ([]*models.Medicine, error)
	SetStatus(ctx context.Context, userID, id, status string) error
}

// DayStore reads one day of history and resets reward streaks
type DayStore interface {
	ListByDate(ctx context.Context, userID, date string) ([]*models.Intake, error)
	ResetStreak(ctx context.Context, userID string) error
}

// IntakeRecorder stores intake events
type IntakeRecorder interface {
	RecordIntake(ctx context.Context, req intake.Request) (*models.Intake, error)
}

// AuditPruner deletes audit entries older than a cutoff
type AuditPruner interface {
	DeleteOlderThan(cutoff time.Time) (int64, error)
}

// SweepResult summarises one SweepDay run
type SweepResult struct {
	Date          string
	Users         int
	Missed        int
	StreaksReset  int
	FailedRecords int
}

// AdherenceService closes out finished days: doses with no record are
// logged as missed, streaks of users who took nothing are reset, courses
// past their duration are completed and old audit entries are pruned.
type AdherenceService struct {
	medicines      MedicineSource
	days           DayStore
	recorder       IntakeRecorder
	audit          AuditPruner
	clock          clock.Clock
	log            logger.Logger
	auditRetention time.Duration
}

// NewAdherenceService creates the service. audit may be nil, and a zero
// auditRetention disables pruning.
func NewAdherenceService(medicines MedicineSource, days DayStore, recorder IntakeRecorder, audit AuditPruner, c clock.Clock, log logger.Logger, auditRetention time.Duration) *AdherenceService {
	if log == nil {
		log = logger.Nop()
	}
	return &AdherenceService{
		medicines:      medicines,
		days:           days,
		recorder:       recorder,
		audit:          audit,
		clock:          c,
		log:            log.With(logger.Fields{"component": "adherence"}),
		auditRetention: auditRetention,
	}
}

// SweepDay records a missed intake for every active (medicine, time) that
// has no taken or missed record on day. Doses scheduled before the medicine
// was added are skipped. Running it twice for the same day is a no-op.
func (s *AdherenceService) SweepDay(ctx context.Context, day time.Time) (SweepResult, error) {
	date := day.Format(dateLayout)
	result := SweepResult{Date: date}

	meds, err := s.medicines.ListActive(ctx)
	if err != nil {
		return result, fmt.Errorf("failed to list active medicines: %w", err)
	}

	byUser := make(map[string][]*models.Medicine)
	var users []string
	for _, med := range meds {
		if _, ok := byUser[med.UserID]; !ok {
			users = append(users, med.UserID)
		}
		byUser[med.UserID] = append(byUser[med.UserID], med)
	}

	for _, userID := range users {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		scheduled, missed, taken, failed, err := s.sweepUser(ctx, userID, byUser[userID], day, date)
		if err != nil {
			s.log.Error("sweep failed for user", logger.Fields{"user_id": userID, "date": date, "error": err})
			continue
		}
		result.Users++
		result.Missed += missed
		result.FailedRecords += failed

		if scheduled > 0 && taken == 0 {
			if err := s.days.ResetStreak(ctx, userID); err != nil {
				s.log.Error("failed to reset streak", logger.Fields{"user_id": userID, "error": err})
				continue
			}
			result.StreaksReset++
		}
	}

	s.log.Info("missed-dose sweep complete", logger.Fields{
		"date":          date,
		"users":         result.Users,
		"missed":        result.Missed,
		"streaks_reset": result.StreaksReset,
	})
	return result, nil
}

func (s *AdherenceService) sweepUser(ctx context.Context, userID string, meds []*models.Medicine, day time.Time, date string) (scheduled, missed, taken, failed int, err error) {
	records, err := s.days.ListByDate(ctx, userID, date)
	if err != nil {
		return 0, 0, 0, 0, fmt.Errorf("failed to list intakes: %w", err)
	}

	recorded := make(map[string]bool, len(records))
	for _, rec := range records {
		recorded[rec.MedicineID+"\x00"+rec.ScheduledAt] = true
		if rec.Status == models.IntakeTaken {
			taken++
		}
	}

	for _, med := range meds {
		for _, t := range med.Schedule {
			mod, perr := schedule.ParseClock(t)
			if perr != nil {
				continue
			}
			at := schedule.Occurrence(day, mod)
			if !med.CreatedAt.IsZero() && at.Before(med.CreatedAt) {
				continue
			}
			scheduled++
			if recorded[med.ID+"\x00"+t] {
				continue
			}

			_, rerr := s.recorder.RecordIntake(ctx, intake.Request{
				UserID:       userID,
				MedicineID:   med.ID,
				MedicineName: med.Name,
				ScheduledAt:  t,
				Status:       models.IntakeMissed,
				RecordedAt:   at,
			})
			if rerr != nil {
				s.log.Warn("failed to record missed dose", logger.Fields{
					"user_id": userID, "medicine_id": med.ID, "time": t, "error": rerr,
				})
				failed++
				continue
			}
			recorded[med.ID+"\x00"+t] = true
			missed++
		}
	}
	return scheduled, missed, taken, failed, nil
}

// ExpireFinished completes every active medicine whose course of
// DurationDays days, counted from the day it was added, ended before now.
func (s *AdherenceService) ExpireFinished(ctx context.Context, now time.Time) (int, error) {
	meds, err := s.medicines.ListActive(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list active medicines: %w", err)
	}

	today := startOfDay(now)
	expired := 0
	for _, med := range meds {
		if med.DurationDays <= 0 || med.CreatedAt.IsZero() {
			continue
		}
		end := startOfDay(med.CreatedAt.In(now.Location())).AddDate(0, 0, med.DurationDays)
		if end.After(today) {
			continue
		}
		if err := s.medicines.SetStatus(ctx, med.UserID, med.ID, models.MedicineStatusCompleted); err != nil {
			s.log.Error("failed to complete medicine", logger.Fields{"medicine_id": med.ID, "error": err})
			continue
		}
		s.log.Info("medicine course finished", logger.Fields{"user_id": med.UserID, "medicine_id": med.ID})
		expired++
	}
	return expired, nil
}

// PruneAudit deletes audit entries older than the retention window.
func (s *AdherenceService) PruneAudit(now time.Time) (int64, error) {
	if s.audit == nil || s.auditRetention <= 0 {
		return 0, nil
	}
	deleted, err := s.audit.DeleteOlderThan(now.Add(-s.auditRetention))
	if err != nil {
		return 0, fmt.Errorf("failed to prune audit log: %w", err)
	}
	if deleted > 0 {
		s.log.Info("pruned audit log", logger.Fields{"deleted": deleted})
	}
	return deleted, nil
}

// RunDaily closes out yesterday, then does it again shortly after every
// local midnight until ctx is done.
func (s *AdherenceService) RunDaily(ctx context.Context) error {
	wake := make(chan struct{}, 1)
	for {
		now := s.clock.Now()
		s.closeOut(ctx, now)

		next := startOfDay(now).AddDate(0, 0, 1).Add(sweepDelay)
		timer := s.clock.AfterFunc(next.Sub(now), func() {
			select {
			case wake <- struct{}{}:
			default:
			}
		})

		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-wake:
		}
	}
}

func (s *AdherenceService) closeOut(ctx context.Context, now time.Time) {
	if _, err := s.SweepDay(ctx, startOfDay(now).AddDate(0, 0, -1)); err != nil {
		s.log.Error("missed-dose sweep failed", logger.Fields{"error": err})
	}
	if _, err := s.ExpireFinished(ctx, now); err != nil {
		s.log.Error("course expiry failed", logger.Fields{"error": err})
	}
	if _, err := s.PruneAudit(now); err != nil {
		s.log.Error("audit prune failed", logger.Fields{"error": err})
	}
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
