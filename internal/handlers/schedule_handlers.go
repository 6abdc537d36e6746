package handlers

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"medminder/internal/clock"
	"medminder/internal/export"
	"medminder/internal/middleware"
	"medminder/internal/models"
	"medminder/internal/schedule"
)

// DayLister lists a user's intake records for one local calendar day
type DayLister interface {
	ListByDate(ctx context.Context, userID, date string) ([]*models.Intake, error)
}

// Statuses for doses with no intake record yet. Recorded doses report the
// intake status (taken or missed).
const (
	DoseUpcoming = "upcoming"
	DoseDue      = "due"
)

// DoseResponse is one entry of today's schedule
type DoseResponse struct {
	MedicineID   string `json:"medicine_id"`
	MedicineName string `json:"medicine_name"`
	Dosage       string `json:"dosage"`
	Timing       string `json:"timing"`
	Time         string `json:"time"`
	Display      string `json:"display"`
	Status       string `json:"status"`
}

// NextDoseResponse describes the next reminder
type NextDoseResponse struct {
	Scheduled    bool   `json:"scheduled"`
	MedicineID   string `json:"medicine_id,omitempty"`
	MedicineName string `json:"medicine_name,omitempty"`
	Time         string `json:"time,omitempty"`
	Display      string `json:"display,omitempty"`
	At           string `json:"at,omitempty"`
	Countdown    string `json:"countdown,omitempty"`
}

// HandleTodaySchedule lists today's doses in time order with their status
func HandleTodaySchedule(medicines MedicineStore, intakes DayLister, c clock.Clock) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := middleware.GetUserID(r.Context())
		if userID == "" {
			respondError(w, http.StatusUnauthorized, "Not authenticated")
			return
		}

		meds, err := medicines.ListByUser(r.Context(), userID, true)
		if err != nil {
			log.Printf("Failed to list medicines: %v", err)
			respondError(w, http.StatusInternalServerError, "Failed to retrieve schedule")
			return
		}

		now := c.Now()
		recorded, err := intakes.ListByDate(r.Context(), userID, now.Format("2006-01-02"))
		if err != nil {
			log.Printf("Failed to list today's intakes: %v", err)
			respondError(w, http.StatusInternalServerError, "Failed to retrieve schedule")
			return
		}

		// last record per dose wins
		status := make(map[string]string, len(recorded))
		for i := len(recorded) - 1; i >= 0; i-- {
			key := recorded[i].MedicineID + "\x00" + recorded[i].ScheduledAt
			if _, ok := status[key]; !ok {
				status[key] = recorded[i].Status
			}
		}

		doses := schedule.TodaysSchedule(meds)
		out := make([]DoseResponse, 0, len(doses))
		for _, d := range doses {
			st, ok := status[d.Medicine.ID+"\x00"+d.Time]
			if !ok {
				st = DoseUpcoming
				if !schedule.Occurrence(now, d.MinuteOfDay).After(now) {
					st = DoseDue
				}
			}
			out = append(out, DoseResponse{
				MedicineID:   d.Medicine.ID,
				MedicineName: d.Medicine.Name,
				Dosage:       d.Medicine.Dosage,
				Timing:       d.Medicine.Timing,
				Time:         d.Time,
				Display:      d.Display,
				Status:       st,
			})
		}

		respondJSON(w, http.StatusOK, out)
	}
}

// HandleNextDose returns the next scheduled dose and a countdown to it
func HandleNextDose(medicines MedicineStore, c clock.Clock) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := middleware.GetUserID(r.Context())
		if userID == "" {
			respondError(w, http.StatusUnauthorized, "Not authenticated")
			return
		}

		meds, err := medicines.ListByUser(r.Context(), userID, true)
		if err != nil {
			log.Printf("Failed to list medicines: %v", err)
			respondError(w, http.StatusInternalServerError, "Failed to retrieve schedule")
			return
		}

		now := c.Now()
		next, ok := schedule.FindNextDose(meds, now)
		if !ok {
			respondJSON(w, http.StatusOK, NextDoseResponse{Scheduled: false})
			return
		}

		mod, _ := schedule.ParseClock(next.Time)
		respondJSON(w, http.StatusOK, NextDoseResponse{
			Scheduled:    true,
			MedicineID:   next.Medicine.ID,
			MedicineName: next.Medicine.Name,
			Time:         next.Time,
			Display:      schedule.FormatDisplay(mod),
			At:           next.At.Format(time.RFC3339),
			Countdown:    schedule.Countdown(next.At, now),
		})
	}
}

// HandleCalendar serves active schedules as an iCalendar feed
func HandleCalendar(medicines MedicineStore, c clock.Clock) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := middleware.GetUserID(r.Context())
		if userID == "" {
			respondError(w, http.StatusUnauthorized, "Not authenticated")
			return
		}

		meds, err := medicines.ListByUser(r.Context(), userID, true)
		if err != nil {
			log.Printf("Failed to list medicines: %v", err)
			respondError(w, http.StatusInternalServerError, "Failed to retrieve schedule")
			return
		}

		var buf bytes.Buffer
		if err := export.WriteCalendar(&buf, meds, c.Now()); err != nil {
			log.Printf("Failed to build calendar: %v", err)
			respondError(w, http.StatusInternalServerError, "Failed to build calendar")
			return
		}

		w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
		w.Header().Set("Content-Disposition", `attachment; filename="medminder.ics"`)
		w.Header().Set("Content-Length", fmt.Sprintf("%d", buf.Len()))
		w.Write(buf.Bytes())
	}
}
