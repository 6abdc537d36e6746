// Package agent hosts the reminder agent: the loop that keeps the alarm
// engine's medicine list fresh and the localhost control API.
package agent

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"medminder/internal/alarm"
	"medminder/internal/clock"
	"medminder/internal/ledger"
	"medminder/internal/logger"
	"medminder/internal/middleware"
	"medminder/internal/models"
	"medminder/internal/schedule"
)

// Controller is the part of the alarm engine the control API drives.
type Controller interface {
	State() alarm.State
	TakenDoses() []ledger.TakenDose
	Medicines() []*models.Medicine
	Acknowledge() bool
	Snooze() bool
	Dismiss() bool
	Stop()
}

// StateResponse describes the current alarm
type StateResponse struct {
	Ringing      bool   `json:"ringing"`
	MedicineID   string `json:"medicine_id,omitempty"`
	MedicineName string `json:"medicine_name,omitempty"`
	Dosage       string `json:"dosage,omitempty"`
	Time         string `json:"time,omitempty"`
	Display      string `json:"display,omitempty"`
	AlarmTime    string `json:"alarm_time,omitempty"`
}

// ActionResponse reports whether an action changed the alarm
type ActionResponse struct {
	Action  string `json:"action"`
	Changed bool   `json:"changed"`
}

type NextResponse struct {
	Scheduled    bool   `json:"scheduled"`
	MedicineID   string `json:"medicine_id,omitempty"`
	MedicineName string `json:"medicine_name,omitempty"`
	Time         string `json:"time,omitempty"`
	At           string `json:"at,omitempty"`
	Countdown    string `json:"countdown,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// NewRouter builds the control API. Every route except /health requires the
// control token when one is set.
func NewRouter(ctrl Controller, c clock.Clock, token string, l logger.Logger) http.Handler {
	if l == nil {
		l = logger.Nop()
	}

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(middleware.Logger(l))
	r.Use(chimiddleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireToken(token))

		r.Get("/state", handleState(ctrl))
		r.Get("/taken", handleTaken(ctrl))
		r.Get("/next", handleNext(ctrl, c))

		r.Post("/acknowledge", handleAction("acknowledge", ctrl.Acknowledge))
		r.Post("/snooze", handleAction("snooze", ctrl.Snooze))
		r.Post("/dismiss", handleAction("dismiss", ctrl.Dismiss))
		r.Post("/stop", handleAction("stop", func() bool {
			ringing := ctrl.State().Ringing
			ctrl.Stop()
			return ringing
		}))
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		respond(w, http.StatusNotFound, errorResponse{Error: "Not found"})
	})
	return r
}

func handleState(ctrl Controller) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		st := ctrl.State()
		if !st.Ringing {
			respond(w, http.StatusOK, StateResponse{})
			return
		}

		resp := StateResponse{
			Ringing:      true,
			MedicineID:   st.Medicine.ID,
			MedicineName: st.Medicine.Name,
			Dosage:       st.Medicine.Dosage,
			Time:         st.ScheduleTime,
			AlarmTime:    st.AlarmTime.Format(time.RFC3339),
		}
		if mod, err := schedule.ParseClock(st.ScheduleTime); err == nil {
			resp.Display = schedule.FormatDisplay(mod)
		}
		respond(w, http.StatusOK, resp)
	}
}

func handleTaken(ctrl Controller) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		taken := ctrl.TakenDoses()
		if taken == nil {
			taken = []ledger.TakenDose{}
		}
		respond(w, http.StatusOK, taken)
	}
}

func handleNext(ctrl Controller, c clock.Clock) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		now := c.Now()
		next, ok := schedule.FindNextDose(ctrl.Medicines(), now)
		if !ok {
			respond(w, http.StatusOK, NextResponse{})
			return
		}
		respond(w, http.StatusOK, NextResponse{
			Scheduled:    true,
			MedicineID:   next.Medicine.ID,
			MedicineName: next.Medicine.Name,
			Time:         next.Time,
			At:           next.At.Format(time.RFC3339),
			Countdown:    schedule.Countdown(next.At, now),
		})
	}
}

// handleAction runs fn. Acting on an idle alarm is not an error; it just
// reports changed=false.
func handleAction(name string, fn func() bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		respond(w, http.StatusOK, ActionResponse{Action: name, Changed: fn()})
	}
}

func respond(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("Failed to encode response: %v", err)
	}
}
