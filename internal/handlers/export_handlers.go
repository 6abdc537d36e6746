package handlers

import (
	"bytes"
	"fmt"
	"log"
	"net/http"
	"time"

	"medminder/internal/clock"
	"medminder/internal/export"
	"medminder/internal/intake"
	"medminder/internal/middleware"
)

// defaultExportDays is the window used when no from date is given
const defaultExportDays = 30

// HandleExportCSV downloads the caller's history as CSV
func HandleExportCSV(recorder *intake.Recorder, c clock.Clock) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := middleware.GetUserID(r.Context())
		if userID == "" {
			respondError(w, http.StatusUnauthorized, "Not authenticated")
			return
		}

		filter, err := parseHistoryFilter(r)
		if err != nil {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		start, end := exportWindow(filter.From, filter.To, c.Now())
		filter.From, filter.To = start, end

		items, err := recorder.History(r.Context(), userID, filter)
		if err != nil {
			log.Printf("Failed to gather export data: %v", err)
			respondError(w, http.StatusInternalServerError, "Failed to gather export data")
			return
		}

		var buf bytes.Buffer
		if err := export.WriteHistoryCSV(&buf, items); err != nil {
			respondError(w, http.StatusInternalServerError, "Failed to generate CSV")
			return
		}

		filename := fmt.Sprintf("medminder-history-%s-to-%s.csv", start.Format(dateLayout), end.AddDate(0, 0, -1).Format(dateLayout))
		w.Header().Set("Content-Type", "text/csv")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s\"", filename))
		w.Header().Set("Content-Length", fmt.Sprintf("%d", buf.Len()))
		w.Write(buf.Bytes())
	}
}

// HandleExportPDF downloads the caller's history as a PDF report
func HandleExportPDF(recorder *intake.Recorder, c clock.Clock) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userCtx := middleware.GetUserContext(r)
		if userCtx == nil {
			respondError(w, http.StatusUnauthorized, "Not authenticated")
			return
		}

		filter, err := parseHistoryFilter(r)
		if err != nil {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		start, end := exportWindow(filter.From, filter.To, c.Now())
		filter.From, filter.To = start, end

		items, err := recorder.History(r.Context(), userCtx.UserID, filter)
		if err != nil {
			log.Printf("Failed to gather export data: %v", err)
			respondError(w, http.StatusInternalServerError, "Failed to gather export data")
			return
		}
		stats, err := recorder.Stats(r.Context(), userCtx.UserID)
		if err != nil {
			log.Printf("Failed to gather export stats: %v", err)
			respondError(w, http.StatusInternalServerError, "Failed to gather export data")
			return
		}

		var buf bytes.Buffer
		err = export.WriteHistoryPDF(&buf, export.Report{
			Username: userCtx.Username,
			From:     start,
			To:       end.AddDate(0, 0, -1),
			Stats:    stats,
			Intakes:  items,
		})
		if err != nil {
			log.Printf("Failed to generate PDF: %v", err)
			respondError(w, http.StatusInternalServerError, "Failed to generate PDF")
			return
		}

		filename := fmt.Sprintf("medminder-report-%s-to-%s.pdf", start.Format(dateLayout), end.AddDate(0, 0, -1).Format(dateLayout))
		w.Header().Set("Content-Type", "application/pdf")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s\"", filename))
		w.Header().Set("Content-Length", fmt.Sprintf("%d", buf.Len()))
		w.Write(buf.Bytes())
	}
}

// exportWindow fills in defaults: the last 30 days up to and including today.
// end is exclusive.
func exportWindow(from, to, now time.Time) (time.Time, time.Time) {
	y, m, d := now.Date()
	today := time.Date(y, m, d, 0, 0, 0, 0, now.Location())
	if to.IsZero() {
		to = today.AddDate(0, 0, 1)
	}
	if from.IsZero() {
		from = to.AddDate(0, 0, -defaultExportDays)
	}
	return from, to
}
