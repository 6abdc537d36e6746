package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"medminder/internal/intake"
	"medminder/internal/middleware"
	"medminder/internal/models"
)

const dateLayout = "2006-01-02"

// HandleRecordIntake stores a taken or missed dose for the caller
func HandleRecordIntake(recorder *intake.Recorder) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := middleware.GetUserID(r.Context())
		if userID == "" {
			respondError(w, http.StatusUnauthorized, "Not authenticated")
			return
		}

		var req intake.Request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, http.StatusBadRequest, "Invalid request body")
			return
		}
		// Never trust a user id from the body
		req.UserID = userID

		in, err := recorder.RecordIntake(r.Context(), req)
		if errors.Is(err, intake.ErrInvalidInput) {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		if err != nil {
			log.Printf("Failed to record intake: %v", err)
			respondError(w, http.StatusInternalServerError, "Failed to record intake")
			return
		}

		respondJSON(w, http.StatusCreated, in)
	}
}

// HandleHistory lists the caller's intake history, newest first.
// Query: from, to (YYYY-MM-DD, inclusive), status, limit.
func HandleHistory(recorder *intake.Recorder) http.HandlerFunc {
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

		items, err := recorder.History(r.Context(), userID, filter)
		if err != nil {
			log.Printf("Failed to list history: %v", err)
			respondError(w, http.StatusInternalServerError, "Failed to retrieve history")
			return
		}

		respondJSON(w, http.StatusOK, items)
	}
}

// HandleStats returns the caller's points and streak
func HandleStats(recorder *intake.Recorder) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := middleware.GetUserID(r.Context())
		if userID == "" {
			respondError(w, http.StatusUnauthorized, "Not authenticated")
			return
		}

		stats, err := recorder.Stats(r.Context(), userID)
		if err != nil {
			log.Printf("Failed to get stats: %v", err)
			respondError(w, http.StatusInternalServerError, "Failed to retrieve stats")
			return
		}

		respondJSON(w, http.StatusOK, stats)
	}
}

func parseHistoryFilter(r *http.Request) (models.HistoryFilter, error) {
	var filter models.HistoryFilter
	q := r.URL.Query()

	if s := q.Get("from"); s != "" {
		from, err := time.ParseInLocation(dateLayout, s, time.Local)
		if err != nil {
			return filter, errors.New("from must be YYYY-MM-DD")
		}
		filter.From = from
	}
	if s := q.Get("to"); s != "" {
		to, err := time.ParseInLocation(dateLayout, s, time.Local)
		if err != nil {
			return filter, errors.New("to must be YYYY-MM-DD")
		}
		filter.To = to.AddDate(0, 0, 1)
	}
	if !filter.From.IsZero() && !filter.To.IsZero() && !filter.To.After(filter.From) {
		return filter, errors.New("to must not be before from")
	}

	switch status := q.Get("status"); status {
	case "", models.IntakeTaken, models.IntakeMissed:
		filter.Status = status
	default:
		return filter, errors.New("status must be taken or missed")
	}

	if s := q.Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			return filter, errors.New("limit must be a positive number")
		}
		filter.Limit = n
	}
	return filter, nil
}
