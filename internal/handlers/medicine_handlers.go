package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"medminder/internal/middleware"
	"medminder/internal/models"
	"medminder/internal/repository"
	"medminder/internal/schedule"
)

// MedicineStore is implemented by the SQLite and MongoDB medicine stores
type MedicineStore interface {
	Create(ctx context.Context, m *models.Medicine) error
	GetByID(ctx context.Context, userID, id string) (*models.Medicine, error)
	ListByUser(ctx context.Context, userID string, activeOnly bool) ([]*models.Medicine, error)
	Update(ctx context.Context, m *models.Medicine) error
	Delete(ctx context.Context, userID, id string) error
}

// AuditLogger records security and data changes
type AuditLogger interface {
	LogWithDetails(userID, action, entityType, entityID string, details map[string]interface{}, ipAddress, userAgent string) error
}

// CreateMedicineRequest represents the request body for creating a medicine
type CreateMedicineRequest struct {
	Name         string   `json:"name"`
	Dosage       string   `json:"dosage"`
	Timing       string   `json:"timing"`
	Use          string   `json:"use"`
	Description  string   `json:"description,omitempty"`
	Schedule     []string `json:"schedule"`
	DurationDays int      `json:"duration"`
	Quantity     int      `json:"quantity"`
	PhotoURL     string   `json:"photo_url,omitempty"`
}

// UpdateMedicineRequest represents the request body for updating a medicine.
// Omitted fields are left unchanged.
type UpdateMedicineRequest struct {
	Name         *string   `json:"name,omitempty"`
	Dosage       *string   `json:"dosage,omitempty"`
	Timing       *string   `json:"timing,omitempty"`
	Use          *string   `json:"use,omitempty"`
	Description  *string   `json:"description,omitempty"`
	Schedule     *[]string `json:"schedule,omitempty"`
	DurationDays *int      `json:"duration,omitempty"`
	Quantity     *int      `json:"quantity,omitempty"`
	PhotoURL     *string   `json:"photo_url,omitempty"`
}

// validateMedicine checks fields shared by create and update
func validateMedicine(m *models.Medicine) string {
	if strings.TrimSpace(m.Name) == "" {
		return "name is required"
	}
	if m.Timing == "" {
		m.Timing = models.TimingAny
	}
	if !models.ValidTiming(m.Timing) {
		return "timing must be one of before-food, after-food, any"
	}
	if err := schedule.ValidateTimes(m.Schedule); err != nil {
		return "schedule must contain at least one HH:MM time"
	}
	if m.DurationDays < 0 || m.Quantity < 0 {
		return "duration and quantity cannot be negative"
	}
	return ""
}

// HandleListMedicines returns the caller's medicines, ?filter=active for active only
func HandleListMedicines(store MedicineStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := middleware.GetUserID(r.Context())
		if userID == "" {
			respondError(w, http.StatusUnauthorized, "Not authenticated")
			return
		}

		activeOnly := r.URL.Query().Get("filter") == "active"
		medicines, err := store.ListByUser(r.Context(), userID, activeOnly)
		if err != nil {
			log.Printf("Failed to list medicines: %v", err)
			respondError(w, http.StatusInternalServerError, "Failed to retrieve medicines")
			return
		}

		respondJSON(w, http.StatusOK, medicines)
	}
}

// HandleCreateMedicine creates a new medicine
func HandleCreateMedicine(store MedicineStore, audit AuditLogger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := middleware.GetUserID(r.Context())
		if userID == "" {
			respondError(w, http.StatusUnauthorized, "Not authenticated")
			return
		}

		var req CreateMedicineRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, http.StatusBadRequest, "Invalid request body")
			return
		}

		medicine := &models.Medicine{
			UserID:       userID,
			Name:         strings.TrimSpace(req.Name),
			Dosage:       req.Dosage,
			Timing:       req.Timing,
			Use:          req.Use,
			Description:  req.Description,
			Schedule:     trimTimes(req.Schedule),
			DurationDays: req.DurationDays,
			Quantity:     req.Quantity,
			PhotoURL:     req.PhotoURL,
			Status:       models.MedicineStatusActive,
		}
		if msg := validateMedicine(medicine); msg != "" {
			respondError(w, http.StatusBadRequest, msg)
			return
		}

		if err := store.Create(r.Context(), medicine); err != nil {
			log.Printf("Failed to create medicine: %v", err)
			respondError(w, http.StatusInternalServerError, "Failed to create medicine")
			return
		}

		_ = audit.LogWithDetails(userID, "create", "medicine", medicine.ID,
			map[string]interface{}{"name": medicine.Name, "schedule": medicine.Schedule},
			getIPAddress(r), r.UserAgent())

		respondJSON(w, http.StatusCreated, medicine)
	}
}

// HandleGetMedicine returns a single medicine by ID
func HandleGetMedicine(store MedicineStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := middleware.GetUserID(r.Context())
		if userID == "" {
			respondError(w, http.StatusUnauthorized, "Not authenticated")
			return
		}

		medicine, err := store.GetByID(r.Context(), userID, chi.URLParam(r, "id"))
		if err != nil {
			respondStoreError(w, err, "Failed to retrieve medicine")
			return
		}

		respondJSON(w, http.StatusOK, medicine)
	}
}

// HandleUpdateMedicine applies a partial update to a medicine
func HandleUpdateMedicine(store MedicineStore, audit AuditLogger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := middleware.GetUserID(r.Context())
		if userID == "" {
			respondError(w, http.StatusUnauthorized, "Not authenticated")
			return
		}

		var req UpdateMedicineRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, http.StatusBadRequest, "Invalid request body")
			return
		}

		medicine, err := store.GetByID(r.Context(), userID, chi.URLParam(r, "id"))
		if err != nil {
			respondStoreError(w, err, "Failed to retrieve medicine")
			return
		}

		if req.Name != nil {
			medicine.Name = strings.TrimSpace(*req.Name)
		}
		if req.Dosage != nil {
			medicine.Dosage = *req.Dosage
		}
		if req.Timing != nil {
			medicine.Timing = *req.Timing
		}
		if req.Use != nil {
			medicine.Use = *req.Use
		}
		if req.Description != nil {
			medicine.Description = *req.Description
		}
		if req.Schedule != nil {
			medicine.Schedule = trimTimes(*req.Schedule)
		}
		if req.DurationDays != nil {
			medicine.DurationDays = *req.DurationDays
		}
		if req.Quantity != nil {
			medicine.Quantity = *req.Quantity
		}
		if req.PhotoURL != nil {
			medicine.PhotoURL = *req.PhotoURL
		}

		if msg := validateMedicine(medicine); msg != "" {
			respondError(w, http.StatusBadRequest, msg)
			return
		}

		if err := store.Update(r.Context(), medicine); err != nil {
			respondStoreError(w, err, "Failed to update medicine")
			return
		}

		_ = audit.LogWithDetails(userID, "update", "medicine", medicine.ID,
			map[string]interface{}{"name": medicine.Name}, getIPAddress(r), r.UserAgent())

		respondJSON(w, http.StatusOK, medicine)
	}
}

// HandleEndMedicine ends a course: duration drops to zero and alarms stop
func HandleEndMedicine(store MedicineStore, audit AuditLogger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := middleware.GetUserID(r.Context())
		if userID == "" {
			respondError(w, http.StatusUnauthorized, "Not authenticated")
			return
		}

		medicine, err := store.GetByID(r.Context(), userID, chi.URLParam(r, "id"))
		if err != nil {
			respondStoreError(w, err, "Failed to retrieve medicine")
			return
		}

		medicine.DurationDays = 0
		medicine.Status = models.MedicineStatusCompleted
		if err := store.Update(r.Context(), medicine); err != nil {
			respondStoreError(w, err, "Failed to end medicine")
			return
		}

		_ = audit.LogWithDetails(userID, "end", "medicine", medicine.ID, nil, getIPAddress(r), r.UserAgent())

		respondJSON(w, http.StatusOK, medicine)
	}
}

// HandleDeleteMedicine removes a medicine. Its history is kept.
func HandleDeleteMedicine(store MedicineStore, audit AuditLogger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := middleware.GetUserID(r.Context())
		if userID == "" {
			respondError(w, http.StatusUnauthorized, "Not authenticated")
			return
		}

		id := chi.URLParam(r, "id")
		if err := store.Delete(r.Context(), userID, id); err != nil {
			respondStoreError(w, err, "Failed to delete medicine")
			return
		}

		_ = audit.LogWithDetails(userID, "delete", "medicine", id, nil, getIPAddress(r), r.UserAgent())

		w.WriteHeader(http.StatusNoContent)
	}
}

func trimTimes(times []string) []string {
	out := make([]string, 0, len(times))
	for _, t := range times {
		out = append(out, strings.TrimSpace(t))
	}
	return out
}

// respondStoreError maps ErrNotFound to 404 and everything else to 500
func respondStoreError(w http.ResponseWriter, err error, message string) {
	if errors.Is(err, repository.ErrNotFound) {
		respondError(w, http.StatusNotFound, "Medicine not found")
		return
	}
	log.Printf("%s: %v", message, err)
	respondError(w, http.StatusInternalServerError, message)
}
