package handlers

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"medminder/internal/auth"
	"medminder/internal/database"
	"medminder/internal/middleware"
	"medminder/internal/models"
	"medminder/internal/repository"
)

const (
	MaxFailedAttempts   = 5
	LockoutDurationMins = 15
)

// LoginRequest represents the login request payload
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// RegisterRequest represents the registration request payload
type RegisterRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Email    string `json:"email,omitempty"`
}

// AuthResponse represents the authentication response
type AuthResponse struct {
	Success bool          `json:"success"`
	Message string        `json:"message,omitempty"`
	User    *UserResponse `json:"user,omitempty"`
	Token   string        `json:"token,omitempty"`
}

// UserResponse represents user data in responses
type UserResponse struct {
	ID        string `json:"id"`
	Username  string `json:"username"`
	Email     string `json:"email,omitempty"`
	CreatedAt string `json:"created_at"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// ActivityResponse is one audit entry as shown to its owner
type ActivityResponse struct {
	Action    string `json:"action"`
	IPAddress string `json:"ip_address,omitempty"`
	UserAgent string `json:"user_agent,omitempty"`
	Timestamp string `json:"timestamp"`
}

func newUserResponse(user *models.User) *UserResponse {
	return &UserResponse{
		ID:        user.ID,
		Username:  user.Username,
		Email:     user.Email.String,
		CreatedAt: user.CreatedAt.Format(time.RFC3339),
	}
}

// HandleLogin handles user login with account lockout protection
func HandleLogin(db *database.DB, jwtManager *auth.JWTManager) http.HandlerFunc {
	userRepo := repository.NewUserRepository(db)
	auditRepo := repository.NewAuditRepository(db)

	return func(w http.ResponseWriter, r *http.Request) {
		var req LoginRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, http.StatusBadRequest, "Invalid request body")
			return
		}

		if req.Username == "" || req.Password == "" {
			respondError(w, http.StatusBadRequest, "Username and password are required")
			return
		}

		ipAddress := getIPAddress(r)
		userAgent := r.Header.Get("User-Agent")

		user, err := userRepo.GetByUsername(req.Username)
		if errors.Is(err, repository.ErrNotFound) {
			// Same response as a wrong password so usernames cannot be probed
			_ = auditRepo.LogWithDetails("", "login_failed", "user", "",
				map[string]interface{}{"reason": "user_not_found", "username": req.Username},
				ipAddress, userAgent)
			respondError(w, http.StatusUnauthorized, "Invalid username or password")
			return
		}
		if err != nil {
			respondError(w, http.StatusInternalServerError, "An error occurred")
			return
		}

		if !user.IsActive {
			_ = auditRepo.LogWithDetails(user.ID, "login_failed", "user", user.ID,
				map[string]interface{}{"reason": "account_inactive"}, ipAddress, userAgent)
			respondError(w, http.StatusForbidden, "Account is inactive")
			return
		}

		isLocked, err := userRepo.IsAccountLocked(user.ID)
		if err != nil {
			respondError(w, http.StatusInternalServerError, "An error occurred")
			return
		}
		if isLocked {
			_ = auditRepo.LogWithDetails(user.ID, "login_failed", "user", user.ID,
				map[string]interface{}{"reason": "account_locked"}, ipAddress, userAgent)
			respondError(w, http.StatusForbidden, fmt.Sprintf("Account is locked due to too many failed login attempts. Please try again in %d minutes.", LockoutDurationMins))
			return
		}

		if err := auth.VerifyPassword(user.PasswordHash, req.Password); err != nil {
			if err := userRepo.IncrementFailedLogins(user.ID); err != nil {
				log.Printf("Error incrementing failed logins: %v", err)
			}

			user.FailedLoginAttempts++
			if user.FailedLoginAttempts >= MaxFailedAttempts {
				lockUntil := time.Now().Add(LockoutDurationMins * time.Minute)
				if err := userRepo.LockAccount(user.ID, lockUntil); err != nil {
					log.Printf("Error locking account: %v", err)
				}

				_ = auditRepo.LogWithDetails(user.ID, "account_locked", "user", user.ID,
					map[string]interface{}{"reason": "max_failed_attempts", "attempts": user.FailedLoginAttempts},
					ipAddress, userAgent)

				respondError(w, http.StatusForbidden, fmt.Sprintf("Account locked due to too many failed login attempts. Please try again in %d minutes.", LockoutDurationMins))
				return
			}

			_ = auditRepo.LogWithDetails(user.ID, "login_failed", "user", user.ID,
				map[string]interface{}{"reason": "invalid_password", "attempts": user.FailedLoginAttempts},
				ipAddress, userAgent)

			respondError(w, http.StatusUnauthorized, "Invalid username or password")
			return
		}

		if err := userRepo.ResetFailedLogins(user.ID); err != nil {
			log.Printf("Error resetting failed logins: %v", err)
		}
		if err := userRepo.UpdateLastLogin(user.ID); err != nil {
			log.Printf("Error updating last login: %v", err)
		}

		token, err := jwtManager.GenerateToken(user.ID, user.Username)
		if err != nil {
			respondError(w, http.StatusInternalServerError, "Failed to generate authentication token")
			return
		}

		setAuthCookie(w, token, int(jwtManager.SessionDuration().Seconds()))

		_ = auditRepo.LogWithDetails(user.ID, "login_success", "user", user.ID, nil, ipAddress, userAgent)

		respondJSON(w, http.StatusOK, AuthResponse{
			Success: true,
			Message: "Login successful",
			User:    newUserResponse(user),
			Token:   token,
		})
	}
}

// HandleRegister handles user registration
func HandleRegister(db *database.DB) http.HandlerFunc {
	userRepo := repository.NewUserRepository(db)
	auditRepo := repository.NewAuditRepository(db)

	return func(w http.ResponseWriter, r *http.Request) {
		var req RegisterRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, http.StatusBadRequest, "Invalid request body")
			return
		}

		ipAddress := getIPAddress(r)
		userAgent := r.Header.Get("User-Agent")

		req.Username = strings.TrimSpace(req.Username)
		req.Email = strings.TrimSpace(req.Email)

		if req.Username == "" || req.Password == "" {
			respondError(w, http.StatusBadRequest, "Username and password are required")
			return
		}

		// Validate username length (matches DB constraint)
		if len(req.Username) < 3 || len(req.Username) > 50 {
			respondError(w, http.StatusBadRequest, "Username must be between 3 and 50 characters")
			return
		}

		if req.Email != "" && !strings.Contains(req.Email, "@") {
			respondError(w, http.StatusBadRequest, "Invalid email format")
			return
		}

		if err := auth.ValidatePassword(req.Username, req.Password); err != nil {
			respondError(w, http.StatusBadRequest, auth.PasswordMessage(err))
			return
		}

		hashedPassword, err := auth.HashPassword(req.Password)
		if err != nil {
			respondError(w, http.StatusInternalServerError, "Failed to process password")
			return
		}

		existingUser, err := userRepo.GetByUsername(req.Username)
		if err == nil && existingUser != nil {
			_ = auditRepo.LogWithDetails("", "registration_failed", "user", "",
				map[string]interface{}{"reason": "username_taken", "username": req.Username},
				ipAddress, userAgent)
			respondError(w, http.StatusConflict, "Username already exists")
			return
		}
		if err != nil && !errors.Is(err, repository.ErrNotFound) {
			respondError(w, http.StatusInternalServerError, "An error occurred")
			return
		}

		user := &models.User{
			Username:     req.Username,
			PasswordHash: hashedPassword,
			IsActive:     true,
		}
		if req.Email != "" {
			user.Email = sql.NullString{String: req.Email, Valid: true}
		}

		if err := userRepo.Create(user); err != nil {
			// Lost a race with a concurrent registration
			if strings.Contains(err.Error(), "UNIQUE") {
				respondError(w, http.StatusConflict, "Username already exists")
				return
			}
			respondError(w, http.StatusInternalServerError, "Failed to create user")
			return
		}

		_ = auditRepo.LogWithDetails(user.ID, "registration_success", "user", user.ID,
			map[string]interface{}{"username": user.Username}, ipAddress, userAgent)

		respondJSON(w, http.StatusCreated, AuthResponse{
			Success: true,
			Message: "Registration successful",
			User:    newUserResponse(user),
		})
	}
}

// HandleLogout handles user logout
func HandleLogout(db *database.DB) http.HandlerFunc {
	auditRepo := repository.NewAuditRepository(db)

	return func(w http.ResponseWriter, r *http.Request) {
		if userCtx := middleware.GetUserContext(r); userCtx != nil {
			_ = auditRepo.LogWithDetails(userCtx.UserID, "logout", "user", userCtx.UserID, nil,
				getIPAddress(r), r.Header.Get("User-Agent"))
		}

		setAuthCookie(w, "", -1)

		respondJSON(w, http.StatusOK, map[string]interface{}{
			"success": true,
			"message": "Logout successful",
		})
	}
}

// HandleGetCurrentUser returns the current authenticated user's information
func HandleGetCurrentUser(db *database.DB) http.HandlerFunc {
	userRepo := repository.NewUserRepository(db)

	return func(w http.ResponseWriter, r *http.Request) {
		userCtx := middleware.GetUserContext(r)
		if userCtx == nil {
			respondError(w, http.StatusUnauthorized, "Not authenticated")
			return
		}

		user, err := userRepo.GetByID(userCtx.UserID)
		if errors.Is(err, repository.ErrNotFound) {
			respondError(w, http.StatusNotFound, "User not found")
			return
		}
		if err != nil {
			respondError(w, http.StatusInternalServerError, "Failed to retrieve user information")
			return
		}

		if !user.IsActive {
			respondError(w, http.StatusForbidden, "Account is inactive")
			return
		}

		respondJSON(w, http.StatusOK, newUserResponse(user))
	}
}

// HandleRefreshToken generates a new JWT token from an existing (possibly expired) token
func HandleRefreshToken(db *database.DB, jwtManager *auth.JWTManager) http.HandlerFunc {
	userRepo := repository.NewUserRepository(db)
	auditRepo := repository.NewAuditRepository(db)

	return func(w http.ResponseWriter, r *http.Request) {
		ipAddress := getIPAddress(r)
		userAgent := r.Header.Get("User-Agent")

		token := middleware.GetToken(r)
		if token == "" {
			respondError(w, http.StatusUnauthorized, "No token provided")
			return
		}

		// Works even if the token is expired, within the refresh grace period
		newToken, err := jwtManager.RefreshToken(token)
		if err != nil {
			_ = auditRepo.LogWithDetails("", "token_refresh_failed", "token", "",
				map[string]interface{}{"reason": err.Error()}, ipAddress, userAgent)
			respondError(w, http.StatusUnauthorized, "Invalid or expired token")
			return
		}

		claims, err := jwtManager.ValidateToken(newToken)
		if err != nil {
			respondError(w, http.StatusInternalServerError, "Failed to validate new token")
			return
		}

		user, err := userRepo.GetByID(claims.UserID)
		if errors.Is(err, repository.ErrNotFound) {
			respondError(w, http.StatusUnauthorized, "User not found")
			return
		}
		if err != nil {
			respondError(w, http.StatusInternalServerError, "Failed to verify user")
			return
		}

		if !user.IsActive {
			respondError(w, http.StatusForbidden, "Account is inactive")
			return
		}

		isLocked, err := userRepo.IsAccountLocked(user.ID)
		if err != nil {
			respondError(w, http.StatusInternalServerError, "An error occurred")
			return
		}
		if isLocked {
			respondError(w, http.StatusForbidden, "Account is locked")
			return
		}

		setAuthCookie(w, newToken, int(jwtManager.SessionDuration().Seconds()))

		_ = auditRepo.LogWithDetails(user.ID, "token_refreshed", "token", user.ID, nil, ipAddress, userAgent)

		respondJSON(w, http.StatusOK, AuthResponse{
			Success: true,
			Message: "Token refreshed successfully",
			Token:   newToken,
		})
	}
}

// HandleGetActivity lists the caller's own audit trail, newest first
func HandleGetActivity(db *database.DB) http.HandlerFunc {
	auditRepo := repository.NewAuditRepository(db)

	return func(w http.ResponseWriter, r *http.Request) {
		userID := middleware.GetUserID(r.Context())
		if userID == "" {
			respondError(w, http.StatusUnauthorized, "Not authenticated")
			return
		}

		limit := 50
		if s := r.URL.Query().Get("limit"); s != "" {
			n, err := strconv.Atoi(s)
			if err != nil || n <= 0 || n > 500 {
				respondError(w, http.StatusBadRequest, "limit must be between 1 and 500")
				return
			}
			limit = n
		}

		logs, err := auditRepo.GetByUser(userID, limit, 0)
		if err != nil {
			respondError(w, http.StatusInternalServerError, "Failed to retrieve activity")
			return
		}

		out := make([]ActivityResponse, 0, len(logs))
		for _, l := range logs {
			out = append(out, ActivityResponse{
				Action:    l.Action,
				IPAddress: l.IPAddress.String,
				UserAgent: l.UserAgent.String,
				Timestamp: l.Timestamp.Format(time.RFC3339),
			})
		}
		respondJSON(w, http.StatusOK, out)
	}
}

// Helper functions

func setAuthCookie(w http.ResponseWriter, token string, maxAge int) {
	http.SetCookie(w, &http.Cookie{
		Name:     "auth_token",
		Value:    token,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteStrictMode,
	})
}

// getIPAddress extracts the client IP address from the request
func getIPAddress(r *http.Request) string {
	// Check X-Forwarded-For header first (for proxies)
	ip := r.Header.Get("X-Forwarded-For")
	if ip != "" {
		// X-Forwarded-For can contain multiple IPs, take the first one
		parts := strings.Split(ip, ",")
		return strings.TrimSpace(parts[0])
	}

	ip = r.Header.Get("X-Real-IP")
	if ip != "" {
		return ip
	}

	// RemoteAddr includes port, strip it
	ip = r.RemoteAddr
	if idx := strings.LastIndex(ip, ":"); idx != -1 {
		ip = ip[:idx]
	}

	return ip
}

// respondJSON sends a JSON response
func respondJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("Error encoding JSON response: %v", err)
	}
}

// respondError sends an error response
func respondError(w http.ResponseWriter, statusCode int, message string) {
	respondJSON(w, statusCode, ErrorResponse{
		Error:   http.StatusText(statusCode),
		Message: message,
	})
}
