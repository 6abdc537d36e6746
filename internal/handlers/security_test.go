package handlers

import (
	"net/http"
	"strings"
	"testing"
	"time"

	"medminder/internal/auth"
	"medminder/internal/models"
)

func TestSecurity_SQLInjectionPrevention(t *testing.T) {
	s := newTestServer(t)
	token := s.login(t, "alice")

	maliciousInputs := []string{
		"admin' OR '1'='1",
		"admin'--",
		"admin'; DROP TABLE users;--",
		"' OR 1=1--",
		"admin' UNION SELECT * FROM users--",
	}

	for _, input := range maliciousInputs {
		t.Run("login: "+input, func(t *testing.T) {
			rr := s.do(t, http.MethodPost, "/api/auth/login", "", LoginRequest{Username: input, Password: "password"})
			if rr.Code != http.StatusUnauthorized && rr.Code != http.StatusBadRequest {
				t.Errorf("Expected 401 or 400, got %d", rr.Code)
			}

			body := strings.ToLower(rr.Body.String())
			for _, keyword := range []string{"sql", "syntax", "sqlite", "query"} {
				if strings.Contains(body, keyword) {
					t.Errorf("Response contains %q: %s", keyword, rr.Body.String())
				}
			}
		})
	}

	// Stored verbatim, and filters stay parameterised
	med := s.createMedicine(t, token, "x'); DROP TABLE medicines;--", "08:00")
	rr := s.do(t, http.MethodGet, "/api/medicines/"+med.ID, token, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rr.Code)
	}
	var got models.Medicine
	decode(t, rr, &got)
	if got.Name != "x'); DROP TABLE medicines;--" {
		t.Errorf("Name not stored verbatim: %q", got.Name)
	}

	if rr := s.do(t, http.MethodGet, "/api/history?status=taken'%20OR%20'1'='1", token, nil); rr.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for bad status filter, got %d", rr.Code)
	}

	var count int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM users").Scan(&count); err != nil || count != 1 {
		t.Errorf("Database integrity compromised: count=%d err=%v", count, err)
	}
}

func TestSecurity_XSSPrevention(t *testing.T) {
	s := newTestServer(t)
	token := s.login(t, "alice")

	payloads := []string{
		"<script>alert('XSS')</script>",
		"<img src=x onerror=alert('XSS')>",
		"\"><svg/onload=alert(1)>",
	}

	for _, payload := range payloads {
		t.Run(payload, func(t *testing.T) {
			rr := s.do(t, http.MethodPost, "/api/medicines", token, CreateMedicineRequest{
				Name: payload, Dosage: "1-0-1", Schedule: []string{"08:00"},
			})
			if rr.Code != http.StatusCreated {
				t.Fatalf("Expected 201, got %d", rr.Code)
			}
			if strings.Contains(rr.Body.String(), "<") {
				t.Errorf("Response contains unescaped markup: %s", rr.Body.String())
			}
			if ct := rr.Header().Get("Content-Type"); !strings.HasPrefix(ct, "application/json") {
				t.Errorf("Expected JSON content type, got %q", ct)
			}
		})
	}
}

func TestSecurity_JWTValidation(t *testing.T) {
	s := newTestServer(t)
	token := s.login(t, "alice")

	forged, err := auth.NewJWTManager("some-other-secret", time.Hour).GenerateToken("u1", "alice")
	if err != nil {
		t.Fatalf("Failed to generate token: %v", err)
	}

	tests := []struct {
		name  string
		token string
	}{
		{"tampered token", token[:len(token)-5] + "XXXXX"},
		{"wrong secret", forged},
		{"garbage", "not-a-jwt"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if rr := s.do(t, http.MethodGet, "/api/medicines", tt.token, nil); rr.Code != http.StatusUnauthorized {
				t.Errorf("Expected 401, got %d", rr.Code)
			}
		})
	}
}

func TestSecurity_IntakeUserCannotBeSpoofed(t *testing.T) {
	s := newTestServer(t)
	alice := s.login(t, "alice")
	bob := s.login(t, "bob")
	med := s.createMedicine(t, alice, "Amoxicillin", "08:00")

	// bob claims to be someone else in the body
	rr := s.do(t, http.MethodPost, "/api/intake", bob, map[string]string{
		"userId": "alice-id", "medicineId": med.ID, "medicineName": med.Name, "scheduledAt": "08:00", "status": "taken",
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d: %s", rr.Code, rr.Body.String())
	}

	var stats models.UserStats
	decode(t, s.do(t, http.MethodGet, "/api/stats", alice, nil), &stats)
	if stats.Points != 0 {
		t.Errorf("Alice should have no points, got %d", stats.Points)
	}
	decode(t, s.do(t, http.MethodGet, "/api/stats", bob, nil), &stats)
	if stats.Points != 10 {
		t.Errorf("Bob should have 10 points, got %d", stats.Points)
	}
}

func TestSecurity_SessionCookie(t *testing.T) {
	s := newTestServer(t)
	s.login(t, "alice")

	rr := s.do(t, http.MethodPost, "/api/auth/login", "", LoginRequest{Username: "alice", Password: "correct-horse"})
	if rr.Code != http.StatusOK {
		t.Fatalf("Login failed: %d", rr.Code)
	}

	var authCookie *http.Cookie
	for _, c := range rr.Result().Cookies() {
		if c.Name == "auth_token" {
			authCookie = c
		}
	}
	if authCookie == nil {
		t.Fatal("Auth cookie not set")
	}
	if !authCookie.HttpOnly || !authCookie.Secure || authCookie.SameSite != http.SameSiteStrictMode {
		t.Errorf("Insecure cookie attributes: %+v", authCookie)
	}
}

func TestSecurity_NoInformationLeakage(t *testing.T) {
	s := newTestServer(t)
	s.login(t, "alice")

	unknown := s.do(t, http.MethodPost, "/api/auth/login", "", LoginRequest{Username: "nobody", Password: "password123"})
	wrong := s.do(t, http.MethodPost, "/api/auth/login", "", LoginRequest{Username: "alice", Password: "password123"})

	if unknown.Code != wrong.Code {
		t.Errorf("Status codes differ: %d vs %d", unknown.Code, wrong.Code)
	}
	if unknown.Body.String() != wrong.Body.String() {
		t.Errorf("Bodies differ: %q vs %q", unknown.Body.String(), wrong.Body.String())
	}
}
