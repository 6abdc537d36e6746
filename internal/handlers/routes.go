package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"medminder/internal/auth"
	"medminder/internal/clock"
	"medminder/internal/database"
	"medminder/internal/intake"
	"medminder/internal/middleware"
)

// Routes holds everything the API route table needs
type Routes struct {
	DB        *database.DB
	JWT       *auth.JWTManager
	Medicines MedicineStore
	Intakes   DayLister
	Recorder  *intake.Recorder
	Audit     AuditLogger
	Clock     clock.Clock

	// Optional; nil leaves the routes unlimited
	RateLimit  func(http.Handler) http.Handler
	LoginLimit func(http.Handler) http.Handler
}

// Mount registers /health and the /api tree on r.
func (rt Routes) Mount(r chi.Router) {
	requireAuth := middleware.NewAuthMiddleware(rt.JWT).RequireAuth
	limit := passthrough(rt.RateLimit)
	loginLimit := passthrough(rt.LoginLimit)

	r.With(limit).Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	r.Route("/api", func(r chi.Router) {
		r.Use(limit)

		r.Route("/auth", func(r chi.Router) {
			r.With(loginLimit).Post("/login", HandleLogin(rt.DB, rt.JWT))
			r.With(loginLimit).Post("/register", HandleRegister(rt.DB))
			// Expired tokens are accepted here within the refresh grace period
			r.Post("/refresh", HandleRefreshToken(rt.DB, rt.JWT))

			r.Group(func(r chi.Router) {
				r.Use(requireAuth)
				r.Get("/me", HandleGetCurrentUser(rt.DB))
				r.Get("/activity", HandleGetActivity(rt.DB))
				r.Post("/logout", HandleLogout(rt.DB))
			})
		})

		r.Group(func(r chi.Router) {
			r.Use(requireAuth)

			r.Route("/medicines", func(r chi.Router) {
				r.Get("/", HandleListMedicines(rt.Medicines))
				r.Post("/", HandleCreateMedicine(rt.Medicines, rt.Audit))
				r.Get("/{id}", HandleGetMedicine(rt.Medicines))
				r.Put("/{id}", HandleUpdateMedicine(rt.Medicines, rt.Audit))
				r.Delete("/{id}", HandleDeleteMedicine(rt.Medicines, rt.Audit))
				r.Post("/{id}/end", HandleEndMedicine(rt.Medicines, rt.Audit))
			})

			r.Get("/schedule/today", HandleTodaySchedule(rt.Medicines, rt.Intakes, rt.Clock))
			r.Get("/schedule/next", HandleNextDose(rt.Medicines, rt.Clock))
			r.Get("/schedule/calendar.ics", HandleCalendar(rt.Medicines, rt.Clock))

			r.Post("/intake", HandleRecordIntake(rt.Recorder))
			r.Get("/history", HandleHistory(rt.Recorder))
			r.Get("/stats", HandleStats(rt.Recorder))

			r.Get("/export/csv", HandleExportCSV(rt.Recorder, rt.Clock))
			r.Get("/export/pdf", HandleExportPDF(rt.Recorder, rt.Clock))
		})
	})
}

func passthrough(mw func(http.Handler) http.Handler) func(http.Handler) http.Handler {
	if mw == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	return mw
}
