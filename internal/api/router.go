package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/kairos-clinic/scheduling/pkg/logging"
)

// RouterConfig holds router configuration.
type RouterConfig struct {
	Handler        *Handler
	Logger         *logging.Logger
	AdminJWTSecret string
	MetricsHandler http.Handler
}

// NewRouter creates a Chi router with all routes configured.
func NewRouter(cfg RouterConfig) http.Handler {
	if cfg.Handler == nil {
		panic("api: handler required")
	}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	if cfg.Logger != nil {
		r.Use(RequestLogger(cfg.Logger))
	}

	r.Get("/health", cfg.Handler.HealthCheck)
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	r.Route("/tools", func(t chi.Router) {
		t.Post("/find_openings", cfg.Handler.FindOpenings)
		t.Post("/upsert_patient", cfg.Handler.UpsertPatient)
		t.Post("/book_appointment", cfg.Handler.BookAppointment)
		t.Post("/cancel_appointment", cfg.Handler.CancelAppointment)
		t.Post("/reschedule_appointment", cfg.Handler.RescheduleAppointment)
		t.Post("/find_patient_appointments_by_phone", cfg.Handler.FindPatientAppointments)
		t.Post("/verify_identity", cfg.Handler.VerifyIdentity)
		t.Post("/request_otp", cfg.Handler.RequestOTP)
	})

	r.Route("/frontdesk", func(fd chi.Router) {
		fd.Use(AdminJWT(cfg.AdminJWTSecret))
		fd.Get("/day_view", cfg.Handler.DayView)
	})

	return r
}
