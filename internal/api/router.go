package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/healthlinkr/clinic-booking/internal/booking"
	"github.com/healthlinkr/clinic-booking/internal/catalog"
	"github.com/healthlinkr/clinic-booking/internal/identity"
	"github.com/healthlinkr/clinic-booking/pkg/logging"
)

// Service interfaces consumed by the handlers, satisfied by the booking
// core and mocked in handler tests.

type BookingService interface {
	Book(ctx context.Context, patientID, doctorID uuid.UUID, serviceID *uuid.UUID, slotID uuid.UUID, notes string) (*booking.Appointment, error)
}

type RescheduleService interface {
	Reschedule(ctx context.Context, appointmentID, newSlotID, actingPatientID uuid.UUID) (*booking.Appointment, error)
}

type LedgerService interface {
	Transition(ctx context.Context, id uuid.UUID, target booking.Status, actor identity.Principal, reason string) (*booking.Appointment, error)
	ListByPatient(ctx context.Context, patientID uuid.UUID, status *booking.Status, limit int) ([]booking.Appointment, error)
	ListByDoctor(ctx context.Context, doctorID uuid.UUID, status *booking.Status, limit int) ([]booking.Appointment, error)
}

type SlotService interface {
	ListAvailable(ctx context.Context, doctorID uuid.UUID, after time.Time) ([]booking.ScheduleSlot, error)
	Create(ctx context.Context, doctorID uuid.UUID, start, end time.Time) (*booking.ScheduleSlot, error)
	Disable(ctx context.Context, slotID uuid.UUID) error
	Delete(ctx context.Context, slotID uuid.UUID) error
}

type NotificationService interface {
	ListByUser(ctx context.Context, userID uuid.UUID, limit int) ([]booking.Notification, error)
	MarkRead(ctx context.Context, id uuid.UUID) error
}

type CatalogService interface {
	ListClinics(ctx context.Context) ([]catalog.Clinic, error)
	GetClinicByID(ctx context.Context, id uuid.UUID) (*catalog.Clinic, error)
	ListDoctorsByClinic(ctx context.Context, clinicID uuid.UUID) ([]catalog.Doctor, error)
}

type RouterConfig struct {
	Booking       BookingService
	Reschedule    RescheduleService
	Ledger        LedgerService
	Slots         SlotService
	Notifications NotificationService
	Catalog       CatalogService
	PgPool        *pgxpool.Pool
	Redis         *redis.Client
	Logger        *logging.Logger
	Env           string
	Version       string
	RateLimit     int
	CORSOrigins   []string
}

func NewRouter(cfg RouterConfig) http.Handler {
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = 120
	}
	if len(cfg.CORSOrigins) == 0 {
		cfg.CORSOrigins = []string{"*"}
	}

	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Logger))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-ID", "X-User-ID", "X-User-Role"},
		AllowCredentials: false,
		MaxAge:           300,
	}))
	r.Use(httprate.LimitByIP(cfg.RateLimit, time.Minute))
	r.Use(PrincipalMiddleware)

	// Health endpoints
	health := NewHealthHandler(cfg.PgPool, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	// Catalog browsing
	r.Get("/clinics", listClinicsHandler(cfg.Catalog))
	r.Get("/clinics/{id}", getClinicHandler(cfg.Catalog))
	r.Get("/clinics/{id}/doctors", listClinicDoctorsHandler(cfg.Catalog))

	// Slots
	r.Get("/doctors/{id}/slots", listSlotsHandler(cfg.Slots))
	r.Post("/slots", createSlotHandler(cfg.Slots))
	r.Post("/slots/{id}/disable", disableSlotHandler(cfg.Slots))
	r.Delete("/slots/{id}", deleteSlotHandler(cfg.Slots))

	// Booking and status transitions
	r.Post("/bookings", createBookingHandler(cfg.Booking))
	r.Post("/appointments/{id}/reschedule", rescheduleHandler(cfg.Reschedule))
	r.Post("/appointments/{id}/status", transitionHandler(cfg.Ledger))
	r.Post("/admin/appointments/bulk-status", bulkTransitionHandler(cfg.Ledger))
	r.Get("/patients/{id}/appointments", listAppointmentsHandler(cfg.Ledger, false))
	r.Get("/doctors/{id}/appointments", listAppointmentsHandler(cfg.Ledger, true))

	// Notifications
	r.Get("/users/{id}/notifications", listNotificationsHandler(cfg.Notifications))
	r.Post("/notifications/{id}/read", markNotificationReadHandler(cfg.Notifications))

	return r
}
