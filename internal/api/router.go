package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/scoliocare/clinic-backend/internal/appointment"
	"github.com/scoliocare/clinic-backend/internal/signaling"
	"github.com/scoliocare/clinic-backend/internal/videocall"
)

// AppointmentService is the lifecycle manager surface the handlers call.
type AppointmentService interface {
	CheckAvailability(ctx context.Context, practitionerID uuid.UUID, dateTime time.Time, durationMinutes int) (bool, error)
	CreateAppointment(ctx context.Context, practitionerID uuid.UUID, in appointment.CreateInput) (*appointment.Appointment, error)
	UpdateAppointment(ctx context.Context, practitionerID, appointmentID uuid.UUID, patch appointment.UpdatePatch) (*appointment.Appointment, error)
	RespondToAppointment(ctx context.Context, patientID, appointmentID uuid.UUID, accepted bool, message *string) (*appointment.Appointment, error)
	CancelAppointment(ctx context.Context, userID, appointmentID uuid.UUID) (*appointment.Appointment, error)
	CompleteAppointment(ctx context.Context, practitionerID, appointmentID uuid.UUID) (*appointment.Appointment, error)
	MarkNoShow(ctx context.Context, practitionerID, appointmentID uuid.UUID) (*appointment.Appointment, error)
	UpdateNotes(ctx context.Context, practitionerID, appointmentID uuid.UUID, notes string) (*appointment.Appointment, error)
	GetAppointments(ctx context.Context, f appointment.ListFilter) (*appointment.Page, error)
	GetAppointmentDates(ctx context.Context, f appointment.ListFilter, start, end time.Time) ([]time.Time, error)
	GetAppointmentDetails(ctx context.Context, callerID, appointmentID uuid.UUID) (*appointment.AppointmentDetail, error)
}

// VideoCallService is the coordinator surface the handlers call.
type VideoCallService interface {
	CreateRoomForAppointment(ctx context.Context, appointmentID uuid.UUID) (string, error)
	GetRoomByAppointmentID(ctx context.Context, appointmentID, userID uuid.UUID) (*videocall.RoomDetail, error)
}

type RouterConfig struct {
	Appointments AppointmentService
	VideoCalls   VideoCallService
	Hub          *signaling.Hub
	PgPool       *pgxpool.Pool
	Redis        *redis.Client
	JWTSecret    string
	Env          string
	Version      string
	Log          zerolog.Logger
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Log))

	// Health endpoints
	health := NewHealthHandler(cfg.PgPool, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	r.Group(func(r chi.Router) {
		r.Use(Authenticator(cfg.JWTSecret))

		r.Route("/appointments", func(r chi.Router) {
			r.Get("/", listAppointmentsHandler(cfg.Appointments))
			r.Get("/dates", appointmentDatesHandler(cfg.Appointments))
			r.Get("/{id}", getAppointmentHandler(cfg.Appointments))
			r.Post("/{id}/cancel", cancelAppointmentHandler(cfg.Appointments))

			r.Group(func(r chi.Router) {
				r.Use(RequireRole(RolePractitioner))
				r.Get("/check-availability", checkAvailabilityHandler(cfg.Appointments))
				r.Post("/schedule", scheduleAppointmentHandler(cfg.Appointments))
				r.Patch("/{id}", updateAppointmentHandler(cfg.Appointments))
				r.Patch("/{id}/notes", updateNotesHandler(cfg.Appointments))
				r.Post("/{id}/complete", completeAppointmentHandler(cfg.Appointments))
				r.Post("/{id}/no-show", noShowAppointmentHandler(cfg.Appointments))
			})

			r.Group(func(r chi.Router) {
				r.Use(RequireRole(RolePatient))
				r.Patch("/{id}/respond", respondToAppointmentHandler(cfg.Appointments))
			})
		})

		r.Route("/video-call", func(r chi.Router) {
			r.Get("/room/appointment/{appointmentID}", getRoomHandler(cfg.VideoCalls))
			r.Post("/room/appointment/{appointmentID}/create", createRoomHandler(cfg.VideoCalls))
			r.Get("/ws", func(w http.ResponseWriter, req *http.Request) {
				id, _ := IdentityFrom(req.Context())
				cfg.Hub.HandleWS(w, req, id.UserID)
			})
		})
	})

	return r
}
