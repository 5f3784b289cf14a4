package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/scoliocare/clinic-backend/internal/appointment"
)

func checkAvailabilityHandler(svc AppointmentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, _ := IdentityFrom(r.Context())

		dateTime, err := time.Parse(time.RFC3339, r.URL.Query().Get("dateTime"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_date_time", "dateTime must be an RFC 3339 timestamp")
			return
		}

		duration, err := strconv.Atoi(r.URL.Query().Get("durationInMinutes"))
		if err != nil || duration <= 0 || duration > 1440 {
			writeError(w, http.StatusBadRequest, "invalid_duration", "durationInMinutes must be between 1 and 1440")
			return
		}

		available, err := svc.CheckAvailability(r.Context(), id.UserID, dateTime, duration)
		if err != nil {
			handleAppointmentError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, AvailabilityResponse{IsAvailable: available})
	}
}

func scheduleAppointmentHandler(svc AppointmentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, _ := IdentityFrom(r.Context())

		var req ScheduleAppointmentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}
		if err := validate.Struct(req); err != nil {
			writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
			return
		}

		patientID, err := uuid.Parse(req.PatientID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_patient_id", "patientId must be a valid UUID")
			return
		}

		dateTime, err := time.Parse(time.RFC3339, req.AppointmentDateTime)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_date_time", "appointmentDateTime must be an RFC 3339 timestamp")
			return
		}

		typ := appointment.Type(req.Type)
		if !appointment.ValidType(typ) {
			writeError(w, http.StatusBadRequest, "invalid_type", "unknown appointment type")
			return
		}

		appt, err := svc.CreateAppointment(r.Context(), id.UserID, appointment.CreateInput{
			PatientID:       patientID,
			DateTime:        dateTime,
			DurationMinutes: req.DurationInMinutes,
			Type:            typ,
			Notes:           req.Notes,
		})
		if err != nil {
			handleAppointmentError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, toAppointmentResponse(appt))
	}
}

func listAppointmentsHandler(svc AppointmentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, _ := IdentityFrom(r.Context())
		q := r.URL.Query()

		filter := appointment.ListFilter{
			Page:     intQuery(q.Get("page"), 1),
			PageSize: intQuery(q.Get("pageSize"), 10),
			SortDesc: q.Get("sortOrder") == "desc",
		}

		switch id.Role {
		case RolePractitioner:
			me := id.UserID
			filter.PractitionerID = &me
			if raw := q.Get("patientId"); raw != "" {
				pid, err := uuid.Parse(raw)
				if err != nil {
					writeError(w, http.StatusBadRequest, "invalid_patient_id", "patientId must be a valid UUID")
					return
				}
				filter.PatientID = &pid
			}
		case RolePatient:
			me := id.UserID
			filter.PatientID = &me
		}

		if raw := q.Get("startDate"); raw != "" {
			from, err := time.Parse("2006-01-02", raw)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_start_date", "startDate must be YYYY-MM-DD")
				return
			}
			filter.From = &from
		}
		if raw := q.Get("endDate"); raw != "" {
			day, err := time.Parse("2006-01-02", raw)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_end_date", "endDate must be YYYY-MM-DD")
				return
			}
			to := day.AddDate(0, 0, 1)
			filter.To = &to
		}

		page, err := svc.GetAppointments(r.Context(), filter)
		if err != nil {
			handleAppointmentError(w, err)
			return
		}

		resp := AppointmentPageResponse{
			Data: make([]AppointmentDetailResponse, 0, len(page.Data)),
			Meta: PageMeta{
				TotalCount:  page.TotalCount,
				CurrentPage: page.CurrentPage,
				PageSize:    page.PageSize,
				TotalPages:  page.TotalPages,
			},
		}
		for i := range page.Data {
			resp.Data = append(resp.Data, toAppointmentDetailResponse(&page.Data[i]))
		}

		writeJSON(w, http.StatusOK, resp)
	}
}

func appointmentDatesHandler(svc AppointmentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, _ := IdentityFrom(r.Context())
		q := r.URL.Query()

		start, err := time.Parse("2006-01-02", q.Get("start"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_start", "start must be YYYY-MM-DD")
			return
		}
		endDay, err := time.Parse("2006-01-02", q.Get("end"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_end", "end must be YYYY-MM-DD")
			return
		}
		end := endDay.AddDate(0, 0, 1)

		var filter appointment.ListFilter
		me := id.UserID
		if id.Role == RolePractitioner {
			filter.PractitionerID = &me
		} else {
			filter.PatientID = &me
		}

		days, err := svc.GetAppointmentDates(r.Context(), filter, start, end)
		if err != nil {
			handleAppointmentError(w, err)
			return
		}

		resp := DatesResponse{Dates: make([]string, 0, len(days))}
		for _, d := range days {
			resp.Dates = append(resp.Dates, d.Format("2006-01-02"))
		}

		writeJSON(w, http.StatusOK, resp)
	}
}

func getAppointmentHandler(svc AppointmentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, _ := IdentityFrom(r.Context())

		appointmentID, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_appointment_id", "id must be a valid UUID")
			return
		}

		detail, err := svc.GetAppointmentDetails(r.Context(), id.UserID, appointmentID)
		if err != nil {
			handleAppointmentError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentDetailResponse(detail))
	}
}

func updateAppointmentHandler(svc AppointmentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, _ := IdentityFrom(r.Context())

		appointmentID, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_appointment_id", "id must be a valid UUID")
			return
		}

		var req UpdateAppointmentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}
		if err := validate.Struct(req); err != nil {
			writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
			return
		}

		var patch appointment.UpdatePatch
		if req.AppointmentDateTime != nil {
			dateTime, err := time.Parse(time.RFC3339, *req.AppointmentDateTime)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_date_time", "appointmentDateTime must be an RFC 3339 timestamp")
				return
			}
			patch.DateTime = &dateTime
		}
		patch.DurationMinutes = req.DurationInMinutes
		if req.Type != nil {
			typ := appointment.Type(*req.Type)
			if !appointment.ValidType(typ) {
				writeError(w, http.StatusBadRequest, "invalid_type", "unknown appointment type")
				return
			}
			patch.Type = &typ
		}
		patch.Notes = req.Notes

		appt, err := svc.UpdateAppointment(r.Context(), id.UserID, appointmentID, patch)
		if err != nil {
			handleAppointmentError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func updateNotesHandler(svc AppointmentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, _ := IdentityFrom(r.Context())

		appointmentID, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_appointment_id", "id must be a valid UUID")
			return
		}

		var req UpdateNotesRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}
		if err := validate.Struct(req); err != nil {
			writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
			return
		}

		appt, err := svc.UpdateNotes(r.Context(), id.UserID, appointmentID, req.Notes)
		if err != nil {
			handleAppointmentError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func respondToAppointmentHandler(svc AppointmentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, _ := IdentityFrom(r.Context())

		appointmentID, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_appointment_id", "id must be a valid UUID")
			return
		}

		var req RespondToAppointmentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}
		if err := validate.Struct(req); err != nil {
			writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
			return
		}

		appt, err := svc.RespondToAppointment(r.Context(), id.UserID, appointmentID, *req.Accepted, req.Message)
		if err != nil {
			handleAppointmentError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func cancelAppointmentHandler(svc AppointmentService) http.HandlerFunc {
	return transitionHandler(func(r *http.Request, svc AppointmentService, callerID, appointmentID uuid.UUID) (*appointment.Appointment, error) {
		return svc.CancelAppointment(r.Context(), callerID, appointmentID)
	}, svc)
}

func completeAppointmentHandler(svc AppointmentService) http.HandlerFunc {
	return transitionHandler(func(r *http.Request, svc AppointmentService, callerID, appointmentID uuid.UUID) (*appointment.Appointment, error) {
		return svc.CompleteAppointment(r.Context(), callerID, appointmentID)
	}, svc)
}

func noShowAppointmentHandler(svc AppointmentService) http.HandlerFunc {
	return transitionHandler(func(r *http.Request, svc AppointmentService, callerID, appointmentID uuid.UUID) (*appointment.Appointment, error) {
		return svc.MarkNoShow(r.Context(), callerID, appointmentID)
	}, svc)
}

func transitionHandler(fn func(r *http.Request, svc AppointmentService, callerID, appointmentID uuid.UUID) (*appointment.Appointment, error), svc AppointmentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, _ := IdentityFrom(r.Context())

		appointmentID, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_appointment_id", "id must be a valid UUID")
			return
		}

		appt, err := fn(r, svc, id.UserID, appointmentID)
		if err != nil {
			handleAppointmentError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func handleAppointmentError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, appointment.ErrPatientNotFound):
		writeError(w, http.StatusNotFound, "patient_not_found", err.Error())
	case errors.Is(err, appointment.ErrAppointmentNotFound):
		writeError(w, http.StatusNotFound, "appointment_not_found", err.Error())
	case errors.Is(err, appointment.ErrSlotConflict):
		writeError(w, http.StatusConflict, "slot_conflict", err.Error())
	case errors.Is(err, appointment.ErrTerminalState):
		writeError(w, http.StatusForbidden, "terminal_state", err.Error())
	case errors.Is(err, appointment.ErrNotPending):
		writeError(w, http.StatusForbidden, "not_pending_confirmation", err.Error())
	case errors.Is(err, appointment.ErrNotScheduled):
		writeError(w, http.StatusForbidden, "not_scheduled", err.Error())
	case errors.Is(err, appointment.ErrInvalidDuration):
		writeError(w, http.StatusBadRequest, "invalid_duration", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}

func intQuery(raw string, def int) int {
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}
