package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/scoliocare/clinic-backend/internal/videocall"
)

func getRoomHandler(svc VideoCallService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, _ := IdentityFrom(r.Context())

		appointmentID, err := uuid.Parse(chi.URLParam(r, "appointmentID"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_appointment_id", "appointmentId must be a valid UUID")
			return
		}

		detail, err := svc.GetRoomByAppointmentID(r.Context(), appointmentID, id.UserID)
		if err != nil {
			handleVideoCallError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toRoomResponse(detail))
	}
}

func createRoomHandler(svc VideoCallService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		appointmentID, err := uuid.Parse(chi.URLParam(r, "appointmentID"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_appointment_id", "appointmentId must be a valid UUID")
			return
		}

		roomID, err := svc.CreateRoomForAppointment(r.Context(), appointmentID)
		if err != nil {
			handleVideoCallError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, CreateRoomResponse{RoomID: roomID})
	}
}

func handleVideoCallError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, videocall.ErrRoomNotFound):
		writeError(w, http.StatusNotFound, "room_not_found", err.Error())
	case errors.Is(err, videocall.ErrAppointmentNotFound):
		writeError(w, http.StatusNotFound, "appointment_not_found", err.Error())
	case errors.Is(err, videocall.ErrNotParticipant):
		writeError(w, http.StatusForbidden, "not_a_participant", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}
