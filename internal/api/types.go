package api

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/scoliocare/clinic-backend/internal/appointment"
	"github.com/scoliocare/clinic-backend/internal/videocall"
)

var validate = validator.New()

type ScheduleAppointmentRequest struct {
	PatientID           string  `json:"patientId" validate:"required,uuid"`
	AppointmentDateTime string  `json:"appointmentDateTime" validate:"required"`
	DurationInMinutes   int     `json:"durationInMinutes" validate:"required,gt=0,lte=1440"`
	Type                string  `json:"type" validate:"required"`
	Notes               *string `json:"notes,omitempty"`
}

type UpdateAppointmentRequest struct {
	AppointmentDateTime *string `json:"appointmentDateTime,omitempty"`
	DurationInMinutes   *int    `json:"durationInMinutes,omitempty" validate:"omitempty,gt=0,lte=1440"`
	Type                *string `json:"type,omitempty"`
	Notes               *string `json:"notes,omitempty"`
}

type RespondToAppointmentRequest struct {
	Accepted *bool   `json:"accepted" validate:"required"`
	Message  *string `json:"message,omitempty"`
}

type UpdateNotesRequest struct {
	Notes string `json:"notes" validate:"required,max=2000"`
}

type AppointmentResponse struct {
	ID                  uuid.UUID `json:"id"`
	PractitionerID      uuid.UUID `json:"practitionerId"`
	PatientID           uuid.UUID `json:"patientId"`
	AppointmentDateTime time.Time `json:"appointmentDateTime"`
	DurationInMinutes   int       `json:"durationInMinutes"`
	Type                string    `json:"type"`
	Status              string    `json:"status"`
	Notes               *string   `json:"notes,omitempty"`
	ResponseMessage     *string   `json:"responseMessage,omitempty"`
}

func toAppointmentResponse(a *appointment.Appointment) AppointmentResponse {
	return AppointmentResponse{
		ID:                  a.ID,
		PractitionerID:      a.PractitionerID,
		PatientID:           a.PatientID,
		AppointmentDateTime: a.DateTime,
		DurationInMinutes:   a.DurationMinutes,
		Type:                string(a.Type),
		Status:              string(a.Status),
		Notes:               a.Notes,
		ResponseMessage:     a.ResponseMessage,
	}
}

type PersonSummary struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
}

type AppointmentDetailResponse struct {
	AppointmentResponse
	Patient      PersonSummary `json:"patient"`
	Practitioner PersonSummary `json:"practitioner"`
}

func toAppointmentDetailResponse(d *appointment.AppointmentDetail) AppointmentDetailResponse {
	return AppointmentDetailResponse{
		AppointmentResponse: toAppointmentResponse(&d.Appointment),
		Patient:             PersonSummary{FirstName: d.Patient.FirstName, LastName: d.Patient.LastName},
		Practitioner:        PersonSummary{FirstName: d.Practitioner.FirstName, LastName: d.Practitioner.LastName},
	}
}

type PageMeta struct {
	TotalCount  int `json:"totalCount"`
	CurrentPage int `json:"currentPage"`
	PageSize    int `json:"pageSize"`
	TotalPages  int `json:"totalPages"`
}

type AppointmentPageResponse struct {
	Data []AppointmentDetailResponse `json:"data"`
	Meta PageMeta                    `json:"meta"`
}

type AvailabilityResponse struct {
	IsAvailable bool `json:"isAvailable"`
}

type DatesResponse struct {
	Dates []string `json:"dates"`
}

type CreateRoomResponse struct {
	RoomID string `json:"roomId"`
}

type RoomPersonResponse struct {
	ID        uuid.UUID `json:"id"`
	FirstName string    `json:"firstName"`
	LastName  string    `json:"lastName"`
}

type RoomAppointmentResponse struct {
	ID            uuid.UUID          `json:"id"`
	ScheduledDate time.Time          `json:"scheduledDate"`
	Patient       RoomPersonResponse `json:"patient"`
	Practitioner  RoomPersonResponse `json:"practitioner"`
}

type RoomResponse struct {
	ID                 uuid.UUID               `json:"id"`
	RoomID             string                  `json:"roomId"`
	AppointmentID      uuid.UUID               `json:"appointmentId"`
	Status             string                  `json:"status"`
	PractitionerJoined bool                    `json:"practitionerJoined"`
	PatientJoined      bool                    `json:"patientJoined"`
	StartedAt          *time.Time              `json:"startedAt"`
	EndedAt            *time.Time              `json:"endedAt"`
	Appointment        RoomAppointmentResponse `json:"appointment"`
}

func toRoomResponse(d *videocall.RoomDetail) RoomResponse {
	return RoomResponse{
		ID:                 d.ID,
		RoomID:             d.RoomID,
		AppointmentID:      d.AppointmentID,
		Status:             string(d.Status),
		PractitionerJoined: d.PractitionerJoined,
		PatientJoined:      d.PatientJoined,
		StartedAt:          d.StartedAt,
		EndedAt:            d.EndedAt,
		Appointment: RoomAppointmentResponse{
			ID:            d.AppointmentID,
			ScheduledDate: d.ScheduledAt,
			Patient:       RoomPersonResponse{ID: d.Patient.ID, FirstName: d.Patient.FirstName, LastName: d.Patient.LastName},
			Practitioner:  RoomPersonResponse{ID: d.Practitioner.ID, FirstName: d.Practitioner.FirstName, LastName: d.Practitioner.LastName},
		},
	}
}
