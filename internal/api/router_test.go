package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scoliocare/clinic-backend/internal/appointment"
	"github.com/scoliocare/clinic-backend/internal/videocall"
)

const testSecret = "test-secret"

// mockAppointmentService routes each method through an optional func field,
// nil fields answer with a zero appointment.
type mockAppointmentService struct {
	checkAvailabilityFunc func(ctx context.Context, practitionerID uuid.UUID, dateTime time.Time, durationMinutes int) (bool, error)
	createFunc            func(ctx context.Context, practitionerID uuid.UUID, in appointment.CreateInput) (*appointment.Appointment, error)
	updateFunc            func(ctx context.Context, practitionerID, appointmentID uuid.UUID, patch appointment.UpdatePatch) (*appointment.Appointment, error)
	respondFunc           func(ctx context.Context, patientID, appointmentID uuid.UUID, accepted bool, message *string) (*appointment.Appointment, error)
	cancelFunc            func(ctx context.Context, userID, appointmentID uuid.UUID) (*appointment.Appointment, error)
}

func (m *mockAppointmentService) CheckAvailability(ctx context.Context, practitionerID uuid.UUID, dateTime time.Time, durationMinutes int) (bool, error) {
	if m.checkAvailabilityFunc != nil {
		return m.checkAvailabilityFunc(ctx, practitionerID, dateTime, durationMinutes)
	}
	return true, nil
}

func (m *mockAppointmentService) CreateAppointment(ctx context.Context, practitionerID uuid.UUID, in appointment.CreateInput) (*appointment.Appointment, error) {
	if m.createFunc != nil {
		return m.createFunc(ctx, practitionerID, in)
	}
	return &appointment.Appointment{ID: uuid.New(), PractitionerID: practitionerID, Status: appointment.StatusPending}, nil
}

func (m *mockAppointmentService) UpdateAppointment(ctx context.Context, practitionerID, appointmentID uuid.UUID, patch appointment.UpdatePatch) (*appointment.Appointment, error) {
	if m.updateFunc != nil {
		return m.updateFunc(ctx, practitionerID, appointmentID, patch)
	}
	return &appointment.Appointment{ID: appointmentID}, nil
}

func (m *mockAppointmentService) RespondToAppointment(ctx context.Context, patientID, appointmentID uuid.UUID, accepted bool, message *string) (*appointment.Appointment, error) {
	if m.respondFunc != nil {
		return m.respondFunc(ctx, patientID, appointmentID, accepted, message)
	}
	return &appointment.Appointment{ID: appointmentID, Status: appointment.StatusScheduled}, nil
}

func (m *mockAppointmentService) CancelAppointment(ctx context.Context, userID, appointmentID uuid.UUID) (*appointment.Appointment, error) {
	if m.cancelFunc != nil {
		return m.cancelFunc(ctx, userID, appointmentID)
	}
	return &appointment.Appointment{ID: appointmentID, Status: appointment.StatusCancelled}, nil
}

func (m *mockAppointmentService) CompleteAppointment(_ context.Context, _, appointmentID uuid.UUID) (*appointment.Appointment, error) {
	return &appointment.Appointment{ID: appointmentID, Status: appointment.StatusCompleted}, nil
}

func (m *mockAppointmentService) MarkNoShow(_ context.Context, _, appointmentID uuid.UUID) (*appointment.Appointment, error) {
	return &appointment.Appointment{ID: appointmentID, Status: appointment.StatusNoShow}, nil
}

func (m *mockAppointmentService) UpdateNotes(_ context.Context, _, appointmentID uuid.UUID, notes string) (*appointment.Appointment, error) {
	return &appointment.Appointment{ID: appointmentID, Notes: &notes}, nil
}

func (m *mockAppointmentService) GetAppointments(_ context.Context, f appointment.ListFilter) (*appointment.Page, error) {
	return &appointment.Page{CurrentPage: f.Page, PageSize: f.PageSize}, nil
}

func (m *mockAppointmentService) GetAppointmentDates(_ context.Context, _ appointment.ListFilter, _, _ time.Time) ([]time.Time, error) {
	return nil, nil
}

func (m *mockAppointmentService) GetAppointmentDetails(_ context.Context, _, appointmentID uuid.UUID) (*appointment.AppointmentDetail, error) {
	return &appointment.AppointmentDetail{
		Appointment:  appointment.Appointment{ID: appointmentID},
		Patient:      &appointment.Participant{},
		Practitioner: &appointment.Participant{},
	}, nil
}

type mockVideoCallService struct {
	createRoomFunc func(ctx context.Context, appointmentID uuid.UUID) (string, error)
	getRoomFunc    func(ctx context.Context, appointmentID, userID uuid.UUID) (*videocall.RoomDetail, error)
}

func (m *mockVideoCallService) CreateRoomForAppointment(ctx context.Context, appointmentID uuid.UUID) (string, error) {
	if m.createRoomFunc != nil {
		return m.createRoomFunc(ctx, appointmentID)
	}
	return "room_1_abc", nil
}

func (m *mockVideoCallService) GetRoomByAppointmentID(ctx context.Context, appointmentID, userID uuid.UUID) (*videocall.RoomDetail, error) {
	if m.getRoomFunc != nil {
		return m.getRoomFunc(ctx, appointmentID, userID)
	}
	return &videocall.RoomDetail{Room: videocall.Room{AppointmentID: appointmentID, RoomID: "room_1_abc", Status: videocall.StatusWaiting}}, nil
}

func newTestRouter(appts AppointmentService, calls VideoCallService) http.Handler {
	return NewRouter(RouterConfig{
		Appointments: appts,
		VideoCalls:   calls,
		JWTSecret:    testSecret,
		Env:          "test",
		Version:      "test",
		Log:          zerolog.Nop(),
	})
}

func mintToken(t *testing.T, userID uuid.UUID, role Role) string {
	t.Helper()

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  userID.String(),
		"role": string(role),
		"exp":  time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte(testSecret))
	require.NoError(t, err)
	return signed
}

func doRequest(t *testing.T, router http.Handler, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}

	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestAuthentication(t *testing.T) {
	router := newTestRouter(&mockAppointmentService{}, &mockVideoCallService{})

	t.Run("missing token", func(t *testing.T) {
		rec := doRequest(t, router, http.MethodGet, "/appointments", "", nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("garbage token", func(t *testing.T) {
		rec := doRequest(t, router, http.MethodGet, "/appointments", "not-a-jwt", nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("expired token", func(t *testing.T) {
		token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
			"sub":  uuid.NewString(),
			"role": string(RolePatient),
			"exp":  time.Now().Add(-time.Hour).Unix(),
		})
		signed, err := token.SignedString([]byte(testSecret))
		require.NoError(t, err)

		rec := doRequest(t, router, http.MethodGet, "/appointments", signed, nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("wrong signing key", func(t *testing.T) {
		token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
			"sub":  uuid.NewString(),
			"role": string(RolePatient),
			"exp":  time.Now().Add(time.Hour).Unix(),
		})
		signed, err := token.SignedString([]byte("other-secret"))
		require.NoError(t, err)

		rec := doRequest(t, router, http.MethodGet, "/appointments", signed, nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("valid token passes", func(t *testing.T) {
		token := mintToken(t, uuid.New(), RolePatient)
		rec := doRequest(t, router, http.MethodGet, "/appointments", token, nil)
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("health needs no token", func(t *testing.T) {
		rec := doRequest(t, router, http.MethodGet, "/health/live", "", nil)
		assert.Equal(t, http.StatusOK, rec.Code)
	})
}

func TestRoleGates(t *testing.T) {
	router := newTestRouter(&mockAppointmentService{}, &mockVideoCallService{})
	practitionerToken := mintToken(t, uuid.New(), RolePractitioner)
	patientToken := mintToken(t, uuid.New(), RolePatient)

	scheduleBody := ScheduleAppointmentRequest{
		PatientID:           uuid.NewString(),
		AppointmentDateTime: "2026-09-10T09:00:00Z",
		DurationInMinutes:   30,
		Type:                "FollowUp",
	}

	t.Run("patients cannot schedule", func(t *testing.T) {
		rec := doRequest(t, router, http.MethodPost, "/appointments/schedule", patientToken, scheduleBody)
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("practitioners can schedule", func(t *testing.T) {
		rec := doRequest(t, router, http.MethodPost, "/appointments/schedule", practitionerToken, scheduleBody)
		assert.Equal(t, http.StatusCreated, rec.Code)
	})

	t.Run("practitioners cannot respond", func(t *testing.T) {
		rec := doRequest(t, router, http.MethodPatch, "/appointments/"+uuid.NewString()+"/respond", practitionerToken,
			RespondToAppointmentRequest{Accepted: boolPtr(true)})
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("patients can respond", func(t *testing.T) {
		rec := doRequest(t, router, http.MethodPatch, "/appointments/"+uuid.NewString()+"/respond", patientToken,
			RespondToAppointmentRequest{Accepted: boolPtr(true)})
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("either role may cancel", func(t *testing.T) {
		for _, token := range []string{practitionerToken, patientToken} {
			rec := doRequest(t, router, http.MethodPost, "/appointments/"+uuid.NewString()+"/cancel", token, nil)
			assert.Equal(t, http.StatusOK, rec.Code)
		}
	})
}

func TestScheduleAppointment(t *testing.T) {
	practitionerID := uuid.New()
	token := mintToken(t, practitionerID, RolePractitioner)

	t.Run("validates the body", func(t *testing.T) {
		router := newTestRouter(&mockAppointmentService{}, &mockVideoCallService{})

		rec := doRequest(t, router, http.MethodPost, "/appointments/schedule", token,
			map[string]any{"patientId": "not-a-uuid"})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("rejects a duration beyond a day", func(t *testing.T) {
		router := newTestRouter(&mockAppointmentService{}, &mockVideoCallService{})

		rec := doRequest(t, router, http.MethodPost, "/appointments/schedule", token, ScheduleAppointmentRequest{
			PatientID:           uuid.NewString(),
			AppointmentDateTime: "2026-09-10T09:00:00Z",
			DurationInMinutes:   100000000,
			Type:                "FollowUp",
		})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("rejects unknown type", func(t *testing.T) {
		router := newTestRouter(&mockAppointmentService{}, &mockVideoCallService{})

		rec := doRequest(t, router, http.MethodPost, "/appointments/schedule", token, ScheduleAppointmentRequest{
			PatientID:           uuid.NewString(),
			AppointmentDateTime: "2026-09-10T09:00:00Z",
			DurationInMinutes:   30,
			Type:                "Telepathy",
		})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("maps slot conflicts to 409", func(t *testing.T) {
		svc := &mockAppointmentService{
			createFunc: func(_ context.Context, _ uuid.UUID, _ appointment.CreateInput) (*appointment.Appointment, error) {
				return nil, appointment.ErrSlotConflict
			},
		}
		router := newTestRouter(svc, &mockVideoCallService{})

		rec := doRequest(t, router, http.MethodPost, "/appointments/schedule", token, ScheduleAppointmentRequest{
			PatientID:           uuid.NewString(),
			AppointmentDateTime: "2026-09-10T09:00:00Z",
			DurationInMinutes:   30,
			Type:                "FollowUp",
		})
		assert.Equal(t, http.StatusConflict, rec.Code)

		var body ErrorResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, "slot_conflict", body.Error)
	})

	t.Run("passes the caller as the practitioner", func(t *testing.T) {
		var gotPractitioner uuid.UUID
		svc := &mockAppointmentService{
			createFunc: func(_ context.Context, practitionerID uuid.UUID, in appointment.CreateInput) (*appointment.Appointment, error) {
				gotPractitioner = practitionerID
				return &appointment.Appointment{ID: uuid.New(), PractitionerID: practitionerID, PatientID: in.PatientID, Status: appointment.StatusPending}, nil
			},
		}
		router := newTestRouter(svc, &mockVideoCallService{})

		rec := doRequest(t, router, http.MethodPost, "/appointments/schedule", token, ScheduleAppointmentRequest{
			PatientID:           uuid.NewString(),
			AppointmentDateTime: "2026-09-10T09:00:00Z",
			DurationInMinutes:   30,
			Type:                "FollowUp",
		})
		require.Equal(t, http.StatusCreated, rec.Code)
		assert.Equal(t, practitionerID, gotPractitioner)

		var body AppointmentResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, "PendingPatientConfirmation", body.Status)
	})
}

func TestCheckAvailability(t *testing.T) {
	token := mintToken(t, uuid.New(), RolePractitioner)

	t.Run("reports a taken slot", func(t *testing.T) {
		svc := &mockAppointmentService{
			checkAvailabilityFunc: func(_ context.Context, _ uuid.UUID, _ time.Time, _ int) (bool, error) {
				return false, nil
			},
		}
		router := newTestRouter(svc, &mockVideoCallService{})

		rec := doRequest(t, router, http.MethodGet,
			"/appointments/check-availability?dateTime=2026-09-10T09:00:00Z&durationInMinutes=30", token, nil)
		require.Equal(t, http.StatusOK, rec.Code)

		var body AvailabilityResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.False(t, body.IsAvailable)
	})

	t.Run("rejects bad query params", func(t *testing.T) {
		router := newTestRouter(&mockAppointmentService{}, &mockVideoCallService{})

		rec := doRequest(t, router, http.MethodGet,
			"/appointments/check-availability?dateTime=tomorrow&durationInMinutes=30", token, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)

		rec = doRequest(t, router, http.MethodGet,
			"/appointments/check-availability?dateTime=2026-09-10T09:00:00Z&durationInMinutes=-5", token, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)

		rec = doRequest(t, router, http.MethodGet,
			"/appointments/check-availability?dateTime=2026-09-10T09:00:00Z&durationInMinutes=99999999", token, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestErrorMapping(t *testing.T) {
	token := mintToken(t, uuid.New(), RolePatient)

	cases := []struct {
		name string
		err  error
		want int
	}{
		{"not found", appointment.ErrAppointmentNotFound, http.StatusNotFound},
		{"terminal", appointment.ErrTerminalState, http.StatusForbidden},
		{"plain failure", context.DeadlineExceeded, http.StatusInternalServerError},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := &mockAppointmentService{
				cancelFunc: func(_ context.Context, _, _ uuid.UUID) (*appointment.Appointment, error) {
					return nil, tc.err
				},
			}
			router := newTestRouter(svc, &mockVideoCallService{})

			rec := doRequest(t, router, http.MethodPost, "/appointments/"+uuid.NewString()+"/cancel", token, nil)
			assert.Equal(t, tc.want, rec.Code)
		})
	}

	t.Run("invalid appointment id", func(t *testing.T) {
		router := newTestRouter(&mockAppointmentService{}, &mockVideoCallService{})

		rec := doRequest(t, router, http.MethodPost, "/appointments/banana/cancel", token, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestVideoCallRoutes(t *testing.T) {
	patientID := uuid.New()
	token := mintToken(t, patientID, RolePatient)
	apptID := uuid.New()

	t.Run("create returns the room token", func(t *testing.T) {
		router := newTestRouter(&mockAppointmentService{}, &mockVideoCallService{})

		rec := doRequest(t, router, http.MethodPost, "/video-call/room/appointment/"+apptID.String()+"/create", token, nil)
		require.Equal(t, http.StatusCreated, rec.Code)

		var body CreateRoomResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, "room_1_abc", body.RoomID)
	})

	t.Run("outsiders get 403", func(t *testing.T) {
		svc := &mockVideoCallService{
			getRoomFunc: func(_ context.Context, _, _ uuid.UUID) (*videocall.RoomDetail, error) {
				return nil, videocall.ErrNotParticipant
			},
		}
		router := newTestRouter(&mockAppointmentService{}, svc)

		rec := doRequest(t, router, http.MethodGet, "/video-call/room/appointment/"+apptID.String(), token, nil)
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("missing room is 404", func(t *testing.T) {
		svc := &mockVideoCallService{
			getRoomFunc: func(_ context.Context, _, _ uuid.UUID) (*videocall.RoomDetail, error) {
				return nil, videocall.ErrRoomNotFound
			},
		}
		router := newTestRouter(&mockAppointmentService{}, svc)

		rec := doRequest(t, router, http.MethodGet, "/video-call/room/appointment/"+apptID.String(), token, nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func boolPtr(b bool) *bool { return &b }
