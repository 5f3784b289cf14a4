// Package notify delivers appointment emails. Delivery is best-effort: a
// failed notification is logged by the caller and never rolls back the state
// transition that triggered it.
package notify

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"

	"github.com/scoliocare/clinic-backend/internal/appointment"
)

// SendGridNotifier sends transactional mail through SendGrid.
type SendGridNotifier struct {
	client    *sendgrid.Client
	fromEmail string
}

func NewSendGridNotifier(apiKey, fromEmail string) *SendGridNotifier {
	return &SendGridNotifier{
		client:    sendgrid.NewSendClient(apiKey),
		fromEmail: fromEmail,
	}
}

func (n *SendGridNotifier) AppointmentUpdated(ctx context.Context, patient appointment.Participant, appt *appointment.Appointment) error {
	from := mail.NewEmail("ScolioCare", n.fromEmail)
	to := mail.NewEmail(patient.FirstName+" "+patient.LastName, patient.Email)

	subject := "Your appointment has been updated"
	body := fmt.Sprintf(
		"Hi %s,\n\nYour appointment has been updated. It is now set for %s (%d minutes).\nPlease confirm the new time in the app.\n",
		patient.FirstName,
		appt.DateTime.Format("Mon, 2 Jan 2006 15:04 MST"),
		appt.DurationMinutes,
	)

	message := mail.NewSingleEmail(from, subject, to, body, "")

	resp, err := n.client.SendWithContext(ctx, message)
	if err != nil {
		return fmt.Errorf("send update email: %w", err)
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("send update email: sendgrid status %d", resp.StatusCode)
	}
	return nil
}

// LogNotifier is the dev stand-in when no SendGrid key is configured.
type LogNotifier struct {
	Log zerolog.Logger
}

func (n *LogNotifier) AppointmentUpdated(_ context.Context, patient appointment.Participant, appt *appointment.Appointment) error {
	n.Log.Info().
		Str("patient_email", patient.Email).
		Stringer("appointment_id", appt.ID).
		Time("date_time", appt.DateTime).
		Msg("appointment update notification (email disabled)")
	return nil
}
