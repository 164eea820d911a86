package notify

import (
	"context"
	"fmt"

	"github.com/kairos-clinic/scheduling/pkg/logging"
)

// Appointment carries the details a patient-facing message needs. Callers
// fill it from the slot and patient records.
type Appointment struct {
	AppointmentID string
	ApptType      string
	Date          string
	StartTime     string

	PatientName     string
	PatientPhone    string
	PatientEmail    string
	ConsentToText   bool
	PreferredMethod string // SMS/CALL/EMAIL
}

// Service sends appointment confirmations to patients. Delivery is best
// effort: a failed confirmation never rolls back the booking it describes.
type Service struct {
	email    EmailSender
	sms      SMSSender
	clinic   string
	provider string
	logger   *logging.Logger
}

// NewService creates a notification service. Either sender may be nil;
// providerName is optional and names the treating provider in messages.
func NewService(email EmailSender, sms SMSSender, clinicName, providerName string, logger *logging.Logger) *Service {
	if logger == nil {
		logger = logging.Default()
	}
	if clinicName == "" {
		clinicName = "Kairos Clinic"
	}
	return &Service{email: email, sms: sms, clinic: clinicName, provider: providerName, logger: logger}
}

// ConfirmBooking tells the patient their appointment is on the books.
func (s *Service) ConfirmBooking(ctx context.Context, appt Appointment) error {
	body := fmt.Sprintf("Hi %s, your %s appointment at %s is confirmed for %s at %s. Reference: %s.",
		appt.PatientName, s.visit(appt), s.clinic, appt.Date, appt.StartTime, appt.AppointmentID)
	return s.deliver(ctx, appt, "Appointment confirmed", body)
}

// ConfirmCancellation tells the patient their appointment is cancelled.
func (s *Service) ConfirmCancellation(ctx context.Context, appt Appointment) error {
	body := fmt.Sprintf("Hi %s, your %s appointment at %s on %s at %s has been cancelled. Reference: %s.",
		appt.PatientName, s.visit(appt), s.clinic, appt.Date, appt.StartTime, appt.AppointmentID)
	return s.deliver(ctx, appt, "Appointment cancelled", body)
}

// ConfirmReschedule tells the patient about the new time in a single message.
func (s *Service) ConfirmReschedule(ctx context.Context, old, updated Appointment) error {
	body := fmt.Sprintf("Hi %s, your %s appointment at %s has moved from %s at %s to %s at %s. New reference: %s.",
		updated.PatientName, s.visit(updated), s.clinic,
		old.Date, old.StartTime, updated.Date, updated.StartTime, updated.AppointmentID)
	return s.deliver(ctx, updated, "Appointment rescheduled", body)
}

// visit names the appointment, with the provider when one is configured.
func (s *Service) visit(appt Appointment) string {
	if s.provider == "" {
		return appt.ApptType
	}
	return appt.ApptType + " with " + s.provider
}

func (s *Service) deliver(ctx context.Context, appt Appointment, subject, body string) error {
	var errs []error

	smsOK := s.sms != nil && appt.PatientPhone != "" && appt.ConsentToText && appt.PreferredMethod != "EMAIL"
	if smsOK {
		if err := s.sms.SendSMS(ctx, appt.PatientPhone, body); err != nil {
			s.logger.Error("confirmation SMS failed", "error", err, "appointment_id", appt.AppointmentID)
			errs = append(errs, err)
		}
	}

	emailOK := s.email != nil && appt.PatientEmail != "" && (!smsOK || appt.PreferredMethod == "EMAIL")
	if emailOK {
		msg := EmailMessage{
			To:      appt.PatientEmail,
			ToName:  appt.PatientName,
			Subject: subject,
			Body:    body,
		}
		if err := s.email.Send(ctx, msg); err != nil {
			s.logger.Error("confirmation email failed", "error", err, "appointment_id", appt.AppointmentID)
			errs = append(errs, err)
		}
	}

	if !smsOK && !emailOK {
		s.logger.Debug("no confirmation channel for patient", "appointment_id", appt.AppointmentID)
	}
	if len(errs) > 0 {
		return fmt.Errorf("notify: %d confirmation(s) failed", len(errs))
	}
	return nil
}
