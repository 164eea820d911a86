// Package api exposes the scheduling engine as the JSON tool surface the
// voice agent calls, plus health, metrics and front-desk routes.
package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"

	"github.com/kairos-clinic/scheduling/internal/booking"
	"github.com/kairos-clinic/scheduling/internal/identity"
	"github.com/kairos-clinic/scheduling/internal/patients"
	"github.com/kairos-clinic/scheduling/internal/schedule"
	"github.com/kairos-clinic/scheduling/pkg/logging"
)

// Handler serves the tool endpoints.
type Handler struct {
	engine *booking.Engine
	otp    *identity.OTPService
	logger *logging.Logger
}

// NewHandler builds the tool handler. otp may be nil when SMS verification
// is not configured.
func NewHandler(engine *booking.Engine, otp *identity.OTPService, logger *logging.Logger) *Handler {
	if engine == nil {
		panic("api: booking engine required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{engine: engine, otp: otp, logger: logger}
}

type slotView struct {
	RowID         string `json:"row_id"`
	Date          string `json:"date"`
	StartTime     string `json:"start_time"`
	EndTime       string `json:"end_time"`
	Lane          string `json:"lane"`
	ApptType      string `json:"appt_type,omitempty"`
	DurationMin   int    `json:"duration_min,omitempty"`
	Status        string `json:"status"`
	AppointmentID string `json:"appointment_id,omitempty"`
	PatientID     string `json:"patient_id,omitempty"`
	DisplayCard   string `json:"display_card,omitempty"`
}

func slotViews(slots []schedule.Slot) []slotView {
	out := make([]slotView, 0, len(slots))
	for _, s := range slots {
		out = append(out, slotView{
			RowID:         s.RowID,
			Date:          s.Date,
			StartTime:     s.StartTime,
			EndTime:       s.EndTime,
			Lane:          s.Lane,
			ApptType:      s.ApptType,
			DurationMin:   s.DurationMin,
			Status:        string(s.Status),
			AppointmentID: s.AppointmentID,
			PatientID:     s.PatientID,
			DisplayCard:   s.DisplayCard,
		})
	}
	return out
}

// FindOpenings handles POST /tools/find_openings.
func (h *Handler) FindOpenings(w http.ResponseWriter, r *http.Request) {
	var req struct {
		DateStart   string `json:"date_start"`
		DateEnd     string `json:"date_end"`
		ApptType    string `json:"appt_type"`
		DurationMin int    `json:"duration_min"`
		Limit       int    `json:"limit"`
	}
	if !decode(w, r, &req) {
		return
	}

	openings, err := h.engine.FindOpenings(r.Context(), req.DateStart, req.DateEnd,
		schedule.OpeningsFilter{ApptType: req.ApptType, DurationMin: req.DurationMin}, req.Limit)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"openings": slotViews(openings)})
}

// UpsertPatient handles POST /tools/upsert_patient.
func (h *Handler) UpsertPatient(w http.ResponseWriter, r *http.Request) {
	var req struct {
		FirstName              string `json:"first_name"`
		LastName               string `json:"last_name"`
		Phone                  string `json:"phone"`
		Email                  string `json:"email"`
		DOB                    string `json:"dob"`
		PatientType            string `json:"patient_type"`
		ConsentToText          string `json:"consent_to_text"`
		PreferredContactMethod string `json:"preferred_contact_method"`
		InsuranceProvider      string `json:"insurance_provider"`
		InsuranceMemberID      string `json:"insurance_member_id"`
		Notes                  string `json:"notes"`
	}
	if !decode(w, r, &req) {
		return
	}

	id, err := h.engine.UpsertPatient(r.Context(), patients.Patient{
		FirstName:              req.FirstName,
		LastName:               req.LastName,
		Phone:                  req.Phone,
		Email:                  req.Email,
		DOB:                    req.DOB,
		PatientType:            req.PatientType,
		ConsentToText:          req.ConsentToText,
		PreferredContactMethod: req.PreferredContactMethod,
		InsuranceProvider:      req.InsuranceProvider,
		InsuranceMemberID:      req.InsuranceMemberID,
		Notes:                  req.Notes,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"patient_id": id})
}

// BookAppointment handles POST /tools/book_appointment.
func (h *Handler) BookAppointment(w http.ResponseWriter, r *http.Request) {
	var req struct {
		OpeningRowID   string `json:"opening_row_id"`
		PatientID      string `json:"patient_id"`
		ApptType       string `json:"appt_type"`
		ReasonForVisit string `json:"reason_for_visit"`
		UrgencyLevel   string `json:"urgency_level"`
		TriageRedFlags string `json:"triage_red_flags"`
		ConversationID string `json:"conversation_id"`
	}
	if !decode(w, r, &req) {
		return
	}

	conf, err := h.engine.Book(r.Context(), booking.BookRequest{
		OpeningRowID:   req.OpeningRowID,
		PatientID:      req.PatientID,
		ApptType:       req.ApptType,
		ReasonForVisit: req.ReasonForVisit,
		UrgencyLevel:   req.UrgencyLevel,
		TriageRedFlags: req.TriageRedFlags,
		ConversationID: req.ConversationID,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, conf)
}

type verificationRequest struct {
	SessionID   string `json:"session_id"`
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	Phone       string `json:"phone"`
	Email       string `json:"email"`
	DateOfBirth string `json:"dob"`
	OTPCode     string `json:"otp_code"`
}

// verification resolves the request into engine input, checking any OTP code
// against Redis first. The session id is minted when absent so attempt
// counting always has a key.
func (h *Handler) verification(r *http.Request, req verificationRequest) booking.Verification {
	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	v := booking.Verification{
		SessionID: sessionID,
		Provided: identity.Provided{
			FirstName:   req.FirstName,
			LastName:    req.LastName,
			Phone:       req.Phone,
			Email:       req.Email,
			DateOfBirth: req.DateOfBirth,
			OTPCode:     req.OTPCode,
		},
	}
	if req.OTPCode != "" && h.otp != nil {
		ok, err := h.otp.Check(r.Context(), sessionID, req.OTPCode)
		if err != nil {
			h.logger.Error("otp check failed", "error", err, "session_id", sessionID)
		}
		v.Provided.OTPVerified = ok
	}
	return v
}

// CancelAppointment handles POST /tools/cancel_appointment.
func (h *Handler) CancelAppointment(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Identifier string `json:"identifier"`
		Reason     string `json:"reason"`
		verificationRequest
	}
	if !decode(w, r, &req) {
		return
	}

	res, err := h.engine.Cancel(r.Context(), req.Identifier, req.Reason, h.verification(r, req.verificationRequest))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"row_id":         res.RowID,
		"appointment_id": res.AppointmentID,
		"status":         string(res.Status),
	})
}

// RescheduleAppointment handles POST /tools/reschedule_appointment.
func (h *Handler) RescheduleAppointment(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Identifier      string `json:"identifier"`
		NewOpeningRowID string `json:"new_opening_row_id"`
		Reason          string `json:"reason"`
		verificationRequest
	}
	if !decode(w, r, &req) {
		return
	}

	res, err := h.engine.Reschedule(r.Context(), booking.RescheduleRequest{
		OldIdentifier:   req.Identifier,
		NewOpeningRowID: req.NewOpeningRowID,
		Reason:          req.Reason,
		Verification:    h.verification(r, req.verificationRequest),
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"old": map[string]any{
			"row_id":         res.Old.RowID,
			"appointment_id": res.Old.AppointmentID,
			"status":         string(res.Old.Status),
		},
		"new": res.New,
	})
}

// FindPatientAppointments handles POST /tools/find_patient_appointments_by_phone.
func (h *Handler) FindPatientAppointments(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Phone string `json:"phone"`
		Date  string `json:"date"`
	}
	if !decode(w, r, &req) {
		return
	}

	appts, err := h.engine.FindPatientAppointmentsByPhone(r.Context(), req.Phone, req.Date)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"appointments": slotViews(appts)})
}

// VerifyIdentity handles POST /tools/verify_identity.
func (h *Handler) VerifyIdentity(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Action string `json:"action"`
		verificationRequest
	}
	if !decode(w, r, &req) {
		return
	}

	v := h.verification(r, req.verificationRequest)
	res, err := h.engine.VerifyIdentity(r.Context(), identity.Action(req.Action), v)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"session_id":          v.SessionID,
		"verified":            res.Verified,
		"level":               int(res.Level),
		"missing_fields":      res.MissingFields,
		"message":             res.Message,
		"requires_otp":        res.RequiresOTP,
		"requires_escalation": res.RequiresEscalation,
	})
}

// RequestOTP handles POST /tools/request_otp.
func (h *Handler) RequestOTP(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SessionID string `json:"session_id"`
		Phone     string `json:"phone"`
	}
	if !decode(w, r, &req) {
		return
	}
	if h.otp == nil {
		http.Error(w, "OTP verification is not configured", http.StatusServiceUnavailable)
		return
	}
	if req.Phone == "" {
		h.writeError(w, &booking.ValidationError{Field: "phone", Reason: "required"})
		return
	}
	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	if err := h.otp.Issue(r.Context(), sessionID, req.Phone); err != nil {
		h.logger.Error("otp issue failed", "error", err, "session_id", sessionID)
		http.Error(w, "could not send verification code", http.StatusBadGateway)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"session_id": sessionID, "status": "sent"})
}

// DayView handles GET /frontdesk/day_view?date=YYYY-MM-DD.
func (h *Handler) DayView(w http.ResponseWriter, r *http.Request) {
	date := r.URL.Query().Get("date")
	day, err := h.engine.DayView(r.Context(), date)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"date": date, "slots": slotViews(day)})
}

// HealthCheck handles GET /health.
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// writeError maps booking error kinds onto HTTP statuses.
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	var (
		validation *booking.ValidationError
		notFound   *booking.NotFoundError
		state      *booking.InvalidStateError
		verify     *booking.VerificationError
		transient  *booking.TransientStoreError
		partial    *booking.PartialFailureError
	)
	switch {
	case errors.As(err, &validation):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": validation.Error()})
	case errors.As(err, &notFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": notFound.Error()})
	case errors.As(err, &state):
		writeJSON(w, http.StatusConflict, map[string]string{"error": state.Error()})
	case errors.As(err, &verify):
		writeJSON(w, http.StatusForbidden, map[string]any{
			"error":               verify.Message,
			"requires_escalation": verify.Escalate,
		})
	case errors.As(err, &partial):
		h.logger.Error("partial failure surfaced", "error", err)
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": partial.Error()})
	case errors.As(err, &transient):
		h.logger.Error("store failure surfaced", "error", err)
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": "temporary storage problem, please retry"})
	default:
		h.logger.Error("unhandled error surfaced", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}
}

func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, "encoding error", http.StatusInternalServerError)
	}
}
