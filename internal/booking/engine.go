package booking

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/kairos-clinic/scheduling/internal/escalate"
	"github.com/kairos-clinic/scheduling/internal/identity"
	"github.com/kairos-clinic/scheduling/internal/ids"
	"github.com/kairos-clinic/scheduling/internal/notify"
	"github.com/kairos-clinic/scheduling/internal/observability/metrics"
	"github.com/kairos-clinic/scheduling/internal/patients"
	"github.com/kairos-clinic/scheduling/internal/rowstore"
	"github.com/kairos-clinic/scheduling/internal/schedule"
	"github.com/kairos-clinic/scheduling/pkg/logging"
)

var tracer = otel.Tracer("kairos.internal.booking")

// Cancel policies. Exactly one is active per deployment.
const (
	PolicyReopen    = "reopen"
	PolicyTombstone = "tombstone"
)

// BookedBy marks rows the automated agent wrote.
const bookedByAgent = "ai_voice"

// AttemptTracker counts failed verification attempts per session.
type AttemptTracker interface {
	Record(ctx context.Context, sessionID string) (int, error)
	Count(ctx context.Context, sessionID string) (int, error)
	Reset(ctx context.Context, sessionID string) error
}

// Escalator hands a caller off to the front desk.
type Escalator interface {
	Escalate(ctx context.Context, h escalate.Handoff) error
}

// Confirmer sends appointment confirmations to patients.
type Confirmer interface {
	ConfirmBooking(ctx context.Context, appt notify.Appointment) error
	ConfirmCancellation(ctx context.Context, appt notify.Appointment) error
	ConfirmReschedule(ctx context.Context, old, updated notify.Appointment) error
}

// Config wires an Engine.
type Config struct {
	Store         rowstore.Store
	ApptTable     string
	Allocator     *schedule.Allocator
	Directory     *patients.Directory
	Minter        ids.Minter
	ApptIDPrefix  string
	Lane          string
	CancelPolicy  string
	OpeningsLimit int

	// MaxFailedAttempts is the verification strike limit; zero applies the
	// identity package default.
	MaxFailedAttempts int

	Attempts    AttemptTracker          // optional
	Escalations Escalator               // optional
	Notifier    Confirmer               // optional
	Metrics     *metrics.BookingMetrics // nil-safe
	Logger      *logging.Logger
}

// Engine is the slot state machine. Every mutation re-reads the row and
// writes through a conditional update, so a write lost to a concurrent
// transition surfaces instead of silently clobbering.
type Engine struct {
	store         rowstore.Store
	apptTable     string
	allocator     *schedule.Allocator
	directory     *patients.Directory
	minter        ids.Minter
	apptIDPrefix  string
	lane          string
	cancelPolicy  string
	openingsLimit int
	maxFailed     int

	attempts    AttemptTracker
	escalations Escalator
	notifier    Confirmer
	metrics     *metrics.BookingMetrics
	logger      *logging.Logger
	now         func() time.Time
}

// NewEngine builds the engine. Required dependencies panic when absent.
func NewEngine(cfg Config) *Engine {
	if cfg.Store == nil {
		panic("booking: row store required")
	}
	if cfg.Allocator == nil {
		panic("booking: allocator required")
	}
	if cfg.Directory == nil {
		panic("booking: patient directory required")
	}
	if cfg.Minter == nil {
		panic("booking: id minter required")
	}
	if cfg.CancelPolicy != PolicyReopen && cfg.CancelPolicy != PolicyTombstone {
		panic("booking: cancel policy must be reopen or tombstone")
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	if cfg.OpeningsLimit <= 0 {
		cfg.OpeningsLimit = 5
	}
	return &Engine{
		store:         cfg.Store,
		apptTable:     cfg.ApptTable,
		allocator:     cfg.Allocator,
		directory:     cfg.Directory,
		minter:        cfg.Minter,
		apptIDPrefix:  cfg.ApptIDPrefix,
		lane:          cfg.Lane,
		cancelPolicy:  cfg.CancelPolicy,
		openingsLimit: cfg.OpeningsLimit,
		maxFailed:     cfg.MaxFailedAttempts,
		attempts:      cfg.Attempts,
		escalations:   cfg.Escalations,
		notifier:      cfg.Notifier,
		metrics:       cfg.Metrics,
		logger:        cfg.Logger,
		now:           time.Now,
	}
}

// Verification carries the identity evidence and session key for one
// sensitive operation.
type Verification struct {
	SessionID string
	Provided  identity.Provided
}

// BookRequest books an OPEN slot for an upserted patient.
type BookRequest struct {
	OpeningRowID   string
	PatientID      string
	ApptType       string
	ReasonForVisit string
	UrgencyLevel   string // ROUTINE when empty
	TriageRedFlags string // N when empty
	ConversationID string
}

// Confirmation describes a booking that is now on the books.
type Confirmation struct {
	AppointmentID string `json:"appointment_id"`
	RowID         string `json:"row_id"`
	Date          string `json:"date"`
	StartTime     string `json:"start_time"`
	EndTime       string `json:"end_time"`
	ApptType      string `json:"appt_type"`
	PatientID     string `json:"patient_id"`
	DisplayCard   string `json:"display_card"`
}

// CancelResult describes the slot after a cancellation.
type CancelResult struct {
	RowID         string
	AppointmentID string
	Status        schedule.Status
}

// RescheduleRequest moves a BOOKED appointment onto a new OPEN slot.
type RescheduleRequest struct {
	OldIdentifier   string // appointment id or row id
	NewOpeningRowID string
	Reason          string
	Verification    Verification
}

// RescheduleResult reports both halves of a completed reschedule.
type RescheduleResult struct {
	Old CancelResult
	New Confirmation
}

// FindOpenings lists bookable slots. Empty is a valid answer.
func (e *Engine) FindOpenings(ctx context.Context, dateStart, dateEnd string, filter schedule.OpeningsFilter, limit int) ([]schedule.Slot, error) {
	ctx, span := tracer.Start(ctx, "booking.FindOpenings")
	defer span.End()

	if dateStart == "" {
		return nil, &ValidationError{Field: "date_start", Reason: "required"}
	}
	if dateEnd == "" {
		dateEnd = dateStart
	}
	if dateEnd < dateStart {
		return nil, &ValidationError{Field: "date_end", Reason: "before date_start"}
	}
	if limit <= 0 {
		limit = e.openingsLimit
	}

	openings, err := e.allocator.FindOpenings(ctx, dateStart, dateEnd, filter, limit)
	if err != nil {
		return nil, &TransientStoreError{Op: "scan", Err: err}
	}
	e.metrics.ObserveOperation("find_openings", "success")
	return openings, nil
}

// UpsertPatient creates or updates the patient record for a phone number.
func (e *Engine) UpsertPatient(ctx context.Context, p patients.Patient) (string, error) {
	ctx, span := tracer.Start(ctx, "booking.UpsertPatient")
	defer span.End()

	id, err := e.directory.Upsert(ctx, p)
	if errors.Is(err, patients.ErrPhoneRequired) {
		return "", &ValidationError{Field: "phone", Reason: "required"}
	}
	if err != nil {
		return "", &TransientStoreError{Op: "upsert", Err: err}
	}
	e.metrics.ObserveOperation("upsert_patient", "success")
	return id, nil
}

// Book transitions an OPEN slot to BOOKED for the patient.
func (e *Engine) Book(ctx context.Context, req BookRequest) (*Confirmation, error) {
	ctx, span := tracer.Start(ctx, "booking.Book")
	defer span.End()
	span.SetAttributes(
		attribute.String("kairos.row_id", req.OpeningRowID),
		attribute.String("kairos.patient_id", req.PatientID),
	)

	if req.OpeningRowID == "" {
		return nil, &ValidationError{Field: "opening_row_id", Reason: "required"}
	}
	if req.PatientID == "" {
		return nil, &ValidationError{Field: "patient_id", Reason: "required"}
	}

	patient, err := e.directory.FindByID(ctx, req.PatientID)
	if errors.Is(err, patients.ErrPatientNotFound) {
		return nil, &NotFoundError{Kind: "patient", ID: req.PatientID}
	}
	if err != nil {
		return nil, &TransientStoreError{Op: "find patient", Err: err}
	}

	slot, err := e.slotByRowID(ctx, req.OpeningRowID)
	if err != nil {
		return nil, err
	}
	if slot.Status != schedule.StatusOpen {
		e.metrics.ObserveOperation("book", "invalid_state")
		return nil, &InvalidStateError{RowID: slot.RowID, Current: slot.Status, Wanted: schedule.StatusOpen}
	}
	if e.lane != "" && slot.Lane != e.lane {
		return nil, &ValidationError{Field: "opening_row_id", Reason: "slot is outside the booking lane"}
	}

	apptID, err := e.minter.Next(ctx, e.apptIDPrefix)
	if err != nil {
		return nil, &TransientStoreError{Op: "mint appointment id", Err: err}
	}

	updated := e.bookedSlot(slot, apptID, patient, req)
	if err := e.writeIf(ctx, updated, schedule.StatusOpen); err != nil {
		e.observeWriteFailure("book", err)
		return nil, e.mapWriteError(ctx, slot.RowID, schedule.StatusOpen, err)
	}

	e.metrics.ObserveOperation("book", "success")
	e.logger.Info("appointment booked",
		"appointment_id", apptID,
		"row_id", slot.RowID,
		"patient_id", patient.PatientID,
	)
	e.confirmBooking(ctx, updated, patient)

	conf := confirmationFor(updated)
	return &conf, nil
}

// Cancel transitions a BOOKED appointment per the configured policy.
// Verification must pass before anything is written.
func (e *Engine) Cancel(ctx context.Context, identifier, reason string, v Verification) (*CancelResult, error) {
	ctx, span := tracer.Start(ctx, "booking.Cancel")
	defer span.End()
	span.SetAttributes(attribute.String("kairos.identifier", identifier))

	slot, err := e.resolveAppointment(ctx, identifier)
	if err != nil {
		return nil, err
	}
	if slot.Status != schedule.StatusBooked {
		e.metrics.ObserveOperation("cancel", "invalid_state")
		return nil, &InvalidStateError{RowID: slot.RowID, Current: slot.Status, Wanted: schedule.StatusBooked}
	}

	patient := e.patientFor(ctx, slot.PatientID)
	if err := e.verify(ctx, identity.ActionCancel, v, patient, slot.AppointmentID); err != nil {
		return nil, err
	}

	updated := e.cancelledSlot(slot, reason, e.cancelPolicy)
	if err := e.writeIf(ctx, updated, schedule.StatusBooked); err != nil {
		e.observeWriteFailure("cancel", err)
		return nil, e.mapWriteError(ctx, slot.RowID, schedule.StatusBooked, err)
	}

	e.metrics.ObserveOperation("cancel", "success")
	e.logger.Info("appointment cancelled",
		"appointment_id", slot.AppointmentID,
		"row_id", slot.RowID,
		"policy", e.cancelPolicy,
	)
	if patient != nil {
		e.confirmCancellation(ctx, slot, patient)
	}

	return &CancelResult{RowID: slot.RowID, AppointmentID: slot.AppointmentID, Status: updated.Status}, nil
}

// Reschedule books the new slot first, then cancels the old one, so the
// patient never loses their original time to a failure on the new half. A
// failed cancel triggers a compensating release of the new booking.
func (e *Engine) Reschedule(ctx context.Context, req RescheduleRequest) (*RescheduleResult, error) {
	ctx, span := tracer.Start(ctx, "booking.Reschedule")
	defer span.End()
	span.SetAttributes(
		attribute.String("kairos.identifier", req.OldIdentifier),
		attribute.String("kairos.new_row_id", req.NewOpeningRowID),
	)

	if req.NewOpeningRowID == "" {
		return nil, &ValidationError{Field: "new_opening_row_id", Reason: "required"}
	}

	old, err := e.resolveAppointment(ctx, req.OldIdentifier)
	if err != nil {
		return nil, err
	}
	if old.Status != schedule.StatusBooked || old.PatientID == "" {
		e.metrics.ObserveOperation("reschedule", "invalid_state")
		return nil, &InvalidStateError{RowID: old.RowID, Current: old.Status, Wanted: schedule.StatusBooked}
	}

	patient, err := e.directory.FindByID(ctx, old.PatientID)
	if errors.Is(err, patients.ErrPatientNotFound) {
		return nil, &NotFoundError{Kind: "patient", ID: old.PatientID}
	}
	if err != nil {
		return nil, &TransientStoreError{Op: "find patient", Err: err}
	}

	// One verification gates both halves.
	if err := e.verify(ctx, identity.ActionReschedule, req.Verification, patient, old.AppointmentID); err != nil {
		return nil, err
	}

	newSlot, err := e.slotByRowID(ctx, req.NewOpeningRowID)
	if err != nil {
		return nil, err
	}
	if newSlot.Status != schedule.StatusOpen {
		e.metrics.ObserveOperation("reschedule", "invalid_state")
		return nil, &InvalidStateError{RowID: newSlot.RowID, Current: newSlot.Status, Wanted: schedule.StatusOpen}
	}

	newApptID, err := e.minter.Next(ctx, e.apptIDPrefix)
	if err != nil {
		return nil, &TransientStoreError{Op: "mint appointment id", Err: err}
	}

	booked := e.bookedSlot(newSlot, newApptID, patient, BookRequest{
		ApptType:       old.ApptType,
		ReasonForVisit: old.ReasonForVisit,
		UrgencyLevel:   old.UrgencyLevel,
		TriageRedFlags: old.TriageRedFlags,
		ConversationID: old.ConversationID,
	})
	if err := e.writeIf(ctx, booked, schedule.StatusOpen); err != nil {
		e.observeWriteFailure("reschedule", err)
		return nil, e.mapWriteError(ctx, newSlot.RowID, schedule.StatusOpen, err)
	}

	cancelled := e.cancelledSlot(old, req.Reason, e.cancelPolicy)
	if err := e.writeIf(ctx, cancelled, schedule.StatusBooked); err != nil {
		e.observeWriteFailure("reschedule", err)
		// Compensate: release the slot we just booked. Compensation always
		// reopens regardless of policy; a booking that never stood has no
		// history worth tombstoning.
		comp := e.cancelledSlot(booked, "reschedule rolled back", PolicyReopen)
		if cerr := e.writeIf(ctx, comp, schedule.StatusBooked); cerr != nil {
			e.metrics.ObserveOperation("reschedule", "partial_failure")
			e.logger.Error("reschedule compensation failed",
				"old_appointment_id", old.AppointmentID,
				"new_appointment_id", newApptID,
				"error", cerr,
			)
			return nil, &PartialFailureError{
				Committed: fmt.Sprintf("new booking %s on slot %s kept while old appointment %s is still booked", newApptID, booked.RowID, old.AppointmentID),
				Err:       err,
			}
		}
		return nil, e.mapWriteError(ctx, old.RowID, schedule.StatusBooked, err)
	}

	e.metrics.ObserveOperation("reschedule", "success")
	e.logger.Info("appointment rescheduled",
		"old_appointment_id", old.AppointmentID,
		"new_appointment_id", newApptID,
		"new_row_id", booked.RowID,
	)
	e.confirmReschedule(ctx, old, booked, patient)

	return &RescheduleResult{
		Old: CancelResult{RowID: old.RowID, AppointmentID: old.AppointmentID, Status: cancelled.Status},
		New: confirmationFor(booked),
	}, nil
}

// FindPatientAppointmentsByPhone lists the BOOKED appointments for the
// patient behind a phone number. An unknown phone yields an empty list.
func (e *Engine) FindPatientAppointmentsByPhone(ctx context.Context, phone, date string) ([]schedule.Slot, error) {
	ctx, span := tracer.Start(ctx, "booking.FindPatientAppointmentsByPhone")
	defer span.End()

	if phone == "" {
		return nil, &ValidationError{Field: "phone", Reason: "required"}
	}

	patient, err := e.directory.FindByPhone(ctx, phone)
	if errors.Is(err, patients.ErrPatientNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, &TransientStoreError{Op: "find patient", Err: err}
	}

	rows, err := e.store.ScanAll(ctx, e.apptTable)
	if err != nil {
		return nil, &TransientStoreError{Op: "scan", Err: err}
	}

	var out []schedule.Slot
	for _, row := range rows {
		slot := schedule.FromRow(row)
		if slot.Status != schedule.StatusBooked || slot.PatientID != patient.PatientID {
			continue
		}
		if date != "" && slot.Date != date {
			continue
		}
		out = append(out, slot)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Date != out[j].Date {
			return out[i].Date < out[j].Date
		}
		return out[i].StartTime < out[j].StartTime
	})
	e.metrics.ObserveOperation("find_patient_appointments", "success")
	return out, nil
}

// VerifyIdentity runs one verification attempt without touching any slot.
// It maintains the session's failure count and publishes escalations; the
// Result itself is the answer, not an error.
func (e *Engine) VerifyIdentity(ctx context.Context, action identity.Action, v Verification) (identity.Result, error) {
	ctx, span := tracer.Start(ctx, "booking.VerifyIdentity")
	defer span.End()
	span.SetAttributes(attribute.String("kairos.action", string(action)))

	var stored *identity.Stored
	if v.Provided.Phone != "" {
		if p, err := e.directory.FindByPhone(ctx, v.Provided.Phone); err == nil {
			stored = storedIdentity(p)
		}
	}
	return e.evaluate(ctx, action, v, stored, ""), nil
}

// DayView lists every slot on a date for front-desk staff.
func (e *Engine) DayView(ctx context.Context, date string) ([]schedule.Slot, error) {
	ctx, span := tracer.Start(ctx, "booking.DayView")
	defer span.End()

	if date == "" {
		return nil, &ValidationError{Field: "date", Reason: "required"}
	}
	day, err := e.allocator.DayView(ctx, date)
	if err != nil {
		return nil, &TransientStoreError{Op: "scan", Err: err}
	}
	return day, nil
}

// verify gates a sensitive operation. A failure is returned as a
// VerificationError before any write happens.
func (e *Engine) verify(ctx context.Context, action identity.Action, v Verification, patient *patients.Patient, apptID string) error {
	var stored *identity.Stored
	if patient != nil {
		stored = storedIdentity(patient)
	}
	res := e.evaluate(ctx, action, v, stored, apptID)
	if res.Verified {
		return nil
	}
	if res.RequiresEscalation {
		return &VerificationError{Message: res.Message, Escalate: true}
	}
	return &VerificationError{Message: res.Message}
}

// evaluate runs Verify with the session's failure count and maintains the
// count and escalation side effects around the verdict.
func (e *Engine) evaluate(ctx context.Context, action identity.Action, v Verification, stored *identity.Stored, apptID string) identity.Result {
	attempts := 0
	if e.attempts != nil && v.SessionID != "" {
		n, err := e.attempts.Count(ctx, v.SessionID)
		if err != nil {
			e.logger.Error("attempt count read failed", "error", err, "session_id", v.SessionID)
		} else {
			attempts = n
		}
	}

	res := identity.VerifyWithLimit(action, v.Provided, stored, attempts, e.maxFailed)
	switch {
	case res.Verified:
		e.metrics.ObserveVerification(string(action), "verified")
		if e.attempts != nil && v.SessionID != "" {
			if err := e.attempts.Reset(ctx, v.SessionID); err != nil {
				e.logger.Error("attempt reset failed", "error", err, "session_id", v.SessionID)
			}
		}

	case res.RequiresEscalation:
		e.metrics.ObserveVerification(string(action), "escalated")
		e.metrics.ObserveEscalation(string(action))
		if e.escalations != nil {
			h := escalate.Handoff{
				SessionID:      v.SessionID,
				Action:         string(action),
				Reason:         "identity verification escalated",
				CallerPhone:    v.Provided.Phone,
				AppointmentID:  apptID,
				FailedAttempts: attempts,
			}
			// Queue trouble never masks the verification outcome.
			if err := e.escalations.Escalate(ctx, h); err != nil {
				e.logger.Error("escalation publish failed", "error", err, "session_id", v.SessionID)
			}
		}

	default:
		e.metrics.ObserveVerification(string(action), "failed")
		if e.attempts != nil && v.SessionID != "" {
			if _, err := e.attempts.Record(ctx, v.SessionID); err != nil {
				e.logger.Error("attempt record failed", "error", err, "session_id", v.SessionID)
			}
		}
	}
	return res
}

// slotByRowID reads a slot by its row id.
func (e *Engine) slotByRowID(ctx context.Context, rowID string) (schedule.Slot, error) {
	row, err := e.store.FindByKey(ctx, e.apptTable, "row_id", rowID)
	if errors.Is(err, rowstore.ErrRowNotFound) {
		return schedule.Slot{}, &NotFoundError{Kind: "slot", ID: rowID}
	}
	if err != nil {
		return schedule.Slot{}, &TransientStoreError{Op: "read slot", Err: err}
	}
	return schedule.FromRow(row), nil
}

// resolveAppointment accepts an appointment id or a row id.
func (e *Engine) resolveAppointment(ctx context.Context, identifier string) (schedule.Slot, error) {
	if identifier == "" {
		return schedule.Slot{}, &ValidationError{Field: "identifier", Reason: "required"}
	}

	row, err := e.store.FindByKey(ctx, e.apptTable, "appointment_id", identifier)
	if err == nil {
		return schedule.FromRow(row), nil
	}
	if !errors.Is(err, rowstore.ErrRowNotFound) {
		return schedule.Slot{}, &TransientStoreError{Op: "read appointment", Err: err}
	}

	row, err = e.store.FindByKey(ctx, e.apptTable, "row_id", identifier)
	if errors.Is(err, rowstore.ErrRowNotFound) {
		return schedule.Slot{}, &NotFoundError{Kind: "appointment", ID: identifier}
	}
	if err != nil {
		return schedule.Slot{}, &TransientStoreError{Op: "read appointment", Err: err}
	}
	return schedule.FromRow(row), nil
}

// patientFor loads the patient behind a slot, tolerating a missing record.
func (e *Engine) patientFor(ctx context.Context, patientID string) *patients.Patient {
	if patientID == "" {
		return nil
	}
	p, err := e.directory.FindByID(ctx, patientID)
	if err != nil {
		if !errors.Is(err, patients.ErrPatientNotFound) {
			e.logger.Error("patient read failed", "error", err, "patient_id", patientID)
		}
		return nil
	}
	return p
}

// bookedSlot builds the BOOKED successor of an OPEN slot.
func (e *Engine) bookedSlot(slot schedule.Slot, apptID string, patient *patients.Patient, req BookRequest) schedule.Slot {
	updated := slot
	updated.Status = schedule.StatusBooked
	updated.AppointmentID = apptID
	updated.PatientID = patient.PatientID
	if req.ApptType != "" {
		updated.ApptType = req.ApptType
	}
	updated.ReasonForVisit = req.ReasonForVisit
	updated.UrgencyLevel = req.UrgencyLevel
	if updated.UrgencyLevel == "" {
		updated.UrgencyLevel = "ROUTINE"
	}
	updated.TriageRedFlags = req.TriageRedFlags
	if updated.TriageRedFlags == "" {
		updated.TriageRedFlags = "N"
	}
	updated.ConversationID = req.ConversationID
	updated.BookedBy = bookedByAgent
	updated.CancelReason = ""
	updated.UpdatedAt = e.timestamp()
	updated.DisplayCard = schedule.RenderDisplayCard(&updated, patient.FirstName, patient.LastName)
	return updated
}

// cancelledSlot builds the post-cancel row under the given policy.
func (e *Engine) cancelledSlot(slot schedule.Slot, reason, policy string) schedule.Slot {
	updated := slot
	updated.CancelReason = reason
	updated.UpdatedAt = e.timestamp()
	if policy == PolicyReopen {
		updated.Status = schedule.StatusOpen
		updated.AppointmentID = ""
		updated.PatientID = ""
		updated.ReasonForVisit = ""
		updated.UrgencyLevel = ""
		updated.TriageRedFlags = ""
		updated.BookedBy = ""
		updated.ConversationID = ""
	} else {
		updated.Status = schedule.StatusCancelled
	}
	updated.DisplayCard = schedule.RenderDisplayCard(&updated, "", "")
	return updated
}

// writeIf writes the slot conditioned on the status the caller just read.
func (e *Engine) writeIf(ctx context.Context, slot schedule.Slot, expected schedule.Status) error {
	start := e.now()
	err := e.store.UpdateIf(ctx, e.apptTable, slot.RowID, slot.ToRow(), "status", string(expected))
	e.metrics.ObserveStoreLatency("update_if", e.now().Sub(start).Seconds())
	return err
}

func (e *Engine) observeWriteFailure(operation string, err error) {
	if errors.Is(err, rowstore.ErrConditionFailed) {
		e.metrics.ObserveConflict()
		e.metrics.ObserveOperation(operation, "conflict")
		return
	}
	e.metrics.ObserveOperation(operation, "error")
}

// mapWriteError translates store sentinels into booking errors, re-reading
// the row so a lost race reports the state that won.
func (e *Engine) mapWriteError(ctx context.Context, rowID string, expected schedule.Status, err error) error {
	switch {
	case errors.Is(err, rowstore.ErrConditionFailed):
		current := schedule.Status("UNKNOWN")
		if slot, rerr := e.slotByRowID(ctx, rowID); rerr == nil {
			current = slot.Status
		}
		return &InvalidStateError{RowID: rowID, Current: current, Wanted: expected}
	case errors.Is(err, rowstore.ErrRowNotFound):
		return &NotFoundError{Kind: "slot", ID: rowID}
	default:
		return &TransientStoreError{Op: "update slot", Err: err}
	}
}

func (e *Engine) confirmBooking(ctx context.Context, slot schedule.Slot, patient *patients.Patient) {
	if e.notifier == nil {
		return
	}
	if err := e.notifier.ConfirmBooking(ctx, appointmentFor(slot, patient)); err != nil {
		e.logger.Error("booking confirmation failed", "error", err, "appointment_id", slot.AppointmentID)
	}
}

func (e *Engine) confirmCancellation(ctx context.Context, slot schedule.Slot, patient *patients.Patient) {
	if e.notifier == nil {
		return
	}
	if err := e.notifier.ConfirmCancellation(ctx, appointmentFor(slot, patient)); err != nil {
		e.logger.Error("cancellation confirmation failed", "error", err, "appointment_id", slot.AppointmentID)
	}
}

func (e *Engine) confirmReschedule(ctx context.Context, old, updated schedule.Slot, patient *patients.Patient) {
	if e.notifier == nil {
		return
	}
	if err := e.notifier.ConfirmReschedule(ctx, appointmentFor(old, patient), appointmentFor(updated, patient)); err != nil {
		e.logger.Error("reschedule confirmation failed", "error", err, "appointment_id", updated.AppointmentID)
	}
}

func (e *Engine) timestamp() string {
	return e.now().UTC().Format(time.RFC3339)
}

func confirmationFor(slot schedule.Slot) Confirmation {
	return Confirmation{
		AppointmentID: slot.AppointmentID,
		RowID:         slot.RowID,
		Date:          slot.Date,
		StartTime:     slot.StartTime,
		EndTime:       slot.EndTime,
		ApptType:      slot.ApptType,
		PatientID:     slot.PatientID,
		DisplayCard:   slot.DisplayCard,
	}
}

func appointmentFor(slot schedule.Slot, patient *patients.Patient) notify.Appointment {
	appt := notify.Appointment{
		AppointmentID: slot.AppointmentID,
		ApptType:      slot.ApptType,
		Date:          slot.Date,
		StartTime:     slot.StartTime,
	}
	if patient != nil {
		appt.PatientName = patient.FirstName
		appt.PatientPhone = patient.Phone
		appt.PatientEmail = patient.Email
		appt.ConsentToText = patient.ConsentToText == "Y"
		appt.PreferredMethod = patient.PreferredContactMethod
	}
	return appt
}

func storedIdentity(p *patients.Patient) *identity.Stored {
	return &identity.Stored{
		FirstName:   p.FirstName,
		LastName:    p.LastName,
		Phone:       p.Phone,
		Email:       p.Email,
		DateOfBirth: p.DOB,
	}
}
