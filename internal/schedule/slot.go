// Package schedule models the clinic's appointment slots and finds open
// ones. A slot is one bookable time unit in the provider's lane, persisted
// as a row in the appointment index table.
package schedule

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/kairos-clinic/scheduling/internal/rowstore"
)

// Status is the lifecycle state of a slot.
type Status string

const (
	StatusOpen      Status = "OPEN"
	StatusBooked    Status = "BOOKED"
	StatusCancelled Status = "CANCELLED"
	StatusNoShow    Status = "NO_SHOW"
	StatusCompleted Status = "COMPLETED"
)

// Slot is one row of the appointment index.
type Slot struct {
	RowID     string
	SlotKey   string
	Date      string // YYYY-MM-DD
	StartTime string // HH:MM
	EndTime   string // HH:MM
	Lane      string
	Operatory string

	ProviderName string
	ProviderRole string
	ApptType     string
	DurationMin  int

	Status        Status
	AppointmentID string
	PatientID     string

	ReasonForVisit string
	UrgencyLevel   string
	TriageRedFlags string
	BookedBy       string
	CancelReason   string

	CreatedAt      string
	UpdatedAt      string
	ConversationID string
	DisplayCard    string
}

// Validate enforces the booked/open field invariant: appointment and patient
// ids are both empty iff the slot is OPEN, both set iff it is BOOKED.
func (s *Slot) Validate() error {
	switch s.Status {
	case StatusOpen:
		if s.AppointmentID != "" || s.PatientID != "" {
			return fmt.Errorf("schedule: OPEN slot %s carries booking fields", s.RowID)
		}
	case StatusBooked:
		if s.AppointmentID == "" || s.PatientID == "" {
			return fmt.Errorf("schedule: BOOKED slot %s is missing appointment or patient id", s.RowID)
		}
	case StatusCancelled, StatusNoShow, StatusCompleted:
	default:
		return fmt.Errorf("schedule: slot %s has unknown status %q", s.RowID, s.Status)
	}
	return nil
}

// ComposeSlotKey derives the natural key used as a fallback identifier when
// a row id is unavailable.
func ComposeSlotKey(date, startTime, lane string) string {
	return date + "|" + startTime + "|" + lane
}

// FromRow decodes a store row into a Slot.
func FromRow(row rowstore.Row) Slot {
	duration, _ := strconv.Atoi(strings.TrimSpace(row["duration_min"]))
	return Slot{
		RowID:          row["row_id"],
		SlotKey:        row["slot_key"],
		Date:           strings.TrimSpace(row["date"]),
		StartTime:      strings.TrimSpace(row["start_time"]),
		EndTime:        strings.TrimSpace(row["end_time"]),
		Lane:           strings.TrimSpace(row["lane"]),
		Operatory:      row["operatory"],
		ProviderName:   row["provider_name"],
		ProviderRole:   row["provider_role"],
		ApptType:       strings.TrimSpace(row["appt_type"]),
		DurationMin:    duration,
		Status:         Status(strings.TrimSpace(row["status"])),
		AppointmentID:  row["appointment_id"],
		PatientID:      row["patient_id"],
		ReasonForVisit: row["reason_for_visit"],
		UrgencyLevel:   row["urgency_level"],
		TriageRedFlags: row["triage_red_flags"],
		BookedBy:       row["booked_by"],
		CancelReason:   row["cancel_or_resched_reason"],
		CreatedAt:      row["created_at"],
		UpdatedAt:      row["updated_at"],
		ConversationID: row["conversation_id"],
		DisplayCard:    row["display_card"],
	}
}

// ToRow encodes the slot as a store row.
func (s *Slot) ToRow() rowstore.Row {
	return rowstore.Row{
		"row_id":                   s.RowID,
		"slot_key":                 s.SlotKey,
		"date":                     s.Date,
		"start_time":               s.StartTime,
		"end_time":                 s.EndTime,
		"lane":                     s.Lane,
		"operatory":                s.Operatory,
		"provider_name":            s.ProviderName,
		"provider_role":            s.ProviderRole,
		"appt_type":                s.ApptType,
		"duration_min":             strconv.Itoa(s.DurationMin),
		"status":                   string(s.Status),
		"appointment_id":           s.AppointmentID,
		"patient_id":               s.PatientID,
		"reason_for_visit":         s.ReasonForVisit,
		"urgency_level":            s.UrgencyLevel,
		"triage_red_flags":         s.TriageRedFlags,
		"booked_by":                s.BookedBy,
		"cancel_or_resched_reason": s.CancelReason,
		"created_at":               s.CreatedAt,
		"updated_at":               s.UpdatedAt,
		"conversation_id":          s.ConversationID,
		"display_card":             s.DisplayCard,
	}
}

// RenderDisplayCard regenerates the human-readable summary for the slot's
// current state. patientFirst/patientLast may be empty when no patient
// record is at hand.
func RenderDisplayCard(s *Slot, patientFirst, patientLast string) string {
	switch s.Status {
	case StatusOpen:
		return fmt.Sprintf("[OPEN] %s (%dm)", s.ApptType, s.DurationMin)
	case StatusBooked:
		if patientFirst != "" || patientLast != "" {
			initial := ""
			if patientFirst != "" {
				initial = string([]rune(patientFirst)[0])
			}
			return fmt.Sprintf("[BOOKED] %s | %s | %s. %s", s.PatientID, s.ApptType, initial, patientLast)
		}
		return fmt.Sprintf("[BOOKED] %s | %s", s.PatientID, s.ApptType)
	case StatusCancelled:
		return fmt.Sprintf("[CANCELLED] %s | %s", s.ApptType, s.PatientID)
	case StatusNoShow:
		return fmt.Sprintf("[NO_SHOW] %s | %s", s.ApptType, s.PatientID)
	case StatusCompleted:
		return fmt.Sprintf("[DONE] %s | %s", s.ApptType, s.PatientID)
	default:
		return fmt.Sprintf("[%s] %s", s.Status, s.ApptType)
	}
}
