// Package patients maintains the clinic's patient directory, keyed by
// phone number. Phone is the identity the voice agent actually has for a
// caller, so upserts dedupe on it.
package patients

import (
	"strings"

	"github.com/kairos-clinic/scheduling/internal/rowstore"
)

// Patient types recorded in the directory.
const (
	TypeNew      = "NEW"
	TypeExisting = "EXISTING"
)

// Patient is one row of the patients table.
type Patient struct {
	PatientID string
	FirstName string
	LastName  string
	Phone     string
	Email     string
	DOB       string // YYYY-MM-DD

	PatientType            string
	ConsentToText          string // Y/N
	PreferredContactMethod string // SMS/CALL/EMAIL
	InsuranceProvider      string
	InsuranceMemberID      string
	Notes                  string

	CreatedAt string
	UpdatedAt string
}

// NormalizePhone strips everything but digits. Callers pass phones in
// whatever shape the transcription produced; comparisons always happen on
// the digit string.
func NormalizePhone(phone string) string {
	var b strings.Builder
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// CanonicalPhone renders a phone in E.164. Ten-digit national numbers get
// the +1 country code, so "555-010-2030" and "+1 (555) 010-2030" produce
// the same key. This is the only phone form the directory stores and
// compares.
func CanonicalPhone(phone string) string {
	digits := NormalizePhone(phone)
	switch {
	case digits == "":
		return ""
	case len(digits) == 10:
		return "+1" + digits
	case len(digits) == 11 && digits[0] == '1':
		return "+" + digits
	default:
		return "+" + digits
	}
}

// FromRow decodes a store row into a Patient.
func FromRow(row rowstore.Row) Patient {
	return Patient{
		PatientID:              row["patient_id"],
		FirstName:              strings.TrimSpace(row["first_name"]),
		LastName:               strings.TrimSpace(row["last_name"]),
		Phone:                  strings.TrimSpace(row["phone"]),
		Email:                  strings.TrimSpace(row["email"]),
		DOB:                    strings.TrimSpace(row["dob"]),
		PatientType:            row["patient_type"],
		ConsentToText:          row["consent_to_text"],
		PreferredContactMethod: row["preferred_contact_method"],
		InsuranceProvider:      row["insurance_provider"],
		InsuranceMemberID:      row["insurance_member_id"],
		Notes:                  row["notes"],
		CreatedAt:              row["created_at"],
		UpdatedAt:              row["updated_at"],
	}
}

// ToRow encodes the patient as a store row.
func (p *Patient) ToRow() rowstore.Row {
	return rowstore.Row{
		"patient_id":               p.PatientID,
		"first_name":               p.FirstName,
		"last_name":                p.LastName,
		"phone":                    p.Phone,
		"email":                    p.Email,
		"dob":                      p.DOB,
		"patient_type":             p.PatientType,
		"consent_to_text":          p.ConsentToText,
		"preferred_contact_method": p.PreferredContactMethod,
		"insurance_provider":       p.InsuranceProvider,
		"insurance_member_id":      p.InsuranceMemberID,
		"notes":                    p.Notes,
		"created_at":               p.CreatedAt,
		"updated_at":               p.UpdatedAt,
	}
}

// merge copies non-empty incoming fields over the existing record. Empty
// incoming values never erase stored data.
func merge(existing Patient, incoming Patient) Patient {
	out := existing
	if incoming.FirstName != "" {
		out.FirstName = incoming.FirstName
	}
	if incoming.LastName != "" {
		out.LastName = incoming.LastName
	}
	if incoming.Phone != "" {
		out.Phone = incoming.Phone
	}
	if incoming.Email != "" {
		out.Email = incoming.Email
	}
	if incoming.DOB != "" {
		out.DOB = incoming.DOB
	}
	if incoming.PatientType != "" {
		out.PatientType = incoming.PatientType
	}
	if incoming.ConsentToText != "" {
		out.ConsentToText = incoming.ConsentToText
	}
	if incoming.PreferredContactMethod != "" {
		out.PreferredContactMethod = incoming.PreferredContactMethod
	}
	if incoming.InsuranceProvider != "" {
		out.InsuranceProvider = incoming.InsuranceProvider
	}
	if incoming.InsuranceMemberID != "" {
		out.InsuranceMemberID = incoming.InsuranceMemberID
	}
	if incoming.Notes != "" {
		out.Notes = incoming.Notes
	}
	return out
}
