// Package identity implements the tiered identity checks that gate booking
// operations, plus the Redis-backed OTP and failed-attempt bookkeeping
// around them.
package identity

import (
	"strings"
)

// Action is what the caller is trying to do. Each action maps to a
// verification level.
type Action string

const (
	ActionBookNew    Action = "book_new"
	ActionLookup     Action = "lookup_appointment"
	ActionCancel     Action = "cancel_appointment"
	ActionReschedule Action = "reschedule_appointment"
)

// Level is the strength of identity evidence an action requires.
type Level int

const (
	// LevelNone: new-patient booking, nothing to prove.
	LevelNone Level = 0
	// LevelBasic: non-sensitive lookup, name plus DOB or phone.
	LevelBasic Level = 1
	// LevelSensitive: cancel/reschedule, OTP or two matching stored fields.
	LevelSensitive Level = 2
	// LevelEscalate: hand the caller to a human.
	LevelEscalate Level = 3
)

// DefaultMaxFailedAttempts is the strike count that forces escalation
// regardless of the action, when the deployment does not configure one.
const DefaultMaxFailedAttempts = 3

const escalationMessage = "For security, I'll transfer you to the front desk."

// LevelFor returns the verification level an action requires. Unknown
// actions fail closed to escalation.
func LevelFor(action Action) Level {
	switch action {
	case ActionBookNew:
		return LevelNone
	case ActionLookup:
		return LevelBasic
	case ActionCancel, ActionReschedule:
		return LevelSensitive
	default:
		return LevelEscalate
	}
}

// Provided carries the identity evidence the caller supplied for one
// attempt.
type Provided struct {
	FirstName   string
	LastName    string
	Phone       string
	Email       string
	DateOfBirth string

	// OTPCode is the one-time code the caller read back, if any.
	OTPCode string
	// OTPVerified is set by the OTP service when the code matched an issued,
	// unexpired one. Verify never reads Redis itself.
	OTPVerified bool
}

// Stored is the identity on record for the patient being claimed.
type Stored struct {
	FirstName   string
	LastName    string
	Phone       string
	Email       string
	DateOfBirth string
}

// Result is the verdict of one verification attempt. It is computed per
// call and never persisted.
type Result struct {
	Verified           bool
	Level              Level
	MissingFields      []string
	Message            string
	RequiresOTP        bool
	RequiresEscalation bool
}

// Verify evaluates the caller's evidence for an action under the default
// strike limit. It is a pure function with no I/O and it never fails: every
// outcome is a Result carrying a remediation message when unverified.
func Verify(action Action, provided Provided, stored *Stored, failedAttempts int) Result {
	return VerifyWithLimit(action, provided, stored, failedAttempts, DefaultMaxFailedAttempts)
}

// VerifyWithLimit is Verify with a caller-chosen strike limit. A limit of
// zero or less falls back to the default.
func VerifyWithLimit(action Action, provided Provided, stored *Stored, failedAttempts, maxFailed int) Result {
	if maxFailed <= 0 {
		maxFailed = DefaultMaxFailedAttempts
	}
	if failedAttempts >= maxFailed {
		return Result{
			Level:              LevelEscalate,
			RequiresEscalation: true,
			Message:            escalationMessage,
		}
	}

	switch LevelFor(action) {
	case LevelNone:
		return Result{Verified: true, Level: LevelNone}
	case LevelBasic:
		return verifyBasic(provided, stored)
	case LevelSensitive:
		return verifySensitive(provided, stored)
	default:
		return Result{
			Level:              LevelEscalate,
			RequiresEscalation: true,
			Message:            escalationMessage,
		}
	}
}

// verifyBasic accepts (name + DOB) or (name + phone). With no stored record
// the claim is accepted uncontested: first-contact lookups have nothing to
// compare against yet.
func verifyBasic(p Provided, stored *Stored) Result {
	first := strings.TrimSpace(p.FirstName)
	last := strings.TrimSpace(p.LastName)
	phone := strings.TrimSpace(p.Phone)
	dob := strings.TrimSpace(p.DateOfBirth)

	if first != "" && last != "" && dob != "" {
		if stored == nil {
			return Result{Verified: true, Level: LevelBasic}
		}
		if nameMatches(first, last, stored) && dob == strings.TrimSpace(stored.DateOfBirth) {
			return Result{Verified: true, Level: LevelBasic}
		}
		return Result{
			Level:   LevelBasic,
			Message: "The information provided doesn't match our records.",
		}
	}

	if first != "" && last != "" && phone != "" {
		if stored == nil {
			return Result{Verified: true, Level: LevelBasic}
		}
		if nameMatches(first, last, stored) && phoneKey(phone) == phoneKey(stored.Phone) {
			return Result{Verified: true, Level: LevelBasic}
		}
		return Result{
			Level:   LevelBasic,
			Message: "The information provided doesn't match our records.",
		}
	}

	var missing []string
	if first == "" {
		missing = append(missing, "first name")
	}
	if last == "" {
		missing = append(missing, "last name")
	}
	if dob == "" && phone == "" {
		missing = append(missing, "date of birth or phone number")
	}
	return Result{
		Level:         LevelBasic,
		MissingFields: missing,
		Message:       "Please provide your " + strings.Join(missing, " and ") + " to verify your identity.",
	}
}

// verifySensitive accepts exactly one of: an issued OTP, phone + DOB, or
// phone + email, the last two checked against the stored record.
func verifySensitive(p Provided, stored *Stored) Result {
	phone := strings.TrimSpace(p.Phone)
	dob := strings.TrimSpace(p.DateOfBirth)
	email := strings.TrimSpace(p.Email)
	otp := strings.TrimSpace(p.OTPCode)

	if otp != "" {
		if p.OTPVerified && isSixDigits(otp) {
			return Result{Verified: true, Level: LevelSensitive, RequiresOTP: true}
		}
		return Result{
			Level:       LevelSensitive,
			RequiresOTP: true,
			Message:     "Invalid OTP code. Please check and try again.",
		}
	}

	if phone != "" && dob != "" {
		if stored == nil {
			return Result{
				Level:   LevelSensitive,
				Message: "I need to find your appointment first. Please provide your phone number and date of birth.",
			}
		}
		if phoneKey(phone) == phoneKey(stored.Phone) && dob == strings.TrimSpace(stored.DateOfBirth) {
			return Result{Verified: true, Level: LevelSensitive}
		}
		return Result{
			Level:   LevelSensitive,
			Message: "The phone number and date of birth don't match our records. Would you like to receive an OTP code via SMS instead?",
		}
	}

	if phone != "" && email != "" {
		if stored == nil {
			return Result{
				Level:   LevelSensitive,
				Message: "I need to find your appointment first. Please provide your phone number and email.",
			}
		}
		if phoneKey(phone) == phoneKey(stored.Phone) && strings.EqualFold(email, strings.TrimSpace(stored.Email)) {
			return Result{Verified: true, Level: LevelSensitive}
		}
		return Result{
			Level:   LevelSensitive,
			Message: "The phone number and email don't match our records. Would you like to receive an OTP code via SMS instead?",
		}
	}

	var missing []string
	if phone == "" {
		missing = append(missing, "phone number")
	}
	if dob == "" && email == "" {
		missing = append(missing, "date of birth or email")
	}
	message := "For security, I need your phone number and either your date of birth or email address. Alternatively, I can send you an OTP code via SMS."
	if len(missing) > 0 {
		message = "For security, I need your " + strings.Join(missing, " and ") + ". Alternatively, I can send you an OTP code via SMS."
	}
	return Result{
		Level:         LevelSensitive,
		MissingFields: missing,
		Message:       message,
	}
}

func nameMatches(first, last string, stored *Stored) bool {
	return strings.EqualFold(first, strings.TrimSpace(stored.FirstName)) &&
		strings.EqualFold(last, strings.TrimSpace(stored.LastName))
}

func digitsOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// phoneKey compares phones on country-code digits, defaulting bare
// ten-digit national numbers to +1. Matches the E.164 key the patient
// directory stores, so a caller reading their number without the country
// code still matches the record.
func phoneKey(s string) string {
	d := digitsOnly(s)
	if len(d) == 10 {
		return "1" + d
	}
	return d
}

func isSixDigits(s string) bool {
	if len(s) != 6 {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
