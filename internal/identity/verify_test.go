package identity

import (
	"strings"
	"testing"
)

func TestVerify_NewPatientBookingNeedsNothing(t *testing.T) {
	res := Verify(ActionBookNew, Provided{}, nil, 0)
	if !res.Verified || res.Level != LevelNone {
		t.Fatalf("expected verified at level 0, got %+v", res)
	}
}

func TestVerify_ThreeFailuresForceEscalation(t *testing.T) {
	// Even a fully valid Tier-0 action escalates after three strikes.
	res := Verify(ActionBookNew, Provided{}, nil, 3)
	if res.Verified {
		t.Fatal("expected unverified result")
	}
	if !res.RequiresEscalation || res.Level != LevelEscalate {
		t.Fatalf("expected escalation, got %+v", res)
	}
	if res.Message == "" {
		t.Fatal("expected an escalation message for the caller")
	}
}

func TestVerify_UnknownActionFailsClosed(t *testing.T) {
	res := Verify(Action("delete_everything"), Provided{}, nil, 0)
	if res.Verified || !res.RequiresEscalation {
		t.Fatalf("expected fail-closed escalation, got %+v", res)
	}
}

func TestVerify_LookupNameAndDOB(t *testing.T) {
	stored := &Stored{FirstName: "Maria", LastName: "Lopez", DateOfBirth: "1985-02-14"}

	tests := []struct {
		name     string
		provided Provided
		want     bool
	}{
		{"exact match", Provided{FirstName: "Maria", LastName: "Lopez", DateOfBirth: "1985-02-14"}, true},
		{"case-insensitive name", Provided{FirstName: "maria", LastName: "LOPEZ", DateOfBirth: "1985-02-14"}, true},
		{"wrong dob", Provided{FirstName: "Maria", LastName: "Lopez", DateOfBirth: "1985-02-15"}, false},
		{"wrong name", Provided{FirstName: "Marta", LastName: "Lopez", DateOfBirth: "1985-02-14"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Verify(ActionLookup, tt.provided, stored, 0)
			if res.Verified != tt.want {
				t.Fatalf("Verify = %+v, want verified=%v", res, tt.want)
			}
			if !tt.want && res.RequiresEscalation {
				t.Fatal("a simple mismatch must not escalate")
			}
		})
	}
}

func TestVerify_LookupNameAndPhoneNormalizesDigits(t *testing.T) {
	stored := &Stored{FirstName: "Maria", LastName: "Lopez", Phone: "+1 (555) 010-2030"}
	res := Verify(ActionLookup, Provided{FirstName: "Maria", LastName: "Lopez", Phone: "15550102030"}, stored, 0)
	if !res.Verified {
		t.Fatalf("expected digits-only phone compare to match, got %+v", res)
	}
}

func TestVerify_PhoneMatchesAcrossCountryCodeRenderings(t *testing.T) {
	stored := &Stored{FirstName: "Maria", LastName: "Lopez", Phone: "+15550102030"}

	// Callers usually read their number without the country code; the stored
	// record carries E.164.
	res := Verify(ActionLookup, Provided{FirstName: "Maria", LastName: "Lopez", Phone: "555-010-2030"}, stored, 0)
	if !res.Verified {
		t.Fatalf("expected national rendering to match E.164 record, got %+v", res)
	}

	res = Verify(ActionLookup, Provided{FirstName: "Maria", LastName: "Lopez", Phone: "555-010-9999"}, stored, 0)
	if res.Verified {
		t.Fatal("expected a different number to fail")
	}
}

func TestVerifyWithLimit_CustomThreshold(t *testing.T) {
	res := VerifyWithLimit(ActionBookNew, Provided{}, nil, 1, 1)
	if !res.RequiresEscalation {
		t.Fatalf("expected escalation at a limit of 1, got %+v", res)
	}

	res = VerifyWithLimit(ActionBookNew, Provided{}, nil, 3, 5)
	if !res.Verified {
		t.Fatalf("expected 3 strikes under a limit of 5 to proceed, got %+v", res)
	}

	// Zero means unconfigured, not unlimited.
	res = VerifyWithLimit(ActionBookNew, Provided{}, nil, DefaultMaxFailedAttempts, 0)
	if !res.RequiresEscalation {
		t.Fatalf("expected default limit to apply, got %+v", res)
	}
}

func TestVerify_LookupFirstContactAcceptedUncontested(t *testing.T) {
	res := Verify(ActionLookup, Provided{FirstName: "Maria", LastName: "Lopez", DateOfBirth: "1985-02-14"}, nil, 0)
	if !res.Verified {
		t.Fatalf("expected first-contact claim to be accepted, got %+v", res)
	}
}

func TestVerify_LookupEnumeratesMissingFields(t *testing.T) {
	res := Verify(ActionLookup, Provided{FirstName: "Maria"}, nil, 0)
	if res.Verified {
		t.Fatal("expected unverified result")
	}
	joined := strings.Join(res.MissingFields, ",")
	if !strings.Contains(joined, "last name") {
		t.Fatalf("expected last name in missing fields, got %v", res.MissingFields)
	}
	if !strings.Contains(joined, "date of birth or phone number") {
		t.Fatalf("expected dob-or-phone in missing fields, got %v", res.MissingFields)
	}
	if !strings.Contains(res.Message, "Please provide your") {
		t.Fatalf("expected remediation message, got %q", res.Message)
	}
}

func TestVerify_SensitivePhoneAndDOB(t *testing.T) {
	stored := &Stored{Phone: "+15550102030", DateOfBirth: "1985-02-14", Email: "maria@example.com"}

	res := Verify(ActionCancel, Provided{Phone: "555-010-2030", DateOfBirth: "1985-02-14"}, stored, 0)
	if !res.Verified || res.Level != LevelSensitive {
		t.Fatalf("expected Tier-2 pass, got %+v", res)
	}

	res = Verify(ActionCancel, Provided{Phone: "555-010-2030", DateOfBirth: "1990-01-01"}, stored, 0)
	if res.Verified {
		t.Fatal("expected mismatched DOB to fail")
	}
	if res.RequiresEscalation {
		t.Fatal("a mismatch alone must not escalate")
	}
	if !strings.Contains(res.Message, "OTP") {
		t.Fatalf("expected the OTP alternative to be offered, got %q", res.Message)
	}
}

func TestVerify_SensitivePhoneAndEmail(t *testing.T) {
	stored := &Stored{Phone: "+15550102030", Email: "Maria@Example.com"}

	res := Verify(ActionReschedule, Provided{Phone: "+15550102030", Email: "maria@example.com"}, stored, 0)
	if !res.Verified {
		t.Fatalf("expected case-insensitive email match, got %+v", res)
	}
}

func TestVerify_SensitiveWithoutStoredRecordCannotPass(t *testing.T) {
	res := Verify(ActionCancel, Provided{Phone: "+15550102030", DateOfBirth: "1985-02-14"}, nil, 0)
	if res.Verified {
		t.Fatal("Tier-2 must never pass without a stored record")
	}
	if !strings.Contains(res.Message, "find your appointment first") {
		t.Fatalf("expected locate-appointment guidance, got %q", res.Message)
	}
}

func TestVerify_SensitiveOTP(t *testing.T) {
	tests := []struct {
		name     string
		provided Provided
		want     bool
	}{
		{"issued and matching", Provided{OTPCode: "123456", OTPVerified: true}, true},
		{"wrong code", Provided{OTPCode: "123456", OTPVerified: false}, false},
		{"not six digits", Provided{OTPCode: "12345", OTPVerified: true}, false},
		{"non-numeric", Provided{OTPCode: "12a456", OTPVerified: true}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Verify(ActionCancel, tt.provided, nil, 0)
			if res.Verified != tt.want {
				t.Fatalf("Verify = %+v, want verified=%v", res, tt.want)
			}
			if !res.RequiresOTP {
				t.Fatal("expected RequiresOTP on the OTP path")
			}
		})
	}
}

func TestVerify_SensitiveMissingFields(t *testing.T) {
	res := Verify(ActionCancel, Provided{DateOfBirth: "1985-02-14"}, nil, 0)
	if res.Verified {
		t.Fatal("expected unverified result")
	}
	if len(res.MissingFields) == 0 || res.MissingFields[0] != "phone number" {
		t.Fatalf("expected phone number to be reported missing, got %v", res.MissingFields)
	}
}

func TestLevelFor(t *testing.T) {
	if LevelFor(ActionBookNew) != LevelNone {
		t.Error("book_new should be level 0")
	}
	if LevelFor(ActionLookup) != LevelBasic {
		t.Error("lookup should be level 1")
	}
	if LevelFor(ActionCancel) != LevelSensitive || LevelFor(ActionReschedule) != LevelSensitive {
		t.Error("cancel/reschedule should be level 2")
	}
	if LevelFor(Action("bogus")) != LevelEscalate {
		t.Error("unknown actions should map to escalation")
	}
}
