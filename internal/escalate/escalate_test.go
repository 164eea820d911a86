package escalate

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/kairos-clinic/scheduling/internal/notify"
	"github.com/kairos-clinic/scheduling/pkg/logging"
)

type fakeEmail struct {
	msgs []notify.EmailMessage
}

func (f *fakeEmail) Send(_ context.Context, msg notify.EmailMessage) error {
	f.msgs = append(f.msgs, msg)
	return nil
}

type fakeSMS struct {
	to   []string
	last string
}

func (f *fakeSMS) SendSMS(_ context.Context, to, body string) error {
	f.to = append(f.to, to)
	f.last = body
	return nil
}

func TestEscalate_QueuesAndMirrors(t *testing.T) {
	pub := NewMemoryPublisher()
	email := &fakeEmail{}
	sms := &fakeSMS{}
	svc := NewService(ServiceConfig{
		Publisher: pub,
		Email:     email,
		DeskEmail: "desk@kairos.example",
		SMS:       sms,
		DeskPhone: "+15550100000",
		Logger:    logging.Default(),
	})
	svc.now = func() time.Time { return time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC) }

	h := Handoff{
		SessionID:      "sess-1",
		Action:         "cancel_appointment",
		Reason:         "too many failed verification attempts",
		CallerPhone:    "+15550102030",
		AppointmentID:  "A-000003",
		FailedAttempts: 3,
	}
	if err := svc.Escalate(context.Background(), h); err != nil {
		t.Fatalf("Escalate returned error: %v", err)
	}

	got := pub.Handoffs()
	if len(got) != 1 {
		t.Fatalf("expected 1 queued handoff, got %d", len(got))
	}
	if got[0].OccurredAt != "2026-09-01T10:00:00Z" {
		t.Fatalf("expected timestamp stamped on publish, got %q", got[0].OccurredAt)
	}

	if len(email.msgs) != 1 {
		t.Fatalf("expected front-desk email, got %d", len(email.msgs))
	}
	if email.msgs[0].To != "desk@kairos.example" {
		t.Fatalf("unexpected recipient %q", email.msgs[0].To)
	}

	if len(sms.to) != 1 || sms.to[0] != "+15550100000" {
		t.Fatalf("expected front-desk SMS, got %v", sms.to)
	}
	if !strings.Contains(sms.last, "cancel_appointment") {
		t.Fatalf("expected handoff summary in SMS, got %q", sms.last)
	}
}

func TestEscalate_NoInboxConfigured(t *testing.T) {
	pub := NewMemoryPublisher()
	svc := NewService(ServiceConfig{Publisher: pub, Logger: logging.Default()})

	if err := svc.Escalate(context.Background(), Handoff{SessionID: "sess-1", Action: "book_new"}); err != nil {
		t.Fatalf("Escalate returned error: %v", err)
	}
	if len(pub.Handoffs()) != 1 {
		t.Fatal("expected handoff queued even without an inbox")
	}
}

func TestHandoffSummary(t *testing.T) {
	h := Handoff{
		Action:         "reschedule_appointment",
		Reason:         "identity mismatch",
		CallerPhone:    "+15550102030",
		AppointmentID:  "A-000003",
		FailedAttempts: 3,
	}
	s := h.Summary()
	for _, want := range []string{"reschedule_appointment", "identity mismatch", "+15550102030", "A-000003", "3"} {
		if !strings.Contains(s, want) {
			t.Fatalf("expected %q in summary, got %q", want, s)
		}
	}
}
