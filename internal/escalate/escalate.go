// Package escalate hands callers off to the front desk when automated
// verification cannot clear them. Handoffs are queued for the front-desk
// console and mirrored to staff email.
package escalate

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"github.com/kairos-clinic/scheduling/internal/notify"
	"github.com/kairos-clinic/scheduling/pkg/logging"
)

// Handoff is one escalated conversation.
type Handoff struct {
	SessionID      string `json:"session_id"`
	Action         string `json:"action"`
	Reason         string `json:"reason"`
	CallerPhone    string `json:"caller_phone,omitempty"`
	PatientID      string `json:"patient_id,omitempty"`
	AppointmentID  string `json:"appointment_id,omitempty"`
	FailedAttempts int    `json:"failed_attempts"`
	OccurredAt     string `json:"occurred_at"`
}

// Summary renders the handoff for a human at the front desk.
func (h Handoff) Summary() string {
	s := fmt.Sprintf("Caller escalated during %s (%s).", h.Action, h.Reason)
	if h.CallerPhone != "" {
		s += fmt.Sprintf(" Phone: %s.", h.CallerPhone)
	}
	if h.AppointmentID != "" {
		s += fmt.Sprintf(" Appointment: %s.", h.AppointmentID)
	}
	if h.FailedAttempts > 0 {
		s += fmt.Sprintf(" Failed verification attempts: %d.", h.FailedAttempts)
	}
	return s
}

// Publisher delivers handoffs to the front desk.
type Publisher interface {
	Publish(ctx context.Context, h Handoff) error
}

// SQSPublisher queues handoffs on AWS/LocalStack SQS.
type SQSPublisher struct {
	client   *sqs.Client
	queueURL string
}

var _ Publisher = (*SQSPublisher)(nil)

// NewSQSPublisher creates a publisher around the provided SQS client.
func NewSQSPublisher(client *sqs.Client, queueURL string) *SQSPublisher {
	if client == nil {
		panic("escalate: SQS client cannot be nil")
	}
	if queueURL == "" {
		panic("escalate: SQS queueURL cannot be empty")
	}
	return &SQSPublisher{client: client, queueURL: queueURL}
}

// Publish sends the handoff as a JSON message.
func (p *SQSPublisher) Publish(ctx context.Context, h Handoff) error {
	body, err := json.Marshal(h)
	if err != nil {
		return fmt.Errorf("escalate: marshal handoff: %w", err)
	}
	_, err = p.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(p.queueURL),
		MessageBody: aws.String(string(body)),
	})
	if err != nil {
		return fmt.Errorf("escalate: failed to send SQS message: %w", err)
	}
	return nil
}

// MemoryPublisher collects handoffs in memory for tests and dev runs.
type MemoryPublisher struct {
	mu       sync.Mutex
	handoffs []Handoff
}

var _ Publisher = (*MemoryPublisher)(nil)

// NewMemoryPublisher creates an empty in-memory publisher.
func NewMemoryPublisher() *MemoryPublisher {
	return &MemoryPublisher{}
}

// Publish records the handoff.
func (p *MemoryPublisher) Publish(_ context.Context, h Handoff) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.handoffs = append(p.handoffs, h)
	return nil
}

// Handoffs returns a copy of everything published so far.
func (p *MemoryPublisher) Handoffs() []Handoff {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Handoff, len(p.handoffs))
	copy(out, p.handoffs)
	return out
}

// Service publishes handoffs and mirrors them to the front-desk inbox and
// phone.
type Service struct {
	publisher Publisher
	email     notify.EmailSender
	deskEmail string
	sms       notify.SMSSender
	deskPhone string
	logger    *logging.Logger
	now       func() time.Time
}

// ServiceConfig wires the escalation service. Email and SMS are optional
// mirrors; the publisher is the channel of record.
type ServiceConfig struct {
	Publisher Publisher
	Email     notify.EmailSender
	DeskEmail string
	SMS       notify.SMSSender
	DeskPhone string
	Logger    *logging.Logger
}

// NewService builds the escalation service.
func NewService(cfg ServiceConfig) *Service {
	if cfg.Publisher == nil {
		panic("escalate: publisher cannot be nil")
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	return &Service{
		publisher: cfg.Publisher,
		email:     cfg.Email,
		deskEmail: cfg.DeskEmail,
		sms:       cfg.SMS,
		deskPhone: cfg.DeskPhone,
		logger:    cfg.Logger,
		now:       time.Now,
	}
}

// Escalate queues the handoff. The email and SMS mirrors are best effort:
// front-desk staff watch the queue, the inbox and phone are backups.
func (s *Service) Escalate(ctx context.Context, h Handoff) error {
	if h.OccurredAt == "" {
		h.OccurredAt = s.now().UTC().Format(time.RFC3339)
	}
	if err := s.publisher.Publish(ctx, h); err != nil {
		return err
	}
	s.logger.Warn("caller escalated to front desk",
		"session_id", h.SessionID,
		"action", h.Action,
		"failed_attempts", h.FailedAttempts,
	)

	if s.email != nil && s.deskEmail != "" {
		msg := notify.EmailMessage{
			To:      s.deskEmail,
			Subject: "Caller escalation",
			Body:    h.Summary(),
		}
		if err := s.email.Send(ctx, msg); err != nil {
			s.logger.Error("escalation email failed", "error", err, "session_id", h.SessionID)
		}
	}
	if s.sms != nil && s.deskPhone != "" {
		if err := s.sms.SendSMS(ctx, s.deskPhone, h.Summary()); err != nil {
			s.logger.Error("escalation SMS failed", "error", err, "session_id", h.SessionID)
		}
	}
	return nil
}
