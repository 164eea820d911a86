package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Store backends supported for the appointment/patient row store.
const (
	StoreMemory   = "memory"
	StoreDynamo   = "dynamo"
	StorePostgres = "postgres"
)

// Cancellation policies. A deployment runs exactly one of them.
const (
	// CancelPolicyReopen flips a cancelled slot back to OPEN and clears the
	// booking fields, so the slot is immediately bookable again.
	CancelPolicyReopen = "reopen"
	// CancelPolicyTombstone marks the slot CANCELLED permanently.
	CancelPolicyTombstone = "tombstone"
)

// Config holds application configuration
type Config struct {
	Port     string
	Env      string
	LogLevel string

	StoreBackend      string
	AppointmentsTable string
	PatientsTable     string
	DatabaseURL       string
	StoreTimeout      time.Duration

	Lane          string
	ProviderName  string
	CancelPolicy  string
	OpeningsLimit int

	RowIDPrefix         string
	AppointmentIDPrefix string
	PatientIDPrefix     string

	RedisAddr     string
	RedisPassword string
	RedisTLS      bool

	OTPTTL             time.Duration
	AttemptWindow      time.Duration
	MaxFailedAttempts  int
	EscalationQueueURL string
	FrontDeskPhone     string
	FrontDeskEmail     string

	AWSRegion           string
	AWSAccessKeyID      string
	AWSSecretAccessKey  string
	AWSEndpointOverride string

	SMSAPIKey     string
	SMSFromNumber string
	SMSBaseURL    string

	SESFromEmail      string
	SESFromName       string
	SendGridAPIKey    string
	SendGridFromEmail string
	SendGridFromName  string

	AdminJWTSecret string
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:     getEnv("PORT", "8080"),
		Env:      getEnv("ENV", "development"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		StoreBackend:      strings.ToLower(strings.TrimSpace(getEnv("STORE_BACKEND", StoreMemory))),
		AppointmentsTable: getEnv("APPOINTMENTS_TABLE", "appt_index"),
		PatientsTable:     getEnv("PATIENTS_TABLE", "patients"),
		DatabaseURL:       getEnv("DATABASE_URL", ""),
		StoreTimeout:      getEnvAsDuration("STORE_TIMEOUT", 10*time.Second),

		Lane:          getEnv("CLINIC_LANE", "Dr-Chair"),
		ProviderName:  getEnv("PROVIDER_NAME", "Dr. Patel"),
		CancelPolicy:  strings.ToLower(strings.TrimSpace(getEnv("CANCEL_POLICY", CancelPolicyReopen))),
		OpeningsLimit: getEnvAsInt("OPENINGS_DEFAULT_LIMIT", 5),

		RowIDPrefix:         getEnv("ROW_ID_PREFIX", "IDX-"),
		AppointmentIDPrefix: getEnv("APPOINTMENT_ID_PREFIX", "A-"),
		PatientIDPrefix:     getEnv("PATIENT_ID_PREFIX", "P-"),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisTLS:      getEnvAsBool("REDIS_TLS", false),

		OTPTTL:             getEnvAsDuration("OTP_TTL", 5*time.Minute),
		AttemptWindow:      getEnvAsDuration("VERIFICATION_ATTEMPT_WINDOW", 15*time.Minute),
		MaxFailedAttempts:  getEnvAsInt("VERIFICATION_MAX_FAILED_ATTEMPTS", 3),
		EscalationQueueURL: getEnv("ESCALATION_QUEUE_URL", ""),
		FrontDeskPhone:     getEnv("FRONT_DESK_PHONE", ""),
		FrontDeskEmail:     getEnv("FRONT_DESK_EMAIL", ""),

		AWSRegion:           getEnv("AWS_REGION", "us-east-1"),
		AWSAccessKeyID:      getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey:  getEnv("AWS_SECRET_ACCESS_KEY", ""),
		AWSEndpointOverride: getEnv("AWS_ENDPOINT_OVERRIDE", ""),

		SMSAPIKey:     getEnv("SMS_API_KEY", ""),
		SMSFromNumber: getEnv("SMS_FROM_NUMBER", ""),
		SMSBaseURL:    getEnv("SMS_BASE_URL", "https://api.telnyx.com/v2/messages"),

		SESFromEmail:      getEnv("SES_FROM_EMAIL", ""),
		SESFromName:       getEnv("SES_FROM_NAME", "Kairos Clinic"),
		SendGridAPIKey:    getEnv("SENDGRID_API_KEY", ""),
		SendGridFromEmail: getEnv("SENDGRID_FROM_EMAIL", ""),
		SendGridFromName:  getEnv("SENDGRID_FROM_NAME", "Kairos Clinic"),

		AdminJWTSecret: getEnv("ADMIN_JWT_SECRET", ""),
	}
}

// Validate rejects configurations that would let a deployment run with an
// ambiguous store backend or mixed cancellation policies.
func (c *Config) Validate() error {
	switch c.StoreBackend {
	case StoreMemory, StoreDynamo, StorePostgres:
	default:
		return fmt.Errorf("config: unknown STORE_BACKEND %q", c.StoreBackend)
	}
	switch c.CancelPolicy {
	case CancelPolicyReopen, CancelPolicyTombstone:
	default:
		return fmt.Errorf("config: unknown CANCEL_POLICY %q (must be %q or %q)",
			c.CancelPolicy, CancelPolicyReopen, CancelPolicyTombstone)
	}
	if c.StoreBackend == StorePostgres && c.DatabaseURL == "" {
		return fmt.Errorf("config: DATABASE_URL required for postgres backend")
	}
	if c.OpeningsLimit <= 0 {
		return fmt.Errorf("config: OPENINGS_DEFAULT_LIMIT must be positive")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvAsBool(key string, fallback bool) bool {
	if value, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	if value, ok := os.LookupEnv(key); ok {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return fallback
}
