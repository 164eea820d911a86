package identity

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/kairos-clinic/scheduling/pkg/logging"
)

// SMSSender delivers the one-time code to the caller's phone.
type SMSSender interface {
	SendSMS(ctx context.Context, to, body string) error
}

// OTPService issues and checks one-time codes as the alternative Tier-2
// credential. Codes live in Redis under the caller's session, expire after
// the configured TTL, and are consumed on first successful check.
type OTPService struct {
	redis  redis.Cmdable
	sms    SMSSender
	ttl    time.Duration
	logger *logging.Logger
}

// NewOTPService builds the OTP service.
func NewOTPService(client redis.Cmdable, sms SMSSender, ttl time.Duration, logger *logging.Logger) *OTPService {
	if client == nil {
		panic("identity: redis client cannot be nil")
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &OTPService{redis: client, sms: sms, ttl: ttl, logger: logger}
}

func otpKey(sessionID string) string {
	return "otp:" + sessionID
}

// Issue mints a fresh 6-digit code for the session and sends it to phone.
// Re-issuing replaces any outstanding code.
func (s *OTPService) Issue(ctx context.Context, sessionID, phone string) error {
	if sessionID == "" {
		return errors.New("identity: session id required")
	}
	if phone == "" {
		return errors.New("identity: phone required for OTP delivery")
	}

	code, err := generateCode()
	if err != nil {
		return fmt.Errorf("identity: generate OTP: %w", err)
	}
	if err := s.redis.Set(ctx, otpKey(sessionID), code, s.ttl).Err(); err != nil {
		return fmt.Errorf("identity: store OTP: %w", err)
	}

	body := fmt.Sprintf("Your Kairos Clinic verification code is %s. It expires in %d minutes.",
		code, int(s.ttl.Minutes()))
	if s.sms != nil {
		if err := s.sms.SendSMS(ctx, phone, body); err != nil {
			return fmt.Errorf("identity: deliver OTP: %w", err)
		}
	}

	s.logger.Info("OTP issued", "session_id", sessionID)
	return nil
}

// Check reports whether code matches the outstanding OTP for the session.
// A matching code is consumed and cannot be replayed; a mismatch leaves the
// issued code in place (the attempt counter gates guessing).
func (s *OTPService) Check(ctx context.Context, sessionID, code string) (bool, error) {
	if sessionID == "" || code == "" {
		return false, nil
	}

	stored, err := s.redis.Get(ctx, otpKey(sessionID)).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("identity: fetch OTP: %w", err)
	}
	if stored != code {
		return false, nil
	}

	if err := s.redis.Del(ctx, otpKey(sessionID)).Err(); err != nil {
		return false, fmt.Errorf("identity: consume OTP: %w", err)
	}
	return true, nil
}

func generateCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1_000_000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}
