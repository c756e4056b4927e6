package auth

import (
	"time"

	"github.com/pulsefit/pulsefit-auth/internal/models"
	"github.com/pulsefit/pulsefit-auth/internal/security"
)

// OTPEngine generates and verifies one-time passcodes against the OTP
// fields of a user record. It holds no state of its own; the credential
// store is the single source of truth.
type OTPEngine struct {
	ttl    time.Duration
	length int
}

// NewOTPEngine constructs an OTPEngine with the given passcode TTL and
// code length.
func NewOTPEngine(ttl time.Duration, length int) *OTPEngine {
	return &OTPEngine{ttl: ttl, length: length}
}

// TTL returns the configured passcode lifetime.
func (e *OTPEngine) TTL() time.Duration {
	return e.ttl
}

// Issue generates a fresh passcode for the user and returns the plaintext
// together with its bcrypt hash. When a non-expired passcode is still
// outstanding it returns a RetryError instead; the stored hash is never
// overwritten inside the backoff window.
func (e *OTPEngine) Issue(user *models.User, now time.Time) (code, hash string, err error) {
	if user.OTPCreatedAt != nil {
		expiry := user.OTPCreatedAt.Add(e.ttl)
		if now.Before(expiry) {
			return "", "", &RetryError{After: expiry.Sub(now)}
		}
	}

	code, err = security.GenerateOTP(e.length)
	if err != nil {
		return "", "", err
	}
	hash, err = security.HashText(code)
	if err != nil {
		return "", "", err
	}
	return code, hash, nil
}

// Verify checks a candidate passcode against the user's stored hash.
// The hash comparison runs first; expiry is only consulted afterwards.
// A wrong code inside the TTL is ErrOTPIncorrect, never ErrOTPExpired.
/// Any code submitted past the TTL, matching or not, is ErrOTPExpired:
// "expired, request a new one" beats "wrong code" for late submissions.
func (e *OTPEngine) Verify(user *models.User, candidate string, now time.Time) error {
	if user.HashedOTP == nil {
		return ErrOTPNotRequested
	}

	expired := user.OTPCreatedAt != nil && now.After(user.OTPCreatedAt.Add(e.ttl))
	if !security.VerifyHashedText(candidate, *user.HashedOTP) {
		if expired {
			return ErrOTPExpired
		}
		return ErrOTPIncorrect
	}
	if expired {
		return ErrOTPExpired
	}
	return nil
}
