package auth

import (
	"errors"
	"fmt"
	"time"
)

// Failure taxonomy of the authentication core. Callers match these with
// errors.Is and map them to transport-level responses; message text is
// never part of the contract.
var (
	// ErrUserNotFound covers absent and soft-deleted users alike.
	ErrUserNotFound = errors.New("user not found")
	// ErrOTPNotRequested means no passcode is outstanding for the user.
	ErrOTPNotRequested = errors.New("otp not requested")
	// ErrOTPIncorrect means the submitted passcode does not match.
	ErrOTPIncorrect = errors.New("incorrect otp")
	// ErrOTPExpired means the outstanding passcode is past its TTL.
	ErrOTPExpired = errors.New("otp expired")
	// ErrOTPAlreadyIssued means a non-expired passcode is still outstanding.
	ErrOTPAlreadyIssued = errors.New("otp already issued")
	// ErrAlreadyLoggedIn means the user still holds a live session.
	ErrAlreadyLoggedIn = errors.New("already logged in")
	// ErrUnauthorized collapses every session-level rejection so callers
	// cannot distinguish missing, deactivated and logged-out accounts.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrForbidden means the authenticated user's role is not allowed.
	ErrForbidden = errors.New("forbidden")
	// ErrDependency marks store failures surfaced to the caller.
	ErrDependency = errors.New("dependency unavailable")
	// ErrMailUnavailable marks synchronous mail submission failures.
	ErrMailUnavailable = errors.New("mail unavailable")
)

// RetryError rejects a fresh OTP request while a non-expired passcode is
// outstanding. After is the remaining backoff, always positive.
type RetryError struct {
	After time.Duration
}

func (e *RetryError) Error() string {
	return fmt.Sprintf("otp already issued, retry in %s", e.After)
}

// Unwrap lets errors.Is match ErrOTPAlreadyIssued.
func (e *RetryError) Unwrap() error {
	return ErrOTPAlreadyIssued
}

// RetrySeconds returns the backoff rounded up to whole seconds.
func (e *RetryError) RetrySeconds() int {
	secs := int((e.After + time.Second - 1) / time.Second)
	if secs < 1 {
		secs = 1
	}
	return secs
}
