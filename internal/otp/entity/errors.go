package entity

import "errors"

var (
	// ErrRateLimited is returned when an identifier exhausted its window.
	ErrRateLimited = errors.New("otp: rate limited")
	// ErrResendCooldown is returned when a resend arrives too soon after the previous one.
	ErrResendCooldown = errors.New("otp: resend cooldown active")
	// ErrNotFoundOrExpired means no pending code exists for the subject and purpose.
	ErrNotFoundOrExpired = errors.New("otp: not found or expired")
	// ErrMaxAttemptsExceeded means the pending code has no attempts left.
	ErrMaxAttemptsExceeded = errors.New("otp: max attempts exceeded")
	// ErrCodeMismatch means the submitted code is wrong.
	ErrCodeMismatch = errors.New("otp: code mismatch")
)

// Err returns the sentinel error for r, or nil for VerifyResultValid.
func (r VerifyResult) Err() error {
	switch r {
	case VerifyResultValid:
		return nil
	case VerifyResultMaxAttemptsExceeded:
		return ErrMaxAttemptsExceeded
	case VerifyResultCodeMismatch:
		return ErrCodeMismatch
	default:
		return ErrNotFoundOrExpired
	}
}
