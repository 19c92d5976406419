package entity

import (
	"strings"
	"time"
)

// Subject is the principal a code is issued for. Pending codes are keyed by
// phone (country code + number) and purpose; Email only adds a delivery
// channel and a rate limit identifier.
type Subject struct {
	CountryCode string
	PhoneNumber string
	Email       string
}

// Phone returns the E.164 form used as the phone rate limit identifier.
func (s Subject) Phone() string {
	return s.CountryCode + s.PhoneNumber
}

// NormalizedEmail lowercases and trims the email.
func (s Subject) NormalizedEmail() string {
	return strings.ToLower(strings.TrimSpace(s.Email))
}

// Key identifies the pending slot of a (subject, purpose) pair.
type Key struct {
	CountryCode string
	PhoneNumber string
	Purpose     Purpose
}

// String returns a stable textual form, used for locks and cache keys.
func (k Key) String() string {
	return k.CountryCode + k.PhoneNumber + ":" + k.Purpose.Column()
}

// RequestContext carries provenance of an issuance request.
type RequestContext struct {
	IPAddress string
	UserAgent string
}

// Record is one issued passcode.
type Record struct {
	ID          string
	Subject     Subject
	Purpose     Purpose
	Code        string // stored form; plaintext or a hash depending on configuration
	CreatedAt   time.Time
	ExpiresAt   time.Time
	Attempts    int32
	MaxAttempts int32
	Verified    bool
	VerifiedAt  *time.Time
	Request     RequestContext
}

// Key returns the pending slot key of the record.
func (r Record) Key() Key {
	return Key{CountryCode: r.Subject.CountryCode, PhoneNumber: r.Subject.PhoneNumber, Purpose: r.Purpose}
}

// IsPending reports whether the record can still be verified at now.
func (r Record) IsPending(now time.Time) bool {
	return !r.Verified && r.ExpiresAt.After(now)
}

// RemainingAttempts returns how many guesses are left.
func (r Record) RemainingAttempts() int32 {
	return max(r.MaxAttempts-r.Attempts, 0)
}

// Attempt applies one verification attempt to r. The caller must hold the
// record exclusively (row lock) and persist the returned record.
//
// matches is only consulted when an attempt is actually spent, so a record
// that is no longer pending or has exhausted its attempts never reaches the
// comparison.
func (r Record) Attempt(now time.Time, matches func(stored string) bool) (Record, VerifyResult) {
	if !r.IsPending(now) {
		return r, VerifyResultNotFoundOrExpired
	}
	if r.Attempts >= r.MaxAttempts {
		return r, VerifyResultMaxAttemptsExceeded
	}

	r.Attempts++
	if !matches(r.Code) {
		return r, VerifyResultCodeMismatch
	}

	r.Verified = true
	verifiedAt := now
	r.VerifiedAt = &verifiedAt
	return r, VerifyResultValid
}

// RateLimitWindow is one fixed bucket for one identifier.
type RateLimitWindow struct {
	ID              string
	Identifier      string
	IdentifierClass IdentifierClass
	WindowStart     time.Time
	WindowEnd       time.Time
	RequestCount    int32
}

// RateLimitPolicy bounds accepted issuances per identifier.
type RateLimitPolicy struct {
	Window      time.Duration
	MaxRequests int32
}

// RateLimitIdentifier is one identifier checked before issuance.
type RateLimitIdentifier struct {
	Value string
	Class IdentifierClass
}

// Reservation is the outcome of a check-and-reserve call.
type Reservation struct {
	Allowed   bool
	Remaining int32
	ResetAt   time.Time
	Window    RateLimitWindow
}

// VerifyAttempt identifies the pending slot and time of a verification.
type VerifyAttempt struct {
	Key Key
	Now time.Time
}

// VerifyOutcome is what storage reports after applying an attempt.
type VerifyOutcome struct {
	Result VerifyResult
	Record *Record
}

// RetentionPolicy sets how long terminal rows are kept.
type RetentionPolicy struct {
	ExpiredFor  time.Duration
	VerifiedFor time.Duration
	WindowFor   time.Duration
}

// SweepResult counts rows removed by the retention sweeper.
type SweepResult struct {
	DeletedCodes   int64
	DeletedWindows int64
}

// Total returns the number of deleted rows.
func (s SweepResult) Total() int64 {
	return s.DeletedCodes + s.DeletedWindows
}
