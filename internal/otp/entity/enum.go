package entity

import "strings"

type Purpose int16

const (
	// PurposeUnknown is mean purpose is not known / not set.
	PurposeUnknown Purpose = 0

	// PurposeLogin mean the code authenticates an existing user.
	PurposeLogin Purpose = 1

	// PurposeSignup mean the code proves ownership before an account is created.
	PurposeSignup Purpose = 2

	// PurposeVerifyPhone mean the code confirms a phone number change.
	PurposeVerifyPhone Purpose = 3

	// PurposeVerifyEmail mean the code confirms an email address.
	PurposeVerifyEmail Purpose = 4
)

// ParsePurpose accepts the wire form (LOGIN) or the column form (login).
func ParsePurpose(s string) Purpose {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "LOGIN":
		return PurposeLogin
	case "SIGNUP":
		return PurposeSignup
	case "VERIFY_PHONE":
		return PurposeVerifyPhone
	case "VERIFY_EMAIL":
		return PurposeVerifyEmail
	default:
		return PurposeUnknown
	}
}

func (p Purpose) String() string {
	switch p {
	case PurposeLogin:
		return "LOGIN"
	case PurposeSignup:
		return "SIGNUP"
	case PurposeVerifyPhone:
		return "VERIFY_PHONE"
	case PurposeVerifyEmail:
		return "VERIFY_EMAIL"
	default:
		return "UNKNOWN"
	}
}

// Column returns the value stored in otp_codes.purpose.
func (p Purpose) Column() string {
	return strings.ToLower(p.String())
}

func (p Purpose) IsUnknown() bool {
	switch p {
	case PurposeLogin, PurposeSignup, PurposeVerifyPhone, PurposeVerifyEmail:
		return false
	default:
		return true
	}
}

type IdentifierClass int16

const (
	IdentifierClassUnknown IdentifierClass = 0
	IdentifierClassPhone   IdentifierClass = 1
	IdentifierClassEmail   IdentifierClass = 2
	IdentifierClassIP      IdentifierClass = 3
)

func (c IdentifierClass) String() string {
	switch c {
	case IdentifierClassPhone:
		return "phone"
	case IdentifierClassEmail:
		return "email"
	case IdentifierClassIP:
		return "ip"
	default:
		return "unknown"
	}
}

// VerifyResult is the outcome of one verification attempt.
type VerifyResult int16

const (
	VerifyResultValid VerifyResult = iota
	VerifyResultNotFoundOrExpired
	VerifyResultMaxAttemptsExceeded
	VerifyResultCodeMismatch
)

func (r VerifyResult) String() string {
	switch r {
	case VerifyResultValid:
		return "VALID"
	case VerifyResultNotFoundOrExpired:
		return "NOT_FOUND_OR_EXPIRED"
	case VerifyResultMaxAttemptsExceeded:
		return "MAX_ATTEMPTS_EXCEEDED"
	case VerifyResultCodeMismatch:
		return "CODE_MISMATCH"
	default:
		return "UNKNOWN"
	}
}
