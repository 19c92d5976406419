// Package otp generates numeric one-time passcodes.
//
// Codes are drawn uniformly from a cryptographically secure source; the
// unpredictability of the code is the whole security property of an
// out-of-band passcode, so no math/rand fallback exists.
package otp
