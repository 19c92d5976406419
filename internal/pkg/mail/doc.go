// Package mail sends passcode emails.
//
// Callers build a Message and hand it to a Mail implementation: SMTP for
// real delivery, Log for local runs where no relay exists.
package mail
