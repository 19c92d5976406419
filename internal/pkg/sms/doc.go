// Package sms defines the contract for sending short text messages.
//
// Use cases depend on the SMS interface and the Message payload only. The
// concrete carrier (AWS SNS, or a log sink for local runs) is chosen at
// bootstrap with New.
package sms
