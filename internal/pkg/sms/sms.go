package sms

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
)

var (
	// ErrRecipientRequired is returned when Message.To is empty or not in E.164 form.
	ErrRecipientRequired = errors.New("sms: recipient in E.164 form is required")
	// ErrBodyRequired is returned when Message.Body is empty.
	ErrBodyRequired = errors.New("sms: body is required")
)

// Message is one text message to a single handset.
type Message struct {
	// To is the recipient in E.164 form, e.g. +15551234567.
	To string
	// Body is the message text.
	Body string
}

// Validate checks the fields every driver needs.
func (m Message) Validate() error {
	if !isE164(m.To) {
		return ErrRecipientRequired
	}
	if strings.TrimSpace(m.Body) == "" {
		return ErrBodyRequired
	}
	return nil
}

func isE164(s string) bool {
	if len(s) < 8 || len(s) > 16 || s[0] != '+' {
		return false
	}
	for _, r := range s[1:] {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// SMS abstracts a text message carrier.
type SMS interface {
	io.Closer
	// Send hands msg to the carrier and returns the carrier message id.
	Send(ctx context.Context, msg Message) (string, error)
}

const (
	DriverLog = "log"
	DriverSNS = "sns"
)

// Options configures New.
type Options struct {
	// Driver selects the carrier: log or sns. Empty selects log.
	Driver string
	SNS    SNSOptions
}

// New builds the carrier named by opts.Driver.
func New(ctx context.Context, opts Options) (SMS, error) {
	switch strings.ToLower(strings.TrimSpace(opts.Driver)) {
	case "", DriverLog:
		return NewLog(), nil
	case DriverSNS:
		return NewSNS(ctx, opts.SNS)
	default:
		return nil, fmt.Errorf("sms: unknown driver %q", opts.Driver)
	}
}
