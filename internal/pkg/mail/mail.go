package mail

import (
	"context"
	"errors"
	"fmt"
	"io"
	netmail "net/mail"
	"strings"
)

var (
	// ErrNoRecipients is returned when To is empty.
	ErrNoRecipients = errors.New("mail: no recipients provided")
	// ErrNoSender is returned when both Message.From and the default sender are empty.
	ErrNoSender = errors.New("mail: no sender provided")
	// ErrHeaderInjection is returned when a header value carries a line break.
	ErrHeaderInjection = errors.New("mail: header value contains a line break")
)

// Message is one email. TextBody and HTMLBody may both be set, in which
// case the message is sent as multipart/alternative.
type Message struct {
	From     string
	To       []string
	Subject  string
	TextBody string
	HTMLBody string
}

// Mail abstracts an email provider.
type Mail interface {
	io.Closer
	Send(ctx context.Context, msg Message) error
}

// envelope resolves the sender and checks addresses and the subject.
func (m Message) envelope(defaultFrom string) (string, error) {
	if len(m.To) == 0 {
		return "", ErrNoRecipients
	}

	from := m.From
	if from == "" {
		from = defaultFrom
	}
	if from == "" {
		return "", ErrNoSender
	}

	if strings.ContainsAny(m.Subject, "\r\n") {
		return "", ErrHeaderInjection
	}
	for _, addr := range append([]string{from}, m.To...) {
		if strings.ContainsAny(addr, "\r\n") {
			return "", ErrHeaderInjection
		}
		if _, err := netmail.ParseAddress(addr); err != nil {
			return "", fmt.Errorf("mail: invalid address %q: %w", addr, err)
		}
	}

	return from, nil
}

const (
	DriverLog  = "log"
	DriverSMTP = "smtp"
)

// New builds the provider named by driver. Empty selects smtp when a host is
// configured and log otherwise.
func New(driver string, cfg SMTPConfig) (Mail, error) {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "":
		if cfg.Host == "" {
			return NewLog(cfg.From), nil
		}
		return NewSMTP(cfg)
	case DriverSMTP:
		return NewSMTP(cfg)
	case DriverLog:
		return NewLog(cfg.From), nil
	default:
		return nil, fmt.Errorf("mail: unknown driver %q", driver)
	}
}
