package mail

import (
	"context"
	"log/slog"
)

// Log records that a message would have been sent. Bodies are not logged.
type Log struct {
	defaultFrom string
}

func NewLog(defaultFrom string) *Log {
	return &Log{defaultFrom: defaultFrom}
}

func (l *Log) Send(ctx context.Context, msg Message) error {
	from, err := msg.envelope(l.defaultFrom)
	if err != nil {
		return err
	}

	slog.InfoContext(ctx, "email accepted by log driver", "from", from, "recipients", len(msg.To), "subject", msg.Subject)
	return nil
}

func (l *Log) Close() error {
	return nil
}
