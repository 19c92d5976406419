package entity

import "time"

// Channel is the transport a passcode goes out on.
type Channel int16

const (
	ChannelUnknown Channel = 0
	ChannelSMS     Channel = 1
	ChannelEmail   Channel = 2
)

func (c Channel) String() string {
	switch c {
	case ChannelSMS:
		return "SMS"
	case ChannelEmail:
		return "EMAIL"
	default:
		return "UNKNOWN"
	}
}

// Delivery is one issued passcode that has to reach its owner.
type Delivery struct {
	OtpID       string
	CountryCode string
	PhoneNumber string
	Email       string
	Purpose     string
	Code        string
	ExpiresAt   time.Time
}

// Phone returns the recipient in E.164 form.
func (d Delivery) Phone() string {
	return d.CountryCode + d.PhoneNumber
}

// Expired reports whether the code stopped being usable at now.
func (d Delivery) Expired(now time.Time) bool {
	return !now.Before(d.ExpiresAt)
}

// ValidMinutes is the whole number of minutes left on the code, rounded up.
func (d Delivery) ValidMinutes(now time.Time) int {
	left := d.ExpiresAt.Sub(now)
	if left <= 0 {
		return 0
	}
	return int((left + time.Minute - 1) / time.Minute)
}

// Channels lists the transports the delivery goes out on.
func (d Delivery) Channels() []Channel {
	if d.Email == "" {
		return []Channel{ChannelSMS}
	}
	return []Channel{ChannelSMS, ChannelEmail}
}
