package event

import "time"

const OtpDeliveryRequestedDestination string = "otp.delivery.requested"
const OtpDeliveryRequestedConsumerNotification string = "otp_delivery_notification"

// HeaderCorrelationID carries the request correlation ID across the broker.
const HeaderCorrelationID string = "cID"

// OtpDeliveryRequestedMessage asks the transport to deliver a freshly
// issued code. It carries the plaintext code and must never be logged.
type OtpDeliveryRequestedMessage struct {
	OtpID       string    `json:"otp_id"`
	CountryCode string    `json:"country_code"`
	PhoneNumber string    `json:"phone_number"`
	Email       string    `json:"email,omitempty"`
	Purpose     string    `json:"purpose"`
	Code        string    `json:"code"`
	ExpiresAt   time.Time `json:"expires_at"`
}
