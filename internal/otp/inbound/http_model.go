package inbound

import "time"

type RequestOtpRequest struct {
	CountryCode string `json:"country_code" example:"+1"`
	PhoneNumber string `json:"phone_number" example:"5551234567"`
	Email       string `json:"email,omitempty" example:"user@example.com"`
	Purpose     string `json:"purpose" example:"LOGIN" enums:"LOGIN,SIGNUP,VERIFY_PHONE,VERIFY_EMAIL"`
}

type RequestOtpResponse struct {
	ExpiresInSeconds int64     `json:"expires_in_seconds" example:"600"`
	ExpiresAt        time.Time `json:"expires_at"`
	DeliveryQueued   bool      `json:"delivery_queued" example:"true"`
}

func (RequestOtpResponse) Message() string {
	return "OTP sent successfully."
}

type VerifyOtpRequest struct {
	CountryCode string `json:"country_code" example:"+1"`
	PhoneNumber string `json:"phone_number" example:"5551234567"`
	Purpose     string `json:"purpose" example:"LOGIN"`
	Code        string `json:"code" example:"123456"`
}

type VerifyOtpResponse struct {
	Verified bool   `json:"verified" example:"true"`
	Purpose  string `json:"purpose" example:"LOGIN"`
}

func (VerifyOtpResponse) Message() string {
	return "OTP verified successfully."
}
