package inbound

import (
	"github.com/shandysiswandi/gotp/internal/otp/usecase"
	"github.com/shandysiswandi/gotp/internal/pkg/router"
)

// HTTPEndpoint exposes the passcode operations over HTTP.
type HTTPEndpoint struct {
	uc uc
}

func requestInput(r *router.Request, req RequestOtpRequest) usecase.RequestOtpInput {
	return usecase.RequestOtpInput{
		CountryCode: req.CountryCode,
		PhoneNumber: req.PhoneNumber,
		Email:       req.Email,
		Purpose:     req.Purpose,
		IPAddress:   r.ClientIP(),
		UserAgent:   r.UserAgent(),
	}
}

func requestResponse(out *usecase.RequestOtpOutput) RequestOtpResponse {
	return RequestOtpResponse{
		ExpiresInSeconds: out.ExpiresInSeconds,
		ExpiresAt:        out.ExpiresAt,
		DeliveryQueued:   out.DeliveryQueued,
	}
}

// RequestOtp issues a new passcode and queues it for delivery.
// @Summary Request a one-time passcode
// @Description Rate limited per phone, email and source IP. Any previous pending code for the same phone and purpose stops working.
// @Tags OTP
// @Accept json
// @Produce json
// @Param request body RequestOtpRequest true "Request payload"
// @Success 200 {object} router.successResponse{data=RequestOtpResponse} "Code issued"
// @Failure 400 {object} router.errorResponse "Invalid request body"
// @Failure 422 {object} router.errorResponse "Validation error"
// @Failure 429 {object} router.errorResponse "Too many OTP requests" example:{"message":"Too many OTP requests. Please try again later.","error":{"reason":"RATE_LIMITED","reset_at":"2026-03-01T10:15:00Z"}}
// @Failure 503 {object} router.errorResponse "Service unavailable"
// @Router /api/v1/otp/request [post]
func (h *HTTPEndpoint) RequestOtp(r *router.Request) (any, error) {
	var req RequestOtpRequest
	if err := r.DecodeBody(&req); err != nil {
		return nil, err
	}

	out, err := h.uc.RequestOtp(r.Context(), requestInput(r, req))
	if err != nil {
		return nil, err
	}

	return requestResponse(out), nil
}

// ResendOtp replaces the pending passcode once the resend cooldown passed.
// @Summary Resend a one-time passcode
// @Tags OTP
// @Accept json
// @Produce json
// @Param request body RequestOtpRequest true "Resend payload"
// @Success 200 {object} router.successResponse{data=RequestOtpResponse} "Code issued"
// @Failure 400 {object} router.errorResponse "Invalid request body"
// @Failure 422 {object} router.errorResponse "Validation error"
// @Failure 429 {object} router.errorResponse "Resend cooldown or rate limit"
// @Failure 503 {object} router.errorResponse "Service unavailable"
// @Router /api/v1/otp/resend [post]
func (h *HTTPEndpoint) ResendOtp(r *router.Request) (any, error) {
	var req RequestOtpRequest
	if err := r.DecodeBody(&req); err != nil {
		return nil, err
	}

	out, err := h.uc.ResendOtp(r.Context(), requestInput(r, req))
	if err != nil {
		return nil, err
	}

	return requestResponse(out), nil
}

// VerifyOtp checks a submitted passcode against the newest pending one.
// @Summary Verify a one-time passcode
// @Description Every call spends one attempt on the pending code. A verified code cannot be used again.
// @Tags OTP
// @Accept json
// @Produce json
// @Param request body VerifyOtpRequest true "Verify payload"
// @Success 200 {object} router.successResponse{data=VerifyOtpResponse} "Code accepted"
// @Failure 400 {object} router.errorResponse "Invalid request body"
// @Failure 401 {object} router.errorResponse "Code rejected" example:{"message":"Invalid OTP code. Please try again.","error":{"reason":"CODE_MISMATCH","remaining_attempts":"4"}}
// @Failure 422 {object} router.errorResponse "Validation error"
// @Failure 503 {object} router.errorResponse "Service unavailable"
// @Router /api/v1/otp/verify [post]
func (h *HTTPEndpoint) VerifyOtp(r *router.Request) (any, error) {
	var req VerifyOtpRequest
	if err := r.DecodeBody(&req); err != nil {
		return nil, err
	}

	out, err := h.uc.VerifyOtp(r.Context(), usecase.VerifyOtpInput{
		CountryCode: req.CountryCode,
		PhoneNumber: req.PhoneNumber,
		Purpose:     req.Purpose,
		Code:        req.Code,
	})
	if err != nil {
		return nil, err
	}

	return VerifyOtpResponse{Verified: out.Verified, Purpose: out.Purpose}, nil
}
