package inbound

import (
	"context"

	"github.com/shandysiswandi/gotp/internal/notification/usecase"
)

type uc interface {
	ConsumeOtpDelivery(ctx context.Context, in usecase.ConsumeOtpDeliveryInput) error
}
