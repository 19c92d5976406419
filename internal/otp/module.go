package otp

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/shandysiswandi/gotp/internal/otp/inbound"
	"github.com/shandysiswandi/gotp/internal/otp/outbound/cache"
	"github.com/shandysiswandi/gotp/internal/otp/outbound/db"
	"github.com/shandysiswandi/gotp/internal/otp/outbound/mq"
	"github.com/shandysiswandi/gotp/internal/otp/usecase"
	"github.com/shandysiswandi/gotp/internal/pkg/clock"
	"github.com/shandysiswandi/gotp/internal/pkg/config"
	"github.com/shandysiswandi/gotp/internal/pkg/goroutine"
	"github.com/shandysiswandi/gotp/internal/pkg/hash"
	"github.com/shandysiswandi/gotp/internal/pkg/instrument"
	"github.com/shandysiswandi/gotp/internal/pkg/messaging"
	"github.com/shandysiswandi/gotp/internal/pkg/otp"
	"github.com/shandysiswandi/gotp/internal/pkg/router"
	"github.com/shandysiswandi/gotp/internal/pkg/uid"
	"github.com/shandysiswandi/gotp/internal/pkg/validator"
)

const codeLength = 6

type Dependency struct {
	DBConn     *pgxpool.Pool              `validate:"required"`
	CacheConn  redis.Cmdable              `validate:"required"`
	Goroutine  *goroutine.Manager         `validate:"required"`
	Router     *router.Router             `validate:"required"`
	Messaging  messaging.Publisher        `validate:"required"`
	Config     config.Config              `validate:"required"`
	Instrument instrument.Instrumentation `validate:"required"`
	UUID       uid.StringID               `validate:"required"`
	Clock      clock.Clocker              `validate:"required"`
	Validator  validator.Validator        `validate:"required"`
}

// New wires the passcode module. The sweeper runs until ctx is done.
func New(ctx context.Context, dep Dependency) error {
	if err := dep.Validator.Validate(dep); err != nil {
		return err
	}

	codeHash, err := hash.New(
		dep.Config.GetString("modules.otp.code_storage"),
		dep.Config.GetString("modules.otp.pepper"),
	)
	if err != nil {
		return fmt.Errorf("otp: %w", err)
	}

	uc := usecase.New(usecase.Dependency{
		RepoDB:        db.NewDB(dep.DBConn, dep.UUID, dep.Instrument),
		RepoCache:     cache.NewCache(dep.CacheConn, dep.Instrument),
		RepoMessaging: mq.NewMessaging(dep.Messaging, dep.Instrument),
		Validator:     dep.Validator,
		Generator:     otp.NewNumeric(codeLength),
		Hash:          codeHash,
		UUID:          dep.UUID,
		Clock:         dep.Clock,
		Instrument:    dep.Instrument,
		Policy:        usecase.PolicyFromConfig(dep.Config),
	})

	inbound.RegisterHTTPEndpoint(dep.Router, uc)

	if dep.Config.GetBool("modules.otp.sweeper.enabled") {
		interval := dep.Config.GetDuration("modules.otp.sweeper.interval")
		if !inbound.RegisterSweeperJob(ctx, dep.Goroutine, interval, uc) {
			return fmt.Errorf("otp: sweeper not scheduled, interval %s", interval)
		}
	}

	return nil
}
