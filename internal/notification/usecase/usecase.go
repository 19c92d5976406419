package usecase

import (
	"context"
	"embed"
	htmltemplate "html/template"
	texttemplate "text/template"

	"github.com/shandysiswandi/gotp/internal/pkg/clock"
	"github.com/shandysiswandi/gotp/internal/pkg/config"
	"github.com/shandysiswandi/gotp/internal/pkg/idempotency"
	"github.com/shandysiswandi/gotp/internal/pkg/instrument"
	"github.com/shandysiswandi/gotp/internal/pkg/mail"
	"github.com/shandysiswandi/gotp/internal/pkg/sms"
	"github.com/shandysiswandi/gotp/internal/pkg/validator"
	"go.opentelemetry.io/otel/trace"
)

const defaultAppName = "gotp"

//go:embed template/*
var templateFS embed.FS

var (
	emailHTML = htmltemplate.Must(htmltemplate.ParseFS(templateFS, "template/otp_email.html"))
	emailText = texttemplate.Must(texttemplate.ParseFS(templateFS, "template/otp_email.txt"))
)

type repoMail interface {
	Send(ctx context.Context, msg mail.Message) error
}

type repoSMS interface {
	Send(ctx context.Context, msg sms.Message) (string, error)
}

type Usecase struct {
	repoMail    repoMail
	repoSMS     repoSMS
	idempotency idempotency.Idempotency
	validator   validator.Validator
	clock       clock.Clocker
	ins         instrument.Instrumentation
	appName     string
}

type Dependency struct {
	RepoMail    repoMail
	RepoSMS     repoSMS
	Idempotency idempotency.Idempotency
	Validator   validator.Validator
	Config      config.Config
	Clock       clock.Clocker
	Instrument  instrument.Instrumentation
}

func NewNotification(dep Dependency) *Usecase {
	appName := dep.Config.GetString("modules.notification.app_name")
	if appName == "" {
		appName = defaultAppName
	}

	return &Usecase{
		repoMail:    dep.RepoMail,
		repoSMS:     dep.RepoSMS,
		idempotency: dep.Idempotency,
		validator:   dep.Validator,
		clock:       dep.Clock,
		ins:         dep.Instrument,
		appName:     appName,
	}
}

func (s *Usecase) startSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	return s.ins.Tracer("notification.usecase").Start(ctx, name)
}
