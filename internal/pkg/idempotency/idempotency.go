// Package idempotency guards side effects that must run at most once per key,
// such as sending a passcode for a message that a broker may redeliver.
package idempotency

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var (
	ErrAlreadyInProgress = errors.New("operation already in progress")
	ErrAlreadyCompleted  = errors.New("operation already completed")
	ErrAlreadyFailed     = errors.New("operation already failed")
	ErrInvalidState      = errors.New("invalid state")
	// ErrLockLost means the in-progress marker expired or was replaced
	// before fn returned. The outcome of fn was not recorded.
	ErrLockLost = errors.New("operation lock lost")
)

// Stored values. An in-progress marker carries the owner token after the
// prefix so only the owner can finish it.
const (
	valueInProgress = "in_progress:"
	valueCompleted  = "completed"
	valueFailed     = "failed"
)

const (
	defaultLockDuration = time.Minute
	defaultStateTTL     = time.Minute
	keyPrefix           = "idempotency:"
)

// finishScript replaces the marker only while ARGV[1] still owns it. An
// empty ARGV[2] deletes the key.
var finishScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) ~= ARGV[1] then
  return 0
end
if ARGV[2] == "" then
  redis.call("DEL", KEYS[1])
else
  redis.call("SET", KEYS[1], ARGV[2], "PX", ARGV[3])
end
return 1
`)

type Idempotency interface {
	Exec(ctx context.Context, key string, fn func(context.Context) error, opts ...Option) error
}

// StateTracker records operation state in Redis. It needs Redis 7 for
// SET NX GET.
type StateTracker struct {
	client redis.Cmdable
}

func New(client redis.Cmdable) *StateTracker {
	return &StateTracker{client: client}
}

type Option func(*execOptions)

type execOptions struct {
	lockDuration     time.Duration
	stateTTL         time.Duration
	releaseOnFailure bool
}

// WithLockDuration bounds how long an in-progress marker survives a crashed worker.
func WithLockDuration(d time.Duration) Option {
	return func(o *execOptions) { o.lockDuration = d }
}

// WithStateTTL sets how long the completed or failed marker is kept.
func WithStateTTL(d time.Duration) Option {
	return func(o *execOptions) { o.stateTTL = d }
}

// WithReleaseOnFailure removes the key when fn fails so a later redelivery
// can try again, instead of recording a failure.
func WithReleaseOnFailure() Option {
	return func(o *execOptions) { o.releaseOnFailure = true }
}

func stateError(value string) error {
	switch {
	case strings.HasPrefix(value, valueInProgress):
		return ErrAlreadyInProgress
	case value == valueCompleted:
		return ErrAlreadyCompleted
	case value == valueFailed:
		return ErrAlreadyFailed
	default:
		return ErrInvalidState
	}
}

// Exec runs fn once per key. A concurrent or repeated call returns one of the
// ErrAlready* errors without calling fn.
func (s *StateTracker) Exec(ctx context.Context, key string, fn func(context.Context) error, opts ...Option) error {
	o := execOptions{lockDuration: defaultLockDuration, stateTTL: defaultStateTTL}
	for _, opt := range opts {
		opt(&o)
	}
	if o.lockDuration <= 0 {
		o.lockDuration = defaultLockDuration
	}
	if o.stateTTL <= 0 {
		o.stateTTL = defaultStateTTL
	}

	fk := keyPrefix + key
	owner := valueInProgress + uuid.NewString()

	prev, err := s.client.SetArgs(ctx, fk, owner, redis.SetArgs{
		Mode: "NX",
		Get:  true,
		TTL:  o.lockDuration,
	}).Result()
	switch {
	case errors.Is(err, redis.Nil):
	case err != nil:
		return err
	default:
		return stateError(prev)
	}

	fnErr := fn(ctx)

	next := valueCompleted
	if fnErr != nil {
		next = valueFailed
		if o.releaseOnFailure {
			next = ""
		}
	}

	// The marker is settled even when ctx was cancelled by fn's caller.
	held, err := finishScript.Run(context.WithoutCancel(ctx), s.client,
		[]string{fk}, owner, next, o.stateTTL.Milliseconds()).Int()
	if err == nil && held == 0 {
		err = ErrLockLost
	}
	return errors.Join(fnErr, err)
}

// IsDuplicate reports whether err means the operation already ran or is running.
func IsDuplicate(err error) bool {
	return errors.Is(err, ErrAlreadyCompleted) || errors.Is(err, ErrAlreadyInProgress)
}
