package usecase

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/shandysiswandi/gotp/internal/otp/entity"
	"github.com/shandysiswandi/gotp/internal/pkg/clock"
	"github.com/shandysiswandi/gotp/internal/pkg/hash"
	"github.com/shandysiswandi/gotp/internal/pkg/instrument"
	"github.com/shandysiswandi/gotp/internal/pkg/otp"
	"github.com/shandysiswandi/gotp/internal/pkg/uid"
	"github.com/shandysiswandi/gotp/internal/pkg/validator"
	"github.com/stretchr/testify/require"
)

// memStore mirrors the transactional behavior of the PostgreSQL store
// behind one mutex.
type memStore struct {
	mu      sync.Mutex
	windows map[string][]*entity.RateLimitWindow
	records []entity.Record
	err     error
}

func newMemStore() *memStore {
	return &memStore{windows: map[string][]*entity.RateLimitWindow{}}
}

func windowKey(id entity.RateLimitIdentifier) string {
	return id.Class.String() + ":" + id.Value
}

func (m *memStore) ReserveRateLimit(_ context.Context, id entity.RateLimitIdentifier, policy entity.RateLimitPolicy, now time.Time) (*entity.Reservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}

	k := windowKey(id)
	for _, w := range m.windows[k] {
		if !w.WindowEnd.After(now) {
			continue
		}
		if w.RequestCount >= policy.MaxRequests {
			return &entity.Reservation{ResetAt: w.WindowEnd, Window: *w}, nil
		}
		w.RequestCount++
		return &entity.Reservation{Allowed: true, Remaining: policy.MaxRequests - w.RequestCount, ResetAt: w.WindowEnd, Window: *w}, nil
	}

	w := &entity.RateLimitWindow{
		Identifier:      id.Value,
		IdentifierClass: id.Class,
		WindowStart:     now,
		WindowEnd:       now.Add(policy.Window),
		RequestCount:    1,
	}
	m.windows[k] = append(m.windows[k], w)
	return &entity.Reservation{Allowed: true, Remaining: policy.MaxRequests - 1, ResetAt: w.WindowEnd, Window: *w}, nil
}

func (m *memStore) count(id entity.RateLimitIdentifier) int32 {
	m.mu.Lock()
	defer m.mu.Unlock()

	var n int32
	for _, w := range m.windows[windowKey(id)] {
		n += w.RequestCount
	}
	return n
}

func (m *memStore) IssueCode(_ context.Context, rec entity.Record) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return 0, m.err
	}

	var n int64
	for i := range m.records {
		r := &m.records[i]
		if r.Key() == rec.Key() && r.IsPending(rec.CreatedAt) {
			r.Verified = true
			n++
		}
	}
	m.records = append(m.records, rec)
	return n, nil
}

func (m *memStore) VerifyCode(_ context.Context, in entity.VerifyAttempt, matches func(string) bool) (*entity.VerifyOutcome, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}

	idx := -1
	for i, r := range m.records {
		if r.Key() != in.Key || !r.IsPending(in.Now) {
			continue
		}
		if idx == -1 || r.CreatedAt.After(m.records[idx].CreatedAt) {
			idx = i
		}
	}
	if idx == -1 {
		return &entity.VerifyOutcome{Result: entity.VerifyResultNotFoundOrExpired}, nil
	}

	next, result := m.records[idx].Attempt(in.Now, matches)
	if result == entity.VerifyResultValid || result == entity.VerifyResultCodeMismatch {
		m.records[idx] = next
	}
	return &entity.VerifyOutcome{Result: result, Record: &next}, nil
}

func (m *memStore) Sweep(_ context.Context, policy entity.RetentionPolicy, now time.Time) (*entity.SweepResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}

	res := &entity.SweepResult{}
	kept := m.records[:0]
	for _, r := range m.records {
		expired := r.ExpiresAt.Before(now.Add(-policy.ExpiredFor))
		verified := r.VerifiedAt != nil && r.VerifiedAt.Before(now.Add(-policy.VerifiedFor))
		if expired || verified {
			res.DeletedCodes++
			continue
		}
		kept = append(kept, r)
	}
	m.records = kept

	for k, ws := range m.windows {
		var live []*entity.RateLimitWindow
		for _, w := range ws {
			if w.WindowEnd.Before(now.Add(-policy.WindowFor)) {
				res.DeletedWindows++
				continue
			}
			live = append(live, w)
		}
		m.windows[k] = live
	}
	return res, nil
}

func (m *memStore) pending(key entity.Key, now time.Time) []entity.Record {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []entity.Record
	for _, r := range m.records {
		if r.Key() == key && r.IsPending(now) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

type memCache struct {
	mu    sync.Mutex
	clock clock.Clocker
	until map[entity.Key]time.Time
	err   error
}

func (c *memCache) ClaimCooldown(_ context.Context, key entity.Key, ttl time.Duration) (bool, time.Duration, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return false, 0, c.err
	}

	now := c.clock.Now()
	if until, ok := c.until[key]; ok && until.After(now) {
		return false, until.Sub(now), nil
	}
	c.until[key] = now.Add(ttl)
	return true, 0, nil
}

func (c *memCache) ReleaseCooldown(_ context.Context, key entity.Key) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.until, key)
	return c.err
}

type sentCode struct {
	Record entity.Record
	Code   string
}

type memOutbox struct {
	mu   sync.Mutex
	sent []sentCode
	err  error
}

func (o *memOutbox) PublishDelivery(_ context.Context, rec entity.Record, plainCode string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.sent = append(o.sent, sentCode{Record: rec, Code: plainCode})
	return o.err
}

func (o *memOutbox) last(t *testing.T) sentCode {
	t.Helper()
	o.mu.Lock()
	defer o.mu.Unlock()
	require.NotEmpty(t, o.sent, "no code was handed to the transport")
	return o.sent[len(o.sent)-1]
}

type fixture struct {
	uc     *Usecase
	store  *memStore
	cache  *memCache
	outbox *memOutbox
	clock  *clock.Manual
}

var base = time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)

func newFixture(t *testing.T, mutate ...func(*Policy)) *fixture {
	t.Helper()

	v, err := validator.NewV10Validator()
	require.NoError(t, err)

	policy := Policy{
		CodeTTL:        defaultCodeTTL,
		MaxAttempts:    defaultMaxAttempts,
		RateLimit:      entity.RateLimitPolicy{Window: defaultRateLimitWindow, MaxRequests: defaultRateLimitRequests},
		ResendCooldown: defaultResendCooldown,
		Retention: entity.RetentionPolicy{
			ExpiredFor:  defaultExpiredRetention,
			VerifiedFor: defaultVerifiedRetention,
			WindowFor:   defaultWindowRetention,
		},
	}
	for _, fn := range mutate {
		fn(&policy)
	}

	f := &fixture{
		store:  newMemStore(),
		outbox: &memOutbox{},
		clock:  clock.NewManual(base),
	}
	f.cache = &memCache{clock: f.clock, until: map[entity.Key]time.Time{}}
	f.uc = New(Dependency{
		RepoDB:        f.store,
		RepoCache:     f.cache,
		RepoMessaging: f.outbox,
		Validator:     v,
		Generator:     otp.NewNumeric(6),
		Hash:          hash.NewPlain(),
		UUID:          uid.NewUUID(),
		Clock:         f.clock,
		Instrument:    instrument.NewNoop(),
		Policy:        policy,
	})
	return f
}
