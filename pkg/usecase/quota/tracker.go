package quota

import (
	"context"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/tolerancia/pkg/model"
	"github.com/m-mizutani/tolerancia/pkg/repository"
)

// DefaultWindow is the length of a quota window, anchored to the first call
const DefaultWindow = 24 * time.Hour

// Tracker enforces a per-key allowance within a fixed window
type Tracker struct {
	repo   repository.Repository
	window time.Duration
	now    func() time.Time
}

type Option func(*Tracker)

// WithClock replaces time.Now, mainly for tests
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) {
		t.now = now
	}
}

// WithWindow overrides the window length
func WithWindow(d time.Duration) Option {
	return func(t *Tracker) {
		t.window = d
	}
}

// New creates a Tracker backed by repo
func New(repo repository.Repository, opts ...Option) *Tracker {
	t := &Tracker{
		repo:   repo,
		window: DefaultWindow,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// current returns the record in effect at now, starting a new window when the
// stored one is absent or expired
func (t *Tracker) current(key model.QuotaKey, rec *model.QuotaRecord, limit int, now time.Time) model.QuotaRecord {
	if rec == nil || !now.Before(rec.WindowStart.Add(t.window)) {
		return model.QuotaRecord{
			Key:         key,
			Count:       0,
			WindowStart: now,
			Limit:       limit,
		}
	}
	next := *rec
	next.Limit = limit
	return next
}

// Check consumes one slot for key when available. A rejected call does not
// change the stored record.
func (t *Tracker) Check(ctx context.Context, key model.QuotaKey, limit int) (*model.QuotaDecision, error) {
	var decision model.QuotaDecision

	err := t.repo.UpdateQuota(ctx, key, func(stored *model.QuotaRecord) (*model.QuotaRecord, error) {
		now := t.now()
		rec := t.current(key, stored, limit, now)
		resetAt := rec.WindowStart.Add(t.window)

		if rec.Count >= limit {
			decision = model.QuotaDecision{
				Allowed:   false,
				Remaining: 0,
				Limit:     limit,
				ResetAt:   resetAt,
			}
			return nil, nil
		}

		rec.Count++
		decision = model.QuotaDecision{
			Allowed:   true,
			Remaining: limit - rec.Count,
			Limit:     limit,
			ResetAt:   resetAt,
		}
		return &rec, nil
	})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to check quota", goerr.V("key", key))
	}

	return &decision, nil
}

// Peek reports the state Check would see without consuming a slot
func (t *Tracker) Peek(ctx context.Context, key model.QuotaKey, limit int) (*model.QuotaDecision, error) {
	stored, err := t.repo.GetQuota(ctx, key)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to peek quota", goerr.V("key", key))
	}

	rec := t.current(key, stored, limit, t.now())
	remaining := max(limit-rec.Count, 0)

	return &model.QuotaDecision{
		Allowed:   remaining > 0,
		Remaining: remaining,
		Limit:     limit,
		ResetAt:   rec.WindowStart.Add(t.window),
	}, nil
}
