package ingest

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"

	"github.com/switchstack/switchstack-api/internal/repository"
)

// Store resolves devices and writes switch state.
type Store interface {
	Layout(ctx context.Context, espID string) (repository.Layout, error)
	SetStateAt(ctx context.Context, espPK uint64, position int, state bool) error
}

// UserChecker reports whether a user id exists.
type UserChecker interface {
	Exists(ctx context.Context, id uint64) (bool, error)
}

// Options tunes the ingestion path.  Zero values fall back to defaults.
type Options struct {
	RatePerSecond float64
	Burst         int
	LayoutTTL     time.Duration
	Timeout       time.Duration
}

// Ingestor applies device status strings.  It never returns an error to the
// transport; failures are logged and the message is dropped.
//
// Writes are throttled per device.  A status over budget is not dropped: it
// is parked per switch and written once the device's bucket refills, and a
// newer status for the same switch replaces the parked one.
type Ingestor struct {
	store   Store
	users   UserChecker
	log     *slog.Logger
	timeout time.Duration

	layouts  *cache.Cache
	limiters *cache.Cache
	limit    rate.Limit
	burst    int

	mu      sync.Mutex
	pending map[slot]bool
}

// slot addresses one switch of a resolved device.
type slot struct {
	espID string
	espPK uint64
	index int
}

func New(store Store, users UserChecker, opts Options, log *slog.Logger) *Ingestor {
	if log == nil {
		log = slog.Default()
	}
	if opts.RatePerSecond <= 0 {
		opts.RatePerSecond = 20
	}
	if opts.Burst <= 0 {
		opts.Burst = 40
	}
	if opts.LayoutTTL <= 0 {
		opts.LayoutTTL = 5 * time.Minute
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Second
	}
	return &Ingestor{
		store:    store,
		users:    users,
		log:      log.With("component", "ingest"),
		timeout:  opts.Timeout,
		layouts:  cache.New(opts.LayoutTTL, 2*opts.LayoutTTL),
		limiters: cache.New(10*time.Minute, 20*time.Minute),
		limit:    rate.Limit(opts.RatePerSecond),
		burst:    opts.Burst,
		pending:  make(map[slot]bool),
	}
}

// Ingest parses raw and, when it addresses an existing switch, sets that
// switch's state with a single conditional write.
func (in *Ingestor) Ingest(ctx context.Context, raw string) {
	st, err := ParseStatus(raw)
	if err != nil {
		in.log.Warn("dropping malformed status", "raw", raw, "err", err)
		return
	}
	if st.Report {
		in.log.Debug("report marker", "esp_id", st.EspID)
		return
	}

	ctx, cancel := context.WithTimeout(ctx, in.timeout)
	defer cancel()

	layout, err := in.layout(ctx, st.EspID)
	if errors.Is(err, repository.ErrNotFound) {
		in.log.Warn("status for unknown esp", "esp_id", st.EspID)
		return
	}
	if err != nil {
		in.log.Error("resolve esp failed", "esp_id", st.EspID, "err", err)
		return
	}
	if st.Index >= layout.SwitchCount {
		in.log.Warn("switch index out of range", "esp_id", st.EspID, "index", st.Index, "switches", layout.SwitchCount)
		return
	}

	key := slot{espID: st.EspID, espPK: layout.ID, index: st.Index}
	if in.park(key, st.State) {
		return
	}
	in.apply(ctx, key, st.State)
}

// park queues state for key when the device is over budget or an earlier
// state for the same switch is still queued.  It reports whether it did.
func (in *Ingestor) park(key slot, state bool) bool {
	in.mu.Lock()
	defer in.mu.Unlock()
	if _, queued := in.pending[key]; queued {
		in.pending[key] = state
		return true
	}
	lim := in.limiter(key.espID)
	if lim.Allow() {
		return false
	}
	in.pending[key] = state
	delay := lim.Reserve().Delay()
	in.log.Debug("status rate exceeded; deferring write", "esp_id", key.espID, "index", key.index, "delay", delay)
	time.AfterFunc(delay, func() { in.flushSlot(key) })
	return true
}

func (in *Ingestor) flushSlot(key slot) {
	in.mu.Lock()
	state, ok := in.pending[key]
	delete(in.pending, key)
	in.mu.Unlock()
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), in.timeout)
	defer cancel()
	in.apply(ctx, key, state)
}

// Flush writes every parked state now.  Call it on shutdown.
func (in *Ingestor) Flush(ctx context.Context) {
	in.mu.Lock()
	parked := in.pending
	in.pending = make(map[slot]bool)
	in.mu.Unlock()
	for key, state := range parked {
		in.apply(ctx, key, state)
	}
}

func (in *Ingestor) apply(ctx context.Context, key slot, state bool) {
	err := in.store.SetStateAt(ctx, key.espPK, key.index, state)
	if errors.Is(err, repository.ErrNotFound) {
		in.layouts.Delete(key.espID)
		in.log.Warn("switch vanished", "esp_id", key.espID, "index", key.index)
		return
	}
	if err != nil {
		in.log.Error("set switch state failed", "esp_id", key.espID, "index", key.index, "err", err)
		return
	}
	in.log.Debug("switch state applied", "esp_id", key.espID, "index", key.index, "state", state)
}

// VerifyUser reports whether id names an active user.  Lookup failures
// read as false.
func (in *Ingestor) VerifyUser(ctx context.Context, id uint64) bool {
	if in.users == nil {
		return false
	}
	ok, err := in.users.Exists(ctx, id)
	if err != nil {
		in.log.Warn("verify user failed", "user_id", id, "err", err)
		return false
	}
	return ok
}

// layout returns the cached layout of a device.  Only fully provisioned
// layouts are cached because their switch count no longer changes.
func (in *Ingestor) layout(ctx context.Context, espID string) (repository.Layout, error) {
	if v, ok := in.layouts.Get(espID); ok {
		return v.(repository.Layout), nil
	}
	l, err := in.store.Layout(ctx, espID)
	if err != nil {
		return repository.Layout{}, err
	}
	if l.Provisioned() && l.SwitchCount > 0 {
		in.layouts.Set(espID, l, cache.DefaultExpiration)
	}
	return l, nil
}

// limiter returns the token bucket of a resolved device.  Buckets expire
// with the cache so devices that stop sending do not accumulate.
func (in *Ingestor) limiter(espID string) *rate.Limiter {
	if v, ok := in.limiters.Get(espID); ok {
		return v.(*rate.Limiter)
	}
	l := rate.NewLimiter(in.limit, in.burst)
	if err := in.limiters.Add(espID, l, cache.DefaultExpiration); err != nil {
		// lost the race; use the winner's bucket
		if v, ok := in.limiters.Get(espID); ok {
			return v.(*rate.Limiter)
		}
	}
	return l
}
