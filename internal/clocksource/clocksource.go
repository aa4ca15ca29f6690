// Package clocksource keeps an estimate of UTC from rare syncs with a time
// authority and a free-running monotonic clock in between.
//
// The estimate is anchorEpoch + (mono - anchorMono). The anchor pair is only
// ever replaced as a whole, after a successful sync. A failed resync leaves
// it alone and the clock keeps running on the stale anchor.
package clocksource

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/tellSlater/greeksummerlight/internal/calendar"
)

const (
	DefaultSyncInterval  = 24 * time.Hour
	DefaultRetryInterval = time.Hour
	DefaultSyncTimeout   = 10 * time.Second
)

// Authority reports the current UTC time with second resolution.
type Authority interface {
	FetchUTC(ctx context.Context) (calendar.Timestamp, error)
}

// Monotonic is a clock that never runs backward. Its zero is arbitrary.
type Monotonic interface {
	Elapsed() time.Duration
}

// Observer is told about every sync attempt.
type Observer interface {
	ObserveSync(Event)
}

// Event describes one sync attempt.
type Event struct {
	Mono  time.Duration // monotonic reading when the attempt finished
	OK    bool
	Epoch int64 // authority time; zero on failure
	// Correction is the new anchor minus the previous estimate, in seconds.
	// It is zero for the first sync.
	Correction int64
	Err        error
}

// State is the sync state of a Source.
type State int

const (
	StateUnsynced State = iota
	StateSynced
	StateStale // synced before, but the last attempt failed
)

func (s State) String() string {
	switch s {
	case StateUnsynced:
		return "unsynced"
	case StateSynced:
		return "synced"
	case StateStale:
		return "stale"
	default:
		return "unknown"
	}
}

// Config holds the sync schedule.
type Config struct {
	SyncInterval  time.Duration
	RetryInterval time.Duration
	SyncTimeout   time.Duration
}

// DefaultConfig syncs daily, retries hourly and gives each attempt ten seconds.
func DefaultConfig() Config {
	return Config{
		SyncInterval:  DefaultSyncInterval,
		RetryInterval: DefaultRetryInterval,
		SyncTimeout:   DefaultSyncTimeout,
	}
}

// Option configures a Source.
type Option func(*Source)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Source) { s.logger = logger }
}

// WithObserver registers an observer for sync attempts.
func WithObserver(o Observer) Option {
	return func(s *Source) { s.observer = o }
}

// Source is the process-wide UTC estimate. It is driven by one control loop;
// the lock only keeps the anchor pair consistent for concurrent readers.
type Source struct {
	auth     Authority
	mono     Monotonic
	cfg      Config
	logger   *slog.Logger
	observer Observer

	mu          sync.RWMutex
	synced      bool
	stale       bool
	anchorEpoch int64
	anchorMono  time.Duration
	nextSync    time.Duration
}

// New returns an unsynced Source.
func New(auth Authority, mono Monotonic, cfg Config, opts ...Option) *Source {
	s := &Source{
		auth:   auth,
		mono:   mono,
		cfg:    cfg,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Sync fetches the time from the authority and replaces the anchor pair. On
// failure the anchor pair is kept and the next attempt is scheduled after the
// retry interval.
func (s *Source) Sync(ctx context.Context) error {
	if s.cfg.SyncTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.SyncTimeout)
		defer cancel()
	}

	ts, err := s.auth.FetchUTC(ctx)
	var epoch int64
	if err == nil {
		if verr := ts.Validate(); verr != nil {
			err = fmt.Errorf("%w: %w", ErrParse, verr)
		} else if epoch = calendar.ToEpoch(ts); epoch < 0 {
			err = fmt.Errorf("%w: %sZ is before the Unix epoch", ErrParse, ts)
		}
	}
	mono := s.mono.Elapsed()
	if err != nil {
		s.mu.Lock()
		s.nextSync = mono + s.cfg.RetryInterval
		s.stale = s.synced
		s.mu.Unlock()
		s.notify(Event{Mono: mono, Err: err})
		return fmt.Errorf("sync: %w", err)
	}

	s.mu.Lock()
	var correction int64
	if s.synced {
		correction = epoch - s.estimate(mono)
	}
	s.anchorEpoch, s.anchorMono = epoch, mono
	s.nextSync = mono + s.cfg.SyncInterval
	s.synced, s.stale = true, false
	s.mu.Unlock()

	s.logger.Info("time sync ok", "utc", ts.String()+"Z", "correction_s", correction)
	s.notify(Event{Mono: mono, OK: true, Epoch: epoch, Correction: correction})
	return nil
}

// MaybeSync resyncs once the schedule says so. Failures are logged and the
// clock carries on with the previous anchor. An unsynced Source is left to
// Now, which forces its own sync.
func (s *Source) MaybeSync(ctx context.Context) {
	s.mu.RLock()
	due := s.synced && s.mono.Elapsed() >= s.nextSync
	s.mu.RUnlock()
	if !due {
		return
	}
	if err := s.Sync(ctx); err != nil {
		s.logger.Warn("time sync failed, keeping stale anchor", "error", err, "retry_in", s.cfg.RetryInterval)
	}
}

// Now returns the current UTC epoch. The first call blocks on a sync; if
// that fails the error wraps ErrNeverSynced.
func (s *Source) Now(ctx context.Context) (int64, error) {
	s.mu.RLock()
	synced := s.synced
	s.mu.RUnlock()
	if !synced {
		if err := s.Sync(ctx); err != nil {
			return 0, fmt.Errorf("%w: %w", ErrNeverSynced, err)
		}
	}

	mono := s.mono.Elapsed()
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.estimate(mono), nil
}

// estimate must be called with mu held.
func (s *Source) estimate(mono time.Duration) int64 {
	delta := mono - s.anchorMono
	if delta < 0 {
		delta = 0
	}
	return s.anchorEpoch + int64(delta/time.Second)
}

// State returns the current sync state.
func (s *Source) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	switch {
	case !s.synced:
		return StateUnsynced
	case s.stale:
		return StateStale
	default:
		return StateSynced
	}
}

// Anchor returns the anchor pair. ok is false before the first sync.
func (s *Source) Anchor() (epoch int64, mono time.Duration, ok bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.anchorEpoch, s.anchorMono, s.synced
}

// NextSync returns the monotonic reading at which the next attempt is due.
func (s *Source) NextSync() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nextSync
}

// SinceSync returns the time since the last successful sync.
func (s *Source) SinceSync() (time.Duration, bool) {
	mono := s.mono.Elapsed()
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.synced {
		return 0, false
	}
	return mono - s.anchorMono, true
}

func (s *Source) notify(e Event) {
	if s.observer != nil {
		s.observer.ObserveSync(e)
	}
}

// SystemMonotonic reads Go's monotonic clock, counted from construction.
type SystemMonotonic struct {
	start time.Time
}

// NewSystemMonotonic starts a monotonic clock at zero.
func NewSystemMonotonic() *SystemMonotonic {
	return &SystemMonotonic{start: time.Now()}
}

// Elapsed returns the time since the clock was created. time.Since uses the
// monotonic reading carried by start, so wall clock steps do not affect it.
func (m *SystemMonotonic) Elapsed() time.Duration {
	return time.Since(m.start)
}
