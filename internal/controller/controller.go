// Package controller runs the daylight loop: read the clock, resolve
// Stockholm time, and drive the LED along the brightness curve.
package controller

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/tellSlater/greeksummerlight/internal/calendar"
	"github.com/tellSlater/greeksummerlight/internal/clocksource"
	"github.com/tellSlater/greeksummerlight/internal/curve"
	"github.com/tellSlater/greeksummerlight/internal/dst"
)

const (
	DefaultPoll        = 50 * time.Millisecond
	DefaultStatusEvery = 10 * time.Second
	DefaultBootRetry   = 5 * time.Second
)

// Clock is the time source the loop reads. *clocksource.Source implements it.
type Clock interface {
	MaybeSync(ctx context.Context)
	Now(ctx context.Context) (int64, error)
	State() clocksource.State
}

// Output takes a brightness in [0,1].
type Output interface {
	SetBrightness(level float64) error
}

// Reporter receives a status reading every StatusEvery.
type Reporter interface {
	Report(Reading)
}

// Watchdog must be fed periodically or the board resets.
type Watchdog interface {
	Feed() error
}

// Reading is the result of one tick.
type Reading struct {
	Epoch      int64
	UTC        calendar.Timestamp
	Offset     int // seconds east of UTC
	Local      calendar.Timestamp
	Brightness float64
	State      clocksource.State
}

// Zone returns "CET" or "CEST".
func (r Reading) Zone() string { return dst.ZoneName(r.Offset) }

// Config holds the loop cadence and the daylight window.
type Config struct {
	Poll        time.Duration
	StatusEvery time.Duration
	BootRetry   time.Duration
	Window      curve.Window
}

// DefaultConfig polls every 50ms and reports every 10s.
func DefaultConfig() Config {
	return Config{
		Poll:        DefaultPoll,
		StatusEvery: DefaultStatusEvery,
		BootRetry:   DefaultBootRetry,
		Window:      curve.Default,
	}
}

// Option configures a Controller.
type Option func(*Controller)

func WithLogger(logger *slog.Logger) Option {
	return func(c *Controller) { c.logger = logger }
}

// WithReporter adds a status reporter. Reporters are called in order.
func WithReporter(r Reporter) Option {
	return func(c *Controller) { c.reporters = append(c.reporters, r) }
}

func WithWatchdog(w Watchdog) Option {
	return func(c *Controller) { c.watchdog = w }
}

// WithRule replaces the default DST rule.
func WithRule(r *dst.Rule) Option {
	return func(c *Controller) { c.rule = r }
}

// WithMonotonic sets the clock used to pace status reports and boot retries.
func WithMonotonic(m clocksource.Monotonic) Option {
	return func(c *Controller) { c.mono = m }
}

// Controller owns everything the loop touches.
type Controller struct {
	clock     Clock
	out       Output
	cfg       Config
	rule      *dst.Rule
	reporters []Reporter
	watchdog  Watchdog
	mono      clocksource.Monotonic
	logger    *slog.Logger

	reported   bool
	lastReport time.Duration
}

// New returns a Controller. Zero durations in cfg take their defaults.
func New(clock Clock, out Output, cfg Config, opts ...Option) *Controller {
	def := DefaultConfig()
	if cfg.Poll <= 0 {
		cfg.Poll = def.Poll
	}
	if cfg.StatusEvery <= 0 {
		cfg.StatusEvery = def.StatusEvery
	}
	if cfg.BootRetry <= 0 {
		cfg.BootRetry = def.BootRetry
	}
	if cfg.Window == (curve.Window{}) {
		cfg.Window = def.Window
	}
	c := &Controller{clock: clock, out: out, cfg: cfg}
	for _, o := range opts {
		o(c)
	}
	if c.rule == nil {
		c.rule = dst.NewRule()
	}
	if c.mono == nil {
		c.mono = clocksource.NewSystemMonotonic()
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	return c
}

// Step runs one tick and returns what it computed. A failed LED write is
// logged; the reading is still returned.
func (c *Controller) Step(ctx context.Context) (Reading, error) {
	c.clock.MaybeSync(ctx)
	epoch, err := c.clock.Now(ctx)
	if err != nil {
		return Reading{State: c.clock.State()}, err
	}

	utc := calendar.FromEpoch(epoch)
	offset := c.rule.Offset(utc)
	local := calendar.FromEpoch(epoch + int64(offset))
	r := Reading{
		Epoch:      epoch,
		UTC:        utc,
		Offset:     offset,
		Local:      local,
		Brightness: c.cfg.Window.Brightness(local),
		State:      c.clock.State(),
	}
	if err := c.out.SetBrightness(r.Brightness); err != nil {
		c.logger.Warn("led write failed", "error", err)
	}
	return r, nil
}

// Run ticks until ctx is done. It returns nil on cancellation; releasing
// the hardware is the caller's job.
func (c *Controller) Run(ctx context.Context) error {
	ticker := time.NewTicker(c.cfg.Poll)
	defer ticker.Stop()

	for {
		r, err := c.Step(ctx)
		c.feed()
		switch {
		case ctx.Err() != nil:
			return nil
		case errors.Is(err, clocksource.ErrNeverSynced):
			c.logger.Error("waiting for first time sync", "error", err, "retry_in", c.cfg.BootRetry)
			if !c.wait(ctx, ticker, c.cfg.BootRetry) {
				return nil
			}
			continue
		case err != nil:
			c.logger.Error("tick failed", "error", err)
		default:
			c.maybeReport(r)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// wait blocks for d while still feeding the watchdog. It reports false if
// ctx ended first.
func (c *Controller) wait(ctx context.Context, ticker *time.Ticker, d time.Duration) bool {
	until := c.mono.Elapsed() + d
	for c.mono.Elapsed() < until {
		select {
		case <-ctx.Done():
			return false
		case <-ticker.C:
			c.feed()
		}
	}
	return true
}

func (c *Controller) feed() {
	if c.watchdog == nil {
		return
	}
	if err := c.watchdog.Feed(); err != nil {
		c.logger.Warn("watchdog feed failed", "error", err)
	}
}

func (c *Controller) maybeReport(r Reading) {
	now := c.mono.Elapsed()
	if c.reported && now-c.lastReport < c.cfg.StatusEvery {
		return
	}
	c.reported, c.lastReport = true, now
	c.logger.Debug("status",
		"local", r.Local.String(),
		"zone", r.Zone(),
		"offset_s", r.Offset,
		"brightness", r.Brightness,
		"clock", r.State.String())
	for _, rep := range c.reporters {
		rep.Report(r)
	}
}
