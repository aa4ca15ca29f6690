// Command greeksummer drives a dimmable LED along a daylight curve anchored
// to Stockholm civil time.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/host/v3"

	"github.com/tellSlater/greeksummerlight/internal/clocksource"
	"github.com/tellSlater/greeksummerlight/internal/config"
	"github.com/tellSlater/greeksummerlight/internal/controller"
	"github.com/tellSlater/greeksummerlight/internal/curve"
	"github.com/tellSlater/greeksummerlight/internal/journal"
	"github.com/tellSlater/greeksummerlight/internal/led"
	"github.com/tellSlater/greeksummerlight/internal/panel"
	"github.com/tellSlater/greeksummerlight/internal/timeauth"
	"github.com/tellSlater/greeksummerlight/internal/watchdog"
)

var (
	configPath = flag.String("config", "/etc/greeksummerlight/config.json", "settings file (.json or .toml)")
	dryRun     = flag.Bool("dry-run", false, "log LED levels instead of driving hardware")
	verbose    = flag.Bool("verbose", false, "enable debug logging")
	once       = flag.Bool("once", false, "print one reading and exit")
	history    = flag.Int("history", 0, "print the last N sync attempts from the journal and exit")
	initConfig = flag.Bool("init-config", false, "write the effective settings to -config and exit")
)

type authority interface {
	clocksource.Authority
	Close() error
}

func main() {
	flag.Parse()

	cfg := config.Default()
	loaded, loadErr := config.Load(*configPath)
	switch {
	case loadErr == nil:
		cfg = loaded
	case errors.Is(loadErr, fs.ErrNotExist):
	default:
		fmt.Fprintf(os.Stderr, "greeksummer: %v\n", loadErr)
		os.Exit(1)
	}
	if *dryRun {
		cfg.DryRun = true
	}

	level, _ := config.ParseLevel(cfg.LogLevel)
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	if loadErr == nil {
		logger.Info("loaded config", "path", *configPath)
	} else {
		logger.Info("config load skipped", "error", loadErr)
	}

	var err error
	switch {
	case *initConfig:
		err = config.Save(*configPath, cfg)
		if err == nil {
			logger.Info("wrote config", "path", *configPath)
		}
	case *history > 0:
		err = printHistory(cfg, *history)
	default:
		err = run(cfg, logger)
	}
	if err != nil {
		logger.Error("exiting", "error", err)
		os.Exit(1)
	}
}

func printHistory(cfg config.Config, n int) error {
	if cfg.JournalPath == "" {
		return errors.New("journal_path is not set")
	}
	store, err := journal.Open(cfg.JournalPath, nil)
	if err != nil {
		return err
	}
	defer store.Close()

	ctx := context.Background()
	entries, err := store.Recent(ctx, n)
	if err != nil {
		return err
	}
	now := time.Now()
	for _, e := range entries {
		fmt.Println(e.Describe(now))
	}
	ok, failed, err := store.Counts(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("%s successful, %s failed syncs on record\n", humanize.Comma(ok), humanize.Comma(failed))
	return nil
}

func newAuthority(cfg config.Config, logger *slog.Logger) authority {
	opts := []timeauth.Option{
		timeauth.WithLogger(logger),
		timeauth.WithAttempts(cfg.SyncAttempts),
	}
	if cfg.TimeSource == config.SourceHTTP {
		return timeauth.NewHTTP(cfg.TimeURL, nil, opts...)
	}
	return timeauth.NewNTP(cfg.NTPServer, opts...)
}

func run(cfg config.Config, logger *slog.Logger) error {
	window, err := cfg.Window()
	if err != nil {
		return err
	}

	auth := newAuthority(cfg, logger)
	defer func() {
		if err := auth.Close(); err != nil {
			logger.Warn("closing time authority", "error", err)
		}
	}()

	mono := clocksource.NewSystemMonotonic()
	srcOpts := []clocksource.Option{clocksource.WithLogger(logger)}
	if cfg.JournalPath != "" {
		store, err := journal.Open(cfg.JournalPath, logger)
		if err != nil {
			return err
		}
		defer closeLogged(logger, "closing journal", store)
		srcOpts = append(srcOpts, clocksource.WithObserver(store))
	}
	clock := clocksource.New(auth, mono, clocksource.Config{
		SyncInterval:  cfg.SyncInterval(),
		RetryInterval: cfg.RetryInterval(),
		SyncTimeout:   cfg.SyncTimeout(),
	}, srcOpts...)

	ctrlOpts := []controller.Option{
		controller.WithLogger(logger),
		controller.WithMonotonic(mono),
		controller.WithReporter(controller.NewConsole(os.Stdout)),
	}

	var out interface {
		controller.Output
		Halt() error
	}
	if cfg.DryRun {
		out = led.NewDry(logger)
	} else {
		if _, err := host.Init(); err != nil {
			return fmt.Errorf("host init: %w", err)
		}
		pwm, err := led.Open(cfg.LEDPin, physic.Frequency(cfg.PWMFrequencyHz)*physic.Hertz, cfg.Gamma)
		if err != nil {
			return err
		}
		out = pwm

		if p := openPanel(cfg, window, mono, logger); p != nil {
			defer func() {
				if err := p.Halt(); err != nil {
					logger.Warn("halting panel", "error", err)
				}
			}()
			ctrlOpts = append(ctrlOpts, controller.WithReporter(p))
		}
		if cfg.WatchdogDevice != "" {
			wd, err := watchdog.Open(cfg.WatchdogDevice)
			if err != nil {
				return err
			}
			defer closeLogged(logger, "closing watchdog", wd)
			ctrlOpts = append(ctrlOpts, controller.WithWatchdog(wd))
		}
	}
	defer func() {
		if err := out.Halt(); err != nil {
			logger.Warn("halting led", "error", err)
		}
	}()

	ctrl := controller.New(clock, out, controller.Config{
		Poll:        cfg.Poll(),
		StatusEvery: cfg.StatusEvery(),
		BootRetry:   cfg.BootRetry(),
		Window:      window,
	}, ctrlOpts...)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *once {
		r, err := ctrl.Step(ctx)
		if err != nil {
			return err
		}
		controller.NewConsole(os.Stdout).Report(r)
		return nil
	}

	logger.Info("starting",
		"source", cfg.TimeSource,
		"window", window.String(),
		"led", cfg.LEDPin,
		"dry_run", cfg.DryRun)
	err = ctrl.Run(ctx)
	logger.Info("stopped")
	return err
}

// closeLogged closes c and logs a failure under msg.
func closeLogged(logger *slog.Logger, msg string, c io.Closer) {
	if err := c.Close(); err != nil {
		logger.Warn(msg, "error", err)
	}
}

// openPanel returns nil when no panel is configured or it cannot be opened;
// the light works without one.
func openPanel(cfg config.Config, window curve.Window, mono clocksource.Monotonic, logger *slog.Logger) *panel.Panel {
	opts := []panel.Option{
		panel.WithLogger(logger),
		panel.WithEvery(cfg.PanelEvery()),
		panel.WithWindow(window),
		panel.WithMonotonic(mono),
	}
	var (
		p   *panel.Panel
		err error
	)
	switch cfg.Panel {
	case config.PanelSSD1306:
		p, err = panel.OpenSSD1306(cfg.PanelBus, opts...)
	case config.PanelEPD:
		p, err = panel.OpenEPD(opts...)
	default:
		return nil
	}
	if err != nil {
		logger.Warn("panel unavailable", "panel", cfg.Panel, "error", err)
		return nil
	}
	return p
}
