// Package config holds the daemon settings file. Files ending in .toml are
// read as TOML; anything else is JSON.
package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/tellSlater/greeksummerlight/internal/curve"
)

// Time sources.
const (
	SourceNTP  = "ntp"
	SourceHTTP = "http"
)

// Panels.
const (
	PanelNone    = ""
	PanelSSD1306 = "ssd1306"
	PanelEPD     = "epd2in13v4"
)

const (
	minPollMillis   = 10
	minStatus       = 1
	minSyncInterval = 60
	minPanelEvery   = 180
)

// Config is the on-disk settings file.
type Config struct {
	TimeSource string `json:"time_source" toml:"time_source"`
	NTPServer  string `json:"ntp_server" toml:"ntp_server"`
	TimeURL    string `json:"time_url" toml:"time_url"`

	SyncIntervalSeconds  int64 `json:"sync_interval_seconds" toml:"sync_interval_seconds"`
	RetryIntervalSeconds int64 `json:"retry_interval_seconds" toml:"retry_interval_seconds"`
	SyncTimeoutSeconds   int64 `json:"sync_timeout_seconds" toml:"sync_timeout_seconds"`
	SyncAttempts         uint  `json:"sync_attempts" toml:"sync_attempts"`

	PollMillis       int64 `json:"poll_millis" toml:"poll_millis"`
	StatusSeconds    int64 `json:"status_seconds" toml:"status_seconds"`
	BootRetrySeconds int64 `json:"boot_retry_seconds" toml:"boot_retry_seconds"`

	// Sunrise and Sunset are local "HH:MM".
	Sunrise string `json:"sunrise" toml:"sunrise"`
	Sunset  string `json:"sunset" toml:"sunset"`

	LEDPin         string  `json:"led_pin" toml:"led_pin"`
	PWMFrequencyHz int64   `json:"pwm_frequency_hz" toml:"pwm_frequency_hz"`
	Gamma          float64 `json:"gamma" toml:"gamma"`

	Panel             string `json:"panel" toml:"panel"`
	PanelBus          string `json:"panel_bus" toml:"panel_bus"`
	PanelEverySeconds int64  `json:"panel_every_seconds" toml:"panel_every_seconds"`

	JournalPath    string `json:"journal_path" toml:"journal_path"`
	WatchdogDevice string `json:"watchdog_device" toml:"watchdog_device"`
	LogLevel       string `json:"log_level" toml:"log_level"`
	DryRun         bool   `json:"dry_run" toml:"dry_run"`
}

// Default returns the settings the device ships with.
func Default() Config {
	return Config{
		TimeSource:           SourceNTP,
		NTPServer:            "0.adafruit.pool.ntp.org",
		TimeURL:              "https://worldtimeapi.org/api/timezone/Etc/UTC",
		SyncIntervalSeconds:  int64((24 * time.Hour) / time.Second),
		RetryIntervalSeconds: int64(time.Hour / time.Second),
		SyncTimeoutSeconds:   10,
		SyncAttempts:         3,
		PollMillis:           50,
		StatusSeconds:        10,
		BootRetrySeconds:     5,
		Sunrise:              "06:00",
		Sunset:               "20:30",
		LEDPin:               "GPIO18",
		PWMFrequencyHz:       1000,
		Gamma:                2.2,
		Panel:                PanelNone,
		PanelBus:             "1",
		PanelEverySeconds:    900,
		LogLevel:             "info",
	}
}

// Load reads path over the defaults, so a file only needs the keys it
// changes. The result is validated.
func Load(path string) (Config, error) {
	cfg := Default()
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	if isTOML(path) {
		if _, err := toml.Decode(string(b), &cfg); err != nil {
			return Config{}, fmt.Errorf("parse %s: %w", path, err)
		}
	} else if err := json.Unmarshal(b, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Save writes cfg to path, creating the directory if needed.
func Save(path string, cfg Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	var b []byte
	if isTOML(path) {
		var buf bytes.Buffer
		if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
			return err
		}
		b = buf.Bytes()
	} else {
		var err error
		if b, err = json.MarshalIndent(cfg, "", "  "); err != nil {
			return err
		}
	}
	return os.WriteFile(path, b, 0o644)
}

func isTOML(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".toml")
}

// Validate rejects settings the daemon cannot run with and clamps cadences
// that are merely too aggressive.
func (c *Config) Validate() error {
	switch c.TimeSource {
	case SourceNTP:
		if c.NTPServer == "" {
			return fmt.Errorf("ntp_server is empty")
		}
	case SourceHTTP:
		if c.TimeURL == "" {
			return fmt.Errorf("time_url is empty")
		}
	default:
		return fmt.Errorf("unknown time_source %q", c.TimeSource)
	}
	switch c.Panel {
	case PanelNone, PanelSSD1306, PanelEPD:
	default:
		return fmt.Errorf("unknown panel %q", c.Panel)
	}
	if _, err := c.Window(); err != nil {
		return err
	}
	if c.Gamma <= 0 {
		return fmt.Errorf("gamma must be positive, got %v", c.Gamma)
	}
	if c.PWMFrequencyHz <= 0 {
		return fmt.Errorf("pwm_frequency_hz must be positive, got %d", c.PWMFrequencyHz)
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		return err
	}

	if c.PollMillis < minPollMillis {
		c.PollMillis = minPollMillis
	}
	if c.StatusSeconds < minStatus {
		c.StatusSeconds = minStatus
	}
	if c.BootRetrySeconds < 1 {
		c.BootRetrySeconds = 1
	}
	if c.SyncIntervalSeconds < minSyncInterval {
		c.SyncIntervalSeconds = minSyncInterval
	}
	if c.RetryIntervalSeconds < minSyncInterval {
		c.RetryIntervalSeconds = minSyncInterval
	}
	if c.SyncTimeoutSeconds < 1 {
		c.SyncTimeoutSeconds = 1
	}
	if c.SyncAttempts < 1 {
		c.SyncAttempts = 1
	}
	// e-paper panels wear out with fast refreshes.
	if c.PanelEverySeconds < minPanelEvery {
		c.PanelEverySeconds = minPanelEvery
	}
	return nil
}

// Window parses the sunrise and sunset bounds.
func (c Config) Window() (curve.Window, error) {
	rise, err := curve.ParseClock(c.Sunrise)
	if err != nil {
		return curve.Window{}, fmt.Errorf("sunrise: %w", err)
	}
	set, err := curve.ParseClock(c.Sunset)
	if err != nil {
		return curve.Window{}, fmt.Errorf("sunset: %w", err)
	}
	w := curve.Window{Sunrise: rise, Sunset: set}
	if err := w.Validate(); err != nil {
		return curve.Window{}, err
	}
	return w, nil
}

func (c Config) SyncInterval() time.Duration {
	return time.Duration(c.SyncIntervalSeconds) * time.Second
}

func (c Config) RetryInterval() time.Duration {
	return time.Duration(c.RetryIntervalSeconds) * time.Second
}

func (c Config) SyncTimeout() time.Duration {
	return time.Duration(c.SyncTimeoutSeconds) * time.Second
}

func (c Config) Poll() time.Duration {
	return time.Duration(c.PollMillis) * time.Millisecond
}

func (c Config) StatusEvery() time.Duration {
	return time.Duration(c.StatusSeconds) * time.Second
}

func (c Config) BootRetry() time.Duration {
	return time.Duration(c.BootRetrySeconds) * time.Second
}

func (c Config) PanelEvery() time.Duration {
	return time.Duration(c.PanelEverySeconds) * time.Second
}

// ParseLevel maps log_level to a slog level. Empty means info.
func ParseLevel(s string) (slog.Level, error) {
	var l slog.Level
	if s == "" {
		return slog.LevelInfo, nil
	}
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("log_level: %w", err)
	}
	return l, nil
}
