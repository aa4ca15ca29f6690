// Package curve maps a local time of day to LED brightness.
//
// The window is a Greek summer day folded onto the Stockholm clock,
// whatever the season. It is not a solar position model.
package curve

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/tellSlater/greeksummerlight/internal/calendar"
)

// Window is the part of the day during which the light is on.
type Window struct {
	Sunrise time.Duration // offset from local midnight
	Sunset  time.Duration
}

var (
	// Default is 06:00-20:30, peaking around 13:15.
	Default = Window{Sunrise: 6 * time.Hour, Sunset: 20*time.Hour + 30*time.Minute}
	// Compact is 06:00-20:00, peaking at 13:00.
	Compact = Window{Sunrise: 6 * time.Hour, Sunset: 20 * time.Hour}
)

// Brightness returns Default.Brightness(local).
func Brightness(local calendar.Timestamp) float64 {
	return Default.Brightness(local)
}

// Brightness returns a level in [0,1]. It is exactly 0 at and outside the
// window bounds and sin(pi*x) inside, where x is the fraction of the window
// elapsed.
func (w Window) Brightness(local calendar.Timestamp) float64 {
	seconds := float64(local.SecondOfDay())
	sr, ss := w.Sunrise.Seconds(), w.Sunset.Seconds()
	if seconds <= sr || seconds >= ss {
		return 0
	}
	x := (seconds - sr) / (ss - sr)
	return clamp(math.Sin(math.Pi * x))
}

// Peak returns the time of day at which brightness reaches 1.
func (w Window) Peak() time.Duration {
	return w.Sunrise + (w.Sunset-w.Sunrise)/2
}

// Validate rejects windows that are empty or do not fit in one day.
func (w Window) Validate() error {
	if w.Sunrise < 0 || w.Sunset > 24*time.Hour {
		return fmt.Errorf("window %s outside of day", w)
	}
	if w.Sunrise >= w.Sunset {
		return errors.New("sunrise must be before sunset")
	}
	return nil
}

func (w Window) String() string {
	return clockString(w.Sunrise) + "-" + clockString(w.Sunset)
}

// ParseClock parses "HH:MM" into an offset from midnight. "24:00" is allowed.
func ParseClock(s string) (time.Duration, error) {
	if s == "24:00" {
		return 24 * time.Hour, nil
	}
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("parsing %q as HH:MM: %w", s, err)
	}
	return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute, nil
}

func clockString(d time.Duration) string {
	return fmt.Sprintf("%02d:%02d", int(d.Hours()), int(d.Minutes())%60)
}

func clamp(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
