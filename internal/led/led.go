// Package led turns a normalized brightness into a PWM duty cycle.
package led

import (
	"fmt"
	"log/slog"
	"math"
	"sync"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/physic"
)

const (
	DefaultGamma     = 2.2
	DefaultFrequency = physic.KiloHertz
)

// pin is the part of gpio.PinIO the driver needs.
type pin interface {
	String() string
	Out(l gpio.Level) error
	PWM(duty gpio.Duty, f physic.Frequency) error
	Halt() error
}

// PWM drives one LED channel on a PWM-capable GPIO pin. Levels are gamma
// corrected so that the perceived brightness follows the curve.
type PWM struct {
	pin   pin
	freq  physic.Frequency
	gamma float64

	mu      sync.Mutex
	written bool
	duty    gpio.Duty
}

// Open looks up a pin by name (e.g. "GPIO18") and starts it dark.
// host.Init must have been called.
func Open(name string, freq physic.Frequency, gamma float64) (*PWM, error) {
	p := gpioreg.ByName(name)
	if p == nil {
		return nil, fmt.Errorf("led: no such pin %q", name)
	}
	return newPWM(p, freq, gamma)
}

func newPWM(p pin, freq physic.Frequency, gamma float64) (*PWM, error) {
	if freq <= 0 {
		freq = DefaultFrequency
	}
	if gamma <= 0 {
		gamma = DefaultGamma
	}
	l := &PWM{pin: p, freq: freq, gamma: gamma}
	if err := l.SetBrightness(0); err != nil {
		return nil, err
	}
	return l, nil
}

// Duty maps a level in [0,1] to a duty cycle with the given gamma.
func Duty(level, gamma float64) gpio.Duty {
	switch {
	case level <= 0 || math.IsNaN(level):
		return 0
	case level >= 1:
		return gpio.DutyMax
	}
	return gpio.Duty(math.Pow(level, gamma)*float64(gpio.DutyMax) + 0.5)
}

// SetBrightness writes level to the pin. The pin is only touched when the
// duty cycle actually changes.
func (l *PWM) SetBrightness(level float64) error {
	duty := Duty(level, l.gamma)

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.written && duty == l.duty {
		return nil
	}
	var err error
	if duty == 0 {
		err = l.pin.Out(gpio.Low)
	} else {
		err = l.pin.PWM(duty, l.freq)
	}
	if err != nil {
		return fmt.Errorf("led: %s: %w", l.pin, err)
	}
	l.written, l.duty = true, duty
	return nil
}

// Halt turns the LED off and releases the pin.
func (l *PWM) Halt() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.written = false
	if err := l.pin.Out(gpio.Low); err != nil {
		return fmt.Errorf("led: %s: %w", l.pin, err)
	}
	return l.pin.Halt()
}

// Dry stands in for the LED when no hardware is attached. It logs each
// change of level at debug.
type Dry struct {
	logger *slog.Logger

	mu    sync.Mutex
	level float64
}

// NewDry returns a Dry output.
func NewDry(logger *slog.Logger) *Dry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dry{logger: logger, level: -1}
}

func (d *Dry) SetBrightness(level float64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if math.Abs(level-d.level) < 0.001 {
		return nil
	}
	d.level = level
	d.logger.Debug("led level", "level", fmt.Sprintf("%.3f", level), "duty", Duty(level, DefaultGamma))
	return nil
}

// Level returns the last level written.
func (d *Dry) Level() float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.level
}

// Halt is a no-op.
func (d *Dry) Halt() error { return nil }
