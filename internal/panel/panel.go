// Package panel shows the controller status on a small monochrome display:
// an SSD1306 OLED on I2C or a Waveshare 2.13" v4 e-paper HAT on SPI.
package panel

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"io"
	"log/slog"
	"sync"
	"time"

	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/devices/v3/ssd1306"
	"periph.io/x/devices/v3/ssd1306/image1bit"
	"periph.io/x/devices/v3/waveshare2in13v4"

	"github.com/tellSlater/greeksummerlight/internal/clocksource"
	"github.com/tellSlater/greeksummerlight/internal/controller"
	"github.com/tellSlater/greeksummerlight/internal/curve"
)

type screen interface {
	Bounds() image.Rectangle
	Draw(r image.Rectangle, src image.Image, sp image.Point) error
	Halt() error
}

// sleeper is a screen that can be put to sleep between refreshes and woken
// with a fresh Init, like the e-paper.
type sleeper interface {
	Init() error
	Sleep() error
}

// Option configures a Panel.
type Option func(*Panel)

func WithLogger(logger *slog.Logger) Option {
	return func(p *Panel) { p.logger = logger }
}

// WithEvery sets the minimum time between refreshes.
func WithEvery(d time.Duration) Option {
	return func(p *Panel) { p.every = d }
}

// WithWindow sets the daylight window shown on wide panels.
func WithWindow(w curve.Window) Option {
	return func(p *Panel) { p.window = w }
}

// WithMonotonic sets the clock that paces refreshes.
func WithMonotonic(m clocksource.Monotonic) Option {
	return func(p *Panel) { p.mono = m }
}

// Panel is a controller.Reporter that refreshes a display at its own,
// slower cadence and skips refreshes that would not change a pixel.
//
// Refreshes run on a worker goroutine so a slow e-paper update never holds
// up the control loop. Only the newest pending reading is kept.
type Panel struct {
	screen  screen
	rotated bool
	theme   Theme
	closers []io.Closer

	logger *slog.Logger
	every  time.Duration
	window curve.Window
	mono   clocksource.Monotonic

	mu       sync.Mutex
	drawn    bool
	lastDraw time.Duration
	pending  *controller.Reading
	draws    int

	// inflight counts queued readings not yet drawn.
	inflight sync.WaitGroup
	kick     chan struct{}
	done     chan struct{}
	worker   sync.WaitGroup
	stop     sync.Once

	// Owned by the worker.
	last   *image.Gray
	asleep bool
}

var _ controller.Reporter = (*Panel)(nil)

func newPanel(s screen, rotated bool, th Theme, opts []Option) *Panel {
	p := &Panel{
		screen:  s,
		rotated: rotated,
		theme:   th,
		every:   15 * time.Minute,
		window:  curve.Default,
	}
	for _, o := range opts {
		o(p)
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	if p.mono == nil {
		p.mono = clocksource.NewSystemMonotonic()
	}
	p.kick = make(chan struct{}, 1)
	p.done = make(chan struct{})
	p.worker.Add(1)
	go p.loop()
	return p
}

// OpenSSD1306 opens a 128x64 OLED on the named I2C bus ("" for the first).
// host.Init must have been called.
func OpenSSD1306(bus string, opts ...Option) (*Panel, error) {
	b, err := i2creg.Open(bus)
	if err != nil {
		return nil, fmt.Errorf("panel: i2c %q: %w", bus, err)
	}
	dev, err := ssd1306.NewI2C(b, &ssd1306.DefaultOpts)
	if err != nil {
		b.Close()
		return nil, fmt.Errorf("panel: ssd1306: %w", err)
	}
	p := newPanel(dev, false, Night, opts)
	p.closers = append(p.closers, b)
	return p, nil
}

// OpenEPD opens the Waveshare 2.13" v4 e-paper HAT on the default SPI port
// and clears it. host.Init must have been called.
func OpenEPD(opts ...Option) (*Panel, error) {
	port, err := spireg.Open("")
	if err != nil {
		return nil, fmt.Errorf("panel: spi: %w", err)
	}
	hatOpts := waveshare2in13v4.EPD2in13v4
	dev, err := waveshare2in13v4.NewHat(port, &hatOpts)
	if err != nil {
		port.Close()
		return nil, fmt.Errorf("panel: epd: %w", err)
	}
	if err := dev.Init(); err != nil {
		port.Close()
		return nil, fmt.Errorf("panel: epd init: %w", err)
	}
	if err := dev.Clear(color.White); err != nil {
		port.Close()
		return nil, fmt.Errorf("panel: epd clear: %w", err)
	}
	p := newPanel(dev, true, Paper, opts)
	p.closers = append(p.closers, port)
	return p, nil
}

// Report queues r for drawing if the last refresh is older than the panel
// cadence. It never waits for the display.
func (p *Panel) Report(r controller.Reading) {
	p.mu.Lock()
	now := p.mono.Elapsed()
	if p.drawn && now-p.lastDraw < p.every {
		p.mu.Unlock()
		return
	}
	p.drawn, p.lastDraw = true, now
	if p.pending == nil {
		p.inflight.Add(1)
	}
	p.pending = &r
	p.mu.Unlock()

	select {
	case p.kick <- struct{}{}:
	default:
	}
}

func (p *Panel) loop() {
	defer p.worker.Done()
	for {
		select {
		case <-p.done:
			return
		case <-p.kick:
		}
		p.mu.Lock()
		r := p.pending
		p.pending = nil
		p.mu.Unlock()
		if r == nil {
			continue
		}
		if err := p.refresh(*r); err != nil {
			p.logger.Warn("panel refresh failed", "error", err)
			p.mu.Lock()
			p.drawn = false
			p.mu.Unlock()
		}
		p.inflight.Done()
	}
}

func (p *Panel) refresh(r controller.Reading) error {
	bounds := p.screen.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if p.rotated {
		w, h = h, w
	}
	frame := Render(w, h, r, p.window, p.theme)
	if p.rotated {
		frame = rotate(frame)
	}
	if sameFrame(p.last, frame) {
		return nil
	}

	if s, ok := p.screen.(sleeper); ok && p.asleep {
		if err := s.Init(); err != nil {
			return fmt.Errorf("wake: %w", err)
		}
		p.asleep = false
	}
	img := image1bit.NewVerticalLSB(bounds)
	draw.Draw(img, img.Bounds(), frame, image.Point{}, draw.Src)
	if err := p.screen.Draw(bounds, img, image.Point{}); err != nil {
		return fmt.Errorf("draw: %w", err)
	}
	p.last = frame
	p.mu.Lock()
	p.draws++
	p.mu.Unlock()
	if s, ok := p.screen.(sleeper); ok {
		if err := s.Sleep(); err != nil {
			return fmt.Errorf("sleep: %w", err)
		}
		p.asleep = true
	}
	return nil
}

// Draws returns the number of frames sent to the screen.
func (p *Panel) Draws() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.draws
}

// Halt stops the worker, dropping any reading not yet drawn, then stops the
// display and releases its bus. It waits for a refresh in progress.
func (p *Panel) Halt() error {
	p.stop.Do(func() { close(p.done) })
	p.worker.Wait()

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.pending != nil {
		p.pending = nil
		p.inflight.Done()
	}
	err := p.screen.Halt()
	for _, c := range p.closers {
		err = errors.Join(err, c.Close())
	}
	p.closers = nil
	return err
}
