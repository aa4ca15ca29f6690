package controller

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/tellSlater/greeksummerlight/internal/calendar"
	"github.com/tellSlater/greeksummerlight/internal/clocksource"
	"github.com/tellSlater/greeksummerlight/internal/curve"
)

var quiet = slog.New(slog.DiscardHandler)

// fixedClock always reports epoch, or err if set.
type fixedClock struct {
	epoch  int64
	err    error
	state  clocksource.State
	maybes int
	nows   int
	onNow  func(n int)
}

func (c *fixedClock) MaybeSync(context.Context) { c.maybes++ }

func (c *fixedClock) Now(context.Context) (int64, error) {
	c.nows++
	if c.onNow != nil {
		c.onNow(c.nows)
	}
	if c.err != nil {
		return 0, c.err
	}
	return c.epoch, nil
}

func (c *fixedClock) State() clocksource.State { return c.state }

type levels struct {
	writes []float64
	err    error
}

func (l *levels) SetBrightness(v float64) error {
	l.writes = append(l.writes, v)
	return l.err
}

type collect struct{ got []Reading }

func (c *collect) Report(r Reading) { c.got = append(c.got, r) }

type feeds struct {
	n atomic.Int32
	// mono, if set, advances by step on every feed.
	mono *fakeMono
	step time.Duration
}

func (f *feeds) Feed() error {
	f.n.Add(1)
	if f.mono != nil {
		f.mono.d.Add(int64(f.step))
	}
	return nil
}

type fakeMono struct{ d atomic.Int64 }

func (m *fakeMono) Elapsed() time.Duration { return time.Duration(m.d.Load()) }

type stubAuthority struct{ ts calendar.Timestamp }

func (a stubAuthority) FetchUTC(context.Context) (calendar.Timestamp, error) { return a.ts, nil }

func TestStepStockholmSummerNoon(t *testing.T) {
	mono := &fakeMono{}
	src := clocksource.New(stubAuthority{calendar.Date(2024, 7, 15, 10, 0, 0)}, mono,
		clocksource.DefaultConfig(), clocksource.WithLogger(quiet))
	out := &levels{}
	c := New(src, out, Config{}, WithLogger(quiet))

	r, err := c.Step(context.Background())
	if err != nil {
		t.Fatalf("Step: %v", err)
	}
	if r.Offset != 7200 || r.Zone() != "CEST" {
		t.Errorf("offset = %d %s, want 7200 CEST", r.Offset, r.Zone())
	}
	if want := calendar.Date(2024, 7, 15, 12, 0, 0); r.Local != want {
		t.Errorf("local = %s, want %s", r.Local, want)
	}
	want := math.Sin(math.Pi * 6 / 14.5)
	if math.Abs(r.Brightness-want) > 1e-9 {
		t.Errorf("brightness = %v, want %v", r.Brightness, want)
	}
	if len(out.writes) != 1 || out.writes[0] != r.Brightness {
		t.Errorf("led writes = %v", out.writes)
	}
	if r.State != clocksource.StateSynced {
		t.Errorf("state = %v", r.State)
	}
}

func TestStepTable(t *testing.T) {
	tests := []struct {
		name       string
		utc        calendar.Timestamp
		wantOffset int
		wantLocal  calendar.Timestamp
		wantLevel  float64
	}{
		{"winter night", calendar.Date(2024, 1, 10, 2, 0, 0), 3600, calendar.Date(2024, 1, 10, 3, 0, 0), 0},
		{"winter sunrise", calendar.Date(2024, 1, 10, 5, 0, 0), 3600, calendar.Date(2024, 1, 10, 6, 0, 0), 0},
		{"summer peak", calendar.Date(2024, 6, 1, 11, 15, 0), 7200, calendar.Date(2024, 6, 1, 13, 15, 0), 1},
		{"spring forward", calendar.Date(2024, 3, 31, 1, 0, 0), 7200, calendar.Date(2024, 3, 31, 3, 0, 0), 0},
		{"last standard second", calendar.Date(2024, 3, 31, 0, 59, 59), 3600, calendar.Date(2024, 3, 31, 1, 59, 59), 0},
		{"fall back", calendar.Date(2024, 10, 27, 1, 0, 0), 3600, calendar.Date(2024, 10, 27, 2, 0, 0), 0},
		{"new year local", calendar.Date(2023, 12, 31, 23, 30, 0), 3600, calendar.Date(2024, 1, 1, 0, 30, 0), 0},
		{"sunset", calendar.Date(2024, 8, 1, 18, 30, 0), 7200, calendar.Date(2024, 8, 1, 20, 30, 0), 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clk := &fixedClock{epoch: calendar.ToEpoch(tt.utc), state: clocksource.StateSynced}
			c := New(clk, &levels{}, DefaultConfig(), WithLogger(quiet))
			r, err := c.Step(context.Background())
			if err != nil {
				t.Fatal(err)
			}
			if r.UTC != tt.utc || r.Offset != tt.wantOffset || r.Local != tt.wantLocal {
				t.Errorf("got %s +%d = %s, want +%d = %s", r.UTC, r.Offset, r.Local, tt.wantOffset, tt.wantLocal)
			}
			if math.Abs(r.Brightness-tt.wantLevel) > 1e-9 {
				t.Errorf("brightness = %v, want %v", r.Brightness, tt.wantLevel)
			}
			if clk.maybes != 1 {
				t.Errorf("MaybeSync called %d times", clk.maybes)
			}
		})
	}
}

func TestStepUsesConfiguredWindow(t *testing.T) {
	// 18:00 UTC in July is 20:00 CEST: dark in the compact window.
	clk := &fixedClock{epoch: calendar.ToEpoch(calendar.Date(2024, 7, 1, 18, 0, 0))}
	cfg := DefaultConfig()
	cfg.Window = curve.Compact
	r, err := New(clk, &levels{}, cfg, WithLogger(quiet)).Step(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if r.Brightness != 0 {
		t.Errorf("brightness = %v, want 0", r.Brightness)
	}
}

func TestStepClockError(t *testing.T) {
	clk := &fixedClock{err: fmt.Errorf("%w: down", clocksource.ErrNeverSynced)}
	out := &levels{}
	_, err := New(clk, out, DefaultConfig(), WithLogger(quiet)).Step(context.Background())
	if !errors.Is(err, clocksource.ErrNeverSynced) {
		t.Errorf("Step error = %v", err)
	}
	if len(out.writes) != 0 {
		t.Errorf("LED written without a time: %v", out.writes)
	}
}

func TestStepLEDErrorIsNotFatal(t *testing.T) {
	clk := &fixedClock{epoch: calendar.ToEpoch(calendar.Date(2024, 7, 15, 10, 0, 0))}
	out := &levels{err: errors.New("pwm busy")}
	r, err := New(clk, out, DefaultConfig(), WithLogger(quiet)).Step(context.Background())
	if err != nil {
		t.Fatalf("Step: %v", err)
	}
	if r.Brightness == 0 {
		t.Error("reading lost on LED error")
	}
}

func TestRunReportsAtStatusCadence(t *testing.T) {
	clk := &fixedClock{epoch: calendar.ToEpoch(calendar.Date(2024, 7, 15, 10, 0, 0))}
	out := &levels{}
	rep := &collect{}
	wd := &feeds{}
	mono := &fakeMono{}
	cfg := Config{Poll: time.Millisecond, StatusEvery: time.Hour}
	c := New(clk, out, cfg, WithLogger(quiet), WithReporter(rep), WithWatchdog(wd), WithMonotonic(mono))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := c.Run(ctx); err != nil {
		t.Fatalf("Run = %v", err)
	}
	if len(rep.got) != 1 {
		t.Errorf("%d reports, want 1", len(rep.got))
	}
	if len(out.writes) < 2 {
		t.Errorf("%d LED writes, want several", len(out.writes))
	}
	if int(wd.n.Load()) != len(out.writes) {
		t.Errorf("watchdog fed %d times for %d ticks", wd.n.Load(), len(out.writes))
	}
}

func TestStatusReportCadence(t *testing.T) {
	clk := &fixedClock{epoch: calendar.ToEpoch(calendar.Date(2024, 7, 15, 10, 0, 0))}
	rep := &collect{}
	mono := &fakeMono{}
	c := New(clk, &levels{}, Config{StatusEvery: 10 * time.Second},
		WithLogger(quiet), WithReporter(rep), WithMonotonic(mono))

	steps := []struct {
		advance time.Duration
		want    int
	}{
		{0, 1},
		{time.Second, 1},
		{8 * time.Second, 1},
		{time.Second, 2},
		{9 * time.Second, 2},
		{time.Second, 3},
		{time.Hour, 4},
	}
	for i, st := range steps {
		mono.d.Add(int64(st.advance))
		r, err := c.Step(context.Background())
		if err != nil {
			t.Fatal(err)
		}
		c.maybeReport(r)
		if len(rep.got) != st.want {
			t.Errorf("step %d at %v: %d reports, want %d", i, mono.Elapsed(), len(rep.got), st.want)
		}
	}
}

func TestRunKeepsFeedingWhileUnsynced(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Stop on the third attempt to read the time.
	clk := &fixedClock{
		err: fmt.Errorf("%w: down", clocksource.ErrNeverSynced),
		onNow: func(n int) {
			if n == 3 {
				cancel()
			}
		},
	}
	mono := &fakeMono{}
	// Each feed moves the clock one second, so a 5s boot retry takes five
	// ticks however fast the ticker runs.
	wd := &feeds{mono: mono, step: time.Second}
	rep := &collect{}
	cfg := Config{Poll: time.Millisecond, BootRetry: 5 * time.Second}
	c := New(clk, &levels{}, cfg, WithLogger(quiet), WithReporter(rep), WithWatchdog(wd), WithMonotonic(mono))

	if err := c.Run(ctx); err != nil {
		t.Fatalf("Run = %v", err)
	}
	if len(rep.got) != 0 {
		t.Errorf("reported without a time: %d", len(rep.got))
	}
	if clk.nows != 3 {
		t.Errorf("%d attempts to read the time, want 3", clk.nows)
	}
	// Two failed ticks with a 5-tick wait each, then the cancelled tick.
	if got := wd.n.Load(); got != 2*(1+5)+1 {
		t.Errorf("watchdog fed %d times, want 13", got)
	}
	if mono.Elapsed() != 13*time.Second {
		t.Errorf("mono = %v", mono.Elapsed())
	}
}

func TestConsole(t *testing.T) {
	var buf bytes.Buffer
	con := NewConsole(&buf).NoColor()
	con.Report(Reading{
		Local:      calendar.Date(2024, 7, 15, 12, 0, 0),
		Offset:     7200,
		Brightness: 0.96359,
		State:      clocksource.StateSynced,
	})
	want := "2024-07-15T12:00:00 (Stockholm) | offset:7200s | Brightness: 0.964\n"
	if buf.String() != want {
		t.Errorf("console = %q, want %q", buf.String(), want)
	}

	buf.Reset()
	con.Report(Reading{Local: calendar.Date(2024, 1, 1, 0, 0, 0), Offset: 3600, State: clocksource.StateStale})
	if !strings.HasSuffix(buf.String(), "| clock stale\n") {
		t.Errorf("stale console = %q", buf.String())
	}
}
