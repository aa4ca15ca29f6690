package controller

import (
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"

	"github.com/tellSlater/greeksummerlight/internal/clocksource"
)

// Console prints one status line per report:
//
//	2024-07-15T12:00:00 (Stockholm) | offset:7200s | Brightness: 0.964
type Console struct {
	w     io.Writer
	time  *color.Color
	level *color.Color
	stale *color.Color
}

// NewConsole writes to w, or stdout when w is nil. Colors follow fatih/color's
// terminal detection.
func NewConsole(w io.Writer) *Console {
	if w == nil {
		w = os.Stdout
	}
	return &Console{
		w:     w,
		time:  color.New(color.FgCyan),
		level: color.New(color.FgYellow, color.Bold),
		stale: color.New(color.FgHiBlack),
	}
}

// NoColor turns colors off for this console.
func (c *Console) NoColor() *Console {
	c.time.DisableColor()
	c.level.DisableColor()
	c.stale.DisableColor()
	return c
}

func (c *Console) Report(r Reading) {
	line := fmt.Sprintf("%s (Stockholm) | offset:%ds | Brightness: %s",
		c.time.Sprint(r.Local.String()),
		r.Offset,
		c.level.Sprintf("%.3f", r.Brightness))
	if r.State == clocksource.StateStale {
		line += c.stale.Sprint(" | clock stale")
	}
	fmt.Fprintln(c.w, line)
}
