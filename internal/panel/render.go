package panel

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"

	"github.com/tellSlater/greeksummerlight/internal/controller"
	"github.com/tellSlater/greeksummerlight/internal/curve"
)

// Theme is a foreground/background pair of gray levels.
type Theme struct {
	FG, BG uint8
}

var (
	// Paper is black ink on white, for e-paper.
	Paper = Theme{FG: 0, BG: 255}
	// Night is lit pixels on black, for OLEDs.
	Night = Theme{FG: 255, BG: 0}
)

// Render draws a status frame of w by h pixels in landscape orientation.
// Frames narrower than 200 pixels get the compact layout.
func Render(w, h int, r controller.Reading, win curve.Window, th Theme) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, w, h))
	draw.Draw(img, img.Bounds(), &image.Uniform{color.Gray{Y: th.BG}}, image.Point{}, draw.Src)
	if w < 200 {
		renderCompact(img, r, th)
	} else {
		renderWide(img, r, win, th)
	}
	return img
}

// renderCompact fits a 128x64 OLED.
func renderCompact(img *image.Gray, r controller.Reading, th Theme) {
	w := img.Rect.Dx()
	text(img, 2, 12, clockString(r), th.FG)
	textRight(img, w-2, 12, r.Zone(), th.FG)
	line(img, 0, 16, w-1, 16, th.FG)
	text(img, 2, 30, fmt.Sprintf("LIGHT %3.0f%%", r.Brightness*100), th.FG)
	bar(img, 2, 35, w-3, 45, r.Brightness, th.FG, th.BG)
	text(img, 2, 60, dateString(r), th.FG)
	textRight(img, w-2, 60, stateLabel(r), th.FG)
}

// renderWide fits the 250x122 e-paper: status on the left, the day's arc
// on the right.
func renderWide(img *image.Gray, r controller.Reading, win curve.Window, th Theme) {
	w, h := img.Rect.Dx(), img.Rect.Dy()

	text(img, 4, 16, "GREEK SUMMER LIGHT", th.FG)
	textRight(img, w-4, 16, r.Zone(), th.FG)
	line(img, 0, 22, w-1, 22, th.FG)
	line(img, 125, 23, 125, h-1, th.FG)

	text(img, 8, 38, "STOCKHOLM", th.FG)
	text(img, 8, 56, clockString(r), th.FG)
	text(img, 8, 74, dateString(r), th.FG)
	text(img, 8, 92, fmt.Sprintf("LIGHT %3.0f%%", r.Brightness*100), th.FG)
	bar(img, 8, 97, 118, 105, r.Brightness, th.FG, th.BG)
	text(img, 8, 119, "CLOCK "+stateLabel(r), th.FG)

	// Horizon with the sun at its position in the window; below the line
	// outside of it.
	const horizon = 90
	line(img, 130, horizon, 245, horizon, th.FG)
	day := float64(r.Local.SecondOfDay()) / 86400
	sunX := 132 + int(110*day)
	sunY := horizon - int(50*r.Brightness)
	if r.Brightness == 0 {
		sunY = horizon + 10
	}
	circle(img, sunX, sunY, 7, th.FG, r.Brightness > 0)
	text(img, 130, 108, win.String(), th.FG)
}

func clockString(r controller.Reading) string {
	return fmt.Sprintf("%02d:%02d:%02d", r.Local.Hour, r.Local.Minute, r.Local.Second)
}

func dateString(r controller.Reading) string {
	return fmt.Sprintf("%04d-%02d-%02d", r.Local.Year, r.Local.Month, r.Local.Day)
}

func stateLabel(r controller.Reading) string {
	return r.State.String()
}
