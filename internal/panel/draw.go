package panel

import (
	"image"
	"image/color"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// glyphW is the advance of basicfont.Face7x13.
const glyphW = 7

func text(img *image.Gray, x, y int, s string, fg uint8) {
	d := font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(color.Gray{Y: fg}),
		Face: basicfont.Face7x13,
		Dot:  fixed.P(x, y),
	}
	d.DrawString(s)
}

// textRight draws s so that it ends at x.
func textRight(img *image.Gray, x, y int, s string, fg uint8) {
	text(img, x-len(s)*glyphW, y, s, fg)
}

func fillRect(img *image.Gray, x0, y0, x1, y1 int, c uint8) {
	for y := y0; y <= y1; y++ {
		for x := x0; x <= x1; x++ {
			if image.Pt(x, y).In(img.Rect) {
				img.SetGray(x, y, color.Gray{Y: c})
			}
		}
	}
}

func rectOutline(img *image.Gray, x0, y0, x1, y1 int, c uint8) {
	line(img, x0, y0, x1, y0, c)
	line(img, x0, y1, x1, y1, c)
	line(img, x0, y0, x0, y1, c)
	line(img, x1, y0, x1, y1, c)
}

// line is Bresenham's.
func line(img *image.Gray, x0, y0, x1, y1 int, c uint8) {
	dx := abs(x1 - x0)
	dy := -abs(y1 - y0)
	sx := -1
	if x0 < x1 {
		sx = 1
	}
	sy := -1
	if y0 < y1 {
		sy = 1
	}
	err := dx + dy
	for {
		if image.Pt(x0, y0).In(img.Rect) {
			img.SetGray(x0, y0, color.Gray{Y: c})
		}
		if x0 == x1 && y0 == y1 {
			break
		}
		e2 := 2 * err
		if e2 >= dy {
			err += dy
			x0 += sx
		}
		if e2 <= dx {
			err += dx
			y0 += sy
		}
	}
}

func circle(img *image.Gray, cx, cy, r int, c uint8, fill bool) {
	for y := -r; y <= r; y++ {
		for x := -r; x <= r; x++ {
			d := x*x + y*y
			if d > r*r || (!fill && d < (r-1)*(r-1)) {
				continue
			}
			if p := image.Pt(cx+x, cy+y); p.In(img.Rect) {
				img.SetGray(p.X, p.Y, color.Gray{Y: c})
			}
		}
	}
}

// bar draws an outlined meter filled to frac.
func bar(img *image.Gray, x0, y0, x1, y1 int, frac float64, fg, bg uint8) {
	fillRect(img, x0, y0, x1, y1, bg)
	rectOutline(img, x0, y0, x1, y1, fg)
	if frac <= 0 {
		return
	}
	if frac > 1 {
		frac = 1
	}
	inner := x1 - x0 - 3
	fillRect(img, x0+2, y0+2, x0+2+int(float64(inner)*frac), y1-2, fg)
}

// rotate turns a landscape frame a quarter turn clockwise so it can be sent
// to a panel whose native orientation is portrait.
func rotate(src *image.Gray) *image.Gray {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	dst := image.NewGray(image.Rect(0, 0, h, w))
	for y := 0; y < w; y++ {
		for x := 0; x < h; x++ {
			dst.SetGray(x, y, src.GrayAt(b.Min.X+y, b.Min.Y+h-1-x))
		}
	}
	return dst
}

// sameFrame reports whether two frames are pixel-identical.
func sameFrame(a, b *image.Gray) bool {
	if a == nil || b == nil || !a.Rect.Eq(b.Rect) {
		return false
	}
	for y := a.Rect.Min.Y; y < a.Rect.Max.Y; y++ {
		for x := a.Rect.Min.X; x < a.Rect.Max.X; x++ {
			if a.GrayAt(x, y) != b.GrayAt(x, y) {
				return false
			}
		}
	}
	return true
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
