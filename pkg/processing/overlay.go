package processing

import (
	"image"
	"image/color"
	"math"

	"github.com/disintegration/imaging"

	"github.com/menta2k/waste-analyzer/pkg/types"
)

// PixelRect converts a percentage box to pixels on a w x h image. The left
// edge is clamped to [0, w-1] and the width to [1, w-left], likewise for the
// vertical axis, so the result is never empty for a non-empty image.
func PixelRect(box types.BoundingBox, w, h int) image.Rectangle {
	x := clampInt(int(math.Round(box.X*float64(w)/100)), 0, w-1)
	y := clampInt(int(math.Round(box.Y*float64(h)/100)), 0, h-1)
	cw := clampInt(int(math.Round(box.W*float64(w)/100)), 1, w-x)
	ch := clampInt(int(math.Round(box.H*float64(h)/100)), 1, h-y)
	return image.Rect(x, y, x+cw, y+ch)
}

var overlayPalette = []color.NRGBA{
	{0, 255, 0, 255},   // green
	{255, 204, 0, 255}, // gold
	{0, 170, 255, 255}, // blue
	{255, 0, 128, 255}, // magenta
	{255, 96, 0, 255},  // orange
}

// DrawOverlay returns a copy of img with the bounding box of every item
// drawn on it. Items without a box are skipped.
func DrawOverlay(img image.Image, items []types.DetectedItem) image.Image {
	nrgba := imaging.Clone(img)
	w := nrgba.Bounds().Dx()
	h := nrgba.Bounds().Dy()
	if w == 0 || h == 0 {
		return nrgba
	}
	stroke := int(math.Max(2, 0.004*float64(min(w, h)))) // ~0.4% of min side

	for i, item := range items {
		if item.BoundingBox == nil || !item.BoundingBox.Valid() {
			continue
		}
		r := PixelRect(item.BoundingBox.Clamp(), w, h)
		drawRect(nrgba, r, overlayPalette[i%len(overlayPalette)], stroke)
	}
	return nrgba
}

func clampInt(v, lo, hi int) int {
	if hi < lo {
		hi = lo
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func drawRect(img *image.NRGBA, r image.Rectangle, c color.NRGBA, stroke int) {
	for s := 0; s < stroke; s++ {
		drawHLine(img, r.Min.Y+s, r.Min.X, r.Max.X, c)
		drawHLine(img, r.Max.Y-1-s, r.Min.X, r.Max.X, c)
		drawVLine(img, r.Min.X+s, r.Min.Y, r.Max.Y, c)
		drawVLine(img, r.Max.X-1-s, r.Min.Y, r.Max.Y, c)
	}
}

func drawHLine(img *image.NRGBA, y, x0, x1 int, c color.NRGBA) {
	if y < 0 || y >= img.Bounds().Dy() {
		return
	}
	if x0 > x1 {
		x0, x1 = x1, x0
	}
	x0 = max(x0, 0)
	x1 = min(x1, img.Bounds().Dx())
	if x1 <= x0 {
		return
	}
	i := y*img.Stride + x0*4
	for x := x0; x < x1; x++ {
		img.Pix[i+0] = c.R
		img.Pix[i+1] = c.G
		img.Pix[i+2] = c.B
		img.Pix[i+3] = c.A
		i += 4
	}
}

func drawVLine(img *image.NRGBA, x, y0, y1 int, c color.NRGBA) {
	if x < 0 || x >= img.Bounds().Dx() {
		return
	}
	if y0 > y1 {
		y0, y1 = y1, y0
	}
	y0 = max(y0, 0)
	y1 = min(y1, img.Bounds().Dy())
	if y1 <= y0 {
		return
	}
	i := y0*img.Stride + x*4
	for y := y0; y < y1; y++ {
		img.Pix[i+0] = c.R
		img.Pix[i+1] = c.G
		img.Pix[i+2] = c.B
		img.Pix[i+3] = c.A
		i += img.Stride
	}
}
