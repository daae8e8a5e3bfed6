// Package chart renders reaction scores as a horizontal bar chart.
package chart

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"

	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// Bar is one labelled value in [0, 1]
type Bar struct {
	Label string
	Value float32
}

// Options controls the chart layout
type Options struct {
	Width     int
	RowHeight int
	Title     string
}

// DefaultOptions returns the layout used by the web surface
func DefaultOptions() Options {
	return Options{Width: 480, RowHeight: 28}
}

var (
	background = color.RGBA{R: 255, G: 255, B: 255, A: 255}
	track      = color.RGBA{R: 235, G: 238, B: 243, A: 255}
	textColor  = color.RGBA{R: 33, G: 37, B: 41, A: 255}
)

// palette cycles through bar colors by rank
var palette = []color.RGBA{
	{R: 255, G: 159, B: 28, A: 255},
	{R: 46, G: 196, B: 182, A: 255},
	{R: 231, G: 29, B: 54, A: 255},
	{R: 1, G: 22, B: 39, A: 255},
	{R: 114, G: 9, B: 183, A: 255},
}

const (
	padding     = 10
	labelWidth  = 120
	valueWidth  = 56
	titleHeight = 22
)

// Render draws the bars, top to bottom in the given order
func Render(bars []Bar, opts Options) *image.RGBA {
	if opts.Width <= 0 {
		opts.Width = DefaultOptions().Width
	}
	if opts.RowHeight <= 0 {
		opts.RowHeight = DefaultOptions().RowHeight
	}
	if opts.Width < 2*padding+labelWidth+valueWidth+1 {
		opts.Width = 2*padding + labelWidth + valueWidth + 1
	}

	top := padding
	if opts.Title != "" {
		top += titleHeight
	}
	height := top + len(bars)*opts.RowHeight + padding

	img := image.NewRGBA(image.Rect(0, 0, opts.Width, height))
	draw.Draw(img, img.Bounds(), image.NewUniform(background), image.Point{}, draw.Src)

	if opts.Title != "" {
		drawText(img, opts.Title, padding, padding+13)
	}

	trackWidth := opts.Width - 2*padding - labelWidth - valueWidth
	for i, bar := range bars {
		y := top + i*opts.RowHeight
		barTop := y + 4
		barBottom := y + opts.RowHeight - 4
		x0 := padding + labelWidth

		draw.Draw(img, image.Rect(x0, barTop, x0+trackWidth, barBottom), image.NewUniform(track), image.Point{}, draw.Src)

		filled := int(float32(trackWidth) * clamp(bar.Value))
		if filled > 0 {
			c := palette[i%len(palette)]
			draw.Draw(img, image.Rect(x0, barTop, x0+filled, barBottom), image.NewUniform(c), image.Point{}, draw.Src)
		}

		baseline := y + opts.RowHeight/2 + 5
		drawText(img, truncate(bar.Label, labelWidth/7-1), padding, baseline)
		drawText(img, fmt.Sprintf("%5.1f%%", clamp(bar.Value)*100), x0+trackWidth+6, baseline)
	}
	return img
}

// WritePNG renders the bars and encodes them as PNG
func WritePNG(w io.Writer, bars []Bar, opts Options) error {
	if err := png.Encode(w, Render(bars, opts)); err != nil {
		return fmt.Errorf("failed to encode chart: %w", err)
	}
	return nil
}

func drawText(img *image.RGBA, text string, x, y int) {
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(textColor),
		Face: basicfont.Face7x13,
		Dot:  fixed.P(x, y),
	}
	d.DrawString(text)
}

func clamp(v float32) float32 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
