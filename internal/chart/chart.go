// Package chart draws the per-session prediction bar chart.
package chart

import (
	"fmt"
	"image"
	"io"
	"math"
	"sort"

	"github.com/fogleman/gg"
	"github.com/fruitlens/fruit-classifier/internal/fruit"
	"github.com/fruitlens/fruit-classifier/internal/tally"
)

const (
	DefaultWidth  = 720
	DefaultHeight = 400

	Title  = "Fruit Prediction Count"
	XTitle = "Fruit Type"
	YTitle = "Number of Predictions"

	marginLeft   = 70
	marginRight  = 20
	marginTop    = 50
	marginBottom = 60
)

type bar struct {
	label fruit.Label
	count int
	color string
}

// bars keeps each entry's colour from its first-occurrence position and then
// orders bars by descending count.
func bars(entries []tally.Entry) []bar {
	out := make([]bar, len(entries))
	for i, e := range entries {
		out[i] = bar{label: e.Label, count: e.Count, color: fruit.Color(i)}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].count > out[j].count })
	return out
}

// Render draws entries, given in first-occurrence order, as a bar chart.
func Render(entries []tally.Entry, width, height int) image.Image {
	if width <= 0 {
		width = DefaultWidth
	}
	if height <= 0 {
		height = DefaultHeight
	}

	dc := gg.NewContext(width, height)
	dc.SetHexColor("#ffffff")
	dc.Clear()

	dc.SetHexColor("#333333")
	dc.DrawStringAnchored(Title, float64(width)/2, marginTop/2, 0.5, 0.5)
	dc.DrawStringAnchored(XTitle, float64(width)/2, float64(height)-12, 0.5, 0.5)
	dc.Push()
	dc.RotateAbout(gg.Radians(-90), 16, float64(height)/2)
	dc.DrawStringAnchored(YTitle, 16, float64(height)/2, 0.5, 0.5)
	dc.Pop()

	plotW := float64(width - marginLeft - marginRight)
	plotH := float64(height - marginTop - marginBottom)
	x0 := float64(marginLeft)
	y0 := float64(height - marginBottom)

	dc.SetHexColor("#888888")
	dc.SetLineWidth(1)
	dc.DrawLine(x0, y0, x0+plotW, y0)
	dc.DrawLine(x0, y0, x0, y0-plotH)
	dc.Stroke()

	bs := bars(entries)
	if len(bs) == 0 {
		dc.DrawStringAnchored("No predictions yet", x0+plotW/2, y0-plotH/2, 0.5, 0.5)
		return dc.Image()
	}

	maxCount := bs[0].count
	// leave head room for the value label above the tallest bar
	scale := (plotH - 20) / float64(maxCount)
	ticks := tickStep(maxCount)
	dc.SetHexColor("#888888")
	for v := 0; v <= maxCount; v += ticks {
		y := y0 - float64(v)*scale
		dc.DrawLine(x0-4, y, x0, y)
		dc.Stroke()
		dc.DrawStringAnchored(fmt.Sprint(v), x0-8, y, 1, 0.5)
	}

	slot := plotW / float64(len(bs))
	barW := slot * 0.6
	for i, b := range bs {
		cx := x0 + slot*(float64(i)+0.5)
		h := float64(b.count) * scale
		dc.SetHexColor(b.color)
		dc.DrawRectangle(cx-barW/2, y0-h, barW, h)
		dc.Fill()

		dc.SetHexColor("#333333")
		dc.DrawStringAnchored(fmt.Sprint(b.count), cx, y0-h-8, 0.5, 0.5)
		dc.DrawStringAnchored(barLabel(b.label), cx, y0+14, 0.5, 0.5)
	}
	return dc.Image()
}

// barLabel is the text under a bar. The built-in face has no emoji glyphs,
// so only the name is drawn; the page's tally table carries the emoji.
func barLabel(l fruit.Label) string {
	return l.String()
}

// WritePNG renders the chart and encodes it as PNG.
func WritePNG(w io.Writer, entries []tally.Entry, width, height int) error {
	dc := gg.NewContextForImage(Render(entries, width, height))
	return dc.EncodePNG(w)
}

// tickStep picks a y-axis step giving at most about five ticks.
func tickStep(maxCount int) int {
	if maxCount <= 5 {
		return 1
	}
	return int(math.Ceil(float64(maxCount) / 5))
}
