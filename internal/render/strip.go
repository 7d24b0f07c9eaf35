package render

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"sort"
	"time"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/lox/snowseason/internal/i18n"
	"github.com/lox/snowseason/internal/season"
)

// Strip geometry. The strip covers Sep 1 of the start year up to Jul 1 of the
// following year.
const (
	PxPerDay   = 5
	StripTop   = 22
	BandHeight = 40
	Height     = StripTop + BandHeight + 20
)

// Season block colours.
var (
	ColorAutumn = color.RGBA{0xD9, 0xA1, 0x8C, 0xFF}
	ColorWinter = color.RGBA{0x94, 0xBD, 0xD1, 0xFF}
	ColorSpring = color.RGBA{0xAE, 0xC9, 0x9C, 0xFF}
	ColorSummer = color.RGBA{0xF5, 0xDF, 0xA3, 0xFF}

	colorText = color.RGBA{0x33, 0x33, 0x33, 0xFF}
	colorTick = color.RGBA{0x55, 0x55, 0x55, 0xFF}
)

type block struct {
	key   string
	start time.Time
	color color.RGBA
}

// StripRange returns the first and last (exclusive) day shown for a season.
func StripRange(startYear int) (time.Time, time.Time) {
	return time.Date(startYear, time.September, 1, 0, 0, 0, 0, time.UTC),
		time.Date(startYear+1, time.July, 1, 0, 0, 0, 0, time.UTC)
}

// DayX returns the x offset of the calendar day of t on the strip of
// startYear, clipped to the strip.
func DayX(startYear int, t time.Time) int {
	start, end := StripRange(startYear)
	d := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	days := int(d.Sub(start).Hours() / 24)
	last := int(end.Sub(start).Hours() / 24)
	if days < 0 {
		days = 0
	}
	if days > last {
		days = last
	}
	return days * PxPerDay
}

// Strip draws the season boundary band for r. Days before the first known
// boundary keep the summer background; missing boundaries are skipped.
func Strip(r *season.Record, labels i18n.Labels, face font.Face) *image.RGBA {
	if face == nil {
		face = basicfont.Face7x13
	}
	start, end := StripRange(r.StartYear)
	width := int(end.Sub(start).Hours()/24) * PxPerDay

	img := image.NewRGBA(image.Rect(0, 0, width, Height))
	draw.Draw(img, img.Bounds(), image.White, image.Point{}, draw.Src)
	band := image.Rect(0, StripTop, width, StripTop+BandHeight)
	draw.Draw(img, band, image.NewUniform(ColorSummer), image.Point{}, draw.Src)

	blocks := boundaryBlocks(r)
	for i, b := range blocks {
		x0 := DayX(r.StartYear, b.start)
		x1 := width
		if i+1 < len(blocks) {
			x1 = DayX(r.StartYear, blocks[i+1].start)
		}
		rect := image.Rect(x0, StripTop, x1, StripTop+BandHeight)
		draw.Draw(img, rect, image.NewUniform(b.color), image.Point{}, draw.Src)

		drawText(img, labels.Season(b.key), x0+2, StripTop+BandHeight-6, colorText, face)
		drawText(img, labels.MonthDay(b.start), x0+2, Height-4, colorText, face)
	}

	jan1 := DayX(r.StartYear, time.Date(r.StartYear+1, time.January, 1, 0, 0, 0, 0, time.UTC))
	for y := StripTop - 4; y < StripTop+BandHeight+4; y++ {
		img.SetRGBA(jan1, y, colorTick)
	}

	drawText(img, r.Label, 2, StripTop-8, colorText, face)
	return img
}

// SeasonStrip renders the strip for r as PNG bytes.
func SeasonStrip(r *season.Record, labels i18n.Labels) ([]byte, error) {
	img := Strip(r, labels, nil)
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode strip %s: %w", r.Label, err)
	}
	return buf.Bytes(), nil
}

func boundaryBlocks(r *season.Record) []block {
	b := r.Boundaries
	candidates := []struct {
		key   string
		valid bool
		t     time.Time
		color color.RGBA
	}{
		{"aut", b.Autumn.Valid, b.Autumn.Time, ColorAutumn},
		{"win", b.Winter.Valid, b.Winter.Time, ColorWinter},
		{"spr", b.Spring.Valid, b.Spring.Time, ColorSpring},
		{"sum", b.Summer.Valid, b.Summer.Time, ColorSummer},
	}
	var blocks []block
	for _, c := range candidates {
		if c.valid {
			blocks = append(blocks, block{key: c.key, start: c.t, color: c.color})
		}
	}
	sort.SliceStable(blocks, func(i, j int) bool {
		return blocks[i].start.Before(blocks[j].start)
	})
	return blocks
}

// drawText draws text with its baseline at y.
func drawText(img *image.RGBA, text string, x, y int, col color.Color, face font.Face) {
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(col),
		Face: face,
		Dot:  fixed.Point26_6{X: fixed.I(x), Y: fixed.I(y)},
	}
	d.DrawString(text)
}
