package render

import (
	"bytes"
	"database/sql"
	"image/png"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/lox/snowseason/internal/i18n"
	"github.com/lox/snowseason/internal/season"
)

func at(s string) sql.NullTime {
	t, _ := time.Parse("2006-01-02", s)
	return sql.NullTime{Time: t, Valid: true}
}

func testRecord() *season.Record {
	return &season.Record{
		Label:     "2020-21",
		StartYear: 2020,
		Boundaries: season.Boundaries{
			Autumn: at("2020-11-07"),
			Winter: at("2020-12-21"),
			Summer: at("2021-06-07"),
		},
	}
}

func TestDayX(t *testing.T) {
	tests := []struct {
		date string
		want int
	}{
		{"2020-09-01", 0},
		{"2020-11-07", 67 * PxPerDay},
		{"2021-01-01", 122 * PxPerDay},
		{"2020-08-15", 0},
		{"2021-07-01", 303 * PxPerDay},
		{"2021-08-01", 303 * PxPerDay},
	}
	for _, tt := range tests {
		t.Run(tt.date, func(t *testing.T) {
			d, _ := time.Parse("2006-01-02", tt.date)
			if got := DayX(2020, d); got != tt.want {
				t.Errorf("DayX(%s) = %d, want %d", tt.date, got, tt.want)
			}
		})
	}
}

func TestStrip(t *testing.T) {
	labels, _ := i18n.For(i18n.English)
	img := Strip(testRecord(), labels, nil)

	if w := img.Bounds().Dx(); w != 303*PxPerDay {
		t.Errorf("width = %d, want %d", w, 303*PxPerDay)
	}
	if h := img.Bounds().Dy(); h != Height {
		t.Errorf("height = %d, want %d", h, Height)
	}

	y := StripTop + 2
	tests := []struct {
		name string
		x    int
		want [4]uint8
	}{
		{"before autumn", 10, rgba(ColorSummer)},
		{"autumn", 67*PxPerDay + 5, rgba(ColorAutumn)},
		{"winter", 111*PxPerDay + 5, rgba(ColorWinter)},
		{"jan 1 tick", 122 * PxPerDay, rgba(colorTick)},
		{"missing spring stays winter", 200 * PxPerDay, rgba(ColorWinter)},
		{"summer", 279*PxPerDay + 5, rgba(ColorSummer)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := img.RGBAAt(tt.x, y)
			if got := [4]uint8{c.R, c.G, c.B, c.A}; got != tt.want {
				t.Errorf("pixel at x=%d = %v, want %v", tt.x, got, tt.want)
			}
		})
	}
}

func rgba(c interface{ RGBA() (r, g, b, a uint32) }) [4]uint8 {
	r, g, b, a := c.RGBA()
	return [4]uint8{uint8(r >> 8), uint8(g >> 8), uint8(b >> 8), uint8(a >> 8)}
}

func TestStrip_NoBoundaries(t *testing.T) {
	labels, _ := i18n.For(i18n.Japanese)
	img := Strip(&season.Record{Label: "1999-00", StartYear: 1999}, labels, nil)

	c := img.RGBAAt(50*PxPerDay, StripTop+2)
	if got := [4]uint8{c.R, c.G, c.B, c.A}; got != rgba(ColorSummer) {
		t.Errorf("pixel = %v, want summer background", got)
	}
}

func TestSeasonStrip_PNG(t *testing.T) {
	labels, _ := i18n.For(i18n.English)
	data, err := SeasonStrip(testRecord(), labels)
	if err != nil {
		t.Fatalf("SeasonStrip: %v", err)
	}
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if img.Bounds().Dx() != 303*PxPerDay {
		t.Errorf("decoded width = %d", img.Bounds().Dx())
	}
}

func TestCache(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	c := NewCache(10*time.Minute, clock)

	if _, ok := c.Get("2020-21/en"); ok {
		t.Fatal("empty cache returned a hit")
	}
	c.Set("2020-21/en", []byte("png"))
	if data, ok := c.Get("2020-21/en"); !ok || string(data) != "png" {
		t.Errorf("Get = %q, %v", data, ok)
	}

	clock.Advance(11 * time.Minute)
	if _, ok := c.Get("2020-21/en"); ok {
		t.Error("expired entry returned")
	}

	c.Set("2020-21/ja", []byte("png"))
	c.Purge()
	if _, ok := c.Get("2020-21/ja"); ok {
		t.Error("purged entry returned")
	}
}
