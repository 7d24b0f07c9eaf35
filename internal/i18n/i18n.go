// Package i18n holds the label tables used on rendered season graphics.
package i18n

import (
	"fmt"
	"strings"
	"time"
)

// Lang is a supported label language.
type Lang string

const (
	English  Lang = "en"
	Japanese Lang = "ja"
)

// Labels is the text used for one language.
type Labels struct {
	Lang Lang

	// Seasons maps the boundary keys aut/win/spr/sum to a display name.
	Seasons map[string]string
	// Markers maps the snowfall marker keys and "fin" to a display name.
	Markers map[string]string

	TotalSnowfall string
	MaxSnowDepth  string
	Unit          string

	monthDay func(time.Time) string
	month    func(time.Time) string
}

// MonthDay formats t as a short month and day, e.g. "Jan 02" or "01月02日".
func (l Labels) MonthDay(t time.Time) string {
	return l.monthDay(t)
}

// Month formats the month of t, e.g. "Jan" or "01月".
func (l Labels) Month(t time.Time) string {
	return l.month(t)
}

// Season returns the display name for a boundary key, or the key itself.
func (l Labels) Season(key string) string {
	if s, ok := l.Seasons[key]; ok {
		return s
	}
	return key
}

var tables = map[Lang]Labels{
	English: {
		Lang:    English,
		Seasons: map[string]string{"aut": "Autumn", "win": "Winter", "spr": "Spring", "sum": "Summer"},
		Markers: map[string]string{
			"fst":      "1st snowfall",
			"fst_subs": "1st substantial snowfall",
			"lst_subs": "last substantial snowfall",
			"lst":      "last snowfall",
			"fin":      "Snow depth 0",
		},
		TotalSnowfall: "Total snowfall",
		MaxSnowDepth:  "Max snow depth",
		Unit:          "cm",
		monthDay:      func(t time.Time) string { return t.Format("Jan 02") },
		month:         func(t time.Time) string { return t.Format("Jan") },
	},
	Japanese: {
		Lang:    Japanese,
		Seasons: map[string]string{"aut": "秋", "win": "冬", "spr": "春", "sum": "夏"},
		Markers: map[string]string{
			"fst":      "初雪",
			"fst_subs": "連続降雪",
			"lst_subs": "連続終雪",
			"lst":      "終雪",
			"fin":      "積雪0",
		},
		TotalSnowfall: "総降雪量",
		MaxSnowDepth:  "最大積雪深",
		Unit:          "cm",
		monthDay:      func(t time.Time) string { return fmt.Sprintf("%02d月%02d日", int(t.Month()), t.Day()) },
		month:         func(t time.Time) string { return fmt.Sprintf("%02d月", int(t.Month())) },
	},
}

// Langs lists the supported languages.
func Langs() []Lang {
	return []Lang{English, Japanese}
}

// For returns the label table for lang.
func For(lang Lang) (Labels, error) {
	l, ok := tables[Lang(strings.ToLower(string(lang)))]
	if !ok {
		return Labels{}, fmt.Errorf("unsupported language %q", lang)
	}
	return l, nil
}

// ParseLangs parses a comma separated language list such as "en,ja".
func ParseLangs(s string) ([]Lang, error) {
	var langs []Lang
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		l, err := For(Lang(part))
		if err != nil {
			return nil, err
		}
		langs = append(langs, l.Lang)
	}
	if len(langs) == 0 {
		return nil, fmt.Errorf("no languages in %q", s)
	}
	return langs, nil
}
