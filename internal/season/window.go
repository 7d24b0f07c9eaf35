package season

import (
	"sort"
	"time"

	"github.com/lox/snowseason/internal/models"
)

// Window is an ordered, read-only view over observation days. It borrows the
// underlying slice; reversing flips the read direction without copying.
type Window struct {
	days    []models.DailyObservation
	reverse bool
}

// NewWindow wraps days in chronological order.
func NewWindow(days []models.DailyObservation) Window {
	return Window{days: days}
}

// Len is the number of days in the window.
func (w Window) Len() int {
	return len(w.days)
}

// At returns the i-th day in window order. Callers must not modify it.
func (w Window) At(i int) *models.DailyObservation {
	if w.reverse {
		return &w.days[len(w.days)-1-i]
	}
	return &w.days[i]
}

// Reverse returns the same days read newest first (or oldest first again).
func (w Window) Reverse() Window {
	return Window{days: w.days, reverse: !w.reverse}
}

// Descending reports whether the window reads newest first.
func (w Window) Descending() bool {
	return w.reverse
}

// Days returns the window contents in window order. The result is a copy when
// the window is reversed.
func (w Window) Days() []models.DailyObservation {
	if !w.reverse {
		return w.days
	}
	out := make([]models.DailyObservation, len(w.days))
	for i := range out {
		out[i] = *w.At(i)
	}
	return out
}

// Slice returns the days of series dated within
// [year-startMonth-startDay, endYear-endMonth-01], inclusive on both ends.
// When endMonth is before startMonth the range crosses into year+1.
// series must be in ascending date order; an empty window is not an error.
func Slice(series []models.DailyObservation, year int, startMonth, endMonth time.Month, startDay int) Window {
	if len(series) == 0 {
		return Window{}
	}
	if startDay < 1 {
		startDay = 1
	}
	loc := series[0].Date.Location()
	endYear := year
	if endMonth < startMonth {
		endYear = year + 1
	}
	start := time.Date(year, startMonth, startDay, 0, 0, 0, 0, loc)
	end := time.Date(endYear, endMonth, 1, 0, 0, 0, 0, loc)
	return SliceDates(series, start, end)
}

// SliceDates returns the contiguous run of series dated within [start, end].
func SliceDates(series []models.DailyObservation, start, end time.Time) Window {
	lo := sort.Search(len(series), func(i int) bool {
		return !series[i].Date.Before(start)
	})
	hi := sort.Search(len(series), func(i int) bool {
		return series[i].Date.After(end)
	})
	if hi <= lo {
		return Window{}
	}
	return Window{days: series[lo:hi]}
}

// SliceMonths filters series by month of year only, merging every year. When
// endMonth is before startMonth the filter wraps (e.g. Oct..Apr).
func SliceMonths(series []models.DailyObservation, startMonth, endMonth time.Month) Window {
	var days []models.DailyObservation
	for _, d := range series {
		m := d.Date.Month()
		var in bool
		if endMonth < startMonth {
			in = m >= startMonth || m <= endMonth
		} else {
			in = m >= startMonth && m <= endMonth
		}
		if in {
			days = append(days, d)
		}
	}
	return Window{days: days}
}

// Years returns the distinct calendar years present in series, ascending.
func Years(series []models.DailyObservation) []int {
	var years []int
	seen := make(map[int]bool)
	for _, d := range series {
		y := d.Date.Year()
		if !seen[y] {
			seen[y] = true
			years = append(years, y)
		}
	}
	sort.Ints(years)
	return years
}

// Span is a month/day range anchored on a season's start year.
type Span struct {
	YearOffset int
	StartMonth time.Month
	StartDay   int
	EndMonth   time.Month
	EndDay     int // 0 means the first of EndMonth
}

// Bounds returns the inclusive calendar bounds of the span for a season.
func (s Span) Bounds(startYear int, loc *time.Location) (time.Time, time.Time) {
	year := startYear + s.YearOffset
	endYear := year
	if s.EndMonth < s.StartMonth {
		endYear = year + 1
	}
	startDay := s.StartDay
	if startDay < 1 {
		startDay = 1
	}
	endDay := s.EndDay
	if endDay < 1 {
		endDay = 1
	}
	return time.Date(year, s.StartMonth, startDay, 0, 0, 0, 0, loc),
		time.Date(endYear, s.EndMonth, endDay, 0, 0, 0, 0, loc)
}

// Window slices series for the season starting in startYear.
func (s Span) Window(series []models.DailyObservation, startYear int) Window {
	if len(series) == 0 {
		return Window{}
	}
	if s.EndDay < 1 {
		return Slice(series, startYear+s.YearOffset, s.StartMonth, s.EndMonth, s.StartDay)
	}
	start, end := s.Bounds(startYear, series[0].Date.Location())
	return SliceDates(series, start, end)
}
