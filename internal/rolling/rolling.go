// Package rolling computes centered rolling statistics over the daily series.
package rolling

import (
	"database/sql"
	"fmt"
	"math"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/lox/snowseason/internal/models"
)

// Options configures a rolling window. Windows are counted in rows, not days.
type Options struct {
	Window int
	// Center places the current row in the middle of the window instead of at its end.
	Center bool
	// MinPeriods is the fewest non-null values that still produce a mean.
	MinPeriods int
}

// DefaultOptions is the 7-day centered window that shrinks at the series edges.
func DefaultOptions() Options {
	return Options{Window: 7, Center: true, MinPeriods: 1}
}

func (o Options) validate() error {
	if o.Window < 1 {
		return fmt.Errorf("rolling: window %d must be positive", o.Window)
	}
	if o.MinPeriods < 0 || o.MinPeriods > o.Window {
		return fmt.Errorf("rolling: min periods %d outside 0..%d", o.MinPeriods, o.Window)
	}
	return nil
}

// bounds returns the inclusive row range of the window for row i of n.
func (o Options) bounds(i, n int) (int, int) {
	hi := i
	if o.Center {
		hi = i + (o.Window-1)/2
	}
	lo := hi + 1 - o.Window
	if lo < 0 {
		lo = 0
	}
	if hi > n-1 {
		hi = n - 1
	}
	return lo, hi
}

// Point is the rolling mean and sample standard deviation for one day. Mean
// is rounded to one decimal, Std to two; Std is null with fewer than two values.
type Point struct {
	Date time.Time
	Mean sql.NullFloat64
	Std  sql.NullFloat64
}

// Rolling computes the rolling mean and standard deviation of col for every
// row of series. Null values are skipped; series is not modified.
func Rolling(series []models.DailyObservation, col models.Column, opt Options) ([]Point, error) {
	if err := opt.validate(); err != nil {
		return nil, err
	}
	if _, err := models.ParseColumn(string(col)); err != nil {
		return nil, fmt.Errorf("rolling: %w", err)
	}

	out := make([]Point, len(series))
	buf := make([]float64, 0, opt.Window)
	minPeriods := max(opt.MinPeriods, 1)
	for i := range series {
		out[i].Date = series[i].Date

		lo, hi := opt.bounds(i, len(series))
		buf = buf[:0]
		for j := lo; j <= hi; j++ {
			if v := series[j].Value(col); v.Valid && !math.IsNaN(v.Float64) {
				buf = append(buf, v.Float64)
			}
		}
		if len(buf) < minPeriods {
			continue
		}

		mean, std := stat.MeanStdDev(buf, nil)
		out[i].Mean = models.Float(models.Round(mean, 1))
		if len(buf) >= 2 {
			out[i].Std = models.Float(models.Round(std, 2))
		}
	}
	return out, nil
}

// Enrich computes the rolling columns for the three temperature fields and
// returns them keyed by the day they belong to.
func Enrich(series []models.DailyObservation, opt Options) ([]models.DailyRollingStats, error) {
	avg, err := Rolling(series, models.ColTempAvg, opt)
	if err != nil {
		return nil, err
	}
	hgh, err := Rolling(series, models.ColTempHgh, opt)
	if err != nil {
		return nil, err
	}
	low, err := Rolling(series, models.ColTempLow, opt)
	if err != nil {
		return nil, err
	}

	stats := make([]models.DailyRollingStats, len(series))
	for i := range series {
		stats[i] = models.DailyRollingStats{
			Date:       series[i].Date,
			TempAvg:    avg[i].Mean,
			TempAvgStd: avg[i].Std,
			TempHgh:    hgh[i].Mean,
			TempHghStd: hgh[i].Std,
			TempLow:    low[i].Mean,
			TempLowStd: low[i].Std,
		}
	}
	return stats, nil
}

// Merge pairs each day with its rolling columns by date. Days without rolling
// values keep a zero Rolling with only the date set.
func Merge(series []models.DailyObservation, stats []models.DailyRollingStats) []models.EnrichedDay {
	byDate := make(map[string]models.DailyRollingStats, len(stats))
	for _, s := range stats {
		byDate[s.Date.Format(models.DateLayout)] = s
	}
	out := make([]models.EnrichedDay, len(series))
	for i, d := range series {
		r, ok := byDate[d.Date.Format(models.DateLayout)]
		if !ok {
			r = models.DailyRollingStats{Date: d.Date}
		}
		out[i] = models.EnrichedDay{DailyObservation: d, Rolling: r}
	}
	return out
}
