package models

import (
	"database/sql"
	"fmt"
	"math"
	"time"
)

// DateLayout is the calendar date format used for obs_date and every derived date.
const DateLayout = "2006-01-02"

// DailyObservation is one station day. Null means "not observed", never zero.
type DailyObservation struct {
	Date time.Time

	TempAvg sql.NullFloat64
	TempHgh sql.NullFloat64
	TempLow sql.NullFloat64
	TempAmp sql.NullFloat64

	WindAvgSpeed  sql.NullFloat64
	WindMaxSpeed  sql.NullFloat64
	WindMaxDir    sql.NullFloat64
	WindGustSpeed sql.NullFloat64
	WindGustDir   sql.NullFloat64
	WindAvgDir    sql.NullFloat64
	WindSpeedAmp  sql.NullFloat64

	Sunshine  sql.NullFloat64
	Snowfall  sql.NullFloat64
	SnowDepth sql.NullFloat64

	PrecTotal  sql.NullFloat64
	PrecMax1h  sql.NullFloat64
	PrecMax10m sql.NullFloat64

	HumAvg sql.NullFloat64
	HumMin sql.NullFloat64

	QualityFlags string
}

// Column names a numeric field of DailyObservation. The string value is the
// storage column name.
type Column string

const (
	ColTempAvg       Column = "temp_avg"
	ColTempHgh       Column = "temp_hgh"
	ColTempLow       Column = "temp_low"
	ColTempAmp       Column = "temp_amp"
	ColWindAvgSpeed  Column = "wind_avg_speed"
	ColWindMaxSpeed  Column = "wind_max_speed"
	ColWindMaxDir    Column = "wind_max_dir"
	ColWindGustSpeed Column = "wind_gust_speed"
	ColWindGustDir   Column = "wind_gust_dir"
	ColWindAvgDir    Column = "wind_avg_dir"
	ColWindSpeedAmp  Column = "wind_speed_amp"
	ColSunshine      Column = "sunshine"
	ColSnowfall      Column = "snowfall"
	ColSnowDepth     Column = "snowdepth"
	ColPrecTotal     Column = "prec_total"
	ColPrecMax1h     Column = "prec_max_1x"
	ColPrecMax10m    Column = "prec_max_10m"
	ColHumAvg        Column = "hum_avg"
	ColHumMin        Column = "hum_min"
)

// Columns lists every observation column in storage order.
var Columns = []Column{
	ColTempAvg, ColTempHgh, ColTempLow, ColTempAmp,
	ColWindAvgSpeed, ColWindMaxSpeed, ColWindMaxDir, ColWindGustSpeed, ColWindGustDir, ColWindAvgDir, ColWindSpeedAmp,
	ColSunshine, ColSnowfall, ColSnowDepth,
	ColPrecTotal, ColPrecMax1h, ColPrecMax10m,
	ColHumAvg, ColHumMin,
}

// ParseColumn resolves a storage column name.
func ParseColumn(name string) (Column, error) {
	for _, c := range Columns {
		if string(c) == name {
			return c, nil
		}
	}
	return "", fmt.Errorf("unknown column %q", name)
}

// Field returns a pointer to the value for c, or nil if c is not a known column.
func (o *DailyObservation) Field(c Column) *sql.NullFloat64 {
	switch c {
	case ColTempAvg:
		return &o.TempAvg
	case ColTempHgh:
		return &o.TempHgh
	case ColTempLow:
		return &o.TempLow
	case ColTempAmp:
		return &o.TempAmp
	case ColWindAvgSpeed:
		return &o.WindAvgSpeed
	case ColWindMaxSpeed:
		return &o.WindMaxSpeed
	case ColWindMaxDir:
		return &o.WindMaxDir
	case ColWindGustSpeed:
		return &o.WindGustSpeed
	case ColWindGustDir:
		return &o.WindGustDir
	case ColWindAvgDir:
		return &o.WindAvgDir
	case ColWindSpeedAmp:
		return &o.WindSpeedAmp
	case ColSunshine:
		return &o.Sunshine
	case ColSnowfall:
		return &o.Snowfall
	case ColSnowDepth:
		return &o.SnowDepth
	case ColPrecTotal:
		return &o.PrecTotal
	case ColPrecMax1h:
		return &o.PrecMax1h
	case ColPrecMax10m:
		return &o.PrecMax10m
	case ColHumAvg:
		return &o.HumAvg
	case ColHumMin:
		return &o.HumMin
	}
	return nil
}

// Value reads column c. Unknown columns read as null.
func (o *DailyObservation) Value(c Column) sql.NullFloat64 {
	if f := o.Field(c); f != nil {
		return *f
	}
	return sql.NullFloat64{}
}

// Float wraps v as a valid nullable float.
func Float(v float64) sql.NullFloat64 {
	return sql.NullFloat64{Float64: v, Valid: true}
}

// Round rounds v to the given number of decimals.
func Round(v float64, decimals int) float64 {
	p := math.Pow(10, float64(decimals))
	return math.Round(v*p) / p
}

// Amplitude returns round(a-b, 1), null when either side is null.
func Amplitude(a, b sql.NullFloat64) sql.NullFloat64 {
	if !a.Valid || !b.Valid {
		return sql.NullFloat64{}
	}
	return Float(Round(a.Float64-b.Float64, 1))
}

// DailyRollingStats holds the centered rolling columns merged back onto a day.
type DailyRollingStats struct {
	Date       time.Time
	TempAvg    sql.NullFloat64
	TempAvgStd sql.NullFloat64
	TempHgh    sql.NullFloat64
	TempHghStd sql.NullFloat64
	TempLow    sql.NullFloat64
	TempLowStd sql.NullFloat64
}

// EnrichedDay is a stored day together with its rolling columns.
type EnrichedDay struct {
	DailyObservation
	Rolling DailyRollingStats
}

// CalendarDate truncates t to midnight in loc.
func CalendarDate(t time.Time, loc *time.Location) time.Time {
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}
