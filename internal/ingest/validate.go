package ingest

import (
	"encoding/json"
	"fmt"

	"github.com/lox/snowseason/internal/models"
)

const (
	FlagTempOutOfRange    = "temp_out_of_range"
	FlagHumidityInvalid   = "humidity_invalid"
	FlagWindDirInvalid    = "wind_dir_invalid"
	FlagWindSpeedUnlikely = "wind_speed_unlikely"
	FlagSunshineInvalid   = "sunshine_invalid"
	FlagSnowfallInvalid   = "snowfall_invalid"
	FlagSnowDepthInvalid  = "snowdepth_invalid"
	FlagPrecipInvalid     = "precip_invalid"
	FlagAmplitudeDerived  = "amplitude_derived"
	FlagWindAmpDerived    = "wind_amplitude_derived"
)

type valueRange struct {
	min, max float64
	flag     string
}

// ranges bounds what a daily value at a mountain station can plausibly be.
// Wind speeds are m/s, sunshine hours, depths and falls cm, precipitation mm.
var ranges = map[models.Column]valueRange{
	models.ColTempAvg:       {-60, 50, FlagTempOutOfRange},
	models.ColTempHgh:       {-60, 50, FlagTempOutOfRange},
	models.ColTempLow:       {-60, 50, FlagTempOutOfRange},
	models.ColHumAvg:        {0, 100, FlagHumidityInvalid},
	models.ColHumMin:        {0, 100, FlagHumidityInvalid},
	models.ColWindAvgSpeed:  {0, 100, FlagWindSpeedUnlikely},
	models.ColWindMaxSpeed:  {0, 100, FlagWindSpeedUnlikely},
	models.ColWindGustSpeed: {0, 100, FlagWindSpeedUnlikely},
	models.ColWindMaxDir:    {0, 360, FlagWindDirInvalid},
	models.ColWindGustDir:   {0, 360, FlagWindDirInvalid},
	models.ColWindAvgDir:    {0, 360, FlagWindDirInvalid},
	models.ColSunshine:      {0, 24, FlagSunshineInvalid},
	models.ColSnowfall:      {0, 1000, FlagSnowfallInvalid},
	models.ColSnowDepth:     {0, 2000, FlagSnowDepthInvalid},
	models.ColPrecTotal:     {0, 2000, FlagPrecipInvalid},
	models.ColPrecMax1h:     {0, 500, FlagPrecipInvalid},
	models.ColPrecMax10m:    {0, 200, FlagPrecipInvalid},
}

// ValidateDay nulls every out-of-range value of d and returns the flags
// raised, one per offending column, in column order.
func ValidateDay(d *models.DailyObservation) []string {
	var flags []string
	for _, c := range models.Columns {
		r, ok := ranges[c]
		if !ok {
			continue
		}
		v := d.Field(c)
		if !v.Valid {
			continue
		}
		if v.Float64 < r.min || v.Float64 > r.max {
			v.Valid = false
			v.Float64 = 0
			flags = append(flags, r.flag)
		}
	}
	return flags
}

// DeriveAmplitudes fills temp_amp and wind_speed_amp from their inputs when
// they were not supplied. It returns the flags for the derived columns.
func DeriveAmplitudes(d *models.DailyObservation) []string {
	var flags []string
	if !d.TempAmp.Valid {
		if d.TempAmp = models.Amplitude(d.TempHgh, d.TempLow); d.TempAmp.Valid {
			flags = append(flags, FlagAmplitudeDerived)
		}
	}
	if !d.WindSpeedAmp.Valid {
		if d.WindSpeedAmp = models.Amplitude(d.WindGustSpeed, d.WindAvgSpeed); d.WindSpeedAmp.Valid {
			flags = append(flags, FlagWindAmpDerived)
		}
	}
	return flags
}

// QualityFlagsToJSON encodes flags as a JSON array. No flags encode as "".
func QualityFlagsToJSON(flags []string) (string, error) {
	if len(flags) == 0 {
		return "", nil
	}
	b, err := json.Marshal(flags)
	if err != nil {
		return "", fmt.Errorf("encode quality flags: %w", err)
	}
	return string(b), nil
}
