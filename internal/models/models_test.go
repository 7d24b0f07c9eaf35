package models

import (
	"database/sql"
	"testing"
)

func TestDailyObservation_Value(t *testing.T) {
	o := &DailyObservation{
		TempAvg:   Float(-3.5),
		SnowDepth: Float(120),
		HumMin:    Float(0),
	}

	tests := []struct {
		col  Column
		want sql.NullFloat64
	}{
		{ColTempAvg, Float(-3.5)},
		{ColSnowDepth, Float(120)},
		{ColHumMin, Float(0)},
		{ColSnowfall, sql.NullFloat64{}},
		{Column("bogus"), sql.NullFloat64{}},
	}
	for _, tt := range tests {
		t.Run(string(tt.col), func(t *testing.T) {
			if got := o.Value(tt.col); got != tt.want {
				t.Errorf("Value(%s) = %v, want %v", tt.col, got, tt.want)
			}
		})
	}

	v := o.Value(ColTempAvg)
	v.Float64 = 99
	if o.TempAvg.Float64 != -3.5 {
		t.Error("Value returned an alias of the stored field")
	}
}

func TestDailyObservation_FieldCoversColumns(t *testing.T) {
	var o DailyObservation
	for i, c := range Columns {
		f := o.Field(c)
		if f == nil {
			t.Fatalf("no field for column %s", c)
		}
		*f = Float(float64(i))
	}
	for i, c := range Columns {
		if got := o.Value(c); got != Float(float64(i)) {
			t.Errorf("Value(%s) = %v, want %d", c, got, i)
		}
	}
}

func TestAmplitude(t *testing.T) {
	tests := []struct {
		name string
		a, b sql.NullFloat64
		want sql.NullFloat64
	}{
		{"both valid", Float(18.2), Float(7.1), Float(11.1)},
		{"high null", sql.NullFloat64{}, Float(7.1), sql.NullFloat64{}},
		{"low null", Float(18.2), sql.NullFloat64{}, sql.NullFloat64{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Amplitude(tt.a, tt.b); got != tt.want {
				t.Errorf("Amplitude = %v, want %v", got, tt.want)
			}
		})
	}
}
