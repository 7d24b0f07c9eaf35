package season

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/lox/snowseason/internal/models"
)

// winterSeries is a synthetic 2020-21 season with known markers.
func winterSeries(t *testing.T) []models.DailyObservation {
	t.Helper()
	return seriesBetween(t, "2020-09-01", "2021-07-31", func(d *models.DailyObservation) {
		date := fmtDate(d.Date)

		switch {
		case date < "2020-11-01":
			d.TempAvg = nf(15)
		case date < "2020-12-15":
			d.TempAvg = nf(5)
		case date < "2021-03-15":
			d.TempAvg = nf(-5)
		case date < "2021-06-01":
			d.TempAvg = nf(5)
		default:
			d.TempAvg = nf(15)
		}

		d.Snowfall = nf(0)
		switch date {
		case "2020-11-20":
			d.Snowfall = nf(2)
		case "2020-12-01":
			d.Snowfall = nf(10)
		case "2020-12-02":
			d.Snowfall = nf(20)
		case "2020-12-03":
			d.Snowfall = nf(30)
		case "2021-02-10", "2021-02-11", "2021-02-12":
			d.Snowfall = nf(6)
		case "2021-04-05":
			d.Snowfall = nf(1)
		}

		switch {
		case date == "2021-02-01":
			d.SnowDepth = nf(160)
		case date >= "2020-12-01" && date <= "2021-03-31":
			d.SnowDepth = nf(120)
		default:
			d.SnowDepth = nf(0)
		}
	})
}

func testAggregator(t *testing.T, now time.Time) *Aggregator {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Clock = clockwork.NewFakeClockAt(now)
	agg, err := NewAggregator(cfg)
	if err != nil {
		t.Fatalf("NewAggregator: %v", err)
	}
	return agg
}

func dateString(t *testing.T, v any) string {
	t.Helper()
	if v == nil {
		return ""
	}
	s, ok := v.(string)
	if !ok {
		t.Fatalf("value %v is %T, want string", v, v)
	}
	return s
}

func TestBuild_Markers(t *testing.T) {
	agg := testAggregator(t, time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC))
	r, err := agg.Build(winterSeries(t), 2020)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if r.Label != "2020-21" {
		t.Errorf("Label = %s, want 2020-21", r.Label)
	}

	m := r.Map()
	bounds := m[GroupBoundaries].(map[string]any)
	strict := m[GroupStrict].(map[string]any)
	depths := m[GroupDepths].(map[string]any)
	snow := m[GroupSnowfall].(map[string]any)

	tests := []struct {
		name string
		got  any
		want string
	}{
		{"autumn", bounds["aut"], "2020-11-07"},
		{"winter", bounds["win"], "2020-12-21"},
		{"spring", bounds["spr"], "2021-03-21"},
		{"summer", bounds["sum"], "2021-06-07"},
		{"strict autumn", strict["aut"], "2020-11-01"},
		{"strict winter", strict["win"], "2020-12-15"},
		{"strict spring", strict["spr"], "2021-03-15"},
		{"strict summer", strict["sum"], "2021-06-01"},
		{"first snowfall", snow["fst"], "2020-11-20"},
		{"first substantial", snow["fst_subs"], "2020-12-01"},
		{"last substantial", snow["lst_subs"], "2021-02-12"},
		{"last snowfall", snow["lst"], "2021-04-05"},
		{"first 100cm", depths["first"].(map[string]any)["100"], "2020-12-01"},
		{"last 100cm", depths["last"].(map[string]any)["100"], "2021-03-31"},
		{"first 150cm", depths["first"].(map[string]any)["150"], "2021-02-01"},
		{"last 150cm", depths["last"].(map[string]any)["150"], "2021-02-01"},
		{"first 200cm", depths["first"].(map[string]any)["200"], ""},
		{"last 550cm", depths["last"].(map[string]any)["550"], ""},
		{"snow free", depths["fin"], "2021-04-01"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := dateString(t, tt.got); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}

	if depths["max"] != 160.0 {
		t.Errorf("max depth = %v, want 160", depths["max"])
	}
	if snow["total"] != 81.0 {
		t.Errorf("total snowfall = %v, want 81", snow["total"])
	}
	over := snow["days_over"].(map[string]any)
	wantOver := map[string]int{"10": 3, "20": 2, "30": 1, "40": 0, "80": 0}
	for k, want := range wantOver {
		if over[k] != want {
			t.Errorf("days_over[%s] = %v, want %d", k, over[k], want)
		}
	}
}

func TestBuild_StrictNeedsEveryDay(t *testing.T) {
	series := winterSeries(t)
	// A single mild day inside each early-winter week breaks every strict run
	// until mid January, while the averaged boundary barely moves.
	for i := range series {
		date := fmtDate(series[i].Date)
		if date >= "2020-12-15" && date < "2021-01-15" && series[i].Date.Weekday() == time.Sunday {
			series[i].TempAvg = nf(1)
		}
	}

	agg := testAggregator(t, time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC))
	r, err := agg.Build(series, 2020)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if got := dateString(t, dateValue(r.StrictBoundaries.Winter)); got < "2021-01-10" {
		t.Errorf("strict winter = %q, want on or after 2021-01-10", got)
	}
	if got := dateString(t, dateValue(r.Boundaries.Winter)); got == "" || got > "2020-12-31" {
		t.Errorf("averaged winter = %q, want in December", got)
	}
}

func TestBuild_FullSeasonEndsInJune(t *testing.T) {
	series := winterSeries(t)
	for i := range series {
		switch fmtDate(series[i].Date) {
		case "2021-06-10":
			series[i].Snowfall = nf(50)
		case "2021-06-11":
			series[i].SnowDepth = nf(600)
		}
	}

	agg := testAggregator(t, time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC))
	r, err := agg.Build(series, 2020)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	if r.Snowfall.Total != 81 {
		t.Errorf("total snowfall = %v, want 81 (June excluded)", r.Snowfall.Total)
	}
	if r.Snowfall.DaysOver[50] != 0 {
		t.Errorf("days over 50 = %d, want 0", r.Snowfall.DaysOver[50])
	}
	if r.Depths.Max.Float64 != 160 {
		t.Errorf("max depth = %v, want 160", r.Depths.Max)
	}
	if r.Depths.Last[550].Valid {
		t.Errorf("last 550cm = %v, want null", r.Depths.Last[550])
	}
	// The second half runs to July, so late markers still see June.
	if got := dateString(t, dateValue(r.Snowfall.Last)); got != "2021-06-10" {
		t.Errorf("last snowfall = %q, want 2021-06-10", got)
	}
}

func TestBuild_TraditionalStats(t *testing.T) {
	agg := testAggregator(t, time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC))
	r, err := agg.Build(winterSeries(t), 2020)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	if len(r.Temps) != 4 || r.Temps[0].Key != "avg" {
		t.Fatalf("Temps = %+v", r.Temps)
	}
	avg := r.Temps[0]
	if avg.Min.Float64 != -5 || avg.Max.Float64 != 5 {
		t.Errorf("temp avg min/max = %v/%v, want -5/5", avg.Min, avg.Max)
	}
	// 61 days at 5 and 90 at -5 between Dec 1 and Apr 30.
	if !avg.Avg.Valid || avg.Avg.Float64 != -1.0 {
		t.Errorf("temp avg avg = %v, want -1.0", avg.Avg)
	}

	high := r.Temps[1]
	if high.Key != "hgh" || high.Min.Valid || high.Avg.Valid || high.Max.Valid {
		t.Errorf("temp high stats = %+v, want all null", high)
	}
	if len(r.Winds) != 1 || r.Winds[0].Key != "amp" {
		t.Errorf("Winds = %+v", r.Winds)
	}
}

func TestBuild_InProgressFallback(t *testing.T) {
	series := seriesBetween(t, "2020-09-01", "2021-02-09", func(d *models.DailyObservation) {
		d.TempAvg = nf(-5)
	})

	tests := []struct {
		name       string
		now        time.Time
		wantSpring string
		wantSummer string
	}{
		{
			name:       "current season gets meteorological dates",
			now:        time.Date(2021, 2, 10, 12, 0, 0, 0, time.UTC),
			wantSpring: "2021-03-01",
			wantSummer: "2021-06-01",
		},
		{
			name: "past season stays undetermined",
			now:  time.Date(2022, 2, 10, 12, 0, 0, 0, time.UTC),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			agg := testAggregator(t, tt.now)
			r, err := agg.Build(series, 2020)
			if err != nil {
				t.Fatalf("Build: %v", err)
			}
			bounds := r.Map()[GroupBoundaries].(map[string]any)
			if got := dateString(t, bounds["spr"]); got != tt.wantSpring {
				t.Errorf("spring = %q, want %q", got, tt.wantSpring)
			}
			if got := dateString(t, bounds["sum"]); got != tt.wantSummer {
				t.Errorf("summer = %q, want %q", got, tt.wantSummer)
			}
		})
	}
}

func TestBuild_NoData(t *testing.T) {
	agg := testAggregator(t, time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC))
	r, err := agg.Build(nil, 2020)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	for _, f := range r.Flatten() {
		switch f.Key {
		case "season":
			if f.Value != "2020-21" {
				t.Errorf("season = %v", f.Value)
			}
		case "snowfall_markers_total":
			if f.Value != 0.0 {
				t.Errorf("total = %v, want 0", f.Value)
			}
		default:
			if v, ok := f.Value.(int); ok {
				if v != 0 {
					t.Errorf("%s = %d, want 0", f.Key, v)
				}
				continue
			}
			if f.Value != nil {
				t.Errorf("%s = %v, want nil", f.Key, f.Value)
			}
		}
	}
}

func TestBuildAll_Idempotent(t *testing.T) {
	series := winterSeries(t)
	agg := testAggregator(t, time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC))

	encode := func() []byte {
		records, err := agg.BuildAll(context.Background(), series)
		if err != nil {
			t.Fatalf("BuildAll: %v", err)
		}
		doc := make(map[string]*Record, len(records))
		for _, r := range records {
			doc[r.Label] = r
		}
		b, err := json.Marshal(doc)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		return b
	}

	first := encode()
	for i := 0; i < 5; i++ {
		if again := encode(); !bytes.Equal(first, again) {
			t.Fatalf("run %d differs:\n%s\n%s", i, first, again)
		}
	}
}

func TestBuildAll_OrderedByYear(t *testing.T) {
	series := seriesBetween(t, "2018-01-01", "2021-12-31", nil)
	agg := testAggregator(t, time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC))

	records, err := agg.BuildAll(context.Background(), series)
	if err != nil {
		t.Fatalf("BuildAll: %v", err)
	}
	want := []string{"2018-19", "2019-20", "2020-21", "2021-22"}
	if len(records) != len(want) {
		t.Fatalf("got %d records, want %d", len(records), len(want))
	}
	for i, r := range records {
		if r.Label != want[i] {
			t.Errorf("records[%d] = %s, want %s", i, r.Label, want[i])
		}
	}
}

func TestBuildAll_Cancelled(t *testing.T) {
	agg := testAggregator(t, time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := agg.BuildAll(ctx, winterSeries(t)); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestNewAggregator_InvalidConfig(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{"zero boundary window", func(c *Config) { c.BoundaryWindow = 0 }},
		{"zero substantial days", func(c *Config) { c.SubstantialDays = 0 }},
		{"unknown stat column", func(c *Config) { c.TempStats = []StatSpec{{Key: "x", Column: "temp_x"}} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(&cfg)
			if _, err := NewAggregator(cfg); !errors.Is(err, ErrInvalidQuery) {
				t.Errorf("err = %v, want ErrInvalidQuery", err)
			}
		})
	}
}

func TestRecord_Flatten(t *testing.T) {
	agg := testAggregator(t, time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC))
	r, err := agg.Build(winterSeries(t), 2020)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	fields := r.Flatten()
	if fields[0].Key != "season" || fields[0].Value != "2020-21" {
		t.Errorf("first field = %+v", fields[0])
	}
	// season + 4 boundaries + 4 strict boundaries + (max, 10 first, 10 last,
	// fin) + (4 markers, total, 8 levels) + 4 temp stats * 3 + 1 wind stat * 3.
	if len(fields) != 1+4+4+22+13+12+3 {
		t.Errorf("got %d fields", len(fields))
	}

	index := make(map[string]int, len(fields))
	for i, f := range fields {
		if _, dup := index[f.Key]; dup {
			t.Errorf("duplicate key %s", f.Key)
		}
		index[f.Key] = i
	}
	for _, k := range []string{
		"season_boundaries_aut",
		"season_boundaries_strict_sum",
		"snow_depth_milestones_first_100",
		"snow_depth_milestones_last_550",
		"snowfall_markers_days_over_80",
		"temperature_stats_amp_avg",
		"wind_stats_amp_max",
	} {
		if _, ok := index[k]; !ok {
			t.Errorf("missing key %s", k)
		}
	}
	if index["snow_depth_milestones_first_100"] > index["snow_depth_milestones_first_550"] {
		t.Error("depth keys are not in numeric order")
	}

	names := agg.MarkerNames()
	for _, n := range names {
		if _, ok := index[n]; !ok {
			t.Errorf("marker %s has no flattened field", n)
		}
	}
}

func TestLabel(t *testing.T) {
	tests := []struct {
		year int
		want string
	}{
		{2023, "2023-24"},
		{1999, "1999-00"},
		{2009, "2009-10"},
	}
	for _, tt := range tests {
		if got := Label(tt.year); got != tt.want {
			t.Errorf("Label(%d) = %s, want %s", tt.year, got, tt.want)
		}
		y, err := ParseLabel(tt.want)
		if err != nil || y != tt.year {
			t.Errorf("ParseLabel(%s) = %d, %v", tt.want, y, err)
		}
	}
	for _, bad := range []string{"2023-25", "2023", "abcd-ef"} {
		if _, err := ParseLabel(bad); err == nil {
			t.Errorf("ParseLabel(%q) succeeded", bad)
		}
	}
}
