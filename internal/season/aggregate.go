package season

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"runtime"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/lox/snowseason/internal/models"
)

// StatSpec names one min/avg/max statistic and the column it reads.
type StatSpec struct {
	Key    string
	Column models.Column
}

// Config parameterises the aggregator. The zero value is not usable; start
// from DefaultConfig.
type Config struct {
	// FullSeason bounds the depth milestones and the reductions.
	FullSeason Span
	// FirstHalf is scanned forward for onset markers.
	FirstHalf Span
	// SecondHalf holds the spring/summer boundaries and the end-of-season markers.
	SecondHalf Span
	// Traditional bounds the temperature and wind statistics.
	Traditional Span

	BoundaryWindow int
	// StrictWindow is the run of consecutive days the strict boundaries require.
	StrictWindow    int
	WarmThreshold   float64
	ColdThreshold   float64
	SubstantialDays int
	SubstantialFall float64

	DepthThresholds []int
	SnowfallLevels  []int
	TempStats       []StatSpec
	WindStats       []StatSpec

	Location *time.Location
	Clock    clockwork.Clock
	// Workers caps concurrent season builds in BuildAll.
	Workers int
}

// DefaultConfig returns the standard season layout.
func DefaultConfig() Config {
	var depths []int
	for d := 100; d <= 550; d += 50 {
		depths = append(depths, d)
	}
	var levels []int
	for l := 10; l <= 80; l += 10 {
		levels = append(levels, l)
	}
	return Config{
		FullSeason:      Span{StartMonth: time.September, EndMonth: time.June},
		FirstHalf:       Span{StartMonth: time.September, EndMonth: time.February},
		SecondHalf:      Span{YearOffset: 1, StartMonth: time.January, EndMonth: time.July},
		Traditional:     Span{StartMonth: time.December, EndMonth: time.April, EndDay: 30},
		BoundaryWindow:  14,
		StrictWindow:    7,
		WarmThreshold:   10.0,
		ColdThreshold:   0.0,
		SubstantialDays: 3,
		SubstantialFall: 5.0,
		DepthThresholds: depths,
		SnowfallLevels:  levels,
		TempStats: []StatSpec{
			{Key: "avg", Column: models.ColTempAvg},
			{Key: "hgh", Column: models.ColTempHgh},
			{Key: "low", Column: models.ColTempLow},
			{Key: "amp", Column: models.ColTempAmp},
		},
		WindStats: []StatSpec{
			{Key: "amp", Column: models.ColWindSpeedAmp},
		},
		Location: time.UTC,
		Clock:    clockwork.NewRealClock(),
		Workers:  runtime.GOMAXPROCS(0),
	}
}

type windowKind int

const (
	fullSeason windowKind = iota
	firstHalf
	secondHalf
)

// marker is one scan of the season's menu.
type marker struct {
	name    string
	window  windowKind
	reverse bool
	query   Query
	set     func(r *Record, t sql.NullTime)
}

func markerTable(cfg Config) []marker {
	bw := cfg.BoundaryWindow
	boundary := func(name string, w windowKind, thr float64, cmp Comparator, set func(*Record, sql.NullTime)) marker {
		return marker{
			name:   "season_boundaries_" + name,
			window: w,
			query: Query{
				Span:       bw,
				Column:     models.ColTempAvg,
				Mode:       ModeMean,
				Threshold:  thr,
				Comparator: cmp,
				OffsetDays: bw / 2,
			},
			set: set,
		}
	}

	strict := func(name string, w windowKind, thr float64, cmp Comparator, set func(*Record, sql.NullTime)) marker {
		return marker{
			name:   "season_boundaries_strict_" + name,
			window: w,
			query: Query{
				Span:       cfg.StrictWindow,
				Column:     models.ColTempAvg,
				Mode:       ModeAll,
				Threshold:  thr,
				Comparator: cmp,
			},
			set: set,
		}
	}

	ms := []marker{
		boundary("aut", firstHalf, cfg.WarmThreshold, LE, func(r *Record, t sql.NullTime) { r.Boundaries.Autumn = t }),
		boundary("win", firstHalf, cfg.ColdThreshold, LE, func(r *Record, t sql.NullTime) { r.Boundaries.Winter = t }),
		boundary("spr", secondHalf, cfg.ColdThreshold, GE, func(r *Record, t sql.NullTime) { r.Boundaries.Spring = t }),
		boundary("sum", secondHalf, cfg.WarmThreshold, GE, func(r *Record, t sql.NullTime) { r.Boundaries.Summer = t }),
		strict("aut", firstHalf, cfg.WarmThreshold, LT, func(r *Record, t sql.NullTime) { r.StrictBoundaries.Autumn = t }),
		strict("win", firstHalf, cfg.ColdThreshold, LT, func(r *Record, t sql.NullTime) { r.StrictBoundaries.Winter = t }),
		strict("spr", secondHalf, cfg.ColdThreshold, GT, func(r *Record, t sql.NullTime) { r.StrictBoundaries.Spring = t }),
		strict("sum", secondHalf, cfg.WarmThreshold, GT, func(r *Record, t sql.NullTime) { r.StrictBoundaries.Summer = t }),
		{
			name:   "snowfall_markers_fst",
			window: firstHalf,
			query:  Query{Span: 1, Column: models.ColSnowfall, Mode: ModeAny, Threshold: 0, Comparator: GT},
			set:    func(r *Record, t sql.NullTime) { r.Snowfall.First = t },
		},
		{
			name:    "snowfall_markers_lst",
			window:  secondHalf,
			reverse: true,
			query:   Query{Span: 1, Column: models.ColSnowfall, Mode: ModeAny, Threshold: 0, Comparator: GT},
			set:     func(r *Record, t sql.NullTime) { r.Snowfall.Last = t },
		},
		{
			name:   "snowfall_markers_fst_subs",
			window: firstHalf,
			query:  Query{Span: cfg.SubstantialDays, Column: models.ColSnowfall, Mode: ModeAll, Threshold: cfg.SubstantialFall, Comparator: GE},
			set:    func(r *Record, t sql.NullTime) { r.Snowfall.FirstSubstantial = t },
		},
		{
			name:    "snowfall_markers_lst_subs",
			window:  secondHalf,
			reverse: true,
			query:   Query{Span: cfg.SubstantialDays, Column: models.ColSnowfall, Mode: ModeAll, Threshold: cfg.SubstantialFall, Comparator: GE},
			set:     func(r *Record, t sql.NullTime) { r.Snowfall.LastSubstantial = t },
		},
		{
			// gt with +1 reports the first snow-free day after the last covered one.
			name:    "snow_depth_milestones_fin",
			window:  secondHalf,
			reverse: true,
			query:   Query{Span: 1, Column: models.ColSnowDepth, Mode: ModeAny, Threshold: 0, Comparator: GT, OffsetDays: 1},
			set:     func(r *Record, t sql.NullTime) { r.Depths.Fin = t },
		},
	}

	for _, d := range cfg.DepthThresholds {
		q := Query{Span: 1, Column: models.ColSnowDepth, Mode: ModeAny, Threshold: float64(d), Comparator: GE}
		ms = append(ms,
			marker{
				name:   fmt.Sprintf("snow_depth_milestones_first_%d", d),
				window: fullSeason,
				query:  q,
				set:    func(r *Record, t sql.NullTime) { r.Depths.First[d] = t },
			},
			marker{
				name:    fmt.Sprintf("snow_depth_milestones_last_%d", d),
				window:  fullSeason,
				reverse: true,
				query:   q,
				set:     func(r *Record, t sql.NullTime) { r.Depths.Last[d] = t },
			},
		)
	}
	return ms
}

// Aggregator builds season records from a loaded observation series.
type Aggregator struct {
	cfg     Config
	markers []marker
}

// NewAggregator validates the marker menu derived from cfg.
func NewAggregator(cfg Config) (*Aggregator, error) {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.BoundaryWindow < 1 {
		return nil, fmt.Errorf("%w: boundary window %d must be positive", ErrInvalidQuery, cfg.BoundaryWindow)
	}
	ms := markerTable(cfg)
	for _, m := range ms {
		if err := m.query.Validate(); err != nil {
			return nil, fmt.Errorf("marker %s: %w", m.name, err)
		}
	}
	for _, s := range append(append([]StatSpec{}, cfg.TempStats...), cfg.WindStats...) {
		if _, err := models.ParseColumn(string(s.Column)); err != nil {
			return nil, fmt.Errorf("%w: stat %s: %v", ErrInvalidQuery, s.Key, err)
		}
	}
	return &Aggregator{cfg: cfg, markers: ms}, nil
}

// Config returns the configuration in use.
func (a *Aggregator) Config() Config {
	return a.cfg
}

// MarkerNames lists the scanned markers in evaluation order.
func (a *Aggregator) MarkerNames() []string {
	names := make([]string, len(a.markers))
	for i, m := range a.markers {
		names[i] = m.name
	}
	return names
}

// Build derives the record of the season starting in startYear. series must
// be ascending by date; it is only read. Missing data yields null fields.
func (a *Aggregator) Build(series []models.DailyObservation, startYear int) (*Record, error) {
	r := &Record{
		Label:     Label(startYear),
		StartYear: startYear,
		Depths: Depths{
			First: make(map[int]sql.NullTime, len(a.cfg.DepthThresholds)),
			Last:  make(map[int]sql.NullTime, len(a.cfg.DepthThresholds)),
		},
		Snowfall: Snowfall{DaysOver: make(map[int]int, len(a.cfg.SnowfallLevels))},
	}
	for _, lvl := range a.cfg.SnowfallLevels {
		r.Snowfall.DaysOver[lvl] = 0
	}

	windows := map[windowKind]Window{
		fullSeason: a.cfg.FullSeason.Window(series, startYear),
		firstHalf:  a.cfg.FirstHalf.Window(series, startYear),
		secondHalf: a.cfg.SecondHalf.Window(series, startYear),
	}

	for _, m := range a.markers {
		w := windows[m.window]
		if m.reverse {
			w = w.Reverse()
		}
		t, err := Scan(w, m.query)
		if err != nil {
			return nil, fmt.Errorf("season %s: marker %s: %w", r.Label, m.name, err)
		}
		m.set(r, t)
	}

	a.applyFallback(r)
	reduceSeason(r, windows[fullSeason], a.cfg)

	trad := a.cfg.Traditional.Window(series, startYear)
	r.Temps = columnStats(trad, a.cfg.TempStats)
	r.Winds = columnStats(trad, a.cfg.WindStats)
	return r, nil
}

// applyFallback fills undetermined spring and summer boundaries of the
// season in progress with the meteorological dates.
func (a *Aggregator) applyFallback(r *Record) {
	cur := CurrentSeason(a.cfg.Clock.Now().In(a.cfg.Location))
	if cur.StartYear != r.StartYear {
		return
	}
	if !r.Boundaries.Spring.Valid {
		r.Boundaries.Spring = sql.NullTime{Time: cur.Spring, Valid: true}
	}
	if !r.Boundaries.Summer.Valid {
		r.Boundaries.Summer = sql.NullTime{Time: cur.Summer, Valid: true}
	}
}

func reduceSeason(r *Record, w Window, cfg Config) {
	var depths []float64
	var total float64
	for i := 0; i < w.Len(); i++ {
		d := w.At(i)
		if v := d.SnowDepth; v.Valid && !math.IsNaN(v.Float64) {
			depths = append(depths, v.Float64)
		}
		if v := d.Snowfall; v.Valid && !math.IsNaN(v.Float64) {
			total += v.Float64
			for _, lvl := range cfg.SnowfallLevels {
				if v.Float64 >= float64(lvl) {
					r.Snowfall.DaysOver[lvl]++
				}
			}
		}
	}
	if len(depths) > 0 {
		r.Depths.Max = models.Float(floats.Max(depths))
	}
	r.Snowfall.Total = models.Round(total, 1)
}

func columnStats(w Window, specs []StatSpec) []NamedStats {
	out := make([]NamedStats, 0, len(specs))
	vals := make([]float64, 0, w.Len())
	for _, s := range specs {
		vals = vals[:0]
		for i := 0; i < w.Len(); i++ {
			if v := w.At(i).Value(s.Column); v.Valid && !math.IsNaN(v.Float64) {
				vals = append(vals, v.Float64)
			}
		}
		ns := NamedStats{Key: s.Key}
		if len(vals) > 0 {
			ns.Min = models.Float(floats.Min(vals))
			ns.Max = models.Float(floats.Max(vals))
			ns.Avg = models.Float(models.Round(stat.Mean(vals, nil), 1))
		}
		out = append(out, ns)
	}
	return out
}

// BuildAll builds one record per calendar year present in series, in year
// order. Seasons share no mutable state and are built concurrently.
func (a *Aggregator) BuildAll(ctx context.Context, series []models.DailyObservation) ([]*Record, error) {
	years := Years(series)
	records := make([]*Record, len(years))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(a.cfg.Workers)
	for i, y := range years {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			r, err := a.Build(series, y)
			if err != nil {
				return err
			}
			records[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return records, nil
}
