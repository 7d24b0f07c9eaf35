// Package pipeline runs the batch passes over the observation store: import,
// rolling enrichment, season aggregation, export and rendering.
package pipeline

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/lox/snowseason/internal/export"
	"github.com/lox/snowseason/internal/i18n"
	"github.com/lox/snowseason/internal/ingest"
	"github.com/lox/snowseason/internal/log"
	"github.com/lox/snowseason/internal/metrics"
	"github.com/lox/snowseason/internal/models"
	"github.com/lox/snowseason/internal/render"
	"github.com/lox/snowseason/internal/rolling"
	"github.com/lox/snowseason/internal/season"
	"github.com/lox/snowseason/internal/store"
)

// Config wires the pipeline stages.
type Config struct {
	Season  season.Config
	Rolling rolling.Options
	// ExportDir receives the season and daily exports. Empty skips exporting.
	ExportDir string
	Citation  string
	Langs     []i18n.Lang
	Clock     clockwork.Clock
}

type Pipeline struct {
	store *store.Store
	agg   *season.Aggregator
	cfg   Config
}

func New(st *store.Store, cfg Config) (*Pipeline, error) {
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	// Season spans are laid over stored calendar dates.
	cfg.Season.Location = st.Location()
	cfg.Season.Clock = cfg.Clock
	if len(cfg.Langs) == 0 {
		cfg.Langs = []i18n.Lang{i18n.English}
	}
	agg, err := season.NewAggregator(cfg.Season)
	if err != nil {
		return nil, fmt.Errorf("pipeline: %w", err)
	}
	return &Pipeline{store: st, agg: agg, cfg: cfg}, nil
}

// Aggregator exposes the configured aggregator for on-demand builds.
func (p *Pipeline) Aggregator() *season.Aggregator {
	return p.agg
}

// ImportSummary reports what an import stored.
type ImportSummary struct {
	Files    int
	Rows     int
	Stored   int
	Rejected map[string]int
}

// Summary reports what a process pass produced.
type Summary struct {
	Observations int
	Enriched     int64
	Seasons      int
	Files        []string
}

func (p *Pipeline) observe(stage string, start time.Time) {
	metrics.PipelineDuration.WithLabelValues(stage).Observe(p.cfg.Clock.Since(start).Seconds())
}

// track records command as a pipeline run around fn.
func (p *Pipeline) track(command string, fn func(run *store.Run) error) error {
	run, err := p.store.StartRun(command)
	if err != nil {
		return fmt.Errorf("start run: %w", err)
	}
	runErr := fn(run)
	if err := p.store.CompleteRun(run, runErr); err != nil {
		log.Warnf("pipeline: complete run %s: %v", run.ID, err)
	}
	return runErr
}

// Import reads each CSV file and upserts its days.
func (p *Pipeline) Import(ctx context.Context, paths ...string) (*ImportSummary, error) {
	sum := &ImportSummary{Rejected: make(map[string]int)}
	err := p.track("import", func(run *store.Run) error {
		start := p.cfg.Clock.Now()
		defer p.observe("import", start)

		im := ingest.NewImporter(p.store.Location())
		for _, path := range paths {
			if err := ctx.Err(); err != nil {
				return err
			}
			res, err := im.ImportFile(path)
			if err != nil {
				return err
			}
			n, err := p.store.UpsertObservations(res.Days)
			if err != nil {
				return fmt.Errorf("store %s: %w", path, err)
			}
			sum.Files++
			sum.Rows += res.Rows
			sum.Stored += n
			for reason, c := range res.Rejected {
				sum.Rejected[reason] += c
			}
			log.Infof("pipeline: imported %s: %d rows, %d days", filepath.Base(path), res.Rows, n)
		}
		run.Observations = sql.NullInt64{Int64: int64(sum.Stored), Valid: true}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return sum, nil
}

// Enrich recomputes the rolling temperature columns for every stored day.
func (p *Pipeline) Enrich(ctx context.Context) (int64, error) {
	var updated int64
	err := p.track("enrich", func(run *store.Run) error {
		series, err := p.load()
		if err != nil {
			return err
		}
		run.Observations = sql.NullInt64{Int64: int64(len(series)), Valid: true}
		updated, err = p.enrich(ctx, series)
		return err
	})
	return updated, err
}

func (p *Pipeline) load() ([]models.DailyObservation, error) {
	start := p.cfg.Clock.Now()
	defer p.observe("load", start)

	series, err := p.store.LoadObservations()
	if err != nil {
		return nil, fmt.Errorf("load observations: %w", err)
	}
	metrics.ObservationsLoaded.Set(float64(len(series)))
	return series, nil
}

func (p *Pipeline) enrich(ctx context.Context, series []models.DailyObservation) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	start := p.cfg.Clock.Now()
	defer p.observe("enrich", start)

	stats, err := rolling.Enrich(series, p.cfg.Rolling)
	if err != nil {
		return 0, err
	}
	n, err := p.store.UpdateRollingStats(stats)
	if err != nil {
		return 0, fmt.Errorf("store rolling stats: %w", err)
	}
	log.Infof("pipeline: enriched %d days", n)
	return n, nil
}

// Build loads the series and builds every season record without storing
// anything.
func (p *Pipeline) Build(ctx context.Context) ([]*season.Record, error) {
	series, err := p.load()
	if err != nil {
		return nil, err
	}
	return p.build(ctx, series)
}

func (p *Pipeline) build(ctx context.Context, series []models.DailyObservation) ([]*season.Record, error) {
	start := p.cfg.Clock.Now()
	defer p.observe("aggregate", start)

	records, err := p.agg.BuildAll(ctx, series)
	if err != nil {
		return nil, fmt.Errorf("build seasons: %w", err)
	}
	metrics.SeasonsBuilt.Add(float64(len(records)))
	countMissing(p.agg.MarkerNames(), records)
	return records, nil
}

// countMissing counts null markers per record group.
func countMissing(markers []string, records []*season.Record) {
	groups := []string{season.GroupStrict, season.GroupBoundaries, season.GroupDepths, season.GroupSnowfall}
	for _, r := range records {
		values := make(map[string]any)
		for _, f := range r.Flatten() {
			values[f.Key] = f.Value
		}
		for _, m := range markers {
			if values[m] != nil {
				continue
			}
			group := "other"
			for _, g := range groups {
				if strings.HasPrefix(m, g+"_") {
					group = g
					break
				}
			}
			metrics.MarkersMissing.WithLabelValues(group).Inc()
		}
	}
}

// Process runs the full batch pass: load, enrich, aggregate, replace the
// season table and write the exports.
func (p *Pipeline) Process(ctx context.Context) (*Summary, error) {
	sum := &Summary{}
	err := p.track("process", func(run *store.Run) error {
		series, err := p.load()
		if err != nil {
			return err
		}
		sum.Observations = len(series)
		run.Observations = sql.NullInt64{Int64: int64(len(series)), Valid: true}

		if sum.Enriched, err = p.enrich(ctx, series); err != nil {
			return err
		}

		records, err := p.build(ctx, series)
		if err != nil {
			return err
		}
		sum.Seasons = len(records)
		run.Seasons = sql.NullInt64{Int64: int64(len(records)), Valid: true}

		rows := make([][]season.Field, len(records))
		for i, r := range records {
			rows[i] = r.Flatten()
		}
		if err := p.store.ReplaceSeasons(rows); err != nil {
			return fmt.Errorf("store seasons: %w", err)
		}
		log.Infof("pipeline: built %d seasons from %d days", len(records), len(series))

		if p.cfg.ExportDir == "" {
			return nil
		}
		sum.Files, err = p.export(records)
		return err
	})
	if err != nil {
		return nil, err
	}
	return sum, nil
}

func (p *Pipeline) export(records []*season.Record) ([]string, error) {
	start := p.cfg.Clock.Now()
	defer p.observe("export", start)

	ex := export.New(p.cfg.ExportDir, p.cfg.Citation)
	files, err := ex.Seasons(records)
	if err != nil {
		return files, fmt.Errorf("export seasons: %w", err)
	}

	first, last, ok, err := p.store.ObservationRange()
	if err != nil {
		return files, fmt.Errorf("observation range: %w", err)
	}
	if !ok {
		return files, nil
	}
	days, err := p.store.LoadDaily(first, last)
	if err != nil {
		return files, fmt.Errorf("load daily: %w", err)
	}
	path, err := ex.Observations(days)
	if err != nil {
		return files, fmt.Errorf("export observations: %w", err)
	}
	return append(files, path), nil
}

// StripName is the file name of a rendered season strip.
func StripName(label string, lang i18n.Lang) string {
	return fmt.Sprintf("season_%s_%s.png", label, lang)
}

// Render writes a season strip per season and language into dir.
func (p *Pipeline) Render(ctx context.Context, dir string) ([]string, error) {
	var files []string
	err := p.track("render", func(run *store.Run) error {
		records, err := p.Build(ctx)
		if err != nil {
			return err
		}
		run.Seasons = sql.NullInt64{Int64: int64(len(records)), Valid: true}

		start := p.cfg.Clock.Now()
		defer p.observe("render", start)

		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create render dir: %w", err)
		}
		for _, lang := range p.cfg.Langs {
			labels, err := i18n.For(lang)
			if err != nil {
				return err
			}
			for _, r := range records {
				if err := ctx.Err(); err != nil {
					return err
				}
				data, err := render.SeasonStrip(r, labels)
				if err != nil {
					return err
				}
				path := filepath.Join(dir, StripName(r.Label, lang))
				if err := os.WriteFile(path, data, 0o644); err != nil {
					return fmt.Errorf("write %s: %w", path, err)
				}
				files = append(files, path)
			}
		}
		log.Infof("pipeline: rendered %d strips", len(files))
		return nil
	})
	return files, err
}
