package export

import (
	"archive/zip"
	"bytes"
	"database/sql"
	"encoding/csv"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/lox/snowseason/internal/models"
	"github.com/lox/snowseason/internal/season"
)

func date(s string) sql.NullTime {
	t, _ := time.Parse(models.DateLayout, s)
	return sql.NullTime{Time: t, Valid: true}
}

func testRecords() []*season.Record {
	return []*season.Record{
		{
			Label:      "2020-21",
			StartYear:  2020,
			Boundaries: season.Boundaries{Autumn: date("2020-11-07"), Winter: date("2020-12-21")},
			Depths: season.Depths{
				Max:   models.Float(160),
				First: map[int]sql.NullTime{100: date("2020-12-01")},
				Last:  map[int]sql.NullTime{100: date("2021-03-31")},
				Fin:   date("2021-04-01"),
			},
			Snowfall: season.Snowfall{
				First:    date("2020-11-20"),
				Total:    81,
				DaysOver: map[int]int{10: 3},
			},
			Temps: []season.NamedStats{
				{Key: "avg", Stats: season.Stats{Min: models.Float(-5), Avg: models.Float(-1), Max: models.Float(5)}},
			},
		},
		{
			Label:     "2021-22",
			StartYear: 2021,
			Depths: season.Depths{
				First: map[int]sql.NullTime{100: {}},
				Last:  map[int]sql.NullTime{100: {}},
			},
			Snowfall: season.Snowfall{DaysOver: map[int]int{10: 0}},
			Temps:    []season.NamedStats{{Key: "avg"}},
		},
	}
}

func flatten(records []*season.Record) [][]season.Field {
	rows := make([][]season.Field, len(records))
	for i, r := range records {
		rows[i] = r.Flatten()
	}
	return rows
}

func TestWriteJSON(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteJSON(&buf, testRecords()); err != nil {
		t.Fatalf("WriteJSON: %v", err)
	}

	var doc map[string]map[string]map[string]any
	if err := json.Unmarshal(buf.Bytes(), &doc); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(doc) != 2 {
		t.Fatalf("got %d seasons, want 2", len(doc))
	}
	b := doc["2020-21"][season.GroupBoundaries]
	if b["aut"] != "2020-11-07" {
		t.Errorf("aut = %v", b["aut"])
	}
	if v, ok := b["spr"]; !ok || v != nil {
		t.Errorf("spr = %v (present %v), want null", v, ok)
	}
	if total := doc["2020-21"][season.GroupSnowfall]["total"]; total != 81.0 {
		t.Errorf("total = %v", total)
	}
}

func TestWriteTable(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteTable(&buf, flatten(testRecords()), '\t'); err != nil {
		t.Fatalf("WriteTable: %v", err)
	}

	r := csv.NewReader(&buf)
	r.Comma = '\t'
	rows, err := r.ReadAll()
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("got %d rows, want header + 2", len(rows))
	}

	col := make(map[string]int)
	for i, h := range rows[0] {
		col[h] = i
	}
	if rows[0][0] != "season" {
		t.Errorf("first column = %q, want season", rows[0][0])
	}

	tests := []struct {
		key  string
		row  int
		want string
	}{
		{"season", 1, "2020-21"},
		{"season_boundaries_aut", 1, "2020-11-07"},
		{"season_boundaries_spr", 1, ""},
		{"snow_depth_milestones_max", 1, "160"},
		{"snow_depth_milestones_first_100", 1, "2020-12-01"},
		{"snowfall_markers_total", 1, "81"},
		{"snowfall_markers_days_over_10", 1, "3"},
		{"temperature_stats_avg_min", 1, "-5"},
		{"season", 2, "2021-22"},
		{"snow_depth_milestones_first_100", 2, ""},
		{"snowfall_markers_total", 2, "0"},
		{"temperature_stats_avg_avg", 2, ""},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			i, ok := col[tt.key]
			if !ok {
				t.Fatalf("missing column %s", tt.key)
			}
			if got := rows[tt.row][i]; got != tt.want {
				t.Errorf("row %d %s = %q, want %q", tt.row, tt.key, got, tt.want)
			}
		})
	}
}

func TestWriteTable_MismatchedRows(t *testing.T) {
	rows := [][]season.Field{
		{{Key: "season", Value: "2020-21"}, {Key: "a", Value: 1}},
		{{Key: "season", Value: "2021-22"}},
	}
	if err := WriteTable(io.Discard, rows, '\t'); err == nil {
		t.Error("expected error for short row")
	}
}

func TestFormatValue(t *testing.T) {
	tests := []struct {
		name string
		v    any
		want string
	}{
		{"nil", nil, ""},
		{"string", "2021-03-21", "2021-03-21"},
		{"float", 812.5, "812.5"},
		{"whole float", 160.0, "160"},
		{"int", 12, "12"},
		{"int64", int64(-3), "-3"},
		{"null float", sql.NullFloat64{}, ""},
		{"valid float", models.Float(-1.25), "-1.25"},
		{"null time", sql.NullTime{}, ""},
		{"valid time", date("2020-12-01"), "2020-12-01"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FormatValue(tt.v); got != tt.want {
				t.Errorf("FormatValue(%v) = %q, want %q", tt.v, got, tt.want)
			}
		})
	}
}

func readZip(t *testing.T, path string) map[string]string {
	t.Helper()
	zr, err := zip.OpenReader(path)
	if err != nil {
		t.Fatalf("open zip: %v", err)
	}
	defer zr.Close()

	files := make(map[string]string)
	for _, f := range zr.File {
		rc, err := f.Open()
		if err != nil {
			t.Fatalf("open %s: %v", f.Name, err)
		}
		b, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			t.Fatalf("read %s: %v", f.Name, err)
		}
		files[f.Name] = string(b)
	}
	return files
}

func TestExporter_Seasons(t *testing.T) {
	dir := t.TempDir()
	citation := filepath.Join(t.TempDir(), "CITATION.txt")
	if err := os.WriteFile(citation, []byte("Source: station daily records\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	e := New(filepath.Join(dir, "derived"), citation)
	paths, err := e.Seasons(testRecords())
	if err != nil {
		t.Fatalf("Seasons: %v", err)
	}
	if len(paths) != 3 {
		t.Fatalf("wrote %v, want 3 files", paths)
	}
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			t.Errorf("stat %s: %v", p, err)
		}
	}

	files := readZip(t, filepath.Join(dir, "derived", SeasonsTable+".zip"))
	if !strings.HasPrefix(files[SeasonsTable], "season\t") {
		t.Errorf("table starts %q", files[SeasonsTable][:20])
	}
	if files["CITATION.txt"] != "Source: station daily records\n" {
		t.Errorf("citation = %q", files["CITATION.txt"])
	}

	wb, err := excelize.OpenFile(filepath.Join(dir, "derived", SeasonsXLSX))
	if err != nil {
		t.Fatalf("open workbook: %v", err)
	}
	defer wb.Close()
	rows, err := wb.GetRows(seasonsSheet)
	if err != nil {
		t.Fatalf("GetRows: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("workbook has %d rows, want 3", len(rows))
	}
	if rows[0][0] != "season" || rows[1][0] != "2020-21" || rows[2][0] != "2021-22" {
		t.Errorf("first column = %q %q %q", rows[0][0], rows[1][0], rows[2][0])
	}
}

func TestExporter_SeasonsMissingCitation(t *testing.T) {
	e := New(t.TempDir(), filepath.Join(t.TempDir(), "missing.txt"))
	if _, err := e.Seasons(testRecords()); err == nil {
		t.Error("expected error for missing citation file")
	}
}

func TestExporter_Observations(t *testing.T) {
	d, _ := time.Parse(models.DateLayout, "2021-01-15")
	days := []models.EnrichedDay{
		{
			DailyObservation: models.DailyObservation{
				Date:         d,
				TempAvg:      models.Float(-6.1),
				SnowDepth:    models.Float(230),
				QualityFlags: `["amplitude_derived"]`,
			},
			Rolling: models.DailyRollingStats{Date: d, TempAvg: models.Float(-5.4), TempAvgStd: models.Float(1.12)},
		},
	}

	dir := t.TempDir()
	path, err := New(dir, "").Observations(days)
	if err != nil {
		t.Fatalf("Observations: %v", err)
	}
	files := readZip(t, path)
	if len(files) != 1 {
		t.Errorf("zip holds %d files, want 1", len(files))
	}

	r := csv.NewReader(strings.NewReader(files[DailyTable]))
	r.Comma = '\t'
	rows, err := r.ReadAll()
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("got %d rows, want 2", len(rows))
	}
	want := 1 + len(models.Columns) + len(rollingHeader) + 1
	if len(rows[0]) != want {
		t.Errorf("header has %d columns, want %d", len(rows[0]), want)
	}

	got := make(map[string]string)
	for i, h := range rows[0] {
		got[h] = rows[1][i]
	}
	checks := map[string]string{
		"obs_date":           "2021-01-15",
		"temp_avg":           "-6.1",
		"snowdepth":          "230",
		"snowfall":           "",
		"temp_avg_7dcra":     "-5.4",
		"temp_avg_7dcra_std": "1.12",
		"temp_low_7dcra":     "",
		"quality_flags":      `["amplitude_derived"]`,
	}
	for k, v := range checks {
		if got[k] != v {
			t.Errorf("%s = %q, want %q", k, got[k], v)
		}
	}
}
