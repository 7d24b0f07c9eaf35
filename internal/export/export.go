package export

import (
	"archive/zip"
	"bytes"
	"database/sql/driver"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/lox/snowseason/internal/models"
	"github.com/lox/snowseason/internal/season"
)

// Output file names written by Exporter.
const (
	SeasonsJSON  = "seasons.json"
	SeasonsTable = "seasons.csv"
	SeasonsXLSX  = "seasons.xlsx"
	DailyTable   = "obs_daily.csv"
)

// Exporter writes report artifacts into Dir. When Citation names a file it is
// added to every zip archive alongside the table.
type Exporter struct {
	Dir      string
	Citation string
}

func New(dir, citation string) *Exporter {
	return &Exporter{Dir: dir, Citation: citation}
}

// Seasons writes the JSON document, the zipped tab-separated table and the
// workbook for records. It returns the written paths.
func (e *Exporter) Seasons(records []*season.Record) ([]string, error) {
	if err := os.MkdirAll(e.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create export dir: %w", err)
	}

	rows := make([][]season.Field, len(records))
	for i, r := range records {
		rows[i] = r.Flatten()
	}

	var written []string

	jsonPath := filepath.Join(e.Dir, SeasonsJSON)
	if err := writeFile(jsonPath, func(w io.Writer) error { return WriteJSON(w, records) }); err != nil {
		return written, err
	}
	written = append(written, jsonPath)

	var table bytes.Buffer
	if err := WriteTable(&table, rows, '\t'); err != nil {
		return written, err
	}
	zipPath := filepath.Join(e.Dir, SeasonsTable+".zip")
	if err := e.zip(zipPath, SeasonsTable, table.Bytes()); err != nil {
		return written, err
	}
	written = append(written, zipPath)

	xlsxPath := filepath.Join(e.Dir, SeasonsXLSX)
	if err := WriteXLSX(xlsxPath, rows); err != nil {
		return written, err
	}
	written = append(written, xlsxPath)

	return written, nil
}

// Observations writes the zipped tab-separated dump of every stored day.
func (e *Exporter) Observations(days []models.EnrichedDay) (string, error) {
	if err := os.MkdirAll(e.Dir, 0o755); err != nil {
		return "", fmt.Errorf("create export dir: %w", err)
	}
	var table bytes.Buffer
	if err := WriteDaily(&table, days, '\t'); err != nil {
		return "", err
	}
	path := filepath.Join(e.Dir, DailyTable+".zip")
	if err := e.zip(path, DailyTable, table.Bytes()); err != nil {
		return "", err
	}
	return path, nil
}

func (e *Exporter) zip(path, name string, data []byte) error {
	return writeFile(path, func(w io.Writer) error {
		return WriteZip(w, name, data, e.Citation)
	})
}

func writeFile(path string, write func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := write(f); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}
	return nil
}

// WriteJSON writes one object keyed by season label.
func WriteJSON(w io.Writer, records []*season.Record) error {
	doc := make(map[string]*season.Record, len(records))
	for _, r := range records {
		doc[r.Label] = r
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(doc)
}

// WriteTable writes flattened records with a header row taken from the first
// record. Null values are written as empty cells.
func WriteTable(w io.Writer, rows [][]season.Field, sep rune) error {
	if len(rows) == 0 {
		return nil
	}
	cw := csv.NewWriter(w)
	cw.Comma = sep

	header := make([]string, len(rows[0]))
	for i, f := range rows[0] {
		header[i] = f.Key
	}
	if err := cw.Write(header); err != nil {
		return err
	}
	for _, row := range rows {
		if len(row) != len(header) {
			return fmt.Errorf("season %v: %d fields, want %d", row[0].Value, len(row), len(header))
		}
		rec := make([]string, len(row))
		for i, f := range row {
			rec[i] = FormatValue(f.Value)
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteDaily writes the stored observation columns followed by the rolling
// columns, one row per day.
func WriteDaily(w io.Writer, days []models.EnrichedDay, sep rune) error {
	cw := csv.NewWriter(w)
	cw.Comma = sep

	header := []string{"obs_date"}
	for _, c := range models.Columns {
		header = append(header, string(c))
	}
	header = append(header, rollingHeader...)
	header = append(header, "quality_flags")
	if err := cw.Write(header); err != nil {
		return err
	}

	for _, d := range days {
		rec := make([]string, 0, len(header))
		rec = append(rec, d.Date.Format(models.DateLayout))
		for _, c := range models.Columns {
			rec = append(rec, FormatValue(d.Value(c)))
		}
		r := d.Rolling
		for _, v := range []any{r.TempAvg, r.TempAvgStd, r.TempHgh, r.TempHghStd, r.TempLow, r.TempLowStd} {
			rec = append(rec, FormatValue(v))
		}
		rec = append(rec, d.QualityFlags)
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

var rollingHeader = []string{
	"temp_avg_7dcra", "temp_avg_7dcra_std",
	"temp_hgh_7dcra", "temp_hgh_7dcra_std",
	"temp_low_7dcra", "temp_low_7dcra_std",
}

// FormatValue renders a record or observation value as a table cell.
func FormatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case time.Time:
		return x.Format(models.DateLayout)
	case driver.Valuer:
		inner, err := x.Value()
		if err != nil {
			return ""
		}
		return FormatValue(inner)
	}
	return fmt.Sprint(v)
}

// WriteZip writes a zip archive holding data as name, plus the citation file
// when one is given.
func WriteZip(w io.Writer, name string, data []byte, citation string) error {
	zw := zip.NewWriter(w)
	f, err := zw.Create(name)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		return err
	}

	if citation != "" {
		b, err := os.ReadFile(citation)
		if err != nil {
			return fmt.Errorf("read citation: %w", err)
		}
		cf, err := zw.Create(filepath.Base(citation))
		if err != nil {
			return err
		}
		if _, err := cf.Write(b); err != nil {
			return err
		}
	}
	return zw.Close()
}
