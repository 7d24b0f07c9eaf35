package ingest

import (
	"bufio"
	"bytes"
	"database/sql"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/lox/snowseason/internal/log"
	"github.com/lox/snowseason/internal/metrics"
	"github.com/lox/snowseason/internal/models"
)

// Rejection reasons reported in Result.Rejected.
const (
	RejectBadDate   = "bad_date"
	RejectShortRow  = "short_row"
	RejectBadNumber = "bad_number"
	RejectDuplicate = "duplicate_date"
)

// ErrNoDateColumn is returned when the header has no recognisable date column.
var ErrNoDateColumn = errors.New("csv has no obs_date column")

// headerAliases maps alternative header spellings onto storage columns.
var headerAliases = map[string]string{
	"date":            "obs_date",
	"day":             "obs_date",
	"temp_high":       "temp_hgh",
	"temp_max":        "temp_hgh",
	"temp_min":        "temp_low",
	"snow_depth":      "snowdepth",
	"snow_fall":       "snowfall",
	"wind_speed_avg":  "wind_avg_speed",
	"wind_speed_max":  "wind_max_speed",
	"wind_speed_gust": "wind_gust_speed",
	"humidity_avg":    "hum_avg",
	"humidity_min":    "hum_min",
	"prec_max_1h":     "prec_max_1x",
}

// missingMarkers are cell values meaning "not observed".
var missingMarkers = map[string]bool{
	"":    true,
	"--":  true,
	"///": true,
	"×":   true,
	"#":   true,
	"nan": true,
	"NaN": true,
}

var dateLayouts = []string{models.DateLayout, "2006/01/02", "2006/1/2", "2006-1-2"}

// Result is the outcome of one import.
type Result struct {
	Days     []models.DailyObservation
	Rows     int
	Rejected map[string]int
}

// Importer reads daily observation CSV exports.
type Importer struct {
	loc *time.Location
}

func NewImporter(loc *time.Location) *Importer {
	if loc == nil {
		loc = time.UTC
	}
	return &Importer{loc: loc}
}

// ImportFile reads the CSV at path.
func (im *Importer) ImportFile(path string) (*Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	res, err := im.Read(f)
	if err != nil {
		return nil, fmt.Errorf("import %s: %w", path, err)
	}
	return res, nil
}

// Read parses a comma or tab separated file with a header row. Rows with an
// unparseable date are dropped; unparseable or out-of-range values become
// null. The result holds one day per date (the last row wins) in ascending
// order.
func (im *Importer) Read(r io.Reader) (*Result, error) {
	br := bufio.NewReader(r)
	if bom, _ := br.Peek(3); bytes.Equal(bom, []byte("\xef\xbb\xbf")) {
		br.Discard(3)
	}
	first, err := br.Peek(1024)
	if err != nil && err != io.EOF {
		return nil, fmt.Errorf("read header: %w", err)
	}

	cr := csv.NewReader(br)
	cr.Comma = detectDelimiter(first)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	dateIdx := -1
	cols := make(map[int]models.Column)
	for i, h := range header {
		name := normaliseHeader(h)
		if name == "obs_date" {
			dateIdx = i
			continue
		}
		if c, err := models.ParseColumn(name); err == nil {
			cols[i] = c
		}
	}
	if dateIdx < 0 {
		return nil, ErrNoDateColumn
	}

	res := &Result{Rejected: make(map[string]int)}
	byDate := make(map[string]models.DailyObservation)
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row %d: %w", res.Rows+2, err)
		}
		res.Rows++
		metrics.IngestRowsRead.Inc()

		if dateIdx >= len(rec) {
			im.reject(res, RejectShortRow)
			continue
		}
		date, err := im.parseDate(rec[dateIdx])
		if err != nil {
			log.Warnf("ingest: row %d: %v", res.Rows+1, err)
			im.reject(res, RejectBadDate)
			continue
		}

		d := models.DailyObservation{Date: date}
		for i, c := range cols {
			if i >= len(rec) {
				continue
			}
			v, ok := parseValue(rec[i])
			if !ok {
				im.reject(res, RejectBadNumber)
				continue
			}
			*d.Field(c) = v
		}
		flags := ValidateDay(&d)
		for _, f := range flags {
			im.reject(res, f)
		}
		flags = append(flags, DeriveAmplitudes(&d)...)
		sort.Strings(flags)
		if d.QualityFlags, err = QualityFlagsToJSON(flags); err != nil {
			return nil, fmt.Errorf("row %s: %w", rec[dateIdx], err)
		}

		key := date.Format(models.DateLayout)
		if _, dup := byDate[key]; dup {
			im.reject(res, RejectDuplicate)
		}
		byDate[key] = d
	}

	res.Days = make([]models.DailyObservation, 0, len(byDate))
	for _, d := range byDate {
		res.Days = append(res.Days, d)
	}
	sort.Slice(res.Days, func(i, j int) bool {
		return res.Days[i].Date.Before(res.Days[j].Date)
	})
	return res, nil
}

func (im *Importer) reject(res *Result, reason string) {
	res.Rejected[reason]++
	metrics.IngestRowsRejected.WithLabelValues(reason).Inc()
}

func (im *Importer) parseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if len(s) > len(models.DateLayout) && (s[10] == 'T' || s[10] == ' ') {
		s = s[:10]
	}
	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, s, im.loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable date %q", s)
}

func detectDelimiter(sample []byte) rune {
	line := sample
	if i := bytes.IndexByte(sample, '\n'); i >= 0 {
		line = sample[:i]
	}
	if bytes.Count(line, []byte("\t")) > bytes.Count(line, []byte(",")) {
		return '\t'
	}
	return ','
}

func normaliseHeader(h string) string {
	h = strings.ToLower(strings.TrimSpace(h))
	h = strings.NewReplacer(" ", "_", "-", "_").Replace(h)
	if alias, ok := headerAliases[h]; ok {
		return alias
	}
	return h
}

// parseValue reads one numeric cell. Missing markers are null and valid;
// ok is false only for text that is neither a number nor a marker. Trailing
// ")" and "]" quality suffixes from JMA exports are stripped.
func parseValue(s string) (v sql.NullFloat64, ok bool) {
	s = strings.TrimSpace(s)
	if missingMarkers[s] {
		return sql.NullFloat64{}, true
	}
	s = strings.TrimRight(s, ")] ")
	if missingMarkers[s] {
		return sql.NullFloat64{}, true
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return sql.NullFloat64{}, false
	}
	if math.IsNaN(f) {
		return sql.NullFloat64{}, true
	}
	return models.Float(f), true
}
