package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/lox/snowseason/internal/models"
	"github.com/lox/snowseason/internal/season"
)

func dateString(t time.Time) string {
	return t.Format(models.DateLayout)
}

func (s *Server) handleAPISeasons(w http.ResponseWriter, r *http.Request) {
	labels, err := s.store.ListSeasons()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if labels == nil {
		labels = []string{}
	}
	writeJSON(w, http.StatusOK, map[string][]string{"seasons": labels})
}

func (s *Server) handleAPISeason(w http.ResponseWriter, r *http.Request) {
	label := r.PathValue("label")
	if _, err := season.ParseLabel(label); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	fields, err := s.store.GetSeason(label)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if fields == nil {
		writeError(w, http.StatusNotFound, fmt.Errorf("season %s not found", label))
		return
	}

	out := make(map[string]any, len(fields))
	for _, f := range fields {
		out[f.Key] = f.Value
	}
	writeJSON(w, http.StatusOK, out)
}

// handleAPIDaily returns the enriched days of one season's full span.
func (s *Server) handleAPIDaily(w http.ResponseWriter, r *http.Request) {
	label := r.URL.Query().Get("season")
	if label == "" {
		writeError(w, http.StatusBadRequest, errors.New("season parameter required"))
		return
	}
	year, err := season.ParseLabel(label)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	span := s.pipeline.Aggregator().Config().FullSeason
	start, end := span.Bounds(year, s.store.Location())
	days, err := s.store.LoadDaily(start, end)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	out := make([]map[string]any, len(days))
	for i, d := range days {
		out[i] = dayJSON(d)
	}
	writeJSON(w, http.StatusOK, map[string]any{"season": label, "days": out})
}

func floatOrNil(valid bool, f float64) any {
	if !valid {
		return nil
	}
	return f
}

func dayJSON(d models.EnrichedDay) map[string]any {
	m := map[string]any{"obs_date": dateString(d.Date)}
	for _, c := range models.Columns {
		v := d.Value(c)
		m[string(c)] = floatOrNil(v.Valid, v.Float64)
	}
	r := d.Rolling
	m["temp_avg_7dcra"] = floatOrNil(r.TempAvg.Valid, r.TempAvg.Float64)
	m["temp_avg_7dcra_std"] = floatOrNil(r.TempAvgStd.Valid, r.TempAvgStd.Float64)
	m["temp_hgh_7dcra"] = floatOrNil(r.TempHgh.Valid, r.TempHgh.Float64)
	m["temp_hgh_7dcra_std"] = floatOrNil(r.TempHghStd.Valid, r.TempHghStd.Float64)
	m["temp_low_7dcra"] = floatOrNil(r.TempLow.Valid, r.TempLow.Float64)
	m["temp_low_7dcra_std"] = floatOrNil(r.TempLowStd.Valid, r.TempLowStd.Float64)
	if d.QualityFlags != "" {
		m["quality_flags"] = d.QualityFlags
	}
	return m
}

func (s *Server) handleAPIRuns(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 500 {
			writeError(w, http.StatusBadRequest, fmt.Errorf("invalid limit %q", v))
			return
		}
		limit = n
	}
	runs, err := s.store.RecentRuns(limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	out := make([]RunStatus, len(runs))
	for i, run := range runs {
		out[i] = runStatus(run)
	}
	writeJSON(w, http.StatusOK, map[string][]RunStatus{"runs": out})
}
