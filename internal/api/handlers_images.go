package api

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/lox/snowseason/internal/i18n"
	"github.com/lox/snowseason/internal/log"
	"github.com/lox/snowseason/internal/render"
	"github.com/lox/snowseason/internal/season"
)

// handleSeasonStrip serves /seasons/{label}.png. The strip is rebuilt from
// the stored observations on a cache miss. Supports ?lang=ja.
func (s *Server) handleSeasonStrip(w http.ResponseWriter, r *http.Request) {
	label, ok := strings.CutSuffix(r.PathValue("file"), ".png")
	if !ok {
		http.NotFound(w, r)
		return
	}
	year, err := season.ParseLabel(label)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	lang := i18n.English
	if v := r.URL.Query().Get("lang"); v != "" {
		lang = i18n.Lang(v)
	}
	labels, err := i18n.For(lang)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	key := label + "/" + string(labels.Lang)
	if data, ok := s.strips.Get(key); ok {
		servePNG(w, data)
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

	series, err := s.store.LoadObservations()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	rec, err := s.pipeline.Aggregator().Build(series, year)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	data, err := render.SeasonStrip(rec, labels)
	if err != nil {
		log.Errorf("api: render %s: %v", key, err)
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.strips.Set(key, data)
	servePNG(w, data)
}

func servePNG(w http.ResponseWriter, data []byte) {
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "public, max-age=3600")
	w.Write(data)
}
