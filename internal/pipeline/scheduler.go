package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/lox/snowseason/internal/log"
)

// Scheduler polls an inbox directory for new CSV exports, imports them and
// reprocesses the seasons. It keeps a long-running server's season table
// current without a separate cron job.
type Scheduler struct {
	pipeline *Pipeline
	inbox    string
	interval time.Duration
	clock    clockwork.Clock
	seen     map[string]time.Time
	// OnProcessed is called after every successful reprocess.
	OnProcessed func(*Summary)
}

func NewScheduler(p *Pipeline, inbox string, interval time.Duration) *Scheduler {
	return &Scheduler{
		pipeline: p,
		inbox:    inbox,
		interval: interval,
		clock:    p.cfg.Clock,
		seen:     make(map[string]time.Time),
	}
}

// Run polls until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	s.tick(ctx)

	ticker := s.clock.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Infof("scheduler: shutting down")
			return
		case <-ticker.Chan():
			s.tick(ctx)
		}
	}
}

// pending returns the CSV files that are new or changed since the last tick.
func (s *Scheduler) pending() ([]string, error) {
	entries, err := os.ReadDir(s.inbox)
	if err != nil {
		return nil, err
	}
	var paths []string
	for _, e := range entries {
		if !e.Type().IsRegular() || !strings.EqualFold(filepath.Ext(e.Name()), ".csv") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		path := filepath.Join(s.inbox, e.Name())
		if mod, ok := s.seen[path]; ok && !info.ModTime().After(mod) {
			continue
		}
		s.seen[path] = info.ModTime()
		paths = append(paths, path)
	}
	sort.Strings(paths)
	return paths, nil
}

// tick imports pending files and reprocesses when anything was imported. It
// reports whether a reprocess ran.
func (s *Scheduler) tick(ctx context.Context) bool {
	paths, err := s.pending()
	if err != nil {
		log.Errorf("scheduler: read inbox %s: %v", s.inbox, err)
		return false
	}
	if len(paths) == 0 {
		return false
	}

	if _, err := s.pipeline.Import(ctx, paths...); err != nil {
		log.Errorf("scheduler: import: %v", err)
		// Retry the whole batch on the next tick.
		for _, p := range paths {
			delete(s.seen, p)
		}
		return false
	}
	sum, err := s.pipeline.Process(ctx)
	if err != nil {
		log.Errorf("scheduler: process: %v", err)
		return false
	}
	if s.OnProcessed != nil {
		s.OnProcessed(sum)
	}
	return true
}
