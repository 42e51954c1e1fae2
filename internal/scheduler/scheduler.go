// Package scheduler drives the time-triggered work: event auto-transitions
// and recurring template expansion.
package scheduler

import (
	"context"
	"log"
	"time"

	"templeops/internal/clock"
	"templeops/internal/service"
)

type EventRefresher interface {
	RefreshAll(ctx context.Context, now time.Time) (service.RefreshReport, error)
}

type TemplateExpander interface {
	ExpandDue(ctx context.Context, now time.Time) (service.ExpandReport, error)
}

type Scheduler struct {
	events    EventRefresher
	templates TemplateExpander
	clock     clock.Clock
	interval  time.Duration
}

func New(events EventRefresher, templates TemplateExpander, c clock.Clock, interval time.Duration) *Scheduler {
	if c == nil {
		c = clock.Real{}
	}
	if interval <= 0 {
		interval = time.Minute
	}
	return &Scheduler{events: events, templates: templates, clock: c, interval: interval}
}

// Tick refreshes events and then expands due templates. A failure in the
// first step does not skip the second.
func (s *Scheduler) Tick(ctx context.Context) error {
	now := s.clock.Now()

	refreshed, refreshErr := s.events.RefreshAll(ctx, now)
	if refreshErr != nil {
		log.Printf("⚠️ event refresh failed: %v\n", refreshErr)
	} else if refreshed.Advanced > 0 || refreshed.Failed > 0 {
		log.Printf("📅 events: %d checked, %d advanced, %d warnings, %d failed\n",
			refreshed.Events, refreshed.Advanced, refreshed.Warnings, refreshed.Failed)
	}

	expanded, expandErr := s.templates.ExpandDue(ctx, now)
	if expandErr != nil {
		log.Printf("⚠️ template expansion failed: %v\n", expandErr)
	} else if expanded.Created > 0 || expanded.Failed > 0 {
		log.Printf("🔁 templates: %d checked, %d created, %d failed\n",
			expanded.Templates, expanded.Created, expanded.Failed)
	}

	if refreshErr != nil {
		return refreshErr
	}
	return expandErr
}

// Run ticks once immediately and then every interval until ctx is done.
func (s *Scheduler) Run(ctx context.Context) {
	log.Printf("⏱️ Scheduler started, interval %s\n", s.interval)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		_ = s.Tick(ctx)
		select {
		case <-ctx.Done():
			log.Println("⏱️ Scheduler stopped")
			return
		case <-ticker.C:
		}
	}
}
