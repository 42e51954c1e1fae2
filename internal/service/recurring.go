package service

import (
	"context"
	"errors"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"templeops/internal/model"
	"templeops/internal/repository"
)

const (
	minInterval = time.Minute
	maxCatchUp  = 500
)

// BoundariesBetween returns the cadence boundaries b with from <= b <= to in
// ascending order, at most limit of them. Boundaries never precede the anchor.
func BoundariesBetween(cadence model.Cadence, anchor, from, to time.Time, loc *time.Location, limit int) []time.Time {
	if loc == nil {
		loc = time.UTC
	}
	anchor = anchor.In(loc)
	if from.Before(anchor) {
		from = anchor
	}
	if to.Before(from) || limit <= 0 {
		return nil
	}

	var (
		at func(k int) time.Time
		k  int
	)
	switch cadence.Kind {
	case model.CadenceDaily, model.CadenceWeekly:
		step := 1
		if cadence.Kind == model.CadenceWeekly {
			step = 7
		}
		at = func(k int) time.Time { return anchor.AddDate(0, 0, k*step) }
		k = calendarDays(anchor, from.In(loc))/step - 1
	case model.CadenceInterval:
		every := cadence.Interval()
		if every <= 0 {
			return nil
		}
		at = func(k int) time.Time { return anchor.Add(time.Duration(k) * every) }
		k = int(from.Sub(anchor)/every) - 1
	default:
		return nil
	}
	if k < 0 {
		k = 0
	}

	var out []time.Time
	for ; len(out) < limit; k++ {
		b := at(k)
		if b.After(to) {
			break
		}
		if !b.Before(from) {
			out = append(out, b)
		}
	}
	return out
}

// calendarDays counts the calendar days from the date of a to the date of b,
// both read in their own location.
func calendarDays(a, b time.Time) int {
	da := time.Date(a.Year(), a.Month(), a.Day(), 0, 0, 0, 0, time.UTC)
	db := time.Date(b.Year(), b.Month(), b.Day(), 0, 0, 0, 0, time.UTC)
	return int(db.Sub(da).Hours() / 24)
}

type TemplateInput struct {
	Name       string
	Cadence    model.Cadence
	AnchorTime time.Time
	Blueprint  model.TaskBlueprint
	CreatedBy  string
}

// ExpandReport summarizes one ExpandDue batch. Counts are per template.
type ExpandReport struct {
	Templates int
	Created   int
	Existing  int
	Failed    int
}

type Expander struct {
	templates TemplateStore
	tasks     *TaskManager
	audit     AuditStore
	actors    ActorStore
	locks     *keyedMutex
	settings
}

func NewExpander(templates TemplateStore, tasks *TaskManager, audit AuditStore, actors ActorStore, opts ...Option) *Expander {
	return &Expander{
		templates: templates,
		tasks:     tasks,
		audit:     audit,
		actors:    actors,
		locks:     newKeyedMutex(),
		settings:  newSettings(opts),
	}
}

// Expand creates a task for every boundary of tmpl due by now that has not
// been expanded yet, oldest first, and returns the newest generated task.
// Boundaries start at the anchor, or at the last activation when that is
// later. Each boundary is guarded by its idempotency key, so repeated or
// concurrent calls create it once. At most maxCatchUp boundaries are created
// per call; later calls continue from the last one.
func (e *Expander) Expand(ctx context.Context, tmpl *model.RecurringTemplate, now time.Time) (*model.Task, bool, error) {
	if !tmpl.Active {
		return nil, false, nil
	}

	from := tmpl.AnchorTime
	if tmpl.ActiveSince != nil && tmpl.ActiveSince.After(from) {
		from = *tmpl.ActiveSince
	}
	last, err := e.tasks.lastBoundary(ctx, tmpl.ID)
	if err != nil {
		return nil, false, err
	}
	if last != nil && !last.Before(from) {
		from = last.Add(time.Nanosecond)
	}

	boundaries := BoundariesBetween(tmpl.Cadence, tmpl.AnchorTime, from, now, e.location, maxCatchUp)
	if len(boundaries) == 0 {
		if last == nil {
			return nil, false, nil
		}
		newest, err := e.tasks.byKey(ctx, tmpl.IdempotencyKey(*last))
		return newest, false, err
	}

	var (
		newest  *model.Task
		created bool
	)
	for _, boundary := range boundaries {
		if err := ctx.Err(); err != nil {
			return newest, created, err
		}
		task, ok, err := e.expandAt(ctx, tmpl, boundary)
		if err != nil {
			return newest, created, err
		}
		newest = task
		created = created || ok
	}
	return newest, created, nil
}

func (e *Expander) expandAt(ctx context.Context, tmpl *model.RecurringTemplate, boundary time.Time) (*model.Task, bool, error) {
	bp := tmpl.Blueprint
	scope := bp.Visibility
	key := tmpl.IdempotencyKey(boundary)
	templateID := tmpl.ID
	assignedBy := bp.AssignedBy
	if assignedBy == "" {
		assignedBy = model.SystemActorID
	}
	return e.tasks.create(ctx, TaskInput{
		Title:          bp.Title,
		Description:    bp.Description,
		SourceModule:   model.SourceRecurringTemplate,
		LinkedEntityID: bp.LinkedEntityID,
		AssignedTo:     bp.AssignedTo,
		AssignedBy:     assignedBy,
		DueAt:          boundary.Add(bp.DueOffset()),
		Priority:       bp.Priority,
		Visibility:     &scope,
		IdempotencyKey: &key,
		TemplateID:     &templateID,
		Boundary:       &boundary,
	})
}

// ExpandDue expands every active template in a bounded pool. Per-template
// failures are logged and counted; cancellation stops new templates from
// starting and is returned once running ones finish.
func (e *Expander) ExpandDue(ctx context.Context, now time.Time) (ExpandReport, error) {
	if err := ctx.Err(); err != nil {
		return ExpandReport{}, err
	}
	sctx, cancel := e.bound(ctx)
	templates, err := e.templates.ListActive(sctx)
	cancel()
	if err != nil {
		return ExpandReport{}, storeErr("list active templates", err)
	}

	var (
		mu     sync.Mutex
		report = ExpandReport{Templates: len(templates)}
		g      errgroup.Group
	)
	g.SetLimit(e.workers)

	for i := range templates {
		if ctx.Err() != nil {
			break
		}
		tmpl := &templates[i]
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			_, created, err := e.Expand(ctx, tmpl, now)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err != nil:
				report.Failed++
				log.Printf("⚠️ template %s (%s) not expanded: %v\n", tmpl.ID, tmpl.Name, err)
			case created:
				report.Created++
			default:
				report.Existing++
			}
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return report, err
	}
	return report, nil
}

// CreateTemplate validates and stores an active template.
func (e *Expander) CreateTemplate(ctx context.Context, in TemplateInput) (*model.RecurringTemplate, error) {
	if err := e.validate(ctx, &in); err != nil {
		return nil, err
	}
	now := e.now()
	tmpl := &model.RecurringTemplate{
		ID:         uuid.New(),
		Name:       strings.TrimSpace(in.Name),
		Cadence:    in.Cadence,
		AnchorTime: in.AnchorTime.UTC(),
		Blueprint:  in.Blueprint,
		Active:     true,
		CreatedBy:  in.CreatedBy,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	sctx, cancel := e.bound(ctx)
	err := e.templates.Create(sctx, tmpl)
	cancel()
	if err != nil {
		return nil, storeErr("create template", err)
	}
	appendAudit(ctx, e.settings, e.audit, &model.AuditEntry{
		EntityType: model.EntityTemplate,
		EntityID:   tmpl.ID.String(),
		Kind:       model.AuditCreated,
		ToState:    activeLabel(true),
		ActorID:    in.CreatedBy,
	})
	return tmpl, nil
}

func (e *Expander) validate(ctx context.Context, in *TemplateInput) error {
	if strings.TrimSpace(in.Name) == "" {
		return invalid("name", "is required")
	}
	switch in.Cadence.Kind {
	case model.CadenceDaily, model.CadenceWeekly:
	case model.CadenceInterval:
		if in.Cadence.Interval() < minInterval {
			return invalid("cadence.interval", "must be at least %s", minInterval)
		}
	default:
		return invalid("cadence.kind", "unknown cadence %q", in.Cadence.Kind)
	}
	if in.AnchorTime.IsZero() {
		return invalid("anchor_time", "is required")
	}
	if strings.TrimSpace(in.CreatedBy) == "" {
		return invalid("created_by", "is required")
	}

	bp := in.Blueprint
	if strings.TrimSpace(bp.Title) == "" {
		return invalid("blueprint.title", "is required")
	}
	if !bp.Priority.Valid() {
		return invalid("blueprint.priority", "must be one of low, medium, high, critical")
	}
	if bp.DueOffsetSeconds < 0 {
		return invalid("blueprint.due_offset", "must not be negative")
	}
	if err := validateScope("blueprint.visibility", &bp.Visibility); err != nil {
		return err
	}
	if strings.TrimSpace(bp.AssignedTo) == "" {
		return invalid("blueprint.assigned_to", "is required")
	}
	sctx, cancel := e.bound(ctx)
	defer cancel()
	if _, err := e.actors.GetByID(sctx, bp.AssignedTo); err != nil {
		if errors.Is(err, repository.ErrActorNotFound) {
			return invalid("blueprint.assigned_to", "unknown actor %q", bp.AssignedTo)
		}
		return storeErr("resolve assignee", err)
	}
	return nil
}

// Activate resumes generation from now. Boundaries that fell while the
// template was inactive are skipped.
func (e *Expander) Activate(ctx context.Context, id uuid.UUID, actorID string) (*model.RecurringTemplate, error) {
	return e.setActive(ctx, id, true, actorID)
}

// Deactivate stops future generation. Tasks already generated are kept.
func (e *Expander) Deactivate(ctx context.Context, id uuid.UUID, actorID string) (*model.RecurringTemplate, error) {
	return e.setActive(ctx, id, false, actorID)
}

func (e *Expander) setActive(ctx context.Context, id uuid.UUID, active bool, actorID string) (*model.RecurringTemplate, error) {
	unlock := e.locks.Lock(id.String())
	defer unlock()

	for attempt := 0; attempt < maxWriteAttempts; attempt++ {
		sctx, cancel := e.bound(ctx)
		tmpl, err := e.templates.GetByID(sctx, id)
		cancel()
		if err != nil {
			return nil, storeErr("get template", err)
		}
		if tmpl.Active == active {
			return tmpl, nil
		}

		now := e.now()
		tmpl.Active = active
		tmpl.UpdatedAt = now
		if active {
			tmpl.ActiveSince = &now
		}
		sctx, cancel = e.bound(ctx)
		err = e.templates.Update(sctx, tmpl)
		cancel()
		if errors.Is(err, repository.ErrStaleRecord) {
			continue
		}
		if err != nil {
			return nil, storeErr("update template", err)
		}

		appendAudit(ctx, e.settings, e.audit, &model.AuditEntry{
			EntityType: model.EntityTemplate,
			EntityID:   id.String(),
			Kind:       model.AuditUpdated,
			FromState:  activeLabel(!active),
			ToState:    activeLabel(active),
			ActorID:    actorID,
		})
		return tmpl, nil
	}
	return nil, &StoreUnavailableError{Op: "update template", Err: repository.ErrStaleRecord}
}

func (e *Expander) ListTemplates(ctx context.Context) ([]model.RecurringTemplate, error) {
	sctx, cancel := e.bound(ctx)
	defer cancel()
	tmpls, err := e.templates.List(sctx)
	return tmpls, storeErr("list templates", err)
}

func activeLabel(active bool) string {
	if active {
		return "active"
	}
	return "inactive"
}
