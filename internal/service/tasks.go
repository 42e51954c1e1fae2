package service

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"templeops/internal/model"
	"templeops/internal/repository"
)

var taskTransitions = map[model.TaskStatus][]model.TaskStatus{
	model.TaskOpen:       {model.TaskInProgress, model.TaskBlocked, model.TaskCompleted},
	model.TaskInProgress: {model.TaskOpen, model.TaskBlocked, model.TaskCompleted},
	model.TaskBlocked:    {model.TaskOpen, model.TaskInProgress},
	model.TaskCompleted:  {model.TaskOpen},
}

// CanTransition reports whether a task may move from one status to another.
func CanTransition(from, to model.TaskStatus) bool {
	for _, allowed := range taskTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// TaskInput describes a task to create. Visibility must be set explicitly.
type TaskInput struct {
	Title           string
	Description     string
	SourceModule    model.SourceModule
	LinkedEntityID  *string
	AssignedTo      string
	AssignedBy      string
	DueAt           time.Time
	Priority        model.Priority
	Visibility      *model.VisibilityScope
	Conflict        bool
	IdempotencyKey  *string
	TemplateID      *uuid.UUID
	Boundary        *time.Time
	RescheduledFrom *uuid.UUID
}

// TaskQuery filters ListTasksVisibleTo. Pagination applies after the
// visibility filter so pages never come back short.
type TaskQuery struct {
	Filter      repository.TaskFilter
	OverdueOnly bool
}

type TaskManager struct {
	tasks  TaskStore
	audit  AuditStore
	actors ActorStore
	locks  *keyedMutex
	settings
}

func NewTaskManager(tasks TaskStore, audit AuditStore, actors ActorStore, opts ...Option) *TaskManager {
	return &TaskManager{
		tasks:    tasks,
		audit:    audit,
		actors:   actors,
		locks:    newKeyedMutex(),
		settings: newSettings(opts),
	}
}

// CreateTask validates input and stores a new open task. When the input
// carries an idempotency key that is already taken, the existing task is
// returned instead.
func (m *TaskManager) CreateTask(ctx context.Context, in TaskInput) (*model.Task, error) {
	task, _, err := m.create(ctx, in)
	return task, err
}

func (m *TaskManager) create(ctx context.Context, in TaskInput) (*model.Task, bool, error) {
	if err := m.validate(ctx, &in); err != nil {
		return nil, false, err
	}

	if in.IdempotencyKey != nil {
		existing, err := m.byKey(ctx, *in.IdempotencyKey)
		if err == nil {
			return existing, false, nil
		}
		if !errors.Is(err, repository.ErrTaskNotFound) {
			return nil, false, err
		}
	}

	now := m.now()
	task := &model.Task{
		ID:              uuid.New(),
		Title:           strings.TrimSpace(in.Title),
		Description:     in.Description,
		SourceModule:    in.SourceModule,
		LinkedEntityID:  in.LinkedEntityID,
		AssignedTo:      in.AssignedTo,
		AssignedBy:      in.AssignedBy,
		DueAt:           in.DueAt.UTC(),
		Priority:        in.Priority,
		Status:          model.TaskOpen,
		Visibility:      *in.Visibility,
		Conflict:        in.Conflict,
		IdempotencyKey:  in.IdempotencyKey,
		TemplateID:      in.TemplateID,
		Boundary:        in.Boundary,
		RescheduledFrom: in.RescheduledFrom,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if task.Boundary != nil {
		b := task.Boundary.UTC()
		task.Boundary = &b
	}

	sctx, cancel := m.bound(ctx)
	err := m.tasks.Create(sctx, task)
	cancel()
	if errors.Is(err, repository.ErrDuplicateKey) && in.IdempotencyKey != nil {
		// Lost the race to a concurrent creator of the same key.
		existing, getErr := m.byKey(ctx, *in.IdempotencyKey)
		return existing, false, getErr
	}
	if err != nil {
		return nil, false, storeErr("create task", err)
	}

	m.record(ctx, &model.AuditEntry{
		EntityType: model.EntityTask,
		EntityID:   task.ID.String(),
		Kind:       model.AuditCreated,
		ToState:    string(task.Status),
		ActorID:    task.AssignedBy,
	})
	return task, true, nil
}

func (m *TaskManager) validate(ctx context.Context, in *TaskInput) error {
	if strings.TrimSpace(in.Title) == "" {
		return invalid("title", "is required")
	}
	if !in.SourceModule.Valid() {
		return invalid("source_module", "unknown source module %q", in.SourceModule)
	}
	if in.DueAt.IsZero() {
		return invalid("due_at", "is required")
	}
	if !in.Priority.Valid() {
		return invalid("priority", "must be one of low, medium, high, critical")
	}
	if err := validateScope("visibility", in.Visibility); err != nil {
		return err
	}
	if strings.TrimSpace(in.AssignedBy) == "" {
		return invalid("assigned_by", "is required")
	}
	if strings.TrimSpace(in.AssignedTo) == "" {
		return invalid("assigned_to", "is required")
	}

	sctx, cancel := m.bound(ctx)
	defer cancel()
	if _, err := m.actors.GetByID(sctx, in.AssignedTo); err != nil {
		if errors.Is(err, repository.ErrActorNotFound) {
			return invalid("assigned_to", "unknown actor %q", in.AssignedTo)
		}
		return storeErr("resolve assignee", err)
	}
	return nil
}

func validateScope(field string, scope *model.VisibilityScope) error {
	if scope == nil {
		return invalid(field, "must be set explicitly")
	}
	switch scope.Kind {
	case model.VisibilityPublic, model.VisibilityAssigneeOnly:
		return nil
	case model.VisibilityRoleRestricted:
		if !scope.Role.Valid() {
			return invalid(field, "unknown role %q", scope.Role)
		}
		return nil
	}
	return invalid(field, "unknown scope %q", scope.Kind)
}

// Transition moves a task to a new status following the lifecycle table.
// A non-empty requestID that was already applied makes the call a no-op
// returning the current task.
func (m *TaskManager) Transition(ctx context.Context, id uuid.UUID, to model.TaskStatus, actorID, requestID string) (*model.Task, error) {
	if !to.Valid() {
		return nil, invalid("status", "unknown task status %q", to)
	}

	unlock := m.locks.Lock(id.String())
	defer unlock()

	if requestID != "" {
		seen, err := m.seenRequest(ctx, id, requestID)
		if err != nil {
			return nil, err
		}
		if seen {
			return m.get(ctx, id)
		}
	}

	for attempt := 0; attempt < maxWriteAttempts; attempt++ {
		task, err := m.get(ctx, id)
		if err != nil {
			return nil, err
		}
		from := task.Status
		if !CanTransition(from, to) {
			return nil, &IllegalTransitionError{
				Entity: model.EntityTask,
				ID:     id.String(),
				From:   string(from),
				To:     string(to),
			}
		}

		now := m.now()
		task.Status = to
		task.UpdatedAt = now
		if to == model.TaskCompleted {
			task.CompletedAt = &now
		} else {
			task.CompletedAt = nil
		}

		err = m.update(ctx, task)
		if errors.Is(err, repository.ErrStaleRecord) {
			continue
		}
		if err != nil {
			return nil, err
		}

		kind := model.AuditTransition
		if from == model.TaskCompleted && to == model.TaskOpen {
			kind = model.AuditReopened
		}
		entry := &model.AuditEntry{
			EntityType: model.EntityTask,
			EntityID:   id.String(),
			Kind:       kind,
			FromState:  string(from),
			ToState:    string(to),
			ActorID:    actorID,
		}
		if requestID != "" {
			entry.RequestID = &requestID
		}
		m.record(ctx, entry)
		return task, nil
	}
	return nil, &StoreUnavailableError{Op: "transition task", Err: repository.ErrStaleRecord}
}

func (m *TaskManager) seenRequest(ctx context.Context, id uuid.UUID, requestID string) (bool, error) {
	sctx, cancel := m.bound(ctx)
	defer cancel()
	entry, err := m.audit.FindByRequestID(sctx, requestID)
	if errors.Is(err, repository.ErrAuditNotFound) {
		return false, nil
	}
	if err != nil {
		return false, storeErr("find request", err)
	}
	if entry.EntityType != model.EntityTask || entry.EntityID != id.String() {
		return false, invalid("request_id", "already used for %s %s", entry.EntityType, entry.EntityID)
	}
	return true, nil
}

// Reschedule replaces a task with a copy due at newDueAt. The copy points
// back through RescheduledFrom and the original is closed as completed.
func (m *TaskManager) Reschedule(ctx context.Context, id uuid.UUID, newDueAt time.Time, actorID string) (*model.Task, error) {
	if newDueAt.IsZero() {
		return nil, invalid("due_at", "is required")
	}

	unlock := m.locks.Lock(id.String())
	defer unlock()

	old, err := m.get(ctx, id)
	if err != nil {
		return nil, err
	}
	if old.Status != model.TaskOpen && old.Status != model.TaskInProgress {
		return nil, &IllegalTransitionError{
			Entity: model.EntityTask,
			ID:     id.String(),
			From:   string(old.Status),
			To:     "rescheduled",
		}
	}

	// A retry after a failed close finds the replacement made by the first try.
	scope := old.Visibility
	key := "reschedule:" + old.ID.String()
	replacement, _, err := m.create(ctx, TaskInput{
		Title:           old.Title,
		Description:     old.Description,
		SourceModule:    old.SourceModule,
		LinkedEntityID:  old.LinkedEntityID,
		AssignedTo:      old.AssignedTo,
		AssignedBy:      old.AssignedBy,
		DueAt:           newDueAt,
		Priority:        old.Priority,
		Visibility:      &scope,
		Conflict:        old.Conflict,
		TemplateID:      old.TemplateID,
		RescheduledFrom: &old.ID,
		IdempotencyKey:  &key,
	})
	if err != nil {
		return nil, err
	}

	from := old.Status
	now := m.now()
	old.Status = model.TaskCompleted
	old.CompletedAt = &now
	old.UpdatedAt = now
	if err := m.update(ctx, old); err != nil {
		if errors.Is(err, repository.ErrStaleRecord) {
			return nil, &StoreUnavailableError{Op: "close rescheduled task", Err: err}
		}
		return nil, err
	}

	m.record(ctx, &model.AuditEntry{
		EntityType: model.EntityTask,
		EntityID:   id.String(),
		Kind:       model.AuditRescheduled,
		FromState:  string(from),
		ToState:    string(model.TaskCompleted),
		ActorID:    actorID,
		Note:       "replaced by " + replacement.ID.String(),
	})
	return replacement, nil
}

// ListOverdue returns open tasks due before asOf, soonest first.
func (m *TaskManager) ListOverdue(ctx context.Context, asOf time.Time) ([]model.Task, error) {
	tasks, err := m.list(ctx, repository.TaskFilter{
		Statuses:  model.OpenTaskStatuses(),
		DueBefore: &asOf,
	})
	if err != nil {
		return nil, err
	}
	overdue := tasks[:0]
	for i := range tasks {
		if tasks[i].IsOverdue(asOf) {
			overdue = append(overdue, tasks[i])
		}
	}
	return overdue, nil
}

// ListTasksVisibleTo returns the tasks actor may see that match q.
func (m *TaskManager) ListTasksVisibleTo(ctx context.Context, actor *model.Actor, q TaskQuery) ([]model.Task, error) {
	filter := q.Filter
	limit, offset := filter.Limit, filter.Offset
	filter.Limit, filter.Offset = 0, 0

	now := m.now()
	if q.OverdueOnly {
		filter.DueBefore = earliest(filter.DueBefore, now)
		if len(filter.Statuses) == 0 {
			filter.Statuses = model.OpenTaskStatuses()
		}
	}

	tasks, err := m.list(ctx, filter)
	if err != nil {
		return nil, err
	}

	visible := make([]model.Task, 0, len(tasks))
	for i := range tasks {
		if q.OverdueOnly && !tasks[i].IsOverdue(now) {
			continue
		}
		if CanView(actor, &tasks[i]) {
			visible = append(visible, tasks[i])
		}
	}
	return page(visible, offset, limit), nil
}

// GetTask returns the task if actor may see it. Invisible tasks are
// reported as not found.
func (m *TaskManager) GetTask(ctx context.Context, actor *model.Actor, id uuid.UUID) (*model.Task, error) {
	task, err := m.get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !CanView(actor, task) {
		return nil, repository.ErrTaskNotFound
	}
	return task, nil
}

// History returns the audit trail of a task the actor may see.
func (m *TaskManager) History(ctx context.Context, actor *model.Actor, id uuid.UUID) ([]model.AuditEntry, error) {
	if _, err := m.GetTask(ctx, actor, id); err != nil {
		return nil, err
	}
	sctx, cancel := m.bound(ctx)
	defer cancel()
	entries, err := m.audit.ListForEntity(sctx, model.EntityTask, id.String())
	return entries, storeErr("list task history", err)
}

// LinkedTasks returns every task whose linkedEntityId is entityID.
func (m *TaskManager) LinkedTasks(ctx context.Context, entityID string) ([]model.Task, error) {
	sctx, cancel := m.bound(ctx)
	defer cancel()
	tasks, err := m.tasks.ListByLinkedEntity(sctx, entityID)
	return tasks, storeErr("list linked tasks", err)
}

func (m *TaskManager) get(ctx context.Context, id uuid.UUID) (*model.Task, error) {
	sctx, cancel := m.bound(ctx)
	defer cancel()
	task, err := m.tasks.GetByID(sctx, id)
	return task, storeErr("get task", err)
}

func (m *TaskManager) byKey(ctx context.Context, key string) (*model.Task, error) {
	sctx, cancel := m.bound(ctx)
	defer cancel()
	task, err := m.tasks.GetByIdempotencyKey(sctx, key)
	return task, storeErr("get task by key", err)
}

func (m *TaskManager) lastBoundary(ctx context.Context, templateID uuid.UUID) (*time.Time, error) {
	sctx, cancel := m.bound(ctx)
	defer cancel()
	last, err := m.tasks.LastBoundary(sctx, templateID)
	return last, storeErr("find last boundary", err)
}

// update passes ErrStaleRecord through so callers can retry.
func (m *TaskManager) update(ctx context.Context, task *model.Task) error {
	sctx, cancel := m.bound(ctx)
	defer cancel()
	err := m.tasks.Update(sctx, task)
	if errors.Is(err, repository.ErrStaleRecord) {
		return err
	}
	return storeErr("update task", err)
}

func (m *TaskManager) list(ctx context.Context, filter repository.TaskFilter) ([]model.Task, error) {
	sctx, cancel := m.bound(ctx)
	defer cancel()
	tasks, err := m.tasks.List(sctx, filter)
	return tasks, storeErr("list tasks", err)
}

// record appends an audit entry. The change it describes is already
// committed, so a failure is logged rather than returned.
func (m *TaskManager) record(ctx context.Context, entry *model.AuditEntry) {
	appendAudit(ctx, m.settings, m.audit, entry)
}

func appendAudit(ctx context.Context, s settings, audit AuditStore, entry *model.AuditEntry) {
	entry.ID = uuid.New()
	entry.At = s.now()
	if entry.ActorID == "" {
		entry.ActorID = model.SystemActorID
	}
	sctx, cancel := s.bound(ctx)
	defer cancel()
	if err := audit.Append(sctx, entry); err != nil {
		log.Printf("⚠️ audit %s %s %s not recorded: %v\n", entry.Kind, entry.EntityType, entry.EntityID, err)
	}
}

func earliest(t *time.Time, now time.Time) *time.Time {
	if t != nil && t.Before(now) {
		return t
	}
	return &now
}

func page[T any](items []T, offset, limit int) []T {
	if offset > 0 {
		if offset >= len(items) {
			return []T{}
		}
		items = items[offset:]
	}
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}
