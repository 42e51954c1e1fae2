// Package memory holds in-process implementations of the repository stores.
// They back STORE_DRIVER=memory and stand in for the database in tests.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"templeops/internal/model"
	"templeops/internal/repository"
)

// Stores groups one of each store.
type Stores struct {
	Tasks     *TaskStore
	Events    *EventStore
	Bookings  *BookingStore
	Templates *TemplateStore
	Audit     *AuditStore
	Actors    *ActorStore
}

func New() *Stores {
	events := NewEventStore()
	return &Stores{
		Tasks:     NewTaskStore(),
		Events:    events,
		Bookings:  NewBookingStoreFor(events),
		Templates: NewTemplateStore(),
		Audit:     NewAuditStore(),
		Actors:    NewActorStore(),
	}
}

// faults lets tests make a store fail every call until cleared.
type faults struct {
	mu  sync.RWMutex
	err error
}

// FailWith makes subsequent calls return err; nil restores normal service.
func (f *faults) FailWith(err error) {
	f.mu.Lock()
	f.err = err
	f.mu.Unlock()
}

func (f *faults) check(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.err
}

type TaskStore struct {
	faults
	mu    sync.RWMutex
	byID  map[uuid.UUID]model.Task
	byKey map[string]uuid.UUID
}

func NewTaskStore() *TaskStore {
	return &TaskStore{
		byID:  make(map[uuid.UUID]model.Task),
		byKey: make(map[string]uuid.UUID),
	}
}

func (s *TaskStore) Create(ctx context.Context, task *model.Task) error {
	if err := s.check(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byID[task.ID]; exists {
		return repository.ErrDuplicateKey
	}
	if task.IdempotencyKey != nil {
		if _, exists := s.byKey[*task.IdempotencyKey]; exists {
			return repository.ErrDuplicateKey
		}
		s.byKey[*task.IdempotencyKey] = task.ID
	}
	s.byID[task.ID] = *task
	return nil
}

func (s *TaskStore) GetByID(ctx context.Context, id uuid.UUID) (*model.Task, error) {
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	task, ok := s.byID[id]
	if !ok {
		return nil, repository.ErrTaskNotFound
	}
	return &task, nil
}

func (s *TaskStore) GetByIdempotencyKey(ctx context.Context, key string) (*model.Task, error) {
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byKey[key]
	if !ok {
		return nil, repository.ErrTaskNotFound
	}
	task := s.byID[id]
	return &task, nil
}

func (s *TaskStore) Update(ctx context.Context, task *model.Task) error {
	if err := s.check(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.byID[task.ID]
	if !ok || stored.Version != task.Version {
		return repository.ErrStaleRecord
	}
	stored.Status = task.Status
	stored.CompletedAt = task.CompletedAt
	stored.Conflict = task.Conflict
	stored.UpdatedAt = task.UpdatedAt
	stored.Version++
	s.byID[task.ID] = stored
	task.Version = stored.Version
	return nil
}

func (s *TaskStore) List(ctx context.Context, filter repository.TaskFilter) ([]model.Task, error) {
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	s.mu.RLock()
	tasks := make([]model.Task, 0, len(s.byID))
	for _, task := range s.byID {
		if filter.Matches(&task) {
			tasks = append(tasks, task)
		}
	}
	s.mu.RUnlock()

	sort.Slice(tasks, func(i, j int) bool {
		if !tasks[i].DueAt.Equal(tasks[j].DueAt) {
			return tasks[i].DueAt.Before(tasks[j].DueAt)
		}
		return tasks[i].ID.String() < tasks[j].ID.String()
	})
	return paginate(tasks, filter.Offset, filter.Limit), nil
}

func (s *TaskStore) ListByLinkedEntity(ctx context.Context, entityID string) ([]model.Task, error) {
	return s.List(ctx, repository.TaskFilter{LinkedEntityID: entityID})
}

func (s *TaskStore) LastBoundary(ctx context.Context, templateID uuid.UUID) (*time.Time, error) {
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var last *time.Time
	for _, task := range s.byID {
		if task.TemplateID == nil || *task.TemplateID != templateID || task.Boundary == nil {
			continue
		}
		if last == nil || task.Boundary.After(*last) {
			b := *task.Boundary
			last = &b
		}
	}
	return last, nil
}

func paginate[T any](items []T, offset, limit int) []T {
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

type EventStore struct {
	faults
	mu   sync.RWMutex
	byID map[uuid.UUID]model.Event
}

func NewEventStore() *EventStore {
	return &EventStore{byID: make(map[uuid.UUID]model.Event)}
}

func (s *EventStore) Create(ctx context.Context, event *model.Event) error {
	if err := s.check(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byID[event.ID]; exists {
		return repository.ErrDuplicateKey
	}
	s.byID[event.ID] = *event
	return nil
}

func (s *EventStore) GetByID(ctx context.Context, id uuid.UUID) (*model.Event, error) {
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	event, ok := s.byID[id]
	if !ok {
		return nil, repository.ErrEventNotFound
	}
	return &event, nil
}

func (s *EventStore) Update(ctx context.Context, event *model.Event) error {
	if err := s.check(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.byID[event.ID]
	if !ok || stored.Version != event.Version {
		return repository.ErrStaleRecord
	}
	updated := *event
	updated.CreatedAt = stored.CreatedAt
	updated.CreatedBy = stored.CreatedBy
	updated.Version++
	s.byID[event.ID] = updated
	event.Version = updated.Version
	return nil
}

func (s *EventStore) ListByStatus(ctx context.Context, statuses ...model.EventStatus) ([]model.Event, error) {
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	want := make(map[model.EventStatus]bool, len(statuses))
	for _, st := range statuses {
		want[st] = true
	}
	s.mu.RLock()
	events := make([]model.Event, 0, len(s.byID))
	for _, event := range s.byID {
		if len(want) == 0 || want[event.Status] {
			events = append(events, event)
		}
	}
	s.mu.RUnlock()

	sort.Slice(events, func(i, j int) bool {
		if !events[i].StartDate.Equal(events[j].StartDate) {
			return events[i].StartDate.Before(events[j].StartDate)
		}
		return events[i].ID.String() < events[j].ID.String()
	})
	return events, nil
}

func (s *EventStore) status(id uuid.UUID) model.EventStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.byID[id].Status
}

type BookingStore struct {
	faults
	mu       sync.RWMutex
	bookings []model.Booking
	events   *EventStore
}

func NewBookingStore() *BookingStore {
	return &BookingStore{}
}

// NewBookingStoreFor returns a booking store that ignores bookings of
// events cancelled in events when looking for overlaps.
func NewBookingStoreFor(events *EventStore) *BookingStore {
	return &BookingStore{events: events}
}

func (s *BookingStore) Create(ctx context.Context, booking *model.Booking) error {
	if err := s.check(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, b := range s.bookings {
		if b.ID == booking.ID {
			return repository.ErrDuplicateKey
		}
	}
	s.bookings = append(s.bookings, *booking)
	return nil
}

func (s *BookingStore) ListByEvent(ctx context.Context, eventID uuid.UUID) ([]model.Booking, error) {
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.Booking
	for _, b := range s.bookings {
		if b.EventID == eventID {
			out = append(out, b)
		}
	}
	sortBookings(out)
	return out, nil
}

func (s *BookingStore) ListOverlapping(ctx context.Context, resource string, from, to time.Time) ([]model.Booking, error) {
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.Booking
	for _, b := range s.bookings {
		if b.Resource != resource || !b.StartsAt.Before(to) || !b.EndsAt.After(from) {
			continue
		}
		if s.events != nil && s.events.status(b.EventID) == model.EventCancelled {
			continue
		}
		out = append(out, b)
	}
	sortBookings(out)
	return out, nil
}

func (s *BookingStore) GetByID(ctx context.Context, id uuid.UUID) (*model.Booking, error) {
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, b := range s.bookings {
		if b.ID == id {
			return &b, nil
		}
	}
	return nil, repository.ErrBookingNotFound
}

func (s *BookingStore) SetConflict(ctx context.Context, ids []uuid.UUID, conflict bool) error {
	if err := s.check(ctx); err != nil {
		return err
	}
	flag := make(map[uuid.UUID]bool, len(ids))
	for _, id := range ids {
		flag[id] = true
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.bookings {
		if flag[s.bookings[i].ID] {
			s.bookings[i].Conflict = conflict
		}
	}
	return nil
}

func sortBookings(bookings []model.Booking) {
	sort.Slice(bookings, func(i, j int) bool {
		return bookings[i].StartsAt.Before(bookings[j].StartsAt)
	})
}

type TemplateStore struct {
	faults
	mu   sync.RWMutex
	byID map[uuid.UUID]model.RecurringTemplate
}

func NewTemplateStore() *TemplateStore {
	return &TemplateStore{byID: make(map[uuid.UUID]model.RecurringTemplate)}
}

func (s *TemplateStore) Create(ctx context.Context, tmpl *model.RecurringTemplate) error {
	if err := s.check(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byID[tmpl.ID]; exists {
		return repository.ErrDuplicateKey
	}
	s.byID[tmpl.ID] = *tmpl
	return nil
}

func (s *TemplateStore) GetByID(ctx context.Context, id uuid.UUID) (*model.RecurringTemplate, error) {
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	tmpl, ok := s.byID[id]
	if !ok {
		return nil, repository.ErrTemplateNotFound
	}
	return &tmpl, nil
}

func (s *TemplateStore) Update(ctx context.Context, tmpl *model.RecurringTemplate) error {
	if err := s.check(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.byID[tmpl.ID]
	if !ok || stored.Version != tmpl.Version {
		return repository.ErrStaleRecord
	}
	stored.Name = tmpl.Name
	stored.Active = tmpl.Active
	stored.ActiveSince = tmpl.ActiveSince
	stored.UpdatedAt = tmpl.UpdatedAt
	stored.Version++
	s.byID[tmpl.ID] = stored
	tmpl.Version = stored.Version
	return nil
}

func (s *TemplateStore) List(ctx context.Context) ([]model.RecurringTemplate, error) {
	return s.list(ctx, false)
}

func (s *TemplateStore) ListActive(ctx context.Context) ([]model.RecurringTemplate, error) {
	return s.list(ctx, true)
}

func (s *TemplateStore) list(ctx context.Context, activeOnly bool) ([]model.RecurringTemplate, error) {
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	s.mu.RLock()
	out := make([]model.RecurringTemplate, 0, len(s.byID))
	for _, tmpl := range s.byID {
		if !activeOnly || tmpl.Active {
			out = append(out, tmpl)
		}
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out, nil
}

type AuditStore struct {
	faults
	mu        sync.RWMutex
	entries   []model.AuditEntry
	byRequest map[string]int
}

func NewAuditStore() *AuditStore {
	return &AuditStore{byRequest: make(map[string]int)}
}

func (s *AuditStore) Append(ctx context.Context, entry *model.AuditEntry) error {
	if err := s.check(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if entry.RequestID != nil {
		if _, exists := s.byRequest[*entry.RequestID]; exists {
			return repository.ErrDuplicateKey
		}
		s.byRequest[*entry.RequestID] = len(s.entries)
	}
	s.entries = append(s.entries, *entry)
	return nil
}

func (s *AuditStore) FindByRequestID(ctx context.Context, requestID string) (*model.AuditEntry, error) {
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	idx, ok := s.byRequest[requestID]
	if !ok {
		return nil, repository.ErrAuditNotFound
	}
	entry := s.entries[idx]
	return &entry, nil
}

func (s *AuditStore) ListForEntity(ctx context.Context, entityType model.EntityType, entityID string) ([]model.AuditEntry, error) {
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.AuditEntry
	for _, e := range s.entries {
		if e.EntityType == entityType && e.EntityID == entityID {
			out = append(out, e)
		}
	}
	return out, nil
}

type ActorStore struct {
	faults
	mu   sync.RWMutex
	byID map[string]model.Actor
}

func NewActorStore() *ActorStore {
	return &ActorStore{byID: make(map[string]model.Actor)}
}

func (s *ActorStore) Create(ctx context.Context, actor *model.Actor) error {
	if err := s.check(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byID[actor.ID]; exists {
		return repository.ErrDuplicateKey
	}
	s.byID[actor.ID] = *actor
	return nil
}

func (s *ActorStore) GetByID(ctx context.Context, id string) (*model.Actor, error) {
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	actor, ok := s.byID[id]
	if !ok {
		return nil, repository.ErrActorNotFound
	}
	return &actor, nil
}
