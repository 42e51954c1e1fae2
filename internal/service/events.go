package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"templeops/internal/model"
	"templeops/internal/repository"
)

type EventInput struct {
	Name            string
	Description     string
	Venue           string
	StartDate       time.Time
	EndDate         time.Time
	EstimatedBudget float64
	CreatedBy       string
}

// EventPatch holds optional field changes. Nil fields are left alone.
type EventPatch struct {
	Name            *string
	Description     *string
	Venue           *string
	StartDate       *time.Time
	EndDate         *time.Time
	EstimatedBudget *float64
}

type BookingInput struct {
	Resource string
	StartsAt time.Time
	EndsAt   time.Time
	Note     string
}

// EventStatusView is the read-only answer of GetEventStatus.
type EventStatusView struct {
	Event         *model.Event
	Status        model.EventStatus
	LinkedTaskIDs []uuid.UUID
	OpenTaskIDs   []uuid.UUID
}

// RefreshReport summarizes one RefreshAll pass.
type RefreshReport struct {
	Events   int
	Advanced int
	Warnings int
	Failed   int
}

type EventManager struct {
	events   EventStore
	bookings BookingStore
	tasks    TaskStore
	audit    AuditStore
	locks    *keyedMutex
	settings
}

func NewEventManager(events EventStore, bookings BookingStore, tasks TaskStore, audit AuditStore, opts ...Option) *EventManager {
	return &EventManager{
		events:   events,
		bookings: bookings,
		tasks:    tasks,
		audit:    audit,
		locks:    newKeyedMutex(),
		settings: newSettings(opts),
	}
}

// Evaluate returns the status event should have at now, reading its dates
// as calendar days in loc. It only moves auto-advancing statuses forward and
// is safe to call repeatedly.
func Evaluate(event *model.Event, now time.Time, loc *time.Location) model.EventStatus {
	switch event.Status {
	case model.EventScheduled, model.EventPublished:
		if !now.Before(event.EndsAt(loc)) {
			return model.EventCompleted
		}
		if !now.Before(event.StartsAt(loc)) {
			return model.EventOngoing
		}
	case model.EventOngoing:
		if !now.Before(event.EndsAt(loc)) {
			return model.EventCompleted
		}
	}
	return event.Status
}

// Day truncates t to midnight of its calendar day in loc.
func Day(t time.Time, loc *time.Location) time.Time {
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}

func (m *EventManager) CreateEvent(ctx context.Context, in EventInput) (*model.Event, error) {
	if strings.TrimSpace(in.Name) == "" {
		return nil, invalid("name", "is required")
	}
	if in.StartDate.IsZero() {
		return nil, invalid("start_date", "is required")
	}
	if in.EndDate.IsZero() {
		return nil, invalid("end_date", "is required")
	}
	start, end := Day(in.StartDate, m.location), Day(in.EndDate, m.location)
	if end.Before(start) {
		return nil, invalid("end_date", "must not be before start_date")
	}
	if in.EstimatedBudget < 0 {
		return nil, invalid("estimated_budget", "must not be negative")
	}
	if strings.TrimSpace(in.CreatedBy) == "" {
		return nil, invalid("created_by", "is required")
	}

	now := m.now()
	event := &model.Event{
		ID:              uuid.New(),
		Name:            strings.TrimSpace(in.Name),
		Description:     in.Description,
		Venue:           strings.TrimSpace(in.Venue),
		StartDate:       start.UTC(),
		EndDate:         end.UTC(),
		Status:          model.EventDraft,
		EstimatedBudget: in.EstimatedBudget,
		CreatedBy:       in.CreatedBy,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	sctx, cancel := m.bound(ctx)
	err := m.events.Create(sctx, event)
	cancel()
	if err != nil {
		return nil, storeErr("create event", err)
	}
	m.record(ctx, event.ID, model.AuditCreated, "", model.EventDraft, in.CreatedBy, "")
	return event, nil
}

func (m *EventManager) GetEvent(ctx context.Context, id uuid.UUID) (*model.Event, error) {
	sctx, cancel := m.bound(ctx)
	defer cancel()
	event, err := m.events.GetByID(sctx, id)
	return event, storeErr("get event", err)
}

// ListEvents returns events in any of the given statuses, or all events.
func (m *EventManager) ListEvents(ctx context.Context, statuses ...model.EventStatus) ([]model.Event, error) {
	sctx, cancel := m.bound(ctx)
	defer cancel()
	events, err := m.events.ListByStatus(sctx, statuses...)
	return events, storeErr("list events", err)
}

func (m *EventManager) Schedule(ctx context.Context, id uuid.UUID, actorID string) (*model.Event, error) {
	return m.move(ctx, id, actorID, model.EventScheduled, nil, model.EventDraft)
}

// Publish moves a draft to Published once no linked booking or open linked
// task is flagged as conflicting. On ConflictError nothing is written.
func (m *EventManager) Publish(ctx context.Context, id uuid.UUID, actorID string) (*model.Event, error) {
	return m.move(ctx, id, actorID, model.EventPublished, m.conflictGate, model.EventDraft)
}

// Cancel is irreversible. The event's bookings stop reserving their
// resources, and bookings that only clashed with them are cleared.
func (m *EventManager) Cancel(ctx context.Context, id uuid.UUID, actorID string) (*model.Event, error) {
	event, err := m.move(ctx, id, actorID, model.EventCancelled, nil, model.EventDraft, model.EventScheduled)
	if err != nil {
		return nil, err
	}
	if err := m.releaseBookings(ctx, event.ID); err != nil {
		log.Printf("⚠️ event %s cancelled but its bookings were not released: %v\n", id, err)
	}
	return event, nil
}

// releaseBookings clears the conflict flag of bookings that overlapped a
// cancelled event's bookings and no longer overlap any live booking.
func (m *EventManager) releaseBookings(ctx context.Context, eventID uuid.UUID) error {
	sctx, cancel := m.bound(ctx)
	held, err := m.bookings.ListByEvent(sctx, eventID)
	cancel()
	if err != nil {
		return storeErr("list bookings", err)
	}

	for _, b := range held {
		if !b.Conflict {
			continue
		}
		if err := m.releaseResource(ctx, b); err != nil {
			return err
		}
	}
	return nil
}

func (m *EventManager) releaseResource(ctx context.Context, cancelled model.Booking) error {
	unlock := m.locks.Lock("resource:" + cancelled.Resource)
	defer unlock()

	sctx, cancel := m.bound(ctx)
	others, err := m.bookings.ListOverlapping(sctx, cancelled.Resource, cancelled.StartsAt, cancelled.EndsAt)
	cancel()
	if err != nil {
		return storeErr("list overlapping bookings", err)
	}

	var released []uuid.UUID
	for _, other := range others {
		if !other.Conflict {
			continue
		}
		sctx, cancel := m.bound(ctx)
		rivals, err := m.bookings.ListOverlapping(sctx, other.Resource, other.StartsAt, other.EndsAt)
		cancel()
		if err != nil {
			return storeErr("list overlapping bookings", err)
		}
		// other always overlaps itself
		if len(rivals) <= 1 {
			released = append(released, other.ID)
		}
	}
	if len(released) == 0 {
		return nil
	}

	sctx, cancel = m.bound(ctx)
	defer cancel()
	return storeErr("release bookings", m.bookings.SetConflict(sctx, released, false))
}

func (m *EventManager) Archive(ctx context.Context, id uuid.UUID, actorID string) (*model.Event, error) {
	return m.move(ctx, id, actorID, model.EventArchived, nil, model.EventCompleted)
}

func (m *EventManager) move(ctx context.Context, id uuid.UUID, actorID string, to model.EventStatus,
	gate func(context.Context, *model.Event) error, from ...model.EventStatus) (*model.Event, error) {
	unlock := m.locks.Lock(id.String())
	defer unlock()

	for attempt := 0; attempt < maxWriteAttempts; attempt++ {
		event, err := m.GetEvent(ctx, id)
		if err != nil {
			return nil, err
		}
		if event.Status.Terminal() {
			return nil, readOnly(event, "")
		}
		if !containsStatus(from, event.Status) {
			return nil, &IllegalTransitionError{
				Entity: model.EntityEvent,
				ID:     id.String(),
				From:   string(event.Status),
				To:     string(to),
			}
		}
		if gate != nil {
			if err := gate(ctx, event); err != nil {
				return nil, err
			}
		}

		prev := event.Status
		event.Status = to
		event.UpdatedAt = m.now()
		err = m.update(ctx, event)
		if errors.Is(err, repository.ErrStaleRecord) {
			continue
		}
		if err != nil {
			return nil, err
		}
		m.record(ctx, id, model.AuditTransition, prev, to, actorID, "")
		return event, nil
	}
	return nil, &StoreUnavailableError{Op: "update event", Err: repository.ErrStaleRecord}
}

func (m *EventManager) conflictGate(ctx context.Context, event *model.Event) error {
	sctx, cancel := m.bound(ctx)
	bookings, err := m.bookings.ListByEvent(sctx, event.ID)
	cancel()
	if err != nil {
		return storeErr("list bookings", err)
	}
	linked, err := m.linkedTasks(ctx, event.ID)
	if err != nil {
		return err
	}

	var conflicts []Conflict
	for _, b := range bookings {
		if b.Conflict {
			conflicts = append(conflicts, Conflict{
				Kind:     "booking",
				ID:       b.ID.String(),
				Resource: b.Resource,
				Detail: fmt.Sprintf("%s overlaps another booking between %s and %s",
					b.Resource, b.StartsAt.Format(time.RFC3339), b.EndsAt.Format(time.RFC3339)),
			})
		}
	}
	for _, t := range linked {
		if t.Conflict && t.Status.IsOpen() {
			conflicts = append(conflicts, Conflict{
				Kind:   "task",
				ID:     t.ID.String(),
				Detail: t.Title,
			})
		}
	}
	if len(conflicts) > 0 {
		return &ConflictError{EventID: event.ID, Conflicts: conflicts}
	}
	return nil
}

// UpdateEvent applies patch. Archived and cancelled events reject every
// change; from Published onward the dates and venue are frozen.
func (m *EventManager) UpdateEvent(ctx context.Context, id uuid.UUID, patch EventPatch, actorID string) (*model.Event, error) {
	unlock := m.locks.Lock(id.String())
	defer unlock()

	for attempt := 0; attempt < maxWriteAttempts; attempt++ {
		event, err := m.GetEvent(ctx, id)
		if err != nil {
			return nil, err
		}
		if err := m.applyPatch(event, patch); err != nil {
			return nil, err
		}
		event.UpdatedAt = m.now()
		err = m.update(ctx, event)
		if errors.Is(err, repository.ErrStaleRecord) {
			continue
		}
		if err != nil {
			return nil, err
		}
		m.record(ctx, id, model.AuditUpdated, event.Status, event.Status, actorID, "fields updated")
		return event, nil
	}
	return nil, &StoreUnavailableError{Op: "update event", Err: repository.ErrStaleRecord}
}

func (m *EventManager) applyPatch(event *model.Event, patch EventPatch) error {
	if event.Status.Terminal() {
		return readOnly(event, "")
	}
	frozen := event.Status != model.EventDraft && event.Status != model.EventScheduled

	if patch.Venue != nil && strings.TrimSpace(*patch.Venue) != event.Venue {
		if frozen {
			return readOnly(event, "venue")
		}
		event.Venue = strings.TrimSpace(*patch.Venue)
	}
	if patch.StartDate != nil {
		start := Day(*patch.StartDate, m.location).UTC()
		if !start.Equal(event.StartDate) {
			if frozen {
				return readOnly(event, "start_date")
			}
			event.StartDate = start
		}
	}
	if patch.EndDate != nil {
		end := Day(*patch.EndDate, m.location).UTC()
		if !end.Equal(event.EndDate) {
			if frozen {
				return readOnly(event, "end_date")
			}
			event.EndDate = end
		}
	}
	if event.EndDate.Before(event.StartDate) {
		return invalid("end_date", "must not be before start_date")
	}
	if patch.Name != nil {
		if strings.TrimSpace(*patch.Name) == "" {
			return invalid("name", "must not be empty")
		}
		event.Name = strings.TrimSpace(*patch.Name)
	}
	if patch.Description != nil {
		event.Description = *patch.Description
	}
	if patch.EstimatedBudget != nil {
		if *patch.EstimatedBudget < 0 {
			return invalid("estimated_budget", "must not be negative")
		}
		event.EstimatedBudget = *patch.EstimatedBudget
	}
	return nil
}

// AddBooking reserves a resource for the event. The new booking and every
// booking it overlaps are flagged as conflicting.
func (m *EventManager) AddBooking(ctx context.Context, eventID uuid.UUID, in BookingInput, actorID string) (*model.Booking, error) {
	resource := strings.TrimSpace(in.Resource)
	if resource == "" {
		return nil, invalid("resource", "is required")
	}
	if in.StartsAt.IsZero() {
		return nil, invalid("starts_at", "is required")
	}
	if !in.EndsAt.After(in.StartsAt) {
		return nil, invalid("ends_at", "must be after starts_at")
	}

	// The event lock keeps a concurrent Cancel or Archive from landing
	// between the status check and the insert.
	unlockEvent := m.locks.Lock(eventID.String())
	defer unlockEvent()

	event, err := m.GetEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if event.Status.Terminal() {
		return nil, readOnly(event, "")
	}

	unlockResource := m.locks.Lock("resource:" + resource)
	defer unlockResource()

	sctx, cancel := m.bound(ctx)
	overlapping, err := m.bookings.ListOverlapping(sctx, resource, in.StartsAt.UTC(), in.EndsAt.UTC())
	cancel()
	if err != nil {
		return nil, storeErr("list overlapping bookings", err)
	}

	booking := &model.Booking{
		ID:        uuid.New(),
		EventID:   eventID,
		Resource:  resource,
		StartsAt:  in.StartsAt.UTC(),
		EndsAt:    in.EndsAt.UTC(),
		Conflict:  len(overlapping) > 0,
		Note:      in.Note,
		CreatedAt: m.now(),
	}
	sctx, cancel = m.bound(ctx)
	err = m.bookings.Create(sctx, booking)
	cancel()
	if err != nil {
		return nil, storeErr("create booking", err)
	}

	if len(overlapping) > 0 {
		ids := make([]uuid.UUID, 0, len(overlapping))
		for _, b := range overlapping {
			ids = append(ids, b.ID)
		}
		sctx, cancel = m.bound(ctx)
		err = m.bookings.SetConflict(sctx, ids, true)
		cancel()
		if err != nil {
			return booking, storeErr("flag overlapping bookings", err)
		}
	}
	m.record(ctx, eventID, model.AuditUpdated, event.Status, event.Status, actorID,
		fmt.Sprintf("booked %s", resource))
	return booking, nil
}

// ResolveBooking clears the conflict flag on one of the event's bookings
// once the clash has been sorted out.
func (m *EventManager) ResolveBooking(ctx context.Context, eventID, bookingID uuid.UUID, actorID string) (*model.Booking, error) {
	event, err := m.GetEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if event.Status.Terminal() {
		return nil, readOnly(event, "")
	}

	sctx, cancel := m.bound(ctx)
	booking, err := m.bookings.GetByID(sctx, bookingID)
	cancel()
	if err != nil {
		return nil, storeErr("get booking", err)
	}
	if booking.EventID != eventID {
		return nil, repository.ErrBookingNotFound
	}
	if !booking.Conflict {
		return booking, nil
	}

	sctx, cancel = m.bound(ctx)
	err = m.bookings.SetConflict(sctx, []uuid.UUID{bookingID}, false)
	cancel()
	if err != nil {
		return nil, storeErr("resolve booking", err)
	}
	booking.Conflict = false
	m.record(ctx, eventID, model.AuditUpdated, event.Status, event.Status, actorID,
		fmt.Sprintf("resolved booking %s", bookingID))
	return booking, nil
}

func (m *EventManager) ListBookings(ctx context.Context, eventID uuid.UUID) ([]model.Booking, error) {
	if _, err := m.GetEvent(ctx, eventID); err != nil {
		return nil, err
	}
	sctx, cancel := m.bound(ctx)
	defer cancel()
	bookings, err := m.bookings.ListByEvent(sctx, eventID)
	return bookings, storeErr("list bookings", err)
}

// Refresh writes the evaluated status when it differs from the stored one.
// Entering Completed with open linked tasks yields a Warning; the event
// completes regardless.
func (m *EventManager) Refresh(ctx context.Context, id uuid.UUID, now time.Time) (*model.Event, *Warning, error) {
	unlock := m.locks.Lock(id.String())
	defer unlock()

	for attempt := 0; attempt < maxWriteAttempts; attempt++ {
		event, err := m.GetEvent(ctx, id)
		if err != nil {
			return nil, nil, err
		}
		next := Evaluate(event, now, m.location)
		if next == event.Status {
			return event, nil, nil
		}

		prev := event.Status
		event.Status = next
		event.UpdatedAt = m.now()
		err = m.update(ctx, event)
		if errors.Is(err, repository.ErrStaleRecord) {
			continue
		}
		if err != nil {
			return nil, nil, err
		}
		m.record(ctx, id, model.AuditAutoTransition, prev, next, model.SystemActorID, "")

		if next != model.EventCompleted {
			return event, nil, nil
		}
		open, err := m.openLinkedTaskIDs(ctx, id)
		if err != nil {
			// The transition is already stored; report the unchecked tasks
			// instead of failing the refresh.
			return event, &Warning{
				Message: fmt.Sprintf("event %q completed; open linked tasks could not be checked: %v", event.Name, err),
			}, nil
		}
		if len(open) == 0 {
			return event, nil, nil
		}
		return event, &Warning{
			Message:     fmt.Sprintf("event %q completed with %d open linked tasks", event.Name, len(open)),
			OpenTaskIDs: open,
		}, nil
	}
	return nil, nil, &StoreUnavailableError{Op: "update event", Err: repository.ErrStaleRecord}
}

// RefreshAll refreshes every auto-advancing event. Store failures are
// logged per event and the pass continues.
func (m *EventManager) RefreshAll(ctx context.Context, now time.Time) (RefreshReport, error) {
	events, err := m.ListEvents(ctx, model.EventScheduled, model.EventPublished, model.EventOngoing)
	if err != nil {
		return RefreshReport{}, err
	}

	report := RefreshReport{Events: len(events)}
	for i := range events {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		before := events[i].Status
		event, warning, err := m.Refresh(ctx, events[i].ID, now)
		if err != nil {
			report.Failed++
			log.Printf("⚠️ event %s not refreshed: %v\n", events[i].ID, err)
			continue
		}
		if event.Status != before {
			report.Advanced++
			log.Printf("📅 event %s: %s -> %s\n", event.ID, before, event.Status)
		}
		if warning != nil {
			report.Warnings++
			log.Printf("⚠️ %s\n", warning.Message)
		}
	}
	return report, nil
}

// GetEventStatus evaluates the status at the current clock without writing.
func (m *EventManager) GetEventStatus(ctx context.Context, id uuid.UUID) (*EventStatusView, error) {
	event, err := m.GetEvent(ctx, id)
	if err != nil {
		return nil, err
	}
	linked, err := m.linkedTasks(ctx, id)
	if err != nil {
		return nil, err
	}
	view := &EventStatusView{
		Event:         event,
		Status:        Evaluate(event, m.now(), m.location),
		LinkedTaskIDs: make([]uuid.UUID, 0, len(linked)),
		OpenTaskIDs:   []uuid.UUID{},
	}
	for _, t := range linked {
		view.LinkedTaskIDs = append(view.LinkedTaskIDs, t.ID)
		if t.Status.IsOpen() {
			view.OpenTaskIDs = append(view.OpenTaskIDs, t.ID)
		}
	}
	return view, nil
}

func (m *EventManager) linkedTasks(ctx context.Context, id uuid.UUID) ([]model.Task, error) {
	sctx, cancel := m.bound(ctx)
	defer cancel()
	tasks, err := m.tasks.ListByLinkedEntity(sctx, id.String())
	return tasks, storeErr("list linked tasks", err)
}

func (m *EventManager) openLinkedTaskIDs(ctx context.Context, id uuid.UUID) ([]uuid.UUID, error) {
	linked, err := m.linkedTasks(ctx, id)
	if err != nil {
		return nil, err
	}
	var open []uuid.UUID
	for _, t := range linked {
		if t.Status.IsOpen() {
			open = append(open, t.ID)
		}
	}
	return open, nil
}

func (m *EventManager) update(ctx context.Context, event *model.Event) error {
	sctx, cancel := m.bound(ctx)
	defer cancel()
	err := m.events.Update(sctx, event)
	if errors.Is(err, repository.ErrStaleRecord) {
		return err
	}
	return storeErr("update event", err)
}

func (m *EventManager) record(ctx context.Context, id uuid.UUID, kind model.AuditKind, from, to model.EventStatus, actorID, note string) {
	appendAudit(ctx, m.settings, m.audit, &model.AuditEntry{
		EntityType: model.EntityEvent,
		EntityID:   id.String(),
		Kind:       kind,
		FromState:  string(from),
		ToState:    string(to),
		ActorID:    actorID,
		Note:       note,
	})
}

func readOnly(event *model.Event, field string) *ReadOnlyError {
	return &ReadOnlyError{
		Entity: model.EntityEvent,
		ID:     event.ID.String(),
		Field:  field,
		Status: string(event.Status),
	}
}

func containsStatus(statuses []model.EventStatus, s model.EventStatus) bool {
	for _, candidate := range statuses {
		if candidate == s {
			return true
		}
	}
	return false
}
