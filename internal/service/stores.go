package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"templeops/internal/model"
	"templeops/internal/repository"
)

// TaskStore is satisfied by repository.TaskRepository and memory.TaskStore.
type TaskStore interface {
	Create(ctx context.Context, task *model.Task) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.Task, error)
	GetByIdempotencyKey(ctx context.Context, key string) (*model.Task, error)
	Update(ctx context.Context, task *model.Task) error
	List(ctx context.Context, filter repository.TaskFilter) ([]model.Task, error)
	ListByLinkedEntity(ctx context.Context, entityID string) ([]model.Task, error)
	LastBoundary(ctx context.Context, templateID uuid.UUID) (*time.Time, error)
}

type EventStore interface {
	Create(ctx context.Context, event *model.Event) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.Event, error)
	Update(ctx context.Context, event *model.Event) error
	ListByStatus(ctx context.Context, statuses ...model.EventStatus) ([]model.Event, error)
}

type BookingStore interface {
	Create(ctx context.Context, booking *model.Booking) error
	ListByEvent(ctx context.Context, eventID uuid.UUID) ([]model.Booking, error)
	ListOverlapping(ctx context.Context, resource string, from, to time.Time) ([]model.Booking, error)
	GetByID(ctx context.Context, id uuid.UUID) (*model.Booking, error)
	SetConflict(ctx context.Context, ids []uuid.UUID, conflict bool) error
}

type TemplateStore interface {
	Create(ctx context.Context, tmpl *model.RecurringTemplate) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.RecurringTemplate, error)
	Update(ctx context.Context, tmpl *model.RecurringTemplate) error
	List(ctx context.Context) ([]model.RecurringTemplate, error)
	ListActive(ctx context.Context) ([]model.RecurringTemplate, error)
}

type AuditStore interface {
	Append(ctx context.Context, entry *model.AuditEntry) error
	FindByRequestID(ctx context.Context, requestID string) (*model.AuditEntry, error)
	ListForEntity(ctx context.Context, entityType model.EntityType, entityID string) ([]model.AuditEntry, error)
}

type ActorStore interface {
	GetByID(ctx context.Context, id string) (*model.Actor, error)
}
