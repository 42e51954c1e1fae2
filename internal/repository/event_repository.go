package repository

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"templeops/internal/model"
)

type EventRepository struct {
	db *gorm.DB
}

func NewEventRepository(db *gorm.DB) *EventRepository {
	return &EventRepository{db: db}
}

func (r *EventRepository) Create(ctx context.Context, event *model.Event) error {
	return translate(r.db.WithContext(ctx).Create(event).Error, ErrEventNotFound)
}

func (r *EventRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Event, error) {
	var event model.Event
	if err := r.db.WithContext(ctx).First(&event, "id = ?", id).Error; err != nil {
		return nil, translate(err, ErrEventNotFound)
	}
	return &event, nil
}

// Update writes the event if its version is unchanged since it was read.
func (r *EventRepository) Update(ctx context.Context, event *model.Event) error {
	result := r.db.WithContext(ctx).Model(&model.Event{}).
		Where("id = ? AND version = ?", event.ID, event.Version).
		Updates(map[string]interface{}{
			"name":             event.Name,
			"description":      event.Description,
			"venue":            event.Venue,
			"start_date":       event.StartDate,
			"end_date":         event.EndDate,
			"status":           event.Status,
			"estimated_budget": event.EstimatedBudget,
			"updated_at":       event.UpdatedAt,
			"version":          event.Version + 1,
		})
	if result.Error != nil {
		return translate(result.Error, ErrEventNotFound)
	}
	if result.RowsAffected == 0 {
		return ErrStaleRecord
	}
	event.Version++
	return nil
}

// ListByStatus retrieves events in any of the given statuses
func (r *EventRepository) ListByStatus(ctx context.Context, statuses ...model.EventStatus) ([]model.Event, error) {
	query := r.db.WithContext(ctx).Model(&model.Event{})
	if len(statuses) > 0 {
		query = query.Where("status IN ?", statuses)
	}
	var events []model.Event
	if err := query.Order("start_date").Order("id").Find(&events).Error; err != nil {
		return nil, translate(err, ErrEventNotFound)
	}
	return events, nil
}
