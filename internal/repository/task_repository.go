package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"templeops/internal/model"
)

type TaskRepository struct {
	db *gorm.DB
}

func NewTaskRepository(db *gorm.DB) *TaskRepository {
	return &TaskRepository{db: db}
}

// Create adds a new task to the database
func (r *TaskRepository) Create(ctx context.Context, task *model.Task) error {
	return translate(r.db.WithContext(ctx).Create(task).Error, ErrTaskNotFound)
}

// GetByID retrieves a task by its ID
func (r *TaskRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Task, error) {
	var task model.Task
	if err := r.db.WithContext(ctx).First(&task, "id = ?", id).Error; err != nil {
		return nil, translate(err, ErrTaskNotFound)
	}
	return &task, nil
}

// GetByIdempotencyKey retrieves the task created under key
func (r *TaskRepository) GetByIdempotencyKey(ctx context.Context, key string) (*model.Task, error) {
	var task model.Task
	if err := r.db.WithContext(ctx).First(&task, "idempotency_key = ?", key).Error; err != nil {
		return nil, translate(err, ErrTaskNotFound)
	}
	return &task, nil
}

// Update writes the mutable columns of a task if its version is unchanged
// since it was read, then bumps task.Version.
func (r *TaskRepository) Update(ctx context.Context, task *model.Task) error {
	result := r.db.WithContext(ctx).Model(&model.Task{}).
		Where("id = ? AND version = ?", task.ID, task.Version).
		Updates(map[string]interface{}{
			"status":       task.Status,
			"completed_at": task.CompletedAt,
			"conflict":     task.Conflict,
			"updated_at":   task.UpdatedAt,
			"version":      task.Version + 1,
		})
	if result.Error != nil {
		return translate(result.Error, ErrTaskNotFound)
	}
	if result.RowsAffected == 0 {
		return ErrStaleRecord
	}
	task.Version++
	return nil
}

// List retrieves tasks matching the filter ordered by due time
func (r *TaskRepository) List(ctx context.Context, filter TaskFilter) ([]model.Task, error) {
	query := r.db.WithContext(ctx).Model(&model.Task{})
	if len(filter.Statuses) > 0 {
		query = query.Where("status IN ?", filter.Statuses)
	}
	if filter.SourceModule != "" {
		query = query.Where("source_module = ?", filter.SourceModule)
	}
	if filter.LinkedEntityID != "" {
		query = query.Where("linked_entity_id = ?", filter.LinkedEntityID)
	}
	if filter.AssignedTo != "" {
		query = query.Where("assigned_to = ?", filter.AssignedTo)
	}
	if filter.DueBefore != nil {
		query = query.Where("due_at < ?", filter.DueBefore.UTC())
	}
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}
	if filter.Offset > 0 {
		query = query.Offset(filter.Offset)
	}

	var tasks []model.Task
	if err := query.Order("due_at").Order("id").Find(&tasks).Error; err != nil {
		return nil, translate(err, ErrTaskNotFound)
	}
	return tasks, nil
}

// ListByLinkedEntity retrieves every task that references entityID
func (r *TaskRepository) ListByLinkedEntity(ctx context.Context, entityID string) ([]model.Task, error) {
	return r.List(ctx, TaskFilter{LinkedEntityID: entityID})
}

// LastBoundary returns the newest boundary generated for a template, or nil
// when the template has not produced a task yet.
func (r *TaskRepository) LastBoundary(ctx context.Context, templateID uuid.UUID) (*time.Time, error) {
	var tasks []model.Task
	err := r.db.WithContext(ctx).
		Where("template_id = ? AND boundary IS NOT NULL", templateID).
		Order("boundary DESC").
		Limit(1).
		Find(&tasks).Error
	if err != nil {
		return nil, translate(err, ErrTaskNotFound)
	}
	if len(tasks) == 0 {
		return nil, nil
	}
	return tasks[0].Boundary, nil
}
