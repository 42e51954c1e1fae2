package repository

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"templeops/internal/model"
)

type TemplateRepository struct {
	db *gorm.DB
}

func NewTemplateRepository(db *gorm.DB) *TemplateRepository {
	return &TemplateRepository{db: db}
}

func (r *TemplateRepository) Create(ctx context.Context, tmpl *model.RecurringTemplate) error {
	return translate(r.db.WithContext(ctx).Create(tmpl).Error, ErrTemplateNotFound)
}

func (r *TemplateRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.RecurringTemplate, error) {
	var tmpl model.RecurringTemplate
	if err := r.db.WithContext(ctx).First(&tmpl, "id = ?", id).Error; err != nil {
		return nil, translate(err, ErrTemplateNotFound)
	}
	return &tmpl, nil
}

// Update writes the name and activation state if the version is unchanged.
func (r *TemplateRepository) Update(ctx context.Context, tmpl *model.RecurringTemplate) error {
	result := r.db.WithContext(ctx).Model(&model.RecurringTemplate{}).
		Where("id = ? AND version = ?", tmpl.ID, tmpl.Version).
		Updates(map[string]interface{}{
			"name":         tmpl.Name,
			"active":       tmpl.Active,
			"active_since": tmpl.ActiveSince,
			"updated_at":   tmpl.UpdatedAt,
			"version":      tmpl.Version + 1,
		})
	if result.Error != nil {
		return translate(result.Error, ErrTemplateNotFound)
	}
	if result.RowsAffected == 0 {
		return ErrStaleRecord
	}
	tmpl.Version++
	return nil
}

func (r *TemplateRepository) List(ctx context.Context) ([]model.RecurringTemplate, error) {
	var tmpls []model.RecurringTemplate
	err := r.db.WithContext(ctx).Order("created_at").Order("id").Find(&tmpls).Error
	return tmpls, translate(err, ErrTemplateNotFound)
}

// ListActive retrieves templates that still generate tasks
func (r *TemplateRepository) ListActive(ctx context.Context) ([]model.RecurringTemplate, error) {
	var tmpls []model.RecurringTemplate
	err := r.db.WithContext(ctx).Where("active = ?", true).Order("created_at").Order("id").Find(&tmpls).Error
	return tmpls, translate(err, ErrTemplateNotFound)
}
