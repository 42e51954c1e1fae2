package repository

import (
	"context"

	"gorm.io/gorm"

	"templeops/internal/model"
)

type AuditRepository struct {
	db *gorm.DB
}

func NewAuditRepository(db *gorm.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

// Append records an audit entry. A repeated request id yields ErrDuplicateKey.
func (r *AuditRepository) Append(ctx context.Context, entry *model.AuditEntry) error {
	return translate(r.db.WithContext(ctx).Create(entry).Error, ErrAuditNotFound)
}

func (r *AuditRepository) FindByRequestID(ctx context.Context, requestID string) (*model.AuditEntry, error) {
	var entry model.AuditEntry
	if err := r.db.WithContext(ctx).First(&entry, "request_id = ?", requestID).Error; err != nil {
		return nil, translate(err, ErrAuditNotFound)
	}
	return &entry, nil
}

// ListForEntity returns the history of one entity, oldest first
func (r *AuditRepository) ListForEntity(ctx context.Context, entityType model.EntityType, entityID string) ([]model.AuditEntry, error) {
	var entries []model.AuditEntry
	err := r.db.WithContext(ctx).
		Where("entity_type = ? AND entity_id = ?", entityType, entityID).
		Order("at").
		Find(&entries).Error
	return entries, translate(err, ErrAuditNotFound)
}
