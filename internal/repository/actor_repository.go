package repository

import (
	"context"

	"gorm.io/gorm"

	"templeops/internal/model"
)

type ActorRepository struct {
	db *gorm.DB
}

func NewActorRepository(db *gorm.DB) *ActorRepository {
	return &ActorRepository{db: db}
}

func (r *ActorRepository) Create(ctx context.Context, actor *model.Actor) error {
	return translate(r.db.WithContext(ctx).Create(actor).Error, ErrActorNotFound)
}

func (r *ActorRepository) GetByID(ctx context.Context, id string) (*model.Actor, error) {
	var actor model.Actor
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&actor).Error; err != nil {
		return nil, translate(err, ErrActorNotFound)
	}
	return &actor, nil
}
