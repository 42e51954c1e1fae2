package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"templeops/internal/model"
)

type BookingRepository struct {
	db *gorm.DB
}

func NewBookingRepository(db *gorm.DB) *BookingRepository {
	return &BookingRepository{db: db}
}

func (r *BookingRepository) Create(ctx context.Context, booking *model.Booking) error {
	return translate(r.db.WithContext(ctx).Create(booking).Error, ErrBookingNotFound)
}

// ListByEvent retrieves the bookings held for an event
func (r *BookingRepository) ListByEvent(ctx context.Context, eventID uuid.UUID) ([]model.Booking, error) {
	var bookings []model.Booking
	err := r.db.WithContext(ctx).
		Where("event_id = ?", eventID).
		Order("starts_at").
		Find(&bookings).Error
	return bookings, translate(err, nil)
}

// ListOverlapping retrieves bookings of resource intersecting [from, to).
// Bookings held by cancelled events no longer reserve anything.
func (r *BookingRepository) ListOverlapping(ctx context.Context, resource string, from, to time.Time) ([]model.Booking, error) {
	var bookings []model.Booking
	err := r.db.WithContext(ctx).
		Select("bookings.*").
		Joins("LEFT JOIN events ON events.id = bookings.event_id").
		Where("bookings.resource = ? AND bookings.starts_at < ? AND bookings.ends_at > ?", resource, to.UTC(), from.UTC()).
		Where("events.status IS NULL OR events.status <> ?", model.EventCancelled).
		Order("bookings.starts_at").
		Find(&bookings).Error
	return bookings, translate(err, nil)
}

func (r *BookingRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Booking, error) {
	var booking model.Booking
	if err := r.db.WithContext(ctx).First(&booking, "id = ?", id).Error; err != nil {
		return nil, translate(err, ErrBookingNotFound)
	}
	return &booking, nil
}

// SetConflict flags or clears the clash marker on the given bookings
func (r *BookingRepository) SetConflict(ctx context.Context, ids []uuid.UUID, conflict bool) error {
	if len(ids) == 0 {
		return nil
	}
	err := r.db.WithContext(ctx).Model(&model.Booking{}).
		Where("id IN ?", ids).
		Update("conflict", conflict).Error
	return translate(err, nil)
}
