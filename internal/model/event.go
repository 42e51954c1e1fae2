package model

import (
	"time"

	"github.com/google/uuid"
)

type EventStatus string

const (
	EventDraft     EventStatus = "draft"
	EventScheduled EventStatus = "scheduled"
	EventPublished EventStatus = "published"
	EventOngoing   EventStatus = "ongoing"
	EventCompleted EventStatus = "completed"
	EventArchived  EventStatus = "archived"
	EventCancelled EventStatus = "cancelled"
)

// Terminal statuses never change again.
func (s EventStatus) Terminal() bool {
	return s == EventArchived || s == EventCancelled
}

// AutoAdvancing statuses are moved forward by the clock.
func (s EventStatus) AutoAdvancing() bool {
	return s == EventScheduled || s == EventPublished || s == EventOngoing
}

// Event dates are calendar days at local midnight. EndDate is inclusive.
type Event struct {
	ID              uuid.UUID   `gorm:"type:uuid;primaryKey"`
	Name            string      `gorm:"not null"`
	Description     string
	Venue           string
	StartDate       time.Time   `gorm:"not null"`
	EndDate         time.Time   `gorm:"not null"`
	Status          EventStatus `gorm:"not null;index"`
	EstimatedBudget float64
	CreatedBy       string `gorm:"not null"`
	Version         int    `gorm:"not null"`
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// StartsAt is the first instant of the event, midnight of StartDate in loc.
func (e *Event) StartsAt(loc *time.Location) time.Time {
	return midnight(e.StartDate, 0, loc)
}

// EndsAt is the first instant after the event, the midnight in loc following
// EndDate. It is computed on the calendar in loc, so a DST change on the last
// day does not move it.
func (e *Event) EndsAt(loc *time.Location) time.Time {
	return midnight(e.EndDate, 1, loc)
}

func midnight(t time.Time, addDays int, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day()+addDays, 0, 0, 0, 0, loc)
}

// Booking reserves a resource (venue, seva slot, priest) for an event.
type Booking struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	EventID   uuid.UUID `gorm:"type:uuid;not null;index"`
	Resource  string    `gorm:"not null;index"`
	StartsAt  time.Time `gorm:"not null"`
	EndsAt    time.Time `gorm:"not null"`
	Conflict  bool      `gorm:"not null"`
	Note      string
	CreatedAt time.Time
}

// Overlaps reports whether two bookings hold the same resource at the same time.
func (b *Booking) Overlaps(other *Booking) bool {
	if b.ID == other.ID || b.Resource != other.Resource {
		return false
	}
	return b.StartsAt.Before(other.EndsAt) && other.StartsAt.Before(b.EndsAt)
}
