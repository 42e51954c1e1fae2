package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

type CadenceKind string

const (
	CadenceDaily    CadenceKind = "daily"
	CadenceWeekly   CadenceKind = "weekly"
	CadenceInterval CadenceKind = "interval"
)

type Cadence struct {
	Kind            CadenceKind `gorm:"not null"`
	IntervalSeconds int64
}

func DailyCadence() Cadence  { return Cadence{Kind: CadenceDaily} }
func WeeklyCadence() Cadence { return Cadence{Kind: CadenceWeekly} }

func IntervalCadence(every time.Duration) Cadence {
	return Cadence{Kind: CadenceInterval, IntervalSeconds: int64(every / time.Second)}
}

func (c Cadence) Interval() time.Duration {
	return time.Duration(c.IntervalSeconds) * time.Second
}

// TaskBlueprint holds the fields copied into every generated task.
type TaskBlueprint struct {
	Title            string `gorm:"not null"`
	Description      string
	AssignedTo       string          `gorm:"not null"`
	AssignedBy       string          `gorm:"not null"`
	Priority         Priority        `gorm:"not null"`
	Visibility       VisibilityScope `gorm:"embedded;embeddedPrefix:visibility_"`
	DueOffsetSeconds int64
	LinkedEntityID   *string
}

// DueOffset is how long after the boundary a generated task falls due.
func (b TaskBlueprint) DueOffset() time.Duration {
	return time.Duration(b.DueOffsetSeconds) * time.Second
}

type RecurringTemplate struct {
	ID         uuid.UUID     `gorm:"type:uuid;primaryKey"`
	Name       string        `gorm:"not null"`
	Cadence    Cadence       `gorm:"embedded;embeddedPrefix:cadence_"`
	AnchorTime time.Time     `gorm:"not null"`
	Blueprint  TaskBlueprint `gorm:"embedded;embeddedPrefix:blueprint_"`
	Active     bool          `gorm:"not null;index"`
	// ActiveSince is set on reactivation. Boundaries before it fell while the
	// template was inactive and are never generated.
	ActiveSince *time.Time
	CreatedBy  string        `gorm:"not null"`
	Version    int           `gorm:"not null"`
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// IdempotencyKey is the uniqueness key of the task generated for boundary.
func (t *RecurringTemplate) IdempotencyKey(boundary time.Time) string {
	return fmt.Sprintf("template:%s@%s", t.ID, boundary.UTC().Format(time.RFC3339))
}
