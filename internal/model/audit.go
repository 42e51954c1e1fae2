package model

import (
	"time"

	"github.com/google/uuid"
)

type EntityType string

const (
	EntityTask     EntityType = "task"
	EntityEvent    EntityType = "event"
	EntityTemplate EntityType = "template"
)

type AuditKind string

const (
	AuditCreated        AuditKind = "created"
	AuditTransition     AuditKind = "transition"
	AuditReopened       AuditKind = "reopened"
	AuditRescheduled    AuditKind = "rescheduled"
	AuditAutoTransition AuditKind = "auto_transition"
	AuditUpdated        AuditKind = "updated"
)

// AuditEntry is an append-only record of a change. RequestID, when present,
// is unique and lets callers retry a transition without logging it twice.
type AuditEntry struct {
	ID         uuid.UUID  `gorm:"type:uuid;primaryKey"`
	EntityType EntityType `gorm:"not null;index:idx_audit_entity"`
	EntityID   string     `gorm:"not null;index:idx_audit_entity"`
	Kind       AuditKind  `gorm:"not null"`
	FromState  string
	ToState    string
	ActorID    string  `gorm:"not null"`
	RequestID  *string `gorm:"uniqueIndex"`
	Note       string
	At         time.Time `gorm:"not null"`
}
