package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

type TaskStatus string

const (
	TaskOpen       TaskStatus = "open"
	TaskInProgress TaskStatus = "in_progress"
	TaskBlocked    TaskStatus = "blocked"
	TaskCompleted  TaskStatus = "completed"
)

// OverdueLabel is the display label for an open task past its due time.
// It is never stored.
const OverdueLabel = "overdue"

func (s TaskStatus) Valid() bool {
	switch s {
	case TaskOpen, TaskInProgress, TaskBlocked, TaskCompleted:
		return true
	}
	return false
}

// IsOpen reports whether the status still counts as outstanding work.
func (s TaskStatus) IsOpen() bool {
	return s == TaskOpen || s == TaskInProgress || s == TaskBlocked
}

// OpenTaskStatuses lists the statuses that can be overdue.
func OpenTaskStatuses() []TaskStatus {
	return []TaskStatus{TaskOpen, TaskInProgress, TaskBlocked}
}

// SourceModule names the collaborator that produced a task.
type SourceModule string

const (
	SourceFreelancer        SourceModule = "freelancer"
	SourceInventory         SourceModule = "inventory"
	SourceVolunteer         SourceModule = "volunteer"
	SourceEvent             SourceModule = "event"
	SourceManual            SourceModule = "manual"
	SourceRecurringTemplate SourceModule = "recurring_template"
)

func (s SourceModule) Valid() bool {
	switch s {
	case SourceFreelancer, SourceInventory, SourceVolunteer, SourceEvent, SourceManual, SourceRecurringTemplate:
		return true
	}
	return false
}

// Priority is ordered: Low < Medium < High < Critical.
type Priority int

const (
	PriorityLow Priority = iota + 1
	PriorityMedium
	PriorityHigh
	PriorityCritical
)

var priorityNames = map[Priority]string{
	PriorityLow:      "low",
	PriorityMedium:   "medium",
	PriorityHigh:     "high",
	PriorityCritical: "critical",
}

func (p Priority) Valid() bool {
	_, ok := priorityNames[p]
	return ok
}

func (p Priority) String() string {
	if name, ok := priorityNames[p]; ok {
		return name
	}
	return fmt.Sprintf("priority(%d)", int(p))
}

// ParsePriority accepts the lower-case names and their numeric ranks.
func ParsePriority(s string) (Priority, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "low", "1":
		return PriorityLow, nil
	case "medium", "2":
		return PriorityMedium, nil
	case "high", "3":
		return PriorityHigh, nil
	case "critical", "4":
		return PriorityCritical, nil
	}
	return 0, fmt.Errorf("unknown priority %q", s)
}

func (p Priority) MarshalText() ([]byte, error) {
	if !p.Valid() {
		return nil, fmt.Errorf("invalid priority %d", int(p))
	}
	return []byte(p.String()), nil
}

func (p *Priority) UnmarshalText(text []byte) error {
	parsed, err := ParsePriority(string(text))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

type VisibilityKind string

const (
	VisibilityPublic         VisibilityKind = "public"
	VisibilityRoleRestricted VisibilityKind = "role_restricted"
	VisibilityAssigneeOnly   VisibilityKind = "assignee_only"
)

// VisibilityScope decides which actors may see a task. Role is only
// meaningful for VisibilityRoleRestricted.
type VisibilityScope struct {
	Kind VisibilityKind `gorm:"not null"`
	Role Role
}

func PublicScope() VisibilityScope { return VisibilityScope{Kind: VisibilityPublic} }

func RoleScope(role Role) VisibilityScope {
	return VisibilityScope{Kind: VisibilityRoleRestricted, Role: role}
}

func AssigneeOnlyScope() VisibilityScope { return VisibilityScope{Kind: VisibilityAssigneeOnly} }

func (v VisibilityScope) String() string {
	if v.Kind == VisibilityRoleRestricted {
		return string(v.Kind) + ":" + string(v.Role)
	}
	return string(v.Kind)
}

type Task struct {
	ID              uuid.UUID       `gorm:"type:uuid;primaryKey"`
	Title           string          `gorm:"not null"`
	Description     string
	SourceModule    SourceModule    `gorm:"not null;index"`
	LinkedEntityID  *string         `gorm:"index"`
	AssignedTo      string          `gorm:"not null;index"`
	AssignedBy      string          `gorm:"not null"`
	DueAt           time.Time       `gorm:"not null;index"`
	Priority        Priority        `gorm:"not null"`
	Status          TaskStatus      `gorm:"not null;index"`
	Visibility      VisibilityScope `gorm:"embedded;embeddedPrefix:visibility_"`
	Conflict        bool            `gorm:"not null"`
	IdempotencyKey  *string         `gorm:"uniqueIndex"`
	TemplateID      *uuid.UUID      `gorm:"type:uuid;index:idx_tasks_template_boundary"`
	Boundary        *time.Time      `gorm:"index:idx_tasks_template_boundary"`
	RescheduledFrom *uuid.UUID      `gorm:"type:uuid;index"`
	Version         int             `gorm:"not null"`
	CreatedAt       time.Time
	UpdatedAt       time.Time
	CompletedAt     *time.Time
}

// IsOverdue is derived from status, due time and now; it is never persisted,
// so completing or unblocking a task clears it without a write.
func (t *Task) IsOverdue(now time.Time) bool {
	return t.Status.IsOpen() && t.DueAt.Before(now)
}

// DisplayStatus returns the overdue label in place of the stored status when
// the task is overdue at now.
func (t *Task) DisplayStatus(now time.Time) string {
	if t.IsOverdue(now) {
		return OverdueLabel
	}
	return string(t.Status)
}

func (t *Task) IsLinkedTo(entityID string) bool {
	return t.LinkedEntityID != nil && *t.LinkedEntityID == entityID
}
