package repository

import (
	"time"

	"templeops/internal/model"
)

// TaskFilter narrows task listings. Zero values mean "any".
type TaskFilter struct {
	Statuses       []model.TaskStatus
	SourceModule   model.SourceModule
	LinkedEntityID string
	AssignedTo     string
	DueBefore      *time.Time
	Limit          int
	Offset         int
}

// Matches applies the filter to a single task in memory.
func (f TaskFilter) Matches(t *model.Task) bool {
	if len(f.Statuses) > 0 {
		found := false
		for _, s := range f.Statuses {
			if t.Status == s {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.SourceModule != "" && t.SourceModule != f.SourceModule {
		return false
	}
	if f.LinkedEntityID != "" && !t.IsLinkedTo(f.LinkedEntityID) {
		return false
	}
	if f.AssignedTo != "" && t.AssignedTo != f.AssignedTo {
		return false
	}
	if f.DueBefore != nil && !t.DueAt.Before(*f.DueBefore) {
		return false
	}
	return true
}
