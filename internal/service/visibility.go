package service

import "templeops/internal/model"

// CanView decides whether actor may see task. Rules are checked in order and
// the first match wins. A scope kind this code does not know is admin-only.
func CanView(actor *model.Actor, task *model.Task) bool {
	if actor == nil || task == nil {
		return false
	}
	if actor.Role == model.RoleAdmin {
		return true
	}
	switch task.Visibility.Kind {
	case model.VisibilityAssigneeOnly:
		return actor.ID == task.AssignedTo
	case model.VisibilityRoleRestricted:
		return actor.Role == task.Visibility.Role
	case model.VisibilityPublic:
		return true
	}
	return false
}

// FilterVisible keeps the tasks actor may see, preserving order.
func FilterVisible(actor *model.Actor, tasks []model.Task) []model.Task {
	visible := make([]model.Task, 0, len(tasks))
	for i := range tasks {
		if CanView(actor, &tasks[i]) {
			visible = append(visible, tasks[i])
		}
	}
	return visible
}
