package handler

import (
	"time"

	"github.com/google/uuid"

	"templeops/internal/model"
	"templeops/internal/service"
)

// TaskResponse представляет задачу в ответе API. Overdue вычисляется на
// момент ответа и не хранится
type TaskResponse struct {
	ID              string     `json:"id"`
	Title           string     `json:"title"`
	Description     string     `json:"description,omitempty"`
	SourceModule    string     `json:"source_module"`
	LinkedEntityID  *string    `json:"linked_entity_id,omitempty"`
	AssignedTo      string     `json:"assigned_to"`
	AssignedBy      string     `json:"assigned_by"`
	DueAt           time.Time  `json:"due_at"`
	Priority        string     `json:"priority"`
	Status          string     `json:"status"`
	DisplayStatus   string     `json:"display_status"`
	Overdue         bool       `json:"overdue"`
	Visibility      string     `json:"visibility"`
	Conflict        bool       `json:"conflict"`
	TemplateID      *uuid.UUID `json:"template_id,omitempty"`
	RescheduledFrom *uuid.UUID `json:"rescheduled_from,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
}

func newTaskResponse(t *model.Task, now time.Time) TaskResponse {
	return TaskResponse{
		ID:              t.ID.String(),
		Title:           t.Title,
		Description:     t.Description,
		SourceModule:    string(t.SourceModule),
		LinkedEntityID:  t.LinkedEntityID,
		AssignedTo:      t.AssignedTo,
		AssignedBy:      t.AssignedBy,
		DueAt:           t.DueAt,
		Priority:        t.Priority.String(),
		Status:          string(t.Status),
		DisplayStatus:   t.DisplayStatus(now),
		Overdue:         t.IsOverdue(now),
		Visibility:      visibilityString(t.Visibility),
		Conflict:        t.Conflict,
		TemplateID:      t.TemplateID,
		RescheduledFrom: t.RescheduledFrom,
		CreatedAt:       t.CreatedAt,
		CompletedAt:     t.CompletedAt,
	}
}

func newTaskResponses(tasks []model.Task, now time.Time) []TaskResponse {
	out := make([]TaskResponse, 0, len(tasks))
	for i := range tasks {
		out = append(out, newTaskResponse(&tasks[i], now))
	}
	return out
}

// visibilityString is the inverse of config.ParseVisibility.
func visibilityString(v model.VisibilityScope) string {
	if v.Kind == model.VisibilityRoleRestricted {
		return "role:" + string(v.Role)
	}
	return string(v.Kind)
}

type AuditResponse struct {
	Kind      string    `json:"kind"`
	From      string    `json:"from,omitempty"`
	To        string    `json:"to,omitempty"`
	ActorID   string    `json:"actor_id"`
	RequestID *string   `json:"request_id,omitempty"`
	Note      string    `json:"note,omitempty"`
	At        time.Time `json:"at"`
}

func newAuditResponses(entries []model.AuditEntry) []AuditResponse {
	out := make([]AuditResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, AuditResponse{
			Kind:      string(e.Kind),
			From:      e.FromState,
			To:        e.ToState,
			ActorID:   e.ActorID,
			RequestID: e.RequestID,
			Note:      e.Note,
			At:        e.At,
		})
	}
	return out
}

// EventResponse представляет мероприятие. Даты отдаются как календарные дни
type EventResponse struct {
	ID              string  `json:"id"`
	Name            string  `json:"name"`
	Description     string  `json:"description,omitempty"`
	Venue           string  `json:"venue,omitempty"`
	StartDate       string  `json:"start_date"`
	EndDate         string  `json:"end_date"`
	Status          string  `json:"status"`
	EstimatedBudget float64 `json:"estimated_budget"`
	CreatedBy       string  `json:"created_by"`
	Version         int     `json:"version"`
}

func newEventResponse(e *model.Event, loc *time.Location) EventResponse {
	return EventResponse{
		ID:              e.ID.String(),
		Name:            e.Name,
		Description:     e.Description,
		Venue:           e.Venue,
		StartDate:       e.StartDate.In(loc).Format(dateLayout),
		EndDate:         e.EndDate.In(loc).Format(dateLayout),
		Status:          string(e.Status),
		EstimatedBudget: e.EstimatedBudget,
		CreatedBy:       e.CreatedBy,
		Version:         e.Version,
	}
}

// EventStatusResponse is the answer of GET /events/:id/status.
type EventStatusResponse struct {
	Event         EventResponse `json:"event"`
	Status        string        `json:"status"`
	LinkedTaskIDs []uuid.UUID   `json:"linked_task_ids"`
	OpenTaskIDs   []uuid.UUID   `json:"open_task_ids"`
}

// RefreshResponse carries the refreshed event and an optional warning.
type RefreshResponse struct {
	Event   EventResponse    `json:"event"`
	Warning *service.Warning `json:"warning,omitempty"`
}

type BookingResponse struct {
	ID       string    `json:"id"`
	EventID  string    `json:"event_id"`
	Resource string    `json:"resource"`
	StartsAt time.Time `json:"starts_at"`
	EndsAt   time.Time `json:"ends_at"`
	Conflict bool      `json:"conflict"`
	Note     string    `json:"note,omitempty"`
}

func newBookingResponse(b *model.Booking) BookingResponse {
	return BookingResponse{
		ID:       b.ID.String(),
		EventID:  b.EventID.String(),
		Resource: b.Resource,
		StartsAt: b.StartsAt,
		EndsAt:   b.EndsAt,
		Conflict: b.Conflict,
		Note:     b.Note,
	}
}

type TemplateResponse struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Cadence    string    `json:"cadence"`
	Interval   string    `json:"interval,omitempty"`
	AnchorTime time.Time `json:"anchor_time"`
	Active     bool      `json:"active"`
	Title      string    `json:"title"`
	AssignedTo string    `json:"assigned_to"`
	Priority   string    `json:"priority"`
	Visibility string    `json:"visibility"`
	DueOffset  string    `json:"due_offset"`
	CreatedBy  string    `json:"created_by"`
}

func newTemplateResponse(t *model.RecurringTemplate) TemplateResponse {
	resp := TemplateResponse{
		ID:         t.ID.String(),
		Name:       t.Name,
		Cadence:    string(t.Cadence.Kind),
		AnchorTime: t.AnchorTime,
		Active:     t.Active,
		Title:      t.Blueprint.Title,
		AssignedTo: t.Blueprint.AssignedTo,
		Priority:   t.Blueprint.Priority.String(),
		Visibility: visibilityString(t.Blueprint.Visibility),
		DueOffset:  t.Blueprint.DueOffset().String(),
		CreatedBy:  t.CreatedBy,
	}
	if t.Cadence.Kind == model.CadenceInterval {
		resp.Interval = t.Cadence.Interval().String()
	}
	return resp
}

type ActorResponse struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Role string `json:"role"`
}
