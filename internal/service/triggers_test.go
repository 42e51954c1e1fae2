package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"templeops/internal/config"
	"templeops/internal/model"
	"templeops/internal/service"
)

func TestIngest_BuiltinRules(t *testing.T) {
	eventID := "6f1c8a44-2b0e-4d51-9a7e-0c4f3b2a1d90"
	tests := []struct {
		name       string
		source     model.SourceModule
		payload    string
		assignee   string
		linked     string
		priority   model.Priority
		visibility model.VisibilityScope
		due        time.Time
		conflict   bool
	}{
		{
			name:   "freelancer assignment",
			source: model.SourceFreelancer,
			payload: `{"assignment_id":"asg-1","freelancer_id":"fl-9","service":"nadaswaram",
				"coordinator":"manager-1","assigned_by":"admin-1","starts_at":"2024-03-10T06:00:00Z"}`,
			assignee:   manager.ID,
			linked:     "asg-1",
			priority:   model.PriorityHigh,
			visibility: model.RoleScope(model.RoleManager),
			due:        time.Date(2024, 3, 8, 6, 0, 0, 0, time.UTC),
		},
		{
			name:   "stock shortfall",
			source: model.SourceInventory,
			payload: `{"item_id":"ghee","item_name":"Ghee","on_hand":2,"reorder_level":10,"unit":"kg",
				"store_keeper":"keeper-1","reported_by":"system","purchase_order_id":"po-3"}`,
			assignee:   keeper.ID,
			linked:     "po-3",
			priority:   model.PriorityHigh,
			visibility: model.RoleScope(model.RoleStoreKeeper),
			due:        t0.Add(24 * time.Hour),
		},
		{
			name:   "volunteer allocation",
			source: model.SourceVolunteer,
			payload: `{"allocation_id":"al-1","volunteer_id":"vol-1","duty":"Queue management",
				"shift_start":"2024-03-02T05:00:00Z","shift_end":"2024-03-02T09:00:00Z",
				"allocated_by":"manager-1","event_id":"` + eventID + `"}`,
			assignee:   volunteer.ID,
			linked:     eventID,
			priority:   model.PriorityMedium,
			visibility: model.AssigneeOnlyScope(),
			due:        time.Date(2024, 3, 2, 5, 0, 0, 0, time.UTC),
		},
		{
			name:   "event checklist with override",
			source: model.SourceEvent,
			payload: `{"event_id":"` + eventID + `","item_id":"flowers","item":"Order garlands",
				"owner":"priest-1","requested_by":"manager-1","priority":"critical","conflict":true}`,
			assignee:   priest.ID,
			linked:     eventID,
			priority:   model.PriorityCritical,
			visibility: model.PublicScope(),
			due:        t0.Add(24 * time.Hour),
			conflict:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Arrange
			f := newFixture(t, t0)

			// Act
			task, err := f.ingestor.Ingest(context.Background(), tt.source, []byte(tt.payload))

			// Assert
			require.NoError(t, err)
			assert.Equal(t, tt.source, task.SourceModule)
			assert.Equal(t, tt.assignee, task.AssignedTo)
			assert.True(t, task.IsLinkedTo(tt.linked))
			assert.Equal(t, tt.priority, task.Priority)
			assert.Equal(t, tt.visibility, task.Visibility)
			assert.True(t, tt.due.Equal(task.DueAt), "due %s", task.DueAt)
			assert.Equal(t, tt.conflict, task.Conflict)
			assert.Equal(t, model.TaskOpen, task.Status)
		})
	}
}

func TestIngest_RepeatedPayloadIsIdempotent(t *testing.T) {
	// Arrange
	f := newFixture(t, t0)
	payload := []byte(`{"assignment_id":"asg-1","freelancer_id":"fl-9","service":"catering",
		"coordinator":"manager-1","assigned_by":"admin-1","starts_at":"2024-03-10T06:00:00Z"}`)

	// Act
	first, err1 := f.ingestor.Ingest(context.Background(), model.SourceFreelancer, payload)
	second, err2 := f.ingestor.Ingest(context.Background(), model.SourceFreelancer, payload)

	// Assert
	require.NoError(t, err1)
	require.NoError(t, err2)
	assert.Equal(t, first.ID, second.ID)
}

func TestIngest_Rejections(t *testing.T) {
	tests := []struct {
		name    string
		source  model.SourceModule
		payload string
		field   string
	}{
		{"no rule", model.SourceManual, `{}`, "source_module"},
		{"malformed json", model.SourceInventory, `{"item_id":`, "payload"},
		{"unknown field", model.SourceInventory, `{"item_id":"x","colour":"red"}`, "payload"},
		{"missing coordinator", model.SourceFreelancer,
			`{"assignment_id":"a","freelancer_id":"f","service":"s","assigned_by":"admin-1","starts_at":"2024-03-10T06:00:00Z"}`,
			"coordinator"},
		{"not a shortfall", model.SourceInventory,
			`{"item_id":"ghee","item_name":"Ghee","on_hand":12,"reorder_level":10,"store_keeper":"keeper-1","reported_by":"x"}`,
			"reorder_level"},
		{"shift ends before start", model.SourceVolunteer,
			`{"allocation_id":"a","volunteer_id":"vol-1","duty":"d","shift_start":"2024-03-02T09:00:00Z",
			"shift_end":"2024-03-02T05:00:00Z","allocated_by":"manager-1"}`,
			"shift_end"},
		{"event id not a uuid", model.SourceEvent,
			`{"event_id":"festival","item_id":"i","item":"x","owner":"priest-1","requested_by":"manager-1"}`,
			"event_id"},
		{"bad priority", model.SourceEvent,
			`{"event_id":"6f1c8a44-2b0e-4d51-9a7e-0c4f3b2a1d90","item_id":"i","item":"x","owner":"priest-1","requested_by":"m","priority":"urgent"}`,
			"priority"},
		{"unknown owner", model.SourceEvent,
			`{"event_id":"6f1c8a44-2b0e-4d51-9a7e-0c4f3b2a1d90","item_id":"i","item":"x","owner":"ghost","requested_by":"m"}`,
			"assigned_to"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Arrange
			f := newFixture(t, t0)

			// Act
			task, err := f.ingestor.Ingest(context.Background(), tt.source, []byte(tt.payload))

			// Assert
			var verr *service.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.field, verr.Field)
			assert.Nil(t, task)
		})
	}
}

func TestRegistry_CustomRuleAndDefaults(t *testing.T) {
	// Arrange
	defaults := config.BuiltinTriggerDefaults()
	defaults[model.SourceManual] = config.TriggerDefault{
		Priority:   model.PriorityLow,
		Visibility: model.PublicScope(),
		LeadTime:   2 * time.Hour,
	}
	registry := service.NewRegistry(defaults)
	registry.Register(model.SourceManual, func(payload []byte, def config.TriggerDefault, now time.Time) (service.TaskInput, error) {
		scope := def.Visibility
		return service.TaskInput{
			Title:      string(payload),
			DueAt:      now.Add(def.LeadTime),
			Priority:   def.Priority,
			Visibility: &scope,
		}, nil
	})

	// Act
	in, err := registry.Resolve(model.SourceManual, []byte("Sweep steps"), t0)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, model.SourceManual, in.SourceModule, "source is stamped by the registry")
	assert.Equal(t, "Sweep steps", in.Title)
	assert.Equal(t, t0.Add(2*time.Hour), in.DueAt)
	assert.Equal(t, []model.SourceModule{model.SourceManual}, registry.Sources())
}

func TestDefaultRegistry_Sources(t *testing.T) {
	// Act
	sources := service.NewDefaultRegistry(nil).Sources()

	// Assert
	assert.Equal(t, []model.SourceModule{
		model.SourceEvent, model.SourceFreelancer, model.SourceInventory, model.SourceVolunteer,
	}, sources)
}
