package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"templeops/internal/clock"
	"templeops/internal/model"
	"templeops/internal/repository/memory"
	"templeops/internal/service"
)

var (
	admin      = &model.Actor{ID: "admin-1", Name: "Head Trustee", Role: model.RoleAdmin}
	manager    = &model.Actor{ID: "manager-1", Name: "Temple Manager", Role: model.RoleManager}
	priest     = &model.Actor{ID: "priest-1", Name: "Archaka", Role: model.RolePriest}
	keeper     = &model.Actor{ID: "keeper-1", Name: "Store Keeper", Role: model.RoleStoreKeeper}
	volunteer  = &model.Actor{ID: "vol-1", Name: "Volunteer One", Role: model.RoleVolunteer}
	volunteer2 = &model.Actor{ID: "vol-2", Name: "Volunteer Two", Role: model.RoleVolunteer}
	allActors  = []*model.Actor{admin, manager, priest, keeper, volunteer, volunteer2}
)

type fixture struct {
	stores   *memory.Stores
	clock    *clock.Manual
	tasks    *service.TaskManager
	expander *service.Expander
	events   *service.EventManager
	ingestor *service.Ingestor
}

func newFixture(t *testing.T, now time.Time) *fixture {
	t.Helper()
	stores := memory.New()
	for _, a := range allActors {
		require.NoError(t, stores.Actors.Create(context.Background(), a))
	}
	clk := clock.NewManual(now)
	opts := []service.Option{
		service.WithClock(clk),
		service.WithLocation(time.UTC),
		service.WithStoreTimeout(time.Second),
		service.WithWorkers(4),
	}
	tasks := service.NewTaskManager(stores.Tasks, stores.Audit, stores.Actors, opts...)
	return &fixture{
		stores:   stores,
		clock:    clk,
		tasks:    tasks,
		expander: service.NewExpander(stores.Templates, tasks, stores.Audit, stores.Actors, opts...),
		events:   service.NewEventManager(stores.Events, stores.Bookings, stores.Tasks, stores.Audit, opts...),
		ingestor: service.NewIngestor(service.NewDefaultRegistry(nil), tasks),
	}
}

func scopePtr(s model.VisibilityScope) *model.VisibilityScope { return &s }

func strPtr(s string) *string { return &s }

func manualTask(title string, due time.Time) service.TaskInput {
	return service.TaskInput{
		Title:        title,
		SourceModule: model.SourceManual,
		AssignedTo:   priest.ID,
		AssignedBy:   manager.ID,
		DueAt:        due,
		Priority:     model.PriorityMedium,
		Visibility:   scopePtr(model.PublicScope()),
	}
}

func (f *fixture) createTask(t *testing.T, in service.TaskInput) *model.Task {
	t.Helper()
	task, err := f.tasks.CreateTask(context.Background(), in)
	require.NoError(t, err)
	return task
}

func (f *fixture) audit(t *testing.T, entity model.EntityType, id string) []model.AuditEntry {
	t.Helper()
	entries, err := f.stores.Audit.ListForEntity(context.Background(), entity, id)
	require.NoError(t, err)
	return entries
}

func countKind(entries []model.AuditEntry, kind model.AuditKind) int {
	n := 0
	for _, e := range entries {
		if e.Kind == kind {
			n++
		}
	}
	return n
}
