package repository_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"templeops/internal/model"
	"templeops/internal/repository"
)

func newTemplate(name string, active bool, created time.Time) *model.RecurringTemplate {
	return &model.RecurringTemplate{
		ID:         uuid.New(),
		Name:       name,
		Cadence:    model.IntervalCadence(6 * time.Hour),
		AnchorTime: baseTime,
		Blueprint: model.TaskBlueprint{
			Title:            name,
			AssignedTo:       "volunteer-3",
			AssignedBy:       "manager-1",
			Priority:         model.PriorityLow,
			Visibility:       model.AssigneeOnlyScope(),
			DueOffsetSeconds: 3600,
		},
		Active:    active,
		CreatedBy: "manager-1",
		CreatedAt: created,
		UpdatedAt: created,
	}
}

func TestTemplateRepository_RoundTripAndListActive(t *testing.T) {
	// Arrange
	repo := repository.NewTemplateRepository(setupSQLite(t))
	ctx := context.Background()
	lamps := newTemplate("Lamp oil refill", true, baseTime)
	flowers := newTemplate("Flower order", false, baseTime.Add(time.Minute))
	require.NoError(t, repo.Create(ctx, lamps))
	require.NoError(t, repo.Create(ctx, flowers))

	// Act
	got, err := repo.GetByID(ctx, lamps.ID)
	active, activeErr := repo.ListActive(ctx)
	all, allErr := repo.List(ctx)

	// Assert
	require.NoError(t, err)
	require.NoError(t, activeErr)
	require.NoError(t, allErr)
	assert.Equal(t, 6*time.Hour, got.Cadence.Interval())
	assert.Equal(t, time.Hour, got.Blueprint.DueOffset())
	assert.Equal(t, model.AssigneeOnlyScope(), got.Blueprint.Visibility)
	require.Len(t, active, 1)
	assert.Equal(t, lamps.ID, active[0].ID)
	require.Len(t, all, 2)
	assert.Equal(t, lamps.ID, all[0].ID)
}

func TestTemplateRepository_Deactivate(t *testing.T) {
	// Arrange
	repo := repository.NewTemplateRepository(setupSQLite(t))
	ctx := context.Background()
	tmpl := newTemplate("Lamp oil refill", true, baseTime)
	require.NoError(t, repo.Create(ctx, tmpl))
	tmpl.Active = false

	// Act
	err := repo.Update(ctx, tmpl)
	active, listErr := repo.ListActive(ctx)

	// Assert
	require.NoError(t, err)
	require.NoError(t, listErr)
	assert.Empty(t, active)
	assert.Equal(t, 1, tmpl.Version)
}

func TestTemplateRepository_ReactivateStoresActiveSince(t *testing.T) {
	// Arrange
	repo := repository.NewTemplateRepository(setupSQLite(t))
	ctx := context.Background()
	tmpl := newTemplate("Lamp oil refill", false, baseTime)
	require.NoError(t, repo.Create(ctx, tmpl))
	since := baseTime.Add(72 * time.Hour)
	tmpl.Active = true
	tmpl.ActiveSince = &since

	// Act
	err := repo.Update(ctx, tmpl)
	got, getErr := repo.GetByID(ctx, tmpl.ID)

	// Assert
	require.NoError(t, err)
	require.NoError(t, getErr)
	assert.True(t, got.Active)
	require.NotNil(t, got.ActiveSince)
	assert.True(t, since.Equal(*got.ActiveSince))
}
