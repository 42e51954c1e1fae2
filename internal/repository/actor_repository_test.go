package repository_test

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"

	"templeops/internal/model"
	"templeops/internal/repository"
)

func TestActorRepository_Create(t *testing.T) {
	// Arrange
	gormDB, mock := setupMockDB(t)
	actorRepo := repository.NewActorRepository(gormDB)

	actor := &model.Actor{ID: "priest-1", Name: "Sri Raman", Role: model.RolePriest}

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO "actors"`).
		WithArgs(actor.ID, actor.Name, actor.Role, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	// Act
	err := actorRepo.Create(context.Background(), actor)

	// Assert
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestActorRepository_GetByID_Found(t *testing.T) {
	// Arrange
	gormDB, mock := setupMockDB(t)
	actorRepo := repository.NewActorRepository(gormDB)

	mock.ExpectQuery(`SELECT .* FROM "actors" WHERE id = .*`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "role", "created_at"}).
			AddRow("priest-1", "Sri Raman", "priest", baseTime))

	// Act
	actor, err := actorRepo.GetByID(context.Background(), "priest-1")

	// Assert
	assert.NoError(t, err)
	assert.NotNil(t, actor)
	assert.Equal(t, model.RolePriest, actor.Role)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestActorRepository_GetByID_NotFound(t *testing.T) {
	// Arrange
	gormDB, mock := setupMockDB(t)
	actorRepo := repository.NewActorRepository(gormDB)

	// Пустой результат превращается в ErrActorNotFound
	mock.ExpectQuery(`SELECT .* FROM "actors" WHERE id = .*`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "role", "created_at"}))

	// Act
	actor, err := actorRepo.GetByID(context.Background(), "ghost")

	// Assert
	assert.ErrorIs(t, err, repository.ErrActorNotFound)
	assert.Nil(t, actor)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestActorRepository_GetByID_Error(t *testing.T) {
	// Arrange
	gormDB, mock := setupMockDB(t)
	actorRepo := repository.NewActorRepository(gormDB)

	mock.ExpectQuery(`SELECT .* FROM "actors" WHERE id = .*`).
		WillReturnError(assert.AnError)

	// Act
	actor, err := actorRepo.GetByID(context.Background(), "priest-1")

	// Assert
	assert.Error(t, err)
	assert.NotErrorIs(t, err, repository.ErrActorNotFound)
	assert.Nil(t, actor)
	assert.NoError(t, mock.ExpectationsWereMet())
}
