package auth_test

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"

	"templeops/internal/auth"
)

const testSecret = "test-secret-key"

func TestGenerateAndParseToken(t *testing.T) {
	// Генерируем токен
	token, err := auth.GenerateToken("manager-1", testSecret, time.Hour)

	// Проверяем, что токен создан без ошибок
	assert.NoError(t, err)
	assert.NotEmpty(t, token)

	// Парсим токен
	actorID, err := auth.ParseToken(token, testSecret)

	// Проверяем, что из токена извлечен правильный ID актора
	assert.NoError(t, err)
	assert.Equal(t, "manager-1", actorID)
}

func TestParseToken_InvalidToken(t *testing.T) {
	// Пытаемся парсить неверный токен
	_, err := auth.ParseToken("invalid-token", testSecret)

	// Проверяем, что возникла ошибка
	assert.ErrorIs(t, err, auth.ErrInvalidToken)
}

func TestParseToken_WrongSecret(t *testing.T) {
	// Подписываем другим ключом
	token, err := auth.GenerateToken("manager-1", "another-secret", time.Hour)
	assert.NoError(t, err)

	_, err = auth.ParseToken(token, testSecret)

	assert.ErrorIs(t, err, auth.ErrInvalidToken)
}

func TestParseToken_ExpiredToken(t *testing.T) {
	// Токен истек 1 час назад
	token, err := auth.GenerateToken("manager-1", testSecret, -time.Hour)
	assert.NoError(t, err)

	_, err = auth.ParseToken(token, testSecret)

	assert.ErrorIs(t, err, auth.ErrInvalidToken)
}

func TestParseToken_MissingClaims(t *testing.T) {
	// Создаем токен без ID актора
	claims := jwt.MapClaims{
		"exp": time.Now().Add(24 * time.Hour).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenWithoutActor, _ := token.SignedString([]byte(testSecret))

	_, err := auth.ParseToken(tokenWithoutActor, testSecret)

	assert.ErrorIs(t, err, auth.ErrInvalidClaims)
}

func TestParseToken_RejectsOtherAlgorithms(t *testing.T) {
	// HS512 не принимается
	claims := jwt.MapClaims{
		"actor_id": "manager-1",
		"exp":      time.Now().Add(time.Hour).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS512, claims)
	signed, _ := token.SignedString([]byte(testSecret))

	_, err := auth.ParseToken(signed, testSecret)

	assert.ErrorIs(t, err, auth.ErrInvalidToken)
}
