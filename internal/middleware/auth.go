package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/maynagashev/filehost/internal/services"
	"github.com/maynagashev/filehost/models"
	"go.uber.org/zap"
)

// Тип для ключа контекста.
type contextKey string

// Ключ для хранения сессии в контексте.
const SessionKey contextKey = "session"

// TokenAuthenticator проверяет токен и возвращает сессию.
// Невалидный, истекший или отозванный токен дает services.ErrInvalidToken.
type TokenAuthenticator interface {
	Authenticate(ctx context.Context, token string) (*models.Session, error)
}

// Authenticator возвращает middleware, проверяющий JWT токен из заголовка Authorization.
func Authenticator(auth TokenAuthenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Получаем заголовок Authorization
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				zap.S().Debugf("[AuthMiddleware] Заголовок Authorization отсутствует")
				http.Error(w, "Требуется аутентификация", http.StatusUnauthorized)
				return
			}

			// Проверяем формат "Bearer token"
			headerParts := strings.Split(authHeader, " ")
			if len(headerParts) != 2 || !strings.EqualFold(headerParts[0], "bearer") || headerParts[1] == "" {
				zap.S().Infof("[AuthMiddleware] Неверный формат заголовка Authorization")
				http.Error(w, "Неверный формат токена", http.StatusUnauthorized)
				return
			}

			sess, err := auth.Authenticate(r.Context(), headerParts[1])
			if err != nil {
				if errors.Is(err, services.ErrInvalidToken) {
					zap.S().Infof("[AuthMiddleware] Отклонен токен: %v", err)
					http.Error(w, "Невалидный токен", http.StatusUnauthorized)
					return
				}
				zap.S().Errorf("[AuthMiddleware] Ошибка проверки токена: %v", err)
				http.Error(w, "Внутренняя ошибка сервера", http.StatusInternalServerError)
				return
			}

			zap.S().Debugf("[AuthMiddleware] Пользователь %d успешно аутентифицирован", sess.Identity.ID)
			ctx := context.WithValue(r.Context(), SessionKey, sess)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetSessionFromContext извлекает сессию из контекста запроса.
func GetSessionFromContext(ctx context.Context) (*models.Session, bool) {
	sess, ok := ctx.Value(SessionKey).(*models.Session)
	return sess, ok && sess != nil
}

// GetIdentityFromContext извлекает личность пользователя из контекста запроса.
// Возвращает нулевую Identity и false, если запрос не аутентифицирован.
func GetIdentityFromContext(ctx context.Context) (models.Identity, bool) {
	sess, ok := GetSessionFromContext(ctx)
	if !ok {
		return models.Identity{}, false
	}
	return sess.Identity, true
}
