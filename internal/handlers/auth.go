package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/maynagashev/filehost/internal/middleware"
	"github.com/maynagashev/filehost/models"
	"go.uber.org/zap"
)

// AuthService определяет интерфейс для сервиса аутентификации.
// Это позволит нам легко подменять реализацию (например, для тестов).
type AuthService interface {
	Register(ctx context.Context, username, password string) error
	Login(ctx context.Context, username, password string) (string, error) // Возвращает JWT токен или ошибку
	Logout(ctx context.Context, sess *models.Session) error
	DeleteAccount(ctx context.Context, sess *models.Session) error
}

// AuthHandler обрабатывает HTTP-запросы, связанные с аутентификацией.
type AuthHandler struct {
	service AuthService // Зависимость от интерфейса, а не конкретной реализации
}

// NewAuthHandler создает новый экземпляр AuthHandler.
func NewAuthHandler(s AuthService) *AuthHandler {
	return &AuthHandler{service: s}
}

// decodeCredentials читает имя пользователя и пароль из тела запроса.
func decodeCredentials(w http.ResponseWriter, r *http.Request, op string) (string, string, bool) {
	var req models.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		zap.S().Infof("[%s] Ошибка декодирования запроса: %v", op, err)
		http.Error(w, "Неверный формат запроса", http.StatusBadRequest)
		return "", "", false
	}
	if req.Username == "" || req.Password == "" {
		zap.S().Infof("[%s] Пустое имя пользователя или пароль", op)
		http.Error(w, "Имя пользователя и пароль не могут быть пустыми", http.StatusBadRequest)
		return "", "", false
	}
	return req.Username, req.Password, true
}

// Register обрабатывает запрос на регистрацию нового пользователя.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	const op = "AuthHandler:Register"
	username, password, ok := decodeCredentials(w, r, op)
	if !ok {
		return
	}

	if err := h.service.Register(r.Context(), username, password); err != nil {
		writeServiceError(w, op, err)
		return
	}

	w.WriteHeader(http.StatusCreated)
	_, _ = w.Write([]byte("Пользователь успешно зарегистрирован\n"))
	zap.S().Infof("[%s] Успешная регистрация для: %s", op, username)
}

// Login обрабатывает запрос на вход пользователя.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	const op = "AuthHandler:Login"
	username, password, ok := decodeCredentials(w, r, op)
	if !ok {
		return
	}

	token, err := h.service.Login(r.Context(), username, password)
	if err != nil {
		writeServiceError(w, op, err)
		return
	}

	writeJSON(w, op, http.StatusOK, models.LoginResponse{Token: token})
}

// sessionOrFail достает сессию, положенную middleware.Authenticator.
func sessionOrFail(w http.ResponseWriter, r *http.Request, op string) (*models.Session, bool) {
	sess, ok := middleware.GetSessionFromContext(r.Context())
	if !ok {
		zap.S().Errorf("[%s] Не удалось получить сессию из контекста", op)
		http.Error(w, internalBody, http.StatusInternalServerError)
		return nil, false
	}
	return sess, true
}

// Logout отзывает текущий токен.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	const op = "AuthHandler:Logout"
	sess, ok := sessionOrFail(w, r, op)
	if !ok {
		return
	}

	if err := h.service.Logout(r.Context(), sess); err != nil {
		writeServiceError(w, op, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DeleteAccount удаляет учетную запись текущего пользователя вместе с его файлами.
func (h *AuthHandler) DeleteAccount(w http.ResponseWriter, r *http.Request) {
	const op = "AuthHandler:DeleteAccount"
	sess, ok := sessionOrFail(w, r, op)
	if !ok {
		return
	}

	if err := h.service.DeleteAccount(r.Context(), sess); err != nil {
		writeServiceError(w, op, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
