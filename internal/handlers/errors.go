package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/maynagashev/filehost/internal/services"
	"go.uber.org/zap"
)

const (
	// HeaderIntegrityVerdict передает результат проверки целостности.
	HeaderIntegrityVerdict = "X-Integrity-Verdict"
	// HeaderFingerprint передает сохраненный отпечаток файла.
	HeaderFingerprint = "X-Fingerprint"

	// Ответ на отсутствующий и на чужой файл одинаков.
	accessDeniedBody = "access denied"
	internalBody     = "Внутренняя ошибка сервера"
)

// writeServiceError переводит ошибку сервисного слоя в HTTP-ответ.
func writeServiceError(w http.ResponseWriter, op string, err error) {
	var maxBytesErr *http.MaxBytesError
	switch {
	case errors.As(err, &maxBytesErr):
		zap.S().Infof("[%s] Превышен размер загрузки (%d байт)", op, maxBytesErr.Limit)
		http.Error(w, "Файл превышает допустимый размер", http.StatusRequestEntityTooLarge)
	case errors.Is(err, services.ErrValidation):
		zap.S().Infof("[%s] Некорректный запрос: %v", op, err)
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, services.ErrNotFound), errors.Is(err, services.ErrForbidden):
		zap.S().Infof("[%s] Отказано в доступе: %v", op, err)
		http.Error(w, accessDeniedBody, http.StatusForbidden)
	case errors.Is(err, services.ErrIntegrityMismatch):
		zap.S().Errorf("[%s] Нарушена целостность файла: %v", op, err)
		w.Header().Set(HeaderIntegrityVerdict, "corrupted")
		http.Error(w, "Содержимое файла повреждено", http.StatusConflict)
	case errors.Is(err, services.ErrUsernameTaken):
		http.Error(w, "Имя пользователя уже занято", http.StatusConflict)
	case errors.Is(err, services.ErrInvalidCredentials):
		http.Error(w, "Неверное имя пользователя или пароль", http.StatusUnauthorized)
	case errors.Is(err, services.ErrInvalidToken):
		http.Error(w, "Невалидный токен", http.StatusUnauthorized)
	default:
		zap.S().Errorf("[%s] Внутренняя ошибка: %v", op, err)
		http.Error(w, internalBody, http.StatusInternalServerError)
	}
}

// writeJSON отправляет v в формате JSON с указанным статусом.
func writeJSON(w http.ResponseWriter, op string, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.S().Errorf("[%s] Ошибка кодирования ответа: %v", op, err)
	}
}
