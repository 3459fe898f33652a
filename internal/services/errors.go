package services

import (
	"errors"
	"fmt"

	"github.com/maynagashev/filehost/internal/repository"
)

// mapRepoError переводит ошибки репозитория в ошибки сервисного слоя.
// Непредвиденные ошибки оборачиваются с описанием операции.
func mapRepoError(err error, op string) error {
	switch {
	case errors.Is(err, repository.ErrArtifactNotFound):
		return fmt.Errorf("%w: файл", ErrNotFound)
	case errors.Is(err, repository.ErrUserNotFound):
		return fmt.Errorf("%w: пользователь", ErrNotFound)
	case errors.Is(err, repository.ErrSelfShare):
		return fmt.Errorf("%w: %w", ErrValidation, repository.ErrSelfShare)
	case errors.Is(err, repository.ErrInvalidArtifact):
		return fmt.Errorf("%w: %w", ErrValidation, err)
	case errors.Is(err, repository.ErrUsernameTaken):
		return ErrUsernameTaken
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}

// Кастомные ошибки сервиса.
var (
	ErrValidation           = errors.New("некорректные входные данные")
	ErrNotFound             = errors.New("не найдено")
	ErrForbidden            = errors.New("доступ запрещен")
	ErrIntegrityComputation = errors.New("не удалось вычислить отпечаток файла")
	ErrIntegrityMismatch    = errors.New("содержимое файла не совпадает с сохраненным отпечатком")
	ErrInvalidCredentials   = errors.New("неверное имя пользователя или пароль")
	ErrUsernameTaken        = errors.New("имя пользователя уже занято")
	ErrInvalidToken         = errors.New("невалидный токен")
)
