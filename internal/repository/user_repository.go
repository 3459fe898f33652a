package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/maynagashev/filehost/models"
	"go.uber.org/zap"
)

// UserRepository определяет методы для работы с данными пользователей в хранилище.
type UserRepository interface {
	CreateUser(ctx context.Context, user *models.User) (int64, error)
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)
	GetUserByID(ctx context.Context, userID int64) (*models.User, error)
	DeleteUser(ctx context.Context, userID int64) error
}

// sqlUserRepository реализует UserRepository для PostgreSQL и SQLite.
type sqlUserRepository struct {
	db *sqlx.DB
}

// NewSQLUserRepository создает новый экземпляр репозитория пользователей.
func NewSQLUserRepository(db *sqlx.DB) UserRepository {
	return &sqlUserRepository{db: db}
}

// CreateUser создает нового пользователя в базе данных.
// Возвращает ID созданного пользователя или ошибку.
func (r *sqlUserRepository) CreateUser(ctx context.Context, user *models.User) (int64, error) {
	query := `INSERT INTO users (username, password_hash) VALUES ($1, $2) RETURNING id`
	var userID int64

	err := r.db.QueryRowxContext(ctx, query, user.Username, user.PasswordHash).Scan(&userID)
	if err != nil {
		if isUniqueViolation(err) {
			zap.S().Infof("[Repo] Ошибка создания пользователя: имя пользователя '%s' уже занято", user.Username)
			return 0, ErrUsernameTaken
		}
		zap.S().Errorf("[Repo] Непредвиденная ошибка при создании пользователя '%s': %v", user.Username, err)
		return 0, fmt.Errorf("ошибка выполнения запроса на создание пользователя: %w", err)
	}

	zap.S().Infof("[Repo] Пользователь '%s' успешно создан с ID %d", user.Username, userID)
	return userID, nil
}

// GetUserByUsername находит пользователя по его имени.
func (r *sqlUserRepository) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	query := `SELECT id, username, password_hash, created_at, updated_at FROM users WHERE username=$1`
	return r.getOne(ctx, query, username)
}

// GetUserByID находит пользователя по ID.
func (r *sqlUserRepository) GetUserByID(ctx context.Context, userID int64) (*models.User, error) {
	query := `SELECT id, username, password_hash, created_at, updated_at FROM users WHERE id=$1`
	return r.getOne(ctx, query, userID)
}

func (r *sqlUserRepository) getOne(ctx context.Context, query string, arg any) (*models.User, error) {
	var user models.User

	err := r.db.GetContext(ctx, &user, query, arg)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			zap.S().Debugf("[Repo] Пользователь '%v' не найден", arg)
			return nil, ErrUserNotFound
		}
		zap.S().Errorf("[Repo] Ошибка при поиске пользователя '%v': %v", arg, err)
		return nil, fmt.Errorf("ошибка выполнения запроса на получение пользователя: %w", err)
	}

	return &user, nil
}

// DeleteUser удаляет пользователя. Зависимые записи должны быть удалены заранее.
func (r *sqlUserRepository) DeleteUser(ctx context.Context, userID int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM users WHERE id=$1`, userID)
	if err != nil {
		zap.S().Errorf("[Repo] Ошибка удаления пользователя %d: %v", userID, err)
		return fmt.Errorf("ошибка выполнения запроса на удаление пользователя: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("ошибка получения числа удаленных строк: %w", err)
	}
	if affected == 0 {
		return ErrUserNotFound
	}

	zap.S().Infof("[Repo] Пользователь %d удален", userID)
	return nil
}
