package repository_test

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/maynagashev/filehost/internal/repository"
	"github.com/maynagashev/filehost/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSQLUserRepository(t *testing.T) {
	repo := repository.NewSQLUserRepository(nil)
	assert.NotNil(t, repo)

	db, _, _ := sqlmock.New()
	repo = repository.NewSQLUserRepository(sqlx.NewDb(db, "sqlmock"))
	assert.NotNil(t, repo)
}

// Вспомогательная функция для создания мока БД и репозитория.
func setupUserRepoMock(t *testing.T) (repository.UserRepository, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	sqlxDB := sqlx.NewDb(db, "sqlmock")
	repo := repository.NewSQLUserRepository(sqlxDB)
	return repo, mock
}

const selectUserColumns = `SELECT id, username, password_hash, created_at, updated_at FROM users`

var userColumns = []string{"id", "username", "password_hash", "created_at", "updated_at"}

func TestCreateUser(t *testing.T) {
	query := regexp.QuoteMeta(`INSERT INTO users (username, password_hash) VALUES ($1, $2) RETURNING id`)

	tests := []struct {
		name        string
		username    string
		mockSetup   func(mock sqlmock.Sqlmock, username string)
		expectedID  int64
		expectedErr error
	}{
		{
			name:     "Успешное создание",
			username: "newuser",
			mockSetup: func(mock sqlmock.Sqlmock, username string) {
				mock.ExpectQuery(query).WithArgs(username, "hash").
					WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(1)))
			},
			expectedID: 1,
		},
		{
			name:     "Имя пользователя занято",
			username: "existinguser",
			mockSetup: func(mock sqlmock.Sqlmock, username string) {
				mock.ExpectQuery(query).WithArgs(username, "hash").WillReturnError(&pq.Error{Code: "23505"})
			},
			expectedErr: repository.ErrUsernameTaken,
		},
		{
			name:     "Ошибка базы данных",
			username: "erroruser",
			mockSetup: func(mock sqlmock.Sqlmock, username string) {
				mock.ExpectQuery(query).WithArgs(username, "hash").WillReturnError(errors.New("database error"))
			},
			expectedErr: errors.New("ошибка выполнения запроса"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo, mock := setupUserRepoMock(t)
			tt.mockSetup(mock, tt.username)

			id, err := repo.CreateUser(context.Background(), &models.User{Username: tt.username, PasswordHash: "hash"})

			assert.Equal(t, tt.expectedID, id)
			switch {
			case tt.expectedErr == nil:
				require.NoError(t, err)
			case errors.Is(tt.expectedErr, repository.ErrUsernameTaken):
				require.ErrorIs(t, err, repository.ErrUsernameTaken)
			default:
				require.Error(t, err)
				assert.Contains(t, err.Error(), "ошибка выполнения запроса")
			}
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestGetUserByUsername(t *testing.T) {
	now := time.Now()
	query := regexp.QuoteMeta(selectUserColumns + ` WHERE username=$1`)
	alice := &models.User{ID: 1, Username: "alice", PasswordHash: "hash", CreatedAt: now, UpdatedAt: now}

	tests := []struct {
		name         string
		username     string
		mockSetup    func(mock sqlmock.Sqlmock, username string)
		expectedUser *models.User
		expectedErr  error
	}{
		{
			name:     "Успешный поиск",
			username: "alice",
			mockSetup: func(mock sqlmock.Sqlmock, username string) {
				rows := sqlmock.NewRows(userColumns).
					AddRow(alice.ID, alice.Username, alice.PasswordHash, alice.CreatedAt, alice.UpdatedAt)
				mock.ExpectQuery(query).WithArgs(username).WillReturnRows(rows)
			},
			expectedUser: alice,
		},
		{
			name:     "Пользователь не найден",
			username: "nobody",
			mockSetup: func(mock sqlmock.Sqlmock, username string) {
				mock.ExpectQuery(query).WithArgs(username).WillReturnError(sql.ErrNoRows)
			},
			expectedErr: repository.ErrUserNotFound,
		},
		{
			name:     "Ошибка базы данных",
			username: "erroruser",
			mockSetup: func(mock sqlmock.Sqlmock, username string) {
				mock.ExpectQuery(query).WithArgs(username).WillReturnError(errors.New("database error"))
			},
			expectedErr: errors.New("ошибка выполнения запроса"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo, mock := setupUserRepoMock(t)
			tt.mockSetup(mock, tt.username)

			user, err := repo.GetUserByUsername(context.Background(), tt.username)

			assert.Equal(t, tt.expectedUser, user)
			switch {
			case tt.expectedErr == nil:
				require.NoError(t, err)
			case errors.Is(tt.expectedErr, repository.ErrUserNotFound):
				require.ErrorIs(t, err, repository.ErrUserNotFound)
			default:
				require.Error(t, err)
				assert.Contains(t, err.Error(), "ошибка выполнения запроса")
			}
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestGetUserByID(t *testing.T) {
	now := time.Now()
	query := regexp.QuoteMeta(selectUserColumns + ` WHERE id=$1`)

	t.Run("Успешный поиск", func(t *testing.T) {
		repo, mock := setupUserRepoMock(t)
		rows := sqlmock.NewRows(userColumns).
			AddRow(int64(7), "alice", "hash", now, now)
		mock.ExpectQuery(query).WithArgs(int64(7)).WillReturnRows(rows)

		user, err := repo.GetUserByID(context.Background(), 7)
		require.NoError(t, err)
		assert.Equal(t, int64(7), user.ID)
		assert.Equal(t, "alice", user.Username)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Пользователь не найден", func(t *testing.T) {
		repo, mock := setupUserRepoMock(t)
		mock.ExpectQuery(query).WithArgs(int64(99)).WillReturnError(sql.ErrNoRows)

		user, err := repo.GetUserByID(context.Background(), 99)
		require.ErrorIs(t, err, repository.ErrUserNotFound)
		assert.Nil(t, user)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestDeleteUser(t *testing.T) {
	query := regexp.QuoteMeta(`DELETE FROM users WHERE id=$1`)

	tests := []struct {
		name        string
		mockSetup   func(mock sqlmock.Sqlmock)
		expectedErr error
	}{
		{
			name: "Успешное удаление",
			mockSetup: func(mock sqlmock.Sqlmock) {
				mock.ExpectExec(query).WithArgs(int64(5)).WillReturnResult(sqlmock.NewResult(0, 1))
			},
		},
		{
			name: "Пользователь не найден",
			mockSetup: func(mock sqlmock.Sqlmock) {
				mock.ExpectExec(query).WithArgs(int64(5)).WillReturnResult(sqlmock.NewResult(0, 0))
			},
			expectedErr: repository.ErrUserNotFound,
		},
		{
			name: "Ошибка базы данных",
			mockSetup: func(mock sqlmock.Sqlmock) {
				mock.ExpectExec(query).WithArgs(int64(5)).WillReturnError(errors.New("database error"))
			},
			expectedErr: errors.New("ошибка выполнения запроса"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo, mock := setupUserRepoMock(t)
			tt.mockSetup(mock)

			err := repo.DeleteUser(context.Background(), 5)

			switch {
			case tt.expectedErr == nil:
				require.NoError(t, err)
			case errors.Is(tt.expectedErr, repository.ErrUserNotFound):
				require.ErrorIs(t, err, repository.ErrUserNotFound)
			default:
				require.Error(t, err)
				assert.Contains(t, err.Error(), "ошибка выполнения запроса")
			}
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}
