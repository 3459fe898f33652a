package repository_test

import (
	"context"
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

// sha256("Test file content").
const testFingerprint = "6c76f7bd4b84eb68c26d2e8f48ea76f90b9bdf8836e27235a0ca4325f8fe4ce5"

var artifactColumns = []string{
	"id", "owner_id", "name", "location", "fingerprint", "size_bytes", "created_at", "grantee_id",
}

func setupArtifactRepoMock(t *testing.T) (repository.ArtifactRepository, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	return repository.NewSQLArtifactRepository(sqlx.NewDb(db, "sqlmock")), mock
}

func TestCreateArtifact(t *testing.T) {
	query := regexp.QuoteMeta(`INSERT INTO artifacts (owner_id, name, location, fingerprint, size_bytes) ` +
		`VALUES ($1, $2, $3, $4, $5) RETURNING id, created_at`)
	now := time.Now()
	newArtifact := func() *models.Artifact {
		return &models.Artifact{
			OwnerID:     1,
			Name:        "report.txt",
			Location:    "user_1/abc_report.txt",
			Fingerprint: testFingerprint,
			SizeBytes:   17,
		}
	}

	tests := []struct {
		name        string
		artifact    *models.Artifact
		mockSetup   func(mock sqlmock.Sqlmock, a *models.Artifact)
		expectedErr error
	}{
		{
			name:     "Успешное создание",
			artifact: newArtifact(),
			mockSetup: func(mock sqlmock.Sqlmock, a *models.Artifact) {
				mock.ExpectQuery(query).
					WithArgs(a.OwnerID, a.Name, a.Location, a.Fingerprint, a.SizeBytes).
					WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(int64(10), now))
			},
		},
		{
			name:     "Владелец не существует",
			artifact: newArtifact(),
			mockSetup: func(mock sqlmock.Sqlmock, a *models.Artifact) {
				mock.ExpectQuery(query).
					WithArgs(a.OwnerID, a.Name, a.Location, a.Fingerprint, a.SizeBytes).
					WillReturnError(&pq.Error{Code: "23503"})
			},
			expectedErr: repository.ErrUserNotFound,
		},
		{
			name: "Некорректный отпечаток",
			artifact: func() *models.Artifact {
				a := newArtifact()
				a.Fingerprint = "deadbeef"
				return a
			}(),
			mockSetup:   func(sqlmock.Sqlmock, *models.Artifact) {},
			expectedErr: repository.ErrInvalidArtifact,
		},
		{
			name: "Не указано расположение",
			artifact: func() *models.Artifact {
				a := newArtifact()
				a.Location = ""
				return a
			}(),
			mockSetup:   func(sqlmock.Sqlmock, *models.Artifact) {},
			expectedErr: repository.ErrInvalidArtifact,
		},
		{
			name:     "Ошибка базы данных",
			artifact: newArtifact(),
			mockSetup: func(mock sqlmock.Sqlmock, a *models.Artifact) {
				mock.ExpectQuery(query).
					WithArgs(a.OwnerID, a.Name, a.Location, a.Fingerprint, a.SizeBytes).
					WillReturnError(errors.New("database error"))
			},
			expectedErr: errors.New("ошибка выполнения запроса"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo, mock := setupArtifactRepoMock(t)
			tt.mockSetup(mock, tt.artifact)

			created, err := repo.CreateArtifact(context.Background(), tt.artifact)

			switch {
			case tt.expectedErr == nil:
				require.NoError(t, err)
				assert.Equal(t, int64(10), created.ID)
				assert.Equal(t, now, created.CreatedAt)
				assert.Equal(t, tt.artifact.Fingerprint, created.Fingerprint)
				assert.Empty(t, created.SharedWith)
				assert.Zero(t, tt.artifact.ID, "входная запись не должна изменяться")
			case errors.Is(tt.expectedErr, repository.ErrUserNotFound),
				errors.Is(tt.expectedErr, repository.ErrInvalidArtifact):
				require.ErrorIs(t, err, tt.expectedErr)
				assert.Nil(t, created)
			default:
				require.Error(t, err)
				assert.Contains(t, err.Error(), "ошибка выполнения запроса")
				assert.Nil(t, created)
			}
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestGetArtifact(t *testing.T) {
	query := regexp.QuoteMeta(`LEFT JOIN artifact_shares s ON s.artifact_id = a.id WHERE a.id=$1 ORDER BY s.user_id`)
	now := time.Now()

	t.Run("Запись с двумя получателями", func(t *testing.T) {
		repo, mock := setupArtifactRepoMock(t)
		rows := sqlmock.NewRows(artifactColumns).
			AddRow(int64(3), int64(1), "a.txt", "user_1/x_a.txt", testFingerprint, int64(17), now, int64(2)).
			AddRow(int64(3), int64(1), "a.txt", "user_1/x_a.txt", testFingerprint, int64(17), now, int64(4))
		mock.ExpectQuery(query).WithArgs(int64(3)).WillReturnRows(rows)

		a, err := repo.GetArtifact(context.Background(), 3)
		require.NoError(t, err)
		assert.Equal(t, int64(3), a.ID)
		assert.Equal(t, int64(1), a.OwnerID)
		assert.Equal(t, []int64{2, 4}, a.SharedWith)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Запись без получателей", func(t *testing.T) {
		repo, mock := setupArtifactRepoMock(t)
		rows := sqlmock.NewRows(artifactColumns).
			AddRow(int64(3), int64(1), "a.txt", "user_1/x_a.txt", testFingerprint, int64(17), now, nil)
		mock.ExpectQuery(query).WithArgs(int64(3)).WillReturnRows(rows)

		a, err := repo.GetArtifact(context.Background(), 3)
		require.NoError(t, err)
		assert.NotNil(t, a.SharedWith)
		assert.Empty(t, a.SharedWith)
	})

	t.Run("Запись не найдена", func(t *testing.T) {
		repo, mock := setupArtifactRepoMock(t)
		mock.ExpectQuery(query).WithArgs(int64(42)).WillReturnRows(sqlmock.NewRows(artifactColumns))

		a, err := repo.GetArtifact(context.Background(), 42)
		require.ErrorIs(t, err, repository.ErrArtifactNotFound)
		assert.Nil(t, a)
	})
}

func TestAddShare(t *testing.T) {
	lockQuery := regexp.QuoteMeta(`SELECT owner_id FROM artifacts WHERE id=$1`)
	insertQuery := regexp.QuoteMeta(`INSERT INTO artifact_shares (artifact_id, user_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`)

	tests := []struct {
		name        string
		mockSetup   func(mock sqlmock.Sqlmock)
		expectedErr error
	}{
		{
			name: "Успешное открытие доступа",
			mockSetup: func(mock sqlmock.Sqlmock) {
				mock.ExpectBegin()
				mock.ExpectQuery(lockQuery).WithArgs(int64(3)).
					WillReturnRows(sqlmock.NewRows([]string{"owner_id"}).AddRow(int64(1)))
				mock.ExpectExec(insertQuery).WithArgs(int64(3), int64(2)).WillReturnResult(sqlmock.NewResult(0, 1))
				mock.ExpectCommit()
			},
		},
		{
			name: "Повторное открытие доступа",
			mockSetup: func(mock sqlmock.Sqlmock) {
				mock.ExpectBegin()
				mock.ExpectQuery(lockQuery).WithArgs(int64(3)).
					WillReturnRows(sqlmock.NewRows([]string{"owner_id"}).AddRow(int64(1)))
				mock.ExpectExec(insertQuery).WithArgs(int64(3), int64(2)).WillReturnResult(sqlmock.NewResult(0, 0))
				mock.ExpectCommit()
			},
		},
		{
			name: "Файл не найден",
			mockSetup: func(mock sqlmock.Sqlmock) {
				mock.ExpectBegin()
				mock.ExpectQuery(lockQuery).WithArgs(int64(3)).
					WillReturnRows(sqlmock.NewRows([]string{"owner_id"}))
				mock.ExpectRollback()
			},
			expectedErr: repository.ErrArtifactNotFound,
		},
		{
			name: "Доступ самому себе",
			mockSetup: func(mock sqlmock.Sqlmock) {
				mock.ExpectBegin()
				mock.ExpectQuery(lockQuery).WithArgs(int64(3)).
					WillReturnRows(sqlmock.NewRows([]string{"owner_id"}).AddRow(int64(2)))
				mock.ExpectRollback()
			},
			expectedErr: repository.ErrSelfShare,
		},
		{
			name: "Получатель не существует",
			mockSetup: func(mock sqlmock.Sqlmock) {
				mock.ExpectBegin()
				mock.ExpectQuery(lockQuery).WithArgs(int64(3)).
					WillReturnRows(sqlmock.NewRows([]string{"owner_id"}).AddRow(int64(1)))
				mock.ExpectExec(insertQuery).WithArgs(int64(3), int64(2)).WillReturnError(&pq.Error{Code: "23503"})
				mock.ExpectRollback()
			},
			expectedErr: repository.ErrUserNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo, mock := setupArtifactRepoMock(t)
			tt.mockSetup(mock)

			err := repo.AddShare(context.Background(), 3, 2)

			if tt.expectedErr == nil {
				require.NoError(t, err)
			} else {
				require.ErrorIs(t, err, tt.expectedErr)
			}
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestDeleteArtifact(t *testing.T) {
	deleteQuery := regexp.QuoteMeta(`DELETE FROM artifacts WHERE id=$1 AND owner_id=$2`)
	sharesQuery := regexp.QuoteMeta(`DELETE FROM artifact_shares WHERE artifact_id=$1`)

	t.Run("Успешное удаление", func(t *testing.T) {
		repo, mock := setupArtifactRepoMock(t)
		mock.ExpectBegin()
		mock.ExpectExec(deleteQuery).WithArgs(int64(3), int64(1)).WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(sharesQuery).WithArgs(int64(3)).WillReturnResult(sqlmock.NewResult(0, 2))
		mock.ExpectCommit()

		require.NoError(t, repo.DeleteArtifact(context.Background(), 3, 1))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Чужой или отсутствующий файл", func(t *testing.T) {
		repo, mock := setupArtifactRepoMock(t)
		mock.ExpectBegin()
		mock.ExpectExec(deleteQuery).WithArgs(int64(3), int64(2)).WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectRollback()

		err := repo.DeleteArtifact(context.Background(), 3, 2)
		require.ErrorIs(t, err, repository.ErrArtifactNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestListVisibleTo(t *testing.T) {
	query := regexp.QuoteMeta(`WHERE a.owner_id=$1 OR a.id IN (SELECT artifact_id FROM artifact_shares WHERE user_id=$1) ORDER BY a.id, s.user_id`)
	now := time.Now()

	repo, mock := setupArtifactRepoMock(t)
	rows := sqlmock.NewRows(artifactColumns).
		AddRow(int64(1), int64(2), "own.txt", "user_2/a_own.txt", testFingerprint, int64(1), now, nil).
		AddRow(int64(4), int64(1), "shared.txt", "user_1/b_shared.txt", testFingerprint, int64(1), now, int64(2)).
		AddRow(int64(4), int64(1), "shared.txt", "user_1/b_shared.txt", testFingerprint, int64(1), now, int64(3))
	mock.ExpectQuery(query).WithArgs(int64(2)).WillReturnRows(rows)

	list, err := repo.ListVisibleTo(context.Background(), 2)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, int64(1), list[0].ID)
	assert.Empty(t, list[0].SharedWith)
	assert.Equal(t, int64(4), list[1].ID)
	assert.Equal(t, []int64{2, 3}, list[1].SharedWith)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListOwnedBy(t *testing.T) {
	query := regexp.QuoteMeta(`WHERE a.owner_id=$1 ORDER BY a.id, s.user_id`)

	t.Run("Пустой список", func(t *testing.T) {
		repo, mock := setupArtifactRepoMock(t)
		mock.ExpectQuery(query).WithArgs(int64(9)).WillReturnRows(sqlmock.NewRows(artifactColumns))

		list, err := repo.ListOwnedBy(context.Background(), 9)
		require.NoError(t, err)
		assert.NotNil(t, list)
		assert.Empty(t, list)
	})

	t.Run("Ошибка базы данных", func(t *testing.T) {
		repo, mock := setupArtifactRepoMock(t)
		mock.ExpectQuery(query).WithArgs(int64(9)).WillReturnError(errors.New("database error"))

		list, err := repo.ListOwnedBy(context.Background(), 9)
		require.Error(t, err)
		assert.Nil(t, list)
		assert.Contains(t, err.Error(), "ошибка выполнения запроса")
	})
}

func TestRemoveGrantee(t *testing.T) {
	repo, mock := setupArtifactRepoMock(t)
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM artifact_shares WHERE user_id=$1`)).
		WithArgs(int64(2)).WillReturnResult(sqlmock.NewResult(0, 3))

	require.NoError(t, repo.RemoveGrantee(context.Background(), 2))
	assert.NoError(t, mock.ExpectationsWereMet())
}
