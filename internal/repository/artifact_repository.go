package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/maynagashev/filehost/internal/fingerprint"
	"github.com/maynagashev/filehost/models"
	"go.uber.org/zap"
)

// ArtifactRepository определяет методы для работы с записями о файлах и их шарингом.
type ArtifactRepository interface {
	// CreateArtifact атомарно сохраняет запись и возвращает ее с присвоенными ID и CreatedAt.
	CreateArtifact(ctx context.Context, artifact *models.Artifact) (*models.Artifact, error)
	GetArtifact(ctx context.Context, artifactID int64) (*models.Artifact, error)
	// AddShare открывает доступ на чтение. Повторный вызов не является ошибкой.
	AddShare(ctx context.Context, artifactID, userID int64) error
	// DeleteArtifact удаляет запись, если она принадлежит ownerID.
	DeleteArtifact(ctx context.Context, artifactID, ownerID int64) error
	// ListVisibleTo возвращает файлы пользователя и открытые ему, в порядке создания.
	ListVisibleTo(ctx context.Context, userID int64) ([]models.Artifact, error)
	ListOwnedBy(ctx context.Context, ownerID int64) ([]models.Artifact, error)
	// RemoveGrantee убирает пользователя из всех списков доступа.
	RemoveGrantee(ctx context.Context, userID int64) error
}

// validateNewArtifact проверяет запись перед сохранением.
func validateNewArtifact(a *models.Artifact) error {
	if a == nil || a.OwnerID == 0 {
		return fmt.Errorf("%w: не указан владелец", ErrInvalidArtifact)
	}
	if a.Location == "" {
		return fmt.Errorf("%w: не указано расположение", ErrInvalidArtifact)
	}
	if _, err := fingerprint.Parse(a.Fingerprint); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidArtifact, err)
	}
	return nil
}

// sqlArtifactRepository реализует ArtifactRepository для PostgreSQL и SQLite.
type sqlArtifactRepository struct {
	db *sqlx.DB
	// lockClause блокирует строку файла до конца транзакции (только PostgreSQL,
	// SQLite и так сериализует запись).
	lockClause string
}

// NewSQLArtifactRepository создает новый экземпляр репозитория файлов.
func NewSQLArtifactRepository(db *sqlx.DB) ArtifactRepository {
	r := &sqlArtifactRepository{db: db}
	if db != nil && db.DriverName() == DriverPostgres {
		r.lockClause = " FOR UPDATE"
	}
	return r
}

// artifactRow - строка выборки файла вместе с одним получателем (LEFT JOIN).
type artifactRow struct {
	models.Artifact
	GranteeID sql.NullInt64 `db:"grantee_id"`
}

const selectArtifacts = `SELECT a.id, a.owner_id, a.name, a.location, a.fingerprint, a.size_bytes, a.created_at,
	s.user_id AS grantee_id
	FROM artifacts a
	LEFT JOIN artifact_shares s ON s.artifact_id = a.id`

// foldRows собирает строки JOIN в записи, сохраняя порядок по ID.
func foldRows(rows []artifactRow) []models.Artifact {
	result := make([]models.Artifact, 0, len(rows))
	for _, row := range rows {
		if len(result) == 0 || result[len(result)-1].ID != row.ID {
			a := row.Artifact
			a.SharedWith = []int64{}
			result = append(result, a)
		}
		if row.GranteeID.Valid {
			last := &result[len(result)-1]
			last.SharedWith = append(last.SharedWith, row.GranteeID.Int64)
		}
	}
	return result
}

// CreateArtifact сохраняет запись одним INSERT, поэтому частично записанная строка не видна.
func (r *sqlArtifactRepository) CreateArtifact(
	ctx context.Context,
	artifact *models.Artifact,
) (*models.Artifact, error) {
	if err := validateNewArtifact(artifact); err != nil {
		return nil, err
	}

	query := `INSERT INTO artifacts (owner_id, name, location, fingerprint, size_bytes)
	          VALUES ($1, $2, $3, $4, $5) RETURNING id, created_at`
	created := artifact.Clone()
	created.SharedWith = []int64{}

	err := r.db.QueryRowxContext(ctx, query,
		artifact.OwnerID, artifact.Name, artifact.Location, artifact.Fingerprint, artifact.SizeBytes,
	).Scan(&created.ID, &created.CreatedAt)
	if err != nil {
		if isForeignKeyViolation(err) {
			zap.S().Infof("[ArtifactRepo] Владелец %d не существует", artifact.OwnerID)
			return nil, ErrUserNotFound
		}
		zap.S().Errorf("[ArtifactRepo] Ошибка создания записи для '%s': %v", artifact.Location, err)
		return nil, fmt.Errorf("ошибка выполнения запроса на создание файла: %w", err)
	}

	zap.S().Infof("[ArtifactRepo] Файл (ID: %d) владельца %d сохранен: %s", created.ID, created.OwnerID, created.Location)
	return created, nil
}

// GetArtifact находит запись по ID вместе со списком получателей.
func (r *sqlArtifactRepository) GetArtifact(ctx context.Context, artifactID int64) (*models.Artifact, error) {
	query := selectArtifacts + ` WHERE a.id=$1 ORDER BY s.user_id`

	var rows []artifactRow
	if err := r.db.SelectContext(ctx, &rows, query, artifactID); err != nil {
		zap.S().Errorf("[ArtifactRepo] Ошибка при поиске файла %d: %v", artifactID, err)
		return nil, fmt.Errorf("ошибка выполнения запроса на получение файла: %w", err)
	}

	artifacts := foldRows(rows)
	if len(artifacts) == 0 {
		return nil, ErrArtifactNotFound
	}
	return &artifacts[0], nil
}

// AddShare добавляет получателя в транзакции, блокируя строку файла.
// Удаление файла, идущее параллельно, либо дождется коммита, либо AddShare получит ErrArtifactNotFound.
func (r *sqlArtifactRepository) AddShare(ctx context.Context, artifactID, userID int64) (err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("ошибка начала транзакции: %w", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				zap.S().Warnf("[ArtifactRepo] Ошибка отката транзакции: %v", rbErr)
			}
		}
	}()

	var ownerID int64
	err = tx.GetContext(ctx, &ownerID, `SELECT owner_id FROM artifacts WHERE id=$1`+r.lockClause, artifactID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrArtifactNotFound
		}
		return fmt.Errorf("ошибка блокировки файла %d: %w", artifactID, err)
	}
	if ownerID == userID {
		return ErrSelfShare
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO artifact_shares (artifact_id, user_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
		artifactID, userID)
	if err != nil {
		if isForeignKeyViolation(err) {
			return ErrUserNotFound
		}
		return fmt.Errorf("ошибка выполнения запроса на открытие доступа: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("ошибка фиксации транзакции: %w", err)
	}

	zap.S().Infof("[ArtifactRepo] Пользователю %d открыт доступ к файлу %d", userID, artifactID)
	return nil
}

// DeleteArtifact удаляет запись и ее список доступа.
func (r *sqlArtifactRepository) DeleteArtifact(ctx context.Context, artifactID, ownerID int64) (err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("ошибка начала транзакции: %w", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				zap.S().Warnf("[ArtifactRepo] Ошибка отката транзакции: %v", rbErr)
			}
		}
	}()

	res, err := tx.ExecContext(ctx, `DELETE FROM artifacts WHERE id=$1 AND owner_id=$2`, artifactID, ownerID)
	if err != nil {
		return fmt.Errorf("ошибка выполнения запроса на удаление файла: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("ошибка получения числа удаленных строк: %w", err)
	}
	if affected == 0 {
		return ErrArtifactNotFound
	}

	// Каскад по внешнему ключу уже удалил строки, но SQLite без PRAGMA его не выполняет
	if _, err = tx.ExecContext(ctx, `DELETE FROM artifact_shares WHERE artifact_id=$1`, artifactID); err != nil {
		return fmt.Errorf("ошибка удаления списка доступа: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("ошибка фиксации транзакции: %w", err)
	}

	zap.S().Infof("[ArtifactRepo] Файл %d удален владельцем %d", artifactID, ownerID)
	return nil
}

// ListVisibleTo возвращает файлы, которыми пользователь владеет или которые ему открыты.
func (r *sqlArtifactRepository) ListVisibleTo(ctx context.Context, userID int64) ([]models.Artifact, error) {
	query := selectArtifacts + `
	WHERE a.owner_id=$1 OR a.id IN (SELECT artifact_id FROM artifact_shares WHERE user_id=$1)
	ORDER BY a.id, s.user_id`
	return r.list(ctx, query, userID)
}

// ListOwnedBy возвращает файлы владельца в порядке создания.
func (r *sqlArtifactRepository) ListOwnedBy(ctx context.Context, ownerID int64) ([]models.Artifact, error) {
	query := selectArtifacts + ` WHERE a.owner_id=$1 ORDER BY a.id, s.user_id`
	return r.list(ctx, query, ownerID)
}

func (r *sqlArtifactRepository) list(ctx context.Context, query string, userID int64) ([]models.Artifact, error) {
	var rows []artifactRow
	if err := r.db.SelectContext(ctx, &rows, query, userID); err != nil {
		zap.S().Errorf("[ArtifactRepo] Ошибка получения списка файлов для пользователя %d: %v", userID, err)
		return nil, fmt.Errorf("ошибка выполнения запроса на получение списка файлов: %w", err)
	}

	artifacts := foldRows(rows)
	zap.S().Debugf("[ArtifactRepo] Получено %d файлов для пользователя %d", len(artifacts), userID)
	return artifacts, nil
}

// RemoveGrantee убирает пользователя из всех списков доступа.
func (r *sqlArtifactRepository) RemoveGrantee(ctx context.Context, userID int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM artifact_shares WHERE user_id=$1`, userID)
	if err != nil {
		return fmt.Errorf("ошибка выполнения запроса на удаление доступа: %w", err)
	}
	affected, _ := res.RowsAffected()
	zap.S().Infof("[ArtifactRepo] Пользователь %d удален из %d списков доступа", userID, affected)
	return nil
}
