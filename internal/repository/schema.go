package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id            BIGSERIAL PRIMARY KEY,
		username      VARCHAR(150) NOT NULL UNIQUE,
		password_hash TEXT NOT NULL,
		created_at    TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at    TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS artifacts (
		id          BIGSERIAL PRIMARY KEY,
		owner_id    BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		name        TEXT NOT NULL DEFAULT '',
		location    TEXT NOT NULL UNIQUE,
		fingerprint CHAR(64) NOT NULL CHECK (length(fingerprint) = 64),
		size_bytes  BIGINT NOT NULL DEFAULT 0,
		created_at  TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE INDEX IF NOT EXISTS artifacts_owner_id_idx ON artifacts (owner_id)`,
	`CREATE TABLE IF NOT EXISTS artifact_shares (
		artifact_id BIGINT NOT NULL REFERENCES artifacts(id) ON DELETE CASCADE,
		user_id     BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		PRIMARY KEY (artifact_id, user_id)
	)`,
	`CREATE INDEX IF NOT EXISTS artifact_shares_user_id_idx ON artifact_shares (user_id)`,
}

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id            INTEGER PRIMARY KEY AUTOINCREMENT,
		username      TEXT NOT NULL UNIQUE,
		password_hash TEXT NOT NULL,
		created_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS artifacts (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		owner_id    INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		name        TEXT NOT NULL DEFAULT '',
		location    TEXT NOT NULL UNIQUE,
		fingerprint TEXT NOT NULL CHECK (length(fingerprint) = 64),
		size_bytes  INTEGER NOT NULL DEFAULT 0,
		created_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE INDEX IF NOT EXISTS artifacts_owner_id_idx ON artifacts (owner_id)`,
	`CREATE TABLE IF NOT EXISTS artifact_shares (
		artifact_id INTEGER NOT NULL REFERENCES artifacts(id) ON DELETE CASCADE,
		user_id     INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		PRIMARY KEY (artifact_id, user_id)
	)`,
	`CREATE INDEX IF NOT EXISTS artifact_shares_user_id_idx ON artifact_shares (user_id)`,
}

// Migrate создает таблицы, если их еще нет. Диалект выбирается по имени драйвера.
func Migrate(ctx context.Context, db *sqlx.DB) error {
	var stmts []string
	switch db.DriverName() {
	case DriverPostgres:
		stmts = postgresSchema
	case DriverSQLite:
		stmts = sqliteSchema
	default:
		return fmt.Errorf("миграции не поддерживаются для драйвера %s", db.DriverName())
	}

	for i, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ошибка применения схемы (шаг %d): %w", i+1, err)
		}
	}
	zap.S().Infof("[Repo] Схема БД (%s) применена", db.DriverName())
	return nil
}
