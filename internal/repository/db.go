package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // Драйвер PostgreSQL, импортируем для регистрации
	"go.uber.org/zap"
	_ "modernc.org/sqlite" // Драйвер SQLite (без cgo)
)

const (
	maxOpenConns    = 25              // Максимальное количество открытых соединений
	maxIdleConns    = 25              // Максимальное количество простаивающих соединений
	connMaxLifetime = 5 * time.Minute // Максимальное время жизни соединения
	connMaxIdleTime = 5 * time.Minute // Максимальное время простоя соединения
)

// Имена драйверов database/sql.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// NewPostgresDB создает и возвращает новое подключение к PostgreSQL.
func NewPostgresDB(dsn string) (*sqlx.DB, error) {
	zap.S().Infof("Подключение к PostgreSQL...")

	db, err := sqlx.Connect(DriverPostgres, dsn)
	if err != nil {
		return nil, fmt.Errorf("ошибка подключения к БД: %w", err)
	}

	// Проверка соединения
	if err = db.Ping(); err != nil {
		closeErr := db.Close()
		if closeErr != nil {
			zap.S().Warnf("Ошибка закрытия соединения с БД после неудачного пинга: %v", closeErr)
		}
		return nil, fmt.Errorf("ошибка проверки соединения с БД (ping): %w", err)
	}

	// Настройка пула соединений
	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(maxIdleConns)
	db.SetConnMaxLifetime(connMaxLifetime)
	db.SetConnMaxIdleTime(connMaxIdleTime)

	zap.S().Infof("Подключение к PostgreSQL успешно установлено.")
	return db, nil
}

// NewSQLiteDB открывает файл SQLite. Подходит для однонодовой установки и локальной разработки.
// SQLite допускает одного писателя, поэтому пул ограничен одним соединением:
// это же гарантирует, что PRAGMA foreign_keys действует для всех запросов.
func NewSQLiteDB(dsn string) (*sqlx.DB, error) {
	zap.S().Infof("Открытие базы SQLite '%s'...", dsn)

	db, err := sqlx.Connect(DriverSQLite, dsn)
	if err != nil {
		return nil, fmt.Errorf("ошибка подключения к БД: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err = db.Exec(`PRAGMA foreign_keys = ON`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ошибка включения внешних ключей SQLite: %w", err)
	}

	zap.S().Infof("База SQLite открыта.")
	return db, nil
}

// Open подключается к БД указанного драйвера и применяет схему.
func Open(ctx context.Context, driver, dsn string) (*sqlx.DB, error) {
	var (
		db  *sqlx.DB
		err error
	)
	switch driver {
	case DriverPostgres:
		db, err = NewPostgresDB(dsn)
	case DriverSQLite:
		db, err = NewSQLiteDB(dsn)
	default:
		return nil, fmt.Errorf("неподдерживаемый драйвер БД: %s", driver)
	}
	if err != nil {
		return nil, err
	}

	if err = Migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}
