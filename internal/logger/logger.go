// Package logger настраивает zap и делает его глобальным логгером приложения.
package logger

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New создает логгер с указанным уровнем и заменяет им глобальный (zap.L, zap.S).
// Возвращает функцию, которую нужно вызвать при завершении для сброса буферов.
func New(level string, development bool) (*zap.Logger, func(), error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, nil, fmt.Errorf("неизвестный уровень логирования '%s': %w", level, err)
	}

	var cfg zap.Config
	if development {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)

	l, err := cfg.Build()
	if err != nil {
		return nil, nil, fmt.Errorf("ошибка создания логгера: %w", err)
	}

	restore := zap.ReplaceGlobals(l)
	cleanup := func() {
		_ = l.Sync() // Sync на stderr часто возвращает EINVAL, игнорируем
		restore()
	}
	return l, cleanup, nil
}
