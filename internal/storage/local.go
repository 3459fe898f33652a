package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"go.uber.org/zap"
)

const defaultLocalDir = "data/files"

// LocalStorage хранит содержимое файлов на локальном диске.
type LocalStorage struct {
	baseDir string
}

// NewLocalStorage создает хранилище в каталоге baseDir, создавая его при необходимости.
func NewLocalStorage(baseDir string) (*LocalStorage, error) {
	if baseDir == "" {
		baseDir = defaultLocalDir
	}
	if err := os.MkdirAll(baseDir, 0o750); err != nil {
		return nil, fmt.Errorf("ошибка создания каталога хранилища '%s': %w", baseDir, err)
	}
	zap.S().Infof("[LocalStorage] Файлы хранятся в '%s'", baseDir)
	return &LocalStorage{baseDir: baseDir}, nil
}

// Path возвращает путь к содержимому на диске.
func (s *LocalStorage) Path(location string) (string, error) {
	if err := checkKey(location); err != nil {
		return "", err
	}
	return filepath.Join(s.baseDir, filepath.FromSlash(location)), nil
}

// Store пишет поток во временный файл и переименовывает его только после полной записи.
func (s *LocalStorage) Store(ctx context.Context, name string, reader io.Reader) (string, error) {
	target, err := s.Path(name)
	if err != nil {
		return "", err
	}
	dir := filepath.Dir(target)
	if err = os.MkdirAll(dir, 0o750); err != nil {
		return "", fmt.Errorf("ошибка создания каталога '%s': %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".upload-*")
	if err != nil {
		return "", fmt.Errorf("ошибка создания временного файла: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tmp.Close()
			if rmErr := os.Remove(tmp.Name()); rmErr != nil && !errors.Is(rmErr, fs.ErrNotExist) {
				zap.S().Warnf("[LocalStorage] Не удалось удалить временный файл '%s': %v", tmp.Name(), rmErr)
			}
		}
	}()

	written, err := io.Copy(tmp, ctxReader{ctx: ctx, r: reader})
	if err != nil {
		return "", fmt.Errorf("ошибка записи файла '%s': %w", name, err)
	}
	if err = tmp.Sync(); err != nil {
		return "", fmt.Errorf("ошибка сброса файла '%s' на диск: %w", name, err)
	}
	if err = tmp.Close(); err != nil {
		return "", fmt.Errorf("ошибка закрытия файла '%s': %w", name, err)
	}
	if err = os.Rename(tmp.Name(), target); err != nil {
		return "", fmt.Errorf("ошибка фиксации файла '%s': %w", name, err)
	}
	committed = true

	zap.S().Debugf("[LocalStorage] Файл '%s' записан, размер: %d", name, written)
	return name, nil
}

// Retrieve открывает содержимое на чтение.
func (s *LocalStorage) Retrieve(_ context.Context, location string) (io.ReadCloser, error) {
	p, err := s.Path(location)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrObjectNotFound
		}
		return nil, fmt.Errorf("ошибка открытия файла '%s': %w", location, err)
	}
	return f, nil
}

// Delete удаляет содержимое. Отсутствующий файл не считается ошибкой.
func (s *LocalStorage) Delete(_ context.Context, location string) error {
	p, err := s.Path(location)
	if err != nil {
		return err
	}
	if err = os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("ошибка удаления файла '%s': %w", location, err)
	}
	zap.S().Debugf("[LocalStorage] Файл '%s' удален", location)
	return nil
}
