package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
)

// FileStorage определяет интерфейс для хранения содержимого файлов.
// Location, возвращаемый Store, передается обратно в Retrieve и Delete без изменений.
type FileStorage interface {
	// Store записывает поток под указанным именем и возвращает ссылку на содержимое.
	// При ошибке частично записанные данные не остаются в хранилище.
	Store(ctx context.Context, name string, reader io.Reader) (string, error)
	// Retrieve возвращает поток содержимого. Его нужно закрыть после использования.
	Retrieve(ctx context.Context, location string) (io.ReadCloser, error)
	// Delete освобождает содержимое. Отсутствующий объект не считается ошибкой.
	Delete(ctx context.Context, location string) error
}

// Типы бэкендов хранилища.
const (
	BackendLocal = "local"
	BackendMinio = "minio"
	BackendS3    = "s3"
)

// Config описывает выбор и параметры бэкенда.
type Config struct {
	Backend  string      `yaml:"backend" split_words:"true"`
	LocalDir string      `yaml:"local_dir" split_words:"true"`
	Minio    MinioConfig `yaml:"minio" envconfig:"MINIO"`
	S3       S3Config    `yaml:"s3" envconfig:"S3"`
}

// New создает хранилище выбранного бэкенда.
func New(ctx context.Context, cfg Config) (FileStorage, error) {
	switch cfg.Backend {
	case BackendLocal, "":
		return NewLocalStorage(cfg.LocalDir)
	case BackendMinio:
		return NewMinioStorage(ctx, cfg.Minio)
	case BackendS3:
		return NewS3Storage(ctx, cfg.S3)
	default:
		return nil, fmt.Errorf("неподдерживаемый бэкенд хранилища: %s", cfg.Backend)
	}
}

// checkKey проверяет, что имя объекта относительное и не выходит за пределы корня.
func checkKey(name string) error {
	if name == "" || strings.ContainsAny(name, "\\\x00") {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	for _, part := range strings.Split(name, "/") {
		if part == "" || part == "." || part == ".." {
			return fmt.Errorf("%w: %q", ErrInvalidName, name)
		}
	}
	return nil
}

// ctxReader прерывает чтение при отмене контекста, чтобы оборванная загрузка не дописывалась.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}

// Кастомные ошибки хранилища.
var (
	ErrObjectNotFound = errors.New("объект не найден в хранилище")
	ErrInvalidName    = errors.New("недопустимое имя объекта")
)
