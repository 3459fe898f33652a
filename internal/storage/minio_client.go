package storage

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/zap"
)

const minioNoSuchKey = "NoSuchKey"

// minioAPI - используемая часть клиента MinIO.
type minioAPI interface {
	PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64,
		opts minio.PutObjectOptions) (minio.UploadInfo, error)
	GetObject(ctx context.Context, bucketName, objectName string, opts minio.GetObjectOptions) (*minio.Object, error)
	StatObject(ctx context.Context, bucketName, objectName string, opts minio.StatObjectOptions) (minio.ObjectInfo, error)
	RemoveObject(ctx context.Context, bucketName, objectName string, opts minio.RemoveObjectOptions) error
}

// MinioStorage реализует FileStorage для MinIO.
type MinioStorage struct {
	client     minioAPI
	bucketName string
}

// MinioConfig содержит параметры для подключения к MinIO.
type MinioConfig struct {
	Endpoint        string `yaml:"endpoint" split_words:"true"`          // Адрес MinIO (например, "localhost:9000")
	AccessKeyID     string `yaml:"access_key_id" split_words:"true"`     // Логин
	SecretAccessKey string `yaml:"secret_access_key" split_words:"true"` // Пароль
	UseSSL          bool   `yaml:"use_ssl" split_words:"true"`
	Bucket          string `yaml:"bucket" split_words:"true"`
	Region          string `yaml:"region" split_words:"true"`
}

// NewMinioStorage создает клиент MinIO и при необходимости создает бакет.
func NewMinioStorage(ctx context.Context, cfg MinioConfig) (*MinioStorage, error) {
	zap.S().Infof("[Minio] Инициализация клиента для эндпоинта %s...", cfg.Endpoint)
	if cfg.Bucket == "" {
		return nil, errors.New("не указано имя бакета MinIO")
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("ошибка инициализации клиента MinIO: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("ошибка проверки существования бакета '%s': %w", cfg.Bucket, err)
	}
	if !exists {
		zap.S().Infof("[Minio] Бакет '%s' не найден, создаем...", cfg.Bucket)
		err = client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{Region: cfg.Region})
		if err != nil {
			return nil, fmt.Errorf("ошибка создания бакета '%s': %w", cfg.Bucket, err)
		}
	}

	zap.S().Infof("[Minio] Клиент инициализирован для бакета '%s'", cfg.Bucket)
	return &MinioStorage{client: client, bucketName: cfg.Bucket}, nil
}

// Store загружает поток неизвестной длины. MinIO публикует объект только после
// завершения загрузки, так что оборванный поток не оставляет объекта.
func (s *MinioStorage) Store(ctx context.Context, name string, reader io.Reader) (string, error) {
	if err := checkKey(name); err != nil {
		return "", err
	}

	opts := minio.PutObjectOptions{ContentType: "application/octet-stream"}
	info, err := s.client.PutObject(ctx, s.bucketName, name, ctxReader{ctx: ctx, r: reader}, -1, opts)
	if err != nil {
		zap.S().Errorf("[Minio] Ошибка загрузки файла '%s': %v", name, err)
		return "", fmt.Errorf("ошибка загрузки файла в MinIO: %w", err)
	}

	zap.S().Debugf("[Minio] Файл '%s' загружен, размер: %d, ETag: %s", name, info.Size, info.ETag)
	return name, nil
}

// Retrieve возвращает поток объекта. Существование проверяется заранее,
// потому что GetObject сообщает об отсутствии ключа только при первом чтении.
func (s *MinioStorage) Retrieve(ctx context.Context, location string) (io.ReadCloser, error) {
	if _, err := s.client.StatObject(ctx, s.bucketName, location, minio.StatObjectOptions{}); err != nil {
		if isMinioNotFound(err) {
			zap.S().Warnf("[Minio] Файл '%s' не найден в бакете '%s'", location, s.bucketName)
			return nil, ErrObjectNotFound
		}
		return nil, fmt.Errorf("ошибка получения метаданных из MinIO: %w", err)
	}

	object, err := s.client.GetObject(ctx, s.bucketName, location, minio.GetObjectOptions{})
	if err != nil {
		if isMinioNotFound(err) {
			return nil, ErrObjectNotFound
		}
		zap.S().Errorf("[Minio] Ошибка получения файла '%s': %v", location, err)
		return nil, fmt.Errorf("ошибка получения файла из MinIO: %w", err)
	}
	return object, nil
}

// Delete удаляет объект. MinIO не считает удаление отсутствующего ключа ошибкой.
func (s *MinioStorage) Delete(ctx context.Context, location string) error {
	if err := s.client.RemoveObject(ctx, s.bucketName, location, minio.RemoveObjectOptions{}); err != nil {
		if isMinioNotFound(err) {
			return nil
		}
		return fmt.Errorf("ошибка удаления файла из MinIO: %w", err)
	}
	zap.S().Debugf("[Minio] Файл '%s' удален", location)
	return nil
}

func isMinioNotFound(err error) bool {
	var minioErr minio.ErrorResponse
	return errors.As(err, &minioErr) && minioErr.Code == minioNoSuchKey
}
