package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"go.uber.org/zap"
)

// s3API - используемая часть клиента S3.
type s3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput,
		optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// S3Storage реализует FileStorage для AWS S3 и совместимых хранилищ.
type S3Storage struct {
	client s3API
	bucket string
	prefix string
}

// S3Config содержит параметры S3.
type S3Config struct {
	Bucket   string `yaml:"bucket" split_words:"true"`
	Region   string `yaml:"region" split_words:"true"`
	Endpoint string `yaml:"endpoint" split_words:"true"` // Нестандартный адрес (MinIO, LocalStack)
	Prefix   string `yaml:"prefix" split_words:"true"`
}

// NewS3Storage создает клиент S3. Учетные данные берутся из стандартной цепочки AWS.
func NewS3Storage(ctx context.Context, cfg S3Config) (*S3Storage, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("не указан бакет S3")
	}
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("ошибка загрузки конфигурации AWS: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	zap.S().Infof("[S3] Клиент инициализирован для бакета '%s' (регион %s)", cfg.Bucket, region)
	return &S3Storage{client: client, bucket: cfg.Bucket, prefix: cfg.Prefix}, nil
}

func (s *S3Storage) key(location string) string {
	return s.prefix + location
}

// Store загружает поток. SDK требует тело с известной длиной, поэтому поток
// сначала копируется во временный файл.
func (s *S3Storage) Store(ctx context.Context, name string, reader io.Reader) (string, error) {
	if err := checkKey(name); err != nil {
		return "", err
	}

	spool, err := os.CreateTemp("", "filehost-s3-*")
	if err != nil {
		return "", fmt.Errorf("ошибка создания временного файла: %w", err)
	}
	defer func() {
		_ = spool.Close()
		_ = os.Remove(spool.Name())
	}()

	size, err := io.Copy(spool, ctxReader{ctx: ctx, r: reader})
	if err != nil {
		return "", fmt.Errorf("ошибка чтения загружаемого файла '%s': %w", name, err)
	}
	if _, err = spool.Seek(0, io.SeekStart); err != nil {
		return "", fmt.Errorf("ошибка перемотки временного файла: %w", err)
	}

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(s.key(name)),
		Body:          spool,
		ContentLength: aws.Int64(size),
		ContentType:   aws.String("application/octet-stream"),
	})
	if err != nil {
		zap.S().Errorf("[S3] Ошибка загрузки файла '%s': %v", name, err)
		return "", fmt.Errorf("ошибка загрузки файла в S3: %w", err)
	}

	zap.S().Debugf("[S3] Файл '%s' загружен, размер: %d", name, size)
	return name, nil
}

// Retrieve возвращает поток объекта.
func (s *S3Storage) Retrieve(ctx context.Context, location string) (io.ReadCloser, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(location)),
	})
	if err != nil {
		var noSuchKey *types.NoSuchKey
		if errors.As(err, &noSuchKey) {
			zap.S().Warnf("[S3] Файл '%s' не найден в бакете '%s'", location, s.bucket)
			return nil, ErrObjectNotFound
		}
		return nil, fmt.Errorf("ошибка получения файла из S3: %w", err)
	}
	return out.Body, nil
}

// Delete удаляет объект. S3 не сообщает об ошибке для отсутствующего ключа.
func (s *S3Storage) Delete(ctx context.Context, location string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(location)),
	})
	if err != nil {
		return fmt.Errorf("ошибка удаления файла из S3: %w", err)
	}
	zap.S().Debugf("[S3] Файл '%s' удален", location)
	return nil
}
