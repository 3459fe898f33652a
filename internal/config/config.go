// Package config собирает конфигурацию сервера: значения по умолчанию,
// затем YAML-файл, затем переменные окружения.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/maynagashev/filehost/internal/session"
	"github.com/maynagashev/filehost/internal/storage"
	"github.com/maynagashev/filehost/internal/tracing"
	"gopkg.in/yaml.v3"
)

// Драйверы базы данных.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
	DriverMemory   = "memory" // Без персистентности, для разработки и тестов
)

// Config - полная конфигурация сервера.
type Config struct {
	Server    ServerConfig        `yaml:"server" envconfig:"SERVER"`
	Database  DatabaseConfig      `yaml:"database" envconfig:"DATABASE"`
	Storage   storage.Config      `yaml:"storage" envconfig:"STORAGE"`
	Auth      AuthConfig          `yaml:"auth" envconfig:"AUTH"`
	Redis     session.RedisConfig `yaml:"redis" envconfig:"REDIS"`
	Integrity IntegrityConfig     `yaml:"integrity" envconfig:"INTEGRITY"`
	Upload    UploadConfig        `yaml:"upload" envconfig:"UPLOAD"`
	RateLimit RateLimitConfig     `yaml:"rate_limit" envconfig:"RATE_LIMIT"`
	Log       LogConfig           `yaml:"log" envconfig:"LOG"`
	Tracing   tracing.Config      `yaml:"tracing" envconfig:"TRACING"`
}

// ServerConfig - параметры HTTP-сервера. TLS включается, если заданы сертификат и ключ.
type ServerConfig struct {
	Port            string        `yaml:"port" split_words:"true"`
	CertFile        string        `yaml:"cert_file" split_words:"true"`
	KeyFile         string        `yaml:"key_file" split_words:"true"`
	ReadTimeout     time.Duration `yaml:"read_timeout" split_words:"true"`
	WriteTimeout    time.Duration `yaml:"write_timeout" split_words:"true"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" split_words:"true"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" split_words:"true"`
}

// TLSEnabled сообщает, что сервер должен слушать HTTPS.
func (s ServerConfig) TLSEnabled() bool {
	return s.CertFile != "" && s.KeyFile != ""
}

// DatabaseConfig - выбор хранилища записей.
type DatabaseConfig struct {
	Driver string `yaml:"driver" split_words:"true"`
	DSN    string `yaml:"dsn" split_words:"true"`
}

// AuthConfig - параметры выдачи токенов.
type AuthConfig struct {
	JWTSecret string        `yaml:"jwt_secret" split_words:"true"`
	TokenTTL  time.Duration `yaml:"token_ttl" split_words:"true"`
}

// IntegrityConfig - политика проверки целостности при скачивании.
type IntegrityConfig struct {
	VerifyOnDownload bool   `yaml:"verify_on_download" split_words:"true"`
	ServeCorrupted   bool   `yaml:"serve_corrupted" split_words:"true"`
	SpoolDir         string `yaml:"spool_dir" split_words:"true"`
}

// UploadConfig - ограничения загрузки.
type UploadConfig struct {
	MaxBytes int64 `yaml:"max_bytes" split_words:"true"`
}

// RateLimitConfig - лимит запросов на регистрацию и вход с одного IP.
type RateLimitConfig struct {
	RPS   float64 `yaml:"rps" split_words:"true"`
	Burst int     `yaml:"burst" split_words:"true"`
}

// LogConfig - параметры логирования.
type LogConfig struct {
	Level       string `yaml:"level" split_words:"true"`
	Development bool   `yaml:"development" split_words:"true"`
}

// Default возвращает конфигурацию по умолчанию.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            "8080",
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    5 * time.Minute, // Скачивание больших файлов
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 15 * time.Second,
		},
		Database: DatabaseConfig{
			Driver: DriverSQLite,
			DSN:    "filehost.db",
		},
		Storage: storage.Config{
			Backend:  storage.BackendLocal,
			LocalDir: "data/files",
			Minio: storage.MinioConfig{
				Endpoint: "localhost:9000",
				Bucket:   "filehost",
			},
			S3: storage.S3Config{
				Region: "us-east-1",
			},
		},
		Auth: AuthConfig{
			TokenTTL: 24 * time.Hour,
		},
		Integrity: IntegrityConfig{
			VerifyOnDownload: true,
		},
		Upload: UploadConfig{
			MaxBytes: 100 << 20,
		},
		RateLimit: RateLimitConfig{
			RPS:   5,
			Burst: 10,
		},
		Log: LogConfig{
			Level: "info",
		},
		Tracing: tracing.Config{
			ServiceName: "filehost",
			SampleRate:  1,
		},
	}
}

// Load применяет к значениям по умолчанию YAML-файл (если path не пустой) и переменные окружения.
// Флаги командной строки применяются вызывающим кодом поверх результата.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("ошибка открытия файла конфигурации: %w", err)
		}
		defer f.Close()
		if err = cfg.decodeYAML(f); err != nil {
			return nil, fmt.Errorf("ошибка разбора файла конфигурации %s: %w", path, err)
		}
	}
	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("ошибка чтения переменных окружения: %w", err)
	}
	return cfg, nil
}

// decodeYAML накладывает YAML поверх текущих значений. Неизвестные ключи считаются ошибкой.
func (c *Config) decodeYAML(r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	return dec.Decode(c)
}

// Validate проверяет согласованность конфигурации.
func (c *Config) Validate() error {
	var errs []error

	switch c.Database.Driver {
	case DriverPostgres, DriverSQLite:
		if c.Database.DSN == "" {
			errs = append(errs, fmt.Errorf("не указана строка подключения для драйвера %s", c.Database.Driver))
		}
	case DriverMemory:
	default:
		errs = append(errs, fmt.Errorf("неподдерживаемый драйвер БД: %q", c.Database.Driver))
	}

	switch c.Storage.Backend {
	case storage.BackendLocal, storage.BackendMinio, storage.BackendS3:
	default:
		errs = append(errs, fmt.Errorf("неподдерживаемый бэкенд хранилища: %q", c.Storage.Backend))
	}

	if c.Auth.JWTSecret == "" && !c.Log.Development {
		errs = append(errs, errors.New("не указан секрет JWT (AUTH_JWT_SECRET)"))
	}
	if c.Auth.TokenTTL <= 0 {
		errs = append(errs, errors.New("время жизни токена должно быть положительным"))
	}
	if c.Upload.MaxBytes <= 0 {
		errs = append(errs, errors.New("лимит загрузки должен быть положительным"))
	}
	if (c.Server.CertFile == "") != (c.Server.KeyFile == "") {
		errs = append(errs, errors.New("сертификат и ключ TLS задаются только вместе"))
	}
	if c.RateLimit.RPS < 0 || c.RateLimit.Burst < 0 {
		errs = append(errs, errors.New("параметры ограничения запросов не могут быть отрицательными"))
	}

	return errors.Join(errs...)
}
