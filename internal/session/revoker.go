// Package session хранит отозванные токены доступа до истечения их срока действия.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Revoker регистрирует отозванные токены по их идентификатору (jti).
type Revoker interface {
	// Revoke помечает токен отозванным до момента until. Токен с истекшим сроком не сохраняется.
	Revoke(ctx context.Context, tokenID string, until time.Time) error
	IsRevoked(ctx context.Context, tokenID string) (bool, error)
}

// RedisConfig содержит параметры подключения к Redis. Пустой Addr означает хранение в памяти.
type RedisConfig struct {
	Addr     string `yaml:"addr" split_words:"true"`
	Password string `yaml:"password" split_words:"true"`
	DB       int    `yaml:"db" split_words:"true"`
}

// New создает Redis-реестр, если указан адрес, иначе реестр в памяти процесса.
func New(ctx context.Context, cfg RedisConfig) (Revoker, error) {
	if cfg.Addr == "" {
		zap.S().Infof("[Session] Redis не настроен, отозванные токены хранятся в памяти")
		return NewMemoryRevoker(), nil
	}
	r := NewRedisRevoker(cfg)
	if err := r.client.Ping(ctx).Err(); err != nil {
		_ = r.client.Close()
		return nil, fmt.Errorf("ошибка подключения к Redis %s: %w", cfg.Addr, err)
	}
	zap.S().Infof("[Session] Отозванные токены хранятся в Redis %s", cfg.Addr)
	return r, nil
}

const revokedKeyPrefix = "filehost:revoked:"

// RedisRevoker хранит отозванные токены в Redis с TTL до истечения токена.
type RedisRevoker struct {
	client *redis.Client
	now    func() time.Time
}

// NewRedisRevoker создает реестр поверх клиента Redis.
func NewRedisRevoker(cfg RedisConfig) *RedisRevoker {
	return &RedisRevoker{
		client: redis.NewClient(&redis.Options{
			Addr:     cfg.Addr,
			Password: cfg.Password,
			DB:       cfg.DB,
		}),
		now: time.Now,
	}
}

func (r *RedisRevoker) Revoke(ctx context.Context, tokenID string, until time.Time) error {
	if tokenID == "" {
		return ErrEmptyTokenID
	}
	ttl := until.Sub(r.now())
	if ttl <= 0 {
		return nil
	}
	if err := r.client.Set(ctx, revokedKeyPrefix+tokenID, "1", ttl).Err(); err != nil {
		return fmt.Errorf("ошибка записи отозванного токена в Redis: %w", err)
	}
	return nil
}

func (r *RedisRevoker) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	n, err := r.client.Exists(ctx, revokedKeyPrefix+tokenID).Result()
	if err != nil {
		return false, fmt.Errorf("ошибка проверки токена в Redis: %w", err)
	}
	return n > 0, nil
}

// Close закрывает соединение с Redis.
func (r *RedisRevoker) Close() error {
	return r.client.Close()
}

// MemoryRevoker хранит отозванные токены в памяти процесса.
type MemoryRevoker struct {
	mu      sync.Mutex
	revoked map[string]time.Time
	now     func() time.Time
}

// NewMemoryRevoker создает пустой реестр.
func NewMemoryRevoker() *MemoryRevoker {
	return &MemoryRevoker{revoked: make(map[string]time.Time), now: time.Now}
}

func (m *MemoryRevoker) Revoke(_ context.Context, tokenID string, until time.Time) error {
	if tokenID == "" {
		return ErrEmptyTokenID
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	// Истекшие записи больше не нужны: такие токены отклоняются по exp
	for id, exp := range m.revoked {
		if !exp.After(now) {
			delete(m.revoked, id)
		}
	}
	if until.After(now) {
		m.revoked[tokenID] = until
	}
	return nil
}

func (m *MemoryRevoker) IsRevoked(_ context.Context, tokenID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	exp, ok := m.revoked[tokenID]
	return ok && exp.After(m.now()), nil
}

var ErrEmptyTokenID = errors.New("пустой идентификатор токена")
