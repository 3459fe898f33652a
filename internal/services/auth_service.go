package services

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/maynagashev/filehost/internal/repository"
	"github.com/maynagashev/filehost/internal/session"
	"github.com/maynagashev/filehost/internal/tracing"
	"github.com/maynagashev/filehost/models"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// AuthService определяет интерфейс для сервиса аутентификации.
type AuthService interface {
	Register(ctx context.Context, username, password string) error
	Login(ctx context.Context, username, password string) (string, error) // Возвращает JWT токен или ошибку
	// Authenticate проверяет подпись, срок действия и отзыв токена.
	Authenticate(ctx context.Context, token string) (*models.Session, error)
	Logout(ctx context.Context, sess *models.Session) error
	// DeleteAccount удаляет файлы пользователя, его доступы и саму учетную запись.
	DeleteAccount(ctx context.Context, sess *models.Session) error
}

// OwnerPurger удаляет все, что принадлежит пользователю.
type OwnerPurger interface {
	PurgeOwner(ctx context.Context, identity models.Identity) error
}

// AuthConfig содержит параметры выдачи токенов.
type AuthConfig struct {
	JWTSecret string
	TokenTTL  time.Duration
}

const (
	defaultTokenTTL   = 24 * time.Hour
	tokenIssuer       = "filehost-server"
	minPasswordLength = 8
	maxPasswordLength = 72 // Предел bcrypt
)

var usernamePattern = regexp.MustCompile(`^[A-Za-z0-9@.+_-]{3,150}$`)

// Структура для пользовательских данных в JWT (claims). Идентификатор токена хранится в jti.
type jwtClaims struct {
	UserID   int64  `json:"user_id"`
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// Убедимся, что authService удовлетворяет интерфейсу AuthService.
var _ AuthService = (*authService)(nil)

type authService struct {
	userRepo repository.UserRepository
	revoker  session.Revoker
	purger   OwnerPurger
	secret   []byte
	tokenTTL time.Duration
	now      func() time.Time
}

// NewAuthService создает новый экземпляр сервиса аутентификации.
func NewAuthService(
	userRepo repository.UserRepository,
	revoker session.Revoker,
	purger OwnerPurger,
	cfg AuthConfig,
) AuthService {
	ttl := cfg.TokenTTL
	if ttl <= 0 {
		ttl = defaultTokenTTL
	}
	return &authService{
		userRepo: userRepo,
		revoker:  revoker,
		purger:   purger,
		secret:   []byte(cfg.JWTSecret),
		tokenTTL: ttl,
		now:      time.Now,
	}
}

// validateCredentials проверяет имя пользователя и пароль при регистрации.
func validateCredentials(username, password string) error {
	if !usernamePattern.MatchString(username) {
		return fmt.Errorf("%w: имя пользователя должно содержать от 3 до 150 символов: буквы, цифры и @.+-_",
			ErrValidation)
	}
	if len(password) < minPasswordLength {
		return fmt.Errorf("%w: пароль должен содержать не менее %d символов", ErrValidation, minPasswordLength)
	}
	if len(password) > maxPasswordLength {
		return fmt.Errorf("%w: пароль не должен превышать %d байт", ErrValidation, maxPasswordLength)
	}
	return nil
}

// Register регистрирует нового пользователя.
func (s *authService) Register(ctx context.Context, username, password string) (err error) {
	ctx, end := tracing.Track(ctx, "AuthService.Register")
	defer func() { end(err) }()

	if err = validateCredentials(username, password); err != nil {
		zap.S().Infof("[AuthService] Отклонена регистрация '%s': %v", username, err)
		return err
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		zap.S().Errorf("[AuthService] Ошибка хеширования пароля для '%s': %v", username, err)
		return errors.New("внутренняя ошибка сервера при хешировании пароля")
	}

	user := &models.User{
		Username:     username,
		PasswordHash: string(hashedPassword),
	}

	if _, err = s.userRepo.CreateUser(ctx, user); err != nil {
		if errors.Is(err, repository.ErrUsernameTaken) {
			zap.S().Infof("[AuthService] Попытка регистрации с занятым именем: %s", username)
			return ErrUsernameTaken
		}
		zap.S().Errorf("[AuthService] Непредвиденная ошибка репозитория при регистрации '%s': %v", username, err)
		return errors.New("внутренняя ошибка сервера при создании пользователя")
	}

	zap.S().Infof("[AuthService] Пользователь '%s' успешно зарегистрирован", username)
	return nil
}

// Login аутентифицирует пользователя и возвращает JWT токен.
func (s *authService) Login(ctx context.Context, username, password string) (_ string, err error) {
	ctx, end := tracing.Track(ctx, "AuthService.Login")
	defer func() { end(err) }()

	user, err := s.userRepo.GetUserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			zap.S().Infof("[AuthService] Попытка входа несуществующего пользователя: %s", username)
			return "", ErrInvalidCredentials // Общая ошибка для несуществующего пользователя и неверного пароля
		}
		zap.S().Errorf("[AuthService] Ошибка репозитория при поиске '%s': %v", username, err)
		return "", errors.New("внутренняя ошибка сервера при поиске пользователя")
	}

	if err = bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		zap.S().Infof("[AuthService] Неверный пароль для пользователя: %s", username)
		return "", ErrInvalidCredentials
	}

	token, err := s.generateJWT(user.Identity())
	if err != nil {
		zap.S().Errorf("[AuthService] Ошибка генерации JWT для '%s': %v", username, err)
		return "", errors.New("внутренняя ошибка сервера при генерации токена")
	}

	zap.S().Infof("[AuthService] Пользователь '%s' успешно аутентифицирован", username)
	return token, nil
}

// generateJWT создает и подписывает JWT токен для пользователя.
func (s *authService) generateJWT(identity models.Identity) (string, error) {
	now := s.now()
	claims := jwtClaims{
		UserID:   identity.ID,
		Username: identity.Username,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.tokenTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    tokenIssuer,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signedToken, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("ошибка подписи JWT: %w", err)
	}
	return signedToken, nil
}

// Authenticate разбирает токен и возвращает сессию. Отозванный токен считается невалидным.
func (s *authService) Authenticate(ctx context.Context, tokenString string) (*models.Session, error) {
	claims := &jwtClaims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(*jwt.Token) (interface{}, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		zap.S().Debugf("[AuthService] Ошибка парсинга/валидации токена: %v", err)
		return nil, ErrInvalidToken
	}
	if claims.UserID == 0 || claims.ID == "" {
		zap.S().Debugf("[AuthService] В токене нет user_id или jti")
		return nil, ErrInvalidToken
	}

	revoked, err := s.revoker.IsRevoked(ctx, claims.ID)
	if err != nil {
		zap.S().Errorf("[AuthService] Ошибка проверки отзыва токена: %v", err)
		return nil, errors.New("внутренняя ошибка сервера при проверке токена")
	}
	if revoked {
		zap.S().Infof("[AuthService] Использован отозванный токен пользователя %d", claims.UserID)
		return nil, ErrInvalidToken
	}

	return &models.Session{
		Identity:  models.Identity{ID: claims.UserID, Username: claims.Username},
		TokenID:   claims.ID,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}

// Logout отзывает токен до истечения его срока действия.
func (s *authService) Logout(ctx context.Context, sess *models.Session) (err error) {
	ctx, end := tracing.Track(ctx, "AuthService.Logout", attribute.Int64("user.id", sess.Identity.ID))
	defer func() { end(err) }()

	if err = s.revoker.Revoke(ctx, sess.TokenID, sess.ExpiresAt); err != nil {
		zap.S().Errorf("[AuthService] Ошибка отзыва токена пользователя %d: %v", sess.Identity.ID, err)
		return errors.New("внутренняя ошибка сервера при выходе")
	}
	zap.S().Infof("[AuthService] Пользователь %d вышел из системы", sess.Identity.ID)
	return nil
}

// DeleteAccount удаляет учетную запись вместе с файлами и отзывает текущий токен.
func (s *authService) DeleteAccount(ctx context.Context, sess *models.Session) (err error) {
	ctx, end := tracing.Track(ctx, "AuthService.DeleteAccount", attribute.Int64("user.id", sess.Identity.ID))
	defer func() { end(err) }()

	identity := sess.Identity
	if err = s.purger.PurgeOwner(ctx, identity); err != nil {
		zap.S().Errorf("[AuthService] Ошибка удаления данных пользователя %d: %v", identity.ID, err)
		return fmt.Errorf("ошибка удаления данных пользователя: %w", err)
	}

	if err = s.userRepo.DeleteUser(ctx, identity.ID); err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return fmt.Errorf("%w: пользователь", ErrNotFound)
		}
		zap.S().Errorf("[AuthService] Ошибка удаления пользователя %d: %v", identity.ID, err)
		return errors.New("внутренняя ошибка сервера при удалении пользователя")
	}

	if revokeErr := s.revoker.Revoke(ctx, sess.TokenID, sess.ExpiresAt); revokeErr != nil {
		zap.S().Warnf("[AuthService] Не удалось отозвать токен удаленного пользователя %d: %v", identity.ID, revokeErr)
	}

	zap.S().Infof("[AuthService] Учетная запись %d ('%s') удалена", identity.ID, identity.Username)
	return nil
}
