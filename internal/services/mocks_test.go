package services_test

import (
	"context"
	"io"
	"time"

	"github.com/maynagashev/filehost/models"
	"github.com/stretchr/testify/mock"
)

// --- Mocks ---

// MockUserRepository is a mock for UserRepository.
type MockUserRepository struct {
	mock.Mock
}

func (m *MockUserRepository) CreateUser(ctx context.Context, user *models.User) (int64, error) {
	args := m.Called(ctx, user)
	//nolint:errcheck // Ошибки кастования в моках приемлемы
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockUserRepository) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	args := m.Called(ctx, username)
	ret := args.Get(0)
	if ret == nil {
		return nil, args.Error(1)
	}
	//nolint:errcheck // Ошибки кастования в моках приемлемы
	return ret.(*models.User), args.Error(1)
}

func (m *MockUserRepository) GetUserByID(ctx context.Context, userID int64) (*models.User, error) {
	args := m.Called(ctx, userID)
	ret := args.Get(0)
	if ret == nil {
		return nil, args.Error(1)
	}
	//nolint:errcheck // Ошибки кастования в моках приемлемы
	return ret.(*models.User), args.Error(1)
}

func (m *MockUserRepository) DeleteUser(ctx context.Context, userID int64) error {
	args := m.Called(ctx, userID)
	return args.Error(0)
}

// MockArtifactRepository is a mock for ArtifactRepository.
type MockArtifactRepository struct {
	mock.Mock
}

func (m *MockArtifactRepository) CreateArtifact(
	ctx context.Context,
	artifact *models.Artifact,
) (*models.Artifact, error) {
	args := m.Called(ctx, artifact)
	ret := args.Get(0)
	if ret == nil {
		return nil, args.Error(1)
	}
	//nolint:errcheck // Ошибки кастования в моках приемлемы
	return ret.(*models.Artifact), args.Error(1)
}

func (m *MockArtifactRepository) GetArtifact(ctx context.Context, artifactID int64) (*models.Artifact, error) {
	args := m.Called(ctx, artifactID)
	ret := args.Get(0)
	if ret == nil {
		return nil, args.Error(1)
	}
	//nolint:errcheck // Ошибки кастования в моках приемлемы
	return ret.(*models.Artifact), args.Error(1)
}

func (m *MockArtifactRepository) AddShare(ctx context.Context, artifactID, userID int64) error {
	args := m.Called(ctx, artifactID, userID)
	return args.Error(0)
}

func (m *MockArtifactRepository) DeleteArtifact(ctx context.Context, artifactID, ownerID int64) error {
	args := m.Called(ctx, artifactID, ownerID)
	return args.Error(0)
}

func (m *MockArtifactRepository) ListVisibleTo(ctx context.Context, userID int64) ([]models.Artifact, error) {
	args := m.Called(ctx, userID)
	ret := args.Get(0)
	if ret == nil {
		return nil, args.Error(1)
	}
	//nolint:errcheck // Ошибки кастования в моках приемлемы
	return ret.([]models.Artifact), args.Error(1)
}

func (m *MockArtifactRepository) ListOwnedBy(ctx context.Context, ownerID int64) ([]models.Artifact, error) {
	args := m.Called(ctx, ownerID)
	ret := args.Get(0)
	if ret == nil {
		return nil, args.Error(1)
	}
	//nolint:errcheck // Ошибки кастования в моках приемлемы
	return ret.([]models.Artifact), args.Error(1)
}

func (m *MockArtifactRepository) RemoveGrantee(ctx context.Context, userID int64) error {
	args := m.Called(ctx, userID)
	return args.Error(0)
}

// MockFileStorage is a mock for FileStorage.
type MockFileStorage struct {
	mock.Mock
}

func (m *MockFileStorage) Store(ctx context.Context, name string, r io.Reader) (string, error) {
	// Читаем поток, как это делает настоящее хранилище
	_, readErr := io.Copy(io.Discard, r)
	args := m.Called(ctx, name, r)
	if readErr != nil {
		return "", readErr
	}
	return args.String(0), args.Error(1)
}

func (m *MockFileStorage) Retrieve(ctx context.Context, location string) (io.ReadCloser, error) {
	args := m.Called(ctx, location)
	ret := args.Get(0)
	if ret == nil {
		return nil, args.Error(1)
	}
	//nolint:errcheck // Ошибки кастования в моках приемлемы
	return ret.(io.ReadCloser), args.Error(1)
}

func (m *MockFileStorage) Delete(ctx context.Context, location string) error {
	args := m.Called(ctx, location)
	return args.Error(0)
}

// MockRevoker is a mock for session.Revoker.
type MockRevoker struct {
	mock.Mock
}

func (m *MockRevoker) Revoke(ctx context.Context, tokenID string, until time.Time) error {
	args := m.Called(ctx, tokenID, until)
	return args.Error(0)
}

func (m *MockRevoker) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	args := m.Called(ctx, tokenID)
	return args.Bool(0), args.Error(1)
}

// MockOwnerPurger is a mock for OwnerPurger.
type MockOwnerPurger struct {
	mock.Mock
}

func (m *MockOwnerPurger) PurgeOwner(ctx context.Context, identity models.Identity) error {
	args := m.Called(ctx, identity)
	return args.Error(0)
}
