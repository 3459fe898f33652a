package repository

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"

	"github.com/maynagashev/filehost/models"
)

// MemoryStore хранит пользователей и файлы в памяти процесса.
// Реализует UserRepository и ArtifactRepository. Все операции выполняются под одной блокировкой,
// записи публикуются только полностью собранными, наружу отдаются копии.
type MemoryStore struct {
	mu             sync.RWMutex
	users          map[int64]*models.User
	usernames      map[string]int64
	artifacts      map[int64]*models.Artifact
	nextUserID     int64
	nextArtifactID int64
	now            func() time.Time
}

var (
	_ UserRepository     = (*MemoryStore)(nil)
	_ ArtifactRepository = (*MemoryStore)(nil)
)

// NewMemoryStore создает пустое хранилище.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:     make(map[int64]*models.User),
		usernames: make(map[string]int64),
		artifacts: make(map[int64]*models.Artifact),
		now:       time.Now,
	}
}

func (m *MemoryStore) CreateUser(_ context.Context, user *models.User) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.usernames[user.Username]; exists {
		return 0, ErrUsernameTaken
	}
	m.nextUserID++
	u := *user
	u.ID = m.nextUserID
	u.CreatedAt = m.now()
	u.UpdatedAt = u.CreatedAt
	m.users[u.ID] = &u
	m.usernames[u.Username] = u.ID
	return u.ID, nil
}

func (m *MemoryStore) GetUserByUsername(_ context.Context, username string) (*models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.usernames[username]
	if !ok {
		return nil, ErrUserNotFound
	}
	u := *m.users[id]
	return &u, nil
}

func (m *MemoryStore) GetUserByID(_ context.Context, userID int64) (*models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	u, ok := m.users[userID]
	if !ok {
		return nil, ErrUserNotFound
	}
	c := *u
	return &c, nil
}

// DeleteUser удаляет пользователя вместе с его файлами и доступами, как каскад внешних ключей.
func (m *MemoryStore) DeleteUser(_ context.Context, userID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.users[userID]
	if !ok {
		return ErrUserNotFound
	}
	delete(m.usernames, u.Username)
	delete(m.users, userID)
	for id, a := range m.artifacts {
		if a.OwnerID == userID {
			delete(m.artifacts, id)
			continue
		}
		a.SharedWith = slices.DeleteFunc(a.SharedWith, func(g int64) bool { return g == userID })
	}
	return nil
}

func (m *MemoryStore) CreateArtifact(_ context.Context, artifact *models.Artifact) (*models.Artifact, error) {
	if err := validateNewArtifact(artifact); err != nil {
		return nil, err
	}

	// Запись собирается целиком до публикации в карте
	created := artifact.Clone()
	created.SharedWith = []int64{}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.users[artifact.OwnerID]; !ok {
		return nil, ErrUserNotFound
	}
	m.nextArtifactID++
	created.ID = m.nextArtifactID
	created.CreatedAt = m.now()
	m.artifacts[created.ID] = created
	return created.Clone(), nil
}

func (m *MemoryStore) GetArtifact(_ context.Context, artifactID int64) (*models.Artifact, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	a, ok := m.artifacts[artifactID]
	if !ok {
		return nil, ErrArtifactNotFound
	}
	return a.Clone(), nil
}

func (m *MemoryStore) AddShare(_ context.Context, artifactID, userID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.artifacts[artifactID]
	if !ok {
		return ErrArtifactNotFound
	}
	if a.OwnerID == userID {
		return ErrSelfShare
	}
	if _, ok = m.users[userID]; !ok {
		return ErrUserNotFound
	}
	if a.IsSharedWith(userID) {
		return nil
	}
	a.SharedWith = append(a.SharedWith, userID)
	slices.Sort(a.SharedWith)
	return nil
}

func (m *MemoryStore) DeleteArtifact(_ context.Context, artifactID, ownerID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.artifacts[artifactID]
	if !ok || a.OwnerID != ownerID {
		return ErrArtifactNotFound
	}
	delete(m.artifacts, artifactID)
	return nil
}

func (m *MemoryStore) ListVisibleTo(_ context.Context, userID int64) ([]models.Artifact, error) {
	return m.list(func(a *models.Artifact) bool {
		return a.OwnerID == userID || a.IsSharedWith(userID)
	}), nil
}

func (m *MemoryStore) ListOwnedBy(_ context.Context, ownerID int64) ([]models.Artifact, error) {
	return m.list(func(a *models.Artifact) bool {
		return a.OwnerID == ownerID
	}), nil
}

func (m *MemoryStore) list(match func(a *models.Artifact) bool) []models.Artifact {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]models.Artifact, 0)
	for _, a := range m.artifacts {
		if match(a) {
			result = append(result, *a.Clone())
		}
	}
	// ID выдаются монотонно, поэтому сортировка по ID - это порядок создания
	slices.SortFunc(result, func(x, y models.Artifact) int {
		return cmp.Compare(x.ID, y.ID)
	})
	return result
}

func (m *MemoryStore) RemoveGrantee(_ context.Context, userID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, a := range m.artifacts {
		a.SharedWith = slices.DeleteFunc(a.SharedWith, func(g int64) bool { return g == userID })
	}
	return nil
}
