package models

import (
	"slices"
	"time"
)

// Artifact представляет запись о загруженном файле.
// Отпечаток (SHA-256, 64 hex-символа) вычисляется по тем же байтам, что записаны по Location.
type Artifact struct {
	ID          int64     `db:"id" json:"id"`
	OwnerID     int64     `db:"owner_id" json:"owner_id"`
	Name        string    `db:"name" json:"name"`
	Location    string    `db:"location" json:"location"`
	Fingerprint string    `db:"fingerprint" json:"fingerprint"`
	SizeBytes   int64     `db:"size_bytes" json:"size_bytes"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	// SharedWith - ID пользователей с правом чтения. Владелец сюда никогда не входит.
	SharedWith []int64 `db:"-" json:"shared_with"`
}

// IsOwnedBy сообщает, является ли пользователь владельцем файла.
func (a *Artifact) IsOwnedBy(userID int64) bool {
	return a.OwnerID == userID
}

// IsSharedWith сообщает, открыт ли файл пользователю на чтение.
func (a *Artifact) IsSharedWith(userID int64) bool {
	return slices.Contains(a.SharedWith, userID)
}

// Clone возвращает копию записи, не разделяющую срез SharedWith.
func (a *Artifact) Clone() *Artifact {
	c := *a
	c.SharedWith = slices.Clone(a.SharedWith)
	return &c
}

// Verdict - результат проверки целостности файла.
type Verdict string

const (
	VerdictIntact     Verdict = "intact"
	VerdictCorrupted  Verdict = "corrupted"
	VerdictUnverified Verdict = "unverified" // Проверка при скачивании отключена
)

// ArtifactListItem - элемент списка файлов, видимых пользователю.
type ArtifactListItem struct {
	Artifact
	Owned bool `json:"owned"`
}

// UploadResponse представляет тело ответа после успешной загрузки.
type UploadResponse struct {
	ID          int64  `json:"id"`
	Location    string `json:"location"`
	Fingerprint string `json:"fingerprint"`
}

// ShareRequest представляет тело запроса на открытие доступа.
type ShareRequest struct {
	Username string `json:"username"`
}

// VerifyResponse представляет тело ответа проверки целостности.
type VerifyResponse struct {
	ID          int64   `json:"id"`
	Verdict     Verdict `json:"verdict"`
	Fingerprint string  `json:"fingerprint"`
}
