// Package authz решает, разрешено ли пользователю действие над файлом.
package authz

import "github.com/maynagashev/filehost/models"

// Action - действие над файлом.
type Action string

const (
	ActionRead   Action = "read"
	ActionShare  Action = "share"
	ActionDelete Action = "delete"
)

// CanAccess возвращает true, если identity может выполнить action над record.
// Чтение разрешено владельцу и пользователям из SharedWith,
// открытие доступа и удаление - только владельцу.
func CanAccess(identity models.Identity, record *models.Artifact, action Action) bool {
	if record == nil || identity.IsZero() {
		return false
	}
	owner := record.IsOwnedBy(identity.ID)
	switch action {
	case ActionRead:
		return owner || record.IsSharedWith(identity.ID)
	case ActionShare, ActionDelete:
		return owner
	default:
		return false
	}
}
