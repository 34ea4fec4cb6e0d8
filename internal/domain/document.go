package domain

import (
	"time"

	"github.com/google/uuid"
)

// Member roles within a document
const (
	RoleOwner  = "owner"
	RoleEditor = "editor"
	RoleViewer = "viewer"
)

// Document is the container for a set of encrypted blocks. CurrentEpoch is
// the generation counter of its root key; it only ever moves forward.
// Maps to the CockroachDB documents table.
type Document struct {
	DocumentID   uuid.UUID `json:"document_id" db:"document_id"`
	OwnerID      uuid.UUID `json:"owner_id" db:"owner_id"`
	Title        string    `json:"title" db:"title"`
	CurrentEpoch int64     `json:"current_epoch" db:"current_epoch"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time `json:"updated_at" db:"updated_at"`
}

// DocumentMember records a user's access to a document. Revoking a member
// triggers a root key rotation; the member keeps the key records of past
// epochs but never receives the new one.
// Maps to the CockroachDB document_members table.
type DocumentMember struct {
	DocumentID uuid.UUID `json:"document_id" db:"document_id"`
	UserID     uuid.UUID `json:"user_id" db:"user_id"`
	Role       string    `json:"role" db:"role"`
	AddedAt    time.Time `json:"added_at" db:"added_at"`
}

// CanEdit reports whether the role may submit new block versions
func (m *DocumentMember) CanEdit() bool {
	return m.Role == RoleOwner || m.Role == RoleEditor
}
