package repository

import (
	"context"

	"github.com/splax/teamroster/internal/domain"
)

// IdentityRepository persists credential records.
type IdentityRepository interface {
	CreateIdentity(ctx context.Context, identity *domain.Identity) error
	GetIdentityByEmail(ctx context.Context, email string) (*domain.Identity, error)
	GetIdentityByID(ctx context.Context, id string) (*domain.Identity, error)
	// DeleteIdentity removes an identity; deleting an absent id is not an error.
	DeleteIdentity(ctx context.Context, id string) error
}

// DocumentRepository stores the path-addressed document tree. Paths are clean docpath
// paths. Reading an absent path yields a nil value, not ErrNotFound.
type DocumentRepository interface {
	GetNode(ctx context.Context, path string) (any, error)
	// SetNode replaces the subtree at path. A nil value removes it.
	SetNode(ctx context.Context, path string, value any) error
	// UpdateNode applies every key of patch, relative to path, atomically.
	UpdateNode(ctx context.Context, path string, patch map[string]any) error
	RemoveNode(ctx context.Context, path string) error
}
