// Package memory keeps identities and the document tree in process memory. It backs the
// api when STORE_DRIVER=memory and is the fixture most service tests run against.
package memory

import (
	"context"
	"strings"
	"sync"

	"github.com/splax/teamroster/internal/docpath"
	"github.com/splax/teamroster/internal/domain"
	"github.com/splax/teamroster/internal/repository"
)

// Repository implements the repository interfaces with maps guarded by one mutex.
type Repository struct {
	mu         sync.RWMutex
	identities map[string]domain.Identity
	byEmail    map[string]string
	leaves     map[string]any
}

// New constructs an empty Repository.
func New() *Repository {
	return &Repository{
		identities: make(map[string]domain.Identity),
		byEmail:    make(map[string]string),
		leaves:     make(map[string]any),
	}
}

var (
	_ repository.IdentityRepository = (*Repository)(nil)
	_ repository.DocumentRepository = (*Repository)(nil)
)

// CreateIdentity stores an identity; emails are unique case-insensitively.
func (r *Repository) CreateIdentity(ctx context.Context, identity *domain.Identity) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := strings.ToLower(identity.Email)
	if _, exists := r.byEmail[key]; exists {
		return repository.ErrConflict
	}
	if _, exists := r.identities[identity.ID]; exists {
		return repository.ErrConflict
	}
	stored := *identity
	stored.PasswordHash = append([]byte(nil), identity.PasswordHash...)
	r.identities[identity.ID] = stored
	r.byEmail[key] = identity.ID
	return nil
}

// GetIdentityByEmail fetches an identity by email.
func (r *Repository) GetIdentityByEmail(ctx context.Context, email string) (*domain.Identity, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byEmail[strings.ToLower(email)]
	if !ok {
		return nil, repository.ErrNotFound
	}
	identity := r.identities[id]
	return &identity, nil
}

// GetIdentityByID fetches an identity by id.
func (r *Repository) GetIdentityByID(ctx context.Context, id string) (*domain.Identity, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	identity, ok := r.identities[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &identity, nil
}

// DeleteIdentity removes an identity and frees its email.
func (r *Repository) DeleteIdentity(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	identity, ok := r.identities[id]
	if !ok {
		return nil
	}
	delete(r.byEmail, strings.ToLower(identity.Email))
	delete(r.identities, id)
	return nil
}

// GetNode assembles the subtree at path.
func (r *Repository) GetNode(ctx context.Context, path string) (any, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	leaves := make([]docpath.Leaf, 0)
	for p, v := range r.leaves {
		if docpath.Contains(path, p) {
			leaves = append(leaves, docpath.Leaf{Path: p, Value: v})
		}
	}
	return docpath.Assemble(path, leaves), nil
}

// SetNode replaces the subtree at path.
func (r *Repository) SetNode(ctx context.Context, path string, value any) error {
	leaves, err := docpath.Flatten(path, value)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.replaceLocked(path, leaves)
	return nil
}

// UpdateNode applies a multi-location patch under one lock.
func (r *Repository) UpdateNode(ctx context.Context, path string, patch map[string]any) error {
	targets, err := docpath.PatchTargets(path, patch)
	if err != nil {
		return err
	}
	flattened := make([][]docpath.Leaf, len(targets))
	for i, target := range targets {
		leaves, err := docpath.Flatten(target.Path, target.Value)
		if err != nil {
			return err
		}
		flattened[i] = leaves
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, target := range targets {
		r.replaceLocked(target.Path, flattened[i])
	}
	return nil
}

// RemoveNode deletes the subtree at path.
func (r *Repository) RemoveNode(ctx context.Context, path string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.replaceLocked(path, nil)
	return nil
}

func (r *Repository) replaceLocked(path string, leaves []docpath.Leaf) {
	for p := range r.leaves {
		if docpath.Contains(path, p) {
			delete(r.leaves, p)
		}
	}
	for _, ancestor := range docpath.Ancestors(path) {
		delete(r.leaves, ancestor)
	}
	for _, leaf := range leaves {
		r.leaves[leaf.Path] = leaf.Value
	}
}
