package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/splax/teamroster/internal/domain"
	"github.com/splax/teamroster/internal/repository"
)

func TestIdentityLifecycle(t *testing.T) {
	ctx := context.Background()
	repo := New()
	identity := &domain.Identity{ID: "u1", Email: "Ann@Example.com", PasswordHash: []byte("h"), Role: domain.RoleUser, CreatedAt: time.Now()}
	require.NoError(t, repo.CreateIdentity(ctx, identity))

	err := repo.CreateIdentity(ctx, &domain.Identity{ID: "u2", Email: "ann@example.com"})
	require.ErrorIs(t, err, repository.ErrConflict)

	got, err := repo.GetIdentityByEmail(ctx, "ANN@example.com")
	require.NoError(t, err)
	require.Equal(t, "u1", got.ID)

	_, err = repo.GetIdentityByID(ctx, "missing")
	require.ErrorIs(t, err, repository.ErrNotFound)
}

func TestSetReplacesSubtree(t *testing.T) {
	ctx := context.Background()
	repo := New()
	require.NoError(t, repo.SetNode(ctx, "teams/t1", map[string]any{
		"name":    "Launch",
		"members": map[string]any{"u1": map[string]any{"name": "Ann"}},
	}))
	require.NoError(t, repo.SetNode(ctx, "teams/t1", map[string]any{"name": "Renamed"}))

	got, err := repo.GetNode(ctx, "teams/t1")
	require.NoError(t, err)
	require.Equal(t, map[string]any{"name": "Renamed"}, got)
}

func TestSetBelowScalarReplacesAncestorLeaf(t *testing.T) {
	ctx := context.Background()
	repo := New()
	require.NoError(t, repo.SetNode(ctx, "teams/t1/name", "Launch"))
	require.NoError(t, repo.SetNode(ctx, "teams/t1/name/first", "L"))

	got, err := repo.GetNode(ctx, "teams/t1")
	require.NoError(t, err)
	require.Equal(t, map[string]any{"name": map[string]any{"first": "L"}}, got)
}

func TestUpdateTouchesOnlyNamedChildren(t *testing.T) {
	ctx := context.Background()
	repo := New()
	require.NoError(t, repo.SetNode(ctx, "teams/t1", map[string]any{
		"name":     "Launch",
		"category": "Sales",
		"members":  map[string]any{"u1": map[string]any{"name": "Ann"}},
	}))
	require.NoError(t, repo.UpdateNode(ctx, "teams/t1", map[string]any{
		"name":    "Launch v2",
		"members": map[string]any{"u2": map[string]any{"name": "Bob"}},
	}))

	got, err := repo.GetNode(ctx, "teams/t1")
	require.NoError(t, err)
	require.Equal(t, map[string]any{
		"name":     "Launch v2",
		"category": "Sales",
		"members":  map[string]any{"u2": map[string]any{"name": "Bob"}},
	}, got)
}

func TestRemoveAndReadAbsent(t *testing.T) {
	ctx := context.Background()
	repo := New()
	require.NoError(t, repo.SetNode(ctx, "teams/t1/name", "Launch"))
	require.NoError(t, repo.SetNode(ctx, "teams/t2/name", "Other"))
	require.NoError(t, repo.RemoveNode(ctx, "teams/t1"))
	require.NoError(t, repo.RemoveNode(ctx, "teams/missing"))

	got, err := repo.GetNode(ctx, "teams")
	require.NoError(t, err)
	require.Equal(t, map[string]any{"t2": map[string]any{"name": "Other"}}, got)

	absent, err := repo.GetNode(ctx, "teams/t1")
	require.NoError(t, err)
	require.Nil(t, absent)
}
