package docpath

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestClean(t *testing.T) {
	cases := map[string]string{
		"":                "",
		"/":               "",
		" /teams/ ":       "teams",
		"teams/t1/name/":  "teams/t1/name",
		"users/u-1_b/x":   "users/u-1_b/x",
		"teams/1700000/a": "teams/1700000/a",
	}
	for in, want := range cases {
		got, err := Clean(in)
		require.NoError(t, err, in)
		require.Equal(t, want, got, in)
	}

	for _, bad := range []string{"teams//t1", "teams/a.b", "teams/$x", "teams/[0]", "a/#"} {
		_, err := Clean(bad)
		require.ErrorIs(t, err, ErrInvalidPath, bad)
	}
}

func TestAncestryHelpers(t *testing.T) {
	require.True(t, Contains("", "teams/t1"))
	require.True(t, Contains("teams", "teams/t1/name"))
	require.True(t, Contains("teams/t1", "teams/t1"))
	require.False(t, Contains("teams/t1", "teams/t10"))
	require.True(t, Overlaps("teams/t1/members", "teams"))
	require.False(t, Overlaps("teams/t1", "users/u1"))
	require.Equal(t, []string{"a", "a/b"}, Ancestors("a/b/c"))
	require.Nil(t, Ancestors("a"))
	require.Equal(t, "a/b", Parent("a/b/c"))
	require.Equal(t, "", Parent("a"))
	require.Equal(t, "b/c", Rel("a", "a/b/c"))
	require.Equal(t, "a/b", Join("", "a", "", "b"))
}

func TestFlattenAndAssembleRoundTrip(t *testing.T) {
	value := map[string]any{
		"name":      "Launch",
		"questions": []any{"Q1", "Q2"},
		"members": map[string]any{
			"u1": map[string]any{"name": "Ann", "answers": map[string]any{}},
			"u2": map[string]any{"name": "Bob"},
		},
		"empty": nil,
	}

	leaves, err := Flatten("teams/t1", value)
	require.NoError(t, err)
	paths := make([]string, 0, len(leaves))
	for _, leaf := range leaves {
		paths = append(paths, leaf.Path)
	}
	require.Equal(t, []string{
		"teams/t1/members/u1/name",
		"teams/t1/members/u2/name",
		"teams/t1/name",
		"teams/t1/questions",
	}, paths)

	got := Assemble("teams/t1", leaves)
	require.Equal(t, map[string]any{
		"name":      "Launch",
		"questions": []any{"Q1", "Q2"},
		"members": map[string]any{
			"u1": map[string]any{"name": "Ann"},
			"u2": map[string]any{"name": "Bob"},
		},
	}, got)

	require.Equal(t, "Ann", Assemble("teams/t1/members/u1/name", leaves[:1]))
	require.Nil(t, Assemble("teams/t2", nil))
}

func TestFlattenRejectsBadInput(t *testing.T) {
	_, err := Flatten("", "scalar")
	require.ErrorIs(t, err, ErrInvalidPath)

	_, err = Flatten("teams", map[string]any{"bad.key": 1})
	require.ErrorIs(t, err, ErrInvalidPath)
}

func TestPatchTargets(t *testing.T) {
	targets, err := PatchTargets("teams/t1", map[string]any{
		"name":            "New",
		"members/u1/name": "Ann",
	})
	require.NoError(t, err)
	require.Equal(t, []Leaf{
		{Path: "teams/t1/members/u1/name", Value: "Ann"},
		{Path: "teams/t1/name", Value: "New"},
	}, targets)

	_, err = PatchTargets("teams/t1", map[string]any{"members": nil, "members/u1": nil})
	require.True(t, errors.Is(err, ErrInvalidPath))

	// "u1-x" sorts between "u1" and "u1/name".
	_, err = PatchTargets("teams/t1", map[string]any{
		"members/u1":      nil,
		"members/u1-x":    "a",
		"members/u1/name": "b",
	})
	require.ErrorIs(t, err, ErrInvalidPath)

	_, err = PatchTargets("teams/t1", map[string]any{})
	require.ErrorIs(t, err, ErrInvalidPath)
}

func TestCloneIsDeep(t *testing.T) {
	original := map[string]any{"list": []any{"a"}, "child": map[string]any{"k": "v"}}
	copied := Clone(original).(map[string]any)
	copied["list"].([]any)[0] = "changed"
	copied["child"].(map[string]any)["k"] = "changed"
	require.Equal(t, "a", original["list"].([]any)[0])
	require.Equal(t, "v", original["child"].(map[string]any)["k"])
}
