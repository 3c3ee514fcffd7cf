package state

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/splax/teamroster/internal/domain"
)

func sampleSession() Session {
	return Session{
		Profile:      domain.Profile{ID: "u1", Name: "Ada", Email: "ada@example.com", Role: domain.RoleUser},
		AccessToken:  "access",
		RefreshToken: "refresh",
	}
}

func TestNewSeedsFromPersistedSession(t *testing.T) {
	dir := t.TempDir()
	persist := NewFileSessionStore(filepath.Join(dir, "teamroster", "session.json"))

	fresh := New(persist, nil)
	require.False(t, fresh.Auth().Authenticated)
	require.True(t, fresh.Theme().DarkMode)

	require.NoError(t, fresh.SignInSucceeded(sampleSession()))

	restored := New(persist, nil)
	auth := restored.Auth()
	require.True(t, auth.Authenticated)
	require.Equal(t, sampleSession(), auth.Session)

	require.NoError(t, restored.SignedOut())
	_, err := os.Stat(persist.Path())
	require.True(t, errors.Is(err, os.ErrNotExist))
	require.False(t, New(persist, nil).Auth().Authenticated)
}

func TestCorruptSessionIsSignedOut(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	store := New(NewFileSessionStore(path), nil)
	require.False(t, store.Auth().Authenticated)
}

func TestTeamsSliceKeepsIDOrder(t *testing.T) {
	store := New(nil, nil)
	store.SetTeamsLoading()
	require.True(t, store.Teams().Loading)

	store.ReplaceTeams([]domain.Team{
		{ID: "c", Name: "Third", Author: "u2"},
		{ID: "a", Name: "First", Author: "u1", Members: map[string]domain.Member{"u2": {Name: "Bob"}}},
	})
	teams := store.Teams()
	require.False(t, teams.Loading)
	require.Equal(t, []string{"a", "c"}, ids(teams.Items))

	store.UpsertTeam(domain.Team{ID: "b", Name: "Second", Author: "u1"})
	store.UpsertTeam(domain.Team{ID: "c", Name: "Third, renamed", Author: "u2"})
	require.Equal(t, []string{"a", "b", "c"}, ids(store.Teams().Items))

	c, ok := store.Team("c")
	require.True(t, ok)
	require.Equal(t, "Third, renamed", c.Name)

	require.Equal(t, []string{"a", "b"}, ids(store.TeamsAuthoredBy("u1")))
	require.Equal(t, []string{"a"}, ids(store.TeamsWithMember("u2")))

	store.RemoveTeam("b")
	store.RemoveTeam("missing")
	require.Equal(t, []string{"a", "c"}, ids(store.Teams().Items))

	store.SetTeamsError(errors.New("offline"))
	teams = store.Teams()
	require.EqualError(t, teams.Err, "offline")
	require.Len(t, teams.Items, 2)
}

func TestSelectorsReturnCopies(t *testing.T) {
	store := New(nil, nil)
	store.UpsertTeam(domain.Team{ID: "a", Members: map[string]domain.Member{"u1": {Name: "Ada"}}, Questions: []string{"q"}})

	team, _ := store.Team("a")
	team.Members["u9"] = domain.Member{Name: "Intruder"}
	team.Questions[0] = "changed"

	again, _ := store.Team("a")
	require.False(t, again.HasMember("u9"))
	require.Equal(t, []string{"q"}, again.Questions)
}

func TestListenersAndDisposers(t *testing.T) {
	store := New(nil, nil)
	var seen []Snapshot
	dispose := store.Subscribe(func(s Snapshot) { seen = append(seen, s) })

	store.ToggleDarkMode()
	store.SetDarkMode(true)
	dispose()
	dispose()
	store.ToggleDarkMode()

	require.Len(t, seen, 2)
	require.False(t, seen[0].Theme.DarkMode)
	require.True(t, seen[1].Theme.DarkMode)
	require.Less(t, seen[0].Version, seen[1].Version)
	require.False(t, store.Theme().DarkMode)
}

func TestListenerMayReadStore(t *testing.T) {
	store := New(nil, nil)
	var names []string
	store.Subscribe(func(s Snapshot) {
		for _, team := range store.Teams().Items {
			names = append(names, team.Name)
		}
	})
	store.UpsertTeam(domain.Team{ID: "a", Name: "Launch"})
	require.Equal(t, []string{"Launch"}, names)
}

func ids(items []domain.Team) []string {
	out := make([]string, 0, len(items))
	for _, t := range items {
		out = append(out, t.ID)
	}
	return out
}
