package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/splax/teamroster/internal/client/guard"
	"github.com/splax/teamroster/internal/client/state"
	"github.com/splax/teamroster/internal/client/teams"
	"github.com/splax/teamroster/internal/domain"
	httpx "github.com/splax/teamroster/internal/http"
	"github.com/splax/teamroster/internal/repository/memory"
	"github.com/splax/teamroster/internal/service/auth"
	"github.com/splax/teamroster/internal/service/documents"
	"github.com/splax/teamroster/pkg/config"
	apiclient "github.com/splax/teamroster/pkg/api/client"
)

// routeEnv runs commands against an in-memory api with three accounts: the author of
// every seeded team, a second user and an admin.
type routeEnv struct {
	client   *apiclient.Client
	sessions map[string]state.Session
}

func newRouteEnv(t *testing.T) *routeEnv {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	repo := memory.New()
	docs := documents.New(repo, logger)
	cfg := config.APIConfig{
		JWTSecret:        "cli-secret",
		AccessTokenTTL:   time.Minute,
		RefreshTokenTTL:  time.Hour,
		AllowAdminSignup: true,
	}
	router := httpx.NewRouter(httpx.Deps{
		Logger:          logger,
		Auth:            auth.New(repo, docs, logger, cfg),
		Documents:       docs,
		StreamHeartbeat: time.Second,
	})
	server := httptest.NewServer(router)
	t.Cleanup(func() {
		server.Close()
		router.Close()
		docs.Close()
	})

	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("XDG_CONFIG_HOME", home)
	t.Setenv("TEAMCTL_API_BASE_URL", server.URL)

	client, err := apiclient.New(server.URL)
	require.NoError(t, err)
	env := &routeEnv{client: client, sessions: map[string]state.Session{}}
	for _, acct := range []struct{ key, role string }{
		{"author", "user"},
		{"other", "user"},
		{"admin", "admin"},
	} {
		resp, err := client.Signup(context.Background(), apiclient.SignupRequest{
			Name:     acct.key,
			Email:    acct.key + "@example.com",
			Password: "secret1",
			Role:     acct.role,
		})
		require.NoError(t, err)
		env.sessions[acct.key] = state.Session{
			Profile: domain.Profile{
				ID:    resp.User.ID,
				Name:  resp.User.Name,
				Email: resp.User.Email,
				Role:  domain.Role(resp.User.Role),
			},
			AccessToken:  resp.Tokens.AccessToken,
			RefreshToken: resp.Tokens.RefreshToken,
		}
	}
	return env
}

// signInAs persists the account's session the way `teamctl login` does; "" signs out.
func (e *routeEnv) signInAs(t *testing.T, key string) {
	t.Helper()
	path, err := state.DefaultSessionPath()
	require.NoError(t, err)
	store := state.NewFileSessionStore(path)
	if key == "" {
		require.NoError(t, store.Clear())
		return
	}
	require.NoError(t, store.Save(e.sessions[key]))
}

// seedTeam writes a team authored by "author" with "author" as its only member.
func (e *routeEnv) seedTeam(t *testing.T) string {
	t.Helper()
	author := e.sessions["author"]
	store := state.New(nil, nil)
	require.NoError(t, store.SignInSucceeded(author))
	remote := apiclient.NewRemote(e.client, func() string { return author.AccessToken })
	identity := staticSession{author}
	team, err := teams.New(remote, store, identity, nil).Create(context.Background(), teams.Input{
		Name:      "Launch",
		Category:  domain.CategoryMarketing,
		Members:   []string{author.Profile.ID},
		Questions: []string{"Q1"},
	})
	require.NoError(t, err)
	return team.ID
}

type staticSession struct {
	session state.Session
}

func (s staticSession) Current() (state.Session, bool) {
	return s.session, true
}

type outcome int

const (
	allowed outcome = iota
	redirected
	notAuthor
	notMember
)

func TestRouteAccessByRole(t *testing.T) {
	env := newRouteEnv(t)

	type route struct {
		name string
		run  func(t *testing.T, teamID string) error
		want map[string]outcome
	}
	everyone := map[string]outcome{"": redirected, "author": allowed, "other": allowed, "admin": allowed}
	manage := map[string]outcome{"": redirected, "author": allowed, "other": notAuthor, "admin": allowed}

	routes := []route{
		{"whoami", func(*testing.T, string) error { return commandWhoami(nil) }, everyone},
		{"users", func(*testing.T, string) error { return commandUsers(nil) }, everyone},
		{"team list", func(*testing.T, string) error { return teamList(nil) }, everyone},
		{"team show", func(_ *testing.T, id string) error { return teamShow([]string{id}) }, everyone},
		{"dashboard", func(*testing.T, string) error { return commandDashboard(nil) },
			map[string]outcome{"": redirected, "author": allowed, "other": allowed, "admin": redirected}},
		{"admin", func(*testing.T, string) error { return commandAdmin(nil) },
			map[string]outcome{"": redirected, "author": redirected, "other": redirected, "admin": allowed}},
		{"team create", func(*testing.T, string) error {
			return teamCreate([]string{"--name", "Launch", "--category", "Marketing", "--member", env.sessions["other"].Profile.ID, "--question", "Q1"})
		}, everyone},
		{"team edit", func(_ *testing.T, id string) error {
			return teamEdit([]string{id, "--name", "Renamed"})
		}, manage},
		{"team add-member", func(_ *testing.T, id string) error {
			return teamAddMember([]string{id, env.sessions["other"].Profile.ID})
		}, manage},
		{"team remove-member", func(_ *testing.T, id string) error {
			return teamRemoveMember([]string{id, env.sessions["author"].Profile.ID})
		}, manage},
		{"team delete", func(_ *testing.T, id string) error {
			return teamDelete([]string{id, "--yes"})
		}, manage},
		{"team answer", func(_ *testing.T, id string) error {
			return teamAnswer([]string{id, "--question", "0", "--text", "Yes"})
		}, map[string]outcome{"": redirected, "author": allowed, "other": notMember, "admin": notMember}},
	}

	for _, r := range routes {
		for _, who := range []string{"", "author", "other", "admin"} {
			name := r.name + "/" + who
			if who == "" {
				name = r.name + "/signed-out"
			}
			t.Run(name, func(t *testing.T) {
				teamID := env.seedTeam(t)
				env.signInAs(t, who)

				err := r.run(t, teamID)
				var redirect *guard.RedirectError
				switch r.want[who] {
				case allowed:
					require.NoError(t, err)
				case redirected:
					require.True(t, errors.As(err, &redirect), "want redirect, got %v", err)
					require.Equal(t, guard.LoginRoute, redirect.To)
				case notAuthor:
					require.ErrorIs(t, err, errNotAuthor)
				case notMember:
					require.ErrorIs(t, err, teams.ErrNotMember)
				}
			})
		}
	}
}

func TestDashboardListsAuthoredAndMemberTeams(t *testing.T) {
	env := newRouteEnv(t)
	teamID := env.seedTeam(t)
	env.signInAs(t, "author")

	a, err := newApp()
	require.NoError(t, err)
	ctx, cancel := withTimeout()
	defer cancel()
	_, err = a.loadTeams(ctx)
	require.NoError(t, err)

	me := env.sessions["author"].Profile.ID
	require.Len(t, a.store.TeamsAuthoredBy(me), 1)
	require.Equal(t, teamID, a.store.TeamsAuthoredBy(me)[0].ID)
	require.Len(t, a.store.TeamsWithMember(me), 1)
	require.Empty(t, a.store.TeamsAuthoredBy(env.sessions["other"].Profile.ID))
}
