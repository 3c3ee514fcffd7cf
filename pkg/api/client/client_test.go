package client

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	httpx "github.com/splax/teamroster/internal/http"
	"github.com/splax/teamroster/internal/repository/memory"
	"github.com/splax/teamroster/internal/service/auth"
	"github.com/splax/teamroster/internal/service/documents"
	"github.com/splax/teamroster/pkg/config"
)

func newTestServer(t *testing.T) *Client {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	repo := memory.New()
	docs := documents.New(repo, logger)
	cfg := config.APIConfig{JWTSecret: "client-secret", AccessTokenTTL: time.Minute, RefreshTokenTTL: time.Hour}
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
	cli, err := New(server.URL)
	require.NoError(t, err)
	return cli
}

func TestNewNormalisesBaseURL(t *testing.T) {
	cli, err := New("localhost:4000/")
	require.NoError(t, err)
	require.Equal(t, "http://localhost:4000", cli.BaseURL())

	cli, err = New("")
	require.NoError(t, err)
	require.Equal(t, "http://localhost:4000", cli.BaseURL())
}

func TestAuthRoundTrip(t *testing.T) {
	ctx := context.Background()
	cli := newTestServer(t)

	session, err := cli.Signup(ctx, SignupRequest{Name: "Ada", Email: "ada@example.com", Password: "secret1"})
	require.NoError(t, err)
	require.Equal(t, "user", session.User.Role)

	_, err = cli.Login(ctx, "ada@example.com", "bad-password")
	require.True(t, IsStatus(err, http.StatusUnauthorized))

	me, err := cli.Me(ctx, session.Tokens.AccessToken)
	require.NoError(t, err)
	require.Equal(t, session.User.ID, me.ID)

	refreshed, err := cli.Refresh(ctx, session.Tokens.RefreshToken)
	require.NoError(t, err)
	require.Equal(t, "Ada", refreshed.User.Name)
}

func TestRemoteReadWriteSubscribe(t *testing.T) {
	ctx := context.Background()
	cli := newTestServer(t)
	session, err := cli.Signup(ctx, SignupRequest{Name: "Ada", Email: "ada@example.com", Password: "secret1"})
	require.NoError(t, err)

	var token string
	remote := NewRemote(cli, func() string { return token })
	_, err = remote.Get(ctx, "teams")
	require.ErrorIs(t, err, ErrNoSession)
	token = session.Tokens.AccessToken

	var (
		mu     sync.Mutex
		values []any
	)
	dispose, err := remote.Subscribe(ctx, "teams/t1", func(v any) {
		mu.Lock()
		defer mu.Unlock()
		values = append(values, v)
	}, func(err error) { t.Errorf("unexpected subscription error: %v", err) })
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(values) == 1
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, remote.Set(ctx, "teams/t1", map[string]any{"name": "Launch", "author": session.User.ID}))
	require.NoError(t, remote.Update(ctx, "teams/t1", map[string]any{"members/u1": map[string]any{"name": "Bob"}}))

	got, err := remote.Get(ctx, "teams/t1/members/u1/name")
	require.NoError(t, err)
	require.Equal(t, "Bob", got)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(values) == 3
	}, 2*time.Second, 10*time.Millisecond)

	dispose()
	dispose()

	require.NoError(t, remote.Remove(ctx, "teams/t1"))
	got, err = remote.Get(ctx, "teams/t1")
	require.NoError(t, err)
	require.Nil(t, got)

	mu.Lock()
	defer mu.Unlock()
	require.Nil(t, values[0])
	raw, err := json.Marshal(values[2])
	require.NoError(t, err)
	require.JSONEq(t, `{"name":"Launch","author":"`+session.User.ID+`","members":{"u1":{"name":"Bob"}}}`, string(raw))
}

func TestSubscribeRejectsAnonymous(t *testing.T) {
	cli := newTestServer(t)
	_, err := cli.Subscribe(context.Background(), "", "teams", func(any) {}, nil)
	require.True(t, IsStatus(err, http.StatusUnauthorized))
}

func TestDisposeFromInsideCallback(t *testing.T) {
	ctx := context.Background()
	cli := newTestServer(t)
	session, err := cli.Signup(ctx, SignupRequest{Name: "Ada", Email: "ada@example.com", Password: "secret1"})
	require.NoError(t, err)

	var (
		mu      sync.Mutex
		dispose func()
		calls   int
	)
	returned := make(chan struct{})
	ready := make(chan struct{})
	d, err := cli.Subscribe(ctx, session.Tokens.AccessToken, "teams", func(any) {
		<-ready
		mu.Lock()
		calls++
		stop := dispose
		mu.Unlock()
		stop()
		close(returned)
	}, nil)
	require.NoError(t, err)
	mu.Lock()
	dispose = d
	mu.Unlock()
	close(ready)

	select {
	case <-returned:
	case <-time.After(2 * time.Second):
		t.Fatal("disposer blocked inside the snapshot callback")
	}
	d()

	require.NoError(t, cli.Set(ctx, session.Tokens.AccessToken, "teams/t1", map[string]any{"name": "Launch"}))
	time.Sleep(50 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, 1, calls)
}
