// Package identity is the client half of the session provider: it talks to the auth
// routes and keeps the Store's auth slice in step with the result.
package identity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/splax/teamroster/internal/client/state"
	"github.com/splax/teamroster/internal/domain"
	apiclient "github.com/splax/teamroster/pkg/api/client"
)

var (
	ErrNotSignedIn    = errors.New("not signed in")
	ErrSessionExpired = errors.New("session expired; sign in again")
)

// Backend is the remote identity service.
type Backend interface {
	Signup(ctx context.Context, in apiclient.SignupRequest) (*apiclient.Session, error)
	Login(ctx context.Context, email, password string) (*apiclient.Session, error)
	Refresh(ctx context.Context, refreshToken string) (*apiclient.Session, error)
	Me(ctx context.Context, token string) (*apiclient.User, error)
}

// Provider signs users in and out and reports session changes.
type Provider struct {
	backend Backend
	store   *state.Store
	logger  *slog.Logger
	mu      sync.Mutex
}

// New constructs a Provider writing into store.
func New(backend Backend, store *state.Store, logger *slog.Logger) *Provider {
	if logger == nil {
		logger = slog.Default()
	}
	return &Provider{backend: backend, store: store, logger: logger}
}

// SignUp registers an account and signs it in.
func (p *Provider) SignUp(ctx context.Context, name, email, password string, role domain.Role) (state.Session, error) {
	resp, err := p.backend.Signup(ctx, apiclient.SignupRequest{Name: name, Email: email, Password: password, Role: string(role)})
	if err != nil {
		return state.Session{}, err
	}
	return p.establish(resp)
}

// SignIn exchanges credentials for a session.
func (p *Provider) SignIn(ctx context.Context, email, password string) (state.Session, error) {
	resp, err := p.backend.Login(ctx, email, password)
	if err != nil {
		return state.Session{}, err
	}
	return p.establish(resp)
}

// SignOut forgets the session locally.
func (p *Provider) SignOut() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.store.SignedOut()
}

// Current returns the live session, if any.
func (p *Provider) Current() (state.Session, bool) {
	auth := p.store.Auth()
	return auth.Session, auth.Authenticated
}

// AccessToken returns the live access token, or "" when signed out.
func (p *Provider) AccessToken() string {
	session, ok := p.Current()
	if !ok {
		return ""
	}
	return session.AccessToken
}

// Restore signs in with a previously saved session without contacting the backend.
func (p *Provider) Restore(session state.Session) error {
	if !session.Valid() {
		return fmt.Errorf("restore: %w", ErrNotSignedIn)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.store.SignInSucceeded(session)
}

// OnSessionChange calls cb with the current session (nil when signed out) and again
// whenever the signed-in identity or its tokens change. Calls are serialized and arrive
// in Store order; cb must not mutate the Store itself.
func (p *Provider) OnSessionChange(cb func(*state.Session)) (dispose func()) {
	var (
		mu      sync.Mutex
		last    string
		version uint64
	)
	emit := func(auth state.Auth) {
		if !auth.Authenticated {
			cb(nil)
			return
		}
		session := auth.Session
		cb(&session)
	}

	// Register before reading the current state so no mutation falls between the two.
	mu.Lock()
	defer mu.Unlock()
	dispose = p.store.Subscribe(func(snap state.Snapshot) {
		mu.Lock()
		defer mu.Unlock()
		if snap.Version <= version {
			return
		}
		version = snap.Version
		key := sessionKey(snap.Auth)
		if key == last {
			return
		}
		last = key
		emit(snap.Auth)
	})
	current := p.store.Snapshot()
	last = sessionKey(current.Auth)
	version = current.Version
	emit(current.Auth)
	return dispose
}

// Revalidate checks the stored session against the backend. The profile is refreshed
// from the server; an expired access token is renewed with the refresh token; when both
// are rejected the session is cleared and ErrSessionExpired returned. Transport failures
// leave the session untouched.
func (p *Provider) Revalidate(ctx context.Context) error {
	session, ok := p.Current()
	if !ok {
		return ErrNotSignedIn
	}

	user, err := p.backend.Me(ctx, session.AccessToken)
	if err == nil {
		updated := session
		updated.Profile = profileFrom(*user)
		if updated != session {
			p.mu.Lock()
			defer p.mu.Unlock()
			return p.store.SignInSucceeded(updated)
		}
		return nil
	}
	if !apiclient.IsStatus(err, http.StatusUnauthorized) {
		return err
	}

	p.logger.Info("access token rejected; refreshing", "user_id", session.Profile.ID)
	resp, err := p.backend.Refresh(ctx, session.RefreshToken)
	if err != nil {
		if apiclient.IsStatus(err, http.StatusUnauthorized) {
			if clearErr := p.SignOut(); clearErr != nil {
				p.logger.Warn("clear session failed", "error", clearErr)
			}
			return ErrSessionExpired
		}
		return err
	}
	_, err = p.establish(resp)
	return err
}

func (p *Provider) establish(resp *apiclient.Session) (state.Session, error) {
	session := state.Session{
		Profile:      profileFrom(resp.User),
		AccessToken:  resp.Tokens.AccessToken,
		RefreshToken: resp.Tokens.RefreshToken,
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.store.SignInSucceeded(session); err != nil {
		p.logger.Warn("persist session failed", "error", err)
	}
	return session, nil
}

func profileFrom(u apiclient.User) domain.Profile {
	return domain.Profile{ID: u.ID, Name: u.Name, Email: u.Email, Role: domain.Role(u.Role)}
}

func sessionKey(auth state.Auth) string {
	if !auth.Authenticated {
		return ""
	}
	return auth.Session.Profile.ID + "|" + auth.Session.AccessToken
}
